// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package speech

import (
	"fmt"
	"html"
)

// Speed factor bounds for synthesis. 1.0 is the provider's natural rate.
const (
	MinSpeechSpeed = 0.5
	MaxSpeechSpeed = 2.0
)

// leadingBreakMS is the silent gap prepended to every utterance so playback
// does not clip the first syllable.
const leadingBreakMS = 250

// BuildSSML wraps text for synthesis: HTML-escapes it, prepends a short
// silent break, and applies a prosody rate computed from the speed factor
// (0.5-2.0 maps linearly to 50%-200%).
func BuildSSML(text string, speed float64) string {
	if speed < MinSpeechSpeed {
		speed = MinSpeechSpeed
	}
	if speed > MaxSpeechSpeed {
		speed = MaxSpeechSpeed
	}
	escaped := html.EscapeString(text)
	rate := int(speed * 100)
	return fmt.Sprintf(`<speak><break time="%dms"/><prosody rate="%d%%">%s</prosody></speak>`,
		leadingBreakMS, rate, escaped)
}
