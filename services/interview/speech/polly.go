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
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	"github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/aws/smithy-go"
)

// Voice defaults. Patrick on the long-form engine is tuned for the measured
// pacing of spoken interview questions.
const (
	DefaultPollyVoice  = "Patrick"
	DefaultPollyEngine = "long-form"
)

const synthMaxRetries = 3

// pollyAPI is the slice of the Polly SDK the synthesizer uses.
type pollyAPI interface {
	SynthesizeSpeech(ctx context.Context, params *polly.SynthesizeSpeechInput,
		optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
}

// Synthesizer renders SSML to MP3 audio through Amazon Polly. The voice and
// engine come from the environment; client-supplied voices are ignored so a
// session cannot switch personas mid-interview.
type Synthesizer struct {
	client pollyAPI
	voice  string
	engine string
}

// NewSynthesizer builds the Polly client from the default AWS credential
// chain. AWS_REGION must be set; POLLY_VOICE_ID and POLLY_ENGINE override
// the voice defaults.
func NewSynthesizer(ctx context.Context) (*Synthesizer, error) {
	region := os.Getenv("AWS_REGION")
	if region == "" {
		return nil, fmt.Errorf("AWS_REGION is missing; synthesis unavailable")
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("could not load AWS configuration: %w", err)
	}

	voice := os.Getenv("POLLY_VOICE_ID")
	if voice == "" {
		voice = DefaultPollyVoice
	}
	engine := os.Getenv("POLLY_ENGINE")
	if engine == "" {
		engine = DefaultPollyEngine
	}
	slog.Info("Initialized Polly synthesizer",
		"region", region, "voice", voice, "engine", engine)

	return &Synthesizer{
		client: polly.NewFromConfig(awsCfg),
		voice:  voice,
		engine: engine,
	}, nil
}

// Voice returns the configured voice id.
func (s *Synthesizer) Voice() string { return s.voice }

// Synthesize renders SSML to MP3 bytes, retrying throttled or transient
// provider errors with exponential back-off.
func (s *Synthesizer) Synthesize(ctx context.Context, ssml string) ([]byte, error) {
	input := &polly.SynthesizeSpeechInput{
		Text:         aws.String(ssml),
		OutputFormat: types.OutputFormatMp3,
		VoiceId:      types.VoiceId(s.voice),
		TextType:     types.TextTypeSsml,
		Engine:       types.Engine(s.engine),
	}

	var lastErr error
	for attempt := 0; attempt < synthMaxRetries; attempt++ {
		if attempt > 0 {
			wait := time.Duration(1<<(attempt-1))*time.Second +
				time.Duration(rand.Int63n(int64(time.Second)))
			slog.Warn("Retrying Polly synthesis",
				"attempt", attempt+1, "wait", wait, "error", lastErr)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		out, err := s.client.SynthesizeSpeech(ctx, input)
		if err != nil {
			lastErr = err
			if retryablePollyError(err) {
				continue
			}
			return nil, fmt.Errorf("speech synthesis failed: %w", err)
		}
		if out.AudioStream == nil {
			return nil, fmt.Errorf("synthesis returned no audio data")
		}
		audio, err := io.ReadAll(out.AudioStream)
		out.AudioStream.Close()
		if err != nil {
			lastErr = err
			continue
		}
		return audio, nil
	}
	return nil, fmt.Errorf("speech synthesis failed after %d attempts: %w",
		synthMaxRetries, lastErr)
}

// retryablePollyError reports whether the provider error is worth retrying.
func retryablePollyError(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		// Network-level failure; retry.
		return true
	}
	switch apiErr.ErrorCode() {
	case "ThrottlingException", "ServiceUnavailable", "ServiceUnavailableException", "InternalServerError":
		return true
	}
	return false
}
