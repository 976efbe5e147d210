// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation utilities for security-critical operations.
//
// This package contains validators for user-provided inputs that are used in
// database queries, file paths, or storage keys. Using these validators
// prevents injection attacks (query injection, path traversal) and rejects
// malformed identifiers before they reach a backend.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// Speech speed bounds accepted by the synthesis endpoints. Values outside
// this range produce unusable audio and are rejected rather than clamped.
const (
	MinSpeechSpeed = 0.5
	MaxSpeechSpeed = 2.0
)

// idPattern matches session and task identifiers: UUID-style hex groups or
// prefixed forms like "task_1a2b3c". Max length 64 keeps identifiers safe
// for use as storage keys and log fields.
var idPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_\-]{0,63}$`)

// ValidateSessionID validates a session identifier before it is used as a
// storage key.
//
// Valid identifiers:
//   - 1-64 characters
//   - Letters, digits, underscores, hyphens
//   - Must start with a letter or digit
//
// Returns an error if the identifier is invalid.
//
// Example:
//
//	if err := validation.ValidateSessionID(req.SessionID); err != nil {
//	    c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
//	    return
//	}
//	// Safe to use as a storage key
func ValidateSessionID(id string) error {
	if id == "" {
		return fmt.Errorf("session_id cannot be empty")
	}

	if !idPattern.MatchString(id) {
		return fmt.Errorf("invalid session_id format: must be 1-64 alphanumeric chars, underscores, or hyphens")
	}

	return nil
}

// ValidateTaskID validates a speech task identifier. Task ids share the
// session id character set.
func ValidateTaskID(id string) error {
	if id == "" {
		return fmt.Errorf("task_id cannot be empty")
	}

	if !idPattern.MatchString(id) {
		return fmt.Errorf("invalid task_id format: must be 1-64 alphanumeric chars, underscores, or hyphens")
	}

	return nil
}

// ValidateUserID validates a user identifier used to partition session
// listings. The anonymous user id passes.
func ValidateUserID(id string) error {
	if id == "" {
		return fmt.Errorf("user_id cannot be empty")
	}

	if !idPattern.MatchString(id) {
		return fmt.Errorf("invalid user_id format: must be 1-64 alphanumeric chars, underscores, or hyphens")
	}

	return nil
}

// ValidateSpeechSpeed validates a synthesis speed multiplier.
// Zero is allowed and means "use the default speed".
func ValidateSpeechSpeed(speed float64) error {
	if speed == 0 {
		return nil
	}
	if speed < MinSpeechSpeed || speed > MaxSpeechSpeed {
		return fmt.Errorf("speed %.2f out of range [%.1f, %.1f]", speed, MinSpeechSpeed, MaxSpeechSpeed)
	}
	return nil
}

// SanitizeSessionID trims whitespace and validates the result.
// Returns the cleaned identifier if valid, or an error if invalid.
//
// Use this when the identifier arrives from a query parameter or path
// segment where surrounding whitespace is common:
//
//	safeID, err := validation.SanitizeSessionID(c.Param("session_id"))
//	if err != nil {
//	    return err
//	}
func SanitizeSessionID(id string) (string, error) {
	cleaned := strings.TrimSpace(id)
	if err := ValidateSessionID(cleaned); err != nil {
		return "", err
	}
	return cleaned, nil
}
