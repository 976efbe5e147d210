// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
)

// PersonalityLevel defines the verbosity and richness of CLI output.
type PersonalityLevel string

const (
	// PersonalityFull enables colors, icons, and boxes.
	PersonalityFull PersonalityLevel = "full"

	// PersonalityMachine outputs plain text suitable for scripting.
	PersonalityMachine PersonalityLevel = "machine"
)

var (
	currentLevel  = PersonalityFull
	personalityMu sync.RWMutex
)

// GetPersonalityLevel returns the current level.
func GetPersonalityLevel() PersonalityLevel {
	personalityMu.RLock()
	defer personalityMu.RUnlock()
	return currentLevel
}

// SetPersonalityLevel updates the current level.
func SetPersonalityLevel(level PersonalityLevel) {
	personalityMu.Lock()
	defer personalityMu.Unlock()
	currentLevel = level
}

// Machine reports whether output should be plain text.
func Machine() bool {
	return GetPersonalityLevel() == PersonalityMachine
}

// ParsePersonalityLevel converts a string to PersonalityLevel.
func ParsePersonalityLevel(s string) PersonalityLevel {
	switch strings.ToLower(s) {
	case "machine", "quiet", "q":
		return PersonalityMachine
	default:
		return PersonalityFull
	}
}

// InitPersonality initializes the level from ALEUTIAN_PERSONALITY, falling
// back to machine mode when stdout is not a terminal.
func InitPersonality() {
	if envLevel := os.Getenv("ALEUTIAN_PERSONALITY"); envLevel != "" {
		SetPersonalityLevel(ParsePersonalityLevel(envLevel))
		return
	}
	if !isTerminal() {
		SetPersonalityLevel(PersonalityMachine)
		return
	}
	SetPersonalityLevel(PersonalityFull)
}

func isTerminal() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// IsInteractive returns true if we should show interactive prompts.
func IsInteractive() bool {
	return !Machine() && isatty.IsTerminal(os.Stdin.Fd())
}
