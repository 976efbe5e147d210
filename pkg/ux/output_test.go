// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"strings"
	"testing"
)

func TestParsePersonalityLevel(t *testing.T) {
	cases := map[string]PersonalityLevel{
		"machine": PersonalityMachine,
		"quiet":   PersonalityMachine,
		"Q":       PersonalityMachine,
		"full":    PersonalityFull,
		"":        PersonalityFull,
		"bogus":   PersonalityFull,
	}
	for input, want := range cases {
		if got := ParsePersonalityLevel(input); got != want {
			t.Errorf("ParsePersonalityLevel(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestInitPersonalityEnvOverride(t *testing.T) {
	t.Setenv("ALEUTIAN_PERSONALITY", "machine")
	InitPersonality()
	if !Machine() {
		t.Error("env override to machine not applied")
	}

	t.Setenv("ALEUTIAN_PERSONALITY", "full")
	InitPersonality()
	if Machine() {
		t.Error("env override to full not applied")
	}
	SetPersonalityLevel(PersonalityFull)
}

func TestTurnMachineMode(t *testing.T) {
	SetPersonalityLevel(PersonalityMachine)
	defer SetPersonalityLevel(PersonalityFull)

	got := Turn(Styles.Interviewer, "Interviewer", "Tell me about yourself.")
	if got != "Interviewer: Tell me about yourself." {
		t.Errorf("machine-mode turn = %q", got)
	}
}

func TestTurnStyledContainsText(t *testing.T) {
	SetPersonalityLevel(PersonalityFull)
	got := Turn(Styles.Candidate, "You", "I led the migration.")
	if !strings.Contains(got, "I led the migration.") {
		t.Errorf("styled turn lost its text: %q", got)
	}
}

func TestSessionProgress(t *testing.T) {
	SetPersonalityLevel(PersonalityMachine)
	defer SetPersonalityLevel(PersonalityFull)

	if got := SessionProgress(3, 5); got != "3/5" {
		t.Errorf("SessionProgress machine mode = %q, want 3/5", got)
	}
}

func TestSpinnerMachineMode(t *testing.T) {
	SetPersonalityLevel(PersonalityMachine)
	defer SetPersonalityLevel(PersonalityFull)

	// Start/Stop must not block or panic without a terminal.
	s := NewSpinner("waiting for summary")
	s.Start()
	s.UpdateMessage("still waiting")
	s.Stop()
}
