// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agents

import (
	"strings"
	"testing"

	"github.com/AleutianAI/AleutianInterview/services/interview/datatypes"
)

func TestEmbeddedPackLoads(t *testing.T) {
	pack, err := LoadEmbeddedPack()
	if err != nil {
		t.Fatalf("embedded pack failed to parse: %v", err)
	}
	if pack.OpeningQuestion == "" {
		t.Error("embedded pack has no opening question")
	}
	if len(pack.GeneralQuestions) == 0 {
		t.Error("embedded pack has no general questions")
	}
	for _, style := range []datatypes.InterviewStyle{
		datatypes.StyleFormal, datatypes.StyleCasual,
		datatypes.StyleAggressive, datatypes.StyleTechnical,
	} {
		if len(pack.StyleTemplates[style]) == 0 {
			t.Errorf("embedded pack missing templates for style %s", style)
		}
	}
}

func TestBuildQuestionBankTruncatesAndDedupes(t *testing.T) {
	pack, err := LoadEmbeddedPack()
	if err != nil {
		t.Fatal(err)
	}
	cfg := datatypes.SessionConfig{
		JobRole:             "Software Engineer",
		Style:               datatypes.StyleTechnical,
		TargetQuestionCount: 5,
	}
	// Include a duplicate of the opening question among the job-specific set.
	bank := pack.BuildQuestionBank(cfg, []string{pack.OpeningQuestion, "Custom question one?"})

	if len(bank) != 5 {
		t.Fatalf("expected bank of 5, got %d", len(bank))
	}
	if bank[0] != pack.OpeningQuestion {
		t.Errorf("opening question must come first, got %q", bank[0])
	}
	seen := map[string]bool{}
	for _, q := range bank {
		key := strings.ToLower(q)
		if seen[key] {
			t.Errorf("duplicate question in bank: %q", q)
		}
		seen[key] = true
	}
	if !seen[strings.ToLower("Custom question one?")] {
		t.Error("job-specific question should survive dedupe")
	}
}

func TestTemplatesForFallsBackToDefaultRole(t *testing.T) {
	pack, err := LoadEmbeddedPack()
	if err != nil {
		t.Fatal(err)
	}
	templates := pack.TemplatesFor(datatypes.StyleFormal, "Marine Biologist", "OceanCorp")
	if len(templates) == 0 {
		t.Fatal("expected fallback templates for unknown role")
	}
	for _, tmpl := range templates {
		if strings.Contains(tmpl, "{role}") || strings.Contains(tmpl, "{company}") {
			t.Errorf("placeholder left unsubstituted: %q", tmpl)
		}
	}
}

func TestTemplatesForUnknownStyle(t *testing.T) {
	pack, err := LoadEmbeddedPack()
	if err != nil {
		t.Fatal(err)
	}
	templates := pack.TemplatesFor(datatypes.InterviewStyle("whimsical"), "Software Engineer", "")
	if len(templates) == 0 {
		t.Error("unknown style should fall back to formal templates")
	}
}

func TestFallbackQuestionCycles(t *testing.T) {
	pack, err := LoadEmbeddedPack()
	if err != nil {
		t.Fatal(err)
	}
	n := len(pack.GeneralQuestions)
	if pack.FallbackQuestion(0) != pack.FallbackQuestion(n) {
		t.Error("fallback question should cycle through the general list")
	}

	empty := &QuestionPack{}
	if empty.FallbackQuestion(3) == "" {
		t.Error("empty pack must still produce a fallback question")
	}
}

func TestParseQuestionList(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want int
	}{
		{"bare array", `["One?","Two?"]`, 2},
		{"fenced", "```json\n[\"One?\"]\n```", 1},
		{"embedded", "Sure, here you go: [\"One?\", \"Two?\", \"Three?\"] hope that helps", 3},
		{"garbage", "no questions here", 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := parseQuestionList(tc.raw)
			if len(got) != tc.want {
				t.Errorf("parseQuestionList(%q) returned %d items, want %d", tc.raw, len(got), tc.want)
			}
		})
	}
}
