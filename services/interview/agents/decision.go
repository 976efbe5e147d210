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
	"encoding/json"
	"log/slog"
	"strings"
)

// Action is the interviewer's next move.
type Action string

const (
	ActionFollowUp    Action = "ask_follow_up"
	ActionNewQuestion Action = "ask_new_question"
	ActionEnd         Action = "end_interview"
)

// MinQuestions is the floor of asked questions before a count-based
// interview may end.
const MinQuestions = 3

// minEndProgressPercent is the floor of elapsed time before a time-based
// interview may end early.
const minEndProgressPercent = 70

// Decision is the parsed next-action response from the LLM, after guard
// rules have been applied.
type Decision struct {
	ActionType         Action   `json:"action_type"`
	NextQuestionText   string   `json:"next_question_text,omitempty"`
	Justification      string   `json:"justification"`
	NewlyCoveredTopics []string `json:"newly_covered_topics"`
}

// defaultDecision is emitted when the LLM call itself fails.
func defaultDecision(fallbackQuestion string) Decision {
	return Decision{
		ActionType:         ActionNewQuestion,
		NextQuestionText:   fallbackQuestion,
		Justification:      "processing error",
		NewlyCoveredTopics: []string{},
	}
}

// parseDecision recovers a Decision from raw LLM output. It tries the raw
// text as JSON first, then the contents of a fenced code block, then falls
// back to a default decision. Parsing never fails the turn.
func parseDecision(raw, fallbackQuestion string) Decision {
	var d Decision
	trimmed := strings.TrimSpace(raw)
	if err := json.Unmarshal([]byte(trimmed), &d); err == nil {
		return d
	}
	if extracted, ok := extractFencedJSON(trimmed); ok {
		if err := json.Unmarshal([]byte(extracted), &d); err == nil {
			return d
		}
	}
	// Last resort: the first {...} span in the output.
	if start := strings.Index(trimmed, "{"); start >= 0 {
		if end := strings.LastIndex(trimmed, "}"); end > start {
			if err := json.Unmarshal([]byte(trimmed[start:end+1]), &d); err == nil {
				return d
			}
		}
	}
	slog.Warn("Could not parse interviewer decision, using default",
		"raw_prefix", prefix(trimmed, 120))
	return defaultDecision(fallbackQuestion)
}

// extractFencedJSON pulls the body of the first ```...``` block, dropping a
// leading language tag line such as "json".
func extractFencedJSON(s string) (string, bool) {
	start := strings.Index(s, "```")
	if start < 0 {
		return "", false
	}
	rest := s[start+3:]
	end := strings.Index(rest, "```")
	if end < 0 {
		return "", false
	}
	body := rest[:end]
	if nl := strings.Index(body, "\n"); nl >= 0 {
		firstLine := strings.TrimSpace(body[:nl])
		if firstLine != "" && !strings.HasPrefix(firstLine, "{") {
			body = body[nl+1:]
		}
	}
	return strings.TrimSpace(body), true
}

func prefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// applyGuardRules enforces the interview-flow invariants the model cannot be
// trusted with. timeCtx is nil for count-based sessions.
func applyGuardRules(d Decision, askedCount int, timeCtx *TimeContext, fallbackQuestion string) Decision {
	switch d.ActionType {
	case ActionFollowUp, ActionNewQuestion, ActionEnd:
	default:
		slog.Warn("Interviewer decision had an unknown action, converting",
			"action", string(d.ActionType))
		d.ActionType = ActionNewQuestion
		d.NextQuestionText = fallbackQuestion
	}

	if timeCtx != nil {
		if timeCtx.RemainingMinutes <= 0 {
			d.ActionType = ActionEnd
			d.NextQuestionText = ""
			if d.Justification == "" {
				d.Justification = "interview time has elapsed"
			}
			return d
		}
		if d.ActionType == ActionEnd && timeCtx.ProgressPercent < minEndProgressPercent {
			slog.Info("Rejecting early end_interview in time-based mode",
				"progress_percent", timeCtx.ProgressPercent)
			d.ActionType = ActionNewQuestion
			d.NextQuestionText = fallbackQuestion
		}
	} else if d.ActionType == ActionEnd && askedCount < MinQuestions {
		slog.Info("Rejecting premature end_interview", "asked_count", askedCount)
		d.ActionType = ActionNewQuestion
		d.NextQuestionText = fallbackQuestion
	}

	if d.ActionType != ActionEnd && strings.TrimSpace(d.NextQuestionText) == "" {
		d.NextQuestionText = fallbackQuestion
	}
	if d.NewlyCoveredTopics == nil {
		d.NewlyCoveredTopics = []string{}
	}
	return d
}
