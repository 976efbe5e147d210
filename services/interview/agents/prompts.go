// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// # Description
//
// Prompt templates for the interviewer and coach agents. All templates use
// the f-string format so the same placeholder syntax works for optional
// inserts (time context, resume) that are built up before formatting.
// Literal JSON braces in templates are escaped as doubled braces.

package agents

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/prompts"
)

// jobQuestionsPrompt asks the LLM for job-specific interview questions as a
// bare JSON array of strings.
var jobQuestionsPrompt = prompts.PromptTemplate{
	Template: `You are an expert interviewer preparing for an interview.

Role: {role}
Job description:
{description}

Candidate resume:
{resume}

Generate exactly {count} interview questions tailored to this role, this job
description, and this candidate's background. Mix behavioral and role-specific
questions. Match a {style} interview style at {difficulty} difficulty.

Respond with ONLY a JSON array of question strings, nothing else. Example:
["First question?", "Second question?"]`,
	InputVariables: []string{"role", "description", "resume", "count", "style", "difficulty"},
	TemplateFormat: prompts.TemplateFormatFString,
}

// decisionPrompt drives the interviewer's next-action choice. The
// time_context block is empty for count-based sessions.
var decisionPrompt = prompts.PromptTemplate{
	Template: `You are conducting a {style} job interview at {difficulty} difficulty for the role of {role}.

Job description:
{description}

Candidate resume:
{resume}

Topics covered so far: {covered_topics}
{time_context}
Conversation so far (most recent last):
{history}

Your last question: {last_question}
Candidate's answer: {last_answer}

Decide your next move. Respond with ONLY a JSON object:
{{
  "action_type": "ask_follow_up" | "ask_new_question" | "end_interview",
  "next_question_text": "the exact question to ask next (omit for end_interview)",
  "justification": "one sentence on why",
  "newly_covered_topics": ["topics the candidate's answer covered"]
}}

Guidelines:
- ask_follow_up when the answer was shallow or raises an obvious thread.
- ask_new_question to move to an uncovered area.
- end_interview only when the interview has run its course.`,
	InputVariables: []string{"style", "difficulty", "role", "description", "resume",
		"covered_topics", "time_context", "history", "last_question", "last_answer"},
	TemplateFormat: prompts.TemplateFormatFString,
}

// timeContextBlock renders the time-based addendum for the decision prompt.
var timeContextBlock = prompts.PromptTemplate{
	Template: `
Time status: {phase} phase, {progress}% through a {total} minute interview
({remaining} minutes remaining, time pressure: {pressure}).
Suggested focus: {suggestions}
`,
	InputVariables: []string{"phase", "progress", "total", "remaining", "pressure", "suggestions"},
	TemplateFormat: prompts.TemplateFormatFString,
}

// coachEvaluatePrompt produces one block of conversational per-turn feedback.
var coachEvaluatePrompt = prompts.PromptTemplate{
	Template: `You are an encouraging but honest interview coach observing a mock interview.

The interviewer asked: {question}
The candidate answered: {answer}
Interviewer's private read on the answer: {justification}

Recent conversation:
{history}

Give the candidate 2-4 sentences of direct coaching on this answer: what
worked, what to sharpen, and one concrete way to improve it. Speak to the
candidate ("you"), no headings or bullet lists.`,
	InputVariables: []string{"question", "answer", "justification", "history"},
	TemplateFormat: prompts.TemplateFormatFString,
}

// finalSummaryPrompt asks for the end-of-interview analysis as strict JSON.
var finalSummaryPrompt = prompts.PromptTemplate{
	Template: `You are an expert interview coach writing a final performance review of a
mock {style} interview for the role of {role} ({difficulty} difficulty).

Per-question coaching notes:
{feedback_log}

Full transcript:
{history}

Respond with ONLY a JSON object:
{{
  "patterns_tendencies": "recurring patterns in how the candidate answers",
  "strengths": ["specific strength", ...],
  "weaknesses": ["specific weakness", ...],
  "improvement_focus_areas": ["concrete area to work on", ...],
  "resource_search_topics": ["2-3 word learning topic", ...]
}}

Keep resource_search_topics to at most 3 short, searchable skill topics.`,
	InputVariables: []string{"style", "role", "difficulty", "feedback_log", "history"},
	TemplateFormat: prompts.TemplateFormatFString,
}

// formatPrompt renders a template, tolerating missing placeholders by
// substituting an empty string so a partial context never aborts a turn.
func formatPrompt(tmpl prompts.PromptTemplate, values map[string]any) (string, error) {
	for _, name := range tmpl.InputVariables {
		if _, ok := values[name]; !ok {
			slog.Debug("Prompt placeholder missing, substituting empty", "placeholder", name)
			values[name] = ""
		}
	}
	out, err := tmpl.Format(values)
	if err != nil {
		return "", fmt.Errorf("failed to format prompt template: %w", err)
	}
	return out, nil
}

// orEmpty substitutes a visible marker for absent optional context so the
// model does not hallucinate content for it.
func orEmpty(s, marker string) string {
	if strings.TrimSpace(s) == "" {
		return marker
	}
	return s
}
