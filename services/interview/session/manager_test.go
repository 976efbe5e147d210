// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

import (
	"context"
	"testing"
	"time"

	"github.com/AleutianAI/AleutianInterview/services/interview/agents"
	"github.com/AleutianAI/AleutianInterview/services/interview/datatypes"
	"github.com/AleutianAI/AleutianInterview/services/interview/events"
	"github.com/AleutianAI/AleutianInterview/services/llm"
)

// scriptedLLM returns canned responses in order, repeating the last.
type scriptedLLM struct {
	responses []string
	calls     int
}

func (s *scriptedLLM) Generate(context.Context, string, llm.GenerationParams) (string, error) {
	s.calls++
	idx := s.calls - 1
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	if idx < 0 {
		return "ok", nil
	}
	return s.responses[idx], nil
}

func (s *scriptedLLM) Chat(ctx context.Context, _ string, _ []llm.ChatMessage,
	p llm.GenerationParams) (string, error) {
	return s.Generate(ctx, "", p)
}

func testDeps(t *testing.T, client llm.LLMClient) Deps {
	t.Helper()
	pack, err := agents.LoadEmbeddedPack()
	if err != nil {
		t.Fatalf("embedded pack: %v", err)
	}
	return Deps{LLM: client, Bus: events.NewBus(), Pack: pack}
}

func testConfig() datatypes.SessionConfig {
	return datatypes.SessionConfig{
		JobRole:             "Software Engineer",
		Style:               datatypes.StyleFormal,
		TargetQuestionCount: 5,
	}
}

const followUpDecision = `{"action_type":"ask_follow_up","next_question_text":"Tell me more?","justification":"probing","newly_covered_topics":["background"]}`

func TestStartInterviewProducesIntroduction(t *testing.T) {
	m := New("s1", "u1", testConfig(), testDeps(t, &scriptedLLM{}))

	resp := m.StartInterview(context.Background())

	if resp.ResponseType != datatypes.ResponseIntroduction {
		t.Errorf("expected introduction, got %s", resp.ResponseType)
	}
	if len(m.History()) != 1 {
		t.Errorf("expected 1 history entry, got %d", len(m.History()))
	}
	if !m.NeedsSave() {
		t.Error("start should mark the session dirty")
	}
	if m.Stats().StartedAt == nil {
		t.Error("start should stamp StartedAt")
	}
}

func TestProcessMessagePipelineOrdering(t *testing.T) {
	stub := &scriptedLLM{responses: []string{
		followUpDecision,
		"Good answer; add a concrete metric next time.",
	}}
	m := New("s1", "u1", testConfig(), testDeps(t, stub))
	m.StartInterview(context.Background())

	resp := m.ProcessMessage(context.Background(), "I am an engineer with five years of experience.")

	if resp.ResponseType != datatypes.ResponseQuestion {
		t.Fatalf("expected question, got %s", resp.ResponseType)
	}
	// History order: introduction, user turn, interviewer reply.
	h := m.History()
	if len(h) != 3 {
		t.Fatalf("expected 3 history entries, got %d", len(h))
	}
	if h[1].Role != datatypes.RoleUser {
		t.Errorf("expected user turn second, got %s", h[1].Role)
	}
	if h[2].Agent != datatypes.AgentInterviewer {
		t.Errorf("expected interviewer reply third, got %s", h[2].Agent)
	}

	fb := m.PerTurnFeedback()
	if len(fb) != 1 {
		t.Fatalf("expected 1 feedback entry, got %d", len(fb))
	}
	if fb[0].Feedback != "Good answer; add a concrete metric next time." {
		t.Errorf("unexpected feedback: %q", fb[0].Feedback)
	}
	if fb[0].Answer == "" || fb[0].Question == "" {
		t.Error("feedback entry should carry question and answer excerpts")
	}
}

func TestQuestionCountStartsAtFirstTurn(t *testing.T) {
	stub := &scriptedLLM{responses: []string{
		`{"action_type":"ask_new_question","next_question_text":"What interests you about this role?","justification":"opening","newly_covered_topics":[]}`,
		"Solid opening; quantify your impact next time.",
	}}
	m := New("s1", "", testConfig(), testDeps(t, stub))

	intro := m.StartInterview(context.Background())
	if intro.ResponseType != datatypes.ResponseIntroduction {
		t.Fatalf("expected introduction, got %s", intro.ResponseType)
	}
	if m.Stats().QuestionsAsked != 0 {
		t.Errorf("introduction must not count as a question, got %d", m.Stats().QuestionsAsked)
	}

	resp := m.ProcessMessage(context.Background(), "I have 5 years of experience.")
	if resp.ResponseType != datatypes.ResponseQuestion {
		t.Fatalf("expected question, got %s", resp.ResponseType)
	}
	if m.Stats().QuestionsAsked != 1 {
		t.Errorf("first answered turn should yield asked count 1, got %d", m.Stats().QuestionsAsked)
	}
	if got, ok := resp.Metadata["asked_count"].(int); !ok || got != 1 {
		t.Errorf("expected asked_count metadata 1, got %v", resp.Metadata["asked_count"])
	}

	// The first answer is evaluated against the introduction.
	if len(m.PerTurnFeedback()) != 1 {
		t.Errorf("expected feedback for the first answer, got %d entries", len(m.PerTurnFeedback()))
	}
}

func TestFeedbackTruncation(t *testing.T) {
	stub := &scriptedLLM{responses: []string{followUpDecision, "fine"}}
	m := New("s1", "", testConfig(), testDeps(t, stub))
	m.StartInterview(context.Background())

	long := make([]byte, 500)
	for i := range long {
		long[i] = 'a'
	}
	m.ProcessMessage(context.Background(), string(long))

	fb := m.PerTurnFeedback()
	if len(fb) != 1 {
		t.Fatal("expected feedback entry")
	}
	if len(fb[0].Answer) != datatypes.FeedbackTruncateLen {
		t.Errorf("answer should truncate to %d, got %d", datatypes.FeedbackTruncateLen, len(fb[0].Answer))
	}
}

func TestEndInterviewNeverCarriesResults(t *testing.T) {
	stub := &scriptedLLM{responses: []string{`{"patterns_tendencies":"x","strengths":[],"weaknesses":[],"improvement_focus_areas":[],"resource_search_topics":[]}`}}
	m := New("s1", "", testConfig(), testDeps(t, stub))
	m.StartInterview(context.Background())

	resp := m.EndInterview()

	if len(resp.Results) != 0 {
		t.Error("end response must carry an empty results map")
	}
	if resp.CoachingSummary != nil {
		t.Error("end response must not carry the summary")
	}
	if resp.FinalSummaryStatus != datatypes.SummaryGenerating {
		t.Errorf("expected generating status, got %s", resp.FinalSummaryStatus)
	}
	if !resp.HasImmediateData {
		t.Error("expected has_immediate_data=true")
	}
	if m.Status() != datatypes.SessionCompleted {
		t.Errorf("expected completed status, got %s", m.Status())
	}
}

func TestSummaryBackgroundCompletes(t *testing.T) {
	stub := &scriptedLLM{responses: []string{`{"patterns_tendencies":"Short answers","strengths":["clarity"],"weaknesses":["depth"],"improvement_focus_areas":["detail"],"resource_search_topics":[]}`}}
	m := New("s1", "", testConfig(), testDeps(t, stub))
	m.StartInterview(context.Background())
	m.EndInterview()

	deadline := time.After(3 * time.Second)
	for m.SummaryStatus() == datatypes.SummaryGenerating {
		select {
		case <-deadline:
			t.Fatal("summary generation did not finish")
		case <-time.After(10 * time.Millisecond):
		}
	}

	if m.SummaryStatus() != datatypes.SummaryCompleted {
		t.Fatalf("expected completed, got %s", m.SummaryStatus())
	}
	s := m.FinalSummary()
	if s == nil || s.PatternsTendencies != "Short answers" {
		t.Errorf("unexpected summary: %+v", s)
	}
	if m.ResourceCompletedAt() == nil {
		t.Error("completion timestamp should be stamped")
	}
	if !m.NeedsSave() {
		t.Error("summary completion should mark the session dirty")
	}
}

func TestEndInterviewSchedulesOnlyOnce(t *testing.T) {
	stub := &scriptedLLM{responses: []string{`{"patterns_tendencies":"x","strengths":[],"weaknesses":[],"improvement_focus_areas":[],"resource_search_topics":[]}`}}
	m := New("s1", "", testConfig(), testDeps(t, stub))
	m.StartInterview(context.Background())
	baseline := stub.calls

	m.EndInterview()
	m.EndInterview()

	deadline := time.After(3 * time.Second)
	for m.SummaryStatus() == datatypes.SummaryGenerating {
		select {
		case <-deadline:
			t.Fatal("summary generation did not finish")
		case <-time.After(10 * time.Millisecond):
		}
	}
	if stub.calls != baseline+1 {
		t.Errorf("expected exactly one summary LLM call, got %d", stub.calls-baseline)
	}
}

func TestResetThenMessageMatchesFreshSession(t *testing.T) {
	stub := &scriptedLLM{responses: []string{followUpDecision, "fine", followUpDecision, "fine"}}
	m := New("s1", "", testConfig(), testDeps(t, stub))
	m.StartInterview(context.Background())
	m.ProcessMessage(context.Background(), "answer one")

	m.ResetSession()
	if len(m.History()) != 0 || len(m.PerTurnFeedback()) != 0 {
		t.Fatal("reset should clear history and feedback")
	}

	intro := m.StartInterview(context.Background())
	if intro.ResponseType != datatypes.ResponseIntroduction {
		t.Errorf("expected introduction after reset, got %s", intro.ResponseType)
	}
}

func TestRecordRoundTrip(t *testing.T) {
	stub := &scriptedLLM{responses: []string{followUpDecision, "fine"}}
	deps := testDeps(t, stub)
	m := New("s1", "user-9", testConfig(), deps)
	m.StartInterview(context.Background())
	m.ProcessMessage(context.Background(), "my answer")

	rec := m.ToRecord()
	restored := FromRecord(rec, deps)

	if restored.SessionID() != "s1" || restored.UserID() != "user-9" {
		t.Error("identity fields lost in round trip")
	}
	if len(restored.History()) != len(m.History()) {
		t.Errorf("history length mismatch: %d vs %d", len(restored.History()), len(m.History()))
	}
	if len(restored.PerTurnFeedback()) != len(m.PerTurnFeedback()) {
		t.Error("feedback log lost in round trip")
	}
	if restored.Config().JobRole != "Software Engineer" {
		t.Error("config lost in round trip")
	}

	// A restored mid-interview session keeps answering questions.
	resp := restored.ProcessMessage(context.Background(), "another answer")
	if resp.ResponseType != datatypes.ResponseQuestion {
		t.Errorf("restored session should continue questioning, got %s", resp.ResponseType)
	}
}

func TestEventsPublishedInOrder(t *testing.T) {
	stub := &scriptedLLM{responses: []string{followUpDecision, "fine"}}
	deps := testDeps(t, stub)
	var seen []events.EventType
	deps.Bus.Subscribe(events.Wildcard, func(ev events.Event) {
		seen = append(seen, ev.Type)
	})

	m := New("s1", "", testConfig(), deps)
	m.StartInterview(context.Background())
	m.ProcessMessage(context.Background(), "answer")

	var want []events.EventType
	for _, t := range seen {
		if t == events.UserMessage || t == events.AssistantResponse {
			want = append(want, t)
		}
	}
	// Introduction publishes one assistant response; the turn publishes
	// user message then assistant response.
	if len(want) < 3 {
		t.Fatalf("expected at least 3 message events, got %v", seen)
	}
	if want[len(want)-2] != events.UserMessage || want[len(want)-1] != events.AssistantResponse {
		t.Errorf("turn events out of order: %v", want)
	}
}
