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
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/AleutianAI/AleutianInterview/services/interview/datatypes"
	"github.com/AleutianAI/AleutianInterview/services/llm"
)

// stubLLM returns queued responses in order, then repeats the last one.
type stubLLM struct {
	responses []string
	err       error
	calls     int
	prompts   []string
}

func (s *stubLLM) Generate(_ context.Context, prompt string, _ llm.GenerationParams) (string, error) {
	s.calls++
	s.prompts = append(s.prompts, prompt)
	if s.err != nil {
		return "", s.err
	}
	if len(s.responses) == 0 {
		return "", errors.New("stub has no responses")
	}
	idx := s.calls - 1
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	return s.responses[idx], nil
}

func (s *stubLLM) Chat(ctx context.Context, _ string, _ []llm.ChatMessage,
	params llm.GenerationParams) (string, error) {
	return s.Generate(ctx, "", params)
}

func testPack(t *testing.T) *QuestionPack {
	t.Helper()
	pack, err := LoadEmbeddedPack()
	if err != nil {
		t.Fatalf("embedded pack: %v", err)
	}
	return pack
}

func userTurn(content string) datatypes.Message {
	return datatypes.Message{Role: datatypes.RoleUser, Content: content, Timestamp: time.Now().UTC()}
}

func TestInterviewerFirstProcessIntroduces(t *testing.T) {
	cfg := datatypes.SessionConfig{JobRole: "Software Engineer", Style: datatypes.StyleFormal,
		TargetQuestionCount: 5}
	iv := NewInterviewer(cfg, &stubLLM{}, testPack(t))

	resp := iv.Process(context.Background(), nil)

	if resp.ResponseType != datatypes.ResponseIntroduction {
		t.Errorf("expected introduction, got %s", resp.ResponseType)
	}
	if resp.Agent != datatypes.AgentInterviewer {
		t.Errorf("expected interviewer agent tag, got %s", resp.Agent)
	}
	if iv.Phase() != PhaseQuestioning {
		t.Errorf("expected questioning phase after introduction, got %s", iv.Phase())
	}
	if iv.AskedCount() != 0 {
		t.Errorf("introduction must not count as a question, asked count is %d", iv.AskedCount())
	}
	if iv.CurrentQuestion() != "" {
		t.Errorf("introduction must not ask a question, got %q", iv.CurrentQuestion())
	}
	if strings.Contains(resp.Content, "?") {
		t.Errorf("introduction should contain no question, got %q", resp.Content)
	}
}

func TestInterviewerQuestioningTurn(t *testing.T) {
	cfg := datatypes.SessionConfig{JobRole: "Software Engineer", Style: datatypes.StyleFormal,
		TargetQuestionCount: 5}
	stub := &stubLLM{responses: []string{
		`{"action_type":"ask_follow_up","next_question_text":"Can you expand on that?","justification":"thin answer","newly_covered_topics":["background"]}`,
	}}
	iv := NewInterviewer(cfg, stub, testPack(t))
	iv.Process(context.Background(), nil)

	history := []datatypes.Message{userTurn("I have five years of experience.")}
	resp := iv.Process(context.Background(), history)

	if resp.ResponseType != datatypes.ResponseQuestion {
		t.Errorf("expected question, got %s", resp.ResponseType)
	}
	if resp.Content != "Can you expand on that?" {
		t.Errorf("unexpected question content: %q", resp.Content)
	}
	if iv.AskedCount() != 1 {
		t.Errorf("expected asked count 1 after the first question, got %d", iv.AskedCount())
	}
	if len(iv.CoveredTopics()) != 1 || iv.CoveredTopics()[0] != "background" {
		t.Errorf("unexpected covered topics: %v", iv.CoveredTopics())
	}
}

func TestInterviewerLLMFailureUsesFallback(t *testing.T) {
	cfg := datatypes.SessionConfig{JobRole: "Software Engineer", Style: datatypes.StyleFormal,
		TargetQuestionCount: 5}
	stub := &stubLLM{err: errors.New("provider down")}
	iv := NewInterviewer(cfg, stub, testPack(t))
	iv.Process(context.Background(), nil)

	resp := iv.Process(context.Background(), []datatypes.Message{userTurn("answer")})

	if resp.ResponseType != datatypes.ResponseQuestion {
		t.Errorf("LLM failure should still yield a question, got %s", resp.ResponseType)
	}
	if resp.Content == "" {
		t.Error("fallback question must not be empty")
	}
}

func TestInterviewerEndGuardedByMinQuestions(t *testing.T) {
	cfg := datatypes.SessionConfig{JobRole: "Software Engineer", Style: datatypes.StyleFormal,
		TargetQuestionCount: 5}
	endDecision := `{"action_type":"end_interview","justification":"done","newly_covered_topics":[]}`
	stub := &stubLLM{responses: []string{endDecision}}
	iv := NewInterviewer(cfg, stub, testPack(t))
	iv.Process(context.Background(), nil)

	// The introduction asks nothing, so the first three turns sit below the
	// minimum and each end decision must convert into a question.
	for turn, answer := range []string{"first answer", "second answer", "third answer"} {
		resp := iv.Process(context.Background(), []datatypes.Message{userTurn(answer)})
		if resp.ResponseType != datatypes.ResponseQuestion {
			t.Fatalf("turn %d: premature end should convert to a question, got %s",
				turn+1, resp.ResponseType)
		}
		if iv.AskedCount() != turn+1 {
			t.Fatalf("turn %d: expected asked count %d, got %d", turn+1, turn+1, iv.AskedCount())
		}
	}

	// Three questions answered reaches the minimum; now the end stands.
	resp := iv.Process(context.Background(), []datatypes.Message{userTurn("fourth answer")})
	if resp.ResponseType != datatypes.ResponseClosing {
		t.Errorf("expected closing once minimum reached, got %s", resp.ResponseType)
	}
	if iv.Phase() != PhaseCompleted {
		t.Errorf("expected completed phase, got %s", iv.Phase())
	}
}

func TestInterviewerCompletedIsTerminal(t *testing.T) {
	cfg := datatypes.SessionConfig{JobRole: "Software Engineer", Style: datatypes.StyleFormal}
	iv := NewInterviewer(cfg, &stubLLM{}, testPack(t))
	iv.phase = PhaseCompleted

	resp := iv.Process(context.Background(), nil)
	if resp.ResponseType != datatypes.ResponseStatus {
		t.Errorf("completed interviewer should return status, got %s", resp.ResponseType)
	}
}

func TestInterviewerReset(t *testing.T) {
	cfg := datatypes.SessionConfig{JobRole: "Software Engineer", Style: datatypes.StyleFormal,
		TargetQuestionCount: 5}
	iv := NewInterviewer(cfg, &stubLLM{}, testPack(t))
	iv.Process(context.Background(), nil)

	iv.Reset()

	if iv.Phase() != PhaseInitializing {
		t.Errorf("expected initializing after reset, got %s", iv.Phase())
	}
	if iv.AskedCount() != 0 || iv.CurrentQuestion() != "" {
		t.Error("reset should clear asked count and current question")
	}

	// A fresh process cycle behaves like a new session.
	resp := iv.Process(context.Background(), nil)
	if resp.ResponseType != datatypes.ResponseIntroduction {
		t.Errorf("expected introduction after reset, got %s", resp.ResponseType)
	}
}

func TestInterviewerRestoreFromHistory(t *testing.T) {
	cfg := datatypes.SessionConfig{JobRole: "Software Engineer", Style: datatypes.StyleFormal}
	iv := NewInterviewer(cfg, &stubLLM{}, testPack(t))

	history := []datatypes.Message{
		{Role: datatypes.RoleAssistant, Agent: datatypes.AgentInterviewer,
			ResponseType: datatypes.ResponseIntroduction, Content: "Welcome. Tell me about yourself."},
		userTurn("Sure."),
		{Role: datatypes.RoleAssistant, Agent: datatypes.AgentInterviewer,
			ResponseType: datatypes.ResponseQuestion, Content: "What is your proudest project?"},
	}
	iv.Restore(history, 2, false)

	if iv.Phase() != PhaseQuestioning {
		t.Errorf("expected questioning after restore, got %s", iv.Phase())
	}
	if iv.AskedCount() != 2 {
		t.Errorf("expected asked count 2, got %d", iv.AskedCount())
	}
	if iv.CurrentQuestion() != "What is your proudest project?" {
		t.Errorf("unexpected current question: %q", iv.CurrentQuestion())
	}
}

func TestTimeBasedInterviewerStartsClock(t *testing.T) {
	cfg := datatypes.SessionConfig{JobRole: "Software Engineer", Style: datatypes.StyleFormal,
		TimeBased: true, InterviewDurationMinutes: 30}
	iv := NewInterviewer(cfg, &stubLLM{}, testPack(t))

	if iv.TimeManager() == nil {
		t.Fatal("time-based config should create a time manager")
	}
	iv.Process(context.Background(), nil)
	if !iv.TimeManager().Running() {
		t.Error("time manager should start with the introduction")
	}
}

func TestHistoryExcludingLastUser(t *testing.T) {
	history := []datatypes.Message{
		{Role: datatypes.RoleAssistant, Content: "q1"},
		userTurn("a1"),
		{Role: datatypes.RoleAssistant, Content: "q2"},
		userTurn("a2"),
	}
	out := historyExcludingLastUser(history)
	if len(out) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(out))
	}
	if out[len(out)-1].Content != "q2" {
		t.Errorf("last user turn should be removed, tail is %q", out[len(out)-1].Content)
	}
}
