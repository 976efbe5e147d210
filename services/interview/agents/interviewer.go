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
// The Interviewer agent runs the interview itself: it builds the session's
// question bank, introduces the interview, and on every candidate answer
// decides whether to follow up, move on, or end. Phase transitions are
// one-way forward (initializing, introducing, questioning, completed) except
// for Reset, which returns the agent to initializing.

package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianInterview/services/interview/datatypes"
	"github.com/AleutianAI/AleutianInterview/services/llm"
)

// InterviewerPhase is the interviewer's position in the interview flow.
type InterviewerPhase string

const (
	PhaseInitializing InterviewerPhase = "initializing"
	PhaseIntroducing  InterviewerPhase = "introducing"
	PhaseQuestioning  InterviewerPhase = "questioning"
	PhaseCompleted    InterviewerPhase = "completed"
)

// Interviewer is the question-asking agent. It is not internally
// synchronized; the owning session manager serializes access under the
// registry's per-session mutex.
type Interviewer struct {
	cfg  datatypes.SessionConfig
	llm  llm.LLMClient
	pack *QuestionPack

	phase           InterviewerPhase
	questionBank    []string
	askedCount      int
	currentQuestion string
	coveredTopics   []string
	timeManager     *TimeManager
}

// NewInterviewer builds an interviewer in the initializing phase.
func NewInterviewer(cfg datatypes.SessionConfig, client llm.LLMClient, pack *QuestionPack) *Interviewer {
	iv := &Interviewer{
		cfg:   cfg,
		llm:   client,
		pack:  pack,
		phase: PhaseInitializing,
	}
	if cfg.TimeBased && cfg.InterviewDurationMinutes > 0 {
		iv.timeManager = NewTimeManager(cfg.InterviewDurationMinutes)
	}
	return iv
}

// OnConfigUpdate applies a new config. Idempotent; instantiates a time
// manager when the session switches to time-based mode.
func (iv *Interviewer) OnConfigUpdate(cfg datatypes.SessionConfig) {
	iv.cfg = cfg
	if cfg.TimeBased && cfg.InterviewDurationMinutes > 0 && iv.timeManager == nil {
		iv.timeManager = NewTimeManager(cfg.InterviewDurationMinutes)
	}
}

// Phase returns the current phase.
func (iv *Interviewer) Phase() InterviewerPhase { return iv.phase }

// AskedCount returns how many questions have been asked so far.
func (iv *Interviewer) AskedCount() int { return iv.askedCount }

// CurrentQuestion returns the question awaiting an answer, or "".
func (iv *Interviewer) CurrentQuestion() string { return iv.currentQuestion }

// CoveredTopics returns the ordered set of topics covered so far.
func (iv *Interviewer) CoveredTopics() []string { return iv.coveredTopics }

// TimeManager returns the session's time manager, or nil for count-based
// sessions.
func (iv *Interviewer) TimeManager() *TimeManager { return iv.timeManager }

// Reset returns the interviewer to the initializing phase with a fresh bank.
func (iv *Interviewer) Reset() {
	iv.phase = PhaseInitializing
	iv.questionBank = nil
	iv.askedCount = 0
	iv.currentQuestion = ""
	iv.coveredTopics = nil
	if iv.cfg.TimeBased && iv.cfg.InterviewDurationMinutes > 0 {
		iv.timeManager = NewTimeManager(iv.cfg.InterviewDurationMinutes)
	}
}

// Restore rebuilds in-memory phase state from a persisted record's history.
// The question bank is regenerated lazily if the interview is still open.
func (iv *Interviewer) Restore(history []datatypes.Message, questionsAsked int, completed bool) {
	iv.askedCount = questionsAsked
	if completed {
		iv.phase = PhaseCompleted
		return
	}
	if len(history) == 0 {
		iv.phase = PhaseInitializing
		return
	}
	iv.phase = PhaseQuestioning
	for i := len(history) - 1; i >= 0; i-- {
		m := history[i]
		if m.Agent == datatypes.AgentInterviewer && m.ResponseType == datatypes.ResponseQuestion {
			iv.currentQuestion = m.Content
			break
		}
	}
	if iv.timeManager != nil && !iv.timeManager.Running() {
		iv.timeManager.Start()
	}
}

// Process advances the interview by one turn and returns the interviewer's
// reply. It never returns an error: LLM failures degrade to fallback
// questions or an error-typed response.
func (iv *Interviewer) Process(ctx context.Context, history []datatypes.Message) datatypes.AgentResponse {
	switch iv.phase {
	case PhaseInitializing:
		iv.initQuestionBank(ctx)
		iv.phase = PhaseIntroducing
		fallthrough
	case PhaseIntroducing:
		return iv.introduce()
	case PhaseQuestioning:
		return iv.nextTurn(ctx, history)
	case PhaseCompleted:
		return iv.respond("This interview has already concluded. Start a new session to practice again.",
			datatypes.ResponseStatus, nil)
	default:
		slog.Error("Interviewer in unknown phase", "phase", string(iv.phase))
		return iv.respond("Something went wrong with the interview state.",
			datatypes.ResponseError, nil)
	}
}

// estimatedMinutesPerQuestion sizes the duration mentioned in the
// introduction for count-based sessions.
const estimatedMinutesPerQuestion = 3

// introduce produces the introduction and moves to the questioning phase.
// The introduction asks nothing and counts nothing: the first question, and
// the first askedCount increment, come out of the first questioning turn.
func (iv *Interviewer) introduce() datatypes.AgentResponse {
	if iv.timeManager != nil {
		iv.timeManager.Start()
	}
	iv.phase = PhaseQuestioning

	company := iv.cfg.CompanyName
	if company == "" {
		company = "our company"
	}
	minutes := iv.cfg.TargetQuestionCount * estimatedMinutesPerQuestion
	if iv.cfg.TimeBased && iv.cfg.InterviewDurationMinutes > 0 {
		minutes = iv.cfg.InterviewDurationMinutes
	}
	duration := fmt.Sprintf("around %d minutes", minutes)

	var intro string
	switch iv.cfg.Style {
	case datatypes.StyleCasual:
		intro = fmt.Sprintf("Hey, thanks for making time today! I'll be chatting with you about the %s role at %s for %s. Let's keep this relaxed.",
			iv.cfg.JobRole, company, duration)
	case datatypes.StyleAggressive:
		intro = fmt.Sprintf("Let's not waste time. You're here for the %s position at %s, I have %s of challenging questions prepared, and I expect sharp answers.",
			iv.cfg.JobRole, company, duration)
	case datatypes.StyleTechnical:
		intro = fmt.Sprintf("Welcome. This will be a technical interview for the %s role at %s lasting %s, so expect depth over breadth.",
			iv.cfg.JobRole, company, duration)
	default:
		intro = fmt.Sprintf("Good day, and thank you for joining us. I'll be conducting your interview for the %s position at %s; we should need %s of your time.",
			iv.cfg.JobRole, company, duration)
	}

	return iv.respond(intro, datatypes.ResponseIntroduction, map[string]any{
		"phase":          string(iv.phase),
		"question_count": len(iv.questionBank),
	})
}

// nextTurn runs the next-action decision against the candidate's latest
// answer and applies the resulting state mutations.
func (iv *Interviewer) nextTurn(ctx context.Context, history []datatypes.Message) datatypes.AgentResponse {
	lastAnswer := lastUserContent(history)
	fallback := iv.pack.FallbackQuestion(iv.askedCount)

	var timeCtx *TimeContext
	if iv.timeManager != nil {
		tc := iv.timeManager.Context()
		timeCtx = &tc
	}

	decision := iv.decide(ctx, history, lastAnswer, fallback)
	decision = applyGuardRules(decision, iv.askedCount, timeCtx, fallback)

	for _, topic := range decision.NewlyCoveredTopics {
		topic = strings.TrimSpace(topic)
		if topic == "" || containsFold(iv.coveredTopics, topic) {
			continue
		}
		iv.coveredTopics = append(iv.coveredTopics, topic)
	}

	if decision.ActionType == ActionEnd {
		iv.phase = PhaseCompleted
		meta := map[string]any{
			"phase":         string(iv.phase),
			"justification": decision.Justification,
		}
		if iv.timeManager != nil {
			final := iv.timeManager.Stop()
			meta["elapsed_minutes"] = final.ElapsedMinutes
		}
		closing := fmt.Sprintf("That brings us to the end of the interview. Thank you for your time today; we covered %d questions and I have what I need. You'll receive detailed feedback shortly.",
			iv.askedCount)
		return iv.respond(closing, datatypes.ResponseClosing, meta)
	}

	iv.currentQuestion = decision.NextQuestionText
	iv.askedCount++
	return iv.respond(decision.NextQuestionText, datatypes.ResponseQuestion, map[string]any{
		"phase":          string(iv.phase),
		"action_type":    string(decision.ActionType),
		"justification":  decision.Justification,
		"asked_count":    iv.askedCount,
		"covered_topics": iv.coveredTopics,
	})
}

// decide formats the decision prompt, calls the LLM, and defensively parses
// the result. LLM failure yields the default decision.
func (iv *Interviewer) decide(ctx context.Context, history []datatypes.Message,
	lastAnswer, fallback string) Decision {

	covered := "None"
	if len(iv.coveredTopics) > 0 {
		covered = strings.Join(iv.coveredTopics, ", ")
	}

	timeBlock := ""
	if iv.timeManager != nil {
		tc := iv.timeManager.Context()
		block, err := formatPrompt(timeContextBlock, map[string]any{
			"phase":       string(tc.Phase),
			"progress":    fmt.Sprintf("%.0f", tc.ProgressPercent),
			"total":       tc.TotalMinutes,
			"remaining":   fmt.Sprintf("%.1f", tc.RemainingMinutes),
			"pressure":    string(tc.Pressure),
			"suggestions": strings.Join(tc.SuggestedActions, "; "),
		})
		if err == nil {
			timeBlock = block
		}
	}

	prompt, err := formatPrompt(decisionPrompt, map[string]any{
		"style":          string(iv.cfg.Style),
		"difficulty":     iv.cfg.Difficulty,
		"role":           iv.cfg.JobRole,
		"description":    orEmpty(iv.cfg.JobDescription, "(not provided)"),
		"resume":         orEmpty(iv.cfg.ResumeText, "(not provided)"),
		"covered_topics": covered,
		"time_context":   timeBlock,
		"history":        formatHistory(historyExcludingLastUser(history)),
		"last_question":  orEmpty(iv.currentQuestion, "(none yet)"),
		"last_answer":    orEmpty(lastAnswer, "(no answer)"),
	})
	if err != nil {
		slog.Error("Failed to build decision prompt", "error", err)
		return defaultDecision(fallback)
	}

	raw, err := iv.llm.Generate(ctx, prompt, llm.GenerationParams{})
	if err != nil {
		slog.Error("Interviewer decision LLM call failed", "error", err)
		return defaultDecision(fallback)
	}
	return parseDecision(raw, fallback)
}

// initQuestionBank builds the session's question bank: job-specific
// questions from the LLM when the config is rich enough, backfilled from the
// pack's templates.
func (iv *Interviewer) initQuestionBank(ctx context.Context) {
	var jobSpecific []string
	if iv.cfg.JobRole != "" && iv.cfg.JobDescription != "" && iv.cfg.ResumeText != "" {
		jobSpecific = iv.generateJobQuestions(ctx, iv.cfg.TargetQuestionCount-1)
	}
	iv.questionBank = iv.pack.BuildQuestionBank(iv.cfg, jobSpecific)
	slog.Info("Question bank initialized",
		"total", len(iv.questionBank), "job_specific", len(jobSpecific))
}

// generateJobQuestions asks the LLM for role-tailored questions. Returns nil
// on any failure; callers backfill from templates.
func (iv *Interviewer) generateJobQuestions(ctx context.Context, count int) []string {
	if count <= 0 {
		return nil
	}
	prompt, err := formatPrompt(jobQuestionsPrompt, map[string]any{
		"role":        iv.cfg.JobRole,
		"description": iv.cfg.JobDescription,
		"resume":      iv.cfg.ResumeText,
		"count":       count,
		"style":       string(iv.cfg.Style),
		"difficulty":  iv.cfg.Difficulty,
	})
	if err != nil {
		slog.Error("Failed to build job-questions prompt", "error", err)
		return nil
	}

	raw, err := iv.llm.Generate(ctx, prompt, llm.GenerationParams{})
	if err != nil {
		slog.Warn("Job-specific question generation failed, using templates", "error", err)
		return nil
	}

	questions := parseQuestionList(raw)
	if len(questions) > count {
		questions = questions[:count]
	}
	return questions
}

// parseQuestionList recovers a string list from raw LLM output, tolerating
// fenced code blocks and surrounding prose.
func parseQuestionList(raw string) []string {
	trimmed := strings.TrimSpace(raw)
	var questions []string
	if err := json.Unmarshal([]byte(trimmed), &questions); err == nil {
		return questions
	}
	if extracted, ok := extractFencedJSON(trimmed); ok {
		if err := json.Unmarshal([]byte(extracted), &questions); err == nil {
			return questions
		}
	}
	if start := strings.Index(trimmed, "["); start >= 0 {
		if end := strings.LastIndex(trimmed, "]"); end > start {
			if err := json.Unmarshal([]byte(trimmed[start:end+1]), &questions); err == nil {
				return questions
			}
		}
	}
	slog.Warn("Could not parse job-specific question list", "raw_prefix", prefix(trimmed, 120))
	return nil
}

func (iv *Interviewer) respond(content string, rt datatypes.ResponseType,
	meta map[string]any) datatypes.AgentResponse {
	return datatypes.AgentResponse{
		Role:         datatypes.RoleAssistant,
		Content:      content,
		ResponseType: rt,
		Agent:        datatypes.AgentInterviewer,
		Timestamp:    time.Now().UTC(),
		Metadata:     meta,
	}
}

// =============================================================================
// History helpers
// =============================================================================

// lastUserContent returns the content of the most recent user message.
func lastUserContent(history []datatypes.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == datatypes.RoleUser {
			return history[i].Content
		}
	}
	return ""
}

// historyExcludingLastUser drops the trailing user turn, which is presented
// separately as the candidate's latest answer.
func historyExcludingLastUser(history []datatypes.Message) []datatypes.Message {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == datatypes.RoleUser {
			out := make([]datatypes.Message, 0, len(history)-1)
			out = append(out, history[:i]...)
			out = append(out, history[i+1:]...)
			return out
		}
	}
	return history
}

// formatHistory renders the transcript for prompt inclusion.
func formatHistory(history []datatypes.Message) string {
	if len(history) == 0 {
		return "(no conversation yet)"
	}
	var b strings.Builder
	for _, m := range history {
		speaker := "Candidate"
		if m.Role == datatypes.RoleAssistant {
			speaker = "Interviewer"
			if m.Agent == datatypes.AgentCoach {
				speaker = "Coach"
			}
		} else if m.Role == datatypes.RoleSystem {
			continue
		}
		b.WriteString(speaker)
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func containsFold(list []string, s string) bool {
	for _, item := range list {
		if strings.EqualFold(item, s) {
			return true
		}
	}
	return false
}
