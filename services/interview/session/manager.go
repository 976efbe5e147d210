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
// Package session holds the per-session orchestrator (Manager). A Manager
// owns one interview's conversation state and drives the interviewer and
// coach agents through the message pipeline. All Manager mutations are
// serialized by the registry's per-session mutex; the one exception is the
// background summary task, which writes through atomics so it can run after
// the originating request has returned.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/AleutianAI/AleutianInterview/services/interview/agents"
	"github.com/AleutianAI/AleutianInterview/services/interview/analytics"
	"github.com/AleutianAI/AleutianInterview/services/interview/datatypes"
	"github.com/AleutianAI/AleutianInterview/services/interview/events"
	"github.com/AleutianAI/AleutianInterview/services/llm"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// summaryTimeout bounds the background final-summary task, which makes one
// LLM call plus up to three governed searches.
const summaryTimeout = 5 * time.Minute

// Manager orchestrates one interview session.
type Manager struct {
	sessionID string
	userID    string
	config    datatypes.SessionConfig

	history     []datatypes.Message
	feedbackLog []datatypes.FeedbackEntry
	stats       datatypes.SessionStats
	status      datatypes.SessionStatus
	createdAt   time.Time

	// Written by the background summary task without the session mutex.
	finalSummary      atomic.Pointer[datatypes.Summary]
	summaryGenerating atomic.Bool
	needsSave         atomic.Bool

	resourceCompletedAt atomic.Pointer[time.Time]

	llm       llm.LLMClient
	bus       *events.Bus
	pack      *agents.QuestionPack
	finder    agents.ResourceFinder
	telemetry *analytics.Sink

	// Lazily instantiated on first use.
	interviewer *agents.Interviewer
	coach       *agents.Coach
}

// Deps bundles the collaborators a Manager needs.
type Deps struct {
	LLM    llm.LLMClient
	Bus    *events.Bus
	Pack   *agents.QuestionPack
	Finder agents.ResourceFinder

	// PackSource, when set, supplies the question pack for each new Manager
	// so a reloaded pack override reaches new sessions without a restart.
	// Pack is used when PackSource is nil.
	PackSource func() *agents.QuestionPack

	// Analytics may be nil; the sink is nil-safe.
	Analytics *analytics.Sink
}

// New builds a Manager for a fresh session.
func New(sessionID, userID string, cfg datatypes.SessionConfig, deps Deps) *Manager {
	cfg.Normalize()
	if deps.PackSource != nil {
		deps.Pack = deps.PackSource()
	}
	return &Manager{
		sessionID: sessionID,
		userID:    userID,
		config:    cfg,
		status:    datatypes.SessionActive,
		createdAt: time.Now().UTC(),
		llm:       deps.LLM,
		bus:       deps.Bus,
		pack:      deps.Pack,
		finder:    deps.Finder,
		telemetry: deps.Analytics,
	}
}

// FromRecord restores a Manager from a persisted record. Agents are
// reconstructed lazily; interviewer phase is re-derived from history.
func FromRecord(rec *datatypes.SessionRecord, deps Deps) *Manager {
	m := New(rec.SessionID, rec.UserID, rec.Config, deps)
	m.history = append([]datatypes.Message(nil), rec.History...)
	m.feedbackLog = append([]datatypes.FeedbackEntry(nil), rec.PerTurnFeedback...)
	m.stats = rec.Stats
	m.status = rec.Status
	m.createdAt = rec.CreatedAt
	if rec.FinalSummary != nil {
		s := *rec.FinalSummary
		m.finalSummary.Store(&s)
	}
	m.summaryGenerating.Store(rec.SummaryGenerating)
	if rec.ResourceGenerationCompletedAt != nil {
		ts := *rec.ResourceGenerationCompletedAt
		m.resourceCompletedAt.Store(&ts)
	}
	return m
}

// ToRecord snapshots the Manager into its durable form.
func (m *Manager) ToRecord() *datatypes.SessionRecord {
	rec := &datatypes.SessionRecord{
		SessionID:         m.sessionID,
		UserID:            m.userID,
		Config:            m.config,
		History:           append([]datatypes.Message(nil), m.history...),
		PerTurnFeedback:   append([]datatypes.FeedbackEntry(nil), m.feedbackLog...),
		Stats:             m.stats,
		Status:            m.status,
		CreatedAt:         m.createdAt,
		UpdatedAt:         time.Now().UTC(),
		SummaryGenerating: m.summaryGenerating.Load(),
		NeedsSave:         m.needsSave.Load(),
	}
	if s := m.finalSummary.Load(); s != nil {
		copied := *s
		rec.FinalSummary = &copied
	}
	if ts := m.resourceCompletedAt.Load(); ts != nil {
		copied := *ts
		rec.ResourceGenerationCompletedAt = &copied
	}
	return rec
}

// SessionID returns the session's id.
func (m *Manager) SessionID() string { return m.sessionID }

// UserID returns the owning user id ("anonymous" sessions have "").
func (m *Manager) UserID() string { return m.userID }

// Config returns the session's immutable config.
func (m *Manager) Config() datatypes.SessionConfig { return m.config }

// Status returns the session's lifecycle status.
func (m *Manager) Status() datatypes.SessionStatus { return m.status }

// History returns the conversation history. Callers must not mutate it.
func (m *Manager) History() []datatypes.Message { return m.history }

// PerTurnFeedback returns the coaching log. Callers must not mutate it.
func (m *Manager) PerTurnFeedback() []datatypes.FeedbackEntry {
	if m.feedbackLog == nil {
		return []datatypes.FeedbackEntry{}
	}
	return m.feedbackLog
}

// Stats returns the session counters, with elapsed time filled in.
func (m *Manager) Stats() datatypes.SessionStats {
	s := m.stats
	if s.StartedAt != nil {
		s.ElapsedMinutes = time.Since(*s.StartedAt).Minutes()
	}
	return s
}

// NeedsSave reports whether unsaved mutations exist.
func (m *Manager) NeedsSave() bool { return m.needsSave.Load() }

// MarkSaved clears the dirty flag after a successful store write.
func (m *Manager) MarkSaved() { m.needsSave.Store(false) }

// FinalSummary returns the generated summary, or nil.
func (m *Manager) FinalSummary() *datatypes.Summary { return m.finalSummary.Load() }

// SummaryStatus reports the client-visible summary pipeline state.
func (m *Manager) SummaryStatus() datatypes.SummaryStatus {
	if m.summaryGenerating.Load() {
		return datatypes.SummaryGenerating
	}
	if s := m.finalSummary.Load(); s != nil {
		if s.Error != "" {
			return datatypes.SummaryError
		}
		return datatypes.SummaryCompleted
	}
	// No summary and none generating: either the interview has not ended or
	// the task aborted with the process. Both surface as error to pollers.
	if m.status == datatypes.SessionCompleted {
		return datatypes.SummaryError
	}
	return datatypes.SummaryGenerating
}

// ResourceCompletedAt returns when resource generation finished, or nil.
func (m *Manager) ResourceCompletedAt() *time.Time { return m.resourceCompletedAt.Load() }

// TimeRemaining returns remaining interview minutes for time-based sessions.
func (m *Manager) TimeRemaining() (float64, bool) {
	if m.interviewer == nil || m.interviewer.TimeManager() == nil {
		return 0, false
	}
	return m.interviewer.TimeManager().Context().RemainingMinutes, true
}

// ensureAgents lazily instantiates the interviewer and coach, restoring the
// interviewer's phase from history when the Manager came from a record.
func (m *Manager) ensureAgents() {
	if m.interviewer == nil {
		m.interviewer = agents.NewInterviewer(m.config, m.llm, m.pack)
		if len(m.history) > 0 {
			m.interviewer.Restore(m.history, m.stats.QuestionsAsked,
				m.status == datatypes.SessionCompleted)
		}
		m.publish(events.AgentLoad, map[string]any{"agent": "interviewer"})
	}
	if m.coach == nil {
		m.coach = agents.NewCoach(m.config, m.llm, m.finder)
		m.publish(events.AgentLoad, map[string]any{"agent": "coach"})
	}
}

// StartInterview resets the session and produces the introduction.
func (m *Manager) StartInterview(ctx context.Context) datatypes.AgentResponse {
	m.ResetSession()
	m.ensureAgents()
	m.publish(events.SessionStart, nil)

	now := time.Now().UTC()
	m.stats.StartedAt = &now

	resp := m.interviewer.Process(ctx, m.history)
	m.appendResponse(resp)
	m.stats.APICallCount++
	m.needsSave.Store(true)
	return resp
}

// ProcessMessage runs one full turn: append the user message, produce the
// interviewer's reply, then attach per-turn coach feedback. Coach failures
// never propagate.
func (m *Manager) ProcessMessage(ctx context.Context, text string) datatypes.AgentResponse {
	m.ensureAgents()
	turnStarted := time.Now()

	// The coach evaluates the answer against the most recent interviewer
	// message, which for the first turn is the introduction.
	askedQuestion := lastInterviewerContent(m.history)

	m.history = append(m.history, datatypes.Message{
		Role:      datatypes.RoleUser,
		Content:   text,
		Timestamp: time.Now().UTC(),
	})
	m.stats.MessagesProcessed++
	m.publish(events.UserMessage, map[string]any{"length": len(text)})

	resp := m.interviewer.Process(ctx, m.history)
	m.appendResponse(resp)
	m.stats.APICallCount++
	m.stats.QuestionsAsked = m.interviewer.AskedCount()

	if askedQuestion != "" {
		justification := ""
		if resp.Metadata != nil {
			if j, ok := resp.Metadata["justification"].(string); ok {
				justification = j
			}
		}
		feedback := m.coach.Evaluate(ctx, askedQuestion, text, justification, m.history)
		m.feedbackLog = append(m.feedbackLog, datatypes.FeedbackEntry{
			Question: datatypes.Truncate(askedQuestion, datatypes.FeedbackTruncateLen),
			Answer:   datatypes.Truncate(text, datatypes.FeedbackTruncateLen),
			Feedback: feedback,
		})
		m.stats.APICallCount++
	}

	if resp.ResponseType == datatypes.ResponseClosing {
		m.status = datatypes.SessionCompleted
	}
	m.needsSave.Store(true)
	m.telemetry.RecordTurn(m.sessionID, string(m.interviewer.Phase()),
		m.stats.QuestionsAsked, time.Since(turnStarted))
	return resp
}

// EndInterview finishes the session and schedules the background summary
// task. The response never carries the summary itself; clients must poll
// the status endpoint.
func (m *Manager) EndInterview() datatypes.EndResponse {
	m.ensureAgents()
	m.status = datatypes.SessionCompleted
	m.publish(events.SessionEnd, map[string]any{
		"questions_asked": m.stats.QuestionsAsked,
	})

	if m.summaryGenerating.CompareAndSwap(false, true) {
		history := append([]datatypes.Message(nil), m.history...)
		feedback := append([]datatypes.FeedbackEntry(nil), m.feedbackLog...)
		go m.finalSummaryBackground(history, feedback)
	} else {
		slog.Info("Summary generation already in flight", "session_id", m.sessionID)
	}
	m.needsSave.Store(true)

	return datatypes.EndResponse{
		Results:            map[string]any{},
		PerTurnFeedback:    m.PerTurnFeedback(),
		CoachingSummary:    nil,
		FinalSummaryStatus: datatypes.SummaryGenerating,
		HasImmediateData:   true,
	}
}

// finalSummaryBackground is the async summary task body. It owns no session
// mutex; all shared writes go through atomics. The finalization step always
// clears the generating flag.
func (m *Manager) finalSummaryBackground(history []datatypes.Message,
	feedback []datatypes.FeedbackEntry) {

	ctx, cancel := context.WithTimeout(context.Background(), summaryTimeout)
	defer cancel()

	ctx, span := otel.Tracer("interview.session").Start(ctx, "session.final_summary",
		trace.WithAttributes(attribute.String("session_id", m.sessionID)))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Summary generation panicked",
				"session_id", m.sessionID, "panic", r)
			m.finalSummary.Store(&datatypes.Summary{
				Error: fmt.Sprintf("summary generation failed: %v", r),
			})
		}
		m.summaryGenerating.Store(false)
		m.needsSave.Store(true)
	}()

	started := time.Now()
	slog.Info("Generating final summary", "session_id", m.sessionID)

	summary := m.coach.FinalSummary(ctx, history, feedback)
	m.finalSummary.Store(&summary)

	now := time.Now().UTC()
	m.resourceCompletedAt.Store(&now)
	m.telemetry.RecordSummary(m.sessionID, time.Since(started),
		len(summary.RecommendedResources), summary.Error != "")
	slog.Info("Final summary complete",
		"session_id", m.sessionID,
		"duration_seconds", time.Since(started).Seconds(),
		"resources", len(summary.RecommendedResources))
}

// ResetSession clears all conversation state and re-arms the agents.
func (m *Manager) ResetSession() {
	m.history = nil
	m.feedbackLog = nil
	m.finalSummary.Store(nil)
	m.summaryGenerating.Store(false)
	m.resourceCompletedAt.Store(nil)
	m.stats = datatypes.SessionStats{}
	m.status = datatypes.SessionActive
	if m.interviewer != nil {
		m.interviewer.Reset()
	}
	m.publish(events.SessionReset, nil)
	m.needsSave.Store(true)
}

func (m *Manager) appendResponse(resp datatypes.AgentResponse) {
	m.history = append(m.history, datatypes.Message{
		Role:         resp.Role,
		Content:      resp.Content,
		Timestamp:    resp.Timestamp,
		Agent:        resp.Agent,
		ResponseType: resp.ResponseType,
		Metadata:     resp.Metadata,
	})
	m.publish(events.AssistantResponse, map[string]any{
		"response_type": string(resp.ResponseType),
		"agent":         string(resp.Agent),
	})
}

// lastInterviewerContent returns the content of the most recent interviewer
// message in history, or "".
func lastInterviewerContent(history []datatypes.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		msg := history[i]
		if msg.Role == datatypes.RoleAssistant && msg.Agent == datatypes.AgentInterviewer {
			return msg.Content
		}
	}
	return ""
}

func (m *Manager) publish(t events.EventType, data map[string]any) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(events.Event{Type: t, SessionID: m.sessionID, Data: data})
}

// FormatTranscript renders the history for export endpoints.
func (m *Manager) FormatTranscript() string {
	var b strings.Builder
	for _, msg := range m.history {
		speaker := "Candidate"
		if msg.Role == datatypes.RoleAssistant {
			speaker = "Interviewer"
		}
		fmt.Fprintf(&b, "[%s] %s: %s\n", msg.Timestamp.Format(time.RFC3339), speaker, msg.Content)
	}
	return b.String()
}
