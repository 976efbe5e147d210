// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes defines the shared data model for the interview service:
// session records, conversation messages, coaching artifacts, and the
// request/response DTOs used by the HTTP layer.
//
// All enums serialize by their string values; all timestamps are UTC.
package datatypes

import "time"

// =============================================================================
// Enums
// =============================================================================

// InterviewStyle selects the interviewer persona for a session.
type InterviewStyle string

const (
	StyleFormal     InterviewStyle = "formal"
	StyleCasual     InterviewStyle = "casual"
	StyleAggressive InterviewStyle = "aggressive"
	StyleTechnical  InterviewStyle = "technical"
)

// SessionStatus is the lifecycle state of a durable session record.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
)

// Role identifies the speaker of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// AgentTag identifies which agent produced an assistant message.
type AgentTag string

const (
	AgentInterviewer AgentTag = "interviewer"
	AgentCoach       AgentTag = "coach"
)

// ResponseType tags an assistant reply with its place in the interview flow.
type ResponseType string

const (
	ResponseIntroduction ResponseType = "introduction"
	ResponseQuestion     ResponseType = "question"
	ResponseClosing      ResponseType = "closing"
	ResponseStatus       ResponseType = "status"
	ResponseError        ResponseType = "error"
)

// SummaryStatus is the client-visible state of the final summary pipeline.
type SummaryStatus string

const (
	SummaryGenerating SummaryStatus = "generating"
	SummaryCompleted  SummaryStatus = "completed"
	SummaryError      SummaryStatus = "error"
)

// =============================================================================
// Session Data Model
// =============================================================================

// SessionConfig holds the immutable per-session interview parameters.
// It is set at creation time and never mutated afterwards.
type SessionConfig struct {
	JobRole                  string         `json:"job_role"`
	JobDescription           string         `json:"job_description,omitempty"`
	ResumeText               string         `json:"resume_text,omitempty"`
	Style                    InterviewStyle `json:"style"`
	Difficulty               string         `json:"difficulty"`
	TargetQuestionCount      int            `json:"target_question_count"`
	CompanyName              string         `json:"company_name,omitempty"`
	InterviewDurationMinutes int            `json:"interview_duration_minutes,omitempty"`
	TimeBased                bool           `json:"use_time_based_interview"`
}

// DefaultTargetQuestionCount is applied when a session is created without an
// explicit target.
const DefaultTargetQuestionCount = 15

// Normalize fills zero-valued fields with defaults.
func (c *SessionConfig) Normalize() {
	if c.Style == "" {
		c.Style = StyleFormal
	}
	if c.Difficulty == "" {
		c.Difficulty = "medium"
	}
	if c.TargetQuestionCount <= 0 {
		c.TargetQuestionCount = DefaultTargetQuestionCount
	}
}

// Message is one turn of the conversation history.
type Message struct {
	Role         Role           `json:"role"`
	Content      string         `json:"content"`
	Timestamp    time.Time      `json:"timestamp"`
	Agent        AgentTag       `json:"agent,omitempty"`
	ResponseType ResponseType   `json:"response_type,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// FeedbackEntry is one per-turn coaching note. Question and answer are
// truncated to 200 characters before entering the log.
type FeedbackEntry struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Feedback string `json:"feedback"`
}

// FeedbackTruncateLen bounds the question/answer excerpts stored in a
// FeedbackEntry.
const FeedbackTruncateLen = 200

// Truncate shortens s to at most FeedbackTruncateLen runes.
func Truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

// Resource is a single recommended learning material attached to a final
// summary.
type Resource struct {
	Title          string         `json:"title"`
	URL            string         `json:"url"`
	Description    string         `json:"description"`
	ResourceType   string         `json:"resource_type"`
	Reasoning      string         `json:"reasoning"`
	RelevanceScore float64        `json:"relevance_score,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Summary is the post-interview coaching artifact. Error is populated only
// when generation failed; a summary with a non-empty Error has placeholder
// content in the other fields.
type Summary struct {
	PatternsTendencies    string     `json:"patterns_tendencies"`
	Strengths             string     `json:"strengths"`
	Weaknesses            string     `json:"weaknesses"`
	ImprovementFocusAreas string     `json:"improvement_focus_areas"`
	RecommendedResources  []Resource `json:"recommended_resources"`
	Error                 string     `json:"error,omitempty"`
}

// SessionStats carries the per-session counters surfaced by /interview/stats.
type SessionStats struct {
	APICallCount      int        `json:"api_call_count"`
	MessagesProcessed int        `json:"messages_processed"`
	QuestionsAsked    int        `json:"questions_asked"`
	StartedAt         *time.Time `json:"started_at,omitempty"`
	ElapsedMinutes    float64    `json:"elapsed_minutes,omitempty"`
}

// SessionRecord is the durable unit persisted through the store gateway.
// Writes are whole-record replace; the per-session mutex in the registry
// prevents concurrent writers for the same id.
type SessionRecord struct {
	SessionID       string          `json:"session_id"`
	UserID          string          `json:"user_id,omitempty"`
	Config          SessionConfig   `json:"config"`
	History         []Message       `json:"history"`
	PerTurnFeedback []FeedbackEntry `json:"per_turn_feedback"`
	FinalSummary    *Summary        `json:"final_summary,omitempty"`
	Stats           SessionStats    `json:"stats"`
	Status          SessionStatus   `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`

	// SummaryGenerating is true only while a background summary task is in
	// flight; the task's finalization step clears it on every outcome.
	SummaryGenerating bool `json:"summary_generating"`

	// NeedsSave is set after any state mutation and cleared only after a
	// successful write through the store gateway.
	NeedsSave bool `json:"needs_save"`

	// ResourceGenerationCompletedAt is stamped when the summary task finishes
	// successfully, so pollers can surface the completion time.
	ResourceGenerationCompletedAt *time.Time `json:"resource_generation_completed_at,omitempty"`
}

// AgentResponse is the reply produced by one agent invocation and returned to
// the HTTP client.
type AgentResponse struct {
	Role         Role           `json:"role"`
	Content      string         `json:"content"`
	ResponseType ResponseType   `json:"response_type"`
	Agent        AgentTag       `json:"agent"`
	Timestamp    time.Time      `json:"timestamp"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}
