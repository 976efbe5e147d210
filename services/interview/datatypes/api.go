// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

// CreateSessionRequest is the body of POST /interview/session.
type CreateSessionRequest struct {
	JobRole                  string `json:"job_role" binding:"required"`
	JobDescription           string `json:"job_description"`
	ResumeText               string `json:"resume_text"`
	Style                    string `json:"style" binding:"omitempty,oneof=formal casual aggressive technical"`
	Difficulty               string `json:"difficulty"`
	TargetQuestionCount      int    `json:"target_question_count" binding:"omitempty,gte=1"`
	CompanyName              string `json:"company_name"`
	InterviewDurationMinutes int    `json:"interview_duration_minutes" binding:"omitempty,gte=1"`
	UseTimeBasedInterview    bool   `json:"use_time_based_interview"`
}

// ToConfig converts the request body into a normalized SessionConfig.
func (r *CreateSessionRequest) ToConfig() SessionConfig {
	cfg := SessionConfig{
		JobRole:                  r.JobRole,
		JobDescription:           r.JobDescription,
		ResumeText:               r.ResumeText,
		Style:                    InterviewStyle(r.Style),
		Difficulty:               r.Difficulty,
		TargetQuestionCount:      r.TargetQuestionCount,
		CompanyName:              r.CompanyName,
		InterviewDurationMinutes: r.InterviewDurationMinutes,
		TimeBased:                r.UseTimeBasedInterview,
	}
	cfg.Normalize()
	return cfg
}

// CreateSessionResponse is the success body of POST /interview/session.
type CreateSessionResponse struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// MessageRequest is the body of POST /interview/message.
type MessageRequest struct {
	Message string `json:"message" binding:"required"`
}

// EndResponse is the body of POST /interview/end. Results is always an empty
// map at end time; the summary is retrieved exclusively via polling.
type EndResponse struct {
	Results            map[string]any  `json:"results"`
	PerTurnFeedback    []FeedbackEntry `json:"per_turn_feedback"`
	CoachingSummary    *Summary        `json:"coaching_summary"`
	FinalSummaryStatus SummaryStatus   `json:"final_summary_status"`
	HasImmediateData   bool            `json:"has_immediate_data"`
}

// SummaryStatusResponse is the body of GET /interview/final-summary-status.
type SummaryStatusResponse struct {
	Status                  SummaryStatus `json:"status"`
	Results                 *Summary      `json:"results,omitempty"`
	Error                   string        `json:"error,omitempty"`
	SuggestedPollIntervalMS int           `json:"suggested_poll_interval_ms"`
	GenerationTimeEstimate  string        `json:"generation_time_estimate,omitempty"`
	ResourceCompletionTS    string        `json:"resource_completion_timestamp,omitempty"`
}

// TTSRequest is the body of POST /api/text-to-speech.
type TTSRequest struct {
	Text  string  `json:"text" binding:"required"`
	Voice string  `json:"voice"`
	Speed float64 `json:"speed" binding:"omitempty,gte=0.5,lte=2.0"`
}

// StreamFrame is a server-to-client frame on the streaming STT websocket.
type StreamFrame struct {
	Type      string  `json:"type"`
	Text      string  `json:"text,omitempty"`
	IsFinal   *bool   `json:"is_final,omitempty"`
	Error     string  `json:"error,omitempty"`
	Timestamp float64 `json:"timestamp"`
}

// Stream frame types relayed to websocket clients.
const (
	FrameConnecting    = "connecting"
	FrameConnected     = "connected"
	FrameTranscript    = "transcript"
	FrameSpeechStarted = "speech_started"
	FrameUtteranceEnd  = "utterance_end"
	FrameMetadata      = "metadata"
	FrameError         = "error"
	FrameDisconnected  = "disconnected"
)
