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

import "time"

// SpeechTaskType classifies an asynchronous speech workflow.
type SpeechTaskType string

const (
	SpeechTaskSTTBatch  SpeechTaskType = "stt_batch"
	SpeechTaskSTTStream SpeechTaskType = "stt_stream"
	SpeechTaskTTS       SpeechTaskType = "tts"
)

// SpeechTaskStatus is the lifecycle state of a speech task record.
type SpeechTaskStatus string

const (
	SpeechTaskProcessing SpeechTaskStatus = "processing"
	SpeechTaskCompleted  SpeechTaskStatus = "completed"
	SpeechTaskError      SpeechTaskStatus = "error"
)

// AnonymousSessionID is recorded on speech tasks submitted without a session.
const AnonymousSessionID = "anonymous"

// SpeechTaskRecord is the durable record tracking one async speech workflow.
// Background workers update it through completed or error; clients poll it
// by task id.
type SpeechTaskRecord struct {
	TaskID       string           `json:"task_id"`
	SessionID    string           `json:"session_id"`
	TaskType     SpeechTaskType   `json:"task_type"`
	Status       SpeechTaskStatus `json:"status"`
	Progress     map[string]any   `json:"progress,omitempty"`
	Result       map[string]any   `json:"result,omitempty"`
	ErrorMessage string           `json:"error,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// Terminal reports whether the task has reached a final state.
func (r *SpeechTaskRecord) Terminal() bool {
	return r.Status == SpeechTaskCompleted || r.Status == SpeechTaskError
}
