// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianInterview/services/interview/datatypes"
	"github.com/google/uuid"
)

// MemoryStore is the in-memory gateway used for tests and infrastructure-free
// local runs. Records are deep-copied on every read and write so callers
// never share mutable state with the store.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*datatypes.SessionRecord
	tasks    map[string]*datatypes.SpeechTaskRecord
}

// NewMemoryStore returns an empty in-memory gateway.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*datatypes.SessionRecord),
		tasks:    make(map[string]*datatypes.SpeechTaskRecord),
	}
}

func copySession(rec *datatypes.SessionRecord) *datatypes.SessionRecord {
	raw, err := json.Marshal(rec)
	if err != nil {
		// Records are plain data; marshal cannot fail for well-formed input.
		return rec
	}
	var out datatypes.SessionRecord
	if err := json.Unmarshal(raw, &out); err != nil {
		return rec
	}
	return &out
}

func copyTask(rec *datatypes.SpeechTaskRecord) *datatypes.SpeechTaskRecord {
	raw, err := json.Marshal(rec)
	if err != nil {
		return rec
	}
	var out datatypes.SpeechTaskRecord
	if err := json.Unmarshal(raw, &out); err != nil {
		return rec
	}
	return &out
}

// CreateSession implements Gateway.
func (m *MemoryStore) CreateSession(_ context.Context, userID string,
	cfg *datatypes.SessionConfig) (string, error) {

	id := uuid.New().String()
	now := time.Now().UTC()

	rec := &datatypes.SessionRecord{
		SessionID: id,
		UserID:    userID,
		Status:    datatypes.SessionActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if cfg != nil {
		rec.Config = *cfg
	}
	rec.Config.Normalize()

	m.mu.Lock()
	m.sessions[id] = rec
	m.mu.Unlock()
	return id, nil
}

// LoadSession implements Gateway.
func (m *MemoryStore) LoadSession(_ context.Context, id string) (*datatypes.SessionRecord, error) {
	m.mu.RLock()
	rec, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return copySession(rec), nil
}

// SaveSession implements Gateway.
func (m *MemoryStore) SaveSession(_ context.Context, id string, rec *datatypes.SessionRecord) error {
	stored := copySession(rec)
	stored.SessionID = id
	stored.UpdatedAt = time.Now().UTC()

	m.mu.Lock()
	m.sessions[id] = stored
	m.mu.Unlock()
	return nil
}

// ListUserSessions implements Gateway.
func (m *MemoryStore) ListUserSessions(_ context.Context, userID string,
	limit int) ([]*datatypes.SessionRecord, error) {

	m.mu.RLock()
	var out []*datatypes.SessionRecord
	for _, rec := range m.sessions {
		if rec.UserID == userID {
			out = append(out, copySession(rec))
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CreateSpeechTask implements Gateway.
func (m *MemoryStore) CreateSpeechTask(_ context.Context, sessionID string,
	taskType datatypes.SpeechTaskType) (string, error) {

	if sessionID == "" {
		sessionID = datatypes.AnonymousSessionID
	}
	id := uuid.New().String()
	now := time.Now().UTC()

	m.mu.Lock()
	m.tasks[id] = &datatypes.SpeechTaskRecord{
		TaskID:    id,
		SessionID: sessionID,
		TaskType:  taskType,
		Status:    datatypes.SpeechTaskProcessing,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.mu.Unlock()
	return id, nil
}

// UpdateSpeechTask implements Gateway.
func (m *MemoryStore) UpdateSpeechTask(_ context.Context, taskID string,
	status datatypes.SpeechTaskStatus, progress, result map[string]any, errMsg string) error {

	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.tasks[taskID]
	if !ok {
		return ErrTaskNotFound
	}
	rec.Status = status
	if progress != nil {
		rec.Progress = progress
	}
	if result != nil {
		rec.Result = result
	}
	if errMsg != "" {
		rec.ErrorMessage = errMsg
	}
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

// GetSpeechTask implements Gateway.
func (m *MemoryStore) GetSpeechTask(_ context.Context, taskID string) (*datatypes.SpeechTaskRecord, error) {
	m.mu.RLock()
	rec, ok := m.tasks[taskID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrTaskNotFound
	}
	return copyTask(rec), nil
}

// CleanupSpeechTasks implements Gateway.
func (m *MemoryStore) CleanupSpeechTasks(_ context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)

	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, rec := range m.tasks {
		if rec.Terminal() && rec.UpdatedAt.Before(cutoff) {
			delete(m.tasks, id)
			removed++
		}
	}
	return removed, nil
}

// Close implements Gateway.
func (m *MemoryStore) Close() error { return nil }
