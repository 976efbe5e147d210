// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store defines the gateway through which session records and speech
// task records are persisted, plus the concrete backends selected by
// SESSION_STORE_BACKEND: weaviate, badger, gcs, or memory.
//
// Writes are idempotent at the record level (whole-record replace). Reads are
// read-your-write consistent for a single caller. Failures surface as errors;
// the caller decides recovery policy.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/AleutianAI/AleutianInterview/services/interview/datatypes"
)

// ErrSessionNotFound is returned when no record exists for a session id.
var ErrSessionNotFound = errors.New("session not found")

// ErrTaskNotFound is returned when no record exists for a speech task id.
var ErrTaskNotFound = errors.New("speech task not found")

// Gateway is the persistence contract shared by all backends.
//
// Implementations must be safe for concurrent use. The registry's per-session
// mutex already serializes writers for a given session id, so backends do not
// need record-level locking beyond their own internal consistency.
type Gateway interface {
	// CreateSession persists a fresh active record and returns its id.
	// userID may be empty for anonymous sessions.
	CreateSession(ctx context.Context, userID string, cfg *datatypes.SessionConfig) (string, error)

	// LoadSession returns the record for id or ErrSessionNotFound.
	LoadSession(ctx context.Context, id string) (*datatypes.SessionRecord, error)

	// SaveSession replaces the whole record for id, stamping UpdatedAt.
	SaveSession(ctx context.Context, id string, rec *datatypes.SessionRecord) error

	// ListUserSessions returns the owner's most recent sessions, newest
	// first, up to limit.
	ListUserSessions(ctx context.Context, userID string, limit int) ([]*datatypes.SessionRecord, error)

	// CreateSpeechTask persists a new processing task and returns its id.
	CreateSpeechTask(ctx context.Context, sessionID string, taskType datatypes.SpeechTaskType) (string, error)

	// UpdateSpeechTask merges the given fields into the task record.
	// Nil progress/result maps leave the stored values untouched.
	UpdateSpeechTask(ctx context.Context, taskID string, status datatypes.SpeechTaskStatus,
		progress, result map[string]any, errMsg string) error

	// GetSpeechTask returns the task record or ErrTaskNotFound.
	GetSpeechTask(ctx context.Context, taskID string) (*datatypes.SpeechTaskRecord, error)

	// CleanupSpeechTasks deletes terminal tasks older than the cutoff and
	// returns the number removed.
	CleanupSpeechTasks(ctx context.Context, olderThan time.Duration) (int, error)

	// Close releases backend resources.
	Close() error
}

// NewFromEnv selects and constructs a backend from SESSION_STORE_BACKEND.
// Unknown or empty values fall back to the in-memory store, which keeps local
// development working with no infrastructure.
func NewFromEnv(ctx context.Context) (Gateway, error) {
	backend := os.Getenv("SESSION_STORE_BACKEND")
	switch backend {
	case "weaviate":
		return NewWeaviateStore(os.Getenv("WEAVIATE_SERVICE_URL"))
	case "badger":
		path := os.Getenv("BADGER_DB_PATH")
		if path == "" {
			path = "/var/lib/aleutian/interview"
			slog.Warn("BADGER_DB_PATH not set, using default", "path", path)
		}
		return NewBadgerStore(path)
	case "gcs":
		bucket := os.Getenv("GCS_SESSION_BUCKET")
		if bucket == "" {
			return nil, fmt.Errorf("SESSION_STORE_BACKEND=gcs requires GCS_SESSION_BUCKET")
		}
		return NewGCSStore(ctx, bucket)
	case "memory", "":
		if backend == "" {
			slog.Warn("SESSION_STORE_BACKEND not set, defaulting to memory")
		}
		return NewMemoryStore(), nil
	default:
		slog.Warn("unknown SESSION_STORE_BACKEND, defaulting to memory", "backend", backend)
		return NewMemoryStore(), nil
	}
}
