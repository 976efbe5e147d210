// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import (
	"context"
	"time"
)

// Audit event types emitted by the interview service.
const (
	AuditSessionCreated = "session.created"
	AuditSessionEnded   = "session.ended"
	AuditSessionCleanup = "session.cleanup"
	AuditResumeUploaded = "resume.uploaded"
)

// AuditEvent is one security-relevant occurrence.
//
// Example:
//
//	event := AuditEvent{
//	    EventType:    AuditSessionCreated,
//	    Timestamp:    time.Now().UTC(),
//	    UserID:       authInfo.UserID,
//	    Action:       "create",
//	    ResourceType: "session",
//	    ResourceID:   sessionID,
//	    Outcome:      "success",
//	}
type AuditEvent struct {
	// EventType categorizes the event: "category.action".
	EventType string

	// Timestamp is when the event occurred, in UTC. Implementations fill a
	// zero value with time.Now().UTC().
	Timestamp time.Time

	// UserID identifies who performed the action; "system" for automated
	// actions, AnonymousUserID for guests.
	UserID string

	// Action is the operation attempted: "create", "end", "upload".
	Action string

	// ResourceType is the category involved: "session", "resume".
	ResourceType string

	// ResourceID is the specific instance, when one exists.
	ResourceID string

	// Outcome is "success", "failure", "blocked", or "error".
	Outcome string

	// Metadata holds event-specific details ("error", "ip_address",
	// "duration_ms", ...).
	Metadata map[string]any
}

// AuditFilter selects events for Query. Zero-valued fields are ignored;
// populated fields combine with AND.
type AuditFilter struct {
	EventTypes []string
	UserID     string

	// StartTime / EndTime bound the timestamp range (inclusive); zero means
	// unbounded on that side.
	StartTime time.Time
	EndTime   time.Time

	// Limit caps the result count; 0 means implementation default.
	Limit int
}

// AuditLogger records and retrieves audit events.
//
// Implementations must be safe for concurrent use and should not block the
// request path; buffer internally and flush on Flush or shutdown.
type AuditLogger interface {
	// Log records one event. Implementations should not drop events
	// silently; return an error if the event cannot be durably queued.
	Log(ctx context.Context, event AuditEvent) error

	// Query returns matching events, newest first.
	Query(ctx context.Context, filter AuditFilter) ([]AuditEvent, error)

	// Flush forces buffered events to durable storage.
	Flush(ctx context.Context) error
}

// NopAuditLogger discards everything. The default for local deployments
// where no compliance trail is needed.
type NopAuditLogger struct{}

// Log discards the event.
func (l *NopAuditLogger) Log(_ context.Context, _ AuditEvent) error { return nil }

// Query returns no events.
func (l *NopAuditLogger) Query(_ context.Context, _ AuditFilter) ([]AuditEvent, error) {
	return nil, nil
}

// Flush is a no-op.
func (l *NopAuditLogger) Flush(_ context.Context) error { return nil }

var _ AuditLogger = (*NopAuditLogger)(nil)
