// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package middleware

import (
	"log/slog"

	"github.com/AleutianAI/AleutianInterview/services/interview/registry"
	"github.com/gin-gonic/gin"
)

// sessionIDKey is the context key under which handlers record the session a
// request touched, so the auto-save pass knows what to flush.
const sessionIDKey = "aleutian_session_id"

// SessionHeader is the header session-scoped endpoints read their id from.
const SessionHeader = "X-Session-ID"

// MarkSessionTouched records the session id a handler mutated. AutoSave
// flushes it after the response is written.
func MarkSessionTouched(c *gin.Context, sessionID string) {
	c.Set(sessionIDKey, sessionID)
}

// TouchedSession returns the session id recorded for this request, falling
// back to the X-Session-ID header.
func TouchedSession(c *gin.Context) string {
	if id := c.GetString(sessionIDKey); id != "" {
		return id
	}
	return c.GetHeader(SessionHeader)
}

// AutoSave flushes the touched session's dirty state after each request.
// Mutating handlers already mark state dirty; this pass covers late
// mutations (background summary completion observed during a poll) without
// every handler needing its own save call. Save failures only log; the
// response has already been sent.
func AutoSave(reg *registry.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		id := TouchedSession(c)
		if id == "" {
			return
		}
		if err := reg.SaveIfDirty(c.Request.Context(), id); err != nil {
			slog.Warn("Post-request auto-save failed",
				"session_id", id, "error", err)
		}
	}
}
