// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers implements the HTTP and websocket handlers for the
// interview service. Handlers are gin.HandlerFunc factories taking their
// collaborators as arguments; the routes package wires them to paths.
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/AleutianAI/AleutianInterview/pkg/extensions"
	"github.com/AleutianAI/AleutianInterview/pkg/validation"
	"github.com/AleutianAI/AleutianInterview/services/interview/middleware"
	"github.com/AleutianAI/AleutianInterview/services/interview/ratelimit"
	"github.com/AleutianAI/AleutianInterview/services/interview/store"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// maxPollIntervalMS caps the summary polling back-off schedule.
const maxPollIntervalMS = 10000

// requireSessionID reads and validates the X-Session-ID header, answering
// 400 itself when the header is missing or malformed.
func requireSessionID(c *gin.Context) (string, bool) {
	id, err := validation.SanitizeSessionID(c.GetHeader(middleware.SessionHeader))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid X-Session-ID header"})
		return "", false
	}
	return id, true
}

// abortSessionError translates registry/store errors into HTTP responses.
func abortSessionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	case errors.Is(err, ratelimit.ErrCapacityExhausted):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":      "internal server error",
			"request_id": middleware.RequestID(c),
		})
	}
}

// abortBindError answers 400 with a readable message for binding failures.
// Validation failures name the offending field and tag instead of dumping
// the validator's internal error text.
func abortBindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid field " + fe.Field() + ": failed " + fe.Tag() + " validation",
		})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
}

// suggestedPollIntervalMS computes the exponential back-off hint for summary
// polling: 1s, 2s, 4s, 8s, then a flat 10s.
func suggestedPollIntervalMS(pollCount int) int {
	if pollCount < 1 {
		pollCount = 1
	}
	shift := pollCount - 1
	if shift > 4 {
		shift = 4
	}
	interval := 1000 << shift
	if interval > maxPollIntervalMS {
		interval = maxPollIntervalMS
	}
	return interval
}

// audit emits one event through the logger, filling the timestamp and never
// failing the request on logger errors.
func audit(c *gin.Context, logger extensions.AuditLogger, eventType, action, resourceType, resourceID, outcome string) {
	if logger == nil {
		return
	}
	_ = logger.Log(c.Request.Context(), extensions.AuditEvent{
		EventType:    eventType,
		Timestamp:    time.Now().UTC(),
		UserID:       middleware.UserID(c),
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Outcome:      outcome,
	})
}
