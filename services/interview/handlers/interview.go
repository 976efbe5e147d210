// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/AleutianAI/AleutianInterview/pkg/extensions"
	"github.com/AleutianAI/AleutianInterview/services/interview/datatypes"
	"github.com/AleutianAI/AleutianInterview/services/interview/middleware"
	"github.com/AleutianAI/AleutianInterview/services/interview/registry"
	"github.com/AleutianAI/AleutianInterview/services/interview/session"
	"github.com/AleutianAI/AleutianInterview/services/interview/store"
	"github.com/gin-gonic/gin"
)

// maxSessionListing bounds GET /interview/sessions.
const maxSessionListing = 50

// CreateSession handles POST /interview/session.
func CreateSession(reg *registry.Registry, auditLog extensions.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.CreateSessionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abortBindError(c, err)
			return
		}

		userID := ""
		if info := middleware.GetAuthInfo(c); !info.Anonymous() {
			userID = info.UserID
		}

		id, err := reg.CreateSession(c.Request.Context(), userID, req.ToConfig())
		if err != nil {
			audit(c, auditLog, extensions.AuditSessionCreated, "create", "session", "", "error")
			abortSessionError(c, err)
			return
		}

		audit(c, auditLog, extensions.AuditSessionCreated, "create", "session", id, "success")
		middleware.MarkSessionTouched(c, id)
		c.JSON(http.StatusOK, datatypes.CreateSessionResponse{
			SessionID: id,
			Message:   "Interview session created. Call /interview/start to begin.",
		})
	}
}

// StartInterview handles POST /interview/start.
func StartInterview(reg *registry.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := requireSessionID(c)
		if !ok {
			return
		}

		var resp datatypes.AgentResponse
		err := reg.WithSession(c.Request.Context(), id, func(m *session.Manager) error {
			resp = m.StartInterview(c.Request.Context())
			return nil
		})
		if err != nil {
			abortSessionError(c, err)
			return
		}

		middleware.MarkSessionTouched(c, id)
		c.JSON(http.StatusOK, resp)
	}
}

// ProcessMessage handles POST /interview/message.
func ProcessMessage(reg *registry.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := requireSessionID(c)
		if !ok {
			return
		}
		var req datatypes.MessageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abortBindError(c, err)
			return
		}

		var resp datatypes.AgentResponse
		err := reg.WithSession(c.Request.Context(), id, func(m *session.Manager) error {
			resp = m.ProcessMessage(c.Request.Context(), req.Message)
			return nil
		})
		if err != nil {
			abortSessionError(c, err)
			return
		}

		middleware.MarkSessionTouched(c, id)
		c.JSON(http.StatusOK, resp)
	}
}

// EndInterview handles POST /interview/end. The response never carries the
// summary; clients poll /interview/final-summary-status for it.
func EndInterview(reg *registry.Registry, auditLog extensions.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := requireSessionID(c)
		if !ok {
			return
		}

		var resp datatypes.EndResponse
		err := reg.WithSession(c.Request.Context(), id, func(m *session.Manager) error {
			resp = m.EndInterview()
			return nil
		})
		if err != nil {
			abortSessionError(c, err)
			return
		}

		audit(c, auditLog, extensions.AuditSessionEnded, "end", "session", id, "success")
		middleware.MarkSessionTouched(c, id)
		c.JSON(http.StatusOK, resp)
	}
}

// FinalSummaryStatus handles GET /interview/final-summary-status?poll_count=N.
// Touching the session here also persists a summary that completed since the
// last request (via the auto-save middleware).
func FinalSummaryStatus(reg *registry.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := requireSessionID(c)
		if !ok {
			return
		}
		pollCount, _ := strconv.Atoi(c.DefaultQuery("poll_count", "1"))

		mgr, err := reg.GetSessionManager(c.Request.Context(), id)
		if err != nil {
			abortSessionError(c, err)
			return
		}

		resp := datatypes.SummaryStatusResponse{Status: mgr.SummaryStatus()}
		switch resp.Status {
		case datatypes.SummaryCompleted:
			resp.Results = mgr.FinalSummary()
			resp.SuggestedPollIntervalMS = 0
			if ts := mgr.ResourceCompletedAt(); ts != nil {
				resp.ResourceCompletionTS = ts.UTC().Format(time.RFC3339)
			}
		case datatypes.SummaryError:
			resp.SuggestedPollIntervalMS = 0
			resp.Error = "summary generation failed"
			if s := mgr.FinalSummary(); s != nil && s.Error != "" {
				resp.Error = s.Error
			}
		default:
			resp.SuggestedPollIntervalMS = suggestedPollIntervalMS(pollCount)
			resp.GenerationTimeEstimate = "30-60 seconds"
		}

		middleware.MarkSessionTouched(c, id)
		c.JSON(http.StatusOK, resp)
	}
}

// History handles GET /interview/history.
func History(reg *registry.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := requireSessionID(c)
		if !ok {
			return
		}
		mgr, err := reg.GetSessionManager(c.Request.Context(), id)
		if err != nil {
			abortSessionError(c, err)
			return
		}
		history := mgr.History()
		if history == nil {
			history = []datatypes.Message{}
		}
		c.JSON(http.StatusOK, gin.H{"history": history})
	}
}

// Stats handles GET /interview/stats.
func Stats(reg *registry.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := requireSessionID(c)
		if !ok {
			return
		}
		mgr, err := reg.GetSessionManager(c.Request.Context(), id)
		if err != nil {
			abortSessionError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"stats": mgr.Stats()})
	}
}

// PerTurnFeedback handles GET /interview/per-turn-feedback.
func PerTurnFeedback(reg *registry.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := requireSessionID(c)
		if !ok {
			return
		}
		mgr, err := reg.GetSessionManager(c.Request.Context(), id)
		if err != nil {
			abortSessionError(c, err)
			return
		}
		c.JSON(http.StatusOK, mgr.PerTurnFeedback())
	}
}

// ResetSession handles POST /interview/reset.
func ResetSession(reg *registry.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := requireSessionID(c)
		if !ok {
			return
		}
		err := reg.WithSession(c.Request.Context(), id, func(m *session.Manager) error {
			m.ResetSession()
			return nil
		})
		if err != nil {
			abortSessionError(c, err)
			return
		}

		middleware.MarkSessionTouched(c, id)
		c.JSON(http.StatusOK, gin.H{
			"message":    "Session reset. Call /interview/start to begin again.",
			"session_id": id,
		})
	}
}

// TimeRemaining handles GET /interview/session/time-remaining.
func TimeRemaining(reg *registry.Registry, maxIdleMinutes int) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := requireSessionID(c)
		if !ok {
			return
		}
		remaining, active := reg.TimeRemaining(id, maxIdleMinutes)
		c.JSON(http.StatusOK, gin.H{
			"time_remaining_minutes": remaining,
			"session_active":         active,
		})
	}
}

// PingSession handles POST /interview/session/ping.
func PingSession(reg *registry.Registry, maxIdleMinutes int) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := requireSessionID(c)
		if !ok {
			return
		}
		if !reg.PingSession(id) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		if maxIdleMinutes <= 0 {
			maxIdleMinutes = registry.DefaultMaxIdleMinutes
		}
		c.JSON(http.StatusOK, gin.H{
			"success":            true,
			"new_expiry_minutes": maxIdleMinutes,
		})
	}
}

// CleanupSession handles POST /interview/session/cleanup.
func CleanupSession(reg *registry.Registry, auditLog extensions.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := requireSessionID(c)
		if !ok {
			return
		}
		reg.CleanupSessionImmediately(c.Request.Context(), id)
		audit(c, auditLog, extensions.AuditSessionCleanup, "cleanup", "session", id, "success")
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "session released",
		})
	}
}

// ListUserSessions handles GET /interview/sessions. Anonymous callers have no
// listing to show and get 401; only authenticated identities own sessions.
func ListUserSessions(gateway store.Gateway) gin.HandlerFunc {
	return func(c *gin.Context) {
		info := middleware.GetAuthInfo(c)
		if info.Anonymous() {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		records, err := gateway.ListUserSessions(c.Request.Context(), info.UserID, maxSessionListing)
		if err != nil {
			slog.Error("Could not list user sessions", "user_id", info.UserID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list sessions"})
			return
		}

		summaries := make([]gin.H, 0, len(records))
		for _, rec := range records {
			summaries = append(summaries, gin.H{
				"session_id":      rec.SessionID,
				"job_role":        rec.Config.JobRole,
				"style":           rec.Config.Style,
				"status":          rec.Status,
				"questions_asked": rec.Stats.QuestionsAsked,
				"created_at":      rec.CreatedAt,
				"updated_at":      rec.UpdatedAt,
			})
		}
		c.JSON(http.StatusOK, gin.H{"sessions": summaries})
	}
}
