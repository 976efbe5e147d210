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
	"net/http"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianInterview/services/interview/events"
	"github.com/AleutianAI/AleutianInterview/services/interview/registry"
	"github.com/AleutianAI/AleutianInterview/services/interview/speech"
	"github.com/AleutianAI/AleutianInterview/services/interview/store"
	"github.com/gin-gonic/gin"
)

// TTS warmup performance buckets surfaced by /health.
const (
	warmupExcellent = time.Second
	warmupGood      = 3 * time.Second
)

// System bundles the collaborators the root, health, and metrics endpoints
// report on. The TTS warmup result is recorded once at startup via
// SetWarmup.
type System struct {
	Registry      *registry.Registry
	Gateway       store.Gateway
	Bus           *events.Bus
	Tracker       *speech.Tracker
	LLMConfigured bool
	Environment   string
	Version       string
	StartedAt     time.Time

	mu         sync.RWMutex
	warmupDone bool
	warmupDur  time.Duration
	warmupErr  error
}

// SetWarmup records the startup TTS warmup outcome for /health.
func (s *System) SetWarmup(d time.Duration, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.warmupDone = true
	s.warmupDur = d
	s.warmupErr = err
}

// ttsStatus derives the health sub-report for the synthesis provider.
func (s *System) ttsStatus() gin.H {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.warmupDone {
		return gin.H{"status": "not_warmed"}
	}
	if s.warmupErr != nil {
		return gin.H{"status": "error", "error": s.warmupErr.Error()}
	}

	performance := "slow"
	switch {
	case s.warmupDur < warmupExcellent:
		performance = "excellent"
	case s.warmupDur < warmupGood:
		performance = "good"
	}
	return gin.H{
		"status":         "ok",
		"warmup_time_ms": s.warmupDur.Milliseconds(),
		"performance":    performance,
	}
}

// Root handles GET /.
func Root() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "Aleutian interview service",
		})
	}
}

// Health handles GET /health. The service is degraded (503) only when the
// store gateway is gone; speech and LLM problems are reported but do not
// fail readiness, because text-only interviews still work without them.
func Health(sys *System) gin.HandlerFunc {
	return func(c *gin.Context) {
		dbStatus := "ok"
		status := "healthy"
		code := http.StatusOK
		if sys.Gateway == nil {
			dbStatus = "unavailable"
			status = "degraded"
			code = http.StatusServiceUnavailable
		}

		llmStatus := "ok"
		if !sys.LLMConfigured {
			llmStatus = "unconfigured"
		}

		c.JSON(code, gin.H{
			"status":          status,
			"timestamp":       time.Now().UTC().Format(time.RFC3339),
			"environment":     sys.Environment,
			"active_sessions": sys.Registry.Stats().ActiveSessions,
			"memory_stats":    sys.Registry.Stats(),
			"services": gin.H{
				"database":    dbStatus,
				"llm_service": llmStatus,
				"event_bus":   "ok",
				"tts_service": sys.ttsStatus(),
			},
		})
	}
}

// MetricsJSON handles GET /metrics: the live JSON counters. Prometheus
// exposition lives on /metrics/prometheus.
func MetricsJSON(sys *System) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"timestamp":   time.Now().UTC().Format(time.RFC3339),
			"sessions":    sys.Registry.Stats(),
			"rate_limits": sys.Tracker.UsageStats(),
			"system": gin.H{
				"version":        sys.Version,
				"status":         "ok",
				"uptime_seconds": int(time.Since(sys.StartedAt).Seconds()),
			},
		})
	}
}
