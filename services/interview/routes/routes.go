// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package routes wires the interview service's handlers and middleware onto
// a gin router.
package routes

import (
	"net/http"

	"github.com/AleutianAI/AleutianInterview/pkg/extensions"
	"github.com/AleutianAI/AleutianInterview/services/interview/handlers"
	"github.com/AleutianAI/AleutianInterview/services/interview/middleware"
	"github.com/AleutianAI/AleutianInterview/services/interview/observability"
	"github.com/AleutianAI/AleutianInterview/services/interview/registry"
	"github.com/AleutianAI/AleutianInterview/services/interview/speech"
	"github.com/AleutianAI/AleutianInterview/services/interview/store"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// Deps carries everything SetupRoutes needs to wire the HTTP surface.
type Deps struct {
	Registry       *registry.Registry
	Gateway        store.Gateway
	Tracker        *speech.Tracker
	System         *handlers.System
	Options        extensions.ServiceOptions
	MaxIdleMinutes int

	// Tracing enables the otelgin middleware; off in tests.
	Tracing bool
}

// SetupRoutes registers all endpoints and the middleware chain.
func SetupRoutes(router *gin.Engine, deps Deps) {
	opts := deps.Options.Normalize()

	router.Use(middleware.Recovery())
	if deps.Tracing {
		router.Use(otelgin.Middleware("interview-service"))
	}
	router.Use(middleware.RequestMetrics())
	router.Use(middleware.AuthMiddleware(opts.AuthProvider))
	router.Use(middleware.AutoSave(deps.Registry))

	router.GET("/", handlers.Root())
	router.GET("/health", handlers.Health(deps.System))
	router.GET("/metrics", handlers.MetricsJSON(deps.System))
	router.GET("/metrics/prometheus", func(c *gin.Context) {
		h := observability.MetricsHandler()
		if h == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "prometheus exporter not enabled"})
			return
		}
		h.ServeHTTP(c.Writer, c.Request)
	})

	interview := router.Group("/interview")
	{
		interview.POST("/session", handlers.CreateSession(deps.Registry, opts.AuditLogger))
		interview.POST("/start", handlers.StartInterview(deps.Registry))
		interview.POST("/message", handlers.ProcessMessage(deps.Registry))
		interview.POST("/end", handlers.EndInterview(deps.Registry, opts.AuditLogger))
		interview.GET("/final-summary-status", handlers.FinalSummaryStatus(deps.Registry))
		interview.GET("/history", handlers.History(deps.Registry))
		interview.GET("/stats", handlers.Stats(deps.Registry))
		interview.GET("/per-turn-feedback", handlers.PerTurnFeedback(deps.Registry))
		interview.POST("/reset", handlers.ResetSession(deps.Registry))
		interview.GET("/sessions", handlers.ListUserSessions(deps.Gateway))

		session := interview.Group("/session")
		{
			session.GET("/time-remaining", handlers.TimeRemaining(deps.Registry, deps.MaxIdleMinutes))
			session.POST("/ping", handlers.PingSession(deps.Registry, deps.MaxIdleMinutes))
			session.POST("/cleanup", handlers.CleanupSession(deps.Registry, opts.AuditLogger))
		}
	}

	api := router.Group("/api")
	{
		api.POST("/speech-to-text", handlers.SpeechToText(deps.Tracker))
		api.GET("/speech-to-text/status/:task_id", handlers.SpeechTaskStatus(deps.Tracker))
		api.GET("/speech-to-text/stream", handlers.SpeechToTextStream(deps.Tracker))
		api.POST("/text-to-speech", handlers.TextToSpeech(deps.Tracker))
		api.POST("/text-to-speech/stream", handlers.TextToSpeechStream(deps.Tracker))
		api.GET("/speech/usage-stats", handlers.SpeechUsageStats(deps.Tracker))
	}

	files := router.Group("/files")
	{
		files.POST("/upload-resume", handlers.UploadResume(opts.AuditLogger))
	}
}
