// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/AleutianAI/AleutianInterview/pkg/extensions"
	"github.com/AleutianAI/AleutianInterview/services/interview/agents"
	"github.com/AleutianAI/AleutianInterview/services/interview/events"
	"github.com/AleutianAI/AleutianInterview/services/interview/handlers"
	"github.com/AleutianAI/AleutianInterview/services/interview/ratelimit"
	"github.com/AleutianAI/AleutianInterview/services/interview/registry"
	"github.com/AleutianAI/AleutianInterview/services/interview/session"
	"github.com/AleutianAI/AleutianInterview/services/interview/speech"
	"github.com/AleutianAI/AleutianInterview/services/interview/store"
	"github.com/AleutianAI/AleutianInterview/services/llm"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type okLLM struct{}

func (okLLM) Generate(context.Context, string, llm.GenerationParams) (string, error) {
	return "ok", nil
}

func (okLLM) Chat(context.Context, string, []llm.ChatMessage, llm.GenerationParams) (string, error) {
	return "ok", nil
}

func testRouter(t *testing.T) *gin.Engine {
	t.Helper()

	pack, err := agents.LoadEmbeddedPack()
	require.NoError(t, err)

	gateway := store.NewMemoryStore()
	reg := registry.New(gateway, session.Deps{
		LLM:  okLLM{},
		Bus:  events.NewBus(),
		Pack: pack,
	})
	tracker := speech.NewTracker(context.Background(), gateway,
		ratelimit.NewGovernor(ratelimit.DefaultConfig()))

	router := gin.New()
	SetupRoutes(router, Deps{
		Registry: reg,
		Gateway:  gateway,
		Tracker:  tracker,
		System: &handlers.System{
			Registry:    reg,
			Gateway:     gateway,
			Bus:         events.NewBus(),
			Tracker:     tracker,
			Environment: "test",
			Version:     "test",
			StartedAt:   time.Now(),
		},
		Options:        extensions.DefaultOptions(),
		MaxIdleMinutes: 15,
	})
	return router
}

func TestSetupRoutesRegistersFullSurface(t *testing.T) {
	router := testRouter(t)

	want := map[string][]string{
		http.MethodGet: {
			"/",
			"/health",
			"/metrics",
			"/metrics/prometheus",
			"/interview/final-summary-status",
			"/interview/history",
			"/interview/stats",
			"/interview/per-turn-feedback",
			"/interview/sessions",
			"/interview/session/time-remaining",
			"/api/speech-to-text/status/:task_id",
			"/api/speech-to-text/stream",
			"/api/speech/usage-stats",
		},
		http.MethodPost: {
			"/interview/session",
			"/interview/start",
			"/interview/message",
			"/interview/end",
			"/interview/reset",
			"/interview/session/ping",
			"/interview/session/cleanup",
			"/api/speech-to-text",
			"/api/text-to-speech",
			"/api/text-to-speech/stream",
			"/files/upload-resume",
		},
	}

	registered := make(map[string]map[string]bool)
	for _, route := range router.Routes() {
		if registered[route.Method] == nil {
			registered[route.Method] = make(map[string]bool)
		}
		registered[route.Method][route.Path] = true
	}

	for method, paths := range want {
		for _, path := range paths {
			assert.True(t, registered[method][path], "%s %s not registered", method, path)
		}
	}
}

func TestRootAndHealthServeThroughFullChain(t *testing.T) {
	router := testRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"), "recovery middleware assigns ids")

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPrometheusEndpointWithoutExporter(t *testing.T) {
	router := testRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics/prometheus", nil))
	assert.Equal(t, http.StatusNotFound, w.Code, "exporter not initialized in tests")
}
