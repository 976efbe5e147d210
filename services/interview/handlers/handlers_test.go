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
	"context"
	"testing"
	"time"

	"github.com/AleutianAI/AleutianInterview/pkg/extensions"
	"github.com/AleutianAI/AleutianInterview/services/interview/agents"
	"github.com/AleutianAI/AleutianInterview/services/interview/events"
	"github.com/AleutianAI/AleutianInterview/services/interview/middleware"
	"github.com/AleutianAI/AleutianInterview/services/interview/ratelimit"
	"github.com/AleutianAI/AleutianInterview/services/interview/registry"
	"github.com/AleutianAI/AleutianInterview/services/interview/session"
	"github.com/AleutianAI/AleutianInterview/services/interview/speech"
	"github.com/AleutianAI/AleutianInterview/services/interview/store"
	"github.com/AleutianAI/AleutianInterview/services/llm"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// validSummaryJSON lets the background summary task complete against the
// scripted LLM.
const validSummaryJSON = `{"patterns_tendencies":"concise answers","strengths":["clarity"],` +
	`"weaknesses":["detail"],"improvement_focus_areas":["examples"],"resource_search_topics":[]}`

// scriptedLLM returns canned responses in order, repeating the last.
type scriptedLLM struct {
	responses []string
	calls     int
}

func (s *scriptedLLM) Generate(context.Context, string, llm.GenerationParams) (string, error) {
	s.calls++
	idx := s.calls - 1
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	if idx < 0 {
		return "ok", nil
	}
	return s.responses[idx], nil
}

func (s *scriptedLLM) Chat(ctx context.Context, _ string, _ []llm.ChatMessage,
	p llm.GenerationParams) (string, error) {
	return s.Generate(ctx, "", p)
}

// staticAuthProvider authenticates everyone as one fixed user.
type staticAuthProvider struct {
	userID string
}

func (p *staticAuthProvider) Validate(context.Context, string) (*extensions.AuthInfo, error) {
	return &extensions.AuthInfo{UserID: p.userID}, nil
}

// fixture is the shared handler test harness: an in-memory store, a
// registry over a scripted LLM, and a tracker with no providers configured.
type fixture struct {
	gateway store.Gateway
	reg     *registry.Registry
	tracker *speech.Tracker
	sys     *System
}

func newFixture(t *testing.T, responses ...string) *fixture {
	t.Helper()

	pack, err := agents.LoadEmbeddedPack()
	if err != nil {
		t.Fatalf("embedded pack: %v", err)
	}
	gateway := store.NewMemoryStore()
	reg := registry.New(gateway, session.Deps{
		LLM:  &scriptedLLM{responses: responses},
		Bus:  events.NewBus(),
		Pack: pack,
	})
	tracker := speech.NewTracker(context.Background(), gateway,
		ratelimit.NewGovernor(ratelimit.DefaultConfig()))

	return &fixture{
		gateway: gateway,
		reg:     reg,
		tracker: tracker,
		sys: &System{
			Registry:      reg,
			Gateway:       gateway,
			Bus:           events.NewBus(),
			Tracker:       tracker,
			LLMConfigured: true,
			Environment:   "test",
			Version:       "test",
			StartedAt:     time.Now(),
		},
	}
}

// router builds a gin engine with the standard middleware chain and the
// given auth provider (nil means anonymous).
func (f *fixture) router(provider extensions.AuthProvider) *gin.Engine {
	if provider == nil {
		provider = &extensions.NopAuthProvider{}
	}
	r := gin.New()
	r.Use(middleware.Recovery())
	r.Use(middleware.AuthMiddleware(provider))
	r.Use(middleware.AutoSave(f.reg))
	return r
}
