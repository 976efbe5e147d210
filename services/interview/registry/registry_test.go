// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/AleutianAI/AleutianInterview/services/interview/agents"
	"github.com/AleutianAI/AleutianInterview/services/interview/datatypes"
	"github.com/AleutianAI/AleutianInterview/services/interview/events"
	"github.com/AleutianAI/AleutianInterview/services/interview/session"
	"github.com/AleutianAI/AleutianInterview/services/interview/store"
	"github.com/AleutianAI/AleutianInterview/services/llm"
)

type noopLLM struct{}

func (noopLLM) Generate(context.Context, string, llm.GenerationParams) (string, error) {
	return "{}", nil
}
func (noopLLM) Chat(context.Context, string, []llm.ChatMessage, llm.GenerationParams) (string, error) {
	return "{}", nil
}

// failingSaveStore wraps a gateway and fails saves on demand.
type failingSaveStore struct {
	store.Gateway
	mu       sync.Mutex
	failSave bool
}

func (f *failingSaveStore) SaveSession(ctx context.Context, id string, rec *datatypes.SessionRecord) error {
	f.mu.Lock()
	fail := f.failSave
	f.mu.Unlock()
	if fail {
		return errors.New("backend unavailable")
	}
	return f.Gateway.SaveSession(ctx, id, rec)
}

func testRegistry(t *testing.T) (*Registry, store.Gateway) {
	t.Helper()
	pack, err := agents.LoadEmbeddedPack()
	if err != nil {
		t.Fatal(err)
	}
	gateway := store.NewMemoryStore()
	deps := session.Deps{LLM: noopLLM{}, Bus: events.NewBus(), Pack: pack}
	return New(gateway, deps), gateway
}

func testCfg() datatypes.SessionConfig {
	return datatypes.SessionConfig{JobRole: "Software Engineer", Style: datatypes.StyleFormal}
}

func TestCreateAndGetSession(t *testing.T) {
	r, _ := testRegistry(t)
	ctx := context.Background()

	id, err := r.CreateSession(ctx, "user-1", testCfg())
	if err != nil {
		t.Fatal(err)
	}
	if id == "" {
		t.Fatal("expected non-empty session id")
	}

	mgr, err := r.GetSessionManager(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if mgr.SessionID() != id || mgr.UserID() != "user-1" {
		t.Error("manager identity mismatch")
	}
}

func TestGetUnknownSession(t *testing.T) {
	r, _ := testRegistry(t)
	if _, err := r.GetSessionManager(context.Background(), "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestSameInstanceForConcurrentGets(t *testing.T) {
	r, _ := testRegistry(t)
	ctx := context.Background()
	id, err := r.CreateSession(ctx, "", testCfg())
	if err != nil {
		t.Fatal(err)
	}

	const n = 16
	managers := make([]*session.Manager, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, err := r.GetSessionManager(ctx, id)
			if err != nil {
				t.Error(err)
				return
			}
			managers[i] = m
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		if managers[i] != managers[0] {
			t.Fatal("concurrent gets returned different manager instances")
		}
	}
}

func TestColdLoadAfterRelease(t *testing.T) {
	r, _ := testRegistry(t)
	ctx := context.Background()
	id, err := r.CreateSession(ctx, "user-2", testCfg())
	if err != nil {
		t.Fatal(err)
	}

	if err := r.WithSession(ctx, id, func(m *session.Manager) error {
		m.StartInterview(ctx)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if err := r.ReleaseSession(ctx, id); err != nil {
		t.Fatal(err)
	}
	if r.Stats().ActiveSessions != 0 {
		t.Fatal("release should evict the session")
	}

	mgr, err := r.GetSessionManager(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(mgr.History()) != 1 {
		t.Errorf("cold load lost history, got %d entries", len(mgr.History()))
	}
}

func TestSaveFailureKeepsSessionResident(t *testing.T) {
	pack, err := agents.LoadEmbeddedPack()
	if err != nil {
		t.Fatal(err)
	}
	failing := &failingSaveStore{Gateway: store.NewMemoryStore()}
	r := New(failing, session.Deps{LLM: noopLLM{}, Bus: events.NewBus(), Pack: pack})
	ctx := context.Background()

	id, err := r.CreateSession(ctx, "", testCfg())
	if err != nil {
		t.Fatal(err)
	}
	failing.mu.Lock()
	failing.failSave = true
	failing.mu.Unlock()

	if err := r.ReleaseSession(ctx, id); err == nil {
		t.Fatal("expected release to fail when save fails")
	}
	if r.Stats().ActiveSessions != 1 {
		t.Error("save failure must keep the session resident")
	}
}

func TestPingAndTimeRemaining(t *testing.T) {
	r, _ := testRegistry(t)
	ctx := context.Background()
	id, err := r.CreateSession(ctx, "", testCfg())
	if err != nil {
		t.Fatal(err)
	}

	if !r.PingSession(id) {
		t.Error("ping on active session should succeed")
	}
	if r.PingSession("missing") {
		t.Error("ping on unknown session should fail")
	}

	remaining, ok := r.TimeRemaining(id, 15)
	if !ok {
		t.Fatal("expected tracked session")
	}
	if remaining <= 14 || remaining > 15 {
		t.Errorf("fresh session should have ~15 minutes remaining, got %f", remaining)
	}

	// Backdate the access time past the idle window.
	r.mu.Lock()
	r.lastAccess[id] = time.Now().Add(-20 * time.Minute)
	r.mu.Unlock()
	remaining, ok = r.TimeRemaining(id, 15)
	if !ok || remaining != 0 {
		t.Errorf("expired session should clamp to 0, got %f", remaining)
	}

	if _, ok := r.TimeRemaining("missing", 15); ok {
		t.Error("unknown session should not be tracked")
	}
}

func TestCleanupInactiveSessions(t *testing.T) {
	r, _ := testRegistry(t)
	ctx := context.Background()

	fresh, err := r.CreateSession(ctx, "", testCfg())
	if err != nil {
		t.Fatal(err)
	}
	stale, err := r.CreateSession(ctx, "", testCfg())
	if err != nil {
		t.Fatal(err)
	}

	r.mu.Lock()
	r.lastAccess[stale] = time.Now().Add(-30 * time.Minute)
	r.mu.Unlock()

	released := r.CleanupInactiveSessions(ctx, 15)
	if released != 1 {
		t.Errorf("expected 1 released, got %d", released)
	}

	stats := r.Stats()
	if stats.ActiveSessions != 1 || stats.TrackedLocks != 1 || stats.TrackedAccessTimes != 1 {
		t.Errorf("bookkeeping leaked after cleanup: %+v", stats)
	}
	if _, err := r.GetSessionManager(ctx, fresh); err != nil {
		t.Error("fresh session should survive the sweep")
	}
}

func TestSweeperStartStop(t *testing.T) {
	r, _ := testRegistry(t)
	r.StartCleanupTask(10*time.Millisecond, 15)
	time.Sleep(30 * time.Millisecond)
	r.StopCleanupTask()
	// Double stop must not panic.
	r.StopCleanupTask()
}

func TestSaveIfDirty(t *testing.T) {
	r, gateway := testRegistry(t)
	ctx := context.Background()
	id, err := r.CreateSession(ctx, "", testCfg())
	if err != nil {
		t.Fatal(err)
	}

	if err := r.WithSession(ctx, id, func(m *session.Manager) error {
		m.StartInterview(ctx)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if err := r.SaveIfDirty(ctx, id); err != nil {
		t.Fatal(err)
	}

	rec, err := gateway.LoadSession(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.History) != 1 {
		t.Errorf("dirty save should persist history, got %d entries", len(rec.History))
	}

	mgr, _ := r.GetSessionManager(ctx, id)
	if mgr.NeedsSave() {
		t.Error("save should clear the dirty flag")
	}
}

func TestSaveIfDirtyConcurrentWithMutation(t *testing.T) {
	r, _ := testRegistry(t)
	ctx := context.Background()
	id, err := r.CreateSession(ctx, "", testCfg())
	if err != nil {
		t.Fatal(err)
	}
	if err := r.WithSession(ctx, id, func(m *session.Manager) error {
		m.StartInterview(ctx)
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	// Saves must snapshot under the per-session mutex, so interleaving them
	// with turns appending to history is safe under the race detector.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 25; i++ {
			_ = r.WithSession(ctx, id, func(m *session.Manager) error {
				m.ProcessMessage(ctx, "concurrent answer")
				return nil
			})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 25; i++ {
			if err := r.SaveIfDirty(ctx, id); err != nil {
				t.Error(err)
				return
			}
		}
	}()
	wg.Wait()

	if err := r.SaveSession(ctx, id); err != nil {
		t.Fatal(err)
	}
}

func TestReleaseAll(t *testing.T) {
	r, _ := testRegistry(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := r.CreateSession(ctx, "", testCfg()); err != nil {
			t.Fatal(err)
		}
	}
	r.ReleaseAll(ctx)
	if got := r.Stats().ActiveSessions; got != 0 {
		t.Errorf("expected all sessions released, %d remain", got)
	}
}
