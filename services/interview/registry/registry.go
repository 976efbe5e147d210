// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// # Description
//
// Package registry keeps the in-memory working set of active interview
// sessions. It loans out session Managers under per-session mutexes, loads
// cold sessions from the store on demand, writes them back on release, and
// evicts idle sessions with a background sweeper.
//
// Lock discipline: the registry mutex only guards the bookkeeping maps and
// is never held while a per-session mutex is being acquired or while the
// store is being called. The sweeper snapshots its candidate list under the
// registry mutex and performs all releases outside it.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianInterview/services/interview/datatypes"
	"github.com/AleutianAI/AleutianInterview/services/interview/session"
	"github.com/AleutianAI/AleutianInterview/services/interview/store"
)

// Defaults for the idle sweeper.
const (
	DefaultSweepInterval  = 5 * time.Minute
	DefaultMaxIdleMinutes = 15
)

// ErrSessionNotFound wraps the store's miss for callers that only import
// this package.
var ErrSessionNotFound = store.ErrSessionNotFound

// MemoryStats is the registry's self-reported footprint.
type MemoryStats struct {
	ActiveSessions     int     `json:"active_sessions"`
	TrackedLocks       int     `json:"tracked_locks"`
	TrackedAccessTimes int     `json:"tracked_access_times"`
	AvgAgeMinutes      float64 `json:"avg_age_minutes"`
	MaxAgeMinutes      float64 `json:"max_age_minutes"`
}

// Registry is the session working set.
type Registry struct {
	mu         sync.Mutex
	sessions   map[string]*session.Manager
	locks      map[string]*sync.Mutex
	lastAccess map[string]time.Time

	gateway store.Gateway
	deps    session.Deps

	sweeperDone chan struct{}
	sweeperWG   sync.WaitGroup
}

// New builds a registry over the given store gateway. deps are handed to
// every Manager the registry constructs.
func New(gateway store.Gateway, deps session.Deps) *Registry {
	return &Registry{
		sessions:   make(map[string]*session.Manager),
		locks:      make(map[string]*sync.Mutex),
		lastAccess: make(map[string]time.Time),
		gateway:    gateway,
		deps:       deps,
	}
}

// CreateSession persists a fresh record through the store gateway, caches a
// Manager for it, and returns the new session id.
func (r *Registry) CreateSession(ctx context.Context, userID string,
	cfg datatypes.SessionConfig) (string, error) {

	cfg.Normalize()
	id, err := r.gateway.CreateSession(ctx, userID, &cfg)
	if err != nil {
		return "", fmt.Errorf("failed to create session record: %w", err)
	}

	mgr := session.New(id, userID, cfg, r.deps)
	r.mu.Lock()
	r.sessions[id] = mgr
	if _, ok := r.locks[id]; !ok {
		r.locks[id] = &sync.Mutex{}
	}
	r.lastAccess[id] = time.Now()
	r.mu.Unlock()

	slog.Info("Session created", "session_id", id, "user_id", orAnonymous(userID))
	return id, nil
}

// sessionLock returns the per-session mutex, creating it if needed.
func (r *Registry) sessionLock(id string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[id] = lock
	}
	return lock
}

// GetSessionManager returns the active Manager for id, loading it from the
// store on a cold hit. Concurrent callers for the same id serialize on the
// per-session mutex and observe the same instance.
func (r *Registry) GetSessionManager(ctx context.Context, id string) (*session.Manager, error) {
	lock := r.sessionLock(id)
	lock.Lock()
	defer lock.Unlock()

	r.mu.Lock()
	mgr, ok := r.sessions[id]
	r.mu.Unlock()

	if !ok {
		rec, err := r.gateway.LoadSession(ctx, id)
		if err != nil {
			return nil, err
		}
		mgr = session.FromRecord(rec, r.deps)
		r.mu.Lock()
		r.sessions[id] = mgr
		r.mu.Unlock()
		slog.Debug("Session loaded from store", "session_id", id)
	}

	r.mu.Lock()
	r.lastAccess[id] = time.Now()
	r.mu.Unlock()
	return mgr, nil
}

// WithSession runs fn with the Manager for id under its per-session mutex.
// This is the only sanctioned way to mutate a session.
func (r *Registry) WithSession(ctx context.Context, id string,
	fn func(*session.Manager) error) error {

	lock := r.sessionLock(id)
	lock.Lock()
	defer lock.Unlock()

	r.mu.Lock()
	mgr, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok {
		rec, err := r.gateway.LoadSession(ctx, id)
		if err != nil {
			return err
		}
		mgr = session.FromRecord(rec, r.deps)
		r.mu.Lock()
		r.sessions[id] = mgr
		r.mu.Unlock()
	}

	r.mu.Lock()
	r.lastAccess[id] = time.Now()
	r.mu.Unlock()
	return fn(mgr)
}

// SaveSession snapshots the Manager's state and writes it through the
// gateway. A clean session is written anyway; the record's UpdatedAt moves
// but the content is identical. The snapshot is taken under the per-session
// mutex so it cannot observe a half-applied turn.
func (r *Registry) SaveSession(ctx context.Context, id string) error {
	lock := r.sessionLock(id)
	lock.Lock()
	defer lock.Unlock()
	return r.saveLocked(ctx, id)
}

// SaveIfDirty persists the session only when it has unsaved mutations.
func (r *Registry) SaveIfDirty(ctx context.Context, id string) error {
	lock := r.sessionLock(id)
	lock.Lock()
	defer lock.Unlock()

	r.mu.Lock()
	mgr, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok || !mgr.NeedsSave() {
		return nil
	}
	return r.saveLocked(ctx, id)
}

// saveLocked writes the session through the gateway. Callers hold the
// per-session mutex.
func (r *Registry) saveLocked(ctx context.Context, id string) error {
	r.mu.Lock()
	mgr, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("session %s is not active: %w", id, ErrSessionNotFound)
	}

	if err := r.gateway.SaveSession(ctx, id, mgr.ToRecord()); err != nil {
		return fmt.Errorf("failed to save session %s: %w", id, err)
	}
	mgr.MarkSaved()
	return nil
}

// ReleaseSession saves the session and evicts it plus its bookkeeping. A
// save failure keeps the session resident so no state is lost.
func (r *Registry) ReleaseSession(ctx context.Context, id string) error {
	lock := r.sessionLock(id)
	lock.Lock()
	defer lock.Unlock()

	r.mu.Lock()
	mgr, active := r.sessions[id]
	r.mu.Unlock()

	if active {
		if err := r.gateway.SaveSession(ctx, id, mgr.ToRecord()); err != nil {
			return fmt.Errorf("refusing to evict session %s, save failed: %w", id, err)
		}
		mgr.MarkSaved()
	}

	r.mu.Lock()
	delete(r.sessions, id)
	delete(r.locks, id)
	delete(r.lastAccess, id)
	r.mu.Unlock()

	if active {
		slog.Info("Session released", "session_id", id)
	}
	return nil
}

// PingSession refreshes last-access time for an active session.
func (r *Registry) PingSession(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return false
	}
	r.lastAccess[id] = time.Now()
	return true
}

// TimeRemaining returns minutes until idle eviction, clamped at zero, and
// false when the session is not tracked.
func (r *Registry) TimeRemaining(id string, maxIdleMinutes int) (float64, bool) {
	if maxIdleMinutes <= 0 {
		maxIdleMinutes = DefaultMaxIdleMinutes
	}
	r.mu.Lock()
	last, ok := r.lastAccess[id]
	r.mu.Unlock()
	if !ok {
		return 0, false
	}
	remaining := float64(maxIdleMinutes) - time.Since(last).Minutes()
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true
}

// CleanupSessionImmediately releases the session, swallowing errors.
func (r *Registry) CleanupSessionImmediately(ctx context.Context, id string) {
	if err := r.ReleaseSession(ctx, id); err != nil {
		slog.Warn("Immediate cleanup failed", "session_id", id, "error", err)
	}
}

// CleanupInactiveSessions releases every session idle longer than
// maxIdleMinutes and returns how many were released. The candidate list is
// snapshotted under the registry mutex; releases happen outside any lock.
func (r *Registry) CleanupInactiveSessions(ctx context.Context, maxIdleMinutes int) int {
	if maxIdleMinutes <= 0 {
		maxIdleMinutes = DefaultMaxIdleMinutes
	}
	cutoff := time.Now().Add(-time.Duration(maxIdleMinutes) * time.Minute)

	r.mu.Lock()
	candidates := make([]string, 0)
	for id, last := range r.lastAccess {
		if last.Before(cutoff) {
			candidates = append(candidates, id)
		}
	}
	r.mu.Unlock()

	released := 0
	for _, id := range candidates {
		if err := r.ReleaseSession(ctx, id); err != nil {
			slog.Warn("Idle sweep could not release session, keeping resident",
				"session_id", id, "error", err)
			continue
		}
		released++
	}
	if released > 0 {
		slog.Info("Idle sweep complete", "released", released, "candidates", len(candidates))
	}
	return released
}

// StartCleanupTask launches the idle sweeper. Safe to call once.
func (r *Registry) StartCleanupTask(interval time.Duration, maxIdleMinutes int) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	r.sweeperDone = make(chan struct{})
	r.sweeperWG.Add(1)

	go func() {
		defer r.sweeperWG.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		slog.Info("Session idle sweeper started",
			"interval", interval.String(), "max_idle_minutes", maxIdleMinutes)
		for {
			select {
			case <-ticker.C:
				r.CleanupInactiveSessions(context.Background(), maxIdleMinutes)
			case <-r.sweeperDone:
				slog.Info("Session idle sweeper stopped")
				return
			}
		}
	}()
}

// StopCleanupTask stops the sweeper and waits for it to exit.
func (r *Registry) StopCleanupTask() {
	if r.sweeperDone == nil {
		return
	}
	close(r.sweeperDone)
	r.sweeperWG.Wait()
	r.sweeperDone = nil
}

// ReleaseAll saves and evicts every active session. Used at shutdown.
func (r *Registry) ReleaseAll(ctx context.Context) {
	r.mu.Lock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		if err := r.ReleaseSession(ctx, id); err != nil {
			slog.Error("Failed to flush session at shutdown", "session_id", id, "error", err)
		}
	}
}

// Stats reports the registry's memory footprint.
func (r *Registry) Stats() MemoryStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := MemoryStats{
		ActiveSessions:     len(r.sessions),
		TrackedLocks:       len(r.locks),
		TrackedAccessTimes: len(r.lastAccess),
	}
	now := time.Now()
	var total float64
	for _, last := range r.lastAccess {
		age := now.Sub(last).Minutes()
		total += age
		if age > stats.MaxAgeMinutes {
			stats.MaxAgeMinutes = age
		}
	}
	if len(r.lastAccess) > 0 {
		stats.AvgAgeMinutes = total / float64(len(r.lastAccess))
	}
	return stats
}

func orAnonymous(userID string) string {
	if userID == "" {
		return "anonymous"
	}
	return userID
}
