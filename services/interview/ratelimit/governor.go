// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ratelimit implements the external-API concurrency governor: one
// counting semaphore per provider with timed acquisition and usage counters.
//
// The governor never mints credit. A caller that loses its slot to timeout
// receives ErrCapacityExhausted and must not call the external provider.
// Acquire returns a release function so every exit path, including
// cancellation, can return the slot with a single defer.
package ratelimit

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// Provider names one governed external API.
type Provider string

const (
	ProviderSTTBatch  Provider = "stt_batch"
	ProviderSTTStream Provider = "stt_stream"
	ProviderTTS       Provider = "tts"
	ProviderSearch    Provider = "search"
)

// ErrCapacityExhausted is returned when a slot cannot be acquired before the
// configured timeout. Handlers translate it to 429 (HTTP) or close code 1008
// (websocket).
var ErrCapacityExhausted = errors.New("rate limit exceeded: provider capacity exhausted")

// Default per-provider capacities, matching the provider-side concurrency
// limits of the free tiers the service is tuned for.
const (
	DefaultSTTBatchCapacity  = 5
	DefaultTTSCapacity       = 26
	DefaultSTTStreamCapacity = 10
	DefaultSearchCapacity    = 3

	// DefaultAcquireTimeout bounds cooperative blocking in Acquire.
	DefaultAcquireTimeout = 5 * time.Second
)

// Config holds the per-provider capacities and the acquisition timeout.
type Config struct {
	STTBatchCapacity  int
	TTSCapacity       int
	STTStreamCapacity int
	SearchCapacity    int
	AcquireTimeout    time.Duration
}

// DefaultConfig returns the stock capacities (stt_batch=5, tts=26,
// stt_stream=10, search=3) and a 5 second acquire timeout.
func DefaultConfig() Config {
	return Config{
		STTBatchCapacity:  DefaultSTTBatchCapacity,
		TTSCapacity:       DefaultTTSCapacity,
		STTStreamCapacity: DefaultSTTStreamCapacity,
		SearchCapacity:    DefaultSearchCapacity,
		AcquireTimeout:    DefaultAcquireTimeout,
	}
}

// ProviderStats is a point-in-time usage snapshot for one provider.
type ProviderStats struct {
	Active        int64 `json:"active"`
	Available     int64 `json:"available"`
	Capacity      int64 `json:"capacity"`
	TotalRequests int64 `json:"total_requests"`
	Errors        int64 `json:"errors"`
}

type providerSlots struct {
	sem      *semaphore.Weighted
	capacity int64
	active   atomic.Int64
	requests atomic.Int64
	errors   atomic.Int64
}

// Governor owns one counting semaphore per provider.
type Governor struct {
	timeout   time.Duration
	providers map[Provider]*providerSlots
}

// NewGovernor builds a governor from cfg. Zero or negative capacities fall
// back to the defaults; a zero timeout falls back to DefaultAcquireTimeout.
func NewGovernor(cfg Config) *Governor {
	def := DefaultConfig()
	if cfg.STTBatchCapacity <= 0 {
		cfg.STTBatchCapacity = def.STTBatchCapacity
	}
	if cfg.TTSCapacity <= 0 {
		cfg.TTSCapacity = def.TTSCapacity
	}
	if cfg.STTStreamCapacity <= 0 {
		cfg.STTStreamCapacity = def.STTStreamCapacity
	}
	if cfg.SearchCapacity <= 0 {
		cfg.SearchCapacity = def.SearchCapacity
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = def.AcquireTimeout
	}

	mk := func(capacity int) *providerSlots {
		return &providerSlots{
			sem:      semaphore.NewWeighted(int64(capacity)),
			capacity: int64(capacity),
		}
	}
	return &Governor{
		timeout: cfg.AcquireTimeout,
		providers: map[Provider]*providerSlots{
			ProviderSTTBatch:  mk(cfg.STTBatchCapacity),
			ProviderTTS:       mk(cfg.TTSCapacity),
			ProviderSTTStream: mk(cfg.STTStreamCapacity),
			ProviderSearch:    mk(cfg.SearchCapacity),
		},
	}
}

// Acquire blocks cooperatively for up to the configured timeout (or until ctx
// is cancelled, whichever is sooner) to take one slot from the provider.
// On success it returns a release function that is safe to call exactly once
// on every exit path. On timeout it increments the provider's error counter
// and returns ErrCapacityExhausted.
func (g *Governor) Acquire(ctx context.Context, p Provider) (func(), error) {
	slots, ok := g.providers[p]
	if !ok {
		return nil, errors.New("ratelimit: unknown provider " + string(p))
	}
	slots.requests.Add(1)

	acquireCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if err := slots.sem.Acquire(acquireCtx, 1); err != nil {
		slots.errors.Add(1)
		return nil, ErrCapacityExhausted
	}
	slots.active.Add(1)

	var released atomic.Bool
	release := func() {
		if released.CompareAndSwap(false, true) {
			slots.active.Add(-1)
			slots.sem.Release(1)
		}
	}
	return release, nil
}

// Available reports without blocking whether at least one slot is free.
// Back-pressure callers use this to reject new work with 429/503 before
// taking a slot.
func (g *Governor) Available(p Provider) bool {
	slots, ok := g.providers[p]
	if !ok {
		return false
	}
	return slots.active.Load() < slots.capacity
}

// Stats returns a usage snapshot per provider.
func (g *Governor) Stats() map[Provider]ProviderStats {
	out := make(map[Provider]ProviderStats, len(g.providers))
	for p, s := range g.providers {
		active := s.active.Load()
		out[p] = ProviderStats{
			Active:        active,
			Available:     s.capacity - active,
			Capacity:      s.capacity,
			TotalRequests: s.requests.Load(),
			Errors:        s.errors.Load(),
		}
	}
	return out
}
