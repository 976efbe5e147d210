// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agents

import (
	"log/slog"
	"sync"
	"time"
)

// TimePhase is the coarse time bucket of a time-based interview.
type TimePhase string

const (
	PhaseOpening     TimePhase = "opening"     // 0-20%
	PhaseExploration TimePhase = "exploration" // 20-60%
	PhaseDeepening   TimePhase = "deepening"   // 60-80%
	PhaseClosing     TimePhase = "closing"     // 80-100%
)

// TimePressure grades how urgent the remaining time is.
type TimePressure string

const (
	PressureLow    TimePressure = "low"    // <50%
	PressureMedium TimePressure = "medium" // 50-80%
	PressureHigh   TimePressure = "high"   // >=80%
)

// TimeContext is the snapshot handed to the interviewer's decision prompt.
type TimeContext struct {
	TotalMinutes     int          `json:"total_minutes"`
	ElapsedMinutes   float64      `json:"elapsed_minutes"`
	RemainingMinutes float64      `json:"remaining_minutes"`
	ProgressPercent  float64      `json:"progress_percent"`
	Phase            TimePhase    `json:"phase"`
	PhaseProgress    float64      `json:"phase_progress"`
	Pressure         TimePressure `json:"pressure"`
	SuggestedActions []string     `json:"suggested_actions"`
}

// MilestoneCallback fires when a time milestone is reached. Callbacks run on
// the goroutine that called Context and must not block.
type MilestoneCallback func(ctx TimeContext)

// Milestone names for RegisterCallback.
const (
	MilestonePhaseChange  = "phase_change"
	MilestoneHalfway      = "halfway_point"
	MilestoneFinalWarning = "final_warning" // >80%
	MilestoneTimeWarning  = "time_warning"  // >90%
)

// phaseActions maps each phase to its suggested interviewer moves.
var phaseActions = map[TimePhase][]string{
	PhaseOpening:     {"Build rapport with the candidate", "Ask a warm-up or background question"},
	PhaseExploration: {"Probe core competencies for the role", "Ask about concrete past projects"},
	PhaseDeepening:   {"Drill into technical depth or behavioral detail", "Challenge an earlier answer"},
	PhaseClosing:     {"Wrap up open threads", "Ask a final question and prepare to close"},
}

// pressureHints augment suggested actions once time gets tight.
var pressureHints = map[TimePressure]string{
	PressureMedium: "Keep answers moving; avoid long tangents",
	PressureHigh:   "Prioritize only the most important remaining topics",
}

// TimeManager tracks wall-clock progress of a time-based interview and fires
// each milestone at most once per session. It is owned by a single
// Interviewer; the mutex only guards against the registry's background save
// reading a context while a turn is in flight.
type TimeManager struct {
	mu            sync.Mutex
	totalMinutes  int
	startedAt     time.Time
	stoppedAt     time.Time
	running       bool
	callbacks     map[string]MilestoneCallback
	firedHalfway  bool
	firedFinal    bool
	firedWarning  bool
	lastSeenPhase TimePhase
}

// NewTimeManager builds a manager for an interview of the given duration.
func NewTimeManager(totalMinutes int) *TimeManager {
	return &TimeManager{
		totalMinutes:  totalMinutes,
		callbacks:     make(map[string]MilestoneCallback),
		lastSeenPhase: PhaseOpening,
	}
}

// RegisterCallback attaches cb to the named milestone, replacing any
// previous callback for that name.
func (t *TimeManager) RegisterCallback(milestone string, cb MilestoneCallback) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.callbacks[milestone] = cb
}

// Start captures the start time. Calling Start on a running manager restarts
// the clock and re-arms the milestones.
func (t *TimeManager) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.startedAt = time.Now()
	t.stoppedAt = time.Time{}
	t.running = true
	t.firedHalfway = false
	t.firedFinal = false
	t.firedWarning = false
	t.lastSeenPhase = PhaseOpening
}

// Running reports whether the clock has started and not yet stopped.
func (t *TimeManager) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Stop freezes the clock and returns the final context.
func (t *TimeManager) Stop() TimeContext {
	t.mu.Lock()
	if t.running {
		t.stoppedAt = time.Now()
		t.running = false
	}
	t.mu.Unlock()
	return t.Context()
}

// Context computes the current time context. At rest state (never started)
// it returns the opening defaults. Milestone callbacks fire from here, at
// most once each per session.
func (t *TimeManager) Context() TimeContext {
	t.mu.Lock()

	ctx := TimeContext{
		TotalMinutes: t.totalMinutes,
		Phase:        PhaseOpening,
		Pressure:     PressureLow,
	}
	if t.startedAt.IsZero() {
		ctx.RemainingMinutes = float64(t.totalMinutes)
		ctx.SuggestedActions = suggestedActions(PhaseOpening, PressureLow)
		t.mu.Unlock()
		return ctx
	}

	end := time.Now()
	if !t.stoppedAt.IsZero() {
		end = t.stoppedAt
	}
	elapsed := end.Sub(t.startedAt).Minutes()
	total := float64(t.totalMinutes)

	ctx.ElapsedMinutes = elapsed
	ctx.RemainingMinutes = total - elapsed
	if total > 0 {
		ctx.ProgressPercent = elapsed / total * 100
	}
	if ctx.ProgressPercent > 100 {
		ctx.ProgressPercent = 100
	}

	ctx.Phase, ctx.PhaseProgress = phaseFor(ctx.ProgressPercent)
	ctx.Pressure = pressureFor(ctx.ProgressPercent)
	ctx.SuggestedActions = suggestedActions(ctx.Phase, ctx.Pressure)

	// Decide which milestones to fire while still holding the lock, then
	// invoke callbacks after releasing it.
	var fire []MilestoneCallback
	if ctx.Phase != t.lastSeenPhase {
		t.lastSeenPhase = ctx.Phase
		if cb, ok := t.callbacks[MilestonePhaseChange]; ok {
			fire = append(fire, cb)
		}
	}
	if !t.firedHalfway && ctx.ProgressPercent >= 50 {
		t.firedHalfway = true
		if cb, ok := t.callbacks[MilestoneHalfway]; ok {
			fire = append(fire, cb)
		}
	}
	if !t.firedFinal && ctx.ProgressPercent > 80 {
		t.firedFinal = true
		if cb, ok := t.callbacks[MilestoneFinalWarning]; ok {
			fire = append(fire, cb)
		}
	}
	if !t.firedWarning && ctx.ProgressPercent > 90 {
		t.firedWarning = true
		if cb, ok := t.callbacks[MilestoneTimeWarning]; ok {
			fire = append(fire, cb)
		}
	}
	t.mu.Unlock()

	for _, cb := range fire {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("time milestone callback panicked", "panic", r)
				}
			}()
			cb(ctx)
		}()
	}
	return ctx
}

func phaseFor(progress float64) (TimePhase, float64) {
	switch {
	case progress < 20:
		return PhaseOpening, progress / 20
	case progress < 60:
		return PhaseExploration, (progress - 20) / 40
	case progress < 80:
		return PhaseDeepening, (progress - 60) / 20
	default:
		p := (progress - 80) / 20
		if p > 1 {
			p = 1
		}
		return PhaseClosing, p
	}
}

func pressureFor(progress float64) TimePressure {
	switch {
	case progress < 50:
		return PressureLow
	case progress < 80:
		return PressureMedium
	default:
		return PressureHigh
	}
}

func suggestedActions(phase TimePhase, pressure TimePressure) []string {
	actions := make([]string, 0, 3)
	actions = append(actions, phaseActions[phase]...)
	if hint, ok := pressureHints[pressure]; ok {
		actions = append(actions, hint)
	}
	return actions
}
