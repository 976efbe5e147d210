// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package speech

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AleutianAI/AleutianInterview/services/interview/datatypes"
	"github.com/AleutianAI/AleutianInterview/services/interview/ratelimit"
	"github.com/AleutianAI/AleutianInterview/services/interview/store"
)

type stubBatch struct {
	calls  atomic.Int64
	result *BatchTranscript
	err    error
}

func (s *stubBatch) Transcribe(context.Context, []byte) (*BatchTranscript, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

type stubSynth struct {
	calls atomic.Int64
	err   error
}

func (s *stubSynth) Synthesize(_ context.Context, ssml string) ([]byte, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return []byte("mp3:" + ssml), nil
}

func (s *stubSynth) Voice() string { return "Patrick" }

func testTracker(cfg ratelimit.Config) (*Tracker, store.Gateway) {
	gateway := store.NewMemoryStore()
	return &Tracker{
		gateway:  gateway,
		governor: ratelimit.NewGovernor(cfg),
		cache:    newAudioCache(),
	}, gateway
}

// waitForTerminal polls the task record until it leaves processing.
func waitForTerminal(t *testing.T, tr *Tracker, taskID string) *datatypes.SpeechTaskRecord {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rec, err := tr.GetTask(context.Background(), taskID)
		if err != nil {
			t.Fatal(err)
		}
		if rec.Terminal() {
			return rec
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("task never reached a terminal state")
	return nil
}

func TestBatchTranscriptionLifecycle(t *testing.T) {
	tr, _ := testTracker(ratelimit.DefaultConfig())
	tr.batch = &stubBatch{result: &BatchTranscript{
		Text:        "hello world",
		Confidence:  0.93,
		Language:    "en",
		DurationSec: 4.2,
	}}

	taskID, err := tr.StartBatchTranscription(context.Background(), "sess-1", []byte("audio"))
	if err != nil {
		t.Fatal(err)
	}

	rec := waitForTerminal(t, tr, taskID)
	if rec.Status != datatypes.SpeechTaskCompleted {
		t.Fatalf("status = %s, error = %s", rec.Status, rec.ErrorMessage)
	}
	if rec.SessionID != "sess-1" || rec.TaskType != datatypes.SpeechTaskSTTBatch {
		t.Errorf("record identity wrong: %+v", rec)
	}
	if rec.Result["text"] != "hello world" {
		t.Errorf("result text = %v", rec.Result["text"])
	}
	if rec.Result["confidence"] != 0.93 || rec.Result["language"] != "en" {
		t.Errorf("result payload incomplete: %v", rec.Result)
	}
}

func TestBatchTranscriptionAnonymousSession(t *testing.T) {
	tr, _ := testTracker(ratelimit.DefaultConfig())
	tr.batch = &stubBatch{result: &BatchTranscript{Text: "x"}}

	taskID, err := tr.StartBatchTranscription(context.Background(), "", []byte("audio"))
	if err != nil {
		t.Fatal(err)
	}
	rec := waitForTerminal(t, tr, taskID)
	if rec.SessionID != datatypes.AnonymousSessionID {
		t.Errorf("session id = %q, want anonymous", rec.SessionID)
	}
}

func TestBatchTranscriptionProviderFailure(t *testing.T) {
	tr, _ := testTracker(ratelimit.DefaultConfig())
	tr.batch = &stubBatch{err: errors.New("upstream exploded")}

	taskID, err := tr.StartBatchTranscription(context.Background(), "sess-1", []byte("audio"))
	if err != nil {
		t.Fatal(err)
	}
	rec := waitForTerminal(t, tr, taskID)
	if rec.Status != datatypes.SpeechTaskError || rec.ErrorMessage != "upstream exploded" {
		t.Errorf("expected provider error on record, got %+v", rec)
	}
}

func TestBatchTranscriptionRateLimited(t *testing.T) {
	cfg := ratelimit.Config{STTBatchCapacity: 1, AcquireTimeout: 20 * time.Millisecond}
	tr, _ := testTracker(cfg)
	tr.batch = &stubBatch{result: &BatchTranscript{Text: "x"}}

	// Occupy the only batch slot so the worker times out.
	release, err := tr.governor.Acquire(context.Background(), ratelimit.ProviderSTTBatch)
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	taskID, err := tr.StartBatchTranscription(context.Background(), "sess-1", []byte("audio"))
	if err != nil {
		t.Fatal(err)
	}
	rec := waitForTerminal(t, tr, taskID)
	if rec.Status != datatypes.SpeechTaskError || rec.ErrorMessage != rateLimitMessage {
		t.Errorf("expected rate-limit error, got %+v", rec)
	}
}

func TestBatchUnavailableWithoutProvider(t *testing.T) {
	tr, _ := testTracker(ratelimit.DefaultConfig())
	if _, err := tr.StartBatchTranscription(context.Background(), "", nil); !errors.Is(err, ErrSTTUnavailable) {
		t.Errorf("expected ErrSTTUnavailable, got %v", err)
	}
	if tr.Available(ratelimit.ProviderSTTBatch) {
		t.Error("provider without credentials must report unavailable")
	}
}

func TestSynthesizeCachesCommonPhrases(t *testing.T) {
	tr, _ := testTracker(ratelimit.DefaultConfig())
	synth := &stubSynth{}
	tr.synth = synth

	for i := 0; i < 3; i++ {
		if _, err := tr.Synthesize(context.Background(), "Thank you for that answer.", 1.0); err != nil {
			t.Fatal(err)
		}
	}
	if got := synth.calls.Load(); got != 1 {
		t.Errorf("cacheable phrase synthesized %d times, want 1", got)
	}

	// Session-specific text bypasses the cache.
	for i := 0; i < 2; i++ {
		if _, err := tr.Synthesize(context.Background(), "Describe your experience with distributed consensus.", 1.0); err != nil {
			t.Fatal(err)
		}
	}
	if got := synth.calls.Load(); got != 3 {
		t.Errorf("non-cacheable text should hit the provider every time, got %d calls", got)
	}
}

func TestSynthesizeSpeedChangesCacheEntry(t *testing.T) {
	tr, _ := testTracker(ratelimit.DefaultConfig())
	synth := &stubSynth{}
	tr.synth = synth

	if _, err := tr.Synthesize(context.Background(), "Welcome!", 1.0); err != nil {
		t.Fatal(err)
	}
	if _, err := tr.Synthesize(context.Background(), "Welcome!", 1.5); err != nil {
		t.Fatal(err)
	}
	if got := synth.calls.Load(); got != 2 {
		t.Errorf("distinct speeds must synthesize separately, got %d calls", got)
	}
}

func TestSynthesizeCapacityExhausted(t *testing.T) {
	cfg := ratelimit.Config{TTSCapacity: 1, AcquireTimeout: 20 * time.Millisecond}
	tr, _ := testTracker(cfg)
	tr.synth = &stubSynth{}

	release, err := tr.governor.Acquire(context.Background(), ratelimit.ProviderTTS)
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	_, err = tr.Synthesize(context.Background(), "Describe a hard bug you fixed.", 1.0)
	if !errors.Is(err, ratelimit.ErrCapacityExhausted) {
		t.Errorf("expected ErrCapacityExhausted, got %v", err)
	}
}

func TestSynthesizeUnavailableWithoutProvider(t *testing.T) {
	tr, _ := testTracker(ratelimit.DefaultConfig())
	if _, err := tr.Synthesize(context.Background(), "hello", 1.0); !errors.Is(err, ErrTTSUnavailable) {
		t.Errorf("expected ErrTTSUnavailable, got %v", err)
	}
	if _, err := tr.Warmup(context.Background()); !errors.Is(err, ErrTTSUnavailable) {
		t.Errorf("warmup without provider should fail, got %v", err)
	}
}

func TestOpenStreamUnavailableWithoutProvider(t *testing.T) {
	tr, _ := testTracker(ratelimit.DefaultConfig())
	if _, err := tr.OpenStream(context.Background(), "sess-1"); !errors.Is(err, ErrStreamUnavailable) {
		t.Errorf("expected ErrStreamUnavailable, got %v", err)
	}
}

func TestUsageStatsCoversAllProviders(t *testing.T) {
	tr, _ := testTracker(ratelimit.DefaultConfig())
	stats := tr.UsageStats()
	for _, p := range []ratelimit.Provider{
		ratelimit.ProviderSTTBatch, ratelimit.ProviderSTTStream,
		ratelimit.ProviderTTS, ratelimit.ProviderSearch,
	} {
		if _, ok := stats[p]; !ok {
			t.Errorf("stats missing provider %s", p)
		}
	}
}
