// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package speech implements the asynchronous speech workflows: batch
// transcription through AssemblyAI, live transcription through Deepgram, and
// synthesis through Amazon Polly. Every provider call is governed by the
// shared rate governor; task lifecycle is tracked through durable speech
// task records that clients poll by id.
package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianInterview/services/interview/datatypes"
	"github.com/AleutianAI/AleutianInterview/services/interview/ratelimit"
	"github.com/AleutianAI/AleutianInterview/services/interview/store"
)

// Provider-unavailable errors. A provider is unavailable when its credentials
// were absent at startup; handlers translate these to 503.
var (
	ErrSTTUnavailable    = errors.New("speech-to-text service not configured")
	ErrStreamUnavailable = errors.New("streaming transcription service not configured")
	ErrTTSUnavailable    = errors.New("text-to-speech service not configured")
)

// batchTimeout bounds one background batch transcription end to end.
const batchTimeout = 10 * time.Minute

// rateLimitMessage is recorded on tasks rejected by the governor.
const rateLimitMessage = "rate limit exceeded"

type batchTranscriber interface {
	Transcribe(ctx context.Context, audio []byte) (*BatchTranscript, error)
}

type liveDialer interface {
	Connect(ctx context.Context, cfg StreamConfig) (*LiveSession, error)
}

type speechSynth interface {
	Synthesize(ctx context.Context, ssml string) ([]byte, error)
	Voice() string
}

// Tracker coordinates the three speech workflows against the store and the
// rate governor. Providers whose credentials are missing stay nil and their
// workflow reports unavailable rather than failing at startup.
type Tracker struct {
	gateway  store.Gateway
	governor *ratelimit.Governor
	batch    batchTranscriber
	live     liveDialer
	synth    speechSynth
	cache    *audioCache
}

// NewTracker wires whichever providers have credentials configured.
func NewTracker(ctx context.Context, gateway store.Gateway, governor *ratelimit.Governor) *Tracker {
	t := &Tracker{
		gateway:  gateway,
		governor: governor,
		cache:    newAudioCache(),
	}

	if c, err := NewAssemblyAIClient(); err != nil {
		slog.Warn("Batch transcription unavailable", "error", err)
	} else {
		t.batch = c
	}
	if c, err := NewDeepgramClient(); err != nil {
		slog.Warn("Streaming transcription unavailable", "error", err)
	} else {
		t.live = c
	}
	if s, err := NewSynthesizer(ctx); err != nil {
		slog.Warn("Speech synthesis unavailable", "error", err)
	} else {
		t.synth = s
	}
	return t
}

// Available reports whether a provider has both configuration and a free
// governor slot. Handlers reject new work up front on false.
func (t *Tracker) Available(p ratelimit.Provider) bool {
	switch p {
	case ratelimit.ProviderSTTBatch:
		if t.batch == nil {
			return false
		}
	case ratelimit.ProviderSTTStream:
		if t.live == nil {
			return false
		}
	case ratelimit.ProviderTTS:
		if t.synth == nil {
			return false
		}
	}
	return t.governor.Available(p)
}

// UsageStats returns the governor's per-provider snapshot.
func (t *Tracker) UsageStats() map[ratelimit.Provider]ratelimit.ProviderStats {
	return t.governor.Stats()
}

// GetTask returns the task record for polling clients.
func (t *Tracker) GetTask(ctx context.Context, taskID string) (*datatypes.SpeechTaskRecord, error) {
	return t.gateway.GetSpeechTask(ctx, taskID)
}

// CleanupTasks removes terminal task records older than the cutoff.
func (t *Tracker) CleanupTasks(ctx context.Context, olderThan time.Duration) (int, error) {
	return t.gateway.CleanupSpeechTasks(ctx, olderThan)
}

// ===== Batch transcription =====

// StartBatchTranscription records a processing task and hands the audio to a
// background worker. The returned task id is immediately pollable.
func (t *Tracker) StartBatchTranscription(ctx context.Context, sessionID string, audio []byte) (string, error) {
	if t.batch == nil {
		return "", ErrSTTUnavailable
	}
	if sessionID == "" {
		sessionID = datatypes.AnonymousSessionID
	}

	taskID, err := t.gateway.CreateSpeechTask(ctx, sessionID, datatypes.SpeechTaskSTTBatch)
	if err != nil {
		return "", fmt.Errorf("could not create speech task: %w", err)
	}

	go t.runBatchTranscription(taskID, audio)
	slog.Info("Batch transcription enqueued",
		"task_id", taskID, "session_id", sessionID, "audio_bytes", len(audio))
	return taskID, nil
}

// runBatchTranscription owns the task lifecycle: it must leave the record in
// a terminal state on every exit path.
func (t *Tracker) runBatchTranscription(taskID string, audio []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), batchTimeout)
	defer cancel()

	release, err := t.governor.Acquire(ctx, ratelimit.ProviderSTTBatch)
	if err != nil {
		t.failTask(ctx, taskID, rateLimitMessage)
		return
	}
	defer release()

	t.updateTask(ctx, taskID, datatypes.SpeechTaskProcessing,
		map[string]any{"stage": "transcribing"}, nil, "")

	result, err := t.batch.Transcribe(ctx, audio)
	if err != nil {
		t.failTask(ctx, taskID, err.Error())
		return
	}

	t.updateTask(ctx, taskID, datatypes.SpeechTaskCompleted, nil, map[string]any{
		"text":            result.Text,
		"confidence":      result.Confidence,
		"language":        result.Language,
		"duration":        result.DurationSec,
		"processing_time": result.ProcessingTime,
	}, "")
	slog.Info("Batch transcription completed",
		"task_id", taskID, "transcript_length", len(result.Text))
}

func (t *Tracker) failTask(ctx context.Context, taskID, msg string) {
	slog.Warn("Speech task failed", "task_id", taskID, "error", msg)
	t.updateTask(ctx, taskID, datatypes.SpeechTaskError, nil, nil, msg)
}

func (t *Tracker) updateTask(ctx context.Context, taskID string, status datatypes.SpeechTaskStatus,
	progress, result map[string]any, errMsg string) {
	if err := t.gateway.UpdateSpeechTask(ctx, taskID, status, progress, result, errMsg); err != nil {
		slog.Error("Could not update speech task record",
			"task_id", taskID, "status", status, "error", err)
	}
}

// ===== Streaming transcription =====

// StreamHandle is one governed live transcription. The caller pumps client
// audio through SendAudio and relays Frames back to its websocket; Close
// finalizes the task record and always returns the governor slot.
type StreamHandle struct {
	taskID  string
	session *LiveSession
	acc     TranscriptAccumulator
	frames  chan datatypes.StreamFrame
	tracker *Tracker
	release func()

	closeOnce sync.Once
}

// OpenStream creates the task record, takes an STT-stream slot, and dials
// the provider. Any failure leaves the record terminal and the slot free.
func (t *Tracker) OpenStream(ctx context.Context, sessionID string) (*StreamHandle, error) {
	if t.live == nil {
		return nil, ErrStreamUnavailable
	}
	if sessionID == "" {
		sessionID = datatypes.AnonymousSessionID
	}

	taskID, err := t.gateway.CreateSpeechTask(ctx, sessionID, datatypes.SpeechTaskSTTStream)
	if err != nil {
		return nil, fmt.Errorf("could not create speech task: %w", err)
	}

	release, err := t.governor.Acquire(ctx, ratelimit.ProviderSTTStream)
	if err != nil {
		t.failTask(ctx, taskID, rateLimitMessage)
		return nil, err
	}

	acc, err := NewTranscriptAccumulator()
	if err != nil {
		release()
		t.failTask(ctx, taskID, err.Error())
		return nil, err
	}

	session, err := t.live.Connect(ctx, DefaultStreamConfig())
	if err != nil {
		acc.Destroy()
		release()
		t.failTask(ctx, taskID, err.Error())
		return nil, err
	}

	h := &StreamHandle{
		taskID:  taskID,
		session: session,
		acc:     acc,
		frames:  make(chan datatypes.StreamFrame, streamAudioBuffer),
		tracker: t,
		release: release,
	}
	go h.relay()
	slog.Info("Live transcription opened", "task_id", taskID, "session_id", sessionID)
	return h, nil
}

// relay copies provider frames to the caller, feeding final transcript
// fragments into the secure accumulator along the way.
func (h *StreamHandle) relay() {
	defer close(h.frames)
	for frame := range h.session.Frames() {
		if frame.Type == datatypes.FrameTranscript &&
			frame.IsFinal != nil && *frame.IsFinal && frame.Text != "" {
			if err := h.acc.Write(frame.Text + " "); err != nil {
				slog.Warn("Transcript accumulation failed",
					"task_id", h.taskID, "error", err)
			}
		}
		h.frames <- frame
	}
}

// TaskID returns the backing task record's id.
func (h *StreamHandle) TaskID() string { return h.taskID }

// SendAudio forwards one client audio chunk to the provider.
func (h *StreamHandle) SendAudio(chunk []byte) error {
	return h.session.SendAudio(chunk)
}

// Frames returns the provider event channel. Closed when the stream ends.
func (h *StreamHandle) Frames() <-chan datatypes.StreamFrame {
	return h.frames
}

// Close ends the provider session, finalizes the task record, and releases
// the governor slot. Safe to call from multiple teardown paths; only the
// first call does work. A non-nil cause marks the record as errored.
func (h *StreamHandle) Close(cause error) {
	h.closeOnce.Do(func() {
		defer h.release()

		_ = h.session.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if cause != nil {
			h.acc.Destroy()
			h.tracker.failTask(ctx, h.taskID, cause.Error())
			return
		}

		transcript, hashStr, err := h.acc.Finalize()
		if err != nil {
			h.tracker.failTask(ctx, h.taskID, err.Error())
			return
		}
		// Only the digest and length are persisted; the transcript itself
		// stays with the client.
		h.tracker.updateTask(ctx, h.taskID, datatypes.SpeechTaskCompleted, nil, map[string]any{
			"transcript_length": len(transcript),
			"transcript_sha256": hashStr,
		}, "")
		slog.Info("Live transcription closed",
			"task_id", h.taskID, "transcript_length", len(transcript))
	})
}

// ===== Speech synthesis =====

// Synthesize renders text to MP3. Short common phrases are served from the
// cache without taking a TTS slot.
func (t *Tracker) Synthesize(ctx context.Context, text string, speed float64) ([]byte, error) {
	if t.synth == nil {
		return nil, ErrTTSUnavailable
	}
	if speed == 0 {
		speed = 1.0
	}

	voice := t.synth.Voice()
	key := cacheKey(text, voice, speed)
	if cacheable(text) {
		if audio, ok := t.cache.get(key); ok {
			slog.Debug("Synthesis cache hit", "text_length", len(text))
			return audio, nil
		}
	}

	release, err := t.governor.Acquire(ctx, ratelimit.ProviderTTS)
	if err != nil {
		return nil, err
	}
	defer release()

	audio, err := t.synth.Synthesize(ctx, BuildSSML(text, speed))
	if err != nil {
		return nil, err
	}
	if cacheable(text) {
		t.cache.set(key, audio)
	}
	return audio, nil
}

// Warmup issues one short synthesis to prime provider connections and
// reports how long it took. Used by the health endpoint's readiness rating.
func (t *Tracker) Warmup(ctx context.Context) (time.Duration, error) {
	if t.synth == nil {
		return 0, ErrTTSUnavailable
	}
	started := time.Now()
	if _, err := t.Synthesize(ctx, "Welcome. One moment while we get set up.", 1.0); err != nil {
		return 0, err
	}
	return time.Since(started), nil
}
