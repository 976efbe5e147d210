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
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/AleutianAI/AleutianInterview/pkg/validation"
	"github.com/AleutianAI/AleutianInterview/services/interview/datatypes"
	"github.com/AleutianAI/AleutianInterview/services/interview/middleware"
	"github.com/AleutianAI/AleutianInterview/services/interview/observability"
	"github.com/AleutianAI/AleutianInterview/services/interview/ratelimit"
	"github.com/AleutianAI/AleutianInterview/services/interview/speech"
	"github.com/AleutianAI/AleutianInterview/services/interview/store"
	"github.com/gin-gonic/gin"
)

// maxAudioUpload bounds one batch STT request body.
const maxAudioUpload = 25 * 1024 * 1024

// ttsStreamChunk is the flush granularity of the streamed synthesis
// endpoint.
const ttsStreamChunk = 32 * 1024

// SpeechToText handles POST /api/speech-to-text: it enqueues a batch
// transcription and returns the pollable task id. Audio arrives either as a
// multipart "audio" file or as the raw request body.
func SpeechToText(tracker *speech.Tracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !tracker.Available(ratelimit.ProviderSTTBatch) {
			rejectSpeech(c, tracker, ratelimit.ProviderSTTBatch, speech.ErrSTTUnavailable)
			return
		}

		audio, err := readAudio(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if len(audio) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no audio data provided"})
			return
		}

		taskID, err := tracker.StartBatchTranscription(
			c.Request.Context(), c.GetHeader(middleware.SessionHeader), audio)
		if err != nil {
			if errors.Is(err, speech.ErrSTTUnavailable) {
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
				return
			}
			abortSessionError(c, err)
			return
		}

		c.JSON(http.StatusAccepted, gin.H{
			"task_id": taskID,
			"status":  string(datatypes.SpeechTaskProcessing),
		})
	}
}

// readAudio extracts the audio payload from a multipart "audio" field or the
// raw body, whichever the client sent.
func readAudio(c *gin.Context) ([]byte, error) {
	if file, err := c.FormFile("audio"); err == nil {
		f, err := file.Open()
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return io.ReadAll(io.LimitReader(f, maxAudioUpload))
	}
	return io.ReadAll(io.LimitReader(c.Request.Body, maxAudioUpload))
}

// SpeechTaskStatus handles GET /api/speech-to-text/status/:task_id.
func SpeechTaskStatus(tracker *speech.Tracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		taskID := c.Param("task_id")
		if err := validation.ValidateTaskID(taskID); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		task, err := tracker.GetTask(c.Request.Context(), taskID)
		if err != nil {
			if errors.Is(err, store.ErrTaskNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
				return
			}
			abortSessionError(c, err)
			return
		}
		c.JSON(http.StatusOK, task)
	}
}

// TextToSpeech handles POST /api/text-to-speech, returning the full MP3 body
// at once.
func TextToSpeech(tracker *speech.Tracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		audio, ok := synthesize(c, tracker)
		if !ok {
			return
		}
		c.Data(http.StatusOK, "audio/mpeg", audio)
	}
}

// TextToSpeechStream handles POST /api/text-to-speech/stream. Synthesis is
// still one provider call; the response body is flushed in chunks so clients
// can begin playback before the transfer completes.
func TextToSpeechStream(tracker *speech.Tracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		audio, ok := synthesize(c, tracker)
		if !ok {
			return
		}

		c.Header("Content-Type", "audio/mpeg")
		c.Status(http.StatusOK)
		for off := 0; off < len(audio); off += ttsStreamChunk {
			end := off + ttsStreamChunk
			if end > len(audio) {
				end = len(audio)
			}
			if _, err := c.Writer.Write(audio[off:end]); err != nil {
				slog.Debug("TTS stream client went away", "error", err)
				return
			}
			c.Writer.Flush()
		}
	}
}

// synthesize binds the TTS request, runs governed synthesis, and translates
// errors. Returns (audio, true) on success; on failure the response has
// already been written.
func synthesize(c *gin.Context, tracker *speech.Tracker) ([]byte, bool) {
	var req datatypes.TTSRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBindError(c, err)
		return nil, false
	}
	if err := validation.ValidateSpeechSpeed(req.Speed); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	if !tracker.Available(ratelimit.ProviderTTS) {
		rejectSpeech(c, tracker, ratelimit.ProviderTTS, speech.ErrTTSUnavailable)
		return nil, false
	}

	audio, err := tracker.Synthesize(c.Request.Context(), req.Text, req.Speed)
	if err != nil {
		switch {
		case errors.Is(err, speech.ErrTTSUnavailable):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		case errors.Is(err, ratelimit.ErrCapacityExhausted):
			rejectSpeech(c, tracker, ratelimit.ProviderTTS, err)
		default:
			slog.Error("Speech synthesis failed", "error", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "speech synthesis failed"})
		}
		return nil, false
	}
	return audio, true
}

// SpeechUsageStats handles GET /api/speech/usage-stats.
func SpeechUsageStats(tracker *speech.Tracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"providers": tracker.UsageStats(),
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// rejectSpeech answers a speech request without taking a governor slot:
// 503 when the provider is not configured (governor slots free yet
// Available reported false), 429 when capacity is exhausted.
func rejectSpeech(c *gin.Context, tracker *speech.Tracker, provider ratelimit.Provider, unavailable error) {
	if m := observability.DefaultMetrics; m != nil {
		m.RecordRateLimitRejection(string(provider))
	}
	if stats, ok := tracker.UsageStats()[provider]; ok && stats.Available > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": unavailable.Error()})
		return
	}
	c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
}
