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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const assemblyAIBaseURL = "https://api.assemblyai.com/v2"

// Batch transcription retry policy. Transient upload/poll failures retry up
// to three times with exponential back-off plus jitter.
const (
	batchMaxRetries    = 3
	batchRetryBaseWait = 500 * time.Millisecond
)

// BatchTranscript is the outcome of one batch transcription.
type BatchTranscript struct {
	Text           string  `json:"text"`
	Confidence     float64 `json:"confidence"`
	Language       string  `json:"language"`
	DurationSec    float64 `json:"duration"`
	ProcessingTime float64 `json:"processing_time"`
}

// AssemblyAIClient transcribes uploaded audio through the AssemblyAI batch
// API: upload, create transcript job, poll until terminal.
type AssemblyAIClient struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string

	// pollLimiter paces status polls so a burst of concurrent jobs stays
	// inside the provider's request budget.
	pollLimiter *rate.Limiter
}

// NewAssemblyAIClient reads ASSEMBLYAI_API_KEY (or the container secret).
func NewAssemblyAIClient() (*AssemblyAIClient, error) {
	apiKey := os.Getenv("ASSEMBLYAI_API_KEY")
	if apiKey == "" {
		secretPath := "/run/secrets/assemblyai_api_key"
		if content, err := os.ReadFile(secretPath); err == nil {
			apiKey = strings.TrimSpace(string(content))
			slog.Info("Read the AssemblyAI API Key from container secrets")
		}
	}
	if apiKey == "" {
		return nil, fmt.Errorf("ASSEMBLYAI_API_KEY is missing")
	}
	return &AssemblyAIClient{
		httpClient:  &http.Client{Timeout: 2 * time.Minute},
		apiKey:      apiKey,
		baseURL:     assemblyAIBaseURL,
		pollLimiter: rate.NewLimiter(rate.Every(time.Second), 2),
	}, nil
}

type assemblyUploadResponse struct {
	UploadURL string `json:"upload_url"`
}

type assemblyTranscriptRequest struct {
	AudioURL string `json:"audio_url"`
}

type assemblyTranscriptResponse struct {
	ID           string  `json:"id"`
	Status       string  `json:"status"`
	Text         string  `json:"text"`
	Confidence   float64 `json:"confidence"`
	LanguageCode string  `json:"language_code"`
	AudioDuration float64 `json:"audio_duration"`
	Error        string  `json:"error"`
}

// Transcribe uploads audio bytes and blocks until the provider finishes.
func (a *AssemblyAIClient) Transcribe(ctx context.Context, audio []byte) (*BatchTranscript, error) {
	started := time.Now()

	uploadURL, err := a.upload(ctx, audio)
	if err != nil {
		return nil, fmt.Errorf("audio upload failed: %w", err)
	}

	jobID, err := a.createJob(ctx, uploadURL)
	if err != nil {
		return nil, fmt.Errorf("transcript job creation failed: %w", err)
	}
	slog.Info("AssemblyAI transcript job created", "job_id", jobID, "audio_bytes", len(audio))

	final, err := a.poll(ctx, jobID)
	if err != nil {
		return nil, err
	}

	return &BatchTranscript{
		Text:           final.Text,
		Confidence:     final.Confidence,
		Language:       final.LanguageCode,
		DurationSec:    final.AudioDuration,
		ProcessingTime: time.Since(started).Seconds(),
	}, nil
}

func (a *AssemblyAIClient) upload(ctx context.Context, audio []byte) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= batchMaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepWithBackoff(ctx, attempt); err != nil {
				return "", err
			}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			a.baseURL+"/upload", bytes.NewReader(audio))
		if err != nil {
			return "", err
		}
		req.Header.Set("authorization", a.apiKey)
		req.Header.Set("Content-Type", "application/octet-stream")

		var parsed assemblyUploadResponse
		if lastErr = a.do(req, &parsed); lastErr != nil {
			slog.Warn("AssemblyAI upload attempt failed",
				"attempt", attempt+1, "error", lastErr)
			continue
		}
		return parsed.UploadURL, nil
	}
	return "", lastErr
}

func (a *AssemblyAIClient) createJob(ctx context.Context, audioURL string) (string, error) {
	payload, err := json.Marshal(assemblyTranscriptRequest{AudioURL: audioURL})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.baseURL+"/transcript", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("authorization", a.apiKey)
	req.Header.Set("Content-Type", "application/json")

	var parsed assemblyTranscriptResponse
	if err := a.do(req, &parsed); err != nil {
		return "", err
	}
	if parsed.ID == "" {
		return "", fmt.Errorf("provider returned no job id")
	}
	return parsed.ID, nil
}

// poll checks job status until it reaches completed or error. Each poll
// waits on the shared limiter; transient poll failures retry with back-off.
func (a *AssemblyAIClient) poll(ctx context.Context, jobID string) (*assemblyTranscriptResponse, error) {
	failures := 0
	for {
		if err := a.pollLimiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet,
			a.baseURL+"/transcript/"+jobID, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("authorization", a.apiKey)

		var parsed assemblyTranscriptResponse
		if err := a.do(req, &parsed); err != nil {
			failures++
			if failures > batchMaxRetries {
				return nil, fmt.Errorf("transcript poll failed after %d retries: %w",
					batchMaxRetries, err)
			}
			if err := sleepWithBackoff(ctx, failures); err != nil {
				return nil, err
			}
			continue
		}
		failures = 0

		switch parsed.Status {
		case "completed":
			return &parsed, nil
		case "error":
			return nil, fmt.Errorf("transcription failed: %s", parsed.Error)
		}
	}
}

func (a *AssemblyAIClient) do(req *http.Request, out any) error {
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("AssemblyAI returned status %d: %s", resp.StatusCode, string(body))
	}
	return json.Unmarshal(body, out)
}

// sleepWithBackoff waits 2^(attempt-1) base units plus up to 25% jitter.
func sleepWithBackoff(ctx context.Context, attempt int) error {
	wait := batchRetryBaseWait * time.Duration(1<<(attempt-1))
	wait += time.Duration(rand.Int63n(int64(wait / 4)))
	select {
	case <-time.After(wait):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
