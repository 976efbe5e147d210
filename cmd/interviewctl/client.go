// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/AleutianAI/AleutianInterview/services/interview/datatypes"
)

// apiClient is a thin HTTP client over the interview service API.
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{
		baseURL: baseURL,
		// LLM turns and summary generation can take a while.
		http: &http.Client{Timeout: 120 * time.Second},
	}
}

// apiError carries the server's error payload alongside the status code.
type apiError struct {
	Status int
	Body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Body)
}

func (c *apiClient) do(ctx context.Context, method, path, sessionID string,
	body any, out any) error {

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if sessionID != "" {
		req.Header.Set("X-Session-ID", sessionID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return &apiError{Status: resp.StatusCode, Body: string(data)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *apiClient) Health(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	if err := c.do(ctx, http.MethodGet, "/health", "", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *apiClient) CreateSession(ctx context.Context,
	req datatypes.CreateSessionRequest) (string, error) {

	var out datatypes.CreateSessionResponse
	if err := c.do(ctx, http.MethodPost, "/interview/session", "", req, &out); err != nil {
		return "", err
	}
	return out.SessionID, nil
}

func (c *apiClient) StartInterview(ctx context.Context,
	sessionID string) (*datatypes.AgentResponse, error) {

	var out datatypes.AgentResponse
	if err := c.do(ctx, http.MethodPost, "/interview/start", sessionID, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) SendMessage(ctx context.Context, sessionID,
	message string) (*datatypes.AgentResponse, error) {

	var out datatypes.AgentResponse
	req := datatypes.MessageRequest{Message: message}
	if err := c.do(ctx, http.MethodPost, "/interview/message", sessionID, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) EndInterview(ctx context.Context,
	sessionID string) (*datatypes.EndResponse, error) {

	var out datatypes.EndResponse
	if err := c.do(ctx, http.MethodPost, "/interview/end", sessionID, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) SummaryStatus(ctx context.Context, sessionID string,
	pollCount int) (*datatypes.SummaryStatusResponse, error) {

	var out datatypes.SummaryStatusResponse
	path := "/interview/final-summary-status?poll_count=" + strconv.Itoa(pollCount)
	if err := c.do(ctx, http.MethodGet, path, sessionID, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// WaitForSummary polls until the summary reaches a terminal state, honoring
// the server's suggested poll intervals.
func (c *apiClient) WaitForSummary(ctx context.Context,
	sessionID string) (*datatypes.SummaryStatusResponse, error) {

	for pollCount := 1; ; pollCount++ {
		status, err := c.SummaryStatus(ctx, sessionID, pollCount)
		if err != nil {
			return nil, err
		}
		if status.Status != datatypes.SummaryGenerating {
			return status, nil
		}
		interval := time.Duration(status.SuggestedPollIntervalMS) * time.Millisecond
		if interval <= 0 {
			interval = time.Second
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}
}

func (c *apiClient) CleanupSession(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodPost, "/interview/session/cleanup", sessionID, nil, nil)
}

func (c *apiClient) PingSession(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodPost, "/interview/session/ping", sessionID, nil, nil)
}
