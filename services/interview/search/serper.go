// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

const serperBaseURL = "https://google.serper.dev/search"

// SerperClient calls the Serper web-search API.
type SerperClient struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
}

type serperRequest struct {
	Query string `json:"q"`
	Num   int    `json:"num"`
}

// SerperResult is one organic search hit.
type SerperResult struct {
	Title    string `json:"title"`
	Link     string `json:"link"`
	Snippet  string `json:"snippet"`
	Position int    `json:"position"`
}

type serperResponse struct {
	Organic []SerperResult `json:"organic"`
}

// NewSerperClient reads SERPER_API_KEY (or the container secret).
func NewSerperClient() (*SerperClient, error) {
	apiKey := os.Getenv("SERPER_API_KEY")
	if apiKey == "" {
		secretPath := "/run/secrets/serper_api_key"
		if content, err := os.ReadFile(secretPath); err == nil {
			apiKey = strings.TrimSpace(string(content))
			slog.Info("Read the Serper API Key from container secrets")
		}
	}
	if apiKey == "" {
		return nil, fmt.Errorf("SERPER_API_KEY is missing")
	}
	return &SerperClient{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		apiKey:     apiKey,
		baseURL:    serperBaseURL,
	}, nil
}

// Search runs one query and returns up to num organic results.
func (s *SerperClient) Search(ctx context.Context, query string, num int) ([]SerperResult, error) {
	payload, err := json.Marshal(serperRequest{Query: query, Num: num})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal Serper request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build Serper request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Serper API call failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read Serper response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		slog.Error("Serper returned non-200 status", "status", resp.StatusCode, "body", string(body))
		return nil, fmt.Errorf("Serper returned status %d", resp.StatusCode)
	}

	var parsed serperResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode Serper response: %w", err)
	}
	return parsed.Organic, nil
}
