// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

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

const (
	anthropicAPIVersion = "2023-06-01"
	anthropicBaseURL    = "https://api.anthropic.com/v1/messages"

	// anthropicDefaultMaxTokens bounds replies when the caller sets none.
	anthropicDefaultMaxTokens = 2048
)

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float32           `json:"temperature,omitempty"`
	TopP        *float32           `json:"top_p,omitempty"`
	TopK        *int               `json:"top_k,omitempty"`
	StopSeqs    []string           `json:"stop_sequences,omitempty"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type anthropicResponse struct {
	ID      string             `json:"id"`
	Type    string             `json:"type"`
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
	Error   *anthropicError    `json:"error,omitempty"`
}

type AnthropicClient struct {
	httpClient *http.Client
	apiKey     string
	model      string
}

// NewAnthropicClient reads ANTHROPIC_API_KEY (or the container secret) and
// LLM_MODEL_NAME.
func NewAnthropicClient() (*AnthropicClient, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		secretPath := "/run/secrets/anthropic_api_key"
		if content, err := os.ReadFile(secretPath); err == nil {
			apiKey = strings.TrimSpace(string(content))
			slog.Info("Read the Anthropic API Key from container secrets")
		}
	}
	if apiKey == "" {
		slog.Warn("Anthropic API Key is missing.")
		return nil, fmt.Errorf("ANTHROPIC_API_KEY is missing")
	}

	model := os.Getenv("LLM_MODEL_NAME")
	if model == "" {
		model = "claude-3-5-haiku-latest"
		slog.Info("LLM_MODEL_NAME not set, defaulting to", "model", model)
	}
	return &AnthropicClient{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		apiKey:     apiKey,
		model:      model,
	}, nil
}

func (a *AnthropicClient) send(ctx context.Context, reqBody anthropicRequest) (string, error) {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal Anthropic request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, anthropicBaseURL,
		bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build Anthropic request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		slog.Error("Anthropic API call failed", "error", err)
		return "", fmt.Errorf("Anthropic API call failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read Anthropic response: %w", err)
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode Anthropic response: %w", err)
	}
	if parsed.Error != nil {
		slog.Error("Anthropic returned an API error",
			"type", parsed.Error.Type, "message", parsed.Error.Message)
		return "", fmt.Errorf("Anthropic API error: %s", parsed.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("Anthropic returned status %d", resp.StatusCode)
	}

	var text strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("Anthropic returned no text content")
	}
	return text.String(), nil
}

// Generate implements the LLMClient interface.
func (a *AnthropicClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	return a.Chat(ctx, "", []ChatMessage{{Role: "user", Content: prompt}}, params)
}

// Chat implements the LLMClient interface.
func (a *AnthropicClient) Chat(ctx context.Context, system string, messages []ChatMessage,
	params GenerationParams) (string, error) {

	slog.Debug("Generating text via Anthropic", "model", a.model)
	req := anthropicRequest{
		Model:       a.model,
		System:      system,
		MaxTokens:   anthropicDefaultMaxTokens,
		Temperature: params.Temperature,
		TopP:        params.TopP,
		TopK:        params.TopK,
		StopSeqs:    params.Stop,
	}
	if params.MaxTokens != nil {
		req.MaxTokens = *params.MaxTokens
	}
	for _, m := range messages {
		role := "user"
		if m.Role == "assistant" {
			role = "assistant"
		}
		req.Messages = append(req.Messages, anthropicMessage{Role: role, Content: m.Content})
	}
	return a.send(ctx, req)
}
