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

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("aleutian.interview.llm.ollama")

type OllamaClient struct {
	httpClient *http.Client
	baseURL    string
	model      string
}

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Model     string `json:"model"`
	CreatedAt string `json:"created_at"`
	Response  string `json:"response"`
	Done      bool   `json:"done"`
}

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
	Options  map[string]any      `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message   ollamaChatMessage `json:"message"`
	CreatedAt string            `json:"created_at"`
	Done      bool              `json:"done"`
}

// NewOllamaClient reads OLLAMA_BASE_URL and LLM_MODEL_NAME.
func NewOllamaClient() (*OllamaClient, error) {
	baseURL := os.Getenv("OLLAMA_BASE_URL")
	model := os.Getenv("LLM_MODEL_NAME")
	if baseURL == "" {
		return nil, fmt.Errorf("OLLAMA_BASE_URL environment variable not set")
	}
	if model == "" {
		slog.Warn("LLM_MODEL_NAME not set, defaulting to gpt-oss")
		model = "gpt-oss"
	}
	baseURL = strings.TrimSuffix(baseURL, "/")
	slog.Info("Initializing Ollama client", "base_url", baseURL, "model", model)
	return &OllamaClient{
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		baseURL:    baseURL,
		model:      model,
	}, nil
}

func (o *OllamaClient) options(params GenerationParams) map[string]any {
	options := make(map[string]any)
	if params.Temperature != nil {
		options["temperature"] = *params.Temperature
	} else {
		options["temperature"] = float32(0.2)
	}
	if params.TopK != nil {
		options["top_k"] = *params.TopK
	} else {
		options["top_k"] = 20
	}
	if params.TopP != nil {
		options["top_p"] = *params.TopP
	} else {
		options["top_p"] = float32(0.9)
	}
	if params.MaxTokens != nil {
		options["num_predict"] = *params.MaxTokens
	} else {
		options["num_predict"] = 8192
	}
	if len(params.Stop) > 0 {
		options["stop"] = params.Stop
	}
	return options
}

func (o *OllamaClient) post(ctx context.Context, url string, payload any, out any) error {
	reqBodyBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request to Ollama: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(reqBodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request to Ollama: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("Ollama API call failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read Ollama response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		slog.Error("Ollama returned non-200 status", "status", resp.StatusCode, "body", string(body))
		return fmt.Errorf("Ollama returned status %d", resp.StatusCode)
	}
	return json.Unmarshal(body, out)
}

// Generate implements the LLMClient interface.
func (o *OllamaClient) Generate(ctx context.Context, prompt string,
	params GenerationParams) (string, error) {

	ctx, span := tracer.Start(ctx, "OllamaClient.Generate")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", o.model))
	slog.Debug("Generating text via Ollama", "model", o.model)

	payload := ollamaGenerateRequest{
		Model:   o.model,
		Prompt:  prompt,
		Stream:  false,
		Options: o.options(params),
	}
	var parsed ollamaGenerateResponse
	if err := o.post(ctx, o.baseURL+"/api/generate", payload, &parsed); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return parsed.Response, nil
}

// Chat implements the LLMClient interface.
func (o *OllamaClient) Chat(ctx context.Context, system string, messages []ChatMessage,
	params GenerationParams) (string, error) {

	ctx, span := tracer.Start(ctx, "OllamaClient.Chat")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", o.model))

	converted := make([]ollamaChatMessage, 0, len(messages)+1)
	if system != "" {
		converted = append(converted, ollamaChatMessage{Role: "system", Content: system})
	}
	for _, m := range messages {
		converted = append(converted, ollamaChatMessage{Role: m.Role, Content: m.Content})
	}
	payload := ollamaChatRequest{
		Model:    o.model,
		Messages: converted,
		Stream:   false,
		Options:  o.options(params),
	}
	var parsed ollamaChatResponse
	if err := o.post(ctx, o.baseURL+"/api/chat", payload, &parsed); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return parsed.Message.Content, nil
}
