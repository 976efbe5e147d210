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

type LocalLlamaCppClient struct {
	httpClient *http.Client
	baseURL    string
}

type localLlamaCppPayload struct {
	Prompt      string   `json:"prompt"`
	NPredict    int      `json:"n_predict"`
	Temperature *float32 `json:"temperature,omitempty"`
	TopK        *int     `json:"top_k,omitempty"`
	TopP        *float32 `json:"top_p,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

type llamaCppResp struct {
	Content string `json:"content"`
}

// NewLocalLlamaCppClient reads LLM_SERVICE_URL_BASE.
func NewLocalLlamaCppClient() (*LocalLlamaCppClient, error) {
	baseURL := os.Getenv("LLM_SERVICE_URL_BASE")
	if baseURL == "" {
		return nil, fmt.Errorf("LLM_SERVICE_URL_BASE environment variable not set")
	}
	baseURL = strings.TrimSuffix(baseURL, "/")
	return &LocalLlamaCppClient{
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		baseURL:    baseURL,
	}, nil
}

// Generate implements the LLMClient interface.
func (l *LocalLlamaCppClient) Generate(ctx context.Context, prompt string,
	params GenerationParams) (string, error) {

	completionURL := l.baseURL + "/completion"
	payload := localLlamaCppPayload{Prompt: prompt}
	if params.MaxTokens != nil {
		payload.NPredict = *params.MaxTokens
	} else {
		payload.NPredict = 2048
	}
	if params.Temperature != nil {
		payload.Temperature = params.Temperature
	} else {
		var defaultTemperature float32 = 0.2
		payload.Temperature = &defaultTemperature
	}
	if params.TopK != nil {
		payload.TopK = params.TopK
	} else {
		defaultTopK := 20
		payload.TopK = &defaultTopK
	}
	if params.TopP != nil {
		payload.TopP = params.TopP
	} else {
		var defaultTopP float32 = 0.9
		payload.TopP = &defaultTopP
	}
	if len(params.Stop) > 0 {
		payload.Stop = params.Stop
	}

	reqBodyBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal the payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, completionURL,
		bytes.NewBuffer(reqBodyBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create request to the llm: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	slog.Debug("Calling Llama.cpp Generate", "url", completionURL)
	resp, err := l.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to make a request to the llm: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read the llm's response: %w", err)
	}
	var llmResponseBody llamaCppResp
	if err := json.Unmarshal(body, &llmResponseBody); err != nil {
		return "", fmt.Errorf("failed to parse the llm response: %w", err)
	}
	return llmResponseBody.Content, nil
}

// Chat implements the LLMClient interface. The llama.cpp completion endpoint
// has no chat schema, so the transcript is flattened into a single prompt.
func (l *LocalLlamaCppClient) Chat(ctx context.Context, system string, messages []ChatMessage,
	params GenerationParams) (string, error) {
	return l.Generate(ctx, flattenChat(system, messages), params)
}
