// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm provides the model-agnostic client used by the interview
// agents. Backends are selected by LLM_BACKEND_TYPE: openai, anthropic,
// ollama, or local (llama.cpp server).
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"os"
)

// GenerationParams are the optional sampling knobs forwarded to the backend.
// Nil pointers mean "use the provider default".
type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopK        *int     `json:"top_k"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// ChatMessage is one turn passed to Chat. Role is "user" or "assistant".
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// LLMClient defines the standard interface for any LLM backend.
//
// Generate runs a single-prompt completion; Chat runs a multi-turn
// conversation under a system prompt. Both block until the provider
// responds or ctx is cancelled.
type LLMClient interface {
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)
	Chat(ctx context.Context, system string, messages []ChatMessage, params GenerationParams) (string, error)
}

// NewFromEnv constructs the backend named by LLM_BACKEND_TYPE.
// Unset or unknown values default to the local llama.cpp backend.
func NewFromEnv() (LLMClient, error) {
	backend := os.Getenv("LLM_BACKEND_TYPE")
	switch backend {
	case "openai":
		slog.Info("Using OpenAI LLM backend")
		return NewOpenAIClient()
	case "claude", "anthropic":
		slog.Info("Using Anthropic (Claude) LLM backend")
		return NewAnthropicClient()
	case "ollama":
		slog.Info("Using Ollama LLM backend")
		return NewOllamaClient()
	case "local":
		slog.Info("Using Local Llama.cpp LLM backend")
		return NewLocalLlamaCppClient()
	default:
		slog.Warn("LLM_BACKEND_TYPE not set or invalid, defaulting to local", "backend", backend)
		return NewLocalLlamaCppClient()
	}
}

// flattenChat renders a chat transcript into a single prompt for completion-
// only backends.
func flattenChat(system string, messages []ChatMessage) string {
	out := ""
	if system != "" {
		out = system + "\n\n"
	}
	for _, m := range messages {
		switch m.Role {
		case "assistant":
			out += fmt.Sprintf("Assistant: %s\n", m.Content)
		default:
			out += fmt.Sprintf("User: %s\n", m.Content)
		}
	}
	out += "Assistant:"
	return out
}
