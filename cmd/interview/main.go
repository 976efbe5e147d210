// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command interview starts the AleutianInterview HTTP server.
//
// This is the main entry point for the containerized interview service.
// It reads configuration from environment variables and starts the server.
//
// # Environment Variables
//
//   - INTERVIEW_PORT: HTTP server port (default: 12220)
//   - LLM_BACKEND_TYPE: LLM provider - local, openai, ollama, claude (default: local)
//   - SESSION_STORE_BACKEND: weaviate, badger, gcs, or memory (default: memory)
//   - APP_ENV: deployment environment; "production" enables the TTS warmup
//   - IDLE_TIMEOUT_MINUTES: idle session lifetime (default: 15)
//
// # Usage
//
//	# Build
//	go build -o interview ./cmd/interview
//
//	# Run
//	./interview
//
//	# Or via container
//	podman-compose up interview
package main

import (
	"log"
	"log/slog"

	"github.com/AleutianAI/AleutianInterview/pkg/logging"
	"github.com/AleutianAI/AleutianInterview/services/interview"
)

func main() {
	logging.Setup(logging.FromEnv("interview"))

	cfg := interview.ConfigFromEnv()
	slog.Info("Starting interview service",
		"port", cfg.Port,
		"environment", cfg.Environment,
		"idle_timeout_minutes", cfg.IdleTimeoutMinutes,
	)

	// Create the service with default (no-op) extension options.
	// Enterprise builds will pass custom ServiceOptions here.
	svc, err := interview.New(cfg, nil)
	if err != nil {
		log.Fatalf("Failed to create interview service: %v", err)
	}

	// Run the server (blocks until shutdown)
	if err := svc.Run(); err != nil {
		log.Fatalf("Interview service error: %v", err)
	}
}
