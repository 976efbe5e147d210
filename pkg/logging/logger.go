// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logging provides structured logging for Aleutian components.
//
// The package is a thin layer over Go's standard library slog: it picks a
// handler, sets the minimum level, attaches the service attribute, and
// installs the result as the process-wide default so every package can use
// slog directly.
//
// # Output Format
//
// Two formats are supported:
//
//   - JSON: machine-parseable, one object per line. Used in production
//     (APP_ENV=production) and whenever stderr is not a terminal.
//   - Text: human-readable key=value pairs. Used during development when
//     stderr is an interactive terminal.
//
// # Basic Usage
//
//	logger := logging.Setup(logging.FromEnv("interview"))
//	logger.Info("starting service", "port", port)
//
// After Setup, plain slog calls anywhere in the process go through the
// same handler:
//
//	slog.Warn("session expired", "session_id", id)
//
// # Security Considerations
//
// This package does NOT automatically redact sensitive data.
// Callers must ensure PII, tokens, and secrets are not logged:
//
//	// BAD: logs sensitive data
//	slog.Info("auth", "token", authToken)
//
//	// GOOD: log metadata only
//	slog.Info("auth", "token_present", authToken != "")
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// Config controls handler selection and filtering.
type Config struct {
	// Level sets the minimum log level.
	//
	// Messages below this level are discarded.
	// Default: slog.LevelInfo
	Level slog.Level

	// Service identifies the component generating logs.
	//
	// This value is included in every log entry as the "service" attribute,
	// making it easy to filter logs by component in aggregated systems.
	Service string

	// JSON forces JSON output regardless of terminal detection.
	JSON bool

	// Output overrides the destination. Default: os.Stderr.
	// Tests inject a buffer here.
	Output io.Writer
}

// FromEnv builds a Config from the environment:
//
//   - LOG_LEVEL: "debug", "info", "warn", "error" (default "info")
//   - APP_ENV:   "production" forces JSON output
//
// Outside production, JSON is still used when stderr is not a terminal so
// that piped or containerized output stays machine-parseable.
func FromEnv(service string) Config {
	cfg := Config{
		Level:   ParseLevel(os.Getenv("LOG_LEVEL")),
		Service: service,
	}
	if os.Getenv("APP_ENV") == "production" || !isatty.IsTerminal(os.Stderr.Fd()) {
		cfg.JSON = true
	}
	return cfg
}

// ParseLevel maps a level name to its slog level. Unknown or empty names
// fall back to Info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup builds a logger from cfg and installs it as the slog default.
// It returns the logger for callers that prefer an explicit handle.
func Setup(cfg Config) *slog.Logger {
	logger := New(cfg)
	slog.SetDefault(logger)
	return logger
}

// New builds a logger from cfg without touching the process default.
func New(cfg Config) *slog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: cfg.Level}

	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	logger := slog.New(handler)
	if cfg.Service != "" {
		logger = logger.With("service", cfg.Service)
	}
	return logger
}
