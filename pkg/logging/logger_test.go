// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
		"  info ": slog.LevelInfo,
	}
	for name, want := range cases {
		if got := ParseLevel(name); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestNewJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{JSON: true, Service: "interview", Output: &buf})

	logger.Info("session created", "session_id", "abc-123")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if entry["msg"] != "session created" {
		t.Errorf("msg = %v", entry["msg"])
	}
	if entry["service"] != "interview" {
		t.Errorf("service attribute = %v, want interview", entry["service"])
	}
	if entry["session_id"] != "abc-123" {
		t.Errorf("session_id = %v", entry["session_id"])
	}
}

func TestNewTextOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Service: "interview", Output: &buf})

	logger.Info("warmup complete", "duration_ms", 42)

	out := buf.String()
	if !strings.Contains(out, "warmup complete") || !strings.Contains(out, "duration_ms=42") {
		t.Errorf("unexpected text output: %s", out)
	}
	if strings.HasPrefix(strings.TrimSpace(out), "{") {
		t.Error("text format produced JSON")
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelWarn, JSON: true, Output: &buf})

	logger.Debug("dropped")
	logger.Info("dropped too")
	logger.Warn("kept")

	lines := strings.Count(strings.TrimSpace(buf.String()), "\n") + 1
	if buf.Len() == 0 {
		t.Fatal("warn entry missing")
	}
	if lines != 1 {
		t.Errorf("expected 1 entry, got %d:\n%s", lines, buf.String())
	}
	if !strings.Contains(buf.String(), "kept") {
		t.Errorf("warn entry not written: %s", buf.String())
	}
}

func TestSetupInstallsDefault(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	Setup(Config{JSON: true, Output: &buf})

	slog.Info("through default")
	if !strings.Contains(buf.String(), "through default") {
		t.Errorf("default logger not installed: %s", buf.String())
	}
}
