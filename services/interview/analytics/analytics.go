// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package analytics ships per-turn and per-summary measurements to InfluxDB.
// The sink is fire-and-forget: writes are batched asynchronously and
// failures only log. A nil *Sink is a valid no-op, so callers never branch
// on whether analytics is configured.
package analytics

import (
	"log/slog"
	"os"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
)

// Measurement names.
const (
	measurementTurn    = "interview_turn"
	measurementSummary = "summary_generation"
)

// Sink writes interview telemetry points.
type Sink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
}

// NewFromEnv returns a sink when INFLUXDB_URL and INFLUXDB_TOKEN are both
// set, nil otherwise. Org and bucket default to aleutian / interviews.
func NewFromEnv() *Sink {
	url := os.Getenv("INFLUXDB_URL")
	token := os.Getenv("INFLUXDB_TOKEN")
	if url == "" || token == "" {
		slog.Info("Analytics sink disabled: InfluxDB not configured")
		return nil
	}
	org := os.Getenv("INFLUXDB_ORG")
	if org == "" {
		org = "aleutian"
	}
	bucket := os.Getenv("INFLUXDB_BUCKET")
	if bucket == "" {
		bucket = "interviews"
	}

	client := influxdb2.NewClient(url, token)
	writeAPI := client.WriteAPI(org, bucket)

	// Drain the async error channel so write failures surface in the logs
	// instead of stalling the batcher.
	go func() {
		for err := range writeAPI.Errors() {
			slog.Warn("Analytics write failed", "error", err)
		}
	}()

	slog.Info("Analytics sink initialized", "url", url, "org", org, "bucket", bucket)
	return &Sink{client: client, writeAPI: writeAPI}
}

// RecordTurn writes one interview_turn point.
func (s *Sink) RecordTurn(sessionID, phase string, askedCount int, latency time.Duration) {
	if s == nil {
		return
	}
	p := influxdb2.NewPoint(
		measurementTurn,
		map[string]string{"phase": phase},
		map[string]interface{}{
			"session_id":  sessionID,
			"asked_count": askedCount,
			"latency_ms":  latency.Milliseconds(),
		},
		time.Now(),
	)
	s.writeAPI.WritePoint(p)
}

// RecordSummary writes one summary_generation point.
func (s *Sink) RecordSummary(sessionID string, duration time.Duration, resourceCount int, failed bool) {
	if s == nil {
		return
	}
	status := "completed"
	if failed {
		status = "error"
	}
	p := influxdb2.NewPoint(
		measurementSummary,
		map[string]string{"status": status},
		map[string]interface{}{
			"session_id":     sessionID,
			"duration_ms":    duration.Milliseconds(),
			"resource_count": resourceCount,
		},
		time.Now(),
	)
	s.writeAPI.WritePoint(p)
}

// Close flushes pending points and releases the client.
func (s *Sink) Close() {
	if s == nil {
		return
	}
	s.writeAPI.Flush()
	s.client.Close()
}
