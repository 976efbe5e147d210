// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// newTestMetrics builds an InterviewMetrics against a private registry so
// tests do not collide with the global one.
func newTestMetrics(t *testing.T) *InterviewMetrics {
	t.Helper()
	reg := prometheus.NewRegistry()

	m := &InterviewMetrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace, Subsystem: interviewSubsystem,
				Name: "requests_total", Help: "t",
			},
			[]string{"endpoint", "status"},
		),
		TurnDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace, Subsystem: interviewSubsystem,
				Name: "turn_duration_seconds", Help: "t",
				Buckets: []float64{1, 10},
			},
			[]string{"phase"},
		),
		ActiveSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace, Subsystem: interviewSubsystem,
				Name: "active_sessions", Help: "t",
			},
		),
		SummaryDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace, Subsystem: interviewSubsystem,
				Name: "summary_duration_seconds", Help: "t",
				Buckets: []float64{1, 10},
			},
			[]string{"status"},
		),
		SpeechTasksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace, Subsystem: interviewSubsystem,
				Name: "speech_tasks_total", Help: "t",
			},
			[]string{"task_type", "status"},
		),
		RateLimitRejectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace, Subsystem: interviewSubsystem,
				Name: "rate_limit_rejections_total", Help: "t",
			},
			[]string{"provider"},
		),
	}

	reg.MustRegister(m.RequestsTotal, m.TurnDurationSeconds, m.ActiveSessions,
		m.SummaryDurationSeconds, m.SpeechTasksTotal, m.RateLimitRejectionsTotal)
	return m
}

func TestRecordRequestStatusLabels(t *testing.T) {
	m := newTestMetrics(t)
	m.RecordRequest("message", true)
	m.RecordRequest("message", true)
	m.RecordRequest("message", false)

	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("message", "success")); got != 2 {
		t.Errorf("success count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("message", "error")); got != 1 {
		t.Errorf("error count = %v, want 1", got)
	}
}

func TestActiveSessionsGauge(t *testing.T) {
	m := newTestMetrics(t)
	m.SetActiveSessions(7)
	if got := testutil.ToFloat64(m.ActiveSessions); got != 7 {
		t.Errorf("gauge = %v, want 7", got)
	}
	m.SetActiveSessions(0)
	if got := testutil.ToFloat64(m.ActiveSessions); got != 0 {
		t.Errorf("gauge = %v, want 0", got)
	}
}

func TestSpeechAndRateLimitCounters(t *testing.T) {
	m := newTestMetrics(t)
	m.RecordSpeechTask("stt_batch", "completed")
	m.RecordSpeechTask("stt_batch", "error")
	m.RecordRateLimitRejection("tts")

	if got := testutil.ToFloat64(m.SpeechTasksTotal.WithLabelValues("stt_batch", "completed")); got != 1 {
		t.Errorf("speech task count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.RateLimitRejectionsTotal.WithLabelValues("tts")); got != 1 {
		t.Errorf("rejection count = %v, want 1", got)
	}
}

func TestSummaryStatusMapping(t *testing.T) {
	m := newTestMetrics(t)
	m.RecordSummary(12.5, true)
	m.RecordSummary(3.0, false)
	// One series per status label.
	if got := testutil.CollectAndCount(m.SummaryDurationSeconds); got != 2 {
		t.Errorf("summary histogram series = %d, want 2", got)
	}
}

func TestTurnDurationByPhase(t *testing.T) {
	m := newTestMetrics(t)
	m.RecordTurn("questioning", 1.2)
	m.RecordTurn("questioning", 4.8)
	m.RecordTurn("introducing", 0.4)
	if got := testutil.CollectAndCount(m.TurnDurationSeconds); got != 2 {
		t.Errorf("turn histogram series = %d, want 2", got)
	}
}
