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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace   = "aleutian"
	interviewSubsystem = "interview"
)

// InterviewMetrics holds the Prometheus instruments for the interview
// service. Initialize once at startup via InitMetrics(); all operations are
// thread-safe through Prometheus's internal locking.
type InterviewMetrics struct {
	// RequestsTotal counts API requests by endpoint group and status.
	// Labels: endpoint (session, message, end, speech, files), status
	// (success, error)
	RequestsTotal *prometheus.CounterVec

	// TurnDurationSeconds measures one full message turn (interviewer reply
	// plus coach feedback). Labels: phase (introducing, questioning, ...)
	TurnDurationSeconds *prometheus.HistogramVec

	// ActiveSessions tracks sessions currently resident in the registry.
	ActiveSessions prometheus.Gauge

	// SummaryDurationSeconds measures background summary generation.
	// Labels: status (completed, error)
	SummaryDurationSeconds *prometheus.HistogramVec

	// SpeechTasksTotal counts speech workflows by type and terminal status.
	// Labels: task_type (stt_batch, stt_stream, tts), status
	SpeechTasksTotal *prometheus.CounterVec

	// RateLimitRejectionsTotal counts governor timeouts per provider.
	RateLimitRejectionsTotal *prometheus.CounterVec
}

// DefaultMetrics is the singleton initialized by InitMetrics().
var DefaultMetrics *InterviewMetrics

// InitMetrics registers all instruments with the default registry. Call once
// at startup; a second call panics on duplicate registration.
func InitMetrics() *InterviewMetrics {
	DefaultMetrics = &InterviewMetrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: interviewSubsystem,
				Name:      "requests_total",
				Help:      "Total API requests by endpoint group and status",
			},
			[]string{"endpoint", "status"},
		),

		TurnDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: interviewSubsystem,
				Name:      "turn_duration_seconds",
				Help:      "Duration of one full message turn in seconds",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60},
			},
			[]string{"phase"},
		),

		ActiveSessions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: interviewSubsystem,
				Name:      "active_sessions",
				Help:      "Sessions currently resident in the registry",
			},
		),

		SummaryDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: interviewSubsystem,
				Name:      "summary_duration_seconds",
				Help:      "Background summary generation duration in seconds",
				Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"status"},
		),

		SpeechTasksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: interviewSubsystem,
				Name:      "speech_tasks_total",
				Help:      "Speech workflows by type and terminal status",
			},
			[]string{"task_type", "status"},
		),

		RateLimitRejectionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: interviewSubsystem,
				Name:      "rate_limit_rejections_total",
				Help:      "Governor acquisition timeouts per provider",
			},
			[]string{"provider"},
		),
	}
	return DefaultMetrics
}

// RecordRequest records one completed API request.
func (m *InterviewMetrics) RecordRequest(endpoint string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.RequestsTotal.WithLabelValues(endpoint, status).Inc()
}

// RecordTurn records one message turn's duration by interviewer phase.
func (m *InterviewMetrics) RecordTurn(phase string, seconds float64) {
	m.TurnDurationSeconds.WithLabelValues(phase).Observe(seconds)
}

// SetActiveSessions updates the resident-session gauge.
func (m *InterviewMetrics) SetActiveSessions(n int) {
	m.ActiveSessions.Set(float64(n))
}

// RecordSummary records a finished summary generation.
func (m *InterviewMetrics) RecordSummary(seconds float64, success bool) {
	status := "completed"
	if !success {
		status = "error"
	}
	m.SummaryDurationSeconds.WithLabelValues(status).Observe(seconds)
}

// RecordSpeechTask records a speech workflow reaching a terminal state.
func (m *InterviewMetrics) RecordSpeechTask(taskType, status string) {
	m.SpeechTasksTotal.WithLabelValues(taskType, status).Inc()
}

// RecordRateLimitRejection counts one governor timeout.
func (m *InterviewMetrics) RecordRateLimitRejection(provider string) {
	m.RateLimitRejectionsTotal.WithLabelValues(provider).Inc()
}
