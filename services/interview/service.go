// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package interview assembles the interview simulation service.
//
// This package contains the Service type that wires together every
// component: the session registry, the durable store gateway, the LLM
// client, the speech workflow tracker, rate limiting, observability,
// and the HTTP surface.
//
// # Enterprise Integration
//
// The service supports dependency injection via extensions.ServiceOptions,
// enabling downstream builds to provide custom implementations of:
//   - AuthProvider: Bearer-token authentication
//   - AuditLogger: Compliance audit logging
//
// # Usage
//
// Open source (uses no-op defaults):
//
//	svc, err := interview.New(interview.ConfigFromEnv(), nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(svc.Run())
package interview

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/AleutianAI/AleutianInterview/pkg/extensions"
	"github.com/AleutianAI/AleutianInterview/services/interview/agents"
	"github.com/AleutianAI/AleutianInterview/services/interview/analytics"
	"github.com/AleutianAI/AleutianInterview/services/interview/events"
	"github.com/AleutianAI/AleutianInterview/services/interview/handlers"
	"github.com/AleutianAI/AleutianInterview/services/interview/observability"
	"github.com/AleutianAI/AleutianInterview/services/interview/ratelimit"
	"github.com/AleutianAI/AleutianInterview/services/interview/registry"
	"github.com/AleutianAI/AleutianInterview/services/interview/routes"
	"github.com/AleutianAI/AleutianInterview/services/interview/search"
	"github.com/AleutianAI/AleutianInterview/services/interview/session"
	"github.com/AleutianAI/AleutianInterview/services/interview/speech"
	"github.com/AleutianAI/AleutianInterview/services/interview/store"
	"github.com/AleutianAI/AleutianInterview/services/llm"
	"github.com/gin-gonic/gin"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

// =============================================================================
// Configuration
// =============================================================================

// Config holds interview service configuration. Build it with
// ConfigFromEnv() or populate fields directly for tests.
type Config struct {
	// Port is the HTTP server port. Default: 12220
	Port int

	// Environment is the deployment environment label ("development",
	// "production"). Production enables the TTS warmup pass.
	Environment string

	// GinMode sets the Gin framework mode. Default: GIN_MODE or "release".
	GinMode string

	// IdleSweepInterval is how often the registry evicts idle sessions.
	// Default: 5 minutes.
	IdleSweepInterval time.Duration

	// IdleTimeoutMinutes is how long a session may sit untouched before
	// the sweeper releases it. Default: registry.DefaultMaxIdleMinutes.
	IdleTimeoutMinutes int

	// RateLimit configures the speech/search governor capacities.
	RateLimit ratelimit.Config

	// SpeechTaskSweepInterval is how often finished speech task records
	// are purged. Default: 1 hour.
	SpeechTaskSweepInterval time.Duration

	// SpeechTaskMaxAge is how old a finished speech task must be before
	// the sweeper deletes it. Default: 24 hours.
	SpeechTaskMaxAge time.Duration
}

// ConfigFromEnv resolves the service configuration from environment
// variables, warning when a set variable cannot be parsed.
func ConfigFromEnv() Config {
	return Config{
		Port:               getEnvInt("INTERVIEW_PORT", 12220),
		Environment:        getEnvString("APP_ENV", "development"),
		GinMode:            getEnvString("GIN_MODE", gin.ReleaseMode),
		IdleSweepInterval:  getEnvDuration("IDLE_SWEEP_INTERVAL_MINUTES", 5*time.Minute),
		IdleTimeoutMinutes: getEnvInt("IDLE_TIMEOUT_MINUTES", registry.DefaultMaxIdleMinutes),
		RateLimit: ratelimit.Config{
			STTBatchCapacity:  getEnvInt("RATE_LIMIT_STT_BATCH", ratelimit.DefaultSTTBatchCapacity),
			TTSCapacity:       getEnvInt("RATE_LIMIT_TTS", ratelimit.DefaultTTSCapacity),
			STTStreamCapacity: getEnvInt("RATE_LIMIT_STT_STREAM", ratelimit.DefaultSTTStreamCapacity),
			SearchCapacity:    getEnvInt("RATE_LIMIT_SEARCH", ratelimit.DefaultSearchCapacity),
			AcquireTimeout:    getEnvDuration("RATE_ACQUIRE_TIMEOUT_SECONDS", ratelimit.DefaultAcquireTimeout),
		},
		SpeechTaskSweepInterval: getEnvDuration("SPEECH_TASK_SWEEP_INTERVAL_MINUTES", time.Hour),
		SpeechTaskMaxAge:        getEnvDuration("SPEECH_TASK_MAX_AGE_MINUTES", 24*time.Hour),
	}
}

func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 12220
	}
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.GinMode == "" {
		cfg.GinMode = gin.ReleaseMode
	}
	if cfg.IdleSweepInterval == 0 {
		cfg.IdleSweepInterval = 5 * time.Minute
	}
	if cfg.IdleTimeoutMinutes == 0 {
		cfg.IdleTimeoutMinutes = registry.DefaultMaxIdleMinutes
	}
	if cfg.SpeechTaskSweepInterval == 0 {
		cfg.SpeechTaskSweepInterval = time.Hour
	}
	if cfg.SpeechTaskMaxAge == 0 {
		cfg.SpeechTaskMaxAge = 24 * time.Hour
	}
	return cfg
}

// =============================================================================
// Service
// =============================================================================

// Service is a fully wired interview backend. Construct with New; Run
// blocks until a shutdown signal arrives.
type Service struct {
	config Config
	opts   extensions.ServiceOptions

	router   *gin.Engine
	gateway  store.Gateway
	registry *registry.Registry
	tracker  *speech.Tracker
	sys      *handlers.System

	packStore *agents.PackStore
	sink      *analytics.Sink

	telemetryShutdown func(context.Context) error

	sweepDone chan struct{}
}

// New initializes every component of the interview service:
//
//  1. Telemetry (tracing + metric exporters) and Prometheus counters
//  2. The durable store gateway (SESSION_STORE_BACKEND)
//  3. The LLM client (LLM_BACKEND_TYPE)
//  4. Question pack store with optional hot reload
//  5. Rate governor, resource finder, analytics sink, event bus
//  6. Session registry and speech tracker
//  7. HTTP routes with extension options
//
// If opts is nil, extensions.DefaultOptions() is used. The resource
// finder and analytics sink are optional; their absence only disables
// resource suggestions and per-turn telemetry.
func New(cfg Config, opts *extensions.ServiceOptions) (*Service, error) {
	ctx := context.Background()

	s := &Service{
		config:    applyConfigDefaults(cfg),
		sweepDone: make(chan struct{}),
	}
	if opts != nil {
		s.opts = *opts
	} else {
		s.opts = extensions.DefaultOptions()
	}

	telemetryCfg := observability.DefaultConfig()
	telemetryCfg.ServiceVersion = Version
	telemetryCfg.Environment = s.config.Environment
	shutdown, err := observability.Init(ctx, telemetryCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	s.telemetryShutdown = shutdown
	observability.InitMetrics()

	s.gateway, err = store.NewFromEnv(ctx)
	if err != nil {
		s.cleanup(ctx)
		return nil, fmt.Errorf("failed to initialize session store: %w", err)
	}

	llmClient, err := llm.NewFromEnv()
	if err != nil {
		s.cleanup(ctx)
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}

	s.packStore, err = agents.NewPackStore()
	if err != nil {
		s.cleanup(ctx)
		return nil, fmt.Errorf("failed to load question pack: %w", err)
	}

	governor := ratelimit.NewGovernor(s.config.RateLimit)

	// Resource search is optional; the coach falls back to its curated
	// catalog when no finder is available.
	var finder agents.ResourceFinder
	if f, err := search.NewFinder(governor); err != nil {
		slog.Warn("Resource search unavailable, using fallback catalog only",
			"error", err)
	} else {
		finder = f
	}

	s.sink = analytics.NewFromEnv()
	bus := events.NewBus()

	s.registry = registry.New(s.gateway, session.Deps{
		LLM:        llmClient,
		Bus:        bus,
		Pack:       s.packStore.Pack(),
		PackSource: s.packStore.Pack,
		Finder:     finder,
		Analytics:  s.sink,
	})
	s.tracker = speech.NewTracker(ctx, s.gateway, governor)

	s.sys = &handlers.System{
		Registry:      s.registry,
		Gateway:       s.gateway,
		Bus:           bus,
		Tracker:       s.tracker,
		LLMConfigured: os.Getenv("LLM_BACKEND_TYPE") != "",
		Environment:   s.config.Environment,
		Version:       Version,
		StartedAt:     time.Now(),
	}

	gin.SetMode(s.config.GinMode)
	s.router = gin.New()
	routes.SetupRoutes(s.router, routes.Deps{
		Registry:       s.registry,
		Gateway:        s.gateway,
		Tracker:        s.tracker,
		System:         s.sys,
		Options:        s.opts,
		MaxIdleMinutes: s.config.IdleTimeoutMinutes,
		Tracing:        telemetryCfg.TraceExporter != "none",
	})

	return s, nil
}

// Router returns the underlying Gin engine for integration tests.
func (s *Service) Router() *gin.Engine {
	return s.router
}

// Run starts the background workers and the HTTP server, blocking until
// SIGINT/SIGTERM or a fatal server error. Shutdown drains in-flight
// requests, persists the session working set, and releases resources.
func (s *Service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer s.cleanup(context.Background())

	s.registry.StartCleanupTask(s.config.IdleSweepInterval, s.config.IdleTimeoutMinutes)
	go s.sweepSpeechTasks(ctx)

	if s.config.Environment == "production" {
		go s.warmupTTS(ctx)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting interview server",
			"port", s.config.Port,
			"environment", s.config.Environment,
			"version", Version)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	slog.Info("Shutdown signal received, draining requests")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}
	return nil
}

// warmupTTS primes the synthesis provider once so the first real request
// does not pay the cold-start cost. The result feeds /health.
func (s *Service) warmupTTS(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("TTS warmup panicked", "panic", r)
		}
	}()

	dur, err := s.tracker.Warmup(ctx)
	s.sys.SetWarmup(dur, err)
	if err != nil {
		slog.Warn("TTS warmup failed", "error", err)
		return
	}
	slog.Info("TTS warmup complete", "duration_ms", dur.Milliseconds())
}

// sweepSpeechTasks periodically deletes finished speech task records.
func (s *Service) sweepSpeechTasks(ctx context.Context) {
	ticker := time.NewTicker(s.config.SpeechTaskSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.sweepDone:
			return
		case <-ticker.C:
			n, err := s.tracker.CleanupTasks(ctx, s.config.SpeechTaskMaxAge)
			if err != nil {
				slog.Warn("Speech task sweep failed", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("Swept finished speech tasks", "deleted", n)
			}
		}
	}
}

// cleanup releases all resources. Safe to call with partially
// initialized state after a failed New.
func (s *Service) cleanup(ctx context.Context) {
	select {
	case <-s.sweepDone:
	default:
		close(s.sweepDone)
	}

	if s.registry != nil {
		s.registry.StopCleanupTask()
		s.registry.ReleaseAll(ctx)
	}
	if s.packStore != nil {
		s.packStore.Close()
	}
	if s.sink != nil {
		s.sink.Close()
	}
	speech.PurgeSecureMemory()
	if s.gateway != nil {
		if err := s.gateway.Close(); err != nil {
			slog.Warn("Store close error", "error", err)
		}
	}
	if s.telemetryShutdown != nil {
		if err := s.telemetryShutdown(ctx); err != nil {
			slog.Warn("Telemetry shutdown error", "error", err)
		}
	}
}

// =============================================================================
// Environment Helpers
// =============================================================================

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default,
// warning when a set value cannot be parsed.
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intVal, err := strconv.Atoi(value)
	if err != nil {
		slog.Warn("Invalid integer in environment, using default",
			"key", key, "value", value, "default", defaultValue)
		return defaultValue
	}
	return intVal
}

// getEnvDuration reads an *_MINUTES or *_SECONDS variable as a duration,
// inferring the unit from the key suffix. Defaults apply when unset or
// unparsable.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		slog.Warn("Invalid duration in environment, using default",
			"key", key, "value", value, "default", defaultValue)
		return defaultValue
	}
	unit := time.Minute
	if len(key) > 8 && key[len(key)-8:] == "_SECONDS" {
		unit = time.Second
	}
	return time.Duration(n) * unit
}
