// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability wires OpenTelemetry tracing, the OTel/Prometheus
// metric pipeline, and the interview service's Prometheus counters.
//
// # Description
//
// Init sets the global TracerProvider and MeterProvider from environment-
// driven config. The Prometheus exporter registers with the default registry
// so MetricsHandler() serves both OTel instruments and the promauto counters
// defined in metrics.go.
package observability

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

var (
	// ErrNilContext is returned when Init receives a nil context.
	ErrNilContext = errors.New("telemetry: nil context")

	// ErrUnknownExporter is returned for an unrecognized exporter name.
	ErrUnknownExporter = errors.New("telemetry: unknown exporter")
)

// Config controls the telemetry stack. Build it with DefaultConfig().
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string

	// TraceExporter: "otlp", "stdout", or "none".
	TraceExporter string

	// MetricExporter: "prometheus", "stdout", or "none".
	MetricExporter string

	OTLPEndpoint string
	OTLPInsecure bool
}

// DefaultConfig reads the standard OTEL_* environment variables with
// development-friendly fallbacks.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "aleutian-interview",
		ServiceVersion: "1.0.0",
		Environment:    getEnvOr("APP_ENV", "development"),
		TraceExporter:  getEnvOr("OTEL_TRACES_EXPORTER", "none"),
		MetricExporter: getEnvOr("OTEL_METRICS_EXPORTER", "prometheus"),
		OTLPEndpoint:   getEnvOr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTLPInsecure:   true,
	}
}

// Init configures the global tracer and meter providers. The returned
// shutdown function must be called on exit.
func Init(ctx context.Context, cfg Config) (shutdown func(context.Context) error, err error) {
	if ctx == nil {
		return nil, ErrNilContext
	}

	var shutdownFuncs []func(context.Context) error
	shutdown = func(ctx context.Context) error {
		var errs []error
		for _, fn := range shutdownFuncs {
			if err := fn(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		if len(errs) > 0 {
			return fmt.Errorf("telemetry shutdown errors: %v", errs)
		}
		return nil
	}

	res := resource.NewWithAttributes(
		"",
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
		attribute.String("deployment.environment", cfg.Environment),
	)

	if cfg.TraceExporter != "none" {
		tp, err := initTracer(ctx, cfg, res)
		if err != nil {
			return nil, fmt.Errorf("init tracer: %w", err)
		}
		otel.SetTracerProvider(tp)
		shutdownFuncs = append(shutdownFuncs, tp.Shutdown)
	}

	if cfg.MetricExporter != "none" {
		mp, err := initMeter(cfg, res)
		if err != nil {
			return nil, fmt.Errorf("init meter: %w", err)
		}
		otel.SetMeterProvider(mp)
		shutdownFuncs = append(shutdownFuncs, mp.Shutdown)

		if err := registerRuntimeInstruments(); err != nil {
			return nil, fmt.Errorf("register runtime instruments: %w", err)
		}
	}

	return shutdown, nil
}

// registerRuntimeInstruments publishes process-level OTel instruments
// through the global meter.
func registerRuntimeInstruments() error {
	meter := otel.Meter("interview.observability")
	start := time.Now()
	_, err := meter.Float64ObservableGauge("interview.uptime",
		otelmetric.WithUnit("s"),
		otelmetric.WithDescription("Seconds since service start."),
		otelmetric.WithFloat64Callback(
			func(_ context.Context, o otelmetric.Float64Observer) error {
				o.Observe(time.Since(start).Seconds())
				return nil
			}))
	return err
}

func initTracer(ctx context.Context, cfg Config, res *resource.Resource) (*trace.TracerProvider, error) {
	var exporter trace.SpanExporter
	var err error

	switch cfg.TraceExporter {
	case "otlp":
		creds := insecure.NewCredentials()
		if !cfg.OTLPInsecure {
			creds = credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
		}
		conn, dialErr := grpc.NewClient(cfg.OTLPEndpoint,
			grpc.WithTransportCredentials(creds))
		if dialErr != nil {
			return nil, fmt.Errorf("create gRPC connection: %w", dialErr)
		}
		exporter, err = otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	case "stdout":
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownExporter, cfg.TraceExporter)
	}
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	return trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
		trace.WithSampler(trace.AlwaysSample()),
	), nil
}

var (
	prometheusHandler   http.Handler
	prometheusHandlerMu sync.RWMutex
)

// MetricsHandler returns the Prometheus scrape handler, or nil when the
// Prometheus exporter is not in use.
func MetricsHandler() http.Handler {
	prometheusHandlerMu.RLock()
	defer prometheusHandlerMu.RUnlock()
	return prometheusHandler
}

func initMeter(cfg Config, res *resource.Resource) (*metric.MeterProvider, error) {
	switch cfg.MetricExporter {
	case "prometheus":
		exporter, err := promexporter.New()
		if err != nil {
			return nil, fmt.Errorf("create prometheus exporter: %w", err)
		}
		// The exporter registers with the default prometheus registry, so
		// promhttp.Handler() serves OTel instruments and promauto counters
		// from one endpoint.
		prometheusHandlerMu.Lock()
		prometheusHandler = promhttp.Handler()
		prometheusHandlerMu.Unlock()

		return metric.NewMeterProvider(
			metric.WithResource(res),
			metric.WithReader(exporter),
		), nil

	case "stdout":
		exporter, err := stdoutmetric.New(stdoutmetric.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("create stdout metric exporter: %w", err)
		}
		return metric.NewMeterProvider(
			metric.WithResource(res),
			metric.WithReader(metric.NewPeriodicReader(exporter)),
		), nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownExporter, cfg.MetricExporter)
	}
}

func getEnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
