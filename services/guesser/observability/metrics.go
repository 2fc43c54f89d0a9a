// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides metrics and tracing for test generation.
//
// # Description
//
// Prometheus metrics count generation attempts by outcome, failures by
// error kind, files created by kind, and time spent per attempt. Spans are
// emitted through the global OpenTelemetry tracer provider, which Init
// configures for the CLI.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

// Namespace for all metrics
const metricsNamespace = "testguess"

// Subsystem for per-attempt metrics
const generationSubsystem = "generation"

// Metrics holds the Prometheus collectors for the generation pipeline.
//
// # Fields
//
//   - AttemptsTotal: Attempts by outcome (generated, exists, skipped, ...).
//   - ErrorsTotal: Failures by error kind.
//   - DurationSeconds: Wall time of an attempt that reached classification.
//   - FilesCreatedTotal: Files written by kind (marker, test).
type Metrics struct {
	AttemptsTotal     *prometheus.CounterVec
	ErrorsTotal       *prometheus.CounterVec
	DurationSeconds   prometheus.Histogram
	FilesCreatedTotal *prometheus.CounterVec
}

// NewMetrics creates and registers the collectors on reg.
//
// # Inputs
//
//   - reg: Registry to register on. Nil means the default registerer.
//
// # Limitations
//
//   - Panics on duplicate registration, as promauto does. Use a fresh
//     prometheus.NewRegistry() per instance in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		AttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: generationSubsystem,
				Name:      "attempts_total",
				Help:      "Total generation attempts by outcome",
			},
			[]string{"outcome"},
		),

		ErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: generationSubsystem,
				Name:      "errors_total",
				Help:      "Total generation failures by error kind",
			},
			[]string{"kind"},
		),

		DurationSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: generationSubsystem,
				Name:      "duration_seconds",
				Help:      "Time spent on a generation attempt in seconds",
				Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
		),

		FilesCreatedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "files_created_total",
				Help:      "Total files created by kind",
			},
			[]string{"kind"},
		),
	}
}

// =============================================================================
// Helper Methods
// =============================================================================

// RecordAttempt counts one attempt. Nil-safe.
func (m *Metrics) RecordAttempt(outcome string) {
	if m == nil {
		return
	}
	m.AttemptsTotal.WithLabelValues(outcome).Inc()
}

// RecordError counts one failure of the given kind. Nil-safe.
func (m *Metrics) RecordError(kind string) {
	if m == nil || kind == "" {
		return
	}
	m.ErrorsTotal.WithLabelValues(kind).Inc()
}

// RecordDuration observes the time since start. Nil-safe.
func (m *Metrics) RecordDuration(start time.Time) {
	if m == nil {
		return
	}
	m.DurationSeconds.Observe(time.Since(start).Seconds())
}

// RecordFiles adds n created files of the given kind. Nil-safe.
func (m *Metrics) RecordFiles(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.FilesCreatedTotal.WithLabelValues(kind).Add(float64(n))
}
