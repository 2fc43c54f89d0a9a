// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/testguess/pkg/extensions"
	"github.com/AleutianAI/testguess/pkg/logging"
	"github.com/AleutianAI/testguess/services/guesser/capability"
	"github.com/AleutianAI/testguess/services/guesser/datatypes"
	"github.com/AleutianAI/testguess/services/guesser/layout"
	"github.com/AleutianAI/testguess/services/guesser/observability"
)

type fixture struct {
	root     string
	orch     *Orchestrator
	metrics  *observability.Metrics
	audit    *extensions.MemoryAuditLogger
	spans    *tracetest.SpanRecorder
	exporter *logging.BufferedExporter
}

func newFixture(t *testing.T, mutate func(*Options)) *fixture {
	t.Helper()
	f := &fixture{
		root:     t.TempDir(),
		metrics:  observability.NewMetrics(prometheus.NewRegistry()),
		audit:    extensions.NewMemoryAuditLogger(),
		spans:    tracetest.NewSpanRecorder(),
		exporter: logging.NewBufferedExporter(),
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(f.spans))

	opts := Options{
		Resolver:     layout.RootResolver{Settings: layout.SettingsMap{layout.SettingTestguessRoot: f.root}},
		Capabilities: capability.Set{CustomUsers: true, MarkupValidator: true},
		Logger:       logging.New(logging.Config{Quiet: true, Exporter: f.exporter}),
		Metrics:      f.metrics,
		Tracer:       tp.Tracer(observability.TracerName),
		Extensions:   extensions.DefaultOptions().WithAudit(f.audit),
	}
	if mutate != nil {
		mutate(&opts)
	}

	orch, err := New(opts)
	require.NoError(t, err)
	f.orch = orch
	return f
}

func indexInteraction() datatypes.Interaction {
	return datatypes.Interaction{
		Method:         http.MethodGet,
		Path:           "/",
		Principal:      &extensions.AuthInfo{UserID: "alice"},
		Status:         http.StatusOK,
		ResponseHeader: http.Header{"Content-Type": {"text/html; charset=utf-8"}},
		Body:           []byte("<!DOCTYPE html><html></html>"),
		Route:          &datatypes.RouteMatch{Pattern: "/", App: "demo", Name: "index"},
	}
}

// =============================================================================
// Outcome Tests
// =============================================================================

func TestObserve_Generates(t *testing.T) {
	f := newFixture(t, nil)

	res := f.orch.Observe(context.Background(), indexInteraction())

	require.NoError(t, res.Err)
	assert.Equal(t, OutcomeGenerated, res.Outcome)
	assert.Equal(t, datatypes.Identifier("101000011100"), res.Identifier)
	assert.Equal(t, "demo.index", res.View)
	assert.NotEmpty(t, res.GenerationID)

	want := filepath.Join(f.root, "generated", "tests", "demo", "index", "guessed_101000011100_test.go")
	assert.Equal(t, want, res.Path)
	src, err := os.ReadFile(want)
	require.NoError(t, err)
	assert.Contains(t, string(src), "package index")
	assert.Contains(t, string(src), "TestResponseIsHTML5")

	for _, marker := range []string{
		filepath.Join(f.root, "generated", "doc.go"),
		filepath.Join(f.root, "generated", "tests", "doc.go"),
		filepath.Join(f.root, "generated", "tests", "demo", "doc.go"),
		filepath.Join(f.root, "generated", "tests", "demo", "index", "doc.go"),
	} {
		assert.FileExists(t, marker)
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.AttemptsTotal.WithLabelValues("generated")))
	assert.Equal(t, 4.0, testutil.ToFloat64(f.metrics.FilesCreatedTotal.WithLabelValues("marker")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.FilesCreatedTotal.WithLabelValues("test")))

	events := f.audit.Events()
	require.Len(t, events, 1)
	assert.Equal(t, res.GenerationID, events[0].EventID)
	assert.Equal(t, "alice", events[0].UserID)
	assert.Equal(t, "generated", events[0].Outcome)
	file, _ := events[0].Metadata.Get("file")
	assert.Equal(t, want, file)
}

func TestObserve_SecondPassExists(t *testing.T) {
	f := newFixture(t, nil)
	in := indexInteraction()

	first := f.orch.Observe(context.Background(), in)
	require.Equal(t, OutcomeGenerated, first.Outcome)
	info, err := os.Stat(first.Path)
	require.NoError(t, err)

	second := f.orch.Observe(context.Background(), in)
	assert.Equal(t, OutcomeExists, second.Outcome)
	assert.Equal(t, first.Path, second.Path)
	assert.Zero(t, second.Files.Created())

	again, err := os.Stat(second.Path)
	require.NoError(t, err)
	assert.Equal(t, info.ModTime(), again.ModTime())
}

func TestObserve_Gate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*datatypes.Interaction)
		reason string
	}{
		{"harness", func(in *datatypes.Interaction) { in.Harness = true }, ReasonHarness},
		{"streaming", func(in *datatypes.Interaction) { in.Streaming = true }, ReasonStreaming},
		{"server error", func(in *datatypes.Interaction) { in.Status = http.StatusBadGateway }, ReasonServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			in := indexInteraction()
			tt.mutate(&in)

			res := f.orch.Observe(context.Background(), in)

			assert.Equal(t, OutcomeSkipped, res.Outcome)
			assert.Equal(t, tt.reason, res.Reason)
			assert.Empty(t, res.Identifier)
			assert.NoDirExists(t, filepath.Join(f.root, "generated"))
			assert.Empty(t, f.spans.Ended())
		})
	}
}

func TestObserve_ZeroVector(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.Capabilities = capability.Set{} })
	in := datatypes.Interaction{Method: http.MethodPut, Path: "/x", Status: http.StatusNoContent}

	res := f.orch.Observe(context.Background(), in)

	assert.Equal(t, OutcomeSkipped, res.Outcome)
	assert.Equal(t, ReasonZeroVector, res.Reason)
	assert.NoDirExists(t, filepath.Join(f.root, "generated"))
}

func TestObserve_InvalidVector(t *testing.T) {
	broken := func(datatypes.Interaction, capability.Set) (datatypes.FeatureVector, error) {
		return datatypes.NewFeatureVector(datatypes.Observation{IsGet: true, IsPost: true}, capability.Set{})
	}
	f := newFixture(t, func(o *Options) { o.Classifier = broken })

	res := f.orch.Observe(context.Background(), indexInteraction())

	assert.Equal(t, OutcomeInvalid, res.Outcome)
	assert.ErrorIs(t, res.Err, datatypes.ErrInvalidConfiguration)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ErrorsTotal.WithLabelValues("invalid_configuration")))
}

func TestObserve_UnresolvableView(t *testing.T) {
	f := newFixture(t, nil)
	in := indexInteraction()
	in.Route = nil

	res := f.orch.Observe(context.Background(), in)

	assert.Equal(t, OutcomeInvalid, res.Outcome)
	assert.ErrorIs(t, res.Err, datatypes.ErrViewNameUnresolvable)
	assert.NoDirExists(t, filepath.Join(f.root, "generated"))
}

func TestObserve_RootUnresolvable(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.Resolver = layout.RootResolver{} })

	res := f.orch.Observe(context.Background(), indexInteraction())

	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.ErrorIs(t, res.Err, datatypes.ErrRootUnresolvable)
}

func TestObserve_UninspectableTestFile(t *testing.T) {
	// The terminal path cannot be stat'ed: one component is longer than
	// any filesystem allows.
	root := filepath.Join(t.TempDir(), strings.Repeat("r", 300))
	f := newFixture(t, func(o *Options) {
		o.Resolver = layout.RootResolver{Settings: layout.SettingsMap{layout.SettingTestguessRoot: root}}
	})

	res := f.orch.Observe(context.Background(), indexInteraction())

	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.ErrorIs(t, res.Err, datatypes.ErrFilesystemFailure)
	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.AttemptsTotal.WithLabelValues("exists")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ErrorsTotal.WithLabelValues("filesystem_failure")))
}

func TestObserve_FilesystemFailure(t *testing.T) {
	f := newFixture(t, nil)
	// A regular file where generated/ should be.
	require.NoError(t, os.WriteFile(filepath.Join(f.root, "generated"), []byte("x"), 0o600))

	res := f.orch.Observe(context.Background(), indexInteraction())

	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.ErrorIs(t, res.Err, datatypes.ErrFilesystemFailure)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ErrorsTotal.WithLabelValues("filesystem_failure")))

	require.Eventually(t, func() bool {
		for _, e := range f.exporter.Entries() {
			if e.Level == logging.LevelError && e.Message == "test generation failed" {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	events := f.audit.Events()
	require.Len(t, events, 1)
	kind, _ := events[0].Metadata.Get("error_kind")
	assert.Equal(t, "filesystem_failure", kind)
}

func TestObserve_RateLimited(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.Limiter = rate.NewLimiter(0, 0) })

	res := f.orch.Observe(context.Background(), indexInteraction())

	assert.Equal(t, OutcomeRateLimited, res.Outcome)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.AttemptsTotal.WithLabelValues("rate_limited")))
	assert.NoDirExists(t, filepath.Join(f.root, "generated"))
}

func TestObserve_ConcurrentIdenticalInteractions(t *testing.T) {
	f := newFixture(t, nil)
	in := indexInteraction()

	const workers = 16
	results := make([]Result, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = f.orch.Observe(context.Background(), in)
		}(i)
	}
	wg.Wait()

	generated := 0
	for _, r := range results {
		require.NoError(t, r.Err)
		if r.Outcome == OutcomeGenerated {
			generated++
		} else {
			assert.Equal(t, OutcomeExists, r.Outcome)
		}
	}
	assert.Equal(t, 1, generated)

	matches, err := filepath.Glob(filepath.Join(f.root, "generated", "tests", "demo", "index", "guessed_*_test.go"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

// =============================================================================
// Tracing Tests
// =============================================================================

func TestObserve_Spans(t *testing.T) {
	f := newFixture(t, nil)

	res := f.orch.Observe(context.Background(), indexInteraction())
	require.Equal(t, OutcomeGenerated, res.Outcome)

	var names []string
	for _, s := range f.spans.Ended() {
		names = append(names, s.Name())
	}
	assert.ElementsMatch(t, []string{"pipeline.materialize", "pipeline.compose", "pipeline.write", "pipeline.Observe"}, names)
}

func TestObserve_FailedSpanStatus(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.Resolver = layout.RootResolver{} })

	f.orch.Observe(context.Background(), indexInteraction())

	ended := f.spans.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, codes.Error, ended[0].Status().Code)
}

// =============================================================================
// Options Tests
// =============================================================================

func TestNew_RequiresResolver(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
}

type failingAudit struct{}

func (failingAudit) Log(context.Context, extensions.AuditEvent) error {
	return errors.New("audit sink down")
}

func (failingAudit) Flush(context.Context) error { return nil }

func TestObserve_AuditFailureDoesNotChangeOutcome(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.Extensions = o.Extensions.WithAudit(failingAudit{}) })

	res := f.orch.Observe(context.Background(), indexInteraction())

	assert.Equal(t, OutcomeGenerated, res.Outcome)
}
