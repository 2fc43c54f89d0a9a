// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package pipeline turns one observed interaction into at most one
// generated test file.
//
// # Description
//
// Observe runs the stages in a fixed order: gate, rate limit, classify,
// zero-vector check, view name, project root, plan, existence check,
// materialize, compose, exclusive write. Each stage that fails ends the
// attempt with an Outcome; nothing is retried. The filesystem is the dedup
// ledger, and a singleflight group keyed by the terminal path collapses
// identical generations racing inside one process.
//
// # Thread Safety
//
// Orchestrator is safe for concurrent use.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/testguess/pkg/extensions"
	"github.com/AleutianAI/testguess/pkg/logging"
	"github.com/AleutianAI/testguess/services/guesser/capability"
	"github.com/AleutianAI/testguess/services/guesser/classifier"
	"github.com/AleutianAI/testguess/services/guesser/compose"
	"github.com/AleutianAI/testguess/services/guesser/datatypes"
	"github.com/AleutianAI/testguess/services/guesser/layout"
	"github.com/AleutianAI/testguess/services/guesser/observability"
	"github.com/AleutianAI/testguess/services/guesser/viewname"
)

// Outcome is how one attempt ended.
type Outcome string

const (
	// OutcomeGenerated means a new test file was written.
	OutcomeGenerated Outcome = "generated"

	// OutcomeExists means the test file was already present.
	OutcomeExists Outcome = "exists"

	// OutcomeSkipped means the interaction failed the gate or classified
	// to the all-zero identifier.
	OutcomeSkipped Outcome = "skipped"

	// OutcomeInvalid means classification or naming failed.
	OutcomeInvalid Outcome = "invalid"

	// OutcomeRateLimited means the limiter refused the attempt.
	OutcomeRateLimited Outcome = "rate_limited"

	// OutcomeFailed means a filesystem, root or composer error.
	OutcomeFailed Outcome = "failed"
)

// Skip reasons reported in Result.Reason.
const (
	ReasonHarness     = "harness_request"
	ReasonStreaming   = "streaming_response"
	ReasonServerError = "server_error"
	ReasonZeroVector  = "nothing_to_generate"
)

// Resolver decides the project root.
type Resolver interface {
	Resolve() (layout.Resolution, error)
}

// Options configures an Orchestrator. Zero fields get defaults in New.
type Options struct {
	// Classifier defaults to classifier.Classify.
	Classifier classifier.Func

	// Composer defaults to compose.New().
	Composer *compose.Composer

	// Resolver is required.
	Resolver Resolver

	// Materializer defaults to a Materializer using Logger and FileMode.
	Materializer *layout.Materializer

	Capabilities   capability.Set
	ContextOptions compose.ContextOptions

	// FileMode for generated test files; zero means layout.DefaultFileMode.
	FileMode os.FileMode

	// Limiter throttles attempts that pass the gate. Nil disables it.
	Limiter *rate.Limiter

	Logger     *logging.Logger
	Metrics    *observability.Metrics
	Tracer     trace.Tracer
	Extensions extensions.ServiceOptions
}

// Result describes one attempt.
type Result struct {
	GenerationID string
	Outcome      Outcome
	Reason       string
	Identifier   datatypes.Identifier
	View         string
	Root         string
	Path         string
	Files        layout.Result
	Err          error
}

// Orchestrator runs the generation pipeline.
type Orchestrator struct {
	opts   Options
	flight singleflight.Group
}

// New validates opts and fills defaults.
func New(opts Options) (*Orchestrator, error) {
	if opts.Resolver == nil {
		return nil, errors.New("pipeline: resolver is required")
	}
	if opts.Classifier == nil {
		opts.Classifier = classifier.Classify
	}
	if opts.Composer == nil {
		c, err := compose.New()
		if err != nil {
			return nil, fmt.Errorf("pipeline: %w", err)
		}
		opts.Composer = c
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Materializer == nil {
		opts.Materializer = &layout.Materializer{FileMode: opts.FileMode, Logger: opts.Logger}
	}
	if opts.Tracer == nil {
		opts.Tracer = observability.Tracer()
	}
	opts.Extensions = opts.Extensions.Normalize()
	return &Orchestrator{opts: opts}, nil
}

// Observe processes one interaction. It never returns an error to the
// caller; failures are reported in Result and through logs, metrics, spans
// and the audit logger.
func (o *Orchestrator) Observe(ctx context.Context, in datatypes.Interaction) Result {
	res := Result{GenerationID: uuid.NewString()}

	if reason := gate(in); reason != "" {
		res.Outcome, res.Reason = OutcomeSkipped, reason
		o.opts.Metrics.RecordAttempt(string(res.Outcome))
		o.opts.Logger.Debug("interaction not eligible", "generation_id", res.GenerationID, "path", in.Path, "reason", reason)
		return res
	}
	if o.opts.Limiter != nil && !o.opts.Limiter.Allow() {
		res.Outcome = OutcomeRateLimited
		o.opts.Metrics.RecordAttempt(string(res.Outcome))
		o.opts.Logger.Debug("generation rate limited", "generation_id", res.GenerationID, "path", in.Path)
		return res
	}

	start := time.Now()
	ctx, span := o.opts.Tracer.Start(ctx, "pipeline.Observe",
		trace.WithAttributes(
			attribute.String("testguess.generation_id", res.GenerationID),
			attribute.String("http.method", in.Method),
			attribute.String("http.path", in.Path),
		),
	)
	defer span.End()

	o.run(ctx, in, &res)

	span.SetAttributes(
		attribute.String("testguess.identifier", string(res.Identifier)),
		attribute.String("testguess.view", res.View),
		attribute.String("testguess.outcome", string(res.Outcome)),
	)
	if res.Err != nil {
		observability.FailSpan(span, res.Err)
	}
	o.finish(ctx, in, res, start)
	return res
}

// gate returns a skip reason, or "" when the interaction may be classified.
func gate(in datatypes.Interaction) string {
	switch {
	case in.Harness:
		return ReasonHarness
	case in.Streaming:
		return ReasonStreaming
	case in.Status >= http.StatusInternalServerError:
		return ReasonServerError
	}
	return ""
}

func (o *Orchestrator) run(ctx context.Context, in datatypes.Interaction, res *Result) {
	vector, err := o.opts.Classifier(in, o.opts.Capabilities)
	if err != nil {
		res.Outcome, res.Err = OutcomeInvalid, err
		return
	}
	res.Identifier = vector.Identifier()
	if res.Identifier.IsZero() {
		res.Outcome, res.Reason = OutcomeSkipped, ReasonZeroVector
		return
	}

	view, err := viewname.Resolve(viewname.FromRoute(in.Route))
	if err != nil {
		res.Outcome, res.Err = OutcomeInvalid, err
		return
	}
	res.View = view

	resolution, err := o.opts.Resolver.Resolve()
	if err != nil {
		res.Outcome, res.Err = OutcomeFailed, err
		return
	}
	res.Root = resolution.Root

	plan, err := layout.Plan(resolution.Root, view, res.Identifier)
	if err != nil {
		res.Outcome, res.Err = OutcomeInvalid, err
		return
	}
	terminal, ok := plan.Terminal()
	if !ok {
		res.Outcome = OutcomeInvalid
		res.Err = fmt.Errorf("%w: view %q has no package segments", datatypes.ErrViewNameUnresolvable, view)
		return
	}
	res.Path = terminal.File

	exists, err := layout.Exists(terminal.File)
	if err != nil {
		res.Outcome, res.Err = OutcomeFailed, err
		return
	}
	if exists {
		res.Outcome = OutcomeExists
		return
	}

	ran := false
	v, err, _ := o.flight.Do(terminal.File, func() (any, error) {
		ran = true
		return o.generate(ctx, in, vector, view, plan, terminal)
	})
	if err != nil {
		res.Outcome, res.Err = OutcomeFailed, err
		if files, ok := v.(layout.Result); ok {
			res.Files = files
		}
		return
	}
	if !ran {
		res.Outcome = OutcomeExists
		return
	}
	gen := v.(generation)
	res.Files = gen.files
	if gen.written {
		res.Outcome = OutcomeGenerated
	} else {
		res.Outcome = OutcomeExists
	}
}

type generation struct {
	files   layout.Result
	written bool
}

func (o *Orchestrator) generate(
	ctx context.Context,
	in datatypes.Interaction,
	vector datatypes.FeatureVector,
	view string,
	plan layout.Layout,
	terminal layout.Entry,
) (any, error) {
	_, span := o.opts.Tracer.Start(ctx, "pipeline.materialize")
	files, err := o.opts.Materializer.Materialize(plan)
	if err != nil {
		observability.FailSpan(span, err)
		span.End()
		return files, err
	}
	span.SetAttributes(attribute.Int("testguess.created", files.Created()))
	span.End()
	o.opts.Metrics.RecordFiles(layout.KindPackageMarker.String(), len(files.CreatedFiles))

	_, span = o.opts.Tracer.Start(ctx, "pipeline.compose")
	src, err := o.opts.Composer.Compose(compose.BuildContext(in, vector, view, terminal.Package, o.opts.ContextOptions))
	if err != nil {
		observability.FailSpan(span, err)
		span.End()
		return files, err
	}
	span.End()

	_, span = o.opts.Tracer.Start(ctx, "pipeline.write", trace.WithAttributes(attribute.String("testguess.path", terminal.File)))
	defer span.End()
	written, err := layout.WriteExclusive(terminal.File, src, o.opts.FileMode)
	if err != nil {
		observability.FailSpan(span, err)
		return files, err
	}
	if written {
		o.opts.Metrics.RecordFiles(layout.KindTestFile.String(), 1)
	}
	span.SetAttributes(attribute.Bool("testguess.written", written))
	return generation{files: files, written: written}, nil
}

// finish emits the per-attempt log line, metrics and audit event.
func (o *Orchestrator) finish(ctx context.Context, in datatypes.Interaction, res Result, start time.Time) {
	o.opts.Metrics.RecordAttempt(string(res.Outcome))
	o.opts.Metrics.RecordDuration(start)

	logger := o.opts.Logger.With(
		"generation_id", res.GenerationID,
		"identifier", string(res.Identifier),
		"view", res.View,
		"path", in.Path,
	)
	meta := extensions.NewMetadata().
		Set("method", in.Method).
		Set("request_path", in.Path).
		Set("view", res.View)
	if res.Path != "" {
		meta.Set("file", res.Path)
	}

	switch {
	case res.Err != nil:
		kind := datatypes.ErrorKind(res.Err)
		o.opts.Metrics.RecordError(kind)
		meta.Set("error", res.Err.Error()).Set("error_kind", kind)
		logger.Error("test generation failed", "outcome", string(res.Outcome), "error_kind", kind, "error", res.Err)
	case res.Outcome == OutcomeGenerated:
		logger.Info("test generated", "file", res.Path, "created", res.Files.Created())
	default:
		logger.Debug("test not generated", "outcome", string(res.Outcome), "reason", res.Reason, "file", res.Path)
	}

	userID := extensions.AnonymousUserID
	if in.Principal.IsAuthenticated() {
		userID = in.Principal.UserID
	}
	event := extensions.AuditEvent{
		EventID:      res.GenerationID,
		EventType:    "generation.attempt",
		UserID:       userID,
		Action:       "generate",
		ResourceType: "test_file",
		ResourceID:   string(res.Identifier),
		Outcome:      string(res.Outcome),
		Metadata:     meta,
	}
	if err := o.opts.Extensions.AuditLogger.Log(ctx, event); err != nil {
		logger.Warn("audit log failed", "error", err)
	}
}
