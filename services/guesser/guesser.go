// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package guesser wires configuration, capability detection and the
// generation pipeline into a service a gin engine can install.
//
// # Description
//
// New is the one place where process-wide state is decided: capabilities
// are detected once, the root resolver is built from the settings section
// and the environment, and metrics are registered. Everything downstream
// receives those values explicitly.
package guesser

import (
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/testguess/pkg/extensions"
	"github.com/AleutianAI/testguess/pkg/logging"
	"github.com/AleutianAI/testguess/services/guesser/capability"
	"github.com/AleutianAI/testguess/services/guesser/compose"
	"github.com/AleutianAI/testguess/services/guesser/config"
	"github.com/AleutianAI/testguess/services/guesser/layout"
	"github.com/AleutianAI/testguess/services/guesser/middleware"
	"github.com/AleutianAI/testguess/services/guesser/observability"
	"github.com/AleutianAI/testguess/services/guesser/pipeline"
)

// Options carries the collaborators a host may replace.
type Options struct {
	Extensions extensions.ServiceOptions

	// Logger defaults to one built from the logging section.
	Logger *logging.Logger

	// Registerer receives the metrics. Nil means the default registerer.
	Registerer prometheus.Registerer

	// Tracer defaults to the global pipeline tracer.
	Tracer trace.Tracer

	// Env is consulted before the settings section. Nil means os.LookupEnv.
	Env func(string) (string, bool)

	// Locator resolves SETTINGS_MODULE. Nil means a PackageLocator rooted
	// at the nearest go.mod.
	Locator layout.ModuleLocator

	// Default is the last-resort root. Nil means layout.ModuleRootDefault.
	Default func() (string, error)
}

// Service is a wired generation pipeline.
type Service struct {
	Config       config.Config
	Capabilities capability.Set
	Resolver     layout.RootResolver
	Orchestrator *pipeline.Orchestrator
	Metrics      *observability.Metrics
	Logger       *logging.Logger
	Extensions   extensions.ServiceOptions
}

// New builds a Service from cfg.
//
// # Outputs
//
//   - *Service: Ready to Install.
//   - error: When cfg is invalid or the templates fail to parse.
func New(cfg config.Config, opts Options) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ext := opts.Extensions.Normalize()

	logger := opts.Logger
	if logger == nil {
		logger = NewLogger(cfg.Logging)
	}

	caps := capability.Detect(ext, cfg.Capabilities)
	resolver := NewResolver(cfg, opts.Env, opts.Locator, opts.Default)
	metrics := observability.NewMetrics(opts.Registerer)

	composer, err := compose.New()
	if err != nil {
		return nil, err
	}

	var limiter *rate.Limiter
	if cfg.Generation.RateLimit > 0 {
		burst := cfg.Generation.RateBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.Generation.RateLimit), burst)
	}

	orch, err := pipeline.New(pipeline.Options{
		Composer: composer,
		Resolver: resolver,
		Materializer: &layout.Materializer{
			DirMode:  cfg.DirMode(),
			FileMode: cfg.FileMode(),
			Logger:   logger,
		},
		Capabilities: caps,
		ContextOptions: compose.ContextOptions{
			ExcludeHeaders: cfg.Generation.ExcludeHeaders,
			ProxyTypes:     cfg.Generation.ProxyTypes,
		},
		FileMode:   cfg.FileMode(),
		Limiter:    limiter,
		Logger:     logger,
		Metrics:    metrics,
		Tracer:     opts.Tracer,
		Extensions: ext,
	})
	if err != nil {
		return nil, fmt.Errorf("wire pipeline: %w", err)
	}

	logger.Info("test guessing enabled",
		"fixture_factory", caps.FixtureFactory,
		"custom_users", caps.CustomUsers,
		"markup_validator", caps.MarkupValidator,
	)

	return &Service{
		Config:       cfg,
		Capabilities: caps,
		Resolver:     resolver,
		Orchestrator: orch,
		Metrics:      metrics,
		Logger:       logger,
		Extensions:   ext,
	}, nil
}

// Install adds authentication and the observing middleware to r. Routes
// registered on r afterwards are observed.
func (s *Service) Install(r gin.IRoutes) {
	r.Use(
		middleware.AuthMiddleware(s.Extensions.AuthProvider),
		middleware.Guess(s.Orchestrator, s.Config.Generation.MaxBodyBytes),
	)
}

// NewLogger builds the service logger from the logging section.
func NewLogger(cfg config.LoggingConfig) *logging.Logger {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		level = logging.LevelInfo
	}
	return logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Dir,
		Service: "testguess",
		JSON:    cfg.JSON,
		Quiet:   cfg.Quiet,
	})
}

// NewResolver layers env over the settings section. Nil arguments get the
// same defaults as Options.
func NewResolver(cfg config.Config, env func(string) (string, bool), locator layout.ModuleLocator, def func() (string, error)) layout.RootResolver {
	if env == nil {
		env = os.LookupEnv
	}
	if locator == nil {
		root := ""
		if wd, err := os.Getwd(); err == nil {
			root, _ = layout.NearestModuleRoot(wd)
		}
		locator = layout.PackageLocator{ModuleRoot: root}
	}
	if def == nil {
		def = layout.ModuleRootDefault()
	}
	return layout.RootResolver{
		Settings: layout.Layered{layout.LookupFunc(env), cfg.SettingsSource()},
		Locator:  locator,
		Default:  def,
	}
}
