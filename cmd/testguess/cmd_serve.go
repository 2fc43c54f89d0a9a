// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/testguess/cmd/testguess/internal/demo"
	"github.com/AleutianAI/testguess/pkg/extensions"
	"github.com/AleutianAI/testguess/pkg/harness"
	"github.com/AleutianAI/testguess/services/guesser"
	"github.com/AleutianAI/testguess/services/guesser/config"
	"github.com/AleutianAI/testguess/services/guesser/observability"
)

const shutdownTimeout = 10 * time.Second

// DemoToken authenticates as the demo staff user.
const DemoToken = "demo-token"

func newServeCmd(state *cliState) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the demo server and generate tests from its traffic",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := state.load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			router, svc, shutdown, err := buildServer(cfg, prometheus.NewRegistry())
			if err != nil {
				return err
			}
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				_ = shutdown(ctx)
				_ = svc.Logger.Close()
			}()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, router, cfg.Server.Port, svc)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides the configuration)")
	return cmd
}

// demoAuth maps the demo token and the harness token to principals.
func demoAuth() *extensions.StaticTokenProvider {
	return &extensions.StaticTokenProvider{Users: map[string]*extensions.AuthInfo{
		DemoToken:                  {UserID: "alice", Roles: []string{"staff"}},
		harness.DefaultBearerToken: {UserID: "harness", Roles: []string{"staff"}},
	}}
}

// buildServer wires tracing, metrics, the guesser and the demo routes.
//
// # Outputs
//
//   - *gin.Engine: The router, ready to serve.
//   - *guesser.Service: The wired service.
//   - func(context.Context) error: Flushes the tracer provider.
//   - error: Non-nil if any component fails to start.
func buildServer(cfg config.Config, reg *prometheus.Registry) (*gin.Engine, *guesser.Service, func(context.Context) error, error) {
	shutdown, err := observability.Init(observability.TraceConfig{
		ServiceName: "testguess",
		Version:     version,
		Exporter:    cfg.Server.TraceExporter,
	})
	if err != nil {
		return nil, nil, nil, err
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	logger := guesser.NewLogger(cfg.Logging)
	svc, err := guesser.New(cfg, guesser.Options{
		Logger: logger,
		Extensions: extensions.DefaultOptions().
			WithAuth(demoAuth()).
			WithAudit(extensions.NewLogAuditLogger(logger)),
		Registerer: reg,
	})
	if err != nil {
		_ = shutdown(context.Background())
		_ = logger.Close()
		return nil, nil, nil, err
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), otelgin.Middleware("testguess"))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	if cfg.Server.Metrics {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})))
	}

	svc.Install(router)
	if err := demo.Register(router); err != nil {
		_ = shutdown(context.Background())
		return nil, nil, nil, fmt.Errorf("register demo routes: %w", err)
	}
	return router, svc, shutdown, nil
}

func serve(ctx context.Context, handler http.Handler, port int, svc *guesser.Service) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		svc.Logger.Info("server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	svc.Logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
