// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package guesser

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/testguess/pkg/extensions"
	"github.com/AleutianAI/testguess/pkg/logging"
	"github.com/AleutianAI/testguess/services/guesser/config"
	"github.com/AleutianAI/testguess/services/guesser/layout"
	"github.com/AleutianAI/testguess/services/guesser/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func noEnv(string) (string, bool) { return "", false }

func TestNew_InstallsObserver(t *testing.T) {
	root := t.TempDir()
	markup := true

	cfg := config.DefaultConfig()
	cfg.Settings[layout.SettingBaseDir] = root
	cfg.Capabilities.MarkupValidator = &markup

	audit := extensions.NewMemoryAuditLogger()
	ext := extensions.DefaultOptions().
		WithAuth(&extensions.StaticTokenProvider{Users: map[string]*extensions.AuthInfo{
			"tok": {UserID: "alice"},
		}}).
		WithAudit(audit)

	svc, err := New(cfg, Options{
		Extensions: ext,
		Logger:     logging.Discard(),
		Registerer: prometheus.NewRegistry(),
		Env:        noEnv,
	})
	require.NoError(t, err)
	assert.True(t, svc.Capabilities.CustomUsers)
	assert.True(t, svc.Capabilities.MarkupValidator)

	r := gin.New()
	svc.Install(r)
	r.GET("/", middleware.Name("shop", "home"), func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html", []byte("<!doctype html><html></html>"))
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	file := filepath.Join(root, "generated", "tests", "shop", "home", "guessed_101000011100_test.go")
	assert.FileExists(t, file)
	info, err := os.Stat(file)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())

	assert.Equal(t, 1.0, testutil.ToFloat64(svc.Metrics.AttemptsTotal.WithLabelValues("generated")))
	require.Len(t, audit.Events(), 1)
	assert.Equal(t, "alice", audit.Events()[0].UserID)
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Server.Port = 0

	_, err := New(cfg, Options{Registerer: prometheus.NewRegistry(), Logger: logging.Discard()})
	assert.Error(t, err)
}

func TestNew_RateLimiter(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Generation.RateLimit = 1

	svc, err := New(cfg, Options{Registerer: prometheus.NewRegistry(), Logger: logging.Discard(), Env: noEnv})
	require.NoError(t, err)
	assert.NotNil(t, svc.Orchestrator)
}

func TestNewResolver_EnvWinsOverSettings(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Settings[layout.SettingBaseDir] = "/from/config"

	env := func(name string) (string, bool) {
		if name == layout.SettingBaseDir {
			return "/from/env", true
		}
		return "", false
	}
	res, err := NewResolver(cfg, env, nil, nil).Resolve()
	require.NoError(t, err)
	assert.Equal(t, "/from/env", res.Root)
	assert.Equal(t, layout.SettingBaseDir, res.Signal)
}

func TestNewResolver_DefaultIsModuleRoot(t *testing.T) {
	res, err := NewResolver(config.DefaultConfig(), noEnv, nil, nil).Resolve()
	require.NoError(t, err)
	assert.Equal(t, layout.SignalDefault, res.Signal)
	assert.FileExists(t, filepath.Join(res.Root, "go.mod"))
}

func TestNewLogger(t *testing.T) {
	logger := NewLogger(config.LoggingConfig{Level: "bogus", Quiet: true})
	require.NotNil(t, logger)
	assert.NoError(t, logger.Close())
}
