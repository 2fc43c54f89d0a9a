// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bytes"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/testguess/services/guesser/config"
	"github.com/AleutianAI/testguess/services/guesser/layout"
)

// =============================================================================
// Helpers
// =============================================================================

func noEnv(string) (string, bool) { return "", false }

// writeConfig writes a configuration whose root is root and returns its path.
func writeConfig(t *testing.T, root string) string {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Settings[layout.SettingTestguessRoot] = root
	cfg.Logging.Quiet = true

	data, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "testguess.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func execute(t *testing.T, lookup func(string) (string, bool), args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmdWithEnv(lookup)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// =============================================================================
// inspect
// =============================================================================

func TestInspect_DecodesFlags(t *testing.T) {
	out, err := execute(t, noEnv, "inspect", "101000011100")
	require.NoError(t, err)

	assert.Contains(t, out, "is_html5\t1")
	assert.Contains(t, out, "is_ajax\t0")
	assert.Contains(t, out, "supports_html5lib\t1")
	assert.Contains(t, out, "fragments\tsetup_custom_user,reverse_url,status_code,headers,html5")
}

func TestInspect_JSONFragments(t *testing.T) {
	out, err := execute(t, noEnv, "inspect", "001000011101")
	require.NoError(t, err)
	assert.Contains(t, out, "fragments\tsetup_custom_user,reverse_url,status_code,headers,json")
}

func TestInspect_ExclusiveFlagsWarn(t *testing.T) {
	out, err := execute(t, noEnv, "inspect", "000000000110")
	require.NoError(t, err)
	assert.Contains(t, out, "is_get\t1")
	assert.Contains(t, out, "invalid")
	assert.NotContains(t, out, "fragments")
}

func TestInspect_RejectsMalformed(t *testing.T) {
	_, err := execute(t, noEnv, "inspect", "10100001110")
	require.Error(t, err)

	_, err = execute(t, noEnv, "inspect", "10100001110x")
	require.Error(t, err)
}

// =============================================================================
// root and plan
// =============================================================================

func TestRoot_PrintsResolution(t *testing.T) {
	root := t.TempDir()
	out, err := execute(t, noEnv, "--config", writeConfig(t, root), "root")
	require.NoError(t, err)
	assert.Contains(t, out, "root\t"+root)
	assert.Contains(t, out, "signal\t"+layout.SettingTestguessRoot)
}

func TestRoot_EnvOverridesSettings(t *testing.T) {
	root, other := t.TempDir(), t.TempDir()
	env := func(name string) (string, bool) {
		if name == layout.SettingBaseDir {
			return other, true
		}
		return "", false
	}
	out, err := execute(t, env, "--config", writeConfig(t, root), "root")
	require.NoError(t, err)

	// TESTGUESS_ROOT still outranks BASE_DIR.
	assert.Contains(t, out, "root\t"+root)
}

func TestRoot_CreatesDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "testguess.yaml")
	env := func(name string) (string, bool) {
		if name == layout.SettingProjectRoot {
			return "/srv/app", true
		}
		return "", false
	}
	out, err := execute(t, env, "--config", path, "root")
	require.NoError(t, err)
	assert.Contains(t, out, "signal\t"+layout.SettingProjectRoot)
	assert.FileExists(t, path)
}

func TestPlan_PrintsEntries(t *testing.T) {
	root := t.TempDir()
	out, err := execute(t, noEnv, "--config", writeConfig(t, root), "plan", "shop.views.Cart", "001000011101")
	require.NoError(t, err)

	assert.Contains(t, out, filepath.Join(root, layout.GeneratedDir, layout.MarkerFile))
	assert.Contains(t, out, "test\t")
	assert.Contains(t, out, "001000011101")
	assert.NoDirExists(t, filepath.Join(root, layout.GeneratedDir))
}

func TestPlan_Create(t *testing.T) {
	root := t.TempDir()
	out, err := execute(t, noEnv, "--config", writeConfig(t, root), "plan", "--create", "shop.views.Cart", "001000011101")
	require.NoError(t, err)

	assert.Contains(t, out, "created")
	assert.FileExists(t, filepath.Join(root, layout.GeneratedDir, layout.MarkerFile))
	assert.FileExists(t, filepath.Join(root, layout.GeneratedDir, layout.TestsDir, layout.MarkerFile))
}

func TestPlan_RejectsBadIdentifier(t *testing.T) {
	_, err := execute(t, noEnv, "--config", writeConfig(t, t.TempDir()), "plan", "shop.views.Cart", "12")
	require.Error(t, err)
}

// =============================================================================
// env file
// =============================================================================

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "missing.env")

	assert.NoError(t, loadEnvFile("", true))
	assert.NoError(t, loadEnvFile(missing, false))
	assert.Error(t, loadEnvFile(missing, true))

	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("TESTGUESS_CLI_PROBE=loaded\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("TESTGUESS_CLI_PROBE") })

	require.NoError(t, loadEnvFile(path, true))
	assert.Equal(t, "loaded", os.Getenv("TESTGUESS_CLI_PROBE"))
}

// =============================================================================
// serve
// =============================================================================

func TestBuildServer_GeneratesFromTraffic(t *testing.T) {
	root := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Settings[layout.SettingTestguessRoot] = root
	cfg.Logging.Quiet = true

	router, svc, shutdown, err := buildServer(cfg, prometheus.NewRegistry())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = shutdown(t.Context())
		_ = svc.Logger.Close()
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+DemoToken)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var generated []string
	require.NoError(t, filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err == nil && strings.HasSuffix(path, "_test.go") {
			generated = append(generated, path)
		}
		return err
	}))
	require.Len(t, generated, 1)
	assert.Contains(t, generated[0], filepath.Join(root, layout.GeneratedDir, layout.TestsDir))

	for _, path := range []string{"/health", "/metrics"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, w.Body.String(), `testguess_generation_attempts_total{outcome="generated"} 1`)
}

func TestBuildServer_RejectsBadToken(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Settings[layout.SettingTestguessRoot] = t.TempDir()
	cfg.Logging.Quiet = true
	cfg.Server.Metrics = false

	router, svc, shutdown, err := buildServer(cfg, prometheus.NewRegistry())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = shutdown(t.Context())
		_ = svc.Logger.Close()
	})

	req := httptest.NewRequest(http.MethodGet, "/2/", nil)
	req.Header.Set("Authorization", "Bearer nope")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBuildServer_UnknownExporter(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Server.TraceExporter = "otlp"
	_, _, _, err := buildServer(cfg, prometheus.NewRegistry())
	require.Error(t, err)
}
