// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/testguess/services/guesser/layout"
)

// Environment variables read by ApplyEnv besides the settings signals.
const (
	EnvLogLevel      = "TESTGUESS_LOG_LEVEL"
	EnvPort          = "TESTGUESS_PORT"
	EnvMaxBodyBytes  = "TESTGUESS_MAX_BODY_BYTES"
	EnvRateLimit     = "TESTGUESS_RATE_LIMIT"
	EnvTraceExporter = "TESTGUESS_TRACE_EXPORTER"
)

// Load reads the config at path, creating it with defaults on first run.
// Missing keys keep their default values.
func Load(path string) (Config, error) {
	if path == "" {
		path = DefaultPath
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := createDefault(path); err != nil {
			return Config{}, err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read the config file: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse the config file %s: %w", path, err)
	}
	if cfg.Settings == nil {
		cfg.Settings = map[string]string{}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func createDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ApplyEnv overlays environment values onto c. Settings signals use their
// own names (BASE_DIR, ...); other knobs use the TESTGUESS_ prefix.
// Empty values are ignored.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	get := func(name string) (string, bool) {
		v, ok := lookup(name)
		return v, ok && v != ""
	}

	if c.Settings == nil {
		c.Settings = map[string]string{}
	}
	for _, name := range layout.SettingNames {
		if v, ok := get(name); ok {
			c.Settings[name] = v
		}
	}

	if v, ok := get(EnvLogLevel); ok {
		c.Logging.Level = v
	}
	if v, ok := get(EnvTraceExporter); ok {
		c.Server.TraceExporter = v
	}
	if v, ok := get(EnvPort); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvPort, err)
		}
		c.Server.Port = port
	}
	if v, ok := get(EnvMaxBodyBytes); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMaxBodyBytes, err)
		}
		c.Generation.MaxBodyBytes = n
	}
	if v, ok := get(EnvRateLimit); ok {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvRateLimit, err)
		}
		c.Generation.RateLimit = r
	}
	return c.Validate()
}
