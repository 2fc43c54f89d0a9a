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
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/testguess/pkg/logging"
	"github.com/AleutianAI/testguess/services/guesser/capability"
	"github.com/AleutianAI/testguess/services/guesser/layout"
)

// DefaultPath is the config file used when none is given.
const DefaultPath = "testguess.yaml"

type Config struct {
	// Settings: project root signals, keyed by signal name (BASE_DIR, ...)
	Settings map[string]string `yaml:"settings" validate:"dive,keys,setting,endkeys"`

	// Generation: where and how test files are written
	Generation GenerationConfig `yaml:"generation"`

	// Capabilities: forced capability flags; unset entries are detected
	Capabilities capability.Overrides `yaml:"capabilities"`

	Logging LoggingConfig `yaml:"logging"`
	Server  ServerConfig  `yaml:"server"`
}

type GenerationConfig struct {
	DirMode  string `yaml:"dir_mode" validate:"filemode"`  // e.g. "0750"
	FileMode string `yaml:"file_mode" validate:"filemode"` // e.g. "0644"

	// MaxBodyBytes bounds the captured response body.
	MaxBodyBytes int64 `yaml:"max_body_bytes" validate:"gt=0"`

	// RateLimit is generations per second; 0 disables throttling.
	RateLimit float64 `yaml:"rate_limit" validate:"gte=0"`
	RateBurst int     `yaml:"rate_burst" validate:"gte=0"`

	// ExcludeHeaders are left out of generated header assertions, on top
	// of Last-Modified, Expires and Location.
	ExcludeHeaders []string `yaml:"exclude_headers,omitempty"`

	// ProxyTypes are context value types never asserted on, on top of
	// html/template.HTML.
	ProxyTypes []string `yaml:"proxy_types,omitempty"`
}

type LoggingConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	JSON  bool   `yaml:"json"`
	Dir   string `yaml:"dir,omitempty"`
	Quiet bool   `yaml:"quiet"`
}

type ServerConfig struct {
	Port          int    `yaml:"port" validate:"gte=1,lte=65535"`
	Metrics       bool   `yaml:"metrics"`
	TraceExporter string `yaml:"trace_exporter" validate:"omitempty,oneof=none stdout"`
}

// DefaultConfig returns the configuration written on first run.
func DefaultConfig() Config {
	return Config{
		Settings: map[string]string{},
		Generation: GenerationConfig{
			DirMode:      "0750",
			FileMode:     "0644",
			MaxBodyBytes: 1 << 20,
		},
		Logging: LoggingConfig{Level: "info"},
		Server: ServerConfig{
			Port:          12220,
			Metrics:       true,
			TraceExporter: "none",
		},
	}
}

// =============================================================================
// Validation
// =============================================================================

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("filemode", func(fl validator.FieldLevel) bool {
		_, err := parseMode(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("setting", func(fl validator.FieldLevel) bool {
		name := fl.Field().String()
		for _, known := range layout.SettingNames {
			if name == known {
				return true
			}
		}
		return false
	})
	return v
}

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// =============================================================================
// Derived values
// =============================================================================

// DirMode is the parsed generation.dir_mode.
func (c Config) DirMode() os.FileMode {
	m, err := parseMode(c.Generation.DirMode)
	if err != nil {
		return layout.DefaultDirMode
	}
	return m
}

// FileMode is the parsed generation.file_mode.
func (c Config) FileMode() os.FileMode {
	m, err := parseMode(c.Generation.FileMode)
	if err != nil {
		return layout.DefaultFileMode
	}
	return m
}

// LogLevel is the parsed logging.level; unknown values mean info.
func (c Config) LogLevel() logging.Level {
	level, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		return logging.LevelInfo
	}
	return level
}

// SettingsSource exposes the settings section to the root resolver.
func (c Config) SettingsSource() layout.Settings {
	return layout.SettingsMap(c.Settings)
}

// parseMode reads an octal permission string such as "0750". Empty is
// rejected; only permission bits are allowed.
func parseMode(s string) (os.FileMode, error) {
	n, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("file mode %q: %w", s, err)
	}
	if n == 0 || n&^uint64(os.ModePerm) != 0 {
		return 0, fmt.Errorf("file mode %q: want permission bits only", s)
	}
	return os.FileMode(n), nil
}
