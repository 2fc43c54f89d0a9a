// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package capability detects which optional test tooling the host build
// can use.
//
// Detection runs once, when the service is wired. The resulting Set is
// passed by value into every classification so all vectors built by one
// process agree on the three capability flags.
package capability

import (
	"runtime/debug"
	"strings"

	"github.com/AleutianAI/testguess/pkg/extensions"
)

// Set holds the environment capability flags.
type Set struct {
	// FixtureFactory is true when a fixture/fake-data library is linked
	// into the build.
	FixtureFactory bool

	// CustomUsers is true when the host manages its own identities.
	CustomUsers bool

	// MarkupValidator is true when an HTML parser is available to the
	// generated tests.
	MarkupValidator bool
}

// Overrides forces individual flags regardless of detection. Nil fields
// leave the detected value alone.
type Overrides struct {
	FixtureFactory  *bool `yaml:"fixture_factory,omitempty"`
	CustomUsers     *bool `yaml:"custom_users,omitempty"`
	MarkupValidator *bool `yaml:"markup_validator,omitempty"`
}

// FixtureModules are module path prefixes that count as a fixture factory.
var FixtureModules = []string{
	"github.com/bluele/factory-go",
	"github.com/brianvoe/gofakeit",
	"github.com/go-faker/faker",
	"github.com/jaswdr/faker",
}

// MarkupModules are module path prefixes that provide an HTML parser.
var MarkupModules = []string{
	"golang.org/x/net",
}

// Detect inspects the running binary's build info and the host's
// extension options.
func Detect(opts extensions.ServiceOptions, overrides Overrides) Set {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		info = nil
	}
	return DetectFrom(info, opts, overrides)
}

// DetectFrom is Detect with explicit build info. A nil info detects no
// modules.
func DetectFrom(info *debug.BuildInfo, opts extensions.ServiceOptions, overrides Overrides) Set {
	set := Set{
		FixtureFactory:  hasModule(info, FixtureModules),
		CustomUsers:     opts.HasCustomAuth(),
		MarkupValidator: hasModule(info, MarkupModules),
	}
	return set.Apply(overrides)
}

// Apply returns a copy of s with the non-nil overrides applied.
func (s Set) Apply(o Overrides) Set {
	if o.FixtureFactory != nil {
		s.FixtureFactory = *o.FixtureFactory
	}
	if o.CustomUsers != nil {
		s.CustomUsers = *o.CustomUsers
	}
	if o.MarkupValidator != nil {
		s.MarkupValidator = *o.MarkupValidator
	}
	return s
}

func hasModule(info *debug.BuildInfo, prefixes []string) bool {
	if info == nil {
		return false
	}
	paths := make([]string, 0, len(info.Deps)+1)
	paths = append(paths, info.Main.Path)
	for _, dep := range info.Deps {
		if dep == nil {
			continue
		}
		paths = append(paths, dep.Path)
		if dep.Replace != nil {
			paths = append(paths, dep.Replace.Path)
		}
	}
	for _, p := range paths {
		for _, prefix := range prefixes {
			if p == prefix || strings.HasPrefix(p, prefix+"/") {
				return true
			}
		}
	}
	return false
}
