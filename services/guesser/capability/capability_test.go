// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package capability

import (
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/AleutianAI/testguess/pkg/extensions"
)

func buildInfo(paths ...string) *debug.BuildInfo {
	info := &debug.BuildInfo{Main: debug.Module{Path: "example.com/app"}}
	for _, p := range paths {
		info.Deps = append(info.Deps, &debug.Module{Path: p, Version: "v1.0.0"})
	}
	return info
}

func TestDetectFrom_Modules(t *testing.T) {
	info := buildInfo("golang.org/x/net", "github.com/brianvoe/gofakeit/v7")

	set := DetectFrom(info, extensions.DefaultOptions(), Overrides{})

	assert.True(t, set.FixtureFactory)
	assert.True(t, set.MarkupValidator)
	assert.False(t, set.CustomUsers)
}

func TestDetectFrom_PrefixMustMatchWholeElement(t *testing.T) {
	info := buildInfo("golang.org/x/network-tools")

	set := DetectFrom(info, extensions.DefaultOptions(), Overrides{})

	assert.False(t, set.MarkupValidator)
}

func TestDetectFrom_ReplacedModule(t *testing.T) {
	info := buildInfo()
	info.Deps = append(info.Deps, &debug.Module{
		Path:    "example.com/fork",
		Replace: &debug.Module{Path: "github.com/go-faker/faker/v4"},
	})

	set := DetectFrom(info, extensions.DefaultOptions(), Overrides{})

	assert.True(t, set.FixtureFactory)
}

func TestDetectFrom_NilBuildInfo(t *testing.T) {
	set := DetectFrom(nil, extensions.DefaultOptions(), Overrides{})
	assert.Equal(t, Set{}, set)
}

func TestDetectFrom_CustomAuth(t *testing.T) {
	opts := extensions.DefaultOptions().WithAuth(&extensions.StaticTokenProvider{})

	set := DetectFrom(nil, opts, Overrides{})

	assert.True(t, set.CustomUsers)
}

func TestSet_Apply(t *testing.T) {
	on, off := true, false
	set := Set{FixtureFactory: true}.Apply(Overrides{
		FixtureFactory:  &off,
		MarkupValidator: &on,
	})

	assert.Equal(t, Set{FixtureFactory: false, MarkupValidator: true}, set)
}

func TestDetect_DoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		Detect(extensions.DefaultOptions(), Overrides{})
	})
}
