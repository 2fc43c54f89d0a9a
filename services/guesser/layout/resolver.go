// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package layout

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/AleutianAI/testguess/services/guesser/datatypes"
)

// Signal names reported in Resolution for the non-setting branches.
const (
	SignalSharedParent = "STATIC_ROOT+MEDIA_ROOT"
	SignalDefault      = "default"
)

// RootResolver decides the project root directory.
type RootResolver struct {
	Settings Settings

	// Locator resolves SETTINGS_MODULE. Optional; without it the signal
	// is skipped.
	Locator ModuleLocator

	// Default is called only when every signal is absent. Optional.
	Default func() (string, error)
}

// Resolution is a resolved root and the signal that produced it.
type Resolution struct {
	Root   string
	Signal string
}

// Resolve applies the signals in priority order.
//
// # Description
//
//  1. TESTGUESS_ROOT
//  2. BASE_DIR
//  3. PROJECT_PATH, PROJECT_DIR, PROJECT_ROOT
//  4. STATIC_ROOT and MEDIA_ROOT when both share a parent that is not the
//     filesystem root
//  5. SETTINGS_MODULE, located to a file; a trailing "<name>/<name>"
//     directory pair collapses to its parent
//  6. Default
//
// Empty values count as unset.
//
// # Outputs
//
//   - Resolution: Root and winning signal.
//   - error: Wraps datatypes.ErrRootUnresolvable. Locator failures are
//     returned rather than skipped so a bad SETTINGS_MODULE is noticed.
func (r RootResolver) Resolve() (Resolution, error) {
	for _, name := range []string{
		SettingTestguessRoot,
		SettingBaseDir,
		SettingProjectPath,
		SettingProjectDir,
		SettingProjectRoot,
	} {
		if v, ok := r.lookup(name); ok {
			return Resolution{Root: v, Signal: name}, nil
		}
	}

	if parent, ok := r.sharedParent(); ok {
		return Resolution{Root: parent, Signal: SignalSharedParent}, nil
	}

	if module, ok := r.lookup(SettingSettingsModule); ok && r.Locator != nil {
		file, err := r.Locator.Locate(module)
		if err != nil {
			return Resolution{}, fmt.Errorf("%w: %s %q: %v", datatypes.ErrRootUnresolvable, SettingSettingsModule, module, err)
		}
		return Resolution{Root: collapseDoubled(filepath.Dir(file)), Signal: SettingSettingsModule}, nil
	}

	if r.Default != nil {
		root, err := r.Default()
		if err != nil {
			return Resolution{}, fmt.Errorf("%w: default: %v", datatypes.ErrRootUnresolvable, err)
		}
		if root != "" {
			return Resolution{Root: root, Signal: SignalDefault}, nil
		}
	}
	return Resolution{}, fmt.Errorf("%w: no settings signal and no default", datatypes.ErrRootUnresolvable)
}

func (r RootResolver) lookup(name string) (string, bool) {
	if r.Settings == nil {
		return "", false
	}
	v, ok := r.Settings.Lookup(name)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}

func (r RootResolver) sharedParent() (string, bool) {
	static, ok := r.lookup(SettingStaticRoot)
	if !ok {
		return "", false
	}
	media, ok := r.lookup(SettingMediaRoot)
	if !ok {
		return "", false
	}
	staticParent := filepath.Dir(filepath.Clean(static))
	if staticParent != filepath.Dir(filepath.Clean(media)) {
		return "", false
	}
	rest := staticParent[len(filepath.VolumeName(staticParent)):]
	if strings.Trim(rest, string(filepath.Separator)) == "" || rest == "." {
		return "", false
	}
	return staticParent, true
}

// collapseDoubled turns ".../proj/proj" into ".../proj".
func collapseDoubled(dir string) string {
	base := filepath.Base(dir)
	parent := filepath.Dir(dir)
	if base != string(filepath.Separator) && base != "." && filepath.Base(parent) == base {
		return parent
	}
	return dir
}
