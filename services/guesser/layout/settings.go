// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package layout

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/mod/modfile"
)

// Settings signal names, in resolution order.
const (
	SettingTestguessRoot  = "TESTGUESS_ROOT"
	SettingBaseDir        = "BASE_DIR"
	SettingProjectPath    = "PROJECT_PATH"
	SettingProjectDir     = "PROJECT_DIR"
	SettingProjectRoot    = "PROJECT_ROOT"
	SettingStaticRoot     = "STATIC_ROOT"
	SettingMediaRoot      = "MEDIA_ROOT"
	SettingSettingsModule = "SETTINGS_MODULE"
)

// SettingNames lists every signal the resolver reads.
var SettingNames = []string{
	SettingTestguessRoot,
	SettingBaseDir,
	SettingProjectPath,
	SettingProjectDir,
	SettingProjectRoot,
	SettingStaticRoot,
	SettingMediaRoot,
	SettingSettingsModule,
}

// Settings is a read-only view of the host configuration.
type Settings interface {
	// Lookup returns the value and whether it is set.
	Lookup(name string) (string, bool)
}

// SettingsMap is a Settings backed by a map.
type SettingsMap map[string]string

// Lookup implements Settings.
func (m SettingsMap) Lookup(name string) (string, bool) {
	v, ok := m[name]
	return v, ok
}

// LookupFunc adapts a function such as os.LookupEnv to Settings.
type LookupFunc func(name string) (string, bool)

// Lookup implements Settings.
func (f LookupFunc) Lookup(name string) (string, bool) {
	return f(name)
}

// Layered consults each Settings in order and returns the first hit.
type Layered []Settings

// Lookup implements Settings.
func (l Layered) Lookup(name string) (string, bool) {
	for _, s := range l {
		if s == nil {
			continue
		}
		if v, ok := s.Lookup(name); ok {
			return v, true
		}
	}
	return "", false
}

// ModuleLocator maps a SETTINGS_MODULE value to the path of a file inside
// that module.
type ModuleLocator interface {
	Locate(module string) (string, error)
}

// LocatorFunc adapts a function to ModuleLocator.
type LocatorFunc func(module string) (string, error)

// Locate implements ModuleLocator.
func (f LocatorFunc) Locate(module string) (string, error) {
	return f(module)
}

// PackageLocator locates a settings module given either a file path or a
// Go import path inside the module rooted at ModuleRoot.
//
// For an import path the result is the first .go file, by name, in the
// package directory.
type PackageLocator struct {
	ModuleRoot string
}

// Locate implements ModuleLocator.
func (l PackageLocator) Locate(module string) (string, error) {
	if info, err := os.Stat(module); err == nil && !info.IsDir() {
		return module, nil
	}
	if l.ModuleRoot == "" {
		return "", fmt.Errorf("locate %q: no module root", module)
	}

	modulePath, err := ModulePath(l.ModuleRoot)
	if err != nil {
		return "", fmt.Errorf("locate %q: %w", module, err)
	}
	rel, ok := strings.CutPrefix(module, modulePath)
	if !ok || (rel != "" && rel[0] != '/') {
		return "", fmt.Errorf("locate %q: not inside module %s", module, modulePath)
	}

	dir := filepath.Join(l.ModuleRoot, filepath.FromSlash(strings.TrimPrefix(rel, "/")))
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("locate %q: %w", module, err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".go") {
			files = append(files, e.Name())
		}
	}
	if len(files) == 0 {
		return "", fmt.Errorf("locate %q: no Go files in %s", module, dir)
	}
	sort.Strings(files)
	return filepath.Join(dir, files[0]), nil
}

// ModulePath reads the module path from dir/go.mod.
func ModulePath(dir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, "go.mod"))
	if err != nil {
		return "", err
	}
	path := modfile.ModulePath(data)
	if path == "" {
		return "", fmt.Errorf("%s: no module directive", filepath.Join(dir, "go.mod"))
	}
	return path, nil
}

// NearestModuleRoot walks up from start to the first directory holding a
// go.mod with a module directive.
func NearestModuleRoot(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", err
	}
	for {
		if _, err := ModulePath(dir); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no go.mod above %s", start)
		}
		dir = parent
	}
}

// ModuleRootDefault returns a default provider for RootResolver: the
// nearest module root above the working directory, else os.TempDir().
func ModuleRootDefault() func() (string, error) {
	return func() (string, error) {
		wd, err := os.Getwd()
		if err == nil {
			if root, err := NearestModuleRoot(wd); err == nil {
				return root, nil
			}
		}
		return os.TempDir(), nil
	}
}
