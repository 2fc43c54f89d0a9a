// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package layout decides where generated tests live and puts the package
// tree on disk.
//
// The flow for one generation is:
//
//	res, err := resolver.Resolve()                  // project root
//	plan, err := layout.Plan(res.Root, view, id)    // pure, no I/O
//	result, err := materializer.Materialize(plan)   // directories + doc.go markers
//	created, err := layout.WriteExclusive(file, src, 0644)
//
// The filesystem is the dedup ledger: an existing terminal file means the
// shape was already covered.
package layout

import (
	"fmt"
	"go/token"
	"path/filepath"
	"strings"

	"golang.org/x/mod/module"

	"github.com/AleutianAI/testguess/services/guesser/datatypes"
)

const (
	// GeneratedDir is the top-level package under the project root.
	GeneratedDir = "generated"

	// TestsDir holds one package per view segment.
	TestsDir = "tests"

	// MarkerFile is the package marker written into every directory.
	MarkerFile = "doc.go"
)

// Kind distinguishes package markers from the test file.
type Kind int

const (
	// KindPackageMarker is a doc.go file declaring the package.
	KindPackageMarker Kind = iota

	// KindTestFile is the generated test file.
	KindTestFile
)

func (k Kind) String() string {
	switch k {
	case KindPackageMarker:
		return "marker"
	case KindTestFile:
		return "test"
	default:
		return "unknown"
	}
}

// Entry is one directory and file pair to ensure.
type Entry struct {
	Dir     string
	File    string
	Package string
	Kind    Kind
}

// Layout is the ordered plan for one generation.
type Layout struct {
	Root    string
	Entries []Entry
}

// Terminal returns the test-file entry, if the plan has one.
func (l Layout) Terminal() (Entry, bool) {
	if n := len(l.Entries); n > 0 && l.Entries[n-1].Kind == KindTestFile {
		return l.Entries[n-1], true
	}
	return Entry{}, false
}

// TestFileName is the file name for an identifier.
func TestFileName(id datatypes.Identifier) string {
	return "guessed_" + string(id) + "_test.go"
}

// Plan lays out the files for a view and identifier under root.
//
// # Description
//
// The result is, in order: the generated/ marker, the generated/tests/
// marker, one marker per cumulative view segment, and the test file in the
// deepest segment directory. The view may be dotted or slash-separated.
// An empty view yields only the two top-level markers.
//
// # Outputs
//
//   - Layout: The ordered plan.
//   - error: Wraps datatypes.ErrViewNameUnresolvable when a segment
//     normalizes to nothing or the resulting path is not a valid import
//     path.
//
// # Thread Safety
//
// Pure; safe for concurrent use.
func Plan(root, view string, id datatypes.Identifier) (Layout, error) {
	segments, err := Segments(view)
	if err != nil {
		return Layout{}, err
	}

	appRoot := filepath.Join(root, GeneratedDir)
	testRoot := filepath.Join(appRoot, TestsDir)

	entries := make([]Entry, 0, len(segments)+3)
	entries = append(entries,
		marker(appRoot, GeneratedDir),
		marker(testRoot, TestsDir),
	)

	dir := testRoot
	for _, seg := range segments {
		dir = filepath.Join(dir, seg)
		entries = append(entries, marker(dir, seg))
	}

	if len(segments) > 0 {
		entries = append(entries, Entry{
			Dir:     dir,
			File:    filepath.Join(dir, TestFileName(id)),
			Package: segments[len(segments)-1],
			Kind:    KindTestFile,
		})
	}
	return Layout{Root: root, Entries: entries}, nil
}

func marker(dir, pkg string) Entry {
	return Entry{
		Dir:     dir,
		File:    filepath.Join(dir, MarkerFile),
		Package: pkg,
		Kind:    KindPackageMarker,
	}
}

// Segments splits a view name into normalized package directory names.
func Segments(view string) ([]string, error) {
	trimmed := strings.Trim(view, "./")
	if trimmed == "" {
		return nil, nil
	}

	raw := strings.FieldsFunc(trimmed, func(r rune) bool { return r == '.' || r == '/' })
	segments := make([]string, 0, len(raw))
	for _, r := range raw {
		seg := NormalizeSegment(r)
		if seg == "" {
			return nil, fmt.Errorf("%w: segment %q of %q is empty after normalization", datatypes.ErrViewNameUnresolvable, r, view)
		}
		segments = append(segments, seg)
	}

	importPath := GeneratedDir + "/" + TestsDir + "/" + strings.Join(segments, "/")
	if err := module.CheckImportPath(importPath); err != nil {
		return nil, fmt.Errorf("%w: %v", datatypes.ErrViewNameUnresolvable, err)
	}
	return segments, nil
}

// reservedNames cannot be used as generated package directories even
// though they are valid identifiers.
var reservedNames = map[string]bool{
	"main":     true,
	"testdata": true,
	"vendor":   true,
}

// NormalizeSegment turns an arbitrary name into a Go package directory
// name: lower case, runes outside [a-z0-9_] replaced by '_', surrounding
// '_' trimmed, a leading digit prefixed with 'r', and keywords or reserved
// names suffixed with '_'. Returns "" when nothing usable remains.
func NormalizeSegment(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	seg := strings.Trim(b.String(), "_")
	if seg == "" {
		return ""
	}
	if seg[0] >= '0' && seg[0] <= '9' {
		seg = "r" + seg
	}
	if token.IsKeyword(seg) || reservedNames[seg] {
		seg += "_"
	}
	return seg
}
