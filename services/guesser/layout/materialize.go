// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package layout

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/AleutianAI/testguess/pkg/logging"
	"github.com/AleutianAI/testguess/services/guesser/datatypes"
)

const (
	// DefaultDirMode is used when Materializer.DirMode is zero.
	DefaultDirMode os.FileMode = 0o750

	// DefaultFileMode is used for markers and test files when no mode is
	// configured.
	DefaultFileMode os.FileMode = 0o644
)

// Materializer creates the directories and package markers of a Layout.
type Materializer struct {
	DirMode  os.FileMode
	FileMode os.FileMode
	Logger   *logging.Logger
}

// Result reports what one Materialize call changed.
type Result struct {
	CreatedDirs  []string
	CreatedFiles []string
	SkippedFiles []string
}

// Created is the number of directories and files created.
func (r Result) Created() int {
	return len(r.CreatedDirs) + len(r.CreatedFiles)
}

// Materialize ensures every entry's directory exists and writes missing
// package markers.
//
// # Description
//
// Existing files are never touched, so a second call on the same plan
// creates nothing. The test-file entry only gets its directory; its
// content is written separately with WriteExclusive.
//
// # Outputs
//
//   - Result: What was created or skipped, including partial progress
//     when an error stops the batch.
//   - error: Wraps datatypes.ErrFilesystemFailure. Entries after the
//     failing one are not attempted; earlier ones stay on disk.
func (m *Materializer) Materialize(plan Layout) (Result, error) {
	var result Result
	logger := m.logger()

	for _, entry := range plan.Entries {
		created, err := m.ensureDir(entry.Dir)
		if err != nil {
			logger.Error("unable to create directory, halting preparation",
				"dir", entry.Dir,
				"error", err,
			)
			return result, fmt.Errorf("%w: create directory %s: %v", datatypes.ErrFilesystemFailure, entry.Dir, err)
		}
		if created {
			result.CreatedDirs = append(result.CreatedDirs, entry.Dir)
		}

		if entry.Kind != KindPackageMarker {
			continue
		}

		wrote, err := m.writeMarker(entry)
		if err != nil {
			logger.Error("unable to write package marker, halting preparation",
				"path", entry.File,
				"error", err,
			)
			return result, fmt.Errorf("%w: write %s: %v", datatypes.ErrFilesystemFailure, entry.File, err)
		}
		if wrote {
			result.CreatedFiles = append(result.CreatedFiles, entry.File)
		} else {
			result.SkippedFiles = append(result.SkippedFiles, entry.File)
		}
	}
	return result, nil
}

func (m *Materializer) ensureDir(dir string) (bool, error) {
	info, err := os.Stat(dir)
	if err == nil {
		if !info.IsDir() {
			return false, fmt.Errorf("%s exists and is not a directory", dir)
		}
		return false, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return false, err
	}
	if err := os.MkdirAll(dir, m.dirMode()); err != nil {
		return false, err
	}
	return true, nil
}

// writeMarker creates the marker with O_EXCL; an existing file is skipped.
func (m *Materializer) writeMarker(entry Entry) (bool, error) {
	f, err := os.OpenFile(entry.File, os.O_WRONLY|os.O_CREATE|os.O_EXCL, m.fileMode())
	if errors.Is(err, fs.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if _, err := f.Write(MarkerSource(entry.Package)); err != nil {
		f.Close()
		return false, err
	}
	return true, f.Close()
}

// MarkerSource is the content of a package marker file.
func MarkerSource(pkg string) []byte {
	return []byte("// Package " + pkg + " holds tests generated from observed traffic.\npackage " + pkg + "\n")
}

func (m *Materializer) dirMode() os.FileMode {
	if m.DirMode == 0 {
		return DefaultDirMode
	}
	return m.DirMode
}

func (m *Materializer) fileMode() os.FileMode {
	if m.FileMode == 0 {
		return DefaultFileMode
	}
	return m.FileMode
}

func (m *Materializer) logger() *logging.Logger {
	if m.Logger == nil {
		return logging.Discard()
	}
	return m.Logger
}
