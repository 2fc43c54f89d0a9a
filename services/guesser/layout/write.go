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
	"path/filepath"
	"syscall"

	"github.com/AleutianAI/testguess/services/guesser/datatypes"
)

// WriteExclusive writes data to path only if path does not exist.
//
// # Description
//
// The content goes to a temporary file in the same directory first and is
// then hard-linked into place, so readers never observe a partial file and
// two racing writers produce exactly one file. On filesystems without hard
// links it falls back to an O_EXCL create.
//
// # Outputs
//
//   - bool: True if this call created the file; false if it already existed.
//   - error: Wraps datatypes.ErrFilesystemFailure.
func WriteExclusive(path string, data []byte, mode os.FileMode) (bool, error) {
	if mode == 0 {
		mode = DefaultFileMode
	}
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, ".guessed-*.tmp")
	if err != nil {
		return false, fmt.Errorf("%w: create temp in %s: %v", datatypes.ErrFilesystemFailure, dir, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return false, fmt.Errorf("%w: write %s: %v", datatypes.ErrFilesystemFailure, tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return false, fmt.Errorf("%w: sync %s: %v", datatypes.ErrFilesystemFailure, tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return false, fmt.Errorf("%w: close %s: %v", datatypes.ErrFilesystemFailure, tmpName, err)
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		return false, fmt.Errorf("%w: chmod %s: %v", datatypes.ErrFilesystemFailure, tmpName, err)
	}

	err = os.Link(tmpName, path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrExist):
		return false, nil
	}
	return createExclusive(path, data, mode)
}

func createExclusive(path string, data []byte, mode os.FileMode) (bool, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, mode)
	if errors.Is(err, fs.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: create %s: %v", datatypes.ErrFilesystemFailure, path, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return false, fmt.Errorf("%w: write %s: %v", datatypes.ErrFilesystemFailure, path, err)
	}
	if err := f.Close(); err != nil {
		return false, fmt.Errorf("%w: close %s: %v", datatypes.ErrFilesystemFailure, path, err)
	}
	return true, nil
}

// Exists reports whether path exists. A path under a non-directory does
// not exist.
//
// # Outputs
//
//   - bool: True if path exists.
//   - error: Wraps datatypes.ErrFilesystemFailure when path cannot be
//     inspected, for example on a permission error.
func Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, syscall.ENOTDIR):
		return false, nil
	}
	return false, fmt.Errorf("%w: stat %s: %v", datatypes.ErrFilesystemFailure, path, err)
}
