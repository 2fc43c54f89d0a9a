// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import "errors"

// Error taxonomy for the generation pipeline. Callers wrap these with
// fmt.Errorf("...: %w", err) and test with errors.Is.
var (
	// ErrInvalidConfiguration means a feature vector violated one of its
	// mutual-exclusion rules. It signals a classifier defect and is never
	// recovered.
	ErrInvalidConfiguration = errors.New("invalid feature configuration")

	// ErrViewNameUnresolvable means no view name could be derived for the
	// route, so there is no package to place a test in.
	ErrViewNameUnresolvable = errors.New("view name unresolvable")

	// ErrFilesystemFailure wraps directory and file creation errors. It
	// aborts only the current generation attempt.
	ErrFilesystemFailure = errors.New("filesystem failure")

	// ErrRootUnresolvable means no settings signal and no default produced
	// a project root.
	ErrRootUnresolvable = errors.New("project root unresolvable")
)

// ErrorKind maps an error to a short label for metrics and audit events.
// Unknown errors map to "internal".
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidConfiguration):
		return "invalid_configuration"
	case errors.Is(err, ErrViewNameUnresolvable):
		return "view_name_unresolvable"
	case errors.Is(err, ErrFilesystemFailure):
		return "filesystem_failure"
	case errors.Is(err, ErrRootUnresolvable):
		return "root_unresolvable"
	default:
		return "internal"
	}
}
