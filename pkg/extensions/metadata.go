// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import "sort"

// =============================================================================
// Metadata Type
// =============================================================================

// Metadata stores arbitrary key-value pairs attached to principals and
// audit events.
//
// # Common Keys
//
//   - "path": Generated file path
//   - "view": Resolved view name
//   - "error": Error message if applicable
//   - "duration_ms": Attempt duration
//
// # Thread Safety
//
// Metadata is NOT thread-safe.
//
// Example:
//
//	meta := extensions.NewMetadata().
//	    Set("path", file).
//	    Set("view", view)
//
//	for _, key := range meta.Keys() {
//	    value, _ := meta.Get(key)
//	    args = append(args, key, value)
//	}
type Metadata map[string]any

// NewMetadata creates an empty Metadata instance.
func NewMetadata() Metadata {
	return make(Metadata)
}

// Set adds or updates a key-value pair and returns the Metadata for chaining.
//
// # Inputs
//
//   - key: The metadata key.
//   - value: The metadata value (any type).
//
// # Outputs
//
//   - Metadata: The same instance (for chaining).
func (m Metadata) Set(key string, value any) Metadata {
	m[key] = value
	return m
}

// Get retrieves a value by key.
func (m Metadata) Get(key string) (any, bool) {
	value, ok := m[key]
	return value, ok
}

// Clone returns a shallow copy. A nil Metadata clones to an empty one.
func (m Metadata) Clone() Metadata {
	clone := make(Metadata, len(m))
	for k, v := range m {
		clone[k] = v
	}
	return clone
}

// Keys returns all keys in sorted order.
func (m Metadata) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
