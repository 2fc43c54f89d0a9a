// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package capture carries rendering details from a handler back to an
// in-process test client.
//
// The test client puts a Sink into the request context; handlers that
// declare their template and context data through the guesser middleware
// helpers record into it. Its presence also marks the request as coming
// from a test, so the observer does not generate tests from tests.
package capture

import (
	"context"
	"net/http"
	"sync"
)

// HeaderHarness marks requests sent by generated tests. Any non-empty
// value counts.
const HeaderHarness = "X-Testguess-Harness"

type sinkKey struct{}

// Sink receives what a handler rendered.
type Sink struct {
	mu       sync.Mutex
	template string
	data     map[string]any
	hasData  bool
}

// NewSink creates an empty Sink.
func NewSink() *Sink {
	return &Sink{}
}

// WithSink returns a context carrying s.
func WithSink(ctx context.Context, s *Sink) context.Context {
	return context.WithValue(ctx, sinkKey{}, s)
}

// FromContext returns the Sink in ctx, if any.
func FromContext(ctx context.Context) (*Sink, bool) {
	s, ok := ctx.Value(sinkKey{}).(*Sink)
	return s, ok && s != nil
}

// Record stores the template name and context data. A nil data map still
// marks the context as attached when attached is true.
func (s *Sink) Record(template string, data map[string]any, attached bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if template != "" {
		s.template = template
	}
	if attached {
		s.hasData = true
		if s.data == nil {
			s.data = make(map[string]any, len(data))
		}
		for k, v := range data {
			s.data[k] = v
		}
	}
}

// Template returns the recorded template name.
func (s *Sink) Template() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.template
}

// Data returns a copy of the recorded context data and whether any was
// attached.
func (s *Sink) Data() (map[string]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasData {
		return nil, false
	}
	out := make(map[string]any, len(s.data))
	for k, v := range s.data {
		out[k] = v
	}
	return out, true
}

// IsHarnessRequest reports whether r was sent by a generated test.
func IsHarnessRequest(r *http.Request) bool {
	if r.Header.Get(HeaderHarness) != "" {
		return true
	}
	_, ok := FromContext(r.Context())
	return ok
}
