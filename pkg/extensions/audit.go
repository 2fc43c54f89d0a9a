// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import (
	"context"
	"sync"
	"time"

	"github.com/AleutianAI/testguess/pkg/logging"
)

// AuditEvent records one generation attempt.
//
// # Event Types
//
//   - "generation.attempt": an observed interaction passed the gate
//
// Example:
//
//	event := AuditEvent{
//	    EventID:      genID,
//	    EventType:    "generation.attempt",
//	    Timestamp:    time.Now().UTC(),
//	    UserID:       principal.UserID,
//	    Action:       "generate",
//	    ResourceType: "test_file",
//	    ResourceID:   "101000011100",
//	    Outcome:      "generated",
//	    Metadata:     NewMetadata().Set("path", file),
//	}
type AuditEvent struct {
	// EventID uniquely identifies the event (the generation ID).
	EventID string

	// EventType categorizes the event. Format: "category.action".
	EventType string

	// Timestamp is when the event occurred (always UTC).
	// If zero, implementations should set it to time.Now().UTC().
	Timestamp time.Time

	// UserID identifies whose request was observed.
	// "anonymous" when no principal was attached.
	UserID string

	// Action describes the attempted operation.
	Action string

	// ResourceType is the category of resource involved.
	ResourceType string

	// ResourceID is the specific resource instance, usually the identifier.
	ResourceID string

	// Outcome is the pipeline outcome ("generated", "exists", "failed", ...).
	Outcome string

	// Metadata holds event-specific data such as "path" and "error".
	Metadata Metadata
}

// AuditLogger records generation attempts.
//
// Implementations must be safe for concurrent use. Log runs on the request
// goroutine, so it should return quickly.
type AuditLogger interface {
	// Log records an event.
	Log(ctx context.Context, event AuditEvent) error

	// Flush ensures all buffered events are persisted.
	Flush(ctx context.Context) error
}

// NopAuditLogger discards all events.
//
// Thread-safe: This implementation has no mutable state.
type NopAuditLogger struct{}

// Log discards the event.
func (l *NopAuditLogger) Log(ctx context.Context, event AuditEvent) error {
	return nil
}

// Flush is a no-op since nothing is buffered.
func (l *NopAuditLogger) Flush(ctx context.Context) error {
	return nil
}

// MemoryAuditLogger keeps events in memory. Tests use it to inspect what
// the pipeline decided.
type MemoryAuditLogger struct {
	mu     sync.Mutex
	events []AuditEvent
}

// NewMemoryAuditLogger creates an empty MemoryAuditLogger.
func NewMemoryAuditLogger() *MemoryAuditLogger {
	return &MemoryAuditLogger{}
}

// Log appends the event, filling in a zero Timestamp.
func (l *MemoryAuditLogger) Log(ctx context.Context, event AuditEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	return nil
}

// Flush is a no-op.
func (l *MemoryAuditLogger) Flush(ctx context.Context) error {
	return nil
}

// Events returns a copy of the recorded events in arrival order.
func (l *MemoryAuditLogger) Events() []AuditEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]AuditEvent, len(l.events))
	copy(out, l.events)
	return out
}

// LogAuditLogger writes each event as one structured log line. Metadata
// keys are emitted in sorted order with a "meta." prefix.
type LogAuditLogger struct {
	Logger *logging.Logger
}

// NewLogAuditLogger creates a LogAuditLogger writing to logger.
func NewLogAuditLogger(logger *logging.Logger) *LogAuditLogger {
	return &LogAuditLogger{Logger: logger}
}

// Log writes the event at Info level.
func (l *LogAuditLogger) Log(ctx context.Context, event AuditEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	args := []any{
		"event_id", event.EventID,
		"event_type", event.EventType,
		"timestamp", event.Timestamp.Format(time.RFC3339Nano),
		"user_id", event.UserID,
		"action", event.Action,
		"resource_type", event.ResourceType,
		"resource_id", event.ResourceID,
		"outcome", event.Outcome,
	}
	for _, key := range event.Metadata.Keys() {
		value, _ := event.Metadata.Get(key)
		args = append(args, "meta."+key, value)
	}
	l.Logger.Info("audit", args...)
	return nil
}

// Flush is a no-op; the logger owns its destinations.
func (l *LogAuditLogger) Flush(ctx context.Context) error {
	return nil
}

var (
	_ AuditLogger = (*NopAuditLogger)(nil)
	_ AuditLogger = (*MemoryAuditLogger)(nil)
	_ AuditLogger = (*LogAuditLogger)(nil)
)
