// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/AleutianAI/testguess/pkg/logging"
)

// ============================================================================
// ServiceOptions Tests
// ============================================================================

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	if _, ok := opts.AuthProvider.(*NopAuthProvider); !ok {
		t.Error("DefaultOptions().AuthProvider should be *NopAuthProvider")
	}
	if _, ok := opts.AuditLogger.(*NopAuditLogger); !ok {
		t.Error("DefaultOptions().AuditLogger should be *NopAuditLogger")
	}
	if opts.HasCustomAuth() {
		t.Error("DefaultOptions() should not report custom auth")
	}
}

func TestServiceOptions_WithAuth(t *testing.T) {
	original := DefaultOptions()
	custom := &StaticTokenProvider{}

	newOpts := original.WithAuth(custom)

	if newOpts.AuthProvider != custom {
		t.Error("WithAuth should set the custom AuthProvider")
	}
	if _, ok := original.AuthProvider.(*NopAuthProvider); !ok {
		t.Error("Original options should be unchanged after WithAuth")
	}
	if !newOpts.HasCustomAuth() {
		t.Error("HasCustomAuth should be true for a non-nop provider")
	}
}

func TestServiceOptions_WithAudit(t *testing.T) {
	audit := NewMemoryAuditLogger()
	opts := DefaultOptions().WithAudit(audit)
	if opts.AuditLogger != audit {
		t.Error("WithAudit should set the AuditLogger")
	}
}

func TestServiceOptions_Normalize(t *testing.T) {
	opts := ServiceOptions{}.Normalize()
	if opts.AuthProvider == nil || opts.AuditLogger == nil {
		t.Fatal("Normalize should fill nil fields")
	}
	if opts.HasCustomAuth() {
		t.Error("normalized zero options should not report custom auth")
	}
	if (ServiceOptions{}).HasCustomAuth() {
		t.Error("nil provider should not report custom auth")
	}
}

// ============================================================================
// Auth Tests
// ============================================================================

func TestAuthInfo_IsAuthenticated(t *testing.T) {
	tests := []struct {
		name string
		info *AuthInfo
		want bool
	}{
		{"nil", nil, false},
		{"empty user", &AuthInfo{}, false},
		{"anonymous flag", &AuthInfo{UserID: "u1", Anonymous: true}, false},
		{"anonymous helper", Anonymous(), false},
		{"anonymous id", &AuthInfo{UserID: AnonymousUserID}, false},
		{"user", &AuthInfo{UserID: "u1"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.info.IsAuthenticated(); got != tt.want {
				t.Errorf("IsAuthenticated() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAuthInfo_HasRole(t *testing.T) {
	info := &AuthInfo{UserID: "u1", Roles: []string{"staff", "editor"}}
	if !info.HasRole("editor") {
		t.Error("expected editor role")
	}
	if info.HasRole("admin") {
		t.Error("did not expect admin role")
	}
}

func TestNopAuthProvider_Validate(t *testing.T) {
	info, err := (&NopAuthProvider{}).Validate(context.Background(), "")
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if info.UserID != "local-user" || !info.HasRole("admin") {
		t.Errorf("unexpected principal: %+v", info)
	}
}

func TestStaticTokenProvider_Validate(t *testing.T) {
	alice := &AuthInfo{UserID: "alice"}
	p := &StaticTokenProvider{Users: map[string]*AuthInfo{"tok-a": alice}}

	got, err := p.Validate(context.Background(), "tok-a")
	if err != nil || got != alice {
		t.Fatalf("Validate(tok-a) = %v, %v", got, err)
	}

	_, err = p.Validate(context.Background(), "nope")
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
}

// ============================================================================
// Audit Tests
// ============================================================================

func TestMemoryAuditLogger(t *testing.T) {
	l := NewMemoryAuditLogger()
	ctx := context.Background()

	if err := l.Log(ctx, AuditEvent{EventType: "generation.attempt", Outcome: "generated"}); err != nil {
		t.Fatalf("Log: %v", err)
	}
	if err := l.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	events := l.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Timestamp.IsZero() {
		t.Error("Log should fill a zero Timestamp")
	}

	events[0].Outcome = "changed"
	if l.Events()[0].Outcome != "generated" {
		t.Error("Events should return a copy")
	}
}

func TestLogAuditLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(logging.Config{Output: &buf})
	defer logger.Close()

	l := NewLogAuditLogger(logger)
	err := l.Log(context.Background(), AuditEvent{
		EventID:   "gen-1",
		EventType: "generation.attempt",
		UserID:    "alice",
		Outcome:   "generated",
		Metadata:  NewMetadata().Set("view", "demo.index").Set("file", "/x_test.go"),
	})
	if err != nil {
		t.Fatalf("Log: %v", err)
	}
	if err := l.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"msg=audit", "event_id=gen-1", "user_id=alice", "outcome=generated", "meta.view=demo.index"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
	if strings.Index(out, "meta.file=") > strings.Index(out, "meta.view=") {
		t.Error("metadata keys should be written in sorted order")
	}
}

func TestNopAuditLogger(t *testing.T) {
	l := &NopAuditLogger{}
	if err := l.Log(context.Background(), AuditEvent{}); err != nil {
		t.Error(err)
	}
	if err := l.Flush(context.Background()); err != nil {
		t.Error(err)
	}
}

// ============================================================================
// Metadata Tests
// ============================================================================

func TestMetadata(t *testing.T) {
	m := NewMetadata().Set("path", "/tmp/x").Set("ok", true).Set("n", 3)

	if v, ok := m.Get("path"); !ok || v != "/tmp/x" {
		t.Errorf("Get(path) = %v, %v", v, ok)
	}
	if _, ok := m.Get("missing"); ok {
		t.Error("Get on missing key should fail")
	}
	if got := m.Keys(); !reflect.DeepEqual(got, []string{"n", "ok", "path"}) {
		t.Errorf("Keys() = %v", got)
	}

	clone := m.Clone()
	clone.Set("path", "other")
	if v, _ := m.Get("path"); v != "/tmp/x" {
		t.Error("Clone should not share storage")
	}

	var nilMeta Metadata
	if nilMeta.Clone() == nil {
		t.Error("Clone of nil should be non-nil")
	}
	if len(nilMeta.Keys()) != 0 {
		t.Error("Keys of nil should be empty")
	}
}
