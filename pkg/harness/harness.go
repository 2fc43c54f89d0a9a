// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package harness is the runtime support imported by generated tests.
//
// Generated suites replay the request they were built from through a
// Client. The client either serves the request in-process, through a
// handler registered with SetHandler, or sends it to a running server at
// $TESTGUESS_BASE_URL. With neither available the test is skipped.
//
//	func TestMain(m *testing.M) {
//	    harness.SetHandler(app.Router())
//	    harness.SetUserFactory(app.TestUser)
//	    os.Exit(m.Run())
//	}
//
// Every request the client sends is marked with capture.HeaderHarness so
// the observer on the other side ignores it.
package harness

import (
	"net/http"
	"net/url"
	"sync"
)

// Environment variables read by the harness.
const (
	EnvBaseURL     = "TESTGUESS_BASE_URL"
	EnvBearerToken = "TESTGUESS_BEARER_TOKEN"
)

// DefaultBearerToken is replayed when no token is configured. Hosts using
// the no-op auth provider accept any token.
const DefaultBearerToken = "testguess-harness"

// Values is request data replayed by generated tests.
type Values = url.Values

type registry struct {
	mu          sync.RWMutex
	handler     http.Handler
	userFactory UserFactory
	bearer      string
}

var global registry

// SetHandler registers the in-process handler used by new clients.
func SetHandler(h http.Handler) {
	global.mu.Lock()
	defer global.mu.Unlock()
	global.handler = h
}

// SetUserFactory registers the factory used by NewUser.
func SetUserFactory(f UserFactory) {
	global.mu.Lock()
	defer global.mu.Unlock()
	global.userFactory = f
}

// SetBearerToken registers the token returned by BearerToken.
func SetBearerToken(token string) {
	global.mu.Lock()
	defer global.mu.Unlock()
	global.bearer = token
}

// Reset clears every registration.
func Reset() {
	global.mu.Lock()
	defer global.mu.Unlock()
	global.handler = nil
	global.userFactory = nil
	global.bearer = ""
}

func snapshot() (http.Handler, UserFactory, string) {
	global.mu.RLock()
	defer global.mu.RUnlock()
	return global.handler, global.userFactory, global.bearer
}
