// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package extensions defines the pluggable hooks a host application
// passes to the test generator.
//
// The generator works without any of them. When a host does supply one,
// the generated tests change shape: a real AuthProvider means the host
// manages its own identities, so authenticated tests build a user with
// harness.NewUser instead of replaying a bearer token.
//
// # Extension Categories
//
//   - auth.go: Request principals (AuthInfo, AuthProvider)
//   - audit.go: A record of every generation attempt (AuditLogger)
//   - metadata.go: Typed key-value bag shared by both
//
// # Usage
//
//	opts := extensions.DefaultOptions()
//	svc, err := guesser.New(cfg, opts)
//
//	// Host with its own identity layer:
//	opts = extensions.DefaultOptions().WithAuth(myProvider)
//
// # Thread Safety
//
// All interface implementations must be safe for concurrent use.
package extensions

// ServiceOptions groups all extension points for service configuration.
//
// All fields are optional; nil values are replaced with no-op defaults
// by Normalize.
type ServiceOptions struct {
	// AuthProvider validates request tokens.
	// Default: NopAuthProvider (always returns the local user)
	AuthProvider AuthProvider

	// AuditLogger records generation attempts.
	// Default: NopAuditLogger (discards all events)
	AuditLogger AuditLogger
}

// DefaultOptions returns ServiceOptions with no-op defaults.
func DefaultOptions() ServiceOptions {
	return ServiceOptions{
		AuthProvider: &NopAuthProvider{},
		AuditLogger:  &NopAuditLogger{},
	}
}

// WithAuth returns a copy of opts with the given AuthProvider.
func (opts ServiceOptions) WithAuth(provider AuthProvider) ServiceOptions {
	opts.AuthProvider = provider
	return opts
}

// WithAudit returns a copy of opts with the given AuditLogger.
func (opts ServiceOptions) WithAudit(logger AuditLogger) ServiceOptions {
	opts.AuditLogger = logger
	return opts
}

// Normalize returns a copy of opts with nil fields replaced by no-op
// implementations.
func (opts ServiceOptions) Normalize() ServiceOptions {
	if opts.AuthProvider == nil {
		opts.AuthProvider = &NopAuthProvider{}
	}
	if opts.AuditLogger == nil {
		opts.AuditLogger = &NopAuditLogger{}
	}
	return opts
}

// HasCustomAuth reports whether the host supplied its own AuthProvider.
//
// A host with its own identity layer can mint users in tests, which is
// what the custom-users capability describes.
func (opts ServiceOptions) HasCustomAuth() bool {
	if opts.AuthProvider == nil {
		return false
	}
	_, isNop := opts.AuthProvider.(*NopAuthProvider)
	return !isNop
}
