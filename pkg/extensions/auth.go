// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import (
	"context"
	"errors"
)

// ErrUnauthorized is returned when authentication fails.
//
// Example:
//
//	if !validToken {
//	    return nil, fmt.Errorf("invalid token format: %w", extensions.ErrUnauthorized)
//	}
var ErrUnauthorized = errors.New("unauthorized")

// AnonymousUserID is the UserID carried by an anonymous principal.
const AnonymousUserID = "anonymous"

// AuthInfo is the principal attached to a request.
//
// Example:
//
//	info := &AuthInfo{
//	    UserID: "user-123",
//	    Roles:  []string{"staff"},
//	    Metadata: NewMetadata().Set("department", "engineering"),
//	}
type AuthInfo struct {
	// UserID is the unique identifier for the user. Empty means the
	// principal carries no identity.
	UserID string

	// Email is the user's email address. May be empty.
	Email string

	// Roles contains the user's role memberships. Generated tests replay
	// them when minting a user.
	Roles []string

	// Anonymous marks a principal the host attached for an
	// unauthenticated visitor.
	Anonymous bool

	// Metadata holds additional provider claims.
	Metadata Metadata
}

// HasRole checks if the user has a specific role.
func (a *AuthInfo) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsAuthenticated reports whether the principal represents a signed-in
// user. A nil receiver, an empty UserID and an anonymous principal are
// all unauthenticated.
func (a *AuthInfo) IsAuthenticated() bool {
	if a == nil {
		return false
	}
	return a.UserID != "" && !a.Anonymous && a.UserID != AnonymousUserID
}

// Anonymous returns the principal for an unauthenticated visitor.
func Anonymous() *AuthInfo {
	return &AuthInfo{UserID: AnonymousUserID, Anonymous: true}
}

// AuthProvider validates authentication tokens and returns user identity.
//
// Implementations must be safe for concurrent use by multiple goroutines.
//
// # Open Source Behavior
//
// The default NopAuthProvider always returns a valid "local-user" with admin
// privileges, so the demo server works without identity infrastructure.
type AuthProvider interface {
	// Validate checks if the token is valid and returns the user's identity.
	//
	// Returns ErrUnauthorized (or wrapped) if the token is invalid.
	Validate(ctx context.Context, token string) (*AuthInfo, error)
}

// NopAuthProvider is the default authentication provider.
//
// Thread-safe: This implementation has no mutable state.
//
// Example:
//
//	provider := &NopAuthProvider{}
//	info, err := provider.Validate(ctx, "any-token")
//	// info.UserID == "local-user"
//	// info.Roles == []string{"admin"}
type NopAuthProvider struct{}

// Validate always returns a valid local user with admin privileges.
func (p *NopAuthProvider) Validate(_ context.Context, _ string) (*AuthInfo, error) {
	return &AuthInfo{
		UserID: "local-user",
		Roles:  []string{"admin"},
	}, nil
}

// StaticTokenProvider maps fixed bearer tokens to principals.
//
// It is the smallest useful custom provider: the demo server and tests use
// it to show the custom-users path.
type StaticTokenProvider struct {
	Users map[string]*AuthInfo
}

// Validate looks the token up in Users.
func (p *StaticTokenProvider) Validate(_ context.Context, token string) (*AuthInfo, error) {
	if info, ok := p.Users[token]; ok && info != nil {
		return info, nil
	}
	return nil, ErrUnauthorized
}

var (
	_ AuthProvider = (*NopAuthProvider)(nil)
	_ AuthProvider = (*StaticTokenProvider)(nil)
)
