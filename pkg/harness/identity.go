// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package harness

import (
	"os"
	"testing"
)

// User is an identity minted for a test.
type User struct {
	Username string
	Roles    []string
	Token    string
}

// UserFactory creates a user the host application will accept.
type UserFactory func(username string, roles []string) (*User, error)

// NewUser mints a user through the registered factory. The test is skipped
// when no factory is registered and fails when the factory errors.
func NewUser(t testing.TB, username string, roles ...string) *User {
	t.Helper()
	_, factory, _ := snapshot()
	if factory == nil {
		t.Skip("no user factory registered")
		return nil
	}
	u, err := factory(username, roles)
	if err != nil {
		t.Fatalf("create user %q: %v", username, err)
	}
	return u
}

// BearerToken returns the token for the default identity: the registered
// token, then $TESTGUESS_BEARER_TOKEN, then DefaultBearerToken.
func BearerToken(t testing.TB) string {
	t.Helper()
	if _, _, token := snapshot(); token != "" {
		return token
	}
	if token := os.Getenv(EnvBearerToken); token != "" {
		return token
	}
	return DefaultBearerToken
}
