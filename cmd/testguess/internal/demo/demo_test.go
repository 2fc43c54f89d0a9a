// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package demo

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/testguess/pkg/extensions"
	"github.com/AleutianAI/testguess/pkg/harness"
	"github.com/AleutianAI/testguess/services/guesser/middleware"
)

func newEngine(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	require.NoError(t, Register(r))
	harness.SetHandler(r)
	t.Cleanup(harness.Reset)
	return r
}

func TestRoutes(t *testing.T) {
	newEngine(t)
	client := harness.NewClient(t)

	tests := []struct {
		path   string
		status int
	}{
		{"/", http.StatusOK},
		{"/1/", http.StatusOK},
		{"/2/", http.StatusOK},
		{"/3/", http.StatusOK},
		{"/4/", http.StatusOK},
		{"/5/", http.StatusMovedPermanently},
		{"/6/", http.StatusFound},
		{"/users/7", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			response := client.Get(tt.path, nil)
			assert.Equal(t, tt.status, response.StatusCode)
		})
	}
}

func TestIndexIsHTML5(t *testing.T) {
	newEngine(t)
	response := harness.NewClient(t).Get("/", nil)
	require.NoError(t, harness.ParseHTML(response.Body))
}

func TestTemplateResponseAttachesContext(t *testing.T) {
	newEngine(t)
	response := harness.NewClient(t).Get("/1/", nil)
	response.RequireCapture(t)

	assert.Equal(t, "base.html", response.Template)
	assert.Equal(t, []string{"form", "sub", "title", "user", "users"}, response.ContextKeys())
	assert.Equal(t, "*github.com/AleutianAI/testguess/cmd/testguess/internal/demo.User", harness.TypeName(response.Context["user"]))
	assert.Contains(t, string(response.Body), "Signed in as alice")
}

func TestPlainRenderAttachesNothing(t *testing.T) {
	newEngine(t)
	response := harness.NewClient(t).Get("/4/", nil)

	assert.Empty(t, response.Template)
	assert.Nil(t, response.Context)
}

func TestJSONResponse(t *testing.T) {
	newEngine(t)
	content, err := harness.DecodeJSON(harness.NewClient(t).Get("/2/", nil).Body)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"lol": float64(1)}, content)
}

func TestCreateUser(t *testing.T) {
	newEngine(t)
	client := harness.NewClient(t)

	response := client.Post("/users", harness.Values{"name": {"carol"}})
	assert.Equal(t, http.StatusCreated, response.StatusCode)

	response = client.Post("/users", nil)
	assert.Equal(t, http.StatusBadRequest, response.StatusCode)
}

func TestStaffRequiresRole(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name   string
		info   *extensions.AuthInfo
		status int
	}{
		{"anonymous", nil, http.StatusForbidden},
		{"without role", &extensions.AuthInfo{UserID: "bob", Roles: []string{"editor"}}, http.StatusForbidden},
		{"staff", &extensions.AuthInfo{UserID: "alice", Roles: []string{"staff"}}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			if tt.info != nil {
				r.Use(func(c *gin.Context) { middleware.SetAuthInfo(c, tt.info) })
			}
			require.NoError(t, Register(r))

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/staff/", nil))
			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusOK {
				assert.JSONEq(t, `{"user":"alice"}`, w.Body.String())
			}
		})
	}
}
