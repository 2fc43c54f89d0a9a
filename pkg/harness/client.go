// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package harness

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/AleutianAI/testguess/pkg/capture"
)

// Client replays requests for one test.
type Client struct {
	t       testing.TB
	handler http.Handler
	baseURL string
	http    *http.Client
	header  http.Header
}

// NewClient returns a client for t, skipping the test when no target is
// configured.
func NewClient(t testing.TB) *Client {
	t.Helper()
	handler, _, _ := snapshot()
	c := &Client{t: t, handler: handler, header: http.Header{}}
	if handler != nil {
		return c
	}

	base := strings.TrimRight(os.Getenv(EnvBaseURL), "/")
	if base == "" {
		t.Skipf("no handler registered and $%s unset", EnvBaseURL)
		return c
	}
	c.baseURL = base
	c.http = &http.Client{
		Timeout: 30 * time.Second,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return c
}

// SetHeader sets a header sent with every request.
func (c *Client) SetHeader(key, value string) {
	c.header.Set(key, value)
}

// SetBearer authenticates later requests with token.
func (c *Client) SetBearer(token string) {
	c.header.Set("Authorization", "Bearer "+token)
}

// Login authenticates later requests as u.
func (c *Client) Login(u *User) {
	c.SetBearer(u.Token)
}

// Get sends a GET with data as the query string.
func (c *Client) Get(path string, data Values) *Response {
	return c.Do(http.MethodGet, path, data)
}

// Post sends a POST with data as a form body.
func (c *Client) Post(path string, data Values) *Response {
	return c.Do(http.MethodPost, path, data)
}

// Do sends a request and fails the test on transport errors. POST data is
// form-encoded into the body; for every other method it is added to the
// query string.
func (c *Client) Do(method, path string, data Values) *Response {
	c.t.Helper()

	var body io.Reader
	target := path
	if method == http.MethodPost {
		body = strings.NewReader(data.Encode())
	} else if len(data) > 0 {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		target = path + sep + data.Encode()
	}

	if c.handler != nil {
		return c.serve(method, target, body)
	}
	return c.send(method, target, body)
}

func (c *Client) prepare(req *http.Request) {
	for k, v := range c.header {
		req.Header[k] = append([]string(nil), v...)
	}
	req.Header.Set(capture.HeaderHarness, "1")
	if req.Method == http.MethodPost {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
}

func (c *Client) serve(method, target string, body io.Reader) *Response {
	req := httptest.NewRequest(method, target, body)
	c.prepare(req)
	sink := capture.NewSink()
	req = req.WithContext(capture.WithSink(req.Context(), sink))

	rec := httptest.NewRecorder()
	c.handler.ServeHTTP(rec, req)

	res := rec.Result()
	defer res.Body.Close()
	data, _ := io.ReadAll(res.Body)

	ctxData, _ := sink.Data()
	return &Response{
		StatusCode: res.StatusCode,
		Header:     res.Header,
		Body:       data,
		Streaming:  rec.Flushed || isEventStream(res.Header),
		Template:   sink.Template(),
		Context:    ctxData,
		captured:   true,
	}
}

func (c *Client) send(method, target string, body io.Reader) *Response {
	c.t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), method, c.baseURL+target, body)
	if err != nil {
		c.t.Fatalf("build request: %v", err)
	}
	c.prepare(req)

	res, err := c.http.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, target, err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		c.t.Fatalf("read body: %v", err)
	}
	return &Response{
		StatusCode: res.StatusCode,
		Header:     res.Header,
		Body:       data,
		Streaming:  isEventStream(res.Header),
	}
}

func isEventStream(h http.Header) bool {
	return strings.HasPrefix(h.Get("Content-Type"), "text/event-stream")
}

// Response is a replayed response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Streaming  bool

	// Template and Context are only filled for in-process requests.
	Template string
	Context  map[string]any

	captured bool
}

// RequireCapture skips the test unless the response was served in-process
// and therefore carries template and context details.
func (r *Response) RequireCapture(t testing.TB) {
	t.Helper()
	if !r.captured {
		t.Skip("context data is only available for in-process handlers")
	}
}

// ContextKeys returns the sorted context data keys.
func (r *Response) ContextKeys() []string {
	keys := make([]string, 0, len(r.Context))
	for k := range r.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
