// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package middleware

import (
	"bytes"
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/testguess/pkg/capture"
	"github.com/AleutianAI/testguess/services/guesser/datatypes"
	"github.com/AleutianAI/testguess/services/guesser/pipeline"
)

// DefaultMaxBodyBytes bounds the captured response body.
const DefaultMaxBodyBytes int64 = 1 << 20

// Observer consumes completed interactions.
type Observer interface {
	Observe(ctx context.Context, in datatypes.Interaction) pipeline.Result
}

// Guess creates a Gin middleware that feeds every completed response to
// observer.
//
// # Description
//
// The response writer is wrapped to keep up to maxBodyBytes of the body and
// to notice flushes. After the handler chain returns, the request and
// response are assembled into an Interaction and passed to Observe on the
// serving goroutine. The response itself is never altered.
//
// # Inputs
//
//   - observer: Usually a *pipeline.Orchestrator.
//   - maxBodyBytes: Capture limit; zero or less means DefaultMaxBodyBytes.
//     A longer body is marked truncated and never counts as JSON.
func Guess(observer Observer, maxBodyBytes int64) gin.HandlerFunc {
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodPost {
			// Parse before the handler consumes the body; a JSON body is
			// left untouched by ParseForm.
			_ = c.Request.ParseForm()
		}

		w := &observingWriter{ResponseWriter: c.Writer, limit: maxBodyBytes}
		c.Writer = w
		c.Next()
		c.Writer = w.ResponseWriter

		observer.Observe(c.Request.Context(), interactionOf(c, w))
	}
}

func interactionOf(c *gin.Context, w *observingWriter) datatypes.Interaction {
	render := renderedOf(c)
	header := w.Header().Clone()

	in := datatypes.Interaction{
		Method:         c.Request.Method,
		Path:           c.Request.URL.Path,
		Query:          c.Request.URL.Query(),
		Form:           c.Request.PostForm,
		RequestHeader:  c.Request.Header.Clone(),
		Principal:      GetAuthInfo(c),
		Harness:        capture.IsHarnessRequest(c.Request),
		Status:         w.Status(),
		ResponseHeader: header,
		Body:           w.body.Bytes(),
		Truncated:      w.truncated,
		Streaming:      w.flushed || strings.HasPrefix(header.Get("Content-Type"), "text/event-stream"),
		TemplateName:   render.template,
		ContextData:    render.data,
		HasContextData: render.attached,
	}

	if pattern := c.FullPath(); pattern != "" {
		label := routeNameOf(c)
		route := &datatypes.RouteMatch{
			Pattern:     pattern,
			App:         label.app,
			Name:        label.name,
			ViewName:    label.viewName,
			HandlerName: c.HandlerName(),
			Handler:     label.handler,
		}
		if route.Handler == nil {
			route.Handler = c.Handler()
		}
		for _, p := range c.Params {
			route.Params = append(route.Params, datatypes.Param{Key: p.Key, Value: p.Value})
		}
		in.Route = route
	}
	return in
}

// observingWriter keeps a bounded copy of the body and records flushes.
type observingWriter struct {
	gin.ResponseWriter
	body      bytes.Buffer
	limit     int64
	truncated bool
	flushed   bool
}

func (w *observingWriter) Write(b []byte) (int, error) {
	w.keep(b)
	return w.ResponseWriter.Write(b)
}

func (w *observingWriter) WriteString(s string) (int, error) {
	w.keep([]byte(s))
	return w.ResponseWriter.WriteString(s)
}

func (w *observingWriter) Flush() {
	w.flushed = true
	w.ResponseWriter.Flush()
}

func (w *observingWriter) keep(b []byte) {
	room := w.limit - int64(w.body.Len())
	if int64(len(b)) > room {
		w.truncated = true
		if room > 0 {
			w.body.Write(b[:room])
		}
		return
	}
	w.body.Write(b)
}
