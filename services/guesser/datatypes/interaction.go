// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"net/http"
	"net/url"

	"github.com/AleutianAI/testguess/pkg/extensions"
)

// Interaction is one observed request/response pair, copied out of the
// HTTP framework into plain data.
type Interaction struct {
	// Request side.
	Method        string
	Path          string
	Query         url.Values
	Form          url.Values
	RequestHeader http.Header
	Principal     *extensions.AuthInfo

	// Harness is true when the request came from a generated test.
	Harness bool

	// Response side.
	Status         int
	ResponseHeader http.Header

	// Body is the captured response body, at most the capture limit.
	Body []byte

	// Truncated is true when the handler wrote more than the capture
	// limit.
	Truncated bool

	// Streaming is true for flushed or event-stream responses.
	Streaming bool

	// TemplateName is the template the handler declared, if any.
	TemplateName string

	// ContextData is the rendering context the handler attached. A handler
	// may attach an empty map, so presence is tracked separately.
	ContextData    map[string]any
	HasContextData bool

	// Route is the matched route, nil when no route matched.
	Route *RouteMatch
}

// Param is one path parameter of a matched route.
type Param struct {
	Key   string
	Value string
}

// RouteMatch describes the route that served an interaction.
type RouteMatch struct {
	// Pattern is the registered route pattern, e.g. "/items/:id".
	Pattern string

	// Params are the path parameters in pattern order.
	Params []Param

	// App and Name are set when the route was registered with an explicit
	// namespaced name.
	App  string
	Name string

	// ViewName is an explicit dotted view name.
	ViewName string

	// HandlerName is the framework's name for the final handler function.
	HandlerName string

	// Handler is an explicit value the route was tagged with. It takes
	// precedence over HandlerName.
	Handler any
}

// Args returns the values of catch-all parameters in pattern order. They
// are replayed positionally when reversing the route.
func (r *RouteMatch) Args() []string {
	args := []string{}
	if r == nil {
		return args
	}
	for _, p := range r.Params {
		if isCatchAll(r.Pattern, p.Key) {
			args = append(args, p.Value)
		}
	}
	return args
}

// Kwargs returns the values of named parameters keyed by name.
func (r *RouteMatch) Kwargs() map[string]string {
	kwargs := map[string]string{}
	if r == nil {
		return kwargs
	}
	for _, p := range r.Params {
		if !isCatchAll(r.Pattern, p.Key) {
			kwargs[p.Key] = p.Value
		}
	}
	return kwargs
}

func isCatchAll(pattern, key string) bool {
	needle := "*" + key
	for i := 0; i+len(needle) <= len(pattern); i++ {
		if pattern[i:i+len(needle)] != needle {
			continue
		}
		end := i + len(needle)
		if (i == 0 || pattern[i-1] == '/') && (end == len(pattern) || pattern[end] == '/') {
			return true
		}
	}
	return false
}
