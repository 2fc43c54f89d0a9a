// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/testguess/pkg/capture"
)

const (
	routeNameKey = "testguess_route_name"
	renderKey    = "testguess_render"
)

type routeName struct {
	app      string
	name     string
	viewName string
	handler  any
}

type rendered struct {
	template string
	data     map[string]any
	attached bool
}

// Name labels the route with an application and route name. Generated
// tests for it live under <app>/<name>.
func Name(app, name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(routeNameKey, routeName{app: app, name: name})
		c.Next()
	}
}

// ViewOf labels the route with an explicit view. A string is used as the
// view name; any other value, such as a handler struct, is named after its
// type.
func ViewOf(v any) gin.HandlerFunc {
	label := routeName{handler: v}
	if s, ok := v.(string); ok {
		label = routeName{viewName: s}
	}
	return func(c *gin.Context) {
		c.Set(routeNameKey, label)
		c.Next()
	}
}

// Attach declares the template and rendering context of the response.
// Both are reported to an in-process test client when one is listening.
func Attach(c *gin.Context, template string, data map[string]any) {
	r := rendered{template: template, data: data, attached: true}
	if prev, ok := c.Get(renderKey); ok {
		if p, ok := prev.(rendered); ok && template == "" {
			r.template = p.template
		}
	}
	c.Set(renderKey, r)
	if sink, ok := capture.FromContext(c.Request.Context()); ok {
		sink.Record(template, data, true)
	}
}

// HTML renders a template like gin's c.HTML and attaches its context.
// obj is attached as context data when it is a gin.H or map[string]any;
// the template name is attached either way.
func HTML(c *gin.Context, code int, name string, obj any) {
	switch data := obj.(type) {
	case gin.H:
		Attach(c, name, data)
	case map[string]any:
		Attach(c, name, data)
	default:
		c.Set(renderKey, rendered{template: name})
		if sink, ok := capture.FromContext(c.Request.Context()); ok {
			sink.Record(name, nil, false)
		}
	}
	c.HTML(code, name, obj)
}

func renderedOf(c *gin.Context) rendered {
	if v, ok := c.Get(renderKey); ok {
		if r, ok := v.(rendered); ok {
			return r
		}
	}
	return rendered{}
}

func routeNameOf(c *gin.Context) routeName {
	if v, ok := c.Get(routeNameKey); ok {
		if r, ok := v.(routeName); ok {
			return r
		}
	}
	return routeName{}
}
