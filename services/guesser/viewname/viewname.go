// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package viewname finds the best dotted name for the handler that served
// a route.
//
// A route can be named in several ways: an explicit app and route name, an
// explicit dotted view name, a tagged handler value, or the framework's
// handler function name. Each is modeled as one variant of the closed
// Nameable set, and Resolve walks them recursively.
//
//	name, err := viewname.Resolve(viewname.RouteMatch{
//	    Handler: viewname.FromHandlerName("example.com/app/views.Index"),
//	})
//	// name == "views.Index"
package viewname

import (
	"fmt"
	"reflect"
	"regexp"
	"runtime"
	"strings"

	"github.com/AleutianAI/testguess/services/guesser/datatypes"
)

// Nameable is one of RouteMatch, Wrapped, Func or Instance.
type Nameable interface {
	nameable()
}

// RouteMatch is a matched route.
type RouteMatch struct {
	App      string
	Name     string
	ViewName string
	Handler  Nameable
}

// Wrapped is a closure or adapter around another nameable thing.
type Wrapped struct {
	Inner Nameable
}

// Func is a plain function or method value.
type Func struct {
	Package string
	Symbol  string
}

// Instance is a value whose type serves the route, such as an
// http.Handler implementation.
type Instance struct {
	Package string
	Type    string
}

func (RouteMatch) nameable() {}
func (Wrapped) nameable()    {}
func (Func) nameable()       {}
func (Instance) nameable()   {}

// Resolve returns the dotted view name for n.
//
// # Description
//
// Rules, per variant:
//
//   - RouteMatch: "app.name" when both are set; the explicit ViewName when
//     neither is; otherwise the handler; otherwise the bare Name.
//   - Wrapped: the wrapped value.
//   - Func: "package.symbol".
//   - Instance: "package.Type".
//
// # Outputs
//
//   - string: Dotted name, never empty on success.
//   - error: Wraps datatypes.ErrViewNameUnresolvable when nothing matched.
func Resolve(n Nameable) (string, error) {
	return resolve(n, "")
}

func resolve(n Nameable, fallback string) (string, error) {
	switch v := n.(type) {
	case RouteMatch:
		if v.App != "" && v.Name != "" {
			return v.App + "." + v.Name, nil
		}
		if v.App == "" && v.Name == "" && v.ViewName != "" {
			return v.ViewName, nil
		}
		if v.Handler != nil {
			return resolve(v.Handler, firstNonEmpty(v.Name, fallback))
		}
		return named(firstNonEmpty(v.Name, fallback), "", n)
	case *RouteMatch:
		if v == nil {
			return named(fallback, "", n)
		}
		return resolve(*v, fallback)
	case Wrapped:
		if v.Inner == nil {
			return named(fallback, "", n)
		}
		return resolve(v.Inner, fallback)
	case Func:
		return named(firstNonEmpty(v.Symbol, fallback), v.Package, n)
	case Instance:
		return named(firstNonEmpty(v.Type, fallback), v.Package, n)
	default:
		return named(fallback, "", n)
	}
}

func named(name, pkg string, n Nameable) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: no name for %T", datatypes.ErrViewNameUnresolvable, n)
	}
	if pkg == "" {
		return name, nil
	}
	return pkg + "." + name, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// closureSuffix matches compiler-generated closure elements such as
// "func1" and the nested "2" in "func1.2".
var closureSuffix = regexp.MustCompile(`^(func\d+|\d+)$`)

// FromHandlerName parses a runtime function name such as
// "example.com/app/views.(*Server).Index-fm" or "main.routes.func1".
//
// The package is the last element of the import path. Closures unwrap to
// their enclosing function as Wrapped. Method values keep the receiver
// type name as part of the symbol. Returns nil for an empty name.
func FromHandlerName(name string) Nameable {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}

	pkgPath, symbol := splitFuncName(name)
	symbol = strings.TrimSuffix(symbol, "-fm")
	symbol = stripTypeArgs(symbol)

	parts := strings.Split(symbol, ".")
	wrapped := false
	for len(parts) > 1 && closureSuffix.MatchString(parts[len(parts)-1]) {
		parts = parts[:len(parts)-1]
		wrapped = true
	}
	for i, p := range parts {
		parts[i] = strings.Trim(p, "(*)")
	}

	fn := Func{Package: lastElement(pkgPath), Symbol: strings.Join(parts, ".")}
	if wrapped {
		return Wrapped{Inner: fn}
	}
	return fn
}

// FromValue names an arbitrary handler value. Functions are named through
// the runtime; other values by their type. A Nameable is returned as is.
// Returns nil for nil, unnamed and predeclared types.
func FromValue(v any) Nameable {
	if v == nil {
		return nil
	}
	if n, ok := v.(Nameable); ok {
		return n
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Func {
		if rv.IsNil() {
			return nil
		}
		fn := runtime.FuncForPC(rv.Pointer())
		if fn == nil {
			return nil
		}
		return FromHandlerName(fn.Name())
	}

	t := rv.Type()
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() == "" || t.PkgPath() == "" {
		return nil
	}
	return Instance{Package: lastElement(t.PkgPath()), Type: stripTypeArgs(t.Name())}
}

// FromRoute converts a matched route into the resolver's shape.
func FromRoute(r *datatypes.RouteMatch) Nameable {
	if r == nil {
		return nil
	}
	handler := FromValue(r.Handler)
	if handler == nil {
		handler = FromHandlerName(r.HandlerName)
	}
	return RouteMatch{
		App:      r.App,
		Name:     r.Name,
		ViewName: r.ViewName,
		Handler:  handler,
	}
}

// splitFuncName separates "a/b/pkg.Sym.bol" into "a/b/pkg" and "Sym.bol".
func splitFuncName(name string) (string, string) {
	slash := strings.LastIndex(name, "/")
	dot := strings.Index(name[slash+1:], ".")
	if dot < 0 {
		return "", name
	}
	dot += slash + 1
	return name[:dot], name[dot+1:]
}

func lastElement(path string) string {
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}

// stripTypeArgs removes generic instantiation brackets: "Handler[...]".
func stripTypeArgs(s string) string {
	var b strings.Builder
	depth := 0
	for _, r := range s {
		switch {
		case r == '[':
			depth++
		case r == ']' && depth > 0:
			depth--
		case depth == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}
