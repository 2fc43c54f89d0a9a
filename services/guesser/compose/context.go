// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package compose

import (
	"bytes"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/AleutianAI/testguess/pkg/harness"
	"github.com/AleutianAI/testguess/services/guesser/datatypes"
)

// DefaultExcludedHeaders change between otherwise identical responses.
var DefaultExcludedHeaders = []string{"Last-Modified", "Expires", "Location"}

// DefaultProxyTypes render lazily and carry no useful type assertion.
var DefaultProxyTypes = []string{"html/template.HTML"}

// Header is one response header with all of its values.
type Header struct {
	Name   string
	Values []string
}

// ContextType pairs a rendering-context key with the type name of its value.
type ContextType struct {
	Key      string
	TypeName string
}

// Principal is the identity the generated suite logs in as.
type Principal struct {
	Username string
	Roles    []string
}

// Context is everything a fragment may read.
type Context struct {
	Package    string
	Method     string
	Path       string
	Pattern    string
	View       string
	Identifier datatypes.Identifier

	Args   []string
	Kwargs map[string]string
	Data   url.Values

	Status  int
	Headers []Header

	ContextKeys  []string
	ContextTypes []ContextType

	Principal Principal
	Vector    datatypes.FeatureVector
	JSONArray bool
}

// SuiteName is the suite type declared by the generated file. Files for one
// view share a package, so the name carries the identifier.
func (c Context) SuiteName() string {
	return "Guessed" + string(c.Identifier) + "Suite"
}

// TestName is the top-level test function that runs the suite.
func (c Context) TestName() string {
	return "TestGuessed" + string(c.Identifier)
}

// ContextOptions tunes BuildContext.
type ContextOptions struct {
	// ExcludeHeaders is added to DefaultExcludedHeaders.
	ExcludeHeaders []string

	// ProxyTypes is added to DefaultProxyTypes.
	ProxyTypes []string
}

// BuildContext derives the composer input from an observed interaction.
//
// # Inputs
//
//   - in: The observed interaction.
//   - v: Its feature vector.
//   - view: The resolved view name.
//   - pkg: Package name of the directory the file is written to.
//   - opts: Header and type exclusions.
//
// # Outputs
//
//   - Context: Deterministic for identical inputs; header and key lists
//     are sorted.
func BuildContext(in datatypes.Interaction, v datatypes.FeatureVector, view, pkg string, opts ContextOptions) Context {
	ctx := Context{
		Package:    pkg,
		Method:     in.Method,
		Path:       in.Path,
		Pattern:    in.Path,
		View:       view,
		Identifier: v.Identifier(),
		Status:     in.Status,
		Headers:    filterHeaders(in.ResponseHeader, opts.ExcludeHeaders),
		Vector:     v,
		JSONArray:  bytes.HasPrefix(bytes.TrimSpace(in.Body), []byte("[")),
	}

	if in.Route != nil {
		if in.Route.Pattern != "" {
			ctx.Pattern = in.Route.Pattern
		}
		ctx.Args = in.Route.Args()
		ctx.Kwargs = in.Route.Kwargs()
	}

	switch {
	case v.IsPost():
		ctx.Data = in.Form
	case v.IsGet():
		ctx.Data = in.Query
	}

	if v.IsAuthenticated() {
		ctx.Principal.Username = fmt.Sprintf("%d@%s", in.Status, in.Method)
		if in.Principal != nil {
			ctx.Principal.Roles = append([]string(nil), in.Principal.Roles...)
		}
	}

	if v.HasContextData() {
		ctx.ContextKeys, ctx.ContextTypes = inventory(in.ContextData, opts.ProxyTypes)
	}
	return ctx
}

func filterHeaders(h http.Header, extra []string) []Header {
	excluded := make(map[string]bool, len(DefaultExcludedHeaders)+len(extra))
	for _, name := range DefaultExcludedHeaders {
		excluded[http.CanonicalHeaderKey(name)] = true
	}
	for _, name := range extra {
		excluded[http.CanonicalHeaderKey(name)] = true
	}

	var out []Header
	for name, values := range h {
		canonical := http.CanonicalHeaderKey(name)
		if excluded[canonical] {
			continue
		}
		out = append(out, Header{Name: canonical, Values: append([]string(nil), values...)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// inventory returns every context key plus the type name of each value,
// except nil values and lazily rendered proxy types.
func inventory(data map[string]any, proxies []string) ([]string, []ContextType) {
	skip := make(map[string]bool, len(DefaultProxyTypes)+len(proxies))
	for _, name := range append(append([]string(nil), DefaultProxyTypes...), proxies...) {
		skip[name] = true
	}

	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var types []ContextType
	for _, k := range keys {
		if name, ok := assertableType(data[k], skip); ok {
			types = append(types, ContextType{Key: k, TypeName: name})
		}
	}
	return keys, types
}

func assertableType(v any, skip map[string]bool) (string, bool) {
	name := harness.TypeName(v)
	if name == "" || skip[strings.TrimLeft(name, "*")] {
		return "", false
	}
	return name, true
}
