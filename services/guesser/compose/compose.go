// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package compose renders a generated test suite from independent
// template fragments.
//
// # Description
//
// Each fragment is a text/template rendered from Context alone. Which
// fragments appear is decided by an ordered table of predicates over the
// feature vector, evaluated once per file. Setup fragments go into the
// suite's SetupTest; the rest become test methods. The assembled source is
// run through go/format, so a fragment that renders invalid Go is reported
// as an error rather than written.
//
// Output contains no timestamps: identical inputs render identical bytes.
//
// # Thread Safety
//
// Composer is safe for concurrent use after New returns.
package compose

import (
	"bytes"
	"embed"
	"fmt"
	"go/format"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"text/template"

	"github.com/AleutianAI/testguess/services/guesser/datatypes"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Fragment names, in selection order.
const (
	FragmentSetupCustomUser = "setup_custom_user"
	FragmentSetupUser       = "setup_user"
	FragmentReverseURL      = "reverse_url"
	FragmentStatusCode      = "status_code"
	FragmentHeaders         = "headers"
	FragmentHTML5           = "html5"
	FragmentJSON            = "json"
	FragmentContextData     = "context_data"
)

// fragment is one row of the selection table.
type fragment struct {
	name  string
	setup bool
	when  func(v datatypes.FeatureVector) bool
}

func always(datatypes.FeatureVector) bool { return true }

var fragments = []fragment{
	{
		name:  FragmentSetupCustomUser,
		setup: true,
		when: func(v datatypes.FeatureVector) bool {
			return v.IsAuthenticated() && v.SupportsCustomUsers()
		},
	},
	{
		name:  FragmentSetupUser,
		setup: true,
		when: func(v datatypes.FeatureVector) bool {
			return v.IsAuthenticated() && !v.SupportsCustomUsers()
		},
	},
	{name: FragmentReverseURL, when: always},
	{name: FragmentStatusCode, when: always},
	{name: FragmentHeaders, when: always},
	{
		name: FragmentHTML5,
		when: func(v datatypes.FeatureVector) bool {
			return v.IsHTML5() && v.SupportsMarkupValidator()
		},
	},
	{name: FragmentJSON, when: datatypes.FeatureVector.IsJSON},
	{name: FragmentContextData, when: datatypes.FeatureVector.HasContextData},
}

// Select returns the names of the fragments a vector includes, in order.
func Select(v datatypes.FeatureVector) []string {
	var names []string
	for _, f := range fragments {
		if f.when(v) {
			names = append(names, f.name)
		}
	}
	return names
}

// Composer renders test files.
type Composer struct {
	tmpl *template.Template
}

// New parses the embedded fragments.
func New() (*Composer, error) {
	tmpl, err := template.New("compose").Funcs(funcMap).ParseFS(templateFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse fragments: %w", err)
	}
	for _, f := range fragments {
		if tmpl.Lookup(f.name+".tmpl") == nil {
			return nil, fmt.Errorf("parse fragments: missing %s.tmpl", f.name)
		}
	}
	if tmpl.Lookup("suite.tmpl") == nil {
		return nil, fmt.Errorf("parse fragments: missing suite.tmpl")
	}
	return &Composer{tmpl: tmpl}, nil
}

// suiteData is the top-level template input.
type suiteData struct {
	Context
	Flags []datatypes.Flag
	Setup []string
	Tests []string
}

// Compose renders the complete test file for ctx.
//
// # Outputs
//
//   - []byte: gofmt-formatted Go source.
//   - error: Non-nil when a fragment fails to render or the result is not
//     valid Go.
func (c *Composer) Compose(ctx Context) ([]byte, error) {
	data := suiteData{Context: ctx, Flags: ctx.Vector.Flags()}

	for _, f := range fragments {
		if !f.when(ctx.Vector) {
			continue
		}
		out, err := c.render(f.name, ctx)
		if err != nil {
			return nil, err
		}
		if f.setup {
			data.Setup = append(data.Setup, out)
		} else {
			data.Tests = append(data.Tests, out)
		}
	}

	var buf bytes.Buffer
	if err := c.tmpl.ExecuteTemplate(&buf, "suite.tmpl", data); err != nil {
		return nil, fmt.Errorf("render suite: %w", err)
	}
	src, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("format generated source: %w", err)
	}
	return src, nil
}

func (c *Composer) render(name string, ctx Context) (string, error) {
	var buf bytes.Buffer
	if err := c.tmpl.ExecuteTemplate(&buf, name+".tmpl", ctx); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

// =============================================================================
// Template functions
// =============================================================================

var funcMap = template.FuncMap{
	"quote":   strconv.Quote,
	"strings": stringSliceLiteral,
	"kwargs":  stringMapLiteral,
	"values":  valuesLiteral,
}

func stringSliceLiteral(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = strconv.Quote(v)
	}
	return "[]string{" + strings.Join(quoted, ", ") + "}"
}

func stringMapLiteral(m map[string]string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = strconv.Quote(k) + ": " + strconv.Quote(m[k])
	}
	return "map[string]string{" + strings.Join(pairs, ", ") + "}"
}

func valuesLiteral(v url.Values) string {
	if len(v) == 0 {
		return "nil"
	}
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, len(keys))
	for i, k := range keys {
		quoted := make([]string, len(v[k]))
		for j, s := range v[k] {
			quoted[j] = strconv.Quote(s)
		}
		pairs[i] = strconv.Quote(k) + ": {" + strings.Join(quoted, ", ") + "}"
	}
	return "harness.Values{" + strings.Join(pairs, ", ") + "}"
}
