// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package harness

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"golang.org/x/net/html"
)

// Reverse rebuilds a URL from a route pattern. Named parameters (":id")
// take their value from kwargs; catch-all parameters ("*path") consume
// args in order.
func Reverse(pattern string, args []string, kwargs map[string]string) (string, error) {
	if pattern == "" {
		return "", errors.New("reverse: empty pattern")
	}
	segments := strings.Split(pattern, "/")
	next := 0
	for i, seg := range segments {
		switch {
		case strings.HasPrefix(seg, ":"):
			v, ok := kwargs[seg[1:]]
			if !ok {
				return "", fmt.Errorf("reverse %s: missing parameter %q", pattern, seg[1:])
			}
			segments[i] = v
		case strings.HasPrefix(seg, "*"):
			if next >= len(args) {
				return "", fmt.Errorf("reverse %s: missing argument for %q", pattern, seg[1:])
			}
			segments[i] = strings.TrimPrefix(args[next], "/")
			next++
		}
	}
	return strings.Join(segments, "/"), nil
}

// ParseHTML parses body as an HTML5 document and checks it declares the
// html doctype.
func ParseHTML(body []byte) error {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("parse html: %w", err)
	}
	for n := doc.FirstChild; n != nil; n = n.NextSibling {
		if n.Type == html.DoctypeNode && strings.EqualFold(n.Data, "html") {
			return nil
		}
	}
	return errors.New("parse html: missing <!doctype html>")
}

// DecodeJSON decodes body into generic values: maps, slices, strings,
// float64, bool and nil.
func DecodeJSON(body []byte) (any, error) {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	return v, nil
}

// TypeName names the dynamic type of v as "<import path>.<Name>", with one
// '*' per pointer level. Predeclared types are named bare ("int") and
// unnamed types by their literal ("[]string"). Nil yields "".
func TypeName(v any) string {
	if v == nil {
		return ""
	}
	t := reflect.TypeOf(v)
	prefix := ""
	for t.Kind() == reflect.Pointer {
		prefix += "*"
		t = t.Elem()
	}
	switch {
	case t.Name() == "":
		return prefix + t.String()
	case t.PkgPath() == "":
		return prefix + t.Name()
	default:
		return prefix + t.PkgPath() + "." + t.Name()
	}
}
