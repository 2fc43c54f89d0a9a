// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package classifier derives a FeatureVector from an observed interaction.
//
// Classification is pure: the same Interaction and capability.Set always
// yield the same vector, and nothing outside the arguments is read.
package classifier

import (
	"bytes"
	"net/http"

	"github.com/AleutianAI/testguess/services/guesser/capability"
	"github.com/AleutianAI/testguess/services/guesser/datatypes"
)

// doctypePrefix is compared against the lower-cased start of the body.
const doctypePrefix = "<!doctype html>"

// Func is the signature of a classifier. Classify is the default.
type Func func(in datatypes.Interaction, caps capability.Set) (datatypes.FeatureVector, error)

// Classify builds the feature vector for an interaction.
//
// # Description
//
// Markup is detected from the first bytes of the trimmed body. Structured
// data is a trimmed body that opens and closes with matching object or
// array delimiters. A truncated body is never structured data, since its
// closing delimiter was not seen.
//
// # Outputs
//
//   - datatypes.FeatureVector: The vector.
//   - error: Wraps datatypes.ErrInvalidConfiguration when the derived
//     traits are contradictory. The vector is never coerced.
func Classify(in datatypes.Interaction, caps capability.Set) (datatypes.FeatureVector, error) {
	body := bytes.TrimSpace(in.Body)

	obs := datatypes.Observation{
		IsHTML5:         IsMarkup(body),
		IsAjax:          IsAjax(in.RequestHeader),
		IsAuthenticated: in.Principal.IsAuthenticated(),
		HasContextData:  in.HasContextData,
		HasTemplateName: in.TemplateName != "",
		HasGetParams:    len(in.Query) > 0,
		IsGet:           in.Method == http.MethodGet,
		IsPost:          in.Method == http.MethodPost,
		IsJSON:          !in.Truncated && IsStructuredData(body),
	}
	return datatypes.NewFeatureVector(obs, caps)
}

// IsMarkup reports whether a trimmed body starts with an HTML5 doctype.
func IsMarkup(trimmed []byte) bool {
	if len(trimmed) < len(doctypePrefix) {
		return false
	}
	return string(bytes.ToLower(trimmed[:len(doctypePrefix)])) == doctypePrefix
}

// IsStructuredData reports whether a trimmed body looks like a JSON object
// or array.
func IsStructuredData(trimmed []byte) bool {
	if len(trimmed) < 2 {
		return false
	}
	first, last := trimmed[0], trimmed[len(trimmed)-1]
	return (first == '{' && last == '}') || (first == '[' && last == ']')
}

// IsAjax reports whether the request was sent by a script.
func IsAjax(h http.Header) bool {
	return h.Get("X-Requested-With") == "XMLHttpRequest"
}
