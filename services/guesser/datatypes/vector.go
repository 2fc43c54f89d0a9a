// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes provides the values that flow through the generation
// pipeline: the observed Interaction, the FeatureVector derived from it,
// the Identifier that names it, and the pipeline's sentinel errors.
package datatypes

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/testguess/services/guesser/capability"
)

// vectorValidate checks the mutual-exclusion rules of FeatureVector.
// Initialized in init() with the struct-level rule.
var vectorValidate *validator.Validate

func init() {
	vectorValidate = validator.New()
	vectorValidate.RegisterStructValidation(validateVector, FeatureVector{})
}

// validateVector reports both exclusion rules. The fields are unexported so
// the rule runs at struct level rather than through tags.
func validateVector(sl validator.StructLevel) {
	v := sl.Current().Interface().(FeatureVector)
	if v.isGet && v.isPost {
		sl.ReportError(v.isPost, "IsPost", "isPost", "excluded_with_get", "")
	}
	if v.isHTML5 && v.isJSON {
		sl.ReportError(v.isJSON, "IsJSON", "isJSON", "excluded_with_html5", "")
	}
}

// Observation holds the traffic-derived traits, before the environment
// capabilities are folded in.
type Observation struct {
	IsHTML5         bool
	IsAjax          bool
	IsAuthenticated bool
	HasContextData  bool
	HasTemplateName bool
	HasGetParams    bool
	IsGet           bool
	IsPost          bool
	IsJSON          bool
}

// FeatureVector is the canonical classification of one interaction.
//
// The field declaration order is part of the wire format: Identifier
// encodes the fields in exactly this order. Values are immutable; build
// them with NewFeatureVector.
type FeatureVector struct {
	isHTML5                 bool
	isAjax                  bool
	isAuthenticated         bool
	hasContextData          bool
	hasTemplateName         bool
	hasGetParams            bool
	supportsFixtureFactory  bool
	supportsCustomUsers     bool
	supportsMarkupValidator bool
	isGet                   bool
	isPost                  bool
	isJSON                  bool
}

// NewFeatureVector combines an observation with the process capability set.
//
// # Outputs
//
//   - FeatureVector: The validated vector.
//   - error: Wraps ErrInvalidConfiguration if the observation is both GET
//     and POST, or both markup and structured data.
func NewFeatureVector(obs Observation, caps capability.Set) (FeatureVector, error) {
	v := FeatureVector{
		isHTML5:                 obs.IsHTML5,
		isAjax:                  obs.IsAjax,
		isAuthenticated:         obs.IsAuthenticated,
		hasContextData:          obs.HasContextData,
		hasTemplateName:         obs.HasTemplateName,
		hasGetParams:            obs.HasGetParams,
		supportsFixtureFactory:  caps.FixtureFactory,
		supportsCustomUsers:     caps.CustomUsers,
		supportsMarkupValidator: caps.MarkupValidator,
		isGet:                   obs.IsGet,
		isPost:                  obs.IsPost,
		isJSON:                  obs.IsJSON,
	}
	if err := vectorValidate.Struct(v); err != nil {
		return FeatureVector{}, fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}
	return v, nil
}

// IsHTML5 reports whether the response body looked like HTML markup.
func (v FeatureVector) IsHTML5() bool {
	return v.isHTML5
}

// IsAjax reports whether the request was an XMLHttpRequest.
func (v FeatureVector) IsAjax() bool {
	return v.isAjax
}

// IsAuthenticated reports whether a principal was attached to the request.
func (v FeatureVector) IsAuthenticated() bool {
	return v.isAuthenticated
}

// HasContextData reports whether the handler attached a template context.
func (v FeatureVector) HasContextData() bool {
	return v.hasContextData
}

// HasTemplateName reports whether the handler named the template it rendered.
func (v FeatureVector) HasTemplateName() bool {
	return v.hasTemplateName
}

// HasGetParams reports whether the request URL had a query string.
func (v FeatureVector) HasGetParams() bool {
	return v.hasGetParams
}

// SupportsFixtureFactory reports whether a fixture library is linked.
func (v FeatureVector) SupportsFixtureFactory() bool {
	return v.supportsFixtureFactory
}

// SupportsCustomUsers reports whether the host manages its own identities.
func (v FeatureVector) SupportsCustomUsers() bool {
	return v.supportsCustomUsers
}

// SupportsMarkupValidator reports whether an HTML5 parser is available.
func (v FeatureVector) SupportsMarkupValidator() bool {
	return v.supportsMarkupValidator
}

// IsGet reports whether the request method was GET.
func (v FeatureVector) IsGet() bool {
	return v.isGet
}

// IsPost reports whether the request method was POST.
func (v FeatureVector) IsPost() bool {
	return v.isPost
}

// IsJSON reports whether the untruncated response body was structured data.
func (v FeatureVector) IsJSON() bool {
	return v.isJSON
}

// Flag is one named field of a vector.
type Flag struct {
	Name  string
	Value bool
}

// FlagNames lists the display names of the vector fields in declaration
// order.
var FlagNames = [...]string{
	"is_html5",
	"is_ajax",
	"is_authenticated",
	"has_context_data",
	"has_template_name",
	"has_get_params",
	"supports_model_mommy",
	"supports_custom_users",
	"supports_html5lib",
	"is_get",
	"is_post",
	"is_json",
}

// Flags returns every field with its display name, in declaration order.
func (v FeatureVector) Flags() []Flag {
	values := v.values()
	flags := make([]Flag, len(values))
	for i, value := range values {
		flags[i] = Flag{Name: FlagNames[i], Value: value}
	}
	return flags
}

func (v FeatureVector) values() [len(FlagNames)]bool {
	return [len(FlagNames)]bool{
		v.isHTML5,
		v.isAjax,
		v.isAuthenticated,
		v.hasContextData,
		v.hasTemplateName,
		v.hasGetParams,
		v.supportsFixtureFactory,
		v.supportsCustomUsers,
		v.supportsMarkupValidator,
		v.isGet,
		v.isPost,
		v.isJSON,
	}
}
