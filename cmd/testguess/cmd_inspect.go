// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/testguess/services/guesser/capability"
	"github.com/AleutianAI/testguess/services/guesser/compose"
	"github.com/AleutianAI/testguess/services/guesser/datatypes"
)

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <identifier>",
		Short: "Decode an identifier into its flags and fragments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags, err := datatypes.DecodeIdentifier(args[0])
			if err != nil {
				return err
			}

			p := newPrinter(cmd.OutOrStdout())
			p.title(args[0])
			for _, f := range flags {
				p.flag(f.Name, f.Value)
			}

			v, err := vectorOf(flags)
			if err != nil {
				p.warn(err.Error())
				return nil
			}
			p.field("fragments", strings.Join(compose.Select(v), ","))
			return nil
		},
	}
}

// vectorOf rebuilds the vector a decoded identifier came from.
func vectorOf(flags []datatypes.Flag) (datatypes.FeatureVector, error) {
	on := make(map[string]bool, len(flags))
	for _, f := range flags {
		on[f.Name] = f.Value
	}
	obs := datatypes.Observation{
		IsHTML5:         on["is_html5"],
		IsAjax:          on["is_ajax"],
		IsAuthenticated: on["is_authenticated"],
		HasContextData:  on["has_context_data"],
		HasTemplateName: on["has_template_name"],
		HasGetParams:    on["has_get_params"],
		IsGet:           on["is_get"],
		IsPost:          on["is_post"],
		IsJSON:          on["is_json"],
	}
	caps := capability.Set{
		FixtureFactory:  on["supports_model_mommy"],
		CustomUsers:     on["supports_custom_users"],
		MarkupValidator: on["supports_html5lib"],
	}
	return datatypes.NewFeatureVector(obs, caps)
}
