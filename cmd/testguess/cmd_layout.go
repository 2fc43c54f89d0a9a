// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/testguess/services/guesser"
	"github.com/AleutianAI/testguess/services/guesser/config"
	"github.com/AleutianAI/testguess/services/guesser/datatypes"
	"github.com/AleutianAI/testguess/services/guesser/layout"
)

func newRootDirCmd(state *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "root",
		Short: "Print the resolved project root and the signal that chose it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := state.load()
			if err != nil {
				return err
			}
			res, err := state.resolve(cfg)
			if err != nil {
				return err
			}
			p := newPrinter(cmd.OutOrStdout())
			p.field("root", res.Root)
			p.field("signal", res.Signal)
			return nil
		},
	}
}

func newPlanCmd(state *cliState) *cobra.Command {
	var create bool
	cmd := &cobra.Command{
		Use:   "plan <view> <identifier>",
		Short: "Print the files a generation would write",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := datatypes.DecodeIdentifier(args[1]); err != nil {
				return err
			}
			cfg, err := state.load()
			if err != nil {
				return err
			}
			res, err := state.resolve(cfg)
			if err != nil {
				return err
			}
			plan, err := layout.Plan(res.Root, args[0], datatypes.Identifier(args[1]))
			if err != nil {
				return err
			}

			p := newPrinter(cmd.OutOrStdout())
			p.title(plan.Root)
			for _, e := range plan.Entries {
				p.field(e.Kind.String(), e.File)
			}
			if !create {
				return nil
			}

			m := &layout.Materializer{DirMode: cfg.DirMode(), FileMode: cfg.FileMode()}
			result, err := m.Materialize(plan)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %d directories, %d markers\n", len(result.CreatedDirs), len(result.CreatedFiles))
			return nil
		},
	}
	cmd.Flags().BoolVar(&create, "create", false, "create the package directories and markers")
	return cmd
}

func (s *cliState) resolve(cfg config.Config) (layout.Resolution, error) {
	return guesser.NewResolver(cfg, s.lookupEnv, nil, nil).Resolve()
}
