// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command testguess runs the demo server with test guessing enabled and
// offers a few inspection commands for the generated tree.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/testguess/services/guesser/config"
)

var version = "dev"

// cliState is shared by the subcommands of one root command.
type cliState struct {
	configPath string
	envFile    string
	lookupEnv  func(string) (string, bool)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	return newRootCmdWithEnv(os.LookupEnv)
}

// newRootCmdWithEnv builds the command tree with lookup as the
// environment overlay for the configuration.
func newRootCmdWithEnv(lookup func(string) (string, bool)) *cobra.Command {
	state := &cliState{lookupEnv: lookup}

	rootCmd := &cobra.Command{
		Use:          "testguess",
		Short:        "Generate test suites from observed HTTP traffic",
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadEnvFile(state.envFile, cmd.Flags().Changed("env-file"))
		},
	}
	rootCmd.PersistentFlags().StringVar(&state.configPath, "config", config.DefaultPath, "path to the YAML configuration")
	rootCmd.PersistentFlags().StringVar(&state.envFile, "env-file", ".env", "dotenv file loaded before the configuration")

	rootCmd.AddCommand(
		newServeCmd(state),
		newRootDirCmd(state),
		newPlanCmd(state),
		newInspectCmd(),
	)
	return rootCmd
}

// loadEnvFile loads path into the process environment. A missing default
// file is ignored; a missing explicit one is an error.
func loadEnvFile(path string, explicit bool) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if err == nil {
		return nil
	}
	if errors.Is(err, fs.ErrNotExist) && !explicit {
		return nil
	}
	return fmt.Errorf("load env file %s: %w", path, err)
}

// load reads the configuration file, then applies the environment.
func (s *cliState) load() (config.Config, error) {
	cfg, err := config.Load(s.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.ApplyEnv(s.lookupEnv); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}
