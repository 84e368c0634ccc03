// Copyright (C) 2026 ProbQA Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command probqa drives the ProbQA engine: a synthetic training harness
// (train), an HTTP API (serve) and KB snapshot utilities (kb).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AlexSenchenko/ProbQA/cmd/probqa/config"
	"github.com/AlexSenchenko/ProbQA/pkg/logging"
)

// =============================================================================
// GLOBAL FLAGS
// =============================================================================

var (
	flagConfig   string // Config file path
	flagLogLevel string // Minimum log level
	flagLogDir   string // Optional log directory
)

var rootCmd = &cobra.Command{
	Use:   "probqa",
	Short: "Probabilistic question-answering engine",
	Long: `ProbQA maintains a learned joint distribution over targets conditioned
on answers to questions, and uses it to drive interactive quizzes.

Commands:
  probqa train          Run the synthetic training harness
  probqa serve          Serve the engine over HTTP
  probqa kb init        Create a fresh KB snapshot
  probqa kb info        Inspect a KB snapshot header`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "probqa.yaml",
		"Config file path (missing file uses defaults)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "",
		"Minimum log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&flagLogDir, "log-dir", "",
		"Directory for JSON log files (stderr only when empty)")

	rootCmd.AddCommand(trainCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(kbCmd)
}

// loadConfig merges the config file with global flag overrides.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return cfg, err
	}
	if flagLogLevel != "" {
		cfg.Logging.Level = flagLogLevel
	}
	if flagLogDir != "" {
		cfg.Logging.LogDir = flagLogDir
	}
	return cfg, nil
}

// newLogger builds the process logger from config.
func newLogger(cfg config.Config, service string) *logging.Logger {
	return logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.Logging.Level),
		LogDir:  cfg.Logging.LogDir,
		Service: service,
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "probqa:", err)
		os.Exit(1)
	}
}
