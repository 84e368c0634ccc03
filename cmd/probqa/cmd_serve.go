// Copyright (C) 2026 ProbQA Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AlexSenchenko/ProbQA/pkg/engine"
	"github.com/AlexSenchenko/ProbQA/pkg/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the engine over HTTP",
	Long: `Starts the HTTP API: quiz lifecycle under /v1/quizzes, mode switching
under /v1/mode, plus /healthz and Prometheus /metrics.

The engine starts fresh from the configured dimensions, or from a KB
snapshot when serve.kbPath is set. Shuts down gracefully on SIGINT or
SIGTERM.`,
	RunE: runServeCommand,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "",
		"Listen address (overrides serve.addr)")
}

func runServeCommand(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Serve.Addr = serveAddr
	}

	log := newLogger(cfg, "serve")
	defer log.Close()

	var eng *engine.CpuEngine
	if cfg.Serve.KBPath != "" {
		eng, err = engine.LoadCpuEngine(cfg.Serve.KBPath, cfg.Engine.Workers,
			engine.WithLogger(log))
	} else {
		eng, err = engine.CreateCpuEngine(cfg.Engine.Definition(), engine.WithLogger(log))
	}
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}
	defer eng.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := server.New(eng,
		server.WithLogger(log),
		server.WithMetrics(eng.MetricsGatherer()))
	return srv.Run(ctx, cfg.Serve.Addr)
}
