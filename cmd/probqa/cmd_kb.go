// Copyright (C) 2026 ProbQA Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AlexSenchenko/ProbQA/pkg/engine"
	"github.com/AlexSenchenko/ProbQA/pkg/pqa"
)

var kbCmd = &cobra.Command{
	Use:   "kb",
	Short: "KB snapshot utilities",
}

var kbInitOut string

var kbInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a fresh KB snapshot from the configured dimensions",
	RunE:  runKBInitCommand,
}

var kbInfoCmd = &cobra.Command{
	Use:   "info <path>",
	Short: "Print a KB snapshot header",
	Args:  cobra.ExactArgs(1),
	RunE:  runKBInfoCommand,
}

func init() {
	kbInitCmd.Flags().StringVarP(&kbInitOut, "out", "o", "kb.pqa",
		"Output snapshot path")
	kbCmd.AddCommand(kbInitCmd)
	kbCmd.AddCommand(kbInfoCmd)
}

func runKBInitCommand(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg, "kb")
	defer log.Close()

	eng, err := engine.CreateCpuEngine(cfg.Engine.Definition(), engine.WithLogger(log))
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}
	defer eng.Close()

	if err := eng.SwitchMode(pqa.ModeMaintenance); err != nil {
		return err
	}
	if err := eng.SaveKB(kbInitOut, nil); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "KB snapshot written to %s\n", kbInitOut)
	return nil
}

func runKBInfoCommand(cmd *cobra.Command, args []string) error {
	info, err := engine.ReadSnapshotInfo(args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "engine:     %s\n", info.EngineID)
	fmt.Fprintf(out, "version:    %d\n", info.Version)
	fmt.Fprintf(out, "answers:    %d\n", info.Dims.Answers)
	fmt.Fprintf(out, "questions:  %d\n", info.Dims.Questions)
	fmt.Fprintf(out, "targets:    %d\n", info.Dims.Targets)
	fmt.Fprintf(out, "initAmount: %g\n", info.InitAmount)
	fmt.Fprintf(out, "asked:      %d\n", info.NAsked)
	return nil
}
