// Copyright (C) 2026 ProbQA Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads the probqa CLI configuration file.
//
// The file is YAML; every field has a default, so an absent file yields
// a fully usable configuration. Flags override file values; the
// command layer performs that merge.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/AlexSenchenko/ProbQA/pkg/pqa"
)

// Config is the on-disk configuration of the probqa CLI.
type Config struct {
	// Engine configures the backend shared by every command.
	Engine EngineConfig `yaml:"engine"`

	// Train configures the synthetic training harness.
	Train TrainConfig `yaml:"train"`

	// Serve configures the HTTP API.
	Serve ServeConfig `yaml:"serve"`

	// Logging configures destinations and verbosity.
	Logging LoggingConfig `yaml:"logging"`
}

// EngineConfig mirrors pqa.EngineDefinition.
type EngineConfig struct {
	Answers    pqa.ID  `yaml:"nAnswers"`
	Questions  pqa.ID  `yaml:"nQuestions"`
	Targets    pqa.ID  `yaml:"nTargets"`
	InitAmount float64 `yaml:"initAmount"`
	Workers    int     `yaml:"workers"`
}

// Definition converts to the engine contract type.
func (c EngineConfig) Definition() pqa.EngineDefinition {
	return pqa.EngineDefinition{
		Dims: pqa.EngineDimensions{
			Answers:   c.Answers,
			Questions: c.Questions,
			Targets:   c.Targets,
		},
		InitAmount: c.InitAmount,
		Precision:  pqa.PrecisionDouble,
		Workers:    c.Workers,
	}
}

// TrainConfig drives the training harness loop.
type TrainConfig struct {
	// Quizzes is the number of training quizzes to run.
	Quizzes int64 `yaml:"quizzes"`

	// MaxQuizLen caps the questions asked per quiz.
	MaxQuizLen int64 `yaml:"maxQuizLen"`

	// Window is the half-width of the synthetic answer policy.
	Window pqa.ID `yaml:"window"`

	// TopRated is the k of the per-answer top-target probe.
	TopRated int64 `yaml:"topRated"`

	// ProgressFile receives a stats line every 256 quizzes.
	ProgressFile string `yaml:"progressFile"`

	// Parallel is the number of concurrent quiz drivers.
	Parallel int `yaml:"parallel"`

	// Seed fixes the target generator; driver d seeds with Seed+d.
	Seed int64 `yaml:"seed"`
}

// ServeConfig configures the HTTP API.
type ServeConfig struct {
	Addr string `yaml:"addr"`

	// KBPath, when set, loads the engine from this snapshot instead of
	// creating a fresh one.
	KBPath string `yaml:"kbPath"`
}

// LoggingConfig configures pkg/logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	LogDir string `yaml:"logDir"`
}

// Default returns the configuration used when no file is present: the
// reference training universe.
func Default() Config {
	return Config{
		Engine: EngineConfig{
			Answers:    5,
			Questions:  1000,
			Targets:    1000,
			InitAmount: 0.1,
		},
		Train: TrainConfig{
			Quizzes:      1000 * 1000,
			MaxQuizLen:   100,
			Window:       32,
			TopRated:     1,
			ProgressFile: "progress.txt",
			Parallel:     1,
			Seed:         1,
		},
		Serve: ServeConfig{
			Addr: ":8480",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads path over the defaults. A missing file is not an error; a
// malformed one is.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects configurations the engine or harness cannot run.
func (c Config) Validate() error {
	switch {
	case c.Engine.Answers < 1:
		return fmt.Errorf("engine.nAnswers %d: %w", c.Engine.Answers, pqa.ErrInvalidArgument)
	case c.Engine.Questions < 0:
		return fmt.Errorf("engine.nQuestions %d: %w", c.Engine.Questions, pqa.ErrInvalidArgument)
	case c.Engine.Targets < 1:
		return fmt.Errorf("engine.nTargets %d: %w", c.Engine.Targets, pqa.ErrInvalidArgument)
	case c.Engine.InitAmount <= 0:
		return fmt.Errorf("engine.initAmount %v: %w", c.Engine.InitAmount, pqa.ErrInvalidArgument)
	case c.Train.Quizzes < 0:
		return fmt.Errorf("train.quizzes %d: %w", c.Train.Quizzes, pqa.ErrInvalidArgument)
	case c.Train.MaxQuizLen < 1:
		return fmt.Errorf("train.maxQuizLen %d: %w", c.Train.MaxQuizLen, pqa.ErrInvalidArgument)
	case c.Train.TopRated < 1:
		return fmt.Errorf("train.topRated %d: %w", c.Train.TopRated, pqa.ErrInvalidArgument)
	case c.Train.Parallel < 1:
		return fmt.Errorf("train.parallel %d: %w", c.Train.Parallel, pqa.ErrInvalidArgument)
	case c.Serve.Addr == "":
		return fmt.Errorf("serve.addr empty: %w", pqa.ErrInvalidArgument)
	}
	return nil
}
