// Copyright (C) 2026 ProbQA Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"bufio"
	"fmt"
	"math"
	"os"

	"github.com/google/uuid"

	"github.com/AlexSenchenko/ProbQA/pkg/logging"
	"github.com/AlexSenchenko/ProbQA/pkg/pqa"
)

// Option tweaks engine construction.
type Option func(*options)

type options struct {
	log *logging.Logger
}

// WithLogger routes engine logs to log instead of the process default.
func WithLogger(log *logging.Logger) Option {
	return func(o *options) { o.log = log }
}

func buildOptions(opts []Option) options {
	o := options{log: logging.Default()}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// validateDefinition rejects shapes the engine cannot host.
func validateDefinition(def pqa.EngineDefinition) error {
	switch {
	case def.Dims.Answers < 1:
		return fmt.Errorf("nAnswers %d: %w", def.Dims.Answers, pqa.ErrInvalidArgument)
	case def.Dims.Questions < 0:
		return fmt.Errorf("nQuestions %d: %w", def.Dims.Questions, pqa.ErrInvalidArgument)
	case def.Dims.Targets < 1:
		return fmt.Errorf("nTargets %d: %w", def.Dims.Targets, pqa.ErrInvalidArgument)
	case !(def.InitAmount > 0) || math.IsInf(def.InitAmount, 0):
		return fmt.Errorf("initial amount %v: %w", def.InitAmount, pqa.ErrInvalidArgument)
	}
	if def.Precision != pqa.PrecisionDouble {
		return fmt.Errorf("CPU engine for %s precision: %w",
			def.Precision, pqa.ErrNotImplemented)
	}
	return nil
}

// CreateCpuEngine builds the double-precision CPU backend for the given
// definition.
//
// Errors: pqa.ErrInvalidArgument on a bad definition,
// pqa.ErrNotImplemented for non-double precision.
func CreateCpuEngine(def pqa.EngineDefinition, opts ...Option) (*CpuEngine, error) {
	if err := validateDefinition(def); err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	kb := newKBStore(def.Dims, def.InitAmount)
	return newCpuEngine(def, kb, o.log), nil
}

// LoadCpuEngine constructs a CPU engine directly from a KB snapshot,
// adopting the snapshot's dimensions, initial amount, engine id and
// counters.
//
// Errors: pqa.ErrFormatMismatch on a corrupt or wrong-version snapshot,
// filesystem errors.
func LoadCpuEngine(path string, workers int, opts ...Option) (*CpuEngine, error) {
	o := buildOptions(opts)

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening KB snapshot: %w", err)
	}
	defer f.Close()
	r := bufio.NewReaderSize(f, fileBufSize)

	hdr, err := readHeader(r)
	if err != nil {
		return nil, err
	}
	def := pqa.EngineDefinition{
		Dims: pqa.EngineDimensions{
			Answers:   pqa.ID(hdr.NAnswers),
			Questions: pqa.ID(hdr.NQuestions),
			Targets:   pqa.ID(hdr.NTargets),
		},
		InitAmount: hdr.InitAmount,
		Precision:  pqa.PrecisionDouble,
		Workers:    workers,
	}
	kb := newKBStore(def.Dims, def.InitAmount)
	e := newCpuEngine(def, kb, o.log)
	if err := e.readTables(r, nil); err != nil {
		e.pool.Close()
		return nil, err
	}
	e.id = uuid.UUID(hdr.EngineID)
	e.nQuestionsAsked.Store(hdr.NAsked)
	e.log.Info("engine loaded from snapshot", "engine_id", e.id.String(), "path", path)
	return e, nil
}

// CreateCudaEngine is declared for contract parity with the CPU
// factory.
//
// Errors: always pqa.ErrNotImplemented.
func CreateCudaEngine(pqa.EngineDefinition, ...Option) (pqa.Engine, error) {
	return nil, fmt.Errorf("ProbQA engine on CUDA: %w", pqa.ErrNotImplemented)
}

// CreateGridEngine is declared for contract parity with the CPU
// factory.
//
// Errors: always pqa.ErrNotImplemented.
func CreateGridEngine(pqa.EngineDefinition, ...Option) (pqa.Engine, error) {
	return nil, fmt.Errorf("ProbQA engine over a grid: %w", pqa.ErrNotImplemented)
}
