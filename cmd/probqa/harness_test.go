// Copyright (C) 2026 ProbQA Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlexSenchenko/ProbQA/cmd/probqa/config"
	"github.com/AlexSenchenko/ProbQA/pkg/engine"
	"github.com/AlexSenchenko/ProbQA/pkg/pqa"
)

func TestPolicyAnswer(t *testing.T) {
	const w = 32
	tests := []struct {
		g, q pqa.ID
		want pqa.ID
	}{
		{0, 100, 0},  // far below
		{90, 100, 1}, // within window below
		{100, 100, 2},
		{110, 100, 3}, // within window above
		{200, 100, 4}, // far above
		{68, 100, 1},  // boundary: g = q-32
		{67, 100, 0},  // boundary: g < q-32
		{132, 100, 3}, // boundary: g = q+32
		{133, 100, 4},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, policyAnswer(tt.g, tt.q, w), "g=%d q=%d", tt.g, tt.q)
	}
}

func TestHarness_RunSmallUniverse(t *testing.T) {
	eng, err := engine.CreateCpuEngine(pqa.EngineDefinition{
		Dims:       pqa.EngineDimensions{Answers: 5, Questions: 20, Targets: 20},
		InitAmount: 0.1,
		Precision:  pqa.PrecisionDouble,
		Workers:    2,
	})
	require.NoError(t, err)
	defer eng.Close()

	var stdout, progress bytes.Buffer
	h := newHarness(eng, config.TrainConfig{
		Quizzes:    300,
		MaxQuizLen: 20,
		Window:     2,
		TopRated:   1,
		Parallel:   2,
		Seed:       7,
	}, 20, &stdout, &progress)

	require.NoError(t, h.run())

	out := stdout.String()
	// Every quiz leaves either a result token or a dash.
	assert.True(t, strings.Contains(out, "[G=") || strings.Contains(out, "-"))

	// 300 quizzes cross the 256 boundary exactly once.
	lines := strings.Split(strings.TrimSpace(progress.String()), "\n")
	require.Len(t, lines, 1)
	fields := strings.Split(lines[0], "\t")
	require.Len(t, fields, 6)
	assert.Equal(t, "256", fields[0])
}

func TestHarness_ZeroQuizzes(t *testing.T) {
	eng, err := engine.CreateCpuEngine(pqa.EngineDefinition{
		Dims:       pqa.EngineDimensions{Answers: 5, Questions: 5, Targets: 5},
		InitAmount: 0.1,
		Precision:  pqa.PrecisionDouble,
		Workers:    1,
	})
	require.NoError(t, err)
	defer eng.Close()

	var stdout, progress bytes.Buffer
	h := newHarness(eng, config.TrainConfig{
		Quizzes: 0, MaxQuizLen: 5, Window: 1, TopRated: 1, Parallel: 1, Seed: 1,
	}, 5, &stdout, &progress)
	require.NoError(t, h.run())
	assert.Empty(t, stdout.String())
}
