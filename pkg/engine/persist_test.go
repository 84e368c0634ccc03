// Copyright (C) 2026 ProbQA Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlexSenchenko/ProbQA/pkg/pqa"
)

// trainSome resolves a few quizzes so the KB is not uniform.
func trainSome(t *testing.T, e *CpuEngine) {
	t.Helper()
	for target := pqa.ID(0); target < 4; target++ {
		id, err := e.ResumeQuiz([]pqa.AnsweredQuestion{
			{Question: target % e.GetDims().Questions, Answer: target % e.GetDims().Answers},
		})
		require.NoError(t, err)
		require.NoError(t, e.RecordQuizTarget(id, target, 1.0))
		require.NoError(t, e.ReleaseQuiz(id))
	}
}

func TestSaveLoad_BitForBit(t *testing.T) {
	e := mustEngine(t, testDef(3, 6, 8))
	trainSome(t, e)
	id, err := e.StartQuiz()
	require.NoError(t, err)
	_, err = e.NextQuestion(id) // bump the asked counter
	require.NoError(t, err)
	require.NoError(t, e.ReleaseQuiz(id))

	require.NoError(t, e.SwitchMode(pqa.ModeMaintenance))
	require.NoError(t, e.RemoveQuestion(2))
	path := filepath.Join(t.TempDir(), "kb.pqa")

	var last float64
	require.NoError(t, e.SaveKB(path, func(f float64) { last = f }))
	assert.Equal(t, 1.0, last)

	loaded, err := LoadCpuEngine(path, 2)
	require.NoError(t, err)
	defer loaded.Close()

	assert.Equal(t, e.ID(), loaded.ID())
	assert.Equal(t, e.GetDims(), loaded.GetDims())
	assert.Equal(t, e.GetTotalQuestionsAsked(), loaded.GetTotalQuestionsAsked())
	assert.Equal(t, e.kb.a, loaded.kb.a)
	assert.Equal(t, e.kb.d, loaded.kb.d)
	assert.Equal(t, e.kb.b, loaded.kb.b)
	assert.True(t, loaded.questionGaps.IsGap(2))
	assert.Equal(t, pqa.ID(1), loaded.questionGaps.Gaps())
	assert.Equal(t, pqa.ID(0), loaded.targetGaps.Gaps())
}

func TestLoadKB_IntoMatchingEngine(t *testing.T) {
	e := mustEngine(t, testDef(3, 6, 8))
	trainSome(t, e)
	require.NoError(t, e.SwitchMode(pqa.ModeMaintenance))
	path := filepath.Join(t.TempDir(), "kb.pqa")
	require.NoError(t, e.SaveKB(path, nil))

	fresh := mustEngine(t, testDef(3, 6, 8))
	require.NoError(t, fresh.SwitchMode(pqa.ModeMaintenance))
	require.NoError(t, fresh.LoadKB(path, nil))

	assert.Equal(t, e.kb.a, fresh.kb.a)
	assert.Equal(t, e.ID(), fresh.ID(), "engine identity travels with the KB")
}

func TestLoadKB_DimensionMismatch(t *testing.T) {
	e := mustEngine(t, testDef(3, 6, 8))
	require.NoError(t, e.SwitchMode(pqa.ModeMaintenance))
	path := filepath.Join(t.TempDir(), "kb.pqa")
	require.NoError(t, e.SaveKB(path, nil))

	other := mustEngine(t, testDef(3, 6, 9))
	require.NoError(t, other.SwitchMode(pqa.ModeMaintenance))
	err := other.LoadKB(path, nil)
	assert.ErrorIs(t, err, pqa.ErrFormatMismatch)
}

func TestLoad_RejectsCorruptHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kb.pqa")

	garbage := make([]byte, 256)
	for i := range garbage {
		garbage[i] = byte(i * 7)
	}
	require.NoError(t, os.WriteFile(path, garbage, 0o644))
	_, err := LoadCpuEngine(path, 1)
	assert.ErrorIs(t, err, pqa.ErrFormatMismatch)
}

func TestLoad_RejectsWrongVersion(t *testing.T) {
	e := mustEngine(t, testDef(3, 4, 4))
	require.NoError(t, e.SwitchMode(pqa.ModeMaintenance))
	path := filepath.Join(t.TempDir(), "kb.pqa")
	require.NoError(t, e.SaveKB(path, nil))

	// Flip the version field (bytes 4..8).
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[4] = 0xFF
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err = LoadCpuEngine(path, 1)
	assert.ErrorIs(t, err, pqa.ErrFormatMismatch)
}

func TestSaveKB_RequiresMaintenance(t *testing.T) {
	e := mustEngine(t, testDef(3, 4, 4))
	err := e.SaveKB(filepath.Join(t.TempDir(), "kb.pqa"), nil)
	assert.ErrorIs(t, err, pqa.ErrWrongMode)
}
