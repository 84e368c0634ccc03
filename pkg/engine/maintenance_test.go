// Copyright (C) 2026 ProbQA Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlexSenchenko/ProbQA/pkg/pqa"
)

func TestModeGating(t *testing.T) {
	e := mustEngine(t, testDef(3, 5, 5))

	// Structural ops are rejected in regular mode.
	_, err := e.AddQuestion()
	assert.ErrorIs(t, err, pqa.ErrWrongMode)
	_, err = e.AddTarget()
	assert.ErrorIs(t, err, pqa.ErrWrongMode)
	assert.ErrorIs(t, e.RemoveQuestion(0), pqa.ErrWrongMode)
	assert.ErrorIs(t, e.RemoveTarget(0), pqa.ErrWrongMode)
	_, err = e.CompactGaps(nil)
	assert.ErrorIs(t, err, pqa.ErrWrongMode)

	require.NoError(t, e.SwitchMode(pqa.ModeMaintenance))

	// Quiz ops are rejected in maintenance mode.
	_, err = e.StartQuiz()
	assert.ErrorIs(t, err, pqa.ErrWrongMode)
	_, err = e.ResumeQuiz(nil)
	assert.ErrorIs(t, err, pqa.ErrWrongMode)

	// Duplicate switch reports the current mode.
	err = e.SwitchMode(pqa.ModeMaintenance)
	assert.ErrorIs(t, err, pqa.ErrInvalidArgument)

	require.NoError(t, e.SwitchMode(pqa.ModeRegular))
	_, err = e.StartQuiz()
	assert.NoError(t, err)
}

func TestSwitchMode_DrainsInFlightQuizzes(t *testing.T) {
	e := mustEngine(t, testDef(4, 50, 200))

	// Four goroutines hammer quiz operations; the switch must block
	// until their in-flight calls complete, then shut the door.
	var wg sync.WaitGroup
	var wrongMode sync.Once
	sawWrongMode := false
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				id, err := e.StartQuiz()
				if err != nil {
					// The transition eventually rejects newcomers.
					wrongMode.Do(func() { sawWrongMode = assert.ErrorIs(t, err, pqa.ErrWrongMode) })
					return
				}
				if _, err := e.NextQuestion(id); err == nil {
					_ = e.RecordAnswer(id, 0)
				}
				_ = e.ReleaseQuiz(id)
			}
		}()
	}

	require.NoError(t, e.SwitchMode(pqa.ModeMaintenance))
	assert.Equal(t, pqa.ModeMaintenance, e.Mode())

	_, err := e.StartQuiz()
	assert.ErrorIs(t, err, pqa.ErrWrongMode)
	wg.Wait()
	_ = sawWrongMode // workers that outlived the switch observed it
}

func TestAddRemoveQuestion(t *testing.T) {
	e := mustEngine(t, testDef(3, 4, 6))
	require.NoError(t, e.SwitchMode(pqa.ModeMaintenance))

	q, err := e.AddQuestion()
	require.NoError(t, err)
	assert.Equal(t, pqa.ID(4), q, "capacity grows when no gap exists")
	assert.Equal(t, pqa.ID(5), e.GetDims().Questions)

	require.NoError(t, e.RemoveQuestion(2))
	assert.ErrorIs(t, e.RemoveQuestion(2), pqa.ErrInvalidID)

	// The gap id is recycled before the table grows again.
	q, err = e.AddQuestion()
	require.NoError(t, err)
	assert.Equal(t, pqa.ID(2), q)
	assert.Equal(t, pqa.ID(5), e.GetDims().Questions)

	requireKBInvariants(t, e, 0.1)
}

func TestAddRemoveTarget(t *testing.T) {
	e := mustEngine(t, testDef(3, 4, 6))
	require.NoError(t, e.SwitchMode(pqa.ModeMaintenance))

	tg, err := e.AddTarget()
	require.NoError(t, err)
	assert.Equal(t, pqa.ID(6), tg)
	assert.Equal(t, pqa.ID(7), e.GetDims().Targets)

	require.NoError(t, e.RemoveTarget(0))
	tg, err = e.AddTarget()
	require.NoError(t, err)
	assert.Equal(t, pqa.ID(0), tg, "gap recycled")

	requireKBInvariants(t, e, 0.1)
}

func TestRemovedTargetExcludedFromInference(t *testing.T) {
	e := mustEngine(t, testDef(3, 4, 6))

	require.NoError(t, e.SwitchMode(pqa.ModeMaintenance))
	require.NoError(t, e.RemoveTarget(3))
	require.NoError(t, e.SwitchMode(pqa.ModeRegular))

	id, err := e.StartQuiz()
	require.NoError(t, err)

	dest := make([]pqa.RatedTarget, 6)
	n, err := e.ListTopTargets(id, dest)
	require.NoError(t, err)
	require.Equal(t, pqa.ID(5), n)
	var sum float64
	for _, rt := range dest[:n] {
		assert.NotEqual(t, pqa.ID(3), rt.Target)
		sum += rt.Probability
	}
	assert.InDelta(t, 1.0, sum, 1e-12)

	// Training a removed target is rejected.
	assert.ErrorIs(t, e.RecordQuizTarget(id, 3, 1), pqa.ErrInvalidID)
}

func TestCompactGaps(t *testing.T) {
	e := mustEngine(t, testDef(3, 6, 8))

	// Put some distinguishable mass in a surviving cell.
	id, err := e.ResumeQuiz([]pqa.AnsweredQuestion{{Question: 5, Answer: 1}})
	require.NoError(t, err)
	require.NoError(t, e.RecordQuizTarget(id, 7, 2.5))
	require.NoError(t, e.ReleaseQuiz(id))

	require.NoError(t, e.SwitchMode(pqa.ModeMaintenance))
	require.NoError(t, e.RemoveQuestion(1))
	require.NoError(t, e.RemoveQuestion(3))
	require.NoError(t, e.RemoveTarget(0))

	var lastFraction float64
	mapping, err := e.CompactGaps(func(f float64) { lastFraction = f })
	require.NoError(t, err)
	assert.Equal(t, 1.0, lastFraction)

	assert.Equal(t, []pqa.ID{0, 2, 4, 5}, mapping.OldQuestions)
	assert.Equal(t, []pqa.ID{1, 2, 3, 4, 5, 6, 7}, mapping.OldTargets)
	assert.Equal(t, pqa.ID(4), e.GetDims().Questions)
	assert.Equal(t, pqa.ID(7), e.GetDims().Targets)

	// Old (q=5, a=1, t=7) landed at (q=3, a=1, t=6) with its mass.
	assert.InDelta(t, 0.1+2.5, e.kb.rowA(3, 1)[6], 1e-12)
	requireKBInvariants(t, e, 0.1)
}

func TestCompactGaps_RefusesWithLiveQuizzes(t *testing.T) {
	e := mustEngine(t, testDef(3, 4, 4))
	_, err := e.StartQuiz()
	require.NoError(t, err)

	require.NoError(t, e.SwitchMode(pqa.ModeMaintenance))
	_, err = e.CompactGaps(nil)
	assert.ErrorIs(t, err, pqa.ErrInvalidArgument)
}

func TestQuizSurvivesTargetGrowth(t *testing.T) {
	e := mustEngine(t, testDef(3, 4, 4))

	id, err := e.StartQuiz()
	require.NoError(t, err)

	require.NoError(t, e.SwitchMode(pqa.ModeMaintenance))
	_, err = e.AddTarget()
	require.NoError(t, err)
	require.NoError(t, e.SwitchMode(pqa.ModeRegular))

	// The old quiz keeps working over its original target span.
	dest := make([]pqa.RatedTarget, 8)
	n, err := e.ListTopTargets(id, dest)
	require.NoError(t, err)
	assert.Equal(t, pqa.ID(4), n, "new target does not join an old quiz")
}
