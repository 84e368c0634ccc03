// Copyright (C) 2026 ProbQA Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"fmt"

	"github.com/AlexSenchenko/ProbQA/pkg/pqa"
)

// SwitchMode implements pqa.Engine.
func (e *CpuEngine) SwitchMode(target pqa.EngineMode) error {
	if err := e.latched(); err != nil {
		return err
	}
	if err := e.maint.switchTo(target); err != nil {
		return err
	}
	e.log.Info("engine mode switched", "engine_id", e.id.String(), "mode", target.String())
	return nil
}

// enterMaintenance admits a structural operation and takes the KB lock
// exclusively. The returned function releases both.
func (e *CpuEngine) enterMaintenance() (func(), error) {
	if err := e.latched(); err != nil {
		return nil, err
	}
	leave, err := e.maint.enter(pqa.ModeMaintenance)
	if err != nil {
		return nil, err
	}
	e.rws.Lock()
	return func() {
		e.rws.Unlock()
		leave()
	}, nil
}

// AddQuestion implements pqa.Engine.
func (e *CpuEngine) AddQuestion() (pqa.ID, error) {
	done, err := e.enterMaintenance()
	if err != nil {
		return pqa.InvalidID, err
	}
	defer done()

	if e.questionGaps.Gaps() > 0 {
		q, err := e.questionGaps.Acquire()
		if err != nil {
			return pqa.InvalidID, err
		}
		e.kb.reseedQuestion(q, e.initAmount)
		return q, nil
	}

	q := e.kb.qCap()
	e.kb.addQuestionRows(e.initAmount)
	e.questionGaps.Grow(1, false)
	e.dims.Questions = e.kb.qCap()
	return q, nil
}

// AddTarget implements pqa.Engine.
func (e *CpuEngine) AddTarget() (pqa.ID, error) {
	done, err := e.enterMaintenance()
	if err != nil {
		return pqa.InvalidID, err
	}
	defer done()

	if e.targetGaps.Gaps() > 0 {
		t, err := e.targetGaps.Acquire()
		if err != nil {
			return pqa.InvalidID, err
		}
		e.kb.reseedTarget(t, e.initAmount)
		return t, nil
	}

	t := e.kb.tCap()
	e.kb.addTargetColumn(e.initAmount)
	e.targetGaps.Grow(1, false)
	e.dims.Targets = e.kb.tCap()
	return t, nil
}

// RemoveQuestion implements pqa.Engine.
func (e *CpuEngine) RemoveQuestion(question pqa.ID) error {
	done, err := e.enterMaintenance()
	if err != nil {
		return err
	}
	defer done()

	if err := e.questionGaps.Release(question); err != nil {
		return err
	}
	return nil
}

// RemoveTarget implements pqa.Engine.
func (e *CpuEngine) RemoveTarget(target pqa.ID) error {
	done, err := e.enterMaintenance()
	if err != nil {
		return err
	}
	defer done()

	if err := e.targetGaps.Release(target); err != nil {
		return err
	}
	return nil
}

// CompactGaps implements pqa.Engine. Live question and target ids are
// repacked into dense prefixes and the tables shrink accordingly.
//
// Compaction renumbers ids, so it refuses to run while quizzes are
// outstanding: their histories and planes address the old numbering.
func (e *CpuEngine) CompactGaps(progress pqa.ProgressReporter) (pqa.CompactionMapping, error) {
	done, err := e.enterMaintenance()
	if err != nil {
		return pqa.CompactionMapping{}, err
	}
	defer done()

	if n := e.ActiveQuizCount(); n > 0 {
		return pqa.CompactionMapping{}, fmt.Errorf(
			"%d quizzes outstanding: %w", n, pqa.ErrInvalidArgument)
	}

	report := func(f float64) {
		if progress != nil {
			progress(f)
		}
	}
	report(0)

	var mapping pqa.CompactionMapping
	e.targetGaps.VisitLive(0, e.kb.tCap(), func(t pqa.ID) bool {
		mapping.OldTargets = append(mapping.OldTargets, t)
		return true
	})
	e.questionGaps.VisitLive(0, e.kb.qCap(), func(q pqa.ID) bool {
		mapping.OldQuestions = append(mapping.OldQuestions, q)
		return true
	})

	nT := pqa.ID(len(mapping.OldTargets))
	nQ := pqa.ID(len(mapping.OldQuestions))
	nA := e.kb.nAnswers

	kb := &kbStore{
		nAnswers: nA,
		a:        make([][]float64, nQ*nA),
		d:        make([][]float64, nQ),
		b:        make([]float64, nT),
	}
	for newQ, oldQ := range mapping.OldQuestions {
		for ans := pqa.ID(0); ans < nA; ans++ {
			row := make([]float64, nT)
			src := e.kb.rowA(oldQ, ans)
			for newT, oldT := range mapping.OldTargets {
				row[newT] = src[oldT]
			}
			kb.a[pqa.ID(newQ)*nA+ans] = row
		}
		dRow := make([]float64, nT)
		src := e.kb.rowD(oldQ)
		for newT, oldT := range mapping.OldTargets {
			dRow[newT] = src[oldT]
		}
		kb.d[newQ] = dRow
		report(float64(newQ+1) / float64(nQ+1))
	}
	for newT, oldT := range mapping.OldTargets {
		kb.b[newT] = e.kb.b[oldT]
	}

	e.kb = kb
	e.questionGaps.Reset(nQ, false)
	e.targetGaps.Reset(nT, false)
	e.dims.Questions = nQ
	e.dims.Targets = nT
	report(1)

	e.log.Info("KB compacted",
		"engine_id", e.id.String(),
		"questions", nQ,
		"targets", nT)
	return mapping, nil
}
