// Copyright (C) 2026 ProbQA Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"math"
	"sync/atomic"
	"unsafe"

	"github.com/AlexSenchenko/ProbQA/pkg/pqa"
)

// kbStore holds the three mass tables.
//
// A is laid out as one row per (question, answer) pair, each row running
// over the target axis; D as one row per question; B as a single target
// row. Rows keep the target axis contiguous, which is the axis every hot
// loop walks.
//
// Readers in regular mode never synchronize per cell: training updates
// only grow cells (atomic adds of positive amounts), and a kernel that
// observes a pre- or post-update value sees a finite positive real
// either way.
type kbStore struct {
	nAnswers pqa.ID
	a        [][]float64 // len qCap*nAnswers, rows of tCap
	d        [][]float64 // len qCap, rows of tCap
	b        []float64   // len tCap
}

// newKBStore seeds every A cell and B cell with initAmount and every D
// cell with initAmount*nAnswers.
func newKBStore(dims pqa.EngineDimensions, initAmount float64) *kbStore {
	kb := &kbStore{
		nAnswers: dims.Answers,
		a:        make([][]float64, dims.Questions*dims.Answers),
		d:        make([][]float64, dims.Questions),
		b:        make([]float64, dims.Targets),
	}
	for i := range kb.a {
		kb.a[i] = seededRow(dims.Targets, initAmount)
	}
	for i := range kb.d {
		kb.d[i] = seededRow(dims.Targets, initAmount*float64(dims.Answers))
	}
	for t := range kb.b {
		kb.b[t] = initAmount
	}
	return kb
}

func seededRow(n pqa.ID, v float64) []float64 {
	row := make([]float64, n)
	for i := range row {
		row[i] = v
	}
	return row
}

// qCap returns the question capacity (gaps included).
func (kb *kbStore) qCap() pqa.ID { return pqa.ID(len(kb.d)) }

// tCap returns the target capacity (gaps included).
func (kb *kbStore) tCap() pqa.ID { return pqa.ID(len(kb.b)) }

// rowA returns the target row of A for (question, answer).
func (kb *kbStore) rowA(q, ans pqa.ID) []float64 {
	return kb.a[q*kb.nAnswers+ans]
}

// rowD returns the target row of D for question.
func (kb *kbStore) rowD(q pqa.ID) []float64 {
	return kb.d[q]
}

// atomicAdd adds amount to *cell via compare-exchange on the bit
// pattern. Lock-free; safe under the shared KB lock against concurrent
// adds to the same cell.
func atomicAdd(cell *float64, amount float64) {
	p := (*uint64)(unsafe.Pointer(cell))
	for {
		old := atomic.LoadUint64(p)
		next := math.Float64bits(math.Float64frombits(old) + amount)
		if atomic.CompareAndSwapUint64(p, old, next) {
			return
		}
	}
}

// addQuestionRows extends A and D by one question's worth of rows seeded
// at initAmount. Exclusive KB lock required.
func (kb *kbStore) addQuestionRows(initAmount float64) {
	tCap := kb.tCap()
	for ans := pqa.ID(0); ans < kb.nAnswers; ans++ {
		kb.a = append(kb.a, seededRow(tCap, initAmount))
	}
	kb.d = append(kb.d, seededRow(tCap, initAmount*float64(kb.nAnswers)))
}

// reseedQuestion resets the rows of an existing question id to the
// initial amounts, erasing prior evidence. Used when a gap id is
// recycled. Exclusive KB lock required.
func (kb *kbStore) reseedQuestion(q pqa.ID, initAmount float64) {
	for ans := pqa.ID(0); ans < kb.nAnswers; ans++ {
		row := kb.rowA(q, ans)
		for t := range row {
			row[t] = initAmount
		}
	}
	row := kb.rowD(q)
	for t := range row {
		row[t] = initAmount * float64(kb.nAnswers)
	}
}

// addTargetColumn extends every row by one target cell seeded at
// initAmount. Exclusive KB lock required.
func (kb *kbStore) addTargetColumn(initAmount float64) {
	for i := range kb.a {
		kb.a[i] = append(kb.a[i], initAmount)
	}
	for i := range kb.d {
		kb.d[i] = append(kb.d[i], initAmount*float64(kb.nAnswers))
	}
	kb.b = append(kb.b, initAmount)
}

// reseedTarget resets the column of an existing target id. Exclusive KB
// lock required.
func (kb *kbStore) reseedTarget(t pqa.ID, initAmount float64) {
	for i := range kb.a {
		kb.a[i][t] = initAmount
	}
	for i := range kb.d {
		kb.d[i][t] = initAmount * float64(kb.nAnswers)
	}
	kb.b[t] = initAmount
}
