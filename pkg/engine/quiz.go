// Copyright (C) 2026 ProbQA Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"github.com/AlexSenchenko/ProbQA/pkg/mempool"
	"github.com/AlexSenchenko/ProbQA/pkg/pqa"
)

// quizMutex serializes the operations of one quiz. It is a plain channel
// semaphore rather than sync.Mutex so ReleaseQuiz can fail fast if it
// ever needs to (it currently blocks like everyone else).
type quizMutex chan struct{}

func (m quizMutex) lock()   { m <- struct{}{} }
func (m quizMutex) unlock() { <-m }

// quiz is the per-session state: the priors over targets split into a
// mantissa plane and an int64 exponent plane, the asked-question bitset,
// the ordered answer history, and the question currently awaiting an
// answer.
//
// All fields past mu are guarded by mu. The planes are pool slabs,
// returned on release.
type quiz struct {
	id pqa.ID
	mu quizMutex

	released bool

	mants []float64 // normalized fractions per target
	exps  []int64   // power-of-two bias per target

	asked   []uint64 // bitset over question ids
	history []pqa.AnsweredQuestion

	// active is the question handed out by NextQuestion and not yet
	// answered; pqa.InvalidID when none is pending.
	active pqa.ID
}

func newQuiz(id pqa.ID, tCap, qCap pqa.ID, pool *mempool.Pool) *quiz {
	return &quiz{
		id:     id,
		mu:     make(quizMutex, 1),
		mants:  pool.GetF64(int(tCap)),
		exps:   pool.GetI64(int(tCap)),
		asked:  make([]uint64, (qCap+63)/64),
		active: pqa.InvalidID,
	}
}

// free returns the planes to the pool. Caller holds mu.
func (z *quiz) free(pool *mempool.Pool) {
	pool.PutF64(z.mants)
	pool.PutI64(z.exps)
	z.mants, z.exps = nil, nil
	z.released = true
}

// wasAsked reports whether question q was already asked in this quiz.
func (z *quiz) wasAsked(q pqa.ID) bool {
	w := q / 64
	if w >= pqa.ID(len(z.asked)) {
		return false
	}
	return z.asked[w]&(uint64(1)<<(uint64(q)%64)) != 0
}

// markAsked records q in the bitset, growing it if the question space
// grew since the quiz started.
func (z *quiz) markAsked(q pqa.ID) {
	w := q / 64
	for pqa.ID(len(z.asked)) <= w {
		z.asked = append(z.asked, 0)
	}
	z.asked[w] |= uint64(1) << (uint64(q) % 64)
}
