// Copyright (C) 2026 ProbQA Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import "github.com/AlexSenchenko/ProbQA/pkg/pqa"

// train folds a resolved quiz into the KB: for every answered pair the
// amount is added to A[q,a,target] and to D[q,target], keeping D = Σₐ A
// exact up to rounding, and once to B[target].
//
// Adds are per-cell compare-exchange, so many quizzes may train
// concurrently under the shared KB lock; the final cell values equal
// the sum of all applied amounts regardless of interleaving. Caller
// holds the quiz lock and the shared KB lock, and has validated target.
func (e *CpuEngine) train(z *quiz, target pqa.ID, amount float64) {
	for _, aq := range z.history {
		// A question removed after it was answered trains nothing;
		// its cells would be reseeded on id reuse anyway.
		if e.questionGaps.IsGap(aq.Question) {
			continue
		}
		atomicAdd(&e.kb.rowA(aq.Question, aq.Answer)[target], amount)
		atomicAdd(&e.kb.rowD(aq.Question)[target], amount)
	}
	atomicAdd(&e.kb.b[target], amount)
}
