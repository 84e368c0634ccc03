// Copyright (C) 2026 ProbQA Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"fmt"
	"math"
	"sort"

	"github.com/AlexSenchenko/ProbQA/pkg/numerics"
	"github.com/AlexSenchenko/ProbQA/pkg/pqa"
)

// Renormalization constants: whenever a mantissa's magnitude falls below
// 2^-renormShift, the lane is rescaled by 2^renormShift and the shift is
// subtracted from the lane's exponent plane, keeping the represented
// value identical. The shift is large enough that a lane is touched at
// most once per few hundred answers.
const (
	renormShift     = 256
	renormThreshold = 0x1p-256
)

// targetSpan bounds a quiz's lane loops. The KB target axis may have
// grown since the planes were sized; targets added later do not
// participate in older quizzes.
func (e *CpuEngine) targetSpan(z *quiz) pqa.ID {
	if l := pqa.ID(len(z.mants)); l < e.kb.tCap() {
		return l
	}
	return e.kb.tCap()
}

// initPriors fills a fresh quiz's planes from B and divides by ΣB so the
// priors sum to 1: a set-and-sum split pass feeding the bucket summator,
// then a divide pass. Caller holds the quiz lock and the shared KB lock.
func (e *CpuEngine) initPriors(z *quiz) error {
	tCap := e.targetSpan(z)
	nQuads, _ := numerics.Quads(tCap)
	w := e.pool.Workers()

	bs := numerics.NewBucketSummator(w, e.memPool)
	defer bs.Release()

	err := e.pool.RunSplit(nQuads, func(worker int, lo, hi int64) error {
		for iQ := lo; iQ < hi; iQ++ {
			gm := e.targetGaps.Quad(iQ)
			base := iQ * 4
			n := laneCount(base, tCap)
			for k := 0; k < n; k++ {
				t := base + int64(k)
				var v float64
				if gm&(1<<uint(k)) == 0 {
					v = e.kb.b[t]
				}
				z.mants[t] = v
				z.exps[t] = 0
				bs.Add(worker, v)
			}
		}
		return nil
	})
	if err != nil {
		return e.fail(err)
	}

	sum, err := bs.ComputeSum(e.pool)
	if err != nil {
		return e.fail(err)
	}
	if !(sum > 0) || math.IsInf(sum, 0) {
		return e.fail(fmt.Errorf("prior mass sum %v: %w", sum, pqa.ErrInvariantViolation))
	}

	return e.divideMants(z, sum)
}

// resumePriors reconstructs the priors of a quiz from a validated
// answer history: copy B, multiply by each answer's likelihood slice,
// normalize once at the end. Caller holds the quiz lock and the shared
// KB lock.
func (e *CpuEngine) resumePriors(z *quiz, answered []pqa.AnsweredQuestion) error {
	tCap := e.targetSpan(z)
	nQuads, _ := numerics.Quads(tCap)

	err := e.pool.RunSplit(nQuads, func(_ int, lo, hi int64) error {
		for iQ := lo; iQ < hi; iQ++ {
			gm := e.targetGaps.Quad(iQ)
			base := iQ * 4
			n := laneCount(base, tCap)
			for k := 0; k < n; k++ {
				t := base + int64(k)
				var v float64
				if gm&(1<<uint(k)) == 0 {
					v = e.kb.b[t]
				}
				z.mants[t] = v
				z.exps[t] = 0
			}
		}
		return nil
	})
	if err != nil {
		return e.fail(err)
	}

	for _, aq := range answered {
		if err := e.mulLikelihood(z, aq.Question, aq.Answer); err != nil {
			return err
		}
	}
	return e.normalizePriors(z)
}

// applyAnswer is the RecordAnswer kernel: multiply the priors in place
// by A[q,a,·]/D[q,·] and renormalize to probabilities. Caller holds the
// quiz lock and the shared KB lock.
func (e *CpuEngine) applyAnswer(z *quiz, q, ans pqa.ID) error {
	if e.questionGaps.IsGap(q) {
		return fmt.Errorf("question %d was removed: %w", q, pqa.ErrInvalidID)
	}
	if err := e.mulLikelihood(z, q, ans); err != nil {
		return err
	}
	return e.normalizePriors(z)
}

// mulLikelihood multiplies every live lane by A[q,ans,t]/D[q,t] in split
// chunks over the target axis, rescaling any mantissa that crosses the
// low-magnitude threshold so long histories cannot underflow.
func (e *CpuEngine) mulLikelihood(z *quiz, q, ans pqa.ID) error {
	tCap := e.targetSpan(z)
	nQuads, _ := numerics.Quads(tCap)
	rowA := e.kb.rowA(q, ans)
	rowD := e.kb.rowD(q)

	err := e.pool.RunSplit(nQuads, func(_ int, lo, hi int64) error {
		for iQ := lo; iQ < hi; iQ++ {
			gm := e.targetGaps.Quad(iQ)
			base := iQ * 4
			n := laneCount(base, tCap)
			for k := 0; k < n; k++ {
				t := base + int64(k)
				if gm&(1<<uint(k)) != 0 {
					z.mants[t] = 0
					continue
				}
				m := z.mants[t] * (rowA[t] / rowD[t])
				for m != 0 && math.Abs(m) < renormThreshold {
					m = math.Ldexp(m, renormShift)
					z.exps[t] -= renormShift
				}
				z.mants[t] = m
			}
		}
		return nil
	})
	if err != nil {
		return e.fail(err)
	}
	return nil
}

// normalizePriors converts the planes to plain probabilities summing
// to 1. Pass 1 reduces the maximum total exponent across live lanes
// (max of per-worker maxima); pass 2 rescales every lane by 2^(E-Emax),
// zeroes the exponent plane and feeds the bucket summator; pass 3
// divides by the stable sum.
func (e *CpuEngine) normalizePriors(z *quiz) error {
	tCap := e.targetSpan(z)
	nQuads, _ := numerics.Quads(tCap)
	w := e.pool.Workers()

	maxima := make([]int64, w)
	for i := range maxima {
		maxima[i] = math.MinInt64
	}
	err := e.pool.RunSplit(nQuads, func(worker int, lo, hi int64) error {
		cur := maxima[worker]
		for iQ := lo; iQ < hi; iQ++ {
			gm := e.targetGaps.Quad(iQ)
			base := iQ * 4
			n := laneCount(base, tCap)
			for k := 0; k < n; k++ {
				t := base + int64(k)
				if gm&(1<<uint(k)) != 0 || z.mants[t] == 0 {
					continue
				}
				if tot := numerics.TotalExponent(z.mants[t], z.exps[t]); tot > cur {
					cur = tot
				}
			}
		}
		maxima[worker] = cur
		return nil
	})
	if err != nil {
		return e.fail(err)
	}

	eMax := int64(math.MinInt64)
	for _, m := range maxima {
		if m > eMax {
			eMax = m
		}
	}
	if eMax == math.MinInt64 {
		return e.fail(fmt.Errorf("no live target carries mass: %w", pqa.ErrInvariantViolation))
	}

	bs := numerics.NewBucketSummator(w, e.memPool)
	defer bs.Release()

	err = e.pool.RunSplit(nQuads, func(worker int, lo, hi int64) error {
		for iQ := lo; iQ < hi; iQ++ {
			base := iQ * 4
			n := laneCount(base, tCap)
			for k := 0; k < n; k++ {
				t := base + int64(k)
				v := numerics.ScalePow2(z.mants[t], z.exps[t]-eMax)
				z.mants[t] = v
				z.exps[t] = 0
				bs.Add(worker, v)
			}
		}
		return nil
	})
	if err != nil {
		return e.fail(err)
	}

	sum, err := bs.ComputeSum(e.pool)
	if err != nil {
		return e.fail(err)
	}
	if !(sum > 0) || math.IsInf(sum, 0) {
		return e.fail(fmt.Errorf("posterior mass sum %v: %w", sum, pqa.ErrInvariantViolation))
	}

	return e.divideMants(z, sum)
}

// divideMants scales every lane by 1/sum in a split pass.
func (e *CpuEngine) divideMants(z *quiz, sum float64) error {
	tCap := e.targetSpan(z)
	nQuads, _ := numerics.Quads(tCap)

	err := e.pool.RunSplit(nQuads, func(_ int, lo, hi int64) error {
		for iQ := lo; iQ < hi; iQ++ {
			base := iQ * 4
			n := laneCount(base, tCap)
			for k := 0; k < n; k++ {
				z.mants[base+int64(k)] /= sum
			}
		}
		return nil
	})
	if err != nil {
		return e.fail(err)
	}
	return nil
}

// selectQuestion scores every eligible question by the expected entropy
// of the answer distribution it induces and returns the best (highest
// score, lowest id on ties). Caller holds the quiz lock and the shared
// KB lock; priors are normalized.
func (e *CpuEngine) selectQuestion(z *quiz) (pqa.ID, error) {
	qCap := e.kb.qCap()
	tCap := e.targetSpan(z)
	nA := e.dims.Answers
	w := e.pool.Workers()

	bestScore := make([]float64, w)
	bestQ := make([]pqa.ID, w)
	for i := range bestScore {
		bestScore[i] = math.Inf(-1)
		bestQ[i] = pqa.InvalidID
	}

	err := e.pool.RunSplit(qCap, func(worker int, lo, hi int64) error {
		ws := make([]float64, nA)
		for q := lo; q < hi; q++ {
			if e.questionGaps.IsGap(q) || z.wasAsked(q) {
				continue
			}
			for a := range ws {
				ws[a] = 0
			}
			rowD := e.kb.rowD(q)
			aBase := q * nA
			for t := pqa.ID(0); t < tCap; t++ {
				p := z.mants[t]
				if p == 0 {
					continue
				}
				pd := p / rowD[t]
				for a := pqa.ID(0); a < nA; a++ {
					ws[a] += pd * e.kb.a[aBase+a][t]
				}
			}
			var score float64
			for _, wa := range ws {
				if wa > 0 {
					score -= wa * math.Log(wa)
				}
			}
			if score > bestScore[worker] {
				bestScore[worker] = score
				bestQ[worker] = q
			}
		}
		return nil
	})
	if err != nil {
		return pqa.InvalidID, e.fail(err)
	}

	best := pqa.InvalidID
	bestS := math.Inf(-1)
	for i := 0; i < w; i++ {
		if bestQ[i] == pqa.InvalidID {
			continue
		}
		if bestS < bestScore[i] || (bestS == bestScore[i] && bestQ[i] < best) {
			bestS = bestScore[i]
			best = bestQ[i]
		}
	}
	if best == pqa.InvalidID {
		return pqa.InvalidID, fmt.Errorf("quiz %d asked every live question: %w",
			z.id, pqa.ErrNoEligibleQuestion)
	}
	if e.questionGaps.IsGap(best) || z.wasAsked(best) {
		// The scored candidate went stale; settle for the nearest
		// eligible neighbor.
		if near := e.findNearestQuestion(best, z); near != pqa.InvalidID {
			return near, nil
		}
		return pqa.InvalidID, fmt.Errorf("quiz %d: %w", z.id, pqa.ErrNoEligibleQuestion)
	}
	return best, nil
}

// findNearestQuestion walks outward from middle and returns the first
// question that is neither a gap nor already asked; the lower id wins
// when both sides are eligible at the same distance.
func (e *CpuEngine) findNearestQuestion(middle pqa.ID, z *quiz) pqa.ID {
	qCap := e.kb.qCap()
	eligible := func(q pqa.ID) bool {
		return q >= 0 && q < qCap && !e.questionGaps.IsGap(q) && !z.wasAsked(q)
	}
	for d := pqa.ID(0); d < qCap; d++ {
		if lo := middle - d; eligible(lo) {
			return lo
		}
		if hi := middle + d; d != 0 && eligible(hi) {
			return hi
		}
	}
	return pqa.InvalidID
}

// topTargets lists the k highest-posterior live targets into dest,
// probability descending, id ascending on ties. Caller holds the quiz
// lock and the shared KB lock.
func (e *CpuEngine) topTargets(z *quiz, dest []pqa.RatedTarget) (pqa.ID, error) {
	cands := make([]pqa.RatedTarget, 0, e.targetGaps.Live())
	e.targetGaps.VisitLive(0, e.targetSpan(z), func(t pqa.ID) bool {
		cands = append(cands, pqa.RatedTarget{
			Target:      t,
			Probability: numerics.ScalePow2(z.mants[t], z.exps[t]),
		})
		return true
	})
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].Probability != cands[j].Probability {
			return cands[i].Probability > cands[j].Probability
		}
		return cands[i].Target < cands[j].Target
	})
	n := len(dest)
	if len(cands) < n {
		n = len(cands)
	}
	copy(dest, cands[:n])
	return pqa.ID(n), nil
}

// laneCount bounds a quad at the end of the target axis.
func laneCount(base, tCap pqa.ID) int {
	n := tCap - base
	if n > 4 {
		n = 4
	}
	return int(n)
}
