// Copyright (C) 2026 ProbQA Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package numerics

import (
	"fmt"

	"github.com/AlexSenchenko/ProbQA/pkg/mempool"
	"github.com/AlexSenchenko/ProbQA/pkg/workers"
)

// BucketSummator accumulates doubles into per-exponent buckets so that
// values of similar magnitude collide and cancel or reinforce without
// catastrophic loss. Each worker owns one row of BucketCount buckets;
// rows never contend.
//
// The lifecycle within one kernel invocation:
//
//  1. Rows start zeroed: NewBucketSummator takes cleared slabs from the
//     pool. Before a summator is reused for another sum, each worker
//     calls ZeroRow for its own row (the sweep warms that worker's
//     cache); ComputeSum does not clear the rows.
//  2. Workers Add/AddMany into their rows, wait-free.
//  3. The caller joins the pool and invokes ComputeSum, which walks
//     buckets smallest to largest magnitude in parallel and stable-sums
//     the per-worker partials.
//
// The final rounding error is bounded by the number of distinct
// magnitude classes, not by the number of summands.
type BucketSummator struct {
	rows     []float64 // nWorkers rows of BucketCount, one slab
	partials []float64 // per-worker partial sums of the collective pass
	nWorkers int
	pool     *mempool.Pool
}

// NewBucketSummator carves rows for nWorkers from pool.
func NewBucketSummator(nWorkers int, pool *mempool.Pool) *BucketSummator {
	return &BucketSummator{
		rows:     pool.GetF64(nWorkers * BucketCount),
		partials: pool.GetF64(nWorkers),
		nWorkers: nWorkers,
		pool:     pool,
	}
}

// Release returns the bucket memory to the pool. The summator must not
// be used afterwards.
func (b *BucketSummator) Release() {
	b.pool.PutF64(b.rows)
	b.pool.PutF64(b.partials)
	b.rows, b.partials = nil, nil
}

// Row returns worker's bucket row.
func (b *BucketSummator) Row(worker int) []float64 {
	return b.rows[worker*BucketCount : (worker+1)*BucketCount : (worker+1)*BucketCount]
}

// ZeroRow clears worker's row. Each worker must zero its own row before
// reuse so the lines land in that worker's cache.
func (b *BucketSummator) ZeroRow(worker int) {
	clear(b.Row(worker))
}

// Add accumulates v into worker's bucket for v's biased exponent.
// Wait-free among distinct workers.
func (b *BucketSummator) Add(worker int, v float64) {
	b.Row(worker)[BiasedExponent(v)] += v
}

// AddMany accumulates all of vals into worker's row, unrolled by quads.
func (b *BucketSummator) AddMany(worker int, vals []float64) {
	row := b.Row(worker)
	i := 0
	for ; i+4 <= len(vals); i += 4 {
		row[BiasedExponent(vals[i])] += vals[i]
		row[BiasedExponent(vals[i+1])] += vals[i+1]
		row[BiasedExponent(vals[i+2])] += vals[i+2]
		row[BiasedExponent(vals[i+3])] += vals[i+3]
	}
	for ; i < len(vals); i++ {
		row[BiasedExponent(vals[i])] += vals[i]
	}
}

// ComputeSum is the collective phase: the pool splits the bucket index
// range, each chunk accumulates its buckets across all rows in ascending
// magnitude order, and the per-worker partials are stable-summed on the
// calling goroutine.
func (b *BucketSummator) ComputeSum(p *workers.Pool) (float64, error) {
	if p.Workers() != b.nWorkers {
		return 0, fmt.Errorf("summator sized for %d workers, pool has %d",
			b.nWorkers, p.Workers())
	}
	clear(b.partials)
	err := p.RunSplit(BucketCount, func(worker int, lo, hi int64) error {
		var acc float64
		for iB := lo; iB < hi; iB++ {
			for w := 0; w < b.nWorkers; w++ {
				acc += b.rows[w*BucketCount+int(iB)]
			}
		}
		b.partials[worker] += acc
		return nil
	})
	if err != nil {
		return 0, err
	}
	return StableSum(b.partials), nil
}
