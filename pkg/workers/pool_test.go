// Copyright (C) 2026 ProbQA Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package workers

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunSplit_CoversRangeExactlyOnce(t *testing.T) {
	p := NewPool(4)
	defer p.Close()

	const total = 1003
	seen := make([]int32, total)
	err := p.RunSplit(total, func(_ int, lo, hi int64) error {
		for i := lo; i < hi; i++ {
			atomic.AddInt32(&seen[i], 1)
		}
		return nil
	})
	require.NoError(t, err)

	for i, n := range seen {
		require.Equal(t, int32(1), n, "index %d", i)
	}
}

func TestRunSplit_ChunksContiguousAndBalanced(t *testing.T) {
	p := NewPool(4)
	defer p.Close()

	var mu sync.Mutex
	var chunks [][2]int64
	err := p.RunSplit(10, func(_ int, lo, hi int64) error {
		mu.Lock()
		chunks = append(chunks, [2]int64{lo, hi})
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)
	require.Len(t, chunks, 4)

	var sizes []int64
	for _, c := range chunks {
		sizes = append(sizes, c[1]-c[0])
	}
	// 10 over 4 workers: sizes 3,3,2,2 in some dispatch order.
	var totalLen int64
	for _, s := range sizes {
		assert.InDelta(t, 2.5, float64(s), 0.5)
		totalLen += s
	}
	assert.Equal(t, int64(10), totalLen)

	// Sorted by start, the chunks tile [0, 10) without holes or overlap.
	sort.Slice(chunks, func(i, j int) bool { return chunks[i][0] < chunks[j][0] })
	assert.Equal(t, int64(0), chunks[0][0])
	for i := 1; i < len(chunks); i++ {
		assert.Equal(t, chunks[i-1][1], chunks[i][0], "chunk %d", i)
	}
	assert.Equal(t, int64(10), chunks[len(chunks)-1][1])
}

func TestRunSplit_EmptyRangeStillInvokesEveryWorkerSlot(t *testing.T) {
	p := NewPool(3)
	defer p.Close()

	var calls atomic.Int32
	err := p.RunSplit(0, func(_ int, lo, hi int64) error {
		assert.Equal(t, lo, hi)
		calls.Add(1)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRunSplit_ErrorMerging(t *testing.T) {
	p := NewPool(4)
	defer p.Close()

	errBoom := errors.New("boom")
	err := p.RunSplit(4, func(_ int, lo, _ int64) error {
		if lo >= 2 {
			return errBoom
		}
		return nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, errBoom)
}

func TestRunSplit_PanicBecomesError(t *testing.T) {
	p := NewPool(2)
	defer p.Close()

	err := p.RunSplit(2, func(_ int, lo, _ int64) error {
		if lo == 0 {
			panic("kernel bug")
		}
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")

	// The pool must stay usable after a panic.
	require.NoError(t, p.RunSplit(10, func(_ int, _, _ int64) error { return nil }))
}

func TestRunEach(t *testing.T) {
	p := NewPool(5)
	defer p.Close()

	var mu sync.Mutex
	seen := map[int]bool{}
	err := p.RunEach(func(worker int) error {
		mu.Lock()
		seen[worker] = true
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)
	// Worker indices passed to fn are the executing goroutines'; five
	// concurrent slots exist but a fast goroutine may serve several.
	assert.NotEmpty(t, seen)
	for w := range seen {
		assert.GreaterOrEqual(t, w, 0)
		assert.Less(t, w, 5)
	}
}

func TestConcurrentRuns(t *testing.T) {
	p := NewPool(4)
	defer p.Close()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var sum atomic.Int64
			err := p.RunSplit(1000, func(_ int, lo, hi int64) error {
				var s int64
				for i := lo; i < hi; i++ {
					s += i
				}
				sum.Add(s)
				return nil
			})
			assert.NoError(t, err)
			assert.Equal(t, int64(1000*999/2), sum.Load())
		}()
	}
	wg.Wait()
}
