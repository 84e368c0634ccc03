// Copyright (C) 2026 ProbQA Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package mempool recycles the numeric scratch slabs the inference and
// training kernels allocate per operation.
//
// Slabs are float64 slices rounded up to power-of-two size classes and
// kept on per-class free lists. The backing arrays start cache-line
// aligned so the quad-unrolled loops never straddle a line on their
// first element.
//
// # Thread Safety
//
// Pool is safe for concurrent use; each size class is guarded by one
// mutex shared across the pool.
package mempool

import (
	"math/bits"
	"sync"
	"unsafe"
)

// cacheLine is the alignment target for slab starts.
const cacheLine = 64

// maxClass bounds the largest recycled slab at 2^maxClass float64s
// (512 MiB). Larger requests are served directly from the heap and
// dropped on Put.
const maxClass = 26

// Stats counts pool traffic for observability.
type Stats struct {
	Hits   uint64 // Get served from a free list
	Misses uint64 // Get caused a fresh allocation
	Puts   uint64 // slabs returned
}

// Pool is a size-classed free list of float64 slabs.
type Pool struct {
	mu      sync.Mutex
	classes [maxClass + 1][][]float64
	stats   Stats
}

// New creates an empty pool.
func New() *Pool {
	return &Pool{}
}

// classFor returns the smallest power-of-two class holding n values, or
// -1 when n exceeds the recycled range.
func classFor(n int) int {
	if n <= 0 {
		return 0
	}
	c := bits.Len(uint(n - 1))
	if c > maxClass {
		return -1
	}
	return c
}

// alignedF64 allocates n float64s whose first element is cacheLine
// aligned.
func alignedF64(n int) []float64 {
	pad := cacheLine / 8
	raw := make([]float64, n+pad)
	off := 0
	addr := uintptr(unsafe.Pointer(&raw[0]))
	if rem := addr % cacheLine; rem != 0 {
		off = int((cacheLine - rem) / 8)
	}
	return raw[off : off+n : off+n]
}

// GetF64 returns a zeroed slab of exactly n float64s.
func (p *Pool) GetF64(n int) []float64 {
	c := classFor(n)
	if c < 0 {
		return make([]float64, n)
	}
	p.mu.Lock()
	free := p.classes[c]
	if len(free) > 0 {
		s := free[len(free)-1]
		p.classes[c] = free[:len(free)-1]
		p.stats.Hits++
		p.mu.Unlock()
		s = s[:n]
		clear(s)
		return s
	}
	p.stats.Misses++
	p.mu.Unlock()
	return alignedF64(1 << c)[:n]
}

// PutF64 returns a slab obtained from GetF64. Slabs of non-pool sizes
// are dropped.
func (p *Pool) PutF64(s []float64) {
	c := classFor(cap(s))
	if c < 0 || cap(s) != 1<<c {
		return
	}
	s = s[:cap(s)]
	p.mu.Lock()
	p.classes[c] = append(p.classes[c], s)
	p.stats.Puts++
	p.mu.Unlock()
}

// GetI64 returns a zeroed slab of n int64s, recycled through the same
// classes (int64 and float64 share width).
func (p *Pool) GetI64(n int) []int64 {
	f := p.GetF64(n)
	return unsafe.Slice((*int64)(unsafe.Pointer(unsafe.SliceData(f))), cap(f))[:n]
}

// PutI64 returns a slab obtained from GetI64.
func (p *Pool) PutI64(s []int64) {
	if cap(s) == 0 {
		return
	}
	f := unsafe.Slice((*float64)(unsafe.Pointer(unsafe.SliceData(s))), cap(s))
	p.PutF64(f)
}

// Snapshot returns the traffic counters accumulated so far.
func (p *Pool) Snapshot() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}
