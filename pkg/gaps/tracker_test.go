// Copyright (C) 2026 ProbQA Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package gaps

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlexSenchenko/ProbQA/pkg/pqa"
)

func TestNew_AllLive(t *testing.T) {
	tr := New(100, false)

	assert.Equal(t, pqa.ID(100), tr.Capacity())
	assert.Equal(t, pqa.ID(0), tr.Gaps())
	assert.Equal(t, pqa.ID(100), tr.Live())
	assert.False(t, tr.IsGap(0))
	assert.False(t, tr.IsGap(99))
	assert.True(t, tr.IsGap(100), "out of range reads as gap")
	assert.True(t, tr.IsGap(-1), "negative reads as gap")
}

func TestNew_AllFree(t *testing.T) {
	tr := New(70, true)

	assert.Equal(t, pqa.ID(70), tr.Gaps())
	for id := pqa.ID(0); id < 70; id++ {
		assert.True(t, tr.IsGap(id), "id %d should start free", id)
	}
}

func TestAcquire_SmallestFirst(t *testing.T) {
	tr := New(4, true)

	for want := pqa.ID(0); want < 4; want++ {
		id, err := tr.Acquire()
		require.NoError(t, err)
		assert.Equal(t, want, id)
	}

	_, err := tr.Acquire()
	require.Error(t, err)
	assert.ErrorIs(t, err, pqa.ErrCapacityExhausted)
}

func TestAcquire_ReusesLowestGap(t *testing.T) {
	tr := New(8, true)
	for i := 0; i < 8; i++ {
		_, err := tr.Acquire()
		require.NoError(t, err)
	}

	require.NoError(t, tr.Release(5))
	require.NoError(t, tr.Release(2))

	id, err := tr.Acquire()
	require.NoError(t, err)
	assert.Equal(t, pqa.ID(2), id, "lowest gap wins")

	id, err = tr.Acquire()
	require.NoError(t, err)
	assert.Equal(t, pqa.ID(5), id)
}

func TestRelease_Errors(t *testing.T) {
	tr := New(8, false)

	require.NoError(t, tr.Release(3))

	err := tr.Release(3)
	require.Error(t, err, "double release")
	assert.ErrorIs(t, err, pqa.ErrInvalidID)

	err = tr.Release(8)
	require.Error(t, err, "out of range")
	assert.ErrorIs(t, err, pqa.ErrInvalidID)

	err = tr.Release(-1)
	require.Error(t, err)
	assert.ErrorIs(t, err, pqa.ErrInvalidID)
}

func TestGrow(t *testing.T) {
	tr := New(10, false)
	require.NoError(t, tr.Release(7))

	tr.Grow(6, false)
	assert.Equal(t, pqa.ID(16), tr.Capacity())
	assert.Equal(t, pqa.ID(1), tr.Gaps())
	assert.False(t, tr.IsGap(12))

	tr.Grow(4, true)
	assert.Equal(t, pqa.ID(20), tr.Capacity())
	assert.Equal(t, pqa.ID(5), tr.Gaps())
	assert.True(t, tr.IsGap(17))
}

func TestQuad(t *testing.T) {
	tr := New(10, false)
	require.NoError(t, tr.Release(1))
	require.NoError(t, tr.Release(6))

	// Quad 0 covers ids 0..3: only id 1 is a gap.
	assert.Equal(t, uint8(0b0010), tr.Quad(0))
	// Quad 1 covers ids 4..7: only id 6 is a gap.
	assert.Equal(t, uint8(0b0100), tr.Quad(1))
	// Quad 2 covers ids 8..11: 10 and 11 are beyond capacity.
	assert.Equal(t, uint8(0b1100), tr.Quad(2))
	// Fully out of range.
	assert.Equal(t, uint8(0b1111), tr.Quad(5))
}

func TestQuad_WordBoundary(t *testing.T) {
	// Capacity straddling a 64-bit word; quad 15 covers ids 60..63,
	// quad 16 covers 64..67.
	tr := New(130, false)
	require.NoError(t, tr.Release(62))
	require.NoError(t, tr.Release(64))
	require.NoError(t, tr.Release(67))

	assert.Equal(t, uint8(0b0100), tr.Quad(15))
	assert.Equal(t, uint8(0b1001), tr.Quad(16))
}

func TestVisitLive(t *testing.T) {
	tr := New(200, false)
	require.NoError(t, tr.Release(0))
	require.NoError(t, tr.Release(64))
	require.NoError(t, tr.Release(65))
	require.NoError(t, tr.Release(199))

	var got []pqa.ID
	tr.VisitLive(0, 200, func(id pqa.ID) bool {
		got = append(got, id)
		return true
	})
	assert.Len(t, got, 196)
	assert.Equal(t, pqa.ID(1), got[0])
	assert.Equal(t, pqa.ID(198), got[len(got)-1])
	assert.NotContains(t, got, pqa.ID(64))
	assert.NotContains(t, got, pqa.ID(65))

	// Early stop.
	got = got[:0]
	tr.VisitLive(0, 200, func(id pqa.ID) bool {
		got = append(got, id)
		return len(got) < 3
	})
	assert.Len(t, got, 3)
}

func TestWordsRoundTrip(t *testing.T) {
	tr := New(100, false)
	require.NoError(t, tr.Release(13))
	require.NoError(t, tr.Release(77))

	words := make([]uint64, len(tr.Words()))
	copy(words, tr.Words())

	fresh := New(100, false)
	require.NoError(t, fresh.LoadWords(words))
	assert.Equal(t, pqa.ID(2), fresh.Gaps())
	assert.True(t, fresh.IsGap(13))
	assert.True(t, fresh.IsGap(77))
	assert.False(t, fresh.IsGap(12))

	err := fresh.LoadWords(words[:1])
	require.Error(t, err)
	assert.ErrorIs(t, err, pqa.ErrFormatMismatch)
}
