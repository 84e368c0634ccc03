// Copyright (C) 2026 ProbQA Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package numerics

import (
	"math"
	"sort"
)

// StableSum adds vals smallest magnitude first, so small terms are not
// absorbed by an already-large accumulator. The input is reordered in
// place.
//
// Intended for short vectors (per-worker partial sums); the bucket
// summator handles the million-term case.
func StableSum(vals []float64) float64 {
	sort.Slice(vals, func(i, j int) bool {
		return math.Abs(vals[i]) < math.Abs(vals[j])
	})
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum
}
