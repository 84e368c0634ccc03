// Copyright (C) 2026 ProbQA Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package numerics holds the floating-point substrate of the engine:
// IEEE-754 exponent manipulation, quad (4-lane) range arithmetic for the
// unrolled kernels, a magnitude-ordered stable summation, and the
// per-worker bucket summator that adds millions of doubles of wildly
// different magnitudes without catastrophic rounding loss.
//
// Everything here is deliberately allocation-free on the hot paths; the
// bucket summator carves its rows from the caller's memory pool once per
// operation.
package numerics
