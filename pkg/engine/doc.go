// Copyright (C) 2026 ProbQA Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package engine implements the CPU backend of the ProbQA contract.
//
// # Architecture
//
// The engine owns three KB mass tables — A[q][a][t] (evidence that
// target t produces answer a to question q), D[q][t] = Σₐ A[q][a][t],
// and B[t] (prior mass of t) — plus gap trackers for the question,
// target and quiz id spaces, a fixed worker pool, and a memory pool for
// kernel scratch.
//
// Inference kernels fan out over the worker pool in contiguous chunks of
// the target axis; per-quiz priors are held as a mantissa plane and an
// int64 exponent plane so products of dozens of likelihoods cannot
// underflow. Sums of many magnitudes go through the bucket summator.
//
// # Locking
//
// Lock acquisition order, violations of which are bugs:
//
//	mode switch -> quiz mutex -> KB reader/writer lock -> registry mutex
//
// Regular operations (quizzes, training) hold the KB lock in shared
// mode; training writes per cell via compare-exchange adds, which is
// sound because cells only grow and readers tolerate either the pre- or
// post-update value. Structural operations hold it exclusively and are
// only reachable in maintenance mode.
//
// Calls on the same quiz id serialize on the quiz mutex (they block
// rather than failing with "quiz busy"); calls on distinct quizzes run
// concurrently.
package engine
