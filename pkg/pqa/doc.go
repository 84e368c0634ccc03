// Copyright (C) 2026 ProbQA Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package pqa defines the public contract of the ProbQA engine.
//
// ProbQA maintains a learned joint distribution over a finite universe of
// targets conditioned on answers given to questions, and uses it to drive
// interactive quizzes: the engine repeatedly selects the next most
// informative question, records the answer, and narrows its belief over
// targets until one dominates. Confirmed quizzes are folded back into the
// knowledge base as training evidence.
//
// # Components
//
// This package holds only types, error kinds and the Engine interface.
// Implementations live elsewhere:
//
//   - pkg/engine: the CPU backend and its factory functions
//   - pkg/server: an HTTP facade over an Engine
//   - cmd/probqa: the command-line harness
//
// # Concurrency
//
// An Engine is safe for concurrent use by multiple goroutines. Operations
// on the same quiz id serialize against each other; operations on distinct
// quizzes run concurrently. Structural changes (adding or removing
// questions and targets, compaction, persistence) require the engine to be
// switched into maintenance mode first, during which regular quiz
// operations are rejected with ErrWrongMode.
package pqa
