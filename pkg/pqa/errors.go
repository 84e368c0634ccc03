// Copyright (C) 2026 ProbQA Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pqa

import "errors"

// Sentinel errors for engine operations.
//
// Every engine operation returns either success or a single error value.
// The sentinels below are the machine-checkable kinds; implementations
// wrap them with fmt.Errorf("...: %w", ...) to attach human-readable
// detail. Use errors.Is to classify.
var (
	// ErrInvalidArgument is returned when an input fails validation
	// before reaching any kernel (nil buffer, k < 1, negative amount).
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidID is returned when a quiz, question, target or answer id
	// is out of range or refers to a released (gap) slot.
	ErrInvalidID = errors.New("invalid id")

	// ErrWrongMode is returned when a regular operation is attempted in
	// maintenance mode, or a structural operation in regular mode.
	ErrWrongMode = errors.New("wrong engine mode")

	// ErrCapacityExhausted is returned when an id space has no free slot
	// left and cannot grow in the current mode.
	ErrCapacityExhausted = errors.New("capacity exhausted")

	// ErrNoEligibleQuestion is returned by NextQuestion when every
	// question is either already asked or removed. The quiz is exhausted.
	ErrNoEligibleQuestion = errors.New("no eligible question")

	// ErrNoPendingQuestion is returned by RecordAnswer when the quiz has
	// no question awaiting an answer.
	ErrNoPendingQuestion = errors.New("no pending question")

	// ErrQuizBusy is returned when an operation finds the quiz locked by
	// a concurrent caller and the implementation chose rejection over
	// serialization. The CPU backend serializes instead; see its docs.
	ErrQuizBusy = errors.New("quiz busy")

	// ErrFormatMismatch is returned by KB load when the file magic,
	// version or dimensions disagree with what the engine expects.
	ErrFormatMismatch = errors.New("KB format mismatch")

	// ErrNotImplemented is returned by the CUDA and grid backend
	// factories, and for precisions other than double.
	ErrNotImplemented = errors.New("not implemented")

	// ErrInvariantViolation indicates internal KB or quiz state
	// corruption. It is fatal to the engine instance: every subsequent
	// operation returns the same error until the process restarts.
	ErrInvariantViolation = errors.New("internal invariant violation")
)
