// Copyright (C) 2026 ProbQA Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pqa

// Engine is the public surface of a ProbQA backend.
//
// # Description
//
// Quiz operations (StartQuiz through ReleaseQuiz) are regular-mode
// operations: they run concurrently against a read-mostly KB. Structural
// operations (AddQuestion through LoadKB) require maintenance mode.
// SwitchMode moves between the two, draining in-flight regular operations
// before maintenance begins.
//
// # Thread Safety
//
// All methods are safe for concurrent use. Calls touching the same quiz
// id serialize; see the backend documentation for the mechanism.
type Engine interface {
	// StartQuiz creates a quiz with priors initialized from the B table
	// and returns its id.
	//
	// Errors: ErrCapacityExhausted, ErrWrongMode.
	StartQuiz() (ID, error)

	// ResumeQuiz creates a quiz whose priors already reflect the given
	// history, as if each pair had been applied via RecordAnswer.
	//
	// Errors: ErrInvalidID (bad question/answer), ErrCapacityExhausted,
	// ErrWrongMode.
	ResumeQuiz(answered []AnsweredQuestion) (ID, error)

	// NextQuestion selects the most informative not-yet-asked question
	// for the quiz, marks it pending, and returns its id.
	//
	// Errors: ErrNoEligibleQuestion, ErrInvalidID, ErrWrongMode.
	NextQuestion(quiz ID) (ID, error)

	// RecordAnswer applies the answer to the pending question: priors are
	// multiplied by the matching likelihood slice and renormalized.
	//
	// Errors: ErrInvalidID (bad answer), ErrNoPendingQuestion,
	// ErrWrongMode.
	RecordAnswer(quiz ID, answer ID) error

	// ListTopTargets fills dest with the highest-posterior targets,
	// probability descending, target id ascending on ties, and returns
	// the count written (min of len(dest) and the live target count).
	//
	// Errors: ErrInvalidID, ErrInvalidArgument (empty dest), ErrWrongMode.
	ListTopTargets(quiz ID, dest []RatedTarget) (ID, error)

	// RecordQuizTarget confirms the true target of the quiz and applies
	// the training update: amount is added to A[q,a,target] and
	// D[q,target] for every answered pair, and to B[target].
	//
	// Errors: ErrInvalidID (bad target), ErrWrongMode.
	RecordQuizTarget(quiz ID, target ID, amount float64) error

	// ReleaseQuiz destroys the quiz and frees its id for reuse.
	//
	// Errors: ErrInvalidID.
	ReleaseQuiz(quiz ID) error

	// SwitchMode transitions the engine to the target mode, blocking
	// until in-flight operations of the departing mode drain.
	//
	// Errors: ErrInvalidArgument (already in target mode).
	SwitchMode(target EngineMode) error

	// AddQuestion grows the question space by one id (reusing the lowest
	// gap first) with every new A cell seeded at the initial amount.
	// Maintenance mode only.
	//
	// Errors: ErrWrongMode, ErrCapacityExhausted.
	AddQuestion() (ID, error)

	// AddTarget grows the target space by one id, seeding A, D and B.
	// Maintenance mode only.
	//
	// Errors: ErrWrongMode, ErrCapacityExhausted.
	AddTarget() (ID, error)

	// RemoveQuestion marks the question id as a gap. Maintenance mode
	// only.
	//
	// Errors: ErrWrongMode, ErrInvalidID.
	RemoveQuestion(question ID) error

	// RemoveTarget marks the target id as a gap. Maintenance mode only.
	//
	// Errors: ErrWrongMode, ErrInvalidID.
	RemoveTarget(target ID) error

	// CompactGaps repacks live question and target ids into dense
	// prefixes and shrinks the KB tables. Maintenance mode only. The
	// returned mapping lets callers rewrite external id references.
	//
	// Errors: ErrWrongMode.
	CompactGaps(progress ProgressReporter) (CompactionMapping, error)

	// SaveKB writes the KB snapshot to path. Maintenance mode only.
	//
	// Errors: ErrWrongMode, filesystem errors.
	SaveKB(path string, progress ProgressReporter) error

	// LoadKB replaces the KB from a snapshot at path. The snapshot's
	// dimensions must match the engine's. Maintenance mode only.
	//
	// Errors: ErrWrongMode, ErrFormatMismatch, filesystem errors.
	LoadKB(path string, progress ProgressReporter) error

	// GetDims returns the current table shape (capacities including
	// gaps).
	GetDims() EngineDimensions

	// GetTotalQuestionsAsked returns the monotone count of questions
	// handed out by NextQuestion over the engine's lifetime.
	GetTotalQuestionsAsked() uint64

	// Close drains outstanding quizzes and stops the worker pool. The
	// engine is unusable afterwards.
	Close() error
}
