// Copyright (C) 2026 ProbQA Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pqa

// ID addresses a question, target, answer or quiz within an engine.
// IDs are dense non-negative integers; InvalidID marks "none".
type ID = int64

// InvalidID is the sentinel for "no id" (no pending question, target not
// found in the top-rated list, and so on).
const InvalidID ID = -1

// PrecisionType selects the numeric representation of KB cells.
type PrecisionType int

const (
	// PrecisionDouble is IEEE-754 binary64. The only precision the CPU
	// backend implements.
	PrecisionDouble PrecisionType = iota

	// PrecisionFloat is IEEE-754 binary32. Declared, not implemented.
	PrecisionFloat
)

// String returns the precision name for logs and error detail.
func (p PrecisionType) String() string {
	switch p {
	case PrecisionDouble:
		return "double"
	case PrecisionFloat:
		return "float"
	default:
		return "unknown"
	}
}

// EngineDimensions fixes the shape of the KB mass tables.
//
// Answers and Targets are positive; Questions may be zero. All three are
// mutable only in maintenance mode. Answers is
// small (typically at most 16); Questions and Targets may reach millions.
type EngineDimensions struct {
	Answers   ID `json:"nAnswers" yaml:"nAnswers"`
	Questions ID `json:"nQuestions" yaml:"nQuestions"`
	Targets   ID `json:"nTargets" yaml:"nTargets"`
}

// EngineDefinition configures a new engine.
type EngineDefinition struct {
	// Dims is the initial shape of the KB.
	Dims EngineDimensions `json:"dims" yaml:"dims"`

	// InitAmount is the smoothing mass seeded into every A and B cell at
	// creation, ensuring no likelihood is exactly zero. Must be > 0.
	InitAmount float64 `json:"initAmount" yaml:"initAmount"`

	// Precision selects the cell representation. Only PrecisionDouble is
	// implemented.
	Precision PrecisionType `json:"precision" yaml:"precision"`

	// Workers is the size of the engine's worker pool. Zero selects
	// runtime.NumCPU().
	Workers int `json:"workers" yaml:"workers"`
}

// AnsweredQuestion is one (question, answer) pair of a quiz history.
type AnsweredQuestion struct {
	Question ID `json:"question" yaml:"question"`
	Answer   ID `json:"answer" yaml:"answer"`
}

// RatedTarget is one entry of a top-targets listing: a target id and its
// posterior probability under the current quiz priors.
type RatedTarget struct {
	Target      ID      `json:"target"`
	Probability float64 `json:"probability"`
}

// EngineMode is the coarse operating state of an engine.
type EngineMode int

const (
	// ModeRegular permits concurrent quiz and training operations and
	// rejects structural changes.
	ModeRegular EngineMode = iota

	// ModeMaintenance permits serialized structural changes and rejects
	// quiz operations.
	ModeMaintenance
)

// String returns the mode name for logs and error detail.
func (m EngineMode) String() string {
	switch m {
	case ModeRegular:
		return "regular"
	case ModeMaintenance:
		return "maintenance"
	default:
		return "unknown"
	}
}

// ProgressReporter receives completion fractions in [0,1] from
// long-running maintenance operations. Implementations must be safe for
// calls from the engine's worker goroutines. A nil reporter is ignored.
type ProgressReporter func(fraction float64)

// CompactionMapping reports the id moves performed by CompactGaps so
// callers can rewrite external references.
type CompactionMapping struct {
	// OldQuestions maps new question id -> old question id.
	OldQuestions []ID `json:"oldQuestions"`
	// OldTargets maps new target id -> old target id.
	OldTargets []ID `json:"oldTargets"`
}
