// Copyright (C) 2026 ProbQA Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"fmt"
	"sync"

	"github.com/AlexSenchenko/ProbQA/pkg/pqa"
)

// maintSwitch is the tri-state regular/maintenance coordinator.
//
// It exists so that an operation issued in the wrong mode fails eagerly
// with pqa.ErrWrongMode instead of blocking behind the KB lock. States:
// the current mode, and a transitioning flag during which new entries of
// either mode are rejected while in-flight ones drain.
type maintSwitch struct {
	mu            sync.Mutex
	cond          *sync.Cond
	mode          pqa.EngineMode
	transitioning bool
	inFlight      int // operations of the current mode
}

func newMaintSwitch() *maintSwitch {
	s := &maintSwitch{mode: pqa.ModeRegular}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// enter admits an operation of the given mode. It returns a leave
// function that must be called exactly once when the operation
// completes.
//
// Errors: pqa.ErrWrongMode when the engine is in the other mode or a
// transition is draining.
func (s *maintSwitch) enter(mode pqa.EngineMode) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.transitioning || s.mode != mode {
		return nil, fmt.Errorf("engine is in %s mode: %w", s.currentLocked(), pqa.ErrWrongMode)
	}
	s.inFlight++
	return s.leave, nil
}

func (s *maintSwitch) leave() {
	s.mu.Lock()
	s.inFlight--
	if s.inFlight == 0 {
		s.cond.Broadcast()
	}
	s.mu.Unlock()
}

// currentLocked names the state for error detail. Callers hold s.mu.
func (s *maintSwitch) currentLocked() string {
	if s.transitioning {
		return "transitioning"
	}
	return s.mode.String()
}

// switchTo blocks until in-flight operations of the departing mode
// drain, then flips the mode. Concurrent switch requests serialize;
// later duplicates fail with "already in target mode".
//
// Errors: pqa.ErrInvalidArgument when already in the target mode.
func (s *maintSwitch) switchTo(target pqa.EngineMode) error {
	if target != pqa.ModeRegular && target != pqa.ModeMaintenance {
		return fmt.Errorf("unknown mode %d: %w", target, pqa.ErrInvalidArgument)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.transitioning {
		s.cond.Wait()
	}
	if s.mode == target {
		return fmt.Errorf("already in %s mode: %w", target, pqa.ErrInvalidArgument)
	}
	s.transitioning = true
	for s.inFlight > 0 {
		s.cond.Wait()
	}
	s.mode = target
	s.transitioning = false
	s.cond.Broadcast()
	return nil
}

// current returns the mode for introspection.
func (s *maintSwitch) current() pqa.EngineMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}
