// Copyright (C) 2026 ProbQA Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/AlexSenchenko/ProbQA/pkg/gaps"
	"github.com/AlexSenchenko/ProbQA/pkg/logging"
	"github.com/AlexSenchenko/ProbQA/pkg/mempool"
	"github.com/AlexSenchenko/ProbQA/pkg/pqa"
	"github.com/AlexSenchenko/ProbQA/pkg/workers"
)

// quizCapacityLimit bounds the quiz id space. The registry grows on
// demand below this; above it StartQuiz reports capacity exhaustion.
const quizCapacityLimit = 1 << 20

// initialQuizCapacity is the quiz id space a fresh engine starts with.
const initialQuizCapacity = 64

// CpuEngine is the double-precision CPU backend.
//
// See the package documentation for the locking discipline. The zero
// value is not usable; construct via CreateCpuEngine.
type CpuEngine struct {
	id  uuid.UUID
	log *logging.Logger

	dims       pqa.EngineDimensions // guarded by rws in maintenance mode
	initAmount float64

	memPool *mempool.Pool
	pool    *workers.Pool

	// Locks, in acquisition order.
	maint *maintSwitch
	rws   sync.RWMutex // KB tables, dims, question/target gaps
	muReg sync.Mutex   // quiz registry

	kb *kbStore

	quizzes  map[pqa.ID]*quiz // guarded by muReg
	quizGaps *gaps.Tracker    // guarded by muReg

	questionGaps *gaps.Tracker // guarded by rws in maintenance mode
	targetGaps   *gaps.Tracker // guarded by rws in maintenance mode

	nQuestionsAsked atomic.Uint64

	// fatalErr latches the first internal invariant violation; every
	// later operation fails with it until the process restarts.
	fatalErr atomic.Pointer[error]
	closed   atomic.Bool

	metrics *engineMetrics
}

var _ pqa.Engine = (*CpuEngine)(nil)

// newCpuEngine wires the engine around an already-built KB store (fresh
// or loaded from a snapshot).
func newCpuEngine(def pqa.EngineDefinition, kb *kbStore, log *logging.Logger) *CpuEngine {
	e := &CpuEngine{
		id:           uuid.New(),
		log:          log,
		dims:         def.Dims,
		initAmount:   def.InitAmount,
		memPool:      mempool.New(),
		pool:         workers.NewPool(def.Workers),
		maint:        newMaintSwitch(),
		kb:           kb,
		quizzes:      make(map[pqa.ID]*quiz),
		quizGaps:     gaps.New(initialQuizCapacity, true),
		questionGaps: gaps.New(def.Dims.Questions, false),
		targetGaps:   gaps.New(def.Dims.Targets, false),
		metrics:      newEngineMetrics(),
	}
	e.log.Info("engine created",
		"engine_id", e.id.String(),
		"answers", def.Dims.Answers,
		"questions", def.Dims.Questions,
		"targets", def.Dims.Targets,
		"init_amount", def.InitAmount,
		"workers", e.pool.Workers())
	return e
}

// ID returns the engine instance id, stable across save/load.
func (e *CpuEngine) ID() uuid.UUID { return e.id }

// MetricsGatherer exposes the engine's private Prometheus registry.
func (e *CpuEngine) MetricsGatherer() prometheus.Gatherer { return e.metrics.registry }

// Mode returns the current coarse operating state.
func (e *CpuEngine) Mode() pqa.EngineMode { return e.maint.current() }

// latched rejects every operation after a fatal invariant violation or
// after Close.
func (e *CpuEngine) latched() error {
	if p := e.fatalErr.Load(); p != nil {
		return *p
	}
	if e.closed.Load() {
		return fmt.Errorf("engine is closed: %w", pqa.ErrInvalidArgument)
	}
	return nil
}

// fail latches err as the engine's terminal state and returns it.
func (e *CpuEngine) fail(err error) error {
	wrapped := fmt.Errorf("engine %s is now unusable: %w", e.id, err)
	e.fatalErr.CompareAndSwap(nil, &wrapped)
	e.log.Error("fatal engine error", "engine_id", e.id.String(), "error", err)
	return *e.fatalErr.Load()
}

// observe records operation latency.
func (e *CpuEngine) observe(op string, start time.Time) {
	e.metrics.opSeconds.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// lookupQuiz resolves id and locks the quiz. The caller must unlock.
func (e *CpuEngine) lookupQuiz(id pqa.ID) (*quiz, error) {
	e.muReg.Lock()
	z, ok := e.quizzes[id]
	e.muReg.Unlock()
	if !ok {
		return nil, fmt.Errorf("quiz %d: %w", id, pqa.ErrInvalidID)
	}
	z.mu.lock()
	if z.released {
		z.mu.unlock()
		return nil, fmt.Errorf("quiz %d was released: %w", id, pqa.ErrInvalidID)
	}
	return z, nil
}

// =============================================================================
// Quiz lifecycle
// =============================================================================

// StartQuiz implements pqa.Engine.
func (e *CpuEngine) StartQuiz() (pqa.ID, error) {
	defer e.observe("start_quiz", time.Now())
	if err := e.latched(); err != nil {
		return pqa.InvalidID, err
	}
	leave, err := e.maint.enter(pqa.ModeRegular)
	if err != nil {
		return pqa.InvalidID, err
	}
	defer leave()

	z, err := e.registerQuiz()
	if err != nil {
		return pqa.InvalidID, err
	}

	e.rws.RLock()
	kerr := e.initPriors(z)
	e.rws.RUnlock()
	if kerr != nil {
		e.dropQuiz(z)
		return pqa.InvalidID, kerr
	}
	z.mu.unlock()

	e.metrics.quizzesTotal.WithLabelValues("start").Inc()
	return z.id, nil
}

// ResumeQuiz implements pqa.Engine.
func (e *CpuEngine) ResumeQuiz(answered []pqa.AnsweredQuestion) (pqa.ID, error) {
	defer e.observe("resume_quiz", time.Now())
	if err := e.latched(); err != nil {
		return pqa.InvalidID, err
	}
	leave, err := e.maint.enter(pqa.ModeRegular)
	if err != nil {
		return pqa.InvalidID, err
	}
	defer leave()

	e.rws.RLock()
	defer e.rws.RUnlock()

	for _, aq := range answered {
		if aq.Question < 0 || aq.Question >= e.kb.qCap() || e.questionGaps.IsGap(aq.Question) {
			return pqa.InvalidID, fmt.Errorf("question %d: %w", aq.Question, pqa.ErrInvalidID)
		}
		if aq.Answer < 0 || aq.Answer >= e.dims.Answers {
			return pqa.InvalidID, fmt.Errorf("answer %d: %w", aq.Answer, pqa.ErrInvalidID)
		}
	}

	z, err := e.registerQuiz()
	if err != nil {
		return pqa.InvalidID, err
	}
	if kerr := e.resumePriors(z, answered); kerr != nil {
		e.dropQuiz(z)
		return pqa.InvalidID, kerr
	}
	for _, aq := range answered {
		z.markAsked(aq.Question)
		z.history = append(z.history, aq)
	}
	z.mu.unlock()

	e.metrics.quizzesTotal.WithLabelValues("resume").Inc()
	return z.id, nil
}

// registerQuiz acquires a quiz id (growing the registry space up to the
// limit) and returns the new quiz locked.
func (e *CpuEngine) registerQuiz() (*quiz, error) {
	e.muReg.Lock()
	defer e.muReg.Unlock()

	if e.quizGaps.Gaps() == 0 {
		have := e.quizGaps.Capacity()
		if have >= quizCapacityLimit {
			return nil, fmt.Errorf("quiz registry at limit %d: %w",
				quizCapacityLimit, pqa.ErrCapacityExhausted)
		}
		e.quizGaps.Grow(have, true) // double
	}
	id, err := e.quizGaps.Acquire()
	if err != nil {
		return nil, err
	}

	z := newQuiz(id, e.kb.tCap(), e.kb.qCap(), e.memPool)
	z.mu.lock()
	e.quizzes[id] = z
	e.metrics.activeQuizzes.Inc()
	return z, nil
}

// dropQuiz unregisters a locked quiz after a failed creation.
func (e *CpuEngine) dropQuiz(z *quiz) {
	e.muReg.Lock()
	delete(e.quizzes, z.id)
	_ = e.quizGaps.Release(z.id)
	e.muReg.Unlock()
	z.free(e.memPool)
	z.mu.unlock()
	e.metrics.activeQuizzes.Dec()
}

// NextQuestion implements pqa.Engine.
func (e *CpuEngine) NextQuestion(quizID pqa.ID) (pqa.ID, error) {
	defer e.observe("next_question", time.Now())
	if err := e.latched(); err != nil {
		return pqa.InvalidID, err
	}
	leave, err := e.maint.enter(pqa.ModeRegular)
	if err != nil {
		return pqa.InvalidID, err
	}
	defer leave()

	z, err := e.lookupQuiz(quizID)
	if err != nil {
		return pqa.InvalidID, err
	}
	defer z.mu.unlock()

	e.rws.RLock()
	q, kerr := e.selectQuestion(z)
	e.rws.RUnlock()
	if kerr != nil {
		return pqa.InvalidID, kerr
	}

	z.active = q
	e.nQuestionsAsked.Add(1)
	e.metrics.questionsAsked.Inc()
	return q, nil
}

// RecordAnswer implements pqa.Engine.
func (e *CpuEngine) RecordAnswer(quizID, answer pqa.ID) error {
	defer e.observe("record_answer", time.Now())
	if err := e.latched(); err != nil {
		return err
	}
	leave, err := e.maint.enter(pqa.ModeRegular)
	if err != nil {
		return err
	}
	defer leave()

	if answer < 0 || answer >= e.dims.Answers {
		return fmt.Errorf("answer %d of %d: %w", answer, e.dims.Answers, pqa.ErrInvalidID)
	}

	z, err := e.lookupQuiz(quizID)
	if err != nil {
		return err
	}
	defer z.mu.unlock()

	if z.active == pqa.InvalidID {
		return fmt.Errorf("quiz %d: %w", quizID, pqa.ErrNoPendingQuestion)
	}

	q := z.active
	e.rws.RLock()
	kerr := e.applyAnswer(z, q, answer)
	e.rws.RUnlock()
	if kerr != nil {
		return kerr
	}

	z.markAsked(q)
	z.history = append(z.history, pqa.AnsweredQuestion{Question: q, Answer: answer})
	z.active = pqa.InvalidID
	return nil
}

// ListTopTargets implements pqa.Engine.
func (e *CpuEngine) ListTopTargets(quizID pqa.ID, dest []pqa.RatedTarget) (pqa.ID, error) {
	defer e.observe("list_top_targets", time.Now())
	if err := e.latched(); err != nil {
		return 0, err
	}
	leave, err := e.maint.enter(pqa.ModeRegular)
	if err != nil {
		return 0, err
	}
	defer leave()

	if len(dest) == 0 {
		return 0, fmt.Errorf("empty destination buffer: %w", pqa.ErrInvalidArgument)
	}

	z, err := e.lookupQuiz(quizID)
	if err != nil {
		return 0, err
	}
	defer z.mu.unlock()

	e.rws.RLock()
	n, kerr := e.topTargets(z, dest)
	e.rws.RUnlock()
	if kerr != nil {
		return 0, kerr
	}
	return n, nil
}

// RecordQuizTarget implements pqa.Engine.
func (e *CpuEngine) RecordQuizTarget(quizID, target pqa.ID, amount float64) error {
	defer e.observe("record_quiz_target", time.Now())
	if err := e.latched(); err != nil {
		return err
	}
	leave, err := e.maint.enter(pqa.ModeRegular)
	if err != nil {
		return err
	}
	defer leave()

	if !(amount > 0) || math.IsInf(amount, 0) {
		return fmt.Errorf("training amount %v: %w", amount, pqa.ErrInvalidArgument)
	}

	z, err := e.lookupQuiz(quizID)
	if err != nil {
		return err
	}
	defer z.mu.unlock()

	e.rws.RLock()
	defer e.rws.RUnlock()

	if target < 0 || target >= e.kb.tCap() || e.targetGaps.IsGap(target) {
		return fmt.Errorf("target %d: %w", target, pqa.ErrInvalidID)
	}

	e.train(z, target, amount)
	e.metrics.trainingUpdates.Inc()
	return nil
}

// ReleaseQuiz implements pqa.Engine.
func (e *CpuEngine) ReleaseQuiz(quizID pqa.ID) error {
	defer e.observe("release_quiz", time.Now())
	if err := e.latched(); err != nil {
		return err
	}

	e.muReg.Lock()
	z, ok := e.quizzes[quizID]
	if ok {
		delete(e.quizzes, quizID)
		_ = e.quizGaps.Release(quizID)
	}
	e.muReg.Unlock()
	if !ok {
		return fmt.Errorf("quiz %d: %w", quizID, pqa.ErrInvalidID)
	}

	// Wait out any in-flight operation on this quiz, then free the
	// planes.
	z.mu.lock()
	z.free(e.memPool)
	z.mu.unlock()

	e.metrics.quizzesReleased.Inc()
	e.metrics.activeQuizzes.Dec()
	return nil
}

// =============================================================================
// Introspection
// =============================================================================

// GetDims implements pqa.Engine.
func (e *CpuEngine) GetDims() pqa.EngineDimensions {
	e.rws.RLock()
	defer e.rws.RUnlock()
	return e.dims
}

// GetTotalQuestionsAsked implements pqa.Engine.
func (e *CpuEngine) GetTotalQuestionsAsked() uint64 {
	return e.nQuestionsAsked.Load()
}

// ActiveQuizCount returns the registry population.
func (e *CpuEngine) ActiveQuizCount() int {
	e.muReg.Lock()
	defer e.muReg.Unlock()
	return len(e.quizzes)
}

// Close implements pqa.Engine. It drains regular operations by forcing
// maintenance mode, releases outstanding quizzes and stops the workers.
func (e *CpuEngine) Close() error {
	if e.closed.Swap(true) {
		return nil
	}
	// Ignore "already in maintenance": either way regular ops have
	// drained once the switch returns.
	_ = e.maint.switchTo(pqa.ModeMaintenance)
	e.rws.Lock()
	defer e.rws.Unlock()

	e.muReg.Lock()
	drained := make([]*quiz, 0, len(e.quizzes))
	for id, z := range e.quizzes {
		drained = append(drained, z)
		delete(e.quizzes, id)
		_ = e.quizGaps.Release(id)
	}
	e.muReg.Unlock()
	// Quiz locks are taken after the registry mutex is dropped, per the
	// lock order.
	for _, z := range drained {
		z.mu.lock()
		z.free(e.memPool)
		z.mu.unlock()
	}
	e.metrics.activeQuizzes.Set(0)

	e.pool.Close()
	e.log.Info("engine closed", "engine_id", e.id.String())
	return nil
}
