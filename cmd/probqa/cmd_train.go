// Copyright (C) 2026 ProbQA Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"io"
	"math/rand"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/AlexSenchenko/ProbQA/cmd/probqa/config"
	"github.com/AlexSenchenko/ProbQA/pkg/engine"
	"github.com/AlexSenchenko/ProbQA/pkg/pqa"
)

// progressEvery is the quiz interval between progress-file lines.
const progressEvery = 256

var (
	trainQuizzes  int64
	trainParallel int
	trainSavePath string
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Run the synthetic training harness",
	Long: `Runs training quizzes against a synthetic answer oracle: for a secret
target g and question q the oracle answers by which side of q the target
lies on and how far (five answers, window configurable).

Per quiz, stdout receives a result token [G=<target>,A=<answers>,P=<certainty%>]
when the quiz converged on the secret target, or "-" when it did not within
the configured maximum length. Every 256 quizzes a tab-separated stats line
is appended to the progress file:

  quizIndex  totalQuestionsAsked  precision  avgQuizLen  avgCertainty  questionsPerSecond`,
	RunE: runTrainCommand,
}

func init() {
	trainCmd.Flags().Int64VarP(&trainQuizzes, "quizzes", "n", 0,
		"Number of training quizzes (0 uses the config value)")
	trainCmd.Flags().IntVarP(&trainParallel, "parallel", "p", 0,
		"Concurrent quiz drivers (0 uses the config value)")
	trainCmd.Flags().StringVar(&trainSavePath, "save", "",
		"Save the KB snapshot to this path after training")
}

func runTrainCommand(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if trainQuizzes > 0 {
		cfg.Train.Quizzes = trainQuizzes
	}
	if trainParallel > 0 {
		cfg.Train.Parallel = trainParallel
	}

	log := newLogger(cfg, "train")
	defer log.Close()

	eng, err := engine.CreateCpuEngine(cfg.Engine.Definition(), engine.WithLogger(log))
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}
	defer eng.Close()

	progress, err := os.Create(cfg.Train.ProgressFile)
	if err != nil {
		return fmt.Errorf("creating progress file: %w", err)
	}
	defer progress.Close()

	h := newHarness(eng, cfg.Train, cfg.Engine.Targets, cmd.OutOrStdout(), progress)
	if err := h.run(); err != nil {
		return err
	}

	if trainSavePath != "" {
		if err := eng.SwitchMode(pqa.ModeMaintenance); err != nil {
			return err
		}
		if err := eng.SaveKB(trainSavePath, nil); err != nil {
			return err
		}
		log.Info("trained KB saved", "path", trainSavePath)
	}
	return nil
}

// harness drives training quizzes against the synthetic oracle and
// keeps the windowed statistics of the progress file.
type harness struct {
	eng      *engine.CpuEngine
	cfg      config.TrainConfig
	nTargets pqa.ID
	stdout   io.Writer
	progress io.Writer

	next atomic.Int64 // next quiz index to claim

	mu           sync.Mutex
	completed    int64
	nCorrect     int64
	sumQuizLens  int64
	totCertainty float64
	prevAsked    uint64
	windowStart  time.Time
}

func newHarness(eng *engine.CpuEngine, cfg config.TrainConfig, nTargets pqa.ID,
	stdout, progress io.Writer) *harness {
	return &harness{
		eng:      eng,
		cfg:      cfg,
		nTargets: nTargets,
		stdout:   stdout,
		progress: progress,
	}
}

// policyAnswer is the synthetic oracle: answers encode which side of
// question q the secret target g lies on, within window w.
func policyAnswer(g, q, w pqa.ID) pqa.ID {
	switch {
	case g < q-w:
		return 0
	case g < q:
		return 1
	case g == q:
		return 2
	case g <= q+w:
		return 3
	default:
		return 4
	}
}

// run executes the configured number of quizzes over Parallel drivers.
func (h *harness) run() error {
	h.mu.Lock()
	h.windowStart = time.Now()
	h.prevAsked = h.eng.GetTotalQuestionsAsked()
	h.mu.Unlock()

	var g errgroup.Group
	for d := 0; d < h.cfg.Parallel; d++ {
		seed := h.cfg.Seed + int64(d)
		g.Go(func() error {
			rng := rand.New(rand.NewSource(seed))
			for {
				if i := h.next.Add(1) - 1; i >= h.cfg.Quizzes {
					return nil
				}
				if err := h.runQuiz(rng); err != nil {
					return err
				}
			}
		})
	}
	return g.Wait()
}

// runQuiz drives one quiz to convergence or the length cap, trains the
// engine with the secret target, and folds the outcome into the
// windowed stats.
func (h *harness) runQuiz(rng *rand.Rand) error {
	g := pqa.ID(rng.Int63n(int64(h.nTargets)))

	id, err := h.eng.StartQuiz()
	if err != nil {
		return fmt.Errorf("starting quiz: %w", err)
	}

	top := make([]pqa.RatedTarget, h.cfg.TopRated)
	asked := int64(0)
	converged := false
	var certainty float64
	for asked < h.cfg.MaxQuizLen {
		q, err := h.eng.NextQuestion(id)
		if err != nil {
			break
		}
		asked++
		if err := h.eng.RecordAnswer(id, policyAnswer(g, q, h.cfg.Window)); err != nil {
			return fmt.Errorf("recording answer: %w", err)
		}
		n, err := h.eng.ListTopTargets(id, top)
		if err != nil {
			return fmt.Errorf("listing top targets: %w", err)
		}
		for k := pqa.ID(0); k < n; k++ {
			if top[k].Target == g {
				converged = true
				certainty = top[k].Probability * 100
				break
			}
		}
		if converged {
			break
		}
	}

	if err := h.eng.RecordQuizTarget(id, g, 1.0); err != nil {
		return fmt.Errorf("recording quiz target: %w", err)
	}
	if err := h.eng.ReleaseQuiz(id); err != nil {
		return fmt.Errorf("releasing quiz: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if converged {
		h.nCorrect++
		h.sumQuizLens += asked
		h.totCertainty += certainty
		fmt.Fprintf(h.stdout, "[G=%d,A=%d,P=%.2f%%]", g, asked, certainty)
	} else {
		fmt.Fprint(h.stdout, "-")
	}
	h.completed++
	if h.completed%progressEvery == 0 {
		h.flushWindowLocked()
	}
	return nil
}

// flushWindowLocked writes one progress line and resets the window.
// Caller holds h.mu.
func (h *harness) flushWindowLocked() {
	totAsked := h.eng.GetTotalQuestionsAsked()
	elapsed := time.Since(h.windowStart).Seconds()

	precision := float64(h.nCorrect) * 100 / progressEvery
	var avgLen, avgCertainty float64
	if h.nCorrect > 0 {
		avgLen = float64(h.sumQuizLens) / float64(h.nCorrect)
		avgCertainty = h.totCertainty / float64(h.nCorrect)
	}
	var qps float64
	if elapsed > 0 {
		qps = float64(totAsked-h.prevAsked) / elapsed
	}

	fmt.Fprintf(h.stdout, "\n*%d;%.2f%%*", totAsked, precision)
	fmt.Fprintf(h.progress, "%d\t%d\t%f\t%f\t%f\t%f\n",
		h.completed, totAsked, precision, avgLen, avgCertainty, qps)

	h.nCorrect = 0
	h.sumQuizLens = 0
	h.totCertainty = 0
	h.prevAsked = totAsked
	h.windowStart = time.Now()
}
