// Copyright (C) 2026 ProbQA Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "probqa"
	engineSubsystem  = "engine"
)

// engineMetrics holds the Prometheus instruments of one engine instance.
//
// Each engine owns a private registry so that tests and multi-engine
// processes never collide on metric registration; pkg/server exposes the
// registry at /metrics.
type engineMetrics struct {
	registry *prometheus.Registry

	// QuizzesTotal counts quiz creations by origin (start, resume).
	quizzesTotal *prometheus.CounterVec

	// QuizzesReleased counts destroyed quizzes.
	quizzesReleased prometheus.Counter

	// QuestionsAsked mirrors the engine's monotone total-questions
	// counter.
	questionsAsked prometheus.Counter

	// TrainingUpdates counts completed RecordQuizTarget applications.
	trainingUpdates prometheus.Counter

	// ActiveQuizzes gauges the registry population.
	activeQuizzes prometheus.Gauge

	// OpSeconds observes kernel-bearing operation latency by op name.
	opSeconds *prometheus.HistogramVec
}

func newEngineMetrics() *engineMetrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &engineMetrics{
		registry: reg,
		quizzesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: engineSubsystem,
			Name:      "quizzes_total",
			Help:      "Quizzes created, by origin.",
		}, []string{"origin"}),
		quizzesReleased: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: engineSubsystem,
			Name:      "quizzes_released_total",
			Help:      "Quizzes destroyed.",
		}),
		questionsAsked: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: engineSubsystem,
			Name:      "questions_asked_total",
			Help:      "Questions handed out by NextQuestion.",
		}),
		trainingUpdates: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: engineSubsystem,
			Name:      "training_updates_total",
			Help:      "Completed training applications of resolved quizzes.",
		}),
		activeQuizzes: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: engineSubsystem,
			Name:      "active_quizzes",
			Help:      "Quizzes currently held in the registry.",
		}),
		opSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: engineSubsystem,
			Name:      "op_duration_seconds",
			Help:      "Latency of kernel-bearing engine operations.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 12),
		}, []string{"op"}),
	}
}
