// Copyright (C) 2026 ProbQA Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package server exposes a ProbQA engine over HTTP.
//
// Routes are versioned under /v1: quiz lifecycle (create/next-question/
// answers/top-targets/target/delete), mode switching, dimensions and
// stats, plus /healthz and Prometheus /metrics. Engine error kinds map
// onto HTTP status codes; every error payload carries a machine-readable
// "code" and a human-readable "error" field.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/AlexSenchenko/ProbQA/pkg/logging"
	"github.com/AlexSenchenko/ProbQA/pkg/pqa"
)

// Server wires a pqa.Engine into a gin router.
type Server struct {
	engine   pqa.Engine
	log      *logging.Logger
	gatherer prometheus.Gatherer
	router   *gin.Engine
}

// Option tweaks server construction.
type Option func(*Server)

// WithLogger routes request logs to log.
func WithLogger(log *logging.Logger) Option {
	return func(s *Server) { s.log = log }
}

// WithMetrics mounts the gatherer at /metrics.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// New builds a server around engine.
func New(engine pqa.Engine, opts ...Option) *Server {
	s := &Server{
		engine: engine,
		log:    logging.Default(),
	}
	for _, fn := range opts {
		fn(s)
	}
	gin.SetMode(gin.ReleaseMode)
	s.router = gin.New()
	s.router.Use(gin.Recovery())
	s.registerRoutes()
	return s
}

// Router exposes the underlying router for tests and embedding.
func (s *Server) Router() *gin.Engine { return s.router }

func (s *Server) registerRoutes() {
	s.router.GET("/healthz", s.handleHealthz)
	if s.gatherer != nil {
		s.router.GET("/metrics", gin.WrapH(
			promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	v1 := s.router.Group("/v1")
	v1.GET("/dims", s.handleDims)
	v1.GET("/stats", s.handleStats)
	v1.POST("/mode", s.handleSwitchMode)

	v1.POST("/quizzes", s.handleCreateQuiz)
	v1.GET("/quizzes/:id/next-question", s.handleNextQuestion)
	v1.POST("/quizzes/:id/answers", s.handleRecordAnswer)
	v1.GET("/quizzes/:id/top-targets", s.handleTopTargets)
	v1.POST("/quizzes/:id/target", s.handleRecordTarget)
	v1.DELETE("/quizzes/:id", s.handleReleaseQuiz)
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// statusFor maps an engine error kind onto an HTTP status and a stable
// machine-readable code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, pqa.ErrInvalidID):
		return http.StatusNotFound, "invalid_id"
	case errors.Is(err, pqa.ErrInvalidArgument):
		return http.StatusBadRequest, "invalid_argument"
	case errors.Is(err, pqa.ErrWrongMode):
		return http.StatusConflict, "wrong_mode"
	case errors.Is(err, pqa.ErrCapacityExhausted):
		return http.StatusTooManyRequests, "capacity_exhausted"
	case errors.Is(err, pqa.ErrNoEligibleQuestion):
		return http.StatusConflict, "no_eligible_question"
	case errors.Is(err, pqa.ErrNoPendingQuestion):
		return http.StatusConflict, "no_pending_question"
	case errors.Is(err, pqa.ErrQuizBusy):
		return http.StatusConflict, "quiz_busy"
	case errors.Is(err, pqa.ErrFormatMismatch):
		return http.StatusBadRequest, "format_mismatch"
	case errors.Is(err, pqa.ErrNotImplemented):
		return http.StatusNotImplemented, "not_implemented"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// fail writes the error payload for err.
func (s *Server) fail(c *gin.Context, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{"code": code, "error": err.Error()})
}
