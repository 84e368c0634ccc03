// Copyright (C) 2026 ProbQA Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/AlexSenchenko/ProbQA/pkg/pqa"
)

// createQuizRequest starts a fresh quiz when History is empty, resumes
// one otherwise.
type createQuizRequest struct {
	History []pqa.AnsweredQuestion `json:"history"`
}

type recordAnswerRequest struct {
	Answer pqa.ID `json:"answer"`
}

type recordTargetRequest struct {
	Target pqa.ID  `json:"target"`
	Amount float64 `json:"amount"`
}

type switchModeRequest struct {
	Mode string `json:"mode"`
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleDims(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.GetDims())
}

func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"totalQuestionsAsked": s.engine.GetTotalQuestionsAsked(),
	})
}

func (s *Server) handleSwitchMode(c *gin.Context) {
	var req switchModeRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "invalid_argument", "error": "invalid request body"})
		return
	}
	var target pqa.EngineMode
	switch req.Mode {
	case "regular":
		target = pqa.ModeRegular
	case "maintenance":
		target = pqa.ModeMaintenance
	default:
		c.JSON(http.StatusBadRequest, gin.H{"code": "invalid_argument",
			"error": fmt.Sprintf("unknown mode %q", req.Mode)})
		return
	}
	if err := s.engine.SwitchMode(target); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"mode": req.Mode})
}

func (s *Server) handleCreateQuiz(c *gin.Context) {
	var req createQuizRequest
	if c.Request.ContentLength > 0 {
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": "invalid_argument", "error": "invalid request body"})
			return
		}
	}

	var (
		id  pqa.ID
		err error
	)
	if len(req.History) == 0 {
		id, err = s.engine.StartQuiz()
	} else {
		id, err = s.engine.ResumeQuiz(req.History)
	}
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"quiz": id})
}

func (s *Server) quizID(c *gin.Context) (pqa.ID, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "invalid_argument",
			"error": fmt.Sprintf("quiz id %q", c.Param("id"))})
		return 0, false
	}
	return id, true
}

func (s *Server) handleNextQuestion(c *gin.Context) {
	id, ok := s.quizID(c)
	if !ok {
		return
	}
	q, err := s.engine.NextQuestion(id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"question": q})
}

func (s *Server) handleRecordAnswer(c *gin.Context) {
	id, ok := s.quizID(c)
	if !ok {
		return
	}
	var req recordAnswerRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "invalid_argument", "error": "invalid request body"})
		return
	}
	if err := s.engine.RecordAnswer(id, req.Answer); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleTopTargets(c *gin.Context) {
	id, ok := s.quizID(c)
	if !ok {
		return
	}
	k := int64(10)
	if raw := c.Query("k"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"code": "invalid_argument",
				"error": fmt.Sprintf("k %q", raw)})
			return
		}
		k = parsed
	}
	dest := make([]pqa.RatedTarget, k)
	n, err := s.engine.ListTopTargets(id, dest)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"targets": dest[:n]})
}

func (s *Server) handleRecordTarget(c *gin.Context) {
	id, ok := s.quizID(c)
	if !ok {
		return
	}
	var req recordTargetRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "invalid_argument", "error": "invalid request body"})
		return
	}
	if req.Amount == 0 {
		req.Amount = 1
	}
	if err := s.engine.RecordQuizTarget(id, req.Target, req.Amount); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleReleaseQuiz(c *gin.Context) {
	id, ok := s.quizID(c)
	if !ok {
		return
	}
	if err := s.engine.ReleaseQuiz(id); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
