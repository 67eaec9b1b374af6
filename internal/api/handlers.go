// Copyright 2026 The visiongate Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/visiongate/visiongate/internal/orchestrator"
	"github.com/visiongate/visiongate/internal/provider"
)

// AnalyzeRequest is the submission body for POST /v1/analyze.
type AnalyzeRequest struct {
	MediaType string            `json:"media_type" binding:"required"`
	Reference string            `json:"reference,omitempty"`
	Data      []byte            `json:"data,omitempty"`
	Params    map[string]string `json:"params,omitempty"`

	// DeadlineSeconds bounds total processing time for this task. Zero
	// means no deadline beyond the per-attempt timeout.
	DeadlineSeconds int `json:"deadline_seconds,omitempty"`
}

// SuggestionActionRequest is the body for POST /v1/suggestions/action.
type SuggestionActionRequest struct {
	Action       string `json:"action"`
	SuggestionID string `json:"suggestionId"`
}

// HandleAnalyze handles POST /v1/analyze.
//
// Response:
//   - 202: Task accepted, body carries the task ID
//   - 400: Invalid request body or unsupported media type
//   - 429: Queue full, retry later
//   - 503: Engine is shutting down
func (s *Server) HandleAnalyze(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid request body: " + err.Error(),
		})
		return
	}

	var deadline time.Time
	if req.DeadlineSeconds > 0 {
		deadline = time.Now().Add(time.Duration(req.DeadlineSeconds) * time.Second)
	}

	sub, err := s.engine.Submit(&provider.Request{
		MediaType: req.MediaType,
		Reference: req.Reference,
		Data:      req.Data,
		Params:    req.Params,
	}, deadline)
	switch {
	case errors.Is(err, orchestrator.ErrQueueFull):
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error": "queue full, retry later",
		})
		return
	case errors.Is(err, orchestrator.ErrNotAccepting):
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "engine is shutting down",
		})
		return
	case err != nil:
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, sub)
}

// HandleStatus handles GET /v1/status.
func (s *Server) HandleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Status())
}

// HandleSuggestions handles GET /v1/suggestions. Reading the list triggers a
// fresh rule evaluation, so the response always reflects current conditions.
func (s *Server) HandleSuggestions(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Suggestions())
}

// HandleSuggestionAction handles POST /v1/suggestions/action.
//
// Response:
//   - 200: Action applied, body carries the updated suggestion
//   - 400: Missing action or suggestionId, or unknown action
func (s *Server) HandleSuggestionAction(c *gin.Context) {
	var req SuggestionActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid request body: " + err.Error(),
		})
		return
	}

	if req.Action == "" || req.SuggestionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "action and suggestionId are required",
		})
		return
	}

	s2, err := s.engine.ApplySuggestion(req.SuggestionID, req.Action)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"suggestion": s2,
	})
}
