// Copyright 2026 The visiongate Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package api exposes the engine over HTTP: task submission, status and
// suggestion projections, and a websocket status stream.
package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/visiongate/visiongate/internal/orchestrator"
)

// Server wires the HTTP surface onto an engine.
type Server struct {
	engine *orchestrator.Engine

	// streamInterval is how often the websocket stream pushes a status
	// frame.
	streamInterval time.Duration
}

// NewServer creates a server for the given engine.
func NewServer(engine *orchestrator.Engine) *Server {
	return &Server{
		engine:         engine,
		streamInterval: 2 * time.Second,
	}
}

// Routes builds the gin router with all endpoints registered.
func (s *Server) Routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	v1 := r.Group("/v1")
	{
		v1.POST("/analyze", s.HandleAnalyze)
		v1.GET("/status", s.HandleStatus)
		v1.GET("/status/stream", s.HandleStatusStream)
		v1.GET("/suggestions", s.HandleSuggestions)
		v1.POST("/suggestions/action", s.HandleSuggestionAction)
	}

	return r
}

// HTTPServer wraps the router in an http.Server bound to host:port.
func (s *Server) HTTPServer(host string, port int) *http.Server {
	addr := fmt.Sprintf("%s:%d", host, port)
	log.Infof("API listening on %s", addr)
	return &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}
