// Copyright 2026 The visiongate Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package main provides the entry point for the visiongate server.
// The server accepts image and video analysis tasks over HTTP, dispatches
// them across configured inference providers with health-aware failover, and
// exposes status and operational suggestions.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/visiongate/visiongate/internal/api"
	"github.com/visiongate/visiongate/internal/config"
	"github.com/visiongate/visiongate/internal/logging"
	"github.com/visiongate/visiongate/internal/orchestrator"
	"github.com/visiongate/visiongate/internal/provider"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func init() {
	logging.Setup()
}

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Configure File Path")
	flag.Parse()

	fmt.Printf("visiongate Version: %s, Commit: %s, BuiltAt: %s\n", Version, Commit, BuildDate)

	wd, err := os.Getwd()
	if err != nil {
		log.Errorf("failed to get working directory: %v", err)
		return
	}

	// Load environment variables from .env if present.
	if errLoad := godotenv.Load(filepath.Join(wd, ".env")); errLoad != nil {
		if !errors.Is(errLoad, os.ErrNotExist) {
			log.WithError(errLoad).Warn("failed to load .env file")
		}
	}

	if configPath == "" {
		configPath = filepath.Join(wd, "config.yaml")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Errorf("failed to load config: %v", err)
		return
	}

	if err = logging.ConfigureOutput(cfg.LoggingToFile, cfg.LogDir); err != nil {
		log.Errorf("failed to configure log output: %v", err)
		return
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}

	engine, err := orchestrator.New(cfg)
	if err != nil {
		log.Errorf("failed to build engine: %v", err)
		return
	}

	for _, pc := range cfg.Providers {
		p, errProv := buildProvider(pc)
		if errProv != nil {
			log.Errorf("failed to build provider %q: %v", pc.Name, errProv)
			return
		}
		if errReg := engine.RegisterProvider(p, pc.Lenient); errReg != nil {
			log.Errorf("failed to register provider %q: %v", pc.Name, errReg)
			return
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err = engine.Start(ctx); err != nil {
		log.Errorf("failed to start engine: %v", err)
		return
	}

	// Hot reload: health thresholds and suggestion rules follow the config
	// file without a restart.
	go func() {
		if errWatch := config.Watch(ctx, configPath, engine.Reconfigure); errWatch != nil {
			log.Warnf("config watcher disabled: %v", errWatch)
		}
	}()

	srv := api.NewServer(engine).HTTPServer(cfg.Host, cfg.Port)
	go func() {
		if errServe := srv.ListenAndServe(); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			log.Errorf("server error: %v", errServe)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if errShutdown := srv.Shutdown(shutdownCtx); errShutdown != nil {
		log.Warnf("server shutdown: %v", errShutdown)
	}
	if errStop := engine.Stop(); errStop != nil {
		log.Warnf("engine shutdown: %v", errStop)
	}
}

// buildProvider constructs a provider from its configuration entry. "http"
// is the uniform JSON adapter; unknown kinds are rejected at startup rather
// than at dispatch time.
func buildProvider(pc config.ProviderConfig) (provider.Provider, error) {
	switch pc.Kind {
	case "", "http":
		return provider.NewHTTPProvider(pc.Name, pc.Endpoint, pc.APIKey), nil
	default:
		return nil, fmt.Errorf("unknown provider kind %q", pc.Kind)
	}
}
