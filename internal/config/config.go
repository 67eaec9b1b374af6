// Copyright 2026 The visiongate Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config provides configuration management for the visiongate
// server. It loads YAML configuration, applies documented defaults, and
// keeps every tuning threshold a named field so none of them live as magic
// numbers inside the engine.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"

	"github.com/visiongate/visiongate/internal/health"
	"github.com/visiongate/visiongate/internal/suggest"
)

// Config is the application configuration, loaded from a YAML file.
type Config struct {
	// Host is the interface the API server binds. Empty binds all.
	Host string `yaml:"host" json:"-"`

	// Port is the API server port.
	Port int `yaml:"port" json:"-"`

	// Debug enables debug-level logging.
	Debug bool `yaml:"debug" json:"debug"`

	// LoggingToFile routes logs to rotating files instead of stdout.
	LoggingToFile bool `yaml:"logging-to-file" json:"logging-to-file"`

	// LogDir is where rotating log files are written.
	LogDir string `yaml:"log-dir" json:"log-dir"`

	// Queue sizes the task queue and worker pool.
	Queue QueueConfig `yaml:"queue" json:"queue"`

	// Dispatch controls failover attempts and per-attempt timeouts.
	Dispatch DispatchConfig `yaml:"dispatch" json:"dispatch"`

	// Health holds the provider health thresholds.
	Health health.Config `yaml:"health" json:"health"`

	// Suggestions configures the suggestion engine.
	Suggestions SuggestionsConfig `yaml:"suggestions" json:"suggestions"`

	// Providers lists the external inference vendors.
	Providers []ProviderConfig `yaml:"providers" json:"providers"`

	// Payload configures the object-store payload resolver. Optional; when
	// empty, tasks must carry inline data.
	Payload PayloadConfig `yaml:"payload" json:"payload"`
}

// QueueConfig sizes the bounded queue and worker pool.
type QueueConfig struct {
	Capacity         int `yaml:"capacity" json:"capacity"`
	Workers          int `yaml:"workers" json:"workers"`
	DrainTimeoutSecs int `yaml:"drain-timeout-seconds" json:"drain-timeout-seconds"`
}

// DispatchConfig controls failover behavior.
type DispatchConfig struct {
	MaxAttempts        int `yaml:"max-attempts" json:"max-attempts"`
	AttemptTimeoutSecs int `yaml:"attempt-timeout-seconds" json:"attempt-timeout-seconds"`
}

// SuggestionsConfig configures rule evaluation and decision persistence.
type SuggestionsConfig struct {
	// Thresholds are the built-in rule trigger points.
	Thresholds suggest.Thresholds `yaml:"thresholds" json:"thresholds"`

	// Rules are additional operator-defined rules with expr conditions.
	Rules []suggest.Rule `yaml:"rules" json:"rules"`

	// StorePath is the SQLite file persisting operator decisions. Empty
	// keeps decisions in memory only.
	StorePath string `yaml:"store-path" json:"store-path"`

	// EvalIntervalSecs is how often rules are re-evaluated in the
	// background, in addition to evaluation on read.
	EvalIntervalSecs int `yaml:"eval-interval-seconds" json:"eval-interval-seconds"`
}

// ProviderConfig describes one external inference vendor.
type ProviderConfig struct {
	// Name is the unique provider identifier (e.g. "gemini", "openai").
	Name string `yaml:"name" json:"name"`

	// Kind selects the adapter implementation.
	Kind string `yaml:"kind" json:"kind"`

	// Endpoint is the vendor base URL, when the adapter needs one.
	Endpoint string `yaml:"endpoint" json:"endpoint"`

	// APIKey authenticates against the vendor. Environment references
	// ($VAR) are expanded at load time.
	APIKey string `yaml:"api-key" json:"-"`

	// Lenient providers fall back to the documented default result when
	// their output fails validation instead of failing the task.
	Lenient bool `yaml:"lenient" json:"lenient"`
}

// PayloadConfig configures S3-compatible payload storage.
type PayloadConfig struct {
	Endpoint  string `yaml:"endpoint" json:"endpoint"`
	AccessKey string `yaml:"access-key" json:"-"`
	SecretKey string `yaml:"secret-key" json:"-"`
	Bucket    string `yaml:"bucket" json:"bucket"`
	UseSSL    bool   `yaml:"use-ssl" json:"use-ssl"`
}

// Default returns the configuration defaults applied before the YAML file
// is overlaid.
func Default() *Config {
	return &Config{
		Port:   8317,
		LogDir: "logs",
		Queue: QueueConfig{
			Capacity:         128,
			Workers:          4,
			DrainTimeoutSecs: 30,
		},
		Dispatch: DispatchConfig{
			MaxAttempts:        3,
			AttemptTimeoutSecs: 30,
		},
		Health: health.DefaultConfig(),
		Suggestions: SuggestionsConfig{
			Thresholds:       suggest.DefaultThresholds(),
			EvalIntervalSecs: 60,
		},
	}
}

// Load reads the configuration file at path. A missing file yields the
// defaults. A .env file in the working directory, if present, is loaded
// first so $VAR references in keys resolve.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	for i := range cfg.Providers {
		cfg.Providers[i].APIKey = os.ExpandEnv(cfg.Providers[i].APIKey)
	}
	cfg.Payload.AccessKey = os.ExpandEnv(cfg.Payload.AccessKey)
	cfg.Payload.SecretKey = os.ExpandEnv(cfg.Payload.SecretKey)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.Queue.Capacity <= 0 {
		return fmt.Errorf("queue capacity must be positive, got %d", c.Queue.Capacity)
	}
	if c.Queue.Workers <= 0 {
		return fmt.Errorf("queue workers must be positive, got %d", c.Queue.Workers)
	}
	if c.Dispatch.MaxAttempts <= 0 {
		return fmt.Errorf("dispatch max-attempts must be positive, got %d", c.Dispatch.MaxAttempts)
	}
	if c.Health.DegradedThreshold <= 0 || c.Health.DegradedThreshold > 1 {
		return fmt.Errorf("health degraded-threshold must be in (0,1], got %v", c.Health.DegradedThreshold)
	}
	seen := make(map[string]bool, len(c.Providers))
	for _, p := range c.Providers {
		if p.Name == "" {
			return fmt.Errorf("provider with empty name")
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate provider name %q", p.Name)
		}
		seen[p.Name] = true
	}
	return nil
}

// DrainTimeout returns the queue drain timeout as a duration.
func (c *Config) DrainTimeout() time.Duration {
	return time.Duration(c.Queue.DrainTimeoutSecs) * time.Second
}

// AttemptTimeout returns the per-attempt dispatch timeout as a duration.
func (c *Config) AttemptTimeout() time.Duration {
	return time.Duration(c.Dispatch.AttemptTimeoutSecs) * time.Second
}

// EvalInterval returns the background suggestion evaluation interval.
func (c *Config) EvalInterval() time.Duration {
	return time.Duration(c.Suggestions.EvalIntervalSecs) * time.Second
}
