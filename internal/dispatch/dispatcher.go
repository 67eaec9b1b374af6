// Package dispatch routes analysis tasks across providers with
// health-ordered failover. Retryable failures are contained here; callers
// only see the terminal outcome.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/visiongate/visiongate/internal/health"
	"github.com/visiongate/visiongate/internal/metrics"
	"github.com/visiongate/visiongate/internal/provider"
	"github.com/visiongate/visiongate/internal/queue"
)

// Config holds the dispatch tunables.
type Config struct {
	// MaxAttempts caps how many providers a single task may try.
	MaxAttempts int `yaml:"max-attempts" json:"max-attempts"`

	// AttemptTimeout bounds each individual provider call.
	AttemptTimeout time.Duration `yaml:"attempt-timeout" json:"attempt-timeout"`
}

// DefaultConfig returns the default dispatch settings.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    3,
		AttemptTimeout: 30 * time.Second,
	}
}

// ExhaustedError reports that every candidate provider failed. It names the
// last cause and how many providers were tried, which is all the façade may
// expose; raw provider errors stay internal.
type ExhaustedError struct {
	ProvidersTried int
	LastProvider   string
	LastKind       provider.FailureKind
	LastErr        error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all providers exhausted after %d attempts (last: %s, %s): %v",
		e.ProvidersTried, e.LastProvider, e.LastKind, e.LastErr)
}

func (e *ExhaustedError) Unwrap() error { return e.LastErr }

// Dispatcher selects providers per task using health ordering and records
// every outcome into the health monitor and metrics aggregator.
type Dispatcher struct {
	cfg     Config
	health  *health.Monitor
	metrics *metrics.Aggregator

	mu        sync.RWMutex
	providers map[string]provider.Provider
	lenient   map[string]bool
}

// New creates a dispatcher over the given health monitor and aggregator.
func New(cfg Config, hm *health.Monitor, agg *metrics.Aggregator) *Dispatcher {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = DefaultConfig().AttemptTimeout
	}
	return &Dispatcher{
		cfg:       cfg,
		health:    hm,
		metrics:   agg,
		providers: make(map[string]provider.Provider),
		lenient:   make(map[string]bool),
	}
}

// Register adds a provider to the candidate set. Lenient providers fall back
// to the documented default result when their output fails validation
// instead of surfacing a terminal error.
func (d *Dispatcher) Register(p provider.Provider, lenient bool) error {
	if p == nil || p.Name() == "" {
		return fmt.Errorf("provider must be non-nil with a non-empty name")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.providers[p.Name()] = p
	d.lenient[p.Name()] = lenient
	d.health.Register(p.Name())
	return nil
}

// Providers returns the registered provider names.
func (d *Dispatcher) Providers() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.providers))
	for name := range d.providers {
		names = append(names, name)
	}
	return names
}

// Dispatch runs one task to a terminal outcome. Candidates come from the
// health monitor healthiest-first; each gets one bounded attempt. Rate
// limiting and transient failures advance to the next candidate; a terminal
// failure aborts immediately. Latency is recorded per individual call, not
// cumulatively across retries.
func (d *Dispatcher) Dispatch(ctx context.Context, task *queue.Task) (*provider.Result, error) {
	candidates := d.health.OrderedProviders()
	if len(candidates) == 0 {
		return nil, &ExhaustedError{LastErr: fmt.Errorf("no providers registered")}
	}

	deadline, _ := ctx.Deadline()

	var lastErr error
	var lastKind provider.FailureKind
	var lastProvider string
	tried := 0

	for _, name := range candidates {
		if tried >= d.cfg.MaxAttempts {
			break
		}
		if err := ctx.Err(); err != nil {
			break
		}

		d.mu.RLock()
		p, ok := d.providers[name]
		lenient := d.lenient[name]
		d.mu.RUnlock()
		if !ok {
			continue
		}

		tried++
		task.Attempt = tried
		d.health.MarkUsed(name)

		timeout := provider.CallTimeout(d.cfg.AttemptTimeout, deadline, time.Now())
		if timeout <= 0 {
			break
		}

		result, err := d.invoke(ctx, p, task, timeout)
		if err == nil {
			return result, nil
		}

		kind := provider.Classify(err)
		lastErr, lastKind, lastProvider = err, kind, name

		if kind == provider.KindTerminal {
			if lenient {
				// Documented fallback for lenient providers: a well-defined
				// default object, never inferred from the bad payload.
				log.WithField("provider", name).Warnf("Terminal failure on lenient provider, returning fallback: %v", err)
				return provider.FallbackResult(name), nil
			}
			log.WithFields(log.Fields{
				"task":     task.ID,
				"provider": name,
			}).Warnf("Terminal failure, aborting dispatch: %v", err)
			return nil, err
		}

		log.WithFields(log.Fields{
			"task":     task.ID,
			"provider": name,
			"attempt":  tried,
		}).Debugf("Retryable failure (%s), trying next candidate: %v", kind, err)
	}

	if lastErr == nil {
		lastErr = ctx.Err()
		if lastErr == nil {
			lastErr = fmt.Errorf("no usable providers")
		}
		lastKind = provider.KindTransient
	}

	return nil, &ExhaustedError{
		ProvidersTried: tried,
		LastProvider:   lastProvider,
		LastKind:       lastKind,
		LastErr:        lastErr,
	}
}

// invoke performs one bounded provider call and records its outcome into
// health and metrics regardless of classification.
func (d *Dispatcher) invoke(ctx context.Context, p provider.Provider, task *queue.Task, timeout time.Duration) (*provider.Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	result, err := p.Analyze(callCtx, task.Request)
	elapsed := time.Since(start)

	name := p.Name()
	if err == nil {
		d.health.Record(name, true, false)
		d.metrics.Record(name, metrics.OutcomeSuccess, elapsed)
		return result, nil
	}

	kind := provider.Classify(err)
	switch kind {
	case provider.KindRateLimited:
		d.health.Record(name, false, true)
		d.metrics.Record(name, metrics.OutcomeRateLimited, elapsed)
	default:
		d.health.Record(name, false, false)
		d.metrics.Record(name, metrics.OutcomeFailure, elapsed)
	}
	return nil, err
}
