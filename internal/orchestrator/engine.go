// Package orchestrator wires the queue, dispatcher, health monitor, metrics
// aggregator, and suggestion engine into one engine object. The engine is
// constructed once at process start and threaded explicitly through the API
// layer; there is no global accessor.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/visiongate/visiongate/internal/config"
	"github.com/visiongate/visiongate/internal/dispatch"
	"github.com/visiongate/visiongate/internal/health"
	"github.com/visiongate/visiongate/internal/metrics"
	"github.com/visiongate/visiongate/internal/payload"
	"github.com/visiongate/visiongate/internal/provider"
	"github.com/visiongate/visiongate/internal/queue"
	"github.com/visiongate/visiongate/internal/suggest"
)

// ErrQueueFull and ErrNotAccepting are re-exported so the API layer does not
// import queue internals for its status mapping.
var (
	ErrQueueFull    = queue.ErrQueueFull
	ErrNotAccepting = queue.ErrNotAccepting
)

// Submission is the caller's view of an accepted task.
type Submission struct {
	TaskID string `json:"task_id"`
}

// ProviderStatus is the per-provider slice of the status projection.
type ProviderStatus struct {
	Status    health.Status `json:"status"`
	ErrorRate float64       `json:"error_rate"`
}

// Status is the read-only projection served by the status endpoint.
type Status struct {
	Healthy       bool                      `json:"healthy"`
	Providers     map[string]ProviderStatus `json:"providers"`
	Metrics       metrics.Snapshot          `json:"metrics"`
	QueueDepth    int                       `json:"queue_depth"`
	ActiveWorkers int                       `json:"active_workers"`
	UptimeSeconds int64                     `json:"uptime_seconds"`
}

// SuggestionMetrics is the condensed metrics block on the suggestions
// projection, formatted for direct display.
type SuggestionMetrics struct {
	TotalRequests int64  `json:"total_requests"`
	ErrorRate     string `json:"error_rate"`
	AvgLatency    string `json:"avg_latency"`
}

// Suggestions is the projection served by the suggestions endpoint.
type Suggestions struct {
	Suggestions []suggest.Suggestion `json:"suggestions"`
	Metrics     SuggestionMetrics    `json:"metrics"`
}

// Engine owns the orchestration pipeline.
type Engine struct {
	cfg *config.Config

	healthMon  *health.Monitor
	aggregator *metrics.Aggregator
	dispatcher *dispatch.Dispatcher
	pool       *queue.Pool
	suggester  *suggest.Engine
	store      *suggest.Store
	resolver   *payload.Resolver

	startTime time.Time
	cancelBg  context.CancelFunc
}

// New builds an engine from configuration. Providers are registered
// separately via RegisterProvider before Start.
func New(cfg *config.Config) (*Engine, error) {
	healthMon := health.NewMonitor(cfg.Health)
	aggregator := metrics.New()

	dispatcher := dispatch.New(dispatch.Config{
		MaxAttempts:    cfg.Dispatch.MaxAttempts,
		AttemptTimeout: cfg.AttemptTimeout(),
	}, healthMon, aggregator)

	var store *suggest.Store
	if cfg.Suggestions.StorePath != "" {
		var err error
		store, err = suggest.OpenStore(cfg.Suggestions.StorePath)
		if err != nil {
			return nil, err
		}
	}

	rules := append(suggest.BuiltinRules(cfg.Suggestions.Thresholds), cfg.Suggestions.Rules...)
	suggester, err := suggest.NewEngine(rules, store)
	if err != nil {
		if store != nil {
			_ = store.Close()
		}
		return nil, err
	}

	var resolver *payload.Resolver
	if cfg.Payload.Endpoint != "" {
		resolver, err = payload.NewResolver(payload.Config{
			Endpoint:  cfg.Payload.Endpoint,
			AccessKey: cfg.Payload.AccessKey,
			SecretKey: cfg.Payload.SecretKey,
			Bucket:    cfg.Payload.Bucket,
			UseSSL:    cfg.Payload.UseSSL,
		})
		if err != nil {
			return nil, err
		}
	}

	e := &Engine{
		cfg:        cfg,
		healthMon:  healthMon,
		aggregator: aggregator,
		dispatcher: dispatcher,
		suggester:  suggester,
		store:      store,
		resolver:   resolver,
		startTime:  time.Now(),
	}

	e.pool = queue.NewPool(queue.Config{
		Capacity:     cfg.Queue.Capacity,
		Workers:      cfg.Queue.Workers,
		DrainTimeout: cfg.DrainTimeout(),
	}, e.handleTask)

	return e, nil
}

// RegisterProvider adds an inference provider to the dispatch candidate set.
func (e *Engine) RegisterProvider(p provider.Provider, lenient bool) error {
	return e.dispatcher.Register(p, lenient)
}

// Start launches the worker pool and the background suggestion evaluation
// loop.
func (e *Engine) Start(ctx context.Context) error {
	if len(e.dispatcher.Providers()) == 0 {
		return errors.New("no providers registered")
	}
	if err := e.pool.Start(ctx); err != nil {
		return err
	}

	bgCtx, cancel := context.WithCancel(ctx)
	e.cancelBg = cancel
	go e.evaluateLoop(bgCtx)

	log.Infof("Engine started: %d providers, %d workers", len(e.dispatcher.Providers()), e.cfg.Queue.Workers)
	return nil
}

// Stop drains the queue and releases resources. In-flight tasks get up to
// the configured drain timeout.
func (e *Engine) Stop() error {
	if e.cancelBg != nil {
		e.cancelBg()
	}
	err := e.pool.Stop()
	if e.store != nil {
		_ = e.store.Close()
	}
	return err
}

// Submit accepts an analysis request. It returns immediately once the task
// is enqueued; completion is observed through the status surface. A full
// queue surfaces ErrQueueFull, which callers must treat as retryable.
func (e *Engine) Submit(req *provider.Request, deadline time.Time) (*Submission, error) {
	if req == nil || (req.Reference == "" && len(req.Data) == 0) {
		return nil, errors.New("request must carry a payload reference or inline data")
	}
	if req.MediaType != "image" && req.MediaType != "video" {
		return nil, fmt.Errorf("unsupported media type %q", req.MediaType)
	}

	id := uuid.NewString()
	req.TaskID = id

	task := &queue.Task{ID: id, Request: req, Deadline: deadline}
	if err := e.pool.Submit(task); err != nil {
		return nil, err
	}

	log.WithField("task", id).Debug("Task enqueued")
	return &Submission{TaskID: id}, nil
}

// Status assembles the read-only status projection. The system is healthy
// while at least one provider is not down.
func (e *Engine) Status() Status {
	healthSnap := e.healthMon.Snapshot()

	providers := make(map[string]ProviderStatus, len(healthSnap))
	anyUp := false
	for name, h := range healthSnap {
		providers[name] = ProviderStatus{Status: h.Status, ErrorRate: h.ErrorRate}
		if h.Status != health.StatusDown {
			anyUp = true
		}
	}

	return Status{
		Healthy:       anyUp,
		Providers:     providers,
		Metrics:       e.aggregator.Snapshot(),
		QueueDepth:    e.pool.QueueDepth(),
		ActiveWorkers: e.pool.ActiveWorkers(),
		UptimeSeconds: int64(time.Since(e.startTime).Seconds()),
	}
}

// Suggestions evaluates the rules against a fresh snapshot and returns the
// suggestion projection.
func (e *Engine) Suggestions() Suggestions {
	snap := e.aggregator.Snapshot()
	list := e.suggester.Evaluate(e.buildEnv(snap))

	return Suggestions{
		Suggestions: list,
		Metrics: SuggestionMetrics{
			TotalRequests: snap.TotalRequests,
			ErrorRate:     fmt.Sprintf("%.1f%%", snap.ErrorRate()*100),
			AvgLatency:    fmt.Sprintf("%.2fs", snap.AverageLatencyMs/1000),
		},
	}
}

// ApplySuggestion applies an operator action (approve or dismiss) to a
// suggestion ID.
func (e *Engine) ApplySuggestion(id, action string) (*suggest.Suggestion, error) {
	return e.suggester.Transition(id, action)
}

// Reconfigure applies hot-reloadable settings from a fresh configuration:
// health thresholds and suggestion rules. Structural settings (queue size,
// workers, providers) require a restart.
func (e *Engine) Reconfigure(cfg *config.Config) {
	e.healthMon.SetConfig(cfg.Health)

	rules := append(suggest.BuiltinRules(cfg.Suggestions.Thresholds), cfg.Suggestions.Rules...)
	if err := e.suggester.SetRules(rules); err != nil {
		log.Warnf("Rule reload rejected: %v", err)
	}
}

// handleTask runs one claimed task to its terminal outcome.
func (e *Engine) handleTask(ctx context.Context, task *queue.Task) {
	req := task.Request

	if len(req.Data) == 0 && req.Reference != "" && e.resolver != nil {
		data, err := e.resolver.Resolve(ctx, req.Reference)
		if err != nil {
			log.WithField("task", task.ID).Errorf("Payload resolution failed: %v", err)
			return
		}
		req.Data = data
	}

	result, err := e.dispatcher.Dispatch(ctx, task)
	if err != nil {
		log.WithFields(log.Fields{
			"task":    task.ID,
			"attempt": task.Attempt,
		}).Warnf("Task failed: %v", err)
		return
	}

	log.WithFields(log.Fields{
		"task":     task.ID,
		"provider": result.Provider,
	}).Info("Task completed")
}

// evaluateLoop re-evaluates suggestion rules periodically so conditions are
// tracked even when nobody reads the suggestions endpoint.
func (e *Engine) evaluateLoop(ctx context.Context) {
	interval := e.cfg.EvalInterval()
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.suggester.Evaluate(e.buildEnv(e.aggregator.Snapshot()))
		}
	}
}

func (e *Engine) buildEnv(snap metrics.Snapshot) suggest.Env {
	down, degraded := 0, 0
	for _, h := range e.healthMon.Snapshot() {
		switch h.Status {
		case health.StatusDown:
			down++
		case health.StatusDegraded:
			degraded++
		}
	}

	return suggest.Env{
		TotalRequests:     snap.TotalRequests,
		FailedRequests:    snap.FailedRequests,
		RateLimitHits:     snap.RateLimitHits,
		AverageLatencyMs:  snap.AverageLatencyMs,
		ErrorRate:         snap.ErrorRate(),
		QueueDepth:        e.pool.QueueDepth(),
		ActiveWorkers:     e.pool.ActiveWorkers(),
		DownProviders:     down,
		DegradedProviders: degraded,
	}
}
