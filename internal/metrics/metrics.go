// Package metrics accumulates global and per-provider request counters and
// latency statistics for the orchestration engine. All counters are
// monotonic within a process lifetime; readers get immutable snapshots.
package metrics

import (
	"sync"
	"time"
)

// Outcome classifies a completed provider call for accounting.
type Outcome string

const (
	OutcomeSuccess     Outcome = "success"
	OutcomeFailure     Outcome = "failure"
	OutcomeRateLimited Outcome = "rate_limited"
)

// ProviderMetrics holds per-provider aggregates.
type ProviderMetrics struct {
	TotalRequests    int64   `json:"total_requests"`
	FailedRequests   int64   `json:"failed_requests"`
	RateLimitHits    int64   `json:"rate_limit_hits"`
	AverageLatencyMs float64 `json:"average_latency_ms"`
}

// Snapshot is a point-in-time copy of all aggregates, safe to serialize.
type Snapshot struct {
	TotalRequests    int64                      `json:"total_requests"`
	FailedRequests   int64                      `json:"failed_requests"`
	RateLimitHits    int64                      `json:"rate_limit_hits"`
	AverageLatencyMs float64                    `json:"average_latency_ms"`
	ByProvider       map[string]ProviderMetrics `json:"by_provider"`
	UptimeSeconds    int64                      `json:"uptime_seconds"`
	Timestamp        time.Time                  `json:"timestamp"`
}

// ErrorRate returns failed/total in [0,1]. Returns 0 with no traffic.
func (s *Snapshot) ErrorRate() float64 {
	if s.TotalRequests == 0 {
		return 0
	}
	return float64(s.FailedRequests) / float64(s.TotalRequests)
}

// Aggregator is the process-wide metrics store. A single mutex guards the
// global counters and the per-provider map together so a snapshot can never
// observe a torn update (global total out of sync with the provider sum).
type Aggregator struct {
	mu sync.RWMutex

	total     int64
	failed    int64
	rateLimit int64

	avgLatencyMs float64
	latencyCount int64

	byProvider map[string]*providerAgg

	startTime time.Time
}

type providerAgg struct {
	total        int64
	failed       int64
	rateLimit    int64
	avgLatencyMs float64
	latencyCount int64
}

// New creates an empty aggregator.
func New() *Aggregator {
	return &Aggregator{
		byProvider: make(map[string]*providerAgg),
		startTime:  time.Now(),
	}
}

// Record accounts one completed provider call. Successes and failures both
// contribute latency, since both consume dispatch time. A rate-limited
// outcome counts as a failure and additionally as a rate-limit hit.
func (a *Aggregator) Record(provider string, outcome Outcome, latency time.Duration) {
	latencyMs := float64(latency.Milliseconds())

	a.mu.Lock()
	defer a.mu.Unlock()

	p, ok := a.byProvider[provider]
	if !ok {
		p = &providerAgg{}
		a.byProvider[provider] = p
	}

	a.total++
	p.total++

	switch outcome {
	case OutcomeFailure:
		a.failed++
		p.failed++
	case OutcomeRateLimited:
		a.failed++
		p.failed++
		a.rateLimit++
		p.rateLimit++
	}

	a.avgLatencyMs = runningMean(a.avgLatencyMs, a.latencyCount, latencyMs)
	a.latencyCount++
	p.avgLatencyMs = runningMean(p.avgLatencyMs, p.latencyCount, latencyMs)
	p.latencyCount++
}

// Snapshot returns an immutable copy of the current aggregates.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()

	byProvider := make(map[string]ProviderMetrics, len(a.byProvider))
	for name, p := range a.byProvider {
		byProvider[name] = ProviderMetrics{
			TotalRequests:    p.total,
			FailedRequests:   p.failed,
			RateLimitHits:    p.rateLimit,
			AverageLatencyMs: p.avgLatencyMs,
		}
	}

	return Snapshot{
		TotalRequests:    a.total,
		FailedRequests:   a.failed,
		RateLimitHits:    a.rateLimit,
		AverageLatencyMs: a.avgLatencyMs,
		ByProvider:       byProvider,
		UptimeSeconds:    int64(time.Since(a.startTime).Seconds()),
		Timestamp:        time.Now(),
	}
}

// runningMean folds one sample into a running mean without keeping samples:
// ((oldAvg * oldCount) + sample) / (oldCount + 1).
func runningMean(oldAvg float64, oldCount int64, sample float64) float64 {
	return ((oldAvg * float64(oldCount)) + sample) / float64(oldCount+1)
}
