// Package health maintains rolling health state per provider from observed
// request outcomes and ranks providers for dispatch, healthiest first.
package health

import (
	"sort"
	"sync"
	"time"
)

// Status is the derived health state of a provider.
type Status string

const (
	// StatusHealthy indicates the provider is operating normally.
	StatusHealthy Status = "healthy"

	// StatusDegraded indicates an elevated recent error rate. The provider
	// stays eligible but ranks after healthy ones.
	StatusDegraded Status = "degraded"

	// StatusDown indicates too many consecutive failures. The provider ranks
	// last but is never removed, so live traffic can probe recovery.
	StatusDown Status = "down"
)

// Config holds the tunable thresholds for status derivation.
type Config struct {
	// WindowSize is how many recent outcomes feed the error rate.
	WindowSize int `yaml:"window-size" json:"window-size"`

	// DegradedThreshold is the windowed error rate at or above which a
	// provider is degraded.
	DegradedThreshold float64 `yaml:"degraded-threshold" json:"degraded-threshold"`

	// DownAfter is the consecutive-failure count at which a provider is down.
	DownAfter int `yaml:"down-after" json:"down-after"`
}

// DefaultConfig returns the default health thresholds.
func DefaultConfig() Config {
	return Config{
		WindowSize:        64,
		DegradedThreshold: 0.20,
		DownAfter:         5,
	}
}

// ProviderHealth is a read-only view of one provider's health state.
type ProviderHealth struct {
	Name                string    `json:"name"`
	Status              Status    `json:"status"`
	ErrorRate           float64   `json:"error_rate"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastUsed            time.Time `json:"last_used,omitempty"`
}

// providerState tracks one provider. The outcome window is a fixed ring of
// booleans (true = failure); status is always derived from the window and
// the consecutive counter, never stored.
type providerState struct {
	window              []bool
	next                int
	filled              int
	failures            int
	consecutiveFailures int
	lastUsed            time.Time
	registeredAt        time.Time
}

// Monitor derives provider health from observed outcomes.
type Monitor struct {
	mu     sync.RWMutex
	cfg    Config
	states map[string]*providerState
}

// NewMonitor creates a health monitor with the given thresholds.
func NewMonitor(cfg Config) *Monitor {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = DefaultConfig().WindowSize
	}
	if cfg.DownAfter <= 0 {
		cfg.DownAfter = DefaultConfig().DownAfter
	}
	if cfg.DegradedThreshold <= 0 {
		cfg.DegradedThreshold = DefaultConfig().DegradedThreshold
	}
	return &Monitor{
		cfg:    cfg,
		states: make(map[string]*providerState),
	}
}

// SetConfig swaps the thresholds at runtime. Existing windows are kept;
// status derivations pick up the new values on the next read.
func (m *Monitor) SetConfig(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cfg.WindowSize <= 0 || cfg.DownAfter <= 0 || cfg.DegradedThreshold <= 0 {
		return
	}
	m.cfg.DegradedThreshold = cfg.DegradedThreshold
	m.cfg.DownAfter = cfg.DownAfter
}

// Register makes a provider known to the monitor before any outcome is
// observed. Unknown providers start healthy.
func (m *Monitor) Register(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stateLocked(name)
}

// Record updates the windowed error rate and the consecutive-failure counter
// for one observed outcome. Rate-limited failures count toward the error
// window but not the consecutive counter: throttling signals external load,
// not provider unhealthiness, and must not trip the down state on its own.
func (m *Monitor) Record(name string, success bool, rateLimited bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.stateLocked(name)
	st.push(!success)

	if success {
		st.consecutiveFailures = 0
	} else if !rateLimited {
		st.consecutiveFailures++
	}
}

// MarkUsed records that the dispatcher selected this provider. Used for the
// least-recently-used tie-break within a status band.
func (m *Monitor) MarkUsed(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stateLocked(name).lastUsed = time.Now()
}

// StatusOf returns the derived status for a provider. Providers with no
// recorded outcomes are healthy.
func (m *Monitor) StatusOf(name string) Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.states[name]
	if !ok {
		return StatusHealthy
	}
	return m.deriveLocked(st)
}

// ErrorRate returns the windowed error rate for a provider, in [0,1].
func (m *Monitor) ErrorRate(name string) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.states[name]
	if !ok {
		return 0
	}
	return st.errorRate()
}

// OrderedProviders returns all registered providers ranked healthiest first:
// healthy before degraded before down. Down providers stay in the ordering
// (last) so the dispatcher can probe recovery. Within a band the least
// recently used provider comes first, so no provider starves.
func (m *Monitor) OrderedProviders() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	type ranked struct {
		name     string
		band     int
		lastUsed time.Time
		regOrder time.Time
	}

	entries := make([]ranked, 0, len(m.states))
	for name, st := range m.states {
		entries = append(entries, ranked{
			name:     name,
			band:     statusBand(m.deriveLocked(st)),
			lastUsed: st.lastUsed,
			regOrder: st.registeredAt,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].band != entries[j].band {
			return entries[i].band < entries[j].band
		}
		if !entries[i].lastUsed.Equal(entries[j].lastUsed) {
			return entries[i].lastUsed.Before(entries[j].lastUsed)
		}
		if !entries[i].regOrder.Equal(entries[j].regOrder) {
			return entries[i].regOrder.Before(entries[j].regOrder)
		}
		return entries[i].name < entries[j].name
	})

	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.name
	}
	return names
}

// Snapshot returns a copy of every provider's current health view.
func (m *Monitor) Snapshot() map[string]ProviderHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]ProviderHealth, len(m.states))
	for name, st := range m.states {
		out[name] = ProviderHealth{
			Name:                name,
			Status:              m.deriveLocked(st),
			ErrorRate:           st.errorRate(),
			ConsecutiveFailures: st.consecutiveFailures,
			LastUsed:            st.lastUsed,
		}
	}
	return out
}

// deriveLocked computes status from its inputs. Precedence: down beats
// degraded beats healthy.
func (m *Monitor) deriveLocked(st *providerState) Status {
	if st.consecutiveFailures >= m.cfg.DownAfter {
		return StatusDown
	}
	if st.errorRate() >= m.cfg.DegradedThreshold {
		return StatusDegraded
	}
	return StatusHealthy
}

func (m *Monitor) stateLocked(name string) *providerState {
	st, ok := m.states[name]
	if !ok {
		st = &providerState{
			window:       make([]bool, m.cfg.WindowSize),
			registeredAt: time.Now(),
		}
		m.states[name] = st
	}
	return st
}

func (s *providerState) push(failed bool) {
	if s.filled == len(s.window) {
		if s.window[s.next] {
			s.failures--
		}
	} else {
		s.filled++
	}
	s.window[s.next] = failed
	if failed {
		s.failures++
	}
	s.next = (s.next + 1) % len(s.window)
}

func (s *providerState) errorRate() float64 {
	if s.filled == 0 {
		return 0
	}
	return float64(s.failures) / float64(s.filled)
}

func statusBand(s Status) int {
	switch s {
	case StatusHealthy:
		return 0
	case StatusDegraded:
		return 1
	default:
		return 2
	}
}
