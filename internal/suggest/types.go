// Package suggest evaluates rules over live metrics and health snapshots and
// produces prioritized, deduplicated operational suggestions with a
// pending/approved/dismissed lifecycle.
package suggest

import "time"

// Category groups related suggestions.
type Category string

const (
	CategoryPerformance Category = "performance"
	CategoryReliability Category = "reliability"
	CategoryCapacity    Category = "capacity"
)

// Priority orders suggestions for the operator.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// State is the lifecycle position of a suggestion.
type State string

const (
	StatePending   State = "pending"
	StateApproved  State = "approved"
	StateDismissed State = "dismissed"
)

// Suggestion is a derived, actionable observation. Its ID is stable per
// rule, so re-evaluating an unchanged snapshot never duplicates it; only the
// status is externally mutable.
type Suggestion struct {
	ID          string    `json:"id"`
	Category    Category  `json:"category"`
	Priority    Priority  `json:"priority"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      State     `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Rule is one independently evaluable condition. Condition is an expr
// expression over Env; rules never suppress each other.
type Rule struct {
	ID          string   `yaml:"id" json:"id"`
	Category    Category `yaml:"category" json:"category"`
	Priority    Priority `yaml:"priority" json:"priority"`
	Title       string   `yaml:"title" json:"title"`
	Description string   `yaml:"description" json:"description"`
	Condition   string   `yaml:"condition" json:"condition"`
}

// Env is the typed environment a rule condition evaluates against.
type Env struct {
	TotalRequests     int64   `expr:"TotalRequests"`
	FailedRequests    int64   `expr:"FailedRequests"`
	RateLimitHits     int64   `expr:"RateLimitHits"`
	AverageLatencyMs  float64 `expr:"AverageLatencyMs"`
	ErrorRate         float64 `expr:"ErrorRate"`
	QueueDepth        int     `expr:"QueueDepth"`
	ActiveWorkers     int     `expr:"ActiveWorkers"`
	DownProviders     int     `expr:"DownProviders"`
	DegradedProviders int     `expr:"DegradedProviders"`
}

// Thresholds are the tunable trigger points for the built-in rules.
type Thresholds struct {
	// HighLatencyMs fires the performance rule when the global average
	// latency exceeds it.
	HighLatencyMs float64 `yaml:"high-latency-ms" json:"high-latency-ms"`

	// ErrorRate fires the reliability rule when failed/total exceeds it.
	ErrorRate float64 `yaml:"error-rate" json:"error-rate"`

	// QueueBacklog fires the capacity rule when the queue depth reaches it.
	QueueBacklog int `yaml:"queue-backlog" json:"queue-backlog"`
}

// DefaultThresholds returns the default rule trigger points.
func DefaultThresholds() Thresholds {
	return Thresholds{
		HighLatencyMs: 15000,
		ErrorRate:     0.10,
		QueueBacklog:  64,
	}
}
