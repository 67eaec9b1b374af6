package suggest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(BuiltinRules(DefaultThresholds()), nil)
	require.NoError(t, err)
	return e
}

func findSuggestion(list []Suggestion, id string) *Suggestion {
	for i := range list {
		if list[i].ID == id {
			return &list[i]
		}
	}
	return nil
}

func TestHighErrorRateRule(t *testing.T) {
	e := newTestEngine(t)

	// 15/100 = 0.15 > 0.10 threshold.
	out := e.Evaluate(Env{TotalRequests: 100, FailedRequests: 15, ErrorRate: 0.15})
	s := findSuggestion(out, RuleHighErrorRate)
	require.NotNil(t, s, "error-rate rule should fire at 0.15")
	assert.Equal(t, CategoryReliability, s.Category)
	assert.Equal(t, PriorityHigh, s.Priority)
	assert.Equal(t, StatePending, s.Status)

	// 5/100 = 0.05 does not fire, and the stale suggestion retires.
	out = e.Evaluate(Env{TotalRequests: 100, FailedRequests: 5, ErrorRate: 0.05})
	assert.Nil(t, findSuggestion(out, RuleHighErrorRate))
}

func TestRateLimitRuleIndependent(t *testing.T) {
	e := newTestEngine(t)

	// Rate limiting with otherwise healthy metrics: exactly one
	// reliability/critical suggestion, independent of the error-rate rule.
	out := e.Evaluate(Env{TotalRequests: 100, FailedRequests: 1, RateLimitHits: 1, ErrorRate: 0.01})

	s := findSuggestion(out, RuleRateLimitHits)
	require.NotNil(t, s)
	assert.Equal(t, PriorityCritical, s.Priority)
	assert.Equal(t, CategoryReliability, s.Category)
	assert.Nil(t, findSuggestion(out, RuleHighErrorRate))

	count := 0
	for _, sg := range out {
		if sg.ID == RuleRateLimitHits {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestHighLatencyRule(t *testing.T) {
	e := newTestEngine(t)

	out := e.Evaluate(Env{AverageLatencyMs: 16000})
	s := findSuggestion(out, RuleHighLatency)
	require.NotNil(t, s)
	assert.Equal(t, CategoryPerformance, s.Category)
	assert.Equal(t, PriorityHigh, s.Priority)

	out = e.Evaluate(Env{AverageLatencyMs: 1200})
	assert.Nil(t, findSuggestion(out, RuleHighLatency))
}

func TestEvaluateIdempotent(t *testing.T) {
	e := newTestEngine(t)
	env := Env{TotalRequests: 100, FailedRequests: 20, ErrorRate: 0.20, RateLimitHits: 2}

	first := e.Evaluate(env)
	second := e.Evaluate(env)

	require.Equal(t, len(first), len(second), "re-evaluation must not add suggestions")
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Equal(t, first[i].Status, second[i].Status)
		assert.Equal(t, first[i].CreatedAt, second[i].CreatedAt, "existing suggestion must be left untouched")
	}
}

func TestTransitionLifecycle(t *testing.T) {
	e := newTestEngine(t)
	env := Env{RateLimitHits: 1}

	out := e.Evaluate(env)
	require.NotNil(t, findSuggestion(out, RuleRateLimitHits))

	s, err := e.Transition(RuleRateLimitHits, "dismiss")
	require.NoError(t, err)
	assert.Equal(t, StateDismissed, s.Status)

	// Re-evaluation with the condition still true must not resurrect it.
	out = e.Evaluate(env)
	s2 := findSuggestion(out, RuleRateLimitHits)
	require.NotNil(t, s2)
	assert.Equal(t, StateDismissed, s2.Status)

	// Dismissing again is a no-op.
	s, err = e.Transition(RuleRateLimitHits, "dismiss")
	require.NoError(t, err)
	assert.Equal(t, StateDismissed, s.Status)

	// Condition clears, then re-triggers: fresh pending suggestion.
	e.Evaluate(Env{})
	out = e.Evaluate(env)
	s3 := findSuggestion(out, RuleRateLimitHits)
	require.NotNil(t, s3)
	assert.Equal(t, StatePending, s3.Status)
}

func TestTransitionUnknownIDCreates(t *testing.T) {
	e := newTestEngine(t)

	// Create-or-transition: acting on a previously unknown id succeeds.
	s, err := e.Transition("x", "approve")
	require.NoError(t, err)
	assert.Equal(t, "x", s.ID)
	assert.Equal(t, StateApproved, s.Status)
}

func TestTransitionRejectsUnknownAction(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Transition(RuleHighLatency, "defer")
	assert.Error(t, err)
}

func TestPriorityOrdering(t *testing.T) {
	e := newTestEngine(t)

	out := e.Evaluate(Env{
		TotalRequests:  100,
		FailedRequests: 20,
		ErrorRate:      0.20,
		RateLimitHits:  1,
		QueueDepth:     100,
	})
	require.GreaterOrEqual(t, len(out), 3)
	assert.Equal(t, PriorityCritical, out[0].Priority, "critical suggestions sort first")
}

func TestCustomRule(t *testing.T) {
	rules := append(BuiltinRules(DefaultThresholds()), Rule{
		ID:          "worker-saturation",
		Category:    CategoryCapacity,
		Priority:    PriorityLow,
		Title:       "All workers busy",
		Description: "Every worker is occupied.",
		Condition:   "ActiveWorkers >= 4 && QueueDepth > 0",
	})
	e, err := NewEngine(rules, nil)
	require.NoError(t, err)

	out := e.Evaluate(Env{ActiveWorkers: 4, QueueDepth: 1})
	assert.NotNil(t, findSuggestion(out, "worker-saturation"))
}

func TestBadRuleRejected(t *testing.T) {
	_, err := NewEngine([]Rule{{ID: "broken", Condition: "TotalRequests +"}}, nil)
	assert.Error(t, err)

	_, err = NewEngine([]Rule{{ID: "", Condition: "true"}}, nil)
	assert.Error(t, err)
}

func TestSetRulesDropsRetiredSuggestions(t *testing.T) {
	e := newTestEngine(t)
	e.Evaluate(Env{RateLimitHits: 1})
	require.NotNil(t, findSuggestion(e.Current(), RuleRateLimitHits))

	require.NoError(t, e.SetRules(BuiltinRules(Thresholds{HighLatencyMs: 1000, ErrorRate: 0.5, QueueBacklog: 10})[:1]))
	assert.Nil(t, findSuggestion(e.Current(), RuleRateLimitHits))
}
