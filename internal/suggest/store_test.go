package suggest

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorePutGetDelete(t *testing.T) {
	store, err := OpenStore(":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	_, ok := store.Get(RuleHighLatency)
	assert.False(t, ok)

	require.NoError(t, store.Put(RuleHighLatency, StateDismissed))
	state, ok := store.Get(RuleHighLatency)
	require.True(t, ok)
	assert.Equal(t, StateDismissed, state)

	// Upsert overwrites.
	require.NoError(t, store.Put(RuleHighLatency, StateApproved))
	state, _ = store.Get(RuleHighLatency)
	assert.Equal(t, StateApproved, state)

	require.NoError(t, store.Delete(RuleHighLatency))
	_, ok = store.Get(RuleHighLatency)
	assert.False(t, ok)
}

func TestDecisionSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "suggestions.db")

	store, err := OpenStore(path)
	require.NoError(t, err)

	engine, err := NewEngine(BuiltinRules(DefaultThresholds()), store)
	require.NoError(t, err)

	env := Env{RateLimitHits: 1}
	engine.Evaluate(env)
	_, err = engine.Transition(RuleRateLimitHits, "dismiss")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	// Simulated restart: new store handle, new engine, condition still true.
	store2, err := OpenStore(path)
	require.NoError(t, err)
	defer func() { _ = store2.Close() }()

	engine2, err := NewEngine(BuiltinRules(DefaultThresholds()), store2)
	require.NoError(t, err)

	out := engine2.Evaluate(env)
	s := findSuggestion(out, RuleRateLimitHits)
	require.NotNil(t, s)
	assert.Equal(t, StateDismissed, s.Status, "operator decision should survive a restart")
}

func TestDecisionClearedWithCondition(t *testing.T) {
	store, err := OpenStore(":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	engine, err := NewEngine(BuiltinRules(DefaultThresholds()), store)
	require.NoError(t, err)

	engine.Evaluate(Env{RateLimitHits: 1})
	_, err = engine.Transition(RuleRateLimitHits, "dismiss")
	require.NoError(t, err)

	// Condition clears: the stored decision goes with it.
	engine.Evaluate(Env{})
	_, ok := store.Get(RuleRateLimitHits)
	assert.False(t, ok)
}
