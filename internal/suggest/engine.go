package suggest

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	log "github.com/sirupsen/logrus"
)

// Engine runs rule evaluation over snapshots. Each rule is independent and
// order-insensitive; one rule firing never suppresses another.
type Engine struct {
	mu       sync.Mutex
	rules    []Rule
	programs map[string]*vm.Program
	active   map[string]*Suggestion
	store    *Store
}

// NewEngine compiles the given rules. An optional store persists operator
// decisions across restarts; pass nil for in-memory only.
func NewEngine(rules []Rule, store *Store) (*Engine, error) {
	e := &Engine{
		rules:    make([]Rule, 0, len(rules)),
		programs: make(map[string]*vm.Program),
		active:   make(map[string]*Suggestion),
		store:    store,
	}
	for _, r := range rules {
		if err := e.addLocked(r); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// SetRules replaces the rule set at runtime (config hot reload). Active
// suggestions for rules that no longer exist are dropped.
func (e *Engine) SetRules(rules []Rule) error {
	compiled := make(map[string]*vm.Program, len(rules))
	for _, r := range rules {
		program, err := compileRule(r)
		if err != nil {
			return err
		}
		compiled[r.ID] = program
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.rules = append([]Rule(nil), rules...)
	e.programs = compiled
	for id := range e.active {
		if _, ok := compiled[id]; !ok {
			delete(e.active, id)
		}
	}
	return nil
}

// Evaluate runs every rule against the snapshot and returns the current
// suggestion list, highest priority first. Re-evaluation against an
// unchanged snapshot is idempotent: a firing rule whose suggestion already
// exists leaves it untouched. When a rule's condition clears, its suggestion
// is retired, so a later re-trigger creates a fresh pending one even if the
// previous instance was dismissed.
func (e *Engine) Evaluate(env Env) []Suggestion {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now()

	for _, rule := range e.rules {
		fired, err := e.runLocked(rule, env)
		if err != nil {
			log.WithField("rule", rule.ID).Warnf("Rule evaluation failed: %v", err)
			continue
		}

		_, exists := e.active[rule.ID]

		switch {
		case fired && !exists:
			s := &Suggestion{
				ID:          rule.ID,
				Category:    rule.Category,
				Priority:    rule.Priority,
				Title:       rule.Title,
				Description: rule.Description,
				Status:      StatePending,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			// Carry over an operator decision recorded before a restart
			// while the condition has been continuously true.
			if e.store != nil {
				if state, ok := e.store.Get(rule.ID); ok {
					s.Status = state
				}
			}
			e.active[rule.ID] = s

		case !fired && exists:
			delete(e.active, rule.ID)
			if e.store != nil {
				if err := e.store.Delete(rule.ID); err != nil {
					log.Warnf("Failed to clear stored suggestion %s: %v", rule.ID, err)
				}
			}
		}
	}

	return e.listLocked()
}

// Transition applies an operator action to a suggestion. Unknown IDs are
// created in the target state (idempotent create-or-transition); applying an
// action twice is a no-op.
func (e *Engine) Transition(id, action string) (*Suggestion, error) {
	var target State
	switch action {
	case "approve":
		target = StateApproved
	case "dismiss":
		target = StateDismissed
	default:
		return nil, fmt.Errorf("unknown action %q", action)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now()
	s, ok := e.active[id]
	if !ok {
		s = &Suggestion{
			ID:        id,
			Status:    target,
			CreatedAt: now,
			UpdatedAt: now,
		}
		e.active[id] = s
	} else if s.Status != target {
		s.Status = target
		s.UpdatedAt = now
	}

	if e.store != nil {
		if err := e.store.Put(id, target); err != nil {
			log.Warnf("Failed to persist suggestion decision %s: %v", id, err)
		}
	}

	copied := *s
	return &copied, nil
}

// Current returns the suggestion list without re-evaluating rules.
func (e *Engine) Current() []Suggestion {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.listLocked()
}

func (e *Engine) addLocked(r Rule) error {
	program, err := compileRule(r)
	if err != nil {
		return err
	}
	e.rules = append(e.rules, r)
	e.programs[r.ID] = program
	return nil
}

func (e *Engine) runLocked(rule Rule, env Env) (bool, error) {
	program, ok := e.programs[rule.ID]
	if !ok {
		return false, fmt.Errorf("rule %s not compiled", rule.ID)
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return false, err
	}
	fired, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("rule %s condition did not return a boolean", rule.ID)
	}
	return fired, nil
}

func (e *Engine) listLocked() []Suggestion {
	out := make([]Suggestion, 0, len(e.active))
	for _, s := range e.active {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if pi, pj := priorityRank(out[i].Priority), priorityRank(out[j].Priority); pi != pj {
			return pi < pj
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func compileRule(r Rule) (*vm.Program, error) {
	if r.ID == "" || r.Condition == "" {
		return nil, fmt.Errorf("rule must have an id and a condition")
	}
	program, err := expr.Compile(r.Condition, expr.Env(Env{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile rule %s: %w", r.ID, err)
	}
	return program, nil
}

func priorityRank(p Priority) int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	default:
		return 3
	}
}
