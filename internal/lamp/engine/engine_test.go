package engine

import (
	"context"
	"testing"
	"time"

	"github.com/adaptlight/lampcore/internal/lamp/rule"
	"github.com/adaptlight/lampcore/internal/lamp/state"
	"github.com/adaptlight/lampcore/internal/lamp/vars"
)

func newTestEngine(t *testing.T) (*Engine, *state.Registry, *rule.Store) {
	t.Helper()
	states := state.NewRegistry()
	for _, name := range []string{state.Off, state.On} {
		lit := 0
		if err := states.Add(state.State{Name: name, R: state.Lit(lit), G: state.Lit(lit), B: state.Lit(lit)}); err != nil {
			t.Fatalf("seed state %q: %v", name, err)
		}
	}
	rules := rule.NewStore()
	e := New(states, rules, vars.New(), nil, nil)
	rules.OnRemove(func(rule.Rule) {})
	e.Start()
	t.Cleanup(e.Stop)
	return e, states, rules
}

func TestExecuteEvent_MatchesAndTransitions(t *testing.T) {
	e, _, rules := newTestEngine(t)
	rules.Insert(rule.Rule{From: state.Off, On: "button_click", To: state.On, Enabled: true})

	res, err := e.ExecuteEvent(context.Background(), "button_click")
	if err != nil {
		t.Fatalf("ExecuteEvent: %v", err)
	}
	if !res.Matched {
		t.Fatalf("expected a match, got diagnostic %q", res.Diagnostic)
	}
	if e.Current() != state.On {
		t.Fatalf("expected current state %q, got %q", state.On, e.Current())
	}
}

func TestExecuteEvent_NoCandidateDiagnostic(t *testing.T) {
	e, _, _ := newTestEngine(t)
	res, err := e.ExecuteEvent(context.Background(), "button_click")
	if err != nil {
		t.Fatalf("ExecuteEvent: %v", err)
	}
	if res.Matched {
		t.Fatalf("expected no match")
	}
	if res.Diagnostic == "" {
		t.Fatalf("expected a diagnostic")
	}
}

func TestExecuteEvent_ConditionFailsFallsThroughToNextRule(t *testing.T) {
	e, _, rules := newTestEngine(t)
	rules.Insert(rule.Rule{From: state.Off, On: "button_click", To: state.Off, Condition: "1 == 2", Priority: 10, Enabled: true})
	rules.Insert(rule.Rule{From: state.Off, On: "button_click", To: state.On, Priority: 0, Enabled: true})

	res, err := e.ExecuteEvent(context.Background(), "button_click")
	if err != nil {
		t.Fatalf("ExecuteEvent: %v", err)
	}
	if !res.Matched || e.Current() != state.On {
		t.Fatalf("expected the second rule to match, got matched=%v current=%q", res.Matched, e.Current())
	}
}

func TestExecuteEvent_WildcardFromMatchesAnyState(t *testing.T) {
	e, _, rules := newTestEngine(t)
	rules.Insert(rule.Rule{From: rule.Wildcard, On: "reset", To: state.Off, Enabled: true})

	res, err := e.ExecuteEvent(context.Background(), "reset")
	if err != nil {
		t.Fatalf("ExecuteEvent: %v", err)
	}
	if !res.Matched {
		t.Fatalf("expected wildcard rule to match")
	}
}

func TestDurationTimer_TransitionsThenToOnExpiry(t *testing.T) {
	states := state.NewRegistry()
	durMs := 20
	lit := 0
	if err := states.Add(state.State{Name: state.Off, R: state.Lit(lit), G: state.Lit(lit), B: state.Lit(lit)}); err != nil {
		t.Fatalf("seed off: %v", err)
	}
	if err := states.Add(state.State{Name: "flash", R: state.Lit(255), G: state.Lit(lit), B: state.Lit(lit), DurationMs: &durMs, Then: state.Off}); err != nil {
		t.Fatalf("seed flash: %v", err)
	}
	rules := rule.NewStore()
	e := New(states, rules, vars.New(), nil, nil)
	e.Start()
	defer e.Stop()

	if err := e.Transition(context.Background(), "flash"); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if e.Current() != "flash" {
		t.Fatalf("expected current state flash, got %q", e.Current())
	}

	deadline := time.After(500 * time.Millisecond)
	for e.Current() != state.Off {
		select {
		case <-deadline:
			t.Fatalf("duration timer did not fire within deadline, current=%q", e.Current())
		case <-time.After(5 * time.Millisecond):
		}
	}
}
