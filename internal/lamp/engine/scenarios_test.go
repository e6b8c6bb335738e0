package engine_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/adaptlight/lampcore/internal/lamp/engine"
	"github.com/adaptlight/lampcore/internal/lamp/pipeline"
	"github.com/adaptlight/lampcore/internal/lamp/rule"
	"github.com/adaptlight/lampcore/internal/lamp/scheduler"
	"github.com/adaptlight/lampcore/internal/lamp/state"
	"github.com/adaptlight/lampcore/internal/lamp/vars"
)

func litState(name string) state.State {
	return state.State{Name: name, R: state.Lit(0), G: state.Lit(0), B: state.Lit(0)}
}

func newScenarioEngine(t *testing.T, extraStates ...string) (*engine.Engine, *rule.Store, *vars.Store) {
	t.Helper()
	states := state.NewRegistry()
	for _, name := range append([]string{state.Off, state.On}, extraStates...) {
		if err := states.Add(litState(name)); err != nil {
			t.Fatalf("seed state %q: %v", name, err)
		}
	}
	rules := rule.NewStore()
	varStore := vars.New()
	e := engine.New(states, rules, varStore, nil, nil)
	e.Start()
	t.Cleanup(e.Stop)
	return e, rules, varStore
}

// S1 — Toggle.
func TestScenario_S1_Toggle(t *testing.T) {
	e, rules, _ := newScenarioEngine(t)
	rules.Insert(rule.Rule{From: state.Off, On: "button_click", To: state.On, Enabled: true})
	rules.Insert(rule.Rule{From: state.On, On: "button_click", To: state.Off, Enabled: true})

	want := []string{state.On, state.Off, state.On}
	for i, w := range want {
		if _, err := e.ExecuteEvent(context.Background(), "button_click"); err != nil {
			t.Fatalf("ExecuteEvent #%d: %v", i, err)
		}
		if got := e.Current(); got != w {
			t.Fatalf("after click #%d: got %q, want %q", i+1, got, w)
		}
	}
}

// S2 — Counter pattern: three layered rules on the wildcard/button_click
// event implement "enter random_color, count down, exit to off", keyed by
// the `counter` variable.
func TestScenario_S2_CounterPattern(t *testing.T) {
	e, rules, varStore := newScenarioEngine(t, "random_color")

	rules.Insert(rule.Rule{
		From: rule.Wildcard, On: "button_click", To: "random_color", Priority: 0, Enabled: true,
		Condition: "getData('counter') == null",
		Action:    "setData('counter', 3)",
	})
	rules.Insert(rule.Rule{
		From: rule.Wildcard, On: "button_click", To: "random_color", Priority: 0, Enabled: true,
		Condition: "getData('counter') > 0",
		Action:    "setData('counter', getData('counter') - 1)",
	})
	rules.Insert(rule.Rule{
		From: rule.Wildcard, On: "button_click", To: state.Off, Priority: 0, Enabled: true,
		Condition: "getData('counter') == 0",
		Action:    "setData('counter', null)",
	})

	wantStates := []string{"random_color", "random_color", "random_color", "random_color", state.Off}
	for i, w := range wantStates {
		if _, err := e.ExecuteEvent(context.Background(), "button_click"); err != nil {
			t.Fatalf("ExecuteEvent #%d: %v", i, err)
		}
		if got := e.Current(); got != w {
			t.Fatalf("after click #%d: got %q, want %q", i+1, got, w)
		}
	}

	if v, ok := varStore.Get("counter"); !ok || v != nil {
		t.Fatalf("expected counter to be nil after the sequence, got %v (ok=%v)", v, ok)
	}
}

// S3 — Priority safety rule: a high-priority wildcard rule pre-empts a
// lower-priority specific-from rule regardless of evaluation order.
func TestScenario_S3_PrioritySafetyRule(t *testing.T) {
	e, rules, _ := newScenarioEngine(t, "active")
	rules.Insert(rule.Rule{From: rule.Wildcard, On: "button_hold", To: state.Off, Priority: 100, Enabled: true})
	rules.Insert(rule.Rule{From: state.Off, On: "button_click", To: "active", Priority: 0, Enabled: true})

	if err := e.Transition(context.Background(), "active"); err != nil {
		t.Fatalf("Transition to active: %v", err)
	}
	if got := e.Current(); got != "active" {
		t.Fatalf("expected current=active before the hold, got %q", got)
	}

	if _, err := e.ExecuteEvent(context.Background(), "button_hold"); err != nil {
		t.Fatalf("ExecuteEvent(button_hold): %v", err)
	}
	if got := e.Current(); got != state.Off {
		t.Fatalf("expected button_hold to force off, got %q", got)
	}
}

// S4 — Timer auto-cleanup: a timer rule fires once, is then removed, and
// does not fire again.
func TestScenario_S4_TimerAutoCleanup(t *testing.T) {
	e, rules, _ := newScenarioEngine(t, "red")
	sched := scheduler.New(rules, e)
	defer sched.Shutdown()

	id := rules.Insert(rule.Rule{
		From: rule.Wildcard, On: rule.OnTimer, To: "red", Enabled: true,
		TriggerConfig: &rule.TriggerConfig{DelayMs: 10, AutoCleanup: true},
	})
	r, _ := rules.Get(id)
	if err := sched.Arm(r); err != nil {
		t.Fatalf("Arm: %v", err)
	}

	deadline := time.After(500 * time.Millisecond)
	for e.Current() != "red" {
		select {
		case <-deadline:
			t.Fatalf("timer did not fire, current=%q", e.Current())
		case <-time.After(5 * time.Millisecond):
		}
	}

	// give the removal hook time to run, then confirm the rule is gone and
	// no second fire can occur.
	time.Sleep(20 * time.Millisecond)
	if _, ok := rules.Get(id); ok {
		t.Fatalf("expected the timer rule to be removed after auto_cleanup")
	}
}

type stubTool struct {
	response json.RawMessage
}

func (s *stubTool) CallTool(ctx context.Context, name string, args map[string]any) (json.RawMessage, error) {
	return s.response, nil
}

// S5 — Interval + data source: a data source polling every 100ms stores a
// mapped field and fires a transition event; at least three fires must
// land within a 2s deadline.
func TestScenario_S5_IntervalDataSource(t *testing.T) {
	e, rules, varStore := newScenarioEngine(t, "warm")
	varStore.Set("warm_count", 0.0)
	rules.Insert(rule.Rule{
		From: rule.Wildcard, On: "weather_updated", To: "warm", Enabled: true,
		Action: "setData('warm_count', getData('warm_count') + 1)",
	})

	sched := scheduler.New(rules, e)
	defer sched.Shutdown()
	sched.BindTools(&stubTool{response: []byte(`{"temp":70}`)}, varStore)

	sched.RegisterDataSource(scheduler.DataSource{
		Name:            "weather",
		ToolName:        "weather",
		IntervalMs:      100,
		StoreMapping:    map[string]string{"temp": "temperature"},
		FiresTransition: "weather_updated",
	})

	deadline := time.After(2 * time.Second)
	for {
		count, _ := varStore.Get("warm_count")
		if n, ok := count.(float64); ok && n >= 3 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("expected at least 3 warm_count increments within the deadline, got %v", count)
		case <-time.After(10 * time.Millisecond):
		}
	}

	if e.Current() != "warm" {
		t.Fatalf("expected current=warm, got %q", e.Current())
	}
	if v, ok := varStore.Get("temperature"); !ok || v != 70.0 {
		t.Fatalf("expected temperature=70, got %v (ok=%v)", v, ok)
	}
}

type stubRegistry struct {
	defs map[string]pipeline.Definition
}

func (r *stubRegistry) Get(name string) (pipeline.Definition, bool) {
	d, ok := r.defs[name]
	return d, ok
}

// S6 — Pipeline with conditional: setVar then a conditional setState keyed
// off the variable it just set.
func TestScenario_S6_PipelineConditional(t *testing.T) {
	e, _, varStore := newScenarioEngine(t, "green", "red")

	def := pipeline.Definition{
		Name: "P",
		Steps: []pipeline.Step{
			{Kind: pipeline.StepSetVar, Var: "dir", Value: "up"},
			{Kind: pipeline.StepSetState, From: "dir", Map: map[string]string{"up": "green", "down": "red"}},
		},
	}
	registry := &stubRegistry{defs: map[string]pipeline.Definition{"P": def}}
	exec := pipeline.New(registry, e, nil, nil, varStore, nil, nil, nil)
	e.BindPipelines(exec)

	result, err := exec.Run(context.Background(), "P", nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	res, ok := result.(pipeline.Result)
	if !ok {
		t.Fatalf("expected pipeline.Result, got %T", result)
	}
	if !res.Success {
		t.Fatalf("expected pipeline success, got %+v", res)
	}
	if res.Scope["dir"] != "up" {
		t.Fatalf("expected scope[dir]=up, got %v", res.Scope["dir"])
	}
	if got := e.Current(); got != "green" {
		t.Fatalf("expected current=green, got %q", got)
	}
}
