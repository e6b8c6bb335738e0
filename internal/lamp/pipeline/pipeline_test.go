package pipeline

import (
	"context"
	"testing"

	"github.com/adaptlight/lampcore/internal/lamp/vars"
)

type memRegistry struct {
	defs map[string]Definition
}

func (r *memRegistry) Get(name string) (Definition, bool) {
	d, ok := r.defs[name]
	return d, ok
}

type stubStates struct {
	transitions []string
}

func (s *stubStates) Transition(ctx context.Context, to string) error {
	s.transitions = append(s.transitions, to)
	return nil
}

func TestRun_SetVarAndInterpolation(t *testing.T) {
	reg := &memRegistry{defs: map[string]Definition{
		"greet": {Name: "greet", Steps: []Step{
			{Kind: StepSetVar, Var: "greeting", Value: "hello {{name}}"},
		}},
	}}
	exec := New(reg, nil, nil, nil, vars.New(), nil, nil, nil)

	out, err := exec.Run(context.Background(), "greet", map[string]any{"name": "lamp"})
	res, _ := out.(Result)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got %q", res.Error)
	}
	if res.Scope["greeting"] != "hello lamp" {
		t.Fatalf("expected interpolated greeting, got %v", res.Scope["greeting"])
	}
}

func TestRun_IfSkipsStepWhenFalse(t *testing.T) {
	states := &stubStates{}
	reg := &memRegistry{defs: map[string]Definition{
		"maybe": {Name: "maybe", Steps: []Step{
			{Kind: StepSetState, If: "1 == 2", State: "on"},
		}},
	}}
	exec := New(reg, states, nil, nil, vars.New(), nil, nil, nil)

	out, err := exec.Run(context.Background(), "maybe", nil)
	res, _ := out.(Result)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success")
	}
	if len(states.transitions) != 0 {
		t.Fatalf("expected the if-guarded step to be skipped, got transitions %v", states.transitions)
	}
	if !res.Diagnostics[0].Skipped {
		t.Fatalf("expected diagnostic to mark the step skipped")
	}
}

func TestRun_SetStateFromMap(t *testing.T) {
	states := &stubStates{}
	reg := &memRegistry{defs: map[string]Definition{
		"route": {Name: "route", Steps: []Step{
			{Kind: StepSetVar, Var: "mode", Value: "party"},
			{Kind: StepSetState, From: "mode", Map: map[string]string{"party": "rainbow", "calm": "dim"}},
		}},
	}}
	exec := New(reg, states, nil, nil, vars.New(), nil, nil, nil)

	if _, err := exec.Run(context.Background(), "route", nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(states.transitions) != 1 || states.transitions[0] != "rainbow" {
		t.Fatalf("expected a transition to rainbow, got %v", states.transitions)
	}
}

func TestRun_NestedPipelineDepthExceeded(t *testing.T) {
	reg := &memRegistry{defs: map[string]Definition{
		"loop": {Name: "loop", Steps: []Step{
			{Kind: StepRun, Pipeline: "loop"},
		}},
	}}
	exec := New(reg, nil, nil, nil, vars.New(), nil, nil, nil)

	out, err := exec.Run(context.Background(), "loop", nil)
	res, _ := out.(Result)
	if err == nil && res.Success {
		t.Fatalf("expected the recursive pipeline to fail on max call depth")
	}
}

func TestRun_FailingStepAbortsPipeline(t *testing.T) {
	reg := &memRegistry{defs: map[string]Definition{
		"broken": {Name: "broken", Steps: []Step{
			{Kind: StepSetVar, Var: "a", Value: "1"},
			{Kind: "unknown_kind"},
			{Kind: StepSetVar, Var: "b", Value: "2"},
		}},
	}}
	exec := New(reg, nil, nil, nil, vars.New(), nil, nil, nil)

	out, err := exec.Run(context.Background(), "broken", nil)
	res, _ := out.(Result)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Success {
		t.Fatalf("expected pipeline to fail on the unknown step kind")
	}
	if _, ok := res.Scope["b"]; ok {
		t.Fatalf("expected the pipeline to abort before the step after the failure")
	}
}
