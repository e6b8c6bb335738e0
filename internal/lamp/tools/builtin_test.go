package tools

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/adaptlight/lampcore/internal/lamp/engine"
	"github.com/adaptlight/lampcore/internal/lamp/memory"
	"github.com/adaptlight/lampcore/internal/lamp/pipeline"
	"github.com/adaptlight/lampcore/internal/lamp/rule"
	"github.com/adaptlight/lampcore/internal/lamp/scheduler"
	"github.com/adaptlight/lampcore/internal/lamp/state"
	"github.com/adaptlight/lampcore/internal/lamp/vars"
)

func newTestRegistry(t *testing.T) (*Registry, Deps) {
	t.Helper()
	states := state.NewRegistry()
	for _, name := range []string{state.Off, state.On} {
		if err := states.Add(state.State{Name: name, R: state.Lit(0), G: state.Lit(0), B: state.Lit(0)}); err != nil {
			t.Fatalf("seed state %q: %v", name, err)
		}
	}
	rules := rule.NewStore()
	varStore := vars.New()
	e := engine.New(states, rules, varStore, nil, nil)

	sched := scheduler.New(rules, e)
	e.Start()
	t.Cleanup(e.Stop)
	t.Cleanup(sched.Shutdown)

	memPath := filepath.Join(t.TempDir(), "memory.json")
	memStore, err := memory.Open(memPath)
	if err != nil {
		t.Fatalf("memory.Open: %v", err)
	}

	pipePath := filepath.Join(t.TempDir(), "pipelines.json")
	pipeReg, err := pipeline.OpenRegistry(pipePath)
	if err != nil {
		t.Fatalf("pipeline.OpenRegistry: %v", err)
	}
	pipeExec := pipeline.New(pipeReg, e, nil, nil, varStore, memStore, nil, nil)
	e.BindPipelines(pipeExec)

	deps := Deps{
		Engine:       e,
		States:       states,
		Rules:        rules,
		Vars:         varStore,
		Memory:       memStore,
		Pipelines:    pipeReg,
		PipelineExec: pipeExec,
		APIs:         nil,
		Scheduler:    sched,
		CustomTools:  NewCustomToolRegistry(nil, 0),
		Signal:       NewSignal(),
	}
	return BuildRegistry(deps), deps
}

func callTool(t *testing.T, reg *Registry, name string, params any) *Result {
	t.Helper()
	raw, err := json.Marshal(params)
	if err != nil {
		t.Fatalf("marshal params: %v", err)
	}
	res, err := reg.Execute(context.Background(), name, raw)
	if err != nil {
		t.Fatalf("Execute(%s): %v", name, err)
	}
	return res
}

func TestCreateAndDeleteState_Roundtrip(t *testing.T) {
	reg, deps := newTestRegistry(t)
	before := len(deps.States.List())

	res := callTool(t, reg, "createState", map[string]any{"name": "red", "r": 255, "g": 0, "b": 0})
	if res.IsError {
		t.Fatalf("createState failed: %s", res.Content)
	}
	if !deps.States.Exists("red") {
		t.Fatalf("expected state red to exist")
	}

	res = callTool(t, reg, "deleteState", map[string]any{"name": "red"})
	if res.IsError {
		t.Fatalf("deleteState failed: %s", res.Content)
	}
	if len(deps.States.List()) != before {
		t.Fatalf("expected registry back to its prior size, got %d vs %d", len(deps.States.List()), before)
	}
}

func TestDeleteState_RejectsReserved(t *testing.T) {
	reg, _ := newTestRegistry(t)
	res := callTool(t, reg, "deleteState", map[string]any{"name": "off"})
	if !res.IsError {
		t.Fatalf("expected an error deleting the reserved off state")
	}
}

func TestAppendAndDeleteRules_Roundtrip(t *testing.T) {
	reg, deps := newTestRegistry(t)
	before := len(deps.Rules.List())

	res := callTool(t, reg, "appendRules", map[string]any{
		"rules": []map[string]any{{"from": "off", "on": "button_click", "to": "on", "priority": 0, "enabled": true}},
	})
	if res.IsError {
		t.Fatalf("appendRules failed: %s", res.Content)
	}
	if len(deps.Rules.List()) != before+1 {
		t.Fatalf("expected one new rule")
	}

	res = callTool(t, reg, "deleteRules", map[string]any{"from": "off", "on": "button_click"})
	if res.IsError {
		t.Fatalf("deleteRules failed: %s", res.Content)
	}
	if len(deps.Rules.List()) != before {
		t.Fatalf("expected rule list back to its prior size")
	}
}

func TestSetVariable_VisibleInGetVariables(t *testing.T) {
	reg, _ := newTestRegistry(t)
	res := callTool(t, reg, "setVariable", map[string]any{"key": "counter", "value": 3.0})
	if res.IsError {
		t.Fatalf("setVariable failed: %s", res.Content)
	}
	res = callTool(t, reg, "getVariables", map[string]any{})
	if res.IsError {
		t.Fatalf("getVariables failed: %s", res.Content)
	}
	var snapshot map[string]any
	if err := json.Unmarshal([]byte(res.Content), &snapshot); err != nil {
		t.Fatalf("decode getVariables: %v", err)
	}
	if snapshot["counter"] != 3.0 {
		t.Fatalf("expected counter=3, got %v", snapshot["counter"])
	}
}

func TestRememberRecallForget(t *testing.T) {
	reg, _ := newTestRegistry(t)
	callTool(t, reg, "remember", map[string]any{"key": "name", "value": "lamp"})

	res := callTool(t, reg, "recall", map[string]any{"key": "name"})
	if res.IsError || res.Content != "lamp" {
		t.Fatalf("expected recall to return lamp, got %q (error=%v)", res.Content, res.IsError)
	}

	res = callTool(t, reg, "forgetMemory", map[string]any{"key": "name"})
	if res.IsError {
		t.Fatalf("forgetMemory failed: %s", res.Content)
	}
	res = callTool(t, reg, "recall", map[string]any{"key": "name"})
	if !res.IsError {
		t.Fatalf("expected recall to fail after forgetting")
	}
}

func TestDone_RunsSafetyPass(t *testing.T) {
	reg, deps := newTestRegistry(t)
	callTool(t, reg, "createState", map[string]any{"name": "alert", "r": 255, "g": 0, "b": 0})

	res := callTool(t, reg, "done", map[string]any{"message": "all set"})
	if res.IsError {
		t.Fatalf("done failed: %s", res.Content)
	}
	msg, isDone := deps.Signal.IsDone()
	if !isDone || msg != "all set" {
		t.Fatalf("expected signal done with message %q, got done=%v msg=%q", "all set", isDone, msg)
	}

	hasExit := false
	for _, r := range deps.Rules.List() {
		if r.From == "alert" {
			hasExit = true
		}
	}
	if !hasExit {
		t.Fatalf("expected the safety pass to add an exit rule for state alert")
	}
}

func TestAskUser_RecordsPendingQuestion(t *testing.T) {
	reg, deps := newTestRegistry(t)
	res := callTool(t, reg, "askUser", map[string]any{"question": "what color?"})
	if res.IsError {
		t.Fatalf("askUser failed: %s", res.Content)
	}
	q, has := deps.Signal.TakeQuestion()
	if !has || q != "what color?" {
		t.Fatalf("expected pending question, got %q (has=%v)", q, has)
	}
}

func TestGetPattern_UnknownNameErrors(t *testing.T) {
	reg, _ := newTestRegistry(t)
	res := callTool(t, reg, "getPattern", map[string]any{"name": "nonexistent"})
	if !res.IsError {
		t.Fatalf("expected an error for an unknown pattern")
	}
}
