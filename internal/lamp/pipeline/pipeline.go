// Package pipeline implements the Pipeline Executor (spec.md §4.F): a
// step interpreter over a per-invocation scope, with fetch/llm/setState/
// setVar/wait/run steps, {{path}} interpolation, and a bounded call depth
// for recursive `run` steps. Grounded on nexus's cron.Scheduler job-kind
// switch (internal/cron/job.go — one struct, one Kind string, a
// switch-per-execution) generalized to a step list instead of a single
// job.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/adaptlight/lampcore/internal/lamp/lamperr"
	"github.com/adaptlight/lampcore/internal/lamp/sandbox"
	"github.com/adaptlight/lampcore/internal/lamp/vars"
	"github.com/adaptlight/lampcore/internal/observability"
)

// Step kinds (spec.md §4.F).
const (
	StepFetch    = "fetch"
	StepLLM      = "llm"
	StepSetState = "setState"
	StepSetVar   = "setVar"
	StepWait     = "wait"
	StepRun      = "run"
)

// Step is one instruction of a pipeline.
type Step struct {
	Kind string `json:"kind"`
	If   string `json:"if,omitempty"`

	// fetch
	API    string         `json:"api,omitempty"`
	Params map[string]any `json:"params,omitempty"`
	As     string         `json:"as,omitempty"`

	// llm
	Prompt string `json:"prompt,omitempty"`
	System string `json:"system,omitempty"`
	Input  string `json:"input,omitempty"`

	// setState
	State string            `json:"state,omitempty"`
	From  string            `json:"from,omitempty"`
	Map   map[string]string `json:"map,omitempty"`

	// setVar
	Var   string `json:"var,omitempty"`
	Value string `json:"value,omitempty"`

	// wait
	Ms int `json:"ms,omitempty"`

	// run
	Pipeline string `json:"pipeline,omitempty"`
}

// Definition is a named, registered pipeline.
type Definition struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Steps       []Step `json:"steps"`
}

// StepDiagnostic records one step's outcome for the result's diagnostic trail.
type StepDiagnostic struct {
	Index        int      `json:"index"`
	Kind         string   `json:"kind"`
	Skipped      bool     `json:"skipped,omitempty"`
	Error        string   `json:"error,omitempty"`
	MissingPaths []string `json:"missing_paths,omitempty"`
}

// Result is the outcome of a pipeline run (spec.md §4.F "return value").
type Result struct {
	RunID       string                 `json:"run_id"`
	Pipeline    string                 `json:"pipeline"`
	Success     bool                   `json:"success"`
	Scope       map[string]any         `json:"scope"`
	Diagnostics []StepDiagnostic       `json:"diagnostics"`
	Error       string                 `json:"error,omitempty"`
}

// maxCallDepth bounds recursive `run` steps (spec.md §4.F).
const maxCallDepth = 16

// StateSetter is the narrow engine surface the `setState` step needs:
// a direct, rule-free transition.
type StateSetter interface {
	Transition(ctx context.Context, to string) error
}

// APIExecutor is the narrow surface the `fetch` step calls.
type APIExecutor interface {
	Call(ctx context.Context, api string, params map[string]any) (any, error)
}

// LLMParser is the narrow surface the `llm` step calls.
type LLMParser interface {
	Parse(ctx context.Context, system, prompt string) (string, error)
}

// Registry stores named pipeline definitions, persisted the same way the
// memory store is (a single JSON file, atomic writes) — see registry.go.
type Registry interface {
	Get(name string) (Definition, bool)
}

// Executor runs pipelines (spec.md §4.F).
type Executor struct {
	registry Registry
	states   StateSetter
	apis     APIExecutor
	llm      LLMParser
	vars     *vars.Store
	memory   MemoryView
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// MemoryView is the read-only memory snapshot seeded into a pipeline's
// scope as `memory`.
type MemoryView interface {
	List() map[string]string
}

// New constructs an Executor. apis, llm, and memory may be nil if the
// caller's pipelines never use fetch/llm steps or memory interpolation;
// calling the corresponding step kind without one reports a failure
// rather than panicking.
func New(registry Registry, states StateSetter, apis APIExecutor, llm LLMParser, varStore *vars.Store, memory MemoryView, logger *observability.Logger, metrics *observability.Metrics) *Executor {
	return &Executor{registry: registry, states: states, apis: apis, llm: llm, vars: varStore, memory: memory, logger: logger, metrics: metrics}
}

// Run executes the named pipeline with a fresh scope seeded from seed
// (typically a snapshot of the engine's variable store) plus a `memory`
// sub-object. It implements engine.PipelineRunner for the engine's
// rule.Pipeline invocation.
func (e *Executor) Run(ctx context.Context, name string, seed map[string]any) (any, error) {
	def, ok := e.registry.Get(name)
	if !ok {
		return nil, lamperr.New(lamperr.KindNotFound, "pipeline.Run", fmt.Errorf("pipeline %q not found", name))
	}
	scope := e.seedScope(seed)
	return e.run(ctx, def, scope, 0)
}

func (e *Executor) seedScope(seed map[string]any) map[string]any {
	scope := make(map[string]any, len(seed)+1)
	for k, v := range seed {
		scope[k] = v
	}
	if e.memory != nil {
		scope["memory"] = anyMap(e.memory.List())
	} else {
		scope["memory"] = map[string]any{}
	}
	return scope
}

func anyMap(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (e *Executor) run(ctx context.Context, def Definition, scope map[string]any, depth int) (Result, error) {
	runID := uuid.NewString()
	res := Result{RunID: runID, Pipeline: def.Name, Success: true}

	if depth > maxCallDepth {
		res.Success = false
		res.Error = "maximum pipeline call depth exceeded"
		return res, lamperr.New(lamperr.KindPipelineDepthExceeded, "pipeline.run", fmt.Errorf("depth %d exceeds max %d", depth, maxCallDepth))
	}

	for i, step := range def.Steps {
		diag := StepDiagnostic{Index: i, Kind: step.Kind}

		if step.If != "" {
			ok, _ := e.evalGuard(step.If, scope)
			if !ok {
				diag.Skipped = true
				res.Diagnostics = append(res.Diagnostics, diag)
				continue
			}
		}

		start := time.Now()
		err := e.runStep(ctx, step, scope, depth, &diag)
		if e.metrics != nil {
			e.metrics.PipelineStepDuration.WithLabelValues(step.Kind).Observe(time.Since(start).Seconds())
		}
		if len(diag.MissingPaths) > 0 && e.logger != nil {
			e.logger.Warn(ctx, "pipeline step referenced missing path", "pipeline", def.Name, "step_index", i, "step_kind", step.Kind, "paths", diag.MissingPaths)
		}
		if err != nil {
			diag.Error = err.Error()
			res.Diagnostics = append(res.Diagnostics, diag)
			res.Success = false
			res.Error = err.Error()
			if e.logger != nil {
				e.logger.Warn(ctx, "pipeline step failed", "pipeline", def.Name, "step_index", i, "step_kind", step.Kind, "error", err)
			}
			break
		}
		res.Diagnostics = append(res.Diagnostics, diag)
	}

	res.Scope = scope
	if e.metrics != nil {
		outcome := "success"
		if !res.Success {
			outcome = "failure"
		}
		e.metrics.PipelineRunsTotal.WithLabelValues(def.Name, outcome).Inc()
	}
	return res, nil
}

func (e *Executor) runStep(ctx context.Context, step Step, scope map[string]any, depth int, diag *StepDiagnostic) error {
	switch step.Kind {
	case StepFetch:
		return e.stepFetch(ctx, step, scope, diag)
	case StepLLM:
		return e.stepLLM(ctx, step, scope, diag)
	case StepSetState:
		return e.stepSetState(ctx, step, scope, diag)
	case StepSetVar:
		return e.stepSetVar(step, scope, diag)
	case StepWait:
		return e.stepWait(ctx, step)
	case StepRun:
		return e.stepRun(ctx, step, scope, depth)
	default:
		return fmt.Errorf("unknown pipeline step kind %q", step.Kind)
	}
}

func (e *Executor) stepFetch(ctx context.Context, step Step, scope map[string]any, diag *StepDiagnostic) error {
	if e.apis == nil {
		return fmt.Errorf("fetch step requires an API executor")
	}
	params, missing := interpolateMap(step.Params, scope)
	diag.MissingPaths = append(diag.MissingPaths, missing...)
	result, err := e.apis.Call(ctx, step.API, params)
	if err != nil {
		return err
	}
	if step.As != "" {
		scope[step.As] = result
	}
	return nil
}

func (e *Executor) stepLLM(ctx context.Context, step Step, scope map[string]any, diag *StepDiagnostic) error {
	if e.llm == nil {
		return fmt.Errorf("llm step requires a parser")
	}
	input := step.Input
	if input == "" {
		input = step.Prompt
	}
	resolved, missing := interpolate(input, scope)
	diag.MissingPaths = append(diag.MissingPaths, missing...)
	out, err := e.llm.Parse(ctx, step.System, resolved)
	if err != nil {
		return err
	}
	if step.As != "" {
		scope[step.As] = out
	}
	return nil
}

func (e *Executor) stepSetState(ctx context.Context, step Step, scope map[string]any, diag *StepDiagnostic) error {
	if e.states == nil {
		return fmt.Errorf("setState step requires a state setter")
	}
	if step.State != "" {
		resolved, missing := interpolate(step.State, scope)
		diag.MissingPaths = append(diag.MissingPaths, missing...)
		return e.states.Transition(ctx, resolved)
	}
	if step.From != "" && step.Map != nil {
		value, ok := lookupPath(scope, step.From)
		if !ok {
			diag.MissingPaths = append(diag.MissingPaths, step.From)
		}
		key := fmt.Sprintf("%v", value)
		if target, ok := step.Map[key]; ok {
			return e.states.Transition(ctx, target)
		}
		return nil // unmapped value: no-op, per spec
	}
	return fmt.Errorf("setState step requires either state or from+map")
}

func (e *Executor) stepSetVar(step Step, scope map[string]any, diag *StepDiagnostic) error {
	if step.Var == "" {
		return fmt.Errorf("setVar step requires var")
	}
	resolved, missing := interpolate(step.Value, scope)
	diag.MissingPaths = append(diag.MissingPaths, missing...)
	scope[step.Var] = resolved
	if e.vars != nil {
		e.vars.Set(step.Var, resolved)
	}
	return nil
}

func (e *Executor) stepWait(ctx context.Context, step Step) error {
	timer := time.NewTimer(time.Duration(step.Ms) * time.Millisecond)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Executor) stepRun(ctx context.Context, step Step, scope map[string]any, depth int) error {
	def, ok := e.registry.Get(step.Pipeline)
	if !ok {
		return fmt.Errorf("pipeline %q not found", step.Pipeline)
	}
	res, err := e.run(ctx, def, scope, depth+1)
	if err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("nested pipeline %q failed: %s", step.Pipeline, res.Error)
	}
	return nil
}

func (e *Executor) evalGuard(expr string, scope map[string]any) (bool, error) {
	compiled, err := sandbox.Compile(expr)
	if err != nil {
		return false, err
	}
	return compiled.EvalGuard(&sandbox.Context{Data: scopeDataStore{scope}})
}

// scopeDataStore adapts a plain scope map to sandbox.DataStore so `if`
// conditions can read getData() against pipeline scope rather than the
// engine's variable store.
type scopeDataStore struct {
	scope map[string]any
}

func (s scopeDataStore) Get(key string) (any, bool) {
	v, ok := s.scope[key]
	return v, ok
}

func (s scopeDataStore) Set(key string, value any) {
	s.scope[key] = value
}

func interpolateMap(m map[string]any, scope map[string]any) (map[string]any, []string) {
	out := make(map[string]any, len(m))
	var missing []string
	for k, v := range m {
		if s, ok := v.(string); ok {
			resolved, miss := interpolate(s, scope)
			out[k] = resolved
			missing = append(missing, miss...)
		} else {
			out[k] = v
		}
	}
	return out, missing
}

// interpolate replaces every {{path}} substring with the stringified
// dotted lookup against scope (spec.md §4.F). Missing paths substitute an
// empty string and are returned so the caller can fold them into the
// step's diagnostic.
func interpolate(s string, scope map[string]any) (string, []string) {
	var sb strings.Builder
	var missing []string
	rest := s
	for {
		start := strings.Index(rest, "{{")
		if start < 0 {
			sb.WriteString(rest)
			break
		}
		end := strings.Index(rest[start:], "}}")
		if end < 0 {
			sb.WriteString(rest)
			break
		}
		end += start
		sb.WriteString(rest[:start])
		path := strings.TrimSpace(rest[start+2 : end])
		value, ok := lookupPath(scope, path)
		if !ok {
			missing = append(missing, path)
		}
		sb.WriteString(fmt.Sprintf("%v", value))
		rest = rest[end+2:]
	}
	return sb.String(), missing
}

// lookupPath resolves a dotted path against scope, reporting whether the
// path actually resolved to something. Paths rooted at "memory." look up
// the memory sub-object; everything else walks nested maps, falling back
// to gjson for values that are raw JSON (e.g. fetch step results) rather
// than Go maps. A miss returns ("", false) — the caller substitutes the
// empty string and surfaces a diagnostic (spec.md §4.F "missing paths
// substitute an empty string and emit a diagnostic").
func lookupPath(scope map[string]any, path string) (any, bool) {
	if path == "" {
		return "", false
	}
	parts := strings.Split(path, ".")
	var cur any = scope
	for i, part := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			if raw, ok := cur.(string); ok {
				result := gjson.Get(raw, strings.Join(parts[i:], "."))
				if !result.Exists() {
					return "", false
				}
				return result.Value(), true
			}
			return "", false
		}
		next, ok := m[part]
		if !ok {
			return "", false
		}
		cur = next
	}
	return cur, true
}
