// Package engine implements the Transition Engine (spec.md §4.D) and the
// single mutation lane the concurrency model in spec.md §5 requires: a
// goroutine draining a buffered job channel so that event execution,
// timer fires, data-source store-and-fire, pipeline steps, and tool
// mutations never interleave. Grounded on nexus's cron scheduler
// goroutine-plus-channel shape (internal/cron/scheduler.go) generalized
// from "one ticking loop" to "one serialized job lane".
package engine

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/adaptlight/lampcore/internal/lamp/lamperr"
	"github.com/adaptlight/lampcore/internal/lamp/rule"
	"github.com/adaptlight/lampcore/internal/lamp/sandbox"
	"github.com/adaptlight/lampcore/internal/lamp/state"
	"github.com/adaptlight/lampcore/internal/lamp/vars"
	"github.com/adaptlight/lampcore/internal/observability"
)

// PipelineRunner is the narrow view of the Pipeline Executor the engine
// needs to invoke a rule's attached pipeline. Defined here (rather than
// depending on the pipeline package directly) to avoid an import cycle,
// since the pipeline package calls back into the engine for `setState`
// steps.
type PipelineRunner interface {
	Run(ctx context.Context, name string, seed map[string]any) (any, error)
}

// ExecuteResult is the outcome of execute_event / FireRule (spec.md §4.D
// step 6): whether a rule matched, and a diagnostic distinguishing "no
// candidate rules existed" from "candidates existed but every condition
// failed".
type ExecuteResult struct {
	Matched    bool
	RuleID     int64
	Diagnostic string
}

// Engine owns the current state and serializes every mutation of it
// through a single lane goroutine (spec.md §5).
type Engine struct {
	states *state.Registry
	rules  *rule.Store
	vars   *vars.Store
	logger *observability.Logger
	metrics *observability.Metrics

	pipelines PipelineRunner

	lane    chan func()
	laneRun sync.Once
	done    chan struct{}

	laneMu  sync.Mutex // guards stopped and every send on lane, so Stop and submit never race on a closed channel
	stopped bool

	mu      sync.Mutex // guards current/durationTimer/frameCounter below; written on the lane, also locked by Current and Stop
	current string

	durationTimer *time.Timer
	durationOwner string // the state that armed the pending duration timer

	frameCounter int64
	animStart    time.Time
	rng          *rand.Rand
}

// New creates an engine seeded at the "off" state. Start must be called
// before any event is delivered.
func New(states *state.Registry, rules *rule.Store, varStore *vars.Store, logger *observability.Logger, metrics *observability.Metrics) *Engine {
	return &Engine{
		states:  states,
		rules:   rules,
		vars:    varStore,
		logger:  logger,
		metrics: metrics,
		current: state.Off,
		lane:    make(chan func(), 256),
		done:    make(chan struct{}),
		rng:     rand.New(rand.NewSource(1)),
	}
}

// BindPipelines wires the Pipeline Executor after both are constructed
// (they depend on each other).
func (e *Engine) BindPipelines(p PipelineRunner) {
	e.pipelines = p
}

// Start launches the single-goroutine lane. Safe to call once.
func (e *Engine) Start() {
	e.laneRun.Do(func() {
		go e.runLane()
	})
}

// Stop cancels any pending duration timer, asks the LED sink to render
// off, and closes the lane; queued jobs still drain before it exits
// (spec.md §4.D "shutdown... cancels all scheduled timers and pollers...
// and asks the LED sink to render off").
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.durationTimer != nil {
		e.durationTimer.Stop()
		e.durationTimer = nil
		e.durationOwner = ""
	}
	e.mu.Unlock()

	e.states.Clear()

	e.laneMu.Lock()
	e.stopped = true
	close(e.lane)
	e.laneMu.Unlock()
}

func (e *Engine) runLane() {
	for {
		select {
		case job, ok := <-e.lane:
			if !ok {
				close(e.done)
				return
			}
			job()
		}
	}
}

// submit enqueues fn on the lane and blocks until it has run, returning
// whatever fn returned through the closure. A no-op after Stop — callers
// (notably onDurationElapsed's time.AfterFunc callback, which can fire
// after shutdown) must not panic sending on the closed lane.
func (e *Engine) submit(fn func()) {
	e.laneMu.Lock()
	defer e.laneMu.Unlock()
	if e.stopped {
		return
	}
	result := make(chan struct{})
	e.lane <- func() {
		fn()
		close(result)
	}
	<-result
}

// Current returns the current state name. Safe to call from any
// goroutine; reads are not routed through the lane since a single string
// read needs no serialization beyond the mutex.
func (e *Engine) Current() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// ExecuteEvent runs the full procedure of spec.md §4.D for an ordinary
// event, serialized on the lane.
func (e *Engine) ExecuteEvent(ctx context.Context, event string) (ExecuteResult, error) {
	var res ExecuteResult
	var opErr error
	e.submit(func() {
		res, opErr = e.executeEventLocked(ctx, event, nil)
	})
	return res, opErr
}

// FireRule targets a specific rule id directly (scheduler timer/interval
// fires), bypassing the priority filter but still evaluating the guard,
// action, and pipeline (spec.md §4.E "firing a specific rule").
func (e *Engine) FireRule(ctx context.Context, ruleID int64) (ExecuteResult, error) {
	var res ExecuteResult
	var opErr error
	e.submit(func() {
		res, opErr = e.executeEventLocked(ctx, "", &ruleID)
	})
	return res, opErr
}

// executeEventLocked must only run on the lane goroutine.
func (e *Engine) executeEventLocked(ctx context.Context, event string, targetRuleID *int64) (ExecuteResult, error) {
	e.mu.Lock()
	current := e.current
	e.mu.Unlock()

	var candidates []rule.Rule
	if targetRuleID != nil {
		r, ok := e.rules.Get(*targetRuleID)
		if !ok || !r.Enabled {
			return ExecuteResult{Matched: false, Diagnostic: "targeted rule no longer exists or is disabled"}, nil
		}
		if !r.Matches(current) {
			return ExecuteResult{Matched: false, Diagnostic: "targeted rule's from-state no longer matches current state"}, nil
		}
		candidates = []rule.Rule{r}
	} else {
		for _, r := range e.rules.ListSorted() {
			if r.On != event {
				continue
			}
			if !r.Matches(current) {
				continue
			}
			candidates = append(candidates, r)
		}
	}

	if len(candidates) == 0 {
		if e.metrics != nil {
			e.metrics.RuleFiresTotal.WithLabelValues(event, "no_candidate").Inc()
		}
		return ExecuteResult{Matched: false, Diagnostic: "no candidate rules for this event in the current state"}, nil
	}

	for _, r := range candidates {
		ok, err := e.guardTrue(r)
		if err != nil && e.logger != nil {
			e.logger.Warn(ctx, "guard evaluation failed", "rule_id", r.ID, "error", err)
		}
		if !ok {
			continue
		}
		return e.apply(ctx, r)
	}

	if e.metrics != nil {
		e.metrics.RuleFiresTotal.WithLabelValues(event, "no_condition_true").Inc()
	}
	return ExecuteResult{Matched: false, Diagnostic: "candidate rules existed but every condition failed"}, nil
}

func (e *Engine) guardTrue(r rule.Rule) (bool, error) {
	if r.Condition == "" {
		return true, nil
	}
	expr, err := sandbox.Compile(r.Condition)
	if err != nil {
		return false, err
	}
	return expr.EvalGuard(e.sandboxCtx())
}

func (e *Engine) apply(ctx context.Context, r rule.Rule) (ExecuteResult, error) {
	if r.Action != "" {
		expr, err := sandbox.Compile(r.Action)
		if err != nil {
			return ExecuteResult{}, lamperr.New(lamperr.KindSandboxViolation, "rule.action", err)
		}
		if err := expr.EvalAction(e.sandboxCtx()); err != nil && e.logger != nil {
			e.logger.Warn(ctx, "action evaluation failed", "rule_id", r.ID, "error", err)
		}
	}

	if !e.states.Exists(r.To) {
		return ExecuteResult{Matched: false, RuleID: r.ID, Diagnostic: fmt.Sprintf("target state %q does not exist", r.To)},
			lamperr.New(lamperr.KindUnknownState, "rule.to", fmt.Errorf("unknown state %q", r.To))
	}
	e.transitionLocked(r.To)

	if r.Pipeline != "" && e.pipelines != nil {
		seed := e.vars.Snapshot()
		if _, err := e.pipelines.Run(ctx, r.Pipeline, seed); err != nil && e.logger != nil {
			e.logger.Warn(ctx, "rule pipeline failed", "rule_id", r.ID, "pipeline", r.Pipeline, "error", err)
		}
	}

	if e.metrics != nil {
		e.metrics.TransitionsTotal.WithLabelValues(r.On).Inc()
		e.metrics.RuleFiresTotal.WithLabelValues(r.On, "matched").Inc()
	}

	return ExecuteResult{Matched: true, RuleID: r.ID}, nil
}

// Transition moves directly to a named state without rule evaluation
// (used by the pipeline executor's `setState` step). Must run on the lane.
func (e *Engine) Transition(ctx context.Context, to string) error {
	if !e.states.Exists(to) {
		return lamperr.New(lamperr.KindUnknownState, "engine.Transition", fmt.Errorf("unknown state %q", to))
	}
	e.submit(func() {
		e.transitionLocked(to)
	})
	return nil
}

func (e *Engine) transitionLocked(to string) {
	e.mu.Lock()
	previous := e.current
	e.current = to
	if e.durationTimer != nil && e.durationOwner != to {
		e.durationTimer.Stop()
		e.durationTimer = nil
		e.durationOwner = ""
	}
	e.frameCounter = 0
	e.animStart = time.Now()
	e.mu.Unlock()

	_ = e.states.Enter(to)

	if s, ok := e.states.Get(to); ok && s.DurationMs != nil && *s.DurationMs > 0 {
		e.armDurationTimer(to, *s.DurationMs, s.Then)
	}
	_ = previous
}

func (e *Engine) armDurationTimer(owner string, durationMs int, then string) {
	e.mu.Lock()
	if e.durationTimer != nil {
		e.durationTimer.Stop()
	}
	e.durationOwner = owner
	e.durationTimer = time.AfterFunc(time.Duration(durationMs)*time.Millisecond, func() {
		e.onDurationElapsed(owner, then)
	})
	e.mu.Unlock()
}

// onDurationElapsed implements the state-entry side effect (spec.md
// §4.D): transition directly to `then` if still in the state that armed
// the timer.
func (e *Engine) onDurationElapsed(owner, then string) {
	e.submit(func() {
		e.mu.Lock()
		still := e.current == owner
		e.mu.Unlock()
		if !still || then == "" {
			return
		}
		if !e.states.Exists(then) {
			return
		}
		e.transitionLocked(then)
	})
}

// sandboxCtx builds a fresh sandbox.Context snapshotting the engine's
// current clock and variable store. Colour-flavor fields (r/g/b/t/frame)
// are left zero here — the animation renderer constructs its own context
// per frame (see state.Sink implementations).
func (e *Engine) sandboxCtx() *sandbox.Context {
	now := time.Now()
	return &sandbox.Context{
		Data: e.vars,
		Time: sandbox.TimeSnapshot{
			Hour:      now.Hour(),
			Minute:    now.Minute(),
			Second:    now.Second(),
			Weekday:   int(now.Weekday()),
			Timestamp: now.Unix(),
		},
		Rand: e.rng,
	}
}
