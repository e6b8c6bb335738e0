// Package scheduler implements the Trigger Scheduler (spec.md §4.E): arms
// per-rule wall-clock triggers (timer/interval/schedule) and per-data-source
// periodic pollers, producing events/targeted fires for the Transition
// Engine. Grounded on nexus's internal/cron.Scheduler shape — functional
// options, construction via New and an explicit Shutdown, a WithNow clock override for
// tests — generalized from "one ticking loop over static cron jobs" to
// "dynamically armed per-rule timers with cancellation on removal".
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/adaptlight/lampcore/internal/lamp/engine"
	"github.com/adaptlight/lampcore/internal/lamp/rule"
	"github.com/adaptlight/lampcore/internal/observability"
)

// RuleFirer is the narrow engine surface the scheduler drives.
type RuleFirer interface {
	FireRule(ctx context.Context, ruleID int64) (engine.ExecuteResult, error)
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the scheduler's logger.
func WithLogger(logger *observability.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics wires Prometheus metrics.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(s *Scheduler) {
		if metrics != nil {
			s.metrics = metrics
		}
	}
}

// WithNow overrides the clock, for deterministic tests.
func WithNow(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

type armedTimer struct {
	timer *time.Timer
}

// Scheduler arms and cancels per-rule timers and owns the data-source
// poller goroutines.
type Scheduler struct {
	rules  *rule.Store
	engine RuleFirer
	logger *observability.Logger
	metrics *observability.Metrics
	now    func() time.Time

	mu     sync.Mutex
	timers map[int64]*armedTimer

	dsMu        sync.Mutex
	dataSources map[string]*DataSource
	dsCancel    map[string]context.CancelFunc
	fetcher     ToolExecutor
	varStore    DataVarStore

	wg sync.WaitGroup
}

// New creates a scheduler wired to the rule store and the engine's rule
// firer. The rule store's removal hook is overwritten to also cancel the
// corresponding timer — callers must not separately install a removal
// hook that needs to coexist with this one without chaining it first.
func New(rules *rule.Store, engine RuleFirer, opts ...Option) *Scheduler {
	s := &Scheduler{
		rules:       rules,
		engine:      engine,
		now:         time.Now,
		timers:      make(map[int64]*armedTimer),
		dataSources: make(map[string]*DataSource),
		dsCancel:    make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(s)
	}
	rules.OnRemove(func(removed rule.Rule) {
		s.cancelTimer(removed.ID)
	})
	return s
}

// BindTools wires the tool executor and variable store used by data-source
// polling, set after construction to avoid an import cycle with the tools
// package.
func (s *Scheduler) BindTools(fetcher ToolExecutor, varStore DataVarStore) {
	s.fetcher = fetcher
	s.varStore = varStore
}

// Arm registers a timer/interval/schedule rule. Call after the rule has
// been inserted into the store (so it carries a real id). Rules whose `on`
// is not one of the scheduler-owned kinds are ignored.
func (s *Scheduler) Arm(r rule.Rule) error {
	if !rule.IsTimeBased(r.On) {
		return nil
	}
	if r.TriggerConfig == nil {
		return fmt.Errorf("rule %d has on=%q but no trigger_config", r.ID, r.On)
	}
	switch r.On {
	case rule.OnTimer:
		s.armAfter(r.ID, time.Duration(r.TriggerConfig.DelayMs)*time.Millisecond, s.onTimerFire)
	case rule.OnInterval:
		s.armAfter(r.ID, time.Duration(r.TriggerConfig.DelayMs)*time.Millisecond, s.onIntervalFire)
	case rule.OnSchedule:
		next, err := nextOccurrence(r.TriggerConfig.Hour, r.TriggerConfig.Minute, s.now())
		if err != nil {
			return err
		}
		s.armAfter(r.ID, next.Sub(s.now()), s.onScheduleFire)
	}
	if s.metrics != nil {
		s.metrics.ActiveTimers.Set(float64(s.timerCount()))
	}
	return nil
}

func (s *Scheduler) timerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func (s *Scheduler) armAfter(ruleID int64, d time.Duration, onFire func(int64)) {
	s.mu.Lock()
	if existing, ok := s.timers[ruleID]; ok {
		existing.timer.Stop()
	}
	if d < 0 {
		d = 0
	}
	t := time.AfterFunc(d, func() { onFire(ruleID) })
	s.timers[ruleID] = &armedTimer{timer: t}
	s.mu.Unlock()
}

func (s *Scheduler) cancelTimer(ruleID int64) {
	s.mu.Lock()
	if t, ok := s.timers[ruleID]; ok {
		t.timer.Stop()
		delete(s.timers, ruleID)
	}
	n := len(s.timers)
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.ActiveTimers.Set(float64(n))
	}
}

func (s *Scheduler) fire(ctx context.Context, ruleID int64) {
	if s.engine == nil {
		return
	}
	if _, err := s.engine.FireRule(ctx, ruleID); err != nil && s.logger != nil {
		s.logger.Warn(ctx, "scheduled rule fire failed", "rule_id", ruleID, "error", err)
	}
}

// onTimerFire implements the `timer` kind: fire once, then auto_cleanup
// removes the rule (which in turn cancels the now-stale timer entry via
// the removal hook; harmless, since the timer already fired).
func (s *Scheduler) onTimerFire(ruleID int64) {
	ctx := context.Background()
	r, ok := s.rules.Get(ruleID)
	if !ok {
		return
	}
	s.fire(ctx, ruleID)
	s.mu.Lock()
	delete(s.timers, ruleID)
	s.mu.Unlock()
	if r.TriggerConfig != nil && r.TriggerConfig.AutoCleanup {
		s.rules.Remove(ruleID)
	}
}

// onIntervalFire implements the `interval` kind: fire, then re-arm at the
// same delay while the rule still exists and repeat holds.
func (s *Scheduler) onIntervalFire(ruleID int64) {
	ctx := context.Background()
	r, ok := s.rules.Get(ruleID)
	if !ok {
		return
	}
	s.fire(ctx, ruleID)
	if r.TriggerConfig != nil && r.TriggerConfig.Repeat {
		if _, stillExists := s.rules.Get(ruleID); stillExists {
			s.armAfter(ruleID, time.Duration(r.TriggerConfig.DelayMs)*time.Millisecond, s.onIntervalFire)
		}
	}
}

// onScheduleFire implements the `schedule` kind: fire at hour:minute, then
// re-arm for tomorrow iff repeat_daily, else remove the rule.
func (s *Scheduler) onScheduleFire(ruleID int64) {
	ctx := context.Background()
	r, ok := s.rules.Get(ruleID)
	if !ok {
		return
	}
	s.fire(ctx, ruleID)
	if r.TriggerConfig != nil && r.TriggerConfig.RepeatDaily {
		next, err := nextOccurrence(r.TriggerConfig.Hour, r.TriggerConfig.Minute, s.now())
		if err == nil {
			if _, stillExists := s.rules.Get(ruleID); stillExists {
				s.armAfter(ruleID, next.Sub(s.now()), s.onScheduleFire)
			}
		}
		return
	}
	s.rules.Remove(ruleID)
}

// nextOccurrence computes the next wall-clock instant at hour:minute:00
// strictly after now, using robfig/cron's standard-spec schedule
// arithmetic rather than hand-rolled date math.
func nextOccurrence(hour, minute int, now time.Time) (time.Time, error) {
	spec := fmt.Sprintf("%d %d * * *", minute, hour)
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse schedule %q: %w", spec, err)
	}
	return schedule.Next(now), nil
}

// Shutdown stops every armed timer and data-source poller.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	for _, t := range s.timers {
		t.timer.Stop()
	}
	s.timers = make(map[int64]*armedTimer)
	s.mu.Unlock()

	s.dsMu.Lock()
	for _, cancel := range s.dsCancel {
		cancel()
	}
	s.dsCancel = make(map[string]context.CancelFunc)
	s.dsMu.Unlock()
	s.wg.Wait()
}
