package scheduler

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/adaptlight/lampcore/internal/lamp/engine"
	"github.com/adaptlight/lampcore/internal/lamp/rule"
	"github.com/adaptlight/lampcore/internal/lamp/state"
	"github.com/adaptlight/lampcore/internal/lamp/vars"
)

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	states := state.NewRegistry()
	for _, name := range []string{state.Off, state.On} {
		if err := states.Add(state.State{Name: name, R: state.Lit(0), G: state.Lit(0), B: state.Lit(0)}); err != nil {
			t.Fatalf("seed state %q: %v", name, err)
		}
	}
	rules := rule.NewStore()
	e := engine.New(states, rules, vars.New(), nil, nil)
	e.Start()
	t.Cleanup(e.Stop)
	return e
}

func TestArm_TimerFiresOnce(t *testing.T) {
	states := state.NewRegistry()
	for _, name := range []string{state.Off, state.On} {
		states.Add(state.State{Name: name, R: state.Lit(0), G: state.Lit(0), B: state.Lit(0)})
	}
	rules := rule.NewStore()
	e := engine.New(states, rules, vars.New(), nil, nil)
	e.Start()
	defer e.Stop()

	id := rules.Insert(rule.Rule{From: state.Off, On: rule.OnTimer, To: state.On, Enabled: true,
		TriggerConfig: &rule.TriggerConfig{DelayMs: 10}})
	r, _ := rules.Get(id)

	s := New(rules, e)
	if err := s.Arm(r); err != nil {
		t.Fatalf("Arm: %v", err)
	}
	defer s.Shutdown()

	deadline := time.After(500 * time.Millisecond)
	for e.Current() != state.On {
		select {
		case <-deadline:
			t.Fatalf("timer did not fire, current=%q", e.Current())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestArm_ScheduleComputesNextOccurrence(t *testing.T) {
	e := newTestEngine(t)
	rules := rule.NewStore()
	fixedNow := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	s := New(rules, e, WithNow(func() time.Time { return fixedNow }))
	defer s.Shutdown()

	r := rule.Rule{ID: 1, From: state.Off, On: rule.OnSchedule, To: state.On, Enabled: true,
		TriggerConfig: &rule.TriggerConfig{Hour: 9, Minute: 30}}
	if err := s.Arm(r); err != nil {
		t.Fatalf("Arm: %v", err)
	}
	// 09:30 has already passed for fixedNow=10:00, so the next occurrence
	// must be tomorrow, not today.
	next, err := nextOccurrence(9, 30, fixedNow)
	if err != nil {
		t.Fatalf("nextOccurrence: %v", err)
	}
	if !next.After(fixedNow.Add(23 * time.Hour)) {
		t.Fatalf("expected next occurrence to roll to the next day, got %v", next)
	}
}

type stubFetcher struct {
	response json.RawMessage
	err      error
	calls    int
}

func (f *stubFetcher) CallTool(ctx context.Context, name string, args map[string]any) (json.RawMessage, error) {
	f.calls++
	return f.response, f.err
}

type stubVarStore struct {
	values map[string]any
}

func (s *stubVarStore) Set(key string, value any) {
	if s.values == nil {
		s.values = make(map[string]any)
	}
	s.values[key] = value
}

func TestTriggerDataSource_StoresMappedValues(t *testing.T) {
	e := newTestEngine(t)
	rules := rule.NewStore()
	s := New(rules, e)
	defer s.Shutdown()

	fetcher := &stubFetcher{response: []byte(`{"current":{"temp_c":21.5}}`)}
	store := &stubVarStore{}
	s.BindTools(fetcher, store)

	s.RegisterDataSource(DataSource{
		Name:         "weather",
		ToolName:     "weather_api",
		IntervalMs:   60000,
		StoreMapping: map[string]string{"current.temp_c": "outside_temp"},
	})

	if err := s.TriggerDataSource(context.Background(), "weather"); err != nil {
		t.Fatalf("TriggerDataSource: %v", err)
	}
	if fetcher.calls == 0 {
		t.Fatalf("expected the fetch tool to be called")
	}
	if v, ok := store.values["outside_temp"]; !ok || v.(float64) != 21.5 {
		t.Fatalf("expected outside_temp=21.5, got %v", store.values)
	}
}
