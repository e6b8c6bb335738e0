package main

import (
	"fmt"

	"github.com/adaptlight/lampcore/internal/config"
	"github.com/adaptlight/lampcore/internal/lamp/agentloop"
	"github.com/adaptlight/lampcore/internal/lamp/apiexec"
	"github.com/adaptlight/lampcore/internal/lamp/engine"
	"github.com/adaptlight/lampcore/internal/lamp/llmparse"
	"github.com/adaptlight/lampcore/internal/lamp/memory"
	"github.com/adaptlight/lampcore/internal/lamp/pipeline"
	"github.com/adaptlight/lampcore/internal/lamp/rule"
	"github.com/adaptlight/lampcore/internal/lamp/scheduler"
	"github.com/adaptlight/lampcore/internal/lamp/sink"
	"github.com/adaptlight/lampcore/internal/lamp/state"
	"github.com/adaptlight/lampcore/internal/lamp/tools"
	"github.com/adaptlight/lampcore/internal/lamp/vars"
	"github.com/adaptlight/lampcore/internal/observability"
)

// system bundles every collaborator buildSystem wires together, so the
// run/seed/safety-pass commands can share construction without repeating
// the dependency graph each time.
type system struct {
	Logger    *observability.Logger
	Metrics   *observability.Metrics
	States    *state.Registry
	Rules     *rule.Store
	Vars      *vars.Store
	Memory    *memory.Store
	Pipelines *pipeline.FileRegistry
	Engine    *engine.Engine
	Scheduler *scheduler.Scheduler
	APIs      *apiexec.Executor
	Tools     *tools.Registry
	Signal    *tools.Signal
	Agent     *agentloop.Loop // nil if cfg.LLM.APIKey is unset
}

// buildSystem constructs the full engine graph described in spec.md §4 and
// wires it the way the teacher wires its provider/gateway/tool stack —
// construct leaf collaborators first, bind the ones with a two-way
// dependency (engine <-> pipeline executor) after both exist.
func buildSystem(cfg config.Config) (*system, error) {
	logger := observability.NewLogger(observability.LogConfig{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		AddSource: cfg.Logging.AddSource,
	})
	metrics := observability.NewMetrics()

	states := state.NewRegistry()
	states.BindSink(sink.NewLogSink(logger))
	rules := rule.NewStore()
	varStore := vars.New()

	memStore, err := memory.Open(cfg.Storage.MemoryPath)
	if err != nil {
		return nil, fmt.Errorf("open memory store: %w", err)
	}
	pipeReg, err := pipeline.OpenRegistry(cfg.Storage.PipelinesPath)
	if err != nil {
		return nil, fmt.Errorf("open pipeline registry: %w", err)
	}

	e := engine.New(states, rules, varStore, logger, metrics)

	sched := scheduler.New(rules, e,
		scheduler.WithLogger(logger),
		scheduler.WithMetrics(metrics),
	)

	apis := apiexec.New(apiexec.Config{
		Timeout:       cfg.APIs.Timeout,
		RatePerSecond: cfg.APIs.RatePerSecond,
		Burst:         cfg.APIs.Burst,
		GitHubToken:   cfg.APIs.GitHubToken,
	}, metrics)

	var llm pipeline.LLMParser
	if cfg.LLM.APIKey != "" {
		parser, err := llmparse.NewAnthropicParser(llmparse.Config{
			APIKey:         cfg.LLM.APIKey,
			Model:          cfg.LLM.Model,
			RequestTimeout: cfg.LLM.RequestTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("construct LLM parser: %w", err)
		}
		llm = parser
	}

	pipeExec := pipeline.New(pipeReg, e, apis, llm, varStore, memStore, logger, metrics)
	e.BindPipelines(pipeExec)

	customTools := tools.NewCustomToolRegistry(nil, cfg.APIs.Timeout)
	signal := tools.NewSignal()

	registry := tools.BuildRegistry(tools.Deps{
		Engine:       e,
		States:       states,
		Rules:        rules,
		Vars:         varStore,
		Memory:       memStore,
		Pipelines:    pipeReg,
		PipelineExec: pipeExec,
		APIs:         apis,
		Scheduler:    sched,
		CustomTools:  customTools,
		Signal:       signal,
	})

	sys := &system{
		Logger:    logger,
		Metrics:   metrics,
		States:    states,
		Rules:     rules,
		Vars:      varStore,
		Memory:    memStore,
		Pipelines: pipeReg,
		Engine:    e,
		Scheduler: sched,
		APIs:      apis,
		Tools:     registry,
		Signal:    signal,
	}

	if cfg.LLM.APIKey != "" {
		loop, err := agentloop.New(agentloop.Config{
			APIKey: cfg.LLM.APIKey,
			Model:  cfg.LLM.Model,
		}, registry, signal, logger)
		if err != nil {
			return nil, fmt.Errorf("construct agent loop: %w", err)
		}
		sys.Agent = loop
	}

	return sys, nil
}

// seedDefaults installs the off/on states plus the "random_color" helper
// state the original's canonical counter example uses
// (original_source/raspi/patterns/library.py), and two default
// button_click rules: off -> random_color and random_color -> random_color.
// No counter rules and no rule leaving "on" are seeded.
func seedDefaults(sys *system) error {
	defaults := []state.State{
		{Name: state.Off, R: state.Lit(0), G: state.Lit(0), B: state.Lit(0)},
		{Name: state.On, R: state.Lit(255), G: state.Lit(255), B: state.Lit(255)},
		{
			Name:        "random_color",
			R:           state.Expr("floor(random() * 255)"),
			G:           state.Expr("floor(random() * 255)"),
			B:           state.Expr("floor(random() * 255)"),
			Description: "cycles to a freshly rolled color on each entry",
		},
	}
	for _, s := range defaults {
		if sys.States.Exists(s.Name) {
			continue
		}
		if err := sys.States.Add(s); err != nil {
			return fmt.Errorf("seed state %q: %w", s.Name, err)
		}
	}

	defaultRules := []rule.Rule{
		{From: state.Off, On: "button_click", To: "random_color", Priority: 0, Enabled: true},
		{From: "random_color", On: "button_click", To: "random_color", Priority: 0, Enabled: true},
	}
	existing := sys.Rules.List()
	for _, r := range defaultRules {
		already := false
		for _, e := range existing {
			if e.From == r.From && e.On == r.On && e.Condition == r.Condition {
				already = true
				break
			}
		}
		if !already {
			sys.Rules.Insert(r)
		}
	}
	return nil
}
