package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/adaptlight/lampcore/internal/lamp/apiexec"
	"github.com/adaptlight/lampcore/internal/lamp/engine"
	"github.com/adaptlight/lampcore/internal/lamp/lamperr"
	"github.com/adaptlight/lampcore/internal/lamp/memory"
	"github.com/adaptlight/lampcore/internal/lamp/pipeline"
	"github.com/adaptlight/lampcore/internal/lamp/rule"
	"github.com/adaptlight/lampcore/internal/lamp/scheduler"
	"github.com/adaptlight/lampcore/internal/lamp/state"
	"github.com/adaptlight/lampcore/internal/lamp/vars"
)

// Deps wires every collaborator the tool surface drives. All fields are
// required except CustomTools, which may be nil if the deployment opts
// out of agent-defined external tools.
type Deps struct {
	Engine       *engine.Engine
	States       *state.Registry
	Rules        *rule.Store
	Vars         *vars.Store
	Memory       *memory.Store
	Pipelines    *pipeline.FileRegistry
	PipelineExec *pipeline.Executor
	APIs         *apiexec.Executor
	Scheduler    *scheduler.Scheduler
	CustomTools  *CustomToolRegistry
	Signal       *Signal
}

// BuildRegistry constructs the full agent tool surface (spec.md §4.G).
func BuildRegistry(deps Deps) *Registry {
	reg := NewRegistry()

	reg.Register(newTool("getPattern", "Look up a named rule-authoring pattern template.",
		objectSchema(map[string]any{"name": stringProp("pattern name, e.g. counter, toggle, cycle")}, "name"),
		func(ctx context.Context, params json.RawMessage) (*Result, error) {
			var in struct{ Name string `json:"name"` }
			if err := decodeParams(params, &in); err != nil {
				return fail("invalid params: %v", err), nil
			}
			p, ok := getPattern(in.Name)
			if !ok {
				return fail("unknown pattern %q", in.Name), nil
			}
			return okJSON(p), nil
		}))

	reg.Register(newTool("getStates", "List every registered state.", objectSchema(nil),
		func(ctx context.Context, params json.RawMessage) (*Result, error) {
			return okJSON(deps.States.List()), nil
		}))

	reg.Register(newTool("getRules", "List every rule in insertion order.", objectSchema(nil),
		func(ctx context.Context, params json.RawMessage) (*Result, error) {
			return okJSON(deps.Rules.List()), nil
		}))

	reg.Register(newTool("getVariables", "Snapshot the variable store.", objectSchema(nil),
		func(ctx context.Context, params json.RawMessage) (*Result, error) {
			return okJSON(deps.Vars.Snapshot()), nil
		}))

	reg.Register(newTool("listAPIs", "List preset and agent-defined custom API names.", objectSchema(nil),
		func(ctx context.Context, params json.RawMessage) (*Result, error) {
			names := deps.APIs.Names()
			if deps.CustomTools != nil {
				for _, t := range deps.CustomTools.List() {
					names = append(names, t.Name)
				}
			}
			return okJSON(names), nil
		}))

	reg.Register(newTool("listMemory", "List every remembered key/value pair.", objectSchema(nil),
		func(ctx context.Context, params json.RawMessage) (*Result, error) {
			return okJSON(deps.Memory.List()), nil
		}))

	reg.Register(newTool("listPipelines", "List every defined pipeline.", objectSchema(nil),
		func(ctx context.Context, params json.RawMessage) (*Result, error) {
			return okJSON(deps.Pipelines.List()), nil
		}))

	reg.Register(newTool("getDocs", "Look up reference documentation by topic (sandbox, errors, tools, apis).",
		objectSchema(map[string]any{"topic": stringProp("doc topic name")}, "topic"),
		func(ctx context.Context, params json.RawMessage) (*Result, error) {
			var in struct{ Topic string `json:"topic"` }
			if err := decodeParams(params, &in); err != nil {
				return fail("invalid params: %v", err), nil
			}
			doc, ok := getDoc(in.Topic)
			if !ok {
				return fail("unknown doc topic %q", in.Topic), nil
			}
			return ok(doc), nil
		}))

	reg.Register(newTool("createState", "Create or replace a named state.",
		objectSchema(map[string]any{
			"name":        stringProp("state name"),
			"r":           anyProp("red channel: literal 0-255 or expression string"),
			"g":           anyProp("green channel: literal 0-255 or expression string"),
			"b":           anyProp("blue channel: literal 0-255 or expression string"),
			"speed":       numberProp("animation frame interval in ms, if animated"),
			"duration_ms": numberProp("auto-transition delay in ms, requires then"),
			"then":        stringProp("state to transition to after duration_ms"),
			"description": stringProp("human-readable description"),
		}, "name", "r", "g", "b"),
		func(ctx context.Context, params json.RawMessage) (*Result, error) {
			var in stateParams
			if err := decodeParams(params, &in); err != nil {
				return fail("invalid params: %v", err), nil
			}
			s, err := in.toState()
			if err != nil {
				return fail("invalid state: %v", err), nil
			}
			if err := deps.States.Add(s); err != nil {
				return fail("%v", err), nil
			}
			return ok(fmt.Sprintf("state %q created", s.Name)), nil
		}))

	reg.Register(newTool("deleteState", "Delete a non-reserved state by name.",
		objectSchema(map[string]any{"name": stringProp("state name")}, "name"),
		func(ctx context.Context, params json.RawMessage) (*Result, error) {
			var in struct{ Name string `json:"name"` }
			if err := decodeParams(params, &in); err != nil {
				return fail("invalid params: %v", err), nil
			}
			if err := deps.States.Delete(in.Name); err != nil {
				return fail("%v", err), nil
			}
			return ok(fmt.Sprintf("state %q deleted", in.Name)), nil
		}))

	reg.Register(newTool("setState", "Directly transition to a named state, bypassing rule evaluation.",
		objectSchema(map[string]any{"to": stringProp("target state name")}, "to"),
		func(ctx context.Context, params json.RawMessage) (*Result, error) {
			var in struct{ To string `json:"to"` }
			if err := decodeParams(params, &in); err != nil {
				return fail("invalid params: %v", err), nil
			}
			if err := deps.Engine.Transition(ctx, in.To); err != nil {
				return fail("%v", err), nil
			}
			return ok(fmt.Sprintf("transitioned to %q", in.To)), nil
		}))

	reg.Register(newTool("appendRules", "Insert or upsert one or more rules.",
		objectSchema(map[string]any{"rules": map[string]any{"type": "array", "items": map[string]any{"type": "object"}}}, "rules"),
		func(ctx context.Context, params json.RawMessage) (*Result, error) {
			var in struct{ Rules []rule.Rule `json:"rules"` }
			if err := decodeParams(params, &in); err != nil {
				return fail("invalid params: %v", err), nil
			}
			ids := make([]int64, 0, len(in.Rules))
			for _, r := range in.Rules {
				if !r.Enabled && r.ID == 0 {
					r.Enabled = true // default to enabled on creation
				}
				id := deps.Rules.Insert(r)
				ids = append(ids, id)
				if rule.IsTimeBased(r.On) && deps.Scheduler != nil {
					r.ID = id
					if err := deps.Scheduler.Arm(r); err != nil {
						return fail("rule %d inserted but failed to arm trigger: %v", id, err), nil
					}
				}
			}
			return okJSON(map[string]any{"ids": ids}), nil
		}))

	reg.Register(newTool("deleteRules", "Delete rules matching criteria (all, on, from, to, or indices).",
		objectSchema(map[string]any{
			"all":     boolProp("delete every rule"),
			"on":      stringProp("match this on value"),
			"from":    stringProp("match this from value"),
			"to":      stringProp("match this to value"),
			"indices": map[string]any{"type": "array", "items": map[string]any{"type": "integer"}},
		}),
		func(ctx context.Context, params json.RawMessage) (*Result, error) {
			var criteria rule.Criteria
			if err := decodeParams(params, &criteria); err != nil {
				return fail("invalid params: %v", err), nil
			}
			n := deps.Rules.RemoveMatching(criteria)
			return ok(fmt.Sprintf("removed %d rule(s)", n)), nil
		}))

	reg.Register(newTool("setVariable", "Set a variable in the shared variable store.",
		objectSchema(map[string]any{"key": stringProp("variable name"), "value": anyProp("value to store")}, "key", "value"),
		func(ctx context.Context, params json.RawMessage) (*Result, error) {
			var in struct {
				Key   string `json:"key"`
				Value any    `json:"value"`
			}
			if err := decodeParams(params, &in); err != nil {
				return fail("invalid params: %v", err), nil
			}
			deps.Vars.Set(in.Key, in.Value)
			return ok(fmt.Sprintf("%s set", in.Key)), nil
		}))

	reg.Register(newTool("fetchAPI", "Call a preset API (weather, stock, crypto, sun, air_quality, time, fear_greed, github_repo, random).",
		objectSchema(map[string]any{"api": stringProp("preset API name"), "params": map[string]any{"type": "object"}}, "api"),
		func(ctx context.Context, params json.RawMessage) (*Result, error) {
			var in struct {
				API    string         `json:"api"`
				Params map[string]any `json:"params"`
			}
			if err := decodeParams(params, &in); err != nil {
				return fail("invalid params: %v", err), nil
			}
			data, err := deps.APIs.Call(ctx, in.API, in.Params)
			if err != nil {
				msg := err.Error()
				if kind, ok := lamperr.KindOf(err); ok && kind == lamperr.KindNotFound {
					msg = "unknown api"
				}
				return okJSON(map[string]any{"success": false, "error": msg, "api": in.API}), nil
			}
			return okJSON(map[string]any{"success": true, "data": data, "api": in.API}), nil
		}))

	reg.Register(newTool("defineTool", "Define a custom HTTP-backed data tool by URL template.",
		objectSchema(map[string]any{
			"name":        stringProp("tool name"),
			"description": stringProp("what the tool fetches"),
			"url":         stringProp("URL template, supports {{param}} interpolation"),
			"method":      stringProp("HTTP method, default GET"),
			"headers":     map[string]any{"type": "object"},
			"result_path": stringProp("dotted path into the JSON response to extract"),
		}, "name", "url"),
		func(ctx context.Context, params json.RawMessage) (*Result, error) {
			if deps.CustomTools == nil {
				return fail("custom tools are disabled"), nil
			}
			var t CustomTool
			if err := decodeParams(params, &t); err != nil {
				return fail("invalid params: %v", err), nil
			}
			if err := deps.CustomTools.Define(t); err != nil {
				return fail("%v", err), nil
			}
			return ok(fmt.Sprintf("custom tool %q defined", t.Name)), nil
		}))

	reg.Register(newTool("callTool", "Call a previously defined custom tool.",
		objectSchema(map[string]any{"name": stringProp("custom tool name"), "args": map[string]any{"type": "object"}}, "name"),
		func(ctx context.Context, params json.RawMessage) (*Result, error) {
			if deps.CustomTools == nil {
				return fail("custom tools are disabled"), nil
			}
			var in struct {
				Name string         `json:"name"`
				Args map[string]any `json:"args"`
			}
			if err := decodeParams(params, &in); err != nil {
				return fail("invalid params: %v", err), nil
			}
			raw, err := deps.CustomTools.CallTool(ctx, in.Name, in.Args)
			if err != nil {
				return fail("%v", err), nil
			}
			return ok(string(raw)), nil
		}))

	reg.Register(newTool("createDataSource", "Register a periodically polled data source.",
		objectSchema(map[string]any{
			"name":             stringProp("data source name"),
			"tool":             stringProp("preset API or custom tool name to poll"),
			"fetch_args":       map[string]any{"type": "object"},
			"interval_ms":      numberProp("poll interval in ms"),
			"store_mapping":    map[string]any{"type": "object", "description": "dotted result path -> variable name"},
			"fires_transition": stringProp("event name to fire on each successful poll"),
		}, "name", "tool", "interval_ms"),
		func(ctx context.Context, params json.RawMessage) (*Result, error) {
			var in struct {
				Name            string            `json:"name"`
				Tool            string            `json:"tool"`
				FetchArgs       map[string]any    `json:"fetch_args"`
				IntervalMs      int               `json:"interval_ms"`
				StoreMapping    map[string]string `json:"store_mapping"`
				FiresTransition string            `json:"fires_transition"`
			}
			if err := decodeParams(params, &in); err != nil {
				return fail("invalid params: %v", err), nil
			}
			deps.Scheduler.RegisterDataSource(scheduler.DataSource{
				Name:            in.Name,
				ToolName:        in.Tool,
				FetchArgs:       in.FetchArgs,
				IntervalMs:      in.IntervalMs,
				StoreMapping:    in.StoreMapping,
				FiresTransition: in.FiresTransition,
			})
			return ok(fmt.Sprintf("data source %q registered", in.Name)), nil
		}))

	reg.Register(newTool("triggerDataSource", "Run one poll cycle of a data source immediately.",
		objectSchema(map[string]any{"name": stringProp("data source name")}, "name"),
		func(ctx context.Context, params json.RawMessage) (*Result, error) {
			var in struct{ Name string `json:"name"` }
			if err := decodeParams(params, &in); err != nil {
				return fail("invalid params: %v", err), nil
			}
			if err := deps.Scheduler.TriggerDataSource(ctx, in.Name); err != nil {
				return fail("%v", err), nil
			}
			return ok(fmt.Sprintf("data source %q triggered", in.Name)), nil
		}))

	reg.Register(newTool("remember", "Persist a key/value pair to the memory file.",
		objectSchema(map[string]any{"key": stringProp("memory key"), "value": stringProp("memory value")}, "key", "value"),
		func(ctx context.Context, params json.RawMessage) (*Result, error) {
			var in struct {
				Key   string `json:"key"`
				Value string `json:"value"`
			}
			if err := decodeParams(params, &in); err != nil {
				return fail("invalid params: %v", err), nil
			}
			if err := deps.Memory.Remember(in.Key, in.Value); err != nil {
				return fail("%v", err), nil
			}
			return ok(fmt.Sprintf("remembered %s", in.Key)), nil
		}))

	reg.Register(newTool("recall", "Read a value from the memory file.",
		objectSchema(map[string]any{"key": stringProp("memory key")}, "key"),
		func(ctx context.Context, params json.RawMessage) (*Result, error) {
			var in struct{ Key string `json:"key"` }
			if err := decodeParams(params, &in); err != nil {
				return fail("invalid params: %v", err), nil
			}
			v, found := deps.Memory.Recall(in.Key)
			if !found {
				return fail("no memory for key %q", in.Key), nil
			}
			return ok(v), nil
		}))

	reg.Register(newTool("forgetMemory", "Delete a key from the memory file.",
		objectSchema(map[string]any{"key": stringProp("memory key")}, "key"),
		func(ctx context.Context, params json.RawMessage) (*Result, error) {
			var in struct{ Key string `json:"key"` }
			if err := decodeParams(params, &in); err != nil {
				return fail("invalid params: %v", err), nil
			}
			removed, err := deps.Memory.Forget(in.Key)
			if err != nil {
				return fail("%v", err), nil
			}
			if !removed {
				return fail("no memory for key %q", in.Key), nil
			}
			return ok(fmt.Sprintf("forgot %s", in.Key)), nil
		}))

	reg.Register(newTool("definePipeline", "Define or replace a named pipeline.",
		objectSchema(map[string]any{
			"name":        stringProp("pipeline name"),
			"description": stringProp("what the pipeline does"),
			"steps":       map[string]any{"type": "array", "items": map[string]any{"type": "object"}},
		}, "name", "steps"),
		func(ctx context.Context, params json.RawMessage) (*Result, error) {
			var def pipeline.Definition
			if err := decodeParams(params, &def); err != nil {
				return fail("invalid params: %v", err), nil
			}
			if err := deps.Pipelines.Define(def); err != nil {
				return fail("%v", err), nil
			}
			return ok(fmt.Sprintf("pipeline %q defined", def.Name)), nil
		}))

	reg.Register(newTool("runPipeline", "Run a defined pipeline by name.",
		objectSchema(map[string]any{"name": stringProp("pipeline name"), "seed": map[string]any{"type": "object"}}, "name"),
		func(ctx context.Context, params json.RawMessage) (*Result, error) {
			var in struct {
				Name string         `json:"name"`
				Seed map[string]any `json:"seed"`
			}
			if err := decodeParams(params, &in); err != nil {
				return fail("invalid params: %v", err), nil
			}
			res, err := deps.PipelineExec.Run(ctx, in.Name, in.Seed)
			if err != nil {
				return fail("%v", err), nil
			}
			return okJSON(res), nil
		}))

	reg.Register(newTool("deletePipeline", "Delete a defined pipeline by name.",
		objectSchema(map[string]any{"name": stringProp("pipeline name")}, "name"),
		func(ctx context.Context, params json.RawMessage) (*Result, error) {
			var in struct{ Name string `json:"name"` }
			if err := decodeParams(params, &in); err != nil {
				return fail("invalid params: %v", err), nil
			}
			removed, err := deps.Pipelines.Delete(in.Name)
			if err != nil {
				return fail("%v", err), nil
			}
			if !removed {
				return fail("no pipeline named %q", in.Name), nil
			}
			return ok(fmt.Sprintf("pipeline %q deleted", in.Name)), nil
		}))

	reg.Register(newTool("askUser", "Ask the end user a question; does not block the core.",
		objectSchema(map[string]any{"question": stringProp("question to relay to the user")}, "question"),
		func(ctx context.Context, params json.RawMessage) (*Result, error) {
			var in struct{ Question string `json:"question"` }
			if err := decodeParams(params, &in); err != nil {
				return fail("invalid params: %v", err), nil
			}
			deps.Signal.AskUser(in.Question)
			return ok("question recorded"), nil
		}))

	reg.Register(newTool("done", "End the agent turn with a human-facing message.",
		objectSchema(map[string]any{"message": stringProp("final message for the user")}, "message"),
		func(ctx context.Context, params json.RawMessage) (*Result, error) {
			var in struct{ Message string `json:"message"` }
			if err := decodeParams(params, &in); err != nil {
				return fail("invalid params: %v", err), nil
			}
			added := RunSafetyPass(deps.States, deps.Rules)
			deps.Signal.Done(in.Message)
			return ok(fmt.Sprintf("done (safety pass added %d exit rule(s))", added)), nil
		}))

	if deps.Scheduler != nil {
		deps.Scheduler.BindTools(&dataFetcher{apis: deps.APIs, tools: deps.CustomTools}, deps.Vars)
	}

	return reg
}

// stateParams decodes createState's JSON body into a state.State, since
// state.Channel's custom (Un)MarshalJSON already accepts either a number
// or an expression string for r/g/b.
type stateParams struct {
	Name          string               `json:"name"`
	R             state.Channel        `json:"r"`
	G             state.Channel        `json:"g"`
	B             state.Channel        `json:"b"`
	Speed         *int                 `json:"speed,omitempty"`
	DurationMs    *int                 `json:"duration_ms,omitempty"`
	Then          string               `json:"then,omitempty"`
	VoiceReactive *state.VoiceReactive `json:"voice_reactive,omitempty"`
	Description   string               `json:"description,omitempty"`
}

func (p stateParams) toState() (state.State, error) {
	s := state.State{
		Name:          p.Name,
		R:             p.R,
		G:             p.G,
		B:             p.B,
		Speed:         p.Speed,
		DurationMs:    p.DurationMs,
		Then:          p.Then,
		VoiceReactive: p.VoiceReactive,
		Description:   p.Description,
	}
	if err := s.Validate(); err != nil {
		return state.State{}, err
	}
	return s, nil
}
