// Package tools implements the agent tool surface (spec.md §4.G): every
// operation an LLM agent may invoke against the engine, exposed as a
// Tool with a validated JSON-schema parameter contract. Grounded on
// nexus's internal/agent Tool interface and ToolRegistry
// (internal/agent/tool_registry.go, internal/agent/runtime.go).
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Tool is a single agent-callable operation.
type Tool interface {
	Name() string
	Description() string
	Schema() json.RawMessage
	Execute(ctx context.Context, params json.RawMessage) (*Result, error)
}

// Result is a tool's output, returned to the agent loop.
type Result struct {
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}

func ok(content string) *Result  { return &Result{Content: content} }
func fail(format string, args ...any) *Result {
	return &Result{Content: fmt.Sprintf(format, args...), IsError: true}
}

func okJSON(v any) *Result {
	raw, err := json.Marshal(v)
	if err != nil {
		return fail("encode result: %v", err)
	}
	return ok(string(raw))
}

// Registry holds every tool the agent loop may call, validating each call's
// parameters against the tool's declared schema before execution (spec.md
// §4.G — the teacher imports the same jsonschema/v5 library for its own
// plugin/config validation, internal/pkg/pluginsdk/validation.go).
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	schema sync.Map // name -> *jsonschema.Schema
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds or replaces a tool by name.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
	r.schema.Delete(t.Name())
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns every registered tool (used to build the agent loop's
// LLM-facing tool definitions).
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	return out
}

// Execute validates params against the tool's schema, then runs it. An
// unknown tool name or schema violation yields an error Result rather
// than a Go error, so the agent can see and repair its own mistake
// (spec.md §7 "outer loop may surface errors verbatim to the agent").
func (r *Registry) Execute(ctx context.Context, name string, params json.RawMessage) (*Result, error) {
	r.mu.RLock()
	t, found := r.tools[name]
	r.mu.RUnlock()
	if !found {
		return fail("tool not found: %s", name), nil
	}

	if len(params) == 0 {
		params = json.RawMessage("{}")
	}
	schema, err := r.compiledSchema(t)
	if err != nil {
		return fail("invalid schema for tool %s: %v", name, err), nil
	}
	var decoded any
	if err := json.Unmarshal(params, &decoded); err != nil {
		return fail("invalid JSON parameters: %v", err), nil
	}
	if err := schema.Validate(decoded); err != nil {
		return fail("parameters for %s failed schema validation: %v", name, err), nil
	}

	return t.Execute(ctx, params)
}

func (r *Registry) compiledSchema(t Tool) (*jsonschema.Schema, error) {
	if cached, ok := r.schema.Load(t.Name()); ok {
		return cached.(*jsonschema.Schema), nil
	}
	compiled, err := jsonschema.CompileString(t.Name()+".schema.json", string(t.Schema()))
	if err != nil {
		return nil, err
	}
	r.schema.Store(t.Name(), compiled)
	return compiled, nil
}

// funcTool adapts a plain function into a Tool, the way a single generic
// adapter stands in for two dozen near-identical hand-written structs —
// every preset tool shares the same Name/Description/Schema/Execute
// shape, so one closure-backed type replaces the boilerplate.
type funcTool struct {
	name        string
	description string
	schema      json.RawMessage
	fn          func(ctx context.Context, params json.RawMessage) (*Result, error)
}

func newTool(name, description string, schema map[string]any, fn func(ctx context.Context, params json.RawMessage) (*Result, error)) Tool {
	raw, err := json.Marshal(schema)
	if err != nil {
		panic(fmt.Sprintf("tools: invalid schema literal for %s: %v", name, err))
	}
	return &funcTool{name: name, description: description, schema: raw, fn: fn}
}

func (t *funcTool) Name() string               { return t.name }
func (t *funcTool) Description() string        { return t.description }
func (t *funcTool) Schema() json.RawMessage    { return t.schema }
func (t *funcTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	return t.fn(ctx, params)
}

func decodeParams(params json.RawMessage, dst any) error {
	if len(params) == 0 {
		return nil
	}
	return json.Unmarshal(params, dst)
}

func objectSchema(properties map[string]any, required ...string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func stringProp(desc string) map[string]any { return map[string]any{"type": "string", "description": desc} }
func numberProp(desc string) map[string]any { return map[string]any{"type": "number", "description": desc} }
func boolProp(desc string) map[string]any   { return map[string]any{"type": "boolean", "description": desc} }
func anyProp(desc string) map[string]any    { return map[string]any{"description": desc} }
