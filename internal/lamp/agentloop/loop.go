// Package agentloop implements the outer agent protocol (spec.md §6
// "Agent protocol", §4.G): a minimal Anthropic tool-use loop that feeds
// the tool registry's schemas to the model, executes whatever tool calls
// it emits, and stops at `done` or a pending `askUser` question. Grounded
// on nexus's AnthropicProvider tool conversion
// (internal/agent/providers/anthropic.go's convertTools/convertMessages),
// trimmed from nexus's full streaming/multi-provider runtime to a single
// non-streaming request per turn — this loop is intentionally not a
// channel/session/memory framework like the teacher's (spec.md §6 "Agent
// protocol transport").
package agentloop

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/adaptlight/lampcore/internal/lamp/tools"
	"github.com/adaptlight/lampcore/internal/observability"
)

// Config configures a Loop.
type Config struct {
	APIKey         string
	Model          string
	MaxTokens      int64
	MaxToolTurns   int
	RequestTimeout time.Duration
}

// Outcome is how a single agent turn ended.
type Outcome struct {
	// Done is set once the agent calls done(message).
	Done bool
	// DoneMessage is the human-facing message passed to done().
	DoneMessage string
	// Question is set once the agent calls askUser(question) instead.
	Question string
	// ToolTurns counts how many request/tool-execute round trips occurred.
	ToolTurns int
}

// messagesAPI is the narrow slice of anthropic.Client.Messages that Run
// depends on, mirroring llmparse.Parser's test-double seam: a real
// anthropic.Client.Messages satisfies it, and tests supply a scripted stub
// instead of talking to the network.
type messagesAPI interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// Loop drives one Anthropic tool-use conversation against the tool
// registry until the agent signals done or askUser, or MaxToolTurns is
// exhausted.
type Loop struct {
	client       messagesAPI
	model        string
	maxTokens    int64
	maxToolTurns int
	timeout      time.Duration
	tools        *tools.Registry
	signal       *tools.Signal
	logger       *observability.Logger
}

// New constructs a Loop against the given tool registry and signal holder.
func New(cfg Config, registry *tools.Registry, signal *tools.Signal, logger *observability.Logger) (*Loop, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("agentloop: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "claude-sonnet-4-20250514"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	if cfg.MaxToolTurns <= 0 {
		cfg.MaxToolTurns = 25
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	client := anthropic.NewClient(option.WithAPIKey(cfg.APIKey))
	return &Loop{
		client:       client.Messages,
		model:        cfg.Model,
		maxTokens:    cfg.MaxTokens,
		maxToolTurns: cfg.MaxToolTurns,
		timeout:      cfg.RequestTimeout,
		tools:        registry,
		signal:       signal,
		logger:       logger,
	}, nil
}

// Run sends userMessage with systemPrompt, executing any tool calls the
// model makes, until the agent signals done/askUser or the turn limit is
// hit.
func (l *Loop) Run(ctx context.Context, systemPrompt, userMessage string) (*Outcome, error) {
	l.signal.Reset()

	toolParams, err := l.convertTools()
	if err != nil {
		return nil, fmt.Errorf("agentloop: %w", err)
	}

	messages := []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(userMessage)),
	}

	for turn := 0; turn < l.maxToolTurns; turn++ {
		params := anthropic.MessageNewParams{
			Model:     anthropic.Model(l.model),
			MaxTokens: l.maxTokens,
			Messages:  messages,
			Tools:     toolParams,
		}
		if systemPrompt != "" {
			params.System = []anthropic.TextBlockParam{{Type: "text", Text: systemPrompt}}
		}

		reqCtx, cancel := context.WithTimeout(ctx, l.timeout)
		msg, err := l.client.New(reqCtx, params)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("agentloop: anthropic request failed: %w", err)
		}

		assistantBlocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.Content))
		var toolCalls []anthropic.ContentBlockUnion
		for _, block := range msg.Content {
			switch block.Type {
			case "text":
				assistantBlocks = append(assistantBlocks, anthropic.NewTextBlock(block.Text))
			case "tool_use":
				var input map[string]any
				if err := json.Unmarshal(block.Input, &input); err != nil {
					return nil, fmt.Errorf("agentloop: invalid tool_use input for %s: %w", block.Name, err)
				}
				assistantBlocks = append(assistantBlocks, anthropic.NewToolUseBlock(block.ID, input, block.Name))
				toolCalls = append(toolCalls, block)
			}
		}
		messages = append(messages, anthropic.NewAssistantMessage(assistantBlocks...))

		if len(toolCalls) == 0 {
			return &Outcome{ToolTurns: turn}, nil
		}

		resultBlocks := make([]anthropic.ContentBlockParamUnion, 0, len(toolCalls))
		for _, call := range toolCalls {
			result, err := l.tools.Execute(ctx, call.Name, json.RawMessage(call.Input))
			isError := err != nil
			content := ""
			if err != nil {
				content = err.Error()
			} else {
				content = result.Content
				isError = result.IsError
			}
			resultBlocks = append(resultBlocks, anthropic.NewToolResultBlock(call.ID, content, isError))

			if l.logger != nil {
				l.logger.Info(ctx, "agent tool call", "tool", call.Name, "is_error", isError)
			}

			if msg, done := l.signal.IsDone(); done {
				return &Outcome{Done: true, DoneMessage: msg, ToolTurns: turn + 1}, nil
			}
			if q, asked := l.signal.TakeQuestion(); asked {
				return &Outcome{Question: q, ToolTurns: turn + 1}, nil
			}
		}
		messages = append(messages, anthropic.NewUserMessage(resultBlocks...))
	}

	return nil, fmt.Errorf("agentloop: exceeded max tool turns (%d) without done or askUser", l.maxToolTurns)
}

func (l *Loop) convertTools() ([]anthropic.ToolUnionParam, error) {
	var result []anthropic.ToolUnionParam
	for _, t := range l.tools.List() {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(t.Schema(), &schema); err != nil {
			return nil, fmt.Errorf("invalid tool schema for %s: %w", t.Name(), err)
		}
		toolParam := anthropic.ToolUnionParamOfTool(schema, t.Name())
		if toolParam.OfTool == nil {
			return nil, fmt.Errorf("invalid tool schema for %s: missing tool definition", t.Name())
		}
		toolParam.OfTool.Description = anthropic.String(t.Description())
		result = append(result, toolParam)
	}
	return result, nil
}
