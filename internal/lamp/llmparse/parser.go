// Package llmparse implements the LLM parser the Pipeline Executor's `llm`
// step calls (spec.md §4.F). Grounded on nexus's AnthropicProvider (internal/agent/providers/
// anthropic.go) — same client construction and message-params shape,
// trimmed from streaming/tool-calling completions to a single
// prompt-in/text-out call, since the Pipeline Executor's `llm` step has no
// tool-use turn of its own.
package llmparse

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Parser answers a single prompt with a single text response.
type Parser interface {
	Parse(ctx context.Context, system, prompt string) (string, error)
}

// AnthropicParser implements Parser against the Anthropic Messages API.
type AnthropicParser struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	timeout   time.Duration
}

// Config configures an AnthropicParser.
type Config struct {
	APIKey         string
	Model          string
	MaxTokens      int64
	RequestTimeout time.Duration
}

// NewAnthropicParser validates config and constructs a parser.
func NewAnthropicParser(cfg Config) (*AnthropicParser, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llmparse: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "claude-sonnet-4-20250514"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	client := anthropic.NewClient(option.WithAPIKey(cfg.APIKey))
	return &AnthropicParser{client: client, model: cfg.Model, maxTokens: cfg.MaxTokens, timeout: cfg.RequestTimeout}, nil
}

// Parse sends a single-turn completion request and concatenates every
// text content block of the response.
func (p *AnthropicParser) Parse(ctx context.Context, system, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: p.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: system}}
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("llmparse: anthropic request failed: %w", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}

// EchoParser is a deterministic Parser for tests: it returns the prompt
// unchanged (optionally prefixed), never makes a network call.
type EchoParser struct {
	Prefix string
}

func (p *EchoParser) Parse(ctx context.Context, system, prompt string) (string, error) {
	return p.Prefix + prompt, nil
}
