// Package state implements the State Registry (spec.md §4.A): named
// rendering descriptors, their sink notifications, and reserved-name
// protection for "off"/"on".
package state

import (
	"encoding/json"
	"fmt"
)

// Reserved state names that can never be deleted (spec.md §3).
const (
	Off = "off"
	On  = "on"
)

// Channel is a color channel value: either a literal 0-255 integer or a
// textual expression evaluated by the sandbox (spec.md §3).
type Channel struct {
	Literal *int
	Expr    string
}

// IsExpr reports whether this channel is an expression rather than a literal.
func (c Channel) IsExpr() bool { return c.Literal == nil }

// MarshalJSON emits the literal as a number or the expression as a string.
func (c Channel) MarshalJSON() ([]byte, error) {
	if c.Literal != nil {
		return json.Marshal(*c.Literal)
	}
	return json.Marshal(c.Expr)
}

// UnmarshalJSON accepts either a JSON number or a JSON string.
func (c *Channel) UnmarshalJSON(data []byte) error {
	var num int
	if err := json.Unmarshal(data, &num); err == nil {
		c.Literal = &num
		c.Expr = ""
		return nil
	}
	var expr string
	if err := json.Unmarshal(data, &expr); err != nil {
		return fmt.Errorf("channel value must be a number or an expression string: %w", err)
	}
	c.Expr = expr
	c.Literal = nil
	return nil
}

// Lit constructs a literal Channel value.
func Lit(v int) Channel { return Channel{Literal: &v} }

// Expr constructs an expression Channel value.
func Expr(expr string) Channel { return Channel{Expr: expr} }

// VoiceReactive is the optional voice-reactivity descriptor (spec.md §3).
type VoiceReactive struct {
	Enabled        bool    `json:"enabled"`
	ColourOverride string  `json:"colour_override,omitempty"`
	Smoothing      float64 `json:"smoothing"`
	MinAmp         float64 `json:"min_amp"`
	MaxAmp         float64 `json:"max_amp"`
}

// State is a named rendering descriptor (spec.md §3).
type State struct {
	Name          string         `json:"name"`
	R             Channel        `json:"r"`
	G             Channel        `json:"g"`
	B             Channel        `json:"b"`
	Speed         *int           `json:"speed,omitempty"`
	DurationMs    *int           `json:"duration_ms,omitempty"`
	Then          string         `json:"then,omitempty"`
	VoiceReactive *VoiceReactive `json:"voice_reactive,omitempty"`
	Description   string         `json:"description,omitempty"`
}

// IsAnimated reports whether this state requires per-frame evaluation
// (non-static speed, or any channel is an expression).
func (s State) IsAnimated() bool {
	return s.Speed != nil || s.R.IsExpr() || s.G.IsExpr() || s.B.IsExpr()
}

// Validate enforces the spec.md §3 invariant: duration_ms implies then.
func (s State) Validate() error {
	if s.DurationMs != nil && *s.DurationMs <= 0 {
		return fmt.Errorf("duration_ms must be positive")
	}
	if s.DurationMs != nil && s.Then == "" {
		return fmt.Errorf("state %q: duration_ms set without then", s.Name)
	}
	if s.Speed != nil && *s.Speed <= 0 {
		return fmt.Errorf("state %q: speed must be a positive integer", s.Name)
	}
	return nil
}

// IsReserved reports whether name is a reserved, undeletable state name.
func IsReserved(name string) bool {
	return name == Off || name == On
}
