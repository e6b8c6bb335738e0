// Package rule implements the Rule Store (spec.md §4.B): an ordered,
// prioritized collection of transition rules with upsert-by-identity,
// deletion, and the evaluation-order view the Transition Engine consumes.
package rule

import "strings"

// Wildcard matches any current state. WildcardSuffix denotes a "prefix/*" rule.
const (
	Wildcard       = "*"
	WildcardSuffix = "/*"
)

// TriggerConfig carries the timing configuration for time-based rules
// (spec.md §3). Only the fields relevant to the rule's On kind are set.
type TriggerConfig struct {
	// timer, interval
	DelayMs int `json:"delay_ms,omitempty"`

	// timer
	AutoCleanup bool `json:"auto_cleanup,omitempty"`

	// interval
	Repeat bool `json:"repeat,omitempty"`

	// schedule
	Hour        int  `json:"hour,omitempty"`
	Minute      int  `json:"minute,omitempty"`
	RepeatDaily bool `json:"repeat_daily,omitempty"`
}

// On-kind tokens recognized by the scheduler as time-based (spec.md §3).
const (
	OnTimer    = "timer"
	OnInterval = "interval"
	OnSchedule = "schedule"
)

// IsTimeBased reports whether an `on` value is one of the scheduler-owned kinds.
func IsTimeBased(on string) bool {
	return on == OnTimer || on == OnInterval || on == OnSchedule
}

// Rule is a prioritized transition record (spec.md §3).
type Rule struct {
	ID            int64          `json:"id"`
	From          string         `json:"from"`
	On            string         `json:"on"`
	To            string         `json:"to"`
	Condition     string         `json:"condition,omitempty"`
	Action        string         `json:"action,omitempty"`
	Priority      int            `json:"priority"`
	Enabled       bool           `json:"enabled"`
	TriggerConfig *TriggerConfig `json:"trigger_config,omitempty"`
	Pipeline      string         `json:"pipeline,omitempty"`
}

// identityKey is the (from, on, condition) triple spec.md §3's upsert
// invariant keys replacement on.
func (r Rule) identityKey() string {
	return r.From + "\x00" + r.On + "\x00" + r.Condition
}

// Matches reports whether this rule's `from` pattern matches the current
// state. This centralizes wildcard matching in one place, used by both
// ordinary event delivery and scheduler-targeted firing, resolving the
// ambiguity flagged in spec.md §9 (Open Questions).
func (r Rule) Matches(currentState string) bool {
	if r.From == Wildcard {
		return true
	}
	if strings.HasSuffix(r.From, WildcardSuffix) {
		prefix := strings.TrimSuffix(r.From, WildcardSuffix)
		return strings.HasPrefix(currentState, prefix+"/")
	}
	return r.From == currentState
}
