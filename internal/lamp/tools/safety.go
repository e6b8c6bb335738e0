package tools

import (
	"github.com/adaptlight/lampcore/internal/lamp/rule"
	"github.com/adaptlight/lampcore/internal/lamp/state"
)

// RunSafetyPass implements spec.md §4.G's safety pass: after the agent
// signals done, every non-off state that is not the `from` of any rule
// gets a button_click rule back to off. Any rule leaving the state counts,
// whatever its `to`. Idempotent — re-running it after it has already
// added an exit rule for a state changes nothing, since rule.Store.Insert
// upserts by (from, on, condition) identity.
func RunSafetyPass(states *state.Registry, rules *rule.Store) int {
	hasExit := make(map[string]bool)
	for _, r := range rules.List() {
		hasExit[r.From] = true
	}

	added := 0
	for _, s := range states.List() {
		if s.Name == state.Off {
			continue
		}
		if hasExit[s.Name] {
			continue
		}
		rules.Insert(rule.Rule{
			From:     s.Name,
			On:       "button_click",
			To:       state.Off,
			Priority: 0,
			Enabled:  true,
		})
		added++
	}
	return added
}
