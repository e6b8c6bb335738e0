package rule

import (
	"sort"
	"sync"
)

// RemovalHook is invoked synchronously whenever a rule leaves the store —
// by upsert-replacement, explicit removal, or clear — so the scheduler can
// cancel the rule's timer (spec.md §4.E "on rule removal by any path").
type RemovalHook func(removed Rule)

// Store is the ordered collection of rules (spec.md §4.B). Safe for
// concurrent use; callers needing atomicity across multiple operations
// (as the engine's lane does) serialize externally.
type Store struct {
	mu      sync.RWMutex
	rules   []*Rule // insertion order
	nextID  int64
	onRemove RemovalHook
}

// NewStore creates an empty rule store.
func NewStore() *Store {
	return &Store{}
}

// OnRemove registers the hook invoked for every rule removal.
func (s *Store) OnRemove(hook RemovalHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRemove = hook
}

// Insert performs the upsert-by-(from,on,condition) rule (spec.md §3),
// assigns an id on first insertion, and returns the assigned id. If a rule
// with the same identity exists, it is replaced in place (preserving its
// position) after the removal hook fires for the predecessor.
func (s *Store) Insert(r Rule) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := r.identityKey()
	for i, existing := range s.rules {
		if existing.identityKey() == key {
			r.ID = existing.ID
			predecessor := *existing
			s.fireRemove(predecessor)
			*s.rules[i] = r
			return r.ID
		}
	}

	s.nextID++
	r.ID = s.nextID
	cp := r
	s.rules = append(s.rules, &cp)
	return r.ID
}

func (s *Store) fireRemove(removed Rule) {
	if s.onRemove != nil {
		s.onRemove(removed)
	}
}

// Remove deletes a rule by id, firing the removal hook. Returns false if no
// rule with that id exists.
func (s *Store) Remove(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.rules {
		if r.ID == id {
			removed := *r
			s.rules = append(s.rules[:i], s.rules[i+1:]...)
			s.fireRemove(removed)
			return true
		}
	}
	return false
}

// RemoveByIndex deletes a rule by its position in insertion order.
func (s *Store) RemoveByIndex(index int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.rules) {
		return false
	}
	removed := *s.rules[index]
	s.rules = append(s.rules[:index], s.rules[index+1:]...)
	s.fireRemove(removed)
	return true
}

// Criteria filters rules for bulk deletion (spec.md §3 "deleted... by
// criteria"). A zero-value field means "don't filter on this dimension";
// All, if true, matches every rule regardless of other fields.
type Criteria struct {
	All     bool
	On      string
	From    string
	To      string
	Indices []int
}

func (c Criteria) matches(index int, r Rule) bool {
	if c.All {
		return true
	}
	if len(c.Indices) > 0 {
		for _, i := range c.Indices {
			if i == index {
				return true
			}
		}
		return false
	}
	if c.On != "" && r.On != c.On {
		return false
	}
	if c.From != "" && r.From != c.From {
		return false
	}
	if c.To != "" && r.To != c.To {
		return false
	}
	return c.On != "" || c.From != "" || c.To != ""
}

// RemoveMatching deletes every rule satisfying criteria, firing the removal
// hook for each, and returns the count removed.
func (s *Store) RemoveMatching(c Criteria) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.rules[:0:0]
	removed := 0
	for i, r := range s.rules {
		if c.matches(i, *r) {
			s.fireRemove(*r)
			removed++
			continue
		}
		kept = append(kept, r)
	}
	s.rules = kept
	return removed
}

// Clear removes every rule, firing the removal hook for each.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rules {
		s.fireRemove(*r)
	}
	s.rules = nil
}

// List returns rules in insertion order (the agent's view, spec.md §4.B).
func (s *Store) List() []Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Rule, len(s.rules))
	for i, r := range s.rules {
		out[i] = *r
	}
	return out
}

// ListSorted returns the evaluation order for the Transition Engine:
// enabled rules only, sorted by priority descending, stable on insertion
// order (spec.md §3, §4.B).
func (s *Store) ListSorted() []Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Rule, 0, len(s.rules))
	for _, r := range s.rules {
		if r.Enabled {
			out = append(out, *r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority > out[j].Priority
	})
	return out
}

// Get returns a rule by id.
func (s *Store) Get(id int64) (Rule, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.rules {
		if r.ID == id {
			return *r, true
		}
	}
	return Rule{}, false
}
