package tools

import "sync"

// Signal holds the two ways an agent turn ends outside of ordinary tool
// results (spec.md §4.G): a pending question for the outer loop to relay
// to the end user, or a done message that closes the turn. Neither
// blocks the core — the outer agent loop polls Signal between tool calls.
type Signal struct {
	mu              sync.Mutex
	pendingQuestion string
	hasQuestion     bool
	done            bool
	doneMessage     string
}

// NewSignal creates an empty signal holder.
func NewSignal() *Signal { return &Signal{} }

// AskUser records a pending question and clears any prior one.
func (s *Signal) AskUser(question string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingQuestion = question
	s.hasQuestion = true
}

// TakeQuestion returns and clears the pending question, if any.
func (s *Signal) TakeQuestion() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasQuestion {
		return "", false
	}
	q := s.pendingQuestion
	s.hasQuestion = false
	s.pendingQuestion = ""
	return q, true
}

// Done marks the agent turn complete with a human-facing message.
func (s *Signal) Done(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done = true
	s.doneMessage = message
}

// IsDone reports whether done() was called, and with what message.
func (s *Signal) IsDone() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doneMessage, s.done
}

// Reset clears both done and pending-question state, for the start of a
// new agent turn.
func (s *Signal) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingQuestion = ""
	s.hasQuestion = false
	s.done = false
	s.doneMessage = ""
}
