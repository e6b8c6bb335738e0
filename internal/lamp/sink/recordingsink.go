package sink

import (
	"sync"

	"github.com/adaptlight/lampcore/internal/lamp/state"
)

// Call records a single state.Sink method invocation, tagged by Kind so
// tests can assert on the sequence of render calls a transition produced.
type Call struct {
	Kind    string // "static", "animation", "voice_reactive", "clear"
	R, G, B int
	RExpr   string
	GExpr   string
	BExpr   string
	SpeedMs int
	Voice   state.VoiceReactive
}

// RecordingSink is a state.Sink test double that appends every call it
// receives, for assertions in engine/scheduler/pipeline tests.
type RecordingSink struct {
	mu    sync.Mutex
	calls []Call
}

// NewRecordingSink creates an empty RecordingSink.
func NewRecordingSink() *RecordingSink { return &RecordingSink{} }

func (s *RecordingSink) RenderStatic(r, g, b int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Kind: "static", R: r, G: g, B: b})
}

func (s *RecordingSink) RenderAnimation(rExpr, gExpr, bExpr string, speedMs int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Kind: "animation", RExpr: rExpr, GExpr: gExpr, BExpr: bExpr, SpeedMs: speedMs})
}

func (s *RecordingSink) RenderVoiceReactive(v state.VoiceReactive) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Kind: "voice_reactive", Voice: v})
}

func (s *RecordingSink) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Kind: "clear"})
}

// Calls returns a copy of every call recorded so far.
func (s *RecordingSink) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// Last returns the most recent call and whether any call has occurred.
func (s *RecordingSink) Last() (Call, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.calls) == 0 {
		return Call{}, false
	}
	return s.calls[len(s.calls)-1], true
}

// Reset clears every recorded call.
func (s *RecordingSink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}
