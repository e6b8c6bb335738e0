package sink

import "testing"

func TestRecordingSink_RecordsCallsInOrder(t *testing.T) {
	s := NewRecordingSink()
	s.RenderStatic(1, 2, 3)
	s.RenderAnimation("r", "g", "b", 50)
	s.Clear()

	calls := s.Calls()
	if len(calls) != 3 {
		t.Fatalf("expected 3 calls, got %d", len(calls))
	}
	if calls[0].Kind != "static" || calls[0].R != 1 || calls[0].G != 2 || calls[0].B != 3 {
		t.Fatalf("unexpected first call: %+v", calls[0])
	}
	if calls[1].Kind != "animation" || calls[1].SpeedMs != 50 {
		t.Fatalf("unexpected second call: %+v", calls[1])
	}
	if calls[2].Kind != "clear" {
		t.Fatalf("unexpected third call: %+v", calls[2])
	}

	last, ok := s.Last()
	if !ok || last.Kind != "clear" {
		t.Fatalf("expected last call to be clear, got %+v (ok=%v)", last, ok)
	}

	s.Reset()
	if len(s.Calls()) != 0 {
		t.Fatalf("expected Reset to clear recorded calls")
	}
}

func TestLogSink_DoesNotPanicWithNilLogger(t *testing.T) {
	s := NewLogSink(nil)
	s.RenderStatic(255, 255, 255)
	s.Clear()
}
