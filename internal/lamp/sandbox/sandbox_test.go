package sandbox

import "testing"

type memStore struct {
	m map[string]any
}

func newMemStore() *memStore { return &memStore{m: make(map[string]any)} }

func (s *memStore) Get(key string) (any, bool) { v, ok := s.m[key]; return v, ok }
func (s *memStore) Set(key string, value any)  { s.m[key] = value }

func TestEvalGuard_Comparison(t *testing.T) {
	expr, err := Compile("getData(\"count\") >= 3 and time.hour < 22")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	data := newMemStore()
	data.Set("count", float64(3))
	ctx := &Context{Data: data, Time: TimeSnapshot{Hour: 10}}
	ok, err := expr.EvalGuard(ctx)
	if err != nil {
		t.Fatalf("EvalGuard: %v", err)
	}
	if !ok {
		t.Fatalf("expected guard to be true")
	}
}

func TestEvalGuard_UnboundIdentifierIsViolationAndFalse(t *testing.T) {
	expr, err := Compile("nonexistent == 1")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	ok, err := expr.EvalGuard(&Context{})
	if ok {
		t.Fatalf("expected false on violation")
	}
	if err == nil || !IsViolation(err) {
		t.Fatalf("expected a sandbox violation error, got %v", err)
	}
}

func TestEvalAction_SetData(t *testing.T) {
	expr, err := Compile("setData(\"count\", getData(\"count\") + 1)")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	data := newMemStore()
	data.Set("count", float64(5))
	if err := expr.EvalAction(&Context{Data: data}); err != nil {
		t.Fatalf("EvalAction: %v", err)
	}
	v, _ := data.Get("count")
	if v.(float64) != 6 {
		t.Fatalf("expected count=6, got %v", v)
	}
}

func TestEvalAction_SetDataRejectedOutsideActionFlavor(t *testing.T) {
	expr, err := Compile("setData(\"x\", 1)")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	_, err = expr.EvalGuard(&Context{Data: newMemStore()})
	if err == nil || !IsViolation(err) {
		t.Fatalf("expected setData to be rejected as a violation outside action flavor, got %v", err)
	}
}

func TestEvalColour_ClampsAndAnimates(t *testing.T) {
	expr, err := Compile("128 + 200 * sin(t)")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	v, err := expr.EvalColour(&Context{T: 0})
	if err != nil {
		t.Fatalf("EvalColour: %v", err)
	}
	if v < 0 || v > 255 {
		t.Fatalf("expected clamped channel, got %d", v)
	}
}

func TestEvalColour_OutOfRangeClamps(t *testing.T) {
	expr, err := Compile("1000")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	v, err := expr.EvalColour(&Context{})
	if err != nil {
		t.Fatalf("EvalColour: %v", err)
	}
	if v != 255 {
		t.Fatalf("expected clamp to 255, got %d", v)
	}
}

func TestEvalColour_RGBBindingsOnlyInColourFlavor(t *testing.T) {
	expr, err := Compile("r + g + b")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if _, err := expr.EvalGuard(&Context{}); err == nil {
		t.Fatalf("expected r/g/b to be unbound outside colour flavor")
	}
	v, err := expr.EvalColour(&Context{R: 10, G: 20, B: 30})
	if err != nil {
		t.Fatalf("EvalColour: %v", err)
	}
	if v != 60 {
		t.Fatalf("expected 60, got %d", v)
	}
}

func TestCompile_SyntaxError(t *testing.T) {
	if _, err := Compile("1 +"); err == nil {
		t.Fatalf("expected a parse error for an incomplete expression")
	}
}

func TestEvalGuard_StringEquality(t *testing.T) {
	expr, err := Compile("getData(\"mode\") == \"party\"")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	data := newMemStore()
	data.Set("mode", "party")
	ok, err := expr.EvalGuard(&Context{Data: data})
	if err != nil {
		t.Fatalf("EvalGuard: %v", err)
	}
	if !ok {
		t.Fatalf("expected string equality to hold")
	}
}
