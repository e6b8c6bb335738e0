package sandbox

import (
	"fmt"
	"math"
	"math/rand"
)

// Flavor selects which binding set and result coercion an expression is
// evaluated under (spec.md §4.C): guards fold to bool, actions run purely
// for getData/setData side effects, colour/animation expressions fold to a
// clamped 0-255 channel intensity.
type Flavor int

const (
	FlavorGuard Flavor = iota
	FlavorAction
	FlavorColour
)

// DataStore is the variable-store contract getData/setData read and
// write. The engine's variable scope implements this.
type DataStore interface {
	Get(key string) (any, bool)
	Set(key string, value any)
}

// TimeSnapshot is the `time` binding and the getTime() return value.
type TimeSnapshot struct {
	Hour      int
	Minute    int
	Second    int
	Weekday   int
	Timestamp int64
}

// Context carries every value an expression may read, scoped to one
// evaluation call. Fields not relevant to the active Flavor are simply
// never looked up.
type Context struct {
	Data  DataStore
	Time  TimeSnapshot
	R, G, B int // colour flavor only: the previous frame's channel values
	T     float64 // colour flavor only: elapsed seconds since animation start
	Frame int64   // colour flavor only: frame counter
	Rand  *rand.Rand
}

// sandboxError marks unbound-identifier and type-mismatch failures as
// sandbox violations (spec.md §4.C, §7) rather than ordinary eval errors,
// so callers can distinguish "expression is malformed" from "expression
// reached outside its sandbox".
type sandboxError struct {
	msg string
}

func (e *sandboxError) Error() string { return e.msg }

func violatef(format string, args ...any) error {
	return &sandboxError{msg: fmt.Sprintf(format, args...)}
}

// IsViolation reports whether err denotes a sandbox-boundary violation
// (unbound identifier, call to an unexposed function, wrong arg count,
// type mismatch) rather than a parse error.
func IsViolation(err error) bool {
	_, ok := err.(*sandboxError)
	return ok
}

type evaluator struct {
	ctx    *Context
	flavor Flavor
}

func eval(n node, ctx *Context, flavor Flavor) (any, error) {
	e := &evaluator{ctx: ctx, flavor: flavor}
	return e.eval(n)
}

func (e *evaluator) eval(n node) (any, error) {
	switch v := n.(type) {
	case numberLit:
		return v.v, nil
	case stringLit:
		return v.v, nil
	case identNode:
		return e.resolveIdent(v.name)
	case memberAccess:
		return e.resolveMember(v)
	case callNode:
		return e.call(v)
	case unaryNode:
		return e.evalUnary(v)
	case binaryNode:
		return e.evalBinary(v)
	default:
		return nil, violatef("unhandled node type %T", n)
	}
}

func (e *evaluator) resolveIdent(name string) (any, error) {
	switch name {
	case "time":
		return e.ctx.Time, nil
	case "r":
		if e.flavor != FlavorColour {
			return nil, violatef("identifier %q is only bound in colour expressions", name)
		}
		return float64(e.ctx.R), nil
	case "g":
		if e.flavor != FlavorColour {
			return nil, violatef("identifier %q is only bound in colour expressions", name)
		}
		return float64(e.ctx.G), nil
	case "b":
		if e.flavor != FlavorColour {
			return nil, violatef("identifier %q is only bound in colour expressions", name)
		}
		return float64(e.ctx.B), nil
	case "t":
		if e.flavor != FlavorColour {
			return nil, violatef("identifier %q is only bound in colour expressions", name)
		}
		return e.ctx.T, nil
	case "frame":
		if e.flavor != FlavorColour {
			return nil, violatef("identifier %q is only bound in colour expressions", name)
		}
		return float64(e.ctx.Frame), nil
	case "PI":
		return math.Pi, nil
	case "E":
		return math.E, nil
	case "true":
		return true, nil
	case "false":
		return false, nil
	case "null":
		return nil, nil
	default:
		if e.ctx.Data != nil {
			if val, ok := e.ctx.Data.Get(name); ok {
				return val, nil
			}
		}
		return nil, violatef("unbound identifier %q", name)
	}
}

func (e *evaluator) resolveMember(m memberAccess) (any, error) {
	target, err := e.eval(m.target)
	if err != nil {
		return nil, err
	}
	ts, ok := target.(TimeSnapshot)
	if !ok {
		return nil, violatef("member access %q is only valid on time", m.field)
	}
	switch m.field {
	case "hour":
		return float64(ts.Hour), nil
	case "minute":
		return float64(ts.Minute), nil
	case "second":
		return float64(ts.Second), nil
	case "weekday":
		return float64(ts.Weekday), nil
	case "timestamp":
		return float64(ts.Timestamp), nil
	default:
		return nil, violatef("unbound field %q on time", m.field)
	}
}

func (e *evaluator) call(c callNode) (any, error) {
	switch c.callee {
	case "getData":
		key, err := e.argString(c, 0)
		if err != nil {
			return nil, err
		}
		if e.ctx.Data == nil {
			return nil, nil
		}
		val, _ := e.ctx.Data.Get(key)
		return val, nil
	case "setData":
		if e.flavor != FlavorAction {
			return nil, violatef("setData is only callable from action expressions")
		}
		key, err := e.argString(c, 0)
		if err != nil {
			return nil, err
		}
		val, err := e.arg(c, 1)
		if err != nil {
			return nil, err
		}
		if e.ctx.Data != nil {
			e.ctx.Data.Set(key, val)
		}
		return nil, nil
	case "getTime":
		return e.ctx.Time, nil
	case "random":
		if len(c.args) != 0 {
			return nil, violatef("random() takes no arguments")
		}
		if e.ctx.Rand != nil {
			return e.ctx.Rand.Float64(), nil
		}
		return rand.Float64(), nil
	case "sin", "cos", "tan", "abs", "floor", "ceil", "round", "sqrt":
		x, err := e.argNumber(c, 0)
		if err != nil {
			return nil, err
		}
		return mathUnary(c.callee, x), nil
	case "min", "max", "pow":
		x, err := e.argNumber(c, 0)
		if err != nil {
			return nil, err
		}
		y, err := e.argNumber(c, 1)
		if err != nil {
			return nil, err
		}
		return mathBinary(c.callee, x, y), nil
	default:
		return nil, violatef("unbound function %q", c.callee)
	}
}

func mathUnary(name string, x float64) float64 {
	switch name {
	case "sin":
		return math.Sin(x)
	case "cos":
		return math.Cos(x)
	case "tan":
		return math.Tan(x)
	case "abs":
		return math.Abs(x)
	case "floor":
		return math.Floor(x)
	case "ceil":
		return math.Ceil(x)
	case "round":
		return math.Round(x)
	case "sqrt":
		return math.Sqrt(x)
	}
	return math.NaN()
}

func mathBinary(name string, x, y float64) float64 {
	switch name {
	case "min":
		return math.Min(x, y)
	case "max":
		return math.Max(x, y)
	case "pow":
		return math.Pow(x, y)
	}
	return math.NaN()
}

func (e *evaluator) arg(c callNode, i int) (any, error) {
	if i >= len(c.args) {
		return nil, violatef("%s expects at least %d arguments", c.callee, i+1)
	}
	return e.eval(c.args[i])
}

func (e *evaluator) argString(c callNode, i int) (string, error) {
	v, err := e.arg(c, i)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", violatef("%s argument %d must be a string", c.callee, i)
	}
	return s, nil
}

func (e *evaluator) argNumber(c callNode, i int) (float64, error) {
	v, err := e.arg(c, i)
	if err != nil {
		return 0, err
	}
	return toNumber(v)
}

func toNumber(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case int:
		return float64(x), nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, violatef("expected a number, got %T", v)
	}
}

func toBool(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		return x != ""
	case nil:
		return false
	default:
		return true
	}
}

func (e *evaluator) evalUnary(u unaryNode) (any, error) {
	x, err := e.eval(u.x)
	if err != nil {
		return nil, err
	}
	switch u.op {
	case tokMinus:
		n, err := toNumber(x)
		if err != nil {
			return nil, err
		}
		return -n, nil
	case tokNot:
		return !toBool(x), nil
	default:
		return nil, violatef("unhandled unary operator")
	}
}

func (e *evaluator) evalBinary(b binaryNode) (any, error) {
	if b.op == tokAnd {
		l, err := e.eval(b.l)
		if err != nil {
			return nil, err
		}
		if !toBool(l) {
			return false, nil
		}
		r, err := e.eval(b.r)
		if err != nil {
			return nil, err
		}
		return toBool(r), nil
	}
	if b.op == tokOr {
		l, err := e.eval(b.l)
		if err != nil {
			return nil, err
		}
		if toBool(l) {
			return true, nil
		}
		r, err := e.eval(b.r)
		if err != nil {
			return nil, err
		}
		return toBool(r), nil
	}

	l, err := e.eval(b.l)
	if err != nil {
		return nil, err
	}
	r, err := e.eval(b.r)
	if err != nil {
		return nil, err
	}

	switch b.op {
	case tokEq:
		return valuesEqual(l, r), nil
	case tokNeq:
		return !valuesEqual(l, r), nil
	}

	ln, lerr := toNumber(l)
	rn, rerr := toNumber(r)
	if lerr != nil || rerr != nil {
		return nil, violatef("operator %v requires numeric operands", b.op)
	}
	switch b.op {
	case tokPlus:
		return ln + rn, nil
	case tokMinus:
		return ln - rn, nil
	case tokStar:
		return ln * rn, nil
	case tokSlash:
		if rn == 0 {
			return nil, violatef("division by zero")
		}
		return ln / rn, nil
	case tokPercent:
		if rn == 0 {
			return nil, violatef("modulo by zero")
		}
		return math.Mod(ln, rn), nil
	case tokLt:
		return ln < rn, nil
	case tokLte:
		return ln <= rn, nil
	case tokGt:
		return ln > rn, nil
	case tokGte:
		return ln >= rn, nil
	default:
		return nil, violatef("unhandled binary operator")
	}
}

func valuesEqual(a, b any) bool {
	an, aerr := toNumber(a)
	bn, berr := toNumber(b)
	if aerr == nil && berr == nil {
		return an == bn
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return as == bs
	}
	return a == b
}
