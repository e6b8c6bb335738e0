// Package lamperr implements the error taxonomy from spec.md §7, grounded
// on nexus's internal/agent/errors.go (sentinel errors + a classified,
// wrapping error type usable with errors.Is/errors.As).
package lamperr

import (
	"errors"
	"fmt"
)

// Kind classifies a lamp engine error per spec.md §7.
type Kind string

const (
	// KindSandboxViolation: an expression referenced a forbidden identifier.
	KindSandboxViolation Kind = "sandbox_violation"

	// KindUnknownState: a rule's `to`, or a setState/pipeline target, names a
	// non-existent state.
	KindUnknownState Kind = "unknown_state"

	// KindIllegalOperation: e.g. deleting off/on, duration_ms without then.
	KindIllegalOperation Kind = "illegal_operation"

	// KindTimeout: a fetch/tool call exceeded its bound.
	KindTimeout Kind = "timeout"

	// KindFetchError: the API executor or a custom tool raised.
	KindFetchError Kind = "fetch_error"

	// KindPipelineDepthExceeded: `run` recursion exceeded the depth limit.
	KindPipelineDepthExceeded Kind = "pipeline_depth_exceeded"

	// KindNotFound: pipeline/state/tool by name is missing.
	KindNotFound Kind = "not_found"
)

// Error wraps an underlying cause with a Kind and the operation that
// produced it, supporting errors.Is/errors.As against both the Kind and the
// wrapped cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is a *Error with the same Kind, letting callers
// write errors.Is(err, lamperr.New(lamperr.KindNotFound, "", nil)) or more
// commonly use the Is* helpers below.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// New creates an *Error of the given kind for operation op, wrapping cause
// (which may be nil).
func New(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

func sentinel(kind Kind) error { return &Error{Kind: kind} }

// Sentinels usable with errors.Is for a bare kind check, e.g.
// errors.Is(err, lamperr.ErrNotFound).
var (
	ErrSandboxViolation      = sentinel(KindSandboxViolation)
	ErrUnknownState          = sentinel(KindUnknownState)
	ErrIllegalOperation      = sentinel(KindIllegalOperation)
	ErrTimeout               = sentinel(KindTimeout)
	ErrFetch                 = sentinel(KindFetchError)
	ErrPipelineDepthExceeded = sentinel(KindPipelineDepthExceeded)
	ErrNotFound              = sentinel(KindNotFound)
)

// KindOf extracts the Kind from err if it is (or wraps) a *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
