// internal/browser/element/errors.go
package element

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies element operation failures.
type Kind int

const (
	// KindInvalidReference means the element index or backend id does not
	// address a node. Never retried.
	KindInvalidReference Kind = iota + 1
	// KindGeometryUnresolvable means none of the geometry strategies produced a quad.
	KindGeometryUnresolvable
	// KindTargetIntercepted means another element sits on top of the target.
	KindTargetIntercepted
	// KindTransient covers failures that may succeed on a later attempt.
	KindTransient
	// KindPermanent covers failures retrying will not fix.
	KindPermanent
)

func (k Kind) String() string {
	switch k {
	case KindInvalidReference:
		return "invalid_reference"
	case KindGeometryUnresolvable:
		return "geometry_unresolvable"
	case KindTargetIntercepted:
		return "target_intercepted"
	case KindTransient:
		return "transient"
	case KindPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// Reasons used with KindTransient.
const (
	ReasonNotVisible    = "not visible"
	ReasonResolveFailed = "failed to resolve"
	ReasonNoGeometry    = "no geometry found"
	ReasonTimedOut      = "timed out"
)

// Error is the structured failure returned by the resolver and engine.
type Error struct {
	Kind      Kind
	Op        string
	BackendID int64
	Reason    string
	Err       error
}

func (e *Error) Error() string {
	msg := e.Reason
	if e.BackendID != 0 {
		msg = fmt.Sprintf("element %d: %s", e.BackendID, e.Reason)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, op string, backendID int64, reason string, err error) *Error {
	return &Error{Kind: kind, Op: op, BackendID: backendID, Reason: reason, Err: err}
}

// classify wraps a protocol failure, treating deadline overruns as transient.
func classify(op string, backendID int64, reason string, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return newError(KindTransient, op, backendID, ReasonTimedOut, err)
	}
	return newError(KindPermanent, op, backendID, reason, err)
}

// KindOf returns the kind of a wrapped *Error, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// IsRetryable reports whether err is worth another attempt: transient element
// failures, unresolvable geometry and anything wrapping a deadline overrun.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch KindOf(err) {
	case KindTransient, KindGeometryUnresolvable:
		return true
	case KindInvalidReference:
		return false
	}
	return errors.Is(err, context.DeadlineExceeded)
}
