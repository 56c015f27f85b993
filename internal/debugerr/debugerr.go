// Package debugerr defines the error taxonomy shared across the debugger
// orchestrator. Each kind wraps an optional underlying cause so callers can
// still use errors.Is/errors.As against the sentinel Kind values.
package debugerr

import (
	"errors"
	"fmt"
)

// Kind identifies the category of a debugger error, independent of the
// message text.
type Kind string

const (
	// BadState means an operation was invoked in an incompatible session state.
	BadState Kind = "bad_state"
	// NotStarted means a required collaborator is absent because start()
	// has not completed.
	NotStarted Kind = "not_started"
	// Transport means the WebSocket disconnected, refused the connection,
	// or a send was attempted on a closed socket.
	Transport Kind = "transport"
	// Timeout means a CDP round-trip exceeded its deadline.
	Timeout Kind = "timeout"
	// ProtocolError means CDP replied with a populated "error" field.
	ProtocolError Kind = "protocol_error"
	// EvaluationError means the target raised an exception while evaluating
	// a user expression.
	EvaluationError Kind = "evaluation_error"
	// SpawnError means the target process failed to start or never
	// announced its inspector WebSocket URL.
	SpawnError Kind = "spawn_error"
	// NotFound means a mutation referenced an unknown breakpoint or
	// watched-variable id.
	NotFound Kind = "not_found"
)

// Error is a typed debugger error carrying a Kind, a message, and an
// optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is allows errors.Is(err, debugerr.BadState) style sentinel comparisons by
// matching on Kind rather than identity.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// New constructs an *Error of the given kind with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an *Error of the given kind wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// sentinel returns a zero-value *Error of the given kind, suitable as the
// target of errors.Is(err, debugerr.BadStateErr) comparisons.
func sentinel(kind Kind) *Error { return &Error{Kind: kind} }

// Sentinel values for errors.Is comparisons against a Kind regardless of
// message or cause, e.g. errors.Is(err, debugerr.ErrBadState).
var (
	ErrBadState        = sentinel(BadState)
	ErrNotStarted      = sentinel(NotStarted)
	ErrTransport       = sentinel(Transport)
	ErrTimeout         = sentinel(Timeout)
	ErrProtocolError   = sentinel(ProtocolError)
	ErrEvaluationError = sentinel(EvaluationError)
	ErrSpawnError      = sentinel(SpawnError)
	ErrNotFound        = sentinel(NotFound)
)

// KindOf returns the Kind of err if it is (or wraps) a *Error, and false
// otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
