// Package fault defines the typed error kinds shared by the tool handlers,
// stores, engine, and HTTP layer. Every user-visible failure is classified
// with a Kind so the server can map it to a status code without string
// matching.
package fault

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies an error.
type Kind string

const (
	InvalidPath       Kind = "invalid_path"
	InvalidParameters Kind = "invalid_parameters"
	NotFound          Kind = "not_found"
	Corrupt           Kind = "corrupt"
	ModelFailure      Kind = "model_failure"
	Cancelled         Kind = "cancelled"
	BudgetExhausted   Kind = "budget_exhausted"
	IOError           Kind = "io_error"
)

// Error is a classified error with an optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a fault with the given kind and formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an existing error. A nil cause returns nil.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of err, or "" when err carries no fault.
// Context cancellation is recognized even when unwrapped.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if errors.Is(err, context.Canceled) {
		return Cancelled
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
