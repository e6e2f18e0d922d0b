// Package failure defines the error kinds every user action can end with.
// A failure is always scoped to the action that raised it.
package failure

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind int

const (
	Unknown Kind = iota
	// Validation: caller input does not satisfy a contract. Raised before any network call.
	Validation
	// Generation: the model could not be reached, timed out, or returned content
	// that does not conform to the declared output schema.
	Generation
	// DeviceAccess: camera or media access denied or unavailable.
	DeviceAccess
	// Persistence: profile or history read/write failed.
	Persistence
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case Generation:
		return "generation"
	case DeviceAccess:
		return "device_access"
	case Persistence:
		return "persistence"
	}
	return "unknown"
}

// Error is a classified failure.
type Error struct {
	Kind Kind
	Op   string // operation that failed, e.g. "flows.AnalyzeProduct"
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = msg + ": " + e.Err.Error()
		}
	}
	if e.Op == "" {
		return fmt.Sprintf("%s failure: %s", e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s failure: %s", e.Op, e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same kind, so errors.Is(err, failure.ErrGeneration) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Op == "" && t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrValidation   = &Error{Kind: Validation}
	ErrGeneration   = &Error{Kind: Generation}
	ErrDeviceAccess = &Error{Kind: DeviceAccess}
	ErrPersistence  = &Error{Kind: Persistence}
)

func newf(kind Kind, op string, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...), Err: err}
}

// Validationf builds a Validation failure.
func Validationf(op, format string, args ...any) *Error {
	return newf(Validation, op, nil, format, args...)
}

// Generationf builds a Generation failure wrapping err.
func Generationf(op string, err error, format string, args ...any) *Error {
	return newf(Generation, op, err, format, args...)
}

// DeviceAccessf builds a DeviceAccess failure wrapping err.
func DeviceAccessf(op string, err error, format string, args ...any) *Error {
	return newf(DeviceAccess, op, err, format, args...)
}

// Persistencef builds a Persistence failure wrapping err.
func Persistencef(op string, err error, format string, args ...any) *Error {
	return newf(Persistence, op, err, format, args...)
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Unknown
}
