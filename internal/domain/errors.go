package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateAction   = errors.New("duplicate action")
	ErrInvalidState      = errors.New("invalid state")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrNotFound          = errors.New("not found")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInvalidInput      = errors.New("invalid input")

	// ErrNotAcceptingInput is the InvalidState flavor used by votables
	// outside their feedback window.
	ErrNotAcceptingInput = fmt.Errorf("not accepting input: %w", ErrInvalidState)
)

// ActionError describes a rejected command. It unwraps to one of the
// sentinel errors above.
type ActionError struct {
	Op       string
	Kind     error
	Detail   string
	Existing string
}

func (e *ActionError) Error() string {
	msg := e.Kind.Error()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *ActionError) Unwrap() error { return e.Kind }

func Reject(op string, kind error, format string, args ...any) *ActionError {
	return &ActionError{Op: op, Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// Duplicate reports a uniqueness conflict held by existing.
func Duplicate(op, existing string) *ActionError {
	return &ActionError{Op: op, Kind: ErrDuplicateAction, Existing: existing, Detail: "already recorded as " + existing}
}

func NotFound(op, what, id string) *ActionError {
	return &ActionError{Op: op, Kind: ErrNotFound, Detail: fmt.Sprintf("%s %s", what, id)}
}

// IsDomain reports whether err is an expected, recoverable command rejection.
func IsDomain(err error) bool {
	for _, k := range []error{ErrDuplicateAction, ErrInvalidState, ErrInvalidTransition, ErrNotFound, ErrUnauthorized, ErrInvalidInput} {
		if errors.Is(err, k) {
			return true
		}
	}
	return false
}

// IsInfrastructure reports whether err came from the store rather than the rules.
func IsInfrastructure(err error) bool {
	return err != nil && !IsDomain(err)
}

// ExistingHolder returns the id of the record that blocked a duplicate action.
func ExistingHolder(err error) (string, bool) {
	var ae *ActionError
	if errors.As(err, &ae) && errors.Is(ae.Kind, ErrDuplicateAction) {
		return ae.Existing, true
	}
	return "", false
}
