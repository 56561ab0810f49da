package application

import (
	"errors"
	"fmt"

	"github.com/example/networking-rounds/internal/lifecycle"
	"github.com/example/networking-rounds/internal/phase"
)

var (
	// ErrUnauthorized is returned when the acting principal lacks permission for an operation.
	ErrUnauthorized = errors.New("application: unauthorized")
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrStoreUnavailable is returned by repositories when the store cannot
	// serve a request right now.
	ErrStoreUnavailable = errors.New("application: store unavailable")
	// ErrInvalidVerificationCode is returned when an email verification code
	// does not match.
	ErrInvalidVerificationCode = errors.New("application: invalid verification code")
)

// Window closed kinds. WindowClosedError unwraps to one of these.
var (
	ErrRegistrationClosed = errors.New("registration closed")
	ErrTooLateToCancel    = errors.New("too late to cancel")
	ErrConfirmationClosed = errors.New("confirmation closed")
	ErrCheckInClosed      = errors.New("check-in closed")
)

// ErrConflict is the sentinel every ConflictError matches.
var ErrConflict = errors.New("application: conflict")

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	return "validation failed"
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

// merge copies entries from another validation error into the receiver.
func (v *ValidationError) merge(other *ValidationError) {
	if other == nil || len(other.FieldErrors) == 0 {
		return
	}
	for field, msg := range other.FieldErrors {
		v.add(field, msg)
	}
}

// WindowClosedError reports a request that arrived outside the time window
// in which the round accepts it. It is user facing and never retried.
type WindowClosedError struct {
	Kind    error
	RoundID string
	Phase   phase.Phase
}

// Error implements the error interface.
func (e *WindowClosedError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%v: round %s is in phase %s", e.Kind, e.RoundID, e.Phase)
}

// Unwrap exposes the window kind for errors.Is.
func (e *WindowClosedError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Kind
}

func windowClosed(kind error, roundID string, p phase.Phase) error {
	return &WindowClosedError{Kind: kind, RoundID: roundID, Phase: p}
}

// ConflictError reports an event that is not legal from the registration's
// stored status.
type ConflictError struct {
	RegistrationID string
	From           lifecycle.Status
	Event          lifecycle.Event
	Reason         lifecycle.Reason
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	if e == nil {
		return ""
	}
	from := string(e.From)
	if from == "" {
		from = "none"
	}
	return fmt.Sprintf("registration %s: %s not allowed from %s (%s)", e.RegistrationID, e.Event, from, e.Reason)
}

// Is matches ErrConflict.
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// TransientStoreError wraps a store failure that is safe to retry.
type TransientStoreError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *TransientStoreError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransientStoreError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// mapRepoError normalizes repository errors for callers.
func mapRepoError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, ErrStoreUnavailable) {
		return &TransientStoreError{Op: op, Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// rejection translates a state machine rejection.
func rejection(registrationID string, rejected *lifecycle.RejectedError, roundID string, p phase.Phase) error {
	if rejected.Reason == lifecycle.ReasonTooLateToCancel {
		return windowClosed(ErrTooLateToCancel, roundID, p)
	}
	return &ConflictError{
		RegistrationID: registrationID,
		From:           rejected.From,
		Event:          rejected.Event,
		Reason:         rejected.Reason,
	}
}
