package requests

import (
	"errors"
	"fmt"
)

// ErrorClassifier allows errors to declare their classification so transports
// can map them to user-facing responses without inspecting concrete types.
type ErrorClassifier interface {
	// ErrorKind returns one of the Kind* constants.
	ErrorKind() string
}

const (
	KindValidation   = "validation"
	KindPrecondition = "precondition"
	KindNotFound     = "not_found"
	KindUnavailable  = "unavailable"
	KindPartialBatch = "partial_batch"
	KindInternal     = "internal"
)

// ErrUnavailable marks store failures. Callers retry by hand; nothing in
// stagequeue retries automatically.
var ErrUnavailable = unavailableError{msg: "request store unavailable"}

// ErrTimeout reports that the store did not acknowledge a submission in time.
// It matches ErrUnavailable under errors.Is.
var ErrTimeout = unavailableError{msg: "request store did not respond in time", timeout: true}

type unavailableError struct {
	msg     string
	timeout bool
}

func (e unavailableError) Error() string     { return e.msg }
func (e unavailableError) ErrorKind() string { return KindUnavailable }

func (e unavailableError) Is(target error) bool {
	t, ok := target.(unavailableError)
	if !ok {
		return false
	}
	if t.timeout {
		return e.timeout
	}
	return true
}

// Unavailable wraps a store failure so it classifies as unavailable.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

// ErrNotFound reports that no request has the given id. A removed request is
// indistinguishable from one that never existed.
var ErrNotFound = notFoundError{}

type notFoundError struct{}

func (notFoundError) Error() string     { return "request not found" }
func (notFoundError) ErrorKind() string { return KindNotFound }

// ValidationError reports bad input rejected before any store call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

func (e *ValidationError) ErrorKind() string { return KindValidation }

// Invalid builds a ValidationError.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// PreconditionError reports an attempted transition from a status that does
// not permit it. Store state is unchanged when it is returned.
type PreconditionError struct {
	ID     string
	Op     string
	Status Status
}

func (e *PreconditionError) Error() string {
	if e.Status == "" {
		return fmt.Sprintf("cannot %s request %s", e.Op, e.ID)
	}
	return fmt.Sprintf("cannot %s request %s while %s", e.Op, e.ID, e.Status)
}

func (e *PreconditionError) ErrorKind() string { return KindPrecondition }

// Kind classifies err using ErrorClassifier, defaulting to KindInternal.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	var classifier ErrorClassifier
	if errors.As(err, &classifier) {
		return classifier.ErrorKind()
	}
	return KindInternal
}
