package store

import (
	"errors"
	"fmt"
)

// Error represents a store-level failure with enough context to reproduce:
// the entity kind, the offending ID and the failing operation.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Kind is the entity kind involved ("task", "parameter", ...).
	Kind string

	// ID is the entity ID involved, or -1 when not applicable.
	ID int

	// Message is a human-readable description.
	Message string

	// Err is the wrapped cause, if any.
	Err error
}

// ErrorCode categorizes store errors.
type ErrorCode string

const (
	// ErrCodeUnknownID indicates a request for an entity ID that was never
	// allocated. Always a programming error; never retried.
	ErrCodeUnknownID ErrorCode = "UNKNOWN_ID"

	// ErrCodeAlreadySet indicates an attempt to re-set an already-set
	// parameter. The unset→set transition is one-way.
	ErrCodeAlreadySet ErrorCode = "ALREADY_SET"

	// ErrCodeBadLoopRange indicates a loop whose task-index range is not
	// contiguous ascending.
	ErrCodeBadLoopRange ErrorCode = "BAD_LOOP_RANGE"

	// ErrCodeCommitFailed indicates a failure while applying one
	// resource-grouped batch of commit steps.
	ErrCodeCommitFailed ErrorCode = "COMMIT_FAILED"
)

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Kind != "" && e.ID >= 0 {
		return fmt.Sprintf("%s: %s (kind=%s, id=%d)", e.Code, e.Message, e.Kind, e.ID)
	}
	if e.Kind != "" {
		return fmt.Sprintf("%s: %s (kind=%s)", e.Code, e.Message, e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsUnknownID returns true for unknown-entity-ID errors.
// Uses errors.As to handle wrapped errors.
func IsUnknownID(err error) bool {
	var se *Error
	return errors.As(err, &se) && se.Code == ErrCodeUnknownID
}

// IsAlreadySet returns true for parameter re-set errors.
func IsAlreadySet(err error) bool {
	var se *Error
	return errors.As(err, &se) && se.Code == ErrCodeAlreadySet
}

// IsBadLoopRange returns true for non-contiguous loop range errors.
func IsBadLoopRange(err error) bool {
	var se *Error
	return errors.As(err, &se) && se.Code == ErrCodeBadLoopRange
}

// IsCommitFailed returns true for commit-step failures.
func IsCommitFailed(err error) bool {
	var se *Error
	return errors.As(err, &se) && se.Code == ErrCodeCommitFailed
}

func unknownIDError(kind string, id int) *Error {
	return &Error{
		Code:    ErrCodeUnknownID,
		Kind:    kind,
		ID:      id,
		Message: "no such entity",
	}
}

func alreadySetError(id int) *Error {
	return &Error{
		Code:    ErrCodeAlreadySet,
		Kind:    "parameter",
		ID:      id,
		Message: "parameter value is already set",
	}
}

func commitError(step string, err error) *Error {
	return &Error{
		Code:    ErrCodeCommitFailed,
		ID:      -1,
		Message: fmt.Sprintf("commit step %s failed; its pending bucket is retained for retry", step),
		Err:     err,
	}
}
