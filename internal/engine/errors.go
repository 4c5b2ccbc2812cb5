package engine

import (
	"context"
	"errors"
	"fmt"
)

// ExecError represents an error detected while executing a plan.
//
// Execution errors include:
//   - Not found: ExecuteOne matched zero rows
//   - Multiple results: ExecuteOne matched more than one row
//   - Timeout: the context deadline expired mid-execution
//   - Storage unavailable: the storage collaborator failed
//
// ExecError includes structured fields for diagnostics.
type ExecError struct {
	// Code identifies the error category.
	Code ExecErrorCode

	// Message is a human-readable description.
	Message string

	// Relation names the root relation of the failing plan.
	Relation string

	// Err is the underlying cause, if any.
	Err error
}

// ExecErrorCode categorizes execution errors.
type ExecErrorCode string

const (
	// ErrCodeNotFound indicates a single-record fetch matched zero rows.
	ErrCodeNotFound ExecErrorCode = "NOT_FOUND"

	// ErrCodeMultipleResults indicates a single-record fetch matched more
	// than one row.
	ErrCodeMultipleResults ExecErrorCode = "MULTIPLE_RESULTS"

	// ErrCodeTimeout indicates the context deadline expired.
	ErrCodeTimeout ExecErrorCode = "TIMEOUT"

	// ErrCodeStorageUnavailable indicates the storage collaborator failed.
	ErrCodeStorageUnavailable ExecErrorCode = "STORAGE_UNAVAILABLE"
)

// Error implements the error interface.
func (e *ExecError) Error() string {
	if e.Relation != "" {
		return fmt.Sprintf("%s: %s (relation=%s)", e.Code, e.Message, e.Relation)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As chains.
func (e *ExecError) Unwrap() error {
	return e.Err
}

// IsNotFound returns true if the error is a zero-row single fetch.
// Uses errors.As to handle wrapped errors.
func IsNotFound(err error) bool {
	var ee *ExecError
	return errors.As(err, &ee) && ee.Code == ErrCodeNotFound
}

// IsMultipleResults returns true if the error is an over-matched single
// fetch. Uses errors.As to handle wrapped errors.
func IsMultipleResults(err error) bool {
	var ee *ExecError
	return errors.As(err, &ee) && ee.Code == ErrCodeMultipleResults
}

// IsTimeout returns true if the error is a deadline expiry.
// Uses errors.As to handle wrapped errors.
func IsTimeout(err error) bool {
	var ee *ExecError
	return errors.As(err, &ee) && ee.Code == ErrCodeTimeout
}

// IsStorageUnavailable returns true if the error is a storage failure.
// Uses errors.As to handle wrapped errors.
func IsStorageUnavailable(err error) bool {
	var ee *ExecError
	return errors.As(err, &ee) && ee.Code == ErrCodeStorageUnavailable
}

// NewNotFoundError creates an ExecError for a zero-row single fetch.
func NewNotFoundError(relation string) *ExecError {
	return &ExecError{
		Code:     ErrCodeNotFound,
		Message:  "no record matched",
		Relation: relation,
	}
}

// NewMultipleResultsError creates an ExecError for an over-matched single
// fetch.
func NewMultipleResultsError(relation string) *ExecError {
	return &ExecError{
		Code:     ErrCodeMultipleResults,
		Message:  "more than one record matched",
		Relation: relation,
	}
}

// errNonIntegerCount guards the storage contract that count reductions
// come back as integers.
var errNonIntegerCount = errors.New("count reduction returned non-integer")

// newStorageError classifies a storage failure: context expiry becomes a
// timeout, everything else is storage unavailability.
func newStorageError(relation string, err error) *ExecError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &ExecError{
			Code:     ErrCodeTimeout,
			Message:  "execution deadline expired",
			Relation: relation,
			Err:      err,
		}
	}
	return &ExecError{
		Code:     ErrCodeStorageUnavailable,
		Message:  "storage request failed",
		Relation: relation,
		Err:      err,
	}
}
