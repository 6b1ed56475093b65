// Package errors provides custom error types for the sync engine
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents the type of error that occurred
type ErrorCode string

const (
	ErrCodeTransportFailure  ErrorCode = "TRANSPORT_FAILURE"
	ErrCodeStorageFailure    ErrorCode = "STORAGE_FAILURE"
	ErrCodeConflictFailure   ErrorCode = "CONFLICT_FAILURE"
	ErrCodeRetriesExhausted  ErrorCode = "RETRIES_EXHAUSTED"
	ErrCodeValidationFailure ErrorCode = "VALIDATION_FAILURE"
)

// Kind classifies how an error should be treated by callers
type Kind string

const (
	// KindTransient errors may succeed if the operation is retried
	KindTransient Kind = "transient"

	// KindPermanent errors will not succeed no matter how often retried
	KindPermanent Kind = "permanent"

	// KindUsage errors indicate a caller mistake (bad arguments, missing state)
	KindUsage Kind = "usage"
)

// Operation represents the type of engine operation
type Operation string

const (
	OpSubscribe   Operation = "subscribe"
	OpUnsubscribe Operation = "unsubscribe"
	OpLiveQuery   Operation = "live_query"
	OpEnqueue     Operation = "enqueue"
	OpDrain       Operation = "drain"
	OpCommit      Operation = "commit"
	OpCheck       Operation = "consistency_check"
	OpResolve     Operation = "conflict_resolve"
	OpRead        Operation = "read"
	OpWatch       Operation = "network_watch"
	OpReset       Operation = "reset"
	OpClose       Operation = "close"
	OpOpen        Operation = "open"
	OpRecord      Operation = "dead_letter_record"
	OpPurge       Operation = "dead_letter_purge"
)

// SyncError represents an error that occurred inside the sync engine
type SyncError struct {
	// Operation during which the error occurred
	Op Operation

	// Component that generated the error (e.g., "queue", "subscription")
	Component string

	// Underlying error
	Err error

	// Whether the operation can be retried
	Retryable bool

	// Error code for the error type
	Code ErrorCode

	// Kind classifies the failure for callers
	Kind Kind

	// Metadata for additional context
	Metadata map[string]interface{}
}

func (e *SyncError) Error() string {
	var msg string
	if e.Component != "" {
		msg = fmt.Sprintf("%s operation failed in %s component", e.Op, e.Component)
	} else {
		msg = fmt.Sprintf("%s operation failed", e.Op)
	}

	if e.Code != "" {
		msg += fmt.Sprintf(" [%s]", e.Code)
	}

	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}

	return msg
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// NewTransportError creates a SyncError for a failed store round-trip
func NewTransportError(op Operation, component string, cause error) *SyncError {
	return &SyncError{
		Code:      ErrCodeTransportFailure,
		Kind:      KindTransient,
		Op:        op,
		Component: component,
		Err:       cause,
		Retryable: true,
	}
}

// NewStorageError creates a SyncError for a local persistence failure
func NewStorageError(op Operation, cause error) *SyncError {
	return &SyncError{
		Code:      ErrCodeStorageFailure,
		Kind:      KindTransient,
		Op:        op,
		Component: "storage",
		Err:       cause,
		Retryable: true,
	}
}

// NewConflictError creates a SyncError for a conflict-resolution usage mistake
func NewConflictError(op Operation, cause error) *SyncError {
	return &SyncError{
		Code:      ErrCodeConflictFailure,
		Kind:      KindUsage,
		Op:        op,
		Component: "consistency",
		Err:       cause,
		Retryable: false,
	}
}

// NewValidationError creates a SyncError for invalid caller input
func NewValidationError(op Operation, cause error) *SyncError {
	return &SyncError{
		Code:      ErrCodeValidationFailure,
		Kind:      KindUsage,
		Op:        op,
		Err:       cause,
		Retryable: false,
	}
}

// NewExhaustedRetriesError creates a SyncError for a queue item dropped after
// its final retry. Metadata carries the item identity for operators.
func NewExhaustedRetriesError(cause error, metadata map[string]interface{}) *SyncError {
	return &SyncError{
		Code:      ErrCodeRetriesExhausted,
		Kind:      KindPermanent,
		Op:        OpDrain,
		Component: "queue",
		Err:       cause,
		Retryable: false,
		Metadata:  metadata,
	}
}

// New creates a new SyncError
func New(op Operation, err error) *SyncError {
	return &SyncError{
		Op:  op,
		Err: err,
	}
}

// NewWithComponent creates a new SyncError with component information
func NewWithComponent(op Operation, component string, err error) *SyncError {
	return &SyncError{
		Op:        op,
		Component: component,
		Err:       err,
	}
}

// IsRetryable checks if an error is a retryable SyncError
func IsRetryable(err error) bool {
	var syncErr *SyncError
	if errors.As(err, &syncErr) {
		return syncErr.Retryable
	}
	return false
}

// CodeOf extracts the ErrorCode from an error chain, or "" if none
func CodeOf(err error) ErrorCode {
	var syncErr *SyncError
	if errors.As(err, &syncErr) {
		return syncErr.Code
	}
	return ""
}
