package sync

import "errors"

// Queue errors.
var (
	ErrMissingEntityType = errors.New("entity type is required")
	ErrUnknownEntityType = errors.New("unknown entity type")
	ErrMissingAction     = errors.New("action is required")
	ErrUnknownAction     = errors.New("unknown action")
	ErrMissingPayload    = errors.New("payload is required")
	ErrEntryNotFound     = errors.New("queue entry not found")
)

// Delivery errors.
var (
	ErrNotAuthenticated = errors.New("no authenticated session")
	ErrOffline          = errors.New("device is offline")
	ErrForbidden        = errors.New("record owned by another user")
	ErrRejected         = errors.New("server rejected entry")
)

// RetryableError wraps a delivery error and marks whether another attempt
// makes sense. Unknown errors default to retryable.
type RetryableError struct {
	Err       error
	Retryable bool
}

func (e *RetryableError) Error() string { return e.Err.Error() }

// IsRetryable returns whether the error is retryable.
func (e *RetryableError) IsRetryable() bool { return e.Retryable }

func (e *RetryableError) Unwrap() error { return e.Err }

// NewRetryableError creates a retryable delivery error.
func NewRetryableError(err error) *RetryableError {
	return &RetryableError{Err: err, Retryable: true}
}

// NewNonRetryableError creates a permanent delivery error.
func NewNonRetryableError(err error) *RetryableError {
	return &RetryableError{Err: err, Retryable: false}
}

// isRetryable checks if an error is retryable.
func isRetryable(err error) bool {
	type retryable interface {
		IsRetryable() bool
	}
	var r retryable
	if errors.As(err, &r) {
		return r.IsRetryable()
	}
	return true
}
