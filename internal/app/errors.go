package service

import (
	"errors"
	"fmt"

	"github.com/okian/rollcall/internal/adapters/repository"
)

// Sentinel kinds for service errors.
var (
	// ErrConfigurationMissing means the team has no active score settings.
	// It is fatal for a recompute and never retried.
	ErrConfigurationMissing = errors.New("configuration missing")
	ErrInvalidInput         = errors.New("invalid input")
	ErrBatchTooLarge        = errors.New("batch too large")
	ErrNotStarted           = errors.New("service not started")
	// ErrQueueFull means the recompute queue rejected the job; retry later.
	ErrQueueFull            = errors.New("recompute queue full")
	ErrStoreRequired        = errors.New("store is required")
	ErrNotFound             = repository.ErrNotFound
	ErrInvalidLimit         = repository.ErrInvalidLimit
)

// RetryableError marks a transient failure, typically the store being
// unavailable. Nothing was changed; the caller may try again.
type RetryableError struct {
	Op  string
	Err error
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("%s: retryable: %v", e.Op, e.Err)
}

func (e *RetryableError) Unwrap() error { return e.Err }

// IsRetryable reports whether err, or anything it wraps, is a RetryableError.
func IsRetryable(err error) bool {
	var r *RetryableError
	return errors.As(err, &r)
}

func retryable(op string, err error) error {
	return &RetryableError{Op: op, Err: err}
}
