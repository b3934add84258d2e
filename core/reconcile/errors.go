package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrSyncInProgress is returned when a pass is requested while another is running.
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrConflictNotFound is returned when a manual decision targets an unknown key.
	ErrConflictNotFound = errors.New("conflict not found")

	// ErrUnsupportedFormat is returned by audit export for unknown formats.
	ErrUnsupportedFormat = errors.New("unsupported audit format")

	// ErrImmutableMapping is returned when a configuration update tries to change the field mapping.
	ErrImmutableMapping = errors.New("field mapping cannot be changed at runtime")
)

// ConnectionError means a collaborator was unreachable or unhealthy.
type ConnectionError struct {
	Side Side
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s connection failed: %v", e.Side, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// TimeoutError means a collaborator call exceeded its configured budget.
type TimeoutError struct {
	Op      string
	Timeout time.Duration
	Err     error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Op, e.Timeout)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// ConfigurationError is raised at construction for missing or malformed configuration.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Field, e.Reason)
}

// ConflictUnresolvedError describes why a conflict sits in the pending registry.
// ResolveConflict returns it when a decision cannot be written.
type ConflictUnresolvedError struct {
	Key    string
	Reason string
}

func (e *ConflictUnresolvedError) Error() string {
	return fmt.Sprintf("conflict for %s needs a manual decision: %s", e.Key, e.Reason)
}

// PersistenceError wraps a key-value store failure.
type PersistenceError struct {
	Op  string
	Key string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// callError classifies a collaborator failure as a timeout or a connection error.
func callError(side Side, op string, timeout time.Duration, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Op: op, Timeout: timeout, Err: err}
	}
	return &ConnectionError{Side: side, Err: fmt.Errorf("%s: %w", op, err)}
}
