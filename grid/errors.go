package grid

import (
	"errors"
	"fmt"
)

var (
	// ErrBackendUnavailable is returned when the backend cannot be reached.
	// The core never retries it.
	ErrBackendUnavailable = errors.New("grid: backend unavailable")

	// ErrBackendRejected is returned when the backend refused an operation
	// (constraint violation, validation failure, throughput limit).
	ErrBackendRejected = errors.New("grid: backend rejected operation")

	// ErrTupleAlreadyExists is returned when insert-only semantics were
	// requested and the key is already taken.
	ErrTupleAlreadyExists = errors.New("grid: tuple already exists")

	// ErrConcurrencyConflict is returned when an optimistic-lock compare-and-swap fails.
	ErrConcurrencyConflict = errors.New("grid: concurrent modification")

	// ErrUnsupportedCapability is returned when an optional capability is
	// invoked on a dialect that does not declare it.
	ErrUnsupportedCapability = errors.New("grid: capability not supported by dialect")

	// ErrQueueClosed is returned when adding to a queue that was already flushed.
	ErrQueueClosed = errors.New("grid: operations queue is closed")

	// ErrInvalidKey is returned when key or metadata construction arguments are invalid.
	ErrInvalidKey = errors.New("grid: invalid key")
)

// TupleAlreadyExistsError reports the key that violated insert-only semantics.
type TupleAlreadyExistsError struct {
	Key EntityKey
}

func (e *TupleAlreadyExistsError) Error() string {
	return fmt.Sprintf("grid: tuple already exists: %s", e.Key)
}

func (e *TupleAlreadyExistsError) Unwrap() error { return ErrTupleAlreadyExists }

// ConflictError reports the key whose optimistic lock check failed.
type ConflictError struct {
	Key EntityKey
	Op  OperationType
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("grid: concurrent modification of %s during %s", e.Key, e.Op)
}

func (e *ConflictError) Unwrap() error { return ErrConcurrencyConflict }

// PartialBatchError reports a batch that failed after some of its
// operations had already reached the backend. Applied lists them in queue
// order.
type PartialBatchError struct {
	Applied []Operation
	Err     error
}

func (e *PartialBatchError) Error() string {
	return fmt.Sprintf("grid: batch failed after %d applied operation(s): %v", len(e.Applied), e.Err)
}

func (e *PartialBatchError) Unwrap() error { return e.Err }

// PartialBatch wraps err with the operations applied before it. It returns
// err unchanged when nothing was applied.
func PartialBatch(applied []Operation, err error) error {
	if err == nil || len(applied) == 0 {
		return err
	}
	return &PartialBatchError{Applied: applied, Err: err}
}

// Unavailable wraps a transport failure as ErrBackendUnavailable.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrBackendUnavailable, op, err)
}

// Rejected wraps a backend refusal as ErrBackendRejected.
func Rejected(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrBackendRejected, op, err)
}

// Outcome classifies err into a short label for logs and metrics.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrTupleAlreadyExists):
		return "already_exists"
	case errors.Is(err, ErrConcurrencyConflict):
		return "conflict"
	case errors.Is(err, ErrBackendUnavailable):
		return "unavailable"
	case errors.Is(err, ErrBackendRejected):
		return "rejected"
	case errors.Is(err, ErrUnsupportedCapability):
		return "unsupported"
	case errors.Is(err, ErrInvalidKey):
		return "invalid_key"
	default:
		return "error"
	}
}
