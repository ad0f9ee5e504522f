// Package queue implements the pool mutations that end or reshuffle a
// task's stay: skip, submit and in-place field corrections, plus intake of
// new tasks.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/qcsys/recordq/internal/domain"
)

// Common error types for QueueMutator
var (
	// ErrTaskNotFound indicates the task is no longer in the pool.
	ErrTaskNotFound = errors.New("task not found")

	// ErrNotLeaseHolder indicates a submit by anyone but the current holder.
	ErrNotLeaseHolder = errors.New("caller does not hold the lease")

	// ErrInconsistent indicates a submit removed the task from the pool but
	// could not archive it. The orphaned payload is logged for recovery.
	ErrInconsistent = errors.New("task removed from pool but not archived")

	// ErrNoCurrentGroup indicates intake without a configured current group.
	ErrNoCurrentGroup = fmt.Errorf("%w: current session is not configured", domain.ErrValidation)
)

// InconsistencyError carries the payload that was lost between the pool
// delete and the failed archive insert.
type InconsistencyError struct {
	TaskID string
	Orphan *domain.ArchivedRecord
	Err    error
}

func (e *InconsistencyError) Error() string {
	return fmt.Sprintf("task %s: %v: %v", e.TaskID, ErrInconsistent, e.Err)
}

// Is matches ErrInconsistent.
func (e *InconsistencyError) Is(target error) bool {
	return target == ErrInconsistent
}

func (e *InconsistencyError) Unwrap() error {
	return e.Err
}

// Intake is a new task reported by a quality check station.
type Intake struct {
	Label    string `json:"label" validate:"required"`
	Number   string `json:"number" validate:"required"`
	URL      string `json:"url"`
	Note     string `json:"note"`
	Location string `json:"location"`
}

// QueueMutator defines the pool operations outside the lease lifecycle.
type QueueMutator interface {
	// Skip defers a task: the caller must hold its lease or the lease must be
	// expired. The task is reinserted unleased under a new ID with
	// DeferredAt = now, ahead of every never-deferred task.
	//
	// Returns:
	//   - (*domain.Task, nil): the reinserted task
	//   - (nil, ErrTaskNotFound): the task is not pooled
	//   - (nil, lease.ErrLeaseOwnedByOther): another identity holds a live lease
	Skip(ctx context.Context, taskID, identity string) (*domain.Task, error)

	// Submit validates sub, removes the task only if identity holds its
	// lease (expired or not) and archives the result.
	//
	// Returns:
	//   - (*domain.ArchivedRecord, nil): the stored archive
	//   - (nil, *domain.ValidationError): sub is incomplete, nothing changed
	//   - (nil, ErrNotLeaseHolder): identity is not the holder, nothing changed
	//   - (nil, *InconsistencyError): removed but not archived
	Submit(ctx context.Context, identity string, sub *domain.Submission) (*domain.ArchivedRecord, error)

	// UpdateField sets a whitelisted payload field without checking the lease.
	UpdateField(ctx context.Context, taskID, field string, value any) error

	// Enqueue adds a new unleased task to groupKey on behalf of identity.
	Enqueue(ctx context.Context, groupKey, identity string, in Intake) (*domain.Task, error)
}

// ServiceError wraps errors from the queue mutator with additional context.
type ServiceError struct {
	// Operation is the operation that failed (e.g., "skip", "submit")
	Operation string
	// Message is a human-readable description of the error
	Message string
	// Err is the underlying error that caused the failure
	Err error
}

// Error implements the error interface for ServiceError.
func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s operation failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("%s operation failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// NewServiceError returns a new ServiceError for operation.
func NewServiceError(operation, message string, err error) *ServiceError {
	return &ServiceError{Operation: operation, Message: message, Err: err}
}

// Clock returns the current instant.
type Clock func() time.Time
