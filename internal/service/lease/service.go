// Package lease allocates pool tasks to callers under time-bounded
// exclusive leases.
//
// Expiry is lazy: no background sweep runs. A lease older than the TTL is
// simply ignored by the eligibility check of the next AcquireNext call.
package lease

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/qcsys/recordq/internal/domain"
)

// Common error types for LeaseManager
var (
	// ErrNoEligibleTask indicates no task is currently available for the caller.
	// Callers retry later; AcquireNext never blocks.
	ErrNoEligibleTask = errors.New("no eligible task")

	// ErrLeaseNotOwned indicates a renew on a task the caller does not hold.
	ErrLeaseNotOwned = errors.New("lease not owned by caller")

	// ErrLeaseOwnedByOther indicates the task's lease belongs to another identity.
	ErrLeaseOwnedByOther = errors.New("lease owned by another identity")

	// ErrMissingIdentity indicates a mutating call without a caller identity.
	ErrMissingIdentity = fmt.Errorf("%w: identity is required", domain.ErrValidation)

	// ErrMissingTaskID indicates a call without a task ID.
	ErrMissingTaskID = fmt.Errorf("%w: task id is required", domain.ErrValidation)
)

// ExpiryInfo describes the active lease that will lapse first.
type ExpiryInfo struct {
	TaskID     string    `json:"_id"`
	Holder     string    `json:"holder"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Status summarizes the pool, or one group of it.
type Status struct {
	GroupKey   string      `json:"session,omitempty"`
	Total      int         `json:"total"`
	Leased     int         `json:"locked"`
	NextExpiry *ExpiryInfo `json:"next_locked"`
}

// LeaseManager owns task selection and the lease lifecycle.
type LeaseManager interface {
	// AcquireNext leases the first eligible task of groupKey (any group when
	// empty) to identity. A task is eligible when unleased, when its lease
	// is older than the TTL, or when identity already holds it.
	//
	// Returns:
	//   - (*domain.Task, nil): the leased task
	//   - (nil, ErrNoEligibleTask): nothing matched
	AcquireNext(ctx context.Context, groupKey, identity string) (*domain.Task, error)

	// Renew restarts the lease clock of a task identity holds.
	// Returns ErrLeaseNotOwned when identity does not hold the lease or the
	// task no longer exists.
	Renew(ctx context.Context, taskID, identity string) error

	// Release clears identity's lease. Releasing an unleased or missing task
	// succeeds; a task leased by anyone else yields ErrLeaseOwnedByOther.
	Release(ctx context.Context, taskID, identity string) error

	// Status counts tasks and unexpired leases of groupKey.
	Status(ctx context.Context, groupKey string) (*Status, error)

	// ListGroups returns every group key with tasks in the pool.
	ListGroups(ctx context.Context) ([]string, error)

	// TTL returns the process-wide lease lifetime.
	TTL() time.Duration
}

// ServiceError wraps errors from the lease manager with additional context.
type ServiceError struct {
	// Operation is the operation that failed (e.g., "acquire_next", "renew")
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
