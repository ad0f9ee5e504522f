package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Payload holds the task content fields (label, note, url, location, ...).
// The lease engine carries it through unchanged.
type Payload map[string]any

// Common validation errors for Task
var (
	ErrEmptyTaskID       = errors.New("task ID cannot be empty")
	ErrEmptyGroupKey     = errors.New("task group key cannot be empty")
	ErrNegativeSequence  = errors.New("task sequence key cannot be negative")
	ErrIncompleteLease   = errors.New("lease requires both holder and acquisition time")
	ErrFieldNotUpdatable = errors.New("field cannot be updated directly")
)

// UpdatableFields lists the payload fields that may be corrected in place
// without holding the task's lease.
var UpdatableFields = map[string]bool{
	"url":      true,
	"title":    true,
	"note":     true,
	"location": true,
	"label":    true,
}

// Lease is the exclusive claim one identity holds on a task.
type Lease struct {
	Holder     string    `json:"holder"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// ExpiresAt reports when the lease stops protecting the task.
func (l Lease) ExpiresAt(ttl time.Duration) time.Time {
	return l.AcquiredAt.Add(ttl)
}

// Task is one unit of checkout work in the active pool.
type Task struct {
	ID          string     `json:"id"`
	GroupKey    string     `json:"group_key"`
	SequenceKey int64      `json:"sequence_key"`
	Payload     Payload    `json:"payload"`
	Lease       *Lease     `json:"lease,omitempty"`
	DeferredAt  *time.Time `json:"deferred_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// NewTask creates an unleased task with a fresh ID.
func NewTask(groupKey string, sequenceKey int64, payload Payload) (*Task, error) {
	if payload == nil {
		payload = Payload{}
	}
	t := &Task{
		ID:          uuid.NewString(),
		GroupKey:    groupKey,
		SequenceKey: sequenceKey,
		Payload:     payload,
		CreatedAt:   time.Now().UTC(),
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate checks if the Task has valid data.
func (t *Task) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return NewValidationError("id", "is required", ErrEmptyTaskID)
	}
	if strings.TrimSpace(t.GroupKey) == "" {
		return NewValidationError("group_key", "is required", ErrEmptyGroupKey)
	}
	if t.SequenceKey < 0 {
		return NewValidationError("sequence_key", "must be >= 0", ErrNegativeSequence)
	}
	if t.Lease != nil && (t.Lease.Holder == "" || t.Lease.AcquiredAt.IsZero()) {
		return NewValidationError("lease", "is incomplete", ErrIncompleteLease)
	}
	return nil
}

// Clone returns a deep copy so stores never hand out shared state.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	c.Payload = make(Payload, len(t.Payload))
	for k, v := range t.Payload {
		c.Payload[k] = v
	}
	if t.Lease != nil {
		l := *t.Lease
		c.Lease = &l
	}
	if t.DeferredAt != nil {
		d := *t.DeferredAt
		c.DeferredAt = &d
	}
	return &c
}

// IsLeasedBy reports whether holder currently holds the lease, expired or not.
func (t *Task) IsLeasedBy(holder string) bool {
	return t.Lease != nil && t.Lease.Holder == holder
}

// LeaseExpired reports whether the lease was acquired strictly before cutoff.
func (t *Task) LeaseExpired(cutoff time.Time) bool {
	return t.Lease != nil && t.Lease.AcquiredAt.Before(cutoff)
}

// Deferred returns a copy re-entered at the back of the deferred tier:
// new ID, same content, no lease, DeferredAt = at.
func (t *Task) Deferred(newID string, at time.Time) *Task {
	c := t.Clone()
	c.ID = newID
	c.Lease = nil
	at = at.UTC()
	c.DeferredAt = &at
	return c
}

// SetPayloadField validates field against UpdatableFields and sets it.
func (t *Task) SetPayloadField(field string, value any) error {
	if err := ValidateUpdatableField(field); err != nil {
		return err
	}
	if t.Payload == nil {
		t.Payload = Payload{}
	}
	t.Payload[field] = value
	return nil
}

// ValidateUpdatableField rejects fields outside UpdatableFields.
func ValidateUpdatableField(field string) error {
	if !UpdatableFields[field] {
		return NewValidationError(field, "is not an updatable field", ErrFieldNotUpdatable)
	}
	return nil
}

// Less orders tasks for selection: deferred tasks first by deferral time,
// then never-deferred tasks; sequence key breaks ties, ID last for determinism.
func Less(a, b *Task) bool {
	switch {
	case a.DeferredAt != nil && b.DeferredAt == nil:
		return true
	case a.DeferredAt == nil && b.DeferredAt != nil:
		return false
	case a.DeferredAt != nil && b.DeferredAt != nil && !a.DeferredAt.Equal(*b.DeferredAt):
		return a.DeferredAt.Before(*b.DeferredAt)
	}
	if a.SequenceKey != b.SequenceKey {
		return a.SequenceKey < b.SequenceKey
	}
	return a.ID < b.ID
}
