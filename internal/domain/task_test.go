package domain

import (
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTask(t *testing.T) {
	task, err := NewTask("S1", 3, Payload{"label": "A1"})
	require.NoError(t, err)
	assert.NotEmpty(t, task.ID)
	assert.Equal(t, "S1", task.GroupKey)
	assert.Nil(t, task.Lease)
	assert.Nil(t, task.DeferredAt)

	_, err = NewTask("", 1, nil)
	assert.ErrorIs(t, err, ErrEmptyGroupKey)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = NewTask("S1", -1, nil)
	assert.ErrorIs(t, err, ErrNegativeSequence)
}

func TestTaskValidateLease(t *testing.T) {
	task := &Task{ID: "x", GroupKey: "S1", Lease: &Lease{Holder: "alice"}}
	err := task.Validate()
	assert.ErrorIs(t, err, ErrIncompleteLease)

	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "lease", vErr.Field)
}

func TestTaskDeferred(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	orig := &Task{
		ID:          "old",
		GroupKey:    "S1",
		SequenceKey: 7,
		Payload:     Payload{"label": "A7"},
		Lease:       &Lease{Holder: "alice", AcquiredAt: now.Add(-time.Minute)},
	}

	d := orig.Deferred("new", now)
	assert.Equal(t, "new", d.ID)
	assert.Nil(t, d.Lease)
	require.NotNil(t, d.DeferredAt)
	assert.True(t, d.DeferredAt.Equal(now))
	assert.Equal(t, orig.Payload, d.Payload)

	d.Payload["label"] = "changed"
	assert.Equal(t, "A7", orig.Payload["label"], "deferred copy must not share payload")
	assert.NotNil(t, orig.Lease)
}

func TestSetPayloadField(t *testing.T) {
	task := &Task{ID: "x", GroupKey: "S1"}
	require.NoError(t, task.SetPayloadField("url", "https://example.com/a"))
	assert.Equal(t, "https://example.com/a", task.Payload["url"])

	err := task.SetPayloadField("lease", "bob")
	assert.ErrorIs(t, err, ErrFieldNotUpdatable)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestLessOrdering(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Second)

	tasks := []*Task{
		{ID: "n2", SequenceKey: 2},
		{ID: "d-late", SequenceKey: 1, DeferredAt: &t1},
		{ID: "n1", SequenceKey: 1},
		{ID: "d-early", SequenceKey: 9, DeferredAt: &t0},
		{ID: "n1b", SequenceKey: 1},
	}
	sort.Slice(tasks, func(i, j int) bool { return Less(tasks[i], tasks[j]) })

	var ids []string
	for _, task := range tasks {
		ids = append(ids, task.ID)
	}
	assert.Equal(t, []string{"d-early", "d-late", "n1", "n1b", "n2"}, ids)
}

func TestLeaseHelpers(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	task := &Task{ID: "x", GroupKey: "S1", Lease: &Lease{Holder: "alice", AcquiredAt: now}}

	assert.True(t, task.IsLeasedBy("alice"))
	assert.False(t, task.IsLeasedBy("bob"))
	assert.False(t, task.LeaseExpired(now))
	assert.True(t, task.LeaseExpired(now.Add(time.Nanosecond)))
	assert.Equal(t, now.Add(5*time.Minute), task.Lease.ExpiresAt(5*time.Minute))
}
