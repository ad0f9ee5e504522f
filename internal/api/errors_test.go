package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/qcsys/recordq/internal/domain"
	"github.com/qcsys/recordq/internal/service/auth"
	"github.com/qcsys/recordq/internal/service/lease"
	"github.com/qcsys/recordq/internal/service/queue"
	"github.com/qcsys/recordq/internal/store"
)

func TestMapErrorToStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"bad credentials", auth.ErrInvalidCredentials, http.StatusUnauthorized},
		{"expired token", fmt.Errorf("validate: %w", auth.ErrExpiredToken), http.StatusUnauthorized},
		{"renew not owned", lease.ErrLeaseNotOwned, http.StatusForbidden},
		{"owned by other", lease.NewServiceError("release", "x", lease.ErrLeaseOwnedByOther), http.StatusForbidden},
		{"not lease holder", queue.ErrNotLeaseHolder, http.StatusForbidden},
		{"no eligible task", lease.ErrNoEligibleTask, http.StatusNotFound},
		{"task not found", queue.ErrTaskNotFound, http.StatusNotFound},
		{"store not found", store.ErrNotFound, http.StatusNotFound},
		{"username exists", store.ErrUsernameExists, http.StatusConflict},
		{"validation", domain.NewValidationError("title", "required field", nil), http.StatusBadRequest},
		{"no current group", queue.ErrNoCurrentGroup, http.StatusBadRequest},
		{"inconsistent", &queue.InconsistencyError{TaskID: "t1", Err: errors.New("disk full")}, http.StatusInternalServerError},
		{"inconsistent over invalid entity", &queue.InconsistencyError{TaskID: "t1", Err: store.ErrInvalidEntity}, http.StatusInternalServerError},
		{"inconsistent over not found", &queue.InconsistencyError{TaskID: "t1", Err: store.ErrNotFound}, http.StatusInternalServerError},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, MapErrorToStatusCode(tc.err))
		})
	}
}

func TestGetSafeErrorMessage(t *testing.T) {
	assert.Equal(t, "Invalid title: required field",
		GetSafeErrorMessage(domain.NewValidationError("title", "required field", nil)))
	assert.Equal(t, "Current session is not configured", GetSafeErrorMessage(queue.ErrNoCurrentGroup))
	assert.Equal(t, "No eligible task", GetSafeErrorMessage(lease.ErrNoEligibleTask))
	assert.Equal(t, "Task was removed but could not be archived",
		GetSafeErrorMessage(&queue.InconsistencyError{TaskID: "t1", Err: store.ErrNotFound}))
	assert.Equal(t, "An unexpected error occurred",
		GetSafeErrorMessage(errors.New("pq: connection refused to postgres://u:p@db")))
}

func TestTaskToResponse(t *testing.T) {
	acquired := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	task := &domain.Task{
		ID:          "t1",
		GroupKey:    "S1",
		SequenceKey: 7,
		Payload:     domain.Payload{"label": "A7", "url": "(NA)"},
		Lease:       &domain.Lease{Holder: "alice", AcquiredAt: acquired},
	}

	resp := taskToResponse(task)
	assert.Equal(t, "t1", resp["_id"])
	assert.Equal(t, "A7", resp["label"])
	assert.Equal(t, int64(7), resp["number"])
	assert.Equal(t, "alice", resp["lockedBy"])
	assert.Equal(t, "2024-03-01T10:00:00Z", resp["lockedAt"])
	assert.NotContains(t, resp, "skippedAt")

	task.Payload["number"] = "007"
	assert.Equal(t, "007", taskToResponse(task)["number"], "intake spelling is kept")
	assert.Equal(t, int64(7), task.SequenceKey)
}
