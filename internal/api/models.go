package api

import (
	"time"

	"github.com/qcsys/recordq/internal/domain"
)

// LoginRequest is the body of POST /api/login, as JSON or form fields.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// TaskRefRequest names a task by ID.
type TaskRefRequest struct {
	ID string `json:"_id" validate:"required"`
}

// UpdateURLRequest is the body of POST /api/record/update_url.
type UpdateURLRequest struct {
	ID  string `json:"_id" validate:"required"`
	URL string `json:"url" validate:"required"`
}

// UpdateFieldRequest is the body of POST /api/record/update_field.
type UpdateFieldRequest struct {
	ID    string `json:"_id" validate:"required"`
	Field string `json:"field" validate:"required"`
	Value any    `json:"value"`
}

// StatusResponse acknowledges a mutation.
type StatusResponse struct {
	Status string `json:"status"`
	ID     string `json:"_id,omitempty"`
}

// SessionsResponse lists the groups present in the pool.
type SessionsResponse struct {
	Sessions []string `json:"sessions"`
}

// taskToResponse flattens a task the way record clients read it: payload
// fields at the top level next to the queue bookkeeping. The payload's own
// number, as typed at intake, wins over the parsed sequence key.
func taskToResponse(t *domain.Task) map[string]any {
	resp := make(map[string]any, len(t.Payload)+6)
	for k, v := range t.Payload {
		resp[k] = v
	}
	resp["_id"] = t.ID
	resp["session"] = t.GroupKey
	if _, ok := resp["number"]; !ok {
		resp["number"] = t.SequenceKey
	}
	if t.Lease != nil {
		resp["lockedBy"] = t.Lease.Holder
		resp["lockedAt"] = t.Lease.AcquiredAt.UTC().Format(time.RFC3339)
	}
	if t.DeferredAt != nil {
		resp["skippedAt"] = t.DeferredAt.UTC().Format(time.RFC3339)
	}
	return resp
}
