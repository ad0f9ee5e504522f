package api

import (
	"log/slog"
	"net/http"

	"github.com/qcsys/recordq/internal/api/shared"
	"github.com/qcsys/recordq/internal/domain"
	"github.com/qcsys/recordq/internal/platform/logger"
	"github.com/qcsys/recordq/internal/service/lease"
	"github.com/qcsys/recordq/internal/service/queue"
)

// RecordHandler serves the record checkout API under /api/record.
type RecordHandler struct {
	leases lease.LeaseManager
	queue  queue.QueueMutator
	logger *slog.Logger
}

// NewRecordHandler creates a new RecordHandler
func NewRecordHandler(leases lease.LeaseManager, q queue.QueueMutator, logger *slog.Logger) *RecordHandler {
	if leases == nil || q == nil {
		panic("lease manager and queue mutator are required")
	}
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for RecordHandler")
	}
	return &RecordHandler{
		leases: leases,
		queue:  q,
		logger: logger.With(slog.String("component", "record_handler")),
	}
}

// ListSessions handles GET /api/record/sessions.
func (h *RecordHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	groups, err := h.leases.ListGroups(r.Context())
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list sessions")
		return
	}
	if groups == nil {
		groups = []string{}
	}
	shared.RespondWithJSON(w, r, http.StatusOK, SessionsResponse{Sessions: groups})
}

// Status handles GET /api/record/status?session=.
func (h *RecordHandler) Status(w http.ResponseWriter, r *http.Request) {
	st, err := h.leases.Status(r.Context(), r.URL.Query().Get("session"))
	if err != nil {
		HandleAPIError(w, r, err, "Failed to read status")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, st)
}

// Next handles GET /api/record/next?session=. It leases the next eligible
// task to the caller, or returns the task the caller already holds.
func (h *RecordHandler) Next(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	task, err := h.leases.AcquireNext(r.Context(), r.URL.Query().Get("session"), identity)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get next task")
		return
	}

	log.Debug("served next task", slog.String("task_id", task.ID))
	shared.RespondWithJSON(w, r, http.StatusOK, taskToResponse(task))
}

// Renew handles POST /api/record/renew.
func (h *RecordHandler) Renew(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req TaskRefRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.leases.Renew(r.Context(), req.ID, identity); err != nil {
		HandleAPIError(w, r, err, "Failed to renew lease")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, StatusResponse{Status: "renewed", ID: req.ID})
}

// Unlock handles POST /api/record/unlock.
func (h *RecordHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req TaskRefRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.leases.Release(r.Context(), req.ID, identity); err != nil {
		HandleAPIError(w, r, err, "Failed to release lease")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, StatusResponse{Status: "unlocked", ID: req.ID})
}

// Skip handles POST /api/record/skip. The response carries the ID the task
// was reinserted under.
func (h *RecordHandler) Skip(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req TaskRefRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	task, err := h.queue.Skip(r.Context(), req.ID, identity)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to skip task")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, StatusResponse{Status: "skipped", ID: task.ID})
}

// Submit handles POST /api/record/submit.
func (h *RecordHandler) Submit(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var sub domain.Submission
	if err := shared.DecodeJSON(r, &sub); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}

	record, err := h.queue.Submit(r.Context(), identity, &sub)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to submit task")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, record)
}

// UpdateURL handles POST /api/record/update_url.
func (h *RecordHandler) UpdateURL(w http.ResponseWriter, r *http.Request) {
	var req UpdateURLRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	h.updateField(w, r, req.ID, "url", req.URL)
}

// UpdateField handles POST /api/record/update_field.
func (h *RecordHandler) UpdateField(w http.ResponseWriter, r *http.Request) {
	var req UpdateFieldRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	h.updateField(w, r, req.ID, req.Field, req.Value)
}

func (h *RecordHandler) updateField(w http.ResponseWriter, r *http.Request, id, field string, value any) {
	if _, ok := requireIdentity(w, r); !ok {
		return
	}
	if err := h.queue.UpdateField(r.Context(), id, field, value); err != nil {
		HandleAPIError(w, r, err, "Failed to update task")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, StatusResponse{Status: "updated", ID: id})
}
