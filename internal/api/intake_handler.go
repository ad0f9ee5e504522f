package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/qcsys/recordq/internal/api/shared"
	"github.com/qcsys/recordq/internal/platform/logger"
	"github.com/qcsys/recordq/internal/service/queue"
)

// GroupResolver supplies the group new tasks are filed under.
type GroupResolver interface {
	CurrentGroup(ctx context.Context) (string, error)
}

// StaticGroupResolver always resolves to the configured group key.
type StaticGroupResolver string

// CurrentGroup implements GroupResolver.
func (g StaticGroupResolver) CurrentGroup(context.Context) (string, error) {
	return strings.TrimSpace(string(g)), nil
}

// IntakeHandler accepts new tasks from quality check stations.
type IntakeHandler struct {
	queue  queue.QueueMutator
	groups GroupResolver
	logger *slog.Logger
}

// NewIntakeHandler creates a new IntakeHandler
func NewIntakeHandler(q queue.QueueMutator, groups GroupResolver, logger *slog.Logger) *IntakeHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if groups == nil {
		groups = StaticGroupResolver("")
	}
	return &IntakeHandler{
		queue:  q,
		groups: groups,
		logger: logger.With(slog.String("component", "intake_handler")),
	}
}

// Create handles POST /api/qc/tasks. The session query parameter overrides
// the resolved current group.
func (h *IntakeHandler) Create(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var in queue.Intake
	if err := shared.DecodeJSON(r, &in); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}

	group := r.URL.Query().Get("session")
	if group == "" {
		var err error
		group, err = h.groups.CurrentGroup(r.Context())
		if err != nil {
			HandleAPIError(w, r, err, "Failed to resolve current session")
			return
		}
	}

	task, err := h.queue.Enqueue(r.Context(), group, identity, in)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to create task")
		return
	}

	log.Debug("intake accepted", slog.String("task_id", task.ID), slog.String("group_key", group))
	shared.RespondWithJSON(w, r, http.StatusCreated, taskToResponse(task))
}
