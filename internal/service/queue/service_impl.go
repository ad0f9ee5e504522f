package queue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/qcsys/recordq/internal/domain"
	"github.com/qcsys/recordq/internal/platform/logger"
	"github.com/qcsys/recordq/internal/service/lease"
	"github.com/qcsys/recordq/internal/store"
)

// Verify interface compliance at compile time
var _ QueueMutator = (*queueMutatorImpl)(nil)

const notAvailable = "(NA)"

type queueMutatorImpl struct {
	pool     store.TaskPool
	archive  store.ArchiveStore
	ttl      time.Duration
	loc      *time.Location
	now      Clock
	validate *validator.Validate
	logger   *slog.Logger
}

// Option customizes a QueueMutator.
type Option func(*queueMutatorImpl)

// WithClock replaces time.Now.
func WithClock(now Clock) Option {
	return func(q *queueMutatorImpl) {
		q.now = now
	}
}

// WithLocation sets the zone human readable timestamps are rendered in.
func WithLocation(loc *time.Location) Option {
	return func(q *queueMutatorImpl) {
		if loc != nil {
			q.loc = loc
		}
	}
}

// NewQueueMutator creates a QueueMutator. ttl must match the lease manager's
// so skip recognizes the same expired leases acquire does.
func NewQueueMutator(
	pool store.TaskPool,
	archive store.ArchiveStore,
	ttl time.Duration,
	logger *slog.Logger,
	opts ...Option,
) QueueMutator {
	if pool == nil {
		panic("pool cannot be nil")
	}
	if archive == nil {
		panic("archive cannot be nil")
	}
	if ttl <= 0 {
		panic("lease ttl must be positive")
	}
	if logger == nil {
		logger = slog.Default()
	}

	q := &queueMutatorImpl{
		pool:     pool,
		archive:  archive,
		ttl:      ttl,
		loc:      time.UTC,
		now:      time.Now,
		validate: validator.New(),
		logger:   logger.With(slog.String("component", "queue_mutator")),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Skip implements QueueMutator.Skip.
func (q *queueMutatorImpl) Skip(ctx context.Context, taskID, identity string) (*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, q.logger)
	if taskID == "" {
		return nil, lease.ErrMissingTaskID
	}
	if identity == "" {
		return nil, lease.ErrMissingIdentity
	}

	now := q.now().UTC()
	match := store.Match{
		ID:            taskID,
		Holder:        identity,
		AllowUnleased: true,
		ExpiredBefore: now.Add(-q.ttl),
	}
	task, err := q.pool.Requeue(ctx, match, uuid.NewString(), now)
	if err == nil {
		log.Info("task skipped",
			slog.String("task_id", taskID),
			slog.String("new_task_id", task.ID),
			slog.String("identity", identity))
		return task, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		log.Error("failed to skip task",
			slog.String("error", err.Error()),
			slog.String("task_id", taskID))
		return nil, NewServiceError("skip", "failed to requeue task", err)
	}

	exists, err := q.pool.Exists(ctx, taskID)
	if err != nil {
		return nil, NewServiceError("skip", "failed to look up task", err)
	}
	if !exists {
		return nil, ErrTaskNotFound
	}
	log.Warn("skip rejected",
		slog.String("task_id", taskID),
		slog.String("identity", identity))
	return nil, lease.ErrLeaseOwnedByOther
}

// Submit implements QueueMutator.Submit.
func (q *queueMutatorImpl) Submit(ctx context.Context, identity string, sub *domain.Submission) (*domain.ArchivedRecord, error) {
	log := logger.FromContextOrDefault(ctx, q.logger)
	if err := sub.Validate(); err != nil {
		log.Debug("submission rejected", slog.String("error", err.Error()))
		return nil, err
	}
	if identity == "" {
		return nil, lease.ErrMissingIdentity
	}

	if _, err := q.pool.Remove(ctx, store.Match{ID: sub.TaskID, Holder: identity}); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Warn("submit rejected",
				slog.String("task_id", sub.TaskID),
				slog.String("identity", identity))
			return nil, ErrNotLeaseHolder
		}
		log.Error("failed to remove task",
			slog.String("error", err.Error()),
			slog.String("task_id", sub.TaskID))
		return nil, NewServiceError("submit", "failed to remove task", err)
	}

	record := domain.NewArchivedRecord(sub, identity, q.now(), q.loc)
	if err := q.archive.Insert(ctx, record); err != nil {
		orphan, _ := json.Marshal(record)
		log.Error("task lost between pool and archive",
			slog.Bool("alert", true),
			slog.String("error", err.Error()),
			slog.String("task_id", sub.TaskID),
			slog.String("identity", identity),
			slog.String("orphan", string(orphan)))
		return nil, &InconsistencyError{TaskID: sub.TaskID, Orphan: record, Err: err}
	}

	log.Info("task submitted",
		slog.String("task_id", sub.TaskID),
		slog.String("archive_id", record.ID),
		slog.String("identity", identity))
	return record, nil
}

// UpdateField implements QueueMutator.UpdateField.
func (q *queueMutatorImpl) UpdateField(ctx context.Context, taskID, field string, value any) error {
	log := logger.FromContextOrDefault(ctx, q.logger)
	if taskID == "" {
		return lease.ErrMissingTaskID
	}
	if err := domain.ValidateUpdatableField(field); err != nil {
		return err
	}

	if err := q.pool.UpdatePayloadField(ctx, taskID, field, value); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrTaskNotFound
		}
		log.Error("failed to update field",
			slog.String("error", err.Error()),
			slog.String("task_id", taskID),
			slog.String("field", field))
		return NewServiceError("update_field", "failed to update field", err)
	}

	log.Info("task field updated",
		slog.String("task_id", taskID),
		slog.String("field", field))
	return nil
}

// Enqueue implements QueueMutator.Enqueue.
func (q *queueMutatorImpl) Enqueue(ctx context.Context, groupKey, identity string, in Intake) (*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, q.logger)
	if strings.TrimSpace(groupKey) == "" {
		return nil, ErrNoCurrentGroup
	}
	if err := q.validateIntake(in); err != nil {
		return nil, err
	}

	number := strings.ToUpper(strings.TrimSpace(in.Number))
	seq, err := strconv.ParseInt(number, 10, 64)
	if err != nil {
		return nil, domain.NewValidationError("number", "must be an integer", err)
	}

	now := q.now()
	task, err := domain.NewTask(groupKey, seq, domain.Payload{
		"label":     strings.ToUpper(in.Label),
		"number":    number,
		"url":       orNA(in.URL),
		"note":      in.Note,
		"location":  orNA(in.Location),
		"user":      identity,
		"timestamp": now.In(q.loc).Format(domain.RecordTimeLayout),
	})
	if err != nil {
		return nil, err
	}
	task.CreatedAt = now.UTC()

	if err := q.pool.Insert(ctx, task); err != nil {
		log.Error("failed to enqueue task",
			slog.String("error", err.Error()),
			slog.String("group_key", groupKey))
		return nil, NewServiceError("enqueue", "failed to insert task", err)
	}

	log.Info("task enqueued",
		slog.String("task_id", task.ID),
		slog.String("group_key", groupKey),
		slog.Int64("sequence_key", seq))
	return task, nil
}

func (q *queueMutatorImpl) validateIntake(in Intake) error {
	err := q.validate.Struct(in)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return domain.NewValidationError(strings.ToLower(fe.Field()), "is required or malformed", domain.ErrValidation)
	}
	return domain.NewValidationError("", err.Error(), domain.ErrValidation)
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return notAvailable
	}
	return s
}
