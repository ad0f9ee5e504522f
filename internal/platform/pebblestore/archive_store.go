package pebblestore

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/cockroachdb/pebble"

	"github.com/qcsys/recordq/internal/domain"
	"github.com/qcsys/recordq/internal/platform/logger"
	"github.com/qcsys/recordq/internal/store"
)

// ArchiveStore implements store.ArchiveStore on Pebble.
type ArchiveStore struct {
	db     *DB
	mu     sync.Mutex
	logger *slog.Logger
}

var _ store.ArchiveStore = (*ArchiveStore)(nil)

// NewArchiveStore creates an archive over db.
func NewArchiveStore(db *DB, log *slog.Logger) *ArchiveStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &ArchiveStore{
		db:     db,
		logger: log.With(slog.String("component", "pebble_archive_store")),
	}
}

// Insert implements store.ArchiveStore.
func (s *ArchiveStore) Insert(ctx context.Context, rec *domain.ArchivedRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return store.NewStoreError("archived record", "insert", "encode record", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Get(archiveKey(rec.ID)); err == nil {
		return store.ErrArchiveExists
	} else if !errors.Is(err, pebble.ErrNotFound) {
		return store.NewStoreError("archived record", "insert", "pebble read", err)
	}

	b := s.db.NewBatch()
	defer func() { _ = b.Close() }()
	if err := b.Set(archiveKey(rec.ID), raw, nil); err != nil {
		return store.NewStoreError("archived record", "insert", "pebble batch", err)
	}
	if err := s.db.CommitBatch(ctx, b); err != nil {
		return store.NewStoreError("archived record", "insert", "pebble commit", err)
	}

	logger.FromContextOrDefault(ctx, s.logger).Info("record archived",
		slog.String("record_id", rec.ID),
		slog.String("task_id", rec.TaskID))
	return nil
}

// List returns every archived record in key order.
func (s *ArchiveStore) List(_ context.Context) ([]domain.ArchivedRecord, error) {
	var out []domain.ArchivedRecord
	err := s.db.ScanPrefix([]byte(archivePrefix), func(_, value []byte) error {
		var rec domain.ArchivedRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			return err
		}
		out = append(out, rec)
		return nil
	})
	return out, err
}
