package memory

import (
	"context"
	"log/slog"
	"sync"

	"github.com/qcsys/recordq/internal/domain"
	"github.com/qcsys/recordq/internal/store"
)

// ArchiveStore keeps archived records in insertion order.
type ArchiveStore struct {
	mu      sync.Mutex
	records []*domain.ArchivedRecord
	ids     map[string]struct{}
	logger  *slog.Logger
}

var _ store.ArchiveStore = (*ArchiveStore)(nil)

// NewArchiveStore creates an empty archive.
func NewArchiveStore(log *slog.Logger) *ArchiveStore {
	if log == nil {
		log = slog.Default()
	}
	return &ArchiveStore{
		ids:    make(map[string]struct{}),
		logger: log.With(slog.String("component", "memory_archive_store")),
	}
}

// Insert implements store.ArchiveStore.
func (s *ArchiveStore) Insert(_ context.Context, record *domain.ArchivedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ids[record.ID]; ok {
		return store.ErrArchiveExists
	}
	cp := *record
	s.records = append(s.records, &cp)
	s.ids[record.ID] = struct{}{}
	return nil
}

// Records returns a snapshot of everything archived so far.
func (s *ArchiveStore) Records() []domain.ArchivedRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.ArchivedRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, *r)
	}
	return out
}
