package store

import (
	"context"

	"github.com/qcsys/recordq/internal/domain"
)

// ArchiveStore is the append-only sink of completed records.
type ArchiveStore interface {
	// Insert durably writes record. Returns ErrArchiveExists on ID collision.
	Insert(ctx context.Context, record *domain.ArchivedRecord) error
}
