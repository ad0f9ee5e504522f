package postgres

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/qcsys/recordq/internal/domain"
	"github.com/qcsys/recordq/internal/platform/logger"
	"github.com/qcsys/recordq/internal/store"
)

// PostgresArchiveStore implements the store.ArchiveStore interface
// using a PostgreSQL database as the storage backend.
type PostgresArchiveStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresArchiveStore creates a new PostgreSQL implementation of the ArchiveStore interface.
// If logger is nil, a default logger will be used.
func NewPostgresArchiveStore(db store.DBTX, logger *slog.Logger) *PostgresArchiveStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresArchiveStore{
		db:     db,
		logger: logger.With(slog.String("component", "archive_store")),
	}
}

// Ensure PostgresArchiveStore implements store.ArchiveStore interface
var _ store.ArchiveStore = (*PostgresArchiveStore)(nil)

// Insert implements store.ArchiveStore.Insert
func (s *PostgresArchiveStore) Insert(ctx context.Context, rec *domain.ArchivedRecord) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	description, err := json.Marshal(rec.Description)
	if err != nil {
		return store.NewStoreError("archived record", "insert", "encode description", err)
	}
	images := rec.ProductImages
	if images == nil {
		images = []string{}
	}
	productImages, err := json.Marshal(images)
	if err != nil {
		return store.NewStoreError("archived record", "insert", "encode images", err)
	}

	query := `
		INSERT INTO archived_records (
			id, task_id, session, label, number, sku, url, price, title, note,
			description, location, product_images, cover_image, image_count,
			batch_code, qa, qa_time, recorder, record_time, completed_by, completed_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22
		)
	`
	_, err = s.db.ExecContext(ctx, query,
		rec.ID, rec.TaskID, rec.Session, rec.Label, rec.Number, rec.SKU, rec.URL, rec.Price, rec.Title, rec.Note,
		string(description), rec.Location, string(productImages), rec.CoverImage, rec.ImageCount,
		rec.BatchCode, rec.QA, rec.QATime, rec.Recorder, rec.RecordTime, rec.CompletedBy, rec.CompletedAt.UTC(),
	)
	if err != nil {
		log.Error("failed to insert archived record",
			slog.String("error", err.Error()),
			slog.String("record_id", rec.ID),
			slog.String("task_id", rec.TaskID))
		return MapUniqueViolation(err, store.ErrArchiveExists)
	}

	log.Info("record archived",
		slog.String("record_id", rec.ID),
		slog.String("task_id", rec.TaskID),
		slog.String("completed_by", rec.CompletedBy))
	return nil
}
