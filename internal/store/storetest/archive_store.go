package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qcsys/recordq/internal/domain"
	"github.com/qcsys/recordq/internal/store"
)

// NewSubmission returns a complete submission for taskID.
func NewSubmission(taskID string) *domain.Submission {
	number := int64(3)
	return &domain.Submission{
		TaskID:      taskID,
		GroupKey:    Str("S1"),
		Label:       Str("A3"),
		SequenceKey: &number,
		SKU:         Str("SKU-3"),
		URL:         Str("https://example.com/p/3"),
		Price:       12.25,
		Title:       Str("Kettle"),
		Note:        Str("checked"),
		Description: map[string]any{"material": "steel"},
		Location:    Str("R1"),
		ImageURLs:   []string{"a.jpg", "b.jpg", "c.jpg"},
		BatchCode:   Str("B-9"),
		QA:          Str("qa-user"),
		QATime:      Str("2024-03-01 11:00"),
		Recorder:    Str("rec-user"),
	}
}

// Str returns a pointer to s.
func Str(s string) *string { return &s }

// RunArchiveStoreTests exercises the store.ArchiveStore contract.
func RunArchiveStoreTests(t *testing.T, archive store.ArchiveStore) {
	ctx := context.Background()

	rec := domain.NewArchivedRecord(NewSubmission("task-1"), "alice", time.Now(), time.UTC)
	require.NoError(t, archive.Insert(ctx, rec))
	assert.ErrorIs(t, archive.Insert(ctx, rec), store.ErrArchiveExists)
}
