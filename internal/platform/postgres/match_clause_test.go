package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/qcsys/recordq/internal/store"
)

func TestMatchClause(t *testing.T) {
	cutoff := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		match    store.Match
		prefix   []any
		wantSQL  string
		wantArgs []any
	}{
		{
			name:     "empty match",
			wantSQL:  "TRUE",
			wantArgs: nil,
		},
		{
			name:     "strict holder",
			match:    store.Match{ID: "t1", Holder: "alice"},
			wantSQL:  "id = $1 AND (lease_holder = $2)",
			wantArgs: []any{"t1", "alice"},
		},
		{
			name:     "eligibility continues after prefix",
			match:    store.Eligible("S1", "alice", cutoff.Add(5*time.Minute), 5*time.Minute),
			prefix:   []any{"alice", cutoff},
			wantSQL:  "group_key = $3 AND (lease_holder IS NULL OR lease_acquired_at < $4 OR lease_holder = $5)",
			wantArgs: []any{"alice", cutoff, "S1", cutoff, "alice"},
		},
		{
			name:     "release",
			match:    store.Match{ID: "t1", Holder: "bob", AllowUnleased: true},
			wantSQL:  "id = $1 AND (lease_holder IS NULL OR lease_holder = $2)",
			wantArgs: []any{"t1", "bob"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args := matchClause(tt.match, tt.prefix)
			assert.Equal(t, tt.wantSQL, sql)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestNewPostgresTaskPoolPanicsOnNilDB(t *testing.T) {
	assert.Panics(t, func() { NewPostgresTaskPool(nil, nil) })
	assert.Panics(t, func() { NewPostgresArchiveStore(nil, nil) })
	assert.Panics(t, func() { NewPostgresUserStore(nil, nil) })
}
