package pebblestore

import (
	"context"
	"errors"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
)

// Options configures the Pebble store wrapper.
type Options struct {
	// DataDir is the path to the Pebble database directory.
	DataDir string
	// FS overrides the filesystem; tests pass vfs.NewMem().
	FS vfs.FS
	// NoSync skips the WAL fsync on commit.
	NoSync bool
}

// DB wraps a Pebble database instance with the commit policy.
type DB struct {
	inner     *pebble.DB
	writeSync bool
}

// Open creates or opens a Pebble database with the provided options.
func Open(opts Options) (*DB, error) {
	if opts.DataDir == "" {
		return nil, errors.New("pebble: Options.DataDir is required")
	}

	po := &pebble.Options{}
	if opts.FS != nil {
		po.FS = opts.FS
	}

	inner, err := pebble.Open(opts.DataDir, po)
	if err != nil {
		return nil, err
	}
	return &DB{inner: inner, writeSync: !opts.NoSync}, nil
}

// Close closes the Pebble database.
func (db *DB) Close() error {
	if db == nil || db.inner == nil {
		return nil
	}
	return db.inner.Close()
}

// NewBatch creates a new batch for atomic multi-key updates.
func (db *DB) NewBatch() *pebble.Batch {
	return db.inner.NewBatch()
}

// CommitBatch commits the provided batch with the configured fsync policy.
func (db *DB) CommitBatch(_ context.Context, b *pebble.Batch) error {
	if b == nil {
		return errors.New("pebble: nil batch")
	}
	mode := pebble.NoSync
	if db.writeSync {
		mode = pebble.Sync
	}
	return b.Commit(mode)
}

// Get copies the value for the given key. Returns pebble.ErrNotFound when absent.
func (db *DB) Get(key []byte) ([]byte, error) {
	val, closer, err := db.inner.Get(key)
	if err != nil {
		return nil, err
	}
	defer func() { _ = closer.Close() }()
	return append([]byte(nil), val...), nil
}

// ScanPrefix calls fn for every key starting with prefix, in key order.
// Stop early by returning errStopScan.
func (db *DB) ScanPrefix(prefix []byte, fn func(key, value []byte) error) error {
	iter, err := db.inner.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer func() { _ = iter.Close() }()

	for iter.First(); iter.Valid(); iter.Next() {
		if err := fn(iter.Key(), iter.Value()); err != nil {
			if errors.Is(err, errStopScan) {
				return nil
			}
			return err
		}
	}
	return iter.Error()
}

var errStopScan = errors.New("stop scan")

// prefixUpperBound returns the smallest key greater than every key with prefix.
func prefixUpperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
