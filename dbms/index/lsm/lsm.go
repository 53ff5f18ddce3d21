// Package lsm wraps Pebble (CockroachDB's LSM storage engine) behind the
// common Index interface so it can be benchmarked alongside the disk B-tree
// and used as a reference in its tests.
package lsm

import (
	"bytes"

	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"

	"github.com/btree-query-bench/pagetree/dbms/index"
)

var _ index.Index = (*LSM)(nil)

type LSM struct {
	db *pebble.DB
}

// Open opens (or creates) a Pebble database at the given directory path.
func Open(dir string) (*LSM, error) {
	opts := &pebble.Options{
		// Use a 16 MB memtable
		MemTableSize: 16 << 20,
		// Keep several memtables so one can be flushed while another is active.
		MemTableStopWritesThreshold: 4,
		// L0 compaction trigger.
		L0CompactionThreshold: 4,
		L0StopWritesThreshold: 12,
	}

	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, errors.Wrap(err, "lsm: open")
	}
	return &LSM{db: db}, nil
}

// Close cleanly shuts down Pebble, flushing any in-memory state.
func (l *LSM) Close() error {
	return l.db.Close()
}

// Insert inserts or updates the value for key.
func (l *LSM) Insert(key, value []byte) error {
	if err := l.db.Set(key, value, pebble.NoSync); err != nil {
		return errors.Wrap(err, "lsm: set")
	}
	return nil
}

// Get retrieves the value for key, or index.ErrNotFound.
func (l *LSM) Get(key []byte) ([]byte, error) {
	val, closer, err := l.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, index.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "lsm: get")
	}
	// val is only valid until closer.Close(), so we copy it.
	result := bytes.Clone(val)
	if result == nil {
		result = []byte{}
	}
	closer.Close()
	return result, nil
}

// Flush writes the memtable out to disk so later reads hit sstables.
func (l *LSM) Flush() error {
	return l.db.Flush()
}
