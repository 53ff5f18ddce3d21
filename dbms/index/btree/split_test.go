package btree

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btree-query-bench/pagetree/dbms/index"
	"github.com/btree-query-bench/pagetree/dbms/index/lsm"
	memtree "github.com/btree-query-bench/pagetree/index/btree"
)

// recordingStore logs the offset of every write and can fail the n-th one.
type recordingStore struct {
	*os.File
	writes []int64
	failAt int // 1-based, 0 never fails
}

var errInjected = errors.New("injected write failure")

func (s *recordingStore) WriteAt(b []byte, off int64) (int, error) {
	s.writes = append(s.writes, off)
	if s.failAt > 0 && len(s.writes) == s.failAt {
		return 0, errInjected
	}
	return s.File.WriteAt(b, off)
}

func newRecordingTree(t *testing.T, degree int) (*BTree, *recordingStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tree.db")
	f, err := os.Create(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	s := &recordingStore{File: f}
	tr, err := Create(s, degree)
	require.NoError(t, err)
	return tr, s, path
}

func TestRootSplitWriteOrder(t *testing.T) {
	tr, s, _ := newRecordingTree(t, 4)
	for i := 0; i < 7; i++ {
		require.NoError(t, tr.Insert([]byte{byte('a' + i)}, nil))
	}
	s.writes = nil

	require.NoError(t, tr.Insert([]byte("h"), nil))

	const (
		hdr     = 0
		oldRoot = 1 * 4096
		newRoot = 2 * 4096
		sibling = 3 * 4096
	)
	assert.Equal(t, []int64{
		newRoot, hdr, // append new root
		hdr,              // header points at new root
		sibling, hdr,     // append sibling
		newRoot, oldRoot, // parent, then child
		sibling,          // the new key lands right of the median
	}, s.writes)
}

func TestInterruptedSplitLosesNoKeys(t *testing.T) {
	// Write 7 of the root split is the rewrite of the old root.
	tr, s, path := newRecordingTree(t, 4)
	keys := []string{"a", "b", "c", "d", "e", "f", "g"}
	for _, k := range keys {
		require.NoError(t, tr.Insert([]byte(k), []byte(k)))
	}
	s.writes = nil
	s.failAt = 7

	err := tr.Insert([]byte("h"), []byte("h"))
	assert.True(t, errors.Is(err, errInjected), "got %v", err)

	reopened, err := OpenFile(path, 4)
	require.NoError(t, err)
	defer reopened.Close()

	for _, k := range keys {
		v, err := reopened.Get([]byte(k))
		require.NoError(t, err, "key %s", k)
		assert.Equal(t, k, string(v))
	}
	// The old root still holds the keys copied to the sibling.
	assert.True(t, errors.Is(reopened.Check(), ErrInvariant))
}

func TestInterruptedRootGrowthLosesNoKeys(t *testing.T) {
	// Write 4 appends the sibling; the header already points at an
	// internal root with no keys and the old root as its only child.
	tr, s, path := newRecordingTree(t, 2)
	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, tr.Insert([]byte(k), []byte(k)))
	}
	s.writes = nil
	s.failAt = 4

	require.Error(t, tr.Insert([]byte("d"), nil))

	reopened, err := OpenFile(path, 2)
	require.NoError(t, err)
	defer reopened.Close()
	for _, k := range []string{"a", "b", "c"} {
		v, err := reopened.Get([]byte(k))
		require.NoError(t, err, "key %s", k)
		assert.Equal(t, k, string(v))
	}
	assert.True(t, errors.Is(reopened.Check(), ErrInvariant))
}

// TestAgainstReferences runs a random upsert workload against the disk tree,
// the in-memory tree and pebble and compares every lookup.
func TestAgainstReferences(t *testing.T) {
	if testing.Short() {
		t.Skip("differential run")
	}
	tr, _ := openTestTree(t, 3)
	mem := memtree.NewBTree(3)
	db, err := lsm.Open(t.TempDir())
	require.NoError(t, err)
	defer db.Close()

	indexes := map[string]index.Index{"disk": tr, "memory": mem, "pebble": db}

	rng := rand.New(rand.NewSource(42))
	const space = 800
	for op := 0; op < 4000; op++ {
		k := []byte(fmt.Sprintf("k%d", rng.Intn(space)))
		v := []byte(fmt.Sprintf("v%d", rng.Int63()))
		for name, idx := range indexes {
			require.NoError(t, idx.Insert(k, v), name)
		}
	}
	require.NoError(t, tr.Check())

	for i := 0; i < space+10; i++ {
		k := []byte(fmt.Sprintf("k%d", i))
		want, wantErr := mem.Get(k)
		for name, idx := range indexes {
			got, err := idx.Get(k)
			if wantErr != nil {
				assert.True(t, errors.Is(err, index.ErrNotFound), "%s %s: got %v", name, k, err)
				continue
			}
			require.NoError(t, err, "%s %s", name, k)
			assert.Equal(t, want, got, "%s %s", name, k)
		}
	}

	s, err := tr.Stats()
	require.NoError(t, err)
	assert.Equal(t, mem.Len(), s.Keys)
	assert.Equal(t, mem.Height(), s.Height)
}
