package pager

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btree-query-bench/pagetree/dbms/index/btpage"
)

func newPager(t *testing.T, degree uint16) (*Pager, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tree.db")
	f, created, err := OpenFile(path)
	require.NoError(t, err)
	require.True(t, created)

	p, err := Create(f, degree)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return p, path
}

func leaf(pairs ...string) *btpage.Node {
	n := btpage.NewNode(btpage.TypeLeaf)
	for i := 0; i+1 < len(pairs); i += 2 {
		n.Entries = append(n.Entries, btpage.KeyValue{Key: []byte(pairs[i]), Value: []byte(pairs[i+1])})
	}
	n.Reindex()
	return n
}

func TestCreateWritesHeader(t *testing.T) {
	p, path := newPager(t, 4)

	h := p.Header()
	assert.Equal(t, NilOffset, h.Root)
	assert.Equal(t, FirstPage, h.NextFree)
	assert.Equal(t, uint16(4), h.Degree)
	assert.Equal(t, uint64(0), p.PageCount())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, raw, PageSize)
	want := []byte{
		0, 0, 0, 0, 0, 0, 0, 0,
		0, 0, 0, 0, 0, 0, 0x10, 0,
		0, 4,
	}
	assert.Equal(t, want, raw[:HeaderSize])
}

func TestHeaderWriteIsIdempotent(t *testing.T) {
	p, path := newPager(t, 7)
	require.NoError(t, p.SetRoot(FirstPage*3))

	require.NoError(t, p.WriteHeader())
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	require.NoError(t, p.WriteHeader())
	second, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.Equal(t, first[:HeaderSize], second[:HeaderSize])
}

func TestAppendAndReadNode(t *testing.T) {
	p, _ := newPager(t, 4)

	a := leaf("apple", "red", "banana", "yellow")
	off, err := p.AppendNode(a)
	require.NoError(t, err)
	assert.Equal(t, FirstPage, off)
	assert.Equal(t, off, a.Offset)

	b := leaf("cherry", "red")
	off2, err := p.AppendNode(b)
	require.NoError(t, err)
	assert.Equal(t, FirstPage+PageSize, off2)
	assert.Equal(t, FirstPage+2*PageSize, p.Header().NextFree)
	assert.Equal(t, uint64(2), p.PageCount())

	got, err := p.ReadNode(off)
	require.NoError(t, err)
	assert.Equal(t, off, got.Offset)
	require.Equal(t, 2, got.NumKeys())
	assert.Equal(t, []byte("banana"), got.Entries[1].Key)
	assert.Equal(t, []byte("yellow"), got.Entries[1].Value)

	got2, err := p.ReadNode(off2)
	require.NoError(t, err)
	assert.Equal(t, []byte("cherry"), got2.Entries[0].Key)
}

func TestRewriteNodeClearsStaleBytes(t *testing.T) {
	p, path := newPager(t, 4)

	n := leaf("a", "1111111111", "b", "2222222222", "c", "3333333333")
	off, err := p.AppendNode(n)
	require.NoError(t, err)

	n.Entries = n.Entries[:1]
	n.Reindex()
	require.NoError(t, p.RewriteNode(n))

	got, err := p.ReadNode(off)
	require.NoError(t, err)
	require.Equal(t, 1, got.NumKeys())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	page := raw[off : off+PageSize]
	tail := page[n.EncodedSize():]
	assert.Equal(t, make([]byte, len(tail)), tail)
}

func TestCapacityExceeded(t *testing.T) {
	p, _ := newPager(t, 4)

	small := leaf("k", "v")
	off, err := p.AppendNode(small)
	require.NoError(t, err)

	big := leaf("k", string(bytes.Repeat([]byte("x"), PageSize)))
	_, err = p.AppendNode(big)
	assert.True(t, errors.Is(err, ErrCapacityExceeded), "got %v", err)
	assert.Equal(t, FirstPage+PageSize, p.Header().NextFree, "failed append must not allocate")
	assert.False(t, big.Persisted())

	small.SetValue(0, bytes.Repeat([]byte("y"), PageSize))
	err = p.RewriteNode(small)
	assert.True(t, errors.Is(err, ErrCapacityExceeded), "got %v", err)

	got, err := p.ReadNode(off)
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got.Entries[0].Value)
}

func TestExactPageFits(t *testing.T) {
	p, _ := newPager(t, 4)

	n := leaf("k", "")
	pad := PageSize - n.EncodedSize()
	n.SetValue(0, bytes.Repeat([]byte("z"), pad))
	require.Equal(t, PageSize, n.EncodedSize())

	off, err := p.AppendNode(n)
	require.NoError(t, err)
	got, err := p.ReadNode(off)
	require.NoError(t, err)
	assert.Len(t, got.Entries[0].Value, pad)
}

func TestInvalidOffsets(t *testing.T) {
	p, _ := newPager(t, 4)
	_, err := p.AppendNode(leaf("k", "v"))
	require.NoError(t, err)

	for _, off := range []uint64{0, 1, FirstPage + 1, FirstPage + PageSize, 1 << 40} {
		_, err := p.ReadNode(off)
		assert.True(t, errors.Is(err, ErrInvalidOffset), "offset %d: got %v", off, err)
	}

	err = p.RewriteNode(leaf("k", "v"))
	assert.True(t, errors.Is(err, ErrNotPersisted), "got %v", err)
}

func TestReopen(t *testing.T) {
	p, path := newPager(t, 9)
	off, err := p.AppendNode(leaf("pear", "green"))
	require.NoError(t, err)
	require.NoError(t, p.SetRoot(off))

	f, created, err := OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	assert.False(t, created)

	p2, err := Open(f)
	require.NoError(t, err)
	assert.Equal(t, p.Header(), p2.Header())

	n, err := p2.ReadNode(off)
	require.NoError(t, err)
	assert.Equal(t, []byte("green"), n.Entries[0].Value)
}

func TestOpenCorruptHeader(t *testing.T) {
	tests := []struct {
		name   string
		header []byte
	}{
		{"next_free_zero", make([]byte, HeaderSize)},
		{"next_free_unaligned", []byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x10, 0x01, 0, 4}},
		{"root_past_next_free", []byte{0, 0, 0, 0, 0, 0, 0x20, 0, 0, 0, 0, 0, 0, 0, 0x20, 0, 0, 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "bad.db")
			require.NoError(t, os.WriteFile(path, tt.header, 0644))
			f, _, err := OpenFile(path)
			require.NoError(t, err)
			defer f.Close()

			_, err = Open(f)
			assert.True(t, errors.Is(err, ErrCorruptHeader), "got %v", err)
		})
	}
}

func TestShortReadIsIOError(t *testing.T) {
	p, path := newPager(t, 4)
	off, err := p.AppendNode(leaf("k", "v"))
	require.NoError(t, err)

	require.NoError(t, os.Truncate(path, int64(off)+10))
	_, err = p.ReadNode(off)
	assert.True(t, errors.Is(err, ErrIO), "got %v", err)
}

func TestCorruptPage(t *testing.T) {
	p, path := newPager(t, 4)
	off, err := p.AppendNode(leaf("k", "v"))
	require.NoError(t, err)

	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte{0xff, 0xff}, int64(off)+2) // key count 65535
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = p.ReadNode(off)
	assert.True(t, errors.Is(err, btpage.ErrCorruptNode), "got %v", err)
}
