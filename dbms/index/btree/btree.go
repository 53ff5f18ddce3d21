// Package btree implements a disk-based B-tree over byte keys using the pager
// package.
//
// Every node lives in its own 4096-byte page and is addressed by its byte
// offset in the file. Nothing is cached between calls: each step of a
// descent reloads the node from the store, and every change is written back
// before the operation returns.
//
// Insertion splits full nodes on the way down (preemptive splitting), so a
// split never has to propagate upwards. Keys are unique: inserting an
// existing key replaces its value in place.
//
// A split performs three writes (new sibling, parent, child) and a root split
// adds a header update. They are ordered so that a failure in between loses
// no reachable key, but the tree can be left with an orphaned page or a
// child that still holds keys already moved to its sibling. There is no
// write-ahead log and no rollback.
//
// A BTree is not safe for concurrent use.
package btree

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/btree-query-bench/pagetree/dbms/index"
	"github.com/btree-query-bench/pagetree/dbms/index/btpage"
	"github.com/btree-query-bench/pagetree/dbms/pager"
)

// ─── Constants ────────────────────────────────────────────────────────────────

// MinDegree is the smallest degree a tree can be created with.
//
// MaxDegree is the largest degree for which a full node of empty keys and
// values still fits in a page:
//
//	4 (header) + 8*2t (pointers) + 2*(2t-1) (offsets) + 4*(2t-1) (entry prefixes) <= 4096
const (
	MinDegree = 2
	MaxDegree = (pager.PageSize - btpage.HeaderSize + btpage.KeyOffsetSize + btpage.EntryHeaderSize) /
		(2 * (btpage.PointerSize + btpage.KeyOffsetSize + btpage.EntryHeaderSize))
)

var (
	ErrNotFound         = index.ErrNotFound
	ErrInvalidDegree    = errors.New("invalid degree")
	ErrInvariant        = errors.New("tree invariant violated")
	ErrIO               = pager.ErrIO
	ErrCapacityExceeded = pager.ErrCapacityExceeded
	ErrCorruptHeader    = pager.ErrCorruptHeader
	ErrCorruptNode      = btpage.ErrCorruptNode
	ErrKeyTooLarge      = btpage.ErrKeyTooLarge
	ErrValueTooLarge    = btpage.ErrValueTooLarge
)

var _ index.Index = (*BTree)(nil)

// MaxEntrySize returns the largest key+value length for which a full node of
// equally sized entries still fits in a page. Larger entries can be stored as
// long as the node holding them stays within the page; otherwise the insert
// fails with ErrCapacityExceeded.
func MaxEntrySize(degree int) int {
	maxKeys := 2*degree - 1
	fixed := btpage.HeaderSize + btpage.PointerSize*(maxKeys+1) + btpage.KeyOffsetSize*maxKeys
	return (pager.PageSize-fixed)/maxKeys - btpage.EntryHeaderSize
}

// ─── BTree ────────────────────────────────────────────────────────────────────

// BTree is a disk-based B-tree.
type BTree struct {
	pg     *pager.Pager
	degree int
	log    *zap.Logger
}

// Option configures a BTree.
type Option func(*BTree)

// WithLogger sets the logger used for structural events. The default
// discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(t *BTree) {
		if l != nil {
			t.log = l
		}
	}
}

func newTree(pg *pager.Pager, opts []Option) *BTree {
	t := &BTree{
		pg:     pg,
		degree: int(pg.Header().Degree),
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func checkDegree(degree int) error {
	if degree < MinDegree || degree > MaxDegree {
		return errors.Wrapf(ErrInvalidDegree, "degree %d outside [%d, %d]", degree, MinDegree, MaxDegree)
	}
	return nil
}

// Create initialises a new tree in an empty store: the header plus an empty
// leaf root in the first page.
func Create(store pager.Store, degree int, opts ...Option) (*BTree, error) {
	if err := checkDegree(degree); err != nil {
		return nil, err
	}
	pg, err := pager.Create(store, uint16(degree))
	if err != nil {
		return nil, err
	}
	t := newTree(pg, opts)

	root := btpage.NewNode(btpage.TypeLeaf)
	root.Reindex()
	off, err := pg.AppendNode(root)
	if err != nil {
		return nil, errors.Wrap(err, "btree: create root")
	}
	if err := pg.SetRoot(off); err != nil {
		return nil, err
	}
	t.log.Debug("created tree", zap.Int("degree", degree), zap.Uint64("root", off))
	return t, nil
}

// Open loads an existing tree from store.
func Open(store pager.Store, opts ...Option) (*BTree, error) {
	pg, err := pager.Open(store)
	if err != nil {
		return nil, err
	}
	h := pg.Header()
	if err := checkDegree(int(h.Degree)); err != nil {
		return nil, errors.Wrapf(ErrCorruptHeader, "%v", err)
	}
	if h.Root == pager.NilOffset {
		return nil, errors.Wrap(ErrCorruptHeader, "no root")
	}
	t := newTree(pg, opts)
	t.log.Debug("opened tree",
		zap.Int("degree", t.degree),
		zap.Uint64("root", h.Root),
		zap.Uint64("pages", pg.PageCount()))
	return t, nil
}

// OpenFile opens the tree stored at path, creating it with the given degree
// when the file is new or empty. The degree of an existing tree always comes
// from its header.
func OpenFile(path string, degree int, opts ...Option) (*BTree, error) {
	f, created, err := pager.OpenFile(path)
	if err != nil {
		return nil, err
	}
	var t *BTree
	if created {
		t, err = Create(f, degree, opts...)
	} else {
		t, err = Open(f, opts...)
	}
	if err != nil {
		f.Close()
		return nil, err
	}
	if !created && t.degree != degree {
		t.log.Info("existing tree keeps its degree",
			zap.String("path", path),
			zap.Int("degree", t.degree),
			zap.Int("requested", degree))
	}
	return t, nil
}

// Close persists the header and closes the underlying store.
func (t *BTree) Close() error {
	return t.pg.Close()
}

// Sync flushes the store.
func (t *BTree) Sync() error {
	return t.pg.Sync()
}

// Degree returns the tree's minimum degree t.
func (t *BTree) Degree() int {
	return t.degree
}

// Header returns the persisted tree header.
func (t *BTree) Header() pager.Header {
	return t.pg.Header()
}

// Root returns the offset of the root node.
func (t *BTree) Root() uint64 {
	return t.pg.Header().Root
}

func (t *BTree) maxKeys() int {
	return 2*t.degree - 1
}

// load reads the node at off and rejects pages that cannot be part of a
// live tree.
func (t *BTree) load(off uint64) (*btpage.Node, error) {
	n, err := t.pg.ReadNode(off)
	if err != nil {
		return nil, err
	}
	if n.Header.Type == btpage.TypeDeleted {
		return nil, errors.Wrapf(ErrCorruptNode, "deleted node at %d is still linked", off)
	}
	return n, nil
}
