package btree

import (
	"bytes"
	"iter"
	"slices"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/btree-query-bench/pagetree/dbms/index/btpage"
)

// ─── Insert logic ─────────────────────────────────────────────────────────────

// Insert stores value under key. An existing key has its value replaced.
//
// A node that would outgrow its page is not written and the insert fails
// with ErrCapacityExceeded; splits already done on the way down are kept, and
// the tree stays valid.
func (t *BTree) Insert(key, value []byte) error {
	if len(key) > btpage.MaxKeySize {
		return errors.Wrapf(ErrKeyTooLarge, "%d bytes", len(key))
	}
	if len(value) > btpage.MaxValueSize {
		return errors.Wrapf(ErrValueTooLarge, "%d bytes", len(value))
	}
	kv := btpage.KeyValue{Key: bytes.Clone(key), Value: bytes.Clone(value)}
	if kv.Value == nil {
		kv.Value = []byte{}
	}

	root, err := t.load(t.Root())
	if err != nil {
		return err
	}
	if _, found := root.Search(kv.Key); !found && root.NumKeys() == t.maxKeys() {
		if root, err = t.growRoot(root); err != nil {
			return err
		}
	}
	return t.insertNonFull(root, kv)
}

// Load inserts every pair of seq in order and returns how many were stored.
// It stops at the first error.
func (t *BTree) Load(seq iter.Seq[btpage.KeyValue]) (int, error) {
	n := 0
	for kv := range seq {
		if err := t.Insert(kv.Key, kv.Value); err != nil {
			return n, errors.Wrapf(err, "btree: load record %d", n)
		}
		n++
	}
	return n, nil
}

// growRoot puts a new internal root above the full root and splits the old
// one under it. The header points at the new root before the split starts,
// so an interrupted split still leaves every key reachable.
func (t *BTree) growRoot(old *btpage.Node) (*btpage.Node, error) {
	root := btpage.NewNode(btpage.TypeInternal)
	root.Pointers = []uint64{old.Offset}
	root.Reindex()
	if _, err := t.pg.AppendNode(root); err != nil {
		return nil, errors.Wrap(err, "btree: append new root")
	}
	if err := t.pg.SetRoot(root.Offset); err != nil {
		return nil, err
	}
	if err := t.splitChild(root, 0, old); err != nil {
		return nil, err
	}
	t.log.Debug("root split",
		zap.Uint64("old_root", old.Offset),
		zap.Uint64("new_root", root.Offset))
	return root, nil
}

// insertNonFull inserts kv into the subtree rooted at n. n is either not full
// or already holds kv.Key.
func (t *BTree) insertNonFull(n *btpage.Node, kv btpage.KeyValue) error {
	idx, found := n.Search(kv.Key)
	if found {
		return t.overwrite(n, idx, kv.Value)
	}
	if n.IsLeaf() {
		n.InsertEntry(idx, kv)
		return t.rewrite(n)
	}

	child, err := t.load(n.Pointers[idx])
	if err != nil {
		return err
	}
	if _, inChild := child.Search(kv.Key); !inChild && child.NumKeys() == t.maxKeys() {
		if err := t.splitChild(n, idx, child); err != nil {
			return err
		}
		// Decide which of the two halves to descend to.
		if bytes.Compare(kv.Key, n.Entries[idx].Key) > 0 {
			idx++
		}
		if child, err = t.load(n.Pointers[idx]); err != nil {
			return err
		}
	}
	return t.insertNonFull(child, kv)
}

func (t *BTree) overwrite(n *btpage.Node, idx int, value []byte) error {
	if bytes.Equal(n.Entries[idx].Value, value) {
		return nil
	}
	n.SetValue(idx, value)
	return t.rewrite(n)
}

func (t *BTree) rewrite(n *btpage.Node) error {
	err := t.pg.RewriteNode(n)
	if errors.Is(err, ErrCapacityExceeded) {
		t.log.Warn("node does not fit in a page",
			zap.Uint64("offset", n.Offset),
			zap.Int("keys", n.NumKeys()),
			zap.Int("size", n.EncodedSize()))
	}
	return err
}

// splitChild splits the full node child, found at parent.Pointers[i], around
// its median. The upper t-1 entries (and t pointers) move to a new sibling,
// the median moves up into parent at i and the sibling becomes
// parent.Pointers[i+1].
//
// Sizes are checked before anything is written. The writes go sibling,
// parent, child: until the child is rewritten it still holds the moved keys,
// so nothing becomes unreachable if a write fails.
func (t *BTree) splitChild(parent *btpage.Node, i int, child *btpage.Node) error {
	d := t.degree
	if child.NumKeys() != t.maxKeys() {
		return errors.Wrapf(ErrInvariant, "split of node at %d with %d keys", child.Offset, child.NumKeys())
	}

	sibling := btpage.NewNode(child.Header.Type)
	sibling.Entries = slices.Clone(child.Entries[d:])
	if !child.IsLeaf() {
		sibling.Pointers = slices.Clone(child.Pointers[d:])
	}
	sibling.Reindex()

	median := child.Entries[d-1]
	child.Entries = child.Entries[:d-1]
	if child.IsLeaf() {
		child.Pointers = nil
	} else {
		child.Pointers = child.Pointers[:d]
	}
	child.Reindex()

	parent.InsertEntry(i, median)
	parent.InsertPointer(i+1, 0) // set once the sibling has a page
	if err := t.pg.Fits(parent); err != nil {
		t.log.Warn("split would overflow parent",
			zap.Uint64("parent", parent.Offset),
			zap.Int("keys", parent.NumKeys()))
		return err
	}

	off, err := t.pg.AppendNode(sibling)
	if err != nil {
		return errors.Wrap(err, "btree: append sibling")
	}
	parent.Pointers[i+1] = off

	if err := t.pg.RewriteNode(parent); err != nil {
		return errors.Wrap(err, "btree: rewrite parent after split")
	}
	if err := t.pg.RewriteNode(child); err != nil {
		return errors.Wrap(err, "btree: rewrite child after split")
	}
	t.log.Debug("split",
		zap.Stringer("type", child.Header.Type),
		zap.Uint64("child", child.Offset),
		zap.Uint64("sibling", off),
		zap.Uint64("parent", parent.Offset),
		zap.Int("index", i))
	return nil
}
