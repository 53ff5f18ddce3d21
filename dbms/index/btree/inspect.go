package btree

import (
	"bytes"
	"slices"

	"github.com/pkg/errors"

	"github.com/btree-query-bench/pagetree/dbms/codec"
	"github.com/btree-query-bench/pagetree/dbms/index/btpage"
	"github.com/btree-query-bench/pagetree/dbms/pager"
)

// ─── Inspection ───────────────────────────────────────────────────────────────

// Node loads the node at off.
func (t *BTree) Node(off uint64) (*btpage.Node, error) {
	return t.load(off)
}

// WalkFunc is called for every node reachable from the root. depth is 0 for
// the root.
type WalkFunc func(n *btpage.Node, depth int) error

// Walk visits the tree depth first, parents before children and children in
// key order. It stops at the first error fn returns. A page reached twice
// fails with ErrInvariant.
func (t *BTree) Walk(fn WalkFunc) error {
	seen := make(map[uint64]bool)
	var walk func(off uint64, depth int) error
	walk = func(off uint64, depth int) error {
		if seen[off] {
			return errors.Wrapf(ErrInvariant, "page %d is linked twice", off)
		}
		seen[off] = true
		n, err := t.load(off)
		if err != nil {
			return err
		}
		if err := fn(n, depth); err != nil {
			return err
		}
		if n.IsLeaf() {
			return nil
		}
		for _, child := range n.Pointers {
			if err := walk(child, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(t.Root(), 0)
}

// Stats summarises the shape of a tree.
type Stats struct {
	Degree   int
	Height   int // levels, 1 for a lone root leaf
	Nodes    int
	Leaves   int
	Internal int
	Keys     int
	Pages    uint64 // allocated pages, reachable or not
	Bytes    int    // encoded bytes of all reachable nodes
	Fill     float64
}

// Stats walks the tree and reports its shape.
func (t *BTree) Stats() (Stats, error) {
	s := Stats{Degree: t.degree, Pages: t.pg.PageCount()}
	err := t.Walk(func(n *btpage.Node, depth int) error {
		s.Nodes++
		if n.IsLeaf() {
			s.Leaves++
		} else {
			s.Internal++
		}
		s.Keys += n.NumKeys()
		s.Bytes += n.EncodedSize()
		s.Height = max(s.Height, depth+1)
		return nil
	})
	if err != nil {
		return Stats{}, err
	}
	if s.Nodes > 0 {
		s.Fill = float64(s.Bytes) / float64(s.Nodes*pager.PageSize)
	}
	return s, nil
}

// Check verifies the structural invariants of the whole tree:
//
//   - keys inside each node are strictly ascending
//   - every key lies between the separators of its parent
//   - non-root nodes hold t-1 to 2t-1 keys, the root at most 2t-1
//   - an internal node with k keys has k+1 non-nil children
//   - all leaves sit at the same depth
//   - the stored key offsets match the entries
//
// The first violation is returned wrapped in ErrInvariant.
func (t *BTree) Check() error {
	c := checker{t: t, seen: make(map[uint64]bool), leafDepth: -1}
	return c.check(t.Root(), 0, nil, nil)
}

type checker struct {
	t         *BTree
	seen      map[uint64]bool
	leafDepth int
}

// check validates the subtree at off. lo and hi are the exclusive bounds from
// the parent separators, nil when unbounded.
func (c *checker) check(off uint64, depth int, lo, hi []byte) error {
	if c.seen[off] {
		return errors.Wrapf(ErrInvariant, "page %d is linked twice", off)
	}
	c.seen[off] = true

	n, err := c.t.load(off)
	if err != nil {
		return err
	}
	fail := func(format string, args ...any) error {
		return errors.Wrapf(ErrInvariant, "node %d: "+format, append([]any{off}, args...)...)
	}

	k := n.NumKeys()
	switch {
	case k > c.t.maxKeys():
		return fail("%d keys, max %d", k, c.t.maxKeys())
	case depth > 0 && k < c.t.degree-1:
		return fail("%d keys, min %d", k, c.t.degree-1)
	case depth == 0 && !n.IsLeaf() && k == 0:
		return fail("internal root without keys")
	}
	if int(n.Header.NumKeys) != k || len(n.Offsets) != k {
		return fail("key count %d, %d offsets, %d entries", n.Header.NumKeys, len(n.Offsets), k)
	}

	pos := 0
	for i, kv := range n.Entries {
		if int(n.Offsets[i]) != pos {
			return fail("key offset %d is %d, want %d", i, n.Offsets[i], pos)
		}
		pos += kv.Size()
		if i > 0 && bytes.Compare(n.Entries[i-1].Key, kv.Key) >= 0 {
			return fail("key %s not above %s", codec.Printable(kv.Key), codec.Printable(n.Entries[i-1].Key))
		}
		if lo != nil && bytes.Compare(kv.Key, lo) <= 0 {
			return fail("key %s not above separator %s", codec.Printable(kv.Key), codec.Printable(lo))
		}
		if hi != nil && bytes.Compare(kv.Key, hi) >= 0 {
			return fail("key %s not below separator %s", codec.Printable(kv.Key), codec.Printable(hi))
		}
	}

	if n.IsLeaf() {
		if slices.ContainsFunc(n.Pointers, func(p uint64) bool { return p != pager.NilOffset }) {
			return fail("leaf with child pointers")
		}
		if c.leafDepth < 0 {
			c.leafDepth = depth
		} else if c.leafDepth != depth {
			return fail("leaf at depth %d, others at %d", depth, c.leafDepth)
		}
		return nil
	}

	if len(n.Pointers) != k+1 {
		return fail("%d keys but %d children", k, len(n.Pointers))
	}
	for i, child := range n.Pointers {
		if child == pager.NilOffset {
			return fail("nil child %d", i)
		}
		clo, chi := lo, hi
		if i > 0 {
			clo = n.Entries[i-1].Key
		}
		if i < k {
			chi = n.Entries[i].Key
		}
		if err := c.check(child, depth+1, clo, chi); err != nil {
			return err
		}
	}
	return nil
}
