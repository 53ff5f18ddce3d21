// Package btree is an in-memory B-tree over byte keys. It runs the same
// preemptive-split insertion as the disk tree and serves as its reference
// in tests and as the in-memory baseline of the benchmark.
package btree

import (
	"bytes"
	"slices"

	"github.com/btree-query-bench/pagetree/dbms/index"
)

var _ index.Index = (*BTree)(nil)

type BTreeNode struct {
	Leaf     bool
	Keys     [][]byte
	Values   [][]byte
	Children []*BTreeNode
}

type BTree struct {
	T    int
	Root *BTreeNode
	size int
}

func NewBTree(t int) *BTree {
	if t < 2 {
		t = 2
	}
	return &BTree{T: t, Root: &BTreeNode{Leaf: true}}
}

// Len returns the number of distinct keys.
func (bt *BTree) Len() int { return bt.size }

func (bt *BTree) Close() error { return nil }

func (bt *BTree) Get(key []byte) ([]byte, error) {
	x := bt.Root
	for {
		i, found := x.find(key)
		if found {
			return x.Values[i], nil
		}
		if x.Leaf {
			return nil, index.ErrNotFound
		}
		x = x.Children[i]
	}
}

func (x *BTreeNode) find(key []byte) (int, bool) {
	return slices.BinarySearchFunc(x.Keys, key, bytes.Compare)
}

func (bt *BTree) Insert(key, value []byte) error {
	key, value = bytes.Clone(key), bytes.Clone(value)
	root := bt.Root
	if _, found := root.find(key); !found && len(root.Keys) == bt.maxKeys() {
		newRoot := &BTreeNode{Children: []*BTreeNode{root}}
		bt.splitChild(newRoot, 0)
		bt.Root = newRoot
	}
	bt.insertNonFull(bt.Root, key, value)
	return nil
}

func (bt *BTree) maxKeys() int { return 2*bt.T - 1 }

func (bt *BTree) insertNonFull(x *BTreeNode, k, v []byte) {
	for {
		i, found := x.find(k)
		if found {
			x.Values[i] = v
			return
		}
		if x.Leaf {
			x.Keys = slices.Insert(x.Keys, i, k)
			x.Values = slices.Insert(x.Values, i, v)
			bt.size++
			return
		}
		child := x.Children[i]
		if _, inChild := child.find(k); !inChild && len(child.Keys) == bt.maxKeys() {
			bt.splitChild(x, i)
			if bytes.Compare(k, x.Keys[i]) > 0 {
				i++
			}
		}
		x = x.Children[i]
	}
}

func (bt *BTree) splitChild(x *BTreeNode, i int) {
	t := bt.T
	y := x.Children[i]
	z := &BTreeNode{Leaf: y.Leaf}
	z.Keys = append(z.Keys, y.Keys[t:]...)
	z.Values = append(z.Values, y.Values[t:]...)
	if !y.Leaf {
		z.Children = append(z.Children, y.Children[t:]...)
	}

	midKey, midVal := y.Keys[t-1], y.Values[t-1]
	y.Keys, y.Values = y.Keys[:t-1:t-1], y.Values[:t-1:t-1]
	if !y.Leaf {
		y.Children = y.Children[:t:t]
	}

	x.Keys = slices.Insert(x.Keys, i, midKey)
	x.Values = slices.Insert(x.Values, i, midVal)
	x.Children = slices.Insert(x.Children, i+1, z)
}

// Ascend calls fn for every pair in key order until fn returns false.
func (bt *BTree) Ascend(fn func(key, value []byte) bool) {
	bt.Root.ascend(fn)
}

func (x *BTreeNode) ascend(fn func(key, value []byte) bool) bool {
	for i := range x.Keys {
		if !x.Leaf && !x.Children[i].ascend(fn) {
			return false
		}
		if !fn(x.Keys[i], x.Values[i]) {
			return false
		}
	}
	if !x.Leaf {
		return x.Children[len(x.Keys)].ascend(fn)
	}
	return true
}

// Height returns the number of levels.
func (bt *BTree) Height() int {
	h := 1
	for x := bt.Root; !x.Leaf; x = x.Children[0] {
		h++
	}
	return h
}
