// Package bplus is an in-memory B+ tree over byte keys: values live only in
// the leaves, which are chained left to right. It is a benchmark baseline
// for the B-tree, which stores values in every node.
package bplus

import (
	"bytes"
	"slices"

	"github.com/btree-query-bench/pagetree/dbms/index"
)

var _ index.Index = (*BPlusTree)(nil)

type BPlusNode struct {
	IsLeaf   bool
	Keys     [][]byte
	Values   [][]byte     // Only populated if IsLeaf == true
	Children []*BPlusNode // Only populated if IsLeaf == false
	Next     *BPlusNode   // Next leaf in key order
}

type BPlusTree struct {
	T    int // Minimum degree (t). Max keys = 2t-1
	Root *BPlusNode
}

func NewBPlusTree(t int) *BPlusTree {
	if t < 2 {
		t = 2
	}
	return &BPlusTree{
		T:    t,
		Root: &BPlusNode{IsLeaf: true},
	}
}

func findKey(keys [][]byte, key []byte) (int, bool) {
	return slices.BinarySearchFunc(keys, key, bytes.Compare)
}

// childIndex returns the child holding key: separators equal to key route
// right, since a leaf split copies its first key up.
func childIndex(x *BPlusNode, key []byte) int {
	i, found := findKey(x.Keys, key)
	if found {
		i++
	}
	return i
}

// --- GET (Point Query) ---

func (bt *BPlusTree) Get(key []byte) ([]byte, error) {
	node := bt.findLeaf(bt.Root, key)
	idx, found := findKey(node.Keys, key)
	if !found {
		return nil, index.ErrNotFound
	}
	return node.Values[idx], nil
}

func (bt *BPlusTree) findLeaf(curr *BPlusNode, key []byte) *BPlusNode {
	for !curr.IsLeaf {
		curr = curr.Children[childIndex(curr, key)]
	}
	return curr
}

// --- INSERT ---

func (bt *BPlusTree) Insert(key, value []byte) error {
	key, value = bytes.Clone(key), bytes.Clone(value)
	root := bt.Root
	// If root is full, tree grows in height
	if len(root.Keys) == (2*bt.T - 1) {
		newRoot := &BPlusNode{IsLeaf: false, Children: []*BPlusNode{root}}
		bt.splitChild(newRoot, 0)
		bt.Root = newRoot
	}
	bt.insertNonFull(bt.Root, key, value)
	return nil
}

func (bt *BPlusTree) insertNonFull(x *BPlusNode, k, v []byte) {
	for !x.IsLeaf {
		i := childIndex(x, k)
		if len(x.Children[i].Keys) == (2*bt.T - 1) {
			bt.splitChild(x, i)
			if bytes.Compare(k, x.Keys[i]) >= 0 {
				i++
			}
		}
		x = x.Children[i]
	}
	idx, found := findKey(x.Keys, k)
	if found {
		x.Values[idx] = v // Update existing
		return
	}
	x.Keys = slices.Insert(x.Keys, idx, k)
	x.Values = slices.Insert(x.Values, idx, v)
}

func (bt *BPlusTree) splitChild(x *BPlusNode, i int) {
	t := bt.T
	y := x.Children[i]
	z := &BPlusNode{IsLeaf: y.IsLeaf}

	if y.IsLeaf {
		// B+ Leaf Split: The first key of the new leaf is copied to parent
		z.Keys = append([][]byte{}, y.Keys[t-1:]...)
		z.Values = append([][]byte{}, y.Values[t-1:]...)
		z.Next = y.Next
		y.Next = z

		y.Keys = y.Keys[:t-1:t-1]
		y.Values = y.Values[:t-1:t-1]

		x.Keys = slices.Insert(x.Keys, i, z.Keys[0])
	} else {
		// B+ Internal Split: Middle key is pushed to parent and removed from child
		z.Keys = append([][]byte{}, y.Keys[t:]...)
		z.Children = append([]*BPlusNode{}, y.Children[t:]...)

		midKey := y.Keys[t-1]
		y.Keys = y.Keys[:t-1:t-1]
		y.Children = y.Children[:t:t]

		x.Keys = slices.Insert(x.Keys, i, midKey)
	}
	x.Children = slices.Insert(x.Children, i+1, z)
}

// Ascend follows the leaf chain and calls fn for every pair in key order
// until fn returns false.
func (bt *BPlusTree) Ascend(fn func(key, value []byte) bool) {
	leaf := bt.Root
	for !leaf.IsLeaf {
		leaf = leaf.Children[0]
	}
	for ; leaf != nil; leaf = leaf.Next {
		for i, k := range leaf.Keys {
			if !fn(k, leaf.Values[i]) {
				return
			}
		}
	}
}

func (bt *BPlusTree) Close() error { return nil }
