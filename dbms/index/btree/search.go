package btree

import (
	"github.com/btree-query-bench/pagetree/dbms/index/btpage"
)

// Search returns the entry stored under key, or ErrNotFound.
func (t *BTree) Search(key []byte) (btpage.KeyValue, error) {
	off := t.Root()
	for {
		n, err := t.load(off)
		if err != nil {
			return btpage.KeyValue{}, err
		}
		// idx is also the child to follow: the first key greater than key,
		// or NumKeys when key is larger than every key in the node.
		idx, found := n.Search(key)
		if found {
			return n.Entries[idx], nil
		}
		if n.IsLeaf() {
			return btpage.KeyValue{}, ErrNotFound
		}
		off = n.Pointers[idx]
	}
}

// Get returns the value stored under key, or ErrNotFound.
func (t *BTree) Get(key []byte) ([]byte, error) {
	kv, err := t.Search(key)
	if err != nil {
		return nil, err
	}
	return kv.Value, nil
}
