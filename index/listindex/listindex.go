// Package listindex keeps pairs in one sorted slice. It is the simplest
// ordered baseline for the benchmark: binary search on reads, shifting the
// tail on writes.
package listindex

import (
	"bytes"
	"slices"

	"github.com/btree-query-bench/pagetree/dbms/index"
)

var _ index.Index = (*ListIndex)(nil)

type Data struct {
	Key []byte
	Val []byte
}

type ListIndex struct {
	Data []Data
}

func NewListIndex() *ListIndex {
	return &ListIndex{
		Data: make([]Data, 0),
	}
}

func (l *ListIndex) find(key []byte) (int, bool) {
	return slices.BinarySearchFunc(l.Data, key, func(d Data, k []byte) int {
		return bytes.Compare(d.Key, k)
	})
}

func (l *ListIndex) Insert(key, value []byte) error {
	i, found := l.find(key)
	if found {
		l.Data[i].Val = bytes.Clone(value)
		return nil
	}
	l.Data = slices.Insert(l.Data, i, Data{Key: bytes.Clone(key), Val: bytes.Clone(value)})
	return nil
}

func (l *ListIndex) Get(key []byte) ([]byte, error) {
	if i, found := l.find(key); found {
		return l.Data[i].Val, nil
	}
	return nil, index.ErrNotFound
}

func (l *ListIndex) Close() error { return nil }
