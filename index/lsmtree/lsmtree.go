// Package lsmtree is a small in-memory LSM tree: a memtable flushed into
// sorted, bloom-filtered segments that are merged level by level. It is a
// benchmark baseline next to pebble.
package lsmtree

import (
	"bytes"
	"slices"

	"github.com/btree-query-bench/pagetree/dbms/index"
)

// Ensure LSMTree implements the index.Index interface
var _ index.Index = (*LSMTree)(nil)

type Entry struct {
	Key []byte
	Val []byte
}

func compareEntries(a, b Entry) int { return bytes.Compare(a.Key, b.Key) }

type Segment struct {
	Data   []Entry
	Filter *BloomFilter
}

type LSMTree struct {
	MemTable  []Entry
	Levels    [][]Segment // Level 0 contains multiple segments, Levels 1+ are merged
	Threshold int         // Max size of MemTable before flush
}

func NewLSM(threshold int) *LSMTree {
	if threshold < 1 {
		threshold = 1
	}
	return &LSMTree{
		Threshold: threshold,
		MemTable:  make([]Entry, 0, threshold),
		Levels:    make([][]Segment, 5), // L0 to L4
	}
}

// --- WRITE OPERATIONS ---

func (l *LSMTree) Insert(k, v []byte) error {
	l.MemTable = append(l.MemTable, Entry{bytes.Clone(k), bytes.Clone(v)})
	if len(l.MemTable) >= l.Threshold {
		l.flush()
	}
	return nil
}

func (l *LSMTree) flush() {
	// Newest first, so the stable sort keeps the latest write of each key in
	// front and dedupe can drop the rest.
	slices.Reverse(l.MemTable)
	slices.SortStableFunc(l.MemTable, compareEntries)
	data := dedupe(l.MemTable)

	// Push to Level 0
	l.Levels[0] = append([]Segment{newSegment(data)}, l.Levels[0]...)
	l.MemTable = make([]Entry, 0, l.Threshold)

	// Trigger 10x Leveling Check
	l.checkCompaction(0)
}

func newSegment(data []Entry) Segment {
	filter := NewBloom(len(data)*10, 3)
	for _, e := range data {
		filter.Add(e.Key)
	}
	return Segment{Data: data, Filter: filter}
}

// dedupe keeps the first entry of each run of equal keys in sorted data.
func dedupe(sorted []Entry) []Entry {
	return slices.CompactFunc(sorted, func(a, b Entry) bool { return bytes.Equal(a.Key, b.Key) })
}

func (l *LSMTree) checkCompaction(level int) {
	// If a level has more than 10 segments, merge them into the next level
	if len(l.Levels[level]) >= 10 && level < len(l.Levels)-1 {
		l.compactLevel(level)
	}
}

func (l *LSMTree) compactLevel(level int) {
	var combined []Entry
	for _, s := range l.Levels[level] {
		combined = append(combined, s.Data...)
	}

	// Stable Sort: newer segments are at the beginning of the slice
	slices.SortStableFunc(combined, compareEntries)
	compacted := dedupe(combined)

	l.Levels[level+1] = append([]Segment{newSegment(compacted)}, l.Levels[level+1]...)
	l.Levels[level] = make([]Segment, 0)

	l.checkCompaction(level + 1)
}

// --- READ OPERATIONS ---

func (l *LSMTree) Get(key []byte) ([]byte, error) {
	// 1. Search MemTable, newest first
	for i := len(l.MemTable) - 1; i >= 0; i-- {
		if bytes.Equal(l.MemTable[i].Key, key) {
			return l.MemTable[i].Val, nil
		}
	}

	// 2. Search Levels
	for _, level := range l.Levels {
		for _, s := range level {
			if !s.Filter.Test(key) {
				continue
			}
			idx, found := slices.BinarySearchFunc(s.Data, key, func(e Entry, t []byte) int {
				return bytes.Compare(e.Key, t)
			})
			if found {
				return s.Data[idx].Val, nil
			}
		}
	}
	return nil, index.ErrNotFound
}

func (l *LSMTree) Close() error { return nil }
