// Package btpage provides the on-disk node layout used by the B-tree.
//
// Node layout (all integers big-endian):
//
//	[0-1]   2 bytes            node type (TypeInternal / TypeLeaf / TypeDeleted)
//	[2-3]   2 bytes            key count k
//	[4..]   (k+1) * 8 bytes    child pointers (byte offsets into the file)
//	        k * 2 bytes        key offsets, relative to the start of the entry area
//	        entries            klen (2) | vlen (2) | key | value, in key order
//
// Leaf nodes still carry k+1 pointer slots; they are written as zero.
package btpage

import (
	"bytes"
	"fmt"
	"math"

	"github.com/pkg/errors"

	"github.com/btree-query-bench/pagetree/dbms/codec"
)

// NodeType is the first field of every encoded node.
type NodeType uint16

const (
	TypeInternal NodeType = 0
	TypeLeaf     NodeType = 1
	TypeDeleted  NodeType = 2
)

func (t NodeType) String() string {
	switch t {
	case TypeInternal:
		return "internal"
	case TypeLeaf:
		return "leaf"
	case TypeDeleted:
		return "deleted"
	}
	return fmt.Sprintf("NodeType(%d)", uint16(t))
}

const (
	HeaderSize      = 4
	PointerSize     = codec.Uint64Size
	KeyOffsetSize   = codec.Uint16Size
	EntryHeaderSize = 4

	MaxKeySize   = math.MaxUint16
	MaxValueSize = math.MaxUint16
	MaxKeys      = math.MaxUint16
)

var (
	ErrCorruptNode   = errors.New("corrupt node")
	ErrMalformedNode = errors.New("malformed node")
	ErrKeyTooLarge   = errors.New("key exceeds 65535 bytes")
	ErrValueTooLarge = errors.New("value exceeds 65535 bytes")
)

// KeyValue is one entry of a node.
type KeyValue struct {
	Key   []byte
	Value []byte
}

// Size is the encoded size of the entry including its length prefixes.
func (kv KeyValue) Size() int {
	return EntryHeaderSize + len(kv.Key) + len(kv.Value)
}

// Header is the fixed part of a node.
type Header struct {
	Type    NodeType
	NumKeys uint16
}

// Node is the in-memory form of one page. It owns its slices; mutating a Node
// has no effect on disk until the page store writes it back.
type Node struct {
	Header Header
	// Offset is the node's own disk pointer, 0 until the node is persisted.
	Offset   uint64
	Pointers []uint64
	Offsets  []uint16
	Entries  []KeyValue
}

// NewNode returns an empty, unpersisted node of the given type.
func NewNode(typ NodeType) *Node {
	return &Node{Header: Header{Type: typ}}
}

func (n *Node) IsLeaf() bool    { return n.Header.Type == TypeLeaf }
func (n *Node) NumKeys() int    { return len(n.Entries) }
func (n *Node) Persisted() bool { return n.Offset != 0 }

// Search returns the position of key in the node and whether it is present.
// When absent, idx is the index of the first entry greater than key, which is
// also the child slot a descent should follow (k when key exceeds all keys).
func (n *Node) Search(key []byte) (idx int, found bool) {
	lo, hi := 0, len(n.Entries)
	for lo < hi {
		m := int(uint(lo+hi) >> 1)
		switch c := bytes.Compare(n.Entries[m].Key, key); {
		case c == 0:
			return m, true
		case c < 0:
			lo = m + 1
		default:
			hi = m
		}
	}
	return lo, false
}

// InsertEntry places kv at idx, shifting larger entries right.
func (n *Node) InsertEntry(idx int, kv KeyValue) {
	n.Entries = append(n.Entries, KeyValue{})
	copy(n.Entries[idx+1:], n.Entries[idx:])
	n.Entries[idx] = kv
	n.Reindex()
}

// InsertPointer places ptr at idx, shifting later pointers right.
func (n *Node) InsertPointer(idx int, ptr uint64) {
	n.Pointers = append(n.Pointers, 0)
	copy(n.Pointers[idx+1:], n.Pointers[idx:])
	n.Pointers[idx] = ptr
}

// SetValue replaces the value of the entry at idx.
func (n *Node) SetValue(idx int, value []byte) {
	n.Entries[idx].Value = value
	n.Reindex()
}

// Reindex brings the key count and the key offset table in line with the
// entries. Every mutation of the entry set goes through it.
func (n *Node) Reindex() {
	n.Header.NumKeys = uint16(len(n.Entries))
	if n.Offsets != nil && cap(n.Offsets) >= len(n.Entries) {
		n.Offsets = n.Offsets[:len(n.Entries)]
	} else {
		n.Offsets = make([]uint16, len(n.Entries))
	}
	off := 0
	for i, kv := range n.Entries {
		n.Offsets[i] = uint16(off)
		off += kv.Size()
	}
}

// Child returns pointer i, or 0 for an unused leaf slot.
func (n *Node) Child(i int) uint64 {
	if i < len(n.Pointers) {
		return n.Pointers[i]
	}
	return 0
}

// EncodedSize returns the exact number of bytes Encode produces.
func (n *Node) EncodedSize() int {
	k := len(n.Entries)
	size := HeaderSize + PointerSize*(k+1) + KeyOffsetSize*k
	for _, kv := range n.Entries {
		size += kv.Size()
	}
	return size
}

func (n *Node) validate() error {
	k := len(n.Entries)
	if k > MaxKeys {
		return errors.Wrapf(ErrMalformedNode, "%d keys", k)
	}
	if n.Header.Type == TypeInternal && len(n.Pointers) != k+1 {
		return errors.Wrapf(ErrMalformedNode, "internal node with %d keys has %d pointers", k, len(n.Pointers))
	}
	for i, kv := range n.Entries {
		if len(kv.Key) > MaxKeySize {
			return errors.Wrapf(ErrKeyTooLarge, "entry %d", i)
		}
		if len(kv.Value) > MaxValueSize {
			return errors.Wrapf(ErrValueTooLarge, "entry %d", i)
		}
	}
	return nil
}

// Encode serialises the node. The key count and offset table are derived from
// the entries, so an encoded node is always self-consistent.
func Encode(n *Node) ([]byte, error) {
	buf := make([]byte, n.EncodedSize())
	if _, err := EncodeTo(buf, n); err != nil {
		return nil, err
	}
	return buf, nil
}

// EncodeTo serialises the node into buf and returns the number of bytes
// written. buf must hold at least EncodedSize bytes.
func EncodeTo(buf []byte, n *Node) (int, error) {
	if err := n.validate(); err != nil {
		return 0, err
	}
	size := n.EncodedSize()
	if len(buf) < size {
		return 0, errors.Errorf("btpage: buffer of %d bytes too small for %d byte node", len(buf), size)
	}
	k := len(n.Entries)

	codec.PutUint16(buf, 0, uint16(n.Header.Type))
	codec.PutUint16(buf, 2, uint16(k))
	pos := HeaderSize

	for i := 0; i <= k; i++ {
		codec.PutUint64(buf, pos, n.Child(i))
		pos += PointerSize
	}

	off := 0
	for _, kv := range n.Entries {
		codec.PutUint16(buf, pos, uint16(off))
		pos += KeyOffsetSize
		off += kv.Size()
	}

	for _, kv := range n.Entries {
		codec.PutUint16(buf, pos, uint16(len(kv.Key)))
		codec.PutUint16(buf, pos+2, uint16(len(kv.Value)))
		pos += EntryHeaderSize
		pos += copy(buf[pos:], kv.Key)
		pos += copy(buf[pos:], kv.Value)
	}
	return pos, nil
}

// Decode parses a node from buf. Trailing bytes past the encoded node are
// ignored. Entry lengths come from the per-entry prefixes; the offset table is
// kept as read.
func Decode(buf []byte) (*Node, error) {
	if len(buf) < HeaderSize {
		return nil, errors.Wrapf(ErrCorruptNode, "%d bytes is shorter than the node header", len(buf))
	}
	typ := NodeType(codec.Uint16(buf, 0))
	if typ > TypeDeleted {
		return nil, errors.Wrapf(ErrCorruptNode, "unknown node type %d", uint16(typ))
	}
	k := int(codec.Uint16(buf, 2))

	fixed := HeaderSize + PointerSize*(k+1) + KeyOffsetSize*k
	if fixed > len(buf) {
		return nil, errors.Wrapf(ErrCorruptNode, "%d keys need %d bytes, have %d", k, fixed, len(buf))
	}

	n := &Node{
		Header:   Header{Type: typ, NumKeys: uint16(k)},
		Pointers: make([]uint64, k+1),
		Offsets:  make([]uint16, k),
		Entries:  make([]KeyValue, k),
	}
	pos := HeaderSize
	for i := range n.Pointers {
		n.Pointers[i] = codec.Uint64(buf, pos)
		pos += PointerSize
	}
	for i := range n.Offsets {
		n.Offsets[i] = codec.Uint16(buf, pos)
		pos += KeyOffsetSize
	}
	for i := range n.Entries {
		if pos+EntryHeaderSize > len(buf) {
			return nil, errors.Wrapf(ErrCorruptNode, "entry %d header past end of buffer", i)
		}
		klen := int(codec.Uint16(buf, pos))
		vlen := int(codec.Uint16(buf, pos+2))
		pos += EntryHeaderSize
		if pos+klen+vlen > len(buf) {
			return nil, errors.Wrapf(ErrCorruptNode, "entry %d (%d+%d bytes) past end of buffer", i, klen, vlen)
		}
		n.Entries[i] = KeyValue{
			Key:   bytes.Clone(buf[pos : pos+klen]),
			Value: bytes.Clone(buf[pos+klen : pos+klen+vlen]),
		}
		pos += klen + vlen
	}
	return n, nil
}
