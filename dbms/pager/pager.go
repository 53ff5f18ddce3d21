// Package pager owns the backing file of a tree: the 18-byte tree header at
// offset 0 and the fixed-size node pages that follow it.
//
// File layout:
//
//	[0-7]    root offset        (uint64, big-endian)
//	[8-15]   next free offset   (uint64, big-endian)
//	[16-17]  degree             (uint16, big-endian)
//	...      rest of page 0 is zero
//	[4096..] one encoded node per 4096-byte page
//
// Pages are only ever appended. Nothing is reclaimed.
package pager

import (
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/btree-query-bench/pagetree/dbms/codec"
	"github.com/btree-query-bench/pagetree/dbms/index/btpage"
)

const (
	PageSize   = 4096 // 4 KB, matches OS page size
	HeaderSize = 18

	// NilOffset is the zero disk pointer. Offset 0 holds the header, so no
	// node ever lives there.
	NilOffset = uint64(0)

	// FirstPage is where the first node page starts.
	FirstPage = uint64(PageSize)

	offRoot     = 0
	offNextFree = 8
	offDegree   = 16
)

var (
	ErrIO               = errors.New("backing store i/o failed")
	ErrCapacityExceeded = errors.New("encoded node exceeds page size")
	ErrInvalidOffset    = errors.New("invalid node offset")
	ErrNotPersisted     = errors.New("node has no disk offset")
	ErrCorruptHeader    = errors.New("corrupt tree header")
)

// Store is the backing storage the pager reads and writes. *os.File satisfies
// it.
type Store interface {
	io.ReaderAt
	io.WriterAt
	io.Closer
	Sync() error
}

// Header is the tree-wide state persisted at offset 0.
type Header struct {
	Root     uint64
	NextFree uint64
	Degree   uint16
}

// Pager reads and writes node pages and the tree header. It keeps no page
// cache: every ReadNode goes to the store.
type Pager struct {
	store Store
	hdr   Header
}

// Create initialises an empty store: no root yet, first page free.
func Create(store Store, degree uint16) (*Pager, error) {
	p := &Pager{
		store: store,
		hdr:   Header{Root: NilOffset, NextFree: FirstPage, Degree: degree},
	}
	// Write the whole header page so the first node page starts on a page
	// boundary of a file that is already PageSize long.
	var page [PageSize]byte
	encodeHeader(page[:], p.hdr)
	if _, err := store.WriteAt(page[:], 0); err != nil {
		return nil, errors.Wrapf(ErrIO, "pager: write header page: %v", err)
	}
	return p, nil
}

// Open loads the header of an existing store.
func Open(store Store) (*Pager, error) {
	p := &Pager{store: store}
	if err := p.ReadHeader(); err != nil {
		return nil, err
	}
	return p, nil
}

// OpenFile opens (or creates) the file at path. created reports whether the
// file was empty, in which case the caller must Create on it.
func OpenFile(path string) (f *os.File, created bool, err error) {
	f, err = os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, false, errors.Wrapf(ErrIO, "pager: open %s: %v", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, false, errors.Wrapf(ErrIO, "pager: stat %s: %v", path, err)
	}
	return f, info.Size() == 0, nil
}

// Header returns a copy of the in-memory header.
func (p *Pager) Header() Header {
	return p.hdr
}

// SetRoot records a new root offset and persists the header.
func (p *Pager) SetRoot(off uint64) error {
	p.hdr.Root = off
	return p.WriteHeader()
}

// WriteHeader persists root, next free offset and degree at offset 0.
func (p *Pager) WriteHeader() error {
	var b [HeaderSize]byte
	encodeHeader(b[:], p.hdr)
	if _, err := p.store.WriteAt(b[:], 0); err != nil {
		return errors.Wrapf(ErrIO, "pager: write header: %v", err)
	}
	return nil
}

// ReadHeader reloads the header from offset 0 and sanity checks it.
func (p *Pager) ReadHeader() error {
	var b [HeaderSize]byte
	if _, err := p.store.ReadAt(b[:], 0); err != nil {
		return errors.Wrapf(ErrIO, "pager: read header: %v", err)
	}
	hdr := Header{
		Root:     codec.Uint64(b[:], offRoot),
		NextFree: codec.Uint64(b[:], offNextFree),
		Degree:   codec.Uint16(b[:], offDegree),
	}
	if hdr.NextFree < FirstPage || hdr.NextFree%PageSize != 0 {
		return errors.Wrapf(ErrCorruptHeader, "next free offset %d", hdr.NextFree)
	}
	if hdr.Root != NilOffset && (hdr.Root%PageSize != 0 || hdr.Root >= hdr.NextFree) {
		return errors.Wrapf(ErrCorruptHeader, "root offset %d (next free %d)", hdr.Root, hdr.NextFree)
	}
	p.hdr = hdr
	return nil
}

func encodeHeader(b []byte, h Header) {
	codec.PutUint64(b, offRoot, h.Root)
	codec.PutUint64(b, offNextFree, h.NextFree)
	codec.PutUint16(b, offDegree, h.Degree)
}

// Fits reports ErrCapacityExceeded when n would not fit in one page.
func (p *Pager) Fits(n *btpage.Node) error {
	if size := n.EncodedSize(); size > PageSize {
		return errors.Wrapf(ErrCapacityExceeded, "%d byte node, %d keys", size, n.NumKeys())
	}
	return nil
}

// ReadNode loads the node stored at off.
func (p *Pager) ReadNode(off uint64) (*btpage.Node, error) {
	if err := p.checkOffset(off); err != nil {
		return nil, err
	}
	var page [PageSize]byte
	if _, err := p.store.ReadAt(page[:], int64(off)); err != nil {
		return nil, errors.Wrapf(ErrIO, "pager: read page at %d: %v", off, err)
	}
	n, err := btpage.Decode(page[:])
	if err != nil {
		return nil, errors.Wrapf(err, "pager: page at %d", off)
	}
	n.Offset = off
	return n, nil
}

// AppendNode writes n to a fresh page at the end of the file, sets n.Offset
// and persists the advanced header.
func (p *Pager) AppendNode(n *btpage.Node) (uint64, error) {
	off := p.hdr.NextFree
	if err := p.writePage(off, n); err != nil {
		return 0, err
	}
	n.Offset = off
	p.hdr.NextFree += PageSize
	if err := p.WriteHeader(); err != nil {
		return 0, err
	}
	return off, nil
}

// RewriteNode overwrites the page n was loaded from.
func (p *Pager) RewriteNode(n *btpage.Node) error {
	if !n.Persisted() {
		return ErrNotPersisted
	}
	if err := p.checkOffset(n.Offset); err != nil {
		return err
	}
	return p.writePage(n.Offset, n)
}

// writePage encodes n into a zeroed page so that nothing of an older, longer
// encoding survives behind it.
func (p *Pager) writePage(off uint64, n *btpage.Node) error {
	if err := p.Fits(n); err != nil {
		return err
	}
	var page [PageSize]byte
	if _, err := btpage.EncodeTo(page[:], n); err != nil {
		return err
	}
	if _, err := p.store.WriteAt(page[:], int64(off)); err != nil {
		return errors.Wrapf(ErrIO, "pager: write page at %d: %v", off, err)
	}
	return nil
}

func (p *Pager) checkOffset(off uint64) error {
	if off < FirstPage || off%PageSize != 0 || off >= p.hdr.NextFree {
		return errors.Wrapf(ErrInvalidOffset, "offset %d (next free %d)", off, p.hdr.NextFree)
	}
	return nil
}

// PageCount returns the number of node pages allocated so far.
func (p *Pager) PageCount() uint64 {
	return (p.hdr.NextFree - FirstPage) / PageSize
}

// Sync flushes the store to stable storage.
func (p *Pager) Sync() error {
	if err := p.store.Sync(); err != nil {
		return errors.Wrapf(ErrIO, "pager: sync: %v", err)
	}
	return nil
}

// Close persists the header and closes the store.
func (p *Pager) Close() error {
	if err := p.WriteHeader(); err != nil {
		p.store.Close()
		return err
	}
	if err := p.store.Close(); err != nil {
		return errors.Wrapf(ErrIO, "pager: close: %v", err)
	}
	return nil
}
