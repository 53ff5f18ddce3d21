// Package codec holds the fixed-width big-endian integer helpers used by the
// on-disk formats, plus printable conversions for diagnostics.
//
// The helpers do no bounds checking beyond what the slice expressions give:
// callers size their buffers before encoding or decoding.
package codec

import (
	"encoding/binary"
	"strconv"
)

const (
	Uint16Size = 2
	Uint64Size = 8
)

// Uint16 decodes a big-endian uint16 at off.
func Uint16(b []byte, off int) uint16 {
	return binary.BigEndian.Uint16(b[off : off+Uint16Size])
}

// PutUint16 encodes v big-endian at off.
func PutUint16(b []byte, off int, v uint16) {
	binary.BigEndian.PutUint16(b[off:off+Uint16Size], v)
}

// Uint64 decodes a big-endian uint64 at off.
func Uint64(b []byte, off int) uint64 {
	return binary.BigEndian.Uint64(b[off : off+Uint64Size])
}

// PutUint64 encodes v big-endian at off.
func PutUint64(b []byte, off int, v uint64) {
	binary.BigEndian.PutUint64(b[off:off+Uint64Size], v)
}

// Printable renders raw bytes as a double-quoted Go string literal with
// non-printable bytes escaped. Not used by the on-disk format.
func Printable(b []byte) string {
	return strconv.Quote(string(b))
}

// FromPrintable is the inverse of Printable. A bare, unquoted string is
// taken verbatim.
func FromPrintable(s string) ([]byte, error) {
	if len(s) < 2 || s[0] != '"' {
		return []byte(s), nil
	}
	u, err := strconv.Unquote(s)
	if err != nil {
		return nil, err
	}
	return []byte(u), nil
}
