// Package index defines the interface shared by the disk B-tree and the
// engines it is compared against.
package index

import "github.com/pkg/errors"

// ErrNotFound is returned by Get when the key is absent. It is a negative
// result, not a failure.
var ErrNotFound = errors.New("key not found")

// Index is the common interface for all implementations.
type Index interface {
	// Insert stores value under key, replacing any previous value.
	Insert(key, value []byte) error
	Get(key []byte) ([]byte, error)
	Close() error
}
