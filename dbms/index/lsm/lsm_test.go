package lsm

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btree-query-bench/pagetree/dbms/index"
)

func TestInsertGet(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir)
	require.NoError(t, err)

	require.NoError(t, l.Insert([]byte("apple"), []byte("red")))
	require.NoError(t, l.Insert([]byte("apple"), []byte("green")))
	require.NoError(t, l.Insert([]byte("empty"), nil))
	require.NoError(t, l.Flush())

	v, err := l.Get([]byte("apple"))
	require.NoError(t, err)
	assert.Equal(t, "green", string(v))

	v, err = l.Get([]byte("empty"))
	require.NoError(t, err)
	assert.Empty(t, v)

	_, err = l.Get([]byte("pear"))
	assert.True(t, errors.Is(err, index.ErrNotFound), "got %v", err)
	require.NoError(t, l.Close())

	l, err = Open(dir)
	require.NoError(t, err)
	defer l.Close()
	v, err = l.Get([]byte("apple"))
	require.NoError(t, err)
	assert.Equal(t, "green", string(v))
}
