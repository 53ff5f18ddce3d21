package listindex

import (
	"slices"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btree-query-bench/pagetree/dbms/index"
)

func TestInsertKeepsOrder(t *testing.T) {
	l := NewListIndex()
	for _, k := range []string{"pear", "apple", "grape", "apple"} {
		require.NoError(t, l.Insert([]byte(k), []byte(k+"!")))
	}
	var keys []string
	for _, d := range l.Data {
		keys = append(keys, string(d.Key))
	}
	assert.Equal(t, []string{"apple", "grape", "pear"}, keys)
	assert.True(t, slices.IsSorted(keys))

	v, err := l.Get([]byte("grape"))
	require.NoError(t, err)
	assert.Equal(t, "grape!", string(v))

	_, err = l.Get([]byte("kiwi"))
	assert.True(t, errors.Is(err, index.ErrNotFound))
}
