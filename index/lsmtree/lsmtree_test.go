package lsmtree

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btree-query-bench/pagetree/dbms/index"
)

func TestBloomHasNoFalseNegatives(t *testing.T) {
	b := NewBloom(1000, 3)
	for i := 0; i < 100; i++ {
		b.Add([]byte(fmt.Sprint(i)))
	}
	for i := 0; i < 100; i++ {
		assert.True(t, b.Test([]byte(fmt.Sprint(i))))
	}
	misses := 0
	for i := 100; i < 1100; i++ {
		if !b.Test([]byte(fmt.Sprint(i))) {
			misses++
		}
	}
	assert.Greater(t, misses, 900)
}

func TestLatestWriteWinsAcrossLevels(t *testing.T) {
	l := NewLSM(4)
	want := map[string]string{}
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 3000; i++ {
		k := fmt.Sprintf("k%d", rng.Intn(300))
		v := fmt.Sprint(i)
		require.NoError(t, l.Insert([]byte(k), []byte(v)))
		want[k] = v
	}
	assert.NotEmpty(t, l.Levels[1], "compaction ran")

	for k, v := range want {
		got, err := l.Get([]byte(k))
		require.NoError(t, err, k)
		assert.Equal(t, v, string(got), k)
	}
	_, err := l.Get([]byte("absent"))
	assert.True(t, errors.Is(err, index.ErrNotFound))
}
