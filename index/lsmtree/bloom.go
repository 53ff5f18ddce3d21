package lsmtree

import "github.com/cespare/xxhash/v2"

type BloomFilter struct {
	bits []bool
	m    uint64
	k    int
}

func NewBloom(size int, k int) *BloomFilter {
	if size < 1 {
		size = 1
	}
	return &BloomFilter{
		bits: make([]bool, size),
		m:    uint64(size),
		k:    k,
	}
}

// positions derives the k bit positions of key from one 64-bit hash split in
// two halves (h1 + i*h2).
func (b *BloomFilter) positions(key []byte, fn func(pos uint64) bool) {
	sum := xxhash.Sum64(key)
	h1, h2 := sum&0xffffffff, sum>>32|1
	for i := 0; i < b.k; i++ {
		if !fn((h1 + uint64(i)*h2) % b.m) {
			return
		}
	}
}

func (b *BloomFilter) Add(key []byte) {
	b.positions(key, func(pos uint64) bool {
		b.bits[pos] = true
		return true
	})
}

func (b *BloomFilter) Test(key []byte) bool {
	hit := true
	b.positions(key, func(pos uint64) bool {
		hit = b.bits[pos]
		return hit // stop at the first clear bit: definitely not there
	})
	return hit // might be there
}
