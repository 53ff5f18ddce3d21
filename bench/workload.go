package bench

import (
	"fmt"
	"math/rand"

	"github.com/pkg/errors"

	"github.com/btree-query-bench/pagetree/dbms/index"
)

type WorkloadType string

const (
	OLTP WorkloadType = "OLTP (90/10)"
	OLAP WorkloadType = "OLAP (10/90)"
)

// Key returns the benchmark key for i. Fixed width keeps byte order and
// numeric order the same.
func Key(i int) []byte {
	return []byte(fmt.Sprintf("key%010d", i))
}

// Counts tallies what a workload did.
type Counts struct {
	Reads  int
	Writes int
	Misses int
}

// ExecuteWorkload runs a mixed distribution of ops over keys in [0, keySpace).
// OLTP is 90% reads, OLAP 90% writes. A miss is not an error.
func ExecuteWorkload(idx index.Index, wType WorkloadType, ops, keySpace int, rng *rand.Rand) (Counts, error) {
	readPct := 90
	if wType == OLAP {
		readPct = 10
	}
	var c Counts
	for i := 0; i < ops; i++ {
		choice := rng.Intn(100)
		key := Key(rng.Intn(keySpace))

		if choice < readPct {
			c.Reads++
			_, err := idx.Get(key)
			if errors.Is(err, index.ErrNotFound) {
				c.Misses++
			} else if err != nil {
				return c, errors.Wrapf(err, "bench: %s get", wType)
			}
		} else {
			c.Writes++
			if err := idx.Insert(key, []byte("x")); err != nil {
				return c, errors.Wrapf(err, "bench: %s insert", wType)
			}
		}
	}
	return c, nil
}
