package bench

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/btree-query-bench/pagetree/config"
	"github.com/btree-query-bench/pagetree/dbms/index"
	"github.com/btree-query-bench/pagetree/dbms/index/btree"
	"github.com/btree-query-bench/pagetree/dbms/index/lsm"
	bplus "github.com/btree-query-bench/pagetree/index/bplustree"
	memtree "github.com/btree-query-bench/pagetree/index/btree"
	"github.com/btree-query-bench/pagetree/index/listindex"
	"github.com/btree-query-bench/pagetree/index/lsmtree"
)

// DiskTarget benchmarks the disk B-tree in a fresh file under dir.
func DiskTarget(dir string, degree int, log *zap.Logger) Target {
	return Target{
		Name:   "B-Tree (disk)",
		Config: strconv.Itoa(degree),
		Open: func() (index.Index, error) {
			path := filepath.Join(dir, fmt.Sprintf("bench-t%d.db", degree))
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return nil, errors.Wrap(err, "bench: remove old tree")
			}
			return btree.OpenFile(path, degree, btree.WithLogger(log))
		},
	}
}

// MemoryTarget benchmarks the in-memory B-tree.
func MemoryTarget(degree int) Target {
	return Target{
		Name:   "B-Tree (memory)",
		Config: strconv.Itoa(degree),
		Open: func() (index.Index, error) {
			return memtree.NewBTree(degree), nil
		},
	}
}

// PebbleTarget benchmarks pebble in a fresh directory.
func PebbleTarget(dir string) Target {
	return Target{
		Name: "LSM (pebble)",
		Open: func() (index.Index, error) {
			if err := os.RemoveAll(dir); err != nil {
				return nil, errors.Wrap(err, "bench: clear lsm dir")
			}
			return lsm.Open(dir)
		},
	}
}

// BPlusTarget benchmarks the in-memory B+ tree.
func BPlusTarget(degree int) Target {
	return Target{
		Name:   "B+Tree (memory)",
		Config: strconv.Itoa(degree),
		Open: func() (index.Index, error) {
			return bplus.NewBPlusTree(degree), nil
		},
	}
}

// ListTarget benchmarks a single sorted slice.
func ListTarget() Target {
	return Target{
		Name: "Sorted list",
		Open: func() (index.Index, error) {
			return listindex.NewListIndex(), nil
		},
	}
}

// MemoryLSMTarget benchmarks the in-memory LSM tree.
func MemoryLSMTarget(threshold int) Target {
	return Target{
		Name:   "LSM (memory)",
		Config: strconv.Itoa(threshold),
		Open: func() (index.Index, error) {
			return lsmtree.NewLSM(threshold), nil
		},
	}
}

// Targets lists every index the bench command compares: the disk B-tree and
// the in-memory B-tree and B+ tree for each configured degree, then the
// sorted list and both LSMs.
func Targets(cfg config.Bench, log *zap.Logger) []Target {
	var ts []Target
	for _, d := range cfg.Degrees {
		ts = append(ts, DiskTarget(cfg.ResultsDir, d, log), MemoryTarget(d), BPlusTarget(d))
	}
	ts = append(ts, ListTarget())
	if cfg.MemTable > 0 {
		ts = append(ts, MemoryLSMTarget(cfg.MemTable))
	}
	return append(ts, PebbleTarget(cfg.LSMDir))
}
