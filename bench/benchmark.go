// Package bench compares the disk B-tree against the in-memory B-tree and
// pebble: a bulk load followed by read-heavy and write-heavy workloads, with
// results written as CSV and charted as a PNG.
package bench

import (
	"encoding/csv"
	"io"
	"math/rand"
	"runtime"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/btree-query-bench/pagetree/dbms/index"
)

// BenchResult is one CSV row.
type BenchResult struct {
	RunID     string
	Name      string
	Config    string
	Operation string
	Ops       int
	LatencyNs int64
	MemMB     uint64
	Objects   uint64
}

var csvHeader = []string{"RunID", "Structure", "Config", "TestType", "Ops", "LatencyNs", "MemMB", "HeapObjects"}

type MemoryStats struct {
	AllocMB      uint64
	TotalAllocMB uint64
	HeapObjects  uint64
}

// GetDetailedMem measures live heap after a forced GC.
func GetDetailedMem() MemoryStats {
	var m runtime.MemStats
	// Force GC to ensure we measure actual live data, not garbage
	runtime.GC()
	runtime.ReadMemStats(&m)
	return MemoryStats{
		AllocMB:      m.Alloc / 1024 / 1024,
		TotalAllocMB: m.TotalAlloc / 1024 / 1024,
		HeapObjects:  m.HeapObjects,
	}
}

// Target is one index under test. Open must return a fresh, empty index.
type Target struct {
	Name   string
	Config string
	Open   func() (index.Index, error)
}

// Runner executes targets and records their results.
type Runner struct {
	RunID   string
	w       *csv.Writer
	log     *zap.Logger
	seed    int64
	results []BenchResult
}

// NewRunner writes the CSV header to w and tags every row with a fresh run id.
func NewRunner(w io.Writer, log *zap.Logger) (*Runner, error) {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Runner{
		RunID: uuid.NewString(),
		w:     csv.NewWriter(w),
		log:   log,
		seed:  1,
	}
	if err := r.w.Write(csvHeader); err != nil {
		return nil, errors.Wrap(err, "bench: write header")
	}
	return r, nil
}

// Results returns every row recorded so far.
func (r *Runner) Results() []BenchResult {
	return r.results
}

// Flush flushes the CSV writer.
func (r *Runner) Flush() error {
	r.w.Flush()
	return errors.Wrap(r.w.Error(), "bench: flush csv")
}

func (r *Runner) record(res BenchResult) error {
	res.RunID = r.RunID
	r.results = append(r.results, res)
	r.log.Info("result",
		zap.String("structure", res.Name),
		zap.String("config", res.Config),
		zap.String("operation", res.Operation),
		zap.Int64("latency_ns", res.LatencyNs))
	return r.w.Write([]string{
		res.RunID,
		res.Name,
		res.Config,
		res.Operation,
		strconv.Itoa(res.Ops),
		strconv.FormatInt(res.LatencyNs, 10),
		strconv.FormatUint(res.MemMB, 10),
		strconv.FormatUint(res.Objects, 10),
	})
}

// Run loads n sequential keys into a fresh index from t, then runs n/2 OLTP
// and n/2 OLAP operations against it. Every workload uses the same seed so
// targets see the same operation sequence.
func (r *Runner) Run(t Target, n int) error {
	if n < 2 {
		return errors.Errorf("bench: need at least 2 records, got %d", n)
	}
	r.log.Info("running", zap.String("structure", t.Name), zap.String("config", t.Config), zap.Int("records", n))
	idx, err := t.Open()
	if err != nil {
		return errors.Wrapf(err, "bench: open %s", t.Name)
	}
	defer idx.Close()

	// 1. Pure insert (initial load)
	start := time.Now()
	for k := 0; k < n; k++ {
		if err := idx.Insert(Key(k), []byte("v")); err != nil {
			return errors.Wrapf(err, "bench: %s load", t.Name)
		}
	}
	insertLatency := time.Since(start).Nanoseconds() / int64(n)

	// Measure memory immediately after load but before workloads
	stats := GetDetailedMem()
	if err := r.record(BenchResult{
		Name:      t.Name,
		Config:    t.Config,
		Operation: "Insert",
		Ops:       n,
		LatencyNs: insertLatency,
		MemMB:     stats.AllocMB,
		Objects:   stats.HeapObjects,
	}); err != nil {
		return err
	}

	for _, wt := range []WorkloadType{OLTP, OLAP} {
		ops := n / 2
		rng := rand.New(rand.NewSource(r.seed))
		start = time.Now()
		if _, err := ExecuteWorkload(idx, wt, ops, n, rng); err != nil {
			return err
		}
		latency := time.Since(start).Nanoseconds() / int64(ops)
		stats := GetDetailedMem()
		if err := r.record(BenchResult{
			Name:      t.Name,
			Config:    t.Config,
			Operation: "Workload_" + string(wt[:4]),
			Ops:       ops,
			LatencyNs: latency,
			MemMB:     stats.AllocMB,
			Objects:   stats.HeapObjects,
		}); err != nil {
			return err
		}
	}
	return nil
}
