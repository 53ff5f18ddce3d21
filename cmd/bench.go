package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/btree-query-bench/pagetree/bench"
)

func (a *app) benchCmd() *cobra.Command {
	var records int
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Compare the tree with the in-memory tree and pebble",
		Long: `Load sequential keys into the disk B-tree (once per configured degree),
the in-memory B-tree and pebble, then run read-heavy (OLTP) and write-heavy
(OLAP) workloads. Results go to <results_dir>/bench-<run id>.csv and a
latency chart next to it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg.Bench
			if cmd.Flags().Changed("records") {
				cfg.Records = records
			}
			if err := os.MkdirAll(cfg.ResultsDir, 0755); err != nil {
				return errors.Wrap(err, "create results dir")
			}

			tmp, err := os.CreateTemp(cfg.ResultsDir, "bench-*.csv")
			if err != nil {
				return errors.Wrap(err, "create results file")
			}
			defer tmp.Close()

			r, err := bench.NewRunner(tmp, a.log)
			if err != nil {
				return err
			}
			for _, t := range bench.Targets(cfg, a.log) {
				fmt.Fprintf(cmd.OutOrStdout(), "Testing %s (config: %s)\n", t.Name, t.Config)
				if err := r.Run(t, cfg.Records); err != nil {
					return err
				}
			}
			if err := r.Flush(); err != nil {
				return err
			}

			base := filepath.Join(cfg.ResultsDir, "bench-"+r.RunID)
			if err := os.Rename(tmp.Name(), base+".csv"); err != nil {
				return errors.Wrap(err, "rename results file")
			}
			if err := bench.WriteChart(r.Results(), base+".png"); err != nil {
				return err
			}
			a.log.Info("benchmark complete", zap.String("run_id", r.RunID), zap.String("results", base+".csv"))
			fmt.Fprintf(cmd.OutOrStdout(), "results: %s.csv, %s.png\n", base, base)
			return nil
		},
	}
	cmd.Flags().IntVarP(&records, "records", "n", 0, "records per structure (default from config)")
	return cmd
}
