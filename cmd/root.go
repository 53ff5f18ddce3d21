// Package cmd implements the pagetree command line tool.
package cmd

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/btree-query-bench/pagetree/config"
	"github.com/btree-query-bench/pagetree/dbms/index/btree"
	"github.com/btree-query-bench/pagetree/logging"
)

// app is the state shared by all subcommands, filled in before any of them
// runs.
type app struct {
	// Global flags
	cfgFile string
	file    string
	verbose bool

	cfg *config.Config
	log *zap.Logger
}

// NewRootCmd builds the pagetree command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "pagetree",
		Short: "On-disk B-tree key-value index",
		Long: `pagetree stores byte keys and values in a B-tree whose nodes are
4096-byte pages of a single file.

Commands:
  create    Create an empty tree
  put       Insert or replace one pair
  get       Look up one key
  load      Bulk load key:value lines from a text file
  seed      Insert random word pairs
  dump      Print every node
  check     Verify the tree structure
  stats     Summarise the tree shape
  dot       Export the tree as graphviz
  bench     Compare the tree with the in-memory tree and pebble`,
		Version:           "0.1.0-dev",
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}

	root.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "config file (default ./pagetree.yaml)")
	root.PersistentFlags().StringVarP(&a.file, "file", "f", "", "tree file, overrides the config")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log at debug level")

	root.AddCommand(
		a.createCmd(),
		a.putCmd(),
		a.getCmd(),
		a.loadCmd(),
		a.seedCmd(),
		a.dumpCmd(),
		a.checkCmd(),
		a.statsCmd(),
		a.dotCmd(),
		a.benchCmd(),
	)
	return root
}

// Execute runs the command line and exits non-zero on failure.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func (a *app) setup(*cobra.Command, []string) error {
	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return err
	}
	if a.file != "" {
		cfg.File = a.file
	}
	if a.verbose {
		cfg.Logger.LogLevel = "debug"
	}
	log, err := logging.New(cfg.Logger)
	if err != nil {
		return err
	}
	a.cfg, a.log = cfg, log
	return nil
}

// openTree opens the configured tree, creating it with the configured degree
// when the file does not exist yet.
func (a *app) openTree() (*btree.BTree, error) {
	t, err := btree.OpenFile(a.cfg.File, a.cfg.Degree, btree.WithLogger(a.log))
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", a.cfg.File)
	}
	return t, nil
}

// withTree runs fn on the open tree and closes it, keeping the first error.
func (a *app) withTree(fn func(t *btree.BTree) error) (err error) {
	t, err := a.openTree()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := t.Close(); err == nil {
			err = cerr
		}
	}()
	return fn(t)
}
