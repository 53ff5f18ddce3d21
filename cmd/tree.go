package cmd

import (
	"fmt"
	"os"
	"slices"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/btree-query-bench/pagetree/dbms/codec"
	"github.com/btree-query-bench/pagetree/dbms/index/btree"
	"github.com/btree-query-bench/pagetree/dbms/loader"
)

func (a *app) createCmd() *cobra.Command {
	var degree int
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an empty tree",
		Long: `Create an empty tree file with the given minimum degree t. Nodes hold
between t-1 and 2t-1 keys.

Examples:
  pagetree create --file fruit.db --degree 4`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("degree") {
				a.cfg.Degree = degree
			}
			if info, err := os.Stat(a.cfg.File); err == nil && info.Size() > 0 {
				return errors.Errorf("%s already exists", a.cfg.File)
			}
			return a.withTree(func(t *btree.BTree) error {
				fmt.Fprintf(cmd.OutOrStdout(), "created %s (degree %d, max entry %d bytes)\n",
					a.cfg.File, t.Degree(), btree.MaxEntrySize(t.Degree()))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&degree, "degree", "d", 4, "minimum degree t")
	return cmd
}

func (a *app) putCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put <key> <value>",
		Short: "Insert or replace one pair",
		Long: `Insert a pair, replacing the value when the key exists. Arguments in
double quotes are read as Go string literals, so "\x00\xff" is two bytes.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := codec.FromPrintable(args[0])
			if err != nil {
				return errors.Wrap(err, "key")
			}
			value, err := codec.FromPrintable(args[1])
			if err != nil {
				return errors.Wrap(err, "value")
			}
			return a.withTree(func(t *btree.BTree) error {
				return t.Insert(key, value)
			})
		},
	}
}

func (a *app) getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Look up one key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := codec.FromPrintable(args[0])
			if err != nil {
				return errors.Wrap(err, "key")
			}
			return a.withTree(func(t *btree.BTree) error {
				v, err := t.Get(key)
				if err != nil {
					return errors.Wrapf(err, "get %s", codec.Printable(key))
				}
				fmt.Fprintln(cmd.OutOrStdout(), codec.Printable(v))
				return nil
			})
		},
	}
}

func (a *app) loadCmd() *cobra.Command {
	var sep string
	cmd := &cobra.Command{
		Use:   "load <text-file>",
		Short: "Bulk load key:value lines from a text file",
		Long: `Insert every key<sep>value line of a text file, then read every key
back and compare it against the last value loaded for it.

Examples:
  pagetree load pairs.txt
  pagetree load pairs.tsv --sep "\t"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := codec.FromPrintable(sep)
			if err != nil {
				return errors.Wrap(err, "sep")
			}
			res, err := loader.ReadFile(args[0], string(s))
			if err != nil {
				return err
			}
			if len(res.Pairs) == 0 {
				return errors.Errorf("%s: no pairs", args[0])
			}
			return a.withTree(func(t *btree.BTree) error {
				return a.loadAndVerify(cmd, t, res)
			})
		},
	}
	cmd.Flags().StringVar(&sep, "sep", loader.DefaultSep, "key/value separator")
	return cmd
}

func (a *app) seedCmd() *cobra.Command {
	var records int
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert random word pairs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if records <= 0 {
				return errors.Errorf("records must be positive, got %d", records)
			}
			res := loader.Result{Pairs: loader.Fake(records)}
			return a.withTree(func(t *btree.BTree) error {
				return a.loadAndVerify(cmd, t, res)
			})
		},
	}
	cmd.Flags().IntVarP(&records, "records", "n", 1000, "number of pairs")
	return cmd
}

// loadAndVerify inserts the pairs, then checks each key returns the last
// value given for it.
func (a *app) loadAndVerify(cmd *cobra.Command, t *btree.BTree, res loader.Result) error {
	n, err := t.Load(slices.Values(res.Pairs))
	if err != nil {
		return err
	}

	want := make(map[string][]byte, len(res.Pairs))
	for _, kv := range res.Pairs {
		want[string(kv.Key)] = kv.Value
	}
	for k, v := range want {
		got, err := t.Get([]byte(k))
		if err != nil {
			return errors.Wrapf(err, "verify %s", codec.Printable([]byte(k)))
		}
		if string(got) != string(v) {
			return errors.Errorf("verify %s: got %s, want %s",
				codec.Printable([]byte(k)), codec.Printable(got), codec.Printable(v))
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "loaded %d pairs (%d distinct keys, %d lines skipped)\n", n, len(want), res.Skipped)
	return nil
}
