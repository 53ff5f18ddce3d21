package cmd

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/btree-query-bench/pagetree/dbms/codec"
	"github.com/btree-query-bench/pagetree/dbms/index/btpage"
	"github.com/btree-query-bench/pagetree/dbms/index/btree"
	"github.com/btree-query-bench/pagetree/dbms/pager"
)

var (
	internalColor = color.New(color.FgCyan, color.Bold)
	leafColor     = color.New(color.FgGreen, color.Bold)
	keyColor      = color.New(color.FgYellow)
)

func (a *app) dumpCmd() *cobra.Command {
	var values bool
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print every node",
		Long: `Print the tree depth first, one line per node indented by depth, with
the node's page, fill level and keys.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withTree(func(t *btree.BTree) error {
				h := t.Header()
				fmt.Fprintf(cmd.OutOrStdout(), "root %d  next free %d  degree %d\n", h.Root, h.NextFree, h.Degree)
				return t.Walk(func(n *btpage.Node, depth int) error {
					dumpNode(cmd.OutOrStdout(), n, depth, values)
					return nil
				})
			})
		},
	}
	cmd.Flags().BoolVar(&values, "values", false, "print values next to keys")
	return cmd
}

func dumpNode(w io.Writer, n *btpage.Node, depth int, values bool) {
	label := internalColor
	if n.IsLeaf() {
		label = leafColor
	}
	fill := float64(n.EncodedSize()) / pager.PageSize * 100
	fmt.Fprintf(w, "%s%s page %d (%d keys, %.1f%%):",
		strings.Repeat("  ", depth), label.Sprint(n.Header.Type), n.Offset/pager.PageSize, n.NumKeys(), fill)
	for _, kv := range n.Entries {
		fmt.Fprint(w, " ", keyColor.Sprint(codec.Printable(kv.Key)))
		if values {
			fmt.Fprint(w, "=", codec.Printable(kv.Value))
		}
	}
	fmt.Fprintln(w)
}

func (a *app) checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify the tree structure",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withTree(func(t *btree.BTree) error {
				if err := t.Check(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), color.GreenString("ok"))
				return nil
			})
		},
	}
}

func (a *app) statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarise the tree shape",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withTree(func(t *btree.BTree) error {
				s, err := t.Stats()
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "degree     %d\n", s.Degree)
				fmt.Fprintf(w, "height     %d\n", s.Height)
				fmt.Fprintf(w, "keys       %d\n", s.Keys)
				fmt.Fprintf(w, "nodes      %d (%d internal, %d leaves)\n", s.Nodes, s.Internal, s.Leaves)
				fmt.Fprintf(w, "pages      %d (%d unreachable)\n", s.Pages, s.Pages-uint64(s.Nodes))
				fmt.Fprintf(w, "fill       %.1f%%\n", s.Fill*100)
				return nil
			})
		},
	}
}

func (a *app) dotCmd() *cobra.Command {
	var out string
	var png bool
	cmd := &cobra.Command{
		Use:   "dot",
		Short: "Export the tree as graphviz",
		Long: `Write the tree as a graphviz digraph to stdout or --out. With --png the
graph is also rendered next to --out by the dot binary.

Examples:
  pagetree dot --out results/tree.dot --png`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if png && out == "" {
				return errors.New("--png needs --out")
			}
			var buf bytes.Buffer
			if err := a.withTree(func(t *btree.BTree) error { return t.ExportDOT(&buf) }); err != nil {
				return err
			}
			if out == "" {
				_, err := buf.WriteTo(cmd.OutOrStdout())
				return err
			}
			if err := os.WriteFile(out, buf.Bytes(), 0644); err != nil {
				return errors.Wrap(err, "write dot")
			}
			if !png {
				return nil
			}
			pngPath := strings.TrimSuffix(out, ".dot") + ".png"
			render := exec.CommandContext(cmd.Context(), "dot", "-Tpng", out, "-o", pngPath)
			if msg, err := render.CombinedOutput(); err != nil {
				return errors.Wrapf(err, "graphviz (is 'dot' installed?): %s", msg)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "tree exported to %s\n", pngPath)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output .dot file (default stdout)")
	cmd.Flags().BoolVar(&png, "png", false, "also render a .png with graphviz")
	return cmd
}
