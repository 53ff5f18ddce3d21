package btree

import (
	"bufio"
	"fmt"
	"html"
	"io"

	"github.com/pkg/errors"

	"github.com/btree-query-bench/pagetree/dbms/codec"
	"github.com/btree-query-bench/pagetree/dbms/index/btpage"
	"github.com/btree-query-bench/pagetree/dbms/pager"
)

const dotPreview = 8

// ExportDOT writes the tree as a graphviz digraph, one HTML-table node per
// page with its fill level, keys and a short value preview.
func (t *BTree) ExportDOT(w io.Writer) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintln(bw, "digraph BTree {")
	// Layout and global styling
	fmt.Fprintln(bw, "  graph [ranksep=0.8, nodesep=0.5, bgcolor=\"#ffffff\", rankdir=TB];")
	fmt.Fprintln(bw, "  node [shape=none, fontname=\"Helvetica\", fontsize=10];")
	fmt.Fprintln(bw, "  edge [arrowsize=0.8, color=\"#444444\"];")

	err := t.Walk(func(n *btpage.Node, _ int) error {
		name := dotName(n.Offset)
		usedPct := float64(n.EncodedSize()) / pager.PageSize * 100

		if n.IsLeaf() {
			// Leaf: green header, one row per entry
			fmt.Fprintf(bw, "  %s [label=<<TABLE BORDER=\"0\" CELLBORDER=\"1\" CELLSPACING=\"0\" CELLPADDING=\"4\">"+
				"<TR><TD BGCOLOR=\"#D5E8D4\"><B>PAGE %d (LEAF)</B><BR/><FONT POINT-SIZE=\"8\">Fill: %.1f%%</FONT></TD></TR>"+
				"<TR><TD BGCOLOR=\"#F5F5F5\" ALIGN=\"LEFT\">", name, n.Offset, usedPct)
			for _, kv := range n.Entries {
				fmt.Fprintf(bw, "<B>%s</B>%s<BR/>", dotText(kv.Key), dotValue(kv.Value))
			}
			fmt.Fprintln(bw, "</TD></TR></TABLE>>];")
			return nil
		}

		// Internal: blue header, pointer ports between the keys
		k := n.NumKeys()
		fmt.Fprintf(bw, "  %s [label=<<TABLE BORDER=\"0\" CELLBORDER=\"1\" CELLSPACING=\"0\" CELLPADDING=\"4\">"+
			"<TR><TD COLSPAN=\"%d\" BGCOLOR=\"#DAE8FC\"><B>PAGE %d (INTERNAL)</B><BR/><FONT POINT-SIZE=\"8\">Fill: %.1f%%</FONT></TD></TR><TR>",
			name, 2*k+1, n.Offset, usedPct)
		for i, kv := range n.Entries {
			fmt.Fprintf(bw, "<TD PORT=\"f%d\" BGCOLOR=\"#E1F5FE\"> </TD><TD BGCOLOR=\"#FFFFFF\"><B>%s</B>%s</TD>",
				i, dotText(kv.Key), dotValue(kv.Value))
		}
		fmt.Fprintf(bw, "<TD PORT=\"f%d\" BGCOLOR=\"#E1F5FE\"> </TD></TR></TABLE>>];\n", k)

		for i, child := range n.Pointers {
			fmt.Fprintf(bw, "  %s:f%d -> %s;\n", name, i, dotName(child))
		}
		return nil
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(bw, "}")
	if err := bw.Flush(); err != nil {
		return errors.Wrap(err, "btree: write dot")
	}
	return nil
}

func dotName(off uint64) string {
	return fmt.Sprintf("page%d", off/pager.PageSize)
}

func dotText(b []byte) string {
	return html.EscapeString(codec.Printable(b))
}

func dotValue(v []byte) string {
	if len(v) == 0 {
		return ""
	}
	s := codec.Printable(v)
	if len(s) > dotPreview {
		s = s[:dotPreview] + ".."
	}
	return fmt.Sprintf(" <FONT COLOR=\"#666666\">[%s]</FONT>", html.EscapeString(s))
}
