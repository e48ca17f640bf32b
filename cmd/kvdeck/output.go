package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cuemby/kvdeck/pkg/keyspace"
	"github.com/cuemby/kvdeck/pkg/types"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	healthyColor   = color.New(color.FgGreen)
	unhealthyColor = color.New(color.FgRed)
)

// jsonOutput reports whether the command was asked for JSON
func jsonOutput(cmd *cobra.Command) bool {
	format, _ := cmd.Flags().GetString("output")
	return format == "json"
}

func printJSON(w io.Writer, v any) error {
	data, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func newTable(w io.Writer, header ...string) *tabwriter.Writer {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	return tw
}

func row(tw *tabwriter.Writer, cols ...any) {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = fmt.Sprint(c)
	}
	fmt.Fprintln(tw, strings.Join(parts, "\t"))
}

func healthLabel(healthy bool) string {
	if healthy {
		return healthyColor.Sprint("healthy")
	}
	return unhealthyColor.Sprint("unhealthy")
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func orDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

// displaySegment makes empty segments visible
func displaySegment(seg string) string {
	if seg == "" {
		return `""`
	}
	return seg
}

// printTree writes the key tree, one node per line. Structural nodes end
// with the delimiter and nodes that are also keys are marked with "*".
// A dir ending with the delimiter limits the output to what lies below it.
func printTree(w io.Writer, tree *keyspace.Tree, dir string) {
	tops := []*keyspace.Node{tree.Root, tree.Unrooted}
	if path, ok := strings.CutSuffix(dir, tree.Delimiter); ok && path != "" {
		tops = nil
		if node := tree.Find(path); node != nil {
			tops = append(tops, node)
		}
	}

	for _, top := range tops {
		for _, child := range top.SortedChildren() {
			child.Walk(func(n *keyspace.Node, depth int) bool {
				line := strings.Repeat("  ", depth) + displaySegment(n.Segment)
				switch {
				case n.IsDual():
					line += tree.Delimiter + " *"
				case n.IsDirectory():
					line += tree.Delimiter
				}
				fmt.Fprintln(w, line)
				return true
			})
		}
	}
}

func printRemoteTree(w io.Writer, nodes []types.RemoteTreeNode, depth int) {
	for _, n := range nodes {
		line := strings.Repeat("  ", depth) + displaySegment(n.Name)
		if n.IsDir {
			line += "/"
		}
		fmt.Fprintln(w, line)
		printRemoteTree(w, n.Children, depth+1)
	}
}
