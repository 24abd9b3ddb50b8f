package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/zaldivarmena/mindy/pkg/mindmap"
	"github.com/zaldivarmena/mindy/pkg/render"
)

const exportTimeout = time.Minute

func normalizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "normalize <file|->",
		Short: "Print the canonical {nodes, connections} form of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			g, nrep := mindmap.NormalizeWithReport(data)
			printWarnings(cmd.ErrOrStderr(), nrep, nil)
			return writeJSON(cmd.OutOrStdout(), g)
		},
	}
}

func layoutCmd() *cobra.Command {
	var width float64

	cmd := &cobra.Command{
		Use:   "layout <file|->",
		Short: "Print the document with computed node positions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			g, nrep := mindmap.NormalizeWithReport(data)
			out, lrep := mindmap.LayoutWithOptions(g, mindmap.LayoutOptions{ViewportWidth: width})
			printWarnings(cmd.ErrOrStderr(), nrep, &lrep)
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().Float64Var(&width, "width", mindmap.DefaultLayoutOptions().ViewportWidth, "Viewport width used to centre the root")
	return cmd
}

type exportFlags struct {
	width      float64
	pixelRatio float64
}

func (f *exportFlags) register(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&f.width, "width", mindmap.DefaultLayoutOptions().ViewportWidth, "Viewport width used for layout")
	cmd.Flags().Float64Var(&f.pixelRatio, "pixel-ratio", 2, "Output scale")
}

// exportDocument lays data out and renders it to PNG.
func exportDocument(ctx context.Context, data []byte, f exportFlags) ([]byte, error) {
	g := mindmap.Normalize(data)
	surface := render.NewLayoutSurface(g, mindmap.LayoutOptions{ViewportWidth: f.width})
	return render.ExportRaster(ctx, surface, render.ExportOptions{PixelRatio: f.pixelRatio})
}

func exportCmd() *cobra.Command {
	var (
		flags exportFlags
		out   string
	)

	cmd := &cobra.Command{
		Use:   "export <file|->",
		Short: "Render a document to PNG",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), exportTimeout)
			defer cancel()

			png, err := exportDocument(ctx, data, flags)
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, png, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%d bytes)\n", brand.Sprint("wrote"), out, len(png))
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&out, "out", "o", "mindmap.png", "Output file")
	return cmd
}

func inspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file|->",
		Short: "Print the resolved hierarchy as a tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			g, nrep := mindmap.NormalizeWithReport(data)
			h := mindmap.Resolve(g)
			writeTree(cmd.OutOrStdout(), g, h, nrep)
			return nil
		},
	}
}

// writeTree prints the spanning forest of h, root first, then one block per
// orphan component.
func writeTree(w io.Writer, g *mindmap.Graph, h *mindmap.Hierarchy, nrep mindmap.NormalizeReport) {
	fmt.Fprintf(w, "%s %d nodes, %d edges, adapter %s\n", brand.Sprint("mind map"), g.Len(), len(g.Edges), nrep.Adapter)
	if g.Len() == 0 {
		fmt.Fprintln(w, subtle.Sprint("  (empty)"))
		return
	}

	var walk func(id string, depth int)
	seen := make(map[string]bool)
	walk = func(id string, depth int) {
		if seen[id] {
			return
		}
		seen[id] = true
		n := g.Node(id)
		if n == nil {
			return
		}
		fmt.Fprintf(w, "%s%s %s %s\n",
			strings.Repeat("  ", depth+1),
			typeColour(n.Type).Sprintf("[%s/%d]", n.Type, n.Level),
			n.Label,
			subtle.Sprintf("(%s)", n.ID),
		)
		for _, child := range h.TreeChildren(id) {
			walk(child, depth+1)
		}
	}

	for i, head := range h.Heads() {
		if i > 0 {
			fmt.Fprintln(w, warn.Sprint("  orphaned:"))
		}
		walk(head, 0)
	}

	if h.Cyclic {
		fmt.Fprintln(w, warn.Sprint("warning: edges contain a cycle"))
	}
	printWarnings(w, nrep, nil)
}
