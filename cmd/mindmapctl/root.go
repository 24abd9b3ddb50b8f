package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/zaldivarmena/mindy/pkg/mindmap"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mindmapctl",
		Short: "Normalize, lay out and export mind map documents",
		Long: brand.Sprint("mindmapctl") + " works on stored mind map JSON offline\n" +
			subtle.Sprint("Input is a file path or - for stdin"),
		SilenceUsage: true,
	}

	cmd.AddCommand(
		normalizeCmd(),
		layoutCmd(),
		exportCmd(),
		inspectCmd(),
		batchExportCmd(),
	)
	return cmd
}

// readInput reads path, or in when path is "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}

func writeJSON(w io.Writer, g *mindmap.Graph) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(g)
}

// printWarnings writes normalize and layout problems to the error stream.
func printWarnings(w io.Writer, nrep mindmap.NormalizeReport, lrep *mindmap.LayoutReport) {
	if nrep.Fallback {
		fmt.Fprintln(w, warn.Sprintf("warning: not a mind map (%s), using the default map", nrep.Reason))
	}
	for _, e := range nrep.DroppedEdges {
		fmt.Fprintln(w, warn.Sprintf("warning: dropped edge %s (%s -> %s)", e.ID, e.Source, e.Target))
	}
	for to, from := range nrep.RenamedNodes {
		fmt.Fprintln(w, warn.Sprintf("warning: duplicate id %s renamed to %s", from, to))
	}
	if lrep == nil {
		return
	}
	if lrep.Fallback {
		fmt.Fprintln(w, warn.Sprintf("warning: layout fell back (%s)", lrep.Reason))
	}
	if lrep.Exhausted > 0 {
		fmt.Fprintln(w, warn.Sprintf("warning: %d nodes still overlap", lrep.Exhausted))
	}
	for _, id := range lrep.Retyped {
		fmt.Fprintln(w, warn.Sprintf("warning: node %s retyped so %s is the only main node", id, lrep.RootID))
	}
}
