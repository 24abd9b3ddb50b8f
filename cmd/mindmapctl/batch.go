package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// batchExport renders every *.json file in dir to outDir, at most jobs at a
// time. It stops at the first failure and returns the number written.
func batchExport(ctx context.Context, dir, outDir string, jobs int, f exportFlags) (int, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return 0, err
	}
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}

	var written atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)

	for _, file := range files {
		g.Go(func() error {
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			png, err := exportDocument(gctx, data, f)
			if err != nil {
				return fmt.Errorf("export %s: %w", filepath.Base(file), err)
			}
			name := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file)) + ".png"
			if err := os.WriteFile(filepath.Join(outDir, name), png, 0o644); err != nil {
				return err
			}
			written.Add(1)
			return nil
		})
	}

	err = g.Wait()
	return int(written.Load()), err
}

func batchExportCmd() *cobra.Command {
	var (
		flags  exportFlags
		outDir string
		jobs   int
	)

	cmd := &cobra.Command{
		Use:   "batch-export <dir>",
		Short: "Render every *.json document in a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if outDir == "" {
				outDir = args[0]
			}
			n, err := batchExport(cmd.Context(), args[0], outDir, jobs, flags)
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d images to %s\n", brand.Sprint("exported"), n, outDir)
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), bad.Sprint("error: ")+err.Error())
			}
			return err
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&outDir, "out-dir", "", "Output directory (defaults to the input directory)")
	cmd.Flags().IntVarP(&jobs, "jobs", "j", 4, "Parallel exports")
	return cmd
}
