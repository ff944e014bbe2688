package main

import (
	"fmt"
	"os"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"

	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/domain"
	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/pipeline"
)

func newBatchCmd() *cobra.Command {
	var (
		metricsAddr string
		concurrency int
	)
	cmd := &cobra.Command{
		Use:   "batch <glob>...",
		Short: "Run the pipeline for every problem file matching the patterns",
		Example: `  evoc batch 'problems/**/*.yaml'
  evoc batch --concurrency 2 tsp.yaml knapsack.yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := expandPatterns(args)
			if err != nil {
				return err
			}
			if len(files) == 0 {
				return fmt.Errorf("no problem files match %v", args)
			}

			items := make([]pipeline.BatchItem, 0, len(files))
			for _, f := range files {
				spec, err := domain.LoadProblemSpec(f)
				if err != nil {
					return err
				}
				items = append(items, pipeline.BatchItem{Source: f, Problem: spec})
			}

			e, err := openPipelineWith(cmd.Context(), metricsAddr, func(e *env) {
				if concurrency > 0 {
					e.cfg.Pipeline.BatchConcurrency = concurrency
				}
			})
			if err != nil {
				return err
			}
			defer e.close()

			results, err := e.coord.RunBatch(cmd.Context(), items)
			failed := 0
			for _, r := range results {
				if r.Err != nil {
					failed++
					fmt.Printf("FAIL %s  %s: %v\n", r.Source, r.NotebookID, r.Err)
					continue
				}
				fmt.Printf("ok   %s  %s\n", r.Source, r.NotebookID)
			}
			if err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d pipelines failed", failed, len(results))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")
	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", 0, "pipelines run at once (default from config)")
	return cmd
}

// expandPatterns resolves doublestar globs relative to the working
// directory. Duplicates are dropped and order is preserved.
func expandPatterns(patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	for _, p := range patterns {
		matches, err := doublestar.FilepathGlob(p, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", p, err)
		}
		if len(matches) == 0 {
			if _, err := os.Stat(p); err == nil {
				matches = []string{p}
			}
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				files = append(files, m)
			}
		}
	}
	return files, nil
}
