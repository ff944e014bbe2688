package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/domain"
	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/logging"
)

// BatchItem is one problem to run in a batch.
type BatchItem struct {
	Source  string // file the problem was read from, for reporting
	Problem *domain.ProblemSpec
}

// BatchResult is the outcome of one batch item.
type BatchResult struct {
	Source     string
	ProblemID  string
	NotebookID string
	Status     Status
	Err        error
}

// RunBatch creates a notebook per item and runs the pipelines concurrently,
// at most Config.BatchConcurrency at a time. A failed pipeline is reported in
// its result; only storage errors abort the batch.
func (c *Coordinator) RunBatch(ctx context.Context, items []BatchItem) ([]BatchResult, error) {
	results := make([]BatchResult, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.BatchConcurrency)
	for i, item := range items {
		g.Go(func() error {
			res := &results[i]
			res.Source = item.Source

			if err := c.store.CreateProblem(gctx, item.Problem); err != nil {
				res.Err = err
				return err
			}
			res.ProblemID = item.Problem.ID

			nb, err := c.store.CreateNotebook(gctx, item.Problem.ID, notebookName(item))
			if err != nil {
				res.Err = err
				return err
			}
			res.NotebookID = nb.ID

			res.Status, res.Err = c.Run(gctx, nb.ID)
			if res.Err == nil && res.Status.State != domain.StateCompleted {
				res.Err = errors.New(res.Status.Reason)
			}
			logging.Info("batch: pipeline settled",
				"source", item.Source,
				"notebook", nb.ID,
				"state", res.Status.State)
			return nil
		})
	}
	return results, g.Wait()
}

func notebookName(item BatchItem) string {
	if item.Source != "" {
		return strings.TrimSuffix(filepath.Base(item.Source), filepath.Ext(item.Source))
	}
	return item.Problem.Title
}
