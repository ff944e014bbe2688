package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/agent"
	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/domain"
	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/logging"
	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/store"
)

// Regeneration is the outcome of RegenerateCell.
type Regeneration struct {
	Cell     *domain.Cell          // the new version of the requested cell
	Cascaded []domain.Cell         // downstream cells regenerated under CascadeAuto
	Stale    []domain.CellType     // downstream cells left stale under CascadeStale
	Status   domain.NotebookStatus // notebook status afterwards
}

// RegenerateCell re-runs the single agent that produces ct, using the active
// cells of the earlier stages as context, and stores a new version. Feedback,
// when given, is passed to the agent. Downstream cells are handled according
// to the configured cascade policy.
//
// A concurrent regeneration of the same cell that commits first makes this
// call fail with store.ErrConcurrentWrite; the caller may retry.
func (c *Coordinator) RegenerateCell(ctx context.Context, notebookID string, ct domain.CellType, feedback string) (*Regeneration, error) {
	unclaim, err := c.claimRegeneration(notebookID)
	if err != nil {
		return nil, err
	}
	defer unclaim()

	role, err := agent.RoleForCellType(ct)
	if err != nil {
		return nil, err
	}
	stage := role.Index()

	cell, err := c.regenerateStage(ctx, notebookID, stage, feedback)
	if err != nil {
		return nil, err
	}
	out := &Regeneration{Cell: cell}
	logging.Info("coordinator: cell regenerated", "notebook", notebookID, "cell_type", ct, "version", cell.Version)

	for _, a := range c.agents[stage+1:] {
		if _, err := c.store.GetActive(ctx, notebookID, a.CellType()); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return out, err
		}
		if c.cfg.Cascade != CascadeAuto {
			out.Stale = append(out.Stale, a.CellType())
			continue
		}
		next, err := c.regenerateStage(ctx, notebookID, a.Role().Index(), "")
		if err != nil {
			return out, fmt.Errorf("cascade to %s: %w", a.CellType(), err)
		}
		out.Cascaded = append(out.Cascaded, *next)
	}

	if len(out.Stale) > 0 {
		logging.Info("coordinator: downstream cells left stale", "notebook", notebookID, "cells", out.Stale)
	}
	out.Status, err = c.refreshNotebookStatus(ctx, notebookID)
	return out, err
}

func (c *Coordinator) regenerateStage(ctx context.Context, notebookID string, stage int, feedback string) (*domain.Cell, error) {
	a := c.agents[stage]
	expected := 0
	cur, err := c.store.GetActive(ctx, notebookID, a.CellType())
	switch {
	case err == nil:
		expected = cur.Version
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}
	return c.runStage(ctx, nil, a, stageInput{
		notebookID:      notebookID,
		feedback:        feedback,
		guarded:         true,
		expectedVersion: expected,
	})
}
