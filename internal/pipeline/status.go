package pipeline

import (
	"context"
	"time"

	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/domain"
)

// AgentStatus describes one stage of a notebook.
type AgentStatus struct {
	AgentID   string           `json:"agent_id"`
	Name      string           `json:"name"`
	CellType  domain.CellType  `json:"cell_type"`
	Position  int              `json:"position"`
	Version   int              `json:"version"` // active version, 0 when none
	Stale     bool             `json:"stale"`   // an upstream cell is newer
	LastRun   domain.RunStatus `json:"last_run,omitempty"`
	LastError string           `json:"last_error,omitempty"`
	LastRunAt time.Time        `json:"last_run_at,omitempty"`
}

// AgentStatuses reports every stage of a notebook in pipeline order.
func (c *Coordinator) AgentStatuses(ctx context.Context, notebookID string) ([]AgentStatus, error) {
	if _, err := c.store.GetNotebook(ctx, notebookID); err != nil {
		return nil, err
	}
	active, err := c.store.ListActive(ctx, notebookID)
	if err != nil {
		return nil, err
	}
	runs, err := c.store.LatestRuns(ctx, notebookID)
	if err != nil {
		return nil, err
	}

	byType := make(map[domain.CellType]domain.Cell, len(active))
	for _, cell := range active {
		byType[cell.Type] = cell
	}

	out := make([]AgentStatus, 0, len(c.agents))
	var newestUpstream time.Time
	for _, a := range c.agents {
		st := AgentStatus{
			AgentID:  a.Role().String(),
			Name:     a.Name(),
			CellType: a.CellType(),
			Position: a.Position(),
		}
		if cell, ok := byType[a.CellType()]; ok {
			st.Version = cell.Version
			st.Stale = cell.CreatedAt.Before(newestUpstream)
			if cell.CreatedAt.After(newestUpstream) {
				newestUpstream = cell.CreatedAt
			}
		}
		if run, ok := runs[st.AgentID]; ok {
			st.LastRun = run.Status
			st.LastError = run.Error
			st.LastRunAt = run.CreatedAt
		}
		out = append(out, st)
	}
	return out, nil
}

// refreshNotebookStatus marks the notebook completed when every stage has a
// fresh active cell and evolving otherwise.
func (c *Coordinator) refreshNotebookStatus(ctx context.Context, notebookID string) (domain.NotebookStatus, error) {
	statuses, err := c.AgentStatuses(ctx, notebookID)
	if err != nil {
		return "", err
	}
	status := domain.NotebookCompleted
	for _, st := range statuses {
		if st.Version == 0 || st.Stale {
			status = domain.NotebookEvolving
			break
		}
	}
	return status, c.store.SetNotebookStatus(ctx, notebookID, status)
}
