package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/domain"
)

// InsertAgentRun appends an audit record and assigns its iteration, one
// past the highest of the notebook, in the same statement. Runs are never
// updated.
func (s *Store) InsertAgentRun(ctx context.Context, run *domain.AgentRun) error {
	meta, err := json.Marshal(run.Metadata)
	if err != nil {
		return fmt.Errorf("encode run metadata: %w", err)
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	now := s.stamp()
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO agent_runs (id, notebook_id, session_id, iteration, agent_id, cell_type, cell_id,
			status, output, token_usage, execution_ms, reasoning, error, metadata, created_at)
		 SELECT ?, ?, ?, COALESCE(MAX(iteration), 0) + 1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
		 FROM agent_runs WHERE notebook_id = ?
		 RETURNING iteration`,
		run.ID, run.NotebookID, run.SessionID, run.AgentID, string(run.CellType), run.CellID,
		string(run.Status), run.Output, run.TokenUsage, run.ExecutionTime.Milliseconds(),
		run.Reasoning, run.Error, string(meta), now, run.NotebookID).Scan(&run.Iteration)
	if err != nil {
		return fmt.Errorf("insert agent run: %w", err)
	}
	run.CreatedAt = fromStamp(now)
	return nil
}

// ListRuns returns the audit trail of a notebook in insertion order.
func (s *Store) ListRuns(ctx context.Context, notebookID string) ([]domain.AgentRun, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, notebook_id, session_id, iteration, agent_id, cell_type, cell_id, status, output,
			token_usage, execution_ms, reasoning, error, metadata, created_at
		 FROM agent_runs WHERE notebook_id = ? ORDER BY created_at, rowid`, notebookID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.AgentRun
	for rows.Next() {
		var (
			r                domain.AgentRun
			ct, status, meta string
			execMs, created  int64
		)
		if err := rows.Scan(&r.ID, &r.NotebookID, &r.SessionID, &r.Iteration, &r.AgentID, &ct, &r.CellID,
			&status, &r.Output, &r.TokenUsage, &execMs, &r.Reasoning, &r.Error, &meta, &created); err != nil {
			return nil, err
		}
		r.CellType = domain.CellType(ct)
		r.Status = domain.RunStatus(status)
		r.ExecutionTime = time.Duration(execMs) * time.Millisecond
		r.CreatedAt = fromStamp(created)
		if err := json.Unmarshal([]byte(meta), &r.Metadata); err != nil {
			return nil, fmt.Errorf("decode run metadata: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LatestRuns returns the most recent run per agent id.
func (s *Store) LatestRuns(ctx context.Context, notebookID string) (map[string]domain.AgentRun, error) {
	runs, err := s.ListRuns(ctx, notebookID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]domain.AgentRun)
	for _, r := range runs {
		out[r.AgentID] = r
	}
	return out, nil
}
