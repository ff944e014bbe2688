package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/domain"
)

// CreateNotebook creates a draft notebook for problemID with the default toolbox.
func (s *Store) CreateNotebook(ctx context.Context, problemID, name string) (*domain.Notebook, error) {
	if _, err := s.GetProblemSpec(ctx, problemID); err != nil {
		return nil, err
	}
	nb := &domain.Notebook{
		ID:        uuid.NewString(),
		ProblemID: problemID,
		Name:      name,
		Status:    domain.NotebookDraft,
		Toolbox:   domain.DefaultToolbox(),
	}
	toolbox, err := json.Marshal(nb.Toolbox)
	if err != nil {
		return nil, fmt.Errorf("encode toolbox: %w", err)
	}

	now := s.stamp()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO notebooks (id, problem_id, name, status, toolbox, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		nb.ID, nb.ProblemID, nb.Name, string(nb.Status), string(toolbox), now, now)
	if err != nil {
		return nil, fmt.Errorf("insert notebook: %w", err)
	}
	nb.CreatedAt = fromStamp(now)
	nb.UpdatedAt = nb.CreatedAt
	return nb, nil
}

// GetNotebook returns the notebook with id.
func (s *Store) GetNotebook(ctx context.Context, id string) (*domain.Notebook, error) {
	var (
		nb               domain.Notebook
		status, toolbox  string
		created, updated int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, problem_id, name, status, toolbox, created_at, updated_at
		 FROM notebooks WHERE id = ?`, id).
		Scan(&nb.ID, &nb.ProblemID, &nb.Name, &status, &toolbox, &created, &updated)
	if err != nil {
		return nil, notFound("notebook", id, err)
	}
	nb.Status = domain.NotebookStatus(status)
	nb.CreatedAt = fromStamp(created)
	nb.UpdatedAt = fromStamp(updated)
	if err := json.Unmarshal([]byte(toolbox), &nb.Toolbox); err != nil {
		return nil, fmt.Errorf("decode toolbox: %w", err)
	}
	return &nb, nil
}

// ListNotebooks returns every notebook, newest first.
func (s *Store) ListNotebooks(ctx context.Context) ([]domain.Notebook, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, problem_id, name, status, created_at, updated_at
		 FROM notebooks ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Notebook
	for rows.Next() {
		var (
			nb               domain.Notebook
			status           string
			created, updated int64
		)
		if err := rows.Scan(&nb.ID, &nb.ProblemID, &nb.Name, &status, &created, &updated); err != nil {
			return nil, err
		}
		nb.Status = domain.NotebookStatus(status)
		nb.CreatedAt = fromStamp(created)
		nb.UpdatedAt = fromStamp(updated)
		out = append(out, nb)
	}
	return out, rows.Err()
}

// GetNotebookStatus returns the status of a notebook.
func (s *Store) GetNotebookStatus(ctx context.Context, id string) (domain.NotebookStatus, error) {
	var status string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM notebooks WHERE id = ?`, id).Scan(&status)
	if err != nil {
		return "", notFound("notebook", id, err)
	}
	return domain.NotebookStatus(status), nil
}

// SetNotebookStatus updates the status of a notebook.
func (s *Store) SetNotebookStatus(ctx context.Context, id string, status domain.NotebookStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notebooks SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), s.stamp(), id)
	if err != nil {
		return fmt.Errorf("update notebook status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("notebook %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteNotebook removes a notebook and, by cascade, its cells, runs,
// summaries and sessions.
func (s *Store) DeleteNotebook(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM notebooks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete notebook: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("notebook %s: %w", id, ErrNotFound)
	}
	return nil
}
