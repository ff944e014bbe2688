package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/domain"
)

// NewCell is the payload of a cell write.
type NewCell struct {
	NotebookID string
	Type       domain.CellType
	Code       string
	AgentID    string
	Position   int
}

const cellColumns = `id, notebook_id, cell_type, code, agent_id, version, position, is_active, created_at`

// WriteNew stores c as the next version of its cell type and makes it the
// only active one. The first write of a type gets version 1.
func (s *Store) WriteNew(ctx context.Context, c NewCell) (*domain.Cell, error) {
	var cell *domain.Cell
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		cell, err = s.insertVersion(ctx, tx, c)
		return err
	})
	if err != nil {
		return nil, err
	}
	return cell, nil
}

// Supersede is WriteNew guarded by the version the caller based its work
// on. It returns ErrConcurrentWrite when the active version is no longer
// expectedVersion. An expectedVersion of 0 means no active cell.
func (s *Store) Supersede(ctx context.Context, c NewCell, expectedVersion int) (*domain.Cell, error) {
	var cell *domain.Cell
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var current int
		err := tx.QueryRowContext(ctx,
			`SELECT version FROM cells WHERE notebook_id = ? AND cell_type = ? AND is_active = 1`,
			c.NotebookID, string(c.Type)).Scan(&current)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		if current != expectedVersion {
			return fmt.Errorf("%s at version %d, expected %d: %w", c.Type, current, expectedVersion, ErrConcurrentWrite)
		}
		cell, err = s.insertVersion(ctx, tx, c)
		return err
	})
	if err != nil {
		return nil, err
	}
	return cell, nil
}

func (s *Store) insertVersion(ctx context.Context, tx *sql.Tx, c NewCell) (*domain.Cell, error) {
	var last int
	err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM cells WHERE notebook_id = ? AND cell_type = ?`,
		c.NotebookID, string(c.Type)).Scan(&last)
	if err != nil {
		return nil, fmt.Errorf("read latest version: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE cells SET is_active = 0 WHERE notebook_id = ? AND cell_type = ? AND is_active = 1`,
		c.NotebookID, string(c.Type)); err != nil {
		return nil, fmt.Errorf("deactivate previous version: %w", err)
	}

	cell := &domain.Cell{
		ID:         uuid.NewString(),
		NotebookID: c.NotebookID,
		Type:       c.Type,
		Code:       c.Code,
		AgentID:    c.AgentID,
		Version:    last + 1,
		Position:   c.Position,
		Active:     true,
	}
	now := s.stamp()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO cells (`+cellColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?)`,
		cell.ID, cell.NotebookID, string(cell.Type), cell.Code, cell.AgentID,
		cell.Version, cell.Position, now); err != nil {
		return nil, fmt.Errorf("insert cell: %w", err)
	}
	cell.CreatedAt = fromStamp(now)
	return cell, nil
}

// GetActive returns the active cell of a type, or ErrNotFound.
func (s *Store) GetActive(ctx context.Context, notebookID string, ct domain.CellType) (*domain.Cell, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+cellColumns+` FROM cells WHERE notebook_id = ? AND cell_type = ? AND is_active = 1`,
		notebookID, string(ct))
	cell, err := scanCell(row)
	if err != nil {
		return nil, notFound("active cell", string(ct), err)
	}
	return cell, nil
}

// ListActive returns the active cells of a notebook ordered by position.
func (s *Store) ListActive(ctx context.Context, notebookID string) ([]domain.Cell, error) {
	return s.queryCells(ctx,
		`SELECT `+cellColumns+` FROM cells WHERE notebook_id = ? AND is_active = 1
		 ORDER BY position, cell_type`, notebookID)
}

// ListVersions returns every version of a cell type, oldest first.
func (s *Store) ListVersions(ctx context.Context, notebookID string, ct domain.CellType) ([]domain.Cell, error) {
	return s.queryCells(ctx,
		`SELECT `+cellColumns+` FROM cells WHERE notebook_id = ? AND cell_type = ?
		 ORDER BY version`, notebookID, string(ct))
}

// GetVersion returns one version of a cell type.
func (s *Store) GetVersion(ctx context.Context, notebookID string, ct domain.CellType, version int) (*domain.Cell, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+cellColumns+` FROM cells WHERE notebook_id = ? AND cell_type = ? AND version = ?`,
		notebookID, string(ct), version)
	cell, err := scanCell(row)
	if err != nil {
		return nil, notFound("cell version", fmt.Sprintf("%s v%d", ct, version), err)
	}
	return cell, nil
}

func (s *Store) queryCells(ctx context.Context, query string, args ...any) ([]domain.Cell, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Cell
	for rows.Next() {
		cell, err := scanCell(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *cell)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCell(r scanner) (*domain.Cell, error) {
	var (
		c       domain.Cell
		ct      string
		active  int
		created int64
	)
	if err := r.Scan(&c.ID, &c.NotebookID, &ct, &c.Code, &c.AgentID,
		&c.Version, &c.Position, &active, &created); err != nil {
		return nil, err
	}
	c.Type = domain.CellType(ct)
	c.Active = active == 1
	c.CreatedAt = fromStamp(created)
	return &c, nil
}
