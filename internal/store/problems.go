package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/domain"
)

// CreateProblem validates and stores p, assigning its ID and CreatedAt.
func (s *Store) CreateProblem(ctx context.Context, p *domain.ProblemSpec) error {
	if err := p.Validate(); err != nil {
		return err
	}
	constraints, err := json.Marshal(p.Constraints)
	if err != nil {
		return fmt.Errorf("encode constraints: %w", err)
	}
	objectives, err := json.Marshal(p.Objectives)
	if err != nil {
		return fmt.Errorf("encode objectives: %w", err)
	}

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := s.stamp()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO problems (id, title, description, problem_type, constraints, objectives, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Title, p.Description, string(p.Type), string(constraints), string(objectives), now)
	if err != nil {
		return fmt.Errorf("insert problem: %w", err)
	}
	p.CreatedAt = fromStamp(now)
	return nil
}

// GetProblemSpec returns the problem with id.
func (s *Store) GetProblemSpec(ctx context.Context, id string) (*domain.ProblemSpec, error) {
	var (
		p           domain.ProblemSpec
		ptype       string
		constraints string
		objectives  string
		created     int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, description, problem_type, constraints, objectives, created_at
		 FROM problems WHERE id = ?`, id).
		Scan(&p.ID, &p.Title, &p.Description, &ptype, &constraints, &objectives, &created)
	if err != nil {
		return nil, notFound("problem", id, err)
	}
	p.Type = domain.ProblemType(ptype)
	p.CreatedAt = fromStamp(created)
	if err := json.Unmarshal([]byte(constraints), &p.Constraints); err != nil {
		return nil, fmt.Errorf("decode constraints: %w", err)
	}
	if err := json.Unmarshal([]byte(objectives), &p.Objectives); err != nil {
		return nil, fmt.Errorf("decode objectives: %w", err)
	}
	return &p, nil
}

// ProblemForNotebook returns the problem a notebook was created for.
func (s *Store) ProblemForNotebook(ctx context.Context, notebookID string) (*domain.ProblemSpec, error) {
	nb, err := s.GetNotebook(ctx, notebookID)
	if err != nil {
		return nil, err
	}
	return s.GetProblemSpec(ctx, nb.ProblemID)
}
