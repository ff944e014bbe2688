package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/domain"
)

// SaveSummary stores sum as the current summary of its notebook and demotes
// the previous current one in the same transaction.
func (s *Store) SaveSummary(ctx context.Context, sum *domain.ContextSummary) error {
	if sum.ID == "" {
		sum.ID = uuid.NewString()
	}
	now := s.stamp()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE context_summaries SET is_current = 0 WHERE notebook_id = ? AND is_current = 1`,
			sum.NotebookID); err != nil {
			return fmt.Errorf("demote summary: %w", err)
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO context_summaries (id, notebook_id, summary, range_from, range_to, token_count, is_current, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, 1, ?)`,
			sum.ID, sum.NotebookID, sum.Summary, sum.From.UnixNano(), sum.To.UnixNano(), sum.TokenCount, now)
		if err != nil {
			return fmt.Errorf("insert summary: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	sum.Current = true
	sum.CreatedAt = fromStamp(now)
	return nil
}

// CurrentSummary returns the current summary of a notebook, or nil when none exists.
func (s *Store) CurrentSummary(ctx context.Context, notebookID string) (*domain.ContextSummary, error) {
	var (
		sum               domain.ContextSummary
		from, to, created int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, notebook_id, summary, range_from, range_to, token_count, created_at
		 FROM context_summaries WHERE notebook_id = ? AND is_current = 1`, notebookID).
		Scan(&sum.ID, &sum.NotebookID, &sum.Summary, &from, &to, &sum.TokenCount, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sum.From = fromStamp(from)
	sum.To = fromStamp(to)
	sum.CreatedAt = fromStamp(created)
	sum.Current = true
	return &sum, nil
}

// CountSummaries returns how many summaries a notebook has, and how many are current.
func (s *Store) CountSummaries(ctx context.Context, notebookID string) (total, current int, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(is_current), 0) FROM context_summaries WHERE notebook_id = ?`,
		notebookID).Scan(&total, &current)
	return total, current, err
}
