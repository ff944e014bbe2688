package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/domain"
)

// Session is the persisted checkpoint of a pipeline session.
type Session struct {
	ID         string
	NotebookID string
	State      domain.PipelineState
	Stage      int            // index of the next stage to run
	Retries    map[string]int // parse retries per agent id
	Reason     string         // failure or cancellation reason
	CreatedAt  time.Time
	UpdatedAt  time.Time

	// CancelRequested is set by RequestCancel and never cleared by SaveSession.
	CancelRequested bool
	// HeartbeatAt is refreshed by every save and by Heartbeat while a
	// process is driving the session.
	HeartbeatAt time.Time
}

// SaveSession inserts or replaces a session checkpoint. A pending cancel
// request survives the save.
func (s *Store) SaveSession(ctx context.Context, sess *Session) error {
	retries, err := json.Marshal(sess.Retries)
	if err != nil {
		return fmt.Errorf("encode retries: %w", err)
	}
	now := s.stamp()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = fromStamp(now)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO pipeline_sessions (id, notebook_id, state, stage, retries, reason, heartbeat_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			stage = excluded.stage,
			retries = excluded.retries,
			reason = excluded.reason,
			heartbeat_at = excluded.heartbeat_at,
			updated_at = excluded.updated_at`,
		sess.ID, sess.NotebookID, string(sess.State), sess.Stage, string(retries), sess.Reason,
		now, sess.CreatedAt.UnixNano(), now)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	sess.UpdatedAt = fromStamp(now)
	sess.HeartbeatAt = sess.UpdatedAt
	return nil
}

// Heartbeat marks a session as still driven by a live process.
func (s *Store) Heartbeat(ctx context.Context, id string) error {
	return s.touchSession(ctx, id, `UPDATE pipeline_sessions SET heartbeat_at = ? WHERE id = ?`, s.stamp())
}

// RequestCancel flags a session for cancellation by whichever process
// drives it.
func (s *Store) RequestCancel(ctx context.Context, id string) error {
	return s.touchSession(ctx, id, `UPDATE pipeline_sessions SET cancel_requested = ? WHERE id = ?`, 1)
}

func (s *Store) touchSession(ctx context.Context, id, query string, value any) error {
	res, err := s.db.ExecContext(ctx, query, value, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return nil
}

const sessionColumns = `id, notebook_id, state, stage, retries, reason, cancel_requested, heartbeat_at, created_at, updated_at`

// LoadSession returns the checkpoint with id.
func (s *Store) LoadSession(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM pipeline_sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if err != nil {
		return nil, notFound("session", id, err)
	}
	return sess, nil
}

// LatestSession returns the most recently updated session of a notebook.
func (s *Store) LatestSession(ctx context.Context, notebookID string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM pipeline_sessions WHERE notebook_id = ?
		 ORDER BY updated_at DESC, rowid DESC LIMIT 1`, notebookID)
	sess, err := scanSession(row)
	if err != nil {
		return nil, notFound("session for notebook", notebookID, err)
	}
	return sess, nil
}

func scanSession(r scanner) (*Session, error) {
	var (
		sess                        Session
		state, retries              string
		created, updated, heartbeat int64
	)
	if err := r.Scan(&sess.ID, &sess.NotebookID, &state, &sess.Stage, &retries, &sess.Reason,
		&sess.CancelRequested, &heartbeat, &created, &updated); err != nil {
		return nil, err
	}
	sess.State = domain.PipelineState(state)
	sess.HeartbeatAt = fromStamp(heartbeat)
	sess.CreatedAt = fromStamp(created)
	sess.UpdatedAt = fromStamp(updated)
	if err := json.Unmarshal([]byte(retries), &sess.Retries); err != nil {
		return nil, fmt.Errorf("decode retries: %w", err)
	}
	return &sess, nil
}
