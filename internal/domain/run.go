package domain

import "time"

// RunStatus is the outcome of one agent execution.
type RunStatus string

const (
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// AgentRun is the append-only audit record of one agent execution.
type AgentRun struct {
	ID            string         `json:"id"`
	NotebookID    string         `json:"notebook_id"`
	SessionID     string         `json:"session_id,omitempty"`
	Iteration     int            `json:"iteration"`
	AgentID       string         `json:"agent_id"`
	CellType      CellType       `json:"cell_type"`
	CellID        string         `json:"cell_id,omitempty"`
	Status        RunStatus      `json:"status"`
	Output        string         `json:"output"`
	TokenUsage    int            `json:"token_usage"`
	ExecutionTime time.Duration  `json:"execution_time"`
	Reasoning     string         `json:"reasoning,omitempty"`
	Error         string         `json:"error,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// ContextSummary is a rolling digest of older agent output.
type ContextSummary struct {
	ID         string    `json:"id"`
	NotebookID string    `json:"notebook_id"`
	Summary    string    `json:"summary"`
	From       time.Time `json:"from"`
	To         time.Time `json:"to"`
	TokenCount int       `json:"token_count"`
	Current    bool      `json:"is_current"`
	CreatedAt  time.Time `json:"created_at"`
}
