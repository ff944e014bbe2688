package domain

// PipelineState is the coordinator state of a pipeline session.
type PipelineState string

const (
	StatePending   PipelineState = "pending"
	StateRunning   PipelineState = "running"
	StatePaused    PipelineState = "paused"
	StateCompleted PipelineState = "completed"
	StateFailed    PipelineState = "failed"
	StateCancelled PipelineState = "cancelled"
)

// IsTerminal reports whether no further stages will run.
func (s PipelineState) IsTerminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	}
	return false
}
