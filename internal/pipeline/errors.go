package pipeline

import (
	"errors"
	"fmt"

	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/domain"
)

var (
	// ErrSessionNotFound is returned for unknown session ids.
	ErrSessionNotFound = errors.New("pipeline session not found")

	// ErrInvalidTransition is returned when an operation does not apply to
	// the current session state.
	ErrInvalidTransition = errors.New("invalid pipeline state transition")

	// ErrNotebookBusy is returned when a notebook already has a running
	// session or a regeneration in flight.
	ErrNotebookBusy = errors.New("notebook has a running pipeline")

	// ErrSessionActive is returned when a session is still driven by
	// another process, judged by its heartbeat.
	ErrSessionActive = errors.New("pipeline session is running in another process")
)

func transitionError(from, to domain.PipelineState) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// StageError records which stage a pipeline failed at.
type StageError struct {
	Stage int
	Agent string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %d (%s): %v", e.Stage+1, e.Agent, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
