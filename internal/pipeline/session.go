package pipeline

import (
	"maps"
	"sync"
	"time"

	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/domain"
	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/store"
)

// transitions lists the legal state changes of a session.
var transitions = map[domain.PipelineState][]domain.PipelineState{
	domain.StatePending: {domain.StateRunning, domain.StateCancelled},
	domain.StateRunning: {domain.StateRunning, domain.StatePaused, domain.StateCompleted, domain.StateFailed, domain.StateCancelled},
	domain.StatePaused:  {domain.StateRunning, domain.StateCancelled},
}

func canTransition(from, to domain.PipelineState) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Status is a snapshot of a session.
type Status struct {
	SessionID  string               `json:"session_id"`
	NotebookID string               `json:"notebook_id"`
	State      domain.PipelineState `json:"state"`
	Stage      int                  `json:"stage"` // index of the next stage to run
	Agent      string               `json:"agent,omitempty"`
	Reason     string               `json:"reason,omitempty"`
	Retries    map[string]int       `json:"retries,omitempty"`
	UpdatedAt  time.Time            `json:"updated_at"`
}

// Session is the in-memory state machine of one pipeline run. Retry
// counters and the stage index are part of the state and are checkpointed
// after every transition.
type Session struct {
	id         string
	notebookID string
	createdAt  time.Time

	mu        sync.Mutex
	state     domain.PipelineState
	stage     int
	retries   map[string]int
	reason    string
	updatedAt time.Time

	cancelRequested bool
	pauseRequested  bool
	done            chan struct{} // closed when the current run goroutine exits
}

func newSession(id, notebookID string) *Session {
	now := time.Now()
	return &Session{
		id:         id,
		notebookID: notebookID,
		createdAt:  now,
		state:      domain.StatePending,
		retries:    make(map[string]int),
		updatedAt:  now,
		done:       closedChan(),
	}
}

func sessionFromCheckpoint(cp *store.Session) *Session {
	s := &Session{
		id:         cp.ID,
		notebookID: cp.NotebookID,
		createdAt:  cp.CreatedAt,
		state:      cp.State,
		stage:      cp.Stage,
		retries:    cp.Retries,
		reason:     cp.Reason,
		updatedAt:  cp.UpdatedAt,
		done:       closedChan(),
	}
	if s.retries == nil {
		s.retries = make(map[string]int)
	}
	return s
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// transition moves the session to state, or reports an illegal move.
func (s *Session) transition(to domain.PipelineState, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitionLocked(to, reason)
}

func (s *Session) transitionLocked(to domain.PipelineState, reason string) error {
	if !canTransition(s.state, to) {
		return transitionError(s.state, to)
	}
	s.state = to
	s.reason = reason
	s.updatedAt = time.Now()
	return nil
}

// begin marks the session as driven by a new run goroutine.
func (s *Session) begin() chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done = make(chan struct{})
	s.pauseRequested = false
	return s.done
}

// checkpoint decides, between stages, whether the run goroutine may go on.
// A session past its last stage completes even when a cancel or pause is
// pending, since no further stage would be skipped. Otherwise pending cancel
// and pause requests are applied.
func (s *Session) checkpoint(stages int) (stage int, proceed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.stage >= stages:
		s.transitionLocked(domain.StateCompleted, "")
		return s.stage, false
	case s.cancelRequested:
		s.transitionLocked(domain.StateCancelled, "cancelled by request")
		return s.stage, false
	case s.pauseRequested:
		s.pauseRequested = false
		s.transitionLocked(domain.StatePaused, "")
		return s.stage, false
	}
	return s.stage, true
}

func (s *Session) requestCancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelRequested = true
}

func (s *Session) advance() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stage++
	s.updatedAt = time.Now()
}

func (s *Session) addRetries(agentID string, n int) {
	if n <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retries[agentID] += n
}

func (s *Session) stateNow() domain.PipelineState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) doneChan() chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// snapshot returns the persisted form of the session.
func (s *Session) snapshot() *store.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &store.Session{
		ID:         s.id,
		NotebookID: s.notebookID,
		State:      s.state,
		Stage:      s.stage,
		Retries:    maps.Clone(s.retries),
		Reason:     s.reason,
		CreatedAt:  s.createdAt,
	}
}

func (s *Session) status(agentAt func(int) string) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		SessionID:  s.id,
		NotebookID: s.notebookID,
		State:      s.state,
		Stage:      s.stage,
		Reason:     s.reason,
		Retries:    maps.Clone(s.retries),
		UpdatedAt:  s.updatedAt,
	}
	if !s.state.IsTerminal() {
		st.Agent = agentAt(s.stage)
	}
	return st
}
