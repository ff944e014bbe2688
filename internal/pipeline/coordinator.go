// Package pipeline runs the agents of a notebook in their fixed order,
// persisting every result as a cell version.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/agent"
	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/client"
	evctx "github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/context"
	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/domain"
	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/logging"
	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/metrics"
	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/store"
)

// Store is the persistence the coordinator depends on. *store.Store implements it.
type Store interface {
	CreateProblem(ctx context.Context, p *domain.ProblemSpec) error
	GetProblemSpec(ctx context.Context, id string) (*domain.ProblemSpec, error)
	CreateNotebook(ctx context.Context, problemID, name string) (*domain.Notebook, error)
	GetNotebook(ctx context.Context, id string) (*domain.Notebook, error)
	GetNotebookStatus(ctx context.Context, id string) (domain.NotebookStatus, error)
	SetNotebookStatus(ctx context.Context, id string, status domain.NotebookStatus) error

	WriteNew(ctx context.Context, c store.NewCell) (*domain.Cell, error)
	Supersede(ctx context.Context, c store.NewCell, expectedVersion int) (*domain.Cell, error)
	GetActive(ctx context.Context, notebookID string, ct domain.CellType) (*domain.Cell, error)
	ListActive(ctx context.Context, notebookID string) ([]domain.Cell, error)

	InsertAgentRun(ctx context.Context, run *domain.AgentRun) error
	LatestRuns(ctx context.Context, notebookID string) (map[string]domain.AgentRun, error)

	CurrentSummary(ctx context.Context, notebookID string) (*domain.ContextSummary, error)
	SaveSummary(ctx context.Context, sum *domain.ContextSummary) error

	SaveSession(ctx context.Context, sess *store.Session) error
	LoadSession(ctx context.Context, id string) (*store.Session, error)
	Heartbeat(ctx context.Context, id string) error
	RequestCancel(ctx context.Context, id string) error
}

// CascadePolicy decides what happens to downstream cells after a regeneration.
type CascadePolicy string

const (
	// CascadeStale leaves downstream cells active but stale until regenerated explicitly.
	CascadeStale CascadePolicy = "stale"
	// CascadeAuto regenerates every downstream stage in order.
	CascadeAuto CascadePolicy = "auto"
)

// Config tunes a Coordinator.
type Config struct {
	MaxParseRetries      int           // corrective re-prompts after a ParseError
	MaxContextTokens     int           // per-agent context ceiling
	SummaryTriggerTokens int           // zero disables rolling summaries
	Cascade              CascadePolicy // regeneration policy
	BatchConcurrency     int

	// HeartbeatInterval is how often a running session refreshes its
	// checkpoint heartbeat. A running checkpoint silent for three intervals
	// belongs to a process that is gone.
	HeartbeatInterval time.Duration
}

// DefaultConfig returns the coordinator defaults.
func DefaultConfig() Config {
	return Config{
		MaxParseRetries:      2,
		MaxContextTokens:     4000,
		SummaryTriggerTokens: 3000,
		Cascade:              CascadeStale,
		BatchConcurrency:     4,
		HeartbeatInterval:    5 * time.Second,
	}
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithMetrics records stage and session metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// Coordinator owns the agent order and drives sessions through it.
type Coordinator struct {
	store      Store
	agents     []agent.Agent
	assembler  *evctx.Assembler
	summarizer *evctx.Summarizer
	cfg        Config
	metrics    *metrics.Metrics

	// runs outlive the request that started them; Close cancels this context.
	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup

	mu           sync.Mutex
	sessions     map[string]*Session
	busy         map[string]string // notebook id -> running session id
	regenerating map[string]int    // notebook id -> regenerations in flight
}

// New creates a Coordinator whose agents all use gw.
func New(st Store, gw client.Gateway, budget evctx.Budgeter, cfg Config, opts ...Option) *Coordinator {
	if cfg.Cascade == "" {
		cfg.Cascade = CascadeStale
	}
	if cfg.BatchConcurrency <= 0 {
		cfg.BatchConcurrency = 1
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultConfig().HeartbeatInterval
	}
	ctx, stop := context.WithCancel(context.Background())
	c := &Coordinator{
		store:      st,
		agents:     agent.Pipeline(gw),
		assembler:  evctx.NewAssembler(budget),
		summarizer: evctx.NewSummarizer(gw, budget),
		cfg:        cfg,
		baseCtx:    ctx,
		stop:       stop,
		sessions:   make(map[string]*Session),
		busy:       make(map[string]string),

		regenerating: make(map[string]int),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Agents returns the agents in execution order.
func (c *Coordinator) Agents() []agent.Agent {
	return append([]agent.Agent(nil), c.agents...)
}

// Close aborts running sessions and waits for their goroutines to exit.
func (c *Coordinator) Close() {
	c.stop()
	c.wg.Wait()
}

// Start creates a session for notebookID and runs it in the background.
func (c *Coordinator) Start(ctx context.Context, notebookID string) (string, error) {
	if _, err := c.store.GetNotebook(ctx, notebookID); err != nil {
		return "", err
	}

	sess := newSession(uuid.NewString(), notebookID)
	if err := c.claim(sess); err != nil {
		return "", err
	}
	if err := sess.transition(domain.StateRunning, ""); err != nil {
		c.release(sess)
		return "", err
	}
	if err := c.store.SetNotebookStatus(ctx, notebookID, domain.NotebookEvolving); err != nil {
		c.release(sess)
		return "", err
	}
	c.persist(sess)

	logging.Info("coordinator: session started", "session", sess.id, "notebook", notebookID)
	c.launch(sess)
	return sess.id, nil
}

// Run starts a session and waits for it to settle.
func (c *Coordinator) Run(ctx context.Context, notebookID string) (Status, error) {
	id, err := c.Start(ctx, notebookID)
	if err != nil {
		return Status{}, err
	}
	return c.Wait(ctx, id)
}

// Wait blocks until the session stops running (terminal or paused).
func (c *Coordinator) Wait(ctx context.Context, sessionID string) (Status, error) {
	sess, err := c.session(sessionID)
	if err != nil {
		return c.Status(ctx, sessionID)
	}
	select {
	case <-sess.doneChan():
		return sess.status(c.agentAt), nil
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
}

// Status returns the state of a session, falling back to its checkpoint.
func (c *Coordinator) Status(ctx context.Context, sessionID string) (Status, error) {
	if sess, err := c.session(sessionID); err == nil {
		return sess.status(c.agentAt), nil
	}
	cp, err := c.store.LoadSession(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return Status{}, fmt.Errorf("%s: %w", sessionID, ErrSessionNotFound)
	}
	if err != nil {
		return Status{}, err
	}
	return sessionFromCheckpoint(cp).status(c.agentAt), nil
}

// Cancel asks a session to stop. An in-flight agent call finishes and its
// cell is kept; no further stage starts. A paused session is cancelled at once.
// A session driven by another process is flagged in its checkpoint and
// stops at that process's next stage boundary.
func (c *Coordinator) Cancel(ctx context.Context, sessionID string) error {
	sess, err := c.session(sessionID)
	if err != nil {
		sess, err = c.restore(ctx, sessionID, domain.StateCancelled)
		if errors.Is(err, ErrSessionActive) {
			if err := c.store.RequestCancel(ctx, sessionID); err != nil {
				return err
			}
			logging.Info("coordinator: cancel requested for session owned by another process", "session", sessionID)
			return nil
		}
		if err != nil {
			return err
		}
	}

	sess.mu.Lock()
	state := sess.state
	switch {
	case state.IsTerminal():
		sess.mu.Unlock()
		return transitionError(state, domain.StateCancelled)
	case state == domain.StatePaused:
		sess.transitionLocked(domain.StateCancelled, "cancelled by request")
		sess.mu.Unlock()
		c.finish(ctx, sess)
		return nil
	}
	sess.cancelRequested = true
	sess.mu.Unlock()

	logging.Info("coordinator: cancel requested", "session", sessionID)
	return nil
}

// Pause asks a running session to stop after the current stage.
func (c *Coordinator) Pause(sessionID string) error {
	sess, err := c.session(sessionID)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.state != domain.StateRunning {
		return transitionError(sess.state, domain.StatePaused)
	}
	sess.pauseRequested = true
	return nil
}

// Resume continues a paused session, or one left running by a process that
// exited, from its next stage.
func (c *Coordinator) Resume(ctx context.Context, sessionID string) error {
	sess, err := c.session(sessionID)
	if err != nil {
		if sess, err = c.restore(ctx, sessionID, domain.StateRunning); err != nil {
			return err
		}
	} else {
		select {
		case <-sess.doneChan():
		default:
			return transitionError(sess.stateNow(), domain.StateRunning)
		}
		if err := c.adoptSettled(ctx, sess); err != nil {
			return err
		}
	}

	if err := sess.transition(domain.StateRunning, ""); err != nil {
		return err
	}
	if err := c.store.SetNotebookStatus(ctx, sess.notebookID, domain.NotebookEvolving); err != nil {
		return err
	}
	c.persist(sess)

	logging.Info("coordinator: session resumed", "session", sessionID, "stage", sess.snapshot().Stage)
	c.launch(sess)
	return nil
}

// adoptSettled refuses to resume a paused in-memory session that another
// process has meanwhile settled through the shared checkpoint.
func (c *Coordinator) adoptSettled(ctx context.Context, sess *Session) error {
	cp, err := c.store.LoadSession(ctx, sess.id)
	if err != nil || !cp.State.IsTerminal() {
		return err
	}
	sess.mu.Lock()
	sess.state = cp.State
	sess.reason = cp.Reason
	sess.updatedAt = cp.UpdatedAt
	sess.mu.Unlock()
	c.release(sess)
	return transitionError(cp.State, domain.StateRunning)
}

// restore loads a session checkpointed by an earlier process and claims its
// notebook. A running checkpoint whose heartbeat is fresh belongs to a live
// process and is refused with ErrSessionActive; a silent one is treated as
// paused.
func (c *Coordinator) restore(ctx context.Context, sessionID string, to domain.PipelineState) (*Session, error) {
	cp, err := c.store.LoadSession(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", sessionID, ErrSessionNotFound)
	}
	if err != nil {
		return nil, err
	}
	sess := sessionFromCheckpoint(cp)
	if sess.state.IsTerminal() {
		return nil, transitionError(sess.state, to)
	}
	if sess.state == domain.StateRunning {
		if c.live(cp) {
			return nil, fmt.Errorf("%s: %w", sessionID, ErrSessionActive)
		}
		// interrupted before it could checkpoint a pause
		sess.state = domain.StatePaused
	}
	if err := c.claim(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (c *Coordinator) live(cp *store.Session) bool {
	return time.Since(cp.HeartbeatAt) < 3*c.cfg.HeartbeatInterval
}

func (c *Coordinator) launch(sess *Session) {
	done := sess.begin()
	c.wg.Add(2)
	c.metrics.SessionStarted()
	go func() {
		defer c.wg.Done()
		defer close(done)
		defer c.metrics.SessionStopped()
		c.drive(c.baseCtx, sess)
	}()
	go func() {
		defer c.wg.Done()
		c.heartbeat(sess.id, done)
	}()
}

// heartbeat keeps the checkpoint of a driven session fresh until done closes.
func (c *Coordinator) heartbeat(sessionID string, done <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := c.store.Heartbeat(context.Background(), sessionID); err != nil {
				logging.Warn("coordinator: heartbeat failed", "session", sessionID, "error", err)
			}
		}
	}
}

// pollCancel picks up a cancel request another process left in the checkpoint.
func (c *Coordinator) pollCancel(ctx context.Context, sess *Session) {
	cp, err := c.store.LoadSession(context.WithoutCancel(ctx), sess.id)
	if err != nil {
		logging.Warn("coordinator: failed to read checkpoint", "session", sess.id, "error", err)
		return
	}
	if cp.CancelRequested {
		sess.requestCancel()
	}
}

// drive runs stages until the session completes, fails or is stopped.
func (c *Coordinator) drive(ctx context.Context, sess *Session) {
	for {
		c.pollCancel(ctx, sess)
		stage, proceed := sess.checkpoint(len(c.agents))
		if !proceed {
			c.finish(ctx, sess)
			return
		}

		a := c.agents[stage]
		if _, err := c.runStage(ctx, sess, a, stageInput{notebookID: sess.notebookID}); err != nil {
			serr := &StageError{Stage: stage, Agent: a.Role().String(), Err: err}
			if ctx.Err() != nil {
				sess.transition(domain.StateCancelled, "coordinator shut down")
			} else {
				sess.transition(domain.StateFailed, serr.Error())
			}
			c.finish(ctx, sess)
			return
		}

		sess.advance()
		c.persist(sess)
	}
}

// finish records the settled state of a session.
func (c *Coordinator) finish(ctx context.Context, sess *Session) {
	// the checkpoint must land even when the run context was cancelled
	ctx = context.WithoutCancel(ctx)
	snap := sess.snapshot()
	c.persist(sess)

	status := domain.NotebookEvolving
	if snap.State == domain.StateCompleted {
		status = domain.NotebookCompleted
	}
	if err := c.store.SetNotebookStatus(ctx, snap.NotebookID, status); err != nil {
		logging.Warn("coordinator: failed to update notebook status", "notebook", snap.NotebookID, "error", err)
	}

	if snap.State.IsTerminal() {
		c.release(sess)
		c.metrics.SessionEnded(string(snap.State))
	}
	logging.Info("coordinator: session settled",
		"session", snap.ID,
		"notebook", snap.NotebookID,
		"state", snap.State,
		"stage", snap.Stage,
		"reason", snap.Reason)
}

func (c *Coordinator) persist(sess *Session) {
	if err := c.store.SaveSession(context.Background(), sess.snapshot()); err != nil {
		logging.Warn("coordinator: failed to checkpoint session", "session", sess.id, "error", err)
	}
}

func (c *Coordinator) claim(sess *Session) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if other, ok := c.busy[sess.notebookID]; ok && other != sess.id {
		return fmt.Errorf("%w: %s", ErrNotebookBusy, other)
	}
	if n := c.regenerating[sess.notebookID]; n > 0 {
		return fmt.Errorf("%w: %d regenerations in flight", ErrNotebookBusy, n)
	}
	c.busy[sess.notebookID] = sess.id
	c.sessions[sess.id] = sess
	return nil
}

func (c *Coordinator) release(sess *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy[sess.notebookID] == sess.id {
		delete(c.busy, sess.notebookID)
	}
}

// claimRegeneration marks a regeneration in flight on notebookID so no
// session starts on it meanwhile. Regenerations do not exclude each other;
// the cell store settles their races. The returned func releases the claim.
func (c *Coordinator) claimRegeneration(notebookID string) (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id, ok := c.busy[notebookID]; ok {
		return nil, fmt.Errorf("%w: %s", ErrNotebookBusy, id)
	}
	c.regenerating[notebookID]++
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.regenerating[notebookID]--
		if c.regenerating[notebookID] <= 0 {
			delete(c.regenerating, notebookID)
		}
	}, nil
}

func (c *Coordinator) session(id string) (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sess, ok := c.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrSessionNotFound)
	}
	return sess, nil
}

func (c *Coordinator) agentAt(stage int) string {
	if stage < 0 || stage >= len(c.agents) {
		return ""
	}
	return c.agents[stage].Role().String()
}
