package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/agent"
	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/client"
	evctx "github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/context"
	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/domain"
	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/logging"
	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/store"
)

type stageInput struct {
	notebookID string
	feedback   string

	// guarded writes go through Supersede with expectedVersion
	guarded         bool
	expectedVersion int
}

// attemptStats accumulates what one stage spent across its retries.
type attemptStats struct {
	tokens          int
	calls           int
	gatewayAttempts int
	parseRetries    int
}

func (s attemptStats) gatewayRetries() int {
	if n := s.gatewayAttempts - s.calls; n > 0 {
		return n
	}
	return 0
}

// runStage runs one agent against the notebook's current active cells,
// re-prompting on ParseError, and commits exactly one cell on success.
// Every outcome is appended to the audit trail.
func (c *Coordinator) runStage(ctx context.Context, sess *Session, a agent.Agent, in stageInput) (*domain.Cell, error) {
	start := time.Now()
	role := a.Role().String()
	log := logging.With("notebook", in.notebookID, "agent", role)

	run := &domain.AgentRun{
		NotebookID: in.notebookID,
		AgentID:    role,
		CellType:   a.CellType(),
		Metadata:   map[string]any{},
	}
	if sess != nil {
		run.SessionID = sess.id
	}

	var stats attemptStats
	fail := func(err error, raw string) (*domain.Cell, error) {
		run.Status = domain.RunFailed
		run.Error = err.Error()
		run.Output = raw
		c.record(ctx, sess, run, stats, start)
		log.Warn("coordinator: stage failed", "error", err)
		return nil, err
	}

	nb, err := c.store.GetNotebook(ctx, in.notebookID)
	if err != nil {
		return fail(err, "")
	}
	problem, err := c.store.GetProblemSpec(ctx, nb.ProblemID)
	if err != nil {
		return fail(fmt.Errorf("load problem: %w", err), "")
	}
	upstream, err := c.upstream(ctx, in.notebookID, a)
	if err != nil {
		return fail(fmt.Errorf("load upstream cells: %w", err), "")
	}

	asm, err := c.assembler.Assemble(evctx.Input{
		Problem: problem,
		Cells:   upstream,
		Summary: c.summaryFor(ctx, in.notebookID, upstream),
		Ceiling: c.cfg.MaxContextTokens,
	})
	if err != nil {
		return fail(err, "")
	}
	run.Metadata["context_tokens"] = asm.Tokens
	run.Metadata["truncated"] = asm.Truncated
	run.Metadata["summarized"] = asm.Summarized
	if asm.Truncated {
		dropped := make([]string, len(asm.Dropped))
		for i, ct := range asm.Dropped {
			dropped[i] = string(ct)
		}
		run.Metadata["dropped"] = dropped
		c.metrics.Truncated(role)
		log.Warn("coordinator: context truncated", "tokens", asm.Tokens, "ceiling", c.cfg.MaxContextTokens, "dropped", dropped)
	}

	agentIn := agent.Input{
		Context:  asm.Text,
		Problem:  problem,
		Upstream: upstream,
		Feedback: in.feedback,
	}

	var res *agent.Result
	for attempt := 0; ; attempt++ {
		var runErr error
		res, runErr = a.Run(ctx, agentIn)

		var merr *agent.MissingDependencyError
		switch {
		case errors.As(runErr, &merr):
		case res != nil:
			stats.calls++
			stats.gatewayAttempts += res.Attempts
			stats.tokens += res.TokenUsage
			run.Metadata["model"] = res.Model
		default:
			stats.calls++
			stats.gatewayAttempts += client.AttemptsFrom(runErr)
		}

		if runErr == nil {
			break
		}
		var perr *agent.ParseError
		if !errors.As(runErr, &perr) {
			return fail(runErr, "")
		}
		if attempt >= c.cfg.MaxParseRetries {
			return fail(fmt.Errorf("%w (after %d corrective retries)", runErr, stats.parseRetries), perr.Raw)
		}
		stats.parseRetries++
		agentIn.Retry = perr
		log.Warn("coordinator: unusable agent output, re-prompting", "reason", perr.Reason, "retry", stats.parseRetries)
	}

	newCell := store.NewCell{
		NotebookID: in.notebookID,
		Type:       a.CellType(),
		Code:       res.Code,
		AgentID:    role,
		Position:   a.Position(),
	}
	var cell *domain.Cell
	if in.guarded {
		cell, err = c.store.Supersede(ctx, newCell, in.expectedVersion)
	} else {
		cell, err = c.store.WriteNew(ctx, newCell)
	}
	if err != nil {
		return fail(fmt.Errorf("persist cell: %w", err), res.Code)
	}

	run.Status = domain.RunSucceeded
	run.CellID = cell.ID
	run.Output = res.Code
	run.Reasoning = res.Reasoning
	run.Metadata["cell_version"] = cell.Version
	run.Metadata["symbols"] = res.Symbols
	c.record(ctx, sess, run, stats, start)

	log.Info("coordinator: stage completed",
		"version", cell.Version,
		"tokens", stats.tokens,
		"gateway_retries", stats.gatewayRetries(),
		"parse_retries", stats.parseRetries,
		"duration", time.Since(start))
	return cell, nil
}

// record appends the audit row for a finished stage and updates counters.
func (c *Coordinator) record(ctx context.Context, sess *Session, run *domain.AgentRun, stats attemptStats, start time.Time) {
	ctx = context.WithoutCancel(ctx)

	run.TokenUsage = stats.tokens
	run.ExecutionTime = time.Since(start)
	run.Metadata["gateway_attempts"] = stats.gatewayAttempts
	run.Metadata["gateway_retries"] = stats.gatewayRetries()
	run.Metadata["parse_retries"] = stats.parseRetries

	if err := c.store.InsertAgentRun(ctx, run); err != nil {
		logging.Error("coordinator: failed to record agent run", "notebook", run.NotebookID, "agent", run.AgentID, "error", err)
	}

	if sess != nil {
		sess.addRetries(run.AgentID, stats.gatewayRetries()+stats.parseRetries)
	}
	c.metrics.Retry(run.AgentID, "gateway", stats.gatewayRetries())
	c.metrics.Retry(run.AgentID, "parse", stats.parseRetries)
	c.metrics.Stage(run.AgentID, run.Status == domain.RunSucceeded, run.ExecutionTime, run.TokenUsage)
}

// upstream returns the active cells of every stage before a, in pipeline order.
func (c *Coordinator) upstream(ctx context.Context, notebookID string, a agent.Agent) ([]domain.Cell, error) {
	active, err := c.store.ListActive(ctx, notebookID)
	if err != nil {
		return nil, err
	}
	byType := make(map[domain.CellType]domain.Cell, len(active))
	for _, cell := range active {
		byType[cell.Type] = cell
	}

	var out []domain.Cell
	for _, prev := range c.agents[:a.Role().Index()] {
		if cell, ok := byType[prev.CellType()]; ok {
			out = append(out, cell)
		}
	}
	return out, nil
}

// summaryFor returns the summary to offer the assembler, producing a new
// one when the upstream cells outgrow the trigger and the current summary
// does not cover them.
func (c *Coordinator) summaryFor(ctx context.Context, notebookID string, upstream []domain.Cell) *domain.ContextSummary {
	current, err := c.store.CurrentSummary(ctx, notebookID)
	if err != nil {
		logging.Warn("coordinator: failed to load summary", "notebook", notebookID, "error", err)
		current = nil
	}
	if !c.summarizer.NeedsSummary(upstream, c.cfg.SummaryTriggerTokens) {
		return current
	}

	older := upstream[:len(upstream)-1]
	if current != nil && covers(current, older) {
		return current
	}

	sum, err := c.summarizer.Summarize(ctx, notebookID, older)
	if err != nil {
		logging.Warn("coordinator: summarization failed", "notebook", notebookID, "error", err)
		return current
	}
	if err := c.store.SaveSummary(ctx, sum); err != nil {
		logging.Warn("coordinator: failed to save summary", "notebook", notebookID, "error", err)
		return current
	}
	c.metrics.Summarized()
	logging.Debug("coordinator: summarized older cells", "notebook", notebookID, "cells", len(older), "tokens", sum.TokenCount)
	return sum
}

func covers(sum *domain.ContextSummary, cells []domain.Cell) bool {
	for _, cell := range cells {
		if cell.CreatedAt.After(sum.To) {
			return false
		}
	}
	return true
}
