package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/client"
	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/domain"
	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/logging"
)

// Agent turns assembled context into one cell's worth of code.
type Agent interface {
	Role() Role
	Name() string
	CellType() domain.CellType
	Position() int
	SystemPrompt() string

	// Run issues exactly one gateway completion. A *ParseError is returned
	// together with a non-nil Result carrying token usage and the raw answer.
	Run(ctx context.Context, in Input) (*Result, error)
}

// New returns the agent for role backed by gw.
func New(role Role, gw client.Gateway) (Agent, error) {
	def, ok := definitions[role]
	if !ok {
		return nil, fmt.Errorf("unknown agent %q", role)
	}
	base := &llmAgent{def: def, gateway: gw}
	if role == RoleCodeIntegration {
		return &integrationAgent{llmAgent: base}, nil
	}
	return base, nil
}

// Pipeline returns one agent per role in execution order.
func Pipeline(gw client.Gateway) []Agent {
	agents := make([]Agent, 0, len(pipelineOrder))
	for _, role := range pipelineOrder {
		a, _ := New(role, gw)
		agents = append(agents, a)
	}
	return agents
}

// Display returns the display name of role.
func Display(role Role) string {
	if def, ok := definitions[role]; ok {
		return def.name
	}
	return string(role)
}

type llmAgent struct {
	def     *definition
	gateway client.Gateway
}

func (a *llmAgent) Role() Role { return a.def.role }
func (a *llmAgent) Name() string { return a.def.name }
func (a *llmAgent) CellType() domain.CellType { return a.def.cellType }
func (a *llmAgent) Position() int { return a.def.position }
func (a *llmAgent) SystemPrompt() string { return a.def.systemPrompt() }

func (a *llmAgent) Run(ctx context.Context, in Input) (*Result, error) {
	if in.Problem == nil {
		return nil, fmt.Errorf("%s: no problem spec", a.def.role)
	}

	start := time.Now()
	resp, err := a.gateway.Complete(ctx, client.Request{
		System:    a.def.systemPrompt(),
		Prompt:    a.def.prompt(in),
		Role:      string(a.def.role),
		MaxTokens: a.def.maxTokens,
	})
	if err != nil {
		return nil, err
	}

	res := &Result{
		TokenUsage: resp.UsageTokens,
		Duration:   time.Since(start),
		Attempts:   resp.Attempts,
		Model:      resp.Model,
		Raw:        resp.Text,
	}

	code, reasoning, ok := ExtractCode(resp.Text)
	res.Reasoning = reasoning
	if !ok {
		logging.Debug("agent answer has no code", "agent", a.def.role, "chars", len(resp.Text))
		return res, &ParseError{Role: a.def.role, Reason: "no python code block found", Raw: resp.Text}
	}
	if reason, ok := a.def.contract.check(code); !ok {
		logging.Debug("agent answer fails output contract", "agent", a.def.role, "reason", reason)
		return res, &ParseError{Role: a.def.role, Reason: reason, Raw: resp.Text}
	}

	res.Code = code
	res.Symbols = Symbols(code)
	return res, nil
}
