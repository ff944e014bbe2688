// Package clienttest provides a scripted Gateway for tests.
package clienttest

import (
	"context"
	"fmt"
	"sync"

	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/client"
)

// Responder produces the completion text for the n-th call (1-based).
type Responder func(call int, req client.Request) (string, error)

// Gateway is a deterministic client.Gateway driven by a Responder.
type Gateway struct {
	mu      sync.Mutex
	respond Responder
	calls   []client.Request

	// BeforeReturn, if set, runs after the response is produced and before
	// Complete returns. Tests use it to act while a call is in flight.
	BeforeReturn func(call int, req client.Request)
}

// New returns a Gateway that answers with r. A nil r answers every role with
// valid DEAP code.
func New(r Responder) *Gateway {
	if r == nil {
		r = DEAP
	}
	return &Gateway{respond: r}
}

// Name returns "scripted".
func (g *Gateway) Name() string { return "scripted" }

// Complete records req and returns the scripted answer.
func (g *Gateway) Complete(ctx context.Context, req client.Request) (*client.Completion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.mu.Lock()
	g.calls = append(g.calls, req)
	n := len(g.calls)
	g.mu.Unlock()

	text, err := g.respond(n, req)
	if g.BeforeReturn != nil {
		g.BeforeReturn(n, req)
	}
	if err != nil {
		return nil, err
	}

	prompt := (len(req.System) + len(req.Prompt)) / 4
	completion := len(text) / 4
	return &client.Completion{
		Text:             text,
		Model:            "scripted",
		PromptTokens:     prompt,
		CompletionTokens: completion,
		UsageTokens:      prompt + completion,
		Attempts:         1,
	}, nil
}

// Calls returns a copy of every request received so far.
func (g *Gateway) Calls() []client.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]client.Request, len(g.calls))
	copy(out, g.calls)
	return out
}

// CallCount returns the number of requests received.
func (g *Gateway) CallCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

// Roles returns the role hint of every request in order.
func (g *Gateway) Roles() []string {
	calls := g.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.Role
	}
	return out
}

// Transient is a retryable gateway error.
func Transient(msg string) error {
	return &client.GatewayError{Kind: client.KindTransient, Provider: "scripted", StatusCode: 503, Err: fmt.Errorf("%s", msg)}
}

// Fatal is a non-retryable gateway error.
func Fatal(msg string) error {
	return &client.GatewayError{Kind: client.KindFatal, Provider: "scripted", StatusCode: 401, Err: fmt.Errorf("%s", msg)}
}

// FailOn wraps r so that the listed call numbers return err instead.
func FailOn(r Responder, err error, calls ...int) Responder {
	fail := make(map[int]bool, len(calls))
	for _, c := range calls {
		fail[c] = true
	}
	return func(n int, req client.Request) (string, error) {
		if fail[n] {
			return "", err
		}
		return r(n, req)
	}
}
