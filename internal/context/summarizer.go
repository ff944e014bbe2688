package context

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/client"
	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/domain"
)

const summarizationPrompt = `Summarize these DEAP code cells so later agents can stay consistent with them.

KEEP:
1. Names of functions, classes and toolbox registrations
2. The individual encoding and its length/bounds
3. Fitness weights and the optimization direction
4. Operator parameters (probabilities, tournament size, eta, sigma)

DO NOT include full code bodies or explanations.

Format: one bullet per cell, starting with the cell type.

CELLS TO SUMMARIZE:
%s

SUMMARY:`

// SummaryRole is the role hint sent with summarization requests.
const SummaryRole = "summarizer"

// Summarizer compresses older cells into a ContextSummary.
type Summarizer struct {
	gateway   client.Gateway
	budget    Budgeter
	maxTokens int
	now       func() time.Time
}

// NewSummarizer creates a new summarizer.
func NewSummarizer(g client.Gateway, b Budgeter) *Summarizer {
	return &Summarizer{
		gateway:   g,
		budget:    b,
		maxTokens: 400,
		now:       time.Now,
	}
}

// NeedsSummary reports whether the cells together exceed trigger tokens.
// A trigger of zero disables summarization.
func (s *Summarizer) NeedsSummary(cells []domain.Cell, trigger int) bool {
	if trigger <= 0 || len(cells) < 2 {
		return false
	}
	total := 0
	for _, c := range cells {
		total += s.budget.Estimate(c.Code)
	}
	return total > trigger
}

// Summarize digests cells into a new current summary for notebookID.
// The caller persists it and demotes the previous one.
func (s *Summarizer) Summarize(ctx context.Context, notebookID string, cells []domain.Cell) (*domain.ContextSummary, error) {
	if len(cells) == 0 {
		return nil, fmt.Errorf("summarize: no cells")
	}

	var b strings.Builder
	from, to := cells[0].CreatedAt, cells[0].CreatedAt
	for _, c := range cells {
		fmt.Fprintf(&b, "[%s] v%d by %s:\n%s\n\n", c.Type, c.Version, c.AgentID, c.Code)
		if c.CreatedAt.Before(from) {
			from = c.CreatedAt
		}
		if c.CreatedAt.After(to) {
			to = c.CreatedAt
		}
	}

	comp, err := s.gateway.Complete(ctx, client.Request{
		System:    "You compress generated evolutionary-algorithm code into short technical notes.",
		Prompt:    fmt.Sprintf(summarizationPrompt, strings.TrimSpace(b.String())),
		Role:      SummaryRole,
		MaxTokens: s.maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("summarization request failed: %w", err)
	}

	text := strings.TrimSpace(comp.Text)
	if text == "" {
		return nil, fmt.Errorf("summarization returned empty text")
	}

	return &domain.ContextSummary{
		ID:         uuid.NewString(),
		NotebookID: notebookID,
		Summary:    text,
		From:       from,
		To:         to,
		TokenCount: s.budget.Estimate(text),
		Current:    true,
		CreatedAt:  s.now().UTC(),
	}, nil
}
