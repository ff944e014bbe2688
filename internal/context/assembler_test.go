package context

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/domain"
)

func testProblem() *domain.ProblemSpec {
	return &domain.ProblemSpec{
		Title:       "Delivery routing",
		Description: "Plan a single vehicle tour over 20 customer sites.",
		Type:        domain.ProblemOptimization,
		Objectives:  []string{"minimize travel distance"},
		Constraints: map[string]any{"vehicles": 1, "sites": 20},
	}
}

var pipelineTypes = []domain.CellType{
	domain.CellProblemAnalysis,
	domain.CellIndividualRepresentation,
	domain.CellFitness,
	domain.CellCrossover,
	domain.CellMutation,
	domain.CellSelection,
}

func bigCells(n, lines int) []domain.Cell {
	cells := make([]domain.Cell, n)
	for i := 0; i < n; i++ {
		var b strings.Builder
		for l := 0; l < lines; l++ {
			fmt.Fprintf(&b, "value_%d_%d = compute_step(individual[%d], weight=%d)\n", i, l, l, i)
		}
		cells[i] = domain.Cell{
			Type:     pipelineTypes[i],
			AgentID:  fmt.Sprintf("agent_%d", i),
			Code:     b.String(),
			Version:  1,
			Position: i + 1,
			Active:   true,
		}
	}
	return cells
}

func estimateLayout(b Budgeter, l layout) int {
	return b.Estimate(l.render())
}

func TestAssembleFitsWithoutTruncation(t *testing.T) {
	a := NewAssembler(NewHeuristicBudgeter())
	cells := bigCells(3, 2)
	summary := &domain.ContextSummary{Summary: "- earlier stages"}

	out, err := a.Assemble(Input{Problem: testProblem(), Cells: cells, Summary: summary, Ceiling: 10000})
	require.NoError(t, err)
	assert.False(t, out.Truncated)
	assert.False(t, out.Summarized)
	assert.Empty(t, out.Dropped)
	assert.NotContains(t, out.Text, "SUMMARY OF EARLIER STAGES")

	assert.True(t, strings.HasPrefix(out.Text, RenderProblem(testProblem())))
	prev := -1
	for _, c := range cells {
		idx := strings.Index(out.Text, "["+string(c.Type)+"]")
		require.GreaterOrEqual(t, idx, 0)
		assert.Greater(t, idx, prev, "cells keep pipeline order")
		prev = idx
	}
}

func TestAssembleIsDeterministic(t *testing.T) {
	a := NewAssembler(NewHeuristicBudgeter())
	in := Input{
		Problem: testProblem(),
		Cells:   bigCells(6, 30),
		Summary: &domain.ContextSummary{Summary: "- permutation encoding\n- minimize distance"},
		Ceiling: 900,
	}
	first, err := a.Assemble(in)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		again, err := NewAssembler(NewHeuristicBudgeter()).Assemble(in)
		require.NoError(t, err)
		assert.Equal(t, first.Text, again.Text)
	}
}

func TestAssembleSubstitutesSummaryForOldestCells(t *testing.T) {
	b := NewHeuristicBudgeter()
	a := NewAssembler(b)
	cells := bigCells(5, 30)
	summary := &domain.ContextSummary{Summary: "- permutation of sites\n- fitness is tour length"}

	want := layout{problem: RenderProblem(testProblem()), summary: summary.Summary, cells: cells[4:], lastTrunc: -1}
	ceiling := estimateLayout(b, want) + 10

	out, err := a.Assemble(Input{Problem: testProblem(), Cells: cells, Summary: summary, Ceiling: ceiling})
	require.NoError(t, err)
	assert.True(t, out.Truncated)
	assert.True(t, out.Summarized)
	assert.Equal(t, []domain.CellType{
		domain.CellProblemAnalysis,
		domain.CellIndividualRepresentation,
		domain.CellFitness,
		domain.CellCrossover,
	}, out.Dropped)
	assert.Contains(t, out.Text, summary.Summary)
	assert.Contains(t, out.Text, cells[4].Code, "preceding stage kept whole")
	assert.LessOrEqual(t, out.Tokens, ceiling)
}

func TestAssembleDropsOldestWithoutSummary(t *testing.T) {
	b := NewHeuristicBudgeter()
	a := NewAssembler(b)
	cells := bigCells(5, 30)

	want := layout{problem: RenderProblem(testProblem()), cells: cells[3:], lastTrunc: -1}
	ceiling := estimateLayout(b, want) + 5

	out, err := a.Assemble(Input{Problem: testProblem(), Cells: cells, Ceiling: ceiling})
	require.NoError(t, err)
	assert.True(t, out.Truncated)
	assert.False(t, out.Summarized)
	assert.Len(t, out.Dropped, 3)
	assert.Contains(t, out.Text, cells[3].Code)
	assert.Contains(t, out.Text, cells[4].Code)
	assert.LessOrEqual(t, out.Tokens, ceiling)
}

func TestAssembleTruncatesPrecedingStageLast(t *testing.T) {
	b := NewHeuristicBudgeter()
	a := NewAssembler(b)
	cells := bigCells(3, 200)

	minimal := layout{problem: RenderProblem(testProblem()), cells: cells[2:], lastTrunc: 0}
	ceiling := estimateLayout(b, minimal) + 40

	out, err := a.Assemble(Input{
		Problem: testProblem(),
		Cells:   cells,
		Summary: &domain.ContextSummary{Summary: strings.Repeat("- detail\n", 200)},
		Ceiling: ceiling,
	})
	require.NoError(t, err)
	assert.True(t, out.Truncated)
	assert.False(t, out.Summarized, "summary dropped before the preceding stage is cut")
	assert.Contains(t, out.Text, truncationMarker)
	assert.Contains(t, out.Text, "["+string(cells[2].Type)+"]")
	assert.Contains(t, out.Text, RenderProblem(testProblem()))
	assert.LessOrEqual(t, out.Tokens, ceiling)
}

func TestAssembleCeilingBelowProblem(t *testing.T) {
	a := NewAssembler(NewHeuristicBudgeter())
	_, err := a.Assemble(Input{Problem: testProblem(), Cells: bigCells(1, 5), Ceiling: 5})
	assert.ErrorIs(t, err, ErrBudgetTooSmall)

	_, err = a.Assemble(Input{Problem: testProblem(), Ceiling: 5})
	assert.ErrorIs(t, err, ErrBudgetTooSmall)
}

func TestAssembleRequiresProblem(t *testing.T) {
	_, err := NewAssembler(NewHeuristicBudgeter()).Assemble(Input{Ceiling: 100})
	assert.Error(t, err)
}

func TestAssembleTruncationProperty(t *testing.T) {
	b := NewHeuristicBudgeter()
	a := NewAssembler(b)
	rng := rand.New(rand.NewSource(7))
	problemText := RenderProblem(testProblem())

	for i := 0; i < 50; i++ {
		cells := bigCells(1+rng.Intn(6), 5+rng.Intn(60))
		var summary *domain.ContextSummary
		if rng.Intn(2) == 0 {
			summary = &domain.ContextSummary{Summary: "- short digest"}
		}

		raw := estimateLayout(b, layout{problem: problemText, cells: cells, lastTrunc: -1})
		floor := estimateLayout(b, layout{problem: problemText, cells: cells[len(cells)-1:], lastTrunc: 0})
		if raw <= floor {
			continue
		}
		ceiling := floor + rng.Intn(raw-floor)

		out, err := a.Assemble(Input{Problem: testProblem(), Cells: cells, Summary: summary, Ceiling: ceiling})
		require.NoError(t, err)
		assert.True(t, out.Truncated)
		assert.LessOrEqual(t, out.Tokens, ceiling)
		assert.Contains(t, out.Text, problemText)
		assert.Contains(t, out.Text, "["+string(cells[len(cells)-1].Type)+"]")
	}
}

func TestRenderProblemSortsConstraints(t *testing.T) {
	text := RenderProblem(testProblem())
	assert.Less(t, strings.Index(text, "- sites: 20"), strings.Index(text, "- vehicles: 1"))
	assert.Contains(t, text, "1. minimize travel distance")
}
