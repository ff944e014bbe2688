package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/client"
	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/client/clienttest"
	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/domain"
)

func testProblem() *domain.ProblemSpec {
	return &domain.ProblemSpec{
		ID:          "p1",
		Title:       "TSP",
		Description: "Visit 20 cities once.",
		Type:        domain.ProblemRouting,
		Objectives:  []string{"minimize total distance"},
	}
}

func upstreamCells() []domain.Cell {
	var cells []domain.Cell
	for i, role := range Roles()[:6] {
		cells = append(cells, domain.Cell{
			Type:     definitions[role].cellType,
			Code:     clienttest.Code(string(role)),
			AgentID:  string(role),
			Version:  1,
			Position: i + 1,
			Active:   true,
		})
	}
	return cells
}

func TestDefinitionsCoverEveryRole(t *testing.T) {
	seen := make(map[domain.CellType]bool)
	for i, role := range Roles() {
		def, ok := definitions[role]
		require.True(t, ok, role)
		assert.Equal(t, role, def.role)
		assert.Equal(t, i+1, def.position)
		assert.NotEmpty(t, def.name)
		assert.Positive(t, def.maxTokens)
		assert.False(t, seen[def.cellType], "duplicate cell type %s", def.cellType)
		seen[def.cellType] = true

		got, err := RoleForCellType(def.cellType)
		require.NoError(t, err)
		assert.Equal(t, role, got)
	}

	_, err := RoleForCellType(domain.CellCustom)
	assert.Error(t, err)
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole("mutation_function")
	require.NoError(t, err)
	assert.Equal(t, RoleMutationFunction, r)
	assert.Equal(t, 4, r.Index())

	_, err = ParseRole("nope")
	assert.Error(t, err)
}

func TestPipelineOrder(t *testing.T) {
	agents := Pipeline(clienttest.New(nil))
	require.Len(t, agents, 7)
	for i, a := range agents {
		assert.Equal(t, Roles()[i], a.Role())
		assert.Equal(t, i+1, a.Position())
		assert.Contains(t, a.SystemPrompt(), a.Name())
	}
	assert.Equal(t, "Code Integration and Validation", agents[6].Name())
	assert.Equal(t, domain.CellToolboxRegistration, agents[6].CellType())
}

func TestRunSuccess(t *testing.T) {
	gw := clienttest.New(nil)
	a, err := New(RoleFitnessFunction, gw)
	require.NoError(t, err)

	res, err := a.Run(context.Background(), Input{
		Context: "PROBLEM DESCRIPTION:\nTSP",
		Problem: testProblem(),
	})
	require.NoError(t, err)

	assert.Equal(t, clienttest.Code("fitness_function"), res.Code)
	assert.Equal(t, []string{"evaluate"}, res.Symbols)
	assert.Equal(t, "Here is the fitness_function code.", res.Reasoning)
	assert.Positive(t, res.TokenUsage)
	assert.Equal(t, 1, res.Attempts)

	calls := gw.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "fitness_function", calls[0].Role)
	assert.Equal(t, 1000, calls[0].MaxTokens)
	assert.Contains(t, calls[0].Prompt, "minimize total distance")
	assert.Contains(t, calls[0].Prompt, "CONTEXT:\nPROBLEM DESCRIPTION:\nTSP")
	assert.NotContains(t, calls[0].Prompt, "USER FEEDBACK")
}

func TestRunPromptIncludesFeedbackAndCorrection(t *testing.T) {
	gw := clienttest.New(nil)
	a, err := New(RoleMutationFunction, gw)
	require.NoError(t, err)

	_, err = a.Run(context.Background(), Input{
		Problem:  testProblem(),
		Feedback: "use swap mutation",
		Retry:    &ParseError{Role: RoleMutationFunction, Reason: "no python code block found"},
	})
	require.NoError(t, err)

	prompt := gw.Calls()[0].Prompt
	assert.Contains(t, prompt, "USER FEEDBACK:\nuse swap mutation")
	assert.Contains(t, prompt, "CORRECTION:")
	assert.Contains(t, prompt, "no python code block found")
	assert.True(t, strings.Index(prompt, "USER FEEDBACK") < strings.Index(prompt, "CORRECTION"))
}

func TestRunParseError(t *testing.T) {
	gw := clienttest.New(clienttest.Unparseable)
	a, err := New(RoleCrossoverFunction, gw)
	require.NoError(t, err)

	res, err := a.Run(context.Background(), Input{Problem: testProblem()})
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, RoleCrossoverFunction, perr.Role)
	assert.Equal(t, "I am not sure how to write this yet.", perr.Raw)

	require.NotNil(t, res)
	assert.Empty(t, res.Code)
	assert.Positive(t, res.TokenUsage)
	assert.Equal(t, 1, gw.CallCount())
}

func TestRunContractViolation(t *testing.T) {
	gw := clienttest.New(func(int, client.Request) (string, error) {
		return "```python\nimport random\n```", nil
	})
	a, err := New(RoleProblemAnalyser, gw)
	require.NoError(t, err)

	_, err = a.Run(context.Background(), Input{Problem: testProblem()})
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, perr.Reason, "creator.create")
}

func TestRunGatewayError(t *testing.T) {
	gw := clienttest.New(clienttest.FailOn(clienttest.DEAP, clienttest.Fatal("bad key"), 1))
	a, err := New(RoleSelectionStrategy, gw)
	require.NoError(t, err)

	res, err := a.Run(context.Background(), Input{Problem: testProblem()})
	assert.Nil(t, res)
	assert.True(t, client.IsFatal(err))

	var perr *ParseError
	assert.False(t, errors.As(err, &perr))
}

func TestIntegrationRequiresUpstream(t *testing.T) {
	gw := clienttest.New(nil)
	a, err := New(RoleCodeIntegration, gw)
	require.NoError(t, err)

	cells := upstreamCells()
	cells[2].Active = false
	partial := append(cells[:4:4], cells[5])

	_, err = a.Run(context.Background(), Input{Problem: testProblem(), Upstream: partial})
	var merr *MissingDependencyError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, []domain.CellType{domain.CellFitness, domain.CellMutation}, merr.Missing)
	assert.Equal(t, 0, gw.CallCount())
}

func TestIntegrationListsUpstreamSymbols(t *testing.T) {
	gw := clienttest.New(nil)
	a, err := New(RoleCodeIntegration, gw)
	require.NoError(t, err)

	res, err := a.Run(context.Background(), Input{Problem: testProblem(), Upstream: upstreamCells()})
	require.NoError(t, err)
	assert.Contains(t, res.Symbols, "evaluate")

	prompt := gw.Calls()[0].Prompt
	assert.Contains(t, prompt, "- fitness: evaluate")
	assert.Contains(t, prompt, "- crossover: crossover")
	assert.Contains(t, prompt, "- problem_analysis: (no named definitions)")
}
