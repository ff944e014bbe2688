package agent

import (
	"fmt"
	"time"

	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/domain"
)

// Role identifies one stage of the generation pipeline.
// Adding a role means adding a constant here, a definition file and an
// entry in pipelineOrder.
type Role string

const (
	RoleProblemAnalyser      Role = "problem_analyser"
	RoleIndividualsModelling Role = "individuals_modelling"
	RoleFitnessFunction      Role = "fitness_function"
	RoleCrossoverFunction    Role = "crossover_function"
	RoleMutationFunction     Role = "mutation_function"
	RoleSelectionStrategy    Role = "selection_strategy"
	RoleCodeIntegration      Role = "code_integration"
)

var pipelineOrder = []Role{
	RoleProblemAnalyser,
	RoleIndividualsModelling,
	RoleFitnessFunction,
	RoleCrossoverFunction,
	RoleMutationFunction,
	RoleSelectionStrategy,
	RoleCodeIntegration,
}

// Roles returns all roles in execution order.
func Roles() []Role {
	out := make([]Role, len(pipelineOrder))
	copy(out, pipelineOrder)
	return out
}

// String returns the agent id.
func (r Role) String() string {
	return string(r)
}

// Index returns the zero-based stage index, or -1 for an unknown role.
func (r Role) Index() int {
	for i, role := range pipelineOrder {
		if role == r {
			return i
		}
	}
	return -1
}

// ParseRole parses an agent id into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if r.Index() < 0 {
		return "", fmt.Errorf("unknown agent %q", s)
	}
	return r, nil
}

// RoleForCellType returns the role that produces cellType.
func RoleForCellType(ct domain.CellType) (Role, error) {
	for _, r := range pipelineOrder {
		if definitions[r].cellType == ct {
			return r, nil
		}
	}
	return "", fmt.Errorf("no agent produces cell type %q", ct)
}

// Input is what one agent invocation sees.
type Input struct {
	Context  string              // assembled prompt context
	Problem  *domain.ProblemSpec // the originating problem
	Upstream []domain.Cell       // active cells of earlier stages
	Feedback string              // optional user feedback on regeneration
	Retry    *ParseError         // previous unusable answer, if retrying
}

// Result contains the outcome of one agent invocation.
type Result struct {
	Code       string        `json:"code"`
	Reasoning  string        `json:"reasoning,omitempty"`
	Symbols    []string      `json:"symbols,omitempty"` // top-level names the code defines
	TokenUsage int           `json:"token_usage"`
	Duration   time.Duration `json:"duration"`
	Attempts   int           `json:"attempts"` // gateway attempts, 1 without retries
	Model      string        `json:"model,omitempty"`
	Raw        string        `json:"-"`
}

// DurationMs returns the execution time in milliseconds.
func (r *Result) DurationMs() int64 {
	return r.Duration.Milliseconds()
}
