package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/domain"
)

// integrationRequires lists the cell types that must be active before integration runs.
var integrationRequires = []domain.CellType{
	domain.CellProblemAnalysis,
	domain.CellIndividualRepresentation,
	domain.CellFitness,
	domain.CellCrossover,
	domain.CellMutation,
	domain.CellSelection,
}

var codeIntegration = definition{
	role:      RoleCodeIntegration,
	name:      "Code Integration and Validation",
	cellType:  domain.CellToolboxRegistration,
	position:  7,
	maxTokens: 1200,
	instructions: func(in Input) string {
		var b strings.Builder
		b.WriteString("Create DEAP toolbox registration code that integrates all the generated functions.\n\n")
		b.WriteString("Names defined by earlier cells:\n")
		for _, c := range in.Upstream {
			syms := Symbols(c.Code)
			if len(syms) == 0 {
				fmt.Fprintf(&b, "- %s: (no named definitions)\n", c.Type)
				continue
			}
			fmt.Fprintf(&b, "- %s: %s\n", c.Type, strings.Join(syms, ", "))
		}
		b.WriteString(`
Generate code that:
1. Creates DEAP toolbox instance
2. Registers all the functions properly (evaluate, mate, mutate, select)
3. Sets up population creation
4. Adds any missing imports
5. Provides a complete working toolbox`)
		return b.String()
	},
	contract: contract{
		describe: "creates base.Toolbox() and registers the operators on it",
		required: requires(toolboxRe, registerRe),
	},
}

// integrationAgent refuses to call the gateway until every upstream stage
// has an active cell.
type integrationAgent struct {
	*llmAgent
}

func (a *integrationAgent) Run(ctx context.Context, in Input) (*Result, error) {
	if err := CheckDependencies(in.Upstream); err != nil {
		return nil, err
	}
	return a.llmAgent.Run(ctx, in)
}

// CheckDependencies returns a MissingDependencyError unless cells holds an
// active cell for every type integration depends on.
func CheckDependencies(cells []domain.Cell) error {
	have := make(map[domain.CellType]bool, len(cells))
	for _, c := range cells {
		if c.Active {
			have[c.Type] = true
		}
	}
	var missing []domain.CellType
	for _, ct := range integrationRequires {
		if !have[ct] {
			missing = append(missing, ct)
		}
	}
	if len(missing) > 0 {
		return &MissingDependencyError{Missing: missing}
	}
	return nil
}
