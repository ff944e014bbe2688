package agent

import (
	"fmt"

	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/domain"
)

var selectionStrategy = definition{
	role:      RoleSelectionStrategy,
	name:      "Selection Strategy",
	cellType:  domain.CellSelection,
	position:  6,
	maxTokens: 800,
	instructions: func(in Input) string {
		return fmt.Sprintf(`Generate a DEAP-compatible selection function for this problem.

Optimization direction: %s

The function should:
1. Take a population and selection size as input
2. Select individuals based on fitness
3. Return the selected individuals
4. Use appropriate selection pressure`, in.Problem.OptimizationDirection())
	},
	contract: contract{
		describe: "defines a function taking a population and a selection size, or uses a tools.sel* operator",
		required: requires(selectionRe),
	},
}
