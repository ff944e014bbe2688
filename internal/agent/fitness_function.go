package agent

import (
	"fmt"

	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/domain"
)

var fitnessFunction = definition{
	role:      RoleFitnessFunction,
	name:      "Fitness Function",
	cellType:  domain.CellFitness,
	position:  3,
	maxTokens: 1000,
	instructions: func(in Input) string {
		return fmt.Sprintf(`Generate a DEAP-compatible fitness function for this problem.

Objectives (%s):
%s

The function should:
1. Take an individual as input
2. Evaluate the individual against every objective above
3. Return a tuple of fitness values, one per objective
4. Handle constraints appropriately (penalize infeasible individuals)`,
			in.Problem.OptimizationDirection(), bulletList(in.Problem.Objectives))
	},
	contract: contract{
		describe: "defines a function taking an individual and returning a tuple of fitness values",
		required: requires(anyDefRe, returnRe),
	},
}
