package agent

import "github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/domain"

var crossoverFunction = definition{
	role:      RoleCrossoverFunction,
	name:      "Crossover Function",
	cellType:  domain.CellCrossover,
	position:  4,
	maxTokens: 800,
	instructions: func(Input) string {
		return `Generate a DEAP-compatible crossover function consistent with the individual encoding in the context.

The function should:
1. Take two parent individuals as input
2. Create offspring through recombination
3. Maintain individual structure integrity
4. Return modified individuals`
	},
	contract: contract{
		describe: "defines a function taking two parent individuals",
		required: requires(twoArgDefRe),
	},
}
