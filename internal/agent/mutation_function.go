package agent

import "github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/domain"

var mutationFunction = definition{
	role:      RoleMutationFunction,
	name:      "Mutation Function",
	cellType:  domain.CellMutation,
	position:  5,
	maxTokens: 800,
	instructions: func(Input) string {
		return `Generate a DEAP-compatible mutation function consistent with the individual encoding in the context.

The function should:
1. Take an individual as input
2. Apply random modifications
3. Maintain solution feasibility
4. Return the modified individual as a tuple`
	},
	contract: contract{
		describe: "defines a function taking an individual and returning it as a tuple",
		required: requires(anyDefRe, returnRe),
	},
}
