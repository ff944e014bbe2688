package agent

import (
	"fmt"

	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/domain"
)

var individualsModelling = definition{
	role:      RoleIndividualsModelling,
	name:      "Individuals Modelling",
	cellType:  domain.CellIndividualRepresentation,
	position:  2,
	maxTokens: 800,
	instructions: func(in Input) string {
		return fmt.Sprintf(`Based on the problem analysis, generate DEAP individual representation code.

Problem type: %s
Objectives:
%s

Generate Python code that:
1. Defines individual representation (list, tree, etc.)
2. Creates initialization function
3. Registers individual creation in toolbox
4. Handles problem-specific constraints

Focus on the individual structure and initialization only.`, in.Problem.Type, bulletList(in.Problem.Objectives))
	},
	contract: contract{
		describe: `defines an individual initialization function or registers "individual" on a toolbox`,
		required: requires(individualRe),
	},
}
