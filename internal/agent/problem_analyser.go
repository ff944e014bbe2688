package agent

import (
	"fmt"

	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/domain"
)

var problemAnalyser = definition{
	role:      RoleProblemAnalyser,
	name:      "Problem Analyser",
	cellType:  domain.CellProblemAnalysis,
	position:  1,
	maxTokens: 1000,
	instructions: func(in Input) string {
		return fmt.Sprintf(`Analyze this %s problem and generate DEAP setup code.

Optimization direction: %s

Generate Python code that:
1. Imports necessary DEAP modules
2. Defines the problem structure
3. Sets up creator for Individual and Fitness (negative weights to minimize, positive to maximize)
4. Documents the problem characteristics`, in.Problem.Type, in.Problem.OptimizationDirection())
	},
	contract: contract{
		describe: "calls creator.create for the Fitness and Individual classes",
		required: requires(creatorRe),
	},
}
