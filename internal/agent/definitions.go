package agent

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/domain"
)

// definition is the role-specific half of an agent.
type definition struct {
	role         Role
	name         string
	cellType     domain.CellType
	position     int
	maxTokens    int
	instructions func(in Input) string
	contract     contract
}

var definitions = map[Role]*definition{
	RoleProblemAnalyser:      &problemAnalyser,
	RoleIndividualsModelling: &individualsModelling,
	RoleFitnessFunction:      &fitnessFunction,
	RoleCrossoverFunction:    &crossoverFunction,
	RoleMutationFunction:     &mutationFunction,
	RoleSelectionStrategy:    &selectionStrategy,
	RoleCodeIntegration:      &codeIntegration,
}

func (d *definition) systemPrompt() string {
	return fmt.Sprintf("You are a %s agent for evolutionary algorithms using DEAP framework.\n"+
		"Generate Python code that follows DEAP conventions and best practices.\n"+
		"Focus on writing clean, functional code that addresses the specific requirements.", d.name)
}

func (d *definition) prompt(in Input) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(d.instructions(in)))

	if in.Context != "" {
		b.WriteString("\n\nCONTEXT:\n")
		b.WriteString(in.Context)
	}
	if fb := strings.TrimSpace(in.Feedback); fb != "" {
		b.WriteString("\n\nUSER FEEDBACK:\n")
		b.WriteString(fb)
	}
	if in.Retry != nil {
		fmt.Fprintf(&b, "\n\nCORRECTION:\nYour previous answer could not be used (%s). "+
			"Reply again with the complete code in one ```python fenced block.", in.Retry.Reason)
	}

	b.WriteString("\n\nReturn only the Python code with comments, in a single ```python fenced block.")
	return b.String()
}

func bulletList(items []string) string {
	if len(items) == 0 {
		return "(none given)"
	}
	return "- " + strings.Join(items, "\n- ")
}

func requires(exprs ...*regexp.Regexp) []*regexp.Regexp {
	return exprs
}
