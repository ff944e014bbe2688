// Package render formats notebooks, cell diffs and pipeline status for the terminal.
package render

import (
	"fmt"
	"strings"

	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/domain"
)

// CompleteCode joins the active cells of a notebook into one program, in
// the order given.
func CompleteCode(cells []domain.Cell) string {
	if len(cells) == 0 {
		return "# No code generated yet"
	}

	parts := []string{
		"# Complete DEAP Algorithm Generated by Multi-Agent System",
		"# " + strings.Repeat("=", 60),
		"",
	}
	for _, c := range cells {
		parts = append(parts,
			fmt.Sprintf("# %s - Generated by %s", strings.ToUpper(string(c.Type)), c.AgentID),
			"# "+strings.Repeat("-", 40),
			c.Code,
			"")
	}
	return strings.Join(parts, "\n")
}
