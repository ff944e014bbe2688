package render

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/domain"
)

// Diff is a line diff between two versions of a cell.
type Diff struct {
	Text    string
	Added   int
	Removed int
}

// CellDiff compares two versions of the same cell line by line.
func CellDiff(from, to *domain.Cell) Diff {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(from.Code, to.Code)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var out Diff
	var sb strings.Builder
	fmt.Fprintf(&sb, "--- %s v%d (%s)\n", from.Type, from.Version, from.AgentID)
	fmt.Fprintf(&sb, "+++ %s v%d (%s)\n", to.Type, to.Version, to.AgentID)

	for _, d := range diffs {
		text := strings.TrimSuffix(d.Text, "\n")
		for _, line := range strings.Split(text, "\n") {
			switch d.Type {
			case diffmatchpatch.DiffEqual:
				sb.WriteString(" " + line + "\n")
			case diffmatchpatch.DiffDelete:
				sb.WriteString("-" + line + "\n")
				out.Removed++
			case diffmatchpatch.DiffInsert:
				sb.WriteString("+" + line + "\n")
				out.Added++
			}
		}
	}
	out.Text = strings.TrimSuffix(sb.String(), "\n")
	return out
}
