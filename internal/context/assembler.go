package context

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/domain"
)

// ErrBudgetTooSmall is returned when the problem description and the
// immediately preceding stage cannot fit in the ceiling even after truncation.
var ErrBudgetTooSmall = errors.New("context ceiling too small for problem description")

const truncationMarker = "\n# [...truncated to fit context budget...]"

// Input is everything the assembler may place in a prompt context.
type Input struct {
	Problem *domain.ProblemSpec
	Cells   []domain.Cell // active cells preceding the stage, in pipeline order
	Summary *domain.ContextSummary
	Ceiling int
}

// Assembled is the context block handed to an agent.
type Assembled struct {
	Text       string
	Tokens     int
	Truncated  bool
	Summarized bool              // summary substituted for older cells
	Dropped    []domain.CellType // cells left out, oldest first
}

// Assembler builds agent contexts under a token ceiling.
type Assembler struct {
	budget Budgeter
}

// NewAssembler creates an Assembler.
func NewAssembler(b Budgeter) *Assembler {
	return &Assembler{budget: b}
}

type layout struct {
	problem   string
	summary   string // empty when not included
	cells     []domain.Cell
	lastTrunc int // -1 keeps the last cell intact, otherwise body byte length
}

func (l layout) render() string {
	parts := []string{l.problem}
	if l.summary != "" {
		parts = append(parts, "SUMMARY OF EARLIER STAGES:\n"+l.summary)
	}
	for i, c := range l.cells {
		code := c.Code
		if i == len(l.cells)-1 && l.lastTrunc >= 0 {
			code = code[:l.lastTrunc] + truncationMarker
		}
		parts = append(parts, renderCell(c, code))
	}
	return strings.Join(parts, "\n\n")
}

// Assemble concatenates the problem, the summary when needed and the cells.
// Over the ceiling, the oldest cells are replaced by the summary, then dropped,
// then the summary is dropped, and finally the immediately preceding cell is
// cut short. The problem description and the preceding cell are never dropped.
func (a *Assembler) Assemble(in Input) (Assembled, error) {
	if in.Problem == nil {
		return Assembled{}, errors.New("assemble: problem spec is required")
	}

	l := layout{
		problem:   RenderProblem(in.Problem),
		cells:     append([]domain.Cell(nil), in.Cells...),
		lastTrunc: -1,
	}

	text := l.render()
	if tokens := a.budget.Estimate(text); tokens <= in.Ceiling {
		return Assembled{Text: text, Tokens: tokens}, nil
	}

	out := Assembled{Truncated: true}

	if in.Summary != nil && strings.TrimSpace(in.Summary.Summary) != "" {
		l.summary = in.Summary.Summary
		out.Summarized = true
	}

	// oldest non-summary entries go first; the preceding stage stays
	for len(l.cells) > 1 {
		if a.budget.Estimate(l.render()) <= in.Ceiling {
			break
		}
		out.Dropped = append(out.Dropped, l.cells[0].Type)
		l.cells = l.cells[1:]
	}

	if l.summary != "" && a.budget.Estimate(l.render()) > in.Ceiling {
		l.summary = ""
		out.Summarized = false
	}

	if len(l.cells) > 0 && a.budget.Estimate(l.render()) > in.Ceiling {
		if err := a.truncateLast(&l, in.Ceiling); err != nil {
			return Assembled{}, err
		}
	}

	out.Text = l.render()
	out.Tokens = a.budget.Estimate(out.Text)
	if out.Tokens > in.Ceiling {
		return Assembled{}, fmt.Errorf("%w: %d tokens over a ceiling of %d", ErrBudgetTooSmall, out.Tokens, in.Ceiling)
	}
	return out, nil
}

// truncateLast finds the longest prefix of the last cell that fits.
func (a *Assembler) truncateLast(l *layout, ceiling int) error {
	code := l.cells[len(l.cells)-1].Code

	l.lastTrunc = 0
	if a.budget.Estimate(l.render()) > ceiling {
		return fmt.Errorf("%w (ceiling %d)", ErrBudgetTooSmall, ceiling)
	}

	lo, hi := 0, len(code)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		l.lastTrunc = runeFloor(code, mid)
		if a.budget.Estimate(l.render()) <= ceiling {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	l.lastTrunc = runeFloor(code, lo)
	return nil
}

func runeFloor(s string, n int) int {
	for n > 0 && n < len(s) && !utf8.RuneStart(s[n]) {
		n--
	}
	return n
}

// RenderProblem formats a ProblemSpec. Constraint keys are sorted.
func RenderProblem(p *domain.ProblemSpec) string {
	var b strings.Builder
	b.WriteString("PROBLEM DESCRIPTION:\n")
	fmt.Fprintf(&b, "Title: %s\n", p.Title)
	fmt.Fprintf(&b, "Type: %s\n", p.Type)
	if p.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", strings.TrimSpace(p.Description))
	}
	if len(p.Objectives) > 0 {
		b.WriteString("Objectives:\n")
		for i, o := range p.Objectives {
			fmt.Fprintf(&b, "%d. %s\n", i+1, o)
		}
	}
	if len(p.Constraints) > 0 {
		keys := make([]string, 0, len(p.Constraints))
		for k := range p.Constraints {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("Constraints:\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %v\n", k, p.Constraints[k])
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderCell(c domain.Cell, code string) string {
	return fmt.Sprintf("[%s] generated by %s (v%d):\n%s", c.Type, c.AgentID, c.Version, code)
}
