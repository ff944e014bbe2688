package render

import (
	"bytes"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/lipgloss"
)

// Highlighter colours python code and diffs. A disabled Highlighter returns
// its input unchanged.
type Highlighter struct {
	enabled   bool
	style     string
	formatter chroma.Formatter
}

// NewHighlighter creates a Highlighter with a chroma style such as
// "monokai" or "dracula".
func NewHighlighter(style string, enabled bool) *Highlighter {
	if style == "" {
		style = "monokai"
	}
	return &Highlighter{
		enabled:   enabled,
		style:     style,
		formatter: formatters.Get("terminal256"),
	}
}

// Python highlights python source.
func (h *Highlighter) Python(code string) string {
	if !h.enabled {
		return code
	}
	lexer := lexers.Get("python")
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	style := styles.Get(h.style)
	if style == nil {
		style = styles.Fallback
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code
	}
	var buf bytes.Buffer
	if err := h.formatter.Format(&buf, style, iterator); err != nil {
		return code
	}
	return buf.String()
}

var (
	addedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")).Bold(true)
	removedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)
	headerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#06B6D4")).Bold(true)
	contextStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF"))
)

// Diff colours a diff produced by CellDiff.
func (h *Highlighter) Diff(diff string) string {
	if !h.enabled {
		return diff
	}
	lines := strings.Split(diff, "\n")
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, "+++") || strings.HasPrefix(line, "---"):
			lines[i] = headerStyle.Render(line)
		case strings.HasPrefix(line, "+"):
			lines[i] = addedStyle.Render(line)
		case strings.HasPrefix(line, "-"):
			lines[i] = removedStyle.Render(line)
		default:
			lines[i] = contextStyle.Render(line)
		}
	}
	return strings.Join(lines, "\n")
}
