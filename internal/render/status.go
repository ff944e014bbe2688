package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/domain"
	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/pipeline"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
)

// AgentTable renders the per-stage status of a notebook, one row per agent.
func AgentTable(statuses []pipeline.AgentStatus) string {
	header := fmt.Sprintf("%-3s %-32s %-26s %-8s %s", "#", "AGENT", "CELL", "VERSION", "STATUS")

	var b strings.Builder
	b.WriteString(titleStyle.Render(header))
	for _, st := range statuses {
		version := "-"
		if st.Version > 0 {
			version = fmt.Sprintf("v%d", st.Version)
		}
		row := fmt.Sprintf("%-3d %-32s %-26s %-8s ", st.Position, st.Name, st.CellType, version)
		b.WriteString("\n" + row + stageState(st))
	}
	return b.String()
}

func stageState(st pipeline.AgentStatus) string {
	switch {
	case st.LastRun == domain.RunFailed:
		msg := "failed"
		if st.LastError != "" {
			msg += ": " + truncate(st.LastError, 60)
		}
		return errStyle.Render(msg)
	case st.Version == 0:
		return dimStyle.Render("pending")
	case st.Stale:
		return warnStyle.Render("stale")
	default:
		return okStyle.Render("ok")
	}
}

// SessionStatus renders a one-line summary of a pipeline session.
func SessionStatus(st pipeline.Status) string {
	var state string
	switch st.State {
	case domain.StateCompleted:
		state = okStyle.Render(string(st.State))
	case domain.StateFailed, domain.StateCancelled:
		state = errStyle.Render(string(st.State))
	default:
		state = warnStyle.Render(string(st.State))
	}

	line := fmt.Sprintf("session %s  notebook %s  %s  stage %d/7", st.SessionID, st.NotebookID, state, st.Stage)
	if st.Agent != "" {
		line += "  next " + st.Agent
	}
	if st.Reason != "" {
		line += "\n" + dimStyle.Render("reason: ") + st.Reason
	}
	return line
}

func truncate(s string, n int) string {
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-3]) + "..."
}
