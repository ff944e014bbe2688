package agent

import (
	"fmt"
	"strings"

	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/domain"
)

// ParseError means the model answered but the answer did not contain code of
// the expected shape. Raw holds the full answer.
type ParseError struct {
	Role   Role
	Reason string
	Raw    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: unusable model output: %s", e.Role, e.Reason)
}

// MissingDependencyError means integration was requested before every
// upstream stage had an active cell.
type MissingDependencyError struct {
	Missing []domain.CellType
}

func (e *MissingDependencyError) Error() string {
	names := make([]string, len(e.Missing))
	for i, ct := range e.Missing {
		names[i] = string(ct)
	}
	return "missing upstream cells: " + strings.Join(names, ", ")
}
