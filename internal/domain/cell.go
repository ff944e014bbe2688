package domain

import (
	"fmt"
	"time"
)

// CellType is the closed set of artifact kinds a notebook can hold.
type CellType string

const (
	CellProblemAnalysis          CellType = "problem_analysis"
	CellIndividualRepresentation CellType = "individual_representation"
	CellFitness                  CellType = "fitness"
	CellCrossover                CellType = "crossover"
	CellMutation                 CellType = "mutation"
	CellSelection                CellType = "selection"
	CellToolboxRegistration      CellType = "toolbox_registration"
	CellEvaluation               CellType = "evaluation"
	CellCustom                   CellType = "custom"
)

var cellTypes = []CellType{
	CellProblemAnalysis,
	CellIndividualRepresentation,
	CellFitness,
	CellCrossover,
	CellMutation,
	CellSelection,
	CellToolboxRegistration,
	CellEvaluation,
	CellCustom,
}

// CellTypes returns every known cell type.
func CellTypes() []CellType {
	out := make([]CellType, len(cellTypes))
	copy(out, cellTypes)
	return out
}

// ParseCellType parses a string into a CellType.
func ParseCellType(s string) (CellType, error) {
	for _, t := range cellTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown cell type %q", s)
}

// Cell is one version of a generated code artifact.
type Cell struct {
	ID         string    `json:"id"`
	NotebookID string    `json:"notebook_id"`
	Type       CellType  `json:"cell_type"`
	Code       string    `json:"code"`
	AgentID    string    `json:"agent_id"`
	Version    int       `json:"version"`
	Position   int       `json:"position"`
	Active     bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
}
