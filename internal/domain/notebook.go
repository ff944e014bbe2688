package domain

import "time"

// NotebookStatus is the lifecycle status of a notebook.
type NotebookStatus string

const (
	NotebookDraft     NotebookStatus = "draft"
	NotebookEvolving  NotebookStatus = "evolving"
	NotebookCompleted NotebookStatus = "completed"
	NotebookArchived  NotebookStatus = "archived"
)

// Notebook groups the cells of one evolving solution.
type Notebook struct {
	ID        string         `json:"id"`
	ProblemID string         `json:"problem_id"`
	Name      string         `json:"name"`
	Status    NotebookStatus `json:"status"`
	Toolbox   map[string]any `json:"toolbox,omitempty"` // DEAP toolbox settings
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// DefaultToolbox returns the toolbox settings a new notebook starts with.
func DefaultToolbox() map[string]any {
	return map[string]any{
		"population_size":       100,
		"generations":           50,
		"crossover_probability": 0.7,
		"mutation_probability":  0.2,
	}
}
