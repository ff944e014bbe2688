package domain

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// ProblemType classifies the problem a notebook is solving.
type ProblemType string

const (
	ProblemOptimization   ProblemType = "optimization"
	ProblemScheduling     ProblemType = "scheduling"
	ProblemRouting        ProblemType = "routing"
	ProblemClassification ProblemType = "classification"
	ProblemRegression     ProblemType = "regression"
	ProblemOther          ProblemType = "other"
)

// ParseProblemType parses a string into a ProblemType.
func ParseProblemType(s string) (ProblemType, error) {
	switch t := ProblemType(strings.ToLower(strings.TrimSpace(s))); t {
	case ProblemOptimization, ProblemScheduling, ProblemRouting,
		ProblemClassification, ProblemRegression, ProblemOther:
		return t, nil
	default:
		return "", fmt.Errorf("unknown problem type %q", s)
	}
}

// ProblemSpec is the immutable natural-language description a pipeline starts from.
type ProblemSpec struct {
	ID          string         `yaml:"-" json:"id"`
	Title       string         `yaml:"title" json:"title" validate:"required"`
	Description string         `yaml:"description" json:"description"`
	Type        ProblemType    `yaml:"problem_type" json:"problem_type" validate:"required,oneof=optimization scheduling routing classification regression other"`
	Constraints map[string]any `yaml:"constraints,omitempty" json:"constraints,omitempty"`
	Objectives  []string       `yaml:"objectives,omitempty" json:"objectives,omitempty"`
	CreatedAt   time.Time      `yaml:"-" json:"created_at"`
}

// Validate checks required fields and the problem type.
func (p *ProblemSpec) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("invalid problem spec: %w", err)
	}
	return nil
}

// OptimizationDirection is "maximize" when any objective asks to maximize, else "minimize".
func (p *ProblemSpec) OptimizationDirection() string {
	for _, o := range p.Objectives {
		if strings.Contains(strings.ToLower(o), "maximize") {
			return "maximize"
		}
	}
	return "minimize"
}

// LoadProblemSpec reads a YAML problem file.
func LoadProblemSpec(path string) (*ProblemSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var p ProblemSpec
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse problem file %s: %w", path, err)
	}
	if p.Type == "" {
		p.Type = ProblemOptimization
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &p, nil
}
