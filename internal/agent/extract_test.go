package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractCode(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		code      string
		reasoning string
		ok        bool
	}{
		{
			name:      "fenced python",
			text:      "Setup first.\n```python\nimport random\n```\nDone.",
			code:      "import random",
			reasoning: "Setup first.\n\nDone.",
			ok:        true,
		},
		{
			name: "bare fence",
			text: "```\ndef f(x):\n    return x\n```",
			code: "def f(x):\n    return x",
			ok:   true,
		},
		{
			name:      "multiple blocks joined",
			text:      "```python\nimport random\n```\nthen\n```py\ndef f():\n    pass\n```",
			code:      "import random\n\ndef f():\n    pass",
			reasoning: "then",
			ok:        true,
		},
		{
			name: "unfenced python",
			text: "  def evaluate(ind):\n    return (sum(ind),)\n",
			code: "def evaluate(ind):\n    return (sum(ind),)",
			ok:   true,
		},
		{
			name:      "prose only",
			text:      "I cannot help with that.",
			reasoning: "I cannot help with that.",
		},
		{
			name:      "empty fence",
			text:      "Nothing:\n```python\n\n```",
			reasoning: "Nothing:",
		},
		{name: "empty answer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, reasoning, ok := ExtractCode(tt.text)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.code, code)
			assert.Equal(t, tt.reasoning, reasoning)
		})
	}
}

func TestSymbols(t *testing.T) {
	code := `class Route(list):
    pass

def evaluate(ind):
    def inner():
        pass
    return (1,)

toolbox.register("mate", crossover)
toolbox.register('select', select)
def evaluate(ind): pass`

	assert.Equal(t, []string{"Route", "evaluate", "mate", "select"}, Symbols(code))
	assert.Empty(t, Symbols("x = 1"))
}

func TestContracts(t *testing.T) {
	tests := []struct {
		role Role
		good string
		bad  string
	}{
		{RoleProblemAnalyser, `creator.create("FitnessMax", base.Fitness, weights=(1.0,))`, "import random"},
		{RoleIndividualsModelling, `toolbox.register("individual", tools.initRepeat, creator.Individual, toolbox.attr, 10)`, "x = 1"},
		{RoleFitnessFunction, "def evaluate(ind):\n    return (sum(ind),)", "def evaluate(ind):\n    pass"},
		{RoleCrossoverFunction, "def mate(a, b):\n    return a, b", "def mate(a):\n    return a"},
		{RoleMutationFunction, "def mutate(ind):\n    return ind,", "mutate = None"},
		{RoleSelectionStrategy, "select = tools.selBest", "select = None"},
		{RoleCodeIntegration, "toolbox = base.Toolbox()\ntoolbox.register(\"evaluate\", evaluate)", "toolbox = base.Toolbox()"},
	}

	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			def := definitions[tt.role]
			require.NotNil(t, def)

			_, ok := def.contract.check(tt.good)
			assert.True(t, ok)

			reason, ok := def.contract.check(tt.bad)
			assert.False(t, ok)
			assert.Contains(t, reason, def.contract.describe)
		})
	}
}
