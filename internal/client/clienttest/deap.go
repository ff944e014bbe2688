package clienttest

import (
	"fmt"

	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/client"
)

var deapCode = map[string]string{
	"problem_analyser": `from deap import base, creator, tools, algorithms
import random

creator.create("FitnessMin", base.Fitness, weights=(-1.0,))
creator.create("Individual", list, fitness=creator.FitnessMin)`,

	"individuals_modelling": `def create_individual(n=20):
    route = list(range(n))
    random.shuffle(route)
    return creator.Individual(route)`,

	"fitness_function": `def evaluate(individual):
    distance = sum(abs(a - b) for a, b in zip(individual, individual[1:]))
    return (distance,)`,

	"crossover_function": `def crossover(ind1, ind2):
    return tools.cxOrdered(ind1, ind2)`,

	"mutation_function": `def mutate(individual, indpb=0.05):
    return tools.mutShuffleIndexes(individual, indpb)`,

	"selection_strategy": `def select(population, k):
    return tools.selTournament(population, k, tournsize=3)`,

	"code_integration": `toolbox = base.Toolbox()
toolbox.register("individual", create_individual)
toolbox.register("population", tools.initRepeat, list, toolbox.individual)
toolbox.register("evaluate", evaluate)
toolbox.register("mate", crossover)
toolbox.register("mutate", mutate)
toolbox.register("select", select)`,

	"summarizer": `- representation: permutation of city indices
- fitness: total travel distance, minimized`,
}

// Code returns the canned DEAP snippet for a role.
func Code(role string) string {
	return deapCode[role]
}

// DEAP answers each role with a fenced python block that satisfies its output contract.
func DEAP(_ int, req client.Request) (string, error) {
	code, ok := deapCode[req.Role]
	if !ok {
		return "", fmt.Errorf("clienttest: no canned answer for role %q", req.Role)
	}
	if req.Role == "summarizer" {
		return code, nil
	}
	return fmt.Sprintf("Here is the %s code.\n\n```python\n%s\n```\n", req.Role, code), nil
}

// Unparseable answers every call with prose and no code.
func Unparseable(_ int, req client.Request) (string, error) {
	return "I am not sure how to write this yet.", nil
}
