package optimizer

import (
	"context"
	"fmt"
)

// maxGridSize bounds the number of combinations a grid may expand to
const maxGridSize = 100000

// GridSearch evaluates every combination of parameter steps
type GridSearch struct {
	config *Config
}

// NewGridSearch creates a new grid search optimizer
func NewGridSearch(config *Config) (*GridSearch, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &GridSearch{config: config}, nil
}

// Optimize evaluates the whole grid and returns the best results
func (g *GridSearch) Optimize(ctx context.Context, evaluator Evaluator, targetMetric MetricName,
	maximize bool) ([]*Result, error) {

	if evaluator == nil {
		return nil, fmt.Errorf("evaluator cannot be nil")
	}

	sets, err := g.expand()
	if err != nil {
		return nil, err
	}

	logf(g.config.Logger, "starting grid search with %d combinations", len(sets))

	results, err := evaluate(ctx, evaluator, sets, g.config.Parallelism, g.config.Logger)
	if err != nil {
		return nil, err
	}

	sortResults(results, targetMetric, maximize)
	return top(results, g.config.TopN), nil
}

// expand builds the cartesian product of every parameter's values
func (g *GridSearch) expand() ([]ParameterSet, error) {
	sets := []ParameterSet{{}}

	for _, param := range g.config.Parameters {
		values := steps(param)
		if len(sets)*len(values) > maxGridSize {
			return nil, fmt.Errorf("grid exceeds %d combinations", maxGridSize)
		}

		next := make([]ParameterSet, 0, len(sets)*len(values))
		for _, set := range sets {
			for _, value := range values {
				combination := make(ParameterSet, len(set)+1)
				for name, v := range set {
					combination[name] = v
				}
				combination[param.Name] = value
				next = append(next, combination)
			}
		}
		sets = next
	}

	return sets, nil
}

// steps lists the grid values of a parameter from Min to Max inclusive
func steps(param Parameter) []float64 {
	if param.Step <= 0 || param.Max <= param.Min {
		return []float64{roundValue(param, param.Min)}
	}

	var values []float64
	for i := 0; ; i++ {
		value := param.Min + float64(i)*param.Step
		if value > param.Max+param.Step*1e-9 {
			break
		}
		values = append(values, roundValue(param, value))
	}
	return values
}
