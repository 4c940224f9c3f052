package optimizer

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/raykavin/zepix/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// RandomSearch samples parameter sets uniformly inside their ranges
type RandomSearch struct {
	config *Config
	rng    *rand.Rand
}

// NewRandomSearch creates a new random search optimizer
func NewRandomSearch(config *Config) (*RandomSearch, error) {
	return NewRandomSearchWithSeed(config, time.Now().UnixNano())
}

// NewRandomSearchWithSeed creates a random search with a fixed seed, so runs can be repeated
func NewRandomSearchWithSeed(config *Config, seed int64) (*RandomSearch, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := config.validate(); err != nil {
		return nil, err
	}

	return &RandomSearch{
		config: config,
		rng:    rand.New(rand.NewSource(seed)),
	}, nil
}

// Optimize evaluates MaxIterations random parameter sets and returns the best
func (r *RandomSearch) Optimize(ctx context.Context, evaluator Evaluator, targetMetric MetricName,
	maximize bool) ([]*Result, error) {

	if evaluator == nil {
		return nil, fmt.Errorf("evaluator cannot be nil")
	}

	sets := make([]ParameterSet, r.config.MaxIterations)
	for i := range sets {
		sets[i] = r.sample()
	}

	logf(r.config.Logger, "starting random search with %d iterations", len(sets))

	results, err := evaluate(ctx, evaluator, sets, r.config.Parallelism, r.config.Logger)
	if err != nil {
		return nil, err
	}

	sortResults(results, targetMetric, maximize)
	return top(results, r.config.TopN), nil
}

func (r *RandomSearch) sample() ParameterSet {
	set := make(ParameterSet, len(r.config.Parameters))
	for _, param := range r.config.Parameters {
		value := param.Min
		if param.Max > param.Min {
			value = param.Min + r.rng.Float64()*(param.Max-param.Min)
		}
		set[param.Name] = roundValue(param, value)
	}
	return set
}

// evaluate runs every parameter set with at most parallelism evaluations in flight. The first
// error cancels the rest.
func evaluate(ctx context.Context, evaluator Evaluator, sets []ParameterSet, parallelism int,
	log logger.Logger) ([]*Result, error) {

	if parallelism < 1 {
		parallelism = 1
	}

	var (
		mu      sync.Mutex
		results = make([]*Result, 0, len(sets))
	)

	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(parallelism)

	for i, params := range sets {
		group.Go(func() error {
			result, err := evaluator.Evaluate(ctx, params)
			if err != nil {
				return fmt.Errorf("evaluation error: %w", err)
			}

			mu.Lock()
			results = append(results, result)
			mu.Unlock()

			logf(log, "completed evaluation %d/%d", i+1, len(sets))
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// logf logs a message if a logger is configured
func logf(log logger.Logger, format string, args ...any) {
	if log != nil {
		log.Infof(format, args...)
	}
}
