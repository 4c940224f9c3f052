// Package optimizer searches re-entry rules that perform best over recorded quotes.
package optimizer

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/raykavin/zepix/pkg/core"
	"github.com/raykavin/zepix/pkg/logger"
)

// Parameter is a re-entry rule that can be optimized
type Parameter struct {
	Name        string  // Settings key, e.g. recovery_fraction
	Description string  // What the parameter does
	Default     float64 // Value used when the parameter is not searched
	Min         float64 // Lower bound of the search range
	Max         float64 // Upper bound of the search range
	Step        float64 // Grid step, ignored by random search
	Integer     bool    // Values are rounded to whole numbers
}

// ParameterSet holds one value per parameter name
type ParameterSet map[string]float64

// Result represents the outcome of a single evaluation
type Result struct {
	Parameters ParameterSet           // The parameter values used
	Metrics    map[MetricName]float64 // Performance metrics
	Duration   time.Duration          // How long the evaluation took
}

// MetricName defines standard metric names for optimization
type MetricName string

const (
	// MetricProfit is the realized profit of every order
	MetricProfit MetricName = "profit"
	// MetricWinRate is the percentage of winning orders
	MetricWinRate MetricName = "win_rate"
	// MetricPayoff is the average win over the average loss
	MetricPayoff MetricName = "payoff"
	// MetricProfitFactor is gross profit over gross loss
	MetricProfitFactor MetricName = "profit_factor"
	// MetricSQN is the System Quality Number of the orders
	MetricSQN MetricName = "sqn"
	// MetricTradeCount is the number of closed orders
	MetricTradeCount MetricName = "trade_count"
	// MetricChainCount is the number of chains
	MetricChainCount MetricName = "chain_count"
	// MetricStoppedChains is the number of chains closed by a rule
	MetricStoppedChains MetricName = "stopped_chains"
)

// Evaluator scores a parameter set
type Evaluator interface {
	Evaluate(ctx context.Context, params ParameterSet) (*Result, error)
}

// Optimizer runs a search over the configured parameters
type Optimizer interface {
	Optimize(ctx context.Context, evaluator Evaluator, targetMetric MetricName, maximize bool) ([]*Result, error)
}

// Config holds configuration for the optimization process
type Config struct {
	Parameters    []Parameter
	MaxIterations int // Random search samples
	Parallelism   int // Concurrent evaluations
	Logger        logger.Logger
	TargetMetric  MetricName
	Maximize      bool
	TopN          int // Results kept, 0 keeps all
}

// NewConfig creates a default configuration
func NewConfig() *Config {
	return &Config{
		MaxIterations: 100,
		Parallelism:   1,
		TargetMetric:  MetricProfit,
		Maximize:      true,
		TopN:          5,
	}
}

// WithParameters adds parameters to the configuration
func (c *Config) WithParameters(params ...Parameter) *Config {
	c.Parameters = append(c.Parameters, params...)
	return c
}

// WithMaxIterations sets the maximum number of iterations
func (c *Config) WithMaxIterations(iterations int) *Config {
	c.MaxIterations = iterations
	return c
}

// WithParallelism sets the number of parallel evaluations
func (c *Config) WithParallelism(n int) *Config {
	c.Parallelism = n
	return c
}

// WithLogger sets the logger
func (c *Config) WithLogger(logger logger.Logger) *Config {
	c.Logger = logger
	return c
}

// WithTargetMetric sets the target metric to optimize
func (c *Config) WithTargetMetric(metric MetricName, maximize bool) *Config {
	c.TargetMetric = metric
	c.Maximize = maximize
	return c
}

// WithTopN sets the number of top results to return
func (c *Config) WithTopN(n int) *Config {
	c.TopN = n
	return c
}

func (c *Config) validate() error {
	if len(c.Parameters) == 0 {
		return fmt.Errorf("at least one parameter must be provided")
	}

	for _, param := range c.Parameters {
		if _, ok := setters[param.Name]; !ok {
			return fmt.Errorf("unknown parameter: %s", param.Name)
		}
		if param.Min > param.Max {
			return fmt.Errorf("parameter %s: min %g above max %g", param.Name, param.Min, param.Max)
		}
	}
	return nil
}

// setters map parameter names to the re-entry rule they change
var setters = map[string]func(*core.ReentrySettings, float64){
	"max_level":                func(s *core.ReentrySettings, v float64) { s.MaxLevel = int(math.Round(v)) },
	"recovery_fraction":        func(s *core.ReentrySettings, v float64) { s.RecoveryFraction = v },
	"sl_reduction_percent":     func(s *core.ReentrySettings, v float64) { s.SLReductionPercent = v },
	"min_sl_pips":              func(s *core.ReentrySettings, v float64) { s.MinSLPips = v },
	"continuation_offset_pips": func(s *core.ReentrySettings, v float64) { s.ContinuationOffsetPips = v },
	"lot_multiplier":           func(s *core.ReentrySettings, v float64) { s.LotMultiplier = v },
	"max_giveback_percent":     func(s *core.ReentrySettings, v float64) { s.MaxGivebackPercent = v },
}

// DefaultParameters returns search ranges for the main re-entry rules
func DefaultParameters() []Parameter {
	return []Parameter{
		{Name: "recovery_fraction", Description: "Retrace needed after SL", Default: 0.7, Min: 0.3, Max: 1, Step: 0.1},
		{Name: "sl_reduction_percent", Description: "SL reduction per level", Default: 30, Min: 0, Max: 60, Step: 10},
		{Name: "max_level", Description: "Highest chain level", Default: 5, Min: 1, Max: 8, Step: 1, Integer: true},
		{Name: "continuation_offset_pips", Description: "Pips beyond TP", Default: 5, Min: 0, Max: 20, Step: 5},
	}
}

// Apply returns the rules with every parameter of the set applied
func Apply(rules core.ReentrySettings, params ParameterSet) (core.ReentrySettings, error) {
	for name, value := range params {
		set, ok := setters[name]
		if !ok {
			return rules, fmt.Errorf("unknown parameter: %s", name)
		}
		set(&rules, value)
	}
	return rules, nil
}

// sortResults orders results by the target metric
func sortResults(results []*Result, metric MetricName, maximize bool) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i].Metrics[metric], results[j].Metrics[metric]
		if maximize {
			return a > b
		}
		return a < b
	})
}

// top keeps the first n results, all of them when n <= 0
func top(results []*Result, n int) []*Result {
	if n > 0 && n < len(results) {
		return results[:n]
	}
	return results
}

func roundValue(param Parameter, value float64) float64 {
	if param.Integer {
		return math.Round(value)
	}
	return math.Round(value*1e4) / 1e4
}
