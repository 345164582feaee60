// Package optimizer searches a strategy parameter space by replaying a full
// simulated session per combination and ranking the results by a performance
// metric.
package optimizer

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/raykavin/intrabot/core"
)

// ParamType identifies how a parameter's candidate values are generated.
type ParamType string

const (
	TypeInt         ParamType = "int"
	TypeFloat       ParamType = "float"
	TypeBool        ParamType = "bool"
	TypeCategorical ParamType = "categorical"
)

// Metric names the evaluator always reports.
const (
	MetricProfit       = "profit"
	MetricWinRate      = "win_rate"
	MetricPayoff       = "payoff"
	MetricProfitFactor = "profit_factor"
	MetricSQN          = "sqn"
	MetricTradeCount   = "trades"
	MetricTicks        = "ticks"
)

// Parameter describes one axis of the search space. Min, Max and Step apply
// to int and float parameters; Options applies to categorical ones.
type Parameter struct {
	Name    string
	Type    ParamType
	Min     any
	Max     any
	Step    any
	Options []any
}

// ParameterSet is one concrete point of the search space, keyed by parameter
// name. The values feed straight into the strategy's configuration params.
type ParameterSet map[string]any

// Result holds the outcome of evaluating one parameter set.
type Result struct {
	Params   ParameterSet
	Metrics  map[string]float64
	Duration time.Duration
}

// Evaluator scores one parameter set. Implementations must be safe for
// concurrent calls when the search runs with parallelism above one.
type Evaluator interface {
	Evaluate(ctx context.Context, params ParameterSet) (*Result, error)
}

// Config drives a search run.
type Config struct {
	Parameters    []Parameter
	MaxIterations int
	Parallelism   int
	Log           core.Logger
}

// NewConfig returns a sequential search capped at 100 combinations.
func NewConfig() *Config {
	return &Config{MaxIterations: 100, Parallelism: 1}
}

// WithParameters appends search axes.
func (c *Config) WithParameters(params ...Parameter) *Config {
	c.Parameters = append(c.Parameters, params...)
	return c
}

// WithMaxIterations caps the number of evaluated combinations.
func (c *Config) WithMaxIterations(n int) *Config {
	c.MaxIterations = n
	return c
}

// WithParallelism sets the number of concurrent session evaluations.
func (c *Config) WithParallelism(n int) *Config {
	c.Parallelism = n
	return c
}

// WithLogger sets the search progress logger.
func (c *Config) WithLogger(log core.Logger) *Config {
	c.Log = log
	return c
}

// ValidateParameterSet checks a set against the parameter definitions it was
// generated from: every axis present, every value of the declared type.
func ValidateParameterSet(params ParameterSet, definitions []Parameter) error {
	for _, def := range definitions {
		value, exists := params[def.Name]
		if !exists {
			return fmt.Errorf("missing parameter %q", def.Name)
		}

		switch def.Type {
		case TypeInt:
			if _, ok := value.(int); !ok {
				return fmt.Errorf("parameter %q must be an integer", def.Name)
			}
		case TypeFloat:
			if _, ok := value.(float64); !ok {
				return fmt.Errorf("parameter %q must be a float", def.Name)
			}
		case TypeBool:
			if _, ok := value.(bool); !ok {
				return fmt.Errorf("parameter %q must be a boolean", def.Name)
			}
		case TypeCategorical:
			found := false
			for _, option := range def.Options {
				if option == value {
					found = true
					break
				}
			}
			if !found {
				return fmt.Errorf("parameter %q has a value outside its options", def.Name)
			}
		}
	}
	return nil
}

// sortResults orders results by one metric, best first. Missing metrics sort
// as zero.
func sortResults(results []*Result, metric string, maximize bool) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i].Metrics[metric], results[j].Metrics[metric]
		if maximize {
			return a > b
		}
		return a < b
	})
}
