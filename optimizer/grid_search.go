package optimizer

import (
	"context"
	"fmt"
	"sync"

	"github.com/raykavin/intrabot/core"
)

// GridSearch evaluates the cartesian product of every parameter's candidate
// values.
type GridSearch struct {
	parameters    []Parameter
	maxIterations int
	parallelism   int
	log           core.Logger
}

// NewGridSearch validates the configuration and builds the search.
func NewGridSearch(cfg *Config) (*GridSearch, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if len(cfg.Parameters) == 0 {
		return nil, fmt.Errorf("at least one parameter must be provided")
	}

	parallelism := cfg.Parallelism
	if parallelism < 1 {
		parallelism = 1
	}

	return &GridSearch{
		parameters:    cfg.Parameters,
		maxIterations: cfg.MaxIterations,
		parallelism:   parallelism,
		log:           cfg.Log,
	}, nil
}

// Optimize evaluates every combination and returns the results ordered by the
// target metric, best first.
func (g *GridSearch) Optimize(ctx context.Context, evaluator Evaluator, targetMetric string, maximize bool) ([]*Result, error) {
	if evaluator == nil {
		return nil, fmt.Errorf("evaluator cannot be nil")
	}

	sets, err := g.generateParameterSets()
	if err != nil {
		return nil, err
	}
	if g.maxIterations > 0 && len(sets) > g.maxIterations {
		g.logf("limiting parameter combinations from %d to %d", len(sets), g.maxIterations)
		sets = sets[:g.maxIterations]
	}

	g.logf("starting grid search over %d combinations", len(sets))

	results, err := g.runEvaluations(ctx, evaluator, sets)
	if err != nil {
		return nil, err
	}

	sortResults(results, targetMetric, maximize)
	return results, nil
}

// generateParameterSets expands the axes into their cartesian product.
func (g *GridSearch) generateParameterSets() ([]ParameterSet, error) {
	sets := []ParameterSet{make(ParameterSet)}

	for _, param := range g.parameters {
		values, err := generateValues(param)
		if err != nil {
			return nil, err
		}

		expanded := make([]ParameterSet, 0, len(sets)*len(values))
		for _, set := range sets {
			for _, value := range values {
				next := make(ParameterSet, len(set)+1)
				for k, v := range set {
					next[k] = v
				}
				next[param.Name] = value
				expanded = append(expanded, next)
			}
		}
		sets = expanded
	}

	return sets, nil
}

func generateValues(param Parameter) ([]any, error) {
	switch param.Type {
	case TypeInt:
		return intValues(param)
	case TypeFloat:
		return floatValues(param)
	case TypeBool:
		return []any{true, false}, nil
	case TypeCategorical:
		if len(param.Options) == 0 {
			return nil, fmt.Errorf("parameter %q of type %s must have options", param.Name, param.Type)
		}
		return param.Options, nil
	default:
		return nil, fmt.Errorf("unsupported parameter type: %s", param.Type)
	}
}

func intValues(param Parameter) ([]any, error) {
	min, ok := param.Min.(int)
	if !ok {
		return nil, fmt.Errorf("parameter %q min must be an integer", param.Name)
	}
	max, ok := param.Max.(int)
	if !ok {
		return nil, fmt.Errorf("parameter %q max must be an integer", param.Name)
	}
	step, ok := param.Step.(int)
	if !ok || step <= 0 {
		return nil, fmt.Errorf("parameter %q step must be a positive integer", param.Name)
	}

	var values []any
	for v := min; v <= max; v += step {
		values = append(values, v)
	}
	return values, nil
}

func floatValues(param Parameter) ([]any, error) {
	min, ok := param.Min.(float64)
	if !ok {
		return nil, fmt.Errorf("parameter %q min must be a float", param.Name)
	}
	max, ok := param.Max.(float64)
	if !ok {
		return nil, fmt.Errorf("parameter %q max must be a float", param.Name)
	}
	step, ok := param.Step.(float64)
	if !ok || step <= 0 {
		return nil, fmt.Errorf("parameter %q step must be a positive float", param.Name)
	}

	// Generate by index: accumulating v += step drifts and can drop the
	// endpoint (0.1..0.3 by 0.1 would stop at 0.2).
	var values []any
	for i := 0; ; i++ {
		v := min + float64(i)*step
		if v > max+step*1e-9 {
			break
		}
		values = append(values, v)
	}
	return values, nil
}

// runEvaluations scores every set, at most parallelism sessions at a time.
// The first evaluation error aborts the search.
func (g *GridSearch) runEvaluations(ctx context.Context, evaluator Evaluator, sets []ParameterSet) ([]*Result, error) {
	var (
		results   []*Result
		mutex     sync.Mutex
		wg        sync.WaitGroup
		errCh     = make(chan error, 1)
		semaphore = make(chan struct{}, g.parallelism)
	)

	for i, set := range sets {
		select {
		case <-ctx.Done():
			wg.Wait()
			return results, ctx.Err()
		case err := <-errCh:
			wg.Wait()
			return results, err
		default:
		}

		wg.Add(1)
		semaphore <- struct{}{}

		go func(index int, params ParameterSet) {
			defer wg.Done()
			defer func() { <-semaphore }()

			result, err := evaluator.Evaluate(ctx, params)
			if err != nil {
				select {
				case errCh <- fmt.Errorf("evaluation %d/%d: %w", index+1, len(sets), err):
				default:
				}
				return
			}

			mutex.Lock()
			results = append(results, result)
			mutex.Unlock()

			g.logf("completed evaluation %d/%d", index+1, len(sets))
		}(i, set)
	}

	wg.Wait()

	select {
	case err := <-errCh:
		return results, err
	default:
		return results, nil
	}
}

func (g *GridSearch) logf(format string, args ...any) {
	if g.log != nil {
		g.log.Infof(format, args...)
	}
}
