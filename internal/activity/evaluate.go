package activity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"thermofit/pkg/domain"
	"thermofit/pkg/equilibrium"
	"thermofit/pkg/residualapi"
)

// ErrMissingReference reports a dataset without reference conditions.
var ErrMissingReference = errors.New("activity: dataset has no reference state")

// evaluator runs the reference and per-sample oracle solves for a dataset.
type evaluator struct {
	family  string
	solver  equilibrium.Solver
	cache   *preparedCache
	workers int
	metrics residualapi.Metrics
}

func newEvaluator(family string, solver equilibrium.Solver, workers int, metrics residualapi.Metrics) (*evaluator, error) {
	if workers < 1 {
		workers = 1
	}
	e := &evaluator{family: family, solver: solver, workers: workers, metrics: metrics}
	if p, ok := solver.(equilibrium.Preparer); ok {
		cache, err := newPreparedCache(p, defaultCacheSize)
		if err != nil {
			return nil, err
		}
		e.cache = cache
	}
	return e, nil
}

// potential is a chemical potential and its sensitivity to every fitted symbol.
type potential struct {
	mu   float64
	grad []float64
}

func (e *evaluator) solve(ctx context.Context, components, phases []string, conds equilibrium.Conditions, params Parameters) (equilibrium.Result, error) {
	start := time.Now()
	var (
		res equilibrium.Result
		err error
	)
	if e.cache != nil {
		var prepared equilibrium.Prepared
		prepared, err = e.cache.get(ctx, components, phases)
		if err == nil {
			res, err = prepared.Solve(ctx, conds, params.Overrides())
		}
	} else {
		res, err = e.solver.Solve(ctx, equilibrium.Request{
			Components: components,
			Phases:     phases,
			Conditions: conds,
			Parameters: params.Overrides(),
		})
	}
	if e.metrics != nil {
		e.metrics.ObserveSolve(e.family, time.Since(start), err == nil)
	}
	if err != nil {
		var solveErr *equilibrium.SolveError
		if errors.As(err, &solveErr) {
			return nil, err
		}
		return nil, &equilibrium.SolveError{Components: components, Phases: phases, Conditions: conds, Err: err}
	}
	return res, nil
}

// query reads MU(component) and its derivative with respect to every fitted
// symbol in a single call.
func query(ctx context.Context, res equilibrium.Result, component string, params Parameters) (potential, error) {
	mu := equilibrium.MU(component)
	names := params.Names()
	props := make([]equilibrium.Property, 0, len(names)+1)
	props = append(props, mu)
	for _, name := range names {
		props = append(props, equilibrium.Derivative{Of: mu, With: name})
	}
	vals, err := res.Get(ctx, props...)
	if err != nil {
		return potential{}, fmt.Errorf("query %s: %w", mu, err)
	}
	if len(vals) != len(props) {
		return potential{}, fmt.Errorf("query %s: oracle returned %d values for %d properties", mu, len(vals), len(props))
	}
	return potential{mu: vals[0], grad: vals[1:]}, nil
}

// referenceConditions maps the reference state onto oracle conditions. Every
// entry must hold a single value.
func referenceConditions(ds domain.Dataset) (equilibrium.Conditions, error) {
	if ds.ReferenceState == nil || len(ds.ReferenceState.Conditions) == 0 {
		return nil, fmt.Errorf("dataset %s: %w", ds.ID, ErrMissingReference)
	}
	conds := equilibrium.Conditions{equilibrium.SystemSize: 1}
	for key, arr := range ds.ReferenceState.Conditions {
		v, err := equilibrium.ParseCondition(key)
		if err != nil {
			return nil, fmt.Errorf("dataset %s reference: %w", ds.ID, err)
		}
		f, ok := arr.Float()
		if !ok {
			return nil, &ShapeError{Dataset: ds.ID, Axis: "reference_state." + key, Shape: arr.Shape, Err: ErrShapeMismatch}
		}
		conds[v] = f
	}
	return conds, nil
}

// reference solves the reference state once and returns the baseline
// potential of the component of interest.
func (e *evaluator) reference(ctx context.Context, ds domain.Dataset, component string, phases []string, params Parameters) (potential, error) {
	conds, err := referenceConditions(ds)
	if err != nil {
		return potential{}, err
	}
	refPhases := ds.ReferenceState.Phases
	if len(refPhases) == 0 {
		refPhases = phases
	}
	res, err := e.solve(ctx, ds.SortedComponents(), refPhases, conds, params)
	if err != nil {
		return potential{}, fmt.Errorf("dataset %s reference: %w", ds.ID, err)
	}
	return query(ctx, res, component, params)
}

// samples solves every ravelled point on a bounded worker pool and returns the
// predicted potentials in sample order.
func (e *evaluator) samples(ctx context.Context, ds domain.Dataset, component string, phases []string, grid Ravelled, params Parameters) ([]potential, error) {
	out := make([]potential, grid.Len())
	components := ds.SortedComponents()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i := range out {
		g.Go(func() error {
			conds := grid.At(i)
			res, err := e.solve(gctx, components, phases, conds, params)
			if err != nil {
				return fmt.Errorf("dataset %s sample %d: %w", ds.ID, i, err)
			}
			p, err := query(gctx, res, component, params)
			if err != nil {
				return fmt.Errorf("dataset %s sample %d: %w", ds.ID, i, err)
			}
			out[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
