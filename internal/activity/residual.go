// Package activity implements the activity residual family: measured
// chemical activities are converted into chemical potentials relative to a
// per-dataset reference state and compared against the equilibrium model.
package activity

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"thermofit/pkg/domain"
	"thermofit/pkg/residualapi"
	"thermofit/pkg/thermo"
)

// Name is the registry name of the activity residual family.
const Name = "activity"

const tracerName = "thermofit/internal/activity"

func init() {
	residualapi.DefaultRegistry.MustRegister(Name, func(cfg residualapi.Config) (residualapi.ResidualFunction, error) {
		r, err := New(cfg)
		if err != nil {
			return nil, err
		}
		return r, nil
	})
}

var _ residualapi.ResidualFunction = (*Residual)(nil)

// Residual is the activity residual function bound to one fitting problem.
// It holds no per-call state.
type Residual struct {
	db         *thermo.Database
	source     domain.DatasetSource
	components []string
	phases     []string
	symbols    []string
	dataWeight float64
	eval       *evaluator
	logger     residualapi.Logger
	tracer     trace.Tracer
}

// New binds the activity residual to a database, dataset source and oracle.
func New(cfg residualapi.Config) (*Residual, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	dataWeight := 1.0
	if w, ok := cfg.Weights[OutputTag]; ok {
		dataWeight = w
	}

	components := make([]string, 0, len(cfg.Components))
	for _, c := range cfg.Components {
		components = append(components, strings.ToUpper(c))
	}
	if len(components) == 0 {
		components = append(components, cfg.Database.Elements...)
	}
	sort.Strings(components)

	symbols := append([]string(nil), cfg.SymbolsToFit...)
	if len(symbols) == 0 {
		symbols = cfg.Database.SymbolsToFit()
	}

	eval, err := newEvaluator(Name, cfg.Solver, cfg.Workers, cfg.Metrics)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	tp := cfg.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Residual{
		db:         cfg.Database,
		source:     cfg.Datasets,
		components: components,
		phases:     cfg.Database.FilterPhases(components, nil),
		symbols:    symbols,
		dataWeight: dataWeight,
		eval:       eval,
		logger:     logger,
		tracer:     tp.Tracer(tracerName),
	}, nil
}

// Symbols returns the fitted symbol order.
func (r *Residual) Symbols() []string { return append([]string(nil), r.symbols...) }

// Components returns the active components.
func (r *Residual) Components() []string { return append([]string(nil), r.components...) }

// Phases returns the active phases.
func (r *Residual) Phases() []string { return append([]string(nil), r.phases...) }

// DataWeight is the family scale factor applied to every weight.
func (r *Residual) DataWeight() float64 { return r.dataWeight }

// Residuals returns per-sample residuals and weights in dataset and sample order.
func (r *Residual) Residuals(ctx context.Context, values []float64) ([]float64, []float64, error) {
	ctx, span := r.tracer.Start(ctx, "activity.Residuals")
	defer span.End()
	res, err := r.compute(ctx, values)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, nil, err
	}
	span.SetAttributes(attribute.Int("activity.samples", res.Len()))
	return res.Values, res.Weights, nil
}

// Likelihood returns the Gaussian log-likelihood of the residuals and its
// gradient with respect to the fitted symbols.
func (r *Residual) Likelihood(ctx context.Context, values []float64) (float64, []float64, error) {
	ctx, span := r.tracer.Start(ctx, "activity.Likelihood")
	defer span.End()
	res, err := r.compute(ctx, values)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, nil, err
	}
	likelihood, grad := Aggregate(res.Values, res.Weights, res.Rows(), len(r.symbols))
	span.SetAttributes(
		attribute.Int("activity.datasets", len(res.Gradients)),
		attribute.Int("activity.samples", res.Len()),
	)
	if math.IsInf(likelihood, -1) {
		r.logger.Debug("activity likelihood is not finite", "samples", res.Len())
	}
	return likelihood, grad, nil
}

func (r *Residual) compute(ctx context.Context, values []float64) (Residuals, error) {
	params, err := NewParameters(r.symbols, values)
	if err != nil {
		return Residuals{}, err
	}
	datasets, err := SelectDatasets(ctx, r.source, r.components)
	if err != nil {
		return Residuals{}, err
	}
	var out Residuals
	for _, ds := range datasets {
		if err := r.addDataset(ctx, &out, ds, params); err != nil {
			return Residuals{}, err
		}
	}
	return out, nil
}

func (r *Residual) addDataset(ctx context.Context, out *Residuals, ds domain.Dataset, params Parameters) error {
	component, err := ComponentOfInterest(ds.Output)
	if err != nil {
		return fmt.Errorf("dataset %s: %w", ds.ID, err)
	}
	grid, err := Ravel(ds)
	if err != nil {
		return err
	}
	phases := r.db.FilterPhases(ds.SortedComponents(), r.phases)
	ref, err := r.eval.reference(ctx, ds, component, phases, params)
	if err != nil {
		return err
	}
	predicted, err := r.eval.samples(ctx, ds, component, phases, grid, params)
	if err != nil {
		return err
	}
	activities := ds.Values.Data
	targets := TargetPotentials(activities, grid.T, ref.mu)
	start := out.Len()
	out.add(predicted, targets, ref, Weight(r.dataWeight, ds))
	r.logger.Debug("activity residuals",
		"dataset", ds.ID,
		"activities", activities,
		"residuals", out.Values[start:],
		"reference", ds.Reference,
	)
	return nil
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
