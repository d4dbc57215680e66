// Package core hosts the fitting service: it installs residual function
// families from a registry against one fitting problem and evaluates them
// together for trial parameter vectors.
package core

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"thermofit/pkg/residualapi"
)

var (
	// ErrAlreadyInstalled is returned when a family is installed twice.
	ErrAlreadyInstalled = errors.New("core: residual function already installed")
	// ErrNothingInstalled is returned when evaluating with no family installed.
	ErrNothingInstalled = errors.New("core: no residual function installed")
)

// Service evaluates every installed residual family for one fitting problem.
type Service struct {
	base      residualapi.Config
	registry  *residualapi.Registry
	logger    Logger
	metrics   MetricsRecorder
	tracer    Tracer
	now       func() time.Time
	symbols   []string
	installed []installed
}

type installed struct {
	name string
	fn   residualapi.ResidualFunction
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger. It is also handed to residual
// functions that have none configured.
func WithLogger(l Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetricsRecorder sets the operation metrics sink.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithTracer sets the operation tracer.
func WithTracer(t Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithRegistry replaces residualapi.DefaultRegistry.
func WithRegistry(r *residualapi.Registry) Option {
	return func(s *Service) {
		if r != nil {
			s.registry = r
		}
	}
}

// WithClock overrides the time source used for operation timings.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService binds the service to one fitting problem.
func NewService(base residualapi.Config, opts ...Option) (*Service, error) {
	if err := base.Validate(); err != nil {
		return nil, err
	}
	s := &Service{
		base:     base,
		registry: residualapi.DefaultRegistry,
		logger:   noopLogger{},
		metrics:  noopMetricsRecorder{},
		tracer:   noopTracer{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.base.Logger == nil {
		s.base.Logger = s.logger
	}
	if s.base.Metrics == nil {
		if m, ok := s.metrics.(residualapi.Metrics); ok {
			s.base.Metrics = m
		}
	}
	s.symbols = append([]string(nil), base.SymbolsToFit...)
	if len(s.symbols) == 0 {
		s.symbols = base.Database.SymbolsToFit()
	}
	s.base.SymbolsToFit = s.symbols
	return s, nil
}

// Symbols returns the parameter names every installed family is ordered by.
func (s *Service) Symbols() []string { return append([]string(nil), s.symbols...) }

// Install constructs the named family from the registry.
func (s *Service) Install(name string) error {
	for _, inst := range s.installed {
		if inst.name == name {
			return fmt.Errorf("%w: %s", ErrAlreadyInstalled, name)
		}
	}
	fn, err := s.registry.New(name, s.base)
	if err != nil {
		return err
	}
	s.installed = append(s.installed, installed{name: name, fn: fn})
	s.logger.Info("residual function installed", "name", name, "symbols", len(s.symbols))
	return nil
}

// InstallAll installs every registered family.
func (s *Service) InstallAll() error {
	for _, name := range s.registry.Names() {
		if err := s.Install(name); err != nil {
			return err
		}
	}
	return nil
}

// Installed returns the installed family names, sorted.
func (s *Service) Installed() []string {
	out := make([]string, 0, len(s.installed))
	for _, inst := range s.installed {
		out = append(out, inst.name)
	}
	sort.Strings(out)
	return out
}

func (s *Service) observe(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, op)
	start := s.now()
	err := fn(ctx)
	s.metrics.Observe(ctx, op, err == nil, s.now().Sub(start))
	span.End(err)
	if err != nil {
		s.logger.Error("operation failed", "operation", op, "error", err)
	}
	return err
}

// FamilyResiduals holds one family's raw residuals.
type FamilyResiduals struct {
	Name      string
	Residuals []float64
	Weights   []float64
}

// Residuals evaluates every installed family in installation order.
func (s *Service) Residuals(ctx context.Context, params []float64) ([]FamilyResiduals, error) {
	if len(s.installed) == 0 {
		return nil, ErrNothingInstalled
	}
	out := make([]FamilyResiduals, 0, len(s.installed))
	for _, inst := range s.installed {
		err := s.observe(ctx, "residuals:"+inst.name, func(ctx context.Context) error {
			res, w, err := inst.fn.Residuals(ctx, params)
			if err != nil {
				return fmt.Errorf("%s residuals: %w", inst.name, err)
			}
			out = append(out, FamilyResiduals{Name: inst.name, Residuals: res, Weights: w})
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Likelihood sums the log-likelihood and gradient of every installed family.
// Any non-finite family total collapses the sum to (-Inf, zero gradient).
func (s *Service) Likelihood(ctx context.Context, params []float64) (float64, []float64, error) {
	if len(s.installed) == 0 {
		return 0, nil, ErrNothingInstalled
	}
	var total float64
	grad := make([]float64, len(params))
	for _, inst := range s.installed {
		err := s.observe(ctx, "likelihood:"+inst.name, func(ctx context.Context) error {
			l, g, err := inst.fn.Likelihood(ctx, params)
			if err != nil {
				return fmt.Errorf("%s likelihood: %w", inst.name, err)
			}
			if math.IsInf(l, -1) {
				if nf, ok := s.metrics.(interface{ ObserveNonFinite(string) }); ok {
					nf.ObserveNonFinite(inst.name)
				}
				s.logger.Warn("non-finite likelihood", "residual", inst.name)
			}
			total += l
			for i := range grad {
				if i < len(g) {
					grad[i] += g[i]
				}
			}
			return nil
		})
		if err != nil {
			return 0, nil, err
		}
	}
	if math.IsNaN(total) || math.IsInf(total, 0) {
		return math.Inf(-1), make([]float64, len(params)), nil
	}
	return total, grad, nil
}
