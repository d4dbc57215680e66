// Package residualapi exposes the stable contract between residual function
// families and the optimizer that drives them. A family registers a Factory
// under a well-known name; callers construct it once per fitting problem and
// evaluate it repeatedly with trial parameter vectors.
package residualapi

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"thermofit/pkg/domain"
	"thermofit/pkg/equilibrium"
	"thermofit/pkg/thermo"
)

// ResidualFunction turns a trial parameter vector into residuals and a
// Gaussian log-likelihood. Parameter values are ordered like the fit symbols
// fixed at construction. Implementations are safe for concurrent use.
type ResidualFunction interface {
	Residuals(ctx context.Context, params []float64) (residuals, weights []float64, err error)
	Likelihood(ctx context.Context, params []float64) (float64, []float64, error)
}

// Logger is the structured logging surface used by residual functions.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Metrics receives per-solve timings from residual functions.
type Metrics interface {
	ObserveSolve(family string, duration time.Duration, success bool)
}

// Config binds a residual function to one fitting problem.
type Config struct {
	Database *thermo.Database
	Datasets domain.DatasetSource
	Solver   equilibrium.Solver
	// Components restricts the active system. Empty means every database element.
	Components []string
	// SymbolsToFit fixes the parameter order. Empty means the database fit symbols.
	SymbolsToFit []string
	// Weights scales each family's standard deviation, keyed by output tag.
	Weights map[string]float64
	// Workers bounds concurrent equilibrium solves. Values below 1 mean 1.
	Workers int

	Logger         Logger
	Metrics        Metrics
	TracerProvider trace.TracerProvider
}

// Validate reports missing collaborators.
func (c Config) Validate() error {
	switch {
	case c.Database == nil:
		return fmt.Errorf("%w: database is required", ErrInvalidConfig)
	case c.Datasets == nil:
		return fmt.Errorf("%w: dataset source is required", ErrInvalidConfig)
	case c.Solver == nil:
		return fmt.Errorf("%w: equilibrium solver is required", ErrInvalidConfig)
	}
	return nil
}

// Factory constructs a residual function for a problem.
type Factory func(cfg Config) (ResidualFunction, error)

var (
	// ErrInvalidConfig reports an unusable Config.
	ErrInvalidConfig = errors.New("residualapi: invalid config")
	// ErrUnknownResidual reports a name with no registered factory.
	ErrUnknownResidual = errors.New("residualapi: unknown residual function")
	// ErrDuplicateResidual reports a second registration under the same name.
	ErrDuplicateResidual = errors.New("residualapi: residual function already registered")
)

// Registry maps residual family names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry is where families register themselves from package init.
var DefaultRegistry = NewRegistry()

// Register adds a factory under name.
func (r *Registry) Register(name string, factory Factory) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("residual function name is required")
	}
	if factory == nil {
		return fmt.Errorf("residual function %s: factory is nil", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateResidual, name)
	}
	r.factories[name] = factory
	return nil
}

// MustRegister is Register for package init blocks.
func (r *Registry) MustRegister(name string, factory Factory) {
	if err := r.Register(name, factory); err != nil {
		panic(err)
	}
}

// Names returns registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for name := range r.factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// New constructs the named residual function.
func (r *Registry) New(name string, cfg Config) (ResidualFunction, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownResidual, name)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	fn, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("construct %s: %w", name, err)
	}
	return fn, nil
}
