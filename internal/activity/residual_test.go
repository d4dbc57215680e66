package activity

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thermofit/internal/equilibrium/regular"
	"thermofit/internal/infra/persistence/memory"
	"thermofit/pkg/domain"
	"thermofit/pkg/equilibrium"
	"thermofit/pkg/residualapi"
	"thermofit/pkg/thermo"
	"thermofit/testutil"
)

const (
	stubMuRef  = -5000.0
	stubMuPred = -9000.0
)

var (
	stubRefGrad  = map[string]float64{"VV0001": 0.2, "VV0002": 200}
	stubPredGrad = map[string]float64{"VV0001": 0.49, "VV0002": 490}
)

// stubOracle answers every reference solve (X(B)=0.01) with stubMuRef and
// every other solve with predict(conds).
type stubOracle struct {
	mu       sync.Mutex
	requests []equilibrium.Request
	predict  func(equilibrium.Conditions) float64
	delay    func(equilibrium.Conditions) time.Duration
	err      error
}

func (s *stubOracle) Solve(ctx context.Context, req equilibrium.Request) (equilibrium.Result, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()
	if s.delay != nil {
		time.Sleep(s.delay(req.Conditions))
	}
	if s.err != nil {
		return nil, s.err
	}
	if req.Conditions[equilibrium.MoleFraction("B")] == 0.01 {
		return stubResult{mu: stubMuRef, grad: stubRefGrad}, nil
	}
	mu := stubMuPred
	if s.predict != nil {
		mu = s.predict(req.Conditions)
	}
	return stubResult{mu: mu, grad: stubPredGrad}, nil
}

func (s *stubOracle) recorded() []equilibrium.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]equilibrium.Request(nil), s.requests...)
}

type stubResult struct {
	mu   float64
	grad map[string]float64
}

func (r stubResult) Get(_ context.Context, props ...equilibrium.Property) ([]float64, error) {
	out := make([]float64, len(props))
	for i, p := range props {
		switch q := p.(type) {
		case equilibrium.ChemicalPotential:
			out[i] = r.mu
		case equilibrium.Derivative:
			out[i] = r.grad[q.With]
		default:
			return nil, equilibrium.ErrUnsupportedProperty
		}
	}
	return out, nil
}

type solveCounter struct {
	mu    sync.Mutex
	calls int
	fails int
}

func (c *solveCounter) ObserveSolve(family string, _ time.Duration, success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if family != Name {
		return
	}
	c.calls++
	if !success {
		c.fails++
	}
}

func newStore(t *testing.T, datasets ...domain.Dataset) *memory.Store {
	t.Helper()
	store := memory.NewStore()
	_, err := store.Insert(context.Background(), datasets...)
	require.NoError(t, err)
	return store
}

func newResidual(t *testing.T, src domain.DatasetSource, solver equilibrium.Solver, mutate func(*residualapi.Config)) *Residual {
	t.Helper()
	cfg := residualapi.Config{
		Database: testutil.BinaryDatabase(),
		Datasets: src,
		Solver:   solver,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	r, err := New(cfg)
	require.NoError(t, err)
	return r
}

var zeroParams = []float64{-10000, 2}

func TestNewDefaults(t *testing.T) {
	r := newResidual(t, newStore(t), &stubOracle{}, nil)
	assert.Equal(t, []string{"A", "B", "C", "VA"}, r.Components())
	assert.Equal(t, []string{"C_PHASE", "FCC_A1", "LIQUID"}, r.Phases())
	assert.Equal(t, []string{"VV0001", "VV0002"}, r.Symbols())
	assert.Equal(t, 1.0, r.DataWeight())

	custom := newResidual(t, newStore(t), &stubOracle{}, func(cfg *residualapi.Config) {
		cfg.Components = []string{"b", "a"}
		cfg.SymbolsToFit = []string{"VV0002"}
		cfg.Weights = map[string]float64{"ACR": 4, "HM": 9}
	})
	assert.Equal(t, []string{"A", "B"}, custom.Components())
	assert.Equal(t, []string{"LIQUID"}, custom.Phases())
	assert.Equal(t, []string{"VV0002"}, custom.Symbols())
	assert.Equal(t, 4.0, custom.DataWeight())
}

func TestRegisteredInDefaultRegistry(t *testing.T) {
	assert.Contains(t, residualapi.DefaultRegistry.Names(), Name)
	fn, err := residualapi.DefaultRegistry.New(Name, residualapi.Config{
		Database: testutil.BinaryDatabase(),
		Datasets: newStore(t),
		Solver:   &stubOracle{},
	})
	require.NoError(t, err)
	l, g, err := fn.Likelihood(context.Background(), zeroParams)
	require.NoError(t, err)
	assert.Equal(t, 0.0, l)
	assert.Equal(t, []float64{0, 0}, g)
}

func TestNoDatasets(t *testing.T) {
	ctx := context.Background()
	other := testutil.ActivityDataset("hm")
	other.Output = "HM_MIX"
	outside := testutil.ActivityDataset("abc")
	outside.Components = []string{"A", "B", "C"}

	oracle := &stubOracle{}
	r := newResidual(t, newStore(t, other, outside), oracle, func(cfg *residualapi.Config) {
		cfg.Components = []string{"A", "B"}
	})

	res, w, err := r.Residuals(ctx, zeroParams)
	require.NoError(t, err)
	assert.Empty(t, res)
	assert.Empty(t, w)

	l, g, err := r.Likelihood(ctx, zeroParams)
	require.NoError(t, err)
	assert.Equal(t, 0.0, l)
	assert.Equal(t, []float64{0, 0}, g)
	assert.Empty(t, oracle.recorded())
}

func TestEndToEndWithStubOracle(t *testing.T) {
	ctx := context.Background()
	oracle := &stubOracle{}
	metrics := &solveCounter{}
	r := newResidual(t, newStore(t, testutil.ActivityDataset("ds")), oracle, func(cfg *residualapi.Config) {
		cfg.Metrics = metrics
	})

	target := thermo.GasConstant*1000*math.Log(0.5) + stubMuRef
	wantResidual := stubMuPred - target

	res, w, err := r.Residuals(ctx, zeroParams)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.InDelta(t, wantResidual, res[0], 1e-9)
	assert.Equal(t, []float64{StdDev}, w)

	l, g, err := r.Likelihood(ctx, zeroParams)
	require.NoError(t, err)
	z := wantResidual / StdDev
	assert.InDelta(t, -0.5*z*z-math.Log(StdDev)-0.5*math.Log(2*math.Pi), l, 1e-9)
	require.Len(t, g, 2)
	assert.InDelta(t, -wantResidual*(0.49-0.2)/(StdDev*StdDev), g[0], 1e-12)
	assert.InDelta(t, -wantResidual*(490-200)/(StdDev*StdDev), g[1], 1e-9)

	reqs := oracle.recorded()
	require.Len(t, reqs, 4, "one reference and one sample solve per evaluation")
	ref, sample := reqs[0], reqs[1]
	assert.Equal(t, []string{"LIQUID"}, ref.Phases)
	assert.Equal(t, []string{"A", "B"}, ref.Components)
	assert.Equal(t, 0.01, ref.Conditions[equilibrium.MoleFraction("B")])
	assert.Equal(t, []string{"LIQUID"}, sample.Phases, "sample phases are filtered to the dataset subsystem")
	assert.Equal(t, 0.3, sample.Conditions[equilibrium.MoleFraction("B")])
	assert.Equal(t, 1e5, sample.Conditions[equilibrium.Pressure])
	assert.Equal(t, map[string]float64{"VV0001": -10000, "VV0002": 2}, sample.Parameters)

	assert.Equal(t, 4, metrics.calls)
	assert.Equal(t, 0, metrics.fails)
}

func TestExactPredictionGivesPeakDensity(t *testing.T) {
	target := thermo.GasConstant*1000*math.Log(0.5) + stubMuRef
	oracle := &stubOracle{predict: func(equilibrium.Conditions) float64 { return target }}
	r := newResidual(t, newStore(t, testutil.ActivityDataset("ds")), oracle, nil)

	l, g, err := r.Likelihood(context.Background(), zeroParams)
	require.NoError(t, err)
	assert.InDelta(t, -0.5*math.Log(2*math.Pi*StdDev*StdDev), l, 1e-9)
	assert.InDeltaSlice(t, []float64{0, 0}, g, 1e-15)
}

func TestWeights(t *testing.T) {
	ctx := context.Background()
	weighted := testutil.ActivityDataset("weighted")
	two := 2.0
	weighted.Weight = &two
	src := newStore(t, testutil.ActivityDataset("plain"), weighted)

	_, base, err := newResidual(t, src, &stubOracle{}, nil).Residuals(ctx, zeroParams)
	require.NoError(t, err)
	assert.Equal(t, []float64{500, 250}, base)

	_, tighter, err := newResidual(t, src, &stubOracle{}, func(cfg *residualapi.Config) {
		cfg.Weights = map[string]float64{OutputTag: 2}
	}).Residuals(ctx, zeroParams)
	require.NoError(t, err)
	for i := range base {
		assert.Less(t, tighter[i], base[i], "a larger data weight must shrink every sample weight")
	}
}

func TestNonPositiveWeightResolvesToSentinel(t *testing.T) {
	ds := testutil.ActivityDataset("neg")
	neg := -1.0
	ds.Weight = &neg
	r := newResidual(t, newStore(t, ds), &stubOracle{}, nil)

	l, g, err := r.Likelihood(context.Background(), zeroParams)
	require.NoError(t, err)
	assert.True(t, math.IsInf(l, -1))
	assert.Equal(t, []float64{0, 0}, g)
}

func TestNonPositiveActivityResolvesToSentinel(t *testing.T) {
	for _, a := range []float64{0, -0.5} {
		ds := testutil.ActivityDataset("zero")
		ds.Values.Data[0] = a
		r := newResidual(t, newStore(t, ds), &stubOracle{}, nil)

		l, g, err := r.Likelihood(context.Background(), zeroParams)
		require.NoError(t, err)
		assert.True(t, math.IsInf(l, -1), "activity %g", a)
		assert.Equal(t, []float64{0, 0}, g)
	}
}

func TestOracleFailureIsHard(t *testing.T) {
	metrics := &solveCounter{}
	oracle := &stubOracle{err: equilibrium.ErrNotConverged}
	r := newResidual(t, newStore(t, testutil.ActivityDataset("ds")), oracle, func(cfg *residualapi.Config) {
		cfg.Metrics = metrics
	})

	_, _, err := r.Likelihood(context.Background(), zeroParams)
	require.ErrorIs(t, err, equilibrium.ErrNotConverged)
	var solveErr *equilibrium.SolveError
	require.ErrorAs(t, err, &solveErr)
	assert.Equal(t, []string{"A", "B"}, solveErr.Components)
	assert.Equal(t, 1, metrics.fails)

	res, w, err := r.Residuals(context.Background(), zeroParams)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Nil(t, w)
}

func TestParameterCountMismatch(t *testing.T) {
	r := newResidual(t, newStore(t), &stubOracle{}, nil)
	_, _, err := r.Likelihood(context.Background(), []float64{1})
	assert.ErrorIs(t, err, ErrParameterCount)
}

func TestShapeMismatchAbortsEvaluation(t *testing.T) {
	ds := testutil.GridDataset("bad")
	ds.Conditions["X_B"] = domain.Vector(0.1, 0.2)
	oracle := &stubOracle{}
	r := newResidual(t, newStore(t, ds), oracle, nil)
	_, _, err := r.Residuals(context.Background(), zeroParams)
	assert.ErrorIs(t, err, ErrShapeMismatch)
	assert.Empty(t, oracle.recorded())
}

func TestMissingReferenceState(t *testing.T) {
	ds := testutil.ActivityDataset("noref")
	ds.ReferenceState = nil
	r := newResidual(t, newStore(t, ds), &stubOracle{}, nil)
	_, _, err := r.Residuals(context.Background(), zeroParams)
	assert.ErrorIs(t, err, ErrMissingReference)
}

func TestReferencePhasesFallBackToDatasetPhases(t *testing.T) {
	ds := testutil.ActivityDataset("ds")
	ds.ReferenceState.Phases = nil
	oracle := &stubOracle{}
	r := newResidual(t, newStore(t, ds), oracle, nil)
	_, _, err := r.Residuals(context.Background(), zeroParams)
	require.NoError(t, err)
	assert.Equal(t, []string{"LIQUID"}, oracle.recorded()[0].Phases)
}

func TestWorkersPreserveSampleOrder(t *testing.T) {
	oracle := &stubOracle{
		predict: func(c equilibrium.Conditions) float64 {
			return 1000*c[equilibrium.MoleFraction("B")] + c[equilibrium.Temperature]
		},
		delay: func(c equilibrium.Conditions) time.Duration {
			return time.Duration(10*(1-c[equilibrium.MoleFraction("B")])) * time.Millisecond
		},
	}
	grid := testutil.GridDataset("grid")
	sequential := newResidual(t, newStore(t, grid), oracle, nil)
	parallel := newResidual(t, newStore(t, grid), oracle, func(cfg *residualapi.Config) { cfg.Workers = 6 })

	want, _, err := sequential.Residuals(context.Background(), zeroParams)
	require.NoError(t, err)
	got, _, err := parallel.Residuals(context.Background(), zeroParams)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestRepeatedCallsAreBitIdentical(t *testing.T) {
	db := testutil.BinaryDatabase()
	src := newStore(t, testutil.ActivityDataset("one"), testutil.GridDataset("grid"))
	r := newResidual(t, src, regular.New(db), func(cfg *residualapi.Config) { cfg.Workers = 4 })

	params := []float64{-11000, 1.5}
	r1, w1, err := r.Residuals(context.Background(), params)
	require.NoError(t, err)
	r2, w2, err := r.Residuals(context.Background(), params)
	require.NoError(t, err)
	assert.Equal(t, r1, r2)
	assert.Equal(t, w1, w2)
	assert.Len(t, r1, 7)
}

func TestLikelihoodGradientMatchesFiniteDifference(t *testing.T) {
	db := testutil.BinaryDatabase()
	src := newStore(t, testutil.ActivityDataset("one"), testutil.GridDataset("grid"))
	r := newResidual(t, src, regular.New(db), nil)
	ctx := context.Background()

	params := []float64{-11000, 1.5}
	_, grad, err := r.Likelihood(ctx, params)
	require.NoError(t, err)

	steps := []float64{1e-2, 1e-5}
	for i := range params {
		h := steps[i]
		up := append([]float64(nil), params...)
		down := append([]float64(nil), params...)
		up[i] += h
		down[i] -= h
		lUp, _, err := r.Likelihood(ctx, up)
		require.NoError(t, err)
		lDown, _, err := r.Likelihood(ctx, down)
		require.NoError(t, err)
		numeric := (lUp - lDown) / (2 * h)
		assert.InDelta(t, numeric, grad[i], 1e-6*math.Max(1, math.Abs(numeric)), "parameter %d", i)
	}
}

func TestPreparedContextIsShared(t *testing.T) {
	db := testutil.BinaryDatabase()
	counting := &countingPreparer{Solver: regular.New(db)}
	src := newStore(t, testutil.ActivityDataset("one"), testutil.GridDataset("grid"))
	r := newResidual(t, src, counting, nil)

	for i := 0; i < 3; i++ {
		_, _, err := r.Likelihood(context.Background(), zeroParams)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, counting.prepares(), "reference and samples share one A-B liquid system")
	assert.Equal(t, 0, counting.solves)
	assert.Equal(t, 1, r.eval.cache.Len())
}

type countingPreparer struct {
	*regular.Solver
	mu     sync.Mutex
	count  int
	solves int
}

func (c *countingPreparer) Solve(ctx context.Context, req equilibrium.Request) (equilibrium.Result, error) {
	c.mu.Lock()
	c.solves++
	c.mu.Unlock()
	return c.Solver.Solve(ctx, req)
}

func (c *countingPreparer) Prepare(ctx context.Context, components, phases []string) (equilibrium.Prepared, error) {
	c.mu.Lock()
	c.count++
	c.mu.Unlock()
	return c.Solver.Prepare(ctx, components, phases)
}

func (c *countingPreparer) prepares() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

func TestStoreErrorsPropagate(t *testing.T) {
	boom := errors.New("store offline")
	r := newResidual(t, failingSource{err: boom}, &stubOracle{}, nil)
	_, _, err := r.Likelihood(context.Background(), zeroParams)
	assert.ErrorIs(t, err, boom)
}

type failingSource struct{ err error }

func (f failingSource) Search(context.Context, domain.Predicate) ([]domain.Dataset, error) {
	return nil, f.err
}
