// Package regular is a closed-form equilibrium backend for substitutional
// regular solutions. Each phase mixes the species of one sublattice with
// G = sum x_i G_i + RT sum x_i ln x_i + sum_{i<j} x_i x_j L_ij, where the
// endmember energies and interaction parameters are A + B*T terms whose
// coefficients may name database symbols. At fixed overall composition the
// stable phase is the one with the lowest molar Gibbs energy, and parameter
// sensitivities are the analytic partial derivatives at that state.
package regular

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"thermofit/pkg/equilibrium"
	"thermofit/pkg/thermo"
)

var (
	// ErrUnsupportedPhase reports a phase this backend cannot model.
	ErrUnsupportedPhase = errors.New("regular: unsupported phase")
	// ErrNoPhases reports a system in which no requested phase can exist.
	ErrNoPhases = errors.New("regular: no usable phases")
	// ErrUnderdetermined reports conditions that do not fix the composition.
	ErrUnderdetermined = errors.New("regular: composition is underdetermined")
)

// compositionTolerance absorbs rounding in the dependent mole fraction.
const compositionTolerance = 1e-12

var (
	_ equilibrium.Solver   = (*Solver)(nil)
	_ equilibrium.Preparer = (*Solver)(nil)
)

// Solver evaluates equilibria against a thermodynamic database.
type Solver struct {
	db *thermo.Database
}

// New returns a solver bound to db.
func New(db *thermo.Database) *Solver { return &Solver{db: db} }

// Solve prepares the requested system and solves it once.
func (s *Solver) Solve(ctx context.Context, req equilibrium.Request) (equilibrium.Result, error) {
	prepared, err := s.Prepare(ctx, req.Components, req.Phases)
	if err != nil {
		return nil, err
	}
	return prepared.Solve(ctx, req.Conditions, req.Parameters)
}

// Prepare resolves the species and phase models of a chemical system. An
// empty phase list means every database phase.
func (s *Solver) Prepare(ctx context.Context, components, phases []string) (equilibrium.Prepared, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	comps := make(map[string]struct{}, len(components))
	sys := &system{db: s.db}
	for _, c := range components {
		c = strings.ToUpper(c)
		if _, dup := comps[c]; dup {
			continue
		}
		comps[c] = struct{}{}
		if c != thermo.Vacancy {
			sys.species = append(sys.species, c)
		}
	}
	sort.Strings(sys.species)
	if len(phases) == 0 {
		phases = s.db.PhaseNames()
	}
	for _, name := range phases {
		phase, ok := s.db.Phases[strings.ToUpper(name)]
		if !ok {
			return nil, fmt.Errorf("%w: %s is not in the database", ErrUnsupportedPhase, name)
		}
		model, err := newPhaseModel(phase, comps)
		if err != nil {
			return nil, err
		}
		if model != nil {
			sys.phases = append(sys.phases, model)
		}
	}
	if len(sys.phases) == 0 {
		return nil, fmt.Errorf("%w: components %v phases %v", ErrNoPhases, components, phases)
	}
	return sys, nil
}

type pairTerm struct {
	i, j int
	term thermo.Term
}

// phaseModel is a phase restricted to the species of a chemical system.
type phaseModel struct {
	name         string
	species      []string
	index        map[string]int
	endmembers   []thermo.Term
	interactions []pairTerm
}

// newPhaseModel returns nil when none of the phase's species is present.
func newPhaseModel(phase *thermo.Phase, comps map[string]struct{}) (*phaseModel, error) {
	mixing := -1
	for s, subl := range phase.Sublattices {
		pureVacancy := true
		for _, sp := range subl {
			if sp != thermo.Vacancy {
				pureVacancy = false
			}
		}
		if pureVacancy {
			continue
		}
		if mixing >= 0 {
			return nil, fmt.Errorf("%w: %s mixes on more than one sublattice", ErrUnsupportedPhase, phase.Name)
		}
		mixing = s
	}
	if mixing < 0 {
		return nil, nil
	}
	m := &phaseModel{name: phase.Name, index: make(map[string]int)}
	for _, sp := range phase.Sublattices[mixing] {
		if _, ok := comps[sp]; !ok || sp == thermo.Vacancy {
			continue
		}
		term, ok := phase.Endmembers[sp]
		if !ok {
			return nil, fmt.Errorf("%w: %s has no endmember for %s", ErrUnsupportedPhase, phase.Name, sp)
		}
		m.index[sp] = len(m.species)
		m.species = append(m.species, sp)
		m.endmembers = append(m.endmembers, term)
	}
	if len(m.species) == 0 {
		return nil, nil
	}
	for _, inter := range phase.Interactions {
		i, okI := m.index[inter.Species[0]]
		j, okJ := m.index[inter.Species[1]]
		if !okI || !okJ || i == j {
			continue
		}
		m.interactions = append(m.interactions, pairTerm{i: i, j: j, term: inter.Term})
	}
	return m, nil
}

// system is an immutable prepared chemical system, safe for concurrent use.
type system struct {
	db      *thermo.Database
	species []string
	phases  []*phaseModel
}

// Solve fixes T and the overall composition and selects the stable phase.
func (s *system) Solve(ctx context.Context, conds equilibrium.Conditions, parameters map[string]float64) (equilibrium.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, ok := conds[equilibrium.Temperature]
	if !ok {
		return nil, fmt.Errorf("%w: temperature is required", ErrUnderdetermined)
	}
	x, err := s.composition(conds)
	if err != nil {
		return nil, err
	}
	overrides := make(map[string]float64, len(parameters))
	for k, v := range parameters {
		overrides[k] = v
	}

	var best *phaseState
	for _, phase := range s.phases {
		st, ok, err := s.state(phase, x, t, overrides)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if best == nil || st.gibbs() < best.gibbs() {
			best = st
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: no phase can hold composition %v", equilibrium.ErrNotConverged, x)
	}
	return &result{state: best, symbols: s.db.Symbols, overrides: overrides}, nil
}

// composition returns the overall mole fractions keyed by species. Exactly one
// species may be left unspecified; it takes the balance.
func (s *system) composition(conds equilibrium.Conditions) (map[string]float64, error) {
	x := make(map[string]float64, len(s.species))
	known := make(map[string]struct{}, len(s.species))
	for _, sp := range s.species {
		known[sp] = struct{}{}
	}
	for v, val := range conds {
		c, ok := v.Component()
		if !ok {
			continue
		}
		if _, ok := known[c]; !ok {
			return nil, fmt.Errorf("%w: %s is not a component of the system", equilibrium.ErrUnknownCondition, v)
		}
		if math.IsNaN(val) || val < 0 || val > 1 {
			return nil, fmt.Errorf("%w: %s=%g is outside [0, 1]", equilibrium.ErrNotConverged, v, val)
		}
		x[c] = val
	}
	var dependent []string
	sum := 0.0
	for _, sp := range s.species {
		if v, ok := x[sp]; ok {
			sum += v
		} else {
			dependent = append(dependent, sp)
		}
	}
	switch len(dependent) {
	case 0:
		if math.Abs(sum-1) > compositionTolerance {
			return nil, fmt.Errorf("%w: mole fractions sum to %g", equilibrium.ErrNotConverged, sum)
		}
	case 1:
		rest := 1 - sum
		if rest < -compositionTolerance {
			return nil, fmt.Errorf("%w: mole fractions sum to %g", equilibrium.ErrNotConverged, sum)
		}
		x[dependent[0]] = math.Max(rest, 0)
	default:
		return nil, fmt.Errorf("%w: %v have no mole fraction condition", ErrUnderdetermined, dependent)
	}
	return x, nil
}

// state evaluates a phase at the composition. ok is false when the phase
// lacks a species that is present.
func (s *system) state(phase *phaseModel, x map[string]float64, t float64, overrides map[string]float64) (*phaseState, bool, error) {
	for sp, v := range x {
		if _, in := phase.index[sp]; !in && v > 0 {
			return nil, false, nil
		}
	}
	st := &phaseState{
		phase: phase,
		t:     t,
		x:     make([]float64, len(phase.species)),
		g:     make([]float64, len(phase.species)),
		l:     make([]float64, len(phase.interactions)),
	}
	for i, sp := range phase.species {
		st.x[i] = x[sp]
		g, err := phase.endmembers[i].Eval(t, s.db.Symbols, overrides)
		if err != nil {
			return nil, false, fmt.Errorf("%s endmember %s: %w", phase.name, sp, err)
		}
		st.g[i] = g
	}
	for k, inter := range phase.interactions {
		l, err := inter.term.Eval(t, s.db.Symbols, overrides)
		if err != nil {
			return nil, false, fmt.Errorf("%s interaction %s-%s: %w", phase.name, phase.species[inter.i], phase.species[inter.j], err)
		}
		st.l[k] = l
	}
	return st, true, nil
}
