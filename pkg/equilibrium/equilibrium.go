// Package equilibrium defines the contract between residual functions and an
// equilibrium engine. The engine is treated as an oracle: given a chemical
// system and a fixed set of conditions it returns a Result that can be queried
// for state functions and for their first-order sensitivities with respect to
// named model parameters.
//
// Parameters are passed explicitly on every request; there is no process-wide
// symbol registry.
package equilibrium

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// StateVariable names a condition of an equilibrium calculation.
type StateVariable string

const (
	Temperature StateVariable = "T" // kelvin
	Pressure    StateVariable = "P" // pascal
	SystemSize  StateVariable = "N" // moles of formula units
)

// MoleFraction returns the overall mole-fraction condition for a component.
func MoleFraction(component string) StateVariable {
	return StateVariable("X(" + strings.ToUpper(component) + ")")
}

// Component reports the component of a mole-fraction variable.
func (v StateVariable) Component() (string, bool) {
	s := string(v)
	if !strings.HasPrefix(s, "X(") || !strings.HasSuffix(s, ")") {
		return "", false
	}
	c := s[2 : len(s)-1]
	if c == "" {
		return "", false
	}
	return c, true
}

// ParseCondition maps a dataset coordinate name such as "T", "P" or "X_CU"
// onto its canonical state variable.
func ParseCondition(name string) (StateVariable, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "T":
		return Temperature, nil
	case "P":
		return Pressure, nil
	case "N":
		return SystemSize, nil
	}
	upper := strings.ToUpper(strings.TrimSpace(name))
	if strings.HasPrefix(upper, "X_") && len(upper) > 2 {
		return MoleFraction(upper[2:]), nil
	}
	if v := StateVariable(upper); v != "" {
		if _, ok := v.Component(); ok {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCondition, name)
}

// Conditions fixes the state variables of one calculation.
type Conditions map[StateVariable]float64

// Clone returns an independent copy.
func (c Conditions) Clone() Conditions {
	out := make(Conditions, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// String renders conditions in a stable order.
func (c Conditions) String() string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%g", k, c[StateVariable(k)]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Request describes a single equilibrium calculation. Parameters override the
// values of the named model symbols for this request only.
type Request struct {
	Components []string
	Phases     []string
	Conditions Conditions
	Parameters map[string]float64
}

// Property selects a quantity that can be read from a Result.
type Property interface {
	fmt.Stringer
	property()
}

// ChemicalPotential selects the chemical potential of a component (J/mol).
type ChemicalPotential struct {
	Component string
}

func (ChemicalPotential) property() {}

func (p ChemicalPotential) String() string { return "MU(" + strings.ToUpper(p.Component) + ")" }

// MU is shorthand for ChemicalPotential.
func MU(component string) ChemicalPotential {
	return ChemicalPotential{Component: strings.ToUpper(component)}
}

// GibbsEnergy selects the molar Gibbs energy of the system (J/mol).
type GibbsEnergy struct{}

func (GibbsEnergy) property() {}

func (GibbsEnergy) String() string { return "GM" }

// Derivative selects the sensitivity of a state function with respect to a
// model parameter at the converged equilibrium point.
type Derivative struct {
	Of   Property
	With string
}

func (Derivative) property() {}

func (d Derivative) String() string {
	of := "<nil>"
	if d.Of != nil {
		of = d.Of.String()
	}
	return fmt.Sprintf("d%s/d%s", of, d.With)
}

// Result is a converged equilibrium state. Get evaluates the requested
// properties and returns them in request order.
type Result interface {
	Get(ctx context.Context, props ...Property) ([]float64, error)
}

// Solver computes equilibria.
type Solver interface {
	Solve(ctx context.Context, req Request) (Result, error)
}

// Prepared is a solver bound to a fixed chemical system. Implementations are
// immutable and safe for concurrent use.
type Prepared interface {
	Solve(ctx context.Context, conds Conditions, parameters map[string]float64) (Result, error)
}

// Preparer is implemented by solvers that can precompute per-system context.
type Preparer interface {
	Prepare(ctx context.Context, components, phases []string) (Prepared, error)
}

var (
	// ErrNotConverged reports that no equilibrium state could be found.
	ErrNotConverged = errors.New("equilibrium: calculation did not converge")
	// ErrUnknownCondition reports a condition name that has no state variable.
	ErrUnknownCondition = errors.New("equilibrium: unknown condition")
	// ErrUnsupportedProperty reports a property the backend cannot evaluate.
	ErrUnsupportedProperty = errors.New("equilibrium: unsupported property")
	// ErrUnknownParameter reports a derivative or override for an unknown symbol.
	ErrUnknownParameter = errors.New("equilibrium: unknown parameter")
)

// SolveError adds the calculation inputs to a backend failure.
type SolveError struct {
	Components []string
	Phases     []string
	Conditions Conditions
	Err        error
}

func (e *SolveError) Error() string {
	return fmt.Sprintf("solve %v %v at %s: %v", e.Components, e.Phases, e.Conditions, e.Err)
}

func (e *SolveError) Unwrap() error { return e.Err }
