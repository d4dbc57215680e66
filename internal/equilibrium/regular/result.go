package regular

import (
	"context"
	"fmt"
	"math"
	"strings"

	"thermofit/pkg/equilibrium"
	"thermofit/pkg/thermo"
)

// phaseState is a phase evaluated at fixed T and composition.
type phaseState struct {
	phase *phaseModel
	t     float64
	x     []float64
	g     []float64
	l     []float64
}

func xlnx(x float64) float64 {
	if x <= 0 {
		return 0
	}
	return x * math.Log(x)
}

func (st *phaseState) excess() float64 {
	var ex float64
	for k, inter := range st.phase.interactions {
		ex += st.x[inter.i] * st.x[inter.j] * st.l[k]
	}
	return ex
}

func (st *phaseState) gibbs() float64 {
	var ref, ideal float64
	for i, x := range st.x {
		ref += x * st.g[i]
		ideal += xlnx(x)
	}
	return ref + thermo.GasConstant*st.t*ideal + st.excess()
}

// potential is mu_k = G_k + RT ln x_k + sum_{j!=k} x_j L_kj - G_ex.
func (st *phaseState) potential(k int) float64 {
	mu := st.g[k] + thermo.GasConstant*st.t*math.Log(st.x[k]) - st.excess()
	for n, inter := range st.phase.interactions {
		switch k {
		case inter.i:
			mu += st.x[inter.j] * st.l[n]
		case inter.j:
			mu += st.x[inter.i] * st.l[n]
		}
	}
	return mu
}

func (st *phaseState) excessSensitivity(symbol string) float64 {
	var d float64
	for _, inter := range st.phase.interactions {
		d += st.x[inter.i] * st.x[inter.j] * inter.term.Sensitivity(st.t, symbol)
	}
	return d
}

func (st *phaseState) gibbsSensitivity(symbol string) float64 {
	d := st.excessSensitivity(symbol)
	for i, x := range st.x {
		d += x * st.phase.endmembers[i].Sensitivity(st.t, symbol)
	}
	return d
}

func (st *phaseState) potentialSensitivity(k int, symbol string) float64 {
	d := st.phase.endmembers[k].Sensitivity(st.t, symbol) - st.excessSensitivity(symbol)
	for _, inter := range st.phase.interactions {
		switch k {
		case inter.i:
			d += st.x[inter.j] * inter.term.Sensitivity(st.t, symbol)
		case inter.j:
			d += st.x[inter.i] * inter.term.Sensitivity(st.t, symbol)
		}
	}
	return d
}

// result answers property queries for one converged state.
type result struct {
	state     *phaseState
	symbols   map[string]float64
	overrides map[string]float64
}

// Phase names the stable phase.
func (r *result) Phase() string { return r.state.phase.name }

// Get evaluates properties in request order.
func (r *result) Get(ctx context.Context, props ...equilibrium.Property) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]float64, len(props))
	for i, prop := range props {
		v, err := r.get(prop)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (r *result) get(prop equilibrium.Property) (float64, error) {
	switch p := prop.(type) {
	case equilibrium.GibbsEnergy:
		return r.state.gibbs(), nil
	case equilibrium.ChemicalPotential:
		k, err := r.species(p.Component)
		if err != nil {
			return 0, err
		}
		return r.state.potential(k), nil
	case equilibrium.Derivative:
		if !r.knownSymbol(p.With) {
			return 0, fmt.Errorf("%w: %s", equilibrium.ErrUnknownParameter, p.With)
		}
		switch of := p.Of.(type) {
		case equilibrium.GibbsEnergy:
			return r.state.gibbsSensitivity(p.With), nil
		case equilibrium.ChemicalPotential:
			k, err := r.species(of.Component)
			if err != nil {
				return 0, err
			}
			return r.state.potentialSensitivity(k, p.With), nil
		}
	}
	return 0, fmt.Errorf("%w: %v", equilibrium.ErrUnsupportedProperty, prop)
}

func (r *result) species(component string) (int, error) {
	k, ok := r.state.phase.index[strings.ToUpper(component)]
	if !ok {
		return 0, fmt.Errorf("%w: %s is not in phase %s", equilibrium.ErrUnsupportedProperty, component, r.state.phase.name)
	}
	return k, nil
}

func (r *result) knownSymbol(name string) bool {
	if _, ok := r.overrides[name]; ok {
		return true
	}
	_, ok := r.symbols[name]
	return ok
}
