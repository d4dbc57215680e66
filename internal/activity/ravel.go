package activity

import (
	"fmt"

	"thermofit/pkg/domain"
	"thermofit/pkg/equilibrium"
)

// Grid axes of a three-dimensional values array.
const (
	axisPressure    = 0
	axisTemperature = 1
	axisComposition = 2
)

// Ravelled holds one flat entry per measured value for every condition axis.
type Ravelled struct {
	P            []float64
	T            []float64
	Compositions map[equilibrium.StateVariable][]float64
}

// Len is the number of sample points.
func (r Ravelled) Len() int { return len(r.T) }

// At returns the oracle conditions of sample i.
func (r Ravelled) At(i int) equilibrium.Conditions {
	conds := equilibrium.Conditions{
		equilibrium.Pressure:    r.P[i],
		equilibrium.Temperature: r.T[i],
		equilibrium.SystemSize:  1,
	}
	for v, xs := range r.Compositions {
		conds[v] = xs[i]
	}
	return conds
}

// Ravel broadcasts the P, T and composition axes of a dataset onto the shape
// of its values. Each composition axis is expanded independently against the
// same (P, T) grid.
func Ravel(ds domain.Dataset) (Ravelled, error) {
	out := Ravelled{Compositions: make(map[equilibrium.StateVariable][]float64)}
	for _, key := range []string{"P", "T"} {
		if _, ok := ds.Conditions[key]; !ok {
			return Ravelled{}, fmt.Errorf("dataset %s: %w: %s", ds.ID, ErrMissingCondition, key)
		}
	}
	var err error
	if out.P, err = broadcast(ds, "P", axisPressure); err != nil {
		return Ravelled{}, err
	}
	if out.T, err = broadcast(ds, "T", axisTemperature); err != nil {
		return Ravelled{}, err
	}
	for key := range ds.Conditions {
		if key == "P" || key == "T" {
			continue
		}
		v, err := equilibrium.ParseCondition(key)
		if err != nil {
			return Ravelled{}, fmt.Errorf("dataset %s: %w", ds.ID, err)
		}
		if _, ok := v.Component(); !ok {
			return Ravelled{}, fmt.Errorf("dataset %s: %w: %s is not a composition", ds.ID, equilibrium.ErrUnknownCondition, key)
		}
		xs, err := broadcast(ds, key, axisComposition)
		if err != nil {
			return Ravelled{}, err
		}
		out.Compositions[v] = xs
	}
	return out, nil
}

func broadcast(ds domain.Dataset, key string, axis int) ([]float64, error) {
	cond := ds.Conditions[key]
	shape := ds.Values.Shape
	n := ds.Values.Size()
	out := make([]float64, n)
	switch {
	case cond.Size() == 1:
		for i := range out {
			out[i] = cond.Data[0]
		}
	case cond.SameShape(ds.Values):
		copy(out, cond.Data)
	case cond.Ndim() == 1 && len(shape) == 3 && shape[axis] == cond.Shape[0]:
		stride := 1
		for d := axis + 1; d < len(shape); d++ {
			stride *= shape[d]
		}
		for i := range out {
			out[i] = cond.Data[(i/stride)%shape[axis]]
		}
	default:
		return nil, &ShapeError{
			Dataset: ds.ID,
			Axis:    key,
			Shape:   append([]int(nil), cond.Shape...),
			Values:  append([]int(nil), shape...),
			Err:     ErrShapeMismatch,
		}
	}
	return out, nil
}
