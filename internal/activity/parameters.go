package activity

import "fmt"

// Parameters pairs the fitted symbol names with one trial vector. It is built
// fresh for every evaluation and never mutated afterwards.
type Parameters struct {
	names  []string
	values []float64
}

// NewParameters binds values to names positionally.
func NewParameters(names []string, values []float64) (Parameters, error) {
	if len(names) != len(values) {
		return Parameters{}, fmt.Errorf("%w: %d symbols, %d values", ErrParameterCount, len(names), len(values))
	}
	return Parameters{
		names:  append([]string(nil), names...),
		values: append([]float64(nil), values...),
	}, nil
}

// Names returns the symbol order.
func (p Parameters) Names() []string { return append([]string(nil), p.names...) }

// Len is the number of fitted symbols.
func (p Parameters) Len() int { return len(p.names) }

// Overrides returns a fresh name to value map suitable for an oracle request.
func (p Parameters) Overrides() map[string]float64 {
	out := make(map[string]float64, len(p.names))
	for i, name := range p.names {
		out[name] = p.values[i]
	}
	return out
}
