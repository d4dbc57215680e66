package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// ErrRaggedArray is returned when nested lists do not form a rectangular array.
var ErrRaggedArray = errors.New("domain: ragged array")

// Array is a rectangular numeric array stored in row-major order. A scalar has
// an empty shape and one element.
type Array struct {
	Shape []int
	Data  []float64
}

// Scalar returns a zero-dimensional array.
func Scalar(v float64) Array { return Array{Data: []float64{v}} }

// Vector returns a one-dimensional array.
func Vector(vs ...float64) Array {
	return Array{Shape: []int{len(vs)}, Data: append([]float64(nil), vs...)}
}

// NewArray validates that data fits shape.
func NewArray(shape []int, data []float64) (Array, error) {
	if sizeOf(shape) != len(data) {
		return Array{}, fmt.Errorf("shape %v holds %d values, got %d", shape, sizeOf(shape), len(data))
	}
	return Array{Shape: append([]int(nil), shape...), Data: append([]float64(nil), data...)}, nil
}

// Size is the number of scalar entries.
func (a Array) Size() int { return len(a.Data) }

// Ndim is the number of dimensions.
func (a Array) Ndim() int { return len(a.Shape) }

// IsScalar reports whether the array is zero-dimensional.
func (a Array) IsScalar() bool { return len(a.Shape) == 0 && len(a.Data) == 1 }

// Float returns the single value of a one-element array.
func (a Array) Float() (float64, bool) {
	if len(a.Data) != 1 {
		return 0, false
	}
	return a.Data[0], true
}

// Clone returns a deep copy.
func (a Array) Clone() Array {
	return Array{Shape: append([]int(nil), a.Shape...), Data: append([]float64(nil), a.Data...)}
}

// SameShape reports whether both arrays have identical shapes.
func (a Array) SameShape(b Array) bool {
	if len(a.Shape) != len(b.Shape) {
		return false
	}
	for i := range a.Shape {
		if a.Shape[i] != b.Shape[i] {
			return false
		}
	}
	return true
}

func sizeOf(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// MarshalJSON writes nested lists (or a bare number for scalars).
func (a Array) MarshalJSON() ([]byte, error) {
	if a.Data == nil && a.Shape == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	idx := 0
	var write func(dim int)
	write = func(dim int) {
		if dim == len(a.Shape) {
			buf.WriteString(strconv.FormatFloat(a.Data[idx], 'g', -1, 64))
			idx++
			return
		}
		buf.WriteByte('[')
		for i := 0; i < a.Shape[dim]; i++ {
			if i > 0 {
				buf.WriteByte(',')
			}
			write(dim + 1)
		}
		buf.WriteByte(']')
	}
	if sizeOf(a.Shape) != len(a.Data) {
		return nil, fmt.Errorf("shape %v does not match %d values", a.Shape, len(a.Data))
	}
	write(0)
	return buf.Bytes(), nil
}

// UnmarshalJSON accepts a number or arbitrarily nested lists of numbers.
func (a *Array) UnmarshalJSON(b []byte) error {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw == nil {
		*a = Array{}
		return nil
	}
	shape, err := shapeOf(raw)
	if err != nil {
		return err
	}
	data := make([]float64, 0, sizeOf(shape))
	if err := flatten(raw, shape, &data); err != nil {
		return err
	}
	*a = Array{Shape: shape, Data: data}
	return nil
}

func shapeOf(v any) ([]int, error) {
	switch t := v.(type) {
	case float64:
		return nil, nil
	case []any:
		if len(t) == 0 {
			return []int{0}, nil
		}
		inner, err := shapeOf(t[0])
		if err != nil {
			return nil, err
		}
		return append([]int{len(t)}, inner...), nil
	default:
		return nil, fmt.Errorf("unsupported array element %T", v)
	}
}

func flatten(v any, shape []int, out *[]float64) error {
	if len(shape) == 0 {
		f, ok := v.(float64)
		if !ok {
			return ErrRaggedArray
		}
		*out = append(*out, f)
		return nil
	}
	list, ok := v.([]any)
	if !ok || len(list) != shape[0] {
		return ErrRaggedArray
	}
	for _, el := range list {
		if err := flatten(el, shape[1:], out); err != nil {
			return err
		}
	}
	return nil
}
