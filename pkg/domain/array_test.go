package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestArrayJSONNestedLists(t *testing.T) {
	var a Array
	if err := json.Unmarshal([]byte(`[[1, 2, 3], [4, 5, 6]]`), &a); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if a.Ndim() != 2 || a.Shape[0] != 2 || a.Shape[1] != 3 || a.Size() != 6 {
		t.Fatalf("unexpected shape %v size %d", a.Shape, a.Size())
	}
	if a.Data[3] != 4 {
		t.Fatalf("expected row-major data, got %v", a.Data)
	}
	out, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != "[[1,2,3],[4,5,6]]" {
		t.Fatalf("unexpected json %s", out)
	}
}

func TestArrayJSONScalarAndEmpty(t *testing.T) {
	var s Array
	if err := json.Unmarshal([]byte(`1e5`), &s); err != nil {
		t.Fatalf("unmarshal scalar: %v", err)
	}
	if !s.IsScalar() {
		t.Fatalf("expected scalar, got shape %v", s.Shape)
	}
	if v, ok := s.Float(); !ok || v != 1e5 {
		t.Fatalf("unexpected scalar value %v %v", v, ok)
	}
	out, _ := json.Marshal(s)
	if string(out) != "100000" {
		t.Fatalf("unexpected scalar json %s", out)
	}

	var e Array
	if err := json.Unmarshal([]byte(`[]`), &e); err != nil {
		t.Fatalf("unmarshal empty: %v", err)
	}
	if e.Size() != 0 || e.Ndim() != 1 || e.Shape[0] != 0 {
		t.Fatalf("unexpected empty array %+v", e)
	}
	if out, _ := json.Marshal(e); string(out) != "[]" {
		t.Fatalf("unexpected empty json %s", out)
	}

	var n Array
	if err := json.Unmarshal([]byte(`null`), &n); err != nil || n.Data != nil {
		t.Fatalf("expected zero array for null, got %+v %v", n, err)
	}
	if out, _ := json.Marshal(Array{}); string(out) != "null" {
		t.Fatalf("unexpected zero json %s", out)
	}
}

func TestArrayJSONRejectsRagged(t *testing.T) {
	for _, raw := range []string{`[[1, 2], [3]]`, `[[1, 2], 3]`, `[1, [2]]`} {
		var a Array
		if err := json.Unmarshal([]byte(raw), &a); !errors.Is(err, ErrRaggedArray) {
			t.Fatalf("%s: expected ErrRaggedArray, got %v", raw, err)
		}
	}
	var a Array
	if err := json.Unmarshal([]byte(`["x"]`), &a); err == nil {
		t.Fatalf("expected error for string element")
	}
}

func TestNewArrayValidatesShape(t *testing.T) {
	if _, err := NewArray([]int{2, 2}, []float64{1, 2, 3}); err == nil {
		t.Fatalf("expected size mismatch error")
	}
	data := []float64{1, 2}
	a, err := NewArray([]int{1, 2}, data)
	if err != nil {
		t.Fatalf("new array: %v", err)
	}
	data[0] = 9
	if a.Data[0] != 1 {
		t.Fatalf("NewArray must copy its input")
	}
	if _, err := json.Marshal(Array{Shape: []int{3}, Data: []float64{1}}); err == nil {
		t.Fatalf("expected marshal error for inconsistent array")
	}
}

func TestArraySameShapeAndClone(t *testing.T) {
	a := Vector(1, 2, 3)
	if !a.SameShape(Vector(4, 5, 6)) || a.SameShape(Vector(1)) || a.SameShape(Scalar(1)) {
		t.Fatalf("unexpected SameShape results")
	}
	c := a.Clone()
	c.Data[0] = 42
	c.Shape[0] = 7
	if a.Data[0] != 1 || a.Shape[0] != 3 {
		t.Fatalf("clone aliases the original")
	}
	if _, ok := a.Float(); ok {
		t.Fatalf("Float must fail for multi-element arrays")
	}
}
