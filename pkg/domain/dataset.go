// Package domain holds the experimental dataset records consumed by residual
// functions and the persistence contracts that serve them.
package domain

import (
	"sort"
	"strings"
)

// ReferenceState fixes the baseline that measured values are expressed
// relative to.
type ReferenceState struct {
	Phases     []string         `json:"phases,omitempty"`
	Conditions map[string]Array `json:"conditions" validate:"required,min=1"`
}

// Dataset is one experimental record. Values and the non-P/T condition axes
// share a broadcastable shape.
type Dataset struct {
	ID             string           `json:"id,omitempty"`
	Components     []string         `json:"components" validate:"required,min=1,dive,required"`
	Phases         []string         `json:"phases,omitempty"`
	Output         string           `json:"output" validate:"required"`
	Conditions     map[string]Array `json:"conditions" validate:"required"`
	Values         Array            `json:"values"`
	ReferenceState *ReferenceState  `json:"reference_state,omitempty"`
	Weight         *float64         `json:"weight,omitempty" validate:"omitempty,gt=0"`
	Reference      string           `json:"reference,omitempty"`
	Comment        string           `json:"comment,omitempty"`
}

// WeightOr returns the dataset weight or def when unset.
func (d Dataset) WeightOr(def float64) float64 {
	if d.Weight == nil {
		return def
	}
	return *d.Weight
}

// ComponentSet returns the upper-cased components as a set.
func (d Dataset) ComponentSet() map[string]struct{} {
	out := make(map[string]struct{}, len(d.Components))
	for _, c := range d.Components {
		out[strings.ToUpper(c)] = struct{}{}
	}
	return out
}

// SortedComponents returns the upper-cased components in sorted order.
func (d Dataset) SortedComponents() []string {
	out := make([]string, 0, len(d.Components))
	for c := range d.ComponentSet() {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Clone returns a deep copy so stores can hand out read-only snapshots.
func (d Dataset) Clone() Dataset {
	out := d
	out.Components = append([]string(nil), d.Components...)
	out.Phases = append([]string(nil), d.Phases...)
	out.Conditions = cloneConditions(d.Conditions)
	out.Values = d.Values.Clone()
	if d.ReferenceState != nil {
		ref := ReferenceState{
			Phases:     append([]string(nil), d.ReferenceState.Phases...),
			Conditions: cloneConditions(d.ReferenceState.Conditions),
		}
		out.ReferenceState = &ref
	}
	if d.Weight != nil {
		w := *d.Weight
		out.Weight = &w
	}
	return out
}

func cloneConditions(in map[string]Array) map[string]Array {
	if in == nil {
		return nil
	}
	out := make(map[string]Array, len(in))
	for k, v := range in {
		out[k] = v.Clone()
	}
	return out
}

// Predicate selects datasets in a store search.
type Predicate func(Dataset) bool

// All matches every dataset.
func All(Dataset) bool { return true }

// OutputContains matches datasets whose output tag contains tag.
func OutputContains(tag string) Predicate {
	return func(d Dataset) bool { return strings.Contains(d.Output, tag) }
}

// ComponentsSubsetOf matches datasets measured within the given system.
func ComponentsSubsetOf(components []string) Predicate {
	active := make(map[string]struct{}, len(components))
	for _, c := range components {
		active[strings.ToUpper(c)] = struct{}{}
	}
	return func(d Dataset) bool {
		for c := range d.ComponentSet() {
			if _, ok := active[c]; !ok {
				return false
			}
		}
		return true
	}
}

// And matches when every predicate matches.
func And(preds ...Predicate) Predicate {
	return func(d Dataset) bool {
		for _, p := range preds {
			if p != nil && !p(d) {
				return false
			}
		}
		return true
	}
}
