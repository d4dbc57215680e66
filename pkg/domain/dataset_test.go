package domain

import (
	"encoding/json"
	"testing"
)

func sampleDataset() Dataset {
	w := 2.0
	return Dataset{
		ID:         "ds-1",
		Components: []string{"b", "A"},
		Phases:     []string{"LIQUID"},
		Output:     "ACR_B",
		Conditions: map[string]Array{"P": Scalar(1e5), "T": Scalar(1000), "X_B": Vector(0.3)},
		Values:     Array{Shape: []int{1, 1, 1}, Data: []float64{0.5}},
		ReferenceState: &ReferenceState{
			Phases:     []string{"LIQUID"},
			Conditions: map[string]Array{"X_B": Scalar(0.01)},
		},
		Weight: &w,
	}
}

func TestDatasetJSONDocument(t *testing.T) {
	raw := `{
		"components": ["A", "B"],
		"phases": ["LIQUID"],
		"output": "ACR_B",
		"conditions": {"P": 101325, "T": [1000, 1100], "X_B": [0.1, 0.2]},
		"values": [[[0.4, 0.5], [0.45, 0.55]]],
		"reference_state": {"phases": ["LIQUID"], "conditions": {"P": 101325, "T": 1000, "X_B": 0.01}},
		"weight": 0.5,
		"reference": "synthetic"
	}`
	var ds Dataset
	if err := json.Unmarshal([]byte(raw), &ds); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ds.Values.Ndim() != 3 || ds.Values.Size() != 4 {
		t.Fatalf("unexpected values %+v", ds.Values)
	}
	if !ds.Conditions["P"].IsScalar() || ds.Conditions["T"].Size() != 2 {
		t.Fatalf("unexpected conditions %+v", ds.Conditions)
	}
	if ds.ReferenceState == nil || len(ds.ReferenceState.Conditions) != 3 {
		t.Fatalf("reference state not decoded: %+v", ds.ReferenceState)
	}
	if ds.WeightOr(1) != 0.5 {
		t.Fatalf("expected weight 0.5, got %v", ds.WeightOr(1))
	}
}

func TestDatasetWeightOr(t *testing.T) {
	var ds Dataset
	if ds.WeightOr(1) != 1 {
		t.Fatalf("unset weight should fall back to default")
	}
	if sampleDataset().WeightOr(1) != 2 {
		t.Fatalf("explicit weight ignored")
	}
}

func TestDatasetComponentsNormalized(t *testing.T) {
	ds := sampleDataset()
	got := ds.SortedComponents()
	if len(got) != 2 || got[0] != "A" || got[1] != "B" {
		t.Fatalf("unexpected components %v", got)
	}
	if _, ok := ds.ComponentSet()["B"]; !ok {
		t.Fatalf("component set not upper-cased")
	}
}

func TestDatasetCloneIsDeep(t *testing.T) {
	orig := sampleDataset()
	c := orig.Clone()
	c.Components[0] = "Z"
	c.Conditions["X_B"].Data[0] = 0.9
	c.Values.Data[0] = 0.1
	c.ReferenceState.Phases[0] = "FCC_A1"
	c.ReferenceState.Conditions["X_B"].Data[0] = 0.2
	*c.Weight = 7
	if orig.Components[0] != "b" || orig.Conditions["X_B"].Data[0] != 0.3 || orig.Values.Data[0] != 0.5 {
		t.Fatalf("clone shares dataset state")
	}
	if orig.ReferenceState.Phases[0] != "LIQUID" || orig.ReferenceState.Conditions["X_B"].Data[0] != 0.01 {
		t.Fatalf("clone shares reference state")
	}
	if *orig.Weight != 2 {
		t.Fatalf("clone shares weight")
	}
}

func TestPredicates(t *testing.T) {
	ds := sampleDataset()
	if !All(ds) {
		t.Fatalf("All must match")
	}
	if !OutputContains("ACR")(ds) || OutputContains("HM")(ds) {
		t.Fatalf("unexpected OutputContains result")
	}
	if !ComponentsSubsetOf([]string{"a", "b", "va"})(ds) {
		t.Fatalf("dataset within A-B-VA should match")
	}
	if ComponentsSubsetOf([]string{"A"})(ds) {
		t.Fatalf("dataset with B should not match an A-only system")
	}
	if !And(nil, All, OutputContains("ACR"))(ds) || And(All, OutputContains("HM"))(ds) {
		t.Fatalf("unexpected And result")
	}
}
