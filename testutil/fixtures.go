package testutil

import (
	"thermofit/pkg/domain"
	"thermofit/pkg/thermo"
)

// BinaryDatabase returns an A-B(-C) database with a liquid described by a
// regular-solution interaction L = VV0001 + VV0002*T, a metastable FCC phase
// and a C-only phase that A-B datasets must never see.
func BinaryDatabase() *thermo.Database {
	db, err := thermo.NewDatabase(
		[]string{"A", "B", "C", "VA"},
		[]*thermo.Phase{
			{
				Name:        "LIQUID",
				Sublattices: [][]string{{"A", "B"}},
				Endmembers: map[string]thermo.Term{
					"A": {A: thermo.Literal(-1000)},
					"B": {A: thermo.Literal(-2000), B: thermo.Literal(-1)},
				},
				Interactions: []thermo.Interaction{{
					Species: [2]string{"A", "B"},
					Term:    thermo.Term{A: thermo.Symbol("VV0001"), B: thermo.Symbol("VV0002")},
				}},
			},
			{
				Name:        "FCC_A1",
				Sublattices: [][]string{{"A", "B"}, {"VA"}},
				Endmembers: map[string]thermo.Term{
					"A": {A: thermo.Literal(50000)},
					"B": {A: thermo.Literal(50000)},
				},
			},
			{
				Name:        "C_PHASE",
				Sublattices: [][]string{{"C"}},
				Endmembers:  map[string]thermo.Term{"C": {A: thermo.Literal(0)}},
			},
		},
		map[string]float64{"VV0001": -10000, "VV0002": 2, "GHSERA": 0},
	)
	if err != nil {
		panic(err)
	}
	return db
}

// ActivityDataset returns the canonical A-B activity record: reference at
// X(B)=0.01 in the liquid and one sample at X(B)=0.3 with a measured
// activity of 0.5.
func ActivityDataset(id string) domain.Dataset {
	return domain.Dataset{
		ID:         id,
		Components: []string{"A", "B"},
		Phases:     []string{"LIQUID"},
		Output:     "ACR_B",
		Conditions: map[string]domain.Array{
			"P":   domain.Scalar(1e5),
			"T":   domain.Scalar(1000),
			"X_B": domain.Vector(0.3),
		},
		Values: mustArray([]int{1, 1, 1}, []float64{0.5}),
		ReferenceState: &domain.ReferenceState{
			Phases: []string{"LIQUID"},
			Conditions: map[string]domain.Array{
				"P":   domain.Scalar(1e5),
				"T":   domain.Scalar(1000),
				"X_B": domain.Scalar(0.01),
			},
		},
		Reference: "synthetic",
	}
}

// GridDataset returns an activity record measured on a 1x2x3 (P, T, X) grid.
func GridDataset(id string) domain.Dataset {
	ds := ActivityDataset(id)
	ds.Conditions = map[string]domain.Array{
		"P":   domain.Vector(1e5),
		"T":   domain.Vector(900, 1100),
		"X_B": domain.Vector(0.2, 0.4, 0.6),
	}
	ds.Values = mustArray([]int{1, 2, 3}, []float64{0.1, 0.3, 0.5, 0.15, 0.35, 0.55})
	return ds
}

func mustArray(shape []int, data []float64) domain.Array {
	a, err := domain.NewArray(shape, data)
	if err != nil {
		panic(err)
	}
	return a
}
