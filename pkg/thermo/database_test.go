package thermo

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const binaryYAML = `
elements: [b, a, va]
symbols:
  VV0001: -10000
  VV0002: 2.5
  GHSERA: 0
phases:
  liquid:
    sublattices: [[a, b]]
    endmembers:
      a: {a: GHSERA}
      b: {a: -2000, b: -1}
    interactions:
      - species: [a, b]
        a: VV0001
        b: VV0002
  fcc_a1:
    sublattices: [[A, B], [VA]]
    endmembers:
      A: {a: 50000}
  vac_only:
    sublattices: [[VA]]
  c_phase:
    sublattices: [[C]]
`

func loadBinary(t *testing.T) *Database {
	t.Helper()
	db, err := Load(strings.NewReader(binaryYAML))
	require.NoError(t, err)
	return db
}

func TestLoadNormalizesNames(t *testing.T) {
	db := loadBinary(t)
	assert.Equal(t, []string{"A", "B", "VA"}, db.Elements)
	assert.Equal(t, []string{"C_PHASE", "FCC_A1", "LIQUID", "VAC_ONLY"}, db.PhaseNames())

	liq := db.Phases["LIQUID"]
	require.NotNil(t, liq)
	assert.Equal(t, "LIQUID", liq.Name)
	assert.Equal(t, [][]string{{"A", "B"}}, liq.Sublattices)
	assert.Contains(t, liq.Endmembers, "B")
	assert.Equal(t, [2]string{"A", "B"}, liq.Interactions[0].Species)
	assert.Equal(t, Symbol("VV0001"), liq.Interactions[0].A)
	assert.Equal(t, Literal(-2000), liq.Endmembers["B"].A)
}

func TestLoadRejectsBadDocuments(t *testing.T) {
	cases := map[string]string{
		"unknown field":    "elements: [A]\nbogus: 1\n",
		"no sublattices":   "phases:\n  liq:\n    endmembers: {}\n",
		"empty sublattice": "phases:\n  liq:\n    sublattices: [[]]\n",
		"empty symbol":     "phases:\n  liq:\n    sublattices: [[A]]\n    endmembers:\n      A: {a: \"  \"}\n",
		"list coefficient": "phases:\n  liq:\n    sublattices: [[A]]\n    endmembers:\n      A: {a: [1]}\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(strings.NewReader(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.yaml")
	require.NoError(t, os.WriteFile(path, []byte(binaryYAML), 0o600))
	db, err := LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, db.Phases, 4)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestFilterPhases(t *testing.T) {
	db := loadBinary(t)
	assert.Equal(t, []string{"FCC_A1", "LIQUID"}, db.FilterPhases([]string{"A", "B", "VA"}, nil))
	assert.Equal(t, []string{"LIQUID"}, db.FilterPhases([]string{"a", "b"}, nil), "FCC needs VA on its second sublattice")
	assert.Empty(t, db.FilterPhases([]string{"VA"}, nil), "vacancy-only phases are never candidates")
	assert.Equal(t, []string{"LIQUID"}, db.FilterPhases([]string{"A", "B", "VA"}, []string{"liquid", "MISSING"}))
	assert.Equal(t, []string{"C_PHASE"}, db.FilterPhases([]string{"C"}, nil))
}

func TestSymbolsToFit(t *testing.T) {
	db := loadBinary(t)
	assert.Equal(t, []string{"VV0001", "VV0002"}, db.SymbolsToFit())
}

func TestTermEvalAndSensitivity(t *testing.T) {
	db := loadBinary(t)
	term := db.Phases["LIQUID"].Interactions[0].Term

	v, err := term.Eval(1000, db.Symbols, nil)
	require.NoError(t, err)
	assert.InDelta(t, -10000+2.5*1000, v, 1e-9)

	v, err = term.Eval(1000, db.Symbols, map[string]float64{"VV0001": 0})
	require.NoError(t, err)
	assert.InDelta(t, 2500, v, 1e-9)

	assert.Equal(t, 1.0, term.Sensitivity(1000, "VV0001"))
	assert.Equal(t, 1000.0, term.Sensitivity(1000, "VV0002"))
	assert.Equal(t, 0.0, term.Sensitivity(1000, "GHSERA"))

	_, err = Term{A: Symbol("NOPE")}.Eval(1, db.Symbols, nil)
	assert.True(t, errors.Is(err, ErrUnknownSymbol))
}

func TestNewDatabase(t *testing.T) {
	db, err := NewDatabase([]string{"a"}, []*Phase{{Name: "liq", Sublattices: [][]string{{"a"}}}}, map[string]float64{"VV1": 1})
	require.NoError(t, err)
	assert.Contains(t, db.Phases, "LIQ")
	assert.Equal(t, []string{"VV1"}, db.SymbolsToFit())

	_, err = NewDatabase(nil, []*Phase{{Sublattices: [][]string{{"A"}}}}, nil)
	assert.Error(t, err, "unnamed phase")

	_, err = NewDatabase(nil, []*Phase{
		{Name: "liq", Sublattices: [][]string{{"A"}}},
		{Name: "LIQ", Sublattices: [][]string{{"A"}}},
	}, nil)
	assert.Error(t, err, "duplicate phase")

	_, err = NewDatabase(nil, []*Phase{{Name: "liq"}}, nil)
	assert.Error(t, err, "phase without sublattices")
}
