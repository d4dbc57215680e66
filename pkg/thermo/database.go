// Package thermo describes a thermodynamic database: the elements, phases and
// model symbols a residual function is fitted against.
package thermo

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// GasConstant in J/(mol K).
const GasConstant = 8.31451

// Vacancy is the species name for an empty lattice site.
const Vacancy = "VA"

// SymbolPrefix marks database symbols that are fitted by default.
const SymbolPrefix = "VV"

// ErrUnknownSymbol reports a coefficient that names an undefined symbol.
var ErrUnknownSymbol = errors.New("thermo: unknown symbol")

// Coefficient is either a literal value or a reference to a database symbol.
type Coefficient struct {
	Value  float64
	Symbol string
}

// Literal returns a constant coefficient.
func Literal(v float64) Coefficient { return Coefficient{Value: v} }

// Symbol returns a coefficient bound to a named symbol.
func Symbol(name string) Coefficient { return Coefficient{Symbol: name} }

// Eval resolves the coefficient. Overrides take precedence over symbols.
func (c Coefficient) Eval(symbols, overrides map[string]float64) (float64, error) {
	if c.Symbol == "" {
		return c.Value, nil
	}
	if v, ok := overrides[c.Symbol]; ok {
		return v, nil
	}
	if v, ok := symbols[c.Symbol]; ok {
		return v, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrUnknownSymbol, c.Symbol)
}

// UnmarshalYAML accepts a number or a symbol name.
func (c *Coefficient) UnmarshalYAML(node *yaml.Node) error {
	var f float64
	if err := node.Decode(&f); err == nil {
		*c = Literal(f)
		return nil
	}
	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("coefficient must be a number or symbol name: %w", err)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("coefficient symbol is empty")
	}
	*c = Symbol(s)
	return nil
}

// Term is a temperature-linear expression A + B*T.
type Term struct {
	A Coefficient `yaml:"a"`
	B Coefficient `yaml:"b"`
}

// Eval returns the value of the term at temperature t.
func (e Term) Eval(t float64, symbols, overrides map[string]float64) (float64, error) {
	a, err := e.A.Eval(symbols, overrides)
	if err != nil {
		return 0, err
	}
	b, err := e.B.Eval(symbols, overrides)
	if err != nil {
		return 0, err
	}
	return a + b*t, nil
}

// Sensitivity is the derivative of the term with respect to a symbol.
func (e Term) Sensitivity(t float64, symbol string) float64 {
	var d float64
	if e.A.Symbol == symbol {
		d++
	}
	if e.B.Symbol == symbol {
		d += t
	}
	return d
}

// Interaction is a binary excess parameter between two species.
type Interaction struct {
	Species [2]string `yaml:"species"`
	Term    `yaml:",inline"`
}

// Phase is a solution phase. Sublattices lists the species allowed on each
// sublattice.
type Phase struct {
	Name         string          `yaml:"-"`
	Sublattices  [][]string      `yaml:"sublattices"`
	Endmembers   map[string]Term `yaml:"endmembers"`
	Interactions []Interaction   `yaml:"interactions"`
}

// Database is a parsed thermodynamic database.
type Database struct {
	Elements []string           `yaml:"elements"`
	Phases   map[string]*Phase  `yaml:"phases"`
	Symbols  map[string]float64 `yaml:"symbols"`
}

// NewDatabase assembles a database from in-memory definitions. Names are
// upper-cased the same way Load does.
func NewDatabase(elements []string, phases []*Phase, symbols map[string]float64) (*Database, error) {
	db := &Database{
		Elements: append([]string(nil), elements...),
		Phases:   make(map[string]*Phase, len(phases)),
		Symbols:  make(map[string]float64, len(symbols)),
	}
	for _, p := range phases {
		if p == nil || p.Name == "" {
			return nil, fmt.Errorf("phase requires a name")
		}
		if _, dup := db.Phases[strings.ToUpper(p.Name)]; dup {
			return nil, fmt.Errorf("phase %s defined twice", p.Name)
		}
		db.Phases[strings.ToUpper(p.Name)] = p
	}
	for k, v := range symbols {
		db.Symbols[k] = v
	}
	if err := db.normalize(); err != nil {
		return nil, err
	}
	return db, nil
}

// Load decodes a YAML database document.
func Load(r io.Reader) (*Database, error) {
	var db Database
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&db); err != nil {
		return nil, fmt.Errorf("decode database: %w", err)
	}
	if err := db.normalize(); err != nil {
		return nil, err
	}
	return &db, nil
}

// LoadFile reads a YAML database from disk.
func LoadFile(path string) (*Database, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = f.Close() }()
	return Load(f)
}

func (db *Database) normalize() error {
	for i, el := range db.Elements {
		db.Elements[i] = strings.ToUpper(el)
	}
	sort.Strings(db.Elements)
	if db.Symbols == nil {
		db.Symbols = map[string]float64{}
	}
	if db.Phases == nil {
		db.Phases = map[string]*Phase{}
	}
	normalized := make(map[string]*Phase, len(db.Phases))
	for name, phase := range db.Phases {
		if phase == nil {
			return fmt.Errorf("phase %s has no definition", name)
		}
		name = strings.ToUpper(name)
		phase.Name = name
		if len(phase.Sublattices) == 0 {
			return fmt.Errorf("phase %s has no sublattices", name)
		}
		for s, subl := range phase.Sublattices {
			if len(subl) == 0 {
				return fmt.Errorf("phase %s sublattice %d is empty", name, s)
			}
			for j, sp := range subl {
				subl[j] = strings.ToUpper(sp)
			}
		}
		endmembers := make(map[string]Term, len(phase.Endmembers))
		for sp, term := range phase.Endmembers {
			endmembers[strings.ToUpper(sp)] = term
		}
		phase.Endmembers = endmembers
		for j := range phase.Interactions {
			for k := range phase.Interactions[j].Species {
				phase.Interactions[j].Species[k] = strings.ToUpper(phase.Interactions[j].Species[k])
			}
		}
		normalized[name] = phase
	}
	db.Phases = normalized
	return nil
}

// PhaseNames returns all phase names in sorted order.
func (db *Database) PhaseNames() []string {
	out := make([]string, 0, len(db.Phases))
	for name := range db.Phases {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// FilterPhases returns the candidate phases that can be built from the given
// components: every sublattice must hold at least one of them and the phase
// must contain something other than vacancies. A nil candidate list means all
// phases of the database. The result is sorted.
func (db *Database) FilterPhases(components, candidates []string) []string {
	comps := make(map[string]struct{}, len(components))
	for _, c := range components {
		comps[strings.ToUpper(c)] = struct{}{}
	}
	if candidates == nil {
		candidates = db.PhaseNames()
	}
	out := make([]string, 0, len(candidates))
	for _, name := range candidates {
		phase, ok := db.Phases[strings.ToUpper(name)]
		if !ok {
			continue
		}
		if phase.expressibleWith(comps) {
			out = append(out, phase.Name)
		}
	}
	sort.Strings(out)
	return out
}

func (p *Phase) expressibleWith(comps map[string]struct{}) bool {
	hasSpecies := false
	for _, subl := range p.Sublattices {
		occupied := false
		for _, sp := range subl {
			if _, ok := comps[sp]; ok {
				occupied = true
				if sp != Vacancy {
					hasSpecies = true
				}
			}
		}
		if !occupied {
			return false
		}
	}
	return hasSpecies
}

// SymbolsToFit returns the database symbols carrying the fit prefix, sorted.
func (db *Database) SymbolsToFit() []string {
	var out []string
	for name := range db.Symbols {
		if strings.HasPrefix(name, SymbolPrefix) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
