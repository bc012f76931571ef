package rowrisk

import (
	_ "embed"
	"fmt"
	"math"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed tables.yaml
var defaultTables []byte

type tablesDTO struct {
	Factors []factorDTO `yaml:"factors"`
}

type factorDTO struct {
	Name    string              `yaml:"name"`
	Weight  float64             `yaml:"weight"`
	Default float64             `yaml:"default"`
	States  map[string]stateDTO `yaml:"states"`
}

type stateDTO struct {
	Default *float64           `yaml:"default"`
	Cities  map[string]float64 `yaml:"cities"`
}

type factorTable struct {
	Factor  Factor
	Weight  float64
	Default float64
	States  map[string]stateTable
}

type stateTable struct {
	Default *float64
	Cities  map[string]float64
}

// lookup resolves city, then state default, then the factor default.
func (ft factorTable) lookup(state, city string) float64 {
	st, ok := ft.States[state]
	if !ok {
		return ft.Default
	}
	if v, ok := st.Cities[city]; ok {
		return v
	}
	if st.Default != nil {
		return *st.Default
	}
	return ft.Default
}

// Parse builds an Engine from a YAML table document.
func Parse(data []byte) (*Engine, error) {
	var dto tablesDTO
	if err := yaml.Unmarshal(data, &dto); err != nil {
		return nil, fmt.Errorf("rowrisk tables: %w", err)
	}
	if len(dto.Factors) == 0 {
		return nil, ErrInvalidTables.F("no factors")
	}
	var (
		e     Engine
		total float64
		seen  = map[string]struct{}{}
	)
	for _, f := range dto.Factors {
		if f.Name == "" {
			return nil, ErrInvalidTables.F("factor without name")
		}
		if _, ok := seen[f.Name]; ok {
			return nil, ErrInvalidTables.F("duplicate factor: %s", f.Name)
		}
		seen[f.Name] = struct{}{}
		if f.Weight <= 0 {
			return nil, ErrInvalidTables.F("%s: weight must be positive", f.Name)
		}
		total += f.Weight
		ft := factorTable{
			Factor:  Factor(f.Name),
			Weight:  f.Weight,
			Default: f.Default,
			States:  make(map[string]stateTable, len(f.States)),
		}
		for state, st := range f.States {
			ft.States[normalize(state)] = stateTable{Default: st.Default, Cities: normalizeKeys(st.Cities)}
		}
		e.factors = append(e.factors, ft)
	}
	if math.Abs(total-1) > 1e-9 {
		return nil, ErrInvalidTables.F("weights sum to %.4f", total)
	}
	return &e, nil
}

var defaultEngine = sync.OnceValues(func() (*Engine, error) {
	return Parse(defaultTables)
})

// Default returns the engine built from the embedded Right-of-Way tables.
func Default() *Engine {
	e, err := defaultEngine()
	if err != nil {
		panic(err)
	}
	return e
}

func normalizeKeys(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[normalize(k)] = v
	}
	return out
}
