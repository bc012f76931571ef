package forecast

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"go.llib.dev/frameless/pkg/errorkit"
	"gopkg.in/yaml.v3"
)

const ErrInvalidModel errorkit.Error = "ErrInvalidModel"

//go:embed model.yaml
var defaultModel []byte

type modelDTO struct {
	Features []featureDTO `yaml:"features"`
	Targets  []targetDTO  `yaml:"targets"`
}

type featureDTO struct {
	Name    string   `yaml:"name"`
	Default float64  `yaml:"default"`
	Labels  []string `yaml:"labels"`
}

type targetDTO struct {
	Name         string             `yaml:"name"`
	Intercept    float64            `yaml:"intercept"`
	Coefficients map[string]float64 `yaml:"coefficients"`
}

type feature struct {
	Name    string
	Default float64
	// Labels is set for categorical features, the encoded value is the label's index.
	Labels map[string]int
}

func (f feature) categorical() bool { return f.Labels != nil }

type target struct {
	Name         string
	Intercept    float64
	Coefficients []float64
}

// Model is a multi-output linear regression over the project features.
type Model struct {
	features []feature
	targets  []target
}

// ParseModel builds a Model from its YAML document.
func ParseModel(data []byte) (*Model, error) {
	var dto modelDTO
	if err := yaml.Unmarshal(data, &dto); err != nil {
		return nil, fmt.Errorf("forecast model: %w", err)
	}
	if len(dto.Features) == 0 || len(dto.Targets) == 0 {
		return nil, ErrInvalidModel.F("features and targets are required")
	}
	var (
		m     Model
		index = map[string]int{}
	)
	for i, f := range dto.Features {
		if f.Name == "" {
			return nil, ErrInvalidModel.F("feature without name")
		}
		if _, ok := index[f.Name]; ok {
			return nil, ErrInvalidModel.F("duplicate feature: %s", f.Name)
		}
		index[f.Name] = i
		ft := feature{Name: f.Name, Default: f.Default}
		if len(f.Labels) > 0 {
			ft.Labels = make(map[string]int, len(f.Labels))
			for code, label := range f.Labels {
				ft.Labels[label] = code
			}
		}
		m.features = append(m.features, ft)
	}
	for _, t := range dto.Targets {
		if t.Name == "" {
			return nil, ErrInvalidModel.F("target without name")
		}
		tg := target{Name: t.Name, Intercept: t.Intercept, Coefficients: make([]float64, len(m.features))}
		for name, c := range t.Coefficients {
			i, ok := index[name]
			if !ok {
				return nil, ErrInvalidModel.F("%s: unknown feature %s", t.Name, name)
			}
			tg.Coefficients[i] = c
		}
		m.targets = append(m.targets, tg)
	}
	return &m, nil
}

var loadDefaultModel = sync.OnceValues(func() (*Model, error) {
	return ParseModel(defaultModel)
})

// DefaultModel returns the embedded material demand model.
func DefaultModel() *Model {
	m, err := loadDefaultModel()
	if err != nil {
		panic(err)
	}
	return m
}

// Targets lists the predicted material columns in model order.
func (m *Model) Targets() []string {
	names := make([]string, 0, len(m.targets))
	for _, t := range m.targets {
		names = append(names, t.Name)
	}
	return names
}

// Features lists the input columns in model order.
func (m *Model) Features() []string {
	names := make([]string, 0, len(m.features))
	for _, f := range m.features {
		names = append(names, f.Name)
	}
	return names
}

type Estimate struct {
	Predictions map[string]float64 `json:"predictions"`
	InputUsed   map[string]float64 `json:"input_used"`
}

// Predict evaluates the model for the raw request fields.
// Missing or unparsable numbers take the feature default, unknown categories encode to 0.
func (m *Model) Predict(input map[string]any) Estimate {
	x := make([]float64, len(m.features))
	used := make(map[string]float64, len(m.features))
	for i, f := range m.features {
		x[i] = f.encode(input[f.Name])
		used[f.Name] = x[i]
	}
	predictions := make(map[string]float64, len(m.targets))
	for _, t := range m.targets {
		y := t.Intercept
		for i, c := range t.Coefficients {
			y += c * x[i]
		}
		predictions[t.Name] = math.Max(0, y)
	}
	return Estimate{Predictions: predictions, InputUsed: used}
}

func (f feature) encode(raw any) float64 {
	if f.categorical() {
		label, ok := raw.(string)
		if !ok {
			return 0
		}
		return float64(f.Labels[label])
	}
	if v, ok := toFloat(raw); ok {
		return v
	}
	return f.Default
}

func toFloat(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}
