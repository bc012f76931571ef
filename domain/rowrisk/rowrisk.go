// Package rowrisk scores the Right-of-Way acquisition risk of a project site.
//
// The score is a weighted sum of eight location factors, each looked up from
// a state→city table with state and factor level defaults, plus a small
// deterministic perturbation derived from the location name.
// The result is clamped to [0, 100] and bucketed into High, Medium and Low.
package rowrisk

import (
	"context"
	"math"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"go.llib.dev/frameless/pkg/errorkit"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const ErrInvalidTables errorkit.Error = "invalid rowrisk tables"

type Factor string

const (
	PopulationDensity   Factor = "population_density"
	ForestArea          Factor = "forest_area"
	AgriculturalLand    Factor = "agricultural_land"
	UrbanArea           Factor = "urban_area"
	ProtectedArea       Factor = "protected_area"
	TribalArea          Factor = "tribal_area"
	HistoricalConflicts Factor = "historical_conflicts"
	StatePolicy         Factor = "state_policy"
)

type Level string

const (
	High   Level = "High"
	Medium Level = "Medium"
	Low    Level = "Low"
)

const (
	HighThreshold   = 75.0
	MediumThreshold = 50.0
)

func LevelOf(score float64) Level {
	switch {
	case score >= HighThreshold:
		return High
	case score >= MediumThreshold:
		return Medium
	default:
		return Low
	}
}

// Location describes a project site.
// Location is the free-text fallback used for display when state or city is missing.
// It is shown as given, and a nil Location displays as "Unknown".
type Location struct {
	State    string  `json:"state"`
	City     string  `json:"city"`
	Location *string `json:"location,omitempty"`
}

type Assessment struct {
	Score    float64            `json:"risk_score"`
	Level    Level              `json:"risk_level"`
	Factors  map[Factor]float64 `json:"risk_factors"`
	Weights  map[Factor]float64 `json:"weights"`
	Location string             `json:"location"`
}

type Prediction struct {
	Assessment
	ID        string    `json:"prediction_id"`
	Timestamp time.Time `json:"prediction_timestamp"`
}

type Engine struct {
	factors []factorTable
}

func (e *Engine) Factors() []Factor {
	out := make([]Factor, 0, len(e.factors))
	for _, f := range e.factors {
		out = append(out, f.Factor)
	}
	return out
}

func (e *Engine) Assess(loc Location) Assessment {
	var (
		state = normalize(loc.State)
		city  = normalize(loc.City)
		a     = Assessment{
			Factors: make(map[Factor]float64, len(e.factors)),
			Weights: make(map[Factor]float64, len(e.factors)),
		}
		total float64
	)
	for _, ft := range e.factors {
		v := ft.lookup(state, city)
		a.Factors[ft.Factor] = v
		a.Weights[ft.Factor] = ft.Weight
		total += v * ft.Weight
	}
	total = clamp(total+float64(Perturbation(state, city)), 0, 100)
	a.Level = LevelOf(total)
	a.Score = round1(total)
	a.Location = displayName(state, city, loc.Location)
	return a
}

func (e *Engine) Predict(loc Location, now time.Time) Prediction {
	return Prediction{
		Assessment: e.Assess(loc),
		ID:         uuid.NewString(),
		Timestamp:  now.UTC(),
	}
}

type BatchItem struct {
	Index int `json:"location_index"`
	Assessment
}

// AssessBatch scores every location and keeps the input order.
func (e *Engine) AssessBatch(ctx context.Context, locs []Location) ([]BatchItem, error) {
	out := make([]BatchItem, len(locs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, loc := range locs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out[i] = BatchItem{Index: i, Assessment: e.Assess(loc)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Perturbation is the byte sum of state+city modulo 20, shifted into [-10, 9].
// Inputs are expected to be normalised.
func Perturbation(state, city string) int {
	var sum int
	for _, b := range []byte(state + city) {
		sum += int(b)
	}
	return sum%20 - 10
}

func displayName(state, city string, fallback *string) string {
	if state != "" && city != "" {
		return titleCase(city) + ", " + titleCase(state)
	}
	if fallback != nil {
		return *fallback
	}
	return "Unknown"
}

// titleCase title-cases every run of letters on its own,
// so "o'neil" becomes "O'Neil" and "navi-mumbai" becomes "Navi-Mumbai".
func titleCase(s string) string {
	var (
		b     strings.Builder
		title = cases.Title(language.Und)
		start = -1
	)
	b.Grow(len(s))
	for i, r := range s {
		switch {
		case unicode.IsLetter(r):
			if start < 0 {
				start = i
			}
		default:
			if start >= 0 {
				b.WriteString(title.String(s[start:i]))
				start = -1
			}
			b.WriteRune(r)
		}
	}
	if start >= 0 {
		b.WriteString(title.String(s[start:]))
	}
	return b.String()
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// round1 rounds half to even, so 40.25 becomes 40.2.
func round1(v float64) float64 {
	return math.RoundToEven(v*10) / 10
}
