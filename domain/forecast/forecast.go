// Package forecast serves the material demand predictions of projects
// and keeps the actual consumption entered against them.
//
// Every project owns a single document with one entry per forecast month.
// Forecasts recorded before the monthly documents existed are kept as
// legacy records and are only read as a fallback.
package forecast

import (
	"context"
	"iter"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.llib.dev/frameless/pkg/errorkit"
	"go.llib.dev/frameless/pkg/iterkit"
	"go.llib.dev/frameless/pkg/logger"
	"go.llib.dev/frameless/pkg/logging"
	"go.llib.dev/frameless/port/crud"
	"go.llib.dev/testcase/clock"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"plangrid/domain/project"
)

const (
	ErrModelUnavailable errorkit.Error = "Model not available - still loading. Please try again in a moment."
	ErrNotFound         errorkit.Error = "No forecast found"
	ErrInvalidMonth     errorkit.Error = "Month must be formatted as YYYY-MM"
)

// MonthLayout is the layout of forecast months.
const MonthLayout = "2006-01"

// UnknownProject is the project id of forecasts requested without one.
const UnknownProject = "unknown"

// Values holds actual quantities per material as entered by users.
// Entries that are not numbers are ignored when summed.
type Values map[string]any

func (vs Values) Sum() float64 {
	var total float64
	for _, v := range vs {
		if f, ok := toFloat(v); ok {
			total += f
		}
	}
	return total
}

type Entry struct {
	Month                 string             `json:"forecast_month"`
	Predictions           map[string]float64 `json:"predictions"`
	ActualValues          Values             `json:"actual_values"`
	CreatedAt             time.Time          `json:"created_at"`
	UpdatedAt             time.Time          `json:"updated_at"`
	ActualValuesUpdatedAt *time.Time         `json:"actual_values_updated_at,omitempty"`
	ActualValuesUpdatedBy string             `json:"actual_values_updated_by,omitempty"`
}

func (e Entry) ForecastTotal() float64 {
	var total float64
	for _, v := range e.Predictions {
		total += v
	}
	return total
}

func (e Entry) ActualTotal() float64 { return e.ActualValues.Sum() }

// Document is the forecast history of one project.
type Document struct {
	ProjectID string  `ext:"id" json:"project_id"`
	Forecasts []Entry `json:"forecasts"`
}

func (d Document) lookup(month string) (int, bool) {
	for i, e := range d.Forecasts {
		if e.Month == month {
			return i, true
		}
	}
	return -1, false
}

// Record is a forecast stored by the earlier single record per forecast API.
type Record struct {
	ID            string             `ext:"id" json:"id"`
	ProjectID     string             `json:"project_id"`
	Material      string             `json:"material,omitempty"`
	Quantity      *float64           `json:"quantity,omitempty"`
	Unit          string             `json:"unit,omitempty"`
	RangeMin      *float64           `json:"range_min,omitempty"`
	RangeMax      *float64           `json:"range_max,omitempty"`
	Confidence    *float64           `json:"confidence,omitempty"`
	Period        string             `json:"period,omitempty"`
	Status        string             `json:"status,omitempty"`
	ForecastMonth string             `json:"forecast_month,omitempty"`
	Predictions   map[string]float64 `json:"predictions,omitempty"`
	ActualValues  Values             `json:"actual_values,omitempty"`
	CreatedBy     string             `json:"created_by"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     *time.Time         `json:"updated_at,omitempty"`
}

type DocumentRepository interface {
	crud.ByIDFinder[Document, string]
	crud.Saver[Document]
	QueryMany(ctx context.Context, filter func(Document) bool) iter.Seq2[Document, error]
}

type RecordRepository interface {
	crud.Creator[Record]
	QueryMany(ctx context.Context, filter func(Record) bool) iter.Seq2[Record, error]
}

type Service struct {
	// Model is nil while no model is available.
	Model                 *Model
	Documents             DocumentRepository
	Records               RecordRepository
	MaterialActualRecords MaterialActualRepository
	Projects              project.Service
}

// CurrentMonth formats the month of now.
func CurrentMonth(now time.Time) string {
	return now.UTC().Format(MonthLayout)
}

// ParseMonth validates a YYYY-MM month.
func ParseMonth(month string) (time.Time, error) {
	t, err := time.Parse(MonthLayout, month)
	if err != nil {
		return time.Time{}, ErrInvalidMonth.F("%q", month)
	}
	return t, nil
}

// Forecast predicts the material quantities for the request fields and stores them
// as the project's entry for forecast_month, replacing an earlier entry and its actual values.
func (s Service) Forecast(ctx context.Context, username string, input map[string]any) (Estimate, error) {
	if s.Model == nil {
		return Estimate{}, ErrModelUnavailable
	}
	now := clock.Now().UTC()
	month := CurrentMonth(now)
	if v, ok := input["forecast_month"].(string); ok && v != "" {
		month = v
	}
	if _, err := ParseMonth(month); err != nil {
		return Estimate{}, err
	}
	projectID := UnknownProject
	if v, ok := input["project_id"].(string); ok && v != "" {
		projectID = v
	}
	est := s.Model.Predict(input)
	doc, found, err := s.Documents.FindByID(ctx, projectID)
	if err != nil {
		return Estimate{}, err
	}
	if !found {
		doc = Document{ProjectID: projectID, Forecasts: []Entry{}}
	}
	if i, ok := doc.lookup(month); ok {
		doc.Forecasts[i].Predictions = est.Predictions
		doc.Forecasts[i].ActualValues = Values{}
		doc.Forecasts[i].UpdatedAt = now
	} else {
		doc.Forecasts = append(doc.Forecasts, Entry{
			Month:        month,
			Predictions:  est.Predictions,
			ActualValues: Values{},
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}
	if err := s.Documents.Save(ctx, &doc); err != nil {
		return Estimate{}, err
	}
	logger.Info(ctx, "forecast stored",
		logging.Field("project_id", projectID),
		logging.Field("forecast_month", month),
		logging.Field("requested_by", username))
	return est, nil
}

// ProjectForecasts lists the months of a project that have predictions, newest month first.
func (s Service) ProjectForecasts(ctx context.Context, username, projectID string) ([]Entry, error) {
	if _, err := s.Projects.Get(ctx, username, projectID); err != nil {
		return nil, err
	}
	doc, _, err := s.Documents.FindByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	entries := []Entry{}
	for _, e := range doc.Forecasts {
		if len(e.Predictions) > 0 {
			entries = append(entries, e)
		}
	}
	if len(entries) == 0 {
		if entries, err = s.legacyEntries(ctx, projectID); err != nil {
			return nil, err
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Month > entries[j].Month
	})
	return entries, nil
}

func (s Service) legacyEntries(ctx context.Context, projectID string) ([]Entry, error) {
	records, err := iterkit.CollectE(s.Records.QueryMany(ctx, func(r Record) bool {
		return r.ProjectID == projectID && r.ForecastMonth != "" && len(r.Predictions) > 0
	}))
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(records))
	for _, r := range records {
		entries = append(entries, r.entry())
	}
	return entries, nil
}

func (r Record) entry() Entry {
	e := Entry{
		Month:        r.ForecastMonth,
		Predictions:  r.Predictions,
		ActualValues: r.ActualValues,
		CreatedAt:    r.CreatedAt,
	}
	if e.ActualValues == nil {
		e.ActualValues = Values{}
	}
	if r.UpdatedAt != nil {
		e.UpdatedAt = *r.UpdatedAt
	}
	return e
}

type MonthForecast struct {
	ProjectID string `json:"project_id"`
	Entry
}

// ForecastForMonth returns a single month of a project, falling back to the legacy records.
func (s Service) ForecastForMonth(ctx context.Context, username, projectID, month string) (MonthForecast, error) {
	if _, err := s.Projects.Get(ctx, username, projectID); err != nil {
		return MonthForecast{}, err
	}
	doc, _, err := s.Documents.FindByID(ctx, projectID)
	if err != nil {
		return MonthForecast{}, err
	}
	if i, ok := doc.lookup(month); ok {
		return MonthForecast{ProjectID: projectID, Entry: doc.Forecasts[i]}, nil
	}
	legacy, err := s.legacyEntries(ctx, projectID)
	if err != nil {
		return MonthForecast{}, err
	}
	for _, e := range legacy {
		if e.Month == month {
			return MonthForecast{ProjectID: projectID, Entry: e}, nil
		}
	}
	return MonthForecast{}, ErrNotFound.F("for project %s in month %s", projectID, month)
}

type ActualsReport struct {
	Month          string             `json:"forecast_month"`
	ProjectID      string             `json:"project_id"`
	ForecastValues map[string]float64 `json:"forecast_values"`
	ActualValues   Values             `json:"actual_values"`
	Message        string             `json:"message,omitempty"`
	RetrievedAt    time.Time          `json:"retrieved_at"`
}

// Actuals compares the forecast of a month with the actual values entered for it.
func (s Service) Actuals(ctx context.Context, username, projectID, month string) (ActualsReport, error) {
	if _, err := s.Projects.Get(ctx, username, projectID); err != nil {
		return ActualsReport{}, err
	}
	doc, _, err := s.Documents.FindByID(ctx, projectID)
	if err != nil {
		return ActualsReport{}, err
	}
	i, ok := doc.lookup(month)
	if !ok {
		return ActualsReport{}, ErrNotFound.F("for project %s in month %s", projectID, month)
	}
	e := doc.Forecasts[i]
	report := ActualsReport{
		Month:          month,
		ProjectID:      projectID,
		ForecastValues: e.Predictions,
		ActualValues:   e.ActualValues,
		RetrievedAt:    clock.Now().UTC(),
	}
	if len(report.ActualValues) == 0 {
		report.ActualValues = Values{}
		report.Message = "No actual values entered yet for this month"
	}
	return report, nil
}

type SavedActuals struct {
	Message      string `json:"message"`
	ProjectID    string `json:"project_id"`
	Month        string `json:"month"`
	ActualValues Values `json:"actual_values"`
}

// SaveActualValues records the actual values of a month, the latest forecast month when month is empty.
func (s Service) SaveActualValues(ctx context.Context, username, projectID, month string, values Values) (SavedActuals, error) {
	if _, err := s.Projects.Get(ctx, username, projectID); err != nil {
		return SavedActuals{}, err
	}
	doc, _, err := s.Documents.FindByID(ctx, projectID)
	if err != nil {
		return SavedActuals{}, err
	}
	if month == "" {
		for _, e := range doc.Forecasts {
			if len(e.Predictions) > 0 && e.Month > month {
				month = e.Month
			}
		}
		if month == "" {
			return SavedActuals{}, ErrNotFound.F("for project %s", projectID)
		}
	}
	i, ok := doc.lookup(month)
	if !ok {
		return SavedActuals{}, ErrNotFound.F("for month %s", month)
	}
	if values == nil {
		values = Values{}
	}
	now := clock.Now().UTC()
	doc.Forecasts[i].ActualValues = values
	doc.Forecasts[i].UpdatedAt = now
	doc.Forecasts[i].ActualValuesUpdatedAt = &now
	doc.Forecasts[i].ActualValuesUpdatedBy = username
	if err := s.Documents.Save(ctx, &doc); err != nil {
		return SavedActuals{}, err
	}
	return SavedActuals{
		Message:      "Actual values saved successfully",
		ProjectID:    projectID,
		Month:        month,
		ActualValues: values,
	}, nil
}

// ProjectEntry is a forecast month together with its project.
type ProjectEntry struct {
	ProjectID string
	Entry
}

// Entries returns the forecast months with predictions of the given projects.
func (s Service) Entries(ctx context.Context, projectIDs []string) ([]ProjectEntry, error) {
	want := make(map[string]struct{}, len(projectIDs))
	for _, id := range projectIDs {
		want[id] = struct{}{}
	}
	docs, err := iterkit.CollectE(s.Documents.QueryMany(ctx, func(d Document) bool {
		_, ok := want[d.ProjectID]
		return ok
	}))
	if err != nil {
		return nil, err
	}
	var out []ProjectEntry
	for _, d := range docs {
		for _, e := range d.Forecasts {
			if len(e.Predictions) > 0 {
				out = append(out, ProjectEntry{ProjectID: d.ProjectID, Entry: e})
			}
		}
	}
	return out, nil
}

// List returns the legacy forecast records of the projects the user may access, newest first.
func (s Service) List(ctx context.Context, username string) ([]Record, error) {
	ids, err := s.Projects.AccessibleIDs(ctx, username)
	if err != nil {
		return nil, err
	}
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	records, err := iterkit.CollectE(s.Records.QueryMany(ctx, func(r Record) bool {
		_, ok := want[r.ProjectID]
		return ok
	}))
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []Record{}
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records, nil
}

// Create stores a legacy forecast record.
func (s Service) Create(ctx context.Context, username string, r Record) (Record, error) {
	r.ID = uuid.NewString()
	r.CreatedBy = username
	r.CreatedAt = clock.Now().UTC()
	if err := s.Records.Create(ctx, &r); err != nil {
		return Record{}, err
	}
	return r, nil
}

type Material struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Unit string `json:"unit"`
}

// Materials describes the materials predicted by the model.
func (s Service) Materials() ([]Material, error) {
	if s.Model == nil {
		return nil, ErrModelUnavailable
	}
	return Materials(s.Model.Targets()), nil
}

// Materials turns target columns such as quantity_steel_tons into catalogue entries.
func Materials(targets []string) []Material {
	title := cases.Title(language.English)
	out := make([]Material, 0, len(targets))
	for _, col := range targets {
		name := title.String(strings.ReplaceAll(col, "_", " "))
		name = strings.TrimPrefix(name, "Quantity ")
		unit := "units"
		if strings.Contains(strings.ToLower(col), "tons") {
			unit = "tons"
		}
		out = append(out, Material{ID: col, Name: name, Unit: unit})
	}
	return out
}
