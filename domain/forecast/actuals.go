package forecast

import (
	"context"
	"iter"
	"sort"
	"time"

	"go.llib.dev/frameless/pkg/iterkit"
	"go.llib.dev/frameless/port/crud"
	"go.llib.dev/testcase/clock"
)

// MaterialActual is the per material consumption a user recorded for a project month.
// There is at most one per (project_id, month).
type MaterialActual struct {
	ID                 string    `ext:"id" json:"id"`
	ProjectID          string    `json:"project_id"`
	Month              string    `json:"month"`
	MaterialValues     Values    `json:"material_values"`
	CombinedScore      float64   `json:"combined_score"`
	ForecastTotal      float64   `json:"forecast_total"`
	AccuracyPercentage float64   `json:"accuracy_percentage"`
	CreatedBy          string    `json:"created_by"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func MaterialActualID(projectID, month string) string {
	return projectID + "/" + month
}

type MaterialActualRepository interface {
	crud.ByIDFinder[MaterialActual, string]
	crud.Saver[MaterialActual]
	QueryMany(ctx context.Context, filter func(MaterialActual) bool) iter.Seq2[MaterialActual, error]
}

// MaterialActuals lists the recorded actuals, optionally narrowed to a project and a month, newest first.
func (s Service) MaterialActuals(ctx context.Context, projectID, month string) ([]MaterialActual, error) {
	out, err := iterkit.CollectE(s.MaterialActualRecords.QueryMany(ctx, func(a MaterialActual) bool {
		return (projectID == "" || a.ProjectID == projectID) && (month == "" || a.Month == month)
	}))
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []MaterialActual{}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

type MaterialActualReceipt struct {
	Message      string `json:"message"`
	ProjectID    string `json:"project_id"`
	Month        string `json:"month"`
	CurrentMonth string `json:"current_month"`
	PrevMonth    string `json:"prev_month"`
	NextMonth    string `json:"next_month"`
}

// SaveMaterialActual creates or replaces the actuals of a project month, the current month when none is given.
func (s Service) SaveMaterialActual(ctx context.Context, username string, a MaterialActual) (MaterialActualReceipt, error) {
	now := clock.Now().UTC()
	current := CurrentMonth(now)
	if a.Month == "" {
		a.Month = current
	}
	if a.MaterialValues == nil {
		a.MaterialValues = Values{}
	}
	a.ID = MaterialActualID(a.ProjectID, a.Month)
	a.CreatedBy = username
	a.CreatedAt = now
	a.UpdatedAt = now
	prev, found, err := s.MaterialActualRecords.FindByID(ctx, a.ID)
	if err != nil {
		return MaterialActualReceipt{}, err
	}
	if found {
		a.CreatedAt = prev.CreatedAt
	}
	if err := s.MaterialActualRecords.Save(ctx, &a); err != nil {
		return MaterialActualReceipt{}, err
	}
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return MaterialActualReceipt{
		Message:      "Material actuals saved successfully",
		ProjectID:    a.ProjectID,
		Month:        a.Month,
		CurrentMonth: current,
		PrevMonth:    CurrentMonth(first.AddDate(0, -1, 0)),
		NextMonth:    CurrentMonth(first.AddDate(0, 1, 0)),
	}, nil
}
