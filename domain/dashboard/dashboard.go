// Package dashboard aggregates projects, forecasts and orders into the views of the portal dashboard.
package dashboard

import (
	"context"
	"math"
	"slices"
	"sort"
	"time"

	"go.llib.dev/frameless/pkg/errorkit"
	"go.llib.dev/frameless/pkg/iterkit"
	"go.llib.dev/testcase/clock"

	"plangrid/domain/forecast"
	"plangrid/domain/inventory"
	"plangrid/domain/procurement"
	"plangrid/domain/project"
	"plangrid/domain/rowrisk"
	"plangrid/port/geo"
)

const ErrAccessDenied errorkit.Error = "Access denied to this project"

type Service struct {
	Projects  project.Service
	Forecasts forecast.Service
	Orders    procurement.Repository
	Inventory inventory.Service
	RowRisk   *rowrisk.Engine
	Geocoder  geo.Geocoder
}

// round1 rounds half to even.
func round1(v float64) float64 {
	return math.RoundToEven(v*10) / 10
}

type Metrics struct {
	TotalProjects     int       `json:"total_projects"`
	ActiveProjects    int       `json:"active_projects"`
	ForecastAccuracy  float64   `json:"forecast_accuracy"`
	PendingOrders     int       `json:"pending_orders"`
	TotalOrders       int       `json:"total_orders"`
	ProjectsThisMonth int       `json:"projects_this_month"`
	CurrentMonth      string    `json:"current_month"`
	Timestamp         time.Time `json:"timestamp"`
}

// Metrics summarises the projects the user can access.
// Forecast accuracy averages (1 - |actual - forecast| / forecast) * 100 over every forecast month with a positive forecast.
func (s Service) Metrics(ctx context.Context, username string) (Metrics, error) {
	ps, err := s.Projects.Accessible(ctx, username)
	if err != nil {
		return Metrics{}, err
	}
	now := clock.Now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	m := Metrics{
		TotalProjects: len(ps),
		CurrentMonth:  forecast.CurrentMonth(now),
		Timestamp:     now,
	}
	ids := make([]string, 0, len(ps))
	for _, p := range ps {
		ids = append(ids, p.ID)
		if p.Status == project.StatusInProgress {
			m.ActiveProjects++
		}
		if !p.CreatedAt.Before(monthStart) {
			m.ProjectsThisMonth++
		}
	}
	entries, err := s.Forecasts.Entries(ctx, ids)
	if err != nil {
		return Metrics{}, err
	}
	var (
		sum   float64
		count int
	)
	for _, e := range entries {
		f := e.ForecastTotal()
		if f <= 0 {
			continue
		}
		sum += (1 - math.Abs(e.ActualTotal()-f)/f) * 100
		count++
	}
	if count > 0 {
		m.ForecastAccuracy = round1(sum / float64(count))
	}
	orders, err := iterkit.CollectE(s.Orders.QueryMany(ctx, func(o procurement.Order) bool {
		return o.CreatedBy == username || (o.ProjectID != "" && slices.Contains(ids, o.ProjectID))
	}))
	if err != nil {
		return Metrics{}, err
	}
	m.TotalOrders = len(orders)
	for _, o := range orders {
		if o.Status == procurement.StatusPending {
			m.PendingOrders++
		}
	}
	return m, nil
}

type TrendPoint struct {
	Month         string  `json:"month"`
	Forecast      float64 `json:"forecast"`
	Actual        float64 `json:"actual"`
	ForecastCount int     `json:"forecast_count"`
	ActualCount   int     `json:"actual_count"`
}

// Trends compares forecast and actual totals per month.
// For a single project the totals are reported, otherwise the averages over the accessible projects.
func (s Service) Trends(ctx context.Context, username, projectID string) ([]TrendPoint, error) {
	ids, err := s.Projects.AccessibleIDs(ctx, username)
	if err != nil {
		return nil, err
	}
	if projectID != "" {
		if !slices.Contains(ids, projectID) {
			return nil, ErrAccessDenied
		}
		ids = []string{projectID}
	}
	entries, err := s.Forecasts.Entries(ctx, ids)
	if err != nil {
		return nil, err
	}
	type bucket struct {
		forecast, actual float64
		count            int
	}
	months := map[string]*bucket{}
	for _, e := range entries {
		b, ok := months[e.Month]
		if !ok {
			b = &bucket{}
			months[e.Month] = b
		}
		b.forecast += e.ForecastTotal()
		b.actual += e.ActualTotal()
		b.count++
	}
	keys := make([]string, 0, len(months))
	for k := range months {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	points := []TrendPoint{}
	for _, k := range keys {
		t, err := forecast.ParseMonth(k)
		if err != nil {
			continue
		}
		b := months[k]
		f, a := b.forecast, b.actual
		if projectID == "" {
			f /= float64(b.count)
			a /= float64(b.count)
		}
		points = append(points, TrendPoint{
			Month:         t.Format("Jan"),
			Forecast:      round1(f),
			Actual:        round1(a),
			ForecastCount: b.count,
			ActualCount:   b.count,
		})
	}
	return points, nil
}

type Overview struct {
	TotalProjects        int                `json:"total_projects"`
	TotalBudget          float64            `json:"total_budget"`
	AvgBudget            float64            `json:"avg_budget"`
	MaterialTotals       map[string]float64 `json:"material_totals"`
	LocationDistribution map[string]int     `json:"location_distribution"`
	RiskDistribution     map[string]int     `json:"risk_distribution"`
}

// Overview describes the accessible projects by budget, location and status.
func (s Service) Overview(ctx context.Context, username string) (Overview, error) {
	ps, err := s.Projects.Accessible(ctx, username)
	if err != nil {
		return Overview{}, err
	}
	o := Overview{
		TotalProjects:        len(ps),
		MaterialTotals:       map[string]float64{},
		LocationDistribution: map[string]int{},
		RiskDistribution:     map[string]int{},
	}
	if len(ps) == 0 {
		return o, nil
	}
	for _, p := range ps {
		o.TotalBudget += p.Budget()
		o.LocationDistribution[orUnknown(p.Location)]++
		o.RiskDistribution[orUnknown(p.Status)]++
	}
	o.AvgBudget = o.TotalBudget / float64(len(ps))
	if s.Forecasts.Model != nil {
		for _, t := range s.Forecasts.Model.Targets() {
			o.MaterialTotals[t] = 0
		}
	}
	return o, nil
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

type DispatchPoint struct {
	Timestamp   time.Time `json:"timestamp"`
	DemandMW    float64   `json:"demand_mw"`
	SupplyMW    float64   `json:"supply_mw"`
	FrequencyHz float64   `json:"frequency_hz"`
}

// Dispatch returns synthetic grid readings for the past 24 hours, one per hour, oldest first.
func Dispatch(now time.Time) []DispatchPoint {
	points := make([]DispatchPoint, 0, 25)
	for i := 24; i >= 0; i-- {
		demand := 800 + float64(i%12)*10
		points = append(points, DispatchPoint{
			Timestamp:   now.UTC().Add(-time.Duration(i) * time.Hour),
			DemandMW:    demand,
			SupplyMW:    demand - 10 + float64(i%5),
			FrequencyHz: math.RoundToEven((49.5+float64(i%6)*0.1)*100) / 100,
		})
	}
	return points
}

type TeamSummary struct {
	TeamMembers    []string       `json:"team_members"`
	Counts         SummaryCounts  `json:"counts"`
	RecentActivity RecentActivity `json:"recent_activity"`
}

type SummaryCounts struct {
	Projects       int `json:"projects"`
	Orders         int `json:"orders"`
	Forecasts      int `json:"forecasts"`
	InventoryItems int `json:"inventory_items"`
}

type RecentActivity struct {
	Projects []RecentProject `json:"projects"`
	Orders   []RecentOrder   `json:"orders"`
}

type RecentProject struct {
	Name      string    `json:"name"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

type RecentOrder struct {
	Project   string    `json:"project"`
	Material  string    `json:"material"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

const recentLimit = 5

// TeamSummary counts the data created by the user and the user's teammates.
func (s Service) TeamSummary(ctx context.Context, username string) (TeamSummary, error) {
	mates, err := s.Projects.Teams.Teammates(ctx, username)
	if err != nil {
		return TeamSummary{}, err
	}
	ps, err := s.Projects.ByTeammates(ctx, username)
	if err != nil {
		return TeamSummary{}, err
	}
	orders, err := iterkit.CollectE(s.Orders.QueryMany(ctx, func(o procurement.Order) bool {
		return slices.Contains(mates, o.CreatedBy)
	}))
	if err != nil {
		return TeamSummary{}, err
	}
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	nForecasts, err := iterkit.CountE(s.Forecasts.Records.QueryMany(ctx, func(r forecast.Record) bool {
		return slices.Contains(mates, r.CreatedBy)
	}))
	if err != nil {
		return TeamSummary{}, err
	}
	items, err := s.Inventory.List(ctx)
	if err != nil {
		return TeamSummary{}, err
	}
	sum := TeamSummary{
		TeamMembers: mates,
		Counts: SummaryCounts{
			Projects:       len(ps),
			Orders:         len(orders),
			Forecasts:      nForecasts,
			InventoryItems: len(items),
		},
		RecentActivity: RecentActivity{Projects: []RecentProject{}, Orders: []RecentOrder{}},
	}
	for _, p := range ps[:min(recentLimit, len(ps))] {
		sum.RecentActivity.Projects = append(sum.RecentActivity.Projects, RecentProject{
			Name: p.Name, CreatedBy: p.CreatedBy, CreatedAt: p.CreatedAt,
		})
	}
	for _, o := range orders[:min(recentLimit, len(orders))] {
		sum.RecentActivity.Orders = append(sum.RecentActivity.Orders, RecentOrder{
			Project: o.Project, Material: o.Material, CreatedBy: o.CreatedBy, CreatedAt: o.CreatedAt,
		})
	}
	return sum, nil
}
