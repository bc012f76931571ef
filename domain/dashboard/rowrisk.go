package dashboard

import (
	"context"
	"sort"

	"go.llib.dev/frameless/pkg/pointer"
	"golang.org/x/sync/errgroup"

	"plangrid/domain/project"
	"plangrid/domain/rowrisk"
	"plangrid/port/geo"
)

// geocodeLimit bounds the concurrent geocoding requests of a single view.
const geocodeLimit = 4

const highRiskLimit = 10

// locationOf always passes the project location, so a blank one displays blank.
func locationOf(p project.Project) rowrisk.Location {
	return rowrisk.Location{State: p.State, City: p.City, Location: pointer.Of(p.Location)}
}

// siteName is "City, State" as entered, else the free-text location, else Unknown.
func siteName(p project.Project) string {
	if p.City != "" && p.State != "" {
		return p.City + ", " + p.State
	}
	return orUnknown(p.Location)
}

type ProjectRisk struct {
	project.Project
	RowRisk rowrisk.Assessment `json:"row_risk"`
}

type ProjectRisks struct {
	Projects      []ProjectRisk `json:"projects"`
	TotalProjects int           `json:"total_projects"`
}

// ProjectRisks assesses every project created by the user or the user's teammates.
func (s Service) ProjectRisks(ctx context.Context, username string) (ProjectRisks, error) {
	ps, err := s.Projects.ByTeammates(ctx, username)
	if err != nil {
		return ProjectRisks{}, err
	}
	out := ProjectRisks{Projects: make([]ProjectRisk, 0, len(ps)), TotalProjects: len(ps)}
	for _, p := range ps {
		out.Projects = append(out.Projects, ProjectRisk{Project: p, RowRisk: s.RowRisk.Assess(locationOf(p))})
	}
	return out, nil
}

type Zone struct {
	ProjectID   string                     `json:"project_id"`
	ProjectName string                     `json:"project_name"`
	Location    string                     `json:"location"`
	Coordinates geo.Coordinates            `json:"coordinates"`
	RiskScore   float64                    `json:"risk_score"`
	RiskLevel   rowrisk.Level              `json:"risk_level"`
	RiskFactors map[rowrisk.Factor]float64 `json:"risk_factors"`
	Status      string                     `json:"status"`
	Budget      float64                    `json:"budget"`
}

type Zones struct {
	RiskZones struct {
		High   []Zone `json:"high_risk"`
		Medium []Zone `json:"medium_risk"`
		Low    []Zone `json:"low_risk"`
	} `json:"risk_zones"`
	Summary struct {
		High   int `json:"high_risk_count"`
		Medium int `json:"medium_risk_count"`
		Low    int `json:"low_risk_count"`
		Total  int `json:"total_projects"`
	} `json:"summary"`
}

// RiskZones places the teammates' projects on the map, grouped by risk level.
// The project sites are geocoded concurrently.
func (s Service) RiskZones(ctx context.Context, username string) (Zones, error) {
	ps, err := s.Projects.ByTeammates(ctx, username)
	if err != nil {
		return Zones{}, err
	}
	zones := make([]Zone, len(ps))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(geocodeLimit)
	for i, p := range ps {
		g.Go(func() error {
			a := s.RowRisk.Assess(locationOf(p))
			zones[i] = Zone{
				ProjectID:   p.ID,
				ProjectName: orUnknown(p.Name),
				Location:    siteName(p),
				Coordinates: s.geocoder().Geocode(gctx, geo.Place{State: p.State, City: p.City, Specific: p.Location}),
				RiskScore:   a.Score,
				RiskLevel:   a.Level,
				RiskFactors: a.Factors,
				Status:      orUnknown(p.Status),
				Budget:      p.Budget(),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Zones{}, err
	}
	var out Zones
	out.RiskZones.High = []Zone{}
	out.RiskZones.Medium = []Zone{}
	out.RiskZones.Low = []Zone{}
	for _, z := range zones {
		switch z.RiskLevel {
		case rowrisk.High:
			out.RiskZones.High = append(out.RiskZones.High, z)
		case rowrisk.Medium:
			out.RiskZones.Medium = append(out.RiskZones.Medium, z)
		default:
			out.RiskZones.Low = append(out.RiskZones.Low, z)
		}
	}
	out.Summary.High = len(out.RiskZones.High)
	out.Summary.Medium = len(out.RiskZones.Medium)
	out.Summary.Low = len(out.RiskZones.Low)
	out.Summary.Total = len(ps)
	return out, nil
}

func (s Service) geocoder() geo.Geocoder {
	if s.Geocoder == nil {
		return geo.Fixed
	}
	return s.Geocoder
}

type LevelCounts struct {
	High   int `json:"high"`
	Medium int `json:"medium"`
	Low    int `json:"low"`
	Total  int `json:"total,omitempty"`
}

func (c *LevelCounts) add(l rowrisk.Level) {
	switch l {
	case rowrisk.High:
		c.High++
	case rowrisk.Medium:
		c.Medium++
	default:
		c.Low++
	}
}

type HighRiskProject struct {
	ProjectID string  `json:"project_id"`
	Name      string  `json:"name"`
	Location  string  `json:"location"`
	RiskScore float64 `json:"risk_score"`
	Status    string  `json:"status"`
	Budget    float64 `json:"budget"`
}

type CostImpact struct {
	High   float64 `json:"high_risk_cost"`
	Medium float64 `json:"medium_risk_cost"`
	Low    float64 `json:"low_risk_cost"`
}

type RiskAnalytics struct {
	TotalProjects      int                     `json:"total_projects"`
	RiskDistribution   LevelCounts             `json:"risk_distribution"`
	AverageRiskScore   float64                 `json:"average_risk_score"`
	HighRiskProjects   []HighRiskProject       `json:"high_risk_projects"`
	RiskByState        map[string]*LevelCounts `json:"risk_by_state"`
	RiskByProjectType  map[string]*LevelCounts `json:"risk_by_project_type"`
	CostImpactAnalysis CostImpact              `json:"cost_impact_analysis"`
}

// RiskAnalytics breaks the RoW risk of the teammates' projects down by state, project kind and cost.
func (s Service) RiskAnalytics(ctx context.Context, username string) (RiskAnalytics, error) {
	ps, err := s.Projects.ByTeammates(ctx, username)
	if err != nil {
		return RiskAnalytics{}, err
	}
	ra := RiskAnalytics{
		TotalProjects:     len(ps),
		HighRiskProjects:  []HighRiskProject{},
		RiskByState:       map[string]*LevelCounts{},
		RiskByProjectType: map[string]*LevelCounts{},
	}
	var total float64
	for _, p := range ps {
		a := s.RowRisk.Assess(locationOf(p))
		total += a.Score
		ra.RiskDistribution.add(a.Level)
		for _, bucket := range []struct {
			m   map[string]*LevelCounts
			key string
		}{
			{ra.RiskByState, p.State},
			{ra.RiskByProjectType, p.Kind()},
		} {
			c, ok := bucket.m[bucket.key]
			if !ok {
				c = &LevelCounts{}
				bucket.m[bucket.key] = c
			}
			c.add(a.Level)
			c.Total++
		}
		switch a.Level {
		case rowrisk.High:
			ra.CostImpactAnalysis.High += p.Budget()
			ra.HighRiskProjects = append(ra.HighRiskProjects, HighRiskProject{
				ProjectID: p.ID,
				Name:      orUnknown(p.Name),
				Location:  siteName(p),
				RiskScore: a.Score,
				Status:    orUnknown(p.Status),
				Budget:    p.Budget(),
			})
		case rowrisk.Medium:
			ra.CostImpactAnalysis.Medium += p.Budget()
		default:
			ra.CostImpactAnalysis.Low += p.Budget()
		}
	}
	if len(ps) > 0 {
		ra.AverageRiskScore = round1(total / float64(len(ps)))
	}
	sort.SliceStable(ra.HighRiskProjects, func(i, j int) bool {
		return ra.HighRiskProjects[i].RiskScore > ra.HighRiskProjects[j].RiskScore
	})
	ra.HighRiskProjects = ra.HighRiskProjects[:min(highRiskLimit, len(ra.HighRiskProjects))]
	return ra, nil
}

// BatchSummary counts the assessments of a batch.
type BatchSummary struct {
	Predictions           []rowrisk.BatchItem `json:"predictions"`
	TotalLocations        int                 `json:"total_locations"`
	SuccessfulPredictions int                 `json:"successful_predictions"`
}

func (s Service) AssessBatch(ctx context.Context, locs []rowrisk.Location) (BatchSummary, error) {
	items, err := s.RowRisk.AssessBatch(ctx, locs)
	if err != nil {
		return BatchSummary{}, err
	}
	return BatchSummary{Predictions: items, TotalLocations: len(locs), SuccessfulPredictions: len(items)}, nil
}
