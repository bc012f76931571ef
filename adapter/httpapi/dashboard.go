package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"go.llib.dev/frameless/pkg/httpkit"
	"go.llib.dev/testcase/clock"

	"plangrid/domain/dashboard"
	"plangrid/domain/rowrisk"
)

func (h handlers) dashboardRoutes(r *httpkit.Router) {
	r.Get("/dashboard/metrics", h.authenticated(h.metrics))
	r.Get("/dashboard/trends", h.authenticated(h.trends))
	r.Get("/analytics/overview", h.authenticated(h.overview))
	r.Get("/dispatch", h.authenticated(h.dispatch))
	r.Get("/team-data-summary", h.authenticated(h.teamSummary))
}

func (h handlers) metrics(w http.ResponseWriter, r *http.Request) error {
	m, err := h.Dashboard.Metrics(r.Context(), Username(r.Context()))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, m)
}

func (h handlers) trends(w http.ResponseWriter, r *http.Request) error {
	points, err := h.Dashboard.Trends(r.Context(), Username(r.Context()), r.URL.Query().Get("project_id"))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, points)
}

func (h handlers) overview(w http.ResponseWriter, r *http.Request) error {
	o, err := h.Dashboard.Overview(r.Context(), Username(r.Context()))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, o)
}

func (h handlers) dispatch(w http.ResponseWriter, r *http.Request) error {
	return writeJSON(w, http.StatusOK, dashboard.Dispatch(clock.Now()))
}

func (h handlers) teamSummary(w http.ResponseWriter, r *http.Request) error {
	s, err := h.Dashboard.TeamSummary(r.Context(), Username(r.Context()))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, s)
}

func (h handlers) rowRiskRoutes(r *httpkit.Router) {
	r.Post("/row-risk/predict", h.authenticated(h.predictRowRisk))
	r.Post("/row-risk/batch-predict", h.authenticated(h.batchPredictRowRisk))
	r.Get("/row-risk/projects", h.authenticated(h.projectRowRisks))
	r.Get("/row-risk/risk-zones", h.authenticated(h.rowRiskZones))
	r.Get("/row-risk/analytics", h.authenticated(h.rowRiskAnalytics))
}

type PredictRequest struct {
	Location *rowrisk.Location `json:"location"`
}

type PredictResponse struct {
	Success    bool               `json:"success"`
	Prediction rowrisk.Prediction `json:"prediction"`
}

func (h handlers) predictRowRisk(w http.ResponseWriter, r *http.Request) error {
	var req PredictRequest
	if err := decode(r, &req); err != nil {
		return err
	}
	if req.Location == nil {
		return ErrLocationRequired
	}
	return writeJSON(w, http.StatusOK, PredictResponse{
		Success:    true,
		Prediction: h.Dashboard.RowRisk.Predict(*req.Location, clock.Now()),
	})
}

type BatchPredictRequest struct {
	Locations json.RawMessage `json:"locations"`
}

type BatchPredictResponse struct {
	Success bool `json:"success"`
	dashboard.BatchSummary
}

func (h handlers) batchPredictRowRisk(w http.ResponseWriter, r *http.Request) error {
	var req BatchPredictRequest
	if err := decode(r, &req); err != nil {
		return err
	}
	if len(req.Locations) == 0 || string(req.Locations) == "null" {
		return ErrLocationsRequired
	}
	var locs []rowrisk.Location
	if err := json.Unmarshal(req.Locations, &locs); err != nil {
		return ErrLocationsNotArray
	}
	summary, err := h.Dashboard.AssessBatch(r.Context(), locs)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, BatchPredictResponse{Success: true, BatchSummary: summary})
}

type ProjectRisksResponse struct {
	Success bool `json:"success"`
	dashboard.ProjectRisks
}

func (h handlers) projectRowRisks(w http.ResponseWriter, r *http.Request) error {
	risks, err := h.Dashboard.ProjectRisks(r.Context(), Username(r.Context()))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, ProjectRisksResponse{Success: true, ProjectRisks: risks})
}

type ZonesResponse struct {
	Success bool `json:"success"`
	dashboard.Zones
}

func (h handlers) rowRiskZones(w http.ResponseWriter, r *http.Request) error {
	zones, err := h.Dashboard.RiskZones(r.Context(), Username(r.Context()))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, ZonesResponse{Success: true, Zones: zones})
}

type AnalyticsResponse struct {
	Success   bool                    `json:"success"`
	Analytics dashboard.RiskAnalytics `json:"analytics"`
	Timestamp time.Time               `json:"timestamp"`
}

func (h handlers) rowRiskAnalytics(w http.ResponseWriter, r *http.Request) error {
	a, err := h.Dashboard.RiskAnalytics(r.Context(), Username(r.Context()))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, AnalyticsResponse{Success: true, Analytics: a, Timestamp: clock.Now().UTC()})
}
