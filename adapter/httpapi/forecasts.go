package httpapi

import (
	"net/http"

	"go.llib.dev/frameless/pkg/httpkit"

	"plangrid/domain/forecast"
)

func (h handlers) forecastRoutes(r *httpkit.Router) {
	r.Post("/forecast", h.authenticated(h.forecast))
	r.Get("/forecasts", h.authenticated(h.listForecasts))
	r.Post("/forecasts", h.authenticated(h.createForecast))
	r.Get("/projects/:id/forecasts", h.authenticated(h.projectForecasts))
	r.Get("/projects/:id/forecasts/:month", h.authenticated(h.monthForecast))
	r.Get("/projects/:id/forecasts/:month/actuals", h.authenticated(h.monthActuals))
	r.Post("/projects/:id/actual-values", h.authenticated(h.saveActualValues))
	r.Get("/material-actuals", h.authenticated(h.listMaterialActuals))
	r.Post("/material-actuals", h.authenticated(h.saveMaterialActual))
	r.Get("/materials", h.authenticated(h.materials))
}

func (h handlers) forecast(w http.ResponseWriter, r *http.Request) error {
	input := map[string]any{}
	if err := decode(r, &input); err != nil {
		return err
	}
	est, err := h.Forecasts.Forecast(r.Context(), Username(r.Context()), input)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, est)
}

func (h handlers) listForecasts(w http.ResponseWriter, r *http.Request) error {
	records, err := h.Forecasts.List(r.Context(), Username(r.Context()))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, records)
}

func (h handlers) createForecast(w http.ResponseWriter, r *http.Request) error {
	var rec forecast.Record
	if err := decode(r, &rec); err != nil {
		return err
	}
	rec, err := h.Forecasts.Create(r.Context(), Username(r.Context()), rec)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, rec)
}

func (h handlers) projectForecasts(w http.ResponseWriter, r *http.Request) error {
	entries, err := h.Forecasts.ProjectForecasts(r.Context(), Username(r.Context()), pathParam(r, "id"))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, entries)
}

func (h handlers) monthForecast(w http.ResponseWriter, r *http.Request) error {
	mf, err := h.Forecasts.ForecastForMonth(r.Context(), Username(r.Context()), pathParam(r, "id"), pathParam(r, "month"))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, mf)
}

func (h handlers) monthActuals(w http.ResponseWriter, r *http.Request) error {
	report, err := h.Forecasts.Actuals(r.Context(), Username(r.Context()), pathParam(r, "id"), pathParam(r, "month"))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, report)
}

type ActualValuesRequest struct {
	Month        string          `json:"month"`
	ActualValues forecast.Values `json:"actual_values"`
}

func (h handlers) saveActualValues(w http.ResponseWriter, r *http.Request) error {
	var req ActualValuesRequest
	if err := decode(r, &req); err != nil {
		return err
	}
	if req.ActualValues == nil {
		req.ActualValues = forecast.Values{}
	}
	saved, err := h.Forecasts.SaveActualValues(r.Context(), Username(r.Context()), pathParam(r, "id"), req.Month, req.ActualValues)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, saved)
}

func (h handlers) listMaterialActuals(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()
	actuals, err := h.Forecasts.MaterialActuals(r.Context(), q.Get("project_id"), q.Get("month"))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, actuals)
}

func (h handlers) saveMaterialActual(w http.ResponseWriter, r *http.Request) error {
	var a forecast.MaterialActual
	if err := decode(r, &a); err != nil {
		return err
	}
	receipt, err := h.Forecasts.SaveMaterialActual(r.Context(), Username(r.Context()), a)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, receipt)
}

func (h handlers) materials(w http.ResponseWriter, r *http.Request) error {
	ms, err := h.Forecasts.Materials()
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, ms)
}
