// Package httpapi exposes the portal backend as a JSON API under /api.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"slices"
	"strconv"
	"time"

	"go.llib.dev/frameless/pkg/errorkit"
	"go.llib.dev/frameless/pkg/httpkit"
	"go.llib.dev/testcase/clock"

	"plangrid/adapter/mailer"
	"plangrid/domain/account"
	"plangrid/domain/dashboard"
	"plangrid/domain/forecast"
	"plangrid/domain/inventory"
	"plangrid/domain/notification"
	"plangrid/domain/procurement"
	"plangrid/domain/project"
	"plangrid/domain/team"
	"plangrid/port/mail"
)

var DefaultAllowedOrigins = []string{
	"http://localhost:5173",
	"http://localhost:3000",
	"http://127.0.0.1:5173",
	"http://127.0.0.1:3000",
}

type Config struct {
	Accounts      account.Service
	Teams         team.Service
	Projects      project.Service
	Notifications notification.Service
	Hub           *notification.Hub
	Forecasts     forecast.Service
	Orders        procurement.Service
	Inventory     inventory.Service
	Dashboard     dashboard.Service
	// Mailer delivers the test email synchronously.
	Mailer     mail.Sender
	MailStatus mailer.Status
	// AllowedOrigins are the CORS origins, DefaultAllowedOrigins when empty.
	AllowedOrigins []string
}

func NewServer(host string, port int, c Config) *http.Server {
	return &http.Server{
		Addr:              net.JoinHostPort(host, strconv.Itoa(port)),
		Handler:           MakeHandler(c),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func MakeHandler(c Config) http.Handler {
	h := handlers{Config: c}
	router := httpkit.NewRouter(func(r *httpkit.Router) {
		r.Use(cors(c.allowedOrigins()))
		r.Namespace("/api", func(r *httpkit.Router) {
			r.Get("/health", endpoint(h.health))
			h.accountRoutes(r)
			h.projectRoutes(r)
			h.teamRoutes(r)
			h.notificationRoutes(r)
			h.forecastRoutes(r)
			h.orderRoutes(r)
			h.inventoryRoutes(r)
			h.dashboardRoutes(r)
			h.rowRiskRoutes(r)
			h.updateRoutes(r)
			h.mailRoutes(r)
		})
	})
	return httpkit.AccessLog{Next: router}
}

func (c Config) allowedOrigins() []string {
	if len(c.AllowedOrigins) == 0 {
		return DefaultAllowedOrigins
	}
	return c.AllowedOrigins
}

type handlers struct {
	Config
}

// endpoint adapts an error returning handler func into a http.Handler.
type endpoint func(w http.ResponseWriter, r *http.Request) error

func (fn endpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := fn(w, r); err != nil {
		errorHandler.HandleError(w, r, err)
	}
}

func cors(origins []string) httpkit.MiddlewareFactoryFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if origin := r.Header.Get("Origin"); origin != "" && slices.Contains(origins, origin) {
				header := w.Header()
				header.Set("Access-Control-Allow-Origin", origin)
				header.Set("Access-Control-Allow-Credentials", "true")
				header.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				header.Set("Access-Control-Max-Age", "3600")
				header.Add("Vary", "Origin")
			}
			if r.Method == http.MethodOptions {
				_ = writeJSON(w, http.StatusOK, Status{Status: "ok"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type Status struct {
	Status string `json:"status"`
}

type Message struct {
	Message string `json:"message"`
}

type Health struct {
	Status       string    `json:"status"`
	ModelsLoaded bool      `json:"models_loaded"`
	DataLoaded   bool      `json:"data_loaded"`
	Timestamp    time.Time `json:"timestamp"`
}

func (h handlers) health(w http.ResponseWriter, r *http.Request) error {
	loaded := h.Forecasts.Model != nil
	return writeJSON(w, http.StatusOK, Health{
		Status:       "healthy",
		ModelsLoaded: loaded,
		DataLoaded:   loaded,
		Timestamp:    clock.Now().UTC(),
	})
}

const ErrInvalidBody errorkit.Error = "Invalid JSON body"

// decode reads the JSON request body into ptr. An empty body leaves ptr untouched.
func decode(r *http.Request, ptr any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(ptr); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return ErrInvalidBody.Wrap(err)
	}
	return nil
}

// writeJSON encodes v before touching the response, so an encoding error can still be reported.
func writeJSON(w http.ResponseWriter, code int, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(data)
	return nil
}

func pathParam(r *http.Request, name string) string {
	return httpkit.PathParams(r.Context())[name]
}
