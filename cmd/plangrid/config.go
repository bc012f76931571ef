package main

import (
	"context"
	"net/http"
	"time"

	"go.llib.dev/frameless/pkg/env"
	"go.llib.dev/frameless/pkg/errorkit"
	"go.llib.dev/frameless/pkg/httpkit"

	"plangrid/adapter/geoapify"
	"plangrid/adapter/httpapi"
	"plangrid/adapter/mailer"
	"plangrid/adapter/memory"
	"plangrid/adapter/postgresql"
	"plangrid/adapter/twilio"
	"plangrid/domain/account"
	"plangrid/domain/dashboard"
	"plangrid/domain/forecast"
	"plangrid/domain/inventory"
	"plangrid/domain/notification"
	"plangrid/domain/procurement"
	"plangrid/domain/project"
	"plangrid/domain/rowrisk"
	"plangrid/domain/team"
	"plangrid/port/geo"
)

const ErrDatabaseURLRequired errorkit.Error = "DATABASE_URL is required"

type Config struct {
	Host        string `env:"HOST" default:"0.0.0.0"`
	Port        int    `env:"PORT" default:"5000"`
	DatabaseURL string `env:"DATABASE_URL"`

	JWTSecret   string        `env:"JWT_SECRET_KEY" default:"plangrid-secret-key-2025"`
	JWTTTL      time.Duration `env:"JWT_ACCESS_TOKEN_EXPIRES" default:"24h"`
	FrontendURL string        `env:"FRONTEND_BASE_URL" default:"http://localhost:5173"`
	// AllowedOrigins falls back to httpapi.DefaultAllowedOrigins.
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" separator:","`

	GeoapifyAPIKey string `env:"GEOAPIFY_API_KEY"`

	Mail   mailer.Config
	Twilio twilio.Config
}

func LoadConfig() (Config, error) {
	var c Config
	if err := env.Load(&c); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Tables lists the document tables used with PostgreSQL.
var Tables = struct {
	Users, ResetTokens, Teams, Invitations, Projects, Notifications,
	Forecasts, ForecastRecords, MaterialActuals, Orders, Inventory string
}{
	Users:           "users",
	ResetTokens:     "password_reset_tokens",
	Teams:           "teams",
	Invitations:     "team_invitations",
	Projects:        "projects",
	Notifications:   "notifications",
	Forecasts:       "forecasts",
	ForecastRecords: "forecast_records",
	MaterialActuals: "material_actuals",
	Orders:          "orders",
	Inventory:       "inventory",
}

func tableNames() []string {
	t := Tables
	return []string{
		t.Users, t.ResetTokens, t.Teams, t.Invitations, t.Projects, t.Notifications,
		t.Forecasts, t.ForecastRecords, t.MaterialActuals, t.Orders, t.Inventory,
	}
}

// Storage holds one repository per collection.
type Storage struct {
	Users           account.UserRepository
	ResetTokens     account.ResetTokenRepository
	Teams           team.Repository
	Invitations     team.InvitationRepository
	Projects        project.Repository
	Notifications   notification.Repository
	Forecasts       forecast.DocumentRepository
	ForecastRecords forecast.RecordRepository
	MaterialActuals forecast.MaterialActualRepository
	Orders          procurement.Repository
	Inventory       inventory.Repository

	Close func() error
}

// MemoryStorage keeps everything in process memory.
func MemoryStorage() Storage {
	return Storage{
		Users:           memory.NewRepository[account.User, string](),
		ResetTokens:     memory.NewRepository[account.ResetToken, string](),
		Teams:           memory.NewRepository[team.Team, string](),
		Invitations:     memory.NewRepository[team.Invitation, string](),
		Projects:        memory.NewRepository[project.Project, string](),
		Notifications:   memory.NewRepository[notification.Notification, string](),
		Forecasts:       memory.NewRepository[forecast.Document, string](),
		ForecastRecords: memory.NewRepository[forecast.Record, string](),
		MaterialActuals: memory.NewRepository[forecast.MaterialActual, string](),
		Orders:          memory.NewRepository[procurement.Order, string](),
		Inventory:       memory.NewRepository[inventory.Item, string](),
		Close:           func() error { return nil },
	}
}

func PostgresStorage(conn *postgresql.Connection) Storage {
	t := Tables
	return Storage{
		Users:           postgresql.Repository[account.User, string]{Connection: conn, Table: t.Users},
		ResetTokens:     postgresql.Repository[account.ResetToken, string]{Connection: conn, Table: t.ResetTokens},
		Teams:           postgresql.Repository[team.Team, string]{Connection: conn, Table: t.Teams},
		Invitations:     postgresql.Repository[team.Invitation, string]{Connection: conn, Table: t.Invitations},
		Projects:        postgresql.Repository[project.Project, string]{Connection: conn, Table: t.Projects},
		Notifications:   postgresql.Repository[notification.Notification, string]{Connection: conn, Table: t.Notifications},
		Forecasts:       postgresql.Repository[forecast.Document, string]{Connection: conn, Table: t.Forecasts},
		ForecastRecords: postgresql.Repository[forecast.Record, string]{Connection: conn, Table: t.ForecastRecords},
		MaterialActuals: postgresql.Repository[forecast.MaterialActual, string]{Connection: conn, Table: t.MaterialActuals},
		Orders:          postgresql.Repository[procurement.Order, string]{Connection: conn, Table: t.Orders},
		Inventory:       postgresql.Repository[inventory.Item, string]{Connection: conn, Table: t.Inventory},
		Close:           conn.Close,
	}
}

// OpenStorage connects to PostgreSQL when a DSN is configured, and uses memory otherwise.
func OpenStorage(ctx context.Context, c Config) (Storage, error) {
	if c.DatabaseURL == "" {
		return MemoryStorage(), nil
	}
	conn, err := postgresql.Connect(ctx, c.DatabaseURL)
	if err != nil {
		return Storage{}, err
	}
	if err := postgresql.Migrate(ctx, conn, tableNames()...); err != nil {
		_ = conn.Close()
		return Storage{}, err
	}
	return PostgresStorage(conn), nil
}

// App is the wired application.
type App struct {
	HTTP   httpapi.Config
	Outbox *mailer.Outbox
}

func NewApp(c Config, s Storage) App {
	client := &http.Client{
		Transport: httpkit.RetryRoundTripper{},
		Timeout:   20 * time.Second,
	}
	direct := mailer.New(c.Mail, client)
	outbox := &mailer.Outbox{Sender: direct}
	hub := &notification.Hub{}
	notifications := notification.Service{Repository: s.Notifications}

	accounts := account.Service{
		Users:       s.Users,
		ResetTokens: s.ResetTokens,
		Tokens:      &account.TokenIssuer{Secret: []byte(c.JWTSecret), TTL: c.JWTTTL},
		Mailer:      outbox,
		FrontendURL: c.FrontendURL,
	}
	if c.Twilio.IsConfigured() {
		accounts.SMS = twilio.Client{Config: c.Twilio, HTTPClient: client}
	}
	teams := team.Service{
		Teams:         s.Teams,
		Invitations:   s.Invitations,
		Directory:     accounts,
		Notifications: notifications,
		Hub:           hub,
		Mailer:        outbox,
		FrontendURL:   c.FrontendURL,
	}
	projects := project.Service{Projects: s.Projects, Teams: teams}
	forecasts := forecast.Service{
		Model:                 forecast.DefaultModel(),
		Documents:             s.Forecasts,
		Records:               s.ForecastRecords,
		MaterialActualRecords: s.MaterialActuals,
		Projects:              projects,
	}
	stock := inventory.Service{Items: s.Inventory}
	var geocoder geo.Geocoder = geo.Fixed
	if c.GeoapifyAPIKey != "" {
		geocoder = geoapify.Client{APIKey: c.GeoapifyAPIKey, HTTPClient: client}
	}
	return App{
		Outbox: outbox,
		HTTP: httpapi.Config{
			Accounts:      accounts,
			Teams:         teams,
			Projects:      projects,
			Notifications: notifications,
			Hub:           hub,
			Forecasts:     forecasts,
			Orders:        procurement.Service{Orders: s.Orders, Projects: projects, Hub: hub},
			Inventory:     stock,
			Dashboard: dashboard.Service{
				Projects:  projects,
				Forecasts: forecasts,
				Orders:    s.Orders,
				Inventory: stock,
				RowRisk:   rowrisk.Default(),
				Geocoder:  geocoder,
			},
			Mailer:         direct,
			MailStatus:     c.Mail.Status(),
			AllowedOrigins: c.AllowedOrigins,
		},
	}
}
