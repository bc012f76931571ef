package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.llib.dev/frameless/pkg/logger"
	"go.llib.dev/frameless/pkg/logging"
	"go.llib.dev/frameless/pkg/tasker"
	"go.llib.dev/testcase/clock"

	"plangrid/adapter/httpapi"
	"plangrid/adapter/postgresql"
	"plangrid/domain/inventory"
	"plangrid/domain/rowrisk"
)

func main() {
	ctx := logging.ContextWith(context.Background(), logger.Field("app", "plangrid"))
	if err := NewCommand().ExecuteContext(ctx); err != nil {
		logger.Fatal(ctx, "error in main", logging.ErrField(err))
		os.Exit(1)
	}
}

func NewCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "plangrid",
		Short:         "PlanGrid portal backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCommand(), rowRiskCommand(), inventoryCommand(), migrateCommand())
	return root
}

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return Serve(cmd.Context())
		},
	}
}

// Serve runs the API and the mail outbox until the process is signalled.
func Serve(ctx context.Context) error {
	c, err := LoadConfig()
	if err != nil {
		return err
	}
	s, err := OpenStorage(ctx, c)
	if err != nil {
		return err
	}
	defer s.Close()
	app := NewApp(c, s)
	if app.HTTP.Forecasts.Model == nil {
		logger.Warn(ctx, "forecast model unavailable, forecasting is disabled")
	}
	if !app.HTTP.MailStatus.IsConfigured {
		logger.Warn(ctx, "email is not configured, messages are only logged")
	}
	srv := httpapi.NewServer(c.Host, c.Port, app.HTTP)
	logger.Info(ctx, "starting server", logging.Field("addr", srv.Addr))
	return tasker.Main(ctx,
		tasker.HTTPServerTask(srv),
		tasker.Task(app.Outbox.Run),
	)
}

type rowRiskFlags struct {
	state    string
	city     string
	location *string
	json     bool
}

func rowRiskCommand() *cobra.Command {
	var flags rowRiskFlags
	cmd := &cobra.Command{
		Use:   "rowrisk",
		Short: "Score the right-of-way risk of one location",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("location") {
				flags.location = nil
			}
			return RowRisk(cmd.OutOrStdout(), flags)
		},
	}
	f := cmd.Flags()
	f.StringVar(&flags.state, "state", "", "State of the site")
	f.StringVar(&flags.city, "city", "", "City of the site")
	flags.location = f.String("location", "", "Free-text location used when state or city is missing")
	f.BoolVar(&flags.json, "json", false, "Print the prediction as JSON")
	return cmd
}

func RowRisk(w io.Writer, flags rowRiskFlags) error {
	engine := rowrisk.Default()
	p := engine.Predict(rowrisk.Location{
		State:    flags.state,
		City:     flags.city,
		Location: flags.location,
	}, clock.Now())
	if flags.json {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	}
	if _, err := fmt.Fprintf(w, "%s: %.1f (%s)\n", p.Location, p.Score, p.Level); err != nil {
		return err
	}
	for _, f := range engine.Factors() {
		if _, err := fmt.Fprintf(w, "  %-22s %5.1f  weight %.2f\n", f, p.Factors[f], p.Weights[f]); err != nil {
			return err
		}
	}
	return nil
}

func inventoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inventory",
		Short: "Manage the inventory",
	}
	var username string
	seed := &cobra.Command{
		Use:   "seed",
		Short: "Store the default materials into an empty inventory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := LoadConfig()
			if err != nil {
				return err
			}
			s, err := OpenStorage(cmd.Context(), c)
			if err != nil {
				return err
			}
			defer s.Close()
			return SeedInventory(cmd.Context(), cmd.OutOrStdout(), inventory.Service{Items: s.Inventory}, username)
		},
	}
	seed.Flags().StringVar(&username, "as", "system", "Username recorded as the creator")
	cmd.AddCommand(seed)
	return cmd
}

func SeedInventory(ctx context.Context, w io.Writer, svc inventory.Service, username string) error {
	res, err := svc.Initialize(ctx, username)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s (%d items)\n", res.Message, res.Count)
	return err
}

func migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the PostgreSQL tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := LoadConfig()
			if err != nil {
				return err
			}
			if c.DatabaseURL == "" {
				return ErrDatabaseURLRequired
			}
			conn, err := postgresql.Connect(ctx, c.DatabaseURL)
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := postgresql.Migrate(ctx, conn, tableNames()...); err != nil {
				return err
			}
			logger.Info(ctx, "migration done", logging.Field("tables", len(tableNames())))
			return nil
		},
	}
}
