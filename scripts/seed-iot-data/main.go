// seed-iot-data creates the IoT schema on the configured backend and loads a
// deterministic demo dataset: locations, devices, thresholds, readings,
// calculated logs and alerts.
//
// Usage: go run ./scripts/seed-iot-data [flags]
//
// The backend comes from config.yaml / environment like the server
// (BACKEND_TYPE, BACKEND_SQLITE_PATH, BACKEND_HOST, ...). Only sqlite and
// postgres are supported. The target tables must be empty.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/sensorql/pkg/adapters/datasource"
	"github.com/ekaya-inc/sensorql/pkg/adapters/datasource/postgres"
	"github.com/ekaya-inc/sensorql/pkg/adapters/datasource/sqlite"
	"github.com/ekaya-inc/sensorql/pkg/config"
	"github.com/ekaya-inc/sensorql/pkg/database"
	"github.com/ekaya-inc/sensorql/pkg/retry"
	"github.com/ekaya-inc/sensorql/pkg/seed"
)

type options struct {
	configPath  string
	readings    int
	logs        int
	alerts      int
	days        int
	end         string
	seed        uint64
	migrateOnly bool
}

func main() {
	if err := newCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	defaults := seed.DefaultOptions(time.Time{})
	opts := &options{}

	cmd := &cobra.Command{
		Use:           "seed-iot-data",
		Short:         "Create the IoT schema and load demo sensor data",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := zap.NewDevelopment()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			return run(cmd.Context(), opts, logger)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", os.Getenv("CONFIG_PATH"), "path to config.yaml")
	cmd.Flags().IntVar(&opts.readings, "readings", defaults.Readings, "number of sensor readings")
	cmd.Flags().IntVar(&opts.logs, "logs", defaults.Logs, "number of calculated log entries")
	cmd.Flags().IntVar(&opts.alerts, "alerts", defaults.Alerts, "number of alerts")
	cmd.Flags().IntVar(&opts.days, "days", int(defaults.Window/(24*time.Hour)), "days of history ending at --end")
	cmd.Flags().StringVar(&opts.end, "end", "", "RFC3339 end of the timeline (default: now)")
	cmd.Flags().Uint64Var(&opts.seed, "seed", defaults.Seed, "random seed for reading values")
	cmd.Flags().BoolVar(&opts.migrateOnly, "migrate-only", false, "create the schema without loading data")
	return cmd
}

func run(ctx context.Context, opts *options, logger *zap.Logger) error {
	seedOpts, err := opts.seedOptions(time.Now())
	if err != nil {
		return err
	}

	cfg, err := config.Load(opts.configPath, "seed")
	if err != nil {
		return err
	}
	cfg.Backend.ReadOnly = false

	factory := datasource.NewDatasourceAdapterFactory(retry.DefaultConfig(), logger)
	exec, err := factory.NewQueryExecutor(ctx, cfg.Backend.Type, cfg.Backend.BackendMap())
	if err != nil {
		return fmt.Errorf("failed to connect to %s backend: %w", cfg.Backend.Type, err)
	}
	defer exec.Close()

	db, closeDB, err := migrationDB(exec)
	if err != nil {
		return err
	}
	defer closeDB()

	if err := database.RunIoTMigrations(db, cfg.Backend.Type, logger); err != nil {
		return err
	}
	if opts.migrateOnly {
		logger.Info("Schema is up to date")
		return nil
	}

	res, err := exec.Query(ctx, "SELECT COUNT(*) AS n FROM "+exec.QuoteIdentifier("DevMap"), nil)
	if err != nil {
		return fmt.Errorf("failed to check for existing data: %w", err)
	}
	if len(res.Rows) > 0 && fmt.Sprint(res.Rows[0]["n"]) != "0" {
		return fmt.Errorf("backend already holds IoT data; drop the tables or use a fresh database")
	}

	started := time.Now()
	counts, err := seed.Load(ctx, exec, seedOpts, logger)
	if err != nil {
		return err
	}
	fmt.Printf("Seeded %d locations, %d devices, %d thresholds, %d readings, %d logs, %d alerts in %s\n",
		counts.Locations, counts.Devices, counts.Thresholds, counts.Readings, counts.Logs, counts.Alerts,
		time.Since(started).Round(time.Millisecond))
	return nil
}

func (o *options) seedOptions(now time.Time) (seed.Options, error) {
	end := now.UTC().Truncate(time.Minute)
	if o.end != "" {
		t, err := time.Parse(time.RFC3339, o.end)
		if err != nil {
			return seed.Options{}, fmt.Errorf("invalid --end: %w", err)
		}
		end = t
	}
	if o.readings < 0 || o.logs < 0 || o.alerts < 0 {
		return seed.Options{}, fmt.Errorf("row counts must not be negative")
	}
	if o.days <= 0 {
		return seed.Options{}, fmt.Errorf("--days must be positive")
	}

	s := seed.DefaultOptions(end)
	s.Readings, s.Logs, s.Alerts = o.readings, o.logs, o.alerts
	s.Window = time.Duration(o.days) * 24 * time.Hour
	s.Seed = o.seed
	return s, nil
}

// migrationDB exposes the executor's connection as a *sql.DB for golang-migrate.
func migrationDB(exec datasource.QueryExecutor) (*sql.DB, func(), error) {
	switch e := exec.(type) {
	case *sqlite.QueryExecutor:
		return e.DB(), func() {}, nil
	case *postgres.QueryExecutor:
		db := stdlib.OpenDBFromPool(e.Pool())
		return db, func() { _ = db.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("seeding is supported for sqlite and postgres backends only")
	}
}
