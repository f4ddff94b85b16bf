package migrate

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"

	"kitchen-display/internal/kds/app/core"
	"kitchen-display/pkg/config"
	"kitchen-display/pkg/db"
	"kitchen-display/pkg/logger"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

type params struct {
	configPath string
	down       bool
	steps      int
	cfg        *config.Config
}

// Execute applies (or rolls back) the remote schema.
func Execute(ctx context.Context, mylog logger.Logger, args []string) error {
	params, err := parseParams(args)
	if err != nil {
		if !errors.Is(err, core.ErrHelp) {
			mylog.Action("command_parse_failed").Error("Invalid command received", err)
		}
		return err
	}

	cfg, err := config.LoadConfig(params.configPath)
	if err != nil {
		mylog.Action("command_validation_failed").Error("Invalid command received", err)
		return err
	}
	params.cfg = cfg

	return run(ctx, params, mylog)
}

func run(_ context.Context, params *params, mylog logger.Logger) error {
	m, err := New(&params.cfg.DB)
	if err != nil {
		mylog.Action("migration_init_failed").Error("Failed to initialize migrations", err)
		return err
	}
	defer m.Close()

	switch {
	case params.steps != 0:
		err = m.Steps(params.steps)
	case params.down:
		err = m.Down()
	default:
		err = m.Up()
	}

	if errors.Is(err, migrate.ErrNoChange) {
		mylog.Action("migration_skipped").Info("No new migrations to apply")
		return nil
	}
	if err != nil {
		mylog.Action("migration_failed").Error("Failed to apply migrations", err)
		return err
	}

	version, dirty, _ := m.Version()
	mylog.Action("migration_completed").Info("Migrations applied", "version", version, "dirty", dirty)
	return nil
}

// New builds a migrator over the embedded files for the given database.
func New(cfg *config.Postgres) (*migrate.Migrate, error) {
	src, err := iofs.New(Files, "migrations")
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}

	dsn := "pgx5://" + strings.TrimPrefix(db.DSN(cfg), "postgres://")
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return nil, fmt.Errorf("initialize migrations: %w", err)
	}
	return m, nil
}

func parseParams(args []string) (*params, error) {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	showHelp := fs.Bool("help", false, "Show help")
	configPath := fs.String("config-path", "config.yaml", "path for config yaml")
	down := fs.Bool("down", false, "Roll back every migration")
	steps := fs.Int("steps", 0, "Apply n migrations, negative rolls back")

	if err := fs.Parse(args); err != nil {
		return nil, errors.New("cannot parse arguments")
	}

	if *showHelp {
		fs.Usage()
		return nil, core.ErrHelp
	}

	return &params{
		configPath: *configPath,
		down:       *down,
		steps:      *steps,
	}, nil
}
