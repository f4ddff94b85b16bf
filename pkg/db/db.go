package db

import (
	"context"
	"fmt"
	"time"

	"kitchen-display/pkg/config"
	"kitchen-display/pkg/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DSN builds the postgres connection string for the remote store.
func DSN(cfg *config.Postgres) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)
}

// ConnectDB opens a pool against the remote store. The pool is returned even
// when the first ping fails so the device can start offline; the error is
// reported alongside it.
func ConnectDB(ctx context.Context, cfg *config.Postgres, log logger.Logger) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(DSN(cfg))
	if err != nil {
		return nil, err
	}
	poolConfig.MaxConns = 4
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		log.Action("db_ping_failed").Warn("Remote database unreachable, starting offline", "error", err.Error())
		return pool, err
	}

	log.Action("db_connected").Info("Connected to PostgreSQL database")
	return pool, nil
}
