// Package db opens the shared Postgres pool and applies schema migrations.
package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/comms-ninja/internal/platform/config"
)

var ErrNoDSN = errors.New("db: DATABASE_URL is required")

// PoolOptions sizes the pool. Zero fields read DB_MAX_CONNS, DB_MIN_CONNS
// and DB_STATEMENT_TIMEOUT, then fall back to defaults.
type PoolOptions struct {
	MaxConns         int
	MinConns         int
	StatementTimeout time.Duration
}

func (o PoolOptions) withDefaults() PoolOptions {
	if o.MaxConns <= 0 {
		o.MaxConns = config.EnvInt("DB_MAX_CONNS", 10)
	}
	if o.MinConns <= 0 {
		o.MinConns = config.EnvInt("DB_MIN_CONNS", 1)
	}
	o.MinConns = min(o.MinConns, o.MaxConns)
	if o.StatementTimeout <= 0 {
		o.StatementTimeout = config.EnvDuration("DB_STATEMENT_TIMEOUT", 5*time.Second)
	}
	return o
}

// poolConfig parses dsn and applies opts.
func poolConfig(dsn string, opts PoolOptions) (*pgxpool.Config, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, ErrNoDSN
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("db: parse dsn: %w", err)
	}
	opts = opts.withDefaults()
	cfg.MaxConns = int32(opts.MaxConns)
	cfg.MinConns = int32(opts.MinConns)
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.HealthCheckPeriod = 30 * time.Second
	cfg.ConnConfig.RuntimeParams["statement_timeout"] = fmt.Sprint(opts.StatementTimeout.Milliseconds())
	cfg.ConnConfig.RuntimeParams["application_name"] = "comms-ninja"
	return cfg, nil
}

// Open opens a pool for dsn and verifies it with a ping.
func Open(ctx context.Context, dsn string, opts ...PoolOptions) (*pgxpool.Pool, error) {
	var po PoolOptions
	if len(opts) > 0 {
		po = opts[0]
	}
	cfg, err := poolConfig(dsn, po)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db: ping: %w", err)
	}
	return pool, nil
}

// Ready returns a readiness probe for pool; a nil pool is always ready.
func Ready(pool *pgxpool.Pool) func() error {
	return func() error {
		if pool == nil {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return pool.Ping(ctx)
	}
}
