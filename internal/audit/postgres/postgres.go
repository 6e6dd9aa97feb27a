// Package postgres persists the audit trail to PostgreSQL: a single
// append-only audit_events table (see Recorder in record.go), reached
// through the connection pool this file sets up.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// Config holds the audit database's connection parameters.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int32
}

// DB wraps the pool Recorder writes audit_events rows through.
type DB struct {
	Pool *pgxpool.Pool
}

// New opens the audit database's connection pool.
// Uses struct-based config to avoid embedding credentials in the DSN string,
// which would leak passwords in error messages and log output.
func New(ctx context.Context, cfg Config) (*DB, error) {
	dsn := fmt.Sprintf(
		"postgres://%s@%s:%d/%s?sslmode=%s",
		cfg.User, cfg.Host, cfg.Port, cfg.Database, cfg.SSLMode,
	)

	if cfg.MaxConns == 0 {
		cfg.MaxConns = 25
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing audit database connection config: %w", err)
	}

	// Set password via struct field — never appears in DSN string or error messages.
	poolCfg.ConnConfig.Password = cfg.Password

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating audit database connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging audit database: %w", err)
	}

	log.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Database).
		Msg("audit database connection established")

	return &DB{Pool: pool}, nil
}

// Close closes the connection pool backing the audit trail.
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		log.Info().Msg("audit database connection closed")
	}
}

// Health reports whether the audit trail's database is reachable, for
// /ready's degraded-vs-ok check.
func (db *DB) Health(ctx context.Context) error {
	if db.Pool == nil {
		return fmt.Errorf("audit database pool not initialized")
	}
	return db.Pool.Ping(ctx)
}
