package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/malbeclabs/solarfund/crowdfund/pkg/ledger"
)

// PostgresConfig holds the PostgreSQL configuration
type PostgresConfig struct {
	Host          string
	Port          string
	Database      string
	Username      string
	Password      string
	SSLMode       string
	RunMigrations bool
}

func DefaultPostgresConfig() PostgresConfig {
	return PostgresConfig{
		Host:    "localhost",
		Port:    "5432",
		SSLMode: "disable",
	}
}

func (c PostgresConfig) Validate() error {
	if c.Host == "" {
		return errors.New("host is required")
	}
	if c.Database == "" {
		return errors.New("POSTGRES_DB is required")
	}
	if c.Username == "" {
		return errors.New("POSTGRES_USER is required")
	}
	if c.Password == "" {
		return errors.New("POSTGRES_PASSWORD is required")
	}
	return nil
}

func (c PostgresConfig) ConnString() string {
	port := c.Port
	if port == "" {
		port = "5432"
	}
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.Username, c.Password),
		Host:     net.JoinHostPort(c.Host, port),
		Path:     "/" + c.Database,
		RawQuery: url.Values{"sslmode": {sslMode}}.Encode(),
	}
	return u.String()
}

// OpenPostgres connects a pool and, when enabled, runs the ledger migrations.
func OpenPostgres(ctx context.Context, log *slog.Logger, c PostgresConfig) (*pgxpool.Pool, error) {
	log.Info("config: connecting to postgres", "host", c.Host, "port", c.Port, "database", c.Database, "username", c.Username)

	poolConfig, err := pgxpool.ParseConfig(c.ConnString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres config: %w", err)
	}
	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	log.Info("config: connected to postgres")

	if c.RunMigrations {
		if err := ledger.MigrateUp(ctx, log, c.ConnString()); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}
	return pool, nil
}
