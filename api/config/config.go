// Package config assembles the API's runtime configuration and opens the
// storage backends it selects.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/malbeclabs/solarfund/crowdfund/pkg/campaign"
	"github.com/malbeclabs/solarfund/crowdfund/pkg/wallet"
)

type Backend string

const (
	BackendFile     Backend = "file"
	BackendPostgres Backend = "postgres"
	BackendS3       Backend = "s3"
)

const (
	DefaultListenAddr  = ":3000"
	DefaultMetricsAddr = ":9090"
	DefaultDataDir     = "."
)

type WalletConfig struct {
	URL        string
	Originator string
	NoSend     bool
	Timeout    time.Duration
}

type Config struct {
	ListenAddr  string
	MetricsAddr string
	Env         string
	Verbose     bool
	LogFormat   string
	SentryDSN   string

	Wallet WalletConfig

	// Goal seeds new campaigns only.
	Goal        int64
	Backend     Backend
	DataDir     string
	ExplorerURL string
	Postgres    PostgresConfig
	S3          S3Config

	// WritesPerMinute limits mutating requests per client IP; 0 disables.
	WritesPerMinute int
	WriteBurst      int
	AllowedOrigins  []string
}

// Default returns a Config with every optional field filled in.
func Default() Config {
	return Config{
		ListenAddr:  DefaultListenAddr,
		MetricsAddr: DefaultMetricsAddr,
		Env:         "production",
		LogFormat:   "text",
		Wallet: WalletConfig{
			URL:        wallet.DefaultBaseURL,
			Originator: wallet.DefaultOriginator,
			Timeout:    30 * time.Second,
		},
		Goal:            campaign.DefaultGoal,
		Backend:         BackendFile,
		DataDir:         DefaultDataDir,
		Postgres:        DefaultPostgresConfig(),
		WritesPerMinute: 60,
		WriteBurst:      10,
	}
}

func (cfg *Config) Validate() error {
	if cfg.ListenAddr == "" {
		return errors.New("listen address is required")
	}
	if cfg.Wallet.URL == "" {
		return errors.New("wallet url is required")
	}
	if cfg.Goal <= 0 {
		return fmt.Errorf("goal must be positive, got %d", cfg.Goal)
	}
	if cfg.WritesPerMinute < 0 {
		return fmt.Errorf("writes per minute must not be negative, got %d", cfg.WritesPerMinute)
	}
	if cfg.WritesPerMinute > 0 && cfg.WriteBurst <= 0 {
		return errors.New("write burst must be positive when rate limiting is enabled")
	}
	switch cfg.Backend {
	case BackendFile:
		if cfg.DataDir == "" {
			cfg.DataDir = DefaultDataDir
		}
	case BackendPostgres:
		if err := cfg.Postgres.Validate(); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	case BackendS3:
		if err := cfg.S3.Validate(); err != nil {
			return fmt.Errorf("s3: %w", err)
		}
	default:
		return fmt.Errorf("unknown backend %q (want file, postgres or s3)", cfg.Backend)
	}
	return nil
}

// ApplyEnv overrides cfg with any of the recognized environment variables
// that getenv reports as set.
func ApplyEnv(cfg *Config, getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	var errs []error
	boolean := func(key string, dst *bool) {
		if v := getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	integer := func(key string, dst *int64) {
		if v := getenv(key); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}

	str("CROWDFUND_LISTEN_ADDR", &cfg.ListenAddr)
	str("CROWDFUND_METRICS_ADDR", &cfg.MetricsAddr)
	str("CROWDFUND_ENV", &cfg.Env)
	str("CROWDFUND_LOG_FORMAT", &cfg.LogFormat)
	boolean("CROWDFUND_VERBOSE", &cfg.Verbose)
	integer("CROWDFUND_GOAL", &cfg.Goal)
	str("CROWDFUND_DATA_DIR", &cfg.DataDir)
	str("CROWDFUND_EXPLORER_URL", &cfg.ExplorerURL)
	if v := getenv("CROWDFUND_BACKEND"); v != "" {
		cfg.Backend = Backend(strings.ToLower(v))
	}
	if v := getenv("CROWDFUND_ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = nil
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
			}
		}
	}

	str("WALLET_URL", &cfg.Wallet.URL)
	str("WALLET_ORIGINATOR", &cfg.Wallet.Originator)
	boolean("WALLET_NO_SEND", &cfg.Wallet.NoSend)

	str("POSTGRES_HOST", &cfg.Postgres.Host)
	str("POSTGRES_PORT", &cfg.Postgres.Port)
	str("POSTGRES_DB", &cfg.Postgres.Database)
	str("POSTGRES_USER", &cfg.Postgres.Username)
	str("POSTGRES_PASSWORD", &cfg.Postgres.Password)
	str("POSTGRES_SSLMODE", &cfg.Postgres.SSLMode)
	boolean("POSTGRES_RUN_MIGRATIONS", &cfg.Postgres.RunMigrations)

	str("S3_BUCKET", &cfg.S3.Bucket)
	str("S3_PREFIX", &cfg.S3.Prefix)
	str("S3_REGION", &cfg.S3.Region)
	str("S3_ENDPOINT", &cfg.S3.Endpoint)
	boolean("S3_USE_PATH_STYLE", &cfg.S3.UsePathStyle)

	str("SENTRY_DSN", &cfg.SentryDSN)

	return errors.Join(errs...)
}
