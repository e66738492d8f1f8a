package config

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/malbeclabs/solarfund/crowdfund/pkg/energy"
	"github.com/malbeclabs/solarfund/crowdfund/pkg/ledger"
	solarfundtesting "github.com/malbeclabs/solarfund/utils/pkg/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSolarfund_Config_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"zero goal", func(c *Config) { c.Goal = 0 }, "goal must be positive"},
		{"negative goal", func(c *Config) { c.Goal = -5 }, "goal must be positive"},
		{"no wallet", func(c *Config) { c.Wallet.URL = "" }, "wallet url is required"},
		{"no listen addr", func(c *Config) { c.ListenAddr = "" }, "listen address is required"},
		{"bad backend", func(c *Config) { c.Backend = "redis" }, `unknown backend "redis"`},
		{"postgres missing db", func(c *Config) { c.Backend = BackendPostgres }, "postgres: POSTGRES_DB is required"},
		{"postgres complete", func(c *Config) {
			c.Backend = BackendPostgres
			c.Postgres.Database = "solarfund"
			c.Postgres.Username = "u"
			c.Postgres.Password = "p"
		}, ""},
		{"s3 missing bucket", func(c *Config) { c.Backend = BackendS3 }, "s3: S3_BUCKET is required"},
		{"burst required", func(c *Config) { c.WriteBurst = 0 }, "write burst must be positive"},
		{"rate limit disabled", func(c *Config) { c.WritesPerMinute = 0; c.WriteBurst = 0 }, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestSolarfund_Config_ApplyEnv(t *testing.T) {
	t.Parallel()

	env := map[string]string{
		"CROWDFUND_GOAL":            "500",
		"CROWDFUND_BACKEND":         "S3",
		"CROWDFUND_ENV":             "development",
		"CROWDFUND_ALLOWED_ORIGINS": "https://a.example, ,https://b.example",
		"WALLET_URL":                "http://wallet:3321",
		"WALLET_NO_SEND":            "true",
		"S3_BUCKET":                 "ledger",
		"S3_USE_PATH_STYLE":         "1",
		"POSTGRES_RUN_MIGRATIONS":   "true",
		"SENTRY_DSN":                "https://key@sentry.example/1",
	}
	cfg := Default()
	require.NoError(t, ApplyEnv(&cfg, func(k string) string { return env[k] }))

	assert.EqualValues(t, 500, cfg.Goal)
	assert.Equal(t, BackendS3, cfg.Backend)
	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, "http://wallet:3321", cfg.Wallet.URL)
	assert.True(t, cfg.Wallet.NoSend)
	assert.Equal(t, "ledger", cfg.S3.Bucket)
	assert.True(t, cfg.S3.UsePathStyle)
	assert.True(t, cfg.Postgres.RunMigrations)
	assert.Equal(t, "https://key@sentry.example/1", cfg.SentryDSN)
	assert.Equal(t, DefaultListenAddr, cfg.ListenAddr)
	require.NoError(t, cfg.Validate())
}

func TestSolarfund_Config_ApplyEnv_InvalidValues(t *testing.T) {
	t.Parallel()

	env := map[string]string{
		"CROWDFUND_GOAL": "lots",
		"WALLET_NO_SEND": "maybe",
	}
	cfg := Default()
	err := ApplyEnv(&cfg, func(k string) string { return env[k] })
	require.ErrorContains(t, err, "CROWDFUND_GOAL")
	require.ErrorContains(t, err, "WALLET_NO_SEND")
	assert.EqualValues(t, 100, cfg.Goal)
}

func TestSolarfund_Config_PostgresConnString(t *testing.T) {
	t.Parallel()

	c := PostgresConfig{Host: "db", Database: "solarfund", Username: "user", Password: "p@ss word"}
	assert.Equal(t, "postgres://user:p%40ss%20word@db:5432/solarfund?sslmode=disable", c.ConnString())

	c.Port = "6543"
	c.SSLMode = "require"
	assert.Equal(t, "postgres://user:p%40ss%20word@db:6543/solarfund?sslmode=require", c.ConnString())
}

func TestSolarfund_Config_OpenStores_File(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := Default()
	cfg.DataDir = dir

	stores, err := OpenStores(context.Background(), solarfundtesting.NewLogger(), cfg)
	require.NoError(t, err)
	defer stores.Close()

	require.Equal(t, filepath.Join(dir, ledger.DefaultFileName), stores.Campaign.(*ledger.FileBackend).Path())
	require.Equal(t, filepath.Join(dir, energy.DefaultRecordsFile), stores.EnergyRecords.(*ledger.FileBackend).Path())
	require.Equal(t, filepath.Join(dir, energy.DefaultBadgesFile), stores.EnergyBadges.(*ledger.FileBackend).Path())
}
