package server

import (
	"errors"
	"log/slog"
	"time"

	"github.com/malbeclabs/solarfund/api/handlers"
)

const (
	DefaultReadHeaderTimeout = 10 * time.Second
	DefaultShutdownTimeout   = 30 * time.Second
)

type Config struct {
	Logger            *slog.Logger
	ListenAddr        string
	MetricsAddr       string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
	Env               handlers.Env
	AllowedOrigins    []string
	API               *handlers.API
	// Sentry, when true, recovers panics into Sentry and attaches a hub to
	// every request.
	Sentry bool
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.ListenAddr == "" {
		return errors.New("listen addr is required")
	}
	if cfg.API == nil {
		return errors.New("api is required")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		cfg.ReadHeaderTimeout = DefaultReadHeaderTimeout
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Env == "" {
		cfg.Env = handlers.EnvProduction
	}
	return nil
}
