package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"
	"golang.org/x/time/rate"

	"github.com/malbeclabs/solarfund/api/config"
	"github.com/malbeclabs/solarfund/api/handlers"
	"github.com/malbeclabs/solarfund/api/metrics"
	"github.com/malbeclabs/solarfund/api/server"
	"github.com/malbeclabs/solarfund/crowdfund/pkg/campaign"
	"github.com/malbeclabs/solarfund/crowdfund/pkg/energy"
	"github.com/malbeclabs/solarfund/crowdfund/pkg/ledger"
	"github.com/malbeclabs/solarfund/crowdfund/pkg/paygate"
	"github.com/malbeclabs/solarfund/crowdfund/pkg/token"
	"github.com/malbeclabs/solarfund/crowdfund/pkg/wallet"
	"github.com/malbeclabs/solarfund/utils/pkg/logger"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Default()

	envFileFlag := flag.String("env-file", ".env", "Optional dotenv file loaded before reading environment overrides")
	flag.StringVar(&cfg.ListenAddr, "listen-addr", cfg.ListenAddr, "Address for the HTTP API (or set CROWDFUND_LISTEN_ADDR env var)")
	flag.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Address for prometheus metrics, empty to disable (or set CROWDFUND_METRICS_ADDR env var)")
	flag.StringVar(&cfg.Env, "env", cfg.Env, "Environment: production or development (or set CROWDFUND_ENV env var)")
	flag.BoolVar(&cfg.Verbose, "verbose", cfg.Verbose, "Enable verbose (debug) logging (or set CROWDFUND_VERBOSE env var)")
	flag.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format: text or json (or set CROWDFUND_LOG_FORMAT env var)")
	flag.Int64Var(&cfg.Goal, "goal", cfg.Goal, "Funding goal in satoshis for new campaigns (or set CROWDFUND_GOAL env var)")
	flag.StringVar((*string)(&cfg.Backend), "backend", string(cfg.Backend), "Document backend: file, postgres or s3 (or set CROWDFUND_BACKEND env var)")
	flag.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "Directory for the file backend (or set CROWDFUND_DATA_DIR env var)")
	flag.StringVar(&cfg.ExplorerURL, "explorer-url", energy.DefaultExplorerURL, "Block explorer base URL for energy tx links (or set CROWDFUND_EXPLORER_URL env var)")
	flag.StringVar(&cfg.Wallet.URL, "wallet-url", cfg.Wallet.URL, "Wallet substrate base URL (or set WALLET_URL env var)")
	flag.StringVar(&cfg.Wallet.Originator, "wallet-originator", cfg.Wallet.Originator, "Originator sent to the wallet (or set WALLET_ORIGINATOR env var)")
	flag.BoolVar(&cfg.Wallet.NoSend, "wallet-no-send", cfg.Wallet.NoSend, "Build actions without broadcasting (or set WALLET_NO_SEND env var)")
	flag.DurationVar(&cfg.Wallet.Timeout, "wallet-timeout", cfg.Wallet.Timeout, "Timeout for each wallet call")
	flag.IntVar(&cfg.WritesPerMinute, "writes-per-minute", cfg.WritesPerMinute, "Mutating requests allowed per client IP per minute, 0 to disable")
	flag.IntVar(&cfg.WriteBurst, "write-burst", cfg.WriteBurst, "Burst size for mutating requests per client IP")
	flag.StringSliceVar(&cfg.AllowedOrigins, "allowed-origin", nil, "Extra CORS origin, repeatable (or set CROWDFUND_ALLOWED_ORIGINS env var)")
	shutdownTimeoutFlag := flag.Duration("shutdown-timeout", server.DefaultShutdownTimeout, "Maximum time to wait for in-flight requests during graceful shutdown")

	flag.Parse()

	if err := godotenv.Load(*envFileFlag); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", *envFileFlag, err)
	}
	if err := config.ApplyEnv(&cfg, os.Getenv); err != nil {
		return fmt.Errorf("invalid environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	format, err := logger.ParseFormat(cfg.LogFormat)
	if err != nil {
		return err
	}
	log := logger.NewWithOptions(logger.Options{Verbose: cfg.Verbose, Format: format})
	log.Info("solarfund api starting", "version", version, "commit", commit, "date", date, "backend", cfg.Backend, "goal", cfg.Goal)

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Environment:      cfg.Env,
			Release:          version,
			TracesSampleRate: 0.1,
		}); err != nil {
			return fmt.Errorf("failed to initialize sentry: %w", err)
		}
		defer sentry.Flush(2 * time.Second)
		log.Info("sentry enabled", "environment", cfg.Env)
	}

	metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	stores, err := config.OpenStores(ctx, log, cfg)
	if err != nil {
		return err
	}
	defer stores.Close()

	walletClient, err := wallet.NewClient(wallet.Config{
		Logger:     log,
		BaseURL:    cfg.Wallet.URL,
		Originator: cfg.Wallet.Originator,
		HTTPClient: &http.Client{Timeout: cfg.Wallet.Timeout},
		NoSend:     cfg.Wallet.NoSend,
		Observe:    metrics.RecordWalletCall,
	})
	if err != nil {
		return fmt.Errorf("failed to create wallet client: %w", err)
	}
	if identity, err := walletClient.GetIdentity(ctx); err != nil {
		log.Warn("wallet identity unavailable at startup, readyz will report not ready", "error", err)
	} else {
		log.Info("operator identity resolved", "identity", identity)
	}

	minter, err := token.NewMinter(token.Config{Logger: log, Wallet: walletClient})
	if err != nil {
		return fmt.Errorf("failed to create token minter: %w", err)
	}

	led, err := ledger.New(ledger.Config{
		Logger:      log,
		Backend:     stores.Campaign,
		DefaultGoal: cfg.Goal,
		OnFailure:   metrics.RecordPersistenceFailure,
	})
	if err != nil {
		return fmt.Errorf("failed to create ledger: %w", err)
	}

	campaignSvc, err := campaign.NewService(campaign.Config{
		Logger:         log,
		Store:          led,
		Minter:         minter,
		Identity:       walletClient,
		OnContribution: metrics.RecordContribution,
		OnRedemption:   metrics.RecordRedemption,
	})
	if err != nil {
		return fmt.Errorf("failed to create campaign service: %w", err)
	}

	energySvc, err := energy.NewService(ctx, energy.Config{
		Logger:      log,
		Wallet:      walletClient,
		Minter:      minter,
		Records:     stores.EnergyRecords,
		Badges:      stores.EnergyBadges,
		ExplorerURL: cfg.ExplorerURL,
		OnAnchor:    metrics.RecordEnergyAnchor,
		OnReward:    metrics.RecordSensorReward,
	})
	if err != nil {
		return fmt.Errorf("failed to create energy service: %w", err)
	}

	gate, err := paygate.New(paygate.Config{
		Logger:    log,
		Wallet:    walletClient,
		OnPayment: metrics.RecordPayment,
	})
	if err != nil {
		return fmt.Errorf("failed to create payment gate: %w", err)
	}

	var limiter *handlers.RateLimiter
	if cfg.WritesPerMinute > 0 {
		limiter = handlers.NewRateLimiter(rate.Every(time.Minute/time.Duration(cfg.WritesPerMinute)), cfg.WriteBurst)
		defer limiter.Close()
	}

	api, err := handlers.New(handlers.Config{
		Logger:       log,
		Campaign:     campaignSvc,
		Energy:       energySvc,
		Identity:     walletClient,
		PaymentGate:  gate.Middleware,
		WriteLimiter: limiter,
		Version:      handlers.VersionResponse{Version: version, Commit: commit, Date: date},
	})
	if err != nil {
		return fmt.Errorf("failed to create api: %w", err)
	}

	srv, err := server.New(server.Config{
		Logger:          log,
		ListenAddr:      cfg.ListenAddr,
		MetricsAddr:     cfg.MetricsAddr,
		ShutdownTimeout: *shutdownTimeoutFlag,
		Env:             handlers.ParseEnv(cfg.Env),
		AllowedOrigins:  cfg.AllowedOrigins,
		API:             api,
		Sentry:          cfg.SentryDSN != "",
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	return srv.Run(ctx)
}
