package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/malbeclabs/solarfund/admin/internal/admin"
	"github.com/malbeclabs/solarfund/api/config"
	"github.com/malbeclabs/solarfund/crowdfund/pkg/wallet"
	"github.com/malbeclabs/solarfund/utils/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")

	// PostgreSQL configuration
	pg := config.DefaultPostgresConfig()
	flag.StringVar(&pg.Host, "postgres-host", pg.Host, "PostgreSQL host (or set POSTGRES_HOST env var)")
	flag.StringVar(&pg.Port, "postgres-port", pg.Port, "PostgreSQL port (or set POSTGRES_PORT env var)")
	flag.StringVar(&pg.Database, "postgres-db", pg.Database, "PostgreSQL database (or set POSTGRES_DB env var)")
	flag.StringVar(&pg.Username, "postgres-user", pg.Username, "PostgreSQL user (or set POSTGRES_USER env var)")
	flag.StringVar(&pg.Password, "postgres-password", pg.Password, "PostgreSQL password (or set POSTGRES_PASSWORD env var)")
	flag.StringVar(&pg.SSLMode, "postgres-sslmode", pg.SSLMode, "PostgreSQL sslmode (or set POSTGRES_SSLMODE env var)")

	// Document backend configuration
	backendFlag := flag.String("backend", string(config.BackendFile), "Document backend: file, postgres or s3 (or set CROWDFUND_BACKEND env var)")
	dataDirFlag := flag.String("data-dir", config.DefaultDataDir, "Directory for the file backend (or set CROWDFUND_DATA_DIR env var)")
	s3BucketFlag := flag.String("s3-bucket", "", "S3 bucket (or set S3_BUCKET env var)")
	s3PrefixFlag := flag.String("s3-prefix", "", "S3 key prefix (or set S3_PREFIX env var)")
	operatorFlag := flag.String("operator", "", "Operator identity key of the campaign to reset (default: resolved from --wallet-url)")

	// Wallet configuration
	walletURLFlag := flag.String("wallet-url", wallet.DefaultBaseURL, "Service wallet URL (or set WALLET_URL env var)")
	funderURLFlag := flag.String("funder-url", "", "Funding wallet URL (or set FUNDER_WALLET_URL env var)")
	amountFlag := flag.Uint64("amount", admin.DefaultFundAmount, "Satoshis to move into the service wallet")

	// Commands
	pgMigrateFlag := flag.Bool("pg-migrate", false, "Run PostgreSQL migrations using goose")
	pgMigrateResetFlag := flag.Bool("pg-migrate-reset", false, "Roll back every PostgreSQL migration")
	pgMigrateStatusFlag := flag.Bool("pg-migrate-status", false, "Show the PostgreSQL schema version")
	resetFlag := flag.Bool("reset", false, "Delete the campaign, energy record and sensor badge documents")
	fundWalletFlag := flag.Bool("fund-wallet", false, "Fund the service wallet from --funder-url")
	dryRunFlag := flag.Bool("dry-run", false, "Dry run mode - show what would be done without actually executing")
	yesFlag := flag.Bool("yes", false, "Skip confirmation prompt (use with caution)")

	flag.Parse()

	log := logger.New(*verboseFlag)

	// Environment overrides, same names as the api
	cfg := config.Default()
	cfg.Backend = config.Backend(*backendFlag)
	cfg.DataDir = *dataDirFlag
	cfg.Postgres = pg
	cfg.S3.Bucket = *s3BucketFlag
	cfg.S3.Prefix = *s3PrefixFlag
	cfg.Wallet.URL = *walletURLFlag
	if err := config.ApplyEnv(&cfg, os.Getenv); err != nil {
		return fmt.Errorf("invalid environment: %w", err)
	}
	if envFunderURL := os.Getenv("FUNDER_WALLET_URL"); envFunderURL != "" {
		*funderURLFlag = envFunderURL
	}
	if envAmount := os.Getenv("FUND_AMOUNT"); envAmount != "" {
		v, err := strconv.ParseUint(envAmount, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid FUND_AMOUNT: %w", err)
		}
		*amountFlag = v
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Execute commands
	if *pgMigrateFlag {
		return admin.PgMigrateUp(ctx, log, cfg.Postgres)
	}

	if *pgMigrateResetFlag {
		return admin.PgMigrateReset(ctx, log, cfg.Postgres, *yesFlag, os.Stdin, os.Stdout)
	}

	if *pgMigrateStatusFlag {
		return admin.PgMigrateStatus(ctx, log, cfg.Postgres, os.Stdout)
	}

	if *resetFlag {
		cfg.Postgres.RunMigrations = false
		stores, err := config.OpenStores(ctx, log, cfg)
		if err != nil {
			return err
		}
		defer stores.Close()

		operator := *operatorFlag
		if operator == "" && cfg.Backend != config.BackendFile {
			svc, err := newWallet(log, cfg.Wallet.URL)
			if err != nil {
				return err
			}
			if operator, err = svc.GetIdentity(ctx); err != nil {
				return fmt.Errorf("failed to resolve operator identity (pass --operator): %w", err)
			}
		}

		docs, err := admin.Documents(stores, operator)
		if err != nil {
			return err
		}
		return admin.ResetDocuments(ctx, log, docs, admin.ResetOptions{
			DryRun:      *dryRunFlag,
			SkipConfirm: *yesFlag,
			In:          os.Stdin,
			Out:         os.Stdout,
		})
	}

	if *fundWalletFlag {
		if *funderURLFlag == "" {
			return fmt.Errorf("--funder-url is required for --fund-wallet")
		}
		svc, err := newWallet(log, cfg.Wallet.URL)
		if err != nil {
			return err
		}
		funder, err := newWallet(log, *funderURLFlag)
		if err != nil {
			return err
		}
		res, err := admin.FundWallet(ctx, admin.FundConfig{
			Logger:  log,
			Funder:  funder,
			Service: svc,
			Amount:  *amountFlag,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Funded %s with %d satoshis (txid %s)\n", res.ServiceIdentity, res.Amount, res.Txid)
		return nil
	}

	flag.Usage()
	return nil
}

func newWallet(log *slog.Logger, url string) (*wallet.Client, error) {
	c, err := wallet.NewClient(wallet.Config{
		Logger:     log,
		BaseURL:    url,
		Originator: "solarfund-admin",
		HTTPClient: &http.Client{Timeout: time.Minute},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create wallet client for %s: %w", url, err)
	}
	return c, nil
}
