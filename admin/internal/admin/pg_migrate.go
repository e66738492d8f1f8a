package admin

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/malbeclabs/solarfund/api/config"
	"github.com/malbeclabs/solarfund/crowdfund/pkg/ledger"
)

// PgMigrateUp runs all pending PostgreSQL migrations
func PgMigrateUp(ctx context.Context, log *slog.Logger, cfg config.PostgresConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid postgres config: %w", err)
	}
	return ledger.MigrateUp(ctx, log, cfg.ConnString())
}

// PgMigrateReset rolls back every PostgreSQL migration, dropping the
// campaign_documents table.
func PgMigrateReset(ctx context.Context, log *slog.Logger, cfg config.PostgresConfig, skipConfirm bool, in io.Reader, out io.Writer) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid postgres config: %w", err)
	}
	if !skipConfirm {
		fmt.Fprintf(out, "⚠️  WARNING: This will roll back every migration on database '%s' and drop all stored documents.\n", cfg.Database)
		ok, err := confirm(in, out)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}
	return ledger.MigrateReset(ctx, log, cfg.ConnString())
}

// PgMigrateStatus prints the current schema version
func PgMigrateStatus(ctx context.Context, log *slog.Logger, cfg config.PostgresConfig, out io.Writer) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid postgres config: %w", err)
	}
	version, err := ledger.MigrationVersion(ctx, log, cfg.ConnString())
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "PostgreSQL schema version: %d\n", version)
	return nil
}
