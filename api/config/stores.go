package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/malbeclabs/solarfund/crowdfund/pkg/energy"
	"github.com/malbeclabs/solarfund/crowdfund/pkg/ledger"
)

// Stores are the document backends for the campaign ledger and the energy
// service. Close releases any connection they hold.
type Stores struct {
	Campaign      ledger.Backend
	EnergyRecords energy.Backend
	EnergyBadges  energy.Backend
	Close         func()
}

// OpenStores opens the backend cfg selects. Postgres and S3 keep every
// document in one place, keyed by name; the file backend uses one file each.
func OpenStores(ctx context.Context, log *slog.Logger, cfg Config) (*Stores, error) {
	switch cfg.Backend {
	case BackendPostgres:
		pool, err := OpenPostgres(ctx, log, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		b := ledger.NewPostgresBackend(pool)
		return &Stores{Campaign: b, EnergyRecords: b, EnergyBadges: b, Close: pool.Close}, nil

	case BackendS3:
		client, err := NewS3Client(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		b, err := ledger.NewS3Backend(client, cfg.S3.Bucket, cfg.S3.Prefix)
		if err != nil {
			return nil, err
		}
		log.Info("config: using s3 backend", "bucket", cfg.S3.Bucket, "prefix", cfg.S3.Prefix)
		return &Stores{Campaign: b, EnergyRecords: b, EnergyBadges: b, Close: func() {}}, nil

	case BackendFile, "":
		dir := cfg.DataDir
		if dir == "" {
			dir = DefaultDataDir
		}
		log.Info("config: using file backend", "dir", dir)
		return &Stores{
			Campaign:      ledger.NewFileBackend(filepath.Join(dir, ledger.DefaultFileName)),
			EnergyRecords: ledger.NewFileBackend(filepath.Join(dir, energy.DefaultRecordsFile)),
			EnergyBadges:  ledger.NewFileBackend(filepath.Join(dir, energy.DefaultBadgesFile)),
			Close:         func() {},
		}, nil
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}
