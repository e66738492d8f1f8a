package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the part of *pgxpool.Pool the Postgres backend uses.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresBackend keeps one JSONB row per key in campaign_documents. Campaign
// documents are keyed by operator identity; other documents by name.
type PostgresBackend struct {
	db DB
}

func NewPostgresBackend(db DB) *PostgresBackend {
	return &PostgresBackend{db: db}
}

func (b *PostgresBackend) Name() string { return "postgres" }

func (b *PostgresBackend) Read(ctx context.Context, operator string) ([]byte, error) {
	var doc []byte
	err := b.db.QueryRow(ctx,
		`SELECT document FROM campaign_documents WHERE operator_identity = $1`,
		operator,
	).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select campaign document: %w", err)
	}
	return doc, nil
}

func (b *PostgresBackend) Write(ctx context.Context, operator string, doc []byte) error {
	_, err := b.db.Exec(ctx, `
		INSERT INTO campaign_documents (operator_identity, document)
		VALUES ($1, $2::jsonb)
		ON CONFLICT (operator_identity)
		DO UPDATE SET document = EXCLUDED.document, updated_at = now()`,
		operator, string(doc),
	)
	if err != nil {
		return fmt.Errorf("upsert campaign document: %w", err)
	}
	return nil
}

// Delete removes the document for operator.
func (b *PostgresBackend) Delete(ctx context.Context, operator string) error {
	if _, err := b.db.Exec(ctx, `DELETE FROM campaign_documents WHERE operator_identity = $1`, operator); err != nil {
		return fmt.Errorf("delete campaign document: %w", err)
	}
	return nil
}
