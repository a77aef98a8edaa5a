package ledger

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const createCollectionsTable = `
CREATE TABLE IF NOT EXISTS ledger_collections (
    kind       TEXT PRIMARY KEY,
    document   JSONB NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresBackend keeps one JSONB document per collection in PostgreSQL.
type PostgresBackend struct {
	db *pgxpool.Pool
}

// NewPostgresBackend constructs a Postgres-backed ledger backend.
func NewPostgresBackend(db *pgxpool.Pool) *PostgresBackend {
	return &PostgresBackend{db: db}
}

// EnsureSchema creates the collections table when missing.
func (b *PostgresBackend) EnsureSchema(ctx context.Context) error {
	_, err := b.db.Exec(ctx, createCollectionsTable)
	return err
}

// Load returns the stored document for kind.
func (b *PostgresBackend) Load(ctx context.Context, kind Kind) ([]byte, error) {
	var doc string
	err := b.db.QueryRow(ctx, `SELECT document::text FROM ledger_collections WHERE kind = $1`, string(kind)).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return []byte(doc), nil
}

// Save upserts the document for kind in a single statement.
func (b *PostgresBackend) Save(ctx context.Context, kind Kind, document []byte) error {
	_, err := b.db.Exec(ctx, `INSERT INTO ledger_collections (kind, document, updated_at)
        VALUES ($1, $2::jsonb, now())
        ON CONFLICT (kind) DO UPDATE SET document = EXCLUDED.document, updated_at = EXCLUDED.updated_at`,
		string(kind), string(document))
	return err
}
