package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/authvault/internal/common"
	"github.com/dmitrijs2005/authvault/internal/store/migrations"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// PostgresBackend keeps the sealed blob in a single-row table. The row swap
// happens in one statement, so a failed commit leaves the previous blob
// intact. The blob stays opaque to the database: it is sealed before it
// gets here.
type PostgresBackend struct {
	db *sql.DB
}

func NewPostgresBackend(db *sql.DB) *PostgresBackend {
	return &PostgresBackend{db: db}
}

// RunMigrations applies the embedded goose migrations.
func (b *PostgresBackend) RunMigrations(ctx context.Context) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}

	if err := goose.UpContext(ctx, b.db, "."); err != nil {
		return err
	}

	return nil
}

func (b *PostgresBackend) Load(ctx context.Context) ([]byte, error) {
	var blob []byte
	err := b.db.QueryRowContext(ctx, `SELECT blob FROM store_blob WHERE id = 1`).Scan(&blob)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("select blob: %w", err)
	}
	return blob, nil
}

func (b *PostgresBackend) Store(ctx context.Context, blob []byte) error {
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO store_blob (id, blob, updated_at) VALUES (1, $1, now())
		ON CONFLICT (id) DO UPDATE SET blob = EXCLUDED.blob, updated_at = now()`, blob)
	if err != nil {
		return fmt.Errorf("upsert blob: %w", err)
	}
	return nil
}
