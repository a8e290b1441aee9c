// Package store implements the authenticated persistence layer: one sealed
// blob holding the full credential snapshot, written atomically through a
// pluggable backend (local file, Postgres row, or S3 object).
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/authvault/internal/config"
)

// Backend abstracts where the sealed blob lives. Implementations must make
// Store atomic: a failed write leaves the previous blob intact.
//
// Load returns common.ErrNotFound when no blob has ever been written.
type Backend interface {
	Load(ctx context.Context) ([]byte, error)
	Store(ctx context.Context, blob []byte) error
}

// NewBackend constructs the backend selected by cfg.StorageBackend.
// The db argument is used only by the Postgres backend and may be nil
// for the others.
func NewBackend(cfg *config.Config, db *sql.DB) (Backend, error) {
	switch cfg.StorageBackend {
	case config.BackendFile:
		return NewFileBackend(cfg.DataDir)
	case config.BackendPostgres:
		if db == nil {
			return nil, fmt.Errorf("postgres backend requires a database handle")
		}
		return NewPostgresBackend(db), nil
	case config.BackendS3:
		return NewS3Backend(cfg)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}
