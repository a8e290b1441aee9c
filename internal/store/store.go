package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/authvault/internal/common"
	"github.com/dmitrijs2005/authvault/internal/cryptox"
	"github.com/dmitrijs2005/authvault/internal/logging"
	"github.com/dmitrijs2005/authvault/internal/models"
)

// Store is the single point of durable persistence for credential records
// and the security policy. The whole snapshot is serialized, sealed with
// the master key, and written as one blob through the backend.
//
// All mutations go through Update, which runs the read-modify-write cycle
// under an exclusive lock: at most one commit is in flight at a time, so
// interleaved cycles cannot lose updates.
type Store struct {
	mu        sync.Mutex
	backend   Backend
	masterKey []byte
	logger    logging.Logger
}

// Open loads and authenticates the existing blob, or seeds a new store
// with an empty record set and the default policy on first run.
//
// A decryption or authentication failure yields common.ErrIntegrity and is
// fatal: tampering and a wrong key are deliberately indistinguishable, and
// the store is never silently reinitialized over a blob that fails to open.
func Open(ctx context.Context, backend Backend, masterKey []byte, logger logging.Logger) (*Store, error) {
	s := &Store{
		backend:   backend,
		masterKey: masterKey,
		logger:    logger.With("module", "store"),
	}

	blob, err := backend.Load(ctx)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			s.logger.Info(ctx, "no existing store, initializing")
			if err := s.Commit(ctx, models.NewSnapshot()); err != nil {
				return nil, fmt.Errorf("seed store: %w", err)
			}
			return s, nil
		}
		return nil, err
	}

	// Verify the key and the blob before handing the store out.
	snap, err := s.decode(blob)
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "store opened", "users", len(snap.Users), "schema_version", snap.Version)
	return s, nil
}

// Load decrypts and returns the current snapshot. Safe to call
// concurrently; it does not block in-flight commits.
func (s *Store) Load(ctx context.Context) (*models.Snapshot, error) {
	blob, err := s.backend.Load(ctx)
	if err != nil {
		return nil, err
	}
	return s.decode(blob)
}

// Commit serializes the snapshot, seals it under a fresh nonce, and writes
// it through the backend. The previous blob is either fully replaced or
// left untouched on failure. Write failures are surfaced, not retried.
func (s *Store) Commit(ctx context.Context, snap *models.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitLocked(ctx, snap)
}

// Update runs fn on a working copy of the current snapshot and commits the
// result, all under the store's exclusive lock. This is the only correct
// way to do a read-modify-write cycle (counter increments included); if fn
// returns an error nothing is written.
func (s *Store) Update(ctx context.Context, fn func(*models.Snapshot) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	blob, err := s.backend.Load(ctx)
	if err != nil {
		return err
	}
	snap, err := s.decode(blob)
	if err != nil {
		return err
	}

	if err := fn(snap); err != nil {
		return err
	}

	return s.commitLocked(ctx, snap)
}

func (s *Store) commitLocked(ctx context.Context, snap *models.Snapshot) error {
	plaintext, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	blob, err := cryptox.Seal(s.masterKey, plaintext)
	if err != nil {
		return fmt.Errorf("seal snapshot: %w", err)
	}

	if err := s.backend.Store(ctx, blob); err != nil {
		s.logger.Error(ctx, "commit failed, previous state kept", "error", err.Error())
		return err
	}
	return nil
}

func (s *Store) decode(blob []byte) (*models.Snapshot, error) {
	plaintext, err := cryptox.Open(s.masterKey, blob)
	if err != nil {
		return nil, err
	}

	snap := &models.Snapshot{}
	if err := json.Unmarshal(plaintext, snap); err != nil {
		// Authenticated plaintext that fails to parse means a bug or a
		// schema from the future, not tampering.
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}

	if err := snap.Migrate(); err != nil {
		return nil, err
	}
	return snap, nil
}
