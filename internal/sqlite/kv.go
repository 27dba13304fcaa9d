package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rpggio/deskset/internal/repository"
)

// KVStore implements repository.KVStore for SQLite
type KVStore struct {
	db     *DB
	mu     sync.RWMutex
	closed bool
}

// NewKVStore creates a new KVStore
func NewKVStore(db *DB) *KVStore {
	return &KVStore{db: db}
}

// Get retrieves the value stored under key
func (s *KVStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}

	return value, nil
}

// Set stores value under key in a single-key transaction
func (s *KVStore) Set(ctx context.Context, key string, value []byte) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO kv (key, value, revision, updated_at)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(key) DO UPDATE
		SET value = excluded.value,
		    revision = kv.revision + 1,
		    updated_at = excluded.updated_at
	`
	if _, err := tx.ExecContext(ctx, query, key, value, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit %s: %w", key, err)
	}
	return nil
}

// Remove deletes key; a missing key is not an error
func (s *KVStore) Remove(ctx context.Context, key string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to remove %s: %w", key, err)
	}
	return nil
}

// Revision returns how many times key has been written
func (s *KVStore) Revision(ctx context.Context, key string) (int64, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}

	var revision int64
	err := s.db.QueryRowContext(ctx, `SELECT revision FROM kv WHERE key = ?`, key).Scan(&revision)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, repository.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get revision for %s: %w", key, err)
	}
	return revision, nil
}

// Close marks the store closed and closes the database
func (s *KVStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *KVStore) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return repository.ErrClosed
	}
	return nil
}
