package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kordia/kordia-go/internal/errors"
)

// Fixed keys of the local key/value state
const (
	PlaylistsKey    = "kordia_playlists"
	OfflineCacheKey = "kordia_offline_cache"
)

// KVStore keeps small JSON documents under fixed keys
type KVStore struct {
	db *sql.DB
}

// NewKVStore creates a new KVStore
func NewKVStore(db *sql.DB) *KVStore {
	return &KVStore{db: db}
}

// Get decodes the document under key into v. It reports false when the key
// has never been written.
func (s *KVStore) Get(ctx context.Context, key string, v interface{}) (bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM kv_state WHERE key = ?", key).Scan(&raw)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

// Set encodes v as JSON and stores it under key
func (s *KVStore) Set(ctx context.Context, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO kv_state (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, string(data), time.Now().UTC())
	if err != nil {
		return errors.NewCacheWriteError(fmt.Sprintf("failed to store %s", key), err)
	}
	return nil
}

// Delete removes key
func (s *KVStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM kv_state WHERE key = ?", key); err != nil {
		return errors.NewCacheWriteError(fmt.Sprintf("failed to delete %s", key), err)
	}
	return nil
}
