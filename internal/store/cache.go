package store

import (
	"bytes"
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"

	"github.com/kordia/kordia-go/internal/errors"
	"github.com/kordia/kordia-go/internal/monitoring"
)

// Cache namespaces
const (
	AudioNamespace     = "audio-cache"
	ThumbnailNamespace = "thumbnail-cache"
)

// ErrCacheMiss is returned by Match when no usable response is stored under a key.
var ErrCacheMiss = stderrors.New("cache miss")

// Entry is a stored response
type Entry struct {
	Body        []byte
	ContentType string
	StoredAt    time.Time
}

// NamespaceUsage summarises one cache namespace
type NamespaceUsage struct {
	Namespace string `json:"namespace"`
	Entries   int    `json:"entries"`
	Bytes     int64  `json:"bytes"`
}

// CacheStore hands out namespaced response caches backed by the database.
type CacheStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewCacheStore creates a new CacheStore
func NewCacheStore(db *sql.DB, logger *zap.Logger) *CacheStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheStore{db: db, logger: logger}
}

// Open returns the cache for a namespace. It fails when the database is unreachable.
func (s *CacheStore) Open(ctx context.Context, namespace string) (*Cache, error) {
	if namespace == "" {
		return nil, errors.NewValidationError("cache namespace cannot be empty")
	}
	if err := s.db.PingContext(ctx); err != nil {
		return nil, errors.NewCacheWriteError("cache store unavailable", err)
	}
	return &Cache{db: s.db, namespace: namespace, logger: s.logger.With(zap.String("namespace", namespace))}, nil
}

// Usage returns entry counts and payload sizes per namespace
func (s *CacheStore) Usage(ctx context.Context) ([]NamespaceUsage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT namespace, COUNT(*), COALESCE(SUM(size), 0)
		FROM cache_entries
		GROUP BY namespace
		ORDER BY namespace
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query cache usage: %w", err)
	}
	defer rows.Close()

	var usage []NamespaceUsage
	for rows.Next() {
		var u NamespaceUsage
		if err := rows.Scan(&u.Namespace, &u.Entries, &u.Bytes); err != nil {
			return nil, fmt.Errorf("failed to scan cache usage: %w", err)
		}
		usage = append(usage, u)
	}
	return usage, rows.Err()
}

// Cache is a single namespace of keyed responses
type Cache struct {
	db        *sql.DB
	namespace string
	logger    *zap.Logger
}

// Namespace returns the cache namespace
func (c *Cache) Namespace() string {
	return c.namespace
}

// Put stores a response under key, replacing any previous one.
// Body, content type and digest land in a single transaction.
func (c *Cache) Put(ctx context.Context, key string, entry Entry) error {
	if key == "" {
		return errors.NewValidationError("cache key cannot be empty")
	}

	digest := blake2b.Sum256(entry.Body)

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		monitoring.RecordCacheOperation(c.namespace, "put", "error")
		return errors.NewCacheWriteError("failed to begin cache write", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO cache_entries (namespace, key, body, content_type, digest, size, stored_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(namespace, key) DO UPDATE SET
			body = excluded.body,
			content_type = excluded.content_type,
			digest = excluded.digest,
			size = excluded.size,
			stored_at = excluded.stored_at
	`, c.namespace, key, entry.Body, entry.ContentType, digest[:], len(entry.Body), time.Now().UTC())
	if err != nil {
		monitoring.RecordCacheOperation(c.namespace, "put", "error")
		return errors.NewCacheWriteError(fmt.Sprintf("failed to write %s", key), err)
	}

	if err := tx.Commit(); err != nil {
		monitoring.RecordCacheOperation(c.namespace, "put", "error")
		return errors.NewCacheWriteError(fmt.Sprintf("failed to commit %s", key), err)
	}

	monitoring.RecordCacheOperation(c.namespace, "put", "ok")
	return nil
}

// Match returns the response stored under key. A row whose body no longer
// matches its digest is removed and reported as ErrCacheMiss.
func (c *Cache) Match(ctx context.Context, key string) (*Entry, error) {
	var (
		entry       Entry
		contentType sql.NullString
		digest      []byte
	)
	err := c.db.QueryRowContext(ctx, `
		SELECT body, content_type, digest, stored_at
		FROM cache_entries
		WHERE namespace = ? AND key = ?
	`, c.namespace, key).Scan(&entry.Body, &contentType, &digest, &entry.StoredAt)
	if err == sql.ErrNoRows {
		monitoring.RecordCacheOperation(c.namespace, "match", "miss")
		return nil, ErrCacheMiss
	}
	if err != nil {
		monitoring.RecordCacheOperation(c.namespace, "match", "error")
		return nil, fmt.Errorf("failed to read cache entry: %w", err)
	}
	entry.ContentType = contentType.String

	sum := blake2b.Sum256(entry.Body)
	if !bytes.Equal(sum[:], digest) {
		c.logger.Warn("Dropping corrupt cache entry", zap.String("key", key), zap.Int("size", len(entry.Body)))
		if _, err := c.Delete(ctx, key); err != nil {
			c.logger.Error("Failed to delete corrupt cache entry", zap.String("key", key), zap.Error(err))
		}
		monitoring.RecordCacheOperation(c.namespace, "match", "corrupt")
		return nil, ErrCacheMiss
	}

	monitoring.RecordCacheOperation(c.namespace, "match", "hit")
	return &entry, nil
}

// Has reports whether an intact response is stored under key. The body is
// checked against its digest like Match does, so a corrupt row is dropped
// and reported absent.
func (c *Cache) Has(ctx context.Context, key string) (bool, error) {
	_, err := c.Match(ctx, key)
	if err == ErrCacheMiss {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Delete removes the response under key and reports whether one existed.
func (c *Cache) Delete(ctx context.Context, key string) (bool, error) {
	res, err := c.db.ExecContext(ctx,
		"DELETE FROM cache_entries WHERE namespace = ? AND key = ?",
		c.namespace, key,
	)
	if err != nil {
		monitoring.RecordCacheOperation(c.namespace, "delete", "error")
		return false, errors.NewCacheWriteError(fmt.Sprintf("failed to delete %s", key), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	monitoring.RecordCacheOperation(c.namespace, "delete", "ok")
	return n > 0, nil
}

// Keys lists every key in the namespace, most recently stored first.
func (c *Cache) Keys(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx,
		"SELECT key FROM cache_entries WHERE namespace = ? ORDER BY stored_at DESC, key",
		c.namespace,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list cache keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("failed to scan cache key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
