package cuems

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	_ "modernc.org/sqlite"
)

// Cache keys
const (
	CacheKeyTemplate = "initial_template"
	CacheKeyMappings = "initial_mappings"
)

// ErrCacheMiss is returned when a key has never been stored
var ErrCacheMiss = errors.New("cache entry not found")

// StateCache persists the last template and topology received from the
// engine so the console can render before a fresh copy arrives. Entries are
// plain JSON copies and never authoritative.
type StateCache struct {
	db *sql.DB
}

var cacheMigrations = []string{
	`CREATE TABLE IF NOT EXISTS cache (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at TEXT NOT NULL
)`,
}

// OpenStateCache opens (creating if needed) the sqlite cache at path
func OpenStateCache(ctx context.Context, path string) (*StateCache, error) {
	if path == "" {
		return nil, fmt.Errorf("state cache path cannot be empty")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory %q: %w", dir, err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open state cache at %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping state cache: %w", err)
	}

	for i, stmt := range cacheMigrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply state cache migration %d: %w", i+1, err)
		}
	}

	log.Debugf("Opened state cache at %s", path)
	return &StateCache{db: db}, nil
}

// Close closes the underlying database
func (c *StateCache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Put stores raw JSON under key
func (c *StateCache) Put(ctx context.Context, key string, value []byte) error {
	if !json.Valid(value) {
		return fmt.Errorf("refusing to cache invalid JSON for %s", key)
	}
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO cache (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, string(value), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to cache %s: %w", key, err)
	}
	return nil
}

// PutJSON marshals v and stores it under key
func (c *StateCache) PutJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return c.Put(ctx, key, data)
}

// Get returns the JSON stored under key and when it was stored
func (c *StateCache) Get(ctx context.Context, key string) ([]byte, time.Time, error) {
	var value, updated string
	err := c.db.QueryRowContext(ctx, `SELECT value, updated_at FROM cache WHERE key = ?`, key).Scan(&value, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, ErrCacheMiss
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to read %s from cache: %w", key, err)
	}
	ts, _ := time.Parse(time.RFC3339Nano, updated)
	return []byte(value), ts, nil
}

// Delete removes key
func (c *StateCache) Delete(ctx context.Context, key string) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM cache WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete %s from cache: %w", key, err)
	}
	return nil
}
