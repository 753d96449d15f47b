// Package resolvecache caches raw episode URL resolutions in SQLite so
// already-seen links can be recognized without refetching their pages.
//
// The cache is advisory: the episode state file remains the source of
// truth, and a cache miss simply means the resolver runs again.
package resolvecache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

const schema = `
CREATE TABLE IF NOT EXISTS resolutions (
	url TEXT PRIMARY KEY,
	episode_id TEXT NOT NULL,
	media_url TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	resolved_at TEXT NOT NULL
);
`

// Entry is a cached resolution of a raw episode URL.
type Entry struct {
	URL        string
	EpisodeID  string
	MediaURL   string
	Title      string
	ResolvedAt time.Time
}

// Cache provides access to the resolution cache. A nil *Cache is valid and
// behaves as an always-miss cache.
type Cache struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the cache database at path.
func Open(path string) (*Cache, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("resolve cache path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &Cache{db: db, path: path}, nil
}

// Path returns the cache database location.
func (c *Cache) Path() string {
	if c == nil {
		return ""
	}
	return c.path
}

// Lookup returns the cached resolution for a raw URL if present.
func (c *Cache) Lookup(ctx context.Context, url string) (Entry, bool, error) {
	if c == nil || c.db == nil {
		return Entry{}, false, nil
	}
	url = strings.TrimSpace(url)
	if url == "" {
		return Entry{}, false, nil
	}

	var entry Entry
	var resolvedAt string
	err := retryOnBusy(ensureContext(ctx), func() error {
		row := c.db.QueryRowContext(ensureContext(ctx),
			`SELECT url, episode_id, media_url, title, resolved_at FROM resolutions WHERE url = ?`, url)
		return row.Scan(&entry.URL, &entry.EpisodeID, &entry.MediaURL, &entry.Title, &resolvedAt)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("lookup resolution: %w", err)
	}
	if parsed, parseErr := time.Parse(time.RFC3339, resolvedAt); parseErr == nil {
		entry.ResolvedAt = parsed
	}
	return entry, true, nil
}

// Store upserts a resolution.
func (c *Cache) Store(ctx context.Context, entry Entry) error {
	if c == nil || c.db == nil {
		return nil
	}
	entry.URL = strings.TrimSpace(entry.URL)
	entry.EpisodeID = strings.TrimSpace(entry.EpisodeID)
	if entry.URL == "" || entry.EpisodeID == "" {
		return errors.New("resolution requires url and episode id")
	}
	if entry.ResolvedAt.IsZero() {
		entry.ResolvedAt = time.Now().UTC()
	}

	return retryOnBusy(ensureContext(ctx), func() error {
		_, err := c.db.ExecContext(ensureContext(ctx),
			`INSERT INTO resolutions (url, episode_id, media_url, title, resolved_at)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(url) DO UPDATE SET
				episode_id = excluded.episode_id,
				media_url = excluded.media_url,
				title = excluded.title,
				resolved_at = excluded.resolved_at`,
			entry.URL, entry.EpisodeID, entry.MediaURL, entry.Title,
			entry.ResolvedAt.UTC().Format(time.RFC3339))
		return err
	})
}

// Count returns the number of cached resolutions.
func (c *Cache) Count(ctx context.Context) (int, error) {
	if c == nil || c.db == nil {
		return 0, nil
	}
	var count int
	err := retryOnBusy(ensureContext(ctx), func() error {
		return c.db.QueryRowContext(ensureContext(ctx), `SELECT COUNT(*) FROM resolutions`).Scan(&count)
	})
	if err != nil {
		return 0, fmt.Errorf("count resolutions: %w", err)
	}
	return count, nil
}

// Close closes the underlying database connection.
func (c *Cache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}
