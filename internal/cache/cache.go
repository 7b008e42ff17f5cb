// Package cache is the SQLite-backed local persistence layer: saved
// workspace handles, app state, and the last scanned posts and tree of each
// workspace. Every operation fails soft: errors are logged and callers see
// an empty or uncached result.
package cache

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DefaultAppStateTTL bounds how long saved app state stays valid.
const DefaultAppStateTTL = 7 * 24 * time.Hour

const schemaSQL = `
CREATE TABLE IF NOT EXISTS handles (
	slot       TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS app_state (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS posts_cache (
	workspace TEXT NOT NULL,
	path      TEXT NOT NULL,
	position  INTEGER NOT NULL,
	title     TEXT NOT NULL DEFAULT '',
	body      TEXT NOT NULL DEFAULT '',
	value     TEXT NOT NULL,
	PRIMARY KEY (workspace, path)
);

CREATE INDEX IF NOT EXISTS idx_posts_cache_position ON posts_cache(workspace, position);

CREATE TABLE IF NOT EXISTS tree_cache (
	workspace  TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at DATETIME NOT NULL
);
`

// Cache wraps a sql.DB with the persistence operations.
type Cache struct {
	conn   *sql.DB
	logger *slog.Logger
	ttl    time.Duration
	now    func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger failures are reported to.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// WithAppStateTTL overrides DefaultAppStateTTL. Non-positive values are ignored.
func WithAppStateTTL(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.ttl = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string, opts ...Option) (*Cache, error) {
	c := &Cache{
		logger: slog.Default(),
		ttl:    DefaultAppStateTTL,
		now:    time.Now,
	}
	for _, o := range opts {
		o(c)
	}

	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("cache: open db: %w", err)
	}
	if dsn == ":memory:" {
		// Every connection to :memory: is a separate database.
		conn.SetMaxOpenConns(1)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("cache: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("cache: apply schema: %w", err)
	}
	c.conn = conn
	return c, nil
}

// Close closes the underlying database connection.
func (c *Cache) Close() error {
	return c.conn.Close()
}

func (c *Cache) warn(msg string, err error, attrs ...slog.Attr) {
	args := make([]any, 0, len(attrs)+1)
	for _, a := range attrs {
		args = append(args, a)
	}
	args = append(args, slog.String("error", err.Error()))
	c.logger.Warn(msg, args...)
}
