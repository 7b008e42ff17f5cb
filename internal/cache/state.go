package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"time"
)

const appStateKey = "app"

// AppState is the UI/session state restored on start.
type AppState struct {
	SelectedFile string    `json:"selectedFile,omitempty"`
	ViewMode     string    `json:"viewMode,omitempty"`
	LastUpdate   time.Time `json:"lastUpdate"`
}

// SaveAppState stores s stamped with the current time.
func (c *Cache) SaveAppState(ctx context.Context, s AppState) {
	s.LastUpdate = c.now().UTC()
	data, err := json.Marshal(s)
	if err != nil {
		c.warn("cache: encode app state", err)
		return
	}
	_, err = c.conn.ExecContext(ctx, `
		INSERT INTO app_state (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, appStateKey, string(data), s.LastUpdate)
	if err != nil {
		c.warn("cache: save app state", err)
	}
}

// LoadAppState returns the saved state unless it is older than the TTL, in
// which case it is deleted and ok is false.
func (c *Cache) LoadAppState(ctx context.Context) (AppState, bool) {
	var value string
	err := c.conn.QueryRowContext(ctx, `SELECT value FROM app_state WHERE key = ?`, appStateKey).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return AppState{}, false
	}
	if err != nil {
		c.warn("cache: load app state", err)
		return AppState{}, false
	}
	var s AppState
	if err := json.Unmarshal([]byte(value), &s); err != nil {
		c.warn("cache: decode app state", err)
		return AppState{}, false
	}
	if c.now().Sub(s.LastUpdate) > c.ttl {
		c.logger.Info("cache: app state expired", slog.Time("last_update", s.LastUpdate))
		if _, err := c.conn.ExecContext(ctx, `DELETE FROM app_state WHERE key = ?`, appStateKey); err != nil {
			c.warn("cache: delete expired app state", err)
		}
		return AppState{}, false
	}
	return s, true
}
