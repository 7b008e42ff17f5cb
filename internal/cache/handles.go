package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/starford/folio/internal/storage"
)

const (
	currentSlot = "current"
	recentSlot  = "recent:"
)

// HandleKind distinguishes local directories from remote repositories.
type HandleKind string

const (
	HandleLocal  HandleKind = "local"
	HandleRemote HandleKind = "remote"
)

// HandleRef is the persisted form of a workspace root: enough to reopen it,
// never the live handle itself.
type HandleRef struct {
	Kind     HandleKind `json:"kind"`
	Location string     `json:"location"`
	Name     string     `json:"name"`
}

// RecentHandle is one entry of the recent-roots list.
type RecentHandle struct {
	Name    string    `json:"name"`
	Ref     HandleRef `json:"ref"`
	SavedAt time.Time `json:"savedAt"`
}

// HandleResolver turns a saved reference back into a live directory.
type HandleResolver interface {
	Resolve(ctx context.Context, ref HandleRef) (storage.Dir, error)
}

// OSResolver reopens local references with storage.OpenOS.
type OSResolver struct{}

// Resolve implements HandleResolver.
func (OSResolver) Resolve(_ context.Context, ref HandleRef) (storage.Dir, error) {
	if ref.Kind != HandleLocal {
		return nil, fmt.Errorf("cache: cannot resolve %s handle", ref.Kind)
	}
	return storage.OpenOS(ref.Location)
}

// SaveCurrentHandle stores ref in the single "current" slot.
func (c *Cache) SaveCurrentHandle(ctx context.Context, ref HandleRef) {
	if err := c.putHandle(ctx, currentSlot, ref); err != nil {
		c.warn("cache: save current handle", err)
	}
}

// LoadCurrentHandle resolves the saved current handle and re-validates
// read/write permission, requesting it once when the answer is "prompt".
// A missing, unresolvable or denied handle yields ok=false.
func (c *Cache) LoadCurrentHandle(ctx context.Context, resolver HandleResolver) (dir storage.Dir, ref HandleRef, ok bool) {
	ref, found, err := c.getHandle(ctx, currentSlot)
	if err != nil {
		c.warn("cache: load current handle", err)
		return nil, HandleRef{}, false
	}
	if !found {
		return nil, HandleRef{}, false
	}
	dir, err = resolver.Resolve(ctx, ref)
	if err != nil {
		c.warn("cache: resolve handle", err, slog.String("location", ref.Location))
		return nil, HandleRef{}, false
	}
	if !c.verifyPermission(ctx, dir) {
		c.logger.Info("cache: saved handle lost permission", slog.String("name", ref.Name))
		return nil, HandleRef{}, false
	}
	return dir, ref, true
}

func (c *Cache) verifyPermission(ctx context.Context, dir storage.Dir) bool {
	p, err := dir.QueryPermission(ctx, storage.ModeReadWrite)
	if err != nil {
		c.warn("cache: query permission", err)
		return false
	}
	if p == storage.PermissionPrompt {
		p, err = dir.RequestPermission(ctx, storage.ModeReadWrite)
		if err != nil {
			c.warn("cache: request permission", err)
			return false
		}
	}
	return p == storage.PermissionGranted
}

// ClearCurrentHandle forgets the current handle.
func (c *Cache) ClearCurrentHandle(ctx context.Context) {
	if _, err := c.conn.ExecContext(ctx, `DELETE FROM handles WHERE slot = ?`, currentSlot); err != nil {
		c.warn("cache: clear current handle", err)
	}
}

// SaveRecentHandle records ref under name in the recent-roots list.
func (c *Cache) SaveRecentHandle(ctx context.Context, name string, ref HandleRef) {
	if err := c.putHandle(ctx, recentSlot+name, ref); err != nil {
		c.warn("cache: save recent handle", err, slog.String("name", name))
	}
}

// RecentHandles returns the recent roots, most recently saved first.
func (c *Cache) RecentHandles(ctx context.Context) []RecentHandle {
	rows, err := c.conn.QueryContext(ctx,
		`SELECT slot, value, updated_at FROM handles WHERE slot LIKE 'recent:%' ORDER BY updated_at DESC, slot`)
	if err != nil {
		c.warn("cache: list recent handles", err)
		return nil
	}
	defer rows.Close()

	var out []RecentHandle
	for rows.Next() {
		var (
			slot, value string
			savedAt     time.Time
		)
		if err := rows.Scan(&slot, &value, &savedAt); err != nil {
			c.warn("cache: scan recent handle", err)
			return out
		}
		var ref HandleRef
		if err := json.Unmarshal([]byte(value), &ref); err != nil {
			c.warn("cache: decode recent handle", err, slog.String("slot", slot))
			continue
		}
		out = append(out, RecentHandle{Name: strings.TrimPrefix(slot, recentSlot), Ref: ref, SavedAt: savedAt})
	}
	if err := rows.Err(); err != nil {
		c.warn("cache: list recent handles", err)
	}
	return out
}

// RemoveRecentHandle drops name from the recent-roots list.
func (c *Cache) RemoveRecentHandle(ctx context.Context, name string) {
	if _, err := c.conn.ExecContext(ctx, `DELETE FROM handles WHERE slot = ?`, recentSlot+name); err != nil {
		c.warn("cache: remove recent handle", err, slog.String("name", name))
	}
}

func (c *Cache) putHandle(ctx context.Context, slot string, ref HandleRef) error {
	data, err := json.Marshal(ref)
	if err != nil {
		return err
	}
	_, err = c.conn.ExecContext(ctx, `
		INSERT INTO handles (slot, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(slot) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, slot, string(data), c.now().UTC())
	return err
}

func (c *Cache) getHandle(ctx context.Context, slot string) (HandleRef, bool, error) {
	var value string
	err := c.conn.QueryRowContext(ctx, `SELECT value FROM handles WHERE slot = ?`, slot).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return HandleRef{}, false, nil
	}
	if err != nil {
		return HandleRef{}, false, err
	}
	var ref HandleRef
	if err := json.Unmarshal([]byte(value), &ref); err != nil {
		return HandleRef{}, false, err
	}
	return ref, true, nil
}
