package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/starford/folio/internal/models"
)

// SearchResult is one search hit.
type SearchResult struct {
	Path    string `json:"path"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// SavePosts replaces the cached post list of workspace key.
func (c *Cache) SavePosts(ctx context.Context, key string, posts []models.Document) {
	if err := c.savePosts(ctx, key, posts); err != nil {
		c.warn("cache: save posts", err, slog.String("workspace", key))
	}
}

func (c *Cache) savePosts(ctx context.Context, key string, posts []models.Document) error {
	tx, err := c.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM posts_cache WHERE workspace = ?`, key); err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO posts_cache (workspace, path, position, title, body, value)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()
	for i, p := range posts {
		data, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encode %s: %w", p.Path, err)
		}
		if _, err := stmt.ExecContext(ctx, key, p.Path, i, p.Title(), p.Body, string(data)); err != nil {
			return fmt.Errorf("insert %s: %w", p.Path, err)
		}
	}
	return tx.Commit()
}

// LoadPosts returns the cached post list of workspace key in saved order.
// ok is false when nothing is cached.
func (c *Cache) LoadPosts(ctx context.Context, key string) ([]models.Document, bool) {
	rows, err := c.conn.QueryContext(ctx,
		`SELECT value FROM posts_cache WHERE workspace = ? ORDER BY position`, key)
	if err != nil {
		c.warn("cache: load posts", err, slog.String("workspace", key))
		return nil, false
	}
	defer rows.Close()

	var out []models.Document
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			c.warn("cache: scan post", err)
			return nil, false
		}
		var d models.Document
		if err := json.Unmarshal([]byte(value), &d); err != nil {
			c.warn("cache: decode post", err, slog.String("workspace", key))
			continue
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		c.warn("cache: load posts", err, slog.String("workspace", key))
		return nil, false
	}
	return out, len(out) > 0
}

// SaveTree replaces the cached file tree of workspace key.
func (c *Cache) SaveTree(ctx context.Context, key string, tree []models.FileTreeNode) {
	data, err := json.Marshal(tree)
	if err != nil {
		c.warn("cache: encode tree", err)
		return
	}
	_, err = c.conn.ExecContext(ctx, `
		INSERT INTO tree_cache (workspace, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(workspace) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, string(data), c.now().UTC())
	if err != nil {
		c.warn("cache: save tree", err, slog.String("workspace", key))
	}
}

// LoadTree returns the cached file tree of workspace key.
func (c *Cache) LoadTree(ctx context.Context, key string) ([]models.FileTreeNode, bool) {
	var value string
	err := c.conn.QueryRowContext(ctx, `SELECT value FROM tree_cache WHERE workspace = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false
	}
	if err != nil {
		c.warn("cache: load tree", err, slog.String("workspace", key))
		return nil, false
	}
	var tree []models.FileTreeNode
	if err := json.Unmarshal([]byte(value), &tree); err != nil {
		c.warn("cache: decode tree", err, slog.String("workspace", key))
		return nil, false
	}
	return tree, true
}

// ClearWorkspace drops the cached posts and tree of workspace key.
func (c *Cache) ClearWorkspace(ctx context.Context, key string) {
	for _, q := range []string{
		`DELETE FROM posts_cache WHERE workspace = ?`,
		`DELETE FROM tree_cache WHERE workspace = ?`,
	} {
		if _, err := c.conn.ExecContext(ctx, q, key); err != nil {
			c.warn("cache: clear workspace", err, slog.String("workspace", key))
		}
	}
}

// Search matches query against the cached titles and bodies of workspace
// key, title hits first.
func (c *Cache) Search(ctx context.Context, key, query string, limit int) []SearchResult {
	query = strings.TrimSpace(query)
	if query == "" {
		return []SearchResult{}
	}
	if limit <= 0 {
		limit = 20
	}
	like := "%" + escapeLike(query) + "%"
	rows, err := c.conn.QueryContext(ctx, `
		SELECT path, title, body FROM posts_cache
		WHERE workspace = ? AND (title LIKE ? ESCAPE '\' OR body LIKE ? ESCAPE '\')
		ORDER BY (title LIKE ? ESCAPE '\') DESC, position
		LIMIT ?
	`, key, like, like, like, limit)
	if err != nil {
		c.warn("cache: search", err, slog.String("workspace", key))
		return []SearchResult{}
	}
	defer rows.Close()

	out := []SearchResult{}
	for rows.Next() {
		var r SearchResult
		var body string
		if err := rows.Scan(&r.Path, &r.Title, &body); err != nil {
			c.warn("cache: scan search hit", err)
			break
		}
		r.Snippet = snippet(body, query, 60)
		out = append(out, r)
	}
	return out
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// snippet returns up to radius runes either side of the first
// case-insensitive match of query in body.
func snippet(body, query string, radius int) string {
	lower := strings.ToLower(body)
	i := strings.Index(lower, strings.ToLower(query))
	if i < 0 || len(lower) != len(body) {
		// No body hit, or case folding changed byte offsets.
		i = 0
	}
	runes := []rune(body)
	start := utf8.RuneCountInString(body[:i])
	from := max(0, start-radius)
	to := min(len(runes), start+utf8.RuneCountInString(query)+radius)
	out := strings.TrimSpace(string(runes[from:to]))
	if from > 0 {
		out = "…" + out
	}
	if to < len(runes) {
		out += "…"
	}
	return out
}
