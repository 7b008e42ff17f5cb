// Package testutil provides shared test helpers for setting up workspaces and caches.
package testutil

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/folio/internal/cache"
	"github.com/starford/folio/internal/storage"
)

// Logger returns a logger that drops everything below Error.
func Logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// DiscardLogger returns a logger that writes nowhere.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// TestCache creates a temporary SQLite cache that is automatically closed.
func TestCache(t *testing.T, opts ...cache.Option) *cache.Cache {
	t.Helper()
	opts = append([]cache.Option{cache.WithLogger(DiscardLogger())}, opts...)
	c, err := cache.Open(filepath.Join(t.TempDir(), "folio-test.db"), opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

// TestRoot creates a temporary workspace directory populated with files
// (root-relative path -> content).
func TestRoot(t *testing.T, files map[string]string) (string, *storage.OSDir) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "blog")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	for p, content := range files {
		full := filepath.Join(dir, filepath.FromSlash(p))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	root, err := storage.OpenOS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, root
}

// Eventually polls fn until it returns true or timeout elapses.
func Eventually(t *testing.T, timeout time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error(msg)
}
