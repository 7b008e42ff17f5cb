package cache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/folio/internal/models"
	"github.com/starford/folio/internal/storage"
)

func testCache(t *testing.T, opts ...Option) *Cache {
	t.Helper()
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	c, err := Open(filepath.Join(t.TempDir(), "cache.db"), opts...)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func post(path, title, body string) models.Document {
	attrs := models.NewAttributes()
	attrs.Set(models.KeyTitle, models.String(title))
	attrs.Set("weight", models.Number(2))
	attrs.Set(models.KeyTags, models.Strings("go"))
	return models.Document{Name: filepath.Base(path), Path: path, Body: body, Attributes: attrs, RawText: body}
}

func TestSchemaCreation(t *testing.T) {
	c := testCache(t)
	for _, table := range []string{"handles", "app_state", "posts_cache", "tree_cache"} {
		var count int
		if err := c.conn.QueryRow(`SELECT count(*) FROM ` + table).Scan(&count); err != nil {
			t.Fatalf("%s table missing: %v", table, err)
		}
	}
}

func TestPostsRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := testCache(t)
	posts := []models.Document{post("z.md", "Zed", "last"), post("a.md", "Ay", "first")}
	c.SavePosts(ctx, "blog", posts)

	got, ok := c.LoadPosts(ctx, "blog")
	if !ok || len(got) != 2 {
		t.Fatalf("LoadPosts = %d, %v", len(got), ok)
	}
	if got[0].Path != "z.md" || got[1].Path != "a.md" {
		t.Errorf("order not kept: %s, %s", got[0].Path, got[1].Path)
	}
	if !got[0].Attributes.Equal(posts[0].Attributes) {
		t.Errorf("attributes = %v", got[0].Attributes.Keys())
	}

	c.SavePosts(ctx, "blog", posts[:1])
	got, _ = c.LoadPosts(ctx, "blog")
	if len(got) != 1 {
		t.Errorf("replace left %d posts", len(got))
	}
	if _, ok := c.LoadPosts(ctx, "other"); ok {
		t.Error("other workspace should be uncached")
	}
}

func TestTreeRoundTripAndClear(t *testing.T) {
	ctx := context.Background()
	c := testCache(t)
	tree := []models.FileTreeNode{{
		Name: "posts", Path: "posts", IsDirectory: true,
		Children: []models.FileTreeNode{{Name: "a.md", Path: "posts/a.md"}},
	}}
	c.SaveTree(ctx, "blog", tree)
	c.SavePosts(ctx, "blog", []models.Document{post("posts/a.md", "A", "")})

	got, ok := c.LoadTree(ctx, "blog")
	if !ok || len(got) != 1 || got[0].Children[0].Path != "posts/a.md" {
		t.Fatalf("LoadTree = %+v, %v", got, ok)
	}

	c.ClearWorkspace(ctx, "blog")
	if _, ok := c.LoadTree(ctx, "blog"); ok {
		t.Error("tree survived clear")
	}
	if _, ok := c.LoadPosts(ctx, "blog"); ok {
		t.Error("posts survived clear")
	}
}

func TestAppStateTTL(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	c := testCache(t, WithClock(func() time.Time { return now }))

	c.SaveAppState(ctx, AppState{SelectedFile: "posts/a.md", ViewMode: "table"})
	s, ok := c.LoadAppState(ctx)
	if !ok || s.SelectedFile != "posts/a.md" || s.ViewMode != "table" {
		t.Fatalf("LoadAppState = %+v, %v", s, ok)
	}

	now = now.Add(DefaultAppStateTTL + time.Minute)
	if _, ok := c.LoadAppState(ctx); ok {
		t.Fatal("expired state returned")
	}
	var count int
	_ = c.conn.QueryRow(`SELECT count(*) FROM app_state`).Scan(&count)
	if count != 0 {
		t.Errorf("expired state not deleted, rows = %d", count)
	}
}

type stubResolver struct {
	dir storage.Dir
	err error
}

func (r stubResolver) Resolve(context.Context, HandleRef) (storage.Dir, error) {
	return r.dir, r.err
}

func TestLoadCurrentHandle(t *testing.T) {
	ctx := context.Background()
	ref := HandleRef{Kind: HandleLocal, Location: "/srv/blog", Name: "blog"}

	tests := []struct {
		name          string
		query, answer storage.Permission
		resolveErr    error
		want          bool
	}{
		{"granted", storage.PermissionGranted, storage.PermissionGranted, nil, true},
		{"prompt then granted", storage.PermissionPrompt, storage.PermissionGranted, nil, true},
		{"prompt then denied", storage.PermissionPrompt, storage.PermissionDenied, nil, false},
		{"denied", storage.PermissionDenied, storage.PermissionGranted, nil, false},
		{"unresolvable", storage.PermissionGranted, storage.PermissionGranted, errors.New("gone"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testCache(t)
			if _, _, ok := c.LoadCurrentHandle(ctx, stubResolver{}); ok {
				t.Fatal("empty cache returned a handle")
			}
			c.SaveCurrentHandle(ctx, ref)

			dir := storage.NewMemDir("blog")
			dir.SetPermission(tt.query, tt.answer)
			got, gotRef, ok := c.LoadCurrentHandle(ctx, stubResolver{dir: dir, err: tt.resolveErr})
			if ok != tt.want {
				t.Fatalf("ok = %v, want %v", ok, tt.want)
			}
			if ok && (got == nil || gotRef != ref) {
				t.Errorf("got %v, %+v", got, gotRef)
			}
		})
	}
}

func TestRecentHandles(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	c := testCache(t, WithClock(func() time.Time { return now }))

	c.SaveRecentHandle(ctx, "old", HandleRef{Kind: HandleLocal, Location: "/a", Name: "old"})
	now = now.Add(time.Hour)
	c.SaveRecentHandle(ctx, "new", HandleRef{Kind: HandleRemote, Location: "github:o/r@main", Name: "new"})

	got := c.RecentHandles(ctx)
	if len(got) != 2 || got[0].Name != "new" || got[1].Name != "old" {
		t.Fatalf("RecentHandles = %+v", got)
	}
	c.RemoveRecentHandle(ctx, "new")
	if got := c.RecentHandles(ctx); len(got) != 1 || got[0].Ref.Location != "/a" {
		t.Errorf("after remove = %+v", got)
	}
}

func TestSearch(t *testing.T) {
	ctx := context.Background()
	c := testCache(t)
	c.SavePosts(ctx, "blog", []models.Document{
		post("a.md", "Cooking pasta", "Boil water."),
		post("b.md", "Travel", "We ate pasta in Rome."),
		post("c.md", "Other", "100% unrelated"),
	})

	hits := c.Search(ctx, "blog", "PASTA", 10)
	if len(hits) != 2 || hits[0].Path != "a.md" || hits[1].Path != "b.md" {
		t.Fatalf("hits = %+v", hits)
	}
	if hits[1].Snippet != "We ate pasta in Rome." {
		t.Errorf("snippet = %q", hits[1].Snippet)
	}
	if hits := c.Search(ctx, "blog", "%", 10); len(hits) != 1 || hits[0].Path != "c.md" {
		t.Errorf("literal %% search = %+v", hits)
	}
	if hits := c.Search(ctx, "other", "pasta", 10); len(hits) != 0 {
		t.Errorf("cross-workspace hits = %+v", hits)
	}
}

func TestFailSoftAfterClose(t *testing.T) {
	ctx := context.Background()
	c := testCache(t)
	c.Close()
	c.SavePosts(ctx, "blog", []models.Document{post("a.md", "A", "")})
	if _, ok := c.LoadPosts(ctx, "blog"); ok {
		t.Error("closed cache returned posts")
	}
	if _, ok := c.LoadAppState(ctx); ok {
		t.Error("closed cache returned app state")
	}
}
