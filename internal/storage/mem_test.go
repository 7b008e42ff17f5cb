package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/starford/folio/internal/apperr"
)

func TestMemDirReadWrite(t *testing.T) {
	ctx := context.Background()
	root := NewMemDir("blog").AddFile("posts/a.md", "hello")

	got, err := ReadFile(ctx, root, "posts/a.md")
	if err != nil || string(got) != "hello" {
		t.Fatalf("ReadFile = %q, %v", got, err)
	}
	if err := WriteFile(ctx, root, "drafts/b.md", []byte("new")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if c, ok := root.Content("drafts/b.md"); !ok || c != "new" {
		t.Errorf("Content = %q, %v", c, ok)
	}
	if err := MoveFile(ctx, root, "drafts/b.md", "posts/b.md"); err != nil {
		t.Fatalf("MoveFile: %v", err)
	}
	if _, ok := root.Content("drafts/b.md"); ok {
		t.Error("source still present after move")
	}
}

func TestMemDirInjectedFailures(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	root := NewMemDir("blog").AddFile("a.md", "a").AddDir("sub")
	root.FailRead("a.md", boom)
	root.FailList("sub", boom)

	if _, err := ReadFile(ctx, root, "a.md"); !errors.Is(err, boom) {
		t.Errorf("read err = %v", err)
	}
	sub, err := root.Dir(ctx, "sub", false)
	if err != nil {
		t.Fatalf("Dir: %v", err)
	}
	if _, err := sub.Entries(ctx); !errors.Is(err, boom) {
		t.Errorf("list err = %v", err)
	}
}

func TestMemDirPermission(t *testing.T) {
	ctx := context.Background()
	root := NewMemDir("blog").AddFile("a.md", "a")
	root.SetPermission(PermissionPrompt, PermissionDenied)

	p, _ := root.QueryPermission(ctx, ModeReadWrite)
	if p != PermissionPrompt {
		t.Fatalf("query = %v", p)
	}
	p, _ = root.RequestPermission(ctx, ModeReadWrite)
	if p != PermissionDenied {
		t.Fatalf("request = %v", p)
	}
	if _, err := ReadFile(ctx, root, "a.md"); !errors.Is(err, apperr.ErrPermissionDenied) {
		t.Errorf("read err = %v, want ErrPermissionDenied", err)
	}
}
