package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/starford/folio/internal/apperr"
)

// SplitPath cleans a root-relative, forward-slash path into segments and
// rejects traversal.
func SplitPath(p string) ([]string, error) {
	p = strings.Trim(strings.ReplaceAll(p, "\\", "/"), "/")
	if p == "" {
		return nil, nil
	}
	var out []string
	for _, seg := range strings.Split(p, "/") {
		switch seg {
		case "", ".":
			continue
		case "..":
			return nil, fmt.Errorf("storage: %w: %s", apperr.ErrInvalidPath, p)
		}
		out = append(out, seg)
	}
	return out, nil
}

// ResolveDir walks segments from root.
func ResolveDir(ctx context.Context, root Dir, segments []string, create bool) (Dir, error) {
	d := root
	for _, seg := range segments {
		next, err := d.Dir(ctx, seg, create)
		if err != nil {
			return nil, err
		}
		d = next
	}
	return d, nil
}

func resolveFile(ctx context.Context, root Dir, p string, create bool) (File, error) {
	segs, err := SplitPath(p)
	if err != nil {
		return nil, err
	}
	if len(segs) == 0 {
		return nil, fmt.Errorf("storage: %w: empty file path", apperr.ErrInvalidPath)
	}
	dir, err := ResolveDir(ctx, root, segs[:len(segs)-1], create)
	if err != nil {
		return nil, err
	}
	return dir.File(ctx, segs[len(segs)-1], create)
}

// ReadFile reads the file at the root-relative path p.
func ReadFile(ctx context.Context, root Dir, p string) ([]byte, error) {
	f, err := resolveFile(ctx, root, p, false)
	if err != nil {
		return nil, err
	}
	r, err := f.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", p, err)
	}
	return data, nil
}

// WriteFile replaces the content of p, creating parent directories.
func WriteFile(ctx context.Context, root Dir, p string, content []byte) error {
	f, err := resolveFile(ctx, root, p, true)
	if err != nil {
		return err
	}
	w, err := f.Create(ctx)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, bytes.NewReader(content)); err != nil {
		_ = w.Close()
		return fmt.Errorf("storage: write %s: %w", p, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("storage: write %s: %w", p, err)
	}
	return nil
}

// Exists reports whether a file exists at p.
func Exists(ctx context.Context, root Dir, p string) (bool, error) {
	_, err := resolveFile(ctx, root, p, false)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, apperr.ErrNotFound) {
		return false, nil
	}
	return false, err
}

// RemoveFile deletes the file at p.
func RemoveFile(ctx context.Context, root Dir, p string) error {
	segs, err := SplitPath(p)
	if err != nil {
		return err
	}
	if len(segs) == 0 {
		return fmt.Errorf("storage: %w: empty file path", apperr.ErrInvalidPath)
	}
	dir, err := ResolveDir(ctx, root, segs[:len(segs)-1], false)
	if err != nil {
		return err
	}
	return dir.Remove(ctx, segs[len(segs)-1], false)
}

// MoveFile copies oldPath to newPath then removes oldPath. Handles have no
// rename primitive. The target must not exist.
func MoveFile(ctx context.Context, root Dir, oldPath, newPath string) error {
	exists, err := Exists(ctx, root, newPath)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("storage: move to %s: %w", newPath, apperr.ErrAlreadyExists)
	}
	data, err := ReadFile(ctx, root, oldPath)
	if err != nil {
		return err
	}
	if err := WriteFile(ctx, root, newPath, data); err != nil {
		return err
	}
	return RemoveFile(ctx, root, oldPath)
}
