package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/folio/internal/apperr"
)

// OSDir is a Dir backed by the local file system. Every handle derived from
// it stays confined to the root it was opened on.
type OSDir struct {
	root string // absolute path to the workspace root
	rel  string // slash-separated path below root, "" for the root itself
}

// OpenOS returns a handle on an existing local directory.
func OpenOS(root string) (*OSDir, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", mapOSError(err))
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &OSDir{root: abs}, nil
}

// Path returns the absolute path of this directory.
func (d *OSDir) Path() string {
	p, _ := d.safePath("")
	return p
}

// Name returns the directory's base name.
func (d *OSDir) Name() string {
	if d.rel == "" {
		return filepath.Base(d.root)
	}
	return filepath.Base(filepath.FromSlash(d.rel))
}

// safePath resolves name below this directory and rejects any result that
// escapes the root.
func (d *OSDir) safePath(name string) (string, error) {
	rel := d.rel
	if name != "" {
		if strings.ContainsAny(name, `/\`) || name == ".." || name == "." {
			return "", fmt.Errorf("storage: %w: %q", apperr.ErrInvalidPath, name)
		}
		if rel == "" {
			rel = name
		} else {
			rel = rel + "/" + name
		}
	}
	joined := filepath.Join(d.root, filepath.FromSlash(rel))
	abs, err := filepath.Abs(joined)
	if err != nil {
		return "", fmt.Errorf("storage: resolve path: %w", err)
	}
	if !strings.HasPrefix(abs, d.root+string(os.PathSeparator)) && abs != d.root {
		return "", fmt.Errorf("storage: %w: path escapes root: %s", apperr.ErrInvalidPath, rel)
	}
	return abs, nil
}

func (d *OSDir) child(name string) *OSDir {
	rel := name
	if d.rel != "" {
		rel = d.rel + "/" + name
	}
	return &OSDir{root: d.root, rel: rel}
}

// Entries lists direct children.
func (d *OSDir) Entries(ctx context.Context) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	abs, err := d.safePath("")
	if err != nil {
		return nil, err
	}
	des, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: list %s: %w", d.rel, mapOSError(err))
	}
	out := make([]Entry, 0, len(des))
	for _, de := range des {
		kind := KindFile
		if de.IsDir() {
			kind = KindDirectory
		} else if !de.Type().IsRegular() {
			continue
		}
		out = append(out, Entry{Name: de.Name(), Kind: kind})
	}
	return out, nil
}

// Dir returns a child directory handle.
func (d *OSDir) Dir(_ context.Context, name string, create bool) (Dir, error) {
	abs, err := d.safePath(name)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	switch {
	case err == nil && !info.IsDir():
		return nil, fmt.Errorf("storage: %s is not a directory: %w", name, apperr.ErrConflict)
	case err == nil:
		return d.child(name), nil
	case errors.Is(err, os.ErrNotExist) && create:
		if err := os.MkdirAll(abs, 0o755); err != nil {
			return nil, fmt.Errorf("storage: mkdir: %w", mapOSError(err))
		}
		return d.child(name), nil
	default:
		return nil, fmt.Errorf("storage: open dir %s: %w", name, mapOSError(err))
	}
}

// File returns a child file handle.
func (d *OSDir) File(_ context.Context, name string, create bool) (File, error) {
	abs, err := d.safePath(name)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	switch {
	case err == nil && info.IsDir():
		return nil, fmt.Errorf("storage: %s is a directory: %w", name, apperr.ErrConflict)
	case err == nil, errors.Is(err, os.ErrNotExist) && create:
		return &osFile{abs: abs, name: name}, nil
	default:
		return nil, fmt.Errorf("storage: open file %s: %w", name, mapOSError(err))
	}
}

// Remove deletes a child entry.
func (d *OSDir) Remove(_ context.Context, name string, recursive bool) error {
	abs, err := d.safePath(name)
	if err != nil {
		return err
	}
	if recursive {
		if _, err := os.Stat(abs); err != nil {
			return fmt.Errorf("storage: delete %s: %w", name, mapOSError(err))
		}
		err = os.RemoveAll(abs)
	} else {
		err = os.Remove(abs)
	}
	if err != nil {
		return fmt.Errorf("storage: delete %s: %w", name, mapOSError(err))
	}
	return nil
}

// QueryPermission probes the directory for the requested access.
func (d *OSDir) QueryPermission(_ context.Context, mode PermissionMode) (Permission, error) {
	abs, err := d.safePath("")
	if err != nil {
		return PermissionDenied, err
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return PermissionDenied, nil
	}
	f, err := os.Open(abs)
	if err != nil {
		return PermissionDenied, nil
	}
	_ = f.Close()
	if mode == ModeReadWrite && info.Mode().Perm()&0o200 == 0 {
		return PermissionDenied, nil
	}
	return PermissionGranted, nil
}

// RequestPermission has nobody to prompt locally; it re-runs the probe.
func (d *OSDir) RequestPermission(ctx context.Context, mode PermissionMode) (Permission, error) {
	return d.QueryPermission(ctx, mode)
}

type osFile struct {
	abs  string
	name string
}

func (f *osFile) Name() string { return f.name }

func (f *osFile) Open(_ context.Context) (io.ReadCloser, error) {
	r, err := os.Open(f.abs)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", f.name, mapOSError(err))
	}
	return r, nil
}

// Create writes atomically: tmp file -> fsync -> rename on Close.
func (f *osFile) Create(_ context.Context) (io.WriteCloser, error) {
	dir := filepath.Dir(f.abs)
	tmp, err := os.CreateTemp(dir, ".folio-tmp-*")
	if err != nil {
		return nil, fmt.Errorf("storage: create temp: %w", mapOSError(err))
	}
	return &atomicWriter{tmp: tmp, target: f.abs}, nil
}

type atomicWriter struct {
	tmp    *os.File
	target string
	failed bool
}

func (w *atomicWriter) Write(p []byte) (int, error) {
	n, err := w.tmp.Write(p)
	if err != nil {
		w.failed = true
	}
	return n, err
}

func (w *atomicWriter) Close() error {
	tmpName := w.tmp.Name()
	success := false
	defer func() {
		if !success {
			_ = w.tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if w.failed {
		return fmt.Errorf("storage: write temp failed")
	}
	if err := w.tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := w.tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, w.target); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return nil
}

func mapOSError(err error) error {
	switch {
	case errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("%w: %v", apperr.ErrNotFound, err)
	case errors.Is(err, os.ErrPermission):
		return fmt.Errorf("%w: %v", apperr.ErrPermissionDenied, err)
	}
	return err
}
