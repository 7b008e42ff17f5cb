package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/starford/folio/internal/apperr"
)

// MemDir is an in-memory Dir used by tests and by callers that stage a
// workspace without touching disk. Failures and permission changes can be
// injected per path.
type MemDir struct {
	fs   *memFS
	node *memNode
}

type memFS struct {
	mu         sync.RWMutex
	permission Permission
	onRequest  Permission
	readErrs   map[string]error
	listErrs   map[string]error
}

type memNode struct {
	name     string
	path     string
	dir      bool
	children map[string]*memNode
	data     []byte
}

// NewMemDir returns an empty in-memory root named name with access granted.
func NewMemDir(name string) *MemDir {
	fs := &memFS{
		permission: PermissionGranted,
		onRequest:  PermissionGranted,
		readErrs:   make(map[string]error),
		listErrs:   make(map[string]error),
	}
	return &MemDir{fs: fs, node: &memNode{name: name, dir: true, children: map[string]*memNode{}}}
}

// AddFile creates or replaces the file at the slash path p, creating parents.
func (d *MemDir) AddFile(p, content string) *MemDir {
	d.fs.mu.Lock()
	defer d.fs.mu.Unlock()
	segs := strings.Split(strings.Trim(p, "/"), "/")
	parent := d.node
	for _, s := range segs[:len(segs)-1] {
		parent = parent.ensureDir(s)
	}
	name := segs[len(segs)-1]
	parent.children[name] = &memNode{name: name, path: joinRel(parent.path, name), data: []byte(content)}
	return d
}

// AddDir creates an (empty) directory at p.
func (d *MemDir) AddDir(p string) *MemDir {
	d.fs.mu.Lock()
	defer d.fs.mu.Unlock()
	parent := d.node
	for _, s := range strings.Split(strings.Trim(p, "/"), "/") {
		parent = parent.ensureDir(s)
	}
	return d
}

// FailRead makes opening the file at p return err.
func (d *MemDir) FailRead(p string, err error) {
	d.fs.mu.Lock()
	defer d.fs.mu.Unlock()
	d.fs.readErrs[strings.Trim(p, "/")] = err
}

// FailList makes enumerating the directory at p return err. "" is the root.
func (d *MemDir) FailList(p string, err error) {
	d.fs.mu.Lock()
	defer d.fs.mu.Unlock()
	d.fs.listErrs[strings.Trim(p, "/")] = err
}

// SetPermission sets what QueryPermission reports and what RequestPermission
// grants afterwards.
func (d *MemDir) SetPermission(query, onRequest Permission) {
	d.fs.mu.Lock()
	defer d.fs.mu.Unlock()
	d.fs.permission = query
	d.fs.onRequest = onRequest
}

// Content returns the bytes stored at p.
func (d *MemDir) Content(p string) (string, bool) {
	d.fs.mu.RLock()
	defer d.fs.mu.RUnlock()
	n := d.node
	for _, s := range strings.Split(strings.Trim(p, "/"), "/") {
		if !n.dir {
			return "", false
		}
		c, ok := n.children[s]
		if !ok {
			return "", false
		}
		n = c
	}
	if n.dir {
		return "", false
	}
	return string(n.data), true
}

func (n *memNode) ensureDir(name string) *memNode {
	c, ok := n.children[name]
	if !ok || !c.dir {
		c = &memNode{name: name, path: joinRel(n.path, name), dir: true, children: map[string]*memNode{}}
		n.children[name] = c
	}
	return c
}

func joinRel(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "/" + name
}

// Name returns the directory name.
func (d *MemDir) Name() string { return d.node.name }

// Entries lists children in map order; callers must not rely on it.
func (d *MemDir) Entries(ctx context.Context) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.fs.mu.RLock()
	defer d.fs.mu.RUnlock()
	if err := d.fs.listErrs[d.node.path]; err != nil {
		return nil, err
	}
	if d.fs.permission == PermissionDenied {
		return nil, fmt.Errorf("storage: list %s: %w", d.node.path, apperr.ErrPermissionDenied)
	}
	out := make([]Entry, 0, len(d.node.children))
	for name, c := range d.node.children {
		kind := KindFile
		if c.dir {
			kind = KindDirectory
		}
		out = append(out, Entry{Name: name, Kind: kind})
	}
	return out, nil
}

// Dir returns a child directory.
func (d *MemDir) Dir(_ context.Context, name string, create bool) (Dir, error) {
	d.fs.mu.Lock()
	defer d.fs.mu.Unlock()
	c, ok := d.node.children[name]
	switch {
	case ok && !c.dir:
		return nil, fmt.Errorf("storage: %s is not a directory: %w", name, apperr.ErrConflict)
	case ok:
		return &MemDir{fs: d.fs, node: c}, nil
	case create:
		return &MemDir{fs: d.fs, node: d.node.ensureDir(name)}, nil
	}
	return nil, fmt.Errorf("storage: open dir %s: %w", joinRel(d.node.path, name), apperr.ErrNotFound)
}

// File returns a child file, creating an empty one when create is set.
func (d *MemDir) File(_ context.Context, name string, create bool) (File, error) {
	d.fs.mu.Lock()
	defer d.fs.mu.Unlock()
	c, ok := d.node.children[name]
	switch {
	case ok && c.dir:
		return nil, fmt.Errorf("storage: %s is a directory: %w", name, apperr.ErrConflict)
	case ok:
		return &memFile{fs: d.fs, node: c}, nil
	case create:
		c = &memNode{name: name, path: joinRel(d.node.path, name)}
		d.node.children[name] = c
		return &memFile{fs: d.fs, node: c}, nil
	}
	return nil, fmt.Errorf("storage: open file %s: %w", joinRel(d.node.path, name), apperr.ErrNotFound)
}

// Remove deletes a child entry.
func (d *MemDir) Remove(_ context.Context, name string, recursive bool) error {
	d.fs.mu.Lock()
	defer d.fs.mu.Unlock()
	c, ok := d.node.children[name]
	if !ok {
		return fmt.Errorf("storage: delete %s: %w", name, apperr.ErrNotFound)
	}
	if c.dir && len(c.children) > 0 && !recursive {
		return fmt.Errorf("storage: delete %s: directory not empty", name)
	}
	delete(d.node.children, name)
	return nil
}

// QueryPermission returns the injected permission state.
func (d *MemDir) QueryPermission(context.Context, PermissionMode) (Permission, error) {
	d.fs.mu.RLock()
	defer d.fs.mu.RUnlock()
	return d.fs.permission, nil
}

// RequestPermission applies the injected request outcome.
func (d *MemDir) RequestPermission(context.Context, PermissionMode) (Permission, error) {
	d.fs.mu.Lock()
	defer d.fs.mu.Unlock()
	d.fs.permission = d.fs.onRequest
	return d.fs.permission, nil
}

type memFile struct {
	fs   *memFS
	node *memNode
}

func (f *memFile) Name() string { return f.node.name }

func (f *memFile) Open(context.Context) (io.ReadCloser, error) {
	f.fs.mu.RLock()
	defer f.fs.mu.RUnlock()
	if err := f.fs.readErrs[f.node.path]; err != nil {
		return nil, err
	}
	if f.fs.permission == PermissionDenied {
		return nil, fmt.Errorf("storage: read %s: %w", f.node.path, apperr.ErrPermissionDenied)
	}
	return io.NopCloser(bytes.NewReader(bytes.Clone(f.node.data))), nil
}

func (f *memFile) Create(context.Context) (io.WriteCloser, error) {
	return &memWriter{file: f}, nil
}

type memWriter struct {
	file *memFile
	buf  bytes.Buffer
}

func (w *memWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }

func (w *memWriter) Close() error {
	w.file.fs.mu.Lock()
	defer w.file.fs.mu.Unlock()
	w.file.node.data = bytes.Clone(w.buf.Bytes())
	return nil
}
