package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"slices"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/models"
	"github.com/starford/folio/internal/parser"
	"github.com/starford/folio/internal/scanner"
	"github.com/starford/folio/internal/workspace"
)

// DefaultBatchSize is the number of files fetched concurrently per batch.
const DefaultBatchSize = 5

// State is the adapter's published snapshot. ProjectKey is Target.Key().
type State struct {
	models.WorkspaceState
	Target    Target `json:"target"`
	Truncated bool   `json:"truncated"`
	Loaded    int    `json:"loaded"`
	Total     int    `json:"total"`
}

// Adapter keeps a posts snapshot of a remote repository branch.
type Adapter struct {
	factory   Factory
	cache     workspace.Cache
	persister *workspace.Persister
	logger    *slog.Logger
	batchSize int
	overrides map[string]parser.Multiplicity
	now       func() time.Time

	notifyMu  sync.Mutex
	mu        sync.Mutex
	state     State
	listeners map[int]func(State)
	nextID    int
	provider  Provider
	gen       uint64
	meta      map[string]models.RemoteFileMetadata
	files     map[string]struct{}

	flight singleflight.Group
}

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithBatchSize overrides DefaultBatchSize.
func WithBatchSize(n int) AdapterOption {
	return func(a *Adapter) {
		if n > 0 {
			a.batchSize = n
		}
	}
}

// WithMultiplicity sets the per-field shape overrides applied on save.
func WithMultiplicity(m map[string]parser.Multiplicity) AdapterOption {
	return func(a *Adapter) { a.overrides = m }
}

// WithClock replaces time.Now for metadata timestamps.
func WithClock(now func() time.Time) AdapterOption {
	return func(a *Adapter) { a.now = now }
}

// NewAdapter returns an adapter with no target. cache may be nil.
func NewAdapter(factory Factory, cache workspace.Cache, logger *slog.Logger, opts ...AdapterOption) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Adapter{
		factory:   factory,
		cache:     cache,
		persister: workspace.NewPersister(cache),
		logger:    logger,
		batchSize: DefaultBatchSize,
		now:       time.Now,
		listeners: make(map[int]func(State)),
		meta:      make(map[string]models.RemoteFileMetadata),
		files:     make(map[string]struct{}),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Subscribe delivers the current snapshot to fn and then every change.
func (a *Adapter) Subscribe(fn func(State)) (unsubscribe func()) {
	a.notifyMu.Lock()
	defer a.notifyMu.Unlock()
	a.mu.Lock()
	id := a.nextID
	a.nextID++
	a.listeners[id] = fn
	snap := a.state
	a.mu.Unlock()
	fn(snap)

	var once sync.Once
	return func() {
		once.Do(func() {
			a.mu.Lock()
			delete(a.listeners, id)
			a.mu.Unlock()
		})
	}
}

// Snapshot returns the current state.
func (a *Adapter) Snapshot() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Metadata returns the bookkeeping for path.
func (a *Adapter) Metadata(p string) (models.RemoteFileMetadata, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	m, ok := a.meta[p]
	return m, ok
}

// mutate runs fn under the lock when gen is still current and publishes the
// result. fn may also touch meta and files.
func (a *Adapter) mutate(gen uint64, fn func(*State)) bool {
	a.notifyMu.Lock()
	defer a.notifyMu.Unlock()

	a.mu.Lock()
	if gen != a.gen {
		a.mu.Unlock()
		return false
	}
	next := a.state
	fn(&next)
	a.state = next
	ids := make([]int, 0, len(a.listeners))
	for id := range a.listeners {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	ls := make([]func(State), 0, len(ids))
	for _, id := range ids {
		ls = append(ls, a.listeners[id])
	}
	a.mu.Unlock()

	for _, l := range ls {
		l(next)
	}
	return true
}

func (a *Adapter) dropMetadata(gen uint64, p string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if gen == a.gen {
		delete(a.meta, p)
	}
}

func (a *Adapter) current() (Provider, uint64, string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.provider == nil {
		return nil, 0, "", fmt.Errorf("remote: not connected: %w", apperr.ErrNoWorkspace)
	}
	return a.provider, a.gen, a.state.ProjectKey, nil
}

// Connect switches to target. Results still in flight for the previous
// target are discarded. Cached posts are shown before the refresh runs.
func (a *Adapter) Connect(ctx context.Context, target Target) error {
	p, err := a.factory(target)
	if err != nil {
		return err
	}
	key := target.Key()

	a.notifyMu.Lock()
	a.mu.Lock()
	a.gen++
	gen := a.gen
	a.provider = p
	a.meta = make(map[string]models.RemoteFileMetadata)
	a.files = make(map[string]struct{})
	a.mu.Unlock()
	a.notifyMu.Unlock()

	a.mutate(gen, func(s *State) {
		*s = State{Target: target}
		s.ProjectKey = key
	})

	if a.cache != nil {
		posts, okPosts := a.cache.LoadPosts(ctx, key)
		tree, okTree := a.cache.LoadTree(ctx, key)
		if okPosts || okTree {
			a.mutate(gen, func(s *State) {
				s.Posts = posts
				s.FileTree = tree
			})
		}
	}
	a.logger.Info("remote: connected", slog.String("target", key))
	return a.Refresh(ctx)
}

// Refresh lists the repository and loads every Markdown file in batches,
// publishing after each batch. Concurrent calls share one run.
func (a *Adapter) Refresh(ctx context.Context) error {
	p, gen, key, err := a.current()
	if err != nil {
		return err
	}
	ch := a.flight.DoChan(fmt.Sprintf("%s#%d", key, gen), func() (any, error) {
		return nil, a.refresh(context.WithoutCancel(ctx), p, gen, key)
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		return res.Err
	}
}

func (a *Adapter) refresh(ctx context.Context, p Provider, gen uint64, key string) error {
	a.mutate(gen, func(s *State) {
		s.IsLoading = true
		s.IsLoadingTree = true
	})

	listing, err := p.ListFiles(ctx)
	if err != nil {
		a.mutate(gen, func(s *State) {
			s.IsLoading = false
			s.IsLoadingTree = false
		})
		return fmt.Errorf("remote: refresh %s: %w", key, err)
	}
	if listing.Truncated {
		a.logger.Warn("remote: listing truncated", slog.String("target", key))
	}

	tree := scanner.BuildTree(listing.Paths, false)
	files := scanner.Flatten(tree)
	if !a.mutate(gen, func(s *State) {
		s.FileTree = tree
		s.IsLoadingTree = false
		s.Truncated = listing.Truncated
		s.Total = len(files)
		s.Loaded = 0
		a.files = make(map[string]struct{}, len(files))
		for _, f := range files {
			a.files[f.Path] = struct{}{}
		}
		for p := range a.meta {
			if _, ok := a.files[p]; !ok {
				delete(a.meta, p)
			}
		}
	}) {
		return nil
	}

	posts := make([]models.Document, 0, len(files))
	for start := 0; start < len(files); start += a.batchSize {
		batch := files[start:min(start+a.batchSize, len(files))]
		loaded := a.readBatch(ctx, p, batch)

		if !a.mutate(gen, func(s *State) {
			// A write that landed after a read started wins over that read.
			for _, f := range loaded {
				doc := f.doc
				if m, ok := a.meta[doc.Path]; ok && m.LastFetched.After(f.meta.LastFetched) {
					if i := slices.IndexFunc(s.Posts, func(d models.Document) bool { return d.Path == doc.Path }); i >= 0 {
						doc = s.Posts[i]
					}
				} else {
					a.meta[doc.Path] = f.meta
				}
				posts = append(posts, doc)
			}
			s.Posts = slices.Clone(posts)
			s.Loaded = start + len(batch)
		}) {
			a.logger.Debug("remote: discarded stale batch", slog.String("target", key))
			return nil
		}
	}

	if !a.mutate(gen, func(s *State) { s.IsLoading = false }) {
		return nil
	}
	a.persist(key, posts, tree)
	a.logger.Info("remote: refreshed", slog.String("target", key), slog.Int("posts", len(posts)))
	return nil
}

type loadedFile struct {
	doc  models.Document
	meta models.RemoteFileMetadata
}

// readBatch fetches batch concurrently, keeping order and skipping failures.
func (a *Adapter) readBatch(ctx context.Context, p Provider, batch []models.FileTreeNode) []loadedFile {
	results := make([]*loadedFile, len(batch))
	var g errgroup.Group
	for i, f := range batch {
		g.Go(func() error {
			fetched := a.now()
			rf, err := p.ReadFile(ctx, f.Path)
			if err != nil {
				a.logger.Warn("remote: read failed", slog.String("path", f.Path), slog.String("error", err.Error()))
				return nil
			}
			results[i] = &loadedFile{
				doc:  parser.Normalize(rf.Content, f.Path, f.Name),
				meta: models.RemoteFileMetadata{VersionMarker: rf.VersionMarker, LastFetched: fetched},
			}
			return nil
		})
	}
	_ = g.Wait()

	out := make([]loadedFile, 0, len(batch))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}

// LoadFile re-reads one file and refreshes its post and metadata.
func (a *Adapter) LoadFile(ctx context.Context, p string) (models.Document, error) {
	prov, gen, key, err := a.current()
	if err != nil {
		return models.Document{}, err
	}
	rf, err := prov.ReadFile(ctx, p)
	if err != nil {
		return models.Document{}, err
	}
	doc := parser.Normalize(rf.Content, p, path.Base(p))
	a.applyWrite(gen, key, doc, models.RemoteFileMetadata{VersionMarker: rf.VersionMarker, LastFetched: a.now()})
	return doc, nil
}

// SaveFile writes doc, creating it when no metadata exists for its path and
// updating it otherwise. An empty message gets a default.
func (a *Adapter) SaveFile(ctx context.Context, doc models.Document, message string) (models.Document, error) {
	prov, gen, key, err := a.current()
	if err != nil {
		return models.Document{}, err
	}
	text, err := parser.Serialize(doc, a.overrides)
	if err != nil {
		return models.Document{}, fmt.Errorf("remote: serialize %s: %w", doc.Path, err)
	}
	meta, known := a.Metadata(doc.Path)

	var marker string
	if !known {
		marker, err = prov.CreateFile(ctx, doc.Path, text, messageOr(message, "Create: "+doc.Path))
	} else {
		marker, err = prov.UpdateFile(ctx, doc.Path, text, meta.VersionMarker, messageOr(message, "Update: "+doc.Path))
		switch {
		case errors.Is(err, ErrMustRecreate):
			a.dropMetadata(gen, doc.Path)
			return models.Document{}, &ConflictError{Path: doc.Path, Err: err}
		case errors.Is(err, apperr.ErrNotFound) && !prov.Capabilities().RequiresVersionMarker:
			a.logger.Info("remote: update target missing, creating", slog.String("path", doc.Path))
			marker, err = prov.CreateFile(ctx, doc.Path, text, messageOr(message, "Create: "+doc.Path))
		}
	}
	if err != nil {
		return models.Document{}, err
	}

	saved := parser.Normalize(text, doc.Path, path.Base(doc.Path))
	a.applyWrite(gen, key, saved, models.RemoteFileMetadata{VersionMarker: marker, LastFetched: a.now()})
	return saved, nil
}

// DeleteFile removes p remotely. Strict providers without a known marker get
// one from a fresh read first.
func (a *Adapter) DeleteFile(ctx context.Context, p, message string) error {
	prov, gen, key, err := a.current()
	if err != nil {
		return err
	}
	meta, _ := a.Metadata(p)
	marker := meta.VersionMarker
	if marker == "" && prov.Capabilities().RequiresVersionMarker {
		rf, err := prov.ReadFile(ctx, p)
		if err != nil {
			return err
		}
		marker = rf.VersionMarker
	}
	if err := prov.DeleteFile(ctx, p, marker, messageOr(message, "Delete: "+p)); err != nil {
		return err
	}
	a.applyRemove(gen, key, p)
	return nil
}

// RenameFile creates newPath with the content of oldPath, then deletes
// oldPath. Both commits share one message. newPath is recorded as soon as it
// exists remotely, so a rename whose delete failed can be retried: the retry
// finds newPath holding the same content and only deletes oldPath.
func (a *Adapter) RenameFile(ctx context.Context, oldPath, newPath, message string) error {
	prov, gen, key, err := a.current()
	if err != nil {
		return err
	}
	if oldPath == newPath {
		return fmt.Errorf("remote: rename to %s: %w", newPath, apperr.ErrAlreadyExists)
	}
	message = messageOr(message, "Rename: "+oldPath+" -> "+newPath)

	rf, err := prov.ReadFile(ctx, oldPath)
	if err != nil {
		return err
	}
	doc := parser.Normalize(rf.Content, newPath, path.Base(newPath))

	var marker string
	if _, exists := a.Metadata(newPath); exists {
		nf, err := prov.ReadFile(ctx, newPath)
		if err != nil || nf.Content != rf.Content {
			return fmt.Errorf("remote: rename to %s: %w", newPath, apperr.ErrAlreadyExists)
		}
		marker = nf.VersionMarker
	} else {
		marker, err = prov.CreateFile(ctx, newPath, rf.Content, message)
		if err != nil {
			return err
		}
		a.applyWrite(gen, key, doc, models.RemoteFileMetadata{VersionMarker: marker, LastFetched: a.now()})
	}

	if err := prov.DeleteFile(ctx, oldPath, rf.VersionMarker, message); err != nil {
		return fmt.Errorf("remote: rename %s: delete old path: %w", oldPath, err)
	}

	var posts []models.Document
	var tree []models.FileTreeNode
	if a.mutate(gen, func(s *State) {
		delete(a.meta, oldPath)
		delete(a.files, oldPath)
		a.meta[newPath] = models.RemoteFileMetadata{VersionMarker: marker, LastFetched: a.now()}
		a.files[newPath] = struct{}{}
		s.Posts = replacePath(s.Posts, oldPath, doc)
		s.FileTree = a.buildTree()
		posts, tree = s.Posts, s.FileTree
	}) {
		a.persist(key, posts, tree)
	}
	return nil
}

func (a *Adapter) applyWrite(gen uint64, key string, doc models.Document, meta models.RemoteFileMetadata) {
	var posts []models.Document
	var tree []models.FileTreeNode
	if a.mutate(gen, func(s *State) {
		a.meta[doc.Path] = meta
		s.Posts = replacePath(s.Posts, doc.Path, doc)
		posts = s.Posts
		if _, ok := a.files[doc.Path]; !ok {
			a.files[doc.Path] = struct{}{}
			s.FileTree = a.buildTree()
			tree = s.FileTree
		}
	}) {
		a.persist(key, posts, tree)
	}
}

func (a *Adapter) applyRemove(gen uint64, key, p string) {
	var posts []models.Document
	var tree []models.FileTreeNode
	if a.mutate(gen, func(s *State) {
		delete(a.meta, p)
		delete(a.files, p)
		out := make([]models.Document, 0, len(s.Posts))
		for _, d := range s.Posts {
			if d.Path != p {
				out = append(out, d)
			}
		}
		s.Posts = out
		s.FileTree = a.buildTree()
		posts, tree = s.Posts, s.FileTree
	}) {
		a.persist(key, posts, tree)
	}
}

// buildTree rebuilds the tree from the known file set. Callers hold mu.
func (a *Adapter) buildTree() []models.FileTreeNode {
	paths := make([]string, 0, len(a.files))
	for p := range a.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return scanner.BuildTree(paths, false)
}

// replacePath returns posts with the entry at oldPath replaced by doc, or
// doc appended when oldPath is unknown. Any other entry at doc.Path is dropped.
func replacePath(posts []models.Document, oldPath string, doc models.Document) []models.Document {
	out := make([]models.Document, 0, len(posts)+1)
	found := false
	for _, d := range posts {
		switch {
		case d.Path == oldPath:
			out = append(out, doc)
			found = true
		case d.Path == doc.Path:
		default:
			out = append(out, d)
		}
	}
	if !found {
		out = append(out, doc)
	}
	return out
}

func (a *Adapter) persist(key string, posts []models.Document, tree []models.FileTreeNode) {
	a.persister.Save(key, posts, tree)
}

// Close waits for background cache writes.
func (a *Adapter) Close() {
	a.persister.Wait()
}

func messageOr(message, fallback string) string {
	if message != "" {
		return message
	}
	return fallback
}
