// Package workspace owns the in-memory posts snapshot of the open workspace
// and keeps it consistent with disk and the local cache.
package workspace

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/starford/folio/internal/models"
	"github.com/starford/folio/internal/parser"
	"github.com/starford/folio/internal/storage"
)

// DefaultReadConcurrency bounds parallel file reads during a refresh.
const DefaultReadConcurrency = 16

// Cache is the persistence the store writes through to. Implementations
// must fail soft.
type Cache interface {
	SavePosts(ctx context.Context, key string, posts []models.Document)
	LoadPosts(ctx context.Context, key string) ([]models.Document, bool)
	SaveTree(ctx context.Context, key string, tree []models.FileTreeNode)
	LoadTree(ctx context.Context, key string) ([]models.FileTreeNode, bool)
}

type nopCache struct{}

func (nopCache) SavePosts(context.Context, string, []models.Document) {}
func (nopCache) LoadPosts(context.Context, string) ([]models.Document, bool) {
	return nil, false
}
func (nopCache) SaveTree(context.Context, string, []models.FileTreeNode) {}
func (nopCache) LoadTree(context.Context, string) ([]models.FileTreeNode, bool) {
	return nil, false
}

// Listener receives state snapshots. Snapshots are shared between listeners
// and must be treated as read-only.
type Listener func(models.WorkspaceState)

// Store holds one workspace snapshot and the subscribers watching it.
type Store struct {
	cache  Cache
	logger *slog.Logger

	readConcurrency  int
	includeEmptyDirs bool
	overrides        map[string]parser.Multiplicity

	// notifyMu serializes state transitions with their delivery so that
	// listeners observe changes in order.
	notifyMu  sync.Mutex
	mu        sync.Mutex
	state     models.WorkspaceState
	root      storage.Dir
	listeners map[int]Listener
	nextID    int

	flight    singleflight.Group
	persister *Persister
}

// Option configures a Store.
type Option func(*Store)

// WithReadConcurrency bounds parallel reads per refresh.
func WithReadConcurrency(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.readConcurrency = n
		}
	}
}

// WithIncludeEmptyDirs keeps empty directories in scanned trees.
func WithIncludeEmptyDirs(v bool) Option {
	return func(s *Store) { s.includeEmptyDirs = v }
}

// WithMultiplicity sets the per-field shape overrides applied on save.
func WithMultiplicity(m map[string]parser.Multiplicity) Option {
	return func(s *Store) { s.overrides = m }
}

// New creates an empty store. cache may be nil.
func New(cache Cache, logger *slog.Logger, opts ...Option) *Store {
	if cache == nil {
		cache = nopCache{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		cache:           cache,
		logger:          logger,
		readConcurrency: DefaultReadConcurrency,
		listeners:       make(map[int]Listener),
		persister:       NewPersister(cache),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Subscribe registers fn, delivers the current snapshot to it immediately
// and then every later change. Listeners must not call back into the
// store's mutating methods synchronously.
func (s *Store) Subscribe(fn Listener) (unsubscribe func()) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	snap := s.state
	s.mu.Unlock()

	fn(snap)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

// Snapshot returns the current state.
func (s *Store) Snapshot() models.WorkspaceState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Root returns the root the store was last initialized with.
func (s *Store) Root() storage.Dir {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.root
}

// IncludeEmptyDirs reports the store's empty-directory policy.
func (s *Store) IncludeEmptyDirs() bool { return s.includeEmptyDirs }

// Post returns the post at path from the current snapshot.
func (s *Store) Post(path string) (models.Document, bool) {
	for _, p := range s.Snapshot().Posts {
		if p.Path == path {
			return p, true
		}
	}
	return models.Document{}, false
}

// update applies fn to the current state. fn returns the replacement and
// whether anything changed; unchanged states are not published.
func (s *Store) update(fn func(models.WorkspaceState) (models.WorkspaceState, bool)) bool {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	next, changed := fn(s.state)
	if !changed {
		s.mu.Unlock()
		return false
	}
	s.state = next
	ls := make([]Listener, 0, len(s.listeners))
	for _, id := range sortedIDs(s.listeners) {
		ls = append(ls, s.listeners[id])
	}
	s.mu.Unlock()

	for _, l := range ls {
		l(next)
	}
	return true
}

// updateIf is update guarded on the live project key.
func (s *Store) updateIf(key string, fn func(*models.WorkspaceState)) bool {
	return s.update(func(st models.WorkspaceState) (models.WorkspaceState, bool) {
		if st.ProjectKey != key {
			return st, false
		}
		fn(&st)
		return st, true
	})
}

func sortedIDs(m map[int]Listener) []int {
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (s *Store) persist(key string, posts []models.Document, tree []models.FileTreeNode) {
	s.persister.Save(key, posts, tree)
}

// Close waits for background cache writes.
func (s *Store) Close() {
	s.persister.Wait()
}
