package workspace

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/models"
	"github.com/starford/folio/internal/parser"
	"github.com/starford/folio/internal/scanner"
	"github.com/starford/folio/internal/storage"
)

// Initialize opens root as the current workspace. Switching to a different
// project key resets the snapshot and shows cached posts and tree; then a
// full refresh runs. The only error surfaced for an unreadable root is
// apperr.ErrPermissionDenied.
func (s *Store) Initialize(ctx context.Context, root storage.Dir) error {
	if err := checkPermission(ctx, root); err != nil {
		return err
	}
	key := root.Name()

	s.mu.Lock()
	s.root = root
	s.mu.Unlock()

	switched := s.update(func(st models.WorkspaceState) (models.WorkspaceState, bool) {
		if st.ProjectKey == key {
			return st, false
		}
		return models.WorkspaceState{ProjectKey: key}, true
	})

	// Reopening the same workspace keeps the live snapshot, which may be
	// newer than cache writes still pending.
	if switched {
		s.hydrate(ctx, key)
	}

	return s.Refresh(ctx, root, nil)
}

func (s *Store) hydrate(ctx context.Context, key string) {
	posts, okPosts := s.cache.LoadPosts(ctx, key)
	tree, okTree := s.cache.LoadTree(ctx, key)
	if !okPosts && !okTree {
		return
	}
	s.updateIf(key, func(st *models.WorkspaceState) {
		if okPosts {
			st.Posts = posts
		}
		if okTree {
			st.FileTree = tree
		}
	})
	s.logger.Debug("workspace: hydrated from cache",
		slog.String("workspace", key), slog.Int("posts", len(posts)))
}

func checkPermission(ctx context.Context, root storage.Dir) error {
	p, err := root.QueryPermission(ctx, storage.ModeRead)
	if err != nil {
		return fmt.Errorf("workspace: query permission: %w", err)
	}
	if p == storage.PermissionPrompt {
		if p, err = root.RequestPermission(ctx, storage.ModeRead); err != nil {
			return fmt.Errorf("workspace: request permission: %w", err)
		}
	}
	if p != storage.PermissionGranted {
		return fmt.Errorf("workspace: %s: %w", root.Name(), apperr.ErrPermissionDenied)
	}
	return nil
}

// Refresh rescans root (or reuses tree when non-nil), reads and normalizes
// every Markdown file concurrently and publishes the result. Concurrent calls
// for the same workspace share one in-flight run. Files that fail to read are
// logged and left out.
func (s *Store) Refresh(ctx context.Context, root storage.Dir, tree []models.FileTreeNode) error {
	key := root.Name()
	ch := s.flight.DoChan(key, func() (any, error) {
		// The run outlives any single caller; results for an abandoned
		// workspace are discarded by the key guard instead.
		return nil, s.refresh(context.WithoutCancel(ctx), root, key, tree)
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		return res.Err
	}
}

func (s *Store) refresh(ctx context.Context, root storage.Dir, key string, tree []models.FileTreeNode) error {
	scan := tree == nil
	s.updateIf(key, func(st *models.WorkspaceState) {
		st.IsLoading = true
		st.IsLoadingTree = scan
	})

	if scan {
		var err error
		tree, err = scanner.Scan(ctx, root, "", s.includeEmptyDirs)
		if err != nil {
			s.updateIf(key, func(st *models.WorkspaceState) {
				st.IsLoading = false
				st.IsLoadingTree = false
			})
			return fmt.Errorf("workspace: scan %s: %w", key, err)
		}
	}
	s.updateIf(key, func(st *models.WorkspaceState) {
		st.FileTree = tree
		st.IsLoadingTree = false
	})

	posts := s.readAll(ctx, root, scanner.Flatten(tree))

	if !s.updateIf(key, func(st *models.WorkspaceState) {
		st.Posts = posts
		st.IsLoading = false
	}) {
		s.logger.Debug("workspace: discarded stale refresh", slog.String("workspace", key))
		return nil
	}
	s.persist(key, posts, tree)
	s.logger.Info("workspace: refreshed",
		slog.String("workspace", key), slog.Int("posts", len(posts)))
	return nil
}

// readAll reads and normalizes files with bounded parallelism, keeping tree
// order and dropping files that fail.
func (s *Store) readAll(ctx context.Context, root storage.Dir, files []models.FileTreeNode) []models.Document {
	docs := make([]models.Document, len(files))
	ok := make([]bool, len(files))

	var g errgroup.Group
	g.SetLimit(s.readConcurrency)
	for i, f := range files {
		g.Go(func() error {
			data, err := storage.ReadFile(ctx, root, f.Path)
			if err != nil {
				s.logger.Warn("workspace: read failed",
					slog.String("path", f.Path), slog.String("error", err.Error()))
				return nil
			}
			docs[i] = parser.Normalize(string(data), f.Path, f.Name)
			ok[i] = true
			return nil
		})
	}
	_ = g.Wait()

	out := make([]models.Document, 0, len(files))
	for i := range docs {
		if ok[i] {
			out = append(out, docs[i])
		}
	}
	return out
}

// RefreshTree rescans only the directory structure.
func (s *Store) RefreshTree(ctx context.Context, root storage.Dir, includeEmptyDirs bool) error {
	key := root.Name()
	s.updateIf(key, func(st *models.WorkspaceState) { st.IsLoadingTree = true })

	tree, err := scanner.Scan(ctx, root, "", includeEmptyDirs)
	if err != nil {
		s.updateIf(key, func(st *models.WorkspaceState) { st.IsLoadingTree = false })
		return fmt.Errorf("workspace: scan tree %s: %w", key, err)
	}
	if s.updateIf(key, func(st *models.WorkspaceState) {
		st.FileTree = tree
		st.IsLoadingTree = false
	}) {
		s.persist(key, nil, tree)
	}
	return nil
}
