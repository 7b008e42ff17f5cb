package workspace

import (
	"context"
	"fmt"
	"log/slog"
	"path"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/models"
	"github.com/starford/folio/internal/parser"
	"github.com/starford/folio/internal/scanner"
	"github.com/starford/folio/internal/storage"
)

// SavePost serializes doc, writes it to root and updates the snapshot with
// the document as re-read from the written text. A nil overrides uses the
// store's configured multiplicity.
func (s *Store) SavePost(ctx context.Context, root storage.Dir, doc models.Document, overrides map[string]parser.Multiplicity) (models.Document, error) {
	if overrides == nil {
		overrides = s.overrides
	}
	text, err := parser.Serialize(doc, overrides)
	if err != nil {
		return models.Document{}, fmt.Errorf("workspace: serialize %s: %w", doc.Path, err)
	}
	if err := storage.WriteFile(ctx, root, doc.Path, []byte(text)); err != nil {
		return models.Document{}, fmt.Errorf("workspace: save %s: %w", doc.Path, err)
	}
	saved := parser.Normalize(text, doc.Path, path.Base(doc.Path))
	s.ApplyUpdated(root.Name(), saved)
	return saved, nil
}

// CreatePost writes a new post at p. Missing standard attributes get their
// defaults. The target must not exist.
func (s *Store) CreatePost(ctx context.Context, root storage.Dir, p string, attrs *models.Attributes, body string) (models.Document, error) {
	if err := validatePostPath(p); err != nil {
		return models.Document{}, err
	}
	exists, err := storage.Exists(ctx, root, p)
	if err != nil {
		return models.Document{}, fmt.Errorf("workspace: create %s: %w", p, err)
	}
	if exists {
		return models.Document{}, fmt.Errorf("workspace: create %s: %w", p, apperr.ErrAlreadyExists)
	}

	if attrs == nil {
		attrs = models.NewAttributes()
	}
	draft, err := parser.Serialize(models.Document{Path: p, Body: body, Attributes: attrs}, nil)
	if err != nil {
		return models.Document{}, fmt.Errorf("workspace: serialize %s: %w", p, err)
	}
	doc := parser.Normalize(draft, p, path.Base(p))
	text, err := parser.Serialize(doc, s.overrides)
	if err != nil {
		return models.Document{}, fmt.Errorf("workspace: serialize %s: %w", p, err)
	}
	if err := storage.WriteFile(ctx, root, p, []byte(text)); err != nil {
		return models.Document{}, fmt.Errorf("workspace: create %s: %w", p, err)
	}
	created := parser.Normalize(text, p, path.Base(p))
	s.ApplyAdded(root.Name(), created)
	s.rescanTree(ctx, root)
	return created, nil
}

// DeletePost removes the file at p.
func (s *Store) DeletePost(ctx context.Context, root storage.Dir, p string) error {
	if err := storage.RemoveFile(ctx, root, p); err != nil {
		return fmt.Errorf("workspace: delete %s: %w", p, err)
	}
	s.ApplyDeleted(root.Name(), p)
	s.rescanTree(ctx, root)
	return nil
}

// RenamePost moves the file at oldPath to newPath.
func (s *Store) RenamePost(ctx context.Context, root storage.Dir, oldPath, newPath string) error {
	if err := validatePostPath(newPath); err != nil {
		return err
	}
	if err := storage.MoveFile(ctx, root, oldPath, newPath); err != nil {
		return fmt.Errorf("workspace: rename %s: %w", oldPath, err)
	}
	s.ApplyPathChanged(root.Name(), oldPath, newPath)
	s.rescanTree(ctx, root)
	return nil
}

// UpdateAttributes merges updates into the post at p as currently on disk
// and saves it. Attributes not named in updates are kept.
func (s *Store) UpdateAttributes(ctx context.Context, root storage.Dir, p string, updates *models.Attributes) (models.Document, error) {
	data, err := storage.ReadFile(ctx, root, p)
	if err != nil {
		return models.Document{}, fmt.Errorf("workspace: read %s: %w", p, err)
	}
	doc := parser.Normalize(string(data), p, path.Base(p))
	return s.SavePost(ctx, root, parser.Merge(doc, updates), nil)
}

// rescanTree keeps the tree in step after a structural change. The posts
// snapshot is already correct, so failures are only logged.
func (s *Store) rescanTree(ctx context.Context, root storage.Dir) {
	if err := s.RefreshTree(ctx, root, s.includeEmptyDirs); err != nil {
		s.logger.Warn("workspace: tree refresh after write failed",
			slog.String("workspace", root.Name()), slog.String("error", err.Error()))
	}
}

func validatePostPath(p string) error {
	segs, err := storage.SplitPath(p)
	if err != nil {
		return err
	}
	if len(segs) == 0 || !scanner.IsMarkdown(p) || scanner.IsIgnored(p) {
		return fmt.Errorf("workspace: %w: %q is not a Markdown post path", apperr.ErrInvalidPath, p)
	}
	return nil
}
