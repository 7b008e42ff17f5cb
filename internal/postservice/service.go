// Package postservice is the use-case layer shared by the HTTP API and the
// MCP server. It works on the currently open local workspace.
package postservice

import (
	"cmp"
	"context"
	"fmt"
	"path"
	"slices"
	"strings"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/cache"
	"github.com/starford/folio/internal/checksum"
	"github.com/starford/folio/internal/models"
	"github.com/starford/folio/internal/parser"
	"github.com/starford/folio/internal/scanner"
	"github.com/starford/folio/internal/schema"
	"github.com/starford/folio/internal/storage"
	"github.com/starford/folio/internal/workspace"
)

// Post event kinds passed to Events.
const (
	EventCreated = "created"
	EventUpdated = "updated"
	EventDeleted = "deleted"
)

// Events receives post changes made through the service.
type Events interface {
	PublishPostEvent(kind, path string)
	PublishPostRenamed(from, to string)
}

type nopEvents struct{}

func (nopEvents) PublishPostEvent(string, string)   {}
func (nopEvents) PublishPostRenamed(string, string) {}

// PostDetail is the full representation of a post.
type PostDetail struct {
	Path       string             `json:"path"`
	Name       string             `json:"name"`
	Title      string             `json:"title"`
	Attributes *models.Attributes `json:"attributes"`
	Body       string             `json:"body"`
	Content    string             `json:"content"`
	Checksum   string             `json:"checksum"`
}

// PostListItem is a lightweight item in a list response.
type PostListItem struct {
	Path       string   `json:"path"`
	Title      string   `json:"title"`
	Date       string   `json:"date,omitempty"`
	Categories []string `json:"categories"`
	Tags       []string `json:"tags"`
	Checksum   string   `json:"checksum"`
}

// ListFilter narrows ListPosts. Sort is "" (tree order), "title", "date"
// (newest first) or "path".
type ListFilter struct {
	Tag      string
	Category string
	Sort     string
}

// UpdateRequest changes an existing post. Nil fields are left alone.
// IfMatch, when set, must name the checksum of the file on disk.
type UpdateRequest struct {
	Attributes *models.Attributes
	Body       *string
	IfMatch    string
}

// Service coordinates the workspace store and the local cache.
type Service struct {
	store  *workspace.Store
	cache  *cache.Cache
	events Events
}

// New creates a service. A nil events drops notifications.
func New(store *workspace.Store, c *cache.Cache, events Events) *Service {
	if events == nil {
		events = nopEvents{}
	}
	return &Service{store: store, cache: c, events: events}
}

func (s *Service) root() (storage.Dir, error) {
	root := s.store.Root()
	if root == nil {
		return nil, apperr.ErrNoWorkspace
	}
	return root, nil
}

// State returns the current workspace snapshot.
func (s *Service) State() models.WorkspaceState {
	return s.store.Snapshot()
}

// ListPosts returns the posts of the current snapshot.
func (s *Service) ListPosts(_ context.Context, f ListFilter) []PostListItem {
	posts := s.store.Snapshot().Posts
	items := make([]PostListItem, 0, len(posts))
	for _, doc := range posts {
		tags := doc.Attributes.Strings(models.KeyTags)
		cats := doc.Attributes.Strings(models.KeyCategories)
		if f.Tag != "" && !slices.Contains(tags, f.Tag) {
			continue
		}
		if f.Category != "" && !slices.Contains(cats, f.Category) {
			continue
		}
		items = append(items, PostListItem{
			Path:       doc.Path,
			Title:      doc.Title(),
			Date:       doc.Attributes.GetString(models.KeyDate),
			Categories: nonNilSlice(cats),
			Tags:       nonNilSlice(tags),
			Checksum:   checksum.SumString(doc.RawText),
		})
	}
	switch f.Sort {
	case "title":
		slices.SortStableFunc(items, func(a, b PostListItem) int {
			return cmp.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title))
		})
	case "date":
		slices.SortStableFunc(items, func(a, b PostListItem) int { return cmp.Compare(b.Date, a.Date) })
	case "path":
		slices.SortStableFunc(items, func(a, b PostListItem) int { return cmp.Compare(a.Path, b.Path) })
	}
	return items
}

// GetPost returns the post at p from the snapshot.
func (s *Service) GetPost(_ context.Context, p string) (*PostDetail, error) {
	doc, ok := s.store.Post(p)
	if !ok {
		return nil, fmt.Errorf("postservice: %s: %w", p, apperr.ErrNotFound)
	}
	return detail(doc), nil
}

// CreatePost writes a new post.
func (s *Service) CreatePost(ctx context.Context, p string, attrs *models.Attributes, body string) (*PostDetail, error) {
	root, err := s.root()
	if err != nil {
		return nil, err
	}
	doc, err := s.store.CreatePost(ctx, root, p, attrs, body)
	if err != nil {
		return nil, err
	}
	s.events.PublishPostEvent(EventCreated, doc.Path)
	return detail(doc), nil
}

// UpdatePost merges attributes and/or replaces the body of the post at p as
// it currently is on disk.
func (s *Service) UpdatePost(ctx context.Context, p string, req UpdateRequest) (*PostDetail, error) {
	root, err := s.root()
	if err != nil {
		return nil, err
	}
	data, err := storage.ReadFile(ctx, root, p)
	if err != nil {
		return nil, fmt.Errorf("postservice: read %s: %w", p, err)
	}
	if req.IfMatch != "" && !checksum.Matches(req.IfMatch, data) {
		return nil, fmt.Errorf("postservice: %s changed on disk: %w", p, apperr.ErrConflict)
	}
	doc := parser.Normalize(string(data), p, path.Base(p))
	if req.Attributes != nil {
		doc = parser.Merge(doc, req.Attributes)
	}
	if req.Body != nil {
		doc.Body = *req.Body
	}
	saved, err := s.store.SavePost(ctx, root, doc, nil)
	if err != nil {
		return nil, err
	}
	s.events.PublishPostEvent(EventUpdated, saved.Path)
	return detail(saved), nil
}

// DeletePost removes the post at p.
func (s *Service) DeletePost(ctx context.Context, p string) error {
	root, err := s.root()
	if err != nil {
		return err
	}
	if err := s.store.DeletePost(ctx, root, p); err != nil {
		return err
	}
	s.events.PublishPostEvent(EventDeleted, p)
	return nil
}

// RenamePost moves the post at from to to.
func (s *Service) RenamePost(ctx context.Context, from, to string) (*PostDetail, error) {
	root, err := s.root()
	if err != nil {
		return nil, err
	}
	if err := s.store.RenamePost(ctx, root, from, to); err != nil {
		return nil, err
	}
	s.events.PublishPostRenamed(from, to)
	doc, ok := s.store.Post(to)
	if !ok {
		return nil, fmt.Errorf("postservice: %s: %w", to, apperr.ErrNotFound)
	}
	return detail(doc), nil
}

// Tree returns the file tree. Asking for a different empty-directory policy
// than the store uses scans the disk without touching the snapshot.
func (s *Service) Tree(ctx context.Context, includeEmptyDirs *bool) ([]models.FileTreeNode, error) {
	if includeEmptyDirs == nil || *includeEmptyDirs == s.store.IncludeEmptyDirs() {
		return nonNilSlice(s.store.Snapshot().FileTree), nil
	}
	root, err := s.root()
	if err != nil {
		return nil, err
	}
	tree, err := scanner.Scan(ctx, root, "", *includeEmptyDirs)
	if err != nil {
		return nil, err
	}
	return nonNilSlice(tree), nil
}

// Schema infers the attribute schema over the current posts.
func (s *Service) Schema(_ context.Context) []models.Field {
	return nonNilSlice(schema.Analyze(s.store.Snapshot().Posts))
}

// Refresh rescans the workspace.
func (s *Service) Refresh(ctx context.Context) error {
	root, err := s.root()
	if err != nil {
		return err
	}
	return s.store.Refresh(ctx, root, nil)
}

// Search queries the cached posts of the current workspace.
func (s *Service) Search(ctx context.Context, query string, limit int) []cache.SearchResult {
	key := s.store.Snapshot().ProjectKey
	if key == "" {
		return []cache.SearchResult{}
	}
	return nonNilSlice(s.cache.Search(ctx, key, query, limit))
}

// AppState returns the saved UI state, if still fresh.
func (s *Service) AppState(ctx context.Context) (cache.AppState, bool) {
	return s.cache.LoadAppState(ctx)
}

// SaveAppState stores the UI state.
func (s *Service) SaveAppState(ctx context.Context, st cache.AppState) {
	s.cache.SaveAppState(ctx, st)
}

// RecentWorkspaces lists recently opened roots, newest first.
func (s *Service) RecentWorkspaces(ctx context.Context) []cache.RecentHandle {
	return nonNilSlice(s.cache.RecentHandles(ctx))
}

// ForgetWorkspace removes name from the recent list and drops its cached
// posts and tree. The cache of the open workspace is kept.
func (s *Service) ForgetWorkspace(ctx context.Context, name string) {
	s.cache.RemoveRecentHandle(ctx, name)
	if name != s.store.Snapshot().ProjectKey {
		s.cache.ClearWorkspace(ctx, name)
	}
}

func detail(doc models.Document) *PostDetail {
	return &PostDetail{
		Path:       doc.Path,
		Name:       doc.Name,
		Title:      doc.Title(),
		Attributes: doc.Attributes,
		Body:       doc.Body,
		Content:    doc.RawText,
		Checksum:   checksum.SumString(doc.RawText),
	}
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
