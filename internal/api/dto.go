package api

import (
	"github.com/starford/folio/internal/cache"
	"github.com/starford/folio/internal/models"
	"github.com/starford/folio/internal/postservice"
)

// CreatePostRequest is the request body for creating a post. Missing
// standard attributes get their defaults.
type CreatePostRequest struct {
	Path       string             `json:"path" example:"posts/hello.md" validate:"required"`
	Attributes *models.Attributes `json:"attributes,omitempty"`
	Body       string             `json:"body" example:"Hello world"`
}

// UpdatePostRequest merges attributes into a post and/or replaces its body.
type UpdatePostRequest struct {
	Attributes *models.Attributes `json:"attributes,omitempty"`
	Body       *string            `json:"body,omitempty"`
}

// RenamePostRequest moves a post.
type RenamePostRequest struct {
	From string `json:"from" example:"posts/old.md" validate:"required"`
	To   string `json:"to" example:"posts/new.md" validate:"required"`
}

// PostDetail is the full post response type (aliased from the domain layer).
type PostDetail = postservice.PostDetail

// PostListItem is a lightweight item in a list response (aliased from the domain layer).
type PostListItem = postservice.PostListItem

// PostListResponse wraps post listings.
type PostListResponse struct {
	Posts []PostListItem `json:"posts" validate:"required"`
	Total int            `json:"total" example:"42" validate:"required"`
}

// TreeResponse wraps the file tree.
type TreeResponse struct {
	Tree []models.FileTreeNode `json:"tree" validate:"required"`
}

// SchemaResponse wraps the inferred attribute schema.
type SchemaResponse struct {
	Fields []models.Field `json:"fields" validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []cache.SearchResult `json:"results" validate:"required"`
}

// WorkspaceSummary describes the open workspace.
type WorkspaceSummary struct {
	ProjectKey    string `json:"project_key"`
	Posts         int    `json:"posts"`
	IsLoading     bool   `json:"is_loading"`
	IsLoadingTree bool   `json:"is_loading_tree"`
}

func summarize(s models.WorkspaceState) WorkspaceSummary {
	return WorkspaceSummary{
		ProjectKey:    s.ProjectKey,
		Posts:         len(s.Posts),
		IsLoading:     s.IsLoading,
		IsLoadingTree: s.IsLoadingTree,
	}
}

// RecentResponse lists recently opened workspaces.
type RecentResponse struct {
	Workspaces []cache.RecentHandle `json:"workspaces" validate:"required"`
}

// RemoteWriteRequest writes a post to the remote repository.
type RemoteWriteRequest struct {
	Attributes *models.Attributes `json:"attributes,omitempty"`
	Body       *string            `json:"body,omitempty"`
	Message    string             `json:"message,omitempty" example:"Update: posts/hello.md"`
}

// RemoteRenameRequest moves a post in the remote repository.
type RemoteRenameRequest struct {
	From    string `json:"from" validate:"required"`
	To      string `json:"to" validate:"required"`
	Message string `json:"message,omitempty"`
}

// RemoteSummary describes the remote mirror.
type RemoteSummary struct {
	WorkspaceSummary
	Provider  string `json:"provider"`
	Owner     string `json:"owner"`
	Repo      string `json:"repo"`
	Branch    string `json:"branch"`
	Truncated bool   `json:"truncated"`
	Loaded    int    `json:"loaded"`
	Total     int    `json:"total"`
}
