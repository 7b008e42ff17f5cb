package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/folio/internal/cache"
	"github.com/starford/folio/internal/postservice"
)

const maxBodyBytes = 10 << 20

// Handler holds API route handlers.
type Handler struct {
	svc *postservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *postservice.Service) *Handler {
	return &Handler{svc: svc}
}

// postPath extracts the post path from the URL (everything after /posts/).
// Supports encoded slashes (e.g. drafts%2Fpost.md).
func postPath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	return true
}

func setETag(w http.ResponseWriter, sum string) {
	w.Header().Set("ETag", `"`+sum+`"`)
}

// ListPosts handles GET /api/posts.
//
//	@Summary		List posts of the open workspace
//	@Tags			posts
//	@Produce		json
//	@Param			tag			query		string	false	"Filter by tag"
//	@Param			category	query		string	false	"Filter by category"
//	@Param			sort		query		string	false	"Sort field"	Enums(title, date, path)
//	@Success		200			{object}	PostListResponse
//	@Security		BearerAuth
//	@Router			/posts [get]
func (h *Handler) ListPosts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	items := h.svc.ListPosts(r.Context(), postservice.ListFilter{
		Tag:      q.Get("tag"),
		Category: q.Get("category"),
		Sort:     q.Get("sort"),
	})
	writeJSON(w, http.StatusOK, PostListResponse{Posts: items, Total: len(items)})
}

// GetPost handles GET /api/posts/*.
//
//	@Summary		Get a single post by path
//	@Tags			posts
//	@Produce		json
//	@Param			path	path		string	true	"Post path"
//	@Success		200		{object}	PostDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/posts/{path} [get]
func (h *Handler) GetPost(w http.ResponseWriter, r *http.Request) {
	path := postPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	post, err := h.svc.GetPost(r.Context(), path)
	if err != nil {
		writeError(w, err, "get post", path)
		return
	}
	setETag(w, post.Checksum)
	writeJSON(w, http.StatusOK, post)
}

// CreatePost handles POST /api/posts.
//
//	@Summary		Create a new post
//	@Tags			posts
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreatePostRequest	true	"Post to create"
//	@Success		201		{object}	PostDetail
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/posts [post]
func (h *Handler) CreatePost(w http.ResponseWriter, r *http.Request) {
	var req CreatePostRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	post, err := h.svc.CreatePost(r.Context(), req.Path, req.Attributes, req.Body)
	if err != nil {
		writeError(w, err, "create post", req.Path)
		return
	}
	setETag(w, post.Checksum)
	writeJSON(w, http.StatusCreated, post)
}

// UpdatePost handles PUT /api/posts/*.
//
//	@Summary		Merge attributes into a post and/or replace its body
//	@Tags			posts
//	@Accept			json
//	@Produce		json
//	@Param			path		path		string				true	"Post path"
//	@Param			If-Match	header		string				false	"SHA-256 checksum for optimistic concurrency"
//	@Param			body		body		UpdatePostRequest	true	"Changes"
//	@Success		200			{object}	PostDetail
//	@Failure		400			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Failure		409			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/posts/{path} [put]
func (h *Handler) UpdatePost(w http.ResponseWriter, r *http.Request) {
	path := postPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	var req UpdatePostRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Attributes == nil && req.Body == nil {
		writeJSON(w, http.StatusBadRequest, errorBody("attributes or body is required"))
		return
	}

	post, err := h.svc.UpdatePost(r.Context(), path, postservice.UpdateRequest{
		Attributes: req.Attributes,
		Body:       req.Body,
		IfMatch:    r.Header.Get("If-Match"),
	})
	if err != nil {
		writeError(w, err, "update post", path)
		return
	}
	setETag(w, post.Checksum)
	writeJSON(w, http.StatusOK, post)
}

// DeletePost handles DELETE /api/posts/*.
//
//	@Summary		Delete a post
//	@Tags			posts
//	@Param			path	path	string	true	"Post path"
//	@Success		204		"Post deleted"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/posts/{path} [delete]
func (h *Handler) DeletePost(w http.ResponseWriter, r *http.Request) {
	path := postPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	if err := h.svc.DeletePost(r.Context(), path); err != nil {
		writeError(w, err, "delete post", path)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RenamePost handles POST /api/posts/rename.
//
//	@Summary		Move a post to a new path
//	@Tags			posts
//	@Accept			json
//	@Produce		json
//	@Param			body	body		RenamePostRequest	true	"Old and new path"
//	@Success		200		{object}	PostDetail
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/posts/rename [post]
func (h *Handler) RenamePost(w http.ResponseWriter, r *http.Request) {
	var req RenamePostRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.From == "" || req.To == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("from and to are required"))
		return
	}
	post, err := h.svc.RenamePost(r.Context(), req.From, req.To)
	if err != nil {
		writeError(w, err, "rename post", req.From)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

// Tree handles GET /api/tree.
//
//	@Summary		Get the workspace file tree
//	@Tags			workspace
//	@Produce		json
//	@Param			include_empty	query		bool	false	"Keep empty directories"
//	@Success		200				{object}	TreeResponse
//	@Security		BearerAuth
//	@Router			/tree [get]
func (h *Handler) Tree(w http.ResponseWriter, r *http.Request) {
	var includeEmpty *bool
	if raw := r.URL.Query().Get("include_empty"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("include_empty must be a boolean"))
			return
		}
		includeEmpty = &v
	}
	tree, err := h.svc.Tree(r.Context(), includeEmpty)
	if err != nil {
		writeError(w, err, "tree", "")
		return
	}
	writeJSON(w, http.StatusOK, TreeResponse{Tree: tree})
}

// Schema handles GET /api/schema.
//
//	@Summary		Infer the attribute schema of all posts
//	@Tags			workspace
//	@Produce		json
//	@Success		200	{object}	SchemaResponse
//	@Security		BearerAuth
//	@Router			/schema [get]
func (h *Handler) Schema(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, SchemaResponse{Fields: h.svc.Schema(r.Context())})
}

// Refresh handles POST /api/refresh.
//
//	@Summary		Rescan the workspace
//	@Tags			workspace
//	@Produce		json
//	@Success		200	{object}	WorkspaceSummary
//	@Failure		503	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/refresh [post]
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Refresh(r.Context()); err != nil {
		writeError(w, err, "refresh", "")
		return
	}
	writeJSON(w, http.StatusOK, summarize(h.svc.State()))
}

// Workspace handles GET /api/workspace.
//
//	@Summary		Describe the open workspace
//	@Tags			workspace
//	@Produce		json
//	@Success		200	{object}	WorkspaceSummary
//	@Security		BearerAuth
//	@Router			/workspace [get]
func (h *Handler) Workspace(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, summarize(h.svc.State()))
}

// Search handles GET /api/search.
//
//	@Summary		Search post titles and bodies
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	writeJSON(w, http.StatusOK, SearchResponse{Results: h.svc.Search(r.Context(), q, limit)})
}

// GetState handles GET /api/state.
//
//	@Summary		Get the saved UI state
//	@Tags			state
//	@Produce		json
//	@Success		200	{object}	cache.AppState
//	@Success		204	"No fresh state"
//	@Security		BearerAuth
//	@Router			/state [get]
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	st, ok := h.svc.AppState(r.Context())
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// PutState handles PUT /api/state.
//
//	@Summary		Save the UI state
//	@Tags			state
//	@Accept			json
//	@Param			body	body	cache.AppState	true	"State"
//	@Success		204		"Saved"
//	@Security		BearerAuth
//	@Router			/state [put]
func (h *Handler) PutState(w http.ResponseWriter, r *http.Request) {
	var st cache.AppState
	if !decodeBody(w, r, &st) {
		return
	}
	h.svc.SaveAppState(r.Context(), st)
	w.WriteHeader(http.StatusNoContent)
}

// RecentWorkspaces handles GET /api/workspaces/recent.
//
//	@Summary		List recently opened workspaces
//	@Tags			workspace
//	@Produce		json
//	@Success		200	{object}	RecentResponse
//	@Security		BearerAuth
//	@Router			/workspaces/recent [get]
func (h *Handler) RecentWorkspaces(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, RecentResponse{Workspaces: h.svc.RecentWorkspaces(r.Context())})
}

// ForgetWorkspace handles DELETE /api/workspaces/recent/{name}.
//
//	@Summary		Forget a recently opened workspace
//	@Tags			workspace
//	@Param			name	path	string	true	"Workspace name"
//	@Success		204		"Forgotten"
//	@Security		BearerAuth
//	@Router			/workspaces/recent/{name} [delete]
func (h *Handler) ForgetWorkspace(w http.ResponseWriter, r *http.Request) {
	h.svc.ForgetWorkspace(r.Context(), chi.URLParam(r, "name"))
	w.WriteHeader(http.StatusNoContent)
}
