package api

import (
	"context"
	"net/http"
	"path"

	"github.com/starford/folio/internal/models"
	"github.com/starford/folio/internal/parser"
	"github.com/starford/folio/internal/remote"
)

// RemoteWorkspace is the remote mirror driven by the /remote routes.
type RemoteWorkspace interface {
	Snapshot() remote.State
	Refresh(ctx context.Context) error
	LoadFile(ctx context.Context, p string) (models.Document, error)
	SaveFile(ctx context.Context, doc models.Document, message string) (models.Document, error)
	DeleteFile(ctx context.Context, p, message string) error
	RenameFile(ctx context.Context, oldPath, newPath, message string) error
}

// RemoteHandler serves the remote mirror.
type RemoteHandler struct {
	remote RemoteWorkspace
}

// NewRemoteHandler creates a RemoteHandler.
func NewRemoteHandler(rw RemoteWorkspace) *RemoteHandler {
	return &RemoteHandler{remote: rw}
}

func remoteSummary(s remote.State) RemoteSummary {
	return RemoteSummary{
		WorkspaceSummary: summarize(s.WorkspaceState),
		Provider:         s.Target.Provider,
		Owner:            s.Target.Owner,
		Repo:             s.Target.Repo,
		Branch:           s.Target.Branch,
		Truncated:        s.Truncated,
		Loaded:           s.Loaded,
		Total:            s.Total,
	}
}

func (h *RemoteHandler) find(p string) (models.Document, bool) {
	for _, doc := range h.remote.Snapshot().Posts {
		if doc.Path == p {
			return doc, true
		}
	}
	return models.Document{}, false
}

// Status handles GET /api/remote.
func (h *RemoteHandler) Status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, remoteSummary(h.remote.Snapshot()))
}

// ListPosts handles GET /api/remote/posts.
func (h *RemoteHandler) ListPosts(w http.ResponseWriter, _ *http.Request) {
	posts := h.remote.Snapshot().Posts
	items := make([]PostDetail, 0, len(posts))
	for _, doc := range posts {
		items = append(items, PostDetail{Path: doc.Path, Name: doc.Name, Title: doc.Title(), Attributes: doc.Attributes})
	}
	writeJSON(w, http.StatusOK, map[string]any{"posts": items, "total": len(items)})
}

// Refresh handles POST /api/remote/refresh.
func (h *RemoteHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.remote.Refresh(r.Context()); err != nil {
		writeError(w, err, "remote refresh", "")
		return
	}
	writeJSON(w, http.StatusOK, remoteSummary(h.remote.Snapshot()))
}

// GetPost handles GET /api/remote/posts/*. The file is re-read from the
// repository.
func (h *RemoteHandler) GetPost(w http.ResponseWriter, r *http.Request) {
	p := postPath(r)
	if p == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	doc, err := h.remote.LoadFile(r.Context(), p)
	if err != nil {
		writeError(w, err, "remote get post", p)
		return
	}
	writeJSON(w, http.StatusOK, remoteDetail(doc))
}

// PutPost handles PUT /api/remote/posts/*. Attributes are merged into the
// mirrored post; a path not yet mirrored is created.
func (h *RemoteHandler) PutPost(w http.ResponseWriter, r *http.Request) {
	p := postPath(r)
	if p == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	var req RemoteWriteRequest
	if !decodeBody(w, r, &req) {
		return
	}

	doc, ok := h.find(p)
	if !ok {
		doc = models.Document{Path: p, Name: path.Base(p), Attributes: models.NewAttributes()}
	}
	if req.Attributes != nil {
		doc = parser.Merge(doc, req.Attributes)
	}
	if req.Body != nil {
		doc.Body = *req.Body
	}

	saved, err := h.remote.SaveFile(r.Context(), doc, req.Message)
	if err != nil {
		writeError(w, err, "remote save post", p)
		return
	}
	writeJSON(w, http.StatusOK, remoteDetail(saved))
}

// DeletePost handles DELETE /api/remote/posts/*?message=.
func (h *RemoteHandler) DeletePost(w http.ResponseWriter, r *http.Request) {
	p := postPath(r)
	if p == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	if err := h.remote.DeleteFile(r.Context(), p, r.URL.Query().Get("message")); err != nil {
		writeError(w, err, "remote delete post", p)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RenamePost handles POST /api/remote/posts/rename.
func (h *RemoteHandler) RenamePost(w http.ResponseWriter, r *http.Request) {
	var req RemoteRenameRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.From == "" || req.To == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("from and to are required"))
		return
	}
	if err := h.remote.RenameFile(r.Context(), req.From, req.To, req.Message); err != nil {
		writeError(w, err, "remote rename post", req.From)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func remoteDetail(doc models.Document) PostDetail {
	return PostDetail{
		Path:       doc.Path,
		Name:       doc.Name,
		Title:      doc.Title(),
		Attributes: doc.Attributes,
		Body:       doc.Body,
		Content:    doc.RawText,
	}
}
