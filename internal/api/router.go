package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/folio/internal/postservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
// rw, if non-nil, enables the /remote routes.
func NewRouter(svc *postservice.Service, authEnabled bool, token string, sseHandler http.Handler, rw RemoteWorkspace) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Posts CRUD. The rename route is registered before the wildcard.
	r.Get("/posts", h.ListPosts)
	r.Post("/posts", h.CreatePost)
	r.Post("/posts/rename", h.RenamePost)
	r.Get("/posts/*", h.GetPost)
	r.Put("/posts/*", h.UpdatePost)
	r.Delete("/posts/*", h.DeletePost)

	// Workspace.
	r.Get("/workspace", h.Workspace)
	r.Get("/workspaces/recent", h.RecentWorkspaces)
	r.Delete("/workspaces/recent/{name}", h.ForgetWorkspace)
	r.Get("/tree", h.Tree)
	r.Get("/schema", h.Schema)
	r.Post("/refresh", h.Refresh)
	r.Get("/search", h.Search)

	// UI state.
	r.Get("/state", h.GetState)
	r.Put("/state", h.PutState)

	if rw != nil {
		rh := NewRemoteHandler(rw)
		r.Route("/remote", func(r chi.Router) {
			r.Get("/", rh.Status)
			r.Post("/refresh", rh.Refresh)
			r.Get("/posts", rh.ListPosts)
			r.Post("/posts/rename", rh.RenamePost)
			r.Get("/posts/*", rh.GetPost)
			r.Put("/posts/*", rh.PutPost)
			r.Delete("/posts/*", rh.DeletePost)
		})
	}

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
