package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/ansuz/internal/graph"
	"github.com/starford/ansuz/internal/noteservice"
	"github.com/starford/ansuz/internal/search"
	"github.com/starford/ansuz/internal/vault"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// wsHandler, if non-nil, is mounted at GET /ws inside the auth group.
func NewRouter(svc *noteservice.Service, g *graph.Engine, searcher search.Engine, store vault.Store, authEnabled bool, token string, wsHandler http.Handler) chi.Router {
	h := NewHandler(svc, g, searcher)
	ah := NewAttachmentHandler(store)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Notes CRUD.
	r.Get("/notes", h.ListNotes)
	r.Post("/notes", h.CreateNote)
	r.Post("/notes/rename", h.RenameNote)
	r.Get("/notes/*", h.GetNote)
	r.Put("/notes/*", h.UpdateNote)
	r.Delete("/notes/*", h.DeleteNote)

	// Search and metadata lookups.
	r.Get("/search", h.Search)
	r.Get("/find/tag", h.FindByTag)
	r.Get("/find/property", h.FindByProperty)
	r.Get("/find/link", h.FindByLink)
	r.Get("/tags", h.Tags)

	// Graph queries.
	r.Get("/graph", h.Graph)
	r.Get("/backlinks/*", h.Backlinks)
	r.Get("/neighbors/*", h.Neighbors)
	r.Get("/path", h.FindPath)

	// Attachments.
	r.Post("/attachments", ah.Upload)
	r.Get("/attachments/{filename}", ah.ServeFile)

	// Live updates (protected by the same auth middleware).
	if wsHandler != nil {
		r.Get("/ws", wsHandler.ServeHTTP)
	}

	return r
}
