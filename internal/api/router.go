package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/stepsheet/internal/docservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *docservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Workspace.
	r.Get("/workspace", h.GetWorkspace)
	r.Post("/workspace/save", h.SaveWorkspace)

	// Folders.
	r.Post("/folders", h.CreateFolder)
	r.Patch("/folders/{id}", h.RenameFolder)
	r.Delete("/folders/{id}", h.DeleteFolder)

	// Files CRUD.
	r.Get("/files", h.ListFiles)
	r.Post("/files", h.CreateFile)
	r.Post("/files/restore", h.RestoreFile)
	r.Get("/files/{id}", h.GetFile)
	r.Put("/files/{id}", h.UpdateFile)
	r.Patch("/files/{id}", h.PatchFile)
	r.Delete("/files/{id}", h.DeleteFile)
	r.Get("/files/{id}/status", h.FileStatus)
	r.Get("/files/{id}/steps/{n}", h.GetStep)

	// Search.
	r.Get("/search", h.Search)

	// Export and import.
	r.Get("/export", h.Export)
	r.Post("/import", h.Import)

	// Editing sessions.
	r.Get("/sessions", h.ListSessions)
	r.Post("/sessions/{id}", h.OpenSession)
	r.Get("/sessions/{id}", h.GetSession)
	r.Delete("/sessions/{id}", h.CloseSession)
	r.Post("/sessions/{id}/steps/{n}/toggle", h.TogglePass)
	r.Get("/sessions/{id}/ws", h.SessionSocket)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
