package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/stepsheet/internal/apperr"
	"github.com/starford/stepsheet/internal/session"
)

func (h *Handler) openSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, ok := h.svc.Sessions().Get(chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody("session not open"))
		return nil, false
	}
	return s, true
}

// OpenSession handles POST /api/sessions/{id}.
//
//	@Summary		Open an editing session on a file
//	@Tags			sessions
//	@Produce		json
//	@Param			id	path		string	true	"File id"
//	@Success		200	{object}	SessionView
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id} [post]
func (h *Handler) OpenSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.svc.Sessions().Open(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "open session", err)
		return
	}
	view, err := s.View()
	if err != nil {
		writeError(w, "open session", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// ListSessions handles GET /api/sessions.
//
//	@Summary		List the files with an open session
//	@Tags			sessions
//	@Produce		json
//	@Success		200	{object}	map[string][]string
//	@Security		BearerAuth
//	@Router			/sessions [get]
func (h *Handler) ListSessions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"fileIds": h.svc.Sessions().List()})
}

// GetSession handles GET /api/sessions/{id}.
//
//	@Summary		Get the state of an open session
//	@Tags			sessions
//	@Produce		json
//	@Param			id	path		string	true	"File id"
//	@Success		200	{object}	SessionView
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id} [get]
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.openSession(w, r)
	if !ok {
		return
	}
	view, err := s.View()
	if err != nil {
		writeError(w, "get session", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// CloseSession handles DELETE /api/sessions/{id}.
//
//	@Summary		Flush and close a session
//	@Tags			sessions
//	@Param			id	path	string	true	"File id"
//	@Success		204	"Session closed"
//	@Security		BearerAuth
//	@Router			/sessions/{id} [delete]
func (h *Handler) CloseSession(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Sessions().Close(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, "close session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// TogglePass handles POST /api/sessions/{id}/steps/{n}/toggle.
//
//	@Summary		Flip the pass flag of a step in place
//	@Tags			sessions
//	@Produce		json
//	@Param			id	path		string	true	"File id"
//	@Param			n	path		int		true	"Step index"
//	@Success		200	{object}	map[string]bool
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id}/steps/{n}/toggle [post]
func (h *Handler) TogglePass(w http.ResponseWriter, r *http.Request) {
	s, ok := h.openSession(w, r)
	if !ok {
		return
	}
	n, err := strconv.Atoi(chi.URLParam(r, "n"))
	if err != nil {
		writeError(w, "toggle pass", apperr.ErrNotFound)
		return
	}
	pass, err := s.TogglePass(n)
	if err != nil {
		writeError(w, "toggle pass", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"pass": pass})
}
