package api

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/stepsheet/internal/docservice"
	"github.com/starford/stepsheet/internal/exchange"
)

// Handler holds API route handlers.
type Handler struct {
	svc *docservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *docservice.Service) *Handler {
	return &Handler{svc: svc}
}

// GetWorkspace handles GET /api/workspace.
//
//	@Summary		Get the full workspace
//	@Tags			workspace
//	@Produce		json
//	@Success		200	{object}	workspace.Workspace
//	@Security		BearerAuth
//	@Router			/workspace [get]
func (h *Handler) GetWorkspace(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Workspace(r.Context()))
}

// SaveWorkspace handles POST /api/workspace/save.
//
//	@Summary		Persist pending changes now
//	@Tags			workspace
//	@Success		204	"Saved"
//	@Security		BearerAuth
//	@Router			/workspace/save [post]
func (h *Handler) SaveWorkspace(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Save(r.Context()); err != nil {
		writeError(w, "save workspace", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateFolder handles POST /api/folders.
//
//	@Summary		Create a folder
//	@Tags			folders
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateFolderRequest	true	"Folder to create"
//	@Success		201		{object}	workspace.Folder
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/folders [post]
func (h *Handler) CreateFolder(w http.ResponseWriter, r *http.Request) {
	var req CreateFolderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	folder, err := h.svc.CreateFolder(r.Context(), req.Name)
	if err != nil {
		writeError(w, "create folder", err)
		return
	}
	writeJSON(w, http.StatusCreated, folder)
}

// RenameFolder handles PATCH /api/folders/{id}.
//
//	@Summary		Rename a folder
//	@Tags			folders
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"Folder id"
//	@Param			body	body		CreateFolderRequest	true	"New name"
//	@Success		200		{object}	workspace.Folder
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/folders/{id} [patch]
func (h *Handler) RenameFolder(w http.ResponseWriter, r *http.Request) {
	var req CreateFolderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	folder, err := h.svc.RenameFolder(r.Context(), chi.URLParam(r, "id"), req.Name)
	if err != nil {
		writeError(w, "rename folder", err)
		return
	}
	writeJSON(w, http.StatusOK, folder)
}

// DeleteFolder handles DELETE /api/folders/{id}.
//
//	@Summary		Delete a folder and its files
//	@Tags			folders
//	@Param			id	path	string	true	"Folder id"
//	@Success		204	"Folder deleted"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/folders/{id} [delete]
func (h *Handler) DeleteFolder(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteFolder(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, "delete folder", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListFiles handles GET /api/files.
//
//	@Summary		List files, optionally within one folder
//	@Tags			files
//	@Produce		json
//	@Param			folder	query		string	false	"Folder id"
//	@Success		200		{object}	FileListResponse
//	@Security		BearerAuth
//	@Router			/files [get]
func (h *Handler) ListFiles(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListFiles(r.Context(), r.URL.Query().Get("folder"))
	if err != nil {
		writeError(w, "list files", err)
		return
	}
	writeJSON(w, http.StatusOK, FileListResponse{Files: items, Total: len(items)})
}

// GetFile handles GET /api/files/{id}.
//
//	@Summary		Get a single file
//	@Tags			files
//	@Produce		json
//	@Param			id	path		string	true	"File id"
//	@Success		200	{object}	FileDetail
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/files/{id} [get]
func (h *Handler) GetFile(w http.ResponseWriter, r *http.Request) {
	file, err := h.svc.GetFile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get file", err)
		return
	}
	w.Header().Set("ETag", `"`+file.Checksum+`"`)
	writeJSON(w, http.StatusOK, file)
}

// CreateFile handles POST /api/files.
//
//	@Summary		Create a new file
//	@Tags			files
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateFileRequest	true	"File to create"
//	@Success		201		{object}	FileDetail
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/files [post]
func (h *Handler) CreateFile(w http.ResponseWriter, r *http.Request) {
	var req CreateFileRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.FolderID == "" || req.Name == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("folderId and name are required"))
		return
	}
	file, err := h.svc.CreateFile(r.Context(), req.FolderID, req.Name, req.Content)
	if err != nil {
		writeError(w, "create file", err)
		return
	}
	writeJSON(w, http.StatusCreated, file)
}

// UpdateFile handles PUT /api/files/{id}.
//
//	@Summary		Replace file content with optimistic concurrency
//	@Tags			files
//	@Accept			json
//	@Produce		json
//	@Param			id			path		string				true	"File id"
//	@Param			If-Match	header		string				false	"SHA-256 checksum for optimistic concurrency"
//	@Param			body		body		UpdateFileRequest	true	"Updated content"
//	@Success		200			{object}	FileDetail
//	@Failure		404			{object}	errResponse
//	@Failure		409			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/files/{id} [put]
func (h *Handler) UpdateFile(w http.ResponseWriter, r *http.Request) {
	var req UpdateFileRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	// Strip surrounding quotes if present (standard ETag format).
	ifMatch := strings.Trim(r.Header.Get("If-Match"), `"`)

	file, err := h.svc.UpdateFile(r.Context(), chi.URLParam(r, "id"), req.Content, ifMatch)
	if err != nil {
		writeError(w, "update file", err)
		return
	}
	w.Header().Set("ETag", `"`+file.Checksum+`"`)
	writeJSON(w, http.StatusOK, file)
}

// PatchFile handles PATCH /api/files/{id}.
//
//	@Summary		Rename and/or move a file
//	@Tags			files
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"File id"
//	@Param			body	body		PatchFileRequest	true	"Changes"
//	@Success		200		{object}	FileDetail
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/files/{id} [patch]
func (h *Handler) PatchFile(w http.ResponseWriter, r *http.Request) {
	var req PatchFileRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	var (
		file *FileDetail
		err  error
	)
	if req.FolderID != nil {
		if file, err = h.svc.MoveFile(r.Context(), id, *req.FolderID); err != nil {
			writeError(w, "move file", err)
			return
		}
	}
	if req.Name != nil {
		if file, err = h.svc.RenameFile(r.Context(), id, *req.Name); err != nil {
			writeError(w, "rename file", err)
			return
		}
	}
	if file == nil {
		writeJSON(w, http.StatusBadRequest, errorBody("name or folderId is required"))
		return
	}
	writeJSON(w, http.StatusOK, file)
}

// DeleteFile handles DELETE /api/files/{id}.
//
//	@Summary		Delete a file
//	@Tags			files
//	@Param			id	path	string	true	"File id"
//	@Success		204	"File deleted"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/files/{id} [delete]
func (h *Handler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteFile(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, "delete file", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RestoreFile handles POST /api/files/restore.
//
//	@Summary		Restore the most recently deleted file
//	@Tags			files
//	@Produce		json
//	@Success		200	{object}	FileDetail
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/files/restore [post]
func (h *Handler) RestoreFile(w http.ResponseWriter, r *http.Request) {
	file, err := h.svc.RestoreFile(r.Context())
	if err != nil {
		writeError(w, "restore file", err)
		return
	}
	writeJSON(w, http.StatusOK, file)
}

// FileStatus handles GET /api/files/{id}/status.
//
//	@Summary		Evaluate a file as a checklist or locate its JSON error
//	@Tags			files
//	@Produce		json
//	@Param			id	path		string	true	"File id"
//	@Success		200	{object}	checklist.Status
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/files/{id}/status [get]
func (h *Handler) FileStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Status(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "file status", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// GetStep handles GET /api/files/{id}/steps/{n}.
//
//	@Summary		Get the text span of one step
//	@Tags			files
//	@Produce		json
//	@Param			id	path		string	true	"File id"
//	@Param			n	path		int		true	"Step index"
//	@Success		200	{object}	StepResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/files/{id}/steps/{n} [get]
func (h *Handler) GetStep(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(chi.URLParam(r, "n"))
	if err != nil || n < 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("step index must be a non-negative integer"))
		return
	}
	text, b, err := h.svc.Step(r.Context(), chi.URLParam(r, "id"), n)
	if err != nil {
		writeError(w, "get step", err)
		return
	}
	writeJSON(w, http.StatusOK, StepResponse{Index: n, Start: b.Start, End: b.End, Text: text})
}

// Search handles GET /api/search.
//
//	@Summary		Find a literal string across files
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max files"
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
	results := h.svc.Search(r.Context(), q, limit)
	if results == nil {
		results = []docservice.SearchResult{}
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// Export handles GET /api/export.
//
//	@Summary		Export the workspace, a folder or a file
//	@Tags			exchange
//	@Produce		json
//	@Param			mode	query		string	false	"Export mode"	Enums(workspace, folder, file)
//	@Param			id		query		string	false	"Folder or file id"
//	@Success		200		{object}	exchange.Package
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/export [get]
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	pkg, err := h.svc.Export(r.Context(), exchange.Mode(q.Get("mode")), q.Get("id"))
	if err != nil {
		writeError(w, "export", err)
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="stepsheet-export.json"`)
	writeJSON(w, http.StatusOK, pkg)
}

// Import handles POST /api/import.
//
//	@Summary		Import an export package, all or nothing
//	@Tags			exchange
//	@Accept			json
//	@Produce		json
//	@Param			body	body		exchange.Package	true	"Package"
//	@Success		201		{object}	ImportResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/import [post]
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read body"))
		return
	}
	files, err := h.svc.Import(r.Context(), payload)
	if err != nil {
		writeError(w, "import", err)
		return
	}
	writeJSON(w, http.StatusCreated, ImportResponse{Imported: len(files), Files: files})
}
