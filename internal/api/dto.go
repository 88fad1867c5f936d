package api

import (
	"github.com/starford/stepsheet/internal/docservice"
	"github.com/starford/stepsheet/internal/session"
	"github.com/starford/stepsheet/internal/workspace"
)

// CreateFolderRequest is the request body for creating or renaming a folder.
type CreateFolderRequest struct {
	Name string `json:"name" example:"Smoke tests" validate:"required"`
}

// CreateFileRequest is the request body for creating a file.
type CreateFileRequest struct {
	FolderID string `json:"folderId" validate:"required"`
	Name     string `json:"name" example:"login.json" validate:"required"`
	Content  string `json:"content" example:"{\"title\":\"Login\",\"steps\":[]}"`
}

// UpdateFileRequest is the request body for replacing file content.
type UpdateFileRequest struct {
	Content string `json:"content" validate:"required"`
}

// PatchFileRequest renames and/or moves a file.
type PatchFileRequest struct {
	Name     *string `json:"name,omitempty"`
	FolderID *string `json:"folderId,omitempty"`
}

// FileDetail is the full file response type (aliased from the domain layer).
type FileDetail = docservice.FileDetail

// FileListItem is a lightweight item in a list response (aliased from the domain layer).
type FileListItem = docservice.FileListItem

// FileListResponse wraps file listings.
type FileListResponse struct {
	Files []FileListItem `json:"files" validate:"required"`
	Total int            `json:"total" example:"42" validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []docservice.SearchResult `json:"results" validate:"required"`
}

// StepResponse is one step of a file.
type StepResponse struct {
	Index int    `json:"index"`
	Start int    `json:"start"`
	End   int    `json:"end"`
	Text  string `json:"text"`
}

// ImportResponse lists the files created by an import.
type ImportResponse struct {
	Imported int              `json:"imported"`
	Files    []workspace.File `json:"files"`
}

// SessionView is the state of an open editing session.
type SessionView = session.View
