// Package apperr defines sentinel errors shared across packages. Callers wrap
// them with context and match with errors.Is.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidImport = errors.New("invalid import")
	ErrNoActiveMatch = errors.New("no active match")
	ErrInvalidInput  = errors.New("invalid input")
)
