// Package docservice coordinates the workspace tracker, the open editing
// sessions and the package exchange for the HTTP and MCP front ends.
package docservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/starford/stepsheet/internal/apperr"
	"github.com/starford/stepsheet/internal/checklist"
	"github.com/starford/stepsheet/internal/checksum"
	"github.com/starford/stepsheet/internal/exchange"
	"github.com/starford/stepsheet/internal/find"
	"github.com/starford/stepsheet/internal/session"
	"github.com/starford/stepsheet/internal/steps"
	"github.com/starford/stepsheet/internal/textpos"
	"github.com/starford/stepsheet/internal/workspace"
)

// FileDetail is the full representation of a file.
type FileDetail struct {
	workspace.File
	Title    string `json:"title"`
	Checksum string `json:"checksum"`
	Open     bool   `json:"open"`
}

// FileListItem is a lightweight item in a list response.
type FileListItem struct {
	ID        string    `json:"id"`
	FolderID  string    `json:"folderId"`
	Name      string    `json:"name"`
	Title     string    `json:"title"`
	Checksum  string    `json:"checksum"`
	Steps     int       `json:"steps"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SearchResult is one file containing the query.
type SearchResult struct {
	FileID  string       `json:"fileId"`
	Name    string       `json:"name"`
	Matches []find.Match `json:"matches"`
	Snippet string       `json:"snippet"`
}

// Service is the application layer shared by every front end.
type Service struct {
	tracker  *workspace.Tracker
	sessions *session.Manager
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates a service over the tracker and session manager.
func NewService(tracker *workspace.Tracker, sessions *session.Manager, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{tracker: tracker, sessions: sessions, logger: logger, now: time.Now}
}

// Tracker returns the underlying workspace tracker.
func (s *Service) Tracker() *workspace.Tracker { return s.tracker }

// Sessions returns the session manager.
func (s *Service) Sessions() *session.Manager { return s.sessions }

// Workspace returns a snapshot of the workspace.
func (s *Service) Workspace(_ context.Context) workspace.Workspace {
	return s.tracker.Snapshot()
}

// ListFiles returns the files of folderID, or every file when it is empty.
func (s *Service) ListFiles(_ context.Context, folderID string) ([]FileListItem, error) {
	ws := s.tracker.Snapshot()
	files := ws.Files
	if folderID != "" {
		if _, ok := ws.Folder(folderID); !ok {
			return nil, fmt.Errorf("folder %s: %w", folderID, apperr.ErrNotFound)
		}
		files = ws.FilesIn(folderID)
	}
	items := make([]FileListItem, len(files))
	for i, f := range files {
		title, _ := steps.Title(f.Content)
		items[i] = FileListItem{
			ID:        f.ID,
			FolderID:  f.FolderID,
			Name:      f.Name,
			Title:     title,
			Checksum:  checksum.String(f.Content),
			Steps:     steps.Count(f.Content),
			UpdatedAt: f.UpdatedAt,
		}
	}
	return items, nil
}

// GetFile returns one file.
func (s *Service) GetFile(_ context.Context, id string) (*FileDetail, error) {
	f, err := s.tracker.GetFile(id)
	if err != nil {
		return nil, err
	}
	return s.buildDetail(f), nil
}

// CreateFile adds a file to a folder.
func (s *Service) CreateFile(_ context.Context, folderID, name, content string) (*FileDetail, error) {
	f, err := s.tracker.CreateFile(folderID, workspace.NewFile{Name: name, Content: content})
	if err != nil {
		return nil, err
	}
	return s.buildDetail(f), nil
}

// UpdateFile replaces the content of a file with optimistic concurrency. An
// open session receives the text so its caret, find state and history stay
// consistent.
func (s *Service) UpdateFile(ctx context.Context, id, content, ifMatch string) (*FileDetail, error) {
	if sess, ok := s.sessions.Get(id); ok {
		if err := sess.SetTextIfMatch(content, ifMatch); err != nil {
			return nil, err
		}
		return s.GetFile(ctx, id)
	}
	f, err := s.tracker.UpdateFile(id, content, ifMatch)
	if err != nil {
		return nil, err
	}
	return s.buildDetail(f), nil
}

// RenameFile renames a file in place.
func (s *Service) RenameFile(_ context.Context, id, name string) (*FileDetail, error) {
	f, err := s.tracker.RenameFile(id, name)
	if err != nil {
		return nil, err
	}
	return s.buildDetail(f), nil
}

// MoveFile moves a file to another folder.
func (s *Service) MoveFile(_ context.Context, id, folderID string) (*FileDetail, error) {
	f, err := s.tracker.MoveFile(id, folderID)
	if err != nil {
		return nil, err
	}
	return s.buildDetail(f), nil
}

// DeleteFile moves a file to the deletion history, then closes its session.
// Deleting first means a concurrent Open either fails or yields a session
// that is closed here.
func (s *Service) DeleteFile(ctx context.Context, id string) error {
	if err := s.tracker.DeleteFile(id); err != nil {
		return err
	}
	s.closeSession(ctx, id)
	return nil
}

// RestoreFile brings back the most recently deleted file.
func (s *Service) RestoreFile(_ context.Context) (*FileDetail, error) {
	f, ok := s.tracker.RestoreLastDeletedFile()
	if !ok {
		return nil, fmt.Errorf("deleted file: %w", apperr.ErrNotFound)
	}
	return s.buildDetail(f), nil
}

// CreateFolder adds a folder.
func (s *Service) CreateFolder(_ context.Context, name string) (workspace.Folder, error) {
	return s.tracker.CreateFolder(name)
}

// RenameFolder renames a folder.
func (s *Service) RenameFolder(_ context.Context, id, name string) (workspace.Folder, error) {
	return s.tracker.RenameFolder(id, name)
}

// DeleteFolder deletes a folder, then closes sessions on files that no longer
// exist.
func (s *Service) DeleteFolder(ctx context.Context, id string) error {
	if err := s.tracker.DeleteFolder(id); err != nil {
		return err
	}
	for _, fileID := range s.sessions.List() {
		if _, err := s.tracker.GetFile(fileID); errors.Is(err, apperr.ErrNotFound) {
			s.closeSession(ctx, fileID)
		}
	}
	return nil
}

func (s *Service) closeSession(ctx context.Context, id string) {
	if err := s.sessions.Close(ctx, id); err != nil {
		s.logger.Warn("close session after delete failed", slog.String("file_id", id), slog.String("error", err.Error()))
	}
}

// Status evaluates a file as a checklist.
func (s *Service) Status(_ context.Context, id string) (checklist.Status, error) {
	if sess, ok := s.sessions.Get(id); ok {
		return sess.Status()
	}
	f, err := s.tracker.GetFile(id)
	if err != nil {
		return checklist.Status{}, err
	}
	return checklist.Evaluate(f.Content, s.logger), nil
}

// Step returns the text and span of step n of a file.
func (s *Service) Step(_ context.Context, id string, n int) (string, steps.Bounds, error) {
	f, err := s.tracker.GetFile(id)
	if err != nil {
		return "", steps.Bounds{}, err
	}
	b, ok := steps.FindBounds(f.Content, n)
	if !ok {
		return "", steps.Bounds{}, fmt.Errorf("step %d: %w", n, apperr.ErrNotFound)
	}
	return f.Content[b.Start:b.End], b, nil
}

// Search returns the files whose content contains query.
func (s *Service) Search(_ context.Context, query string, limit int) []SearchResult {
	if query == "" {
		return nil
	}
	var out []SearchResult
	for _, f := range s.tracker.Snapshot().Files {
		matches := find.FindAll(f.Content, query)
		if len(matches) == 0 {
			continue
		}
		out = append(out, SearchResult{
			FileID:  f.ID,
			Name:    f.Name,
			Matches: matches,
			Snippet: snippet(f.Content, matches[0]),
		})
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// ReplaceAll replaces query in a file through its session, opening one
// when needed. It returns the number of replacements.
func (s *Service) ReplaceAll(_ context.Context, id, query, replacement string) (int, error) {
	sess, err := s.sessions.Open(id)
	if err != nil {
		return 0, err
	}
	q := query
	if _, err := sess.OpenFind(find.OpenConfig{ShowReplace: true, Query: &q}); err != nil {
		return 0, err
	}
	if _, err := sess.SetReplaceText(replacement); err != nil {
		return 0, err
	}
	return sess.ReplaceAll()
}

// Export builds an export package.
func (s *Service) Export(_ context.Context, mode exchange.Mode, id string) (exchange.Package, error) {
	return exchange.Export(s.tracker.Snapshot(), mode, id, s.now())
}

// Import applies an export package.
func (s *Service) Import(_ context.Context, payload []byte) ([]workspace.File, error) {
	files, err := exchange.Import(s.tracker, payload)
	if err != nil {
		return nil, err
	}
	s.logger.Info("package imported", slog.Int("files", len(files)))
	return files, nil
}

// Save flushes pending workspace changes.
func (s *Service) Save(ctx context.Context) error {
	return s.tracker.Flush(ctx)
}

func (s *Service) buildDetail(f workspace.File) *FileDetail {
	title, _ := steps.Title(f.Content)
	_, open := s.sessions.Get(f.ID)
	return &FileDetail{
		File:     f,
		Title:    title,
		Checksum: checksum.String(f.Content),
		Open:     open,
	}
}

func snippet(text string, m find.Match) string {
	const pad = 30
	start := textpos.SnapRune(text, max(m.Start-pad, 0))
	end := textpos.SnapRune(text, min(m.End+pad, len(text)))
	out := strings.ReplaceAll(text[start:end], "\n", " ")
	if start > 0 {
		out = "..." + out
	}
	if end < len(text) {
		out += "..."
	}
	return out
}
