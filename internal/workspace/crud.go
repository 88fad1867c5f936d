package workspace

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/starford/stepsheet/internal/apperr"
	"github.com/starford/stepsheet/internal/checksum"
)

// NewFile is the input for creating or importing a file.
type NewFile struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("name is required: %w", apperr.ErrInvalidInput)
	}
	if strings.ContainsAny(name, "/\\") {
		return "", fmt.Errorf("name %q contains a path separator: %w", name, apperr.ErrInvalidInput)
	}
	return name, nil
}

// CreateFolder adds a folder. Folder names are unique.
func (t *Tracker) CreateFolder(name string) (Folder, error) {
	name, err := cleanName(name)
	if err != nil {
		return Folder{}, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.ws.folderByName(name); ok {
		return Folder{}, fmt.Errorf("folder %q: %w", name, apperr.ErrAlreadyExists)
	}
	f := t.newFolderLocked(name)
	t.touchLocked()
	return f, nil
}

func (t *Tracker) newFolderLocked(name string) Folder {
	now := t.now()
	f := Folder{ID: uuid.NewString(), Name: name, CreatedAt: now, UpdatedAt: now}
	t.ws.Folders = append(t.ws.Folders, f)
	return f
}

// RenameFolder renames a folder.
func (t *Tracker) RenameFolder(id, name string) (Folder, error) {
	name, err := cleanName(name)
	if err != nil {
		return Folder{}, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	i := t.ws.folderIndex(id)
	if i < 0 {
		return Folder{}, fmt.Errorf("folder %s: %w", id, apperr.ErrNotFound)
	}
	if other, ok := t.ws.folderByName(name); ok && other.ID != id {
		return Folder{}, fmt.Errorf("folder %q: %w", name, apperr.ErrAlreadyExists)
	}
	t.ws.Folders[i].Name = name
	t.ws.Folders[i].UpdatedAt = t.now()
	t.touchLocked()
	return t.ws.Folders[i], nil
}

// DeleteFolder removes a folder. Its files go to the deleted-file history,
// where they stay unrestorable unless a folder with the same id returns.
func (t *Tracker) DeleteFolder(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := t.ws.folderIndex(id)
	if i < 0 {
		return fmt.Errorf("folder %s: %w", id, apperr.ErrNotFound)
	}
	for j := 0; j < len(t.ws.Files); {
		if t.ws.Files[j].FolderID == id {
			t.deleteFileAtLocked(j)
			continue
		}
		j++
	}
	t.ws.Folders = slices.Delete(t.ws.Folders, i, i+1)
	t.ws.UIState.ExpandedFolders = slices.DeleteFunc(t.ws.UIState.ExpandedFolders,
		func(f string) bool { return f == id })
	t.touchLocked()
	return nil
}

// CreateFile adds a file to a folder. File names are unique per folder.
func (t *Tracker) CreateFile(folderID string, nf NewFile) (File, error) {
	name, err := cleanName(nf.Name)
	if err != nil {
		return File{}, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ws.folderIndex(folderID) < 0 {
		return File{}, fmt.Errorf("folder %s: %w", folderID, apperr.ErrNotFound)
	}
	if t.ws.fileNameTaken(folderID, name, "") {
		return File{}, fmt.Errorf("file %q: %w", name, apperr.ErrAlreadyExists)
	}
	f := t.newFileLocked(folderID, name, nf.Content)
	t.touchLocked()
	return f, nil
}

func (t *Tracker) newFileLocked(folderID, name, content string) File {
	now := t.now()
	f := File{
		ID:        uuid.NewString(),
		FolderID:  folderID,
		Name:      name,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	t.ws.Files = append(t.ws.Files, f)
	return f
}

// GetFile returns a file by id.
func (t *Tracker) GetFile(id string) (File, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	f, ok := t.ws.File(id)
	if !ok {
		return File{}, fmt.Errorf("file %s: %w", id, apperr.ErrNotFound)
	}
	return f, nil
}

// Edit replaces a file's content. It is the path every document edit takes.
func (t *Tracker) Edit(id, content string) (File, error) {
	return t.UpdateFile(id, content, "")
}

// UpdateFile replaces a file's content if ifMatch is empty or equals the
// checksum of the current content.
func (t *Tracker) UpdateFile(id, content, ifMatch string) (File, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := t.ws.fileIndex(id)
	if i < 0 {
		return File{}, fmt.Errorf("file %s: %w", id, apperr.ErrNotFound)
	}
	if !checksum.Matches(t.ws.Files[i].Content, ifMatch) {
		return File{}, fmt.Errorf("file %s: content changed: %w", id, apperr.ErrConflict)
	}
	if t.ws.Files[i].Content == content {
		return t.ws.Files[i], nil
	}
	t.ws.Files[i].Content = content
	t.ws.Files[i].UpdatedAt = t.now()
	t.touchLocked()
	return t.ws.Files[i], nil
}

// RenameFile renames a file within its folder.
func (t *Tracker) RenameFile(id, name string) (File, error) {
	name, err := cleanName(name)
	if err != nil {
		return File{}, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	i := t.ws.fileIndex(id)
	if i < 0 {
		return File{}, fmt.Errorf("file %s: %w", id, apperr.ErrNotFound)
	}
	if t.ws.fileNameTaken(t.ws.Files[i].FolderID, name, id) {
		return File{}, fmt.Errorf("file %q: %w", name, apperr.ErrAlreadyExists)
	}
	t.ws.Files[i].Name = name
	t.ws.Files[i].UpdatedAt = t.now()
	t.touchLocked()
	return t.ws.Files[i], nil
}

// MoveFile moves a file to another folder.
func (t *Tracker) MoveFile(id, folderID string) (File, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := t.ws.fileIndex(id)
	if i < 0 {
		return File{}, fmt.Errorf("file %s: %w", id, apperr.ErrNotFound)
	}
	if t.ws.folderIndex(folderID) < 0 {
		return File{}, fmt.Errorf("folder %s: %w", folderID, apperr.ErrNotFound)
	}
	if t.ws.fileNameTaken(folderID, t.ws.Files[i].Name, id) {
		return File{}, fmt.Errorf("file %q: %w", t.ws.Files[i].Name, apperr.ErrAlreadyExists)
	}
	t.ws.Files[i].FolderID = folderID
	t.ws.Files[i].UpdatedAt = t.now()
	t.touchLocked()
	return t.ws.Files[i], nil
}

// DeleteFile removes a file and records it in the deleted-file history.
func (t *Tracker) DeleteFile(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := t.ws.fileIndex(id)
	if i < 0 {
		return fmt.Errorf("file %s: %w", id, apperr.ErrNotFound)
	}
	t.deleteFileAtLocked(i)
	t.touchLocked()
	return nil
}

func (t *Tracker) deleteFileAtLocked(i int) {
	f := t.ws.Files[i]
	t.deleted = append(t.deleted, DeletedFile{File: f, Index: i})
	if len(t.deleted) > t.deletedLimit {
		t.deleted = t.deleted[len(t.deleted)-t.deletedLimit:]
	}
	t.ws.Files = slices.Delete(t.ws.Files, i, i+1)
	if t.ws.UIState.ActiveFileID == f.ID {
		t.ws.UIState.ActiveFileID = ""
	}
	t.logger.Debug("file deleted",
		slog.String("file_id", f.ID),
		slog.Int("history", len(t.deleted)))
}

// RestoreLastDeletedFile reinserts the most recently deleted file whose
// folder still exists. Entries that cannot be restored are dropped. It
// returns false when the history runs out.
func (t *Tracker) RestoreLastDeletedFile() (File, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for len(t.deleted) > 0 {
		n := len(t.deleted) - 1
		entry := t.deleted[n]
		t.deleted = t.deleted[:n]

		f := entry.File
		if t.ws.folderIndex(f.FolderID) < 0 || t.ws.fileIndex(f.ID) >= 0 {
			t.logger.Debug("skipping unrestorable file", slog.String("file_id", f.ID))
			continue
		}
		if t.ws.fileNameTaken(f.FolderID, f.Name, f.ID) {
			f.Name = t.freeNameLocked(f.FolderID, f.Name)
		}
		idx := min(max(entry.Index, 0), len(t.ws.Files))
		t.ws.Files = slices.Insert(t.ws.Files, idx, f)
		t.touchLocked()
		return f, true
	}
	return File{}, false
}

func (t *Tracker) freeNameLocked(folderID, name string) string {
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s (%d)", name, n)
		if !t.ws.fileNameTaken(folderID, candidate, "") {
			return candidate
		}
	}
}

// DeletedCount returns the size of the deleted-file history.
func (t *Tracker) DeletedCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.deleted)
}

// SetActiveFile records the file shown in the editor. An empty id clears it.
func (t *Tracker) SetActiveFile(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id != "" && t.ws.fileIndex(id) < 0 {
		return fmt.Errorf("file %s: %w", id, apperr.ErrNotFound)
	}
	if t.ws.UIState.ActiveFileID == id {
		return nil
	}
	t.ws.UIState.ActiveFileID = id
	t.touchLocked()
	return nil
}

// ActiveFileID returns the file shown in the editor.
func (t *Tracker) ActiveFileID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ws.UIState.ActiveFileID
}

// ImportGroup is a set of files destined for one folder, named by folder name.
type ImportGroup struct {
	Folder string    `json:"folder"`
	Files  []NewFile `json:"files"`
}

// ImportFiles adds each group's files to the folder of that name, creating
// folders as needed. Either every file is added or none is.
func (t *Tracker) ImportFiles(groups ...ImportGroup) ([]File, error) {
	merged := make(map[string][]NewFile)
	var order []string
	for _, g := range groups {
		folder, err := cleanName(g.Folder)
		if err != nil {
			return nil, fmt.Errorf("folder: %w", err)
		}
		if _, ok := merged[folder]; !ok {
			order = append(order, folder)
		}
		for i, nf := range g.Files {
			name, err := cleanName(nf.Name)
			if err != nil {
				return nil, fmt.Errorf("file %d of %q: %w", i, folder, err)
			}
			nf.Name = name
			merged[folder] = append(merged[folder], nf)
		}
	}
	for _, folder := range order {
		seen := make(map[string]bool)
		for _, nf := range merged[folder] {
			if seen[nf.Name] {
				return nil, fmt.Errorf("file %q listed twice in %q: %w", nf.Name, folder, apperr.ErrAlreadyExists)
			}
			seen[nf.Name] = true
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, folder := range order {
		existing, ok := t.ws.folderByName(folder)
		if !ok {
			continue
		}
		for _, nf := range merged[folder] {
			if t.ws.fileNameTaken(existing.ID, nf.Name, "") {
				return nil, fmt.Errorf("file %q in %q: %w", nf.Name, folder, apperr.ErrAlreadyExists)
			}
		}
	}

	var out []File
	for _, folder := range order {
		f, ok := t.ws.folderByName(folder)
		if !ok {
			f = t.newFolderLocked(folder)
		}
		for _, nf := range merged[folder] {
			out = append(out, t.newFileLocked(f.ID, nf.Name, nf.Content))
		}
	}
	t.touchLocked()
	t.logger.Info("files imported",
		slog.Int("folders", len(order)),
		slog.Int("files", len(out)))
	return out, nil
}
