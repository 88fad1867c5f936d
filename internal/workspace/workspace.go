// Package workspace holds the persisted folders and files of checklist
// documents and tracks their dirty, autosave and deletion state.
package workspace

import (
	"slices"
	"time"
)

// Version is the persisted record format version.
const Version = 1

// Folder groups files.
type Folder struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// File is one checklist document. Content is the raw, possibly invalid, text.
type File struct {
	ID        string    `json:"id"`
	FolderID  string    `json:"folderId"`
	Name      string    `json:"name"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// UIState is view state persisted with the workspace.
type UIState struct {
	ActiveFileID    string   `json:"activeFileId,omitempty"`
	ExpandedFolders []string `json:"expandedFolders,omitempty"`
}

// Workspace is the persisted record.
type Workspace struct {
	Version int      `json:"version"`
	Folders []Folder `json:"folders"`
	Files   []File   `json:"files"`
	UIState UIState  `json:"uiState"`
}

// DeletedFile is a deletion history entry: the file as it was and its
// position in the file list.
type DeletedFile struct {
	File  File `json:"file"`
	Index int  `json:"index"`
}

// Empty returns a workspace with no folders or files.
func Empty() Workspace {
	return Workspace{Version: Version, Folders: []Folder{}, Files: []File{}}
}

// Clone returns a deep copy.
func (w Workspace) Clone() Workspace {
	out := w
	out.Folders = slices.Clone(w.Folders)
	out.Files = slices.Clone(w.Files)
	out.UIState.ExpandedFolders = slices.Clone(w.UIState.ExpandedFolders)
	if out.Folders == nil {
		out.Folders = []Folder{}
	}
	if out.Files == nil {
		out.Files = []File{}
	}
	return out
}

// Folder returns the folder with id.
func (w Workspace) Folder(id string) (Folder, bool) {
	i := w.folderIndex(id)
	if i < 0 {
		return Folder{}, false
	}
	return w.Folders[i], true
}

// File returns the file with id.
func (w Workspace) File(id string) (File, bool) {
	i := w.fileIndex(id)
	if i < 0 {
		return File{}, false
	}
	return w.Files[i], true
}

// FilesIn returns the files of a folder in list order.
func (w Workspace) FilesIn(folderID string) []File {
	var out []File
	for _, f := range w.Files {
		if f.FolderID == folderID {
			out = append(out, f)
		}
	}
	return out
}

func (w Workspace) folderIndex(id string) int {
	return slices.IndexFunc(w.Folders, func(f Folder) bool { return f.ID == id })
}

func (w Workspace) fileIndex(id string) int {
	return slices.IndexFunc(w.Files, func(f File) bool { return f.ID == id })
}

func (w Workspace) folderByName(name string) (Folder, bool) {
	i := slices.IndexFunc(w.Folders, func(f Folder) bool { return f.Name == name })
	if i < 0 {
		return Folder{}, false
	}
	return w.Folders[i], true
}

func (w Workspace) fileNameTaken(folderID, name, exceptID string) bool {
	return slices.ContainsFunc(w.Files, func(f File) bool {
		return f.FolderID == folderID && f.Name == name && f.ID != exceptID
	})
}
