package workspace

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/starford/stepsheet/internal/apperr"
	"github.com/starford/stepsheet/internal/checksum"
	"github.com/starford/stepsheet/internal/schedule"
	"github.com/starford/stepsheet/internal/storage"
)

type memStore struct {
	data map[string][]byte
	puts int
	fail error
}

func newMemStore() *memStore { return &memStore{data: map[string][]byte{}} }

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := m.data[key]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return v, nil
}

func (m *memStore) Put(_ context.Context, key string, value []byte) error {
	if m.fail != nil {
		return m.fail
	}
	m.puts++
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *memStore) Close() error { return nil }

func newTracker(t *testing.T, store storage.Provider, opts ...Option) (*Tracker, *schedule.Manual) {
	t.Helper()
	sched := schedule.NewManual()
	opts = append([]Option{WithScheduler(sched)}, opts...)
	tr, err := Load(context.Background(), store, opts...)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return tr, sched
}

func seed(t *testing.T, tr *Tracker) (Folder, File) {
	t.Helper()
	folder, err := tr.CreateFolder("Smoke")
	if err != nil {
		t.Fatal(err)
	}
	file, err := tr.CreateFile(folder.ID, NewFile{Name: "login.json", Content: `{"steps":[]}`})
	if err != nil {
		t.Fatal(err)
	}
	return folder, file
}

func TestLoad_EmptyStore(t *testing.T) {
	tr, _ := newTracker(t, newMemStore())
	ws := tr.Snapshot()
	if ws.Version != Version || len(ws.Folders) != 0 || len(ws.Files) != 0 {
		t.Errorf("workspace = %+v", ws)
	}
	if tr.IsDirty() {
		t.Error("fresh tracker should not be dirty")
	}
}

func TestEdit_DebouncesAutosave(t *testing.T) {
	store := newMemStore()
	tr, sched := newTracker(t, store)
	_, file := seed(t, tr)
	sched.Advance(time.Second)
	store.puts = 0

	for _, content := range []string{"a", "ab", "abc"} {
		if _, err := tr.Edit(file.ID, content); err != nil {
			t.Fatal(err)
		}
		sched.Advance(500 * time.Millisecond)
	}
	if store.puts != 0 {
		t.Fatalf("saved %d times while still typing", store.puts)
	}
	if !tr.IsDirty() || !tr.SavePending() {
		t.Fatal("expected dirty with a pending save")
	}

	sched.Advance(300 * time.Millisecond)
	if store.puts != 1 {
		t.Fatalf("puts = %d, want 1", store.puts)
	}
	if tr.IsDirty() || tr.SavePending() {
		t.Error("expected clean after autosave")
	}

	var ws Workspace
	if err := json.Unmarshal(store.data[storage.WorkspaceKey], &ws); err != nil {
		t.Fatal(err)
	}
	if f, _ := ws.File(file.ID); f.Content != "abc" {
		t.Errorf("persisted content = %q", f.Content)
	}
}

func TestFlush_CancelsTimer(t *testing.T) {
	store := newMemStore()
	tr, sched := newTracker(t, store)
	seed(t, tr)

	if err := tr.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}
	if store.puts != 1 || tr.IsDirty() {
		t.Fatalf("puts = %d dirty = %v", store.puts, tr.IsDirty())
	}
	sched.Advance(time.Second)
	if store.puts != 1 {
		t.Errorf("cancelled autosave still ran: puts = %d", store.puts)
	}
}

func TestFlush_SurfacesErrors(t *testing.T) {
	store := newMemStore()
	var results []SaveResult
	tr, _ := newTracker(t, store, WithOnSaved(func(r SaveResult) { results = append(results, r) }))
	seed(t, tr)

	store.fail = errors.New("disk full")
	if err := tr.Flush(context.Background()); err == nil {
		t.Fatal("expected flush error")
	}
	if !tr.IsDirty() {
		t.Error("failed save must leave the workspace dirty")
	}
	if len(results) != 1 || results[0].Err == nil {
		t.Errorf("results = %+v", results)
	}

	store.fail = nil
	if err := tr.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}
	if tr.IsDirty() {
		t.Error("expected clean after retry")
	}
}

func TestReloadRoundTrip(t *testing.T) {
	fs, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	tr, _ := newTracker(t, fs)
	folder, file := seed(t, tr)
	if err := tr.SetActiveFile(file.ID); err != nil {
		t.Fatal(err)
	}
	if err := tr.Close(context.Background()); err != nil {
		t.Fatal(err)
	}

	again, _ := newTracker(t, fs)
	ws := again.Snapshot()
	if _, ok := ws.Folder(folder.ID); !ok {
		t.Error("folder missing after reload")
	}
	if got, _ := ws.File(file.ID); got.Content != file.Content {
		t.Errorf("file after reload = %+v", got)
	}
	if ws.UIState.ActiveFileID != file.ID {
		t.Errorf("active file = %q", ws.UIState.ActiveFileID)
	}
}

func TestUpdateFile_IfMatch(t *testing.T) {
	tr, _ := newTracker(t, newMemStore())
	_, file := seed(t, tr)

	if _, err := tr.UpdateFile(file.ID, "x", "stale"); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("err = %v, want ErrConflict", err)
	}
	if _, err := tr.UpdateFile(file.ID, "x", checksum.String(file.Content)); err != nil {
		t.Errorf("matching checksum rejected: %v", err)
	}
	if _, err := tr.UpdateFile("nope", "x", ""); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestNamesAreUnique(t *testing.T) {
	tr, _ := newTracker(t, newMemStore())
	folder, _ := seed(t, tr)
	if _, err := tr.CreateFolder(" Smoke "); !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Errorf("duplicate folder err = %v", err)
	}
	if _, err := tr.CreateFile(folder.ID, NewFile{Name: "login.json"}); !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Errorf("duplicate file err = %v", err)
	}
	if _, err := tr.CreateFile(folder.ID, NewFile{Name: "a/b"}); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("separator err = %v", err)
	}
}

func TestDeleteAndRestore(t *testing.T) {
	tr, _ := newTracker(t, newMemStore())
	folder, first := seed(t, tr)
	second, _ := tr.CreateFile(folder.ID, NewFile{Name: "b.json"})
	third, _ := tr.CreateFile(folder.ID, NewFile{Name: "c.json"})

	if err := tr.DeleteFile(second.ID); err != nil {
		t.Fatal(err)
	}
	if err := tr.DeleteFile(first.ID); err != nil {
		t.Fatal(err)
	}
	if got := ids(tr.Snapshot().Files); got != third.ID {
		t.Fatalf("files after delete = %v", got)
	}

	restored, ok := tr.RestoreLastDeletedFile()
	if !ok || restored.ID != first.ID {
		t.Fatalf("restored %+v, %v; want first", restored, ok)
	}
	restored, ok = tr.RestoreLastDeletedFile()
	if !ok || restored.ID != second.ID {
		t.Fatalf("restored %+v, %v; want second", restored, ok)
	}
	if got, want := ids(tr.Snapshot().Files), first.ID+","+second.ID+","+third.ID; got != want {
		t.Errorf("order after restore = %s, want %s", got, want)
	}
	if _, ok := tr.RestoreLastDeletedFile(); ok {
		t.Error("empty history should report false")
	}
}

func TestRestoreSkipsFilesWithoutFolder(t *testing.T) {
	tr, _ := newTracker(t, newMemStore())
	folder, file := seed(t, tr)
	other, _ := tr.CreateFolder("Other")
	kept, _ := tr.CreateFile(other.ID, NewFile{Name: "kept.json"})

	if err := tr.DeleteFile(kept.ID); err != nil {
		t.Fatal(err)
	}
	if err := tr.DeleteFolder(folder.ID); err != nil {
		t.Fatal(err)
	}
	if tr.DeletedCount() != 2 {
		t.Fatalf("history = %d, want 2", tr.DeletedCount())
	}

	restored, ok := tr.RestoreLastDeletedFile()
	if !ok || restored.ID != kept.ID {
		t.Fatalf("restored %+v, %v; want %s (skipping %s)", restored, ok, kept.ID, file.ID)
	}
	if tr.DeletedCount() != 0 {
		t.Errorf("history = %d, want 0", tr.DeletedCount())
	}
}

func TestDeletedHistoryIsBounded(t *testing.T) {
	tr, _ := newTracker(t, newMemStore(), WithDeletedLimit(2))
	folder, _ := seed(t, tr)
	var last File
	for _, name := range []string{"1", "2", "3"} {
		f, _ := tr.CreateFile(folder.ID, NewFile{Name: name})
		_ = tr.DeleteFile(f.ID)
		last = f
	}
	if tr.DeletedCount() != 2 {
		t.Fatalf("history = %d, want 2", tr.DeletedCount())
	}
	if f, _ := tr.RestoreLastDeletedFile(); f.ID != last.ID {
		t.Errorf("restored %s, want most recent %s", f.ID, last.ID)
	}
}

func TestImportFiles_AllOrNothing(t *testing.T) {
	tr, _ := newTracker(t, newMemStore())
	folder, _ := seed(t, tr)

	_, err := tr.ImportFiles(
		ImportGroup{Folder: "Fresh", Files: []NewFile{{Name: "x.json"}}},
		ImportGroup{Folder: "Smoke", Files: []NewFile{{Name: "new.json"}, {Name: "login.json"}}},
	)
	if !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Fatalf("err = %v, want ErrAlreadyExists", err)
	}
	ws := tr.Snapshot()
	if n := len(ws.FilesIn(folder.ID)); n != 1 || len(ws.Folders) != 1 {
		t.Errorf("files in folder = %d, folders = %d; want nothing applied", n, len(ws.Folders))
	}

	files, err := tr.ImportFiles(ImportGroup{Folder: "Inbox", Files: []NewFile{{Name: "a.json"}, {Name: "b.json"}}})
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 || files[0].FolderID != files[1].FolderID {
		t.Errorf("imported = %+v", files)
	}
	if len(tr.Snapshot().Folders) != 2 {
		t.Error("Inbox folder should have been created")
	}
}

func ids(files []File) string {
	var out string
	for i, f := range files {
		if i > 0 {
			out += ","
		}
		out += f.ID
	}
	return out
}
