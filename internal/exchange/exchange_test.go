package exchange

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/starford/stepsheet/internal/apperr"
	"github.com/starford/stepsheet/internal/testutil"
	"github.com/starford/stepsheet/internal/workspace"
)

func newTracker(t *testing.T) *workspace.Tracker {
	t.Helper()
	tr, _ := testutil.TestTracker(t)
	return tr
}

const validDoc = `{
  "title": "Login",
  "requiredFields": ["action", "expected"],
  "customFields": ["owner"],
  "steps": [{"action": "open", "pass": false}]
}`

const brokenDoc = `{"title": "WIP", "steps": [`

func seeded(t *testing.T) (*workspace.Tracker, workspace.Folder) {
	t.Helper()
	tr := newTracker(t)
	folder, err := tr.CreateFolder("Smoke")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tr.CreateFile(folder.ID, workspace.NewFile{Name: "login.json", Content: validDoc}); err != nil {
		t.Fatal(err)
	}
	if _, err := tr.CreateFile(folder.ID, workspace.NewFile{Name: "wip.json", Content: brokenDoc}); err != nil {
		t.Fatal(err)
	}
	return tr, folder
}

func TestExport(t *testing.T) {
	tr, folder := seeded(t)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	pkg, err := Export(tr.Snapshot(), ModeWorkspace, "", now)
	if err != nil {
		t.Fatal(err)
	}
	if pkg.Format != Format || pkg.Version != Version || !pkg.ExportedAt.Equal(now) {
		t.Errorf("envelope = %+v", pkg)
	}
	if len(pkg.Files) != 2 {
		t.Fatalf("files = %d, want 2", len(pkg.Files))
	}
	if pkg.Files[0].Data == nil || pkg.Files[0].RawContent != nil || pkg.Files[0].Folder != "Smoke" {
		t.Errorf("valid file exported as %+v", pkg.Files[0])
	}
	if strings.Contains(string(pkg.Files[0].Data), "\n") {
		t.Errorf("data should be compact: %s", pkg.Files[0].Data)
	}
	if pkg.Files[1].RawContent == nil || *pkg.Files[1].RawContent != brokenDoc {
		t.Errorf("broken file exported as %+v", pkg.Files[1])
	}
	if strings.Join(pkg.RequiredFields, ",") != "action,expected" || strings.Join(pkg.CustomFields, ",") != "owner" {
		t.Errorf("fields = %v / %v", pkg.RequiredFields, pkg.CustomFields)
	}

	byFolder, err := Export(tr.Snapshot(), ModeFolder, folder.ID, now)
	if err != nil || len(byFolder.Files) != 2 {
		t.Errorf("folder export = %d files, %v", len(byFolder.Files), err)
	}
	if _, err := Export(tr.Snapshot(), ModeFile, "missing", now); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing file err = %v", err)
	}
}

func TestImport_RoundTrip(t *testing.T) {
	src, _ := seeded(t)
	pkg, err := Export(src.Snapshot(), ModeWorkspace, "", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	payload, err := json.Marshal(pkg)
	if err != nil {
		t.Fatal(err)
	}

	dst := newTracker(t)
	files, err := Import(dst, payload)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("imported %d files", len(files))
	}
	ws := dst.Snapshot()
	if len(ws.Folders) != 1 || ws.Folders[0].Name != "Smoke" {
		t.Errorf("folders = %+v", ws.Folders)
	}
	if got, want := compact(t, files[0].Content), compact(t, validDoc); got != want {
		t.Errorf("content changed: %s", got)
	}
	if files[1].Content != brokenDoc {
		t.Errorf("raw content = %q", files[1].Content)
	}
}

func compact(t *testing.T, s string) string {
	t.Helper()
	var b bytes.Buffer
	if err := json.Compact(&b, []byte(s)); err != nil {
		t.Fatal(err)
	}
	return b.String()
}

func TestImport_Rejects(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		wantPath string
	}{
		{name: "not json", payload: `{"format":`},
		{name: "wrong format", payload: `{"format":"other","version":1,"files":[{"name":"a","rawContent":""}]}`, wantPath: "format"},
		{name: "future version", payload: `{"format":"stepsheet-package","version":9,"files":[{"name":"a","rawContent":""}]}`, wantPath: "version"},
		{name: "missing name", payload: `{"format":"stepsheet-package","version":1,"files":[{"rawContent":""}]}`, wantPath: "files[0]"},
		{name: "no content", payload: `{"format":"stepsheet-package","version":1,"files":[{"name":"a","data":null}]}`, wantPath: "files[0].data"},
		{name: "empty files", payload: `{"format":"stepsheet-package","version":1,"files":[]}`, wantPath: "files"},
		{name: "version is a string", payload: `{"format":"stepsheet-package","version":"1","files":[]}`, wantPath: "version"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newTracker(t)
			_, err := Import(tr, []byte(tt.payload))
			if !errors.Is(err, apperr.ErrInvalidImport) {
				t.Fatalf("err = %v, want ErrInvalidImport", err)
			}
			var ie *InvalidError
			if !errors.As(err, &ie) || len(ie.Problems) == 0 {
				t.Fatalf("err = %#v, want *InvalidError with problems", err)
			}
			if tt.wantPath != "" && ie.Problems[0].Path != tt.wantPath {
				t.Errorf("problems = %+v, want path %q", ie.Problems, tt.wantPath)
			}
			if ws := tr.Snapshot(); len(ws.Files) != 0 || len(ws.Folders) != 0 {
				t.Error("rejected import must not change the workspace")
			}
		})
	}
}

func TestImport_ConflictAppliesNothing(t *testing.T) {
	tr, _ := seeded(t)
	payload := `{"format":"stepsheet-package","version":1,"files":[
		{"name":"new.json","folder":"Other","data":{"steps":[]}},
		{"name":"login.json","folder":"Smoke","rawContent":"{}"}
	]}`
	if _, err := Import(tr, []byte(payload)); !errors.Is(err, apperr.ErrInvalidImport) {
		t.Fatalf("err = %v, want ErrInvalidImport", err)
	}
	if ws := tr.Snapshot(); len(ws.Folders) != 1 || len(ws.Files) != 2 {
		t.Errorf("workspace changed: %d folders, %d files", len(ws.Folders), len(ws.Files))
	}
}

func TestImport_DefaultFolder(t *testing.T) {
	tr := newTracker(t)
	payload := `{"format":"stepsheet-package","version":1,"files":[{"name":"a.json","data":{"steps":[]}}]}`
	files, err := Import(tr, []byte(payload))
	if err != nil {
		t.Fatal(err)
	}
	folder, _ := tr.Snapshot().Folder(files[0].FolderID)
	if folder.Name != DefaultFolder {
		t.Errorf("folder = %q, want %q", folder.Name, DefaultFolder)
	}
	if files[0].Content != "{\n  \"steps\": []\n}" {
		t.Errorf("content = %q", files[0].Content)
	}
}

func TestPointerToPath(t *testing.T) {
	for in, want := range map[string]string{
		"":              "",
		"/files/0/name": "files[0].name",
		"#/format":      "format",
		"/files/12":     "files[12]",
	} {
		if got := pointerToPath(in); got != want {
			t.Errorf("pointerToPath(%q) = %q, want %q", in, got, want)
		}
	}
}
