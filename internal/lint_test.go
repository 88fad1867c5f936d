package internal

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLint(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		return path
	}
	good := write("good.json", `{"title":"ok","steps":[{"action":"a"}]}`)
	bad := write("nested/bad.json", "{\n  \"steps\": [,]\n}")
	write(".hidden/skip.json", "not json")
	write("notes.txt", "not json")

	var out bytes.Buffer
	err := Lint([]string{dir}, &out)
	if !errors.Is(err, ErrLintFailed) {
		t.Fatalf("err = %v, want ErrLintFailed", err)
	}
	if !strings.Contains(err.Error(), "1 of 2") {
		t.Errorf("err = %v", err)
	}

	text := out.String()
	if !strings.Contains(text, good+": ok (1 steps)") {
		t.Errorf("missing ok line:\n%s", text)
	}
	if !strings.Contains(text, bad+":2:") {
		t.Errorf("missing located error:\n%s", text)
	}
	if !strings.Contains(text, "^") {
		t.Errorf("missing caret marker:\n%s", text)
	}
	if strings.Contains(text, "skip.json") || strings.Contains(text, "notes.txt") {
		t.Errorf("hidden or non-json files linted:\n%s", text)
	}
}

func TestLint_RuntimeError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arr.json")
	if err := os.WriteFile(path, []byte(`[1,2]`), 0o644); err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	if err := Lint([]string{path}, &out); !errors.Is(err, ErrLintFailed) {
		t.Fatalf("err = %v", err)
	}
	if !strings.Contains(out.String(), ": runtime: document must be an object") {
		t.Errorf("output = %q", out.String())
	}
}

func TestLint_MissingPath(t *testing.T) {
	var out bytes.Buffer
	if err := Lint([]string{filepath.Join(t.TempDir(), "nope")}, &out); err == nil || errors.Is(err, ErrLintFailed) {
		t.Errorf("err = %v, want stat error", err)
	}
}
