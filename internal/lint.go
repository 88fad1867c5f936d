package internal

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/stepsheet/internal/checklist"
	"github.com/starford/stepsheet/internal/jsonerr"
)

// ErrLintFailed is returned by Lint when at least one document is invalid.
var ErrLintFailed = errors.New("lint failed")

// Lint evaluates each checklist document named by paths and reports one line
// per document to w. Directories are walked for *.json files.
func Lint(paths []string, w io.Writer) error {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	var files []string
	for _, p := range paths {
		found, err := collectJSON(p)
		if err != nil {
			return err
		}
		files = append(files, found...)
	}

	failed := 0
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		text := string(data)
		st := checklist.Evaluate(text, logger)
		if st.Valid {
			fmt.Fprintf(w, "%s: ok (%d steps)\n", path, len(st.Checklist.Steps))
			continue
		}
		failed++
		if st.Position == nil {
			fmt.Fprintf(w, "%s: %s: %s\n", path, st.Kind, st.Message)
			continue
		}
		fmt.Fprintf(w, "%s:%d:%d: %s: %s\n", path, st.Position.Line, st.Position.Column, st.Kind, st.Message)
		for _, line := range strings.Split(jsonerr.Snippet(text, *st.Offset), "\n") {
			fmt.Fprintf(w, "    %s\n", line)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d documents invalid", ErrLintFailed, failed, len(files))
	}
	return nil
}

func collectJSON(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{root}, nil
	}
	var out []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), ".json") {
			out = append(out, path)
		}
		return nil
	})
	return out, err
}
