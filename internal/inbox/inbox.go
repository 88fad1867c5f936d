// Package inbox imports checklist documents dropped into a directory.
//
// Every *.json file that appears in the inbox directory is added to the
// workspace under a dedicated folder and then renamed with an ".imported"
// suffix. Files the workspace refuses are renamed with ".rejected" so they
// are not retried on every event.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	ignore "github.com/sabhiram/go-gitignore"

	"github.com/starford/stepsheet/internal/workspace"
)

// Suffixes appended to processed files.
const (
	ImportedSuffix = ".imported"
	RejectedSuffix = ".rejected"
)

// IgnoreFile holds extra gitignore-style patterns when present in the inbox.
const IgnoreFile = ".inboxignore"

// MaxFileSize is the largest document the inbox accepts.
const MaxFileSize = 4 << 20

// DefaultDebounce is the quiet period after the last event before a scan.
const DefaultDebounce = 250 * time.Millisecond

// Importer receives the documents found in the inbox.
type Importer interface {
	ImportFiles(groups ...workspace.ImportGroup) ([]workspace.File, error)
}

// Config describes one inbox.
type Config struct {
	Dir      string
	Folder   string
	Ignore   []string
	Debounce time.Duration
}

// Callback is called with the files added by a scan.
type Callback func(files []workspace.File)

// Scan imports every pending document in cfg.Dir once.
func Scan(cfg Config, imp Importer, logger *slog.Logger) ([]workspace.File, error) {
	entries, err := os.ReadDir(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("inbox: read dir: %w", err)
	}
	gi := compileIgnore(cfg)

	var names []string
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
			continue
		}
		if gi.MatchesPath(name) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	var out []workspace.File
	for _, name := range names {
		path := filepath.Join(cfg.Dir, name)
		file, err := importOne(cfg.Folder, path, name, imp)
		if err != nil {
			logger.Warn("inbox: rejected",
				slog.String("path", name),
				slog.String("error", err.Error()))
			if renameErr := os.Rename(path, path+RejectedSuffix); renameErr != nil {
				logger.Error("inbox: rename failed", slog.String("path", name), slog.String("error", renameErr.Error()))
			}
			continue
		}
		if err := os.Rename(path, path+ImportedSuffix); err != nil {
			logger.Error("inbox: rename failed", slog.String("path", name), slog.String("error", err.Error()))
		}
		logger.Info("inbox: imported", slog.String("path", name), slog.String("file_id", file.ID))
		out = append(out, file)
	}
	return out, nil
}

func importOne(folder, path, name string, imp Importer) (workspace.File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return workspace.File{}, err
	}
	if info.Size() > MaxFileSize {
		return workspace.File{}, fmt.Errorf("file is %d bytes, limit is %d", info.Size(), MaxFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return workspace.File{}, err
	}
	files, err := imp.ImportFiles(workspace.ImportGroup{
		Folder: folder,
		Files:  []workspace.NewFile{{Name: name, Content: string(data)}},
	})
	if err != nil {
		return workspace.File{}, err
	}
	if len(files) != 1 {
		return workspace.File{}, errors.New("importer returned no file")
	}
	return files[0], nil
}

func compileIgnore(cfg Config) *ignore.GitIgnore {
	path := filepath.Join(cfg.Dir, IgnoreFile)
	if _, err := os.Stat(path); err == nil {
		if gi, err := ignore.CompileIgnoreFileAndLines(path, cfg.Ignore...); err == nil {
			return gi
		}
	}
	return ignore.CompileIgnoreLines(cfg.Ignore...)
}

// Watch imports pending documents, then keeps watching cfg.Dir until ctx is
// cancelled. Bursts of events are coalesced into one scan.
func Watch(ctx context.Context, cfg Config, imp Importer, logger *slog.Logger, cb Callback) error {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return fmt.Errorf("inbox: create dir: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(cfg.Dir); err != nil {
		return err
	}
	logger.Info("inbox: started", slog.String("dir", cfg.Dir), slog.String("folder", cfg.Folder))

	scan := func() {
		files, err := Scan(cfg, imp, logger)
		if err != nil {
			logger.Warn("inbox: scan failed", slog.String("error", err.Error()))
			return
		}
		if len(files) > 0 && cb != nil {
			cb(files)
		}
	}
	scan()

	var timer *time.Timer
	var timerCh <-chan time.Time
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(cfg.Debounce)
			timerCh = timer.C
			return
		}
		timer.Reset(cfg.Debounce)
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("inbox: stopped")
			return nil

		case <-timerCh:
			scan()

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 || !strings.HasSuffix(ev.Name, ".json") {
				continue
			}
			logger.Debug("inbox: event", slog.String("path", ev.Name), slog.String("op", ev.Op.String()))
			schedule()

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("inbox: watcher error", slog.String("error", watchErr.Error()))
		}
	}
}
