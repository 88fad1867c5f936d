package workspace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/stepsheet/internal/apperr"
	"github.com/starford/stepsheet/internal/schedule"
	"github.com/starford/stepsheet/internal/storage"
)

// Defaults for tracker options.
const (
	DefaultAutosaveDelay = 800 * time.Millisecond
	DefaultDeletedLimit  = 20
)

// SaveResult describes one persistence attempt.
type SaveResult struct {
	Trigger string    `json:"trigger"` // "autosave" or "flush"
	SavedAt time.Time `json:"savedAt"`
	Err     error     `json:"-"`
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithScheduler sets the timer source used for autosave.
func WithScheduler(s schedule.Scheduler) Option {
	return func(t *Tracker) { t.sched = s }
}

// WithAutosaveDelay sets the debounce delay between the last edit and the save.
func WithAutosaveDelay(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.delay = d
		}
	}
}

// WithDeletedLimit bounds the deleted-file history.
func WithDeletedLimit(n int) Option {
	return func(t *Tracker) {
		if n > 0 {
			t.deletedLimit = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

// WithClock sets the time source for timestamps.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithOnSaved registers a callback run after every persistence attempt.
func WithOnSaved(fn func(SaveResult)) Option {
	return func(t *Tracker) { t.onSaved = fn }
}

// Tracker owns the in-memory workspace. Every mutation marks it dirty and
// re-arms a debounced autosave; Flush persists immediately.
type Tracker struct {
	store        storage.Provider
	sched        schedule.Scheduler
	logger       *slog.Logger
	delay        time.Duration
	deletedLimit int
	now          func() time.Time
	onSaved      func(SaveResult)

	mu      sync.Mutex
	ws      Workspace
	deleted []DeletedFile
	dirty   bool
	timer   schedule.Timer
	gen     uint64 // bumped whenever the timer is re-armed or stopped
	closed  bool
}

// Load reads the workspace record from store, starting empty when none exists.
func Load(ctx context.Context, store storage.Provider, opts ...Option) (*Tracker, error) {
	t := &Tracker{
		store:        store,
		sched:        schedule.Real(),
		logger:       slog.Default(),
		delay:        DefaultAutosaveDelay,
		deletedLimit: DefaultDeletedLimit,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}

	data, err := store.Get(ctx, storage.WorkspaceKey)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		t.ws = Empty()
	case err != nil:
		return nil, fmt.Errorf("workspace: load: %w", err)
	default:
		ws := Empty()
		if err := json.Unmarshal(data, &ws); err != nil {
			return nil, fmt.Errorf("workspace: decode: %w", err)
		}
		if ws.Version > Version {
			return nil, fmt.Errorf("workspace: unsupported version %d", ws.Version)
		}
		ws.Version = Version
		t.ws = ws.Clone()
	}
	t.logger.Info("workspace loaded",
		slog.Int("folders", len(t.ws.Folders)),
		slog.Int("files", len(t.ws.Files)))
	return t, nil
}

// Snapshot returns a copy of the current workspace.
func (t *Tracker) Snapshot() Workspace {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ws.Clone()
}

// IsDirty reports whether there are unsaved changes.
func (t *Tracker) IsDirty() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dirty
}

// SavePending reports whether an autosave is scheduled.
func (t *Tracker) SavePending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.timer != nil
}

// Flush cancels any pending autosave and persists now if dirty. A failed
// write is returned and leaves the workspace dirty.
func (t *Tracker) Flush(ctx context.Context) error {
	t.mu.Lock()
	t.stopTimerLocked()
	res, saved := t.saveLocked(ctx, "flush")
	t.mu.Unlock()
	if saved {
		t.notify(res)
	}
	return res.Err
}

// Close flushes and stops further autosaves.
func (t *Tracker) Close(ctx context.Context) error {
	err := t.Flush(ctx)
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return err
}

func (t *Tracker) autosave(gen uint64) {
	t.mu.Lock()
	if gen != t.gen {
		// Superseded by a later edit or a flush.
		t.mu.Unlock()
		return
	}
	t.timer = nil
	res, saved := t.saveLocked(context.Background(), "autosave")
	t.mu.Unlock()
	if saved {
		t.notify(res)
	}
}

// saveLocked writes the workspace if dirty. saved reports whether a write
// was attempted.
func (t *Tracker) saveLocked(ctx context.Context, trigger string) (res SaveResult, saved bool) {
	if !t.dirty {
		return SaveResult{}, false
	}
	res = SaveResult{Trigger: trigger, SavedAt: t.now()}
	data, err := json.Marshal(t.ws)
	if err == nil {
		err = t.store.Put(ctx, storage.WorkspaceKey, data)
	}
	if err != nil {
		res.Err = fmt.Errorf("workspace: save: %w", err)
		t.logger.Error("workspace save failed",
			slog.String("trigger", trigger),
			slog.String("active_file", t.ws.UIState.ActiveFileID),
			slog.String("error", err.Error()))
		return res, true
	}
	t.dirty = false
	t.logger.Debug("workspace saved",
		slog.String("trigger", trigger),
		slog.Int("bytes", len(data)))
	return res, true
}

func (t *Tracker) notify(res SaveResult) {
	if t.onSaved != nil {
		t.onSaved(res)
	}
}

// touchLocked marks the workspace dirty and re-arms the autosave timer.
func (t *Tracker) touchLocked() {
	t.dirty = true
	if t.closed {
		return
	}
	t.stopTimerLocked()
	gen := t.gen
	t.timer = t.sched.AfterFunc(t.delay, func() { t.autosave(gen) })
}

func (t *Tracker) stopTimerLocked() {
	t.gen++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
