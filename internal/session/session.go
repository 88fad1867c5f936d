// Package session binds one open document to its editing surface, find
// engine and cursor history. A Session serialises every operation on its
// document; callers never touch the components directly.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/starford/stepsheet/internal/apperr"
	"github.com/starford/stepsheet/internal/caret"
	"github.com/starford/stepsheet/internal/checklist"
	"github.com/starford/stepsheet/internal/checksum"
	"github.com/starford/stepsheet/internal/cursorhistory"
	"github.com/starford/stepsheet/internal/find"
	"github.com/starford/stepsheet/internal/jsonerr"
	"github.com/starford/stepsheet/internal/steps"
	"github.com/starford/stepsheet/internal/surface"
	"github.com/starford/stepsheet/internal/workspace"
)

// ErrClosed is returned by operations on a closed session.
var ErrClosed = errors.New("session closed")

// Selection is the caret/selection state exposed to clients.
type Selection struct {
	Start      int             `json:"start"`
	End        int             `json:"end"`
	Direction  caret.Direction `json:"direction"`
	ScrollTop  int             `json:"scrollTop"`
	ScrollLeft int             `json:"scrollLeft"`
}

// View is a full snapshot of a session for clients.
type View struct {
	FileID       string     `json:"fileId"`
	Text         string     `json:"text"`
	Checksum     string     `json:"checksum"`
	Selection    Selection  `json:"selection"`
	Find         find.State `json:"find"`
	CanGoBack    bool       `json:"canGoBack"`
	CanGoForward bool       `json:"canGoForward"`
	Dirty        bool       `json:"dirty"`
	SavePending  bool       `json:"savePending"`
}

// Session is the editing context of one open file.
type Session struct {
	fileID   string
	tracker  *workspace.Tracker
	notifier Notifier
	logger   *slog.Logger

	mu      sync.Mutex
	buf     *surface.Buffer
	finder  *find.Engine
	history *cursorhistory.Manager
	closed  bool
	// commitErr carries a commit failure out of the find engine's hook.
	commitErr error
}

func newSession(file workspace.File, m *Manager) *Session {
	s := &Session{
		fileID:   file.ID,
		tracker:  m.tracker,
		notifier: m.notifier,
		logger:   m.logger.With(slog.String("file_id", file.ID)),
		buf:      surface.NewBuffer(file.Content),
	}
	s.finder = find.New(s.buf, find.Hooks{
		OnStateChange: func(st find.State) { s.notifier.StateChange(s.fileID, st) },
		OnTextMutated: s.textMutatedLocked,
	}, s.logger)
	s.history = cursorhistory.New(s.buf, m.sched, m.historyLimit, s.logger)
	s.history.Reset()
	return s
}

// FileID returns the id of the file being edited.
func (s *Session) FileID() string { return s.fileID }

func (s *Session) lock() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	return nil
}

// View returns the current state of the session.
func (s *Session) View() (View, error) {
	if err := s.lock(); err != nil {
		return View{}, err
	}
	defer s.mu.Unlock()
	return s.viewLocked(), nil
}

func (s *Session) viewLocked() View {
	text := s.buf.Value()
	return View{
		FileID:       s.fileID,
		Text:         text,
		Checksum:     checksum.String(text),
		Selection:    s.selectionLocked(),
		Find:         s.finder.State(),
		CanGoBack:    s.history.CanMoveBack(),
		CanGoForward: s.history.CanMoveForward(),
		Dirty:        s.tracker.IsDirty(),
		SavePending:  s.tracker.SavePending(),
	}
}

func (s *Session) selectionLocked() Selection {
	start, end, dir := s.buf.Selection()
	top, left := s.buf.Scroll()
	return Selection{Start: start, End: end, Direction: dir, ScrollTop: top, ScrollLeft: left}
}

// SetText replaces the document text, as typed by the user.
func (s *Session) SetText(text string) error {
	return s.SetTextIfMatch(text, "")
}

// SetTextIfMatch replaces the text when ifMatch is empty or equals the
// checksum of the current text.
func (s *Session) SetTextIfMatch(text, ifMatch string) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	if !checksum.Matches(s.buf.Value(), ifMatch) {
		return fmt.Errorf("session %s: text changed: %w", s.fileID, apperr.ErrConflict)
	}
	if text == s.buf.Value() {
		return nil
	}
	s.buf.SetValue(text)
	s.finder.TextChanged()
	return s.commitLocked()
}

// Select moves the selection and records it in the cursor history.
func (s *Session) Select(sel Selection) (Selection, error) {
	if err := s.lock(); err != nil {
		return Selection{}, err
	}
	defer s.mu.Unlock()
	s.buf.SetSelectionRange(sel.Start, sel.End, sel.Direction)
	s.buf.SetScroll(sel.ScrollTop, sel.ScrollLeft)
	s.history.RecordSelectionChange()
	return s.selectionLocked(), nil
}

// Back restores the previous selection from the cursor history.
func (s *Session) Back() (bool, Selection, error) {
	return s.navigate(s.history.MoveBack)
}

// Forward re-applies a selection undone by Back.
func (s *Session) Forward() (bool, Selection, error) {
	return s.navigate(s.history.MoveForward)
}

func (s *Session) navigate(move func() bool) (bool, Selection, error) {
	if err := s.lock(); err != nil {
		return false, Selection{}, err
	}
	defer s.mu.Unlock()
	moved := move()
	return moved, s.selectionLocked(), nil
}

// Status parses the text and returns either the checklist or the located error.
func (s *Session) Status() (checklist.Status, error) {
	if err := s.lock(); err != nil {
		return checklist.Status{}, err
	}
	defer s.mu.Unlock()
	return checklist.Evaluate(s.buf.Value(), s.logger), nil
}

// HighlightStep returns the span of step n and notifies the rendering layer.
func (s *Session) HighlightStep(n int) (steps.Bounds, error) {
	if err := s.lock(); err != nil {
		return steps.Bounds{}, err
	}
	defer s.mu.Unlock()
	b, ok := steps.FindBounds(s.buf.Value(), n)
	if !ok {
		return steps.Bounds{}, fmt.Errorf("step %d: %w", n, apperr.ErrNotFound)
	}
	s.notifier.HighlightStep(s.fileID, n, b)
	return b, nil
}

// TogglePass flips the "pass" value of step n in place and returns the new value.
func (s *Session) TogglePass(n int) (bool, error) {
	if err := s.lock(); err != nil {
		return false, err
	}
	defer s.mu.Unlock()
	text := s.buf.Value()
	current, ok := steps.Pass(text, n)
	if !ok {
		return false, fmt.Errorf("step %d: %w", n, apperr.ErrNotFound)
	}
	edit, ok := steps.SetPass(text, n, !current)
	if !ok {
		return false, fmt.Errorf("step %d: %w", n, apperr.ErrNotFound)
	}
	s.applyEditLocked(edit)
	if err := s.commitLocked(); err != nil {
		return false, err
	}
	return !current, nil
}

// applyEditLocked splices an edit into the buffer, shifting the selection
// so it keeps pointing at the same text.
func (s *Session) applyEditLocked(e steps.Edit) {
	start, end, dir := s.buf.Selection()
	delta := len(e.Text) - (e.End - e.Start)
	shift := func(off int) int {
		switch {
		case off >= e.End:
			return off + delta
		case off > e.Start:
			return min(off, e.Start+len(e.Text))
		default:
			return off
		}
	}
	s.buf.SetValue(e.Apply(s.buf.Value()))
	s.buf.SetSelectionRange(shift(start), shift(end), dir)
	s.finder.TextChanged()
}

// Format pretty-prints the document with indent, keeping the selection on
// the same content. Invalid documents are left untouched.
func (s *Session) Format(indent string) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	text := s.buf.Value()
	var out bytes.Buffer
	if err := json.Indent(&out, []byte(text), "", indent); err != nil {
		return fmt.Errorf("format: %w: %w", apperr.ErrInvalidInput, err)
	}
	if out.String() == text {
		return nil
	}
	snap := caret.Capture(s.buf)
	s.buf.SetValue(out.String())
	caret.Apply(s.buf, snap)
	s.finder.TextChanged()
	return s.commitLocked()
}

// Find operations.

// OpenFind shows the find bar.
func (s *Session) OpenFind(cfg find.OpenConfig) (find.State, error) {
	return s.withFinder(func(f *find.Engine) { f.Open(cfg) })
}

// CloseFind hides the find bar.
func (s *Session) CloseFind() (find.State, error) {
	return s.withFinder(func(f *find.Engine) { f.Close() })
}

// SetQuery changes the find query.
func (s *Session) SetQuery(q string) (find.State, error) {
	return s.withFinder(func(f *find.Engine) { f.SetQuery(q) })
}

// SetReplaceText changes the replacement text.
func (s *Session) SetReplaceText(r string) (find.State, error) {
	return s.withFinder(func(f *find.Engine) { f.SetReplaceText(r) })
}

// FindNext selects the next match and records the jump in the history.
func (s *Session) FindNext() (find.State, error) {
	return s.withFinder(func(f *find.Engine) {
		if _, ok := f.FindNext(); ok {
			s.history.RecordSelectionChange()
		}
	})
}

// FindPrevious selects the previous match and records the jump in the history.
func (s *Session) FindPrevious() (find.State, error) {
	return s.withFinder(func(f *find.Engine) {
		if _, ok := f.FindPrevious(); ok {
			s.history.RecordSelectionChange()
		}
	})
}

// ReplaceCurrent replaces the active match.
func (s *Session) ReplaceCurrent() (int, error) {
	return s.replace(func(f *find.Engine) int { return f.ReplaceCurrent() })
}

// ReplaceAll replaces every occurrence of the query.
func (s *Session) ReplaceAll() (int, error) {
	return s.replace(func(f *find.Engine) int { return f.ReplaceAll() })
}

func (s *Session) replace(op func(*find.Engine) int) (int, error) {
	if err := s.lock(); err != nil {
		return 0, err
	}
	defer s.mu.Unlock()
	s.commitErr = nil
	n := op(s.finder)
	if n == 0 {
		return 0, apperr.ErrNoActiveMatch
	}
	return n, s.commitErr
}

func (s *Session) withFinder(op func(*find.Engine)) (find.State, error) {
	if err := s.lock(); err != nil {
		return find.State{}, err
	}
	defer s.mu.Unlock()
	op(s.finder)
	return s.finder.State(), nil
}

// Save flushes pending workspace changes now.
func (s *Session) Save(ctx context.Context) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	return s.tracker.Flush(ctx)
}

// close flushes and marks the session closed.
func (s *Session) close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.tracker.Flush(ctx)
}

// textMutatedLocked is the find engine's mutation hook.
func (s *Session) textMutatedLocked() {
	s.commitErr = s.commitLocked()
}

// commitLocked funnels the buffer text into the workspace (dirty flag and
// autosave) and notifies the rendering layer.
func (s *Session) commitLocked() error {
	text := s.buf.Value()
	if _, err := s.tracker.Edit(s.fileID, text); err != nil {
		s.logger.Error("session: commit failed", slog.String("error", err.Error()))
		return fmt.Errorf("session %s: %w", s.fileID, err)
	}
	s.notifier.TextMutated(s.fileID)
	if res := jsonerr.AttemptParse(text); res.OK {
		if title, ok := steps.Title(text); ok {
			s.notifier.ScenarioTitleUpdate(s.fileID, title, s.tracker.ActiveFileID() == s.fileID)
		}
	}
	return nil
}
