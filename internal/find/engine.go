// Package find implements literal find/replace over a live editing surface.
package find

import (
	"log/slog"
	"strings"

	"github.com/starford/stepsheet/internal/caret"
)

// Match is a half-open byte range [Start, End) of one occurrence.
type Match struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// State is the observable find/replace state.
// ActiveMatchIndex is -1 when no match is active.
type State struct {
	IsOpen           bool    `json:"isOpen"`
	ShowReplace      bool    `json:"showReplace"`
	Query            string  `json:"query"`
	ReplaceText      string  `json:"replaceText"`
	Matches          []Match `json:"matches"`
	ActiveMatchIndex int     `json:"activeMatchIndex"`
}

// Editor is the surface the engine searches and edits.
type Editor interface {
	caret.Surface
	SetValue(text string)
}

// Hooks receive engine notifications. Nil hooks are skipped.
type Hooks struct {
	OnStateChange func(State)
	OnTextMutated func()
}

// OpenConfig controls Open. A nil Query keeps the current query.
type OpenConfig struct {
	ShowReplace bool    `json:"showReplace"`
	Query       *string `json:"query,omitempty"`
}

// Engine tracks the query, its matches in the current text and which match
// is active. It is not safe for concurrent use.
type Engine struct {
	editor Editor
	hooks  Hooks
	logger *slog.Logger
	state  State
}

// New creates an engine bound to editor.
func New(editor Editor, hooks Hooks, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		editor: editor,
		hooks:  hooks,
		logger: logger,
		state:  State{ActiveMatchIndex: -1},
	}
}

// FindAll returns the non-overlapping occurrences of query in text, left to
// right. An empty query has no matches.
func FindAll(text, query string) []Match {
	if query == "" {
		return nil
	}
	var out []Match
	step := max(1, len(query))
	for from := 0; from <= len(text); {
		i := strings.Index(text[from:], query)
		if i < 0 {
			break
		}
		start := from + i
		out = append(out, Match{Start: start, End: start + len(query)})
		from = start + step
	}
	return out
}

// State returns a copy of the current state.
func (e *Engine) State() State {
	st := e.state
	st.Matches = append([]Match(nil), e.state.Matches...)
	return st
}

// Open shows the find bar, optionally with the replace row and a seeded query.
func (e *Engine) Open(cfg OpenConfig) {
	e.state.IsOpen = true
	e.state.ShowReplace = cfg.ShowReplace
	if cfg.Query != nil {
		e.state.Query = *cfg.Query
	}
	e.recompute()
}

// Close hides the find bar and drops the matches. The query is kept.
func (e *Engine) Close() {
	e.state.IsOpen = false
	e.state.ShowReplace = false
	e.state.Matches = nil
	e.state.ActiveMatchIndex = -1
	e.emit()
}

// SetQuery changes the query and recomputes matches.
func (e *Engine) SetQuery(q string) {
	e.state.Query = q
	e.recompute()
}

// SetReplaceText changes the replacement text.
func (e *Engine) SetReplaceText(r string) {
	e.state.ReplaceText = r
	e.emit()
}

// TextChanged recomputes matches after the document text changed.
func (e *Engine) TextChanged() {
	e.recompute()
}

// FindNext moves to the next match, wrapping around.
func (e *Engine) FindNext() (Match, bool) { return e.step(1) }

// FindPrevious moves to the previous match, wrapping around.
func (e *Engine) FindPrevious() (Match, bool) { return e.step(-1) }

func (e *Engine) step(delta int) (Match, bool) {
	n := len(e.state.Matches)
	if n == 0 {
		return Match{}, false
	}
	idx := e.state.ActiveMatchIndex
	switch {
	case idx < 0 || idx >= n:
		idx = e.pickActive()
	case !e.selectionEquals(e.state.Matches[idx]):
		// The caret moved away from the active match; go back to it first.
	default:
		idx = ((idx+delta)%n + n) % n
	}
	e.state.ActiveMatchIndex = idx
	m := e.state.Matches[idx]
	e.editor.SetSelectionRange(m.Start, m.End, caret.DirectionForward)
	e.emit()
	return m, true
}

// ReplaceCurrent replaces the active match and puts the caret after the
// inserted text. It returns the number of replacements made (0 or 1).
func (e *Engine) ReplaceCurrent() int {
	idx := e.state.ActiveMatchIndex
	if idx < 0 || idx >= len(e.state.Matches) {
		return 0
	}
	m := e.state.Matches[idx]
	text := e.editor.Value()
	if m.End > len(text) {
		return 0
	}
	e.editor.SetValue(text[:m.Start] + e.state.ReplaceText + text[m.End:])
	pos := m.Start + len(e.state.ReplaceText)
	e.editor.SetSelectionRange(pos, pos, caret.DirectionNone)

	e.state.Matches = FindAll(e.editor.Value(), e.state.Query)
	e.state.ActiveMatchIndex = firstAtOrAfter(e.state.Matches, pos)
	e.logger.Debug("find: replaced current",
		slog.Int("start", m.Start),
		slog.Int("remaining", len(e.state.Matches)))
	e.mutated()
	e.emit()
	return 1
}

// ReplaceAll replaces every literal occurrence of the query and returns how
// many were replaced.
func (e *Engine) ReplaceAll() int {
	if e.state.Query == "" || len(e.state.Matches) == 0 {
		return 0
	}
	count := len(e.state.Matches)
	e.editor.SetValue(strings.ReplaceAll(e.editor.Value(), e.state.Query, e.state.ReplaceText))
	e.state.Matches = FindAll(e.editor.Value(), e.state.Query)
	e.state.ActiveMatchIndex = e.pickActive()
	e.logger.Debug("find: replaced all", slog.Int("count", count))
	e.mutated()
	e.emit()
	return count
}

func (e *Engine) recompute() {
	e.state.Matches = FindAll(e.editor.Value(), e.state.Query)
	e.state.ActiveMatchIndex = e.pickActive()
	e.emit()
}

// pickActive prefers the match that is currently selected, then the first
// match at or after the caret, then the first match.
func (e *Engine) pickActive() int {
	if len(e.state.Matches) == 0 {
		return -1
	}
	start, end, _ := e.editor.Selection()
	for i, m := range e.state.Matches {
		if m.Start == start && m.End == end {
			return i
		}
	}
	return firstAtOrAfter(e.state.Matches, start)
}

func firstAtOrAfter(matches []Match, pos int) int {
	if len(matches) == 0 {
		return -1
	}
	for i, m := range matches {
		if m.Start >= pos {
			return i
		}
	}
	return 0
}

func (e *Engine) selectionEquals(m Match) bool {
	start, end, _ := e.editor.Selection()
	return start == m.Start && end == m.End
}

func (e *Engine) mutated() {
	if e.hooks.OnTextMutated != nil {
		e.hooks.OnTextMutated()
	}
}

func (e *Engine) emit() {
	if e.hooks.OnStateChange != nil {
		e.hooks.OnStateChange(e.State())
	}
}
