// Package cursorhistory keeps back/forward navigation over selection
// snapshots of one document.
package cursorhistory

import (
	"log/slog"
	"sync"

	"github.com/starford/stepsheet/internal/caret"
	"github.com/starford/stepsheet/internal/schedule"
)

// DefaultLimit bounds each of the back and forward stacks.
const DefaultLimit = 200

// Manager records selection changes and replays them on demand.
//
// A replay moves the live selection itself, which would normally be recorded
// as a new navigation. While a replay is settling (until the next scheduler
// tick) recording is suppressed.
type Manager struct {
	surface caret.Surface
	sched   schedule.Scheduler
	logger  *slog.Logger
	limit   int

	mu           sync.Mutex
	back         []caret.Snapshot
	forward      []caret.Snapshot
	last         caret.Snapshot
	hasLast      bool
	suppress     bool
	suppressDone schedule.Timer
	suppressGen  uint64 // bumped per replay; a stale tick must not end a newer window
}

// New creates a history manager over surface. A limit <= 0 selects DefaultLimit.
func New(surface caret.Surface, sched schedule.Scheduler, limit int, logger *slog.Logger) *Manager {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if sched == nil {
		sched = schedule.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		surface: surface,
		sched:   sched,
		logger:  logger,
		limit:   limit,
	}
}

// Reset clears both stacks and takes the current selection as the baseline.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.back = nil
	m.forward = nil
	m.last = caret.Capture(m.surface)
	m.hasLast = true
	m.clearSuppressLocked()
}

// RecordSelectionChange records the current selection if it differs from the
// last recorded one. The previous selection becomes a back entry and the
// forward stack is discarded.
func (m *Manager) RecordSelectionChange() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.suppress {
		return
	}
	snap := caret.Capture(m.surface)
	if m.hasLast && caret.SameSelection(m.last, snap) {
		return
	}
	if m.hasLast {
		m.back = push(m.back, m.last, m.limit)
	}
	m.forward = nil
	m.last = snap
	m.hasLast = true
	m.logger.Debug("cursor history: recorded",
		slog.Int("start", snap.Start.AbsoluteOffset),
		slog.Int("end", snap.End.AbsoluteOffset),
		slog.Int("back", len(m.back)))
}

// MoveBack restores the previous selection. It returns false when there is
// nothing to go back to.
func (m *Manager) MoveBack() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.back) == 0 {
		return false
	}
	m.forward = push(m.forward, caret.Capture(m.surface), m.limit)
	var target caret.Snapshot
	m.back, target = pop(m.back)
	m.replayLocked(target)
	return true
}

// MoveForward re-applies a selection undone by MoveBack. It returns false
// when the forward stack is empty.
func (m *Manager) MoveForward() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.forward) == 0 {
		return false
	}
	m.back = push(m.back, caret.Capture(m.surface), m.limit)
	var target caret.Snapshot
	m.forward, target = pop(m.forward)
	m.replayLocked(target)
	return true
}

// CanMoveBack reports whether MoveBack would do anything.
func (m *Manager) CanMoveBack() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.back) > 0
}

// CanMoveForward reports whether MoveForward would do anything.
func (m *Manager) CanMoveForward() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.forward) > 0
}

// Depth returns the sizes of the back and forward stacks.
func (m *Manager) Depth() (back, forward int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.back), len(m.forward)
}

func (m *Manager) replayLocked(target caret.Snapshot) {
	m.suppress = true
	caret.Apply(m.surface, target)
	m.last = caret.Capture(m.surface)
	m.hasLast = true

	if m.suppressDone != nil {
		m.suppressDone.Stop()
	}
	m.suppressGen++
	gen := m.suppressGen
	m.suppressDone = m.sched.AfterFunc(0, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if gen != m.suppressGen {
			return
		}
		m.suppress = false
		m.suppressDone = nil
	})
}

func (m *Manager) clearSuppressLocked() {
	if m.suppressDone != nil {
		m.suppressDone.Stop()
		m.suppressDone = nil
	}
	m.suppressGen++
	m.suppress = false
}

func push(stack []caret.Snapshot, s caret.Snapshot, limit int) []caret.Snapshot {
	stack = append(stack, s)
	if len(stack) > limit {
		stack = stack[len(stack)-limit:]
	}
	return stack
}

func pop(stack []caret.Snapshot) ([]caret.Snapshot, caret.Snapshot) {
	n := len(stack) - 1
	s := stack[n]
	return stack[:n], s
}
