package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/starford/stepsheet/internal/cursorhistory"
	"github.com/starford/stepsheet/internal/schedule"
	"github.com/starford/stepsheet/internal/workspace"
)

// Option configures a Manager.
type Option func(*Manager)

// WithScheduler sets the scheduler used for cursor-history replay ticks.
func WithScheduler(s schedule.Scheduler) Option {
	return func(m *Manager) { m.sched = s }
}

// WithHistoryLimit bounds each cursor-history stack.
func WithHistoryLimit(n int) Option {
	return func(m *Manager) { m.historyLimit = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// Manager owns the open sessions, keyed by file id.
type Manager struct {
	tracker      *workspace.Tracker
	notifier     Notifier
	sched        schedule.Scheduler
	historyLimit int
	logger       *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a session manager over the workspace tracker.
func NewManager(tracker *workspace.Tracker, notifier Notifier, opts ...Option) *Manager {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	m := &Manager{
		tracker:      tracker,
		notifier:     notifier,
		sched:        schedule.Real(),
		historyLimit: cursorhistory.DefaultLimit,
		logger:       slog.Default(),
		sessions:     make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open returns the session for fileID, creating it on first use. The file
// becomes the workspace's active file.
func (m *Manager) Open(fileID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[fileID]; ok {
		return s, nil
	}
	file, err := m.tracker.GetFile(fileID)
	if err != nil {
		return nil, fmt.Errorf("session: open: %w", err)
	}
	if err := m.tracker.SetActiveFile(fileID); err != nil {
		return nil, fmt.Errorf("session: open: %w", err)
	}
	s := newSession(file, m)
	m.sessions[fileID] = s
	m.logger.Info("session opened", slog.String("file_id", fileID))
	return s, nil
}

// Get returns an open session.
func (m *Manager) Get(fileID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[fileID]
	return s, ok
}

// List returns the open file ids, sorted.
func (m *Manager) List() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close flushes and tears down the session for fileID. Closing a file that
// is not open is a no-op.
func (m *Manager) Close(ctx context.Context, fileID string) error {
	m.mu.Lock()
	s, ok := m.sessions[fileID]
	delete(m.sessions, fileID)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	m.logger.Info("session closed", slog.String("file_id", fileID))
	return s.close(ctx)
}

// CloseAll tears down every session, flushing pending changes.
func (m *Manager) CloseAll(ctx context.Context) error {
	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	var errs []error
	for _, s := range all {
		if err := s.close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
