// Package testutil provides shared test helpers for setting up workspaces and
// editing sessions on a temporary store.
package testutil

import (
	"context"
	"testing"

	"github.com/starford/stepsheet/internal/schedule"
	"github.com/starford/stepsheet/internal/session"
	"github.com/starford/stepsheet/internal/storage"
	"github.com/starford/stepsheet/internal/workspace"
)

// TestStore creates a file store in a temporary directory.
func TestStore(t *testing.T) storage.Provider {
	t.Helper()
	store, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return store
}

// TestTracker loads an empty workspace driven by a manual scheduler, so
// autosaves only run when the test fires them.
func TestTracker(t *testing.T, opts ...workspace.Option) (*workspace.Tracker, *schedule.Manual) {
	t.Helper()
	sched := schedule.NewManual()
	opts = append([]workspace.Option{workspace.WithScheduler(sched)}, opts...)
	tr, err := workspace.Load(context.Background(), TestStore(t), opts...)
	if err != nil {
		t.Fatal(err)
	}
	return tr, sched
}

// TestSessions creates a tracker and a session manager sharing one manual
// scheduler. Open sessions are closed when the test ends.
func TestSessions(t *testing.T, notifier session.Notifier) (*workspace.Tracker, *session.Manager, *schedule.Manual) {
	t.Helper()
	tr, sched := TestTracker(t)
	mgr := session.NewManager(tr, notifier, session.WithScheduler(sched))
	t.Cleanup(func() { _ = mgr.CloseAll(context.Background()) })
	return tr, mgr, sched
}
