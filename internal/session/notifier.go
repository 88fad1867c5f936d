package session

import (
	"github.com/starford/stepsheet/internal/find"
	"github.com/starford/stepsheet/internal/steps"
)

// Notifier receives outbound notifications for the rendering layer. Calls
// are made while the session lock is held and must not block.
type Notifier interface {
	StateChange(fileID string, st find.State)
	TextMutated(fileID string)
	HighlightStep(fileID string, index int, b steps.Bounds)
	ScenarioTitleUpdate(fileID, title string, isPrimary bool)
}

// NopNotifier discards every notification.
type NopNotifier struct{}

func (NopNotifier) StateChange(string, find.State)           {}
func (NopNotifier) TextMutated(string)                       {}
func (NopNotifier) HighlightStep(string, int, steps.Bounds)  {}
func (NopNotifier) ScenarioTitleUpdate(string, string, bool) {}
