// Package sse implements a Server-Sent Events broker that relays editing
// session notifications to the rendering layer.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/starford/stepsheet/internal/find"
	"github.com/starford/stepsheet/internal/steps"
	"github.com/starford/stepsheet/internal/workspace"
)

// Event types.
const (
	EventFindState        = "find.state"
	EventTextMutated      = "text.mutated"
	EventStepHighlight    = "step.highlight"
	EventScenarioTitle    = "scenario.title"
	EventWorkspaceChanged = "workspace.changed"
	EventWorkspaceSaved   = "workspace.saved"
	EventSaveFailed       = "workspace.save_failed"
	EventFilesImported    = "files.imported"
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Broker manages SSE client connections and broadcasts events.
//
// Concurrency model: a single internal event loop (goroutine) owns mutable state
// (clients + workspace.changed throttle timestamp). Public methods communicate
// with this loop through channels, so no mutexes are required.
type Broker struct {
	changedMin time.Duration

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	mutatedCh     chan string
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a new SSE broker. workspace.changed events are sent at
// most once per changedThrottle.
func NewBroker(changedThrottle time.Duration) *Broker {
	if changedThrottle <= 0 {
		changedThrottle = 2 * time.Second
	}

	b := &Broker{
		changedMin:    changedThrottle,
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		mutatedCh:     make(chan string, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var lastChanged time.Time

	broadcast := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		raw := []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, payload))

		for ch := range clients {
			select {
			case ch <- raw:
			default:
				// Client buffer full; skip to avoid blocking broker loop.
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.subscribeCh:
			clients[ch] = struct{}{}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case fileID := <-b.mutatedCh:
			broadcast(Event{Type: EventTextMutated, Data: map[string]string{"fileId": fileID}})

			now := time.Now()
			if now.Sub(lastChanged) >= b.changedMin {
				lastChanged = now
				broadcast(Event{Type: EventWorkspaceChanged, Data: map[string]string{}})
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close gracefully stops broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client and returns its channel.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- ch:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// offer queues an event without waiting. Session notifications run under a
// session lock, so a saturated broker drops them instead.
func (b *Broker) offer(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	default:
	}
}

// StateChange publishes the find engine state of a session.
func (b *Broker) StateChange(fileID string, st find.State) {
	b.offer(Event{Type: EventFindState, Data: struct {
		FileID string     `json:"fileId"`
		State  find.State `json:"state"`
	}{fileID, st}})
}

// TextMutated publishes a text change and a throttled workspace.changed event.
func (b *Broker) TextMutated(fileID string) {
	if b.closed.Load() {
		return
	}
	select {
	case b.mutatedCh <- fileID:
	default:
	}
}

// HighlightStep asks clients to highlight a step span.
func (b *Broker) HighlightStep(fileID string, index int, bounds steps.Bounds) {
	b.offer(Event{Type: EventStepHighlight, Data: map[string]any{
		"fileId": fileID,
		"index":  index,
		"start":  bounds.Start,
		"end":    bounds.End,
	}})
}

// ScenarioTitleUpdate publishes the title of a document after an edit.
func (b *Broker) ScenarioTitleUpdate(fileID, title string, isPrimary bool) {
	b.offer(Event{Type: EventScenarioTitle, Data: map[string]any{
		"fileId":    fileID,
		"title":     title,
		"isPrimary": isPrimary,
	}})
}

// WorkspaceSaved reports the outcome of a persistence attempt.
func (b *Broker) WorkspaceSaved(res workspace.SaveResult) {
	if res.Err != nil {
		b.offer(Event{Type: EventSaveFailed, Data: map[string]string{
			"trigger": res.Trigger,
			"error":   res.Err.Error(),
		}})
		return
	}
	b.offer(Event{Type: EventWorkspaceSaved, Data: res})
}

// FilesImported announces files added outside an editing session.
func (b *Broker) FilesImported(files []workspace.File) {
	ids := make([]string, 0, len(files))
	for _, f := range files {
		ids = append(ids, f.ID)
	}
	b.offer(Event{Type: EventFilesImported, Data: map[string][]string{"fileIds": ids}})
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
