package sse

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/starford/stepsheet/internal/find"
	"github.com/starford/stepsheet/internal/steps"
	"github.com/starford/stepsheet/internal/workspace"
)

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}
	b.Unsubscribe(ch)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
}

func TestPublishDelivery(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.Publish(Event{Type: "scenario.title", Data: map[string]string{"fileId": "a"}})

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.Contains(s, "event: scenario.title") {
			t.Errorf("missing event type in %q", s)
		}
		if !strings.Contains(s, `"fileId":"a"`) {
			t.Errorf("missing data in %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

// drain collects the messages currently buffered for a client.
func drain(ch chan []byte) []string {
	time.Sleep(50 * time.Millisecond)
	var out []string
	for {
		select {
		case msg := <-ch:
			out = append(out, string(msg))
		default:
			return out
		}
	}
}

func TestTextMutated_ChangedThrottle(t *testing.T) {
	b := NewBroker(500 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// First mutation should trigger workspace.changed.
	b.TextMutated("f1")
	// Second mutation immediately should NOT trigger another workspace.changed.
	b.TextMutated("f2")

	changedCount := 0
	mutatedCount := 0
	for _, s := range drain(ch) {
		switch {
		case strings.Contains(s, "event: "+EventWorkspaceChanged):
			changedCount++
		case strings.Contains(s, "event: "+EventTextMutated):
			mutatedCount++
		}
	}

	if mutatedCount != 2 {
		t.Errorf("text.mutated events = %d, want 2", mutatedCount)
	}
	if changedCount != 1 {
		t.Errorf("workspace.changed events = %d, want 1 (throttled)", changedCount)
	}
}

func TestSessionNotifications(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.StateChange("f1", find.State{IsOpen: true, Query: "x", ActiveMatchIndex: -1})
	b.HighlightStep("f1", 2, steps.Bounds{Start: 10, End: 20})
	b.ScenarioTitleUpdate("f1", "Login", true)
	b.WorkspaceSaved(workspace.SaveResult{Trigger: "autosave"})
	b.WorkspaceSaved(workspace.SaveResult{Trigger: "flush", Err: errors.New("disk full")})
	b.FilesImported([]workspace.File{{ID: "a"}, {ID: "b"}})

	got := strings.Join(drain(ch), "")
	for _, want := range []string{
		`event: find.state` + "\n" + `data: {"fileId":"f1","state":{"isOpen":true`,
		`event: step.highlight` + "\n" + `data: {"end":20,"fileId":"f1","index":2,"start":10}`,
		`"isPrimary":true`,
		`event: workspace.saved` + "\n" + `data: {"trigger":"autosave"`,
		`event: workspace.save_failed` + "\n" + `data: {"error":"disk full","trigger":"flush"}`,
		`data: {"fileIds":["a","b"]}`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in %q", want, got)
		}
	}
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	// Start handler in background.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req = req.WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	// Give handler time to subscribe.
	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	b.Publish(Event{Type: "find.state", Data: map[string]string{"fileId": "x"}})
	time.Sleep(50 * time.Millisecond)

	// Cancel context to disconnect.
	cancel()
	<-done

	body := w.Body.String()
	if !strings.Contains(body, "event: find.state") {
		t.Errorf("handler output missing event: %q", body)
	}

	// Client should be cleaned up.
	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// Fill buffer (capacity 64) and then one more should not block.
	for i := 0; i < 70; i++ {
		b.Publish(Event{Type: "test", Data: map[string]string{"i": "x"}})
	}
	// If we reach here without deadlock, the test passes.
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}

	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}

	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after close")
	}

	// Should be safe no-op after close.
	b.Publish(Event{Type: "find.state", Data: map[string]string{"fileId": "x"}})
	b.TextMutated("x")
	b.HighlightStep("x", 0, steps.Bounds{})
}
