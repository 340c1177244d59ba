package ws

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestSubscribeUnsubscribe(t *testing.T) {
	h := NewHub(100 * time.Millisecond)
	defer h.Close()
	if h.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	ch := h.Subscribe()
	if h.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}
	h.Unsubscribe(ch)
	if h.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
}

func TestPublishDelivery(t *testing.T) {
	h := NewHub(100 * time.Millisecond)
	defer h.Close()
	ch := h.Subscribe()
	defer h.Unsubscribe(ch)

	h.Publish(Event{Type: "note.created", Data: map[string]string{"path": "a.md"}})

	select {
	case msg := <-ch:
		var ev Event
		if err := json.Unmarshal(msg, &ev); err != nil {
			t.Fatalf("invalid JSON frame %q: %v", msg, err)
		}
		if ev.Type != "note.created" {
			t.Errorf("type = %q", ev.Type)
		}
		if data, ok := ev.Data.(map[string]any); !ok || data["path"] != "a.md" {
			t.Errorf("data = %+v", ev.Data)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestPublishNoteEvent_GraphThrottle(t *testing.T) {
	h := NewHub(500 * time.Millisecond)
	defer h.Close()
	ch := h.Subscribe()
	defer h.Unsubscribe(ch)

	// The first note event triggers graph.updated; an immediate second one
	// falls inside the throttle window.
	h.PublishNoteEvent("created", "a.md")
	h.PublishNoteEvent("updated", "b.md")

	time.Sleep(50 * time.Millisecond)
	graphCount := 0
	noteCount := 0
loop:
	for {
		select {
		case msg := <-ch:
			if strings.Contains(string(msg), "graph.updated") {
				graphCount++
			} else {
				noteCount++
			}
		default:
			break loop
		}
	}

	if noteCount != 2 {
		t.Errorf("note events = %d, want 2", noteCount)
	}
	if graphCount != 1 {
		t.Errorf("graph events = %d, want 1 (throttled)", graphCount)
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	h := NewHub(time.Second)
	defer h.Close()
	ch := h.Subscribe()
	defer h.Unsubscribe(ch)

	// Exceed the client buffer; the hub loop must not block.
	for i := 0; i < clientBuf+10; i++ {
		h.Publish(Event{Type: "test", Data: map[string]string{"i": "x"}})
	}
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	h := NewHub(100 * time.Millisecond)
	ch := h.Subscribe()
	if h.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}

	h.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}

	if h.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after close")
	}

	// Safe no-ops after close.
	h.Publish(Event{Type: "note.updated", Data: map[string]string{"path": "x.md"}})
	h.PublishNoteEvent("updated", "x.md")
	if ch := h.Subscribe(); h.ClientCount() != 0 {
		t.Error("subscribe after close registered a client")
	} else if _, ok := <-ch; ok {
		t.Error("subscribe after close returned an open channel")
	}
}

func TestServeHTTPStreamsEvents(t *testing.T) {
	h := NewHub(100 * time.Millisecond)
	defer h.Close()

	srv := httptest.NewServer(h)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	// Wait for the server side to register its subscription.
	deadline := time.Now().Add(time.Second)
	for h.ClientCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("handler never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	h.PublishNoteEvent("deleted", "gone.md")

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ev Event
	if err := json.Unmarshal(msg, &ev); err != nil {
		t.Fatalf("invalid frame %q: %v", msg, err)
	}
	if ev.Type != "note.deleted" {
		t.Errorf("type = %q", ev.Type)
	}

	// Disconnecting cleans the client up.
	conn.Close()
	deadline = time.Now().Add(time.Second)
	for h.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("client not cleaned up after disconnect")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
