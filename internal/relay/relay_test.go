package relay

import (
	"errors"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"irmemo/internal/memo"
	"irmemo/internal/progress"
	"irmemo/internal/session"
	"irmemo/internal/testutil"
)

func TestSubscribeReceivesLatestMessage(t *testing.T) {
	hub := NewHub(nil)
	hub.OnSection(session.Snapshot{RunID: "r1"}, "bio")

	messages, unsubscribe := hub.Subscribe()
	defer unsubscribe()
	select {
	case msg := <-messages:
		if msg.Type != "section" || msg.Section != "bio" || msg.Snapshot.RunID != "r1" {
			t.Fatalf("unexpected message %#v", msg)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected latest message on subscribe")
	}
}

func TestSlowSubscriberDropsOldest(t *testing.T) {
	hub := NewHub(nil)
	messages, unsubscribe := hub.Subscribe()
	defer unsubscribe()

	for i := 0; i < subscriberBuffer+5; i++ {
		hub.OnStepUpdate(session.Snapshot{}, "step")
	}
	hub.OnComplete(session.Snapshot{Done: true})

	var last Message
	count := 0
	for len(messages) > 0 {
		last = <-messages
		count++
	}
	if count != subscriberBuffer {
		t.Fatalf("expected a full buffer of %d, got %d", subscriberBuffer, count)
	}
	if last.Type != "complete" {
		t.Fatalf("terminal message was dropped, last=%q", last.Type)
	}
}

func TestCloseEndsSubscriptions(t *testing.T) {
	hub := NewHub(nil)
	messages, unsubscribe := hub.Subscribe()
	hub.Close()
	if _, ok := <-messages; ok {
		t.Fatalf("expected closed channel")
	}
	unsubscribe()
	hub.OnComplete(session.Snapshot{})
	late, _ := hub.Subscribe()
	if _, ok := <-late; ok {
		t.Fatalf("expected subscription after close to be closed")
	}
	if hub.Subscribers() != 0 {
		t.Fatalf("expected no subscribers")
	}
}

func TestErrorMessagesCarryText(t *testing.T) {
	hub := NewHub(nil)
	messages, unsubscribe := hub.Subscribe()
	defer unsubscribe()
	hub.OnRegenError(session.Snapshot{Regen: session.RegenState{Section: "peer"}}, errors.New("Memo not found"))
	msg := <-messages
	if msg.Type != "regen_error" || msg.Section != "peer" || msg.Error != "Memo not found" {
		t.Fatalf("unexpected message %#v", msg)
	}
}

func TestServerStreamsAndAppliesCommands(t *testing.T) {
	hub := NewHub(nil)
	controls := &fakeControls{}
	srv := NewServer(hub, controls, 100, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	wsURL := strings.Replace(ts.URL, "http://", "ws://", 1) + "/events"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("websocket dial failed status=%d err=%v", status, err)
	}
	defer conn.Close()
	testutil.Eventually(t, time.Second, 10*time.Millisecond, func() bool {
		return hub.Subscribers() == 1
	}, "relay client never subscribed")

	doc := memo.Document{Sections: map[string]memo.Section{"bio": {ID: "bio", Content: "Hello"}}}
	hub.OnSection(session.Snapshot{RunID: "r1", Document: doc}, "bio")

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg map[string]any
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read message: %v", err)
	}
	if msg["type"] != "section" || msg["section"] != "bio" {
		t.Fatalf("unexpected message %#v", msg)
	}
	snapshot, _ := msg["snapshot"].(map[string]any)
	if snapshot["run_id"] != "r1" {
		t.Fatalf("unexpected snapshot %#v", snapshot)
	}

	if err := conn.WriteJSON(Command{Action: "toggle", ID: "c1"}); err != nil {
		t.Fatalf("write command: %v", err)
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read disclosure: %v", err)
	}
	if msg["type"] != "disclosure" || msg["step"] != "c1" {
		t.Fatalf("expected toggle applied, got %#v", msg)
	}
	if got := controls.applied(); !slices.Equal(got, []string{"toggle:c1"}) {
		t.Fatalf("unexpected actions %v", got)
	}
}

// TestServerExpandCommand verifies expand is forwarded as its own action and
// unknown actions publish nothing.
func TestServerExpandCommand(t *testing.T) {
	hub := NewHub(nil)
	controls := &fakeControls{}
	srv := NewServer(hub, controls, 100, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	wsURL := strings.Replace(ts.URL, "http://", "ws://", 1) + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v", err)
	}
	defer conn.Close()
	testutil.Eventually(t, time.Second, 10*time.Millisecond, func() bool {
		return hub.Subscribers() == 1
	}, "relay client never subscribed")

	for _, cmd := range []Command{{Action: "shrug", ID: "c9"}, {Action: "expand", ID: "c2"}, {Action: "expand", ID: "c2"}} {
		if err := conn.WriteJSON(cmd); err != nil {
			t.Fatalf("write command: %v", err)
		}
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for i := range 2 {
		var msg map[string]any
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read disclosure %d: %v", i, err)
		}
		snapshot, _ := msg["snapshot"].(map[string]any)
		disclosure, _ := snapshot["disclosure"].(map[string]any)
		if msg["type"] != "disclosure" || msg["step"] != "c2" || disclosure["expanded"] != "c2" {
			t.Fatalf("unexpected disclosure message %#v", msg)
		}
	}
	if got := controls.applied(); !slices.Equal(got, []string{"expand:c2", "expand:c2"}) {
		t.Fatalf("unexpected actions %v", got)
	}
}

func TestServerStartAndShutdown(t *testing.T) {
	hub := NewHub(nil)
	srv := NewServer(hub, nil, 0, nil)
	if err := srv.Start("127.0.0.1:0"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if srv.Addr() == "" {
		t.Fatalf("expected bound address")
	}
	if err := srv.Shutdown(testutil.Context(t, time.Second)); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

type fakeControls struct {
	mu      sync.Mutex
	last    string
	actions []string
}

func (f *fakeControls) record(action, id string) progress.Disclosure {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.last = id
	f.actions = append(f.actions, action+":"+id)
	return progress.Disclosure{Expanded: id}
}

func (f *fakeControls) ToggleFindings(id string) progress.Disclosure {
	return f.record("toggle", id)
}

func (f *fakeControls) ExpandFindings(id string) progress.Disclosure {
	return f.record("expand", id)
}

func (f *fakeControls) CollapseFindings() progress.Disclosure {
	return f.record("collapse", "")
}

func (f *fakeControls) Snapshot() session.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return session.Snapshot{Disclosure: progress.Disclosure{Expanded: f.last}}
}

func (f *fakeControls) applied() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.actions...)
}
