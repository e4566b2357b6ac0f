package stream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"irmemo/internal/testutil"
)

// TestGenerateDeliversOrderedEventsAndCloses verifies push delivery, unwrapping, and terminal close.
func TestGenerateDeliversOrderedEventsAndCloses(t *testing.T) {
	backend := testutil.StartBackend(t)
	backend.SetGenerate(testutil.Script{
		ChunkSize: 7,
		Frames: []testutil.Frame{
			testutil.JSONFrame(t, "steps", map[string]any{"steps": []any{}}, true),
			{Event: "step_update", Data: "{broken"},
			testutil.JSONFrame(t, "step_update", map[string]any{"step": "bio_search", "status": "running"}, true),
			testutil.JSONFrame(t, "mystery", map[string]any{"x": 1}, false),
			testutil.JSONFrame(t, "complete", map[string]any{"memo_id": "m1"}, true),
			testutil.JSONFrame(t, "section", map[string]any{"section": "late"}, true),
		},
	})
	client := newTestClient(t, backend.URL())
	ctx := testutil.Context(t, 2*time.Second)

	conn, err := client.Generate(ctx, GenerateRequest{Analyst: "A. Name", Company: "MS", Sections: []string{"bio", "peer"}})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	events := collect(t, conn)
	kinds := kindsOf(events)
	want := []Kind{KindSteps, KindStepUpdate, KindComplete}
	if strings.Join(kinds, ",") != strings.Join(kindStrings(want), ",") {
		t.Fatalf("unexpected kinds %v", kinds)
	}
	var update map[string]string
	if err := json.Unmarshal(events[1].Payload, &update); err != nil {
		t.Fatalf("payload not unwrapped: %v (%s)", err, events[1].Payload)
	}
	if update["step"] != "bio_search" {
		t.Fatalf("unexpected payload %v", update)
	}
	if !conn.Closed() {
		t.Fatalf("expected connection closed after terminal event")
	}
	testutil.WaitDone(t, conn.Done(), time.Second, "job connection")

	requests, _ := backend.Requests()
	query := requests[0].URL.Query()
	if query.Get("analyst") != "A. Name" || query.Get("sections") != "bio,peer" || query.Get("company") != "MS" {
		t.Fatalf("unexpected query %v", query)
	}
	if requests[0].Method != http.MethodGet {
		t.Fatalf("expected GET, got %s", requests[0].Method)
	}
}

// TestGenerateNonSuccessStatus verifies a rejected request is a TransportError.
func TestGenerateNonSuccessStatus(t *testing.T) {
	backend := testutil.StartBackend(t)
	backend.SetGenerate(testutil.Script{Status: http.StatusInternalServerError})
	client := newTestClient(t, backend.URL())

	_, err := client.Generate(testutil.Context(t, time.Second), GenerateRequest{Analyst: "A"})
	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if transportErr.Status != http.StatusInternalServerError {
		t.Fatalf("unexpected status %d", transportErr.Status)
	}
}

// TestGeneratePrematureEndIsTransportError verifies a stream ending without a terminal event fails once.
func TestGeneratePrematureEndIsTransportError(t *testing.T) {
	backend := testutil.StartBackend(t)
	backend.SetGenerate(testutil.Script{
		Frames: []testutil.Frame{
			testutil.JSONFrame(t, "step_update", map[string]any{"step": "a", "status": "running"}, false),
		},
	})
	client := newTestClient(t, backend.URL())

	conn, err := client.Generate(testutil.Context(t, 2*time.Second), GenerateRequest{Analyst: "A"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	events := collect(t, conn)
	if len(events) != 2 {
		t.Fatalf("expected update plus transport error, got %v", kindsOf(events))
	}
	last := events[1]
	var transportErr *TransportError
	if last.Kind != KindTransportError || !errors.As(last.Err, &transportErr) {
		t.Fatalf("expected transport error event, got %#v", last)
	}
	if !errors.Is(last.Err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected unexpected EOF, got %v", last.Err)
	}
}

// TestCloseStopsHeldStream verifies Close is idempotent and suppresses transport errors.
func TestCloseStopsHeldStream(t *testing.T) {
	backend := testutil.StartBackend(t)
	backend.SetGenerate(testutil.Script{
		Hold: true,
		Frames: []testutil.Frame{
			testutil.JSONFrame(t, "steps", map[string]any{"steps": []any{}}, false),
		},
	})
	client := newTestClient(t, backend.URL())

	conn, err := client.Generate(testutil.Context(t, 2*time.Second), GenerateRequest{Analyst: "A"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	first := <-conn.Events()
	if first.Kind != KindSteps {
		t.Fatalf("expected steps, got %s", first.Kind)
	}
	conn.Close()
	conn.Close()
	events := collect(t, conn)
	for _, ev := range events {
		if ev.Kind == KindTransportError {
			t.Fatalf("unexpected transport error after close: %v", ev.Err)
		}
	}
}

// TestRegeneratePostsBodyAndFramesChunks verifies the chunked adapter end to end.
func TestRegeneratePostsBodyAndFramesChunks(t *testing.T) {
	backend := testutil.StartBackend(t)
	backend.SetRegenerate(testutil.Script{
		ChunkSize: 3,
		Frames: []testutil.Frame{
			testutil.JSONFrame(t, "regen_start", map[string]any{"section": "bio"}, true),
			testutil.JSONFrame(t, "regen_step", map[string]any{"section": "bio", "step": "Drafting"}, true),
			testutil.JSONFrame(t, "steps", map[string]any{"steps": []any{}}, true),
			testutil.JSONFrame(t, "regen_section", map[string]any{"section": "bio", "content": "New"}, true),
			testutil.JSONFrame(t, "regen_complete", map[string]any{"section": "bio"}, true),
		},
	})
	client := newTestClient(t, backend.URL())

	conn, err := client.Regenerate(testutil.Context(t, 2*time.Second), RegenerateRequest{
		Section:     "bio",
		Analyst:     "A. Name",
		Instruction: "shorter",
		MemoID:      "m1",
	})
	if err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	events := collect(t, conn)
	want := []Kind{KindRegenStart, KindRegenStep, KindRegenSection, KindRegenComplete}
	if strings.Join(kindsOf(events), ",") != strings.Join(kindStrings(want), ",") {
		t.Fatalf("unexpected kinds %v", kindsOf(events))
	}

	requests, bodies := backend.Requests()
	if requests[0].Method != http.MethodPost {
		t.Fatalf("expected POST, got %s", requests[0].Method)
	}
	var body map[string]any
	if err := json.Unmarshal([]byte(bodies[0]), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	for _, key := range []string{"section", "analyst", "instruction", "re_search", "memo_id", "current_content"} {
		if _, ok := body[key]; !ok {
			t.Fatalf("request body missing %q: %v", key, body)
		}
	}
}

// TestRegenerateNonSuccessShortCircuits verifies no events are read on a rejected request.
func TestRegenerateNonSuccessShortCircuits(t *testing.T) {
	backend := testutil.StartBackend(t)
	backend.SetRegenerate(testutil.Script{Status: http.StatusNotFound})
	client := newTestClient(t, backend.URL())

	conn, err := client.Regenerate(testutil.Context(t, time.Second), RegenerateRequest{Section: "bio"})
	if conn != nil {
		t.Fatalf("expected no connection")
	}
	var transportErr *TransportError
	if !errors.As(err, &transportErr) || transportErr.Status != http.StatusNotFound {
		t.Fatalf("expected 404 TransportError, got %v", err)
	}
}

// TestReplayRecognisesBothTables verifies replayed captures map job and regen names.
func TestReplayRecognisesBothTables(t *testing.T) {
	capture := testutil.EncodeFrames([]testutil.Frame{
		testutil.JSONFrame(t, "steps", map[string]any{"steps": []any{}}, true),
		testutil.JSONFrame(t, "regen_step", map[string]any{"section": "bio", "step": "x"}, false),
		testutil.JSONFrame(t, "server_error", map[string]any{"message": "boom"}, true),
	})
	conn := Replay(testutil.Context(t, time.Second), strings.NewReader(capture), ReplayOptions{ChunkSize: 5})
	events := collect(t, conn)
	want := []Kind{KindSteps, KindRegenStep, KindError}
	if strings.Join(kindsOf(events), ",") != strings.Join(kindStrings(want), ",") {
		t.Fatalf("unexpected kinds %v", kindsOf(events))
	}
	appErr := NewApplicationError(events[2])
	if appErr.Message != "boom" {
		t.Fatalf("unexpected application error %v", appErr)
	}
}

// TestNewClientRejectsBadURL verifies base URL validation.
func TestNewClientRejectsBadURL(t *testing.T) {
	for _, raw := range []string{"", "ftp://host", "::"} {
		if _, err := NewClient(raw, nil, nil); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	client, err := NewClient(baseURL, nil, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

// collect drains a connection with a deadline.
func collect(t *testing.T, conn *Connection) []Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var events []Event
	for {
		select {
		case ev, ok := <-conn.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-ctx.Done():
			conn.Close()
			t.Fatalf("timed out draining connection")
		}
	}
}

func kindsOf(events []Event) []string {
	out := make([]string, 0, len(events))
	for _, ev := range events {
		out = append(out, string(ev.Kind))
	}
	return out
}

func kindStrings(kinds []Kind) []string {
	out := make([]string, 0, len(kinds))
	for _, kind := range kinds {
		out = append(out, string(kind))
	}
	return out
}
