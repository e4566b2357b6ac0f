package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// Frame is one scripted server-sent event.
type Frame struct {
	Event string
	Data  string
}

// JSONFrame builds a frame whose data is the JSON encoding of payload.
// With double set, the JSON text is encoded again as a JSON string, the way
// the memo backend pre-serializes its payloads.
func JSONFrame(t testing.TB, event string, payload any, double bool) Frame {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal %s payload: %v", event, err)
	}
	if double {
		data, err = json.Marshal(string(data))
		if err != nil {
			t.Fatalf("marshal %s payload twice: %v", event, err)
		}
	}
	return Frame{Event: event, Data: string(data)}
}

// EncodeFrames renders frames in the CRLF event-stream format.
func EncodeFrames(frames []Frame) string {
	var b strings.Builder
	for _, f := range frames {
		fmt.Fprintf(&b, "event: %s\r\ndata: %s\r\n\r\n", f.Event, f.Data)
	}
	return b.String()
}

// Script describes how the backend answers one endpoint.
type Script struct {
	Status int
	Frames []Frame
	// ChunkSize splits the encoded body into writes of this size when positive.
	ChunkSize int
	// Hold keeps the response open after the frames until the request ends.
	Hold bool
}

// Backend is a scripted memo backend for stream tests.
type Backend struct {
	Server *httptest.Server

	mu       sync.Mutex
	generate Script
	regen    Script
	requests []*http.Request
	bodies   []string
}

// StartBackend launches a scripted backend and closes it with the test.
func StartBackend(t *testing.T) *Backend {
	t.Helper()
	b := &Backend{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/generate", func(w http.ResponseWriter, r *http.Request) {
		b.serve(w, r, b.script(false))
	})
	mux.HandleFunc("/api/regenerate", func(w http.ResponseWriter, r *http.Request) {
		b.serve(w, r, b.script(true))
	})
	b.Server = httptest.NewServer(mux)
	t.Cleanup(b.Server.Close)
	return b
}

// URL returns the backend base URL.
func (b *Backend) URL() string {
	return b.Server.URL
}

// SetGenerate scripts GET /api/generate.
func (b *Backend) SetGenerate(script Script) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.generate = script
}

// SetRegenerate scripts POST /api/regenerate.
func (b *Backend) SetRegenerate(script Script) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.regen = script
}

// Requests returns the requests received so far with their bodies.
func (b *Backend) Requests() ([]*http.Request, []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*http.Request(nil), b.requests...), append([]string(nil), b.bodies...)
}

func (b *Backend) script(regen bool) Script {
	b.mu.Lock()
	defer b.mu.Unlock()
	if regen {
		return b.regen
	}
	return b.generate
}

func (b *Backend) serve(w http.ResponseWriter, r *http.Request, script Script) {
	body, _ := io.ReadAll(r.Body)
	b.mu.Lock()
	b.requests = append(b.requests, r)
	b.bodies = append(b.bodies, string(body))
	b.mu.Unlock()

	if script.Status != 0 && script.Status != http.StatusOK {
		http.Error(w, "scripted failure", script.Status)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	encoded := EncodeFrames(script.Frames)
	size := script.ChunkSize
	if size <= 0 {
		size = len(encoded)
	}
	for start := 0; start < len(encoded); start += size {
		end := min(start+size, len(encoded))
		if _, err := io.WriteString(w, encoded[start:end]); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
	if script.Hold {
		<-r.Context().Done()
	}
}
