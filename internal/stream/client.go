package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/charmbracelet/log"
)

// HTTPDoer abstracts the HTTP client used to open streams.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// GenerateRequest selects the memo to generate.
type GenerateRequest struct {
	Analyst  string
	Company  string
	Sections []string
}

// RegenerateRequest is the JSON body of a section regeneration.
type RegenerateRequest struct {
	Section        string `json:"section"`
	Analyst        string `json:"analyst"`
	Instruction    string `json:"instruction"`
	ReSearch       bool   `json:"re_search"`
	MemoID         string `json:"memo_id"`
	CurrentContent string `json:"current_content"`
}

// Client opens job and regeneration streams against the memo backend.
type Client struct {
	baseURL   string
	http      HTTPDoer
	log       *log.Logger
	chunkSize int
}

// NewClient validates the backend URL and builds a client.
func NewClient(baseURL string, doer HTTPDoer, logger *log.Logger) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, fmt.Errorf("base url is required")
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("base url %q must use http or https", baseURL)
	}
	if doer == nil {
		doer = http.DefaultClient
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Client{
		baseURL:   trimmed,
		http:      doer,
		log:       logger.WithPrefix("stream"),
		chunkSize: 4096,
	}, nil
}

// Generate opens the push stream for a memo generation job.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (*Connection, error) {
	query := url.Values{}
	query.Set("analyst", req.Analyst)
	if req.Company != "" {
		query.Set("company", req.Company)
	}
	sections := "all"
	if len(req.Sections) > 0 {
		sections = strings.Join(req.Sections, ",")
	}
	query.Set("sections", sections)
	endpoint := c.baseURL + "/api/generate?" + query.Encode()

	conn := newConnection(ctx)
	httpReq, err := http.NewRequestWithContext(conn.ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")

	resp, err := c.open(conn, httpReq, "open job stream")
	if err != nil {
		return nil, err
	}

	src := newPushSource(conn, c.log)
	for name, kind := range jobKinds {
		src.on(name, kind)
	}
	c.log.Debug("job stream open", "analyst", req.Analyst, "sections", sections)
	go func() {
		defer conn.finish()
		defer resp.Body.Close()
		src.read(resp.Body)
	}()
	return conn, nil
}

// Regenerate opens the chunked stream for a single-section regeneration.
func (c *Client) Regenerate(ctx context.Context, req RegenerateRequest) (*Connection, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	conn := newConnection(ctx)
	httpReq, err := http.NewRequestWithContext(conn.ctx, http.MethodPost, c.baseURL+"/api/regenerate", bytes.NewReader(payload))
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.open(conn, httpReq, "open regeneration stream")
	if err != nil {
		return nil, err
	}
	c.log.Debug("regeneration stream open", "section", req.Section, "re_search", req.ReSearch)
	go func() {
		defer conn.finish()
		defer resp.Body.Close()
		readChunks(conn, resp.Body, c.chunkSize, RegenKind, c.log)
	}()
	return conn, nil
}

// open performs the request and rejects non-success statuses before any read.
func (c *Client) open(conn *Connection, req *http.Request, op string) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		conn.Close()
		return nil, &TransportError{Op: op, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		conn.Close()
		return nil, &TransportError{Op: op, Status: resp.StatusCode, Body: string(body)}
	}
	return resp, nil
}

// ReplayOptions configures Replay.
type ReplayOptions struct {
	ChunkSize int
	Logger    *log.Logger
}

// Replay runs the chunked read loop over a recorded stream.
// Both job and regeneration event names are recognised.
func Replay(ctx context.Context, r io.Reader, opts ReplayOptions) *Connection {
	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 4096
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	conn := newConnection(ctx)
	go func() {
		defer conn.finish()
		readChunks(conn, r, chunkSize, anyKind, logger.WithPrefix("replay"))
	}()
	return conn
}
