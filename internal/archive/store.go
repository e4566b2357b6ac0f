package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"irmemo/internal/memo"
	"irmemo/internal/progress"
	"irmemo/internal/session"
	"irmemo/internal/stream"
)

// ErrNotFound is returned when a run or memo is not archived.
var ErrNotFound = errors.New("archive: not found")

// Store is a DuckDB-backed run archive. It implements session.Recorder.
type Store struct {
	db *sql.DB
}

var _ session.Recorder = (*Store)(nil)

// Open opens (creating if needed) the archive at path. ":memory:" opens a
// throwaway in-memory archive.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := path
	if path == ":memory:" {
		dsn = ""
	} else if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create archive directory: %w", err)
		}
	}
	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping archive: %w", err)
	}
	if err := EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply archive schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// BeginRun inserts a run row in the running state.
func (s *Store) BeginRun(ctx context.Context, run session.RunInfo) error {
	sections, err := json.Marshal(run.Sections)
	if err != nil {
		return fmt.Errorf("encode sections: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, kind, analyst, company, sections, section, memo_id, status, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 'running', ?)`,
		run.ID, string(run.Kind), run.Analyst, run.Company, string(sections), run.Section, run.MemoID, run.StartedAt.UTC(),
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// RecordEvent stores one delivered event.
func (s *Store) RecordEvent(ctx context.Context, runID string, seq int, ev stream.Event) error {
	var errText any
	if ev.Err != nil {
		errText = ev.Err.Error()
	}
	var payload any
	if len(ev.Payload) > 0 {
		payload = string(ev.Payload)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO events (run_id, seq, kind, wire_name, payload, error) VALUES (?, ?, ?, ?, ?, ?)`,
		runID, seq, string(ev.Kind), stream.WireName(ev.Kind), payload, errText,
	); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// FinishRun closes the run row and stores the final document.
func (s *Store) FinishRun(ctx context.Context, runID string, result session.RunResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin finish: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var errText any
	if result.Error != "" {
		errText = result.Error
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, memo_id = COALESCE(NULLIF(?, ''), memo_id),
		   event_count = (SELECT COUNT(*) FROM events WHERE events.run_id = ?), finished_at = ?
		 WHERE run_id = ?`,
		result.Status, errText, result.MemoID, runID, result.FinishedAt.UTC(), runID,
	); err != nil {
		return fmt.Errorf("update run: %w", err)
	}

	if len(result.Document.Sections) > 0 || result.Document.MemoID != "" {
		document, err := CanonicalJSON(result.Document)
		if err != nil {
			return fmt.Errorf("encode document: %w", err)
		}
		fingerprint, err := Fingerprint(result.Document)
		if err != nil {
			return err
		}
		progressJSON, err := json.Marshal(result.Progress)
		if err != nil {
			return fmt.Errorf("encode progress: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO documents (run_id, memo_id, fingerprint, document, progress) VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (run_id) DO UPDATE SET memo_id = excluded.memo_id, fingerprint = excluded.fingerprint,
			   document = excluded.document, progress = excluded.progress`,
			runID, result.Document.MemoID, fingerprint, string(document), string(progressJSON),
		); err != nil {
			return fmt.Errorf("upsert document: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit finish: %w", err)
	}
	return nil
}

// RunSummary is one row of the run history.
type RunSummary struct {
	ID         string
	Kind       string
	Analyst    string
	Company    string
	Sections   []string
	Section    string
	MemoID     string
	Status     string
	Error      string
	EventCount int
	StartedAt  time.Time
	FinishedAt *time.Time
}

// RunDetail is a run with its events and final document.
type RunDetail struct {
	RunSummary
	Events      []stream.Event
	Document    *memo.Document
	Progress    *progress.Model
	Fingerprint string
}

const runColumns = `run_id, kind, COALESCE(analyst, ''), COALESCE(company, ''), COALESCE(sections, 'null'),
	COALESCE(section, ''), COALESCE(memo_id, ''), status, COALESCE(error, ''), event_count, started_at, finished_at`

// History lists the most recent runs, newest first.
func (s *Store) History(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM runs ORDER BY started_at DESC, run_id LIMIT %d`, runColumns, limit))
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()
	var out []RunSummary
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// Show loads one run by id or unique id prefix.
func (s *Store) Show(ctx context.Context, runID string) (RunDetail, error) {
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return RunDetail{}, fmt.Errorf("run id is required")
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE starts_with(run_id, ?) ORDER BY (run_id = ?) DESC, started_at DESC LIMIT 2`,
		runID, runID)
	if err != nil {
		return RunDetail{}, fmt.Errorf("query run: %w", err)
	}
	var matches []RunSummary
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			rows.Close()
			return RunDetail{}, err
		}
		matches = append(matches, run)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return RunDetail{}, err
	}
	switch {
	case len(matches) == 0:
		return RunDetail{}, fmt.Errorf("run %q: %w", runID, ErrNotFound)
	case len(matches) > 1 && matches[0].ID != runID:
		return RunDetail{}, fmt.Errorf("run id prefix %q is ambiguous", runID)
	}
	detail := RunDetail{RunSummary: matches[0]}
	if detail.Events, err = s.events(ctx, detail.ID); err != nil {
		return RunDetail{}, err
	}
	if err := s.loadDocument(ctx, &detail); err != nil {
		return RunDetail{}, err
	}
	return detail, nil
}

// LatestDocument returns the newest archived document for a memo id.
func (s *Store) LatestDocument(ctx context.Context, memoID string) (memo.Document, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT d.document FROM documents d JOIN runs r ON r.run_id = d.run_id
		 WHERE d.memo_id = ? ORDER BY COALESCE(r.finished_at, r.started_at) DESC LIMIT 1`, memoID,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return memo.Document{}, fmt.Errorf("memo %q: %w", memoID, ErrNotFound)
	}
	if err != nil {
		return memo.Document{}, fmt.Errorf("query document: %w", err)
	}
	var doc memo.Document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return memo.Document{}, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}

// WriteCapture renders a run's events as an event stream that replay accepts.
func (s *Store) WriteCapture(ctx context.Context, runID string, w io.Writer) error {
	events, err := s.events(ctx, runID)
	if err != nil {
		return err
	}
	for _, ev := range events {
		name := stream.WireName(ev.Kind)
		if name == "" {
			continue
		}
		if _, err := fmt.Fprintf(w, "event: %s\r\ndata: %s\r\n\r\n", name, ev.Payload); err != nil {
			return fmt.Errorf("write capture: %w", err)
		}
	}
	return nil
}

func (s *Store) events(ctx context.Context, runID string) ([]stream.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, COALESCE(payload, ''), COALESCE(error, '') FROM events WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()
	var out []stream.Event
	for rows.Next() {
		var kind, payload, errText string
		if err := rows.Scan(&kind, &payload, &errText); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev := stream.Event{Kind: stream.Kind(kind)}
		if payload != "" {
			ev.Payload = json.RawMessage(payload)
		}
		if errText != "" {
			ev.Err = errors.New(errText)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *Store) loadDocument(ctx context.Context, detail *RunDetail) error {
	var document, fingerprint string
	var progressJSON sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT document, fingerprint, progress FROM documents WHERE run_id = ?`, detail.ID,
	).Scan(&document, &fingerprint, &progressJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("query document: %w", err)
	}
	var doc memo.Document
	if err := json.Unmarshal([]byte(document), &doc); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	detail.Document = &doc
	detail.Fingerprint = fingerprint
	if progressJSON.Valid && progressJSON.String != "" && progressJSON.String != "null" {
		var model progress.Model
		if err := json.Unmarshal([]byte(progressJSON.String), &model); err != nil {
			return fmt.Errorf("decode progress: %w", err)
		}
		detail.Progress = &model
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (RunSummary, error) {
	var run RunSummary
	var sections string
	var finished sql.NullTime
	if err := row.Scan(&run.ID, &run.Kind, &run.Analyst, &run.Company, &sections, &run.Section,
		&run.MemoID, &run.Status, &run.Error, &run.EventCount, &run.StartedAt, &finished); err != nil {
		return RunSummary{}, fmt.Errorf("scan run: %w", err)
	}
	if err := json.Unmarshal([]byte(sections), &run.Sections); err != nil {
		return RunSummary{}, fmt.Errorf("decode sections: %w", err)
	}
	if finished.Valid {
		at := finished.Time
		run.FinishedAt = &at
	}
	return run, nil
}
