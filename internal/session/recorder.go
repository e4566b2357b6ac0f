package session

import (
	"context"
	"time"

	"irmemo/internal/memo"
	"irmemo/internal/progress"
	"irmemo/internal/stream"
)

// RunKind distinguishes archived runs.
type RunKind string

const (
	// RunGenerate is a full memo generation.
	RunGenerate RunKind = "generate"
	// RunRegenerate is a single-section regeneration.
	RunRegenerate RunKind = "regenerate"
)

// RunInfo describes a run when it starts.
type RunInfo struct {
	ID        string
	Kind      RunKind
	Analyst   string
	Company   string
	Sections  []string
	Section   string
	MemoID    string
	StartedAt time.Time
}

// RunResult describes a run when it stops.
type RunResult struct {
	Status     string
	Error      string
	MemoID     string
	Document   memo.Document
	Progress   progress.Model
	FinishedAt time.Time
}

// Run result statuses.
const (
	StatusComplete = "complete"
	StatusFailed   = "error"
	StatusClosed   = "closed"
)

// Recorder persists runs and the events they received.
type Recorder interface {
	BeginRun(ctx context.Context, run RunInfo) error
	RecordEvent(ctx context.Context, runID string, seq int, ev stream.Event) error
	FinishRun(ctx context.Context, runID string, result RunResult) error
}
