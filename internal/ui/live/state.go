package live

import (
	"time"

	"irmemo/internal/memo"
	"irmemo/internal/progress"
	"irmemo/internal/session"
)

// StepRow holds UI state for a single progress step.
type StepRow struct {
	GroupID     string
	GroupLabel  string
	GroupStatus progress.Status
	ID          string
	Label       string
	Status      progress.Status
	Findings    *progress.Findings
}

// StatusCounts aggregates step counts by status.
type StatusCounts struct {
	Pending  int
	Running  int
	Complete int
	Error    int
}

// State captures the live UI state for a memo run.
type State struct {
	RunID      string
	Analyst    string
	Company    string
	StartedAt  time.Time
	FinishedAt time.Time
	LastEvent  string
	Rows       []StepRow
	Counts     StatusCounts
	Disclosure progress.Disclosure
	Document   memo.Document
	Regen      session.RegenState
	Err        error
	Done       bool
}

// Expanded returns the row whose findings panel is open.
func (s State) Expanded() (StepRow, bool) {
	if s.Disclosure.Expanded == "" {
		return StepRow{}, false
	}
	for _, row := range s.Rows {
		if row.ID == s.Disclosure.Expanded {
			return row, true
		}
	}
	return StepRow{}, false
}
