package progress

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Status is the lifecycle state of a step.
type Status string

const (
	// StatusPending marks a step that has not started.
	StatusPending Status = "pending"
	// StatusRunning marks a step in progress.
	StatusRunning Status = "running"
	// StatusComplete marks a step that finished successfully.
	StatusComplete Status = "complete"
	// StatusError marks a step that failed.
	StatusError Status = "error"
)

// rank orders statuses along pending -> running -> terminal.
func (s Status) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusRunning:
		return 1
	case StatusComplete, StatusError:
		return 2
	default:
		return -1
	}
}

// Terminal reports whether the status is complete or error.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusError
}

// Model is the hierarchical progress of one job run.
type Model struct {
	Groups []StepGroup `json:"groups"`
}

// StepGroup is an ordered set of steps shown under one heading.
type StepGroup struct {
	ID       string      `json:"id"`
	Label    string      `json:"label"`
	Children []StepChild `json:"children"`
}

// StepChild is one tracked step.
type StepChild struct {
	ID       string    `json:"id"`
	Label    string    `json:"label"`
	Status   Status    `json:"status"`
	Findings *Findings `json:"findings,omitempty"`
}

// Source is a reference backing a finding or section.
type Source struct {
	URL    string `json:"url,omitempty"`
	Domain string `json:"domain"`
	Label  string `json:"label,omitempty"`
}

// PreviewRow is one label/value pair of a findings preview.
type PreviewRow struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Preview is a compact table attached to some findings.
type Preview struct {
	Type        string       `json:"type,omitempty"`
	Rows        []PreviewRow `json:"rows,omitempty"`
	LocalSource bool         `json:"local_source,omitempty"`
}

// Findings is evidence attached to a step: a plain note or a structured record.
type Findings struct {
	Note    string   `json:"-"`
	Summary string   `json:"summary,omitempty"`
	Sources []Source `json:"sources,omitempty"`
	Detail  string   `json:"detail,omitempty"`
	Preview *Preview `json:"preview,omitempty"`
}

// findingsRecord avoids recursion through Findings.UnmarshalJSON.
type findingsRecord Findings

// IsNote reports whether the findings are a plain text note.
func (f *Findings) IsNote() bool {
	return f != nil && f.Note != "" && f.Summary == "" && len(f.Sources) == 0 && f.Detail == "" && f.Preview == nil
}

// Headline returns the text to show in a collapsed findings row.
func (f *Findings) Headline() string {
	if f == nil {
		return ""
	}
	if f.Summary != "" {
		return f.Summary
	}
	if f.Note != "" {
		return f.Note
	}
	return f.Detail
}

// UnmarshalJSON accepts either a JSON string or a findings object.
func (f *Findings) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var note string
		if err := json.Unmarshal(trimmed, &note); err != nil {
			return err
		}
		*f = Findings{Note: note}
		return nil
	}
	var record findingsRecord
	if err := json.Unmarshal(trimmed, &record); err != nil {
		return fmt.Errorf("findings: %w", err)
	}
	*f = Findings(record)
	return nil
}

// MarshalJSON writes notes back as strings so round trips keep their shape.
func (f Findings) MarshalJSON() ([]byte, error) {
	if f.IsNote() {
		return json.Marshal(f.Note)
	}
	return json.Marshal(findingsRecord(f))
}

// Child returns the step with the given id.
func (m Model) Child(id string) (StepChild, bool) {
	for _, group := range m.Groups {
		for _, child := range group.Children {
			if child.ID == id {
				return child, true
			}
		}
	}
	return StepChild{}, false
}

// Counts tallies children by status.
func (m Model) Counts() map[Status]int {
	counts := make(map[Status]int, 4)
	for _, group := range m.Groups {
		for _, child := range group.Children {
			counts[child.Status]++
		}
	}
	return counts
}

// Total returns the number of steps.
func (m Model) Total() int {
	total := 0
	for _, group := range m.Groups {
		total += len(group.Children)
	}
	return total
}

// clone deep-copies the group and child slices. Findings are shared; they are
// replaced, never mutated in place.
func (m Model) clone() Model {
	groups := make([]StepGroup, len(m.Groups))
	for i, group := range m.Groups {
		group.Children = append([]StepChild(nil), group.Children...)
		groups[i] = group
	}
	return Model{Groups: groups}
}
