package live

import (
	"time"

	"irmemo/internal/progress"
	"irmemo/internal/session"
)

// Reduce applies a UI event to the state. Each event carries a full snapshot,
// so state is replaced rather than patched.
func Reduce(state State, event Event, now time.Time) State {
	if event.Kind == EventRunStart {
		state = State{StartedAt: now}
	}
	state = applySnapshot(state, event.Snapshot)
	if state.StartedAt.IsZero() {
		state.StartedAt = now
	}
	if event.Kind == EventRunEnd && state.FinishedAt.IsZero() {
		state.FinishedAt = now
	}
	if event.Err != nil && event.Kind == EventRunEnd {
		state.Err = event.Err
	}
	if message := formatLastEvent(event); message != "" {
		state.LastEvent = message
	}
	return state
}

// applySnapshot copies the controller state into the UI state.
func applySnapshot(state State, snap session.Snapshot) State {
	state.RunID = snap.RunID
	state.Analyst = snap.Request.Analyst
	if snap.Document.AnalystName != "" {
		state.Analyst = snap.Document.AnalystName
	}
	state.Company = snap.Request.Company
	if snap.Document.Company != "" {
		state.Company = snap.Document.Company
	}
	state.Rows = rowsFromModel(snap.Progress)
	state.Counts = recount(state.Rows)
	state.Disclosure = snap.Disclosure
	state.Document = snap.Document
	state.Regen = snap.Regen
	state.Err = snap.Err
	state.Done = snap.Done
	return state
}

// rowsFromModel flattens the progress tree into display rows.
func rowsFromModel(model progress.Model) []StepRow {
	rows := make([]StepRow, 0, model.Total())
	for _, group := range model.Groups {
		status := progress.GroupStatus(group)
		for _, child := range group.Children {
			rows = append(rows, StepRow{
				GroupID:     group.ID,
				GroupLabel:  group.Label,
				GroupStatus: status,
				ID:          child.ID,
				Label:       child.Label,
				Status:      child.Status,
				Findings:    child.Findings,
			})
		}
	}
	return rows
}

// recount recalculates status buckets.
func recount(rows []StepRow) StatusCounts {
	var counts StatusCounts
	for _, row := range rows {
		switch row.Status {
		case progress.StatusRunning:
			counts.Running++
		case progress.StatusComplete:
			counts.Complete++
		case progress.StatusError:
			counts.Error++
		default:
			counts.Pending++
		}
	}
	return counts
}

// withDisclosure returns state with a locally applied disclosure change.
func withDisclosure(state State, disclosure progress.Disclosure) State {
	state.Disclosure = disclosure
	return state
}
