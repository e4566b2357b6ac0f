package live

import "irmemo/internal/session"

// EventKind identifies the type of live UI event.
type EventKind int

const (
	// EventRunStart signals the start of a job run.
	EventRunStart EventKind = iota
	// EventProgress delivers a steps or step update.
	EventProgress
	// EventSection delivers a finished section.
	EventSection
	// EventQualityCheck delivers the quality verdict.
	EventQualityCheck
	// EventRunEnd signals completion or failure of the job.
	EventRunEnd
	// EventRegen delivers regeneration progress.
	EventRegen
	// EventRegenEnd signals completion or failure of a regeneration.
	EventRegenEnd
)

// Event carries a UI update payload.
type Event struct {
	Kind     EventKind
	Snapshot session.Snapshot
	Step     string
	Section  string
	Err      error
}

// Terminal reports whether the event ends the work being displayed.
func (e Event) Terminal() bool {
	return e.Kind == EventRunEnd || e.Kind == EventRegenEnd
}
