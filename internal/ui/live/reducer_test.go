package live

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"irmemo/internal/memo"
	"irmemo/internal/progress"
	"irmemo/internal/session"
	"irmemo/internal/stream"
	"irmemo/internal/testutil"
)

// TestReduceBuildsRowsAndCounts verifies the progress tree is flattened.
func TestReduceBuildsRowsAndCounts(t *testing.T) {
	testutil.Within(t, time.Second, func() {
		start := time.Date(2025, time.March, 3, 9, 0, 0, 0, time.UTC)
		state := Reduce(State{}, Event{Kind: EventRunStart, Snapshot: snapshot()}, start)
		state = Reduce(state, Event{Kind: EventProgress, Step: "c1", Snapshot: snapshot()}, start.Add(time.Second))

		if len(state.Rows) != 3 {
			t.Fatalf("expected 3 rows, got %d", len(state.Rows))
		}
		if state.Rows[0].GroupStatus != progress.StatusRunning {
			t.Fatalf("expected running group, got %s", state.Rows[0].GroupStatus)
		}
		want := StatusCounts{Pending: 1, Running: 1, Complete: 1}
		if state.Counts != want {
			t.Fatalf("unexpected counts %#v", state.Counts)
		}
		if state.LastEvent != "Step c1 updated" || !state.StartedAt.Equal(start) {
			t.Fatalf("unexpected state %q %v", state.LastEvent, state.StartedAt)
		}
	})
}

// TestReduceRunEndRecordsError verifies failures reach the footer.
func TestReduceRunEndRecordsError(t *testing.T) {
	testutil.Within(t, time.Second, func() {
		now := time.Now()
		snap := snapshot()
		snap.Done = true
		state := Reduce(State{}, Event{Kind: EventRunEnd, Snapshot: snap, Err: errors.New("Excel missing")}, now)
		if state.Err == nil || !state.Done || state.FinishedAt.IsZero() {
			t.Fatalf("expected failed terminal state, got %#v", state)
		}
		if footer := renderFooter(state, true); footer != "Error: Excel missing" {
			t.Fatalf("unexpected footer %q", footer)
		}
	})
}

// TestRowsForStateMarksExpanded verifies group labels and the open marker.
func TestRowsForStateMarksExpanded(t *testing.T) {
	snap := snapshot()
	snap.Disclosure = progress.Disclosure{Expanded: "c1"}
	state := Reduce(State{}, Event{Kind: EventProgress, Snapshot: snap}, time.Now())
	rows := rowsForState(state, 120, true)
	if rows[0][0] != "Research" || rows[1][0] != "" || rows[2][0] != "Write" {
		t.Fatalf("unexpected group column %v", rows)
	}
	if !strings.HasPrefix(rows[0][3], "[open] Found 3 filings") {
		t.Fatalf("expected open marker, got %q", rows[0][3])
	}
	if rows[1][2] != "~ running" {
		t.Fatalf("unexpected status cell %q", rows[1][2])
	}
}

// TestModelToggleUsesControls verifies enter toggles findings of the selected step.
func TestModelToggleUsesControls(t *testing.T) {
	controls := &fakeControls{}
	model := NewModel(nil, Options{NoColor: true, Controls: controls})
	updated, _ := model.Update(EventMsg{Event: Event{Kind: EventProgress, Snapshot: snapshot()}})
	updated, _ = updated.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m := updated.(Model)
	if controls.toggled != "c1" {
		t.Fatalf("expected c1 toggled, got %q", controls.toggled)
	}
	if m.State().Disclosure.Expanded != "c1" {
		t.Fatalf("expected local disclosure update")
	}
	view := m.View()
	if !strings.Contains(view, "Found 3 filings") || !strings.Contains(view, "sec.gov") {
		t.Fatalf("expected findings panel in view:\n%s", view)
	}
	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if updated.(Model).State().Disclosure.Expanded != "" || !controls.collapsed {
		t.Fatalf("expected collapse")
	}
}

// TestModelQuitOnKey verifies q quits and notifies while the run is live.
func TestModelQuitOnKey(t *testing.T) {
	quit := false
	model := NewModel(nil, Options{NoColor: true, OnQuit: func() { quit = true }})
	_, cmd := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatalf("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok || !quit {
		t.Fatalf("expected quit message and callback")
	}
}

// TestWaitForEventQuitsOnClose verifies a closed event channel ends the program.
func TestWaitForEventQuitsOnClose(t *testing.T) {
	events := make(chan Event)
	close(events)
	if _, ok := waitForEvent(events)().(tea.QuitMsg); !ok {
		t.Fatalf("expected quit on closed channel")
	}
}

// TestViewShowsSectionsAndRegen verifies document and regeneration lines.
func TestViewShowsSectionsAndRegen(t *testing.T) {
	snap := snapshot()
	snap.Document = memo.Document{
		Company: "MS",
		Sections: map[string]memo.Section{
			"bio": {ID: "bio", Kind: memo.KindNarrative, Content: "one two three", Confidence: &memo.Confidence{Level: "High"}},
		},
	}
	snap.Regen = session.RegenState{Section: "bio", Active: true, Steps: []string{"Applying changes"}}
	state := Reduce(State{}, Event{Kind: EventRegen, Step: "Applying changes", Snapshot: snap}, time.Now())
	sections := renderSections(state, true)
	if !strings.Contains(sections, "bio | 3 words | confidence high") {
		t.Fatalf("unexpected sections %q", sections)
	}
	if regen := renderRegen(state, true); regen != "Regenerate bio running | Applying changes" {
		t.Fatalf("unexpected regen line %q", regen)
	}
}

// TestPlainPrintsStatusChanges verifies the plain observer skips repeats.
func TestPlainPrintsStatusChanges(t *testing.T) {
	var out strings.Builder
	plain := NewPlain(&out)
	snap := snapshot()
	plain.OnRunStart(session.Snapshot{RunID: "0123456789", Request: snap.Request})
	plain.OnStepUpdate(snap, "c2")
	plain.OnStepUpdate(snap, "c2")
	plain.OnStepUpdate(snap, "missing")
	plain.OnError(snap, errors.New("boom"))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	want := []string{
		`run 01234567 started (analyst "A. Name")`,
		"~ Read filings: running",
		"run failed: boom",
	}
	if len(lines) != len(want) {
		t.Fatalf("unexpected output %q", out.String())
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Fatalf("line %d: got %q want %q", i, lines[i], want[i])
		}
	}
}

func snapshot() session.Snapshot {
	return session.Snapshot{
		RunID:   "run-1",
		Request: stream.GenerateRequest{Analyst: "A. Name", Company: "MS"},
		Progress: progress.Model{Groups: []progress.StepGroup{
			{ID: "g1", Label: "Research", Children: []progress.StepChild{
				{ID: "c1", Label: "Search filings", Status: progress.StatusComplete, Findings: &progress.Findings{
					Summary: "Found 3 filings",
					Sources: []progress.Source{{Domain: "sec.gov"}},
				}},
				{ID: "c2", Label: "Read filings", Status: progress.StatusRunning},
			}},
			{ID: "g2", Label: "Write", Children: []progress.StepChild{
				{ID: "c3", Label: "Draft bio", Status: progress.StatusPending},
			}},
		}},
	}
}

type fakeControls struct {
	toggled   string
	collapsed bool
}

func (f *fakeControls) ToggleFindings(id string) progress.Disclosure {
	f.toggled = id
	return progress.Disclosure{Expanded: id}
}

func (f *fakeControls) CollapseFindings() progress.Disclosure {
	f.collapsed = true
	return progress.Disclosure{}
}
