package live

import (
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"irmemo/internal/memo"
)

// renderHeader renders the run header line.
func renderHeader(state State, now time.Time, spin string, noColor bool) string {
	line := "Memo"
	if state.Company != "" {
		line += " " + state.Company
	}
	if state.Analyst != "" {
		line += " | Analyst: " + state.Analyst
	}
	if state.RunID != "" {
		line += " | Run " + shortID(state.RunID)
	}
	if elapsed := formatElapsed(state, now); elapsed != "" {
		line += " | Elapsed: " + elapsed
	}
	if !state.Done && spin != "" {
		line = spin + " " + line
	}
	return stylize(line, noColor, lipgloss.Color("33"))
}

// renderSummary renders the status counts line.
func renderSummary(state State, noColor bool) string {
	counts := state.Counts
	line := "Pending: " + fmtInt(counts.Pending) +
		" Running: " + fmtInt(counts.Running) +
		" Complete: " + fmtInt(counts.Complete) +
		" Error: " + fmtInt(counts.Error)
	return stylize(line, noColor, lipgloss.Color("242"))
}

// renderFindings renders the expanded findings panel text.
func renderFindings(state State) string {
	row, ok := state.Expanded()
	if !ok {
		return ""
	}
	lines := append([]string{row.Label}, formatFindings(row)...)
	return strings.Join(lines, "\n")
}

// renderSections renders the ready sections in memo order.
func renderSections(state State, noColor bool) string {
	ids := state.Document.SectionIDs()
	if len(ids) == 0 {
		return ""
	}
	lines := make([]string, 0, len(ids)+2)
	lines = append(lines, stylize("Sections", noColor, lipgloss.Color("252")))
	for _, id := range ids {
		lines = append(lines, "  "+SectionLine(state.Document.Sections[id]))
	}
	if qc := state.Document.QualityCheck; qc != nil {
		lines = append(lines, "  quality: "+qualityLine(qc))
	}
	return strings.Join(lines, "\n")
}

func qualityLine(qc *memo.QualityCheck) string {
	line := qc.OverallStatus
	if qc.Summary != "" {
		line += " | " + truncate(qc.Summary, 80)
	}
	return line
}

// renderRegen renders the regeneration line.
func renderRegen(state State, noColor bool) string {
	regen := state.Regen
	if regen.Section == "" {
		return ""
	}
	line := "Regenerate " + regen.Section
	switch {
	case regen.Err != nil:
		return stylize(line+" failed: "+regen.Err.Error(), noColor, lipgloss.Color("196"))
	case regen.Done:
		line += " done"
	case regen.Active:
		line += " running"
	}
	if n := len(regen.Steps); n > 0 {
		line += " | " + regen.Steps[n-1]
	}
	return stylize(line, noColor, lipgloss.Color("39"))
}

// renderFooter renders the error or last event line.
func renderFooter(state State, noColor bool) string {
	if state.Err != nil {
		return stylize("Error: "+state.Err.Error(), noColor, lipgloss.Color("196"))
	}
	if state.LastEvent == "" {
		return ""
	}
	return stylize("Last event: "+state.LastEvent, noColor, lipgloss.Color("244"))
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
