package live

import (
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"irmemo/internal/memo"
	"irmemo/internal/progress"
)

// fmtInt converts an int to string.
func fmtInt(value int) string {
	return strconv.Itoa(value)
}

// truncate collapses whitespace and shortens text for a table cell.
func truncate(text string, limit int) string {
	normalized := strings.Join(strings.Fields(text), " ")
	if limit <= 3 || len(normalized) <= limit {
		return normalized
	}
	return normalized[:limit-3] + "..."
}

// statusGlyph returns the marker shown before a step.
func statusGlyph(status progress.Status) string {
	switch status {
	case progress.StatusRunning:
		return "~"
	case progress.StatusComplete:
		return "+"
	case progress.StatusError:
		return "x"
	default:
		return "."
	}
}

// formatStatus renders a status with optional color.
func formatStatus(status progress.Status, noColor bool) string {
	text := statusGlyph(status) + " " + string(status)
	if status == "" {
		text = statusGlyph(status) + " pending"
	}
	if noColor {
		return text
	}
	return statusStyle(status).Render(text)
}

// statusStyle selects a style for a given status.
func statusStyle(status progress.Status) lipgloss.Style {
	color := lipgloss.Color("246")
	switch status {
	case progress.StatusRunning:
		color = lipgloss.Color("33")
	case progress.StatusComplete:
		color = lipgloss.Color("42")
	case progress.StatusError:
		color = lipgloss.Color("196")
	}
	return lipgloss.NewStyle().Foreground(color)
}

// formatElapsed renders the run duration.
func formatElapsed(state State, now time.Time) string {
	if state.StartedAt.IsZero() {
		return ""
	}
	end := now
	if !state.FinishedAt.IsZero() {
		end = state.FinishedAt
	}
	return end.Sub(state.StartedAt).Round(100 * time.Millisecond).String()
}

// formatSources renders source domains as a comma list.
func formatSources(sources []progress.Source) string {
	seen := map[string]bool{}
	parts := make([]string, 0, len(sources))
	for _, source := range sources {
		label := source.Domain
		if label == "" {
			label = source.Label
		}
		if label == "" || seen[label] {
			continue
		}
		seen[label] = true
		parts = append(parts, label)
	}
	return strings.Join(parts, ", ")
}

// formatFindings renders an expanded findings panel body.
func formatFindings(row StepRow) []string {
	f := row.Findings
	if f == nil {
		return []string{"No findings yet."}
	}
	if f.IsNote() {
		return []string{f.Note}
	}
	var lines []string
	if f.Summary != "" {
		lines = append(lines, f.Summary)
	}
	if f.Detail != "" {
		lines = append(lines, f.Detail)
	}
	if f.Preview != nil {
		for _, pr := range f.Preview.Rows {
			lines = append(lines, "  "+pr.Label+": "+pr.Value)
		}
		if f.Preview.LocalSource {
			lines = append(lines, "  (local source)")
		}
	}
	if sources := formatSources(f.Sources); sources != "" {
		lines = append(lines, "Sources: "+sources)
	}
	return lines
}

// SectionLine renders a section as one summary line.
func SectionLine(section memo.Section) string {
	line := section.ID
	switch section.Kind {
	case memo.KindForecast:
		if section.Forecast != nil {
			line += " | " + fmtInt(len(section.Forecast.Rows)) + " rows"
			if section.Forecast.IsStale {
				line += " (stale)"
			}
		}
	case memo.KindValuation:
		if section.Valuation != nil {
			line += " | " + fmtInt(len(section.Valuation.TickerOrder)) + " tickers"
			if failed := section.Valuation.Failed(); len(failed) > 0 {
				line += " | failed: " + strings.Join(failed, ",")
			}
		}
	default:
		line += " | " + fmtInt(len(strings.Fields(section.Content))) + " words"
		if section.Confidence != nil && section.Confidence.Level != "" {
			line += " | confidence " + strings.ToLower(section.Confidence.Level)
		}
	}
	return line
}

// formatLastEvent returns the footer message for an event.
func formatLastEvent(event Event) string {
	switch event.Kind {
	case EventRunStart:
		return "Run started"
	case EventProgress:
		if event.Step != "" {
			return "Step " + event.Step + " updated"
		}
		return "Steps received"
	case EventSection:
		return "Section " + event.Section + " ready"
	case EventQualityCheck:
		return "Quality check received"
	case EventRunEnd:
		if event.Err != nil {
			return "Run failed: " + event.Err.Error()
		}
		return "Run complete"
	case EventRegen:
		if event.Step != "" {
			return "Regenerating " + event.Snapshot.Regen.Section + ": " + event.Step
		}
		if event.Section != "" {
			return "Section " + event.Section + " regenerated"
		}
		return "Regeneration started"
	case EventRegenEnd:
		if event.Err != nil {
			return "Regeneration failed: " + event.Err.Error()
		}
		return "Regeneration complete"
	default:
		return ""
	}
}

// stylize applies optional color styling.
func stylize(text string, noColor bool, color lipgloss.Color) string {
	if noColor || text == "" {
		return text
	}
	return lipgloss.NewStyle().Foreground(color).Render(text)
}
