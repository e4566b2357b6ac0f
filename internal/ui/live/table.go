package live

import (
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
)

// tableStyles returns table styles for the UI.
func tableStyles(noColor bool) table.Styles {
	if noColor {
		return table.DefaultStyles()
	}
	styles := table.DefaultStyles()
	styles.Header = styles.Header.Foreground(lipgloss.Color("252"))
	styles.Selected = styles.Selected.Foreground(lipgloss.Color("229")).Background(lipgloss.Color("57"))
	return styles
}

// defaultColumns returns the step table columns for an unknown width.
func defaultColumns() []table.Column {
	return columnsForWidth(100)
}

// columnsForWidth sizes the columns to the terminal width.
func columnsForWidth(width int) []table.Column {
	group, step, status := 18, 28, 12
	findings := max(width-group-step-status-8, 16)
	return []table.Column{
		{Title: "Group", Width: group},
		{Title: "Step", Width: step},
		{Title: "Status", Width: status},
		{Title: "Findings", Width: findings},
	}
}

// rowsForState converts UI state into table rows. The group label is shown
// on the first row of each group only.
func rowsForState(state State, width int, noColor bool) []table.Row {
	columns := columnsForWidth(width)
	rows := make([]table.Row, 0, len(state.Rows))
	lastGroup := ""
	for _, row := range state.Rows {
		group := ""
		if row.GroupID != lastGroup {
			group = truncate(row.GroupLabel, columns[0].Width)
			lastGroup = row.GroupID
		}
		headline := ""
		if row.Findings != nil {
			headline = row.Findings.Headline()
			if row.ID == state.Disclosure.Expanded {
				headline = "[open] " + headline
			}
		}
		rows = append(rows, table.Row{
			group,
			truncate(row.Label, columns[1].Width),
			formatStatus(row.Status, noColor),
			truncate(headline, columns[3].Width),
		})
	}
	return rows
}
