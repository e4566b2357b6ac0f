package live

import (
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"irmemo/internal/progress"
)

// Controls are the disclosure actions the view can trigger.
// *session.Controller implements it.
type Controls interface {
	ToggleFindings(id string) progress.Disclosure
	CollapseFindings() progress.Disclosure
}

// Options configures the live UI model.
type Options struct {
	NoColor      bool
	TickInterval time.Duration
	Controls     Controls
	// OnQuit runs when the user quits before the run ends.
	OnQuit func()
}

type keyMap struct {
	Up       key.Binding
	Down     key.Binding
	Toggle   key.Binding
	Collapse key.Binding
	Quit     key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Up:       key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:     key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Toggle:   key.NewBinding(key.WithKeys("enter", " "), key.WithHelp("enter", "findings")),
		Collapse: key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "collapse")),
		Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// Model renders a live console UI using Bubble Tea.
type Model struct {
	state        State
	table        table.Model
	findings     viewport.Model
	spinner      spinner.Model
	help         help.Model
	keys         keyMap
	events       <-chan Event
	tickInterval time.Duration
	now          time.Time
	width        int
	opts         Options
}

// NewModel constructs a live UI model for an event stream.
func NewModel(events <-chan Event, opts Options) Model {
	tickInterval := opts.TickInterval
	if tickInterval <= 0 {
		tickInterval = 200 * time.Millisecond
	}
	t := table.New(
		table.WithColumns(defaultColumns()),
		table.WithRows([]table.Row{}),
		table.WithFocused(true),
		table.WithHeight(12),
	)
	t.SetStyles(tableStyles(opts.NoColor))
	spin := spinner.New(spinner.WithSpinner(spinner.Dot))
	if !opts.NoColor {
		spin.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("33"))
	}
	return Model{
		table:        t,
		findings:     viewport.New(100, 6),
		spinner:      spin,
		help:         help.New(),
		keys:         defaultKeys(),
		events:       events,
		tickInterval: tickInterval,
		now:          time.Now(),
		width:        100,
		opts:         opts,
	}
}

// State returns the current UI state.
func (m Model) State() State {
	return m.state
}

// Init starts ticking and waits for the first event.
func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForEvent(m.events), tick(m.tickInterval), m.spinner.Tick)
}

// Update consumes UI events, key presses and timer ticks.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = typed.Width
		m.table.SetWidth(typed.Width)
		m.table.SetHeight(max(typed.Height/2, 3))
		m.table.SetColumns(columnsForWidth(typed.Width))
		m.findings.Width = typed.Width
		m.findings.Height = max(typed.Height/4, 3)
		m = m.refresh()
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(typed)
	case EventMsg:
		m.state = Reduce(m.state, typed.Event, m.now)
		m = m.refresh()
		return m, waitForEvent(m.events)
	case tickMsg:
		m.now = time.Time(typed)
		return m, tick(m.tickInterval)
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(typed)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		if m.opts.OnQuit != nil && !m.state.Done {
			m.opts.OnQuit()
		}
		return m, tea.Quit
	case key.Matches(msg, m.keys.Toggle):
		row, ok := m.selected()
		if !ok || row.Findings == nil || m.opts.Controls == nil {
			return m, nil
		}
		m.state = withDisclosure(m.state, m.opts.Controls.ToggleFindings(row.ID))
		m = m.refresh()
		return m, nil
	case key.Matches(msg, m.keys.Collapse):
		if m.opts.Controls == nil {
			return m, nil
		}
		m.state = withDisclosure(m.state, m.opts.Controls.CollapseFindings())
		m = m.refresh()
		return m, nil
	}
	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// selected returns the step under the table cursor.
func (m Model) selected() (StepRow, bool) {
	cursor := m.table.Cursor()
	if cursor < 0 || cursor >= len(m.state.Rows) {
		return StepRow{}, false
	}
	return m.state.Rows[cursor], true
}

// refresh rebuilds the widgets from state.
func (m Model) refresh() Model {
	m.table.SetRows(rowsForState(m.state, m.width, m.opts.NoColor))
	m.findings.SetContent(renderFindings(m.state))
	return m
}

// View renders the live UI.
func (m Model) View() string {
	parts := []string{
		renderHeader(m.state, m.now, m.spinner.View(), m.opts.NoColor),
		renderSummary(m.state, m.opts.NoColor),
		m.table.View(),
	}
	if _, ok := m.state.Expanded(); ok {
		parts = append(parts, m.findings.View())
	}
	for _, extra := range []string{
		renderSections(m.state, m.opts.NoColor),
		renderRegen(m.state, m.opts.NoColor),
		renderFooter(m.state, m.opts.NoColor),
	} {
		if extra != "" {
			parts = append(parts, extra)
		}
	}
	parts = append(parts, m.help.ShortHelpView([]key.Binding{
		m.keys.Up, m.keys.Down, m.keys.Toggle, m.keys.Collapse, m.keys.Quit,
	}))
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

// EventMsg wraps a UI event for Bubble Tea.
type EventMsg struct {
	Event Event
}

// tickMsg carries a clock tick for updates.
type tickMsg time.Time

// waitForEvent blocks until a UI event is available.
func waitForEvent(events <-chan Event) tea.Cmd {
	return func() tea.Msg {
		if events == nil {
			return nil
		}
		event, ok := <-events
		if !ok {
			return tea.Quit()
		}
		return EventMsg{Event: event}
	}
}

// tick emits a periodic tick message.
func tick(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}
