package live

import (
	"io"
	"os"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"irmemo/internal/session"
)

// Display runs the live UI and implements session.Observer.
type Display struct {
	events    chan Event
	program   *tea.Program
	done      chan struct{}
	closeOnce sync.Once
	mu        sync.Mutex
	closed    bool
}

var _ session.Observer = (*Display)(nil)

// Start launches a live UI that writes to stdout.
func Start(stdout io.Writer, opts Options) *Display {
	if stdout == nil {
		stdout = os.Stdout
	}
	events := make(chan Event, 256)
	model := NewModel(events, opts)
	program := tea.NewProgram(model, tea.WithOutput(stdout), tea.WithAltScreen())
	display := &Display{
		events:  events,
		program: program,
		done:    make(chan struct{}),
	}
	go func() {
		_, _ = program.Run()
		close(display.done)
	}()
	return display
}

// Close signals the UI to stop once queued events are drawn.
func (d *Display) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.events)
		d.mu.Unlock()
	})
}

// Wait blocks until the UI has exited.
func (d *Display) Wait() {
	if d == nil {
		return
	}
	<-d.done
}

// Done is closed when the UI exits, including when the user quits.
func (d *Display) Done() <-chan struct{} {
	return d.done
}

func (d *Display) OnRunStart(s session.Snapshot) {
	d.send(Event{Kind: EventRunStart, Snapshot: s})
}

func (d *Display) OnSteps(s session.Snapshot) {
	d.send(Event{Kind: EventProgress, Snapshot: s})
}
func (d *Display) OnStepUpdate(s session.Snapshot, step string) {
	d.send(Event{Kind: EventProgress, Snapshot: s, Step: step})
}
func (d *Display) OnSection(s session.Snapshot, section string) {
	d.send(Event{Kind: EventSection, Snapshot: s, Section: section})
}
func (d *Display) OnForecast(s session.Snapshot) {
	d.send(Event{Kind: EventSection, Snapshot: s, Section: "forecast"})
}
func (d *Display) OnValuation(s session.Snapshot) {
	d.send(Event{Kind: EventSection, Snapshot: s, Section: "valuation"})
}
func (d *Display) OnQualityCheck(s session.Snapshot) {
	d.send(Event{Kind: EventQualityCheck, Snapshot: s})
}

func (d *Display) OnComplete(s session.Snapshot) {
	d.finish(Event{Kind: EventRunEnd, Snapshot: s})
}
func (d *Display) OnError(s session.Snapshot, err error) {
	d.finish(Event{Kind: EventRunEnd, Snapshot: s, Err: err})
}
func (d *Display) OnRegenStart(s session.Snapshot) {
	d.send(Event{Kind: EventRegen, Snapshot: s})
}
func (d *Display) OnRegenStep(s session.Snapshot, step string) {
	d.send(Event{Kind: EventRegen, Snapshot: s, Step: step})
}
func (d *Display) OnRegenSection(s session.Snapshot, section string) {
	d.send(Event{Kind: EventRegen, Snapshot: s, Section: section})
}
func (d *Display) OnRegenForecast(s session.Snapshot) {
	d.send(Event{Kind: EventRegen, Snapshot: s, Section: "forecast"})
}
func (d *Display) OnRegenValuation(s session.Snapshot) {
	d.send(Event{Kind: EventRegen, Snapshot: s, Section: "valuation"})
}
func (d *Display) OnRegenComplete(s session.Snapshot) {
	d.finish(Event{Kind: EventRegenEnd, Snapshot: s})
}
func (d *Display) OnRegenError(s session.Snapshot, err error) {
	d.finish(Event{Kind: EventRegenEnd, Snapshot: s, Err: err})
}

// send enqueues an event without blocking the caller. Every event carries
// the full snapshot, so a dropped one is repaired by the next.
func (d *Display) send(event Event) {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	select {
	case d.events <- event:
	default:
	}
}

// finish delivers a terminal event unless the UI already exited, then closes.
func (d *Display) finish(event Event) {
	if d == nil {
		return
	}
	d.mu.Lock()
	if !d.closed {
		select {
		case d.events <- event:
		case <-d.done:
		}
	}
	d.mu.Unlock()
	d.Close()
}
