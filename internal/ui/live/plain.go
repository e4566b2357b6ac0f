package live

import (
	"fmt"
	"io"
	"sync"

	"irmemo/internal/progress"
	"irmemo/internal/session"
)

// Plain writes one line per progress change. It implements session.Observer
// for output that is not a terminal.
type Plain struct {
	mu     sync.Mutex
	out    io.Writer
	status map[string]progress.Status
}

var _ session.Observer = (*Plain)(nil)

// NewPlain builds a plain observer writing to out.
func NewPlain(out io.Writer) *Plain {
	return &Plain{out: out, status: map[string]progress.Status{}}
}

func (p *Plain) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = fmt.Fprintf(p.out, format+"\n", args...)
}

func (p *Plain) OnRunStart(s session.Snapshot) {
	p.mu.Lock()
	p.status = map[string]progress.Status{}
	p.mu.Unlock()
	p.printf("run %s started (analyst %q)", shortID(s.RunID), s.Request.Analyst)
}

func (p *Plain) OnSteps(s session.Snapshot) {
	p.printf("%d steps in %d groups", s.Progress.Total(), len(s.Progress.Groups))
}

// OnStepUpdate prints status changes only; findings-only updates are quiet.
func (p *Plain) OnStepUpdate(s session.Snapshot, step string) {
	child, ok := s.Progress.Child(step)
	if !ok {
		return
	}
	p.mu.Lock()
	prev := p.status[step]
	p.status[step] = child.Status
	p.mu.Unlock()
	if prev == child.Status {
		return
	}
	line := fmt.Sprintf("%s %s: %s", statusGlyph(child.Status), child.Label, child.Status)
	if headline := child.Findings.Headline(); headline != "" {
		line += " | " + truncate(headline, 80)
	}
	p.printf("%s", line)
}

func (p *Plain) OnSection(s session.Snapshot, section string) {
	if sec, ok := s.Document.Section(section); ok {
		p.printf("section %s", SectionLine(sec))
	}
}

func (p *Plain) OnForecast(s session.Snapshot) {
	p.OnSection(s, "forecast")
}

func (p *Plain) OnValuation(s session.Snapshot) {
	p.OnSection(s, "valuation")
}

func (p *Plain) OnQualityCheck(s session.Snapshot) {
	if qc := s.Document.QualityCheck; qc != nil {
		p.printf("quality %s", qualityLine(qc))
	}
}

func (p *Plain) OnComplete(s session.Snapshot) {
	p.printf("run complete: memo %s, %d sections", s.Document.MemoID, len(s.Document.Sections))
}

func (p *Plain) OnError(_ session.Snapshot, err error) {
	p.printf("run failed: %v", err)
}

func (p *Plain) OnRegenStart(s session.Snapshot) {
	p.printf("regenerating %s", s.Regen.Section)
}

func (p *Plain) OnRegenStep(_ session.Snapshot, step string) {
	p.printf("  %s", step)
}

func (p *Plain) OnRegenSection(s session.Snapshot, section string) {
	p.OnSection(s, section)
}

func (p *Plain) OnRegenForecast(s session.Snapshot) {
	p.OnSection(s, "forecast")
}

func (p *Plain) OnRegenValuation(s session.Snapshot) {
	p.OnSection(s, "valuation")
}

func (p *Plain) OnRegenComplete(s session.Snapshot) {
	p.printf("regeneration of %s complete", s.Regen.Section)
}

func (p *Plain) OnRegenError(s session.Snapshot, err error) {
	p.printf("regeneration of %s failed: %v", s.Regen.Section, err)
}
