package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"irmemo/internal/memo"
	"irmemo/internal/progress"
	"irmemo/internal/stream"
)

// ErrClosed is returned by Wait when a connection stopped without a terminal event.
var ErrClosed = errors.New("session: connection closed before completion")

// Opener opens backend streams. *stream.Client implements it.
type Opener interface {
	Generate(ctx context.Context, req stream.GenerateRequest) (*stream.Connection, error)
	Regenerate(ctx context.Context, req stream.RegenerateRequest) (*stream.Connection, error)
}

// RegenState is the progress of the current section regeneration.
type RegenState struct {
	RunID   string   `json:"run_id,omitempty"`
	Section string   `json:"section,omitempty"`
	Steps   []string `json:"steps,omitempty"`
	Active  bool     `json:"active"`
	Done    bool     `json:"done"`
	Err     error    `json:"-"`
}

// Snapshot is a read-only view of the controller state.
type Snapshot struct {
	RunID      string                 `json:"run_id,omitempty"`
	Request    stream.GenerateRequest `json:"request"`
	Progress   progress.Model         `json:"progress"`
	Disclosure progress.Disclosure    `json:"disclosure"`
	Document   memo.Document          `json:"document"`
	Regen      RegenState             `json:"regen"`
	Err        error                  `json:"-"`
	Done       bool                   `json:"done"`
}

// Option configures a Controller.
type Option func(*Controller)

// WithObserver sets the callback receiver.
func WithObserver(observer Observer) Option {
	return func(c *Controller) {
		if observer != nil {
			c.observer = observer
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.log = logger.WithPrefix("session")
		}
	}
}

// WithRecorder archives runs and their events.
func WithRecorder(recorder Recorder) Option {
	return func(c *Controller) {
		c.recorder = recorder
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// Controller owns the active job and regeneration connections and the state
// they feed. Starting a run closes anything still open and resets all state.
type Controller struct {
	opener   Opener
	observer Observer
	recorder Recorder
	log      *log.Logger
	now      func() time.Time

	mu       sync.Mutex
	jobGen   uint64
	regenGen uint64
	job      *stream.Connection
	regen    *stream.Connection
	scope    string
	state    Snapshot
	handles  map[*stream.Connection]*handle
}

// handle tracks the dispatch goroutine of one connection.
type handle struct {
	done chan struct{}
	err  error
}

// lane identifies which connection slot an event came from.
type lane int

const (
	jobLane lane = iota
	regenLane
)

// New builds a controller around an opener.
func New(opener Opener, opts ...Option) *Controller {
	c := &Controller{
		opener:   opener,
		observer: NopObserver{},
		log:      log.New(io.Discard),
		now:      time.Now,
		handles:  make(map[*stream.Connection]*handle),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StartRun closes any open connections, resets the state, and opens the job stream.
func (c *Controller) StartRun(ctx context.Context, req stream.GenerateRequest) (*stream.Connection, error) {
	c.mu.Lock()
	c.closeLocked()
	c.jobGen++
	gen := c.jobGen
	runID := uuid.NewString()
	c.scope = ""
	c.state = Snapshot{
		RunID:    runID,
		Request:  req,
		Document: memo.Document{Company: req.Company},
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.log.Info("starting run", "run", runID, "analyst", req.Analyst, "company", req.Company, "sections", req.Sections)
	c.observer.OnRunStart(snap)
	c.begin(ctx, RunInfo{
		ID:        runID,
		Kind:      RunGenerate,
		Analyst:   req.Analyst,
		Company:   req.Company,
		Sections:  req.Sections,
		StartedAt: c.now(),
	})

	conn, err := c.opener.Generate(ctx, req)
	if err != nil {
		c.openFailed(ctx, jobLane, gen, runID, err)
		return nil, err
	}
	return c.attach(ctx, conn, jobLane, gen, runID)
}

// StartRegeneration closes any open regeneration and opens a new one for req.Section.
// Missing memo id, analyst and current content are taken from the live document.
func (c *Controller) StartRegeneration(ctx context.Context, req stream.RegenerateRequest) (*stream.Connection, error) {
	if req.Section == "" {
		return nil, fmt.Errorf("regeneration section is required")
	}
	c.mu.Lock()
	if c.regen != nil {
		c.regen.Close()
		c.regen = nil
	}
	c.regenGen++
	gen := c.regenGen
	runID := uuid.NewString()
	doc := c.state.Document
	if req.MemoID == "" {
		req.MemoID = doc.MemoID
	}
	if req.Analyst == "" {
		req.Analyst = firstNonEmpty(c.state.Request.Analyst, doc.AnalystName)
	}
	if req.CurrentContent == "" {
		if section, ok := doc.Section(req.Section); ok {
			req.CurrentContent = section.Content
		}
	}
	c.scope = req.Section
	c.state.Regen = RegenState{RunID: runID, Section: req.Section, Active: true}
	c.mu.Unlock()

	c.log.Info("starting regeneration", "run", runID, "section", req.Section, "memo", req.MemoID, "re_search", req.ReSearch)
	c.begin(ctx, RunInfo{
		ID:        runID,
		Kind:      RunRegenerate,
		Analyst:   req.Analyst,
		Company:   doc.Company,
		Section:   req.Section,
		MemoID:    req.MemoID,
		StartedAt: c.now(),
	})

	conn, err := c.opener.Regenerate(ctx, req)
	if err != nil {
		c.openFailed(ctx, regenLane, gen, runID, err)
		return nil, err
	}
	return c.attach(ctx, conn, regenLane, gen, runID)
}

// Resume closes any open connections and loads an archived document so a
// regeneration can target it without a live job.
func (c *Controller) Resume(doc memo.Document, analyst string) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
	c.scope = ""
	c.state = Snapshot{
		Request:  stream.GenerateRequest{Analyst: firstNonEmpty(analyst, doc.AnalystName), Company: doc.Company},
		Document: doc,
		Done:     true,
	}
	return c.snapshotLocked()
}

// Wait blocks until conn has been fully dispatched and returns the run's
// terminal error: nil on completion, the transport or application error on
// failure, ErrClosed when the connection was closed first.
func (c *Controller) Wait(conn *stream.Connection) error {
	c.mu.Lock()
	h, ok := c.handles[conn]
	c.mu.Unlock()
	if !ok {
		// Superseded connections are released once their reader stops.
		return ErrClosed
	}
	<-h.done
	c.mu.Lock()
	delete(c.handles, conn)
	c.mu.Unlock()
	return h.err
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// ToggleFindings expands the findings of id, or collapses them if expanded.
func (c *Controller) ToggleFindings(id string) progress.Disclosure {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Disclosure = c.state.Disclosure.Toggle(id)
	return c.state.Disclosure
}

// ExpandFindings expands the findings of id whether or not they are open.
func (c *Controller) ExpandFindings(id string) progress.Disclosure {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Disclosure = c.state.Disclosure.Expand(id)
	return c.state.Disclosure
}

// CollapseFindings collapses any expanded findings.
func (c *Controller) CollapseFindings() progress.Disclosure {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Disclosure = c.state.Disclosure.Collapse()
	return c.state.Disclosure
}

// Close closes any open connections. Events still in flight are dropped.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Controller) closeLocked() {
	if c.job != nil {
		c.job.Close()
		c.job = nil
	}
	if c.regen != nil {
		c.regen.Close()
		c.regen = nil
	}
	c.jobGen++
	c.regenGen++
	for conn, h := range c.handles {
		select {
		case <-h.done:
			delete(c.handles, conn)
		default:
		}
	}
}

func (c *Controller) snapshotLocked() Snapshot {
	snap := c.state
	snap.Regen.Steps = append([]string(nil), c.state.Regen.Steps...)
	return snap
}

// current reports whether gen is still the live generation of the lane.
func (c *Controller) current(l lane, gen uint64) bool {
	if l == regenLane {
		return c.regenGen == gen
	}
	return c.jobGen == gen
}

// attach registers conn and starts its dispatch goroutine.
func (c *Controller) attach(ctx context.Context, conn *stream.Connection, l lane, gen uint64, runID string) (*stream.Connection, error) {
	c.mu.Lock()
	if !c.current(l, gen) {
		c.mu.Unlock()
		conn.Close()
		c.finish(ctx, runID, RunResult{Status: StatusClosed, FinishedAt: c.now()})
		return nil, ErrClosed
	}
	if l == regenLane {
		c.regen = conn
	} else {
		c.job = conn
	}
	h := &handle{done: make(chan struct{})}
	c.handles[conn] = h
	c.mu.Unlock()

	go c.dispatch(ctx, conn, h, l, gen, runID)
	return conn, nil
}

// openFailed surfaces a connect error as the run's single error.
func (c *Controller) openFailed(ctx context.Context, l lane, gen uint64, runID string, err error) {
	c.log.Error("open stream failed", "run", runID, "err", err)
	c.mu.Lock()
	live := c.current(l, gen)
	if live {
		if l == regenLane {
			c.state.Regen.Active = false
			c.state.Regen.Err = err
		} else {
			c.state.Err = err
			c.state.Done = true
		}
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()

	if live {
		if l == regenLane {
			c.observer.OnRegenError(snap, err)
		} else {
			c.observer.OnError(snap, err)
		}
	}
	c.finish(ctx, runID, RunResult{Status: StatusFailed, Error: err.Error(), FinishedAt: c.now()})
}

// dispatch consumes one connection strictly in delivery order.
func (c *Controller) dispatch(ctx context.Context, conn *stream.Connection, h *handle, l lane, gen uint64, runID string) {
	defer close(h.done)
	terminal := false
	seq := 0
	for ev := range conn.Events() {
		seq++
		c.record(ctx, runID, seq, ev)
		snap, ok := c.apply(l, gen, ev)
		if !ok {
			c.log.Debug("dropping event from superseded connection", "run", runID, "kind", ev.Kind)
			continue
		}
		notify(c.observer, l, ev, snap)
		if ev.Terminal() {
			terminal = true
			h.err = terminalError(ev)
			break
		}
	}
	for range conn.Events() {
	}

	result := RunResult{Status: StatusComplete, FinishedAt: c.now()}
	switch {
	case !terminal:
		h.err = ErrClosed
		result.Status = StatusClosed
	case h.err != nil:
		result.Status = StatusFailed
		result.Error = h.err.Error()
	}
	snap := c.Snapshot()
	result.Document = snap.Document
	result.MemoID = snap.Document.MemoID
	if l == jobLane {
		result.Progress = snap.Progress
	}
	c.mu.Lock()
	if c.job == conn {
		c.job = nil
	}
	if c.regen == conn {
		c.regen = nil
	}
	if !c.current(l, gen) {
		delete(c.handles, conn)
	}
	c.mu.Unlock()
	c.log.Info("run finished", "run", runID, "status", result.Status, "events", seq)
	c.finish(ctx, runID, result)
}

// apply folds ev into the state if gen is still current for the lane.
func (c *Controller) apply(l lane, gen uint64, ev stream.Event) (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.current(l, gen) {
		return Snapshot{}, false
	}
	if l == regenLane {
		c.applyRegen(ev)
	} else {
		c.applyJob(ev)
	}
	return c.snapshotLocked(), true
}

func (c *Controller) applyJob(ev stream.Event) {
	acc := memo.Accumulator{Analyst: c.state.Request.Analyst, Now: c.now}
	switch ev.Kind {
	case stream.KindSteps, stream.KindStepUpdate:
		c.state.Progress = progress.Reduce(c.state.Progress, ev)
		c.state.Disclosure = c.state.Disclosure.Observe(c.state.Progress)
	case stream.KindComplete:
		c.state.Document = acc.Apply(c.state.Document, ev)
		c.state.Done = true
	case stream.KindError, stream.KindTransportError:
		c.state.Err = terminalError(ev)
		c.state.Done = true
	case stream.KindRegenStart, stream.KindRegenStep, stream.KindRegenSection,
		stream.KindRegenForecast, stream.KindRegenValuation:
		c.applyRegen(ev)
	case stream.KindRegenComplete, stream.KindRegenError:
		// A replayed regeneration capture ends the job lane too.
		c.applyRegen(ev)
		c.state.Err = c.state.Regen.Err
		c.state.Done = true
	default:
		c.state.Document = acc.Apply(c.state.Document, ev)
	}
}

func (c *Controller) applyRegen(ev stream.Event) {
	acc := memo.Accumulator{Analyst: c.state.Request.Analyst, Scope: c.scope, Now: c.now}
	regen := &c.state.Regen
	switch ev.Kind {
	case stream.KindRegenStart:
		regen.Active = true
		if regen.Section == "" {
			regen.Section = payloadField(ev.Payload).Section
		}
	case stream.KindRegenStep:
		if step := payloadField(ev.Payload).Step; step != "" {
			regen.Steps = append(append([]string(nil), regen.Steps...), step)
		}
	case stream.KindRegenComplete:
		c.state.Document = acc.Apply(c.state.Document, ev)
		regen.Active = false
		regen.Done = true
	case stream.KindRegenError, stream.KindTransportError:
		regen.Active = false
		regen.Err = terminalError(ev)
	default:
		c.state.Document = acc.Apply(c.state.Document, ev)
	}
}

// notify fires the callback matching ev.
func notify(o Observer, l lane, ev stream.Event, snap Snapshot) {
	switch ev.Kind {
	case stream.KindSteps:
		o.OnSteps(snap)
	case stream.KindStepUpdate:
		o.OnStepUpdate(snap, payloadField(ev.Payload).Step)
	case stream.KindSection:
		o.OnSection(snap, payloadField(ev.Payload).Section)
	case stream.KindForecast:
		o.OnForecast(snap)
	case stream.KindValuation:
		o.OnValuation(snap)
	case stream.KindQualityCheck:
		o.OnQualityCheck(snap)
	case stream.KindComplete:
		o.OnComplete(snap)
	case stream.KindError:
		o.OnError(snap, snap.Err)
	case stream.KindRegenStart:
		o.OnRegenStart(snap)
	case stream.KindRegenStep:
		o.OnRegenStep(snap, payloadField(ev.Payload).Step)
	case stream.KindRegenSection:
		o.OnRegenSection(snap, payloadField(ev.Payload).Section)
	case stream.KindRegenForecast:
		o.OnRegenForecast(snap)
	case stream.KindRegenValuation:
		o.OnRegenValuation(snap)
	case stream.KindRegenComplete:
		o.OnRegenComplete(snap)
	case stream.KindRegenError:
		o.OnRegenError(snap, snap.Regen.Err)
	case stream.KindTransportError:
		if l == regenLane {
			o.OnRegenError(snap, snap.Regen.Err)
		} else {
			o.OnError(snap, snap.Err)
		}
	}
}

// terminalError returns the error carried by a terminal event, if any.
func terminalError(ev stream.Event) error {
	switch ev.Kind {
	case stream.KindError, stream.KindRegenError:
		return stream.NewApplicationError(ev)
	case stream.KindTransportError:
		return ev.Err
	default:
		return nil
	}
}

type eventFields struct {
	Step    string `json:"step"`
	Section string `json:"section"`
}

func payloadField(raw json.RawMessage) eventFields {
	var fields eventFields
	_ = json.Unmarshal(raw, &fields)
	return fields
}

func (c *Controller) begin(ctx context.Context, run RunInfo) {
	if c.recorder == nil {
		return
	}
	if err := c.recorder.BeginRun(ctx, run); err != nil {
		c.log.Warn("archive run start failed", "run", run.ID, "err", err)
	}
}

func (c *Controller) record(ctx context.Context, runID string, seq int, ev stream.Event) {
	if c.recorder == nil {
		return
	}
	if err := c.recorder.RecordEvent(context.WithoutCancel(ctx), runID, seq, ev); err != nil {
		c.log.Warn("archive event failed", "run", runID, "seq", seq, "err", err)
	}
}

func (c *Controller) finish(ctx context.Context, runID string, result RunResult) {
	if c.recorder == nil {
		return
	}
	if err := c.recorder.FinishRun(context.WithoutCancel(ctx), runID, result); err != nil {
		c.log.Warn("archive run finish failed", "run", runID, "err", err)
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
