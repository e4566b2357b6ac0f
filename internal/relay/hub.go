package relay

import (
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"irmemo/internal/session"
)

// Message is one relay frame. Every message carries the full snapshot so a
// client that missed earlier frames still renders the current state.
type Message struct {
	Type     string           `json:"type"`
	Step     string           `json:"step,omitempty"`
	Section  string           `json:"section,omitempty"`
	Error    string           `json:"error,omitempty"`
	At       time.Time        `json:"at"`
	Snapshot session.Snapshot `json:"snapshot"`
}

const subscriberBuffer = 32

// Hub fans session callbacks out to relay subscribers. It implements
// session.Observer; slow subscribers lose their oldest queued messages.
type Hub struct {
	log *log.Logger
	now func() time.Time

	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	last   *Message
	closed bool
}

type subscriber struct {
	out     chan Message
	dropped atomic.Int64
}

var _ session.Observer = (*Hub)(nil)

// NewHub builds an empty hub.
func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Hub{
		log:  logger.WithPrefix("relay"),
		now:  time.Now,
		subs: make(map[*subscriber]struct{}),
	}
}

// Subscribe registers a subscriber. The latest message, if any, is queued
// first. The returned func unsubscribes and closes the channel.
func (h *Hub) Subscribe() (<-chan Message, func()) {
	sub := &subscriber{out: make(chan Message, subscriberBuffer)}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(sub.out)
		return sub.out, func() {}
	}
	h.subs[sub] = struct{}{}
	if h.last != nil {
		sub.offer(*h.last)
	}
	h.mu.Unlock()

	var once sync.Once
	return sub.out, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subs[sub]; !ok {
				return
			}
			delete(h.subs, sub)
			close(sub.out)
			if n := sub.dropped.Load(); n > 0 {
				h.log.Debug("subscriber dropped messages", "count", n)
			}
		})
	}
}

// Subscribers returns the number of live subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Publish queues msg for every subscriber without blocking.
func (h *Hub) Publish(msg Message) {
	if msg.At.IsZero() {
		msg.At = h.now()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.last = &msg
	for sub := range h.subs {
		sub.offer(msg)
	}
}

// Close ends every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.subs {
		close(sub.out)
		delete(h.subs, sub)
	}
}

// offer enqueues msg, evicting the oldest queued message when full.
func (s *subscriber) offer(msg Message) {
	for {
		select {
		case s.out <- msg:
			return
		default:
		}
		select {
		case <-s.out:
			s.dropped.Add(1)
		default:
		}
	}
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// Observer callbacks publish one message each.

func (h *Hub) OnRunStart(s session.Snapshot) {
	h.Publish(Message{Type: "run_start", Snapshot: s})
}

func (h *Hub) OnSteps(s session.Snapshot) {
	h.Publish(Message{Type: "steps", Snapshot: s})
}
func (h *Hub) OnStepUpdate(s session.Snapshot, step string) {
	h.Publish(Message{Type: "step_update", Step: step, Snapshot: s})
}
func (h *Hub) OnSection(s session.Snapshot, section string) {
	h.Publish(Message{Type: "section", Section: section, Snapshot: s})
}
func (h *Hub) OnForecast(s session.Snapshot) {
	h.Publish(Message{Type: "forecast", Section: "forecast", Snapshot: s})
}
func (h *Hub) OnValuation(s session.Snapshot) {
	h.Publish(Message{Type: "valuation", Section: "valuation", Snapshot: s})
}
func (h *Hub) OnQualityCheck(s session.Snapshot) {
	h.Publish(Message{Type: "quality_check", Snapshot: s})
}

func (h *Hub) OnComplete(s session.Snapshot) {
	h.Publish(Message{Type: "complete", Snapshot: s})
}
func (h *Hub) OnError(s session.Snapshot, err error) {
	h.Publish(Message{Type: "error", Error: errorText(err), Snapshot: s})
}
func (h *Hub) OnRegenStart(s session.Snapshot) {
	h.Publish(Message{Type: "regen_start", Section: s.Regen.Section, Snapshot: s})
}
func (h *Hub) OnRegenStep(s session.Snapshot, step string) {
	h.Publish(Message{Type: "regen_step", Step: step, Section: s.Regen.Section, Snapshot: s})
}
func (h *Hub) OnRegenSection(s session.Snapshot, section string) {
	h.Publish(Message{Type: "regen_section", Section: section, Snapshot: s})
}
func (h *Hub) OnRegenForecast(s session.Snapshot) {
	h.Publish(Message{Type: "regen_forecast", Section: "forecast", Snapshot: s})
}
func (h *Hub) OnRegenValuation(s session.Snapshot) {
	h.Publish(Message{Type: "regen_valuation", Section: "valuation", Snapshot: s})
}
func (h *Hub) OnRegenComplete(s session.Snapshot) {
	h.Publish(Message{Type: "regen_complete", Section: s.Regen.Section, Snapshot: s})
}
func (h *Hub) OnRegenError(s session.Snapshot, err error) {
	h.Publish(Message{Type: "regen_error", Section: s.Regen.Section, Error: errorText(err), Snapshot: s})
}
