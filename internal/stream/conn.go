package stream

import (
	"context"
	"sync"
	"sync/atomic"
)

// eventBuffer bounds how far a reader may run ahead of the consumer.
const eventBuffer = 64

// Connection is one open stream. It is owned by whoever opened it.
//
// Events arrive in sender order on Events(). The channel is closed once the
// reader stops, either after a terminal event, a transport failure, or Close.
type Connection struct {
	events    chan Event
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	done      chan struct{}
	closed    atomic.Bool
}

// newConnection derives the connection lifetime from the parent context.
func newConnection(parent context.Context) *Connection {
	ctx, cancel := context.WithCancel(parent)
	return &Connection{
		events: make(chan Event, eventBuffer),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Events returns the ordered event channel.
func (c *Connection) Events() <-chan Event {
	return c.events
}

// Done is closed when the reader has stopped and Events is closed.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// Close stops the connection. Only the first call has an effect.
func (c *Connection) Close() {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.cancel()
	})
}

// Closed reports whether Close has taken effect.
func (c *Connection) Closed() bool {
	return c.closed.Load()
}

// emit delivers an event unless the connection was closed first.
func (c *Connection) emit(ev Event) bool {
	select {
	case <-c.ctx.Done():
		return false
	default:
	}
	select {
	case c.events <- ev:
	case <-c.ctx.Done():
		return false
	}
	if ev.Terminal() {
		c.Close()
	}
	return true
}

// fail delivers a transport error unless the failure was caused by Close.
func (c *Connection) fail(err *TransportError) {
	if c.ctx.Err() != nil {
		return
	}
	c.emit(Event{Kind: KindTransportError, Err: err})
}

// finish releases the reader side. It must run exactly once per reader.
func (c *Connection) finish() {
	c.Close()
	close(c.events)
	close(c.done)
}
