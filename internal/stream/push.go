package stream

import (
	"bufio"
	"io"
	"strings"

	"github.com/charmbracelet/log"
)

// maxLineBytes caps a single SSE line; forecast payloads stay well below it.
const maxLineBytes = 4 * 1024 * 1024

// pushSource parses a server-sent event stream the way a browser EventSource
// does and dispatches each message to the handler registered for its name.
type pushSource struct {
	conn     *Connection
	log      *log.Logger
	handlers map[string]func(data string)

	eventType string
	data      strings.Builder
	hasData   bool
}

// newPushSource builds a parser bound to a connection.
func newPushSource(conn *Connection, logger *log.Logger) *pushSource {
	return &pushSource{
		conn:     conn,
		log:      logger,
		handlers: make(map[string]func(data string)),
	}
}

// on registers the handler for one event name.
func (s *pushSource) on(name string, kind Kind) {
	s.handlers[name] = func(data string) {
		payload, err := Decode(data)
		if err != nil {
			s.log.Warn("dropping undecodable frame", "event", name, "err", err)
			return
		}
		s.conn.emit(Event{Kind: kind, Payload: payload})
	}
}

// read consumes the body until it ends, fails, or the connection closes.
func (s *pushSource) read(body io.Reader) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		s.line(strings.TrimSuffix(scanner.Text(), "\r"))
		if s.conn.ctx.Err() != nil {
			return
		}
	}
	if err := scanner.Err(); err != nil {
		s.conn.fail(&TransportError{Op: "read job stream", Err: err})
		return
	}
	s.conn.fail(&TransportError{Op: "read job stream", Err: io.ErrUnexpectedEOF})
}

// line applies one line of the event-stream format.
func (s *pushSource) line(line string) {
	if line == "" {
		s.dispatch()
		return
	}
	if strings.HasPrefix(line, ":") {
		return
	}
	field, value, found := strings.Cut(line, ":")
	if found {
		value = strings.TrimPrefix(value, " ")
	}
	switch field {
	case "event":
		s.eventType = value
	case "data":
		if s.hasData {
			s.data.WriteByte('\n')
		}
		s.data.WriteString(value)
		s.hasData = true
	}
}

// dispatch hands the buffered message to its handler and resets the buffer.
func (s *pushSource) dispatch() {
	name := s.eventType
	if name == "" {
		name = "message"
	}
	data := s.data.String()
	hasData := s.hasData
	s.eventType = ""
	s.data.Reset()
	s.hasData = false
	if !hasData {
		return
	}
	handler, ok := s.handlers[name]
	if !ok {
		s.log.Debug("ignoring unhandled event", "event", name)
		return
	}
	handler(data)
}
