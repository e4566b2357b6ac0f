package stream

import (
	"errors"
	"io"

	"github.com/charmbracelet/log"
)

// readChunks is the sequential read loop of the chunked transport: read one
// increment, frame it, decode and deliver each frame, repeat.
func readChunks(conn *Connection, body io.Reader, chunkSize int, resolve func(string) (Kind, bool), logger *log.Logger) {
	var asm Assembler
	buf := make([]byte, chunkSize)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			for _, frame := range asm.Feed(buf[:n]) {
				deliverFrame(conn, frame, resolve, logger)
				if conn.ctx.Err() != nil {
					return
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			conn.fail(&TransportError{Op: "read stream", Err: err})
			return
		}
		if conn.ctx.Err() != nil {
			return
		}
	}
}

// deliverFrame maps, decodes, and emits one frame. Unknown types are skipped.
func deliverFrame(conn *Connection, frame Frame, resolve func(string) (Kind, bool), logger *log.Logger) {
	kind, ok := resolve(frame.Type)
	if !ok {
		logger.Debug("ignoring unknown frame type", "event", frame.Type)
		return
	}
	payload, err := Decode(frame.Data)
	if err != nil {
		logger.Warn("dropping undecodable frame", "event", frame.Type, "err", err)
		return
	}
	conn.emit(Event{Kind: kind, Payload: payload})
}
