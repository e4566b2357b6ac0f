package stream

import (
	"bytes"
	"strings"
)

// Frame is one (event type, payload) pair cut from a chunked body.
type Frame struct {
	Type string
	Data string
}

// Assembler turns arbitrarily split body chunks into complete frames.
//
// Only complete lines are interpreted; the trailing partial line is kept
// until the next Feed, so the emitted frames do not depend on chunking.
type Assembler struct {
	buf     []byte
	pending string
}

// Feed consumes one chunk and returns the frames completed by it.
func (a *Assembler) Feed(chunk []byte) []Frame {
	a.buf = append(a.buf, chunk...)
	var frames []Frame
	for {
		idx := bytes.IndexByte(a.buf, '\n')
		if idx < 0 {
			break
		}
		line := string(a.buf[:idx])
		a.buf = a.buf[idx+1:]
		if frame, ok := a.line(strings.TrimSuffix(line, "\r")); ok {
			frames = append(frames, frame)
		}
	}
	if len(a.buf) == 0 {
		a.buf = nil
	}
	return frames
}

// Buffered returns the length of the incomplete trailing line.
func (a *Assembler) Buffered() int {
	return len(a.buf)
}

// line applies the framing grammar to one complete line.
func (a *Assembler) line(line string) (Frame, bool) {
	switch {
	case line == "":
		a.pending = ""
	case strings.HasPrefix(line, "event:"):
		a.pending = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
	case strings.HasPrefix(line, "data:"):
		if a.pending == "" {
			return Frame{}, false
		}
		frame := Frame{
			Type: a.pending,
			Data: strings.TrimSpace(strings.TrimPrefix(line, "data:")),
		}
		a.pending = ""
		return frame, true
	}
	return Frame{}, false
}
