package sse

import (
	"bufio"
	"io"
	"strings"
)

// Reader parses SSE events from a source. Every raw line it consumes is also
// copied to an optional destination, which lets the chat client keep a
// verbatim transcript of the stream it renders.
type Reader struct {
	scanner *bufio.Scanner
	dest    io.Writer

	current Event
	pending bool
}

// NewReader returns a Reader over src.
func NewReader(src io.Reader) *Reader {
	return NewTeeReader(src, io.Discard)
}

// NewTeeReader returns a Reader over src that writes every raw line it reads
// to dest.
func NewTeeReader(src io.Reader, dest io.Writer) *Reader {
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	return &Reader{
		scanner: scanner,
		dest:    dest,
	}
}

// Next blocks until a complete event is available and returns it. It returns
// nil, nil once the source is exhausted. A trailing event without its blank
// line terminator is still returned.
func (r *Reader) Next() (*Event, error) {
	for r.scanner.Scan() {
		line := r.scanner.Text()

		// The scanner strips the newline; put it back for the copy.
		if _, err := io.WriteString(r.dest, line+"\n"); err != nil {
			return nil, err
		}

		switch {
		case line == "":
			if r.pending {
				return r.flush(), nil
			}
		case strings.HasPrefix(line, ":"):
			// comment or keep-alive
		default:
			r.field(line)
		}
	}

	if err := r.scanner.Err(); err != nil {
		return nil, err
	}

	if r.pending {
		return r.flush(), nil
	}
	return nil, nil
}

// field accumulates one "name:value" line into the current event. A single
// space after the colon is dropped. Unknown fields, retry included, are
// ignored.
func (r *Reader) field(line string) {
	name, value, _ := strings.Cut(line, ":")
	value = strings.TrimPrefix(value, " ")

	switch name {
	case "data":
		if r.pending && r.current.Data != "" {
			r.current.Data += "\n"
		}
		r.current.Data += value
	case "event":
		r.current.Type = value
	case "id":
		r.current.ID = value
	default:
		return
	}
	r.pending = true
}

func (r *Reader) flush() *Event {
	ev := r.current
	r.current = Event{}
	r.pending = false
	return &ev
}
