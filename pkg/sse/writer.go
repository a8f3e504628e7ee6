package sse

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

type flusher interface {
	Flush() error
}

// Writer frames events onto an io.Writer. When the underlying writer can
// flush (a *bufio.Writer, for instance) every event is flushed as soon as it
// is written so tokens reach the client without delay.
type Writer struct {
	w io.Writer
}

// NewWriter returns a Writer over w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteEvent writes ev. Multi-line data is split into one "data:" line per
// line.
func (w *Writer) WriteEvent(ev Event) error {
	var b strings.Builder
	if ev.ID != "" {
		fmt.Fprintf(&b, "id: %s\n", ev.ID)
	}
	if ev.Type != "" {
		fmt.Fprintf(&b, "event: %s\n", ev.Type)
	}
	for line := range strings.SplitSeq(ev.Data, "\n") {
		fmt.Fprintf(&b, "data: %s\n", line)
	}
	b.WriteString("\n")

	if _, err := io.WriteString(w.w, b.String()); err != nil {
		return err
	}
	if f, ok := w.w.(flusher); ok {
		return f.Flush()
	}
	return nil
}

// WriteJSON writes v, JSON encoded, as the data of a default event.
func (w *Writer) WriteJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	return w.WriteEvent(Event{Data: string(data)})
}

// WriteDone writes the end-of-stream marker.
func (w *Writer) WriteDone() error {
	return w.WriteEvent(Event{Data: Done})
}
