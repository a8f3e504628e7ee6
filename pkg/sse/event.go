// Package sse reads and writes Server-Sent Events. The reader parses
// streams from a llama.cpp server and from the chatmem API; the writer
// frames the token stream the API sends to chat clients.
//
// Event stream format:
// https://html.spec.whatwg.org/multipage/server-sent-events.html
package sse

// Done is the data payload that marks the end of a stream.
const Done = "[DONE]"

// Event is a single SSE event, delimited by a blank line in the byte stream.
type Event struct {
	// Type is the "event:" field. Empty means the default "message" type.
	Type string

	// Data holds every "data:" line of the event joined with "\n".
	Data string

	// ID is the "id:" field, if present.
	ID string
}

// IsDone reports whether the event is the end-of-stream marker.
func (e *Event) IsDone() bool {
	return e != nil && e.Data == Done
}
