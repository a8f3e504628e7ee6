package chat

import (
	"errors"

	"github.com/papercomputeco/chatmem/pkg/generation"
)

var (
	// ErrEmptyMessage rejects a turn whose message is blank. It is returned
	// before the generation resource is touched.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrMissingConversation rejects a follow-up turn without a conversation id.
	ErrMissingConversation = errors.New("conversation id is required")

	// ErrBusy is the immediate rejection returned while another generation
	// holds the resource. Callers are expected to retry.
	ErrBusy = errors.New("model is busy processing another request")

	// ErrShuttingDown rejects turns once Shutdown has begun.
	ErrShuttingDown = errors.New("chat coordinator is shutting down")

	// ErrNotLoaded reports that the generation resource is unavailable.
	ErrNotLoaded = generation.ErrNotLoaded

	// ErrStreamUsed is returned by a second call to Stream.Run.
	ErrStreamUsed = errors.New("stream already run")
)

// GenerationError is returned when the generation resource fails during a
// turn. Its message is safe to show to the user.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return "Sorry, error occurred: " + e.Err.Error()
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// Rejected reports whether err is one of the explicit admission rejections
// (busy, shutting down, not loaded) as opposed to a failure during the turn.
func Rejected(err error) bool {
	return errors.Is(err, ErrBusy) || errors.Is(err, ErrShuttingDown) || errors.Is(err, ErrNotLoaded)
}
