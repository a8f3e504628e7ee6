// Package generation defines the opaque text completion resource that the
// chat coordinator serializes access to. Backends live in subpackages and are
// selected by name through the backends package.
package generation

import (
	"context"
	"errors"
	"iter"
)

// ErrNotLoaded is returned when the generation resource is unavailable, either
// because its startup check failed or because it has been closed.
var ErrNotLoaded = errors.New("generation resource not loaded")

// Params are the sampling parameters of one completion call.
type Params struct {
	MaxTokens   int      `json:"max_tokens"`
	Temperature float64  `json:"temperature"`
	TopP        float64  `json:"top_p"`
	Stop        []string `json:"stop,omitempty"`
}

// DefaultParams are used for chat replies.
var DefaultParams = Params{
	MaxTokens:   512,
	Temperature: 0.7,
	TopP:        0.95,
	Stop:        []string{"<|eot_id|>"},
}

// Generator produces text from a prompt.
type Generator interface {
	// Complete returns the whole completion for prompt.
	Complete(ctx context.Context, prompt string, p Params) (string, error)

	// Stream yields completion fragments as they are produced. A non-nil
	// error ends the sequence.
	Stream(ctx context.Context, prompt string, p Params) iter.Seq2[string, error]

	// Close releases the resource. Later calls fail with ErrNotLoaded.
	Close() error
}

// Loader is implemented by generators that can verify, before serving, that
// the resource is reachable and the model is present.
type Loader interface {
	Load(ctx context.Context) error
}

// Load runs g's startup check if it has one. Failures wrap ErrNotLoaded.
func Load(ctx context.Context, g Generator) error {
	l, ok := g.(Loader)
	if !ok {
		return nil
	}
	if err := l.Load(ctx); err != nil {
		return errors.Join(ErrNotLoaded, err)
	}
	return nil
}

// Config selects and configures a backend.
type Config struct {
	// Provider is one of "llamacpp", "ollama" or "openai".
	Provider string

	// Target is the base URL of the generation server.
	Target string

	// Model names the model for backends that serve more than one.
	Model string

	// APIKey is sent to OpenAI-compatible servers that require one.
	APIKey string
}

// Fail returns a sequence that yields err once.
func Fail(err error) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		yield("", err)
	}
}
