package testutils

import (
	"context"
	"iter"
	"strings"
	"sync"

	"github.com/papercomputeco/chatmem/pkg/generation"
)

// MockGenerator is a scripted generation.Generator.
type MockGenerator struct {
	// Tokens is the reply, streamed one element at a time and joined for
	// Complete.
	Tokens []string

	// Title answers title prompts.
	Title string

	// TitleErr fails title prompts.
	TitleErr error

	// Err fails reply calls before any token is produced.
	Err error

	// StreamErr is yielded after all Tokens have been streamed.
	StreamErr error

	// Release, when non-nil, blocks every reply call until it is closed.
	Release chan struct{}

	// Started, when non-nil, receives once per reply call as it begins.
	Started chan struct{}

	mu      sync.Mutex
	prompts []string
	closed  bool
}

// NewMockGenerator returns a generator that replies with tokens.
func NewMockGenerator(tokens ...string) *MockGenerator {
	return &MockGenerator{Tokens: tokens}
}

// Complete returns the joined tokens, or Title for title prompts.
func (m *MockGenerator) Complete(_ context.Context, prompt string, _ generation.Params) (string, error) {
	if err := m.begin(prompt); err != nil {
		return "", err
	}

	if isTitlePrompt(prompt) {
		return m.Title, m.TitleErr
	}

	m.wait()
	if m.Err != nil {
		return "", m.Err
	}
	return strings.Join(m.Tokens, ""), nil
}

// Stream yields Tokens one by one, then StreamErr if set.
func (m *MockGenerator) Stream(_ context.Context, prompt string, _ generation.Params) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if err := m.begin(prompt); err != nil {
			yield("", err)
			return
		}

		m.wait()
		if m.Err != nil {
			yield("", m.Err)
			return
		}
		for _, tok := range m.Tokens {
			if !yield(tok, nil) {
				return
			}
		}
		if m.StreamErr != nil {
			yield("", m.StreamErr)
		}
	}
}

// Close marks the generator closed.
func (m *MockGenerator) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *MockGenerator) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Prompts returns every prompt received, titles included.
func (m *MockGenerator) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

// ReplyCalls counts prompts that were not title prompts.
func (m *MockGenerator) ReplyCalls() int {
	n := 0
	for _, p := range m.Prompts() {
		if !isTitlePrompt(p) {
			n++
		}
	}
	return n
}

func (m *MockGenerator) begin(prompt string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return generation.ErrNotLoaded
	}
	m.prompts = append(m.prompts, prompt)
	if m.Started != nil && !isTitlePrompt(prompt) {
		select {
		case m.Started <- struct{}{}:
		default:
		}
	}
	return nil
}

func (m *MockGenerator) wait() {
	if m.Release != nil {
		<-m.Release
	}
}

// isTitlePrompt matches the single user turn the titler renders.
func isTitlePrompt(prompt string) bool {
	return strings.HasPrefix(prompt, "<|start_header_id|>user<|end_header_id|>\n\nCreate a very short") &&
		strings.Contains(prompt, "\n\nTitle:<|eot_id|>")
}
