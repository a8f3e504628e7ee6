package testutils

import (
	"errors"
	"strings"
	"sync"

	"github.com/papercomputeco/chatmem/pkg/chat"
)

// ErrSinkGone is returned by a RecordingSink once it has been disconnected.
var ErrSinkGone = errors.New("sink disconnected")

// RecordingSink is a chat.Sink that records what it receives.
type RecordingSink struct {
	// FailAfter, when positive, makes every SendToken after the first
	// FailAfter tokens fail, simulating a consumer that went away.
	FailAfter int

	mu     sync.Mutex
	tokens []string
	done   *chat.StreamDone
	failed bool
}

// NewRecordingSink returns a sink that never fails.
func NewRecordingSink() *RecordingSink {
	return &RecordingSink{}
}

func (s *RecordingSink) SendToken(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failed || (s.FailAfter > 0 && len(s.tokens) >= s.FailAfter) {
		s.failed = true
		return ErrSinkGone
	}
	s.tokens = append(s.tokens, token)
	return nil
}

func (s *RecordingSink) SendDone(done chat.StreamDone) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failed {
		return ErrSinkGone
	}
	s.done = &done
	return nil
}

// Tokens returns the delivered tokens.
func (s *RecordingSink) Tokens() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.tokens...)
}

// Text joins the delivered tokens.
func (s *RecordingSink) Text() string {
	return strings.Join(s.Tokens(), "")
}

// Done returns the completion summary, or nil if none was delivered.
func (s *RecordingSink) Done() *chat.StreamDone {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}
