package testutils

import (
	"context"
	"errors"
	"sync"

	"github.com/papercomputeco/chatmem/pkg/eventstream"
)

// MockPublisher records published events.
type MockPublisher struct {
	// Fail makes PublishTurn return an error.
	Fail bool

	mu     sync.Mutex
	events []*eventstream.TurnCommittedEvent
	closed bool
}

// NewMockPublisher creates a new mock publisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (m *MockPublisher) PublishTurn(_ context.Context, event *eventstream.TurnCommittedEvent) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}
	if m.Fail {
		return errors.New("mock publish failure")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *MockPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Events returns the published events.
func (m *MockPublisher) Events() []*eventstream.TurnCommittedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*eventstream.TurnCommittedEvent(nil), m.events...)
}

// Closed reports whether Close was called.
func (m *MockPublisher) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
