// Package nop is the event publisher serve uses when no brokers are
// configured.
package nop

import (
	"context"
	"sync/atomic"

	"github.com/papercomputeco/chatmem/pkg/eventstream"
)

// Publisher drops every event, keeping only a count.
type Publisher struct {
	discarded atomic.Int64
}

func NewPublisher() *Publisher {
	return &Publisher{}
}

func (p *Publisher) PublishTurn(_ context.Context, event *eventstream.TurnCommittedEvent) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}

	p.discarded.Add(1)
	return nil
}

// Discarded reports how many events have been dropped.
func (p *Publisher) Discarded() int64 {
	return p.discarded.Load()
}

func (p *Publisher) Close() error {
	return nil
}
