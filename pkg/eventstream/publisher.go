package eventstream

import (
	"context"
	"errors"
)

// ErrNilEvent is returned by a Publisher handed a nil event.
var ErrNilEvent = errors.New("eventstream: nil turn committed event")

// Publisher delivers turn committed events to a stream backend. The worker
// pool is its only caller, so implementations need not be safe for
// concurrent Close.
type Publisher interface {
	PublishTurn(ctx context.Context, event *TurnCommittedEvent) error
	Close() error
}
