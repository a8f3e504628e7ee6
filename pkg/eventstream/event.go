// Package eventstream publishes committed chat turns to downstream consumers.
package eventstream

import (
	"time"

	"github.com/google/uuid"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeTurnCommitted is emitted after a chat turn and its memory
	// have been persisted.
	EventTypeTurnCommitted = "chatmem.turn.committed"
)

// TurnCommittedEvent is a transport-neutral event payload for a committed turn.
type TurnCommittedEvent struct {
	SchemaVersion    int       `json:"schema_version"`
	EventType        string    `json:"event_type"`
	EventID          string    `json:"event_id"`
	EmittedAt        time.Time `json:"emitted_at"`
	ConversationID   string    `json:"conversation_id"`
	Streaming        bool      `json:"streaming"`
	UserMessage      string    `json:"user_message"`
	AssistantMessage string    `json:"assistant_message"`
	MemoriesAdded    int       `json:"memories_added"`
	StartedAt        time.Time `json:"started_at"`
	CompletedAt      time.Time `json:"completed_at"`
	DurationMs       int64     `json:"duration_ms"`
}

// NewTurnCommittedEvent fills in the envelope fields of a turn event.
func NewTurnCommittedEvent(conversationID, user, assistant string, memories int, streaming bool, started, completed time.Time) *TurnCommittedEvent {
	return &TurnCommittedEvent{
		SchemaVersion:    SchemaVersionV1,
		EventType:        EventTypeTurnCommitted,
		EventID:          uuid.NewString(),
		EmittedAt:        time.Now().UTC(),
		ConversationID:   conversationID,
		Streaming:        streaming,
		UserMessage:      user,
		AssistantMessage: assistant,
		MemoriesAdded:    memories,
		StartedAt:        started.UTC(),
		CompletedAt:      completed.UTC(),
		DurationMs:       completed.Sub(started).Milliseconds(),
	}
}
