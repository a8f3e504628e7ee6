package chat

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/papercomputeco/chatmem/pkg/storage"
)

// Sink receives the output of a streaming turn. A Sink error means the
// consumer has gone away; generation continues and the turn is still
// committed.
type Sink interface {
	// SendToken delivers one generated fragment.
	SendToken(token string) error

	// SendDone delivers the completion summary after the turn is committed.
	SendDone(done StreamDone) error
}

// StreamDone is the final message of a streaming turn.
type StreamDone struct {
	MemoriesAdded int                  `json:"memories_added"`
	MemoryStats   storage.MemoryCounts `json:"memory_stats"`
}

// Stream is an admitted streaming turn that owns the generation gate until
// Run returns.
type Stream struct {
	c       *Coordinator
	ctx     context.Context
	id      string
	message string
	started time.Time

	once sync.Once
}

// ConversationID returns the conversation the turn belongs to.
func (s *Stream) ConversationID() string {
	return s.id
}

// BeginStream admits a streaming turn for an existing conversation and
// persists the user message. The returned Stream holds the generation gate:
// the caller must call Run exactly once.
func (c *Coordinator) BeginStream(ctx context.Context, conversationID, message string) (*Stream, error) {
	message = strings.TrimSpace(message)
	if err := c.admit(message, conversationID, false); err != nil {
		return nil, err
	}

	ctx = context.WithoutCancel(ctx)

	if _, err := c.store.GetConversation(ctx, conversationID); err != nil {
		c.gate.Unlock()
		return nil, err
	}

	if _, err := c.appendMessage(ctx, conversationID, storage.RoleUser, message); err != nil {
		c.logger.Error("failed to persist user message", "conversation_id", conversationID, "error", err)
	}

	return &Stream{
		c:       c,
		ctx:     ctx,
		id:      conversationID,
		message: message,
		started: time.Now(),
	}, nil
}

// Run generates the reply, forwarding fragments to sink while it is
// connected, then commits the turn and sends the completion summary. The
// generation gate is released when Run returns.
//
// A generation failure discards the partial reply and returns a
// *GenerationError. An empty reply is not committed.
func (s *Stream) Run(sink Sink) (*TurnResult, error) {
	result, err := (*TurnResult)(nil), ErrStreamUsed
	s.once.Do(func() {
		defer s.c.gate.Unlock()
		result, err = s.run(sink)
	})
	return result, err
}

func (s *Stream) run(sink Sink) (*TurnResult, error) {
	c := s.c
	text := c.assembler.Build(s.ctx, s.id, s.message)

	var (
		reply     strings.Builder
		connected = true
	)
	for token, err := range c.gen.Stream(s.ctx, text, c.params) {
		if err != nil {
			return nil, c.generationFailed(s.id, err)
		}
		reply.WriteString(token)

		if !connected {
			continue
		}
		if err := sink.SendToken(token); err != nil {
			connected = false
			c.logger.Warn("stream consumer disconnected, continuing generation",
				"conversation_id", s.id,
				"error", err,
			)
		}
	}

	response := strings.TrimSpace(reply.String())
	result := &TurnResult{ConversationID: s.id, Response: response}

	if response != "" {
		result.MemoriesAdded = c.commit(s.ctx, s.id, s.message, response, true, s.started)
	} else {
		c.logger.Warn("empty streamed reply, turn not committed", "conversation_id", s.id)
	}
	result.MemoryStats = c.MemoryCounts(s.ctx, s.id)

	if connected {
		if err := sink.SendDone(StreamDone{MemoriesAdded: result.MemoriesAdded, MemoryStats: result.MemoryStats}); err != nil {
			c.logger.Warn("failed to send stream completion", "conversation_id", s.id, "error", err)
		}
	}
	return result, nil
}

// GenerateStream admits and runs a streaming turn in one call.
func (c *Coordinator) GenerateStream(ctx context.Context, conversationID, message string, sink Sink) (*TurnResult, error) {
	stream, err := c.BeginStream(ctx, conversationID, message)
	if err != nil {
		return nil, err
	}
	return stream.Run(sink)
}
