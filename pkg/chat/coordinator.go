// Package chat owns the generation resource and runs chat turns against it.
//
// The Coordinator admits at most one generation at a time. A turn that finds
// the resource in use is rejected immediately with ErrBusy rather than
// queued. An admitted turn assembles its prompt from stored history and
// recalled memory, generates, and then commits the exchange: both messages,
// the extracted memory, the session cache entry and a turn event.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/chatmem/pkg/eventstream"
	"github.com/papercomputeco/chatmem/pkg/generation"
	"github.com/papercomputeco/chatmem/pkg/memory"
	"github.com/papercomputeco/chatmem/pkg/prompt"
	"github.com/papercomputeco/chatmem/pkg/session"
	"github.com/papercomputeco/chatmem/pkg/storage"
	"github.com/papercomputeco/chatmem/pkg/worker"
)

// Config wires a Coordinator.
type Config struct {
	// Store persists conversations, messages and memory.
	Store storage.Driver

	// Generator is the shared generation resource.
	Generator generation.Generator

	// Params are the sampling parameters for replies. Zero value uses
	// generation.DefaultParams.
	Params generation.Params

	// Limits bound the rebuilt history in prompts.
	Limits prompt.Limits

	// Sessions caches recent exchanges. Defaults to a registry sized by
	// Limits.MaxPairs.
	Sessions *session.Registry

	// Events, when set, receives a TurnCommittedEvent for every committed
	// turn. The coordinator closes it on Shutdown.
	Events *worker.Pool

	Logger *slog.Logger
}

// Coordinator runs chat turns against a single generation resource.
type Coordinator struct {
	store     storage.Driver
	gen       generation.Generator
	params    generation.Params
	assembler *prompt.Assembler
	extractor *memory.Extractor
	retriever *memory.Retriever
	titler    *Titler
	sessions  *session.Registry
	events    *worker.Pool
	logger    *slog.Logger

	// gate admits one generation at a time. It is only ever acquired with
	// TryLock on the turn paths; Shutdown waits on it and keeps it.
	gate    sync.Mutex
	closing atomic.Bool

	newID func() string
}

// TurnRequest is one user turn.
type TurnRequest struct {
	// ConversationID is required unless FirstTurn is set.
	ConversationID string

	Message string

	// FirstTurn creates a new, titled conversation for the message.
	FirstTurn bool
}

// TurnResult is the outcome of a committed turn.
type TurnResult struct {
	ConversationID string               `json:"chat_id"`
	Title          string               `json:"title,omitempty"`
	Response       string               `json:"response"`
	MemoriesAdded  int                  `json:"memories_added"`
	MemoryStats    storage.MemoryCounts `json:"memory_stats"`
}

// New returns a Coordinator for c.
func New(c Config) (*Coordinator, error) {
	if c.Store == nil {
		return nil, errors.New("chat coordinator requires a store")
	}
	if c.Generator == nil {
		return nil, ErrNotLoaded
	}

	logger := c.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	params := c.Params
	if params.MaxTokens == 0 {
		params = generation.DefaultParams
	}

	sessions := c.Sessions
	if sessions == nil {
		sessions = session.New(c.Limits.MaxPairs)
	}

	retriever, err := memory.NewRetriever(c.Store, logger)
	if err != nil {
		return nil, err
	}
	extractor, err := memory.NewExtractor(c.Store, logger)
	if err != nil {
		return nil, err
	}

	return &Coordinator{
		store:     c.Store,
		gen:       c.Generator,
		params:    params,
		assembler: prompt.NewAssembler(c.Store, retriever, c.Limits, logger),
		extractor: extractor,
		retriever: retriever,
		titler:    NewTitler(c.Generator, logger),
		sessions:  sessions,
		events:    c.Events,
		logger:    logger,
		newID:     uuid.NewString,
	}, nil
}

// Generate runs a blocking turn. The user message is persisted after the
// reply has been generated.
func (c *Coordinator) Generate(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	message := strings.TrimSpace(req.Message)
	if err := c.admit(message, req.ConversationID, req.FirstTurn); err != nil {
		return nil, err
	}
	defer c.gate.Unlock()

	// A departing caller must not abort a generation or its commit.
	ctx = context.WithoutCancel(ctx)
	started := time.Now()

	var (
		id    = req.ConversationID
		title string
	)
	if req.FirstTurn {
		conv, err := c.createConversation(ctx, message)
		if err != nil {
			return nil, err
		}
		id, title = conv.ID, conv.Title
	} else if _, err := c.store.GetConversation(ctx, id); err != nil {
		return nil, err
	}

	text := c.assembler.Build(ctx, id, message)
	reply, err := c.gen.Complete(ctx, text, c.params)
	if err != nil {
		return nil, c.generationFailed(id, err)
	}
	reply = strings.TrimSpace(reply)

	if _, err := c.appendMessage(ctx, id, storage.RoleUser, message); err != nil {
		c.logger.Error("failed to persist user message", "conversation_id", id, "error", err)
	}
	added := c.commit(ctx, id, message, reply, false, started)

	return &TurnResult{
		ConversationID: id,
		Title:          title,
		Response:       reply,
		MemoriesAdded:  added,
		MemoryStats:    c.MemoryCounts(ctx, id),
	}, nil
}

// admit validates a turn and acquires the gate. On success the caller owns
// the gate and must release it.
func (c *Coordinator) admit(message, conversationID string, firstTurn bool) error {
	if message == "" {
		return ErrEmptyMessage
	}
	if !firstTurn && conversationID == "" {
		return ErrMissingConversation
	}
	if c.closing.Load() {
		return ErrShuttingDown
	}
	if !c.gate.TryLock() {
		return ErrBusy
	}
	return nil
}

func (c *Coordinator) createConversation(ctx context.Context, message string) (*storage.Conversation, error) {
	title := c.titler.Title(ctx, message)

	conv, err := c.store.CreateConversation(ctx, c.newID(), title)
	if err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}
	c.sessions.Init(conv.ID)

	c.logger.Info("conversation created", "conversation_id", conv.ID, "title", title)
	return conv, nil
}

func (c *Coordinator) appendMessage(ctx context.Context, id string, role storage.Role, content string) (*storage.Message, error) {
	return c.store.AppendMessage(ctx, id, role, content, prompt.EstimateTokens(content))
}

// commit records a finished exchange: session cache, assistant message,
// memory and turn event. Storage failures are logged and absorbed. It returns
// the number of memory items added.
func (c *Coordinator) commit(ctx context.Context, id, message, reply string, streaming bool, started time.Time) int {
	c.sessions.Append(id, session.Entry{
		User:      message,
		Assistant: reply,
		Tokens:    prompt.EstimateTokens(message) + prompt.EstimateTokens(reply),
		Timestamp: time.Now(),
	})

	if _, err := c.appendMessage(ctx, id, storage.RoleAssistant, reply); err != nil {
		c.logger.Error("failed to persist assistant message", "conversation_id", id, "error", err)
	}

	added := c.extractor.Extract(ctx, id, message, reply)

	completed := time.Now()
	if c.events != nil {
		c.events.Enqueue(eventstream.NewTurnCommittedEvent(id, message, reply, added, streaming, started, completed))
	}

	c.logger.Info("turn committed",
		"conversation_id", id,
		"streaming", streaming,
		"memories_added", added,
		"duration_ms", completed.Sub(started).Milliseconds(),
	)
	return added
}

func (c *Coordinator) generationFailed(id string, err error) error {
	c.logger.Error("generation failed", "conversation_id", id, "error", err)
	if errors.Is(err, generation.ErrNotLoaded) {
		return ErrNotLoaded
	}
	return &GenerationError{Err: err}
}

// Conversation returns a conversation or storage.NotFoundError.
func (c *Coordinator) Conversation(ctx context.Context, id string) (*storage.Conversation, error) {
	return c.store.GetConversation(ctx, id)
}

// Conversations lists conversations, most recently active first. A read
// failure is logged and yields an empty list.
func (c *Coordinator) Conversations(ctx context.Context) []*storage.Conversation {
	convs, err := c.store.ListConversations(ctx)
	if err != nil {
		c.logger.Error("failed to list conversations", "error", err)
		return []*storage.Conversation{}
	}
	return convs
}

// Messages returns a conversation's messages in order. A read failure is
// logged and yields an empty list.
func (c *Coordinator) Messages(ctx context.Context, id string) []*storage.Message {
	msgs, err := c.store.ListMessages(ctx, id)
	if err != nil {
		c.logger.Error("failed to list messages", "conversation_id", id, "error", err)
		return []*storage.Message{}
	}
	return msgs
}

// MemoryCounts returns a conversation's memory counts, or zeros on failure.
func (c *Coordinator) MemoryCounts(ctx context.Context, id string) storage.MemoryCounts {
	counts, err := c.store.MemoryCounts(ctx, id)
	if err != nil {
		c.logger.Error("failed to count memory", "conversation_id", id, "error", err)
		return storage.MemoryCounts{}
	}
	return counts
}

// Recall returns the memory lines that would be injected for message.
func (c *Coordinator) Recall(ctx context.Context, id, message string) []string {
	return c.retriever.Relevant(ctx, id, message)
}

// Session returns the cached exchanges for a conversation.
func (c *Coordinator) Session(id string) []session.Entry {
	return c.sessions.Entries(id)
}

// DeleteConversation removes a conversation, its memory and its session.
func (c *Coordinator) DeleteConversation(ctx context.Context, id string) error {
	if err := c.store.DeleteConversation(ctx, id); err != nil {
		return err
	}
	c.sessions.Delete(id)

	c.logger.Info("conversation deleted", "conversation_id", id)
	return nil
}

// Shutdown refuses new turns, waits for the in-flight generation to finish,
// then releases the generator, clears the session cache and drains the event
// pool. If ctx ends first, ctx.Err() is returned and the generator is left
// open.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	if c.closing.Swap(true) {
		return nil
	}

	acquired := make(chan struct{})
	go func() {
		c.gate.Lock()
		close(acquired)
	}()

	select {
	case <-acquired:
	case <-ctx.Done():
		return ctx.Err()
	}

	var errs []error
	if err := c.gen.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing generator: %w", err))
	}
	c.sessions.Clear()
	if c.events != nil {
		if err := c.events.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing event pool: %w", err))
		}
	}

	c.logger.Info("chat coordinator stopped")
	return errors.Join(errs...)
}
