// Package prompt rebuilds a conversation's exchange history from storage and
// renders it, together with recalled memory, as a single Llama 3 style prompt.
package prompt

import (
	"context"
	"log/slog"
	"strings"

	"github.com/papercomputeco/chatmem/pkg/storage"
)

const (
	headerStart = "<|start_header_id|>"
	headerEnd   = "<|end_header_id|>\n\n"

	// EndOfTurn closes every rendered turn. It is also the stop sequence
	// used for generation.
	EndOfTurn = "<|eot_id|>"
)

// EstimateTokens approximates the token length of s as one token per four
// bytes.
func EstimateTokens(s string) int {
	return len(s) / 4
}

// Exchange is a closed (user, assistant) pair.
type Exchange struct {
	User      string
	Assistant string
}

// Tokens estimates the token length of both sides of the exchange.
func (e Exchange) Tokens() int {
	return EstimateTokens(e.User) + EstimateTokens(e.Assistant)
}

// History reads messages.
type History interface {
	ListMessages(ctx context.Context, conversationID string) ([]*storage.Message, error)
}

// Recaller returns memory lines relevant to an utterance.
type Recaller interface {
	Relevant(ctx context.Context, conversationID, userInput string) []string
}

// Limits bound the rebuilt history. They are only applied when Enforce is set.
type Limits struct {
	Enforce   bool
	MaxPairs  int
	MaxTokens int
}

// Assembler builds prompts for the generation resource.
type Assembler struct {
	history  History
	recaller Recaller
	limits   Limits
	logger   *slog.Logger
}

// NewAssembler returns an Assembler. recaller may be nil to disable memory.
func NewAssembler(history History, recaller Recaller, limits Limits, logger *slog.Logger) *Assembler {
	return &Assembler{
		history:  history,
		recaller: recaller,
		limits:   limits,
		logger:   logger,
	}
}

// Build returns the prompt for userInput in conversationID. A history read
// failure is logged and the prompt carries the new turn only.
func (a *Assembler) Build(ctx context.Context, conversationID, userInput string) string {
	var exchanges []Exchange
	if conversationID != "" {
		msgs, err := a.history.ListMessages(ctx, conversationID)
		if err != nil {
			a.logger.Warn("failed to read history",
				"conversation_id", conversationID,
				"error", err,
			)
		}
		exchanges = Pair(msgs)
	}

	var lines []string
	if a.recaller != nil && conversationID != "" {
		lines = a.recaller.Relevant(ctx, conversationID, userInput)
	}
	turn := MemoryBlock(lines) + userInput

	if a.limits.Enforce {
		exchanges = a.limits.fit(exchanges, EstimateTokens(turn))
	}

	return Render(exchanges, turn)
}

// Pair scans msgs in order and returns the closed exchanges. A user message
// opens a pending pair, replacing any pending pair that never got a reply,
// and the next assistant message closes it. Assistant messages without a
// pending user message are skipped. A trailing user message is dropped.
func Pair(msgs []*storage.Message) []Exchange {
	var (
		exchanges []Exchange
		pending   *storage.Message
	)

	for _, m := range msgs {
		switch m.Role {
		case storage.RoleUser:
			pending = m
		case storage.RoleAssistant:
			if pending == nil {
				continue
			}
			exchanges = append(exchanges, Exchange{User: pending.Content, Assistant: m.Content})
			pending = nil
		}
	}

	return exchanges
}

// MemoryBlock renders memory lines as the block prefixed to the user turn.
func MemoryBlock(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return "\n[Memory Context: " + strings.Join(lines, "; ") + "]\n"
}

// Render formats the exchanges and the new user turn, ending with an open
// assistant header.
func Render(exchanges []Exchange, turn string) string {
	var b strings.Builder
	for _, e := range exchanges {
		writeTurn(&b, "user", e.User)
		writeTurn(&b, "assistant", e.Assistant)
	}
	writeTurn(&b, "user", turn)
	b.WriteString(headerStart + "assistant" + headerEnd)
	return b.String()
}

func writeTurn(b *strings.Builder, role, content string) {
	b.WriteString(headerStart)
	b.WriteString(role)
	b.WriteString(headerEnd)
	b.WriteString(content)
	b.WriteString(EndOfTurn)
}

// fit drops the oldest exchanges until the pair and token bounds hold.
func (l Limits) fit(exchanges []Exchange, turnTokens int) []Exchange {
	if l.MaxPairs > 0 && len(exchanges) > l.MaxPairs {
		exchanges = exchanges[len(exchanges)-l.MaxPairs:]
	}

	if l.MaxTokens <= 0 {
		return exchanges
	}

	total := turnTokens
	for _, e := range exchanges {
		total += e.Tokens()
	}
	for len(exchanges) > 0 && total > l.MaxTokens {
		total -= exchanges[0].Tokens()
		exchanges = exchanges[1:]
	}

	return exchanges
}
