// Package storage defines the persistence gateway for conversations, their
// messages, and the memory extracted from them.
package storage

import (
	"context"
)

// Driver defines the interface for persisting and retrieving chat data in a
// storage backend. Every entity other than Conversation is owned by exactly
// one conversation and is removed with it.
//
// Drivers must be safe for concurrent use. Multi-statement writes run inside a
// transaction so partial writes are never visible to concurrent readers.
type Driver interface {
	// CreateConversation stores a new conversation with the given id and title.
	// Fails with *Error if the id already exists.
	CreateConversation(ctx context.Context, id, title string) (*Conversation, error)

	// GetConversation retrieves a conversation by id. Returns NotFoundError if
	// it does not exist.
	GetConversation(ctx context.Context, id string) (*Conversation, error)

	// ListConversations returns every conversation, most recently active first.
	ListConversations(ctx context.Context) ([]*Conversation, error)

	// DeleteConversation removes a conversation and everything it owns.
	// Deleting an unknown id is not an error.
	DeleteConversation(ctx context.Context, id string) error

	// AppendMessage stores a message and bumps the owning conversation's
	// last-activity timestamp in the same transaction.
	AppendMessage(ctx context.Context, conversationID string, role Role, content string, tokens int) (*Message, error)

	// ListMessages returns a conversation's messages in insertion order.
	ListMessages(ctx context.Context, conversationID string) ([]*Message, error)

	// UpsertFact inserts a fact or replaces the value of an existing key.
	UpsertFact(ctx context.Context, conversationID, key, value string) error

	// ListFacts returns a conversation's facts ordered by first insertion.
	ListFacts(ctx context.Context, conversationID string) ([]*Fact, error)

	// AppendPreference stores a preference row. Duplicates are allowed.
	AppendPreference(ctx context.Context, conversationID, category, item string) error

	// ListPreferences returns a conversation's preferences in insertion order.
	ListPreferences(ctx context.Context, conversationID string) ([]*Preference, error)

	// AppendExperience stores an experience row. Duplicates are allowed.
	AppendExperience(ctx context.Context, conversationID, experience, snippet string) error

	// RecentExperiences returns up to limit experiences, newest first.
	RecentExperiences(ctx context.Context, conversationID string, limit int) ([]*Experience, error)

	// IncrementTopic inserts a topic with frequency 1 or increments the
	// frequency of an existing one.
	IncrementTopic(ctx context.Context, conversationID, topic string) error

	// ListTopics returns a conversation's topics ordered by first mention.
	ListTopics(ctx context.Context, conversationID string) ([]*Topic, error)

	// SaveMemory applies the items in order inside one transaction and
	// returns how many were applied. On failure nothing is applied and the
	// count is 0.
	SaveMemory(ctx context.Context, conversationID string, items []MemoryItem) (int, error)

	// MemoryCounts returns the number of facts, experiences and topics stored
	// for a conversation.
	MemoryCounts(ctx context.Context, conversationID string) (MemoryCounts, error)

	// Close closes the store and releases any resources.
	Close() error
}
