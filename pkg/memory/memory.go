// Package memory extracts lightweight memory from user utterances and recalls
// it for future prompts.
//
// Extraction is lexical: an ordered table of regular expressions turns an
// utterance into facts, preferences, experiences and topic mentions, which are
// persisted per conversation through the storage gateway. Retrieval is equally
// simple and picks the stored items that look relevant to a new utterance.
// Neither side ever fails a chat turn; errors are logged and degrade to empty
// results.
package memory

import (
	"context"

	"github.com/papercomputeco/chatmem/pkg/storage"
)

// Writer persists extracted memory items.
type Writer interface {
	SaveMemory(ctx context.Context, conversationID string, items []storage.MemoryItem) (int, error)
}

// Reader reads the memory stored for a conversation.
type Reader interface {
	ListFacts(ctx context.Context, conversationID string) ([]*storage.Fact, error)
	ListPreferences(ctx context.Context, conversationID string) ([]*storage.Preference, error)
	ListTopics(ctx context.Context, conversationID string) ([]*storage.Topic, error)
	RecentExperiences(ctx context.Context, conversationID string, limit int) ([]*storage.Experience, error)
}
