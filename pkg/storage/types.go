package storage

import (
	"fmt"
	"time"
)

// Role is the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Conversation is an independently addressable chat thread.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is bumped on every appended message and never moves backwards.
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is a single append-only chat message.
type Message struct {
	ID             int64     `json:"id"`
	ConversationID string    `json:"chat_id"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	Tokens         int       `json:"tokens"`
	CreatedAt      time.Time `json:"created_at"`
}

// Fact is a keyed piece of knowledge about the user, unique per conversation.
type Fact struct {
	ConversationID string    `json:"chat_id"`
	Key            string    `json:"key"`
	Value          string    `json:"value"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Preference is a free-text item under a category such as "likes".
type Preference struct {
	ConversationID string    `json:"chat_id"`
	Category       string    `json:"category"`
	Item           string    `json:"item"`
	CreatedAt      time.Time `json:"created_at"`
}

// Experience is a short action+object phrase and the snippet it came from.
type Experience struct {
	ConversationID string    `json:"chat_id"`
	Experience     string    `json:"experience"`
	Context        string    `json:"context"`
	CreatedAt      time.Time `json:"created_at"`
}

// Topic counts how often a known topic was mentioned in a conversation.
type Topic struct {
	ConversationID string    `json:"chat_id"`
	Topic          string    `json:"topic"`
	Frequency      int       `json:"frequency"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// MemoryCounts summarizes the memory stored for a conversation.
type MemoryCounts struct {
	Facts       int `json:"facts"`
	Experiences int `json:"experiences"`
	Topics      int `json:"topics"`
}

// MemoryKind selects how a MemoryItem is written.
type MemoryKind string

const (
	MemoryFact       MemoryKind = "fact"
	MemoryPreference MemoryKind = "preference"
	MemoryExperience MemoryKind = "experience"
	MemoryTopic      MemoryKind = "topic"
)

// MemoryItem is one extracted memory write.
//
// Field use per kind:
//   - fact: Key is the fact key, Value the fact value (upsert).
//   - preference: Key is the category, Value the item (append).
//   - experience: Value is the phrase, Context the source snippet (append).
//   - topic: Key is the topic (increment).
type MemoryItem struct {
	Kind    MemoryKind `json:"kind"`
	Key     string     `json:"key,omitempty"`
	Value   string     `json:"value,omitempty"`
	Context string     `json:"context,omitempty"`
}

func (m MemoryItem) String() string {
	switch m.Kind {
	case MemoryFact, MemoryPreference:
		return fmt.Sprintf("%s %s=%q", m.Kind, m.Key, m.Value)
	case MemoryExperience:
		return fmt.Sprintf("%s %q", m.Kind, m.Value)
	default:
		return fmt.Sprintf("%s %s", m.Kind, m.Key)
	}
}

// FactItem returns a fact write.
func FactItem(key, value string) MemoryItem {
	return MemoryItem{Kind: MemoryFact, Key: key, Value: value}
}

// PreferenceItem returns a preference write.
func PreferenceItem(category, item string) MemoryItem {
	return MemoryItem{Kind: MemoryPreference, Key: category, Value: item}
}

// ExperienceItem returns an experience write.
func ExperienceItem(experience, snippet string) MemoryItem {
	return MemoryItem{Kind: MemoryExperience, Value: experience, Context: snippet}
}

// TopicItem returns a topic increment.
func TopicItem(topic string) MemoryItem {
	return MemoryItem{Kind: MemoryTopic, Key: topic}
}
