// Package inmemory provides a storage driver that keeps everything in process
// memory. It is used by tests and by "serve --storage memory".
package inmemory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/papercomputeco/chatmem/pkg/storage"
)

// Driver implements storage.Driver using in-memory maps.
type Driver struct {
	// mu guards every map below. SaveMemory holds it for the whole batch so
	// readers never see a partial write.
	mu sync.RWMutex

	conversations map[string]*storage.Conversation
	messages      map[string][]*storage.Message
	facts         map[string][]*storage.Fact
	preferences   map[string][]*storage.Preference
	experiences   map[string][]*storage.Experience
	topics        map[string][]*storage.Topic

	nextMessageID int64
	now           func() time.Time
}

// Ensure Driver implements storage.Driver
var _ storage.Driver = (*Driver)(nil)

// NewDriver creates a new in-memory store.
func NewDriver() *Driver {
	return &Driver{
		conversations: make(map[string]*storage.Conversation),
		messages:      make(map[string][]*storage.Message),
		facts:         make(map[string][]*storage.Fact),
		preferences:   make(map[string][]*storage.Preference),
		experiences:   make(map[string][]*storage.Experience),
		topics:        make(map[string][]*storage.Topic),
		now:           time.Now,
	}
}

// CreateConversation stores a new conversation.
func (d *Driver) CreateConversation(_ context.Context, id, title string) (*storage.Conversation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.conversations[id]; ok {
		return nil, storage.Wrap("create conversation", fmt.Errorf("conversation %s already exists", id))
	}

	now := d.now()
	conv := &storage.Conversation{ID: id, Title: title, CreatedAt: now, UpdatedAt: now}
	d.conversations[id] = conv

	copied := *conv
	return &copied, nil
}

// GetConversation retrieves a conversation by id.
func (d *Driver) GetConversation(_ context.Context, id string) (*storage.Conversation, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	conv, ok := d.conversations[id]
	if !ok {
		return nil, storage.NotFoundError{ID: id}
	}

	copied := *conv
	return &copied, nil
}

// ListConversations returns every conversation, most recently active first.
func (d *Driver) ListConversations(_ context.Context) ([]*storage.Conversation, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	convs := make([]*storage.Conversation, 0, len(d.conversations))
	for _, conv := range d.conversations {
		copied := *conv
		convs = append(convs, &copied)
	}

	slices.SortFunc(convs, func(a, b *storage.Conversation) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	return convs, nil
}

// DeleteConversation removes a conversation and everything it owns.
func (d *Driver) DeleteConversation(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.conversations, id)
	delete(d.messages, id)
	delete(d.facts, id)
	delete(d.preferences, id)
	delete(d.experiences, id)
	delete(d.topics, id)
	return nil
}

// AppendMessage stores a message and bumps the conversation's last activity.
func (d *Driver) AppendMessage(_ context.Context, conversationID string, role storage.Role, content string, tokens int) (*storage.Message, error) {
	if !role.Valid() {
		return nil, storage.Wrap("append message", fmt.Errorf("invalid role %q", role))
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	conv, ok := d.conversations[conversationID]
	if !ok {
		return nil, storage.Wrap("append message", storage.NotFoundError{ID: conversationID})
	}

	now := d.now()
	if now.After(conv.UpdatedAt) {
		conv.UpdatedAt = now
	}

	d.nextMessageID++
	msg := &storage.Message{
		ID:             d.nextMessageID,
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Tokens:         tokens,
		CreatedAt:      now,
	}
	d.messages[conversationID] = append(d.messages[conversationID], msg)

	copied := *msg
	return &copied, nil
}

// ListMessages returns a conversation's messages in insertion order.
func (d *Driver) ListMessages(_ context.Context, conversationID string) ([]*storage.Message, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return copyAll(d.messages[conversationID]), nil
}

// UpsertFact inserts a fact or replaces the value of an existing key.
func (d *Driver) UpsertFact(_ context.Context, conversationID, key, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	return storage.Wrap("upsert fact", d.apply(conversationID, storage.FactItem(key, value)))
}

// ListFacts returns a conversation's facts ordered by first insertion.
func (d *Driver) ListFacts(_ context.Context, conversationID string) ([]*storage.Fact, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return copyAll(d.facts[conversationID]), nil
}

// AppendPreference stores a preference row.
func (d *Driver) AppendPreference(_ context.Context, conversationID, category, item string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	return storage.Wrap("append preference", d.apply(conversationID, storage.PreferenceItem(category, item)))
}

// ListPreferences returns a conversation's preferences in insertion order.
func (d *Driver) ListPreferences(_ context.Context, conversationID string) ([]*storage.Preference, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return copyAll(d.preferences[conversationID]), nil
}

// AppendExperience stores an experience row.
func (d *Driver) AppendExperience(_ context.Context, conversationID, experience, snippet string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	return storage.Wrap("append experience", d.apply(conversationID, storage.ExperienceItem(experience, snippet)))
}

// RecentExperiences returns up to limit experiences, newest first.
func (d *Driver) RecentExperiences(_ context.Context, conversationID string, limit int) ([]*storage.Experience, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	all := d.experiences[conversationID]
	out := []*storage.Experience{}
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		copied := *all[i]
		out = append(out, &copied)
	}
	return out, nil
}

// IncrementTopic inserts a topic with frequency 1 or bumps an existing one.
func (d *Driver) IncrementTopic(_ context.Context, conversationID, topic string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	return storage.Wrap("increment topic", d.apply(conversationID, storage.TopicItem(topic)))
}

// ListTopics returns a conversation's topics ordered by first mention.
func (d *Driver) ListTopics(_ context.Context, conversationID string) ([]*storage.Topic, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return copyAll(d.topics[conversationID]), nil
}

// SaveMemory applies items in order under a single lock. Items are validated
// first so a bad item leaves nothing applied.
func (d *Driver) SaveMemory(_ context.Context, conversationID string, items []storage.MemoryItem) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.conversations[conversationID]; !ok {
		return 0, storage.Wrap("save memory", storage.NotFoundError{ID: conversationID})
	}
	for _, item := range items {
		if !validKind(item.Kind) {
			return 0, storage.Wrap("save memory", fmt.Errorf("unknown memory kind %q", item.Kind))
		}
	}

	for _, item := range items {
		if err := d.apply(conversationID, item); err != nil {
			return 0, storage.Wrap("save memory", err)
		}
	}
	return len(items), nil
}

// MemoryCounts returns the number of facts, experiences and topics stored for
// a conversation.
func (d *Driver) MemoryCounts(_ context.Context, conversationID string) (storage.MemoryCounts, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return storage.MemoryCounts{
		Facts:       len(d.facts[conversationID]),
		Experiences: len(d.experiences[conversationID]),
		Topics:      len(d.topics[conversationID]),
	}, nil
}

// Close is a no-op for the in-memory store.
func (d *Driver) Close() error {
	return nil
}

// apply writes one item. Callers hold d.mu for writing.
func (d *Driver) apply(conversationID string, item storage.MemoryItem) error {
	if _, ok := d.conversations[conversationID]; !ok {
		return storage.NotFoundError{ID: conversationID}
	}

	now := d.now()
	switch item.Kind {
	case storage.MemoryFact:
		for _, f := range d.facts[conversationID] {
			if f.Key == item.Key {
				f.Value = item.Value
				f.UpdatedAt = now
				return nil
			}
		}
		d.facts[conversationID] = append(d.facts[conversationID], &storage.Fact{
			ConversationID: conversationID,
			Key:            item.Key,
			Value:          item.Value,
			CreatedAt:      now,
			UpdatedAt:      now,
		})

	case storage.MemoryPreference:
		d.preferences[conversationID] = append(d.preferences[conversationID], &storage.Preference{
			ConversationID: conversationID,
			Category:       item.Key,
			Item:           item.Value,
			CreatedAt:      now,
		})

	case storage.MemoryExperience:
		d.experiences[conversationID] = append(d.experiences[conversationID], &storage.Experience{
			ConversationID: conversationID,
			Experience:     item.Value,
			Context:        item.Context,
			CreatedAt:      now,
		})

	case storage.MemoryTopic:
		for _, t := range d.topics[conversationID] {
			if t.Topic == item.Key {
				t.Frequency++
				t.UpdatedAt = now
				return nil
			}
		}
		d.topics[conversationID] = append(d.topics[conversationID], &storage.Topic{
			ConversationID: conversationID,
			Topic:          item.Key,
			Frequency:      1,
			CreatedAt:      now,
			UpdatedAt:      now,
		})

	default:
		return fmt.Errorf("unknown memory kind %q", item.Kind)
	}
	return nil
}

func validKind(k storage.MemoryKind) bool {
	switch k {
	case storage.MemoryFact, storage.MemoryPreference, storage.MemoryExperience, storage.MemoryTopic:
		return true
	}
	return false
}

func copyAll[T any](in []*T) []*T {
	out := make([]*T, 0, len(in))
	for _, v := range in {
		copied := *v
		out = append(out, &copied)
	}
	return out
}
