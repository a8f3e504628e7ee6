// Package sqlstore implements storage.Driver on top of ent's SQL dialect
// layer. The sqlite, postgres and libsql drivers are thin constructors
// around it.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	"github.com/papercomputeco/chatmem/pkg/storage"
)

// Store implements storage.Driver for any ent SQL driver.
type Store struct {
	drv     *entsql.Driver
	dialect Dialect

	// now is swapped in tests.
	now func() time.Time
}

// Ensure Store implements storage.Driver
var _ storage.Driver = (*Store)(nil)

// New applies the schema for drv's dialect and returns a Store that owns
// the connection. The driver is closed if the schema can't be created.
func New(ctx context.Context, drv *entsql.Driver) (*Store, error) {
	d, err := dialectFor(drv.Dialect())
	if err != nil {
		drv.Close()
		return nil, err
	}

	for _, stmt := range d.Schema {
		if err := drv.Exec(ctx, stmt, []any{}, nil); err != nil {
			drv.Close()
			return nil, fmt.Errorf("failed to create %s schema: %w", d.Name, err)
		}
	}

	return &Store{
		drv:     drv,
		dialect: d,
		now:     time.Now,
	}, nil
}

// DB returns the underlying connection pool.
func (s *Store) DB() *sql.DB {
	return s.drv.DB()
}

func (s *Store) stamp() int64 {
	return s.now().UnixNano()
}

func (s *Store) inTx(ctx context.Context, fn func(tx dialect.Tx) error) error {
	tx, err := s.drv.Tx(ctx)
	if err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}

func exec(ctx context.Context, ex dialect.ExecQuerier, q entsql.Querier) (sql.Result, error) {
	query, args := q.Query()
	var res sql.Result
	if err := ex.Exec(ctx, query, args, &res); err != nil {
		return nil, err
	}
	return res, nil
}

func query(ctx context.Context, ex dialect.ExecQuerier, q entsql.Querier) (*entsql.Rows, error) {
	query, args := q.Query()
	rows := &entsql.Rows{}
	if err := ex.Query(ctx, query, args, rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// scanAll drains rows through scan and closes them.
func scanAll[T any](rows *entsql.Rows, scan func(entsql.ColumnScanner) (*T, error)) ([]*T, error) {
	defer rows.Close()

	out := []*T{}
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Store) exists(ctx context.Context, ex dialect.ExecQuerier, conversationID string) (bool, error) {
	b := s.dialect.Builder()
	rows, err := query(ctx, ex, b.Select("id").
		From(b.Table("conversations")).
		Where(entsql.EQ("id", conversationID)))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	found := rows.Next()
	return found, rows.Err()
}

// CreateConversation stores a new conversation row.
func (s *Store) CreateConversation(ctx context.Context, id, title string) (*storage.Conversation, error) {
	now := s.stamp()
	_, err := exec(ctx, s.drv, s.dialect.Builder().Insert("conversations").
		Columns("id", "title", "created_at", "updated_at").
		Values(id, title, now, now))
	if err != nil {
		return nil, storage.Wrap("create conversation", err)
	}

	return &storage.Conversation{
		ID:        id,
		Title:     title,
		CreatedAt: time.Unix(0, now),
		UpdatedAt: time.Unix(0, now),
	}, nil
}

func (s *Store) selectConversations() *entsql.Selector {
	b := s.dialect.Builder()
	return b.Select("id", "title", "created_at", "updated_at").From(b.Table("conversations"))
}

// GetConversation retrieves a conversation by id.
func (s *Store) GetConversation(ctx context.Context, id string) (*storage.Conversation, error) {
	rows, err := query(ctx, s.drv, s.selectConversations().Where(entsql.EQ("id", id)))
	if err != nil {
		return nil, storage.Wrap("get conversation", err)
	}

	convs, err := scanAll(rows, scanConversation)
	if err != nil {
		return nil, storage.Wrap("get conversation", err)
	}
	if len(convs) == 0 {
		return nil, storage.NotFoundError{ID: id}
	}

	return convs[0], nil
}

// ListConversations returns every conversation, most recently active first.
func (s *Store) ListConversations(ctx context.Context) ([]*storage.Conversation, error) {
	rows, err := query(ctx, s.drv, s.selectConversations().
		OrderBy(entsql.Desc("updated_at"), entsql.Desc("created_at")))
	if err != nil {
		return nil, storage.Wrap("list conversations", err)
	}

	convs, err := scanAll(rows, scanConversation)
	return convs, storage.Wrap("list conversations", err)
}

// DeleteConversation removes a conversation and its owned rows. The child
// deletes run explicitly so the cascade holds even without foreign key
// enforcement.
func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	b := s.dialect.Builder()
	err := s.inTx(ctx, func(tx dialect.Tx) error {
		for _, table := range []string{"messages", "facts", "preferences", "experiences", "topics"} {
			if _, err := exec(ctx, tx, b.Delete(table).Where(entsql.EQ("conversation_id", id))); err != nil {
				return fmt.Errorf("deleting %s: %w", table, err)
			}
		}
		_, err := exec(ctx, tx, b.Delete("conversations").Where(entsql.EQ("id", id)))
		return err
	})

	return storage.Wrap("delete conversation", err)
}

// AppendMessage inserts a message and bumps the conversation's last activity
// in one transaction. The timestamp never moves backwards.
func (s *Store) AppendMessage(ctx context.Context, conversationID string, role storage.Role, content string, tokens int) (*storage.Message, error) {
	if !role.Valid() {
		return nil, storage.Wrap("append message", fmt.Errorf("invalid role %q", role))
	}

	now := s.stamp()
	msg := &storage.Message{
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Tokens:         tokens,
		CreatedAt:      time.Unix(0, now),
	}

	b := s.dialect.Builder()
	err := s.inTx(ctx, func(tx dialect.Tx) error {
		found, err := s.exists(ctx, tx, conversationID)
		if err != nil {
			return err
		}
		if !found {
			return storage.NotFoundError{ID: conversationID}
		}

		_, err = exec(ctx, tx, b.Update("conversations").
			Set("updated_at", now).
			Where(entsql.And(entsql.EQ("id", conversationID), entsql.LT("updated_at", now))))
		if err != nil {
			return err
		}

		rows, err := query(ctx, tx, b.Insert("messages").
			Columns("conversation_id", "role", "content", "tokens", "created_at").
			Values(conversationID, string(role), content, tokens, now).
			Returning("id"))
		if err != nil {
			return err
		}
		defer rows.Close()

		msg.ID, err = entsql.ScanInt64(rows)
		return err
	})
	if err != nil {
		return nil, storage.Wrap("append message", err)
	}

	return msg, nil
}

// ListMessages returns a conversation's messages in insertion order.
func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]*storage.Message, error) {
	b := s.dialect.Builder()
	rows, err := query(ctx, s.drv, b.Select("id", "conversation_id", "role", "content", "tokens", "created_at").
		From(b.Table("messages")).
		Where(entsql.EQ("conversation_id", conversationID)).
		OrderBy(entsql.Asc("created_at"), entsql.Asc("id")))
	if err != nil {
		return nil, storage.Wrap("list messages", err)
	}

	msgs, err := scanAll(rows, func(row entsql.ColumnScanner) (*storage.Message, error) {
		var (
			m       storage.Message
			role    string
			created int64
		)
		if err := row.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &m.Tokens, &created); err != nil {
			return nil, err
		}
		m.Role = storage.Role(role)
		m.CreatedAt = time.Unix(0, created)
		return &m, nil
	})
	return msgs, storage.Wrap("list messages", err)
}

// UpsertFact inserts a fact or replaces the value of an existing key.
func (s *Store) UpsertFact(ctx context.Context, conversationID, key, value string) error {
	_, err := exec(ctx, s.drv, s.factUpsert(conversationID, key, value))
	return storage.Wrap("upsert fact", err)
}

// factUpsert keeps created_at from the first insert so facts stay in
// first-seen order.
func (s *Store) factUpsert(conversationID, key, value string) *entsql.InsertBuilder {
	now := s.stamp()
	return s.dialect.Builder().Insert("facts").
		Columns("conversation_id", "key", "value", "created_at", "updated_at").
		Values(conversationID, key, value, now, now).
		OnConflict(
			entsql.ConflictColumns("conversation_id", "key"),
			entsql.ResolveWith(func(u *entsql.UpdateSet) {
				u.SetExcluded("value")
				u.SetExcluded("updated_at")
			}),
		)
}

// ListFacts returns a conversation's facts ordered by first insertion.
func (s *Store) ListFacts(ctx context.Context, conversationID string) ([]*storage.Fact, error) {
	b := s.dialect.Builder()
	rows, err := query(ctx, s.drv, b.Select("conversation_id", "key", "value", "created_at", "updated_at").
		From(b.Table("facts")).
		Where(entsql.EQ("conversation_id", conversationID)).
		OrderBy(entsql.Asc("created_at"), entsql.Asc("id")))
	if err != nil {
		return nil, storage.Wrap("list facts", err)
	}

	facts, err := scanAll(rows, func(row entsql.ColumnScanner) (*storage.Fact, error) {
		var (
			f                storage.Fact
			created, updated int64
		)
		if err := row.Scan(&f.ConversationID, &f.Key, &f.Value, &created, &updated); err != nil {
			return nil, err
		}
		f.CreatedAt = time.Unix(0, created)
		f.UpdatedAt = time.Unix(0, updated)
		return &f, nil
	})
	return facts, storage.Wrap("list facts", err)
}

// AppendPreference stores a preference row.
func (s *Store) AppendPreference(ctx context.Context, conversationID, category, item string) error {
	_, err := exec(ctx, s.drv, s.preferenceInsert(conversationID, category, item))
	return storage.Wrap("append preference", err)
}

func (s *Store) preferenceInsert(conversationID, category, item string) *entsql.InsertBuilder {
	return s.dialect.Builder().Insert("preferences").
		Columns("conversation_id", "category", "item", "created_at").
		Values(conversationID, category, item, s.stamp())
}

// ListPreferences returns a conversation's preferences in insertion order.
func (s *Store) ListPreferences(ctx context.Context, conversationID string) ([]*storage.Preference, error) {
	b := s.dialect.Builder()
	rows, err := query(ctx, s.drv, b.Select("conversation_id", "category", "item", "created_at").
		From(b.Table("preferences")).
		Where(entsql.EQ("conversation_id", conversationID)).
		OrderBy(entsql.Asc("created_at"), entsql.Asc("id")))
	if err != nil {
		return nil, storage.Wrap("list preferences", err)
	}

	prefs, err := scanAll(rows, func(row entsql.ColumnScanner) (*storage.Preference, error) {
		var (
			p       storage.Preference
			created int64
		)
		if err := row.Scan(&p.ConversationID, &p.Category, &p.Item, &created); err != nil {
			return nil, err
		}
		p.CreatedAt = time.Unix(0, created)
		return &p, nil
	})
	return prefs, storage.Wrap("list preferences", err)
}

// AppendExperience stores an experience row.
func (s *Store) AppendExperience(ctx context.Context, conversationID, experience, snippet string) error {
	_, err := exec(ctx, s.drv, s.experienceInsert(conversationID, experience, snippet))
	return storage.Wrap("append experience", err)
}

func (s *Store) experienceInsert(conversationID, experience, snippet string) *entsql.InsertBuilder {
	return s.dialect.Builder().Insert("experiences").
		Columns("conversation_id", "experience", "context", "created_at").
		Values(conversationID, experience, snippet, s.stamp())
}

// RecentExperiences returns up to limit experiences, newest first.
func (s *Store) RecentExperiences(ctx context.Context, conversationID string, limit int) ([]*storage.Experience, error) {
	if limit <= 0 {
		return []*storage.Experience{}, nil
	}

	b := s.dialect.Builder()
	rows, err := query(ctx, s.drv, b.Select("conversation_id", "experience", "context", "created_at").
		From(b.Table("experiences")).
		Where(entsql.EQ("conversation_id", conversationID)).
		OrderBy(entsql.Desc("created_at"), entsql.Desc("id")).
		Limit(limit))
	if err != nil {
		return nil, storage.Wrap("recent experiences", err)
	}

	exps, err := scanAll(rows, func(row entsql.ColumnScanner) (*storage.Experience, error) {
		var (
			e       storage.Experience
			created int64
		)
		if err := row.Scan(&e.ConversationID, &e.Experience, &e.Context, &created); err != nil {
			return nil, err
		}
		e.CreatedAt = time.Unix(0, created)
		return &e, nil
	})
	return exps, storage.Wrap("recent experiences", err)
}

// IncrementTopic inserts a topic with frequency 1 or bumps an existing one.
func (s *Store) IncrementTopic(ctx context.Context, conversationID, topic string) error {
	_, err := exec(ctx, s.drv, s.topicUpsert(conversationID, topic))
	return storage.Wrap("increment topic", err)
}

func (s *Store) topicUpsert(conversationID, topic string) *entsql.InsertBuilder {
	now := s.stamp()
	return s.dialect.Builder().Insert("topics").
		Columns("conversation_id", "topic", "frequency", "created_at", "updated_at").
		Values(conversationID, topic, 1, now, now).
		OnConflict(
			entsql.ConflictColumns("conversation_id", "topic"),
			entsql.ResolveWith(func(u *entsql.UpdateSet) {
				u.Add("frequency", 1)
				u.SetExcluded("updated_at")
			}),
		)
}

// ListTopics returns a conversation's topics ordered by first mention.
func (s *Store) ListTopics(ctx context.Context, conversationID string) ([]*storage.Topic, error) {
	b := s.dialect.Builder()
	rows, err := query(ctx, s.drv, b.Select("conversation_id", "topic", "frequency", "created_at", "updated_at").
		From(b.Table("topics")).
		Where(entsql.EQ("conversation_id", conversationID)).
		OrderBy(entsql.Asc("created_at"), entsql.Asc("id")))
	if err != nil {
		return nil, storage.Wrap("list topics", err)
	}

	topics, err := scanAll(rows, func(row entsql.ColumnScanner) (*storage.Topic, error) {
		var (
			t                storage.Topic
			created, updated int64
		)
		if err := row.Scan(&t.ConversationID, &t.Topic, &t.Frequency, &created, &updated); err != nil {
			return nil, err
		}
		t.CreatedAt = time.Unix(0, created)
		t.UpdatedAt = time.Unix(0, updated)
		return &t, nil
	})
	return topics, storage.Wrap("list topics", err)
}

// SaveMemory applies items in order inside one transaction.
func (s *Store) SaveMemory(ctx context.Context, conversationID string, items []storage.MemoryItem) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	err := s.inTx(ctx, func(tx dialect.Tx) error {
		found, err := s.exists(ctx, tx, conversationID)
		if err != nil {
			return err
		}
		if !found {
			return storage.NotFoundError{ID: conversationID}
		}

		for _, item := range items {
			stmt, err := s.memoryStatement(conversationID, item)
			if err == nil {
				_, err = exec(ctx, tx, stmt)
			}
			if err != nil {
				return fmt.Errorf("applying %s: %w", item, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, storage.Wrap("save memory", err)
	}

	return len(items), nil
}

func (s *Store) memoryStatement(conversationID string, item storage.MemoryItem) (entsql.Querier, error) {
	switch item.Kind {
	case storage.MemoryFact:
		return s.factUpsert(conversationID, item.Key, item.Value), nil
	case storage.MemoryPreference:
		return s.preferenceInsert(conversationID, item.Key, item.Value), nil
	case storage.MemoryExperience:
		return s.experienceInsert(conversationID, item.Value, item.Context), nil
	case storage.MemoryTopic:
		return s.topicUpsert(conversationID, item.Key), nil
	default:
		return nil, fmt.Errorf("unknown memory kind %q", item.Kind)
	}
}

// MemoryCounts returns the number of facts, experiences and topics stored for
// a conversation.
func (s *Store) MemoryCounts(ctx context.Context, conversationID string) (storage.MemoryCounts, error) {
	var (
		counts storage.MemoryCounts
		errs   []error
	)
	for table, dst := range map[string]*int{
		"facts":       &counts.Facts,
		"experiences": &counts.Experiences,
		"topics":      &counts.Topics,
	} {
		n, err := s.count(ctx, table, conversationID)
		if err != nil {
			errs = append(errs, fmt.Errorf("counting %s: %w", table, err))
			continue
		}
		*dst = n
	}
	if err := errors.Join(errs...); err != nil {
		return storage.MemoryCounts{}, storage.Wrap("memory counts", err)
	}

	return counts, nil
}

func (s *Store) count(ctx context.Context, table, conversationID string) (int, error) {
	b := s.dialect.Builder()
	rows, err := query(ctx, s.drv, b.Select(entsql.Count("*")).
		From(b.Table(table)).
		Where(entsql.EQ("conversation_id", conversationID)))
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	return entsql.ScanInt(rows)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.drv.Close()
}

func scanConversation(row entsql.ColumnScanner) (*storage.Conversation, error) {
	var (
		c                storage.Conversation
		created, updated int64
	)
	if err := row.Scan(&c.ID, &c.Title, &created, &updated); err != nil {
		return nil, err
	}
	c.CreatedAt = time.Unix(0, created)
	c.UpdatedAt = time.Unix(0, updated)
	return &c, nil
}
