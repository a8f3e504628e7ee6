package sqlstore

import "time"

func statementStore(d Dialect) *Store {
	return &Store{dialect: d, now: func() time.Time { return time.Unix(0, 42) }}
}

func FactUpsert(d Dialect, conversationID, key, value string) (string, []any) {
	return statementStore(d).factUpsert(conversationID, key, value).Query()
}

func TopicUpsert(d Dialect, conversationID, topic string) (string, []any) {
	return statementStore(d).topicUpsert(conversationID, topic).Query()
}
