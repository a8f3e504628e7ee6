package memory

import (
	"context"
	"log/slog"
)

// Extractor derives memory from user utterances and persists it.
type Extractor struct {
	store  Writer
	logger *slog.Logger
}

// NewExtractor returns an Extractor that writes through store.
func NewExtractor(store Writer, logger *slog.Logger) (*Extractor, error) {
	if store == nil {
		return nil, ErrNotConfigured
	}
	return &Extractor{
		store:  store,
		logger: logger,
	}, nil
}

// Extract persists the memory found in userInput and returns how many items
// were stored. The assistant reply is accepted but not used yet. Failures are
// logged and reported as zero.
func (e *Extractor) Extract(ctx context.Context, conversationID, userInput, _ string) int {
	items := Items(userInput)
	if len(items) == 0 {
		return 0
	}

	n, err := e.store.SaveMemory(ctx, conversationID, items)
	if err != nil {
		e.logger.Warn("failed to save extracted memory",
			"conversation_id", conversationID,
			"items", len(items),
			"error", err,
		)
		return 0
	}

	e.logger.Debug("extracted memory",
		"conversation_id", conversationID,
		"count", n,
	)
	return n
}
