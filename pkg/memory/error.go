package memory

import "errors"

// ErrNotConfigured is returned when an Extractor or Retriever is built
// without a store behind it.
var ErrNotConfigured = errors.New("memory: no store configured")
