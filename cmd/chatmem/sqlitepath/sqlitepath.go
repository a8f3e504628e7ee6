// Package sqlitepath resolves where the SQLite database lives when no path
// has been configured.
package sqlitepath

import (
	"os"
	"path/filepath"
	"strings"
)

// FileName is the database file name inside a data directory.
const FileName = "chatmem.db"

// ResolveSQLitePath returns override when set. Otherwise it returns the first
// existing database among the well-known locations, falling back to
// FileName inside dataDir.
func ResolveSQLitePath(override, dataDir string) string {
	if override != "" {
		return override
	}

	for _, candidate := range sqliteCandidates(dataDir) {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	if dataDir == "" {
		return FileName
	}
	return filepath.Join(dataDir, FileName)
}

func sqliteCandidates(dataDir string) []string {
	var candidates []string

	if xdgHome := strings.TrimSpace(os.Getenv("XDG_DATA_HOME")); xdgHome != "" {
		candidates = append(candidates, filepath.Join(xdgHome, "chatmem", FileName))
	}
	if dataDir != "" {
		candidates = append(candidates, filepath.Join(dataDir, FileName))
	}

	return append(candidates, FileName)
}
