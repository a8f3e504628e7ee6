package servecmder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/papercomputeco/chatmem/cmd/chatmem/sqlitepath"
	"github.com/papercomputeco/chatmem/pkg/config"
	"github.com/papercomputeco/chatmem/pkg/storage"
	"github.com/papercomputeco/chatmem/pkg/storage/inmemory"
	"github.com/papercomputeco/chatmem/pkg/storage/postgres"
	"github.com/papercomputeco/chatmem/pkg/storage/sqlite"
)

// Storage backend names accepted by --storage.
const (
	backendSQLite   = "sqlite"
	backendPostgres = "postgres"
	backendLibSQL   = "libsql"
	backendMemory   = "memory"
)

// openStore opens the configured storage backend. dataDir holds the default
// SQLite database.
func openStore(ctx context.Context, cfg config.StorageConfig, dataDir string, logger *slog.Logger) (storage.Driver, error) {
	switch cfg.Backend {
	case backendSQLite, "":
		path := sqlitepath.ResolveSQLitePath(cfg.SQLitePath, dataDir)
		d, err := sqlite.NewDriver(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("opening SQLite storage: %w", err)
		}
		logger.Info("using SQLite storage", "path", path)
		return d, nil

	case backendPostgres:
		if cfg.PostgresDSN == "" {
			return nil, errors.New("postgres storage requires --postgres-dsn")
		}
		d, err := postgres.NewDriver(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("opening PostgreSQL storage: %w", err)
		}
		logger.Info("using PostgreSQL storage")
		return d, nil

	case backendLibSQL:
		if cfg.LibSQLURL == "" {
			return nil, errors.New("libsql storage requires --libsql-url")
		}
		d, err := openLibSQL(ctx, cfg.LibSQLURL)
		if err != nil {
			return nil, fmt.Errorf("opening libSQL storage: %w", err)
		}
		logger.Info("using libSQL storage", "url", cfg.LibSQLURL)
		return d, nil

	case backendMemory:
		logger.Warn("using in-memory storage, conversations are lost on exit")
		return inmemory.NewDriver(), nil

	default:
		return nil, fmt.Errorf("unknown storage backend: %q (supported: sqlite, postgres, libsql, memory)", cfg.Backend)
	}
}
