// Package libsql provides a storage driver for libSQL and Turso databases.
package libsql

import (
	"context"
	"database/sql"
	"fmt"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	_ "github.com/tursodatabase/go-libsql" // register the "libsql" driver

	"github.com/papercomputeco/chatmem/pkg/storage/sqlstore"
)

// Driver implements storage.Driver using libSQL. It shares the SQLite dialect.
type Driver struct {
	*sqlstore.Store
}

// NewDriver opens a libSQL database. The url is either a local
// "file:chatmem.db" path or a remote "libsql://<db>.turso.io?authToken=..."
// address.
func NewDriver(ctx context.Context, url string) (*Driver, error) {
	db, err := sql.Open("libsql", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store, err := sqlstore.New(ctx, entsql.OpenDB(dialect.SQLite, db))
	if err != nil {
		return nil, err
	}

	return &Driver{Store: store}, nil
}
