//go:build libsql

package servecmder

import (
	"context"

	"github.com/papercomputeco/chatmem/pkg/storage"
	"github.com/papercomputeco/chatmem/pkg/storage/libsql"
)

// go-libsql bundles its own SQLite, so it only links into binaries built
// with -tags libsql.
func openLibSQL(ctx context.Context, url string) (storage.Driver, error) {
	return libsql.NewDriver(ctx, url)
}
