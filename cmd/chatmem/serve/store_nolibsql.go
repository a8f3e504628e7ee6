//go:build !libsql

package servecmder

import (
	"context"
	"errors"

	"github.com/papercomputeco/chatmem/pkg/storage"
)

var errNoLibSQL = errors.New("chatmem was built without libsql, rebuild with -tags libsql")

func openLibSQL(context.Context, string) (storage.Driver, error) {
	return nil, errNoLibSQL
}
