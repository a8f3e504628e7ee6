package postgres_test

import (
	"context"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatmem/pkg/storage"
	"github.com/papercomputeco/chatmem/pkg/storage/postgres"
	"github.com/papercomputeco/chatmem/pkg/storage/storagetest"
)

// connStr returns the PostgreSQL connection string from environment or skips the test.
func connStr() string {
	dsn := os.Getenv("CHATMEM_TEST_POSTGRES_DSN")
	if dsn == "" {
		Skip("CHATMEM_TEST_POSTGRES_DSN not set, skipping PostgreSQL tests")
	}
	return dsn
}

var _ = Describe("Driver", func() {
	storagetest.DriverSpecs(func() storage.Driver {
		ctx := context.Background()
		driver, err := postgres.NewDriver(ctx, connStr())
		Expect(err).NotTo(HaveOccurred())

		// Clean all tables before each test for isolation.
		_, err = driver.DB().ExecContext(ctx,
			`TRUNCATE conversations, messages, facts, preferences, experiences, topics RESTART IDENTITY CASCADE`)
		Expect(err).NotTo(HaveOccurred())
		return driver
	})
})
