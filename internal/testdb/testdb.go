// Package testdb provides the Postgres connection used by integration
// tests. Tests that call GetTestDBWithT are skipped when no database URL is
// configured.
package testdb

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/phrazzld/isplitter/internal/platform/postgres"
	"github.com/stretchr/testify/require"
)

// TestTimeout bounds connection and migration setup.
const TestTimeout = 10 * time.Second

// GetTestDatabaseURL returns ISPLITTER_TEST_DB_URL, falling back to DATABASE_URL.
func GetTestDatabaseURL() string {
	if u := os.Getenv("ISPLITTER_TEST_DB_URL"); u != "" {
		return u
	}
	return os.Getenv("DATABASE_URL")
}

// GetTestDBWithT opens a migrated database and truncates the service tables.
// The connection is closed when the test ends.
func GetTestDBWithT(t *testing.T) *sql.DB {
	t.Helper()

	dbURL := GetTestDatabaseURL()
	if dbURL == "" {
		t.Skip("ISPLITTER_TEST_DB_URL or DATABASE_URL not set - skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), TestTimeout)
	defer cancel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db, err := postgres.Open(ctx, dbURL, logger)
	require.NoError(t, err, "failed to connect to test database")

	require.NoError(t, postgres.Migrate(ctx, db, "up", logger), "failed to migrate test database")

	_, err = db.ExecContext(ctx, "TRUNCATE tasks, tryon_tasks")
	require.NoError(t, err, "failed to truncate tables")

	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("warning: failed to close database connection: %v", err)
		}
	})

	return db
}
