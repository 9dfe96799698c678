// Package dbtestutil builds the store and pubsub used by tests. Tests run
// against the in-memory implementations unless DB is set, in which case a
// migrated Postgres database is used.
package dbtestutil

import (
	"database/sql"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coder/opsdash/database"
	"github.com/coder/opsdash/database/dbmem"
	"github.com/coder/opsdash/database/migrations"
	"github.com/coder/opsdash/database/postgres"
	"github.com/coder/opsdash/database/pubsub"
	"github.com/coder/opsdash/testutil"
)

// WillUsePostgres returns true if a call to NewDB() will return a real,
// postgres-backed Store and Pubsub.
func WillUsePostgres() bool {
	return os.Getenv("DB") != ""
}

func NewDB(t testing.TB) (database.Store, pubsub.Pubsub) {
	t.Helper()

	if !WillUsePostgres() {
		return dbmem.New(), pubsub.NewInMemory()
	}

	connectionURL, closePg, err := postgres.Open()
	require.NoError(t, err)
	t.Cleanup(closePg)

	sqlDB, err := sql.Open("postgres", connectionURL)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	require.NoError(t, migrations.Up(sqlDB))

	ps, err := pubsub.NewPG(testutil.Context(t, testutil.WaitLong), testutil.Logger(t), sqlDB, connectionURL)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = ps.Close()
	})
	return database.New(sqlDB), ps
}
