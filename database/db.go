// Package database connects to external services for stateful storage.
//
// The sessions table is the durable ledger written by the session recorder and
// read by the activity reporter. The users table is the identity directory; only
// its last_seen_at column is written from here.
//
// To modify the database schema add a new migration in database/migrations and
// update the queries in queries.go together with the in-memory store in dbmem.
package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Store contains all queryable database functions.
type Store interface {
	InsertSession(ctx context.Context, arg InsertSessionParams) (Session, error)
	GetSessionByID(ctx context.Context, id uuid.UUID) (Session, error)
	GetSessions(ctx context.Context, arg GetSessionsParams) ([]Session, error)
	UpdateSessionHeartbeat(ctx context.Context, arg UpdateSessionHeartbeatParams) error
	UpdateSessionPage(ctx context.Context, arg UpdateSessionPageParams) error
	CloseSession(ctx context.Context, arg CloseSessionParams) (Session, error)

	InsertUser(ctx context.Context, arg InsertUserParams) (User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (User, error)
	GetUsersByTenant(ctx context.Context, tenantID uuid.UUID) ([]User, error)
	UpdateUserLastSeenAt(ctx context.Context, arg UpdateUserLastSeenAtParams) error

	Ping(ctx context.Context) (time.Duration, error)
}

// DBTX represents a database connection or transaction.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// New creates a new database store using a SQL database connection.
func New(sdb *sql.DB) Store {
	dbx := sqlx.NewDb(sdb, "postgres")
	return &sqlQuerier{
		db:  dbx,
		sdb: dbx,
	}
}

type sqlQuerier struct {
	sdb *sqlx.DB
	db  DBTX
}

// Ping returns the time it takes to ping the database.
func (q *sqlQuerier) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	err := q.sdb.PingContext(ctx)
	return time.Since(start), err
}
