package database

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Session is one tab's active period for a user. A row with a valid EndedAt
// is terminal.
type Session struct {
	ID         uuid.UUID    `db:"id" json:"id"`
	UserID     uuid.UUID    `db:"user_id" json:"user_id"`
	StartedAt  time.Time    `db:"started_at" json:"started_at"`
	LastSeenAt time.Time    `db:"last_seen_at" json:"last_seen_at"`
	EndedAt    sql.NullTime `db:"ended_at" json:"ended_at"`
	Page       string       `db:"page" json:"page"`
}

// Closed reports whether the session has reached its terminal state.
func (s Session) Closed() bool {
	return s.EndedAt.Valid
}

// User is an entry in the identity directory.
type User struct {
	ID         uuid.UUID    `db:"id" json:"id"`
	TenantID   uuid.UUID    `db:"tenant_id" json:"tenant_id"`
	FullName   string       `db:"full_name" json:"full_name"`
	AvatarURL  string       `db:"avatar_url" json:"avatar_url"`
	Role       string       `db:"role" json:"role"`
	LastSeenAt sql.NullTime `db:"last_seen_at" json:"last_seen_at"`
}

type InsertSessionParams struct {
	// ID is generated when left as uuid.Nil.
	ID        uuid.UUID `db:"id" json:"id"`
	UserID    uuid.UUID `db:"user_id" json:"user_id"`
	StartedAt time.Time `db:"started_at" json:"started_at"`
	Page      string    `db:"page" json:"page"`
}

type GetSessionsParams struct {
	// StartedAfter is inclusive. The zero value disables the filter.
	StartedAfter time.Time `db:"started_after" json:"started_after"`
	// UserID restricts the result to one user. uuid.Nil disables the filter.
	UserID uuid.UUID `db:"user_id" json:"user_id"`
	// TenantID restricts the result to sessions of the tenant's users.
	// uuid.Nil disables the filter.
	TenantID uuid.UUID `db:"tenant_id" json:"tenant_id"`
	LimitOpt int32     `db:"limit_opt" json:"limit_opt"`
}

type UpdateSessionHeartbeatParams struct {
	ID         uuid.UUID `db:"id" json:"id"`
	LastSeenAt time.Time `db:"last_seen_at" json:"last_seen_at"`
	Page       string    `db:"page" json:"page"`
}

type UpdateSessionPageParams struct {
	ID   uuid.UUID `db:"id" json:"id"`
	Page string    `db:"page" json:"page"`
}

type CloseSessionParams struct {
	ID      uuid.UUID `db:"id" json:"id"`
	EndedAt time.Time `db:"ended_at" json:"ended_at"`
}

type InsertUserParams struct {
	ID        uuid.UUID `db:"id" json:"id"`
	TenantID  uuid.UUID `db:"tenant_id" json:"tenant_id"`
	FullName  string    `db:"full_name" json:"full_name"`
	AvatarURL string    `db:"avatar_url" json:"avatar_url"`
	Role      string    `db:"role" json:"role"`
}

type UpdateUserLastSeenAtParams struct {
	ID         uuid.UUID `db:"id" json:"id"`
	LastSeenAt time.Time `db:"last_seen_at" json:"last_seen_at"`
}
