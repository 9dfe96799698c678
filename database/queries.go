package database

import (
	"context"

	"github.com/google/uuid"
	"golang.org/x/xerrors"
)

const sessionColumns = `id, user_id, started_at, last_seen_at, ended_at, page`

const insertSession = `-- name: InsertSession :one
INSERT INTO sessions (id, user_id, started_at, last_seen_at, ended_at, page)
VALUES ($1, $2, $3, $3, NULL, $4)
RETURNING ` + sessionColumns

func (q *sqlQuerier) InsertSession(ctx context.Context, arg InsertSessionParams) (Session, error) {
	if arg.ID == uuid.Nil {
		arg.ID = uuid.New()
	}
	var i Session
	err := q.db.GetContext(ctx, &i, insertSession, arg.ID, arg.UserID, arg.StartedAt, arg.Page)
	return i, err
}

const getSessionByID = `-- name: GetSessionByID :one
SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`

func (q *sqlQuerier) GetSessionByID(ctx context.Context, id uuid.UUID) (Session, error) {
	var i Session
	err := q.db.GetContext(ctx, &i, getSessionByID, id)
	return i, err
}

const getSessions = `-- name: GetSessions :many
SELECT ` + sessionColumns + ` FROM sessions
WHERE
	CASE
		WHEN $1 :: timestamptz != '0001-01-01 00:00:00Z' :: timestamptz THEN started_at >= $1
		ELSE true
	END
	AND CASE
		WHEN $2 :: uuid != '00000000-0000-0000-0000-000000000000' :: uuid THEN user_id = $2
		ELSE true
	END
	AND CASE
		WHEN $3 :: uuid != '00000000-0000-0000-0000-000000000000' :: uuid THEN
			user_id IN (SELECT users.id FROM users WHERE users.tenant_id = $3)
		ELSE true
	END
ORDER BY started_at DESC, id ASC
LIMIT NULLIF($4 :: int, 0)`

func (q *sqlQuerier) GetSessions(ctx context.Context, arg GetSessionsParams) ([]Session, error) {
	items := make([]Session, 0)
	err := q.db.SelectContext(ctx, &items, getSessions, arg.StartedAfter, arg.UserID, arg.TenantID, arg.LimitOpt)
	if err != nil {
		return nil, err
	}
	return items, nil
}

// Closed rows are never touched, and last_seen_at never moves before
// started_at even when the writer's clock is behind.
const updateSessionHeartbeat = `-- name: UpdateSessionHeartbeat :exec
UPDATE sessions
SET
	last_seen_at = GREATEST(started_at, $2 :: timestamptz),
	page = $3
WHERE id = $1 AND ended_at IS NULL`

func (q *sqlQuerier) UpdateSessionHeartbeat(ctx context.Context, arg UpdateSessionHeartbeatParams) error {
	_, err := q.db.ExecContext(ctx, updateSessionHeartbeat, arg.ID, arg.LastSeenAt, arg.Page)
	return err
}

const updateSessionPage = `-- name: UpdateSessionPage :exec
UPDATE sessions SET page = $2 WHERE id = $1 AND ended_at IS NULL`

func (q *sqlQuerier) UpdateSessionPage(ctx context.Context, arg UpdateSessionPageParams) error {
	_, err := q.db.ExecContext(ctx, updateSessionPage, arg.ID, arg.Page)
	return err
}

// The first close wins. Later calls return the row unchanged.
const closeSession = `-- name: CloseSession :one
UPDATE sessions
SET ended_at = COALESCE(ended_at, GREATEST(started_at, $2 :: timestamptz))
WHERE id = $1
RETURNING ` + sessionColumns

func (q *sqlQuerier) CloseSession(ctx context.Context, arg CloseSessionParams) (Session, error) {
	var i Session
	err := q.db.GetContext(ctx, &i, closeSession, arg.ID, arg.EndedAt)
	return i, err
}

const userColumns = `id, tenant_id, full_name, avatar_url, role, last_seen_at`

const insertUser = `-- name: InsertUser :one
INSERT INTO users (id, tenant_id, full_name, avatar_url, role)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + userColumns

func (q *sqlQuerier) InsertUser(ctx context.Context, arg InsertUserParams) (User, error) {
	if arg.ID == uuid.Nil {
		arg.ID = uuid.New()
	}
	var i User
	err := q.db.GetContext(ctx, &i, insertUser, arg.ID, arg.TenantID, arg.FullName, arg.AvatarURL, arg.Role)
	if err != nil {
		return User{}, xerrors.Errorf("insert user: %w", err)
	}
	return i, nil
}

const getUserByID = `-- name: GetUserByID :one
SELECT ` + userColumns + ` FROM users WHERE id = $1`

func (q *sqlQuerier) GetUserByID(ctx context.Context, id uuid.UUID) (User, error) {
	var i User
	err := q.db.GetContext(ctx, &i, getUserByID, id)
	return i, err
}

const getUsersByTenant = `-- name: GetUsersByTenant :many
SELECT ` + userColumns + ` FROM users WHERE tenant_id = $1 ORDER BY full_name ASC, id ASC`

func (q *sqlQuerier) GetUsersByTenant(ctx context.Context, tenantID uuid.UUID) ([]User, error) {
	items := make([]User, 0)
	err := q.db.SelectContext(ctx, &items, getUsersByTenant, tenantID)
	if err != nil {
		return nil, err
	}
	return items, nil
}

const updateUserLastSeenAt = `-- name: UpdateUserLastSeenAt :exec
UPDATE users SET last_seen_at = $2 WHERE id = $1`

func (q *sqlQuerier) UpdateUserLastSeenAt(ctx context.Context, arg UpdateUserLastSeenAtParams) error {
	_, err := q.db.ExecContext(ctx, updateUserLastSeenAt, arg.ID, arg.LastSeenAt)
	return err
}
