// Package dbmem is an in-memory implementation of database.Store. It mirrors
// the guards of the SQL queries so tests and single-process deployments see
// the same semantics as Postgres.
package dbmem

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/xerrors"

	"github.com/coder/opsdash/database"
)

// New returns an in-memory fake of the database.
func New() database.Store {
	return &FakeQuerier{
		sessions: make([]database.Session, 0),
		users:    make([]database.User, 0),
	}
}

// FakeQuerier replicates database functionality to enable quick testing.
type FakeQuerier struct {
	mutex sync.RWMutex

	sessions []database.Session
	users    []database.User
}

var _ database.Store = (*FakeQuerier)(nil)

func (*FakeQuerier) Ping(_ context.Context) (time.Duration, error) {
	return 0, nil
}

func (q *FakeQuerier) InsertSession(_ context.Context, arg database.InsertSessionParams) (database.Session, error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if arg.ID == uuid.Nil {
		arg.ID = uuid.New()
	}
	for _, s := range q.sessions {
		if s.ID == arg.ID {
			return database.Session{}, xerrors.Errorf("session %s already exists", arg.ID)
		}
	}
	session := database.Session{
		ID:         arg.ID,
		UserID:     arg.UserID,
		StartedAt:  arg.StartedAt,
		LastSeenAt: arg.StartedAt,
		Page:       arg.Page,
	}
	q.sessions = append(q.sessions, session)
	return session, nil
}

func (q *FakeQuerier) GetSessionByID(_ context.Context, id uuid.UUID) (database.Session, error) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	for _, s := range q.sessions {
		if s.ID == id {
			return s, nil
		}
	}
	return database.Session{}, sql.ErrNoRows
}

func (q *FakeQuerier) GetSessions(_ context.Context, arg database.GetSessionsParams) ([]database.Session, error) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	tenants := make(map[uuid.UUID]uuid.UUID, len(q.users))
	for _, u := range q.users {
		tenants[u.ID] = u.TenantID
	}
	sessions := make([]database.Session, 0)
	for _, s := range q.sessions {
		if !arg.StartedAfter.IsZero() && s.StartedAt.Before(arg.StartedAfter) {
			continue
		}
		if arg.UserID != uuid.Nil && s.UserID != arg.UserID {
			continue
		}
		if tenantID, ok := tenants[s.UserID]; arg.TenantID != uuid.Nil && (!ok || tenantID != arg.TenantID) {
			continue
		}
		sessions = append(sessions, s)
	}
	sort.SliceStable(sessions, func(i, j int) bool {
		if !sessions[i].StartedAt.Equal(sessions[j].StartedAt) {
			return sessions[i].StartedAt.After(sessions[j].StartedAt)
		}
		return sessions[i].ID.String() < sessions[j].ID.String()
	})
	if arg.LimitOpt > 0 && len(sessions) > int(arg.LimitOpt) {
		sessions = sessions[:arg.LimitOpt]
	}
	return sessions, nil
}

func (q *FakeQuerier) UpdateSessionHeartbeat(_ context.Context, arg database.UpdateSessionHeartbeatParams) error {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for i, s := range q.sessions {
		if s.ID != arg.ID || s.Closed() {
			continue
		}
		s.LastSeenAt = latest(s.StartedAt, arg.LastSeenAt)
		s.Page = arg.Page
		q.sessions[i] = s
		return nil
	}
	return nil
}

func (q *FakeQuerier) UpdateSessionPage(_ context.Context, arg database.UpdateSessionPageParams) error {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for i, s := range q.sessions {
		if s.ID != arg.ID || s.Closed() {
			continue
		}
		s.Page = arg.Page
		q.sessions[i] = s
		return nil
	}
	return nil
}

func (q *FakeQuerier) CloseSession(_ context.Context, arg database.CloseSessionParams) (database.Session, error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for i, s := range q.sessions {
		if s.ID != arg.ID {
			continue
		}
		if !s.Closed() {
			s.EndedAt = sql.NullTime{Time: latest(s.StartedAt, arg.EndedAt), Valid: true}
			q.sessions[i] = s
		}
		return s, nil
	}
	return database.Session{}, sql.ErrNoRows
}

func (q *FakeQuerier) InsertUser(_ context.Context, arg database.InsertUserParams) (database.User, error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if arg.ID == uuid.Nil {
		arg.ID = uuid.New()
	}
	for _, u := range q.users {
		if u.ID == arg.ID {
			return database.User{}, xerrors.Errorf("user %s already exists", arg.ID)
		}
	}
	user := database.User{
		ID:        arg.ID,
		TenantID:  arg.TenantID,
		FullName:  arg.FullName,
		AvatarURL: arg.AvatarURL,
		Role:      arg.Role,
	}
	q.users = append(q.users, user)
	return user, nil
}

func (q *FakeQuerier) GetUserByID(_ context.Context, id uuid.UUID) (database.User, error) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	for _, u := range q.users {
		if u.ID == id {
			return u, nil
		}
	}
	return database.User{}, sql.ErrNoRows
}

func (q *FakeQuerier) GetUsersByTenant(_ context.Context, tenantID uuid.UUID) ([]database.User, error) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	users := make([]database.User, 0)
	for _, u := range q.users {
		if u.TenantID == tenantID {
			users = append(users, u)
		}
	}
	sort.SliceStable(users, func(i, j int) bool {
		if users[i].FullName != users[j].FullName {
			return users[i].FullName < users[j].FullName
		}
		return users[i].ID.String() < users[j].ID.String()
	})
	return users, nil
}

func (q *FakeQuerier) UpdateUserLastSeenAt(_ context.Context, arg database.UpdateUserLastSeenAtParams) error {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for i, u := range q.users {
		if u.ID != arg.ID {
			continue
		}
		u.LastSeenAt = sql.NullTime{Time: arg.LastSeenAt, Valid: true}
		q.users[i] = u
		return nil
	}
	return nil
}

func latest(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
