// Package session records the lifetime of one browser tab as a row in the
// sessions table.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/xerrors"

	"cdr.dev/slog/v3"
	"github.com/coder/quartz"

	"github.com/coder/opsdash/database"
	"github.com/coder/opsdash/database/dbtime"
)

// DefaultHeartbeatInterval is how often an open session's last_seen_at is
// refreshed.
const DefaultHeartbeatInterval = 30 * time.Second

// writeTimeout bounds every store write. We don't want to hang forever.
const writeTimeout = 10 * time.Second

// Store is a subset of database.Store.
type Store interface {
	InsertSession(ctx context.Context, arg database.InsertSessionParams) (database.Session, error)
	GetSessionByID(ctx context.Context, id uuid.UUID) (database.Session, error)
	UpdateSessionHeartbeat(ctx context.Context, arg database.UpdateSessionHeartbeatParams) error
	UpdateSessionPage(ctx context.Context, arg database.UpdateSessionPageParams) error
	CloseSession(ctx context.Context, arg database.CloseSessionParams) (database.Session, error)
	UpdateUserLastSeenAt(ctx context.Context, arg database.UpdateUserLastSeenAtParams) error
}

// Recorder owns one session row: it opens it, heartbeats it while open, and
// closes it. Store failures never surface to the caller; they are logged and
// the recorder carries on without the row.
//
// The lifecycle is Open, then any number of Heartbeat and Navigate calls, then
// Close. Once closed the recorder writes nothing further.
type Recorder struct {
	store    Store
	log      slog.Logger
	clock    quartz.Clock
	interval time.Duration
	metrics  *Metrics

	mu        sync.Mutex
	opened    bool
	closed    bool
	id        uuid.UUID // uuid.Nil when Open failed
	userID    uuid.UUID
	page      string
	stopTick  context.CancelFunc
	heartbeat quartz.Waiter
}

type Option func(*Recorder)

// WithLogger sets the logger to be used by Recorder.
func WithLogger(log slog.Logger) Option {
	return func(r *Recorder) {
		r.log = log
	}
}

// WithClock sets the clock used for timestamps and the heartbeat ticker.
func WithClock(clock quartz.Clock) Option {
	return func(r *Recorder) {
		r.clock = clock
	}
}

// WithHeartbeatInterval allows configuring the heartbeat interval.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(r *Recorder) {
		r.interval = d
	}
}

func WithMetrics(m *Metrics) Option {
	return func(r *Recorder) {
		r.metrics = m
	}
}

// New returns a Recorder that has not opened a session. It is the caller's
// responsibility to call Close.
func New(store Store, opts ...Option) *Recorder {
	r := &Recorder{
		store:    store,
		log:      slog.Logger{},
		clock:    quartz.NewReal(),
		interval: DefaultHeartbeatInterval,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.metrics == nil {
		r.metrics = NewMetrics(nil)
	}
	return r
}

// writeContext detaches ctx from cancellation so a write started during
// teardown, when the caller's context is typically already done, still
// completes.
func writeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
}

// Open creates the session row and starts the heartbeat. It returns the new
// session id, or false if the row could not be created, in which case the
// recorder stays inert for the rest of its life. Calling Open again returns
// the result of the first call.
func (r *Recorder) Open(ctx context.Context, userID uuid.UUID, page string) (uuid.UUID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.opened || r.closed {
		return r.id, r.id != uuid.Nil
	}
	r.opened = true
	r.userID = userID
	r.page = page

	wctx, cancel := writeContext(ctx)
	defer cancel()
	session, err := r.store.InsertSession(wctx, database.InsertSessionParams{
		UserID:    userID,
		StartedAt: dbtime.Time(r.clock.Now()),
		Page:      page,
	})
	if err != nil {
		r.metrics.WriteErrors.WithLabelValues(OpOpen).Inc()
		r.log.Warn(ctx, "failed to open session, continuing without one",
			slog.F("user_id", userID), slog.Error(err))
		return uuid.Nil, false
	}
	r.id = session.ID
	r.log = r.log.With(slog.F("session_id", session.ID), slog.F("user_id", userID))
	r.metrics.Opened.Inc()

	tickCtx, stop := context.WithCancel(context.Background())
	r.stopTick = stop
	r.heartbeat = r.clock.TickerFunc(tickCtx, r.interval, func() error {
		r.Heartbeat(tickCtx)
		return nil
	}, "session", "heartbeat")

	r.log.Debug(ctx, "session opened", slog.F("page", page))
	return session.ID, true
}

// ID returns the open session's id, or uuid.Nil.
func (r *Recorder) ID() uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.id
}

// Heartbeat marks the session as seen now on the current page, then
// separately refreshes the user's last_seen_at.
func (r *Recorder) Heartbeat(ctx context.Context) {
	r.mu.Lock()
	if r.id == uuid.Nil || r.closed {
		r.mu.Unlock()
		return
	}
	id, userID, page := r.id, r.userID, r.page
	r.mu.Unlock()

	now := dbtime.Time(r.clock.Now())
	wctx, cancel := writeContext(ctx)
	defer cancel()

	err := r.store.UpdateSessionHeartbeat(wctx, database.UpdateSessionHeartbeatParams{
		ID:         id,
		LastSeenAt: now,
		Page:       page,
	})
	if err != nil {
		r.metrics.WriteErrors.WithLabelValues(OpHeartbeat).Inc()
		r.log.Warn(ctx, "failed to heartbeat session", slog.Error(err))
	}

	err = r.store.UpdateUserLastSeenAt(wctx, database.UpdateUserLastSeenAtParams{
		ID:         userID,
		LastSeenAt: now,
	})
	if err != nil {
		r.metrics.WriteErrors.WithLabelValues(OpUserLastSeen).Inc()
		r.log.Warn(ctx, "failed to update user last seen", slog.Error(err))
	}
}

// Navigate records a new page immediately, independent of the heartbeat.
func (r *Recorder) Navigate(ctx context.Context, page string) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.page = page
	id := r.id
	r.mu.Unlock()
	if id == uuid.Nil {
		return
	}

	wctx, cancel := writeContext(ctx)
	defer cancel()
	err := r.store.UpdateSessionPage(wctx, database.UpdateSessionPageParams{ID: id, Page: page})
	if err != nil {
		r.metrics.WriteErrors.WithLabelValues(OpNavigate).Inc()
		r.log.Warn(ctx, "failed to update session page", slog.F("page", page), slog.Error(err))
	}
}

// Close stops the heartbeat, waits for any heartbeat in flight, and then ends
// the session. It is safe to call more than once and concurrently.
func (r *Recorder) Close(ctx context.Context) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	id, stop, heartbeat := r.id, r.stopTick, r.heartbeat
	r.mu.Unlock()

	if stop != nil {
		stop()
		_ = heartbeat.Wait()
	}
	if id == uuid.Nil {
		return
	}

	wctx, cancel := writeContext(ctx)
	defer cancel()
	session, err := r.store.CloseSession(wctx, database.CloseSessionParams{
		ID:      id,
		EndedAt: dbtime.Time(r.clock.Now()),
	})
	if err != nil {
		r.metrics.WriteErrors.WithLabelValues(OpClose).Inc()
		r.log.Warn(ctx, "failed to close session", slog.Error(err))
		return
	}
	r.metrics.Closed.Inc()
	r.log.Debug(ctx, "session closed", slog.F("ended_at", session.EndedAt.Time))
}

var (
	ErrNotFound = xerrors.New("session not found")
	ErrNotOwner = xerrors.New("session belongs to another user")
)

// CloseByID ends a session on behalf of its owner without a Recorder. It backs
// the best-effort close sent when a tab unloads, which races the owning
// Recorder's Close; whichever arrives second leaves ended_at unchanged.
func CloseByID(ctx context.Context, store Store, clock quartz.Clock, userID, sessionID uuid.UUID) (database.Session, error) {
	session, err := store.GetSessionByID(ctx, sessionID)
	if database.IsNotFound(err) {
		return database.Session{}, ErrNotFound
	}
	if err != nil {
		return database.Session{}, xerrors.Errorf("get session: %w", err)
	}
	if session.UserID != userID {
		return database.Session{}, ErrNotOwner
	}
	if session.Closed() {
		return session, nil
	}

	session, err = store.CloseSession(ctx, database.CloseSessionParams{
		ID:      sessionID,
		EndedAt: dbtime.Time(clock.Now()),
	})
	if database.IsNotFound(err) {
		return database.Session{}, ErrNotFound
	}
	if err != nil {
		return database.Session{}, xerrors.Errorf("close session: %w", err)
	}
	return session, nil
}
