package activity

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/xerrors"

	"cdr.dev/slog/v3"
	"github.com/coder/quartz"

	"github.com/coder/opsdash/database"
)

// DefaultMaxRows caps how many sessions a report reads, newest first.
const DefaultMaxRows = 500

// Store is a subset of database.Store.
type Store interface {
	GetSessions(ctx context.Context, arg database.GetSessionsParams) ([]database.Session, error)
	GetUsersByTenant(ctx context.Context, tenantID uuid.UUID) ([]database.User, error)
}

// Reporter reads a bounded window of sessions and aggregates them.
type Reporter struct {
	store   Store
	log     slog.Logger
	clock   quartz.Clock
	maxRows int32
}

type ReporterOption func(*Reporter)

func WithLogger(log slog.Logger) ReporterOption {
	return func(r *Reporter) {
		r.log = log
	}
}

func WithClock(clock quartz.Clock) ReporterOption {
	return func(r *Reporter) {
		r.clock = clock
	}
}

// WithMaxRows sets the row cap. Values below one are ignored.
func WithMaxRows(n int32) ReporterOption {
	return func(r *Reporter) {
		if n > 0 {
			r.maxRows = n
		}
	}
}

func NewReporter(store Store, opts ...ReporterOption) *Reporter {
	r := &Reporter{
		store:   store,
		log:     slog.Logger{},
		clock:   quartz.NewReal(),
		maxRows: DefaultMaxRows,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Report builds the report for filter as of now. Reports are always scoped
// to a tenant.
func (r *Reporter) Report(ctx context.Context, filter Filter) (Report, error) {
	if filter.TenantID == uuid.Nil {
		return Report{}, xerrors.New("tenant id is required")
	}
	if filter.Location == nil {
		filter.Location = time.Local
	}
	if filter.Range == "" {
		filter.Range = RangeToday
	}
	now := r.clock.Now().In(filter.Location)
	start, _ := filter.Range.Start(now)

	sessions, err := r.store.GetSessions(ctx, database.GetSessionsParams{
		StartedAfter: start,
		UserID:       filter.UserID,
		TenantID:     filter.TenantID,
		LimitOpt:     r.maxRows,
	})
	if err != nil {
		return Report{}, xerrors.Errorf("get sessions: %w", err)
	}
	users, err := r.store.GetUsersByTenant(ctx, filter.TenantID)
	if err != nil {
		return Report{}, xerrors.Errorf("get users: %w", err)
	}

	report := Aggregate(sessions, users, filter, now)
	report.Truncated = len(sessions) >= int(r.maxRows)
	if report.Dropped > 0 {
		r.log.Warn(ctx, "dropped malformed session rows", slog.F("count", report.Dropped))
	}
	r.log.Debug(ctx, "built activity report",
		slog.F("range", filter.Range),
		slog.F("sessions", report.TotalSessions),
		slog.F("truncated", report.Truncated),
	)
	return report, nil
}
