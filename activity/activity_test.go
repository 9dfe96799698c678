package activity_test

import (
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/coder/opsdash/activity"
	"github.com/coder/opsdash/database"
	"github.com/coder/opsdash/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, testutil.GoleakOptions...)
}

// est is five hours behind UTC, so local midnight is not a UTC boundary.
var est = time.FixedZone("EST", -5*60*60)

func at(hour, minute int) time.Time {
	return time.Date(2024, 3, 6, hour, minute, 0, 0, est)
}

func ended(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: true}
}

func TestRangeStart(t *testing.T) {
	t.Parallel()

	wednesday := time.Date(2024, 3, 6, 15, 30, 0, 0, est)
	for _, tc := range []struct {
		name  string
		rng   activity.Range
		now   time.Time
		want  time.Time
		bound bool
	}{
		{"Today", activity.RangeToday, wednesday, time.Date(2024, 3, 6, 0, 0, 0, 0, est), true},
		{"WeekFromWednesday", activity.RangeThisWeek, wednesday, time.Date(2024, 3, 4, 0, 0, 0, 0, est), true},
		{"WeekFromMonday", activity.RangeThisWeek, time.Date(2024, 3, 4, 0, 0, 1, 0, est), time.Date(2024, 3, 4, 0, 0, 0, 0, est), true},
		{"WeekFromSunday", activity.RangeThisWeek, time.Date(2024, 3, 10, 23, 0, 0, 0, est), time.Date(2024, 3, 4, 0, 0, 0, 0, est), true},
		{"WeekAcrossMonth", activity.RangeThisWeek, time.Date(2024, 3, 1, 12, 0, 0, 0, est), time.Date(2024, 2, 26, 0, 0, 0, 0, est), true},
		{"Month", activity.RangeThisMonth, wednesday, time.Date(2024, 3, 1, 0, 0, 0, 0, est), true},
		{"AllTime", activity.RangeAllTime, wednesday, time.Time{}, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, bound := tc.rng.Start(tc.now)
			require.Equal(t, tc.bound, bound)
			require.True(t, tc.want.Equal(got), "want %s, got %s", tc.want, got)
		})
	}
}

func TestParseRange(t *testing.T) {
	t.Parallel()

	for _, r := range activity.Ranges {
		got, err := activity.ParseRange(string(r))
		require.NoError(t, err)
		require.Equal(t, r, got)
	}
	got, err := activity.ParseRange("")
	require.NoError(t, err)
	require.Equal(t, activity.RangeToday, got)
	_, err = activity.ParseRange("last-year")
	require.Error(t, err)
}

func TestIsLive(t *testing.T) {
	t.Parallel()

	now := at(12, 0)
	open := database.Session{StartedAt: at(11, 0)}

	open.LastSeenAt = now.Add(-activity.LiveThreshold + time.Second)
	require.True(t, activity.IsLive(open, now))

	open.LastSeenAt = now.Add(-activity.LiveThreshold)
	require.False(t, activity.IsLive(open, now), "exactly at the threshold is not live")

	open.LastSeenAt = now.Add(-activity.LiveThreshold - time.Second)
	require.False(t, activity.IsLive(open, now))

	closed := database.Session{StartedAt: at(11, 0), LastSeenAt: now, EndedAt: ended(now)}
	require.False(t, activity.IsLive(closed, now))
}

func TestDuration(t *testing.T) {
	t.Parallel()

	start := at(9, 0)
	require.Equal(t, 45*time.Minute, activity.Duration(database.Session{
		StartedAt: start, LastSeenAt: at(9, 30), EndedAt: ended(at(9, 45)),
	}))
	require.Equal(t, 30*time.Minute, activity.Duration(database.Session{
		StartedAt: start, LastSeenAt: at(9, 30),
	}))
	require.Zero(t, activity.Duration(database.Session{StartedAt: start}))
	require.Zero(t, activity.Duration(database.Session{
		StartedAt: start, LastSeenAt: at(8, 0), EndedAt: ended(at(8, 30)),
	}), "skewed clocks never produce a negative duration")
}

func TestAggregate(t *testing.T) {
	t.Parallel()

	ada := database.User{ID: uuid.New(), FullName: "Ada Lovelace", Role: "admin"}
	grace := database.User{ID: uuid.New(), FullName: "Grace Hopper", Role: "member"}
	users := []database.User{ada, grace}

	t.Run("LiveAndCompleted", func(t *testing.T) {
		t.Parallel()
		sessions := []database.Session{
			{ID: uuid.New(), UserID: ada.ID, StartedAt: at(9, 0), LastSeenAt: at(9, 44), EndedAt: ended(at(9, 45)), Page: "/tasks"},
			{ID: uuid.New(), UserID: grace.ID, StartedAt: at(9, 10), LastSeenAt: at(9, 10).Add(30 * time.Second), Page: "/finance"},
		}
		filter := activity.Filter{Range: activity.RangeToday, Location: est}

		report := activity.Aggregate(sessions, users, filter, at(9, 11))
		require.False(t, report.Empty)
		require.Len(t, report.Days, 1)
		rows := report.Days[0].Sessions
		require.Len(t, rows, 2)
		require.Equal(t, ada.ID, rows[0].UserID)
		require.Equal(t, 45*time.Minute, rows[0].Duration)
		require.False(t, rows[0].Live)
		require.NotNil(t, rows[0].EndedAt)
		require.Equal(t, grace.ID, rows[1].UserID)
		require.True(t, rows[1].Live)
		require.Nil(t, rows[1].EndedAt)

		// Past the threshold the open row is a short, finished-looking session.
		report = activity.Aggregate(sessions, users, filter, at(9, 13))
		rows = report.Days[0].Sessions
		require.False(t, rows[1].Live)
		require.Equal(t, 30*time.Second, rows[1].Duration)
	})

	t.Run("LocalCalendarDays", func(t *testing.T) {
		t.Parallel()
		lateNight := time.Date(2024, 3, 5, 23, 59, 0, 0, est)
		earlyMorning := time.Date(2024, 3, 6, 0, 1, 0, 0, est)
		// Both instants fall on March 6th in UTC.
		require.Equal(t, lateNight.UTC().Day(), earlyMorning.UTC().Day())

		sessions := []database.Session{
			{ID: uuid.New(), UserID: ada.ID, StartedAt: earlyMorning.UTC(), LastSeenAt: earlyMorning.UTC(), EndedAt: ended(earlyMorning.Add(time.Minute).UTC())},
			{ID: uuid.New(), UserID: ada.ID, StartedAt: lateNight.UTC(), LastSeenAt: lateNight.UTC(), EndedAt: ended(lateNight.Add(time.Minute).UTC())},
		}
		report := activity.Aggregate(sessions, users, activity.Filter{Range: activity.RangeAllTime, Location: est}, at(12, 0))
		require.Len(t, report.Days, 2)

		require.Equal(t, "Today", report.Days[0].Label)
		require.Equal(t, 6, report.Days[0].Date.Day())
		require.Len(t, report.Days[0].Sessions, 1)
		require.True(t, report.Days[0].Sessions[0].StartedAt.Equal(earlyMorning))

		require.Equal(t, "Yesterday", report.Days[1].Label)
		require.Equal(t, 5, report.Days[1].Date.Day())
		require.True(t, report.Days[1].Sessions[0].StartedAt.Equal(lateNight))
	})

	t.Run("OrderingAndTotals", func(t *testing.T) {
		t.Parallel()
		monday := time.Date(2024, 3, 4, 0, 0, 0, 0, est)
		sessions := []database.Session{
			{ID: uuid.New(), UserID: ada.ID, StartedAt: at(14, 0), LastSeenAt: at(14, 0), EndedAt: ended(at(14, 10))},
			{ID: uuid.New(), UserID: ada.ID, StartedAt: at(8, 0), LastSeenAt: at(8, 0), EndedAt: ended(at(8, 5))},
			{ID: uuid.New(), UserID: grace.ID, StartedAt: monday.Add(10 * time.Hour), LastSeenAt: monday.Add(10 * time.Hour), EndedAt: ended(monday.Add(12 * time.Hour))},
		}
		report := activity.Aggregate(sessions, users, activity.Filter{Range: activity.RangeThisWeek, Location: est}, at(15, 0))

		require.Len(t, report.Days, 2)
		require.Equal(t, "Today", report.Days[0].Label)
		require.Equal(t, "Mon, Mar 4, 2024", report.Days[1].Label)
		require.True(t, report.Days[0].Sessions[0].StartedAt.Equal(at(8, 0)), "sessions within a day ascend")
		require.Equal(t, 15*time.Minute, report.Days[0].Total)

		require.Len(t, report.Users, 2)
		require.Equal(t, grace.ID, report.Users[0].UserID)
		require.Equal(t, 2*time.Hour, report.Users[0].Total)
		require.Equal(t, 1, report.Users[0].Sessions)
		require.Equal(t, ada.ID, report.Users[1].UserID)
		require.Equal(t, 2, report.Users[1].Sessions)
		require.Equal(t, 15*time.Minute, report.Users[1].Total)

		require.Equal(t, 3, report.TotalSessions)
		require.Equal(t, 2*time.Hour+15*time.Minute, report.Total)
		require.NotNil(t, report.Start)
		require.True(t, report.Start.Equal(monday))
	})

	t.Run("Filters", func(t *testing.T) {
		t.Parallel()
		sessions := []database.Session{
			{ID: uuid.New(), UserID: ada.ID, StartedAt: at(9, 0), LastSeenAt: at(9, 0)},
			{ID: uuid.New(), UserID: grace.ID, StartedAt: at(10, 0), LastSeenAt: at(10, 0)},
			{ID: uuid.New(), UserID: ada.ID, StartedAt: at(9, 0).AddDate(0, 0, -1), LastSeenAt: at(9, 0).AddDate(0, 0, -1)},
		}
		report := activity.Aggregate(sessions, users, activity.Filter{Range: activity.RangeToday, UserID: ada.ID, Location: est}, at(12, 0))
		require.Equal(t, 1, report.TotalSessions)
		require.Equal(t, ada.ID, report.Days[0].Sessions[0].UserID)

		report = activity.Aggregate(sessions, users, activity.Filter{Range: activity.RangeAllTime, Location: est}, at(12, 0))
		require.Equal(t, 3, report.TotalSessions)
		require.Nil(t, report.Start)
	})

	t.Run("UnknownUser", func(t *testing.T) {
		t.Parallel()
		removed := uuid.New()
		sessions := []database.Session{
			{ID: uuid.New(), UserID: removed, StartedAt: at(9, 0), LastSeenAt: at(9, 30), EndedAt: ended(at(10, 0))},
		}
		report := activity.Aggregate(sessions, users, activity.Filter{Range: activity.RangeToday, Location: est}, at(12, 0))
		require.Len(t, report.Users, 1)
		require.Equal(t, activity.UnknownUser, report.Users[0].Name)
		require.Equal(t, removed, report.Users[0].UserID)
		require.Equal(t, activity.UnknownUser, report.Days[0].Sessions[0].UserName)
	})

	t.Run("TenantScope", func(t *testing.T) {
		t.Parallel()
		tenantID := uuid.New()
		member := database.User{ID: uuid.New(), TenantID: tenantID, FullName: "Ada Lovelace"}
		outsider := database.User{ID: uuid.New(), TenantID: uuid.New(), FullName: "Grace Hopper"}
		sessions := []database.Session{
			{ID: uuid.New(), UserID: member.ID, StartedAt: at(9, 0), LastSeenAt: at(9, 30), EndedAt: ended(at(9, 30)), Page: "/tasks"},
			{ID: uuid.New(), UserID: outsider.ID, StartedAt: at(9, 0), LastSeenAt: at(9, 30), EndedAt: ended(at(9, 30)), Page: "/finance/secret"},
			{ID: uuid.New(), UserID: uuid.New(), StartedAt: at(9, 0), LastSeenAt: at(9, 30), EndedAt: ended(at(9, 30))},
		}
		directory := []database.User{member, outsider}
		report := activity.Aggregate(sessions, directory, activity.Filter{TenantID: tenantID, Range: activity.RangeToday, Location: est}, at(12, 0))
		require.Equal(t, 1, report.TotalSessions)
		require.Len(t, report.Users, 1)
		require.Equal(t, member.ID, report.Users[0].UserID)
		require.Equal(t, "/tasks", report.Days[0].Sessions[0].Page)
	})

	t.Run("Empty", func(t *testing.T) {
		t.Parallel()
		for _, sessions := range [][]database.Session{nil, {
			{ID: uuid.New(), UserID: ada.ID, StartedAt: at(9, 0).AddDate(0, -2, 0), LastSeenAt: at(9, 0).AddDate(0, -2, 0)},
		}} {
			report := activity.Aggregate(sessions, users, activity.Filter{Range: activity.RangeThisMonth, Location: est}, at(12, 0))
			require.True(t, report.Empty)
			require.Empty(t, report.Days)
			require.NotNil(t, report.Days)
			require.Empty(t, report.Users)
			require.Zero(t, report.Total)
		}
	})

	t.Run("MalformedRows", func(t *testing.T) {
		t.Parallel()
		sessions := []database.Session{
			{ID: uuid.New(), UserID: ada.ID},
			{ID: uuid.New(), UserID: ada.ID, StartedAt: at(9, 0)},
		}
		report := activity.Aggregate(sessions, users, activity.Filter{Range: activity.RangeToday, Location: est}, at(12, 0))
		require.Equal(t, 1, report.Dropped)
		require.Equal(t, 1, report.TotalSessions)
		row := report.Days[0].Sessions[0]
		require.True(t, row.LastSeenAt.Equal(at(9, 0)), "missing last_seen_at falls back to started_at")
		require.Zero(t, row.Duration)
	})
}
