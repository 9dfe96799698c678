// Package activity turns the session ledger into a report of who was active,
// when, and for how long.
package activity

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/coder/opsdash/database"
)

// LiveThreshold is how recently an open session must have been seen to count
// as online. A crashed tab never closes its row; this is what retires it.
const LiveThreshold = 120 * time.Second

// UnknownUser labels sessions whose user is no longer in the directory.
const UnknownUser = "Unknown"

// IsLive reports whether s is open and was seen less than LiveThreshold ago.
func IsLive(s database.Session, now time.Time) bool {
	return !s.EndedAt.Valid && now.Sub(s.LastSeenAt) < LiveThreshold
}

// Duration is how long s lasted: until ended_at if closed, otherwise until
// last_seen_at. It is never negative.
func Duration(s database.Session) time.Duration {
	end := s.StartedAt
	switch {
	case s.EndedAt.Valid:
		end = s.EndedAt.Time
	case !s.LastSeenAt.IsZero():
		end = s.LastSeenAt
	}
	d := end.Sub(s.StartedAt)
	if d < 0 {
		return 0
	}
	return d
}

// Filter selects the sessions a report covers.
type Filter struct {
	Range Range
	// TenantID scopes the report to one tenant's users. Sessions of users
	// outside the directory passed to Aggregate are dropped when set.
	TenantID uuid.UUID
	// UserID restricts the report to one user. uuid.Nil means everyone.
	UserID uuid.UUID
	// Location is the viewer's time zone. Days, range bounds and the
	// Today/Yesterday labels follow its calendar. Nil means time.Local.
	Location *time.Location
}

// Row is one session as shown in a report.
type Row struct {
	SessionID  uuid.UUID     `json:"session_id"`
	UserID     uuid.UUID     `json:"user_id"`
	UserName   string        `json:"user_name"`
	Page       string        `json:"page"`
	StartedAt  time.Time     `json:"started_at"`
	LastSeenAt time.Time     `json:"last_seen_at"`
	EndedAt    *time.Time    `json:"ended_at,omitempty"`
	Duration   time.Duration `json:"duration"`
	// Live rows are shown as online rather than by duration.
	Live bool `json:"live"`
}

// Day groups the sessions that started on one calendar day.
type Day struct {
	Date     time.Time     `json:"date"`
	Label    string        `json:"label"`
	Sessions []Row         `json:"sessions"`
	Total    time.Duration `json:"total"`
}

// UserSummary totals one user's sessions.
type UserSummary struct {
	UserID   uuid.UUID     `json:"user_id"`
	Name     string        `json:"name"`
	Role     string        `json:"role"`
	Sessions int           `json:"sessions"`
	Total    time.Duration `json:"total"`
	Live     bool          `json:"live"`
}

type Report struct {
	Range       Range      `json:"range"`
	Start       *time.Time `json:"start,omitempty"`
	Location    string     `json:"location"`
	GeneratedAt time.Time  `json:"generated_at"`
	// Days are most recent first.
	Days []Day `json:"days"`
	// Users are ordered by total duration, longest first.
	Users         []UserSummary `json:"users"`
	TotalSessions int           `json:"total_sessions"`
	Total         time.Duration `json:"total"`
	// Empty is set when no session matched; callers render an empty state.
	Empty bool `json:"empty"`
	// Truncated is set when the row cap was reached and older sessions
	// in the range were not read.
	Truncated bool `json:"truncated"`
	// Dropped counts rows rejected as malformed.
	Dropped int `json:"dropped"`
}

// DayLabel names date relative to now: "Today", "Yesterday", or the date.
// Both are interpreted in now's location.
func DayLabel(date, now time.Time) string {
	today := midnight(now)
	day := midnight(date.In(now.Location()))
	switch {
	case day.Equal(today):
		return "Today"
	case day.Equal(today.AddDate(0, 0, -1)):
		return "Yesterday"
	default:
		return day.Format("Mon, Jan 2, 2006")
	}
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Aggregate builds a report from sessions and the identity directory. It is
// pure: sessions may arrive in any order and are filtered again even if the
// store already applied the filter.
func Aggregate(sessions []database.Session, users []database.User, filter Filter, now time.Time) Report {
	loc := filter.Location
	if loc == nil {
		loc = time.Local
	}
	now = now.In(loc)
	rangeName := filter.Range
	if rangeName == "" {
		rangeName = RangeToday
	}
	start, bounded := rangeName.Start(now)

	directory := make(map[uuid.UUID]database.User, len(users))
	for _, u := range users {
		directory[u.ID] = u
	}

	report := Report{
		Range:       rangeName,
		Location:    loc.String(),
		GeneratedAt: now,
		Days:        []Day{},
		Users:       []UserSummary{},
	}
	if bounded {
		report.Start = &start
	}

	days := map[string]*Day{}
	summaries := map[uuid.UUID]*UserSummary{}
	for _, s := range sessions {
		if s.StartedAt.IsZero() || s.UserID == uuid.Nil {
			report.Dropped++
			continue
		}
		if s.LastSeenAt.IsZero() {
			s.LastSeenAt = s.StartedAt
		}
		if bounded && s.StartedAt.Before(start) {
			continue
		}
		if filter.UserID != uuid.Nil && s.UserID != filter.UserID {
			continue
		}

		user, known := directory[s.UserID]
		if filter.TenantID != uuid.Nil && (!known || user.TenantID != filter.TenantID) {
			continue
		}
		name := strings.TrimSpace(user.FullName)
		if !known || name == "" {
			name = UnknownUser
		}
		row := Row{
			SessionID:  s.ID,
			UserID:     s.UserID,
			UserName:   name,
			Page:       s.Page,
			StartedAt:  s.StartedAt.In(loc),
			LastSeenAt: s.LastSeenAt.In(loc),
			Duration:   Duration(s),
			Live:       IsLive(s, now),
		}
		if s.EndedAt.Valid {
			ended := s.EndedAt.Time.In(loc)
			row.EndedAt = &ended
		}

		date := midnight(row.StartedAt)
		key := date.Format(time.DateOnly)
		day, ok := days[key]
		if !ok {
			day = &Day{Date: date, Label: DayLabel(date, now)}
			days[key] = day
		}
		day.Sessions = append(day.Sessions, row)
		day.Total += row.Duration

		summary, ok := summaries[s.UserID]
		if !ok {
			summary = &UserSummary{UserID: s.UserID, Name: name, Role: user.Role}
			summaries[s.UserID] = summary
		}
		summary.Sessions++
		summary.Total += row.Duration
		summary.Live = summary.Live || row.Live

		report.TotalSessions++
		report.Total += row.Duration
	}

	for _, day := range days {
		sort.SliceStable(day.Sessions, func(i, j int) bool {
			a, b := day.Sessions[i], day.Sessions[j]
			if !a.StartedAt.Equal(b.StartedAt) {
				return a.StartedAt.Before(b.StartedAt)
			}
			return a.SessionID.String() < b.SessionID.String()
		})
		report.Days = append(report.Days, *day)
	}
	sort.Slice(report.Days, func(i, j int) bool {
		return report.Days[i].Date.After(report.Days[j].Date)
	})

	for _, summary := range summaries {
		report.Users = append(report.Users, *summary)
	}
	sort.Slice(report.Users, func(i, j int) bool {
		a, b := report.Users[i], report.Users[j]
		if a.Total != b.Total {
			return a.Total > b.Total
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.UserID.String() < b.UserID.String()
	})

	report.Empty = report.TotalSessions == 0
	return report
}
