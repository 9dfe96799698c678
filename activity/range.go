package activity

import (
	"time"

	"golang.org/x/xerrors"
)

// Range is a reporting window that ends now.
type Range string

const (
	RangeToday     Range = "today"
	RangeThisWeek  Range = "this-week"
	RangeThisMonth Range = "this-month"
	RangeAllTime   Range = "all-time"
)

// Ranges lists every valid Range in display order.
var Ranges = []Range{RangeToday, RangeThisWeek, RangeThisMonth, RangeAllTime}

// ParseRange validates s. The empty string means RangeToday.
func ParseRange(s string) (Range, error) {
	if s == "" {
		return RangeToday, nil
	}
	for _, r := range Ranges {
		if string(r) == s {
			return r, nil
		}
	}
	return "", xerrors.Errorf("unknown range %q, expected one of %v", s, Ranges)
}

// Start resolves the inclusive lower bound of the range at midnight in now's
// location. Weeks start on Monday. RangeAllTime has no bound and returns
// false.
func (r Range) Start(now time.Time) (time.Time, bool) {
	y, m, d := now.Date()
	loc := now.Location()
	switch r {
	case RangeToday:
		return time.Date(y, m, d, 0, 0, 0, 0, loc), true
	case RangeThisWeek:
		sinceMonday := (int(now.Weekday()) + 6) % 7
		return time.Date(y, m, d-sinceMonday, 0, 0, 0, 0, loc), true
	case RangeThisMonth:
		return time.Date(y, m, 1, 0, 0, 0, 0, loc), true
	default:
		return time.Time{}, false
	}
}
