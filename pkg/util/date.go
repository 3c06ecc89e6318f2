package util

import (
	"fmt"
	"strings"
	"time"
)

// FormatDateTpl formats t in its own location using a template with placeholders.
//
// Supported placeholders:
// - YYYY: 4-digit year
// - YY: 2-digit year
// - MM: 2-digit month (01-12)
// - DD: 2-digit day (01-31)
// - hh: 2-digit hour (00-23)
// - mm: 2-digit minute (00-59)
// - ss: 2-digit second (00-59)
//
// Example:
//
//	FormatDateTpl(t, "YYYYMMDD")   // "20231110"
//	FormatDateTpl(t, "YYYY-MM-DD") // "2023-11-10"
func FormatDateTpl(t time.Time, tpl string) string {
	if t.IsZero() {
		return ""
	}
	r := strings.NewReplacer(
		"YYYY", "2006",
		"YY", "06",
		"MM", "01",
		"DD", "02",
		"hh", "15",
		"mm", "04",
		"ss", "05",
	)
	return t.Format(r.Replace(tpl))
}

// DayKey returns the calendar day of t in loc as YYYYMMDD.
func DayKey(t time.Time, loc *time.Location) string {
	return FormatDateTpl(t.In(loc), "YYYYMMDD")
}

// DayDate returns the calendar day of t in loc as YYYY-MM-DD.
func DayDate(t time.Time, loc *time.Location) string {
	return FormatDateTpl(t.In(loc), "YYYY-MM-DD")
}

// UntilEndOfDay returns the time left until the next midnight in loc, never less than a second.
func UntilEndOfDay(t time.Time, loc *time.Location) time.Duration {
	local := t.In(loc)
	y, m, d := local.Date()
	next := time.Date(y, m, d+1, 0, 0, 0, 0, loc)
	left := next.Sub(local)
	if left < time.Second {
		return time.Second
	}
	return left
}

// MonthStart returns the first day of t's month in loc as YYYY-MM-DD.
func MonthStart(t time.Time, loc *time.Location) string {
	y, m, _ := t.In(loc).Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, loc).Format("2006-01-02")
}

// ParseClock parses "HH:MM" into minutes since midnight.
func ParseClock(s string) (int, error) {
	s = strings.TrimSpace(s)
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	return h*60 + m, nil
}
