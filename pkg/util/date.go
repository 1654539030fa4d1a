package util

import (
	"strconv"
	"time"
)

const dayLayout = "2006-01-02"

// ParseTime tries RFC3339, RFC3339Nano, and unix seconds. Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return time.Unix(ts, 0), true
	}
	return time.Time{}, false
}

// ParseDay parses a calendar date ("2006-01-02") or any ParseTime format
// and truncates it to UTC midnight.
func ParseDay(s string) (time.Time, bool) {
	if t, err := time.Parse(dayLayout, s); err == nil {
		return t.UTC(), true
	}
	if t, ok := ParseTime(s); ok {
		return TruncateDay(t), true
	}
	return time.Time{}, false
}

// TruncateDay returns midnight UTC of the day containing t.
func TruncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DayFromUnixMillis buckets a millisecond epoch timestamp to its UTC day.
func DayFromUnixMillis(ms int64) time.Time {
	return TruncateDay(time.UnixMilli(ms))
}
