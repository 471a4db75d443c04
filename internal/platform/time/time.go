// Package time contains time related helpers
package time

import "time"

// Ptr returns a pointer to t or nil if t is zero
func Ptr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// TruncateHourUTC truncates t to the top of its hour in UTC
func TruncateHourUTC(t time.Time) time.Time {
	return t.UTC().Truncate(time.Hour)
}

// WholeDays returns the number of whole 24h days between start and end.
// Partial trailing days are discarded, matching a half-open [start, end) window
func WholeDays(start, end time.Time) int {
	if end.Before(start) {
		return 0
	}
	return int(end.Sub(start) / (24 * time.Hour))
}

// EpochUTC returns t as Unix epoch seconds, interpreting t in UTC
func EpochUTC(t time.Time) int64 {
	return t.UTC().Unix()
}
