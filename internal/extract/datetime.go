package extract

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Reviews are reported in Moscow time as a fixed offset from UTC.
const (
	reviewOffset      = 3 * time.Hour
	ReviewTimezone    = "+03:00"
	reviewStampLayout = "2006-01-02T15:04:05"
)

// NormalizeTimestamp converts an ISO-8601 UTC stamp such as
// "2024-03-01T10:00:00Z" into date, time-of-day and the fixed timezone.
// Fractional seconds are tolerated and dropped.
func NormalizeTimestamp(raw string) (date, clock, tz string, err error) {
	s := strings.TrimSuffix(strings.TrimSpace(raw), "Z")
	if i := strings.IndexByte(s, '.'); i > 0 {
		s = s[:i]
	}
	t, err := time.Parse(reviewStampLayout, s)
	if err != nil {
		return "", "", "", fmt.Errorf("timestamp %q: %w", raw, err)
	}
	t = t.Add(reviewOffset)
	return t.Format(time.DateOnly), t.Format(time.TimeOnly), ReviewTimezone, nil
}

// ParseRating reads a star rating from a class list such as
// "stars-line star5". Values outside 1..5 are rejected.
func ParseRating(class string) (int, error) {
	if !strings.Contains(class, "star") {
		return 0, fmt.Errorf("no rating token in %q", class)
	}
	parts := strings.Split(class, "star")
	last := strings.TrimSpace(parts[len(parts)-1])
	n, err := strconv.Atoi(last)
	if err != nil {
		return 0, fmt.Errorf("rating %q: %w", last, err)
	}
	if n < 1 || n > 5 {
		return 0, fmt.Errorf("rating %d out of range", n)
	}
	return n, nil
}
