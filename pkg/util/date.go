package util

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrNaiveTimestamp is returned for timestamps that carry no zone offset.
	ErrNaiveTimestamp = errors.New("timestamp is not timezone-qualified")
	// ErrInvalidTimestamp is returned for strings that are not timestamps at all.
	ErrInvalidTimestamp = errors.New("invalid timestamp")
)

// naiveLayouts are accepted only to produce a precise error.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseAwareTime parses an RFC3339 timestamp or unix seconds. Strings that
// look like a wall-clock time without an offset are rejected with
// ErrNaiveTimestamp.
func ParseAwareTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty string", ErrInvalidTimestamp)
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return time.Unix(ts, 0).UTC(), nil
	}
	for _, layout := range naiveLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return time.Time{}, fmt.Errorf("%w: %q has no zone offset, use RFC3339 (e.g. 2024-01-02T15:04:05Z)", ErrNaiveTimestamp, s)
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
}

// ParseTime is the lenient variant used for query parameters.
func ParseTime(s string) (time.Time, bool) {
	t, err := ParseAwareTime(s)
	return t, err == nil
}

// ParseTimeDefault parses time or returns default if empty/invalid.
func ParseTimeDefault(s string, def time.Time) time.Time {
	if t, ok := ParseTime(s); ok {
		return t
	}
	return def
}
