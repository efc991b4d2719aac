package devicesync

import (
	"errors"
	"strings"
	"time"
)

var ErrInvalidSince = errors.New("since must be an ISO-8601 timestamp")

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// parseTimestamp accepts RFC 3339 with or without a fraction and the
// zone-less isoformat desktop clients emit; a zone-less value is UTC.
func parseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Truncate(time.Microsecond), true
		}
	}
	return time.Time{}, false
}

// ParseSince turns the pull watermark into a time. Empty means the epoch.
func ParseSince(s string) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return time.Unix(0, 0).UTC(), nil
	}
	t, ok := parseTimestamp(s)
	if !ok {
		return time.Time{}, ErrInvalidSince
	}
	return t, nil
}

func resolveCreatedAt(raw string, now time.Time) time.Time {
	if t, ok := parseTimestamp(raw); ok {
		return t
	}
	return now
}
