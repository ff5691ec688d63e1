package storage

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Layouts accepted for text-encoded timestamps. The first is time.Time.String,
// which is what the sqlite driver writes for a time.Time argument.
var instantLayouts = []string{
	"2006-01-02 15:04:05.999999999 -0700 MST",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

// encodeInstant converts t to epoch milliseconds. The zero time is stored as NULL.
func encodeInstant(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UnixMilli()
}

// decodeInstant normalizes a stored timestamp to a time.Time. Numbers are
// epoch milliseconds; strings may be numeric or one of instantLayouts.
func decodeInstant(v any) (time.Time, error) {
	switch x := v.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return x, nil
	case int64:
		return time.UnixMilli(x), nil
	case float64:
		return time.UnixMilli(int64(x)), nil
	case []byte:
		return parseInstant(string(x))
	case string:
		return parseInstant(x)
	default:
		return time.Time{}, fmt.Errorf("unsupported timestamp type %T", v)
	}
}

func parseInstant(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms), nil
	}
	// Drop the monotonic clock reading that time.Time.String appends.
	if i := strings.Index(s, " m="); i >= 0 {
		s = s[:i]
	}
	for _, layout := range instantLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
