package store

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire format of DATE columns.
const DateLayout = "2006-01-02"

// DateValue formats t as a DATE parameter.
func DateValue(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// ParseTime converts a scanned DATE/TIMESTAMP value into UTC time.
// Drivers disagree on the Go type they return for these columns: MySQL
// (parseTime=true) and pgx return time.Time, SQLite may return text.
func ParseTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case string:
		return parseTimeString(t)
	case []byte:
		return parseTimeString(string(t))
	case nil:
		return time.Time{}, nil
	default:
		return time.Time{}, fmt.Errorf("unsupported time value of type %T", v)
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	DateLayout,
}

func parseTimeString(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time value %q", s)
}
