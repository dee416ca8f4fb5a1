package util

import (
	"fmt"
	"time"
)

const (
	DateFormat      = "2006-01-02"
	DateTimeFormat  = "2006-01-02 15:04:05"
	LocalISO8601    = "2006-01-02T15:04:05"
	LocalISO8601Frc = "2006-01-02T15:04:05.999999999"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	LocalISO8601Frc,
	LocalISO8601,
	DateTimeFormat,
}

// ParseTimestamp accepts RFC3339, ISO8601 without a zone and "2006-01-02 15:04:05".
// Zoneless values are read as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// Today is the queue date of now, the date half of a department topic key.
func Today(now time.Time) string {
	return now.Format(DateFormat)
}
