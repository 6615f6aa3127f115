package workflow

import (
	"strings"
	"time"
	"unicode/utf8"
)

const (
	dateLayout         = "2006-01-02"
	maxReasonLength    = 500
	maxReferenceLength = 120
)

// parseDate accepts YYYY-MM-DD or RFC 3339 and returns the UTC calendar date.
func parseDate(field, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, validationf("%s is required", field)
	}
	if t, err := time.Parse(dateLayout, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, validationf("%s must be a date (YYYY-MM-DD)", field)
	}
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

// optionalText trims s and returns nil when empty.
func optionalText(field, s string, max int) (*string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if utf8.RuneCountInString(s) > max {
		return nil, validationf("%s must be at most %d characters", field, max)
	}
	return &s, nil
}

func ptr[T any](v T) *T { return &v }
