package id

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FormatPeriod returns a calendar period like "2025-01".
func FormatPeriod(year, month int) string {
	return fmt.Sprintf("%04d-%02d", year, month)
}

// PeriodOf returns the period containing t.
func PeriodOf(t time.Time) string {
	return FormatPeriod(t.Year(), int(t.Month()))
}

// ParsePeriod parses "2025-01" into year and month.
func ParsePeriod(period string) (year, month int, err error) {
	parts := strings.SplitN(period, "-", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid period format: %q", period)
	}

	year, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid year in period %q: %w", period, err)
	}

	month, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid month in period %q: %w", period, err)
	}
	if month < 1 || month > 12 {
		return 0, 0, fmt.Errorf("month out of range in period %q", period)
	}

	return year, month, nil
}

// AlertKey derives the dedup key for an alert, e.g. "food:habit:2025-01".
// Two alerts with the same key are the same alert.
func AlertKey(category, template, period string) string {
	return strings.ToLower(category) + ":" + strings.ToLower(template) + ":" + period
}

// SplitAlertKey is the inverse of AlertKey.
func SplitAlertKey(key string) (category, template, period string, err error) {
	parts := strings.SplitN(key, ":", 3)
	if len(parts) != 3 {
		return "", "", "", fmt.Errorf("invalid alert key: %q", key)
	}
	if _, _, err := ParsePeriod(parts[2]); err != nil {
		return "", "", "", fmt.Errorf("invalid alert key %q: %w", key, err)
	}
	return parts[0], parts[1], parts[2], nil
}

// MonthStart returns midnight on the first day of t's month, in t's location.
func MonthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// SameMonth reports whether a falls in b's calendar month, read in b's
// location.
func SameMonth(a, b time.Time) bool {
	a = a.In(b.Location())
	return a.Year() == b.Year() && a.Month() == b.Month()
}
