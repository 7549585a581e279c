package services

import (
	"fmt"
	"time"
)

type Dimension string

const (
	DimensionDay   Dimension = "day"
	DimensionWeek  Dimension = "week"
	DimensionMonth Dimension = "month"
	DimensionYear  Dimension = "year"
)

// ParseDimension defaults to day when s is empty.
func ParseDimension(s string) (Dimension, error) {
	switch Dimension(s) {
	case "":
		return DimensionDay, nil
	case DimensionDay, DimensionWeek, DimensionMonth, DimensionYear:
		return Dimension(s), nil
	}
	return "", fieldError("dimension", "Dimension must be day, week, month, or year")
}

// FormatBucket renders t as a bucket key for dim. Keys are zero-padded and
// big-endian, so lexical order is chronological order. Week keys follow
// ISO-8601 numbering: 2024-12-31 is 2025-W01.
func FormatBucket(t time.Time, dim Dimension) string {
	switch dim {
	case DimensionWeek:
		year, week := t.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	case DimensionMonth:
		return t.Format("2006-01")
	case DimensionYear:
		return t.Format("2006")
	default:
		return t.Format("2006-01-02")
	}
}

// DefaultLookback is the start of the window used when a caller gives no dates.
func DefaultLookback(dim Dimension, end time.Time) time.Time {
	switch dim {
	case DimensionDay:
		return end.AddDate(0, 0, -7)
	case DimensionWeek:
		return end.AddDate(0, 0, -28)
	case DimensionMonth:
		return end.AddDate(0, -6, 0)
	case DimensionYear:
		return end.AddDate(-1, 0, 0)
	}
	return end.AddDate(0, 0, -30)
}
