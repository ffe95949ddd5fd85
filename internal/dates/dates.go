// Package dates holds the calendar helpers shared by the store, the heatmap and the
// templates. Days are always UTC midnights and are persisted as YYYY-MM-DD strings.
package dates

import (
	"fmt"
	"time"
)

// DBLayout is the persisted form of a calendar day.
const DBLayout = "2006-01-02"

// DisplayLayout matches the short US form used in tooltips ("Jan 2, 2006").
const DisplayLayout = "Jan 2, 2006"

// WindowDays is the length of the heatmap window, today included.
const WindowDays = 365

// StartOfDay truncates t to midnight UTC of its UTC calendar day.
func StartOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Last52Weeks returns the inclusive window ending today: start is 364 days before
// the start of today.
func Last52Weeks(now time.Time) (start, end time.Time) {
	end = StartOfDay(now)
	start = end.AddDate(0, 0, -(WindowDays - 1))
	return start, end
}

// EachDay enumerates every day from start to end inclusive.
func EachDay(start, end time.Time) []time.Time {
	start, end = StartOfDay(start), StartOfDay(end)
	if end.Before(start) {
		return nil
	}
	days := make([]time.Time, 0, int(end.Sub(start).Hours()/24)+1)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

func FormatDB(t time.Time) string {
	return t.UTC().Format(DBLayout)
}

// ParseDB parses a YYYY-MM-DD string into a UTC midnight.
func ParseDB(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DBLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

// WeekdayIndex maps Monday to 0 and Sunday to 6.
func WeekdayIndex(t time.Time) int {
	wd := int(t.UTC().Weekday())
	if wd == 0 {
		return 6
	}
	return wd - 1
}

func FormatDisplay(t time.Time) string {
	return t.UTC().Format(DisplayLayout)
}
