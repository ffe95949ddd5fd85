package dates

import (
	"testing"
	"time"
)

func TestStartOfDay(t *testing.T) {
	loc := time.FixedZone("UTC+10", 10*60*60)
	// 2026-03-01 05:00 in UTC+10 is still 2026-02-28 in UTC.
	in := time.Date(2026, 3, 1, 5, 0, 0, 0, loc)

	got := StartOfDay(in)
	want := time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("StartOfDay = %v, want %v", got, want)
	}
	if got.Location() != time.UTC {
		t.Errorf("location = %v, want UTC", got.Location())
	}
}

func TestLast52Weeks(t *testing.T) {
	now := time.Date(2024, 12, 31, 18, 30, 0, 0, time.UTC)
	start, end := Last52Weeks(now)

	if got := FormatDB(end); got != "2024-12-31" {
		t.Errorf("end = %q, want %q", got, "2024-12-31")
	}
	// 2024 is a leap year, so 364 days back from Dec 31 is Jan 2.
	if got := FormatDB(start); got != "2024-01-02" {
		t.Errorf("start = %q, want %q", got, "2024-01-02")
	}
	if got := len(EachDay(start, end)); got != WindowDays {
		t.Errorf("days in window = %d, want %d", got, WindowDays)
	}
}

func TestEachDay(t *testing.T) {
	start := time.Date(2024, 2, 27, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)

	days := EachDay(start, end)
	want := []string{"2024-02-27", "2024-02-28", "2024-02-29", "2024-03-01", "2024-03-02"}
	if len(days) != len(want) {
		t.Fatalf("len = %d, want %d", len(days), len(want))
	}
	for i, d := range days {
		if got := FormatDB(d); got != want[i] {
			t.Errorf("days[%d] = %q, want %q", i, got, want[i])
		}
	}

	if got := EachDay(end, start); got != nil {
		t.Errorf("reversed range = %v, want nil", got)
	}
}

func TestWeekdayIndex(t *testing.T) {
	tests := []struct {
		date string
		want int
	}{
		{"2024-01-01", 0}, // Monday
		{"2024-01-03", 2},
		{"2024-01-06", 5},
		{"2024-01-07", 6}, // Sunday
	}
	for _, tt := range tests {
		d, err := ParseDB(tt.date)
		if err != nil {
			t.Fatalf("parse %s: %v", tt.date, err)
		}
		if got := WeekdayIndex(d); got != tt.want {
			t.Errorf("WeekdayIndex(%s) = %d, want %d", tt.date, got, tt.want)
		}
	}
}

func TestParseDB(t *testing.T) {
	d, err := ParseDB("2024-07-04")
	if err != nil {
		t.Fatalf("ParseDB: %v", err)
	}
	if !d.Equal(time.Date(2024, 7, 4, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("ParseDB = %v", d)
	}

	for _, bad := range []string{"", "2024-13-01", "07/04/2024", "2024-07-04T00:00:00Z"} {
		if _, err := ParseDB(bad); err == nil {
			t.Errorf("ParseDB(%q) should fail", bad)
		}
	}
}

func TestFormatDisplay(t *testing.T) {
	d := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	if got := FormatDisplay(d); got != "Jan 5, 2024" {
		t.Errorf("FormatDisplay = %q, want %q", got, "Jan 5, 2024")
	}
}
