// Package heatmap turns a user's habits and entries into the 52-week activity grid.
//
// Build is pure: it reads no clock and no storage, so the same inputs always yield
// the same Heatmap.
package heatmap

import (
	"fmt"
	"math"
	"time"

	"github.com/dukerupert/habitual/internal/dates"
	"github.com/dukerupert/habitual/internal/model"
)

const (
	Weeks      = 53
	DaysInWeek = 7
	MaxLevel   = 4
)

// Cell is one day of the window.
type Cell struct {
	Date          string `json:"date"`
	Value         int    `json:"value"`
	Intensity     int    `json:"intensity"`
	WeekIndex     int    `json:"week_index"`
	DayOfWeek     int    `json:"day_of_week"`
	FormattedDate string `json:"formatted_date"`
	Tooltip       string `json:"tooltip"`
	// ToggleValue is what a click sends in selected-habit mode.
	ToggleValue int `json:"toggle_value"`
}

type MonthLabel struct {
	Week  int    `json:"week"`
	Label string `json:"label"`
}

type Level struct {
	Level int    `json:"level"`
	Label string `json:"label"`
}

// Legend lists the intensity levels from least to most activity.
var Legend = []Level{
	{0, "No activity"},
	{1, "Low activity"},
	{2, "Moderate activity"},
	{3, "High activity"},
	{4, "Very high activity"},
}

// DayLabels are the row labels shown beside the grid, keyed by day-of-week index.
var DayLabels = map[int]string{0: "Mon", 2: "Wed", 4: "Fri"}

type Heatmap struct {
	Title           string                   `json:"title"`
	SelectedHabitID string                   `json:"selected_habit_id,omitempty"`
	Start           string                   `json:"start"`
	End             string                   `json:"end"`
	Cells           []Cell                   `json:"cells"`
	Grid            [Weeks][DaysInWeek]*Cell `json:"-"`
	Months          []MonthLabel             `json:"months"`
}

// Clickable reports whether cells toggle an entry when clicked.
func (h *Heatmap) Clickable() bool {
	return h.SelectedHabitID != ""
}

// MonthRow spreads Months over one slot per week column, empty where no month starts.
func (h *Heatmap) MonthRow() []string {
	row := make([]string, Weeks)
	for _, m := range h.Months {
		if m.Week >= 0 && m.Week < Weeks {
			row[m.Week] = m.Label
		}
	}
	return row
}

// Build computes the heatmap for the 365 days ending on now's UTC day. When
// selectedHabitID is empty every habit contributes; otherwise only that habit does.
func Build(habits []model.Habit, entries []model.Entry, selectedHabitID string, now time.Time) *Heatmap {
	start, end := dates.Last52Weeks(now)
	days := dates.EachDay(start, end)

	byDate := make(map[string][]model.Entry)
	for _, e := range entries {
		byDate[e.Date] = append(byDate[e.Date], e)
	}

	maxValue := 0
	if selectedHabitID != "" {
		for _, e := range entries {
			if e.HabitID == selectedHabitID && e.Value > maxValue {
				maxValue = e.Value
			}
		}
	}
	if maxValue == 0 {
		maxValue = 1
	}
	totalHabits := max(len(habits), 1)

	h := &Heatmap{
		Title:           title(habits, selectedHabitID),
		SelectedHabitID: selectedHabitID,
		Start:           dates.FormatDB(start),
		End:             dates.FormatDB(end),
		Cells:           make([]Cell, 0, len(days)),
	}

	for i, day := range days {
		key := dates.FormatDB(day)
		dayEntries := byDate[key]

		var value, intensity int
		if selectedHabitID != "" {
			for _, e := range dayEntries {
				if e.HabitID == selectedHabitID {
					value = e.Value
					break
				}
			}
			intensity = bucket(value, maxValue)
		} else {
			seen := make(map[string]struct{}, len(dayEntries))
			for _, e := range dayEntries {
				seen[e.HabitID] = struct{}{}
			}
			value = len(seen)
			intensity = bucket(value, totalHabits)
		}

		cell := Cell{
			Date:          key,
			Value:         value,
			Intensity:     intensity,
			WeekIndex:     i / DaysInWeek,
			DayOfWeek:     dates.WeekdayIndex(day),
			FormattedDate: dates.FormatDisplay(day),
		}
		cell.Tooltip = tooltip(cell, selectedHabitID != "")
		if value == 0 {
			cell.ToggleValue = 1
		}
		h.Cells = append(h.Cells, cell)
	}

	for i := range h.Cells {
		c := &h.Cells[i]
		if c.WeekIndex >= Weeks {
			continue
		}
		h.Grid[c.WeekIndex][c.DayOfWeek] = c
	}

	h.Months = MonthLabels(start)
	return h
}

// bucket maps value/denominator onto 0..4. Zero stays zero; any positive value
// lands in at least bucket 1.
func bucket(value, denominator int) int {
	if value <= 0 || denominator <= 0 {
		return 0
	}
	level := int(math.Ceil(float64(value) / float64(denominator) * MaxLevel))
	return min(max(level, 0), MaxLevel)
}

// MonthLabels emits a short month name for each week whose first day falls in
// the first seven days of a month.
func MonthLabels(start time.Time) []MonthLabel {
	var labels []MonthLabel
	for i := 0; i < Weeks; i++ {
		weekStart := start.AddDate(0, 0, i*DaysInWeek)
		if weekStart.Day() <= 7 {
			labels = append(labels, MonthLabel{Week: i, Label: weekStart.Format("Jan")})
		}
	}
	return labels
}

func title(habits []model.Habit, selectedHabitID string) string {
	if selectedHabitID == "" {
		return "All Habits Activity"
	}
	for _, h := range habits {
		if h.ID == selectedHabitID {
			return h.Name + " Activity"
		}
	}
	return "Activity"
}

func tooltip(c Cell, selected bool) string {
	if selected {
		if c.Value > 0 {
			return fmt.Sprintf("%s: %d completed", c.FormattedDate, c.Value)
		}
		return c.FormattedDate + ": No activity"
	}
	if c.Value == 1 {
		return c.FormattedDate + ": 1 habit completed"
	}
	return fmt.Sprintf("%s: %d habits completed", c.FormattedDate, c.Value)
}
