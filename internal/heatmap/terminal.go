package heatmap

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const cellGlyph = "■"

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("252"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	// levelStyles follow the web palette from empty to busiest.
	levelStyles = [MaxLevel + 1]lipgloss.Style{
		lipgloss.NewStyle().Foreground(lipgloss.Color("237")),
		lipgloss.NewStyle().Foreground(lipgloss.Color("22")),
		lipgloss.NewStyle().Foreground(lipgloss.Color("28")),
		lipgloss.NewStyle().Foreground(lipgloss.Color("34")),
		lipgloss.NewStyle().Foreground(lipgloss.Color("40")),
	}
)

// Render draws the grid for a terminal: one row per weekday, one column per week.
func Render(h *Heatmap) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(h.Title))
	b.WriteString("\n")
	b.WriteString(labelStyle.Render(h.Start + " to " + h.End))
	b.WriteString("\n\n")

	// Each week column is two characters wide; a label only claims its column
	// when the previous one has finished.
	months := make([]byte, 0, Weeks*2)
	for week, label := range h.MonthRow() {
		for len(months) < 4+week*2 {
			months = append(months, ' ')
		}
		if label != "" && len(months) == 4+week*2 {
			months = append(months, label...)
		}
	}
	b.WriteString(labelStyle.Render(strings.TrimRight(string(months), " ")))
	b.WriteString("\n")

	for day := range DaysInWeek {
		b.WriteString(labelStyle.Render(padLabel(DayLabels[day])))
		for week := range Weeks {
			c := h.Grid[week][day]
			if c == nil {
				b.WriteString("  ")
				continue
			}
			b.WriteString(levelStyles[clampLevel(c.Intensity)].Render(cellGlyph))
			b.WriteString(" ")
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(labelStyle.Render("    Less "))
	for _, l := range Legend {
		b.WriteString(levelStyles[l.Level].Render(cellGlyph))
		b.WriteString(" ")
	}
	b.WriteString(labelStyle.Render("More"))
	b.WriteString("\n")
	return b.String()
}

func padLabel(s string) string {
	return s + strings.Repeat(" ", 4-len(s))
}

func clampLevel(level int) int {
	return max(0, min(level, MaxLevel))
}
