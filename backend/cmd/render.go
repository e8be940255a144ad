package cmd

import (
	"fmt"
	"strings"

	"luminate/backend/metrics"
	"luminate/backend/models"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	headingStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("214"))

	subtleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	valueStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	bodyStyle = lipgloss.NewStyle().
			PaddingLeft(3).
			Width(80)
)

var difficultyColors = map[models.Difficulty]lipgloss.Color{
	models.DifficultyBeginner:     lipgloss.Color("42"),
	models.DifficultyIntermediate: lipgloss.Color("220"),
	models.DifficultyAdvanced:     lipgloss.Color("203"),
}

func difficultyBadge(d models.Difficulty) string {
	return lipgloss.NewStyle().Foreground(difficultyColors[d]).Render(string(d))
}

func renderTopicHeader(t models.Topic) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(t.Title))
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s · %s · %s learners\n", t.Category, difficultyBadge(t.Difficulty), formatCount(t.Popularity))
	b.WriteString(subtleStyle.Render(t.Description))
	return b.String()
}

func renderTopicRow(t models.Topic, rec *models.ProgressRecord) string {
	status := subtleStyle.Render("not started")
	if rec != nil {
		status = fmt.Sprintf("%s %3d%%", progressBar(rec.PercentComplete, 10), rec.PercentComplete)
	}
	return fmt.Sprintf("%-10s %-34s %-12s %7s  %s",
		t.ID, truncate(t.Title, 34), difficultyBadge(t.Difficulty), formatCount(t.Popularity), status)
}

// renderSection is the only place that decides how each kind of section looks.
func renderSection(s models.ContentSection) string {
	header := headingStyle.Render(fmt.Sprintf("%d. %s", s.OrderIndex, s.Title)) +
		subtleStyle.Render(fmt.Sprintf(" (%d min)", s.DurationMinutes))

	body, err := s.Body()
	if err != nil {
		return header + "\n" + bodyStyle.Render(errorStyle.Render(err.Error()))
	}

	var text string
	switch b := body.(type) {
	case models.TextBody:
		text = b.Text
	case models.VideoBody:
		text = "▶ Video: " + b.Description
	case models.QuizBody:
		text = "? Quiz: " + b.Prompt
	case models.ExerciseBody:
		text = "✎ Exercise: " + b.Instructions
	}
	return header + "\n" + bodyStyle.Render(strings.TrimSpace(text))
}

func renderProgress(rec models.ProgressRecord) string {
	return fmt.Sprintf("%s %d%% · %s · %d min",
		progressBar(rec.PercentComplete, 20), rec.PercentComplete,
		strings.ReplaceAll(string(rec.Status), "_", " "), rec.TimeSpentMinutes)
}

func progressBar(percent, width int) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	filled := percent * width / 100
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", width-filled) + "]"
}

func renderMetrics(m metrics.DerivedMetrics) string {
	sign := "+"
	if m.PortfolioChange < 0 {
		sign = ""
	}
	lines := []string{
		fmt.Sprintf("%s %s", subtleStyle.Render("Portfolio value"), valueStyle.Render(formatCount(m.PortfolioValue))),
		fmt.Sprintf("%s %s%d (%s%.2f%%) this week", subtleStyle.Render("Change         "), sign, m.PortfolioChange, sign, m.PortfolioChangePercent),
		fmt.Sprintf("%s %d completed, %d in progress, %d not started", subtleStyle.Render("Topics         "),
			m.Counts.Completed, m.Counts.InProgress, m.Counts.NotStarted),
	}
	return strings.Join(lines, "\n")
}

// renderActivity draws one horizontal bar per day, scaled to the busiest day.
func renderActivity(points []models.ActivityPoint) string {
	if len(points) == 0 {
		return subtleStyle.Render("No activity yet")
	}
	const width = 30
	peak := 0
	for _, p := range points {
		if p.Value > peak {
			peak = p.Value
		}
	}

	var b strings.Builder
	b.WriteString(headingStyle.Render("Daily activity"))
	for _, p := range points {
		n := 0
		if peak > 0 {
			n = p.Value * width / peak
		}
		fmt.Fprintf(&b, "\n%-4s %s %d", p.Label, valueStyle.Render(strings.Repeat("█", n)), p.Value)
	}
	return b.String()
}

var sparkRunes = []rune("▁▂▃▄▅▆▇█")

func sparkline(history []models.PopularitySnapshot) string {
	if len(history) < 2 {
		return ""
	}
	lo, hi := history[0].Popularity, history[0].Popularity
	for _, h := range history {
		if h.Popularity < lo {
			lo = h.Popularity
		}
		if h.Popularity > hi {
			hi = h.Popularity
		}
	}
	out := make([]rune, len(history))
	for i, h := range history {
		idx := 0
		if hi > lo {
			idx = (h.Popularity - lo) * (len(sparkRunes) - 1) / (hi - lo)
		}
		out[i] = sparkRunes[idx]
	}
	return string(out)
}

func formatCount(n int) string {
	if n >= 1000 {
		return fmt.Sprintf("%.1fk", float64(n)/1000)
	}
	return fmt.Sprint(n)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
