// Package metrics computes the dashboard figures derived from a user's progress. Nothing here
// touches storage; callers pass in whatever rows they hold.
package metrics

import (
	"math"
	"time"

	"luminate/backend/models"
)

// ChangeWindow is the trailing period that counts as "recent" for portfolio change.
const ChangeWindow = 7 * 24 * time.Hour

type TopicCounts struct {
	Completed  int `json:"completed"`
	InProgress int `json:"in_progress"`
	NotStarted int `json:"not_started"`
}

type DerivedMetrics struct {
	PortfolioValue         int                    `json:"portfolio_value"`
	PortfolioChange        int                    `json:"portfolio_change"`
	PortfolioChangePercent float64                `json:"portfolio_change_percent"`
	Counts                 TopicCounts            `json:"counts"`
	DailyActivity          []models.ActivityPoint `json:"daily_activity,omitempty"`
}

func difficultyWeight(d models.Difficulty) int {
	switch d {
	case models.DifficultyAdvanced:
		return 3
	case models.DifficultyIntermediate:
		return 2
	default:
		return 1
	}
}

// Points is what one record contributes to the portfolio value: percent complete weighted
// by topic difficulty, plus minutes spent.
func Points(rec models.ProgressRecord, d models.Difficulty) int {
	return rec.PercentComplete*difficultyWeight(d) + rec.TimeSpentMinutes
}

// Compute derives the portfolio figures and topic counts. Records touched within
// ChangeWindow of now make up the change.
func Compute(topics []models.Topic, progress []models.ProgressRecord, now time.Time) DerivedMetrics {
	difficulty := make(map[string]models.Difficulty, len(topics))
	for _, t := range topics {
		difficulty[t.ID] = t.Difficulty
	}

	var m DerivedMetrics
	started := 0
	for _, rec := range progress {
		p := Points(rec, difficulty[rec.TopicID])
		m.PortfolioValue += p
		if now.Sub(rec.LastAccessedAt) <= ChangeWindow {
			m.PortfolioChange += p
		}
		switch rec.Status {
		case models.StatusCompleted:
			m.Counts.Completed++
			started++
		case models.StatusInProgress:
			m.Counts.InProgress++
			started++
		}
	}
	if n := len(topics) - started; n > 0 {
		m.Counts.NotStarted = n
	}

	base := m.PortfolioValue - m.PortfolioChange
	switch {
	case base > 0:
		m.PortfolioChangePercent = round2(float64(m.PortfolioChange) / float64(base) * 100)
	case m.PortfolioChange > 0:
		m.PortfolioChangePercent = 100
	}
	return m
}

// ActivitySeries returns one point per day for the `days` days ending on now's UTC date,
// oldest first, with zero for days without rows.
func ActivitySeries(rows []models.ActivityDay, days int, now time.Time) []models.ActivityPoint {
	if days <= 0 {
		return nil
	}
	byDay := make(map[string]int, len(rows))
	for _, r := range rows {
		byDay[r.Day] += r.ActivityValue
	}

	today := now.UTC().Truncate(24 * time.Hour)
	out := make([]models.ActivityPoint, 0, days)
	for i := days - 1; i >= 0; i-- {
		d := today.AddDate(0, 0, -i)
		key := d.Format(models.DayLayout)
		out = append(out, models.ActivityPoint{
			Day:   key,
			Label: d.Format("Mon"),
			Value: byDay[key],
		})
	}
	return out
}

// ActivityDelta is how much a progress write adds to the day's activity: minutes newly
// spent plus percentage points newly gained.
func ActivityDelta(before, after models.ProgressRecord) int {
	delta := 0
	if d := after.TimeSpentMinutes - before.TimeSpentMinutes; d > 0 {
		delta += d
	}
	if d := after.PercentComplete - before.PercentComplete; d > 0 {
		delta += d
	}
	return delta
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
