package metrics

import (
	"testing"
	"time"

	"luminate/backend/models"

	"github.com/stretchr/testify/assert"
)

func TestCompute(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	topics := []models.Topic{
		{ID: "t1", Difficulty: models.DifficultyBeginner},
		{ID: "t2", Difficulty: models.DifficultyAdvanced},
		{ID: "t3", Difficulty: models.DifficultyIntermediate},
	}
	progress := []models.ProgressRecord{
		// 100*1 + 30, touched today
		{TopicID: "t1", Status: models.StatusCompleted, PercentComplete: 100, TimeSpentMinutes: 30, LastAccessedAt: now},
		// 20*3 + 10, touched a month ago
		{TopicID: "t2", Status: models.StatusInProgress, PercentComplete: 20, TimeSpentMinutes: 10, LastAccessedAt: now.AddDate(0, -1, 0)},
	}

	m := Compute(topics, progress, now)
	assert.Equal(t, 200, m.PortfolioValue)
	assert.Equal(t, 130, m.PortfolioChange)
	assert.Equal(t, 185.71, m.PortfolioChangePercent)
	assert.Equal(t, TopicCounts{Completed: 1, InProgress: 1, NotStarted: 1}, m.Counts)
}

func TestComputeEmpty(t *testing.T) {
	m := Compute(nil, nil, time.Now())
	assert.Zero(t, m.PortfolioValue)
	assert.Zero(t, m.PortfolioChangePercent)
	assert.Equal(t, TopicCounts{}, m.Counts)
}

func TestComputeAllRecent(t *testing.T) {
	now := time.Now()
	m := Compute(nil, []models.ProgressRecord{{TopicID: "x", PercentComplete: 10, LastAccessedAt: now}}, now)
	assert.Equal(t, 10, m.PortfolioValue)
	assert.Equal(t, float64(100), m.PortfolioChangePercent)
}

func TestActivitySeries(t *testing.T) {
	now := time.Date(2024, 6, 9, 18, 30, 0, 0, time.UTC) // Sunday
	rows := []models.ActivityDay{
		{Day: "2024-06-09", ActivityValue: 15},
		{Day: "2024-06-07", ActivityValue: 5},
		{Day: "2024-05-01", ActivityValue: 99},
	}

	series := ActivitySeries(rows, 3, now)
	assert.Equal(t, []models.ActivityPoint{
		{Day: "2024-06-07", Label: "Fri", Value: 5},
		{Day: "2024-06-08", Label: "Sat", Value: 0},
		{Day: "2024-06-09", Label: "Sun", Value: 15},
	}, series)

	assert.Nil(t, ActivitySeries(rows, 0, now))
}

func TestActivityDelta(t *testing.T) {
	before := models.ProgressRecord{PercentComplete: 10, TimeSpentMinutes: 5}
	after := models.ProgressRecord{PercentComplete: 30, TimeSpentMinutes: 12}
	assert.Equal(t, 27, ActivityDelta(before, after))
	assert.Equal(t, 0, ActivityDelta(after, before))
}
