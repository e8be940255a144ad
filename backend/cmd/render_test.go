package cmd

import (
	"testing"

	"luminate/backend/metrics"
	"luminate/backend/models"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderSectionVariants(t *testing.T) {
	cases := []struct {
		typ  models.SectionType
		want string
	}{
		{models.SectionText, "Read me"},
		{models.SectionVideo, "Video: Read me"},
		{models.SectionQuiz, "Quiz: Read me"},
		{models.SectionExercise, "Exercise: Read me"},
	}
	for _, tc := range cases {
		t.Run(string(tc.typ), func(t *testing.T) {
			out := renderSection(models.ContentSection{Title: "Basics", Type: tc.typ, Content: "Read me", DurationMinutes: 5, OrderIndex: 1})
			assert.Contains(t, out, "1. Basics")
			assert.Contains(t, out, "(5 min)")
			assert.Contains(t, out, tc.want)
		})
	}

	out := renderSection(models.ContentSection{Title: "Odd", Type: "podcast"})
	assert.Contains(t, out, "unknown section type")
}

func TestProgressBar(t *testing.T) {
	assert.Equal(t, "[..........]", progressBar(0, 10))
	assert.Equal(t, "[#####.....]", progressBar(50, 10))
	assert.Equal(t, "[##########]", progressBar(140, 10))
}

func TestSparkline(t *testing.T) {
	assert.Empty(t, sparkline(nil))
	assert.Equal(t, "▁█", sparkline([]models.PopularitySnapshot{{Popularity: 1}, {Popularity: 9}}))
	assert.Equal(t, "▁▁▁", sparkline([]models.PopularitySnapshot{{Popularity: 4}, {Popularity: 4}, {Popularity: 4}}))
}

func TestRenderMetrics(t *testing.T) {
	out := renderMetrics(metrics.DerivedMetrics{
		PortfolioValue:         1300,
		PortfolioChange:        250,
		PortfolioChangePercent: 25,
		Counts:                 metrics.TopicCounts{Completed: 1, InProgress: 2, NotStarted: 3},
	})
	assert.Contains(t, out, "1.3k")
	assert.Contains(t, out, "+250 (+25.00%)")
	assert.Contains(t, out, "1 completed, 2 in progress, 3 not started")
}

func TestRenderActivity(t *testing.T) {
	assert.Contains(t, renderActivity(nil), "No activity yet")

	out := renderActivity([]models.ActivityPoint{{Label: "Mon", Value: 0}, {Label: "Tue", Value: 10}})
	assert.Contains(t, out, "Mon")
	assert.Contains(t, out, "Tue")
}

func TestProgressUpdateFromFlags(t *testing.T) {
	newCmd := func(args ...string) *cobra.Command {
		c := newProgressCmd()
		require.NoError(t, c.ParseFlags(args))
		return c
	}

	u, err := progressUpdateFromFlags(newCmd())
	require.NoError(t, err)
	assert.Nil(t, u.Status)
	assert.Nil(t, u.PercentComplete)
	assert.Nil(t, u.TimeSpentMinutes)

	u, err = progressUpdateFromFlags(newCmd("--status", "completed", "--minutes", "30"))
	require.NoError(t, err)
	require.NotNil(t, u.Status)
	assert.Equal(t, models.StatusCompleted, *u.Status)
	assert.Nil(t, u.PercentComplete)
	assert.Equal(t, 30, *u.TimeSpentMinutes)

	_, err = progressUpdateFromFlags(newCmd("--percent", "101"))
	assert.Error(t, err)
	_, err = progressUpdateFromFlags(newCmd("--status", "paused"))
	assert.Error(t, err)
}
