package seed

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"luminate/backend/models"
	"luminate/backend/repository"
	"luminate/backend/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)
	require.Len(t, c.Topics, 5)

	for _, topic := range c.Topics {
		assert.Len(t, topic.Sections, 5, topic.ID)
		for _, s := range topic.Sections {
			_, err := s.Body()
			assert.NoError(t, err)
		}
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	db := testutil.DB(t)
	c, err := Default()
	require.NoError(t, err)

	n, err := Apply(context.Background(), db, c, testutil.Logger(t))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	n, err = Apply(context.Background(), db, c, testutil.Logger(t))
	require.NoError(t, err)
	assert.Zero(t, n)

	repo := repository.NewTopicRepo(db)
	topics, err := repo.List(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, topics, 5)
	assert.Equal(t, "Web Development Fundamentals", topics[0].Title)

	sections, err := repo.Sections(context.Background(), "topic-2")
	require.NoError(t, err)
	require.Len(t, sections, 5)
	assert.Equal(t, models.SectionText, sections[0].Type)
	assert.Equal(t, models.SectionQuiz, sections[4].Type)
}

func TestParseRejectsBadCatalog(t *testing.T) {
	cases := map[string]string{
		"unknown field": "topics:\n  - id: a\n    title: A\n    difficulty: beginner\n    colour: red\n",
		"bad difficulty": "topics:\n  - id: a\n    title: A\n    difficulty: expert\n",
		"missing id":     "topics:\n  - title: A\n    difficulty: beginner\n",
		"duplicate id":   "topics:\n  - id: a\n    title: A\n    difficulty: beginner\n  - id: a\n    title: B\n    difficulty: beginner\n",
		"bad section":    "topics:\n  - id: a\n    title: A\n    difficulty: beginner\n    sections:\n      - title: S\n        type: podcast\n",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(raw))
			assert.Error(t, err)
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("topics:\n  - id: x\n    title: X\n    difficulty: advanced\n    popularity: 3\n"), 0o600))

	c, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, c.Topics, 1)
	assert.Equal(t, models.DifficultyAdvanced, c.Topics[0].Difficulty)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
