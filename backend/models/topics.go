package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Difficulty string

const (
	DifficultyBeginner     Difficulty = "beginner"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
)

func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyBeginner, DifficultyIntermediate, DifficultyAdvanced:
		return true
	}
	return false
}

// Topic is read-only for clients; only admins create topics.
type Topic struct {
	ID          string     `gorm:"primaryKey;size:36" json:"id" yaml:"id"`
	Title       string     `gorm:"not null" json:"title" yaml:"title"`
	Description string     `json:"description" yaml:"description"`
	Category    string     `gorm:"index" json:"category" yaml:"category"`
	Popularity  int        `gorm:"not null;default:0;index" json:"popularity" yaml:"popularity"`
	Difficulty  Difficulty `gorm:"size:16;not null" json:"difficulty" yaml:"difficulty"`
	CreatedAt   time.Time  `json:"created_at" yaml:"-"`
	UpdatedAt   time.Time  `json:"updated_at" yaml:"-"`

	Sections []ContentSection `gorm:"foreignKey:TopicID" json:"-" yaml:"sections"`
}

func (t *Topic) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

func (t *Topic) Validate() map[string]string {
	errs := map[string]string{}
	if t.Title == "" {
		errs["title"] = "required"
	}
	if !t.Difficulty.Valid() {
		errs["difficulty"] = "must be one of beginner, intermediate, advanced"
	}
	if t.Popularity < 0 {
		errs["popularity"] = "must be >= 0"
	}
	return errs
}

type SectionType string

const (
	SectionText     SectionType = "text"
	SectionVideo    SectionType = "video"
	SectionQuiz     SectionType = "quiz"
	SectionExercise SectionType = "exercise"
)

type ContentSection struct {
	ID              string      `gorm:"primaryKey;size:36" json:"id" yaml:"id"`
	TopicID         string      `gorm:"size:36;index;not null" json:"topic_id" yaml:"-"`
	Title           string      `gorm:"not null" json:"title" yaml:"title"`
	Type            SectionType `gorm:"size:16;not null" json:"type" yaml:"type"`
	Content         string      `json:"content" yaml:"content"`
	DurationMinutes int         `gorm:"column:duration" json:"duration_minutes" yaml:"duration_minutes"`
	OrderIndex      int         `gorm:"not null;default:0" json:"order_index" yaml:"order_index"`
}

func (s *ContentSection) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

func (s *ContentSection) Validate() map[string]string {
	errs := map[string]string{}
	if s.Title == "" {
		errs["title"] = "required"
	}
	if _, err := s.Body(); err != nil {
		errs["type"] = err.Error()
	}
	if s.DurationMinutes < 0 {
		errs["duration_minutes"] = "must be >= 0"
	}
	return errs
}

// SectionBody is the typed payload of a ContentSection. The concrete type tells the
// renderer how to present it.
type SectionBody interface {
	Kind() SectionType
}

type TextBody struct{ Text string }
type VideoBody struct{ Description string }
type QuizBody struct{ Prompt string }
type ExerciseBody struct{ Instructions string }

func (TextBody) Kind() SectionType     { return SectionText }
func (VideoBody) Kind() SectionType    { return SectionVideo }
func (QuizBody) Kind() SectionType     { return SectionQuiz }
func (ExerciseBody) Kind() SectionType { return SectionExercise }

// Body decodes the section into its variant.
func (s ContentSection) Body() (SectionBody, error) {
	switch s.Type {
	case SectionText:
		return TextBody{Text: s.Content}, nil
	case SectionVideo:
		return VideoBody{Description: s.Content}, nil
	case SectionQuiz:
		return QuizBody{Prompt: s.Content}, nil
	case SectionExercise:
		return ExerciseBody{Instructions: s.Content}, nil
	default:
		return nil, fmt.Errorf("unknown section type %q", s.Type)
	}
}

// PopularitySnapshot is one point of a topic's popularity time series.
type PopularitySnapshot struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	TopicID    string    `gorm:"size:36;index;not null" json:"topic_id"`
	Popularity int       `gorm:"not null" json:"popularity"`
	Timestamp  time.Time `gorm:"index" json:"timestamp"`
}

func (PopularitySnapshot) TableName() string {
	return "topic_popularity_history"
}

func (p *PopularitySnapshot) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Timestamp.IsZero() {
		p.Timestamp = time.Now().UTC()
	}
	return nil
}
