package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusNotStarted, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// ProgressRecord is one user's completion state for one topic.
type ProgressRecord struct {
	ID               string    `gorm:"primaryKey;size:36" json:"id"`
	UserID           string    `gorm:"size:36;not null;uniqueIndex:idx_progress_user_topic" json:"user_id"`
	TopicID          string    `gorm:"size:36;not null;uniqueIndex:idx_progress_user_topic" json:"topic_id"`
	Status           Status    `gorm:"size:16;not null" json:"status"`
	PercentComplete  int       `gorm:"not null;default:0" json:"percent_complete"`
	LastAccessedAt   time.Time `gorm:"column:last_accessed" json:"last_accessed_at"`
	TimeSpentMinutes int       `gorm:"column:time_spent;not null;default:0" json:"time_spent_minutes"`
}

func (ProgressRecord) TableName() string {
	return "user_progress"
}

func (p *ProgressRecord) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// ProgressUpdate is a partial update; nil fields are left untouched.
type ProgressUpdate struct {
	Status           *Status `json:"status,omitempty"`
	PercentComplete  *int    `json:"percent_complete,omitempty"`
	TimeSpentMinutes *int    `json:"time_spent_minutes,omitempty"`
}

func (u ProgressUpdate) Validate() map[string]string {
	errs := map[string]string{}
	if u.Status != nil && !u.Status.Valid() {
		errs["status"] = "must be one of not_started, in_progress, completed"
	}
	if u.PercentComplete != nil && (*u.PercentComplete < 0 || *u.PercentComplete > 100) {
		errs["percent_complete"] = "must be between 0 and 100"
	}
	if u.TimeSpentMinutes != nil && *u.TimeSpentMinutes < 0 {
		errs["time_spent_minutes"] = "must be >= 0"
	}
	return errs
}

// NewProgressRecord builds the record created the first time a user touches a topic.
func NewProgressRecord(userID, topicID string, u ProgressUpdate, now time.Time) ProgressRecord {
	rec := ProgressRecord{
		UserID:  userID,
		TopicID: topicID,
		Status:  StatusInProgress,
	}
	u.ApplyTo(&rec, now)
	return rec
}

// ApplyTo merges u into rec and stamps LastAccessedAt. Percent never goes down and a
// completed record is always at 100.
func (u ProgressUpdate) ApplyTo(rec *ProgressRecord, now time.Time) {
	if u.Status != nil {
		rec.Status = *u.Status
	}
	if u.PercentComplete != nil && *u.PercentComplete > rec.PercentComplete {
		rec.PercentComplete = *u.PercentComplete
	}
	if u.TimeSpentMinutes != nil {
		rec.TimeSpentMinutes = *u.TimeSpentMinutes
	}
	if rec.Status == StatusCompleted {
		rec.PercentComplete = 100
	}
	rec.LastAccessedAt = now
}

// ActivityDay aggregates one user's learning activity for one calendar day (UTC).
type ActivityDay struct {
	ID            string `gorm:"primaryKey;size:36" json:"id"`
	UserID        string `gorm:"size:36;not null;uniqueIndex:idx_activity_user_day" json:"user_id"`
	Day           string `gorm:"size:10;not null;uniqueIndex:idx_activity_user_day" json:"day"`
	ActivityValue int    `gorm:"not null;default:0" json:"activity_value"`
}

func (ActivityDay) TableName() string {
	return "user_activity"
}

func (a *ActivityDay) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// ActivityPoint is one day of the dashboard activity series.
type ActivityPoint struct {
	Day   string `json:"day"`
	Label string `json:"label"`
	Value int    `json:"value"`
}

const DayLayout = "2006-01-02"
