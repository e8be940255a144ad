package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"luminate/backend/metrics"
	"luminate/backend/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrTopicNotFound = errors.New("topic not found")
)

// ProgressRepo owns user_progress and user_activity.
type ProgressRepo struct {
	db  *gorm.DB
	now func() time.Time
}

func NewProgressRepo(db *gorm.DB) *ProgressRepo {
	return &ProgressRepo{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (r *ProgressRepo) ListForUser(ctx context.Context, userID string) ([]models.ProgressRecord, error) {
	var rows []models.ProgressRecord
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("last_accessed DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	return rows, nil
}

// Upsert creates the (user, topic) record with defaults when it does not exist, otherwise
// applies u to it. Both paths run in one transaction and rely on the unique
// (user_id, topic_id) index, so concurrent callers never produce two rows.
func (r *ProgressRepo) Upsert(ctx context.Context, userID, topicID string, u models.ProgressUpdate) (rec models.ProgressRecord, created bool, err error) {
	now := r.now()
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var topic models.Topic
		if err := tx.Select("id").First(&topic, "id = ?", topicID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTopicNotFound
			}
			return err
		}

		fresh := models.NewProgressRecord(userID, topicID, u, now)
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "topic_id"}},
			DoNothing: true,
		}).Create(&fresh)
		if res.Error != nil {
			return res.Error
		}

		if res.RowsAffected == 1 {
			created = true
			rec = fresh
			// новый ученик повышает популярность темы
			if err := tx.Model(&models.Topic{}).Where("id = ?", topicID).
				UpdateColumn("popularity", gorm.Expr("popularity + 1")).Error; err != nil {
				return err
			}
			return addActivity(tx, userID, now, metrics.ActivityDelta(models.ProgressRecord{}, fresh))
		}

		existing, err := lockProgress(tx, "user_id = ? AND topic_id = ?", userID, topicID)
		if err != nil {
			return err
		}
		rec, err = applyUpdate(tx, existing, u, now)
		return err
	})
	if err != nil {
		return models.ProgressRecord{}, false, fmt.Errorf("upsert progress: %w", err)
	}
	return rec, created, nil
}

// UpdateByID applies u to the record with the given id. Records of other users are
// reported as not found.
func (r *ProgressRepo) UpdateByID(ctx context.Context, userID, id string, u models.ProgressUpdate) (models.ProgressRecord, error) {
	now := r.now()
	var rec models.ProgressRecord
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := lockProgress(tx, "id = ? AND user_id = ?", id, userID)
		if err != nil {
			return err
		}
		rec, err = applyUpdate(tx, existing, u, now)
		return err
	})
	if err != nil {
		return models.ProgressRecord{}, fmt.Errorf("update progress %s: %w", id, err)
	}
	return rec, nil
}

// Activity returns the last `days` days of activity for the user, zero-filled.
func (r *ProgressRepo) Activity(ctx context.Context, userID string, days int) ([]models.ActivityPoint, error) {
	now := r.now()
	since := now.AddDate(0, 0, -days).Format(models.DayLayout)
	var rows []models.ActivityDay
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND day > ?", userID, since).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	return metrics.ActivitySeries(rows, days, now), nil
}

func lockProgress(tx *gorm.DB, query string, args ...interface{}) (models.ProgressRecord, error) {
	q := tx
	if tx.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var rec models.ProgressRecord
	if err := q.Where(query, args...).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return rec, ErrNotFound
		}
		return rec, err
	}
	return rec, nil
}

func applyUpdate(tx *gorm.DB, existing models.ProgressRecord, u models.ProgressUpdate, now time.Time) (models.ProgressRecord, error) {
	before := existing
	u.ApplyTo(&existing, now)
	if err := tx.Model(&existing).
		Select("status", "percent_complete", "time_spent", "last_accessed").
		Updates(&existing).Error; err != nil {
		return existing, err
	}
	return existing, addActivity(tx, existing.UserID, now, metrics.ActivityDelta(before, existing))
}

func addActivity(tx *gorm.DB, userID string, now time.Time, delta int) error {
	if delta <= 0 {
		return nil
	}
	row := models.ActivityDay{UserID: userID, Day: now.Format(models.DayLayout), ActivityValue: delta}
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "day"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"activity_value": gorm.Expr("user_activity.activity_value + excluded.activity_value"),
		}),
	}).Create(&row).Error
}
