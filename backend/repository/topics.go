package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"luminate/backend/models"

	"gorm.io/gorm"
)

type TopicRepo struct {
	db *gorm.DB
}

func NewTopicRepo(db *gorm.DB) *TopicRepo {
	return &TopicRepo{db: db}
}

// List returns topics ordered by popularity, most popular first.
func (r *TopicRepo) List(ctx context.Context, category string) ([]models.Topic, error) {
	q := r.db.WithContext(ctx).Model(&models.Topic{})
	if category != "" {
		q = q.Where("category = ?", category)
	}
	var topics []models.Topic
	if err := q.Order("popularity DESC").Order("title").Find(&topics).Error; err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	return topics, nil
}

// Search matches term against title, description and category. sort is "popularity"
// (default), "newest" or "title".
func (r *TopicRepo) Search(ctx context.Context, term, sort string) ([]models.Topic, error) {
	q := r.db.WithContext(ctx).Model(&models.Topic{})
	if term = strings.TrimSpace(term); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		q = q.Where("LOWER(title) LIKE ? OR LOWER(description) LIKE ? OR LOWER(category) LIKE ?", like, like, like)
	}

	switch sort {
	case "newest":
		q = q.Order("created_at DESC")
	case "title":
		q = q.Order("title")
	default:
		q = q.Order("popularity DESC").Order("title")
	}

	var topics []models.Topic
	if err := q.Find(&topics).Error; err != nil {
		return nil, fmt.Errorf("search topics: %w", err)
	}
	return topics, nil
}

func (r *TopicRepo) Get(ctx context.Context, id string) (models.Topic, error) {
	var topic models.Topic
	if err := r.db.WithContext(ctx).First(&topic, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return topic, ErrTopicNotFound
		}
		return topic, fmt.Errorf("get topic %s: %w", id, err)
	}
	return topic, nil
}

// Sections returns the topic's sections by order_index.
func (r *TopicRepo) Sections(ctx context.Context, topicID string) ([]models.ContentSection, error) {
	if _, err := r.Get(ctx, topicID); err != nil {
		return nil, err
	}
	var sections []models.ContentSection
	if err := r.db.WithContext(ctx).
		Where("topic_id = ?", topicID).
		Order("order_index ASC").
		Find(&sections).Error; err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	return sections, nil
}

// Create inserts a topic together with any sections it carries.
func (r *TopicRepo) Create(ctx context.Context, topic *models.Topic) error {
	if err := r.db.WithContext(ctx).Create(topic).Error; err != nil {
		return fmt.Errorf("create topic: %w", err)
	}
	return nil
}

func (r *TopicRepo) AddSection(ctx context.Context, section *models.ContentSection) error {
	if _, err := r.Get(ctx, section.TopicID); err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(section).Error; err != nil {
		return fmt.Errorf("add section: %w", err)
	}
	return nil
}

// PopularityHistory returns up to limit most recent snapshots, oldest first.
func (r *TopicRepo) PopularityHistory(ctx context.Context, topicID string, limit int) ([]models.PopularitySnapshot, error) {
	if _, err := r.Get(ctx, topicID); err != nil {
		return nil, err
	}
	var rows []models.PopularitySnapshot
	if err := r.db.WithContext(ctx).
		Where("topic_id = ?", topicID).
		Order("timestamp DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("popularity history: %w", err)
	}
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows, nil
}

// SnapshotPopularity records the current popularity of every topic.
func (r *TopicRepo) SnapshotPopularity(ctx context.Context, at time.Time) (int, error) {
	var topics []models.Topic
	if err := r.db.WithContext(ctx).Select("id", "popularity").Find(&topics).Error; err != nil {
		return 0, fmt.Errorf("snapshot popularity: %w", err)
	}
	if len(topics) == 0 {
		return 0, nil
	}
	rows := make([]models.PopularitySnapshot, 0, len(topics))
	for _, t := range topics {
		rows = append(rows, models.PopularitySnapshot{TopicID: t.ID, Popularity: t.Popularity, Timestamp: at})
	}
	if err := r.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return 0, fmt.Errorf("snapshot popularity: %w", err)
	}
	return len(rows), nil
}
