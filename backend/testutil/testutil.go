// Package testutil provides in-memory databases and fixtures for package tests.
package testutil

import (
	"context"
	"testing"
	"time"

	"luminate/backend/config"
	"luminate/backend/models"
	"luminate/backend/utils"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

func Config() *config.Config {
	return &config.Config{
		DBDriver:         "sqlite",
		SQLitePath:       ":memory:",
		JWTSecret:        "testsecret",
		TokenTTL:         time.Hour,
		ServerPort:       "8080",
		LogMode:          "test",
		QuietStartup:     true,
		CacheTTL:         time.Minute,
		SnapshotInterval: time.Hour,
		RequestTimeout:   5 * time.Second,
	}
}

func Logger(tb testing.TB) *utils.Logger {
	tb.Helper()
	return utils.NopLogger()
}

// DB returns a fresh, migrated in-memory SQLite database.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()
	db, err := utils.OpenSQLite(":memory:", &gorm.Config{
		Logger:         gormLogger.Default.LogMode(gormLogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		tb.Fatalf("open test db: %v", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		tb.Fatalf("migrate test db: %v", err)
	}
	tb.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func SeedTopic(tb testing.TB, db *gorm.DB, id string, popularity int, difficulty models.Difficulty) *models.Topic {
	tb.Helper()
	t := &models.Topic{
		ID:          id,
		Title:       "Topic " + id,
		Description: "About " + id,
		Category:    "General",
		Popularity:  popularity,
		Difficulty:  difficulty,
	}
	if err := db.WithContext(context.Background()).Create(t).Error; err != nil {
		tb.Fatalf("seed topic: %v", err)
	}
	return t
}

func SeedSection(tb testing.TB, db *gorm.DB, topicID string, order int, typ models.SectionType) *models.ContentSection {
	tb.Helper()
	s := &models.ContentSection{
		TopicID:         topicID,
		Title:           "Section",
		Type:            typ,
		Content:         "content",
		DurationMinutes: 10,
		OrderIndex:      order,
	}
	if err := db.Create(s).Error; err != nil {
		tb.Fatalf("seed section: %v", err)
	}
	return s
}

func SeedUser(tb testing.TB, db *gorm.DB, email, password, role string) *models.User {
	tb.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		tb.Fatalf("hash password: %v", err)
	}
	u := &models.User{Email: email, Name: "Test", PasswordHash: string(hash), Role: role}
	if err := db.Create(u).Error; err != nil {
		tb.Fatalf("seed user: %v", err)
	}
	return u
}
