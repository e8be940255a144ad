// Package seed loads a topic catalog from YAML and writes it to the database.
package seed

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"

	"luminate/backend/models"
	"luminate/backend/repository"
	"luminate/backend/utils"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

//go:embed catalog.yaml
var defaultCatalog []byte

type Catalog struct {
	Topics []models.Topic `yaml:"topics"`
}

// Default returns the built-in starter catalog.
func Default() (Catalog, error) {
	return Parse(defaultCatalog)
}

func LoadFile(path string) (Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(raw)
}

// Parse decodes and validates a catalog. Unknown keys are rejected.
func Parse(raw []byte) (Catalog, error) {
	var c Catalog
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return Catalog{}, fmt.Errorf("parse catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Catalog{}, err
	}
	return c, nil
}

func (c Catalog) Validate() error {
	seen := map[string]bool{}
	for i := range c.Topics {
		t := &c.Topics[i]
		if t.ID == "" {
			return fmt.Errorf("topic %d: id is required", i)
		}
		if seen[t.ID] {
			return fmt.Errorf("topic %s: duplicate id", t.ID)
		}
		seen[t.ID] = true
		if errs := t.Validate(); len(errs) > 0 {
			return fmt.Errorf("topic %s: %v", t.ID, errs)
		}
		for j := range t.Sections {
			if errs := t.Sections[j].Validate(); len(errs) > 0 {
				return fmt.Errorf("topic %s section %d: %v", t.ID, j, errs)
			}
		}
	}
	return nil
}

// Apply inserts every topic that does not exist yet, with its sections, and returns how
// many were created. Existing topics are left alone.
func Apply(ctx context.Context, db *gorm.DB, c Catalog, log *utils.Logger) (int, error) {
	topics := repository.NewTopicRepo(db)
	created := 0
	for _, t := range c.Topics {
		_, err := topics.Get(ctx, t.ID)
		if err == nil {
			log.Debug("topic exists, skipping", "topic_id", t.ID)
			continue
		}
		if !errors.Is(err, repository.ErrTopicNotFound) {
			return created, err
		}

		topic := t
		topic.Sections = make([]models.ContentSection, len(t.Sections))
		copy(topic.Sections, t.Sections)
		if err := topics.Create(ctx, &topic); err != nil {
			return created, err
		}
		created++
		log.Info("seeded topic", "topic_id", topic.ID, "sections", len(topic.Sections))
	}
	return created, nil
}
