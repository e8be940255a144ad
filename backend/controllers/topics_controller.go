package controllers

import (
	"errors"

	"luminate/backend/cache"
	"luminate/backend/config"
	"luminate/backend/models"
	"luminate/backend/repository"
	"luminate/backend/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

const (
	defaultHistoryLimit = 30
	maxHistoryLimit     = 365
)

type TopicsController struct {
	DB     *gorm.DB
	Cfg    *config.Config
	Log    *utils.Logger
	Cache  cache.TopicCache
	topics *repository.TopicRepo
}

func NewTopicsController(db *gorm.DB, cfg *config.Config, log *utils.Logger, topicCache cache.TopicCache) *TopicsController {
	return &TopicsController{
		DB:     db,
		Cfg:    cfg,
		Log:    log.With("controller", "topics"),
		Cache:  topicCache,
		topics: repository.NewTopicRepo(db),
	}
}

func (tc *TopicsController) topicError(c *fiber.Ctx, err error) error {
	if errors.Is(err, repository.ErrTopicNotFound) {
		return utils.NotFound(c, "Topic not found")
	}
	tc.Log.Error("topic query failed", "error", err)
	return utils.InternalServerError(c, "Could not query database")
}

// ListTopics godoc
// @Summary List topics
// @Description Returns the topic catalog ordered by popularity, most popular first
// @Tags topics
// @Produce json
// @Param category query string false "Category filter"
// @Success 200 {array} models.Topic
// @Router /topics [get]
func (tc *TopicsController) ListTopics(c *fiber.Ctx) error {
	category := c.Query("category")
	ctx := c.UserContext()

	if topics, ok := tc.Cache.Get(ctx, category); ok {
		return utils.OK(c, topics)
	}

	topics, err := tc.topics.List(ctx, category)
	if err != nil {
		return tc.topicError(c, err)
	}
	tc.Cache.Set(ctx, category, topics)
	return utils.OK(c, topics)
}

// SearchTopics godoc
// @Summary Search topics
// @Description Case-insensitive match on title, description and category
// @Tags topics
// @Produce json
// @Param q query string false "Search term"
// @Param sort query string false "popularity (default), newest or title"
// @Success 200 {array} models.Topic
// @Router /topics/search [get]
func (tc *TopicsController) SearchTopics(c *fiber.Ctx) error {
	sort := c.Query("sort", "popularity")
	switch sort {
	case "popularity", "newest", "title":
	default:
		return utils.BadRequest(c, "sort must be one of popularity, newest, title")
	}

	topics, err := tc.topics.Search(c.UserContext(), c.Query("q"), sort)
	if err != nil {
		return tc.topicError(c, err)
	}
	return utils.OK(c, topics)
}

// GetTopic godoc
// @Summary Get topic
// @Tags topics
// @Produce json
// @Param id path string true "Topic ID"
// @Success 200 {object} models.Topic
// @Failure 404 {object} utils.ErrorResponse
// @Router /topics/{id} [get]
func (tc *TopicsController) GetTopic(c *fiber.Ctx) error {
	topic, err := tc.topics.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return tc.topicError(c, err)
	}
	return utils.OK(c, topic)
}

// GetSections godoc
// @Summary List content sections of a topic
// @Tags topics
// @Produce json
// @Param id path string true "Topic ID"
// @Success 200 {array} models.ContentSection
// @Failure 404 {object} utils.ErrorResponse
// @Router /topics/{id}/sections [get]
func (tc *TopicsController) GetSections(c *fiber.Ctx) error {
	sections, err := tc.topics.Sections(c.UserContext(), c.Params("id"))
	if err != nil {
		return tc.topicError(c, err)
	}
	return utils.OK(c, sections)
}

// GetPopularityHistory godoc
// @Summary Popularity time series of a topic
// @Tags topics
// @Produce json
// @Param id path string true "Topic ID"
// @Param limit query int false "Number of points (default 30)"
// @Success 200 {array} models.PopularitySnapshot
// @Router /topics/{id}/popularity [get]
func (tc *TopicsController) GetPopularityHistory(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultHistoryLimit)
	if limit <= 0 || limit > maxHistoryLimit {
		return utils.BadRequest(c, "limit must be between 1 and 365")
	}
	history, err := tc.topics.PopularityHistory(c.UserContext(), c.Params("id"), limit)
	if err != nil {
		return tc.topicError(c, err)
	}
	return utils.OK(c, history)
}

// CreateTopic godoc
// @Summary Create topic (admin)
// @Tags admin
// @Accept json
// @Produce json
// @Param topic body models.Topic true "Topic"
// @Success 201 {object} models.Topic
// @Failure 422 {object} utils.ErrorResponse
// @Security ApiKeyAuth
// @Router /admin/topics [post]
func (tc *TopicsController) CreateTopic(c *fiber.Ctx) error {
	var topic models.Topic
	if err := c.BodyParser(&topic); err != nil {
		return utils.BadRequest(c, "Cannot parse JSON")
	}
	topic.ID = ""
	if errs := topic.Validate(); len(errs) > 0 {
		return utils.ValidationError(c, errs)
	}

	if err := tc.topics.Create(c.UserContext(), &topic); err != nil {
		return tc.topicError(c, err)
	}
	tc.Cache.Invalidate(c.UserContext())
	return utils.Created(c, topic)
}

// AddSection godoc
// @Summary Add content section to topic (admin)
// @Tags admin
// @Accept json
// @Produce json
// @Param id path string true "Topic ID"
// @Param section body models.ContentSection true "Section"
// @Success 201 {object} models.ContentSection
// @Security ApiKeyAuth
// @Router /admin/topics/{id}/sections [post]
func (tc *TopicsController) AddSection(c *fiber.Ctx) error {
	var section models.ContentSection
	if err := c.BodyParser(&section); err != nil {
		return utils.BadRequest(c, "Cannot parse JSON")
	}
	section.ID = ""
	section.TopicID = c.Params("id")
	if errs := section.Validate(); len(errs) > 0 {
		return utils.ValidationError(c, errs)
	}

	if err := tc.topics.AddSection(c.UserContext(), &section); err != nil {
		return tc.topicError(c, err)
	}
	return utils.Created(c, section)
}
