package controllers

import (
	"errors"
	"time"

	"luminate/backend/cache"
	"luminate/backend/config"
	"luminate/backend/metrics"
	"luminate/backend/models"
	"luminate/backend/repository"
	"luminate/backend/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

const (
	defaultActivityDays = 7
	maxActivityDays     = 90
)

type ProgressController struct {
	DB       *gorm.DB
	Cfg      *config.Config
	Log      *utils.Logger
	Cache    cache.TopicCache
	progress *repository.ProgressRepo
	topics   *repository.TopicRepo
}

func NewProgressController(db *gorm.DB, cfg *config.Config, log *utils.Logger, topicCache cache.TopicCache) *ProgressController {
	return &ProgressController{
		DB:       db,
		Cfg:      cfg,
		Log:      log.With("controller", "progress"),
		Cache:    topicCache,
		progress: repository.NewProgressRepo(db),
		topics:   repository.NewTopicRepo(db),
	}
}

// ProgressOverview is the server-side rendition of the dashboard figures.
type ProgressOverview struct {
	metrics.DerivedMetrics
	Progress []models.ProgressRecord `json:"progress"`
}

// GetProgress godoc
// @Summary Get user progress
// @Description Returns every progress record of the authenticated user
// @Tags progress
// @Produce json
// @Success 200 {array} models.ProgressRecord
// @Failure 401 {object} utils.ErrorResponse
// @Security ApiKeyAuth
// @Router /progress [get]
func (pc *ProgressController) GetProgress(c *fiber.Ctx) error {
	rows, err := pc.progress.ListForUser(c.UserContext(), utils.CurrentUserID(c))
	if err != nil {
		pc.Log.Error("list progress failed", "error", err)
		return utils.InternalServerError(c, "Could not query database")
	}
	return utils.OK(c, rows)
}

// GetProgressOverview godoc
// @Summary Get progress overview
// @Description Portfolio value, topic counts and the last 7 days of activity
// @Tags progress
// @Produce json
// @Success 200 {object} ProgressOverview
// @Security ApiKeyAuth
// @Router /progress/overview [get]
func (pc *ProgressController) GetProgressOverview(c *fiber.Ctx) error {
	ctx := c.UserContext()
	userID := utils.CurrentUserID(c)

	topics, err := pc.topics.List(ctx, "")
	if err != nil {
		return utils.InternalServerError(c, "Could not query database")
	}
	rows, err := pc.progress.ListForUser(ctx, userID)
	if err != nil {
		return utils.InternalServerError(c, "Could not query database")
	}
	activity, err := pc.progress.Activity(ctx, userID, defaultActivityDays)
	if err != nil {
		return utils.InternalServerError(c, "Could not query database")
	}

	overview := ProgressOverview{
		DerivedMetrics: metrics.Compute(topics, rows, time.Now().UTC()),
		Progress:       rows,
	}
	overview.DailyActivity = activity
	return utils.OK(c, overview)
}

// bindUpdate parses an optional JSON body; an empty body is an empty update.
func bindUpdate(c *fiber.Ctx, input *models.ProgressUpdate) error {
	if len(c.Body()) == 0 {
		return nil
	}
	return c.BodyParser(input)
}

// UpsertTopicProgress godoc
// @Summary Create or update progress for a topic
// @Description Creates the caller's record for the topic with defaults (in_progress, 0%, 0 min) or applies the update to the existing one
// @Tags progress
// @Accept json
// @Produce json
// @Param topicId path string true "Topic ID"
// @Param update body models.ProgressUpdate false "Fields to change"
// @Success 200 {object} models.ProgressRecord
// @Success 201 {object} models.ProgressRecord
// @Failure 404 {object} utils.ErrorResponse
// @Security ApiKeyAuth
// @Router /progress/topics/{topicId} [put]
func (pc *ProgressController) UpsertTopicProgress(c *fiber.Ctx) error {
	var input models.ProgressUpdate
	if err := bindUpdate(c, &input); err != nil {
		return utils.BadRequest(c, "Cannot parse JSON")
	}
	if errs := input.Validate(); len(errs) > 0 {
		return utils.ValidationError(c, errs)
	}

	rec, created, err := pc.progress.Upsert(c.UserContext(), utils.CurrentUserID(c), c.Params("topicId"), input)
	if err != nil {
		if errors.Is(err, repository.ErrTopicNotFound) {
			return utils.NotFound(c, "Topic not found")
		}
		pc.Log.Error("upsert progress failed", "topic_id", c.Params("topicId"), "error", err)
		return utils.InternalServerError(c, "Could not save progress")
	}

	if created {
		// популярность изменилась, кэш каталога устарел
		pc.Cache.Invalidate(c.UserContext())
		return utils.Created(c, rec)
	}
	return utils.OK(c, rec)
}

// UpdateProgress godoc
// @Summary Update a progress record by id
// @Tags progress
// @Accept json
// @Produce json
// @Param id path string true "Progress ID"
// @Param update body models.ProgressUpdate true "Fields to change"
// @Success 200 {object} models.ProgressRecord
// @Failure 404 {object} utils.ErrorResponse
// @Security ApiKeyAuth
// @Router /progress/{id} [patch]
func (pc *ProgressController) UpdateProgress(c *fiber.Ctx) error {
	var input models.ProgressUpdate
	if err := bindUpdate(c, &input); err != nil {
		return utils.BadRequest(c, "Cannot parse JSON")
	}
	if errs := input.Validate(); len(errs) > 0 {
		return utils.ValidationError(c, errs)
	}

	rec, err := pc.progress.UpdateByID(c.UserContext(), utils.CurrentUserID(c), c.Params("id"), input)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return utils.NotFound(c, "Progress not found")
		}
		pc.Log.Error("update progress failed", "progress_id", c.Params("id"), "error", err)
		return utils.InternalServerError(c, "Could not save progress")
	}
	return utils.OK(c, rec)
}

// GetActivity godoc
// @Summary Daily learning activity
// @Tags progress
// @Produce json
// @Param days query int false "Number of days (default 7)"
// @Success 200 {array} models.ActivityPoint
// @Security ApiKeyAuth
// @Router /activity [get]
func (pc *ProgressController) GetActivity(c *fiber.Ctx) error {
	days := c.QueryInt("days", defaultActivityDays)
	if days <= 0 || days > maxActivityDays {
		return utils.BadRequest(c, "days must be between 1 and 90")
	}
	series, err := pc.progress.Activity(c.UserContext(), utils.CurrentUserID(c), days)
	if err != nil {
		return utils.InternalServerError(c, "Could not query database")
	}
	return utils.OK(c, series)
}
