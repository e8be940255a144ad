package routes

import (
	"luminate/backend/cache"
	"luminate/backend/config"
	"luminate/backend/controllers"
	"luminate/backend/middleware"
	"luminate/backend/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/gorm"
)

// NewApp builds the Fiber application with middleware and every route.
func NewApp(db *gorm.DB, cfg *config.Config, log *utils.Logger, topicCache cache.TopicCache) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "luminate",
		ErrorHandler:          errorHandler,
		DisableStartupMessage: cfg.QuietStartup,
	})

	app.Use(recover.New())

	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORSOrigin,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))
	app.Use(middleware.LoggingMiddleware(log))

	SetupRoutes(app, db, cfg, log, topicCache)
	return app
}

func errorHandler(c *fiber.Ctx, err error) error {
	return utils.ErrorFrom(c, err)
}

func SetupRoutes(app *fiber.App, db *gorm.DB, cfg *config.Config, log *utils.Logger, topicCache cache.TopicCache) {
	// Auth routes
	authController := controllers.NewAuthController(db, cfg, log)
	app.Post("/api/auth/register", authController.Register)
	app.Post("/api/auth/login", authController.Login)

	// Middleware
	authMiddleware := middleware.AuthMiddleware(cfg)
	adminMiddleware := middleware.AdminMiddleware()

	// User routes
	userController := controllers.NewUserController(db, cfg)
	app.Get("/api/user/profile", authMiddleware, userController.GetProfile)
	app.Put("/api/user/profile", authMiddleware, userController.UpdateProfile)

	// Topic routes, readable without a session
	topicsController := controllers.NewTopicsController(db, cfg, log, topicCache)
	topics := app.Group("/api/topics")
	topics.Get("/", topicsController.ListTopics)
	topics.Get("/search", topicsController.SearchTopics)
	topics.Get("/:id", topicsController.GetTopic)
	topics.Get("/:id/sections", topicsController.GetSections)
	topics.Get("/:id/popularity", topicsController.GetPopularityHistory)

	// Progress routes
	progressController := controllers.NewProgressController(db, cfg, log, topicCache)
	progress := app.Group("/api/progress", authMiddleware)
	progress.Get("/", progressController.GetProgress)
	progress.Get("/overview", progressController.GetProgressOverview)
	progress.Put("/topics/:topicId", progressController.UpsertTopicProgress)
	progress.Patch("/:id", progressController.UpdateProgress)
	app.Get("/api/activity", authMiddleware, progressController.GetActivity)

	// Admin routes
	admin := app.Group("/api/admin", authMiddleware, adminMiddleware)
	admin.Post("/topics", topicsController.CreateTopic)
	admin.Post("/topics/:id/sections", topicsController.AddSection)
}
