package controllers

import (
	"errors"
	"strings"

	"luminate/backend/config"
	"luminate/backend/models"
	"luminate/backend/repository"
	"luminate/backend/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type UserController struct {
	DB    *gorm.DB
	Cfg   *config.Config
	users *repository.UserRepo
}

func NewUserController(db *gorm.DB, cfg *config.Config) *UserController {
	return &UserController{DB: db, Cfg: cfg, users: repository.NewUserRepo(db)}
}

type ProfileResponse struct {
	models.User
	Logins int64 `json:"logins"`
}

// GetProfile godoc
// @Summary Get user profile
// @Description Returns authenticated user's profile data
// @Tags users
// @Produce json
// @Success 200 {object} ProfileResponse
// @Failure 401 {object} utils.ErrorResponse
// @Failure 404 {object} utils.ErrorResponse
// @Security ApiKeyAuth
// @Router /user/profile [get]
func (uc *UserController) GetProfile(c *fiber.Ctx) error {
	user, err := uc.users.ByID(c.UserContext(), utils.CurrentUserID(c))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return utils.NotFound(c, "User not found")
		}
		return utils.InternalServerError(c, "Could not query database")
	}

	logins, err := uc.users.LoginCount(c.UserContext(), user.ID)
	if err != nil {
		return utils.InternalServerError(c, "Could not query database")
	}
	return utils.OK(c, ProfileResponse{User: user, Logins: logins})
}

// UpdateProfile godoc
// @Summary Update display name
// @Tags users
// @Accept json
// @Produce json
// @Success 200 {object} models.User
// @Security ApiKeyAuth
// @Router /user/profile [put]
func (uc *UserController) UpdateProfile(c *fiber.Ctx) error {
	var input struct {
		Name string `json:"name"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.BadRequest(c, "Cannot parse JSON")
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return utils.ValidationError(c, map[string]string{"name": "required"})
	}

	user, err := uc.users.ByID(c.UserContext(), utils.CurrentUserID(c))
	if err != nil {
		return utils.NotFound(c, "User not found")
	}
	if err := uc.DB.WithContext(c.UserContext()).Model(&user).Update("name", name).Error; err != nil {
		return utils.InternalServerError(c, "Could not update user")
	}
	user.Name = name
	return utils.OK(c, user)
}
