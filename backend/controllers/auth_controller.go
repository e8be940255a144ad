package controllers

import (
	"errors"
	"net/mail"
	"strings"
	"time"

	"luminate/backend/config"
	"luminate/backend/models"
	"luminate/backend/repository"
	"luminate/backend/utils"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const minPasswordLength = 6

type AuthController struct {
	DB    *gorm.DB
	Cfg   *config.Config
	Log   *utils.Logger
	users *repository.UserRepo
}

func NewAuthController(db *gorm.DB, cfg *config.Config, log *utils.Logger) *AuthController {
	return &AuthController{DB: db, Cfg: cfg, Log: log.With("controller", "auth"), users: repository.NewUserRepo(db)}
}

type RegisterInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse is returned by register and login.
type AuthResponse struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

// DisplayNameFromEmail returns the local part of an email address.
func DisplayNameFromEmail(email string) string {
	local, _, _ := strings.Cut(email, "@")
	return local
}

// Register godoc
// @Summary Register a new user
// @Description Creates a new user account and returns an access token
// @Tags auth
// @Accept json
// @Produce json
// @Param user body RegisterInput true "User registration data"
// @Success 201 {object} AuthResponse
// @Failure 409 {object} utils.ErrorResponse
// @Failure 422 {object} utils.ErrorResponse
// @Router /auth/register [post]
func (ac *AuthController) Register(c *fiber.Ctx) error {
	var input RegisterInput
	if err := c.BodyParser(&input); err != nil {
		return utils.BadRequest(c, "Cannot parse JSON")
	}

	input.Email = repository.NormalizeEmail(input.Email)
	errs := map[string]string{}
	if _, err := mail.ParseAddress(input.Email); err != nil {
		errs["email"] = "must be a valid email address"
	}
	if len(input.Password) < minPasswordLength {
		errs["password"] = "must be at least 6 characters"
	}
	if len(errs) > 0 {
		return utils.ValidationError(c, errs)
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		name = DisplayNameFromEmail(input.Email)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return utils.InternalServerError(c, "Could not hash password")
	}

	user := models.User{Email: input.Email, Name: name, PasswordHash: string(hashedPassword)}
	if err := ac.users.Create(c.UserContext(), &user); err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			return utils.Conflict(c, "Email already registered")
		}
		ac.Log.Error("create user failed", "error", err)
		return utils.InternalServerError(c, "Could not create user")
	}

	token, err := utils.GenerateJWTToken(user.ID, user.Role, ac.Cfg)
	if err != nil {
		return utils.InternalServerError(c, "Could not generate token")
	}

	ac.Log.Info("user registered", "user_id", user.ID)
	return utils.Created(c, AuthResponse{Token: token, User: user})
}

// Login godoc
// @Summary User login
// @Description Verifies credentials and returns an access token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginInput true "Login credentials"
// @Success 200 {object} AuthResponse
// @Failure 401 {object} utils.ErrorResponse
// @Router /auth/login [post]
func (ac *AuthController) Login(c *fiber.Ctx) error {
	var input LoginInput
	if err := c.BodyParser(&input); err != nil {
		return utils.BadRequest(c, "Cannot parse JSON")
	}
	if input.Email == "" || input.Password == "" {
		return utils.BadRequest(c, "Email and password are required")
	}

	user, err := ac.users.ByEmail(c.UserContext(), input.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return utils.Unauthorized(c, "Invalid credentials")
		}
		return utils.InternalServerError(c, "Could not query database")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		return utils.Unauthorized(c, "Invalid credentials")
	}

	token, err := utils.GenerateJWTToken(user.ID, user.Role, ac.Cfg)
	if err != nil {
		return utils.InternalServerError(c, "Could not generate token")
	}

	// История входов нужна только для статистики, ошибку не возвращаем
	if err := ac.users.RecordLogin(c.UserContext(), user.ID, time.Now().UTC()); err != nil {
		ac.Log.Warn("record login failed", "user_id", user.ID, "error", err)
	}

	return utils.OK(c, AuthResponse{Token: token, User: user})
}
