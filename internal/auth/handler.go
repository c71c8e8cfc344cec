package auth

import (
	"errors"
	"strings"

	"wholesale-backend/internal/httpx"
	"wholesale-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type RegisterAdminRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type CreateUserRequest struct {
	Name     string          `json:"name" validate:"required,max=100"`
	Email    string          `json:"email" validate:"required,email"`
	Password string          `json:"password" validate:"required,min=8"`
	Role     models.UserRole `json:"role" validate:"omitempty,oneof=admin staff"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type UserResponse struct {
	ID    uint            `json:"id"`
	Name  string          `json:"name"`
	Email string          `json:"email"`
	Role  models.UserRole `json:"role"`
}

func toUserResponse(u models.User) UserResponse {
	return UserResponse{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role}
}

// POST /api/auth/register-admin, only while no admin exists
func RegisterAdminHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body RegisterAdminRequest
		if err := httpx.ParseBody(c, &body); err != nil {
			return err
		}

		var count int64
		if err := db.WithContext(c.UserContext()).Model(&models.User{}).
			Where("role = ?", models.RoleAdmin).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return fiber.NewError(fiber.StatusForbidden, "An admin already exists")
		}

		user, err := createUser(c, db, body.Name, body.Email, body.Password, models.RoleAdmin)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(toUserResponse(*user))
	}
}

// POST /api/users (admin)
func CreateUserHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateUserRequest
		if err := httpx.ParseBody(c, &body); err != nil {
			return err
		}
		role := body.Role
		if role == "" {
			role = models.RoleStaff
		}

		user, err := createUser(c, db, body.Name, body.Email, body.Password, role)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(toUserResponse(*user))
	}
}

func createUser(c *fiber.Ctx, db *gorm.DB, name, email, password string, role models.UserRole) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := models.User{
		Name:         strings.TrimSpace(name),
		Email:        normalizeEmail(email),
		PasswordHash: string(hash),
		Role:         role,
	}
	if err := db.WithContext(c.UserContext()).Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fiber.NewError(fiber.StatusConflict, "Email is already registered")
		}
		return nil, err
	}
	return &user, nil
}

// GET /api/users (admin)
func ListUsersHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var users []models.User
		if err := db.WithContext(c.UserContext()).Order("name asc").Find(&users).Error; err != nil {
			return err
		}
		res := make([]UserResponse, 0, len(users))
		for _, u := range users {
			res = append(res, toUserResponse(u))
		}
		return c.JSON(res)
	}
}

func LoginHandler(secret string, db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body LoginRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		var user models.User
		if err := db.WithContext(c.UserContext()).Where("email = ?", normalizeEmail(body.Email)).First(&user).Error; err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "Invalid email or password")
		}

		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(body.Password)); err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "Invalid email or password")
		}

		token, err := GenerateToken(secret, &user)
		if err != nil {
			return err
		}

		return c.JSON(fiber.Map{
			"token": token,
			"user":  toUserResponse(user),
		})
	}
}

func MeHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := ActorFrom(c)
		if err != nil {
			return err
		}

		var user models.User
		if err := db.WithContext(c.UserContext()).First(&user, actor.UserID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "User not found")
			}
			return err
		}
		return c.JSON(toUserResponse(user))
	}
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}
