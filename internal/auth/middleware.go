package auth

import (
	"fmt"
	"strings"

	"wholesale-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

const ctxActorKey = "actor"

// Actor is the authenticated caller. Handlers pass it explicitly into
// service calls instead of reading request state deeper down.
type Actor struct {
	UserID uint
	Name   string
	Email  string
	Role   models.UserRole
}

func JWTMiddleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "Authorization header missing")
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			return fiber.NewError(fiber.StatusUnauthorized, "Authorization format must be 'Bearer <token>'")
		}

		token, err := jwt.ParseWithClaims(parts[1], &JWTCustomClaims{}, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			return fiber.NewError(fiber.StatusUnauthorized, "Invalid or expired token")
		}

		claims, ok := token.Claims.(*JWTCustomClaims)
		if !ok {
			return fiber.NewError(fiber.StatusUnauthorized, "Token could not be decoded")
		}

		c.Locals(ctxActorKey, Actor{
			UserID: claims.UserID,
			Name:   claims.Name,
			Email:  claims.Email,
			Role:   claims.Role,
		})

		return c.Next()
	}
}

func RequireRole(allowedRoles ...models.UserRole) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := ActorFrom(c)
		if err != nil {
			return err
		}

		for _, r := range allowedRoles {
			if r == actor.Role {
				return c.Next()
			}
		}
		return fiber.NewError(fiber.StatusForbidden, "You are not allowed to perform this action")
	}
}

// ActorFrom returns the caller set by JWTMiddleware.
func ActorFrom(c *fiber.Ctx) (Actor, error) {
	actor, ok := c.Locals(ctxActorKey).(Actor)
	if !ok || actor.UserID == 0 {
		return Actor{}, fiber.NewError(fiber.StatusUnauthorized, "Not authenticated")
	}
	return actor, nil
}
