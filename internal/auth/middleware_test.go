package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"wholesale-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "middleware-test-secret-0123456789abcdef"

func newApp() *fiber.App {
	app := fiber.New()
	app.Get("/whoami", JWTMiddleware(secret), func(c *fiber.Ctx) error {
		actor, err := ActorFrom(c)
		if err != nil {
			return err
		}
		return c.SendString(actor.Name)
	})
	app.Get("/admin", JWTMiddleware(secret), RequireRole(models.RoleAdmin), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})
	return app
}

func get(t *testing.T, app *fiber.App, path, header string) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	resp.Body.Close()
	return resp.StatusCode
}

func TestJWTMiddleware(t *testing.T) {
	app := newApp()
	staff := &models.User{ID: 3, Name: "Clerk", Email: "clerk@example.com", Role: models.RoleStaff}
	admin := &models.User{ID: 1, Name: "Owner", Email: "owner@example.com", Role: models.RoleAdmin}

	staffToken, err := GenerateToken(secret, staff)
	require.NoError(t, err)
	adminToken, err := GenerateToken(secret, admin)
	require.NoError(t, err)
	foreignToken, err := GenerateToken("another-secret-another-secret-0000", staff)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, get(t, app, "/whoami", "Bearer "+staffToken))
	assert.Equal(t, http.StatusUnauthorized, get(t, app, "/whoami", ""))
	assert.Equal(t, http.StatusUnauthorized, get(t, app, "/whoami", staffToken))
	assert.Equal(t, http.StatusUnauthorized, get(t, app, "/whoami", "Bearer "+foreignToken))

	assert.Equal(t, http.StatusForbidden, get(t, app, "/admin", "Bearer "+staffToken))
	assert.Equal(t, http.StatusNoContent, get(t, app, "/admin", "Bearer "+adminToken))
}

func TestJWTMiddleware_Expired(t *testing.T) {
	claims := &JWTCustomClaims{
		UserID: 3,
		Role:   models.RoleStaff,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, get(t, newApp(), "/whoami", "Bearer "+token))
}

func TestGenerateToken_Claims(t *testing.T) {
	user := &models.User{ID: 9, Name: "Owner", Email: "owner@example.com", Role: models.RoleAdmin}
	raw, err := GenerateToken(secret, user)
	require.NoError(t, err)

	claims := &JWTCustomClaims{}
	_, err = jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	require.NoError(t, err)
	assert.Equal(t, uint(9), claims.UserID)
	assert.Equal(t, models.RoleAdmin, claims.Role)
	assert.WithinDuration(t, time.Now().Add(tokenTTL), claims.ExpiresAt.Time, time.Minute)
}
