package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yourorg/teamhub/services/realtime-service/internal/apperr"
	"github.com/yourorg/teamhub/services/realtime-service/internal/auth"
)

type fakeVerifier struct{}

func (fakeVerifier) Verify(token string) (*auth.Identity, error) {
	if token == "good" {
		return &auth.Identity{UserID: "alice", OrgID: "org1"}, nil
	}
	return nil, auth.ErrInvalidToken
}

func newBearerTestApp() *fiber.App {
	app := fiber.New()
	s := &Server{auth: fakeVerifier{}, log: zap.NewNop().Sugar()}
	app.Get("/protected", s.requireBearer, func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"user_id": identityFrom(c).UserID})
	})
	return app
}

func TestRequireBearer(t *testing.T) {
	app := newBearerTestApp()

	t.Run("missing header", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest("GET", "/protected", nil))
		require.NoError(t, err)
		require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("malformed header", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/protected", nil)
		req.Header.Set("Authorization", "Token abc")
		resp, err := app.Test(req)
		require.NoError(t, err)
		require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("invalid token", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/protected", nil)
		req.Header.Set("Authorization", "Bearer expired")
		resp, err := app.Test(req)
		require.NoError(t, err)
		require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		var out map[string]string
		require.NoError(t, json.Unmarshal(body, &out))
		require.Equal(t, "unauthorized: invalid token", out["error"])
	})

	t.Run("valid token passes identity through", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/protected", nil)
		req.Header.Set("Authorization", "Bearer good")
		resp, err := app.Test(req)
		require.NoError(t, err)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		var out map[string]string
		require.NoError(t, json.Unmarshal(body, &out))
		require.Equal(t, "alice", out["user_id"])
	})
}

func TestStatusMapping(t *testing.T) {
	require.Equal(t, fiber.StatusBadRequest, status(apperr.Validation("bad input")))
	require.Equal(t, fiber.StatusUnauthorized, status(apperr.ErrUnauthorized))
	require.Equal(t, fiber.StatusForbidden, status(apperr.ErrForbidden))
	require.Equal(t, fiber.StatusNotFound, status(apperr.ErrNotFound))
	require.Equal(t, fiber.StatusInternalServerError, status(errors.New("mongo timeout")))
}
