package api

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/yourorg/teamhub/services/realtime-service/internal/apperr"
	"github.com/yourorg/teamhub/services/realtime-service/internal/auth"
	"github.com/yourorg/teamhub/services/realtime-service/internal/chat"
	"github.com/yourorg/teamhub/services/realtime-service/internal/membership"
	"github.com/yourorg/teamhub/services/realtime-service/internal/metrics"
	"github.com/yourorg/teamhub/services/realtime-service/internal/ws"
)

type Server struct {
	chat    *chat.Service
	auth    auth.Verifier
	members membership.Checker
	log     *zap.SugaredLogger
}

// New wires the fiber app: websocket entry points, the REST echoes of the
// message lifecycle, health and metrics.
func New(wsh *ws.Handler, cs *chat.Service, av auth.Verifier, mc membership.Checker, log *zap.SugaredLogger) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(recover.New())
	app.Use(fiberlogger.New())

	s := &Server{chat: cs, auth: av, members: mc, log: log}

	app.Get("/v1/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	app.Use("/v1/ws", ws.Upgrade)
	app.Get("/v1/ws/project/:id", wsh.ProjectChat())
	app.Get("/v1/ws/dm/:id", wsh.DirectMessage())
	app.Get("/v1/ws/inbox", wsh.Inbox())

	api := app.Group("/v1", s.requireBearer)
	api.Post("/chats/:chat_type/:id/messages", s.sendMessage)
	api.Get("/chats/:chat_type/:id/messages", s.history)
	api.Post("/chats/:chat_type/:id/read", s.markRead)
	api.Patch("/messages/:id", s.editMessage)
	api.Delete("/messages/:id", s.deleteMessage)

	return app
}

// requireBearer verifies the Authorization header and stashes the identity.
func (s *Server) requireBearer(c *fiber.Ctx) error {
	header := c.Get("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return fail(c, fmt.Errorf("%w: missing bearer token", apperr.ErrUnauthorized))
	}
	ident, err := s.auth.Verify(parts[1])
	if err != nil {
		return fail(c, fmt.Errorf("%w: invalid token", apperr.ErrUnauthorized))
	}
	c.Locals("identity", ident)
	return c.Next()
}

func identityFrom(c *fiber.Ctx) *auth.Identity {
	ident, _ := c.Locals("identity").(*auth.Identity)
	return ident
}

func status(err error) int {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, apperr.ErrUnauthorized):
		return fiber.StatusUnauthorized
	case errors.Is(err, apperr.ErrForbidden):
		return fiber.StatusForbidden
	case errors.Is(err, apperr.ErrNotFound):
		return fiber.StatusNotFound
	default:
		return fiber.StatusInternalServerError
	}
}

func fail(c *fiber.Ctx, err error) error {
	code := status(err)
	msg := err.Error()
	if code == fiber.StatusInternalServerError {
		msg = "internal error"
	}
	return c.Status(code).JSON(fiber.Map{"error": msg})
}
