package api

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/yourorg/teamhub/services/realtime-service/internal/apperr"
	"github.com/yourorg/teamhub/services/realtime-service/internal/models"
	"github.com/yourorg/teamhub/services/realtime-service/internal/protocol"
)

func chatTypeParam(c *fiber.Ctx) (models.ChatType, error) {
	switch c.Params("chat_type") {
	case "project":
		return models.ChatProject, nil
	case "dm":
		return models.ChatDirect, nil
	}
	return "", apperr.Validation("chat_type must be project or dm")
}

// requireChatMember gates the chat-scoped REST routes the way the websocket
// handshake does.
func (s *Server) requireChatMember(c *fiber.Ctx, chatType models.ChatType, refID string) error {
	ident := identityFrom(c)
	var ok bool
	var err error
	if chatType == models.ChatProject {
		ok, err = s.members.ProjectMember(c.Context(), ident.UserID, refID)
	} else {
		ok, err = s.members.ConversationMember(c.Context(), ident.UserID, refID)
	}
	if err != nil {
		return err
	}
	if !ok {
		return apperr.ErrForbidden
	}
	return nil
}

func (s *Server) sendMessage(c *fiber.Ctx) error {
	chatType, err := chatTypeParam(c)
	if err != nil {
		return fail(c, err)
	}
	refID := c.Params("id")
	if err := s.requireChatMember(c, chatType, refID); err != nil {
		return fail(c, err)
	}
	var in protocol.SendMessage
	if err := c.BodyParser(&in); err != nil {
		return fail(c, apperr.Validation("invalid request body"))
	}
	m, err := s.chat.Send(c.Context(), chatType, refID, identityFrom(c).UserID, in)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(m)
}

func (s *Server) history(c *fiber.Ctx) error {
	chatType, err := chatTypeParam(c)
	if err != nil {
		return fail(c, err)
	}
	refID := c.Params("id")
	if err := s.requireChatMember(c, chatType, refID); err != nil {
		return fail(c, err)
	}
	var before time.Time
	if v := c.Query("before"); v != "" {
		before, err = time.Parse(time.RFC3339, v)
		if err != nil {
			return fail(c, apperr.Validation("before must be RFC3339"))
		}
	}
	msgs, err := s.chat.History(c.Context(), chatType, refID, int64(c.QueryInt("limit", 50)), before)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"data": msgs})
}

func (s *Server) markRead(c *fiber.Ctx) error {
	chatType, err := chatTypeParam(c)
	if err != nil {
		return fail(c, err)
	}
	refID := c.Params("id")
	if err := s.requireChatMember(c, chatType, refID); err != nil {
		return fail(c, err)
	}
	var in struct {
		MessageID string `json:"message_id"`
	}
	if err := c.BodyParser(&in); err != nil || in.MessageID == "" {
		return fail(c, apperr.Validation("message_id is required"))
	}
	ids, err := s.chat.MarkRead(c.Context(), chatType, refID, identityFrom(c).UserID, in.MessageID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"message_ids": ids})
}

func (s *Server) editMessage(c *fiber.Ctx) error {
	var in struct {
		Body string `json:"body"`
	}
	if err := c.BodyParser(&in); err != nil {
		return fail(c, apperr.Validation("invalid request body"))
	}
	m, err := s.chat.Edit(c.Context(), c.Params("id"), identityFrom(c).UserID, in.Body)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(m)
}

func (s *Server) deleteMessage(c *fiber.Ctx) error {
	if err := s.chat.Delete(c.Context(), c.Params("id"), identityFrom(c).UserID); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
