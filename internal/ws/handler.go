package ws

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/yourorg/teamhub/services/realtime-service/internal/apperr"
	"github.com/yourorg/teamhub/services/realtime-service/internal/auth"
	"github.com/yourorg/teamhub/services/realtime-service/internal/chat"
	"github.com/yourorg/teamhub/services/realtime-service/internal/config"
	"github.com/yourorg/teamhub/services/realtime-service/internal/hub"
	"github.com/yourorg/teamhub/services/realtime-service/internal/membership"
	"github.com/yourorg/teamhub/services/realtime-service/internal/models"
	"github.com/yourorg/teamhub/services/realtime-service/internal/protocol"
	"github.com/yourorg/teamhub/services/realtime-service/internal/typing"
)

// Close codes distinguish the failure category so clients can branch on them
// over the same channel instead of failing the upgrade.
const (
	CloseAuthenticationFailure = 4001
	CloseAuthorizationFailure  = 4003
)

type Handler struct {
	hub     *hub.Hub
	auth    auth.Verifier
	members membership.Checker
	chat    *chat.Service
	typing  *typing.Manager
	cfg     *config.Config
	log     *zap.SugaredLogger
}

func NewHandler(h *hub.Hub, av auth.Verifier, mc membership.Checker,
	cs *chat.Service, tm *typing.Manager, cfg *config.Config, log *zap.SugaredLogger) *Handler {
	return &Handler{hub: h, auth: av, members: mc, chat: cs, typing: tm, cfg: cfg, log: log}
}

// Upgrade gates the route so plain HTTP requests get 426 instead of hanging.
func Upgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

func (h *Handler) ProjectChat() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		h.serve(conn, hub.ScopeProjectChat, conn.Params("id"))
	})
}

func (h *Handler) DirectMessage() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		h.serve(conn, hub.ScopeDirectMessage, conn.Params("id"))
	})
}

func (h *Handler) Inbox() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		h.serve(conn, hub.ScopeInbox, "")
	})
}

func (h *Handler) serve(conn *websocket.Conn, kind hub.ScopeKind, scopeID string) {
	ctx := context.Background()
	ident, scope, closeCode, reason := h.handshake(ctx, conn.Query("token"), kind, scopeID)
	if closeCode != 0 {
		h.reject(conn, closeCode, reason)
		return
	}

	client := NewClient(conn, ident.UserID, h.cfg.WS.SendBufferSize)
	h.hub.Connect(scope, client)
	h.log.Infow("connection opened", "user_id", ident.UserID, "scope_kind", kind, "scope_id", scope.ID)

	go client.WritePump(h.cfg.PingInterval, h.cfg.WriteDeadline)
	h.readLoop(ctx, conn, client, ident, kind, scopeID)

	h.hub.Disconnect(client)
	client.Close()
	h.log.Infow("connection closed", "user_id", ident.UserID, "scope_kind", kind, "scope_id", scope.ID)
}

// handshake verifies the bearer credential, then scope membership, and
// resolves the scope the connection registers under. A nonzero close code
// means the connection must be rejected with that code after a single error
// frame carrying the reason.
func (h *Handler) handshake(ctx context.Context, token string, kind hub.ScopeKind, scopeID string) (*auth.Identity, hub.Scope, int, string) {
	ident, err := h.auth.Verify(token)
	if err != nil {
		return nil, hub.Scope{}, CloseAuthenticationFailure, "authentication failed"
	}
	scope := hub.Scope{Kind: kind, ID: scopeID}
	if kind == hub.ScopeInbox {
		scope = hub.InboxScope(ident.OrgID, ident.UserID)
	}
	ok, err := h.authorized(ctx, ident, kind, scopeID)
	if err != nil {
		h.log.Errorw("membership check failed", "user_id", ident.UserID, "scope_kind", kind, "err", err)
		return nil, hub.Scope{}, CloseAuthorizationFailure, "authorization unavailable"
	}
	if !ok {
		return nil, hub.Scope{}, CloseAuthorizationFailure, "not a member of this scope"
	}
	return ident, scope, 0, ""
}

// reject completes the upgrade, sends a single error frame, then closes with
// the distinguishing code.
func (h *Handler) reject(conn *websocket.Conn, code int, msg string) {
	_ = conn.WriteJSON(protocol.ErrorEnvelope(msg))
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, msg), time.Now().Add(time.Second))
	_ = conn.Close()
}

func (h *Handler) authorized(ctx context.Context, ident *auth.Identity, kind hub.ScopeKind, scopeID string) (bool, error) {
	switch kind {
	case hub.ScopeProjectChat:
		return h.members.ProjectMember(ctx, ident.UserID, scopeID)
	case hub.ScopeDirectMessage:
		return h.members.ConversationMember(ctx, ident.UserID, scopeID)
	case hub.ScopeInbox:
		return h.members.OrgMember(ctx, ident.UserID, ident.OrgID)
	}
	return false, nil
}

// readLoop decodes one frame at a time and dispatches it. Malformed input and
// handler errors answer with an error frame and keep the loop running; only a
// transport-level read error ends it.
func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn, client *Client, ident *auth.Identity, kind hub.ScopeKind, scopeID string) {
	conn.SetReadLimit(h.cfg.WS.MaxMessageSizeBytes)
	_ = conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		frame, err := protocol.DecodeInbound(data)
		if err != nil {
			_ = client.Enqueue(protocol.ErrorEnvelope("malformed frame"))
			continue
		}
		if err := h.dispatch(ctx, frame, ident, kind, scopeID); err != nil {
			_ = client.Enqueue(protocol.ErrorEnvelope(clientMessage(err)))
		}
	}
}

func (h *Handler) dispatch(ctx context.Context, frame protocol.Inbound, ident *auth.Identity, kind hub.ScopeKind, scopeID string) error {
	if kind == hub.ScopeInbox {
		return apperr.Validation("inbox connections are receive-only")
	}
	chatType := models.ChatProject
	if kind == hub.ScopeDirectMessage {
		chatType = models.ChatDirect
	}
	switch f := frame.(type) {
	case protocol.SendMessage:
		_, err := h.chat.Send(ctx, chatType, scopeID, ident.UserID, f)
		return err
	case protocol.Typing:
		if f.IsTyping {
			return h.typing.Start(ctx, chatType, scopeID, ident.UserID)
		}
		return h.typing.Stop(ctx, chatType, scopeID, ident.UserID)
	case protocol.MarkRead:
		_, err := h.chat.MarkRead(ctx, chatType, scopeID, ident.UserID, f.MessageID)
		return err
	}
	return protocol.ErrMalformedFrame
}

// clientMessage maps domain errors to the text sent over the wire without
// leaking internals.
func clientMessage(err error) string {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		return err.Error()
	case errors.Is(err, apperr.ErrForbidden):
		return "forbidden"
	case errors.Is(err, apperr.ErrNotFound):
		return "message not found"
	default:
		return "internal error"
	}
}
