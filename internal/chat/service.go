// Package chat orchestrates the message lifecycle: send, edit, delete and the
// batch read transition. Every state change lands in the persisted store
// first; the broadcast afterwards is best-effort.
package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yourorg/teamhub/services/realtime-service/internal/apperr"
	"github.com/yourorg/teamhub/services/realtime-service/internal/hub"
	"github.com/yourorg/teamhub/services/realtime-service/internal/membership"
	"github.com/yourorg/teamhub/services/realtime-service/internal/models"
	"github.com/yourorg/teamhub/services/realtime-service/internal/protocol"
	"github.com/yourorg/teamhub/services/realtime-service/internal/store"
)

// Broadcaster is the slice of the hub the lifecycle needs.
type Broadcaster interface {
	Broadcast(scope hub.Scope, env protocol.Envelope)
}

// EventProducer publishes lifecycle events for downstream workers (search
// indexing, digests). Optional.
type EventProducer interface {
	MessageSent(ctx context.Context, m *models.Message) error
}

type Service struct {
	store    store.MessageStore
	links    store.AttachmentLinker
	users    store.UserDirectory
	members  membership.Checker
	hub      Broadcaster
	producer EventProducer
	log      *zap.SugaredLogger
	now      func() time.Time
}

func NewService(st store.MessageStore, links store.AttachmentLinker, users store.UserDirectory,
	members membership.Checker, b Broadcaster, producer EventProducer, log *zap.SugaredLogger) *Service {
	return &Service{
		store:    st,
		links:    links,
		users:    users,
		members:  members,
		hub:      b,
		producer: producer,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func ScopeFor(chatType models.ChatType, refID string) hub.Scope {
	if chatType == models.ChatDirect {
		return hub.Scope{Kind: hub.ScopeDirectMessage, ID: refID}
	}
	return hub.Scope{Kind: hub.ScopeProjectChat, ID: refID}
}

func (s *Service) Send(ctx context.Context, chatType models.ChatType, refID, authorID string, in protocol.SendMessage) (*models.Message, error) {
	if in.Body == "" && len(in.Attachments) == 0 {
		return nil, apperr.Validation("message requires a body or at least one attachment")
	}
	if len(in.Attachments) > models.MaxAttachments {
		return nil, apperr.Validation(fmt.Sprintf("at most %d attachments per message", models.MaxAttachments))
	}
	if in.ReplyToID != "" && chatType != models.ChatProject {
		return nil, apperr.Validation("reply_to_id is only valid in project chat")
	}

	m := &models.Message{
		ID:          uuid.New().String(),
		ChatType:    chatType,
		RefID:       refID,
		AuthorID:    authorID,
		Body:        in.Body,
		Attachments: in.Attachments,
		ReplyToID:   in.ReplyToID,
		CreatedAt:   s.now(),
	}
	if err := s.store.Insert(ctx, m); err != nil {
		return nil, err
	}
	if err := s.links.LinkAttachments(ctx, m.ID, m.Attachments); err != nil {
		// the message is already persisted; attachment rows reconcile later
		s.log.Warnw("link attachments failed", "message_id", m.ID, "err", err)
	}
	s.enrichAuthor(ctx, m)

	if s.producer != nil {
		if err := s.producer.MessageSent(ctx, m); err != nil {
			s.log.Warnw("message.sent publish failed", "message_id", m.ID, "err", err)
		}
	}
	s.hub.Broadcast(ScopeFor(chatType, refID), protocol.Envelope{
		Type:     protocol.EventMessage,
		Data:     m,
		SenderID: authorID,
	})
	return m, nil
}

func (s *Service) Edit(ctx context.Context, msgID, callerID, body string) (*models.Message, error) {
	m, err := s.store.Get(ctx, msgID)
	if err != nil {
		return nil, err
	}
	if m.AuthorID != callerID {
		return nil, apperr.ErrForbidden
	}
	if m.Deleted() {
		return nil, apperr.Validation("message has been deleted")
	}
	if s.now().Sub(m.CreatedAt) > models.EditWindow {
		return nil, apperr.Validation("edit window has expired")
	}
	if body == "" && len(m.Attachments) == 0 {
		return nil, apperr.Validation("message requires a body or at least one attachment")
	}

	editedAt := s.now()
	if err := s.store.UpdateBody(ctx, msgID, body, editedAt); err != nil {
		return nil, err
	}
	m.Body = body
	m.EditedAt = &editedAt
	s.enrichAuthor(ctx, m)

	s.hub.Broadcast(ScopeFor(m.ChatType, m.RefID), protocol.Envelope{
		Type:     protocol.EventMessageEdited,
		Data:     m,
		SenderID: m.AuthorID,
	})
	return m, nil
}

func (s *Service) Delete(ctx context.Context, msgID, callerID string) error {
	m, err := s.store.Get(ctx, msgID)
	if err != nil {
		return err
	}
	if m.Deleted() {
		return nil
	}
	if m.AuthorID != callerID {
		admin := false
		if m.ChatType == models.ChatProject {
			admin, err = s.members.ProjectAdmin(ctx, callerID, m.RefID)
			if err != nil {
				return err
			}
		}
		if !admin {
			return apperr.ErrForbidden
		}
	}
	if err := s.store.SoftDelete(ctx, msgID, s.now()); err != nil {
		return err
	}
	// the tombstone broadcast carries the id only, never the content
	s.hub.Broadcast(ScopeFor(m.ChatType, m.RefID), protocol.Envelope{
		Type:      protocol.EventMessageDeleted,
		MessageID: msgID,
	})
	return nil
}

// MarkRead advances the caller's read boundary to the cursor message in one
// batch and broadcasts a single read envelope with the ids that actually
// changed. A repeat call with the same cursor changes nothing and stays
// silent.
func (s *Service) MarkRead(ctx context.Context, chatType models.ChatType, refID, callerID, cursorID string) ([]string, error) {
	cursor, err := s.store.Get(ctx, cursorID)
	if err != nil {
		return nil, err
	}
	if cursor.ChatType != chatType || cursor.RefID != refID {
		return nil, apperr.Validation("cursor message does not belong to this chat")
	}
	ids, err := s.store.MarkReadUpTo(ctx, chatType, refID, callerID, cursor.CreatedAt)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	s.hub.Broadcast(ScopeFor(chatType, refID), protocol.Envelope{
		Type:       protocol.EventRead,
		UserID:     callerID,
		MessageID:  cursorID,
		MessageIDs: ids,
	})
	return ids, nil
}

func (s *Service) History(ctx context.Context, chatType models.ChatType, refID string, limit int64, before time.Time) ([]*models.Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.store.History(ctx, chatType, refID, limit, before)
}

func (s *Service) enrichAuthor(ctx context.Context, m *models.Message) {
	info, err := s.users.DisplayInfo(ctx, m.AuthorID)
	if err != nil {
		s.log.Debugw("author lookup failed", "user_id", m.AuthorID, "err", err)
		return
	}
	m.AuthorName = info.Name
	m.AuthorAvatar = info.AvatarURL
}
