// Package store wraps the persisted system of record. Interfaces here are what
// the lifecycle manager consumes; the mongo implementations are one adapter.
package store

import (
	"context"
	"time"

	"github.com/yourorg/teamhub/services/realtime-service/internal/models"
)

// MessageStore is CRUD over chat messages plus the batch read-state
// transition. The store is the system of record; the live path on top of it
// is a latency optimization only.
type MessageStore interface {
	Insert(ctx context.Context, m *models.Message) error
	Get(ctx context.Context, id string) (*models.Message, error)
	UpdateBody(ctx context.Context, id, body string, editedAt time.Time) error
	SoftDelete(ctx context.Context, id string, deletedAt time.Time) error
	// MarkReadUpTo transitions every undeleted message in the chat at or
	// before the cursor timestamp and returns the ids actually changed.
	// Idempotent: a repeat call with the same cursor returns nothing.
	MarkReadUpTo(ctx context.Context, chatType models.ChatType, refID, readerID string, cursor time.Time) ([]string, error)
	History(ctx context.Context, chatType models.ChatType, refID string, limit int64, before time.Time) ([]*models.Message, error)
}

// AttachmentLinker claims pre-uploaded attachments for a message.
type AttachmentLinker interface {
	LinkAttachments(ctx context.Context, messageID string, attachmentIDs []string) error
}

// UserDirectory resolves author display info for outgoing messages.
type UserDirectory interface {
	DisplayInfo(ctx context.Context, userID string) (*models.UserInfo, error)
}

// NotificationStore reads the persisted inbox; this service only counts
// unread entries when pushing unread_count.
type NotificationStore interface {
	CountUnread(ctx context.Context, orgID, userID string) (int64, error)
}
