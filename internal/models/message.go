package models

import "time"

// ChatType distinguishes the two message variants sharing one lifecycle.
type ChatType string

const (
	ChatProject ChatType = "project"
	ChatDirect  ChatType = "direct"
)

const MaxAttachments = 5

// EditWindow is how long after creation the author may still edit.
const EditWindow = 24 * time.Hour

// Message is a chat message in either a project chat or a direct
// conversation. Project messages accumulate a reader set and may reply to
// another message; direct messages carry a single read_at on the receiver's
// copy. Deletion is a tombstone: the row stays, the content never leaves the
// store again.
type Message struct {
	ID          string     `json:"id" bson:"_id,omitempty"`
	ChatType    ChatType   `json:"chat_type" bson:"chat_type"`
	RefID       string     `json:"ref_id" bson:"ref_id"`
	AuthorID    string     `json:"author_id" bson:"author_id"`
	Body        string     `json:"body,omitempty" bson:"body,omitempty"`
	Attachments []string   `json:"attachments,omitempty" bson:"attachments,omitempty"`
	ReplyToID   string     `json:"reply_to_id,omitempty" bson:"reply_to_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at" bson:"created_at"`
	EditedAt    *time.Time `json:"edited_at,omitempty" bson:"edited_at,omitempty"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty" bson:"deleted_at,omitempty"`

	// project variant: growing set of reader ids
	ReadBy []string `json:"read_by,omitempty" bson:"read_by,omitempty"`
	// direct variant: read timestamp on the receiver's copy
	ReadAt *time.Time `json:"read_at,omitempty" bson:"read_at,omitempty"`

	// enrichment, filled from the user directory before broadcast
	AuthorName   string `json:"author_name,omitempty" bson:"-"`
	AuthorAvatar string `json:"author_avatar,omitempty" bson:"-"`
}

func (m *Message) Deleted() bool { return m.DeletedAt != nil }

// UserInfo is the author display info attached to outgoing messages.
type UserInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
}
