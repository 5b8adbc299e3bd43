// Package protocol defines the wire format exchanged over websocket
// connections: the closed set of inbound frame kinds clients may send and the
// outbound envelope the server broadcasts. Decoding is total over the known
// kinds; anything else is ErrMalformedFrame.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrMalformedFrame = errors.New("malformed frame")

// EventType enumerates every outbound frame kind.
type EventType string

const (
	EventMessage        EventType = "message"
	EventMessageEdited  EventType = "message_edited"
	EventMessageDeleted EventType = "message_deleted"
	EventTyping         EventType = "typing"
	EventRead           EventType = "read"
	EventError          EventType = "error"
	EventInboxNew       EventType = "inbox_new"
	EventInboxRead      EventType = "inbox_read"
	EventInboxArchived  EventType = "inbox_archived"
	EventInboxDeleted   EventType = "inbox_deleted"
	EventUnreadCount    EventType = "unread_count"
)

// Ephemeral reports whether the event kind is excluded from the sender's own
// connections instead of being personalized.
func (t EventType) Ephemeral() bool { return t == EventTyping }

// messageFamily frames carry sender_id and a per-recipient is_own_message.
func (t EventType) messageFamily() bool {
	return t == EventMessage || t == EventMessageEdited
}

// inboxEvent reports whether the kind may be relayed over the notification
// bridge into the inbox scope.
func (t EventType) inboxEvent() bool {
	switch t {
	case EventInboxNew, EventInboxRead, EventInboxArchived, EventInboxDeleted:
		return true
	}
	return false
}

// Envelope is the standard wire format for outbound frames. Fields are
// populated per event kind; omitempty keeps frames minimal.
type Envelope struct {
	Type         EventType `json:"type"`
	Data         any       `json:"data,omitempty"`
	MessageID    string    `json:"message_id,omitempty"`
	MessageIDs   []string  `json:"message_ids,omitempty"`
	UserID       string    `json:"user_id,omitempty"`
	SenderID     string    `json:"sender_id,omitempty"`
	IsTyping     *bool     `json:"is_typing,omitempty"`
	IsOwnMessage *bool     `json:"is_own_message,omitempty"`
	Count        *int      `json:"count,omitempty"`
	Message      string    `json:"message,omitempty"`
}

// Personalize stamps a copy of the envelope for one recipient. Message-family
// frames gain is_own_message; everything else passes through untouched.
func (e Envelope) Personalize(recipientID string) Envelope {
	if e.Type.messageFamily() && e.SenderID != "" {
		own := recipientID == e.SenderID
		e.IsOwnMessage = &own
	}
	return e
}

func ErrorEnvelope(msg string) Envelope {
	return Envelope{Type: EventError, Message: msg}
}

// InboxEnvelope builds the envelope relayed for a bridge event, or an error
// for event types that never cross the bridge.
func InboxEnvelope(eventType string, payload json.RawMessage) (Envelope, error) {
	t := EventType(eventType)
	if !t.inboxEvent() {
		return Envelope{}, fmt.Errorf("%w: not an inbox event type %q", ErrMalformedFrame, eventType)
	}
	var data any
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &data); err != nil {
			return Envelope{}, fmt.Errorf("%w: inbox payload: %v", ErrMalformedFrame, err)
		}
	}
	return Envelope{Type: t, Data: data}, nil
}

// Inbound is the closed union of frames a client may send.
type Inbound interface{ isInbound() }

type SendMessage struct {
	Body        string   `json:"body"`
	Attachments []string `json:"attachments"`
	ReplyToID   string   `json:"reply_to_id"`
}

type Typing struct {
	IsTyping bool `json:"is_typing"`
}

type MarkRead struct {
	MessageID string `json:"message_id"`
}

func (SendMessage) isInbound() {}
func (Typing) isInbound()      {}
func (MarkRead) isInbound()    {}

type inboundFrame struct {
	Type        string   `json:"type"`
	Body        string   `json:"body"`
	Attachments []string `json:"attachments"`
	ReplyToID   string   `json:"reply_to_id"`
	IsTyping    bool     `json:"is_typing"`
	MessageID   string   `json:"message_id"`
}

// DecodeInbound parses one client frame into its typed form.
func DecodeInbound(data []byte) (Inbound, error) {
	var f inboundFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	switch f.Type {
	case "message":
		return SendMessage{Body: f.Body, Attachments: f.Attachments, ReplyToID: f.ReplyToID}, nil
	case "typing":
		return Typing{IsTyping: f.IsTyping}, nil
	case "read":
		if f.MessageID == "" {
			return nil, fmt.Errorf("%w: read frame missing message_id", ErrMalformedFrame)
		}
		return MarkRead{MessageID: f.MessageID}, nil
	default:
		return nil, fmt.Errorf("%w: unknown frame type %q", ErrMalformedFrame, f.Type)
	}
}
