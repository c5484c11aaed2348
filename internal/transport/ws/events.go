package ws

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/vibely/server/internal/domain"
)

// Event types - Client → Server
const (
	EventTypeSubscribe   = "conversation.subscribe"
	EventTypeUnsubscribe = "conversation.unsubscribe"
	EventTypeFocus       = "conversation.focus"
	EventTypeBlur        = "conversation.blur"
	EventTypeMessageSend = "message.send"
	EventTypeTypingStart = "typing.start"
	EventTypeTypingStop  = "typing.stop"
	EventTypePing        = "ping"
)

// Event types - Server → Client
const (
	EventTypeSnapshot            = "conversation.snapshot"
	EventTypeConversationCreated = "conversation.created"
	EventTypeConversationError   = "conversation.error"
	EventTypeTyping              = "typing"
	EventTypePresence            = "presence"
	EventTypePong                = "pong"
	EventTypeError               = "error"
)

// Event is the base envelope for all WebSocket messages.
type Event struct {
	Type           string          `json:"type"`
	ConversationID *uuid.UUID      `json:"conversation_id,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	Timestamp      int64           `json:"ts,omitempty"`
}

// --- Client → Server payloads ---

type ConversationPayload struct {
	ConversationID uuid.UUID `json:"conversation_id"`
}

// MessageSendPayload targets either an existing conversation or, for the
// very first message to a peer, the peer directly.
type MessageSendPayload struct {
	ConversationID *uuid.UUID `json:"conversation_id,omitempty"`
	OtherUserID    *uuid.UUID `json:"other_user_id,omitempty"`
	Text           string     `json:"text"`
}

// --- Server → Client payloads ---

// SnapshotPayload carries the full reconciled ordered message list, exactly
// as the viewer's session sees it after each change.
type SnapshotPayload struct {
	Messages []domain.Message `json:"messages"`
}

type ConversationCreatedPayload struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	OtherUserID    uuid.UUID `json:"other_user_id"`
}

type ConversationErrorPayload struct {
	Message string `json:"message"`
}

type TypingPayload struct {
	UserID      uuid.UUID `json:"user_id"`
	DisplayName string    `json:"display_name"`
}

type PresencePayload struct {
	UserID uuid.UUID `json:"user_id"`
	Status string    `json:"status"` // "online" | "offline"
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewEvent creates a server→client event with the current timestamp.
func NewEvent(eventType string, conversationID *uuid.UUID, payload any) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Event{
		Type:           eventType,
		ConversationID: conversationID,
		Payload:        data,
		Timestamp:      time.Now().Unix(),
	}, nil
}
