package domain

import (
	"time"

	"github.com/google/uuid"
)

// MessageStatus is the delivery state of a message. It only ever moves
// forward: sent -> delivered -> seen.
type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusSeen      MessageStatus = "seen"
)

// Rank orders statuses so monotonicity checks are a single comparison.
func (s MessageStatus) Rank() int {
	switch s {
	case StatusSent:
		return 0
	case StatusDelivered:
		return 1
	case StatusSeen:
		return 2
	}
	return -1
}

func (s MessageStatus) Valid() bool {
	return s.Rank() >= 0
}

type MessageKind string

const (
	KindText  MessageKind = "text"
	KindImage MessageKind = "image"
	KindAudio MessageKind = "audio"
)

// Message is one chat message. IDs are generated client-side before the
// write so a sender can reference its own message optimistically; CreatedAt
// is the logical send time, also assigned at submission.
type Message struct {
	ID             uuid.UUID     `json:"id"`
	ConversationID uuid.UUID     `json:"conversation_id"`
	SenderID       uuid.UUID     `json:"sender_id"`
	Text           *string       `json:"text,omitempty"`
	Kind           MessageKind   `json:"kind"`
	Status         MessageStatus `json:"status"`
	MediaURL       *string       `json:"media_url,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}
