package domain

import (
	"time"

	"github.com/google/uuid"
)

// Conversation is a two-party chat. User1ID < User2ID lexicographically
// (canonical order for the uniqueness constraint). The last-message fields
// are denormalized from the newest message for list previews.
type Conversation struct {
	ID        uuid.UUID `json:"id"`
	User1ID   uuid.UUID `json:"user1_id"`
	User2ID   uuid.UUID `json:"user2_id"`
	CreatedAt time.Time `json:"created_at"`

	LastMessageText     *string    `json:"last_message_text,omitempty"`
	LastMessageSenderID *uuid.UUID `json:"last_message_sender_id,omitempty"`
	LastMessageAt       *time.Time `json:"last_message_at,omitempty"`

	// Joined fields for frontend
	OtherUserID          uuid.UUID `json:"other_user_id"`
	OtherUserUsername    string    `json:"other_username"`
	OtherUserDisplayName string    `json:"other_display_name"`
	OtherUserAvatarURL   *string   `json:"other_avatar_url,omitempty"`
}

// HasParticipant reports whether id is one of the two members.
func (c *Conversation) HasParticipant(id uuid.UUID) bool {
	return c.User1ID == id || c.User2ID == id
}

// CanonicalPair sorts two user ids into the stored user1 < user2 order.
func CanonicalPair(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if a.String() > b.String() {
		return b, a
	}
	return a, b
}
