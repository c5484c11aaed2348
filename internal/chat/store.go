package chat

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/vibely/server/internal/domain"
)

// Snapshot is one delivery from the store's change stream: the full ordered
// message list for the conversation, not a diff. A non-nil Err marks a
// listener-level failure; no further snapshots follow it.
type Snapshot struct {
	Messages []domain.Message
	Err      error
}

// Subscription is a live listener on one conversation's messages.
type Subscription interface {
	// Snapshots re-delivers the complete ordered list on every change.
	Snapshots() <-chan Snapshot
	// Close cancels the listener. Idempotent.
	Close()
}

// Store is the narrow interface the session and reconciler need from the
// backing message store, independent of which database implements it.
type Store interface {
	// Subscribe opens a change stream for a conversation. Every change
	// delivers the full result set ordered by send timestamp ascending,
	// ties broken by message id.
	Subscribe(ctx context.Context, conversationID uuid.UUID) (Subscription, error)

	// AppendMessage persists a new message and refreshes the conversation's
	// last-message summary. Either the message exists afterward or it does
	// not; there is no partial apply.
	AppendMessage(ctx context.Context, conversationID uuid.UUID, msg *domain.Message) error

	// CreateConversation atomically creates a conversation together with its
	// first message. A partial failure must not leave an orphaned
	// conversation with zero messages.
	CreateConversation(ctx context.Context, participants [2]uuid.UUID, first *domain.Message) (uuid.UUID, error)

	// UpdateMessageStatus advances a message's delivery status.
	// Last-writer-wins is acceptable: statuses are monotonic and the
	// reconciler's writes are idempotent.
	UpdateMessageStatus(ctx context.Context, conversationID, messageID uuid.UUID, status domain.MessageStatus) error

	// DeleteConversation removes the conversation and all of its messages.
	// Best-effort cascade; partial failure is logged, not rolled back.
	DeleteConversation(ctx context.Context, conversationID uuid.UUID) error
}

// SortMessages orders a snapshot by send timestamp ascending, message id
// breaking ties so the order is deterministic.
func SortMessages(msgs []domain.Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if !msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
		}
		return msgs[i].ID.String() < msgs[j].ID.String()
	})
}
