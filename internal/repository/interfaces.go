package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/vibely/server/internal/domain"
)

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.User, error)
	UpdateAvatar(ctx context.Context, id uuid.UUID, avatarURL, avatarPublicID *string) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type ConversationRepository interface {
	// CreateWithFirstMessage persists the conversation and its first message
	// in one transaction. Neither exists on failure.
	CreateWithFirstMessage(ctx context.Context, conv *domain.Conversation, first *domain.Message) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Conversation, error)
	GetByUsers(ctx context.Context, user1ID, user2ID uuid.UUID) (*domain.Conversation, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Conversation, error)
	ListIDsByUser(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
	UpdateLastMessage(ctx context.Context, conversationID uuid.UUID, msg *domain.Message) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type MessageRepository interface {
	Create(ctx context.Context, msg *domain.Message) error
	// ListByConversation returns the full ordered list, ascending by send
	// time with id as the tie-breaker.
	ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]domain.Message, error)
	ListByConversationBefore(ctx context.Context, conversationID uuid.UUID, before *uuid.UUID, limit int) ([]domain.Message, error)
	// AdvanceStatus moves a message's status forward. Regressions are
	// silently ignored so racing idempotent writers stay monotonic.
	AdvanceStatus(ctx context.Context, conversationID, messageID uuid.UUID, status domain.MessageStatus) error
	DeleteBySender(ctx context.Context, senderID uuid.UUID) error
	DeleteByConversation(ctx context.Context, conversationID uuid.UUID) error
}
