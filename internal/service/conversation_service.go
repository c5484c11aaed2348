package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vibely/server/internal/chat"
	"github.com/vibely/server/internal/domain"
	"github.com/vibely/server/internal/repository"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrNotParticipant       = errors.New("you are not a participant of this conversation")
	ErrCannotChatSelf       = errors.New("cannot start a conversation with yourself")
	ErrUserNotFound         = errors.New("user not found")
)

// ProfileWarmer pre-populates the display-profile cache for a set of user
// ids. directory.Directory satisfies it.
type ProfileWarmer interface {
	Warm(ctx context.Context, ids []uuid.UUID) error
}

// ConversationService mediates conversation-level operations. All writes go
// through the chat.Store so change notifications reach live sessions.
type ConversationService struct {
	convRepo repository.ConversationRepository
	msgRepo  repository.MessageRepository
	userRepo repository.UserRepository
	store    chat.Store
	profiles ProfileWarmer
}

func NewConversationService(
	convRepo repository.ConversationRepository,
	msgRepo repository.MessageRepository,
	userRepo repository.UserRepository,
	store chat.Store,
	profiles ProfileWarmer,
) *ConversationService {
	return &ConversationService{
		convRepo: convRepo,
		msgRepo:  msgRepo,
		userRepo: userRepo,
		store:    store,
		profiles: profiles,
	}
}

// Handle describes a conversation target for a client. ID is nil while no
// message has ever been sent: the conversation exists only client-side and
// is persisted atomically with the first send.
type Handle struct {
	ID               *uuid.UUID `json:"id"`
	OtherUserID      uuid.UUID  `json:"other_user_id"`
	OtherUsername    string     `json:"other_username"`
	OtherDisplayName string     `json:"other_display_name"`
	OtherAvatarURL   *string    `json:"other_avatar_url,omitempty"`
}

// Resolve looks up the conversation between two users without creating it.
func (s *ConversationService) Resolve(ctx context.Context, userID, otherUserID uuid.UUID) (*Handle, error) {
	if userID == otherUserID {
		return nil, ErrCannotChatSelf
	}

	other, err := s.userRepo.GetByID(ctx, otherUserID)
	if err != nil {
		return nil, err
	}
	if other == nil {
		return nil, ErrUserNotFound
	}

	handle := &Handle{
		OtherUserID:      other.ID,
		OtherUsername:    other.Username,
		OtherDisplayName: other.DisplayName,
		OtherAvatarURL:   other.AvatarURL,
	}

	u1, u2 := domain.CanonicalPair(userID, otherUserID)
	conv, err := s.convRepo.GetByUsers(ctx, u1, u2)
	if err != nil {
		return nil, err
	}
	if conv != nil {
		id := conv.ID
		handle.ID = &id
	}
	return handle, nil
}

// ListConversations returns the user's conversations, newest activity first,
// with the denormalized last-message preview.
func (s *ConversationService) ListConversations(ctx context.Context, userID uuid.UUID) ([]domain.Conversation, error) {
	convs, err := s.convRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if convs == nil {
		convs = []domain.Conversation{}
	}

	// Warm the profile cache with the peers so realtime surfaces resolve
	// them without per-user queries. Best-effort.
	if s.profiles != nil && len(convs) > 0 {
		ids := make([]uuid.UUID, 0, len(convs))
		for _, c := range convs {
			ids = append(ids, c.OtherUserID)
		}
		if err := s.profiles.Warm(ctx, ids); err != nil {
			log.Printf("conversation: warm profiles: %v", err)
		}
	}
	return convs, nil
}

// SendMessage appends a message on behalf of sender. Used by the HTTP
// surface; websocket clients send through their chat.Session instead.
func (s *ConversationService) SendMessage(ctx context.Context, senderID, conversationID uuid.UUID, text string) (*domain.Message, error) {
	if err := s.checkParticipant(ctx, senderID, conversationID); err != nil {
		return nil, err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, chat.ErrInvalidInput
	}

	msg := &domain.Message{
		ID:        uuid.New(),
		SenderID:  senderID,
		Text:      &text,
		Kind:      domain.KindText,
		Status:    domain.StatusSent,
		CreatedAt: time.Now(),
	}

	if err := s.store.AppendMessage(ctx, conversationID, msg); err != nil {
		return nil, fmt.Errorf("appending message: %w", err)
	}
	return msg, nil
}

type MessageListResponse struct {
	Messages []domain.Message `json:"messages"`
	HasMore  bool             `json:"has_more"`
}

// ListMessages returns a chronological page of messages.
func (s *ConversationService) ListMessages(ctx context.Context, userID, conversationID uuid.UUID, before *uuid.UUID, limit int) (*MessageListResponse, error) {
	if err := s.checkParticipant(ctx, userID, conversationID); err != nil {
		return nil, err
	}

	if limit <= 0 || limit > 100 {
		limit = 50
	}

	messages, err := s.msgRepo.ListByConversationBefore(ctx, conversationID, before, limit+1)
	if err != nil {
		return nil, err
	}

	hasMore := len(messages) > limit
	if hasMore {
		messages = messages[len(messages)-limit:]
	}
	if messages == nil {
		messages = []domain.Message{}
	}

	return &MessageListResponse{Messages: messages, HasMore: hasMore}, nil
}

// DeleteConversation removes the conversation and cascades to its messages.
func (s *ConversationService) DeleteConversation(ctx context.Context, userID, conversationID uuid.UUID) error {
	if err := s.checkParticipant(ctx, userID, conversationID); err != nil {
		return err
	}
	return s.store.DeleteConversation(ctx, conversationID)
}

// PurgeUser removes a user's footprint from the chat graph: their own
// messages everywhere, then every conversation they belong to. Called from
// account deletion.
func (s *ConversationService) PurgeUser(ctx context.Context, userID uuid.UUID) error {
	if err := s.msgRepo.DeleteBySender(ctx, userID); err != nil {
		return fmt.Errorf("deleting sent messages: %w", err)
	}

	ids, err := s.convRepo.ListIDsByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("listing conversations: %w", err)
	}
	for _, id := range ids {
		if err := s.store.DeleteConversation(ctx, id); err != nil {
			return fmt.Errorf("deleting conversation %s: %w", id, err)
		}
	}
	return nil
}

// IsParticipant reports whether the user belongs to the conversation.
func (s *ConversationService) IsParticipant(ctx context.Context, userID, conversationID uuid.UUID) (bool, error) {
	conv, err := s.convRepo.GetByID(ctx, conversationID)
	if err != nil {
		return false, err
	}
	return conv != nil && conv.HasParticipant(userID), nil
}

func (s *ConversationService) checkParticipant(ctx context.Context, userID, conversationID uuid.UUID) error {
	conv, err := s.convRepo.GetByID(ctx, conversationID)
	if err != nil {
		return err
	}
	if conv == nil {
		return ErrConversationNotFound
	}
	if !conv.HasParticipant(userID) {
		return ErrNotParticipant
	}
	return nil
}
