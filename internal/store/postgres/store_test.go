package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/vibely/server/internal/domain"
)

type fakeConvRepo struct {
	createErr error
	existing  *domain.Conversation
	created   []*domain.Conversation
	previews  []uuid.UUID
}

func (f *fakeConvRepo) CreateWithFirstMessage(ctx context.Context, conv *domain.Conversation, first *domain.Message) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, conv)
	return nil
}

func (f *fakeConvRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Conversation, error) {
	return nil, nil
}

func (f *fakeConvRepo) GetByUsers(ctx context.Context, user1ID, user2ID uuid.UUID) (*domain.Conversation, error) {
	if f.existing != nil && f.existing.User1ID == user1ID && f.existing.User2ID == user2ID {
		return f.existing, nil
	}
	return nil, nil
}

func (f *fakeConvRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Conversation, error) {
	return nil, nil
}

func (f *fakeConvRepo) ListIDsByUser(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	return nil, nil
}

func (f *fakeConvRepo) UpdateLastMessage(ctx context.Context, conversationID uuid.UUID, msg *domain.Message) error {
	f.previews = append(f.previews, conversationID)
	return nil
}

func (f *fakeConvRepo) Delete(ctx context.Context, id uuid.UUID) error { return nil }

type fakeMsgRepo struct {
	created []domain.Message
}

func (f *fakeMsgRepo) Create(ctx context.Context, msg *domain.Message) error {
	f.created = append(f.created, *msg)
	return nil
}

func (f *fakeMsgRepo) ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]domain.Message, error) {
	return nil, nil
}

func (f *fakeMsgRepo) ListByConversationBefore(ctx context.Context, conversationID uuid.UUID, before *uuid.UUID, limit int) ([]domain.Message, error) {
	return nil, nil
}

func (f *fakeMsgRepo) AdvanceStatus(ctx context.Context, conversationID, messageID uuid.UUID, status domain.MessageStatus) error {
	return nil
}

func (f *fakeMsgRepo) DeleteBySender(ctx context.Context, senderID uuid.UUID) error { return nil }
func (f *fakeMsgRepo) DeleteByConversation(ctx context.Context, conversationID uuid.UUID) error {
	return nil
}

type fakeChanges struct {
	notified []uuid.UUID
}

func (f *fakeChanges) NotifyConversation(conversationID uuid.UUID) {
	f.notified = append(f.notified, conversationID)
}

func (f *fakeChanges) SubscribeConversation(conversationID uuid.UUID, fn func()) (func(), error) {
	return func() {}, nil
}

func firstMessage(sender uuid.UUID) *domain.Message {
	text := "hello"
	return &domain.Message{
		ID:        uuid.New(),
		SenderID:  sender,
		Text:      &text,
		Kind:      domain.KindText,
		Status:    domain.StatusSent,
		CreatedAt: time.Now(),
	}
}

func TestCreateConversationCanonicalizesPair(t *testing.T) {
	convs := &fakeConvRepo{}
	changes := &fakeChanges{}
	store := NewStore(convs, &fakeMsgRepo{}, changes)

	a := uuid.New()
	b := uuid.New()

	id, err := store.CreateConversation(context.Background(), [2]uuid.UUID{b, a}, firstMessage(b))
	if err != nil {
		t.Fatalf("CreateConversation = %v", err)
	}
	if len(convs.created) != 1 {
		t.Fatalf("created = %d conversations", len(convs.created))
	}
	conv := convs.created[0]
	if conv.ID != id {
		t.Errorf("returned id %s, created %s", id, conv.ID)
	}
	if conv.User1ID.String() >= conv.User2ID.String() {
		t.Errorf("pair not canonical: %s >= %s", conv.User1ID, conv.User2ID)
	}
	if len(changes.notified) != 1 || changes.notified[0] != id {
		t.Errorf("notifications = %v", changes.notified)
	}
}

// A first send racing the peer's (or a retry against an already-created
// pair) hits the unique constraint; the store must adopt the existing
// conversation and append there instead of failing forever.
func TestCreateConversationAdoptsExistingPair(t *testing.T) {
	alice := uuid.New()
	bob := uuid.New()
	u1, u2 := domain.CanonicalPair(alice, bob)
	existing := &domain.Conversation{ID: uuid.New(), User1ID: u1, User2ID: u2}

	convs := &fakeConvRepo{
		createErr: &pgconn.PgError{Code: "23505", ConstraintName: "conversations_pair_unique"},
		existing:  existing,
	}
	msgs := &fakeMsgRepo{}
	changes := &fakeChanges{}
	store := NewStore(convs, msgs, changes)

	first := firstMessage(alice)
	id, err := store.CreateConversation(context.Background(), [2]uuid.UUID{alice, bob}, first)
	if err != nil {
		t.Fatalf("CreateConversation = %v", err)
	}
	if id != existing.ID {
		t.Errorf("id = %s, want the existing conversation %s", id, existing.ID)
	}
	if len(msgs.created) != 1 || msgs.created[0].ConversationID != existing.ID {
		t.Errorf("message not appended to existing conversation: %+v", msgs.created)
	}
	if len(convs.previews) != 1 || convs.previews[0] != existing.ID {
		t.Errorf("last-message preview not refreshed: %v", convs.previews)
	}
	if len(changes.notified) == 0 || changes.notified[0] != existing.ID {
		t.Errorf("notifications = %v", changes.notified)
	}
}

func TestCreateConversationOtherErrorsStillFail(t *testing.T) {
	boom := errors.New("connection refused")
	convs := &fakeConvRepo{createErr: boom}
	store := NewStore(convs, &fakeMsgRepo{}, &fakeChanges{})

	_, err := store.CreateConversation(context.Background(), [2]uuid.UUID{uuid.New(), uuid.New()}, firstMessage(uuid.New()))
	if !errors.Is(err, boom) {
		t.Fatalf("CreateConversation = %v, want wrapped %v", err, boom)
	}
}
