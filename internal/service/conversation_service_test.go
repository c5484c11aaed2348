package service

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/vibely/server/internal/chat"
	"github.com/vibely/server/internal/domain"
)

type fakeConvRepo struct {
	convs map[uuid.UUID]*domain.Conversation
}

func (f *fakeConvRepo) CreateWithFirstMessage(ctx context.Context, conv *domain.Conversation, first *domain.Message) error {
	f.convs[conv.ID] = conv
	return nil
}

func (f *fakeConvRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Conversation, error) {
	return f.convs[id], nil
}

func (f *fakeConvRepo) GetByUsers(ctx context.Context, user1ID, user2ID uuid.UUID) (*domain.Conversation, error) {
	for _, c := range f.convs {
		if c.User1ID == user1ID && c.User2ID == user2ID {
			return c, nil
		}
	}
	return nil, nil
}

func (f *fakeConvRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Conversation, error) {
	var out []domain.Conversation
	for _, c := range f.convs {
		if c.HasParticipant(userID) {
			cc := *c
			if cc.User1ID == userID {
				cc.OtherUserID = cc.User2ID
			} else {
				cc.OtherUserID = cc.User1ID
			}
			out = append(out, cc)
		}
	}
	return out, nil
}

func (f *fakeConvRepo) ListIDsByUser(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	var out []uuid.UUID
	for id, c := range f.convs {
		if c.HasParticipant(userID) {
			out = append(out, id)
		}
	}
	return out, nil
}

func (f *fakeConvRepo) UpdateLastMessage(ctx context.Context, conversationID uuid.UUID, msg *domain.Message) error {
	return nil
}

func (f *fakeConvRepo) Delete(ctx context.Context, id uuid.UUID) error {
	delete(f.convs, id)
	return nil
}

type fakeMsgRepo struct {
	byConv        map[uuid.UUID][]domain.Message
	deletedSender *uuid.UUID
}

func (f *fakeMsgRepo) Create(ctx context.Context, msg *domain.Message) error {
	f.byConv[msg.ConversationID] = append(f.byConv[msg.ConversationID], *msg)
	return nil
}

func (f *fakeMsgRepo) ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]domain.Message, error) {
	return f.byConv[conversationID], nil
}

// ListByConversationBefore mirrors the SQL row comparison: everything
// strictly before the cursor message in (created_at, id) order.
func (f *fakeMsgRepo) ListByConversationBefore(ctx context.Context, conversationID uuid.UUID, before *uuid.UUID, limit int) ([]domain.Message, error) {
	msgs := f.byConv[conversationID]
	if before != nil {
		cut := len(msgs)
		for i, m := range msgs {
			if m.ID == *before {
				cut = i
				break
			}
		}
		msgs = msgs[:cut]
	}
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

func (f *fakeMsgRepo) AdvanceStatus(ctx context.Context, conversationID, messageID uuid.UUID, status domain.MessageStatus) error {
	return nil
}

func (f *fakeMsgRepo) DeleteBySender(ctx context.Context, senderID uuid.UUID) error {
	id := senderID
	f.deletedSender = &id
	return nil
}

func (f *fakeMsgRepo) DeleteByConversation(ctx context.Context, conversationID uuid.UUID) error {
	delete(f.byConv, conversationID)
	return nil
}

// chatStoreStub records writes; subscriptions are not exercised here.
type chatStoreStub struct {
	appended []domain.Message
	deleted  []uuid.UUID
}

func (s *chatStoreStub) Subscribe(ctx context.Context, conversationID uuid.UUID) (chat.Subscription, error) {
	return nil, errors.New("not implemented")
}

func (s *chatStoreStub) AppendMessage(ctx context.Context, conversationID uuid.UUID, msg *domain.Message) error {
	m := *msg
	m.ConversationID = conversationID
	s.appended = append(s.appended, m)
	return nil
}

func (s *chatStoreStub) CreateConversation(ctx context.Context, participants [2]uuid.UUID, first *domain.Message) (uuid.UUID, error) {
	return uuid.Nil, errors.New("not implemented")
}

func (s *chatStoreStub) UpdateMessageStatus(ctx context.Context, conversationID, messageID uuid.UUID, status domain.MessageStatus) error {
	return nil
}

func (s *chatStoreStub) DeleteConversation(ctx context.Context, conversationID uuid.UUID) error {
	s.deleted = append(s.deleted, conversationID)
	return nil
}

type fixture struct {
	svc      *ConversationService
	convRepo *fakeConvRepo
	msgRepo  *fakeMsgRepo
	users    *fakeUsers
	store    *chatStoreStub
	warmer   *fakeWarmer
}

type fakeWarmer struct {
	warmed [][]uuid.UUID
}

func (f *fakeWarmer) Warm(ctx context.Context, ids []uuid.UUID) error {
	f.warmed = append(f.warmed, ids)
	return nil
}

type fakeUsers struct {
	byID map[uuid.UUID]*domain.User
}

func (f *fakeUsers) Create(ctx context.Context, u *domain.User) error { return nil }
func (f *fakeUsers) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return f.byID[id], nil
}
func (f *fakeUsers) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return nil, nil
}
func (f *fakeUsers) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return nil, nil
}
func (f *fakeUsers) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.User, error) {
	return nil, nil
}
func (f *fakeUsers) UpdateAvatar(ctx context.Context, id uuid.UUID, avatarURL, avatarPublicID *string) error {
	return nil
}
func (f *fakeUsers) Delete(ctx context.Context, id uuid.UUID) error {
	delete(f.byID, id)
	return nil
}

func newFixture() *fixture {
	convRepo := &fakeConvRepo{convs: make(map[uuid.UUID]*domain.Conversation)}
	msgRepo := &fakeMsgRepo{byConv: make(map[uuid.UUID][]domain.Message)}
	users := &fakeUsers{byID: make(map[uuid.UUID]*domain.User)}
	store := &chatStoreStub{}
	warmer := &fakeWarmer{}
	return &fixture{
		svc:      NewConversationService(convRepo, msgRepo, users, store, warmer),
		convRepo: convRepo,
		msgRepo:  msgRepo,
		users:    users,
		store:    store,
		warmer:   warmer,
	}
}

func (f *fixture) addUser(username string) uuid.UUID {
	u := &domain.User{ID: uuid.New(), Username: username, DisplayName: username}
	f.users.byID[u.ID] = u
	return u.ID
}

func (f *fixture) addConversation(a, b uuid.UUID) uuid.UUID {
	u1, u2 := domain.CanonicalPair(a, b)
	conv := &domain.Conversation{ID: uuid.New(), User1ID: u1, User2ID: u2}
	f.convRepo.convs[conv.ID] = conv
	return conv.ID
}

func TestResolveWithoutExistingConversation(t *testing.T) {
	f := newFixture()
	alice := f.addUser("alice")
	bob := f.addUser("bob")

	h, err := f.svc.Resolve(context.Background(), alice, bob)
	if err != nil {
		t.Fatalf("Resolve = %v", err)
	}
	if h.ID != nil {
		t.Error("handle has an id before any message was sent")
	}
	if h.OtherUserID != bob || h.OtherUsername != "bob" {
		t.Errorf("handle = %+v", h)
	}
}

func TestResolveExistingConversation(t *testing.T) {
	f := newFixture()
	alice := f.addUser("alice")
	bob := f.addUser("bob")
	convID := f.addConversation(alice, bob)

	// Same conversation regardless of who asks.
	for _, viewer := range []uuid.UUID{alice, bob} {
		other := bob
		if viewer == bob {
			other = alice
		}
		h, err := f.svc.Resolve(context.Background(), viewer, other)
		if err != nil {
			t.Fatalf("Resolve = %v", err)
		}
		if h.ID == nil || *h.ID != convID {
			t.Errorf("handle id = %v, want %s", h.ID, convID)
		}
	}
}

func TestResolveSelfAndUnknown(t *testing.T) {
	f := newFixture()
	alice := f.addUser("alice")

	if _, err := f.svc.Resolve(context.Background(), alice, alice); !errors.Is(err, ErrCannotChatSelf) {
		t.Errorf("Resolve self = %v, want ErrCannotChatSelf", err)
	}
	if _, err := f.svc.Resolve(context.Background(), alice, uuid.New()); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Resolve unknown = %v, want ErrUserNotFound", err)
	}
}

func TestSendMessageChecksParticipant(t *testing.T) {
	f := newFixture()
	alice := f.addUser("alice")
	bob := f.addUser("bob")
	mallory := f.addUser("mallory")
	convID := f.addConversation(alice, bob)

	if _, err := f.svc.SendMessage(context.Background(), mallory, convID, "hi"); !errors.Is(err, ErrNotParticipant) {
		t.Errorf("outsider SendMessage = %v, want ErrNotParticipant", err)
	}
	if _, err := f.svc.SendMessage(context.Background(), alice, uuid.New(), "hi"); !errors.Is(err, ErrConversationNotFound) {
		t.Errorf("SendMessage to unknown conversation = %v, want ErrConversationNotFound", err)
	}
	if _, err := f.svc.SendMessage(context.Background(), alice, convID, "  "); !errors.Is(err, chat.ErrInvalidInput) {
		t.Errorf("whitespace SendMessage = %v, want chat.ErrInvalidInput", err)
	}
	if len(f.store.appended) != 0 {
		t.Fatalf("store writes = %d before any valid send", len(f.store.appended))
	}

	msg, err := f.svc.SendMessage(context.Background(), alice, convID, " hello ")
	if err != nil {
		t.Fatalf("SendMessage = %v", err)
	}
	if *msg.Text != "hello" {
		t.Errorf("text = %q, want trimmed", *msg.Text)
	}
	if msg.Status != domain.StatusSent {
		t.Errorf("status = %s, want %s", msg.Status, domain.StatusSent)
	}
	if len(f.store.appended) != 1 {
		t.Errorf("store writes = %d, want 1", len(f.store.appended))
	}
}

func TestListConversationsWarmsProfiles(t *testing.T) {
	f := newFixture()
	alice := f.addUser("alice")
	bob := f.addUser("bob")
	carol := f.addUser("carol")
	f.addConversation(alice, bob)
	f.addConversation(alice, carol)

	if _, err := f.svc.ListConversations(context.Background(), alice); err != nil {
		t.Fatalf("ListConversations = %v", err)
	}

	if len(f.warmer.warmed) != 1 {
		t.Fatalf("warm calls = %d, want 1", len(f.warmer.warmed))
	}
	got := make(map[uuid.UUID]bool)
	for _, id := range f.warmer.warmed[0] {
		got[id] = true
	}
	if !got[bob] || !got[carol] || got[alice] {
		t.Errorf("warmed ids = %v, want the peers only", f.warmer.warmed[0])
	}
}

// Paging through messages that share a timestamp must not skip any: the
// cursor compares (created_at, id), not the timestamp alone.
func TestListMessagesPagingSharedTimestamps(t *testing.T) {
	f := newFixture()
	alice := f.addUser("alice")
	bob := f.addUser("bob")
	convID := f.addConversation(alice, bob)

	at := time.Now()
	var all []domain.Message
	for i := 0; i < 5; i++ {
		text := "m"
		m := domain.Message{
			ID: uuid.New(), ConversationID: convID, SenderID: alice,
			Text: &text, Kind: domain.KindText, Status: domain.StatusSent,
			CreatedAt: at,
		}
		all = append(all, m)
	}
	// Stored in (created_at, id) order, like the ordering index.
	sort.Slice(all, func(i, j int) bool { return all[i].ID.String() < all[j].ID.String() })
	f.msgRepo.byConv[convID] = all

	page1, err := f.svc.ListMessages(context.Background(), alice, convID, nil, 2)
	if err != nil {
		t.Fatalf("ListMessages = %v", err)
	}
	if len(page1.Messages) != 2 || !page1.HasMore {
		t.Fatalf("page1 = %d messages, hasMore %v", len(page1.Messages), page1.HasMore)
	}

	var seen []domain.Message
	seen = append(seen, page1.Messages...)
	cursor := page1.Messages[0].ID
	for {
		page, err := f.svc.ListMessages(context.Background(), alice, convID, &cursor, 2)
		if err != nil {
			t.Fatalf("ListMessages = %v", err)
		}
		seen = append(page.Messages, seen...)
		if len(page.Messages) == 0 || !page.HasMore {
			break
		}
		cursor = page.Messages[0].ID
	}

	if len(seen) != len(all) {
		t.Fatalf("paged %d of %d messages: same-timestamp siblings skipped", len(seen), len(all))
	}
	for i := range all {
		if seen[i].ID != all[i].ID {
			t.Errorf("seen[%d] = %s, want %s", i, seen[i].ID, all[i].ID)
		}
	}
}

func TestPurgeUserRemovesFootprint(t *testing.T) {
	f := newFixture()
	alice := f.addUser("alice")
	bob := f.addUser("bob")
	carol := f.addUser("carol")
	convAB := f.addConversation(alice, bob)
	convAC := f.addConversation(alice, carol)
	convBC := f.addConversation(bob, carol)

	if err := f.svc.PurgeUser(context.Background(), alice); err != nil {
		t.Fatalf("PurgeUser = %v", err)
	}
	if f.msgRepo.deletedSender == nil || *f.msgRepo.deletedSender != alice {
		t.Error("sender's messages were not deleted")
	}

	deleted := make(map[uuid.UUID]bool)
	for _, id := range f.store.deleted {
		deleted[id] = true
	}
	if !deleted[convAB] || !deleted[convAC] {
		t.Error("alice's conversations were not deleted")
	}
	if deleted[convBC] {
		t.Error("unrelated conversation was deleted")
	}
}

func TestDeleteConversationChecksParticipant(t *testing.T) {
	f := newFixture()
	alice := f.addUser("alice")
	bob := f.addUser("bob")
	mallory := f.addUser("mallory")
	convID := f.addConversation(alice, bob)

	if err := f.svc.DeleteConversation(context.Background(), mallory, convID); !errors.Is(err, ErrNotParticipant) {
		t.Errorf("outsider delete = %v, want ErrNotParticipant", err)
	}
	if err := f.svc.DeleteConversation(context.Background(), alice, convID); err != nil {
		t.Fatalf("DeleteConversation = %v", err)
	}
	if len(f.store.deleted) != 1 || f.store.deleted[0] != convID {
		t.Errorf("store deletions = %v", f.store.deleted)
	}
}
