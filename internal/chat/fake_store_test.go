package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/vibely/server/internal/domain"
)

// fakeStore is an in-memory Store that applies the same monotonic status
// guard as the real one and re-delivers full snapshots on every change.
type fakeStore struct {
	mu       sync.Mutex
	messages map[uuid.UUID][]domain.Message
	subs     map[uuid.UUID][]*fakeSub

	statusCalls []statusCall
	appendCalls int
	createCalls int

	failAppend    error
	failCreate    error
	failStatus    error
	failSubscribe error
}

type statusCall struct {
	messageID uuid.UUID
	status    domain.MessageStatus
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		messages: make(map[uuid.UUID][]domain.Message),
		subs:     make(map[uuid.UUID][]*fakeSub),
	}
}

type fakeSub struct {
	mu     sync.Mutex
	ch     chan Snapshot
	closed bool
}

func (s *fakeSub) Snapshots() <-chan Snapshot { return s.ch }

func (s *fakeSub) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

func (s *fakeSub) deliver(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- snap:
	default:
	}
}

func (f *fakeStore) Subscribe(ctx context.Context, conversationID uuid.UUID) (Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSubscribe != nil {
		return nil, f.failSubscribe
	}
	sub := &fakeSub{ch: make(chan Snapshot, 16)}
	f.subs[conversationID] = append(f.subs[conversationID], sub)
	sub.deliver(f.snapshotLocked(conversationID))
	return sub, nil
}

func (f *fakeStore) AppendMessage(ctx context.Context, conversationID uuid.UUID, msg *domain.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appendCalls++
	if f.failAppend != nil {
		return f.failAppend
	}
	m := *msg
	m.ConversationID = conversationID
	f.messages[conversationID] = append(f.messages[conversationID], m)
	f.notifyLocked(conversationID)
	return nil
}

func (f *fakeStore) CreateConversation(ctx context.Context, participants [2]uuid.UUID, first *domain.Message) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.failCreate != nil {
		return uuid.Nil, f.failCreate
	}
	convID := uuid.New()
	m := *first
	m.ConversationID = convID
	f.messages[convID] = []domain.Message{m}
	f.notifyLocked(convID)
	return convID, nil
}

func (f *fakeStore) UpdateMessageStatus(ctx context.Context, conversationID, messageID uuid.UUID, status domain.MessageStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls = append(f.statusCalls, statusCall{messageID: messageID, status: status})
	if f.failStatus != nil {
		return f.failStatus
	}
	msgs := f.messages[conversationID]
	for i := range msgs {
		if msgs[i].ID == messageID && msgs[i].Status.Rank() < status.Rank() {
			msgs[i].Status = status
			f.notifyLocked(conversationID)
			break
		}
	}
	return nil
}

func (f *fakeStore) DeleteConversation(ctx context.Context, conversationID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.messages, conversationID)
	f.notifyLocked(conversationID)
	return nil
}

// seed inserts a message without notifying, for test arrangement.
func (f *fakeStore) seed(conversationID uuid.UUID, msgs ...domain.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range msgs {
		m.ConversationID = conversationID
		f.messages[conversationID] = append(f.messages[conversationID], m)
	}
}

// push re-delivers the current snapshot to every subscriber.
func (f *fakeStore) push(conversationID uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifyLocked(conversationID)
}

// fail sends an error snapshot to every subscriber.
func (f *fakeStore) fail(conversationID uuid.UUID, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sub := range f.subs[conversationID] {
		sub.deliver(Snapshot{Err: err})
	}
}

func (f *fakeStore) notifyLocked(conversationID uuid.UUID) {
	snap := f.snapshotLocked(conversationID)
	for _, sub := range f.subs[conversationID] {
		sub.deliver(snap)
	}
}

func (f *fakeStore) snapshotLocked(conversationID uuid.UUID) Snapshot {
	msgs := f.messages[conversationID]
	out := make([]domain.Message, len(msgs))
	copy(out, msgs)
	return Snapshot{Messages: out}
}

func (f *fakeStore) status(conversationID, messageID uuid.UUID) domain.MessageStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.messages[conversationID] {
		if m.ID == messageID {
			return m.Status
		}
	}
	return ""
}

func (f *fakeStore) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.statusCalls)
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func textMessage(sender uuid.UUID, text string, status domain.MessageStatus, at time.Time) domain.Message {
	return domain.Message{
		ID:        uuid.New(),
		SenderID:  sender,
		Text:      &text,
		Kind:      domain.KindText,
		Status:    status,
		CreatedAt: at,
	}
}
