package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vibely/server/internal/domain"
)

type sessionState int

const (
	// stateDetached: no conversation id yet, no subscription, empty list.
	stateDetached sessionState = iota
	// stateListening: subscribed to the conversation's change stream.
	stateListening
	// stateClosed: terminal. No snapshot is applied after this.
	stateClosed
)

// Session owns one realtime subscription for one conversation and mediates
// all writes for it. Lifecycle: Detached -> (first successful send or Open)
// -> Listening -> (Close) -> Closed. Once a conversation id is assigned it
// is permanent for the session's life.
//
// All mutations of the in-memory message list happen on the session's
// single snapshot-pump goroutine; public accessors copy under a mutex.
type Session struct {
	store    Store
	viewerID uuid.UUID
	otherID  uuid.UUID
	rec      *Reconciler

	ctx    context.Context
	cancel context.CancelFunc

	// refresh nudges the pump to re-reconcile the last snapshot, e.g.
	// after a foreground change, without waiting for a store change.
	refresh chan struct{}

	mu             sync.Mutex
	state          sessionState
	conversationID uuid.UUID
	draft          string
	messages       []domain.Message
	sub            Subscription

	onSnapshot func([]domain.Message)
	onError    func(error)
}

// NewSession creates a detached session between the viewer and one peer.
// viewerID must be the authenticated caller; onSnapshot and onError are
// invoked sequentially from the session's pump goroutine and may be nil.
func NewSession(store Store, viewerID, otherID uuid.UUID) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		store:    store,
		viewerID: viewerID,
		otherID:  otherID,
		rec:      NewReconciler(store, viewerID),
		ctx:      ctx,
		cancel:   cancel,
		refresh:  make(chan struct{}, 1),
	}
}

// OnSnapshot registers the callback invoked with the ordered message list
// after each reconciled snapshot. Must be set before Open or the first Send.
func (s *Session) OnSnapshot(fn func([]domain.Message)) { s.onSnapshot = fn }

// OnError registers the callback for session-level subscription failures.
func (s *Session) OnError(fn func(error)) { s.onError = fn }

// Open subscribes to a conversation and moves the session to Listening.
// Valid from detached, and from listening when the subscription is gone
// (first-send subscribe failure, dropped listener) so the session can
// recover without being rebuilt.
func (s *Session) Open(conversationID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.state == stateClosed:
		return ErrSessionClosed
	case s.sub != nil:
		return fmt.Errorf("session already listening on %s", s.conversationID)
	case s.conversationID != uuid.Nil && s.conversationID != conversationID:
		return fmt.Errorf("session is bound to conversation %s", s.conversationID)
	}

	sub, err := s.store.Subscribe(s.ctx, conversationID)
	if err != nil {
		return fmt.Errorf("%w: subscribe: %v", ErrSubscription, err)
	}

	s.conversationID = conversationID
	s.state = stateListening
	s.sub = sub
	go s.pump(sub)
	return nil
}

// Draft returns the current draft text.
func (s *Session) Draft() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft
}

// SetDraft replaces the draft text.
func (s *Session) SetDraft(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft = text
}

// Messages returns a copy of the latest reconciled ordered message list.
func (s *Session) Messages() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// ConversationID returns the persisted conversation id, or false while the
// session is detached.
func (s *Session) ConversationID() (uuid.UUID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conversationID == uuid.Nil {
		return uuid.Nil, false
	}
	return s.conversationID, true
}

// SetForeground tells the reconciler whether this conversation is the
// viewer's active one, and re-reconciles the current snapshot so seen
// transitions do not wait for the next store change.
func (s *Session) SetForeground(fg bool) {
	s.rec.SetForeground(fg)
	if fg {
		select {
		case s.refresh <- struct{}{}:
		default:
		}
	}
}

// Send persists the current draft as a new message. While detached it
// atomically creates the conversation with the draft as its first message
// and transitions to Listening. The draft is cleared only on success; any
// failure leaves it intact for retry.
func (s *Session) Send(ctx context.Context) error {
	s.mu.Lock()
	if s.state == stateClosed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.viewerID == uuid.Nil {
		s.mu.Unlock()
		return ErrNotAuthenticated
	}

	text := strings.TrimSpace(s.draft)
	if text == "" {
		s.mu.Unlock()
		return ErrInvalidInput
	}

	detached := s.state == stateDetached
	convID := s.conversationID
	s.mu.Unlock()

	msg := &domain.Message{
		ID:        uuid.New(),
		SenderID:  s.viewerID,
		Text:      &text,
		Kind:      domain.KindText,
		Status:    domain.StatusSent,
		CreatedAt: time.Now(),
	}

	if detached {
		return s.sendFirst(ctx, msg)
	}

	msg.ConversationID = convID
	if err := s.store.AppendMessage(ctx, convID, msg); err != nil {
		return fmt.Errorf("%w: append message: %v", ErrPersistence, err)
	}

	s.clearDraft()
	return nil
}

// sendFirst creates conversation and first message atomically, then opens
// the subscription. On failure the session stays detached and the draft is
// kept.
func (s *Session) sendFirst(ctx context.Context, msg *domain.Message) error {
	participants := [2]uuid.UUID{s.viewerID, s.otherID}

	convID, err := s.store.CreateConversation(ctx, participants, msg)
	if err != nil {
		return fmt.Errorf("%w: create conversation: %v", ErrPersistence, err)
	}

	s.mu.Lock()
	if s.state == stateClosed {
		// Closed mid-flight: the write stands server-side, but a closed
		// session's state is never touched.
		s.mu.Unlock()
		return ErrSessionClosed
	}

	s.conversationID = convID
	s.draft = ""

	sub, err := s.store.Subscribe(s.ctx, convID)
	if err != nil {
		// The conversation persisted. The session stays bound to it with no
		// subscription; Open(convID) re-attaches the listener.
		s.state = stateListening
		s.mu.Unlock()
		return fmt.Errorf("%w: subscribe after first send: %v", ErrSubscription, err)
	}

	s.state = stateListening
	s.sub = sub
	s.mu.Unlock()

	go s.pump(sub)
	return nil
}

func (s *Session) clearDraft() {
	s.mu.Lock()
	s.draft = ""
	s.mu.Unlock()
}

// Close cancels the subscription and stops further snapshots from mutating
// state. Idempotent. In-flight writes may still complete server-side but
// their results are never applied here.
func (s *Session) Close() {
	s.mu.Lock()
	if s.state == stateClosed {
		s.mu.Unlock()
		return
	}
	s.state = stateClosed
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()

	s.cancel()
	if sub != nil {
		sub.Close()
	}
}

// pump is the single owner of the in-memory list: it applies snapshots,
// runs the reconciler, and fans results out to the registered callbacks.
func (s *Session) pump(sub Subscription) {
	var last []domain.Message

	apply := func(msgs []domain.Message) {
		s.mu.Lock()
		if s.state == stateClosed {
			s.mu.Unlock()
			return
		}
		convID := s.conversationID
		s.messages = msgs
		s.mu.Unlock()

		s.rec.Apply(s.ctx, convID, msgs)
		if s.onSnapshot != nil {
			out := make([]domain.Message, len(msgs))
			copy(out, msgs)
			s.onSnapshot(out)
		}
	}

	for {
		select {
		case snap, ok := <-sub.Snapshots():
			if !ok {
				s.dropSub(sub)
				return
			}
			if snap.Err != nil {
				// Keep the last-known-good list; stale but not wrong. The
				// dead subscription is detached so Open can re-attach.
				s.dropSub(sub)
				if s.onError != nil && !s.closed() {
					s.onError(fmt.Errorf("%w: %v", ErrSubscription, snap.Err))
				}
				return
			}
			last = snap.Messages
			SortMessages(last)
			apply(last)

		case <-s.refresh:
			if last != nil {
				apply(last)
			}

		case <-s.ctx.Done():
			return
		}
	}
}

// dropSub detaches a dead subscription so a later Open can re-attach one.
func (s *Session) dropSub(sub Subscription) {
	s.mu.Lock()
	if s.sub == sub {
		s.sub = nil
	}
	s.mu.Unlock()
	sub.Close()
}

func (s *Session) closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateClosed
}
