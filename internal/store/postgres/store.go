package postgres

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/vibely/server/internal/chat"
	"github.com/vibely/server/internal/domain"
	"github.com/vibely/server/internal/repository"
)

const snapshotQueryTimeout = 10 * time.Second

// Changes is the change-notification fanout behind Subscribe. The NATS
// ChangeBus satisfies it; SubscribeConversation returns an unsubscribe
// function.
type Changes interface {
	NotifyConversation(conversationID uuid.UUID)
	SubscribeConversation(conversationID uuid.UUID, fn func()) (func(), error)
}

// Store implements chat.Store over the pgx repositories, with a change bus
// standing in for a document store's snapshot listeners: every write
// publishes a marker, every subscriber re-queries the full ordered list.
type Store struct {
	convs   repository.ConversationRepository
	msgs    repository.MessageRepository
	changes Changes
}

func NewStore(convs repository.ConversationRepository, msgs repository.MessageRepository, changes Changes) *Store {
	return &Store{convs: convs, msgs: msgs, changes: changes}
}

func (s *Store) AppendMessage(ctx context.Context, conversationID uuid.UUID, msg *domain.Message) error {
	msg.ConversationID = conversationID
	if err := s.msgs.Create(ctx, msg); err != nil {
		return fmt.Errorf("creating message: %w", err)
	}

	// Write-after-write: a reader between the two statements sees the
	// message without the refreshed preview, which is tolerated.
	if err := s.convs.UpdateLastMessage(ctx, conversationID, msg); err != nil {
		log.Printf("store: update last message for %s: %v", conversationID, err)
	}

	s.changes.NotifyConversation(conversationID)
	return nil
}

func (s *Store) CreateConversation(ctx context.Context, participants [2]uuid.UUID, first *domain.Message) (uuid.UUID, error) {
	u1, u2 := domain.CanonicalPair(participants[0], participants[1])
	conv := &domain.Conversation{
		ID:        uuid.New(),
		User1ID:   u1,
		User2ID:   u2,
		CreatedAt: time.Now(),
	}
	first.ConversationID = conv.ID

	if err := s.convs.CreateWithFirstMessage(ctx, conv, first); err != nil {
		// The pair already has a conversation: both parties raced their
		// first send, or the peer created it moments ago. Adopt it and
		// append the message there instead of failing every retry.
		if isUniqueViolation(err) {
			existing, gerr := s.convs.GetByUsers(ctx, u1, u2)
			if gerr == nil && existing != nil {
				if aerr := s.AppendMessage(ctx, existing.ID, first); aerr != nil {
					return uuid.Nil, aerr
				}
				return existing.ID, nil
			}
		}
		return uuid.Nil, fmt.Errorf("creating conversation: %w", err)
	}

	s.changes.NotifyConversation(conv.ID)
	return conv.ID, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (s *Store) UpdateMessageStatus(ctx context.Context, conversationID, messageID uuid.UUID, status domain.MessageStatus) error {
	if !status.Valid() {
		return fmt.Errorf("invalid message status %q", status)
	}
	if err := s.msgs.AdvanceStatus(ctx, conversationID, messageID, status); err != nil {
		return fmt.Errorf("advancing status: %w", err)
	}
	s.changes.NotifyConversation(conversationID)
	return nil
}

// DeleteConversation cascades to the conversation's messages. Best-effort:
// a partial cascade is logged and the conversation delete still proceeds.
func (s *Store) DeleteConversation(ctx context.Context, conversationID uuid.UUID) error {
	if err := s.msgs.DeleteByConversation(ctx, conversationID); err != nil {
		log.Printf("store: cascade messages for %s: %v", conversationID, err)
	}
	if err := s.convs.Delete(ctx, conversationID); err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}
	s.changes.NotifyConversation(conversationID)
	return nil
}

// Subscribe re-queries the conversation's full ordered message list once on
// open and again after every change notification. Notifications coalesce:
// bursts collapse into one re-query, which still yields the latest state.
func (s *Store) Subscribe(ctx context.Context, conversationID uuid.UUID) (chat.Subscription, error) {
	subCtx, cancel := context.WithCancel(ctx)

	notify := make(chan struct{}, 1)
	busSub, err := s.changes.SubscribeConversation(conversationID, func() {
		select {
		case notify <- struct{}{}:
		default:
		}
	})
	if err != nil {
		cancel()
		return nil, err
	}

	sub := &subscription{
		snapshots:   make(chan chat.Snapshot, 16),
		cancel:      cancel,
		unsubscribe: busSub,
	}

	go s.pump(subCtx, conversationID, notify, sub)
	return sub, nil
}

func (s *Store) pump(ctx context.Context, conversationID uuid.UUID, notify <-chan struct{}, sub *subscription) {
	defer close(sub.snapshots)

	deliver := func() bool {
		qctx, qcancel := context.WithTimeout(ctx, snapshotQueryTimeout)
		msgs, err := s.msgs.ListByConversation(qctx, conversationID)
		qcancel()
		if err != nil {
			if ctx.Err() != nil {
				return false
			}
			sub.send(ctx, chat.Snapshot{Err: err})
			return false
		}
		return sub.send(ctx, chat.Snapshot{Messages: msgs})
	}

	if !deliver() {
		return
	}

	for {
		select {
		case <-notify:
			if !deliver() {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

type subscription struct {
	snapshots   chan chat.Snapshot
	cancel      context.CancelFunc
	unsubscribe func()
	closeOnce   sync.Once
}

func (s *subscription) Snapshots() <-chan chat.Snapshot {
	return s.snapshots
}

func (s *subscription) Close() {
	s.closeOnce.Do(func() {
		s.unsubscribe()
		s.cancel()
	})
}

func (s *subscription) send(ctx context.Context, snap chat.Snapshot) bool {
	select {
	case s.snapshots <- snap:
		return true
	case <-ctx.Done():
		return false
	}
}
