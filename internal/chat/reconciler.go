package chat

import (
	"context"
	"log"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/vibely/server/internal/domain"
)

// Reconciler advances delivery statuses from each snapshot a session
// receives. There is no explicit ack protocol: observing a snapshot is the
// ack. Only messages addressed to the viewer are ever touched; the sender
// never mutates its own message's status.
//
// Apply is not safe for concurrent use. The owning session calls it from
// its single snapshot-pump goroutine, which is the only writer.
type Reconciler struct {
	store      Store
	viewerID   uuid.UUID
	foreground atomic.Bool

	// issued remembers the highest status already written (or in flight)
	// per message, so an unchanged snapshot produces no duplicate writes.
	// Entries are dropped on write failure so the next snapshot retries.
	issued map[uuid.UUID]domain.MessageStatus
}

func NewReconciler(store Store, viewerID uuid.UUID) *Reconciler {
	return &Reconciler{
		store:    store,
		viewerID: viewerID,
		issued:   make(map[uuid.UUID]domain.MessageStatus),
	}
}

// SetForeground marks whether the conversation is the viewer's active one.
// Foreground is what gates the delivered -> seen transition. Safe to call
// from any goroutine.
func (r *Reconciler) SetForeground(fg bool) {
	r.foreground.Store(fg)
}

// Apply runs one reconciliation pass over a snapshot. Store write failures
// are logged and swallowed: the condition that triggered them persists
// server-side, so the next snapshot re-derives the same write.
func (r *Reconciler) Apply(ctx context.Context, conversationID uuid.UUID, msgs []domain.Message) {
	for i := range msgs {
		m := &msgs[i]
		if m.SenderID == r.viewerID {
			continue
		}

		var next domain.MessageStatus
		switch {
		case m.Status == domain.StatusSent:
			// Receiving the snapshot constitutes delivery.
			next = domain.StatusDelivered
		case m.Status == domain.StatusDelivered && r.foreground.Load():
			next = domain.StatusSeen
		default:
			continue
		}

		if prev, ok := r.issued[m.ID]; ok && prev.Rank() >= next.Rank() {
			continue
		}

		r.issued[m.ID] = next
		if err := r.store.UpdateMessageStatus(ctx, conversationID, m.ID, next); err != nil {
			log.Printf("chat reconciler: advance %s to %s: %v", m.ID, next, err)
			delete(r.issued, m.ID)
		}
	}
}
