package bus

import (
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const subjectPrefix = "vibely.conversation"

// ChangeBus fans out per-conversation change notifications over NATS.
// Payloads are empty: subscribers re-query the store for the full ordered
// result set, which keeps delivery at-least-once semantics harmless.
type ChangeBus struct {
	nc *nats.Conn
}

func Connect(url string) (*ChangeBus, error) {
	nc, err := nats.Connect(url, nats.Name("vibely-server"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &ChangeBus{nc: nc}, nil
}

func (b *ChangeBus) Close() {
	if b.nc != nil {
		b.nc.Close()
	}
}

// subject generates the NATS subject for a conversation.
func subject(conversationID uuid.UUID) string {
	return fmt.Sprintf("%s.%s", subjectPrefix, conversationID)
}

// NotifyConversation publishes a change marker for a conversation.
// Best-effort: a lost notification is healed by the next one.
func (b *ChangeBus) NotifyConversation(conversationID uuid.UUID) {
	if err := b.nc.Publish(subject(conversationID), nil); err != nil {
		log.Printf("bus: publish %s: %v", conversationID, err)
	}
}

// SubscribeConversation invokes fn on every change notification for the
// conversation. Call the returned function to unsubscribe.
func (b *ChangeBus) SubscribeConversation(conversationID uuid.UUID, fn func()) (func(), error) {
	sub, err := b.nc.Subscribe(subject(conversationID), func(*nats.Msg) { fn() })
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject(conversationID), err)
	}
	return func() {
		if err := sub.Unsubscribe(); err != nil {
			log.Printf("bus: unsubscribe %s: %v", conversationID, err)
		}
	}, nil
}
