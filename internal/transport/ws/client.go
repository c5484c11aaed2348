package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/vibely/server/internal/chat"
	"github.com/vibely/server/internal/directory"
	"github.com/vibely/server/internal/domain"
)

const (
	writeWait    = 10 * time.Second
	pingInterval = 30 * time.Second
	sendBufSize  = 256

	sendTimeout = 15 * time.Second
)

// Authorizer answers whether a user may attach to a conversation.
// ConversationService satisfies it.
type Authorizer interface {
	IsParticipant(ctx context.Context, userID, conversationID uuid.UUID) (bool, error)
}

// Client represents a single WebSocket connection. It owns one chat.Session
// per subscribed conversation; each session's reconciled snapshots are
// pushed to the peer as conversation.snapshot events.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID uuid.UUID

	store chat.Store
	auth  Authorizer
	dir   *directory.Directory

	// sessions is keyed by conversation id; pending by peer id until the
	// first send persists the conversation. Both are touched only from the
	// read-pump goroutine.
	sessions map[uuid.UUID]*chat.Session
	pending  map[uuid.UUID]*chat.Session

	// subscribed mirrors the session keys for the hub goroutine.
	mu         sync.RWMutex
	subscribed map[uuid.UUID]struct{}

	send chan []byte
	done chan struct{}
}

func NewClient(hub *Hub, conn *websocket.Conn, userID uuid.UUID, store chat.Store, auth Authorizer, dir *directory.Directory) *Client {
	return &Client{
		hub:        hub,
		conn:       conn,
		userID:     userID,
		store:      store,
		auth:       auth,
		dir:        dir,
		sessions:   make(map[uuid.UUID]*chat.Session),
		pending:    make(map[uuid.UUID]*chat.Session),
		subscribed: make(map[uuid.UUID]struct{}),
		send:       make(chan []byte, sendBufSize),
		done:       make(chan struct{}),
	}
}

// IsSubscribed checks if this client is attached to a conversation.
func (c *Client) IsSubscribed(conversationID uuid.UUID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.subscribed[conversationID]
	return ok
}

func (c *Client) markSubscribed(conversationID uuid.UUID) {
	c.mu.Lock()
	c.subscribed[conversationID] = struct{}{}
	c.mu.Unlock()
}

func (c *Client) markUnsubscribed(conversationID uuid.UUID) {
	c.mu.Lock()
	delete(c.subscribed, conversationID)
	c.mu.Unlock()
}

// ReadPump reads events from the WebSocket and routes them. When it returns
// every owned session is closed, so no listener outlives the connection.
func (c *Client) ReadPump() {
	defer func() {
		c.closeSessions()
		c.hub.unregister <- c
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		var event Event
		err := wsjson.Read(context.Background(), c.conn, &event)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				log.Printf("ws: client %s disconnected", c.userID)
			} else {
				log.Printf("ws: read error from %s: %v", c.userID, err)
			}
			return
		}

		c.handleEvent(&event)
	}
}

// WritePump writes messages from the send channel to the WebSocket.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := c.conn.Write(ctx, websocket.MessageText, message)
			cancel()
			if err != nil {
				log.Printf("ws: write error to %s: %v", c.userID, err)
				return
			}

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := c.conn.Ping(ctx)
			cancel()
			if err != nil {
				log.Printf("ws: ping error to %s: %v", c.userID, err)
				return
			}

		case <-c.done:
			return
		}
	}
}

// handleEvent routes an incoming client event. Runs on the read pump.
func (c *Client) handleEvent(event *Event) {
	switch event.Type {
	case EventTypeSubscribe:
		var p ConversationPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			c.sendError("INVALID_PAYLOAD", "invalid subscribe payload")
			return
		}
		c.subscribe(p.ConversationID)

	case EventTypeUnsubscribe:
		var p ConversationPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			c.sendError("INVALID_PAYLOAD", "invalid unsubscribe payload")
			return
		}
		c.unsubscribe(p.ConversationID)

	case EventTypeFocus, EventTypeBlur:
		var p ConversationPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			c.sendError("INVALID_PAYLOAD", "invalid focus payload")
			return
		}
		if session, ok := c.sessions[p.ConversationID]; ok {
			session.SetForeground(event.Type == EventTypeFocus)
		}

	case EventTypeMessageSend:
		var p MessageSendPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			c.sendError("INVALID_PAYLOAD", "invalid message.send payload")
			return
		}
		c.handleSend(&p)

	case EventTypeTypingStart, EventTypeTypingStop:
		if event.ConversationID == nil {
			c.sendError("INVALID_PAYLOAD", "conversation_id required for typing events")
			return
		}
		c.hub.HandleTyping(c, event, c.dir.ResolveDisplayName(context.Background(), c.userID))

	case EventTypePing:
		c.sendPong()

	default:
		c.sendError("UNKNOWN_EVENT", "unknown event type: "+event.Type)
	}
}

// subscribe opens a listening session for an existing conversation.
func (c *Client) subscribe(conversationID uuid.UUID) {
	if _, ok := c.sessions[conversationID]; ok {
		return
	}

	ok, err := c.auth.IsParticipant(context.Background(), c.userID, conversationID)
	if err != nil {
		log.Printf("ws: participant check for %s: %v", c.userID, err)
		c.sendError("INTERNAL", "subscription failed")
		return
	}
	if !ok {
		c.sendError("FORBIDDEN", "not a participant of this conversation")
		return
	}

	session := chat.NewSession(c.store, c.userID, uuid.Nil)
	c.attachCallbacks(session)

	if err := session.Open(conversationID); err != nil {
		log.Printf("ws: open session %s for %s: %v", conversationID, c.userID, err)
		c.sendError("SUBSCRIPTION_FAILED", "could not subscribe to conversation")
		return
	}

	c.sessions[conversationID] = session
	c.markSubscribed(conversationID)
	log.Printf("ws: %s subscribed to conversation %s", c.userID, conversationID)
}

func (c *Client) unsubscribe(conversationID uuid.UUID) {
	if session, ok := c.sessions[conversationID]; ok {
		session.Close()
		delete(c.sessions, conversationID)
		c.markUnsubscribed(conversationID)
		log.Printf("ws: %s unsubscribed from conversation %s", c.userID, conversationID)
	}
}

// handleSend routes a message into the right session, creating a detached
// one for a first message to a peer.
func (c *Client) handleSend(p *MessageSendPayload) {
	var session *chat.Session

	switch {
	case p.ConversationID != nil:
		s, ok := c.sessions[*p.ConversationID]
		if !ok {
			c.sendError("NOT_SUBSCRIBED", "subscribe to the conversation before sending")
			return
		}
		session = s

	case p.OtherUserID != nil:
		if _, ok := c.dir.Resolve(context.Background(), *p.OtherUserID); !ok {
			c.sendError("UNKNOWN_USER", "recipient does not exist")
			return
		}
		s, ok := c.pending[*p.OtherUserID]
		if !ok {
			s = chat.NewSession(c.store, c.userID, *p.OtherUserID)
			c.attachCallbacks(s)
			c.pending[*p.OtherUserID] = s
		}
		session = s

	default:
		c.sendError("INVALID_PAYLOAD", "conversation_id or other_user_id required")
		return
	}

	session.SetDraft(p.Text)

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	err := session.Send(ctx)
	cancel()
	if err != nil {
		c.sendSendError(err)
		return
	}

	// A detached session that just persisted gets promoted and announced.
	if p.OtherUserID != nil {
		if convID, ok := session.ConversationID(); ok {
			delete(c.pending, *p.OtherUserID)

			// Never clobber a session that already owns this conversation:
			// replacing it would leak its live listener.
			if existing, dup := c.sessions[convID]; dup && existing != session {
				session.Close()
			} else {
				c.sessions[convID] = session
				c.markSubscribed(convID)
			}

			evt, err := NewEvent(EventTypeConversationCreated, &convID, ConversationCreatedPayload{
				ConversationID: convID,
				OtherUserID:    *p.OtherUserID,
			})
			if err == nil {
				c.push(evt)
			}

			// Tell the peer too, so their client can subscribe.
			peerEvt, err := NewEvent(EventTypeConversationCreated, &convID, ConversationCreatedPayload{
				ConversationID: convID,
				OtherUserID:    c.userID,
			})
			if err == nil {
				c.hub.BroadcastToUser(*p.OtherUserID, peerEvt)
			}
		}
	}
}

func (c *Client) sendSendError(err error) {
	switch {
	case errors.Is(err, chat.ErrInvalidInput):
		c.sendError("EMPTY_MESSAGE", "message text is empty")
	case errors.Is(err, chat.ErrNotAuthenticated):
		c.sendError("NOT_AUTHENTICATED", "no authenticated user")
	case errors.Is(err, chat.ErrSessionClosed):
		c.sendError("SESSION_CLOSED", "conversation session is closed")
	case errors.Is(err, chat.ErrSubscription):
		c.sendError("SUBSCRIPTION_FAILED", "message saved but listening failed; resubscribe")
	default:
		log.Printf("ws: send for %s: %v", c.userID, err)
		c.sendError("SEND_FAILED", "message could not be saved, try again")
	}
}

// attachCallbacks fans a session's snapshots and errors out to the peer.
// Callbacks run on the session's pump goroutine; push is non-blocking.
func (c *Client) attachCallbacks(session *chat.Session) {
	session.OnSnapshot(func(msgs []domain.Message) {
		convID, ok := session.ConversationID()
		if !ok {
			return
		}
		evt, err := NewEvent(EventTypeSnapshot, &convID, SnapshotPayload{Messages: msgs})
		if err != nil {
			log.Printf("ws: marshal snapshot: %v", err)
			return
		}
		c.push(evt)
	})

	session.OnError(func(serr error) {
		convID, _ := session.ConversationID()
		evt, err := NewEvent(EventTypeConversationError, &convID, ConversationErrorPayload{
			Message: serr.Error(),
		})
		if err != nil {
			return
		}
		c.push(evt)
	})
}

func (c *Client) closeSessions() {
	for id, session := range c.sessions {
		session.Close()
		delete(c.sessions, id)
	}
	for id, session := range c.pending {
		session.Close()
		delete(c.pending, id)
	}
}

func (c *Client) push(evt *Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (c *Client) sendPong() {
	data, _ := json.Marshal(Event{Type: EventTypePong})
	select {
	case c.send <- data:
	default:
	}
}

func (c *Client) sendError(code, message string) {
	evt, err := NewEvent(EventTypeError, nil, ErrorPayload{Code: code, Message: message})
	if err != nil {
		return
	}
	c.push(evt)
}
