// Package ws routes server events to the live connections of affected users
// and relays typing indicators between participants. Delivery is
// fire-and-forget: no connection, no delivery.
package ws

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/milanh34/linkUp/internal/logger"
	"github.com/milanh34/linkUp/internal/store"
)

// Hub owns the userID -> connections registry. A user's room is the set of
// all their live joined connections; emitting to an empty room is a no-op.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]map[*Client]struct{}
	total    int
	maxConns int

	chats store.ChatStore

	register   chan *Client
	unregister chan *Client
	done       chan struct{}
}

func NewHub(chats store.ChatStore, maxConns int) *Hub {
	if maxConns <= 0 {
		maxConns = 10000
	}
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		maxConns:   maxConns,
		chats:      chats,
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		done:       make(chan struct{}),
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

func (h *Hub) shutdown() {
	// Collect all clients under the lock, do NOT perform I/O under mutex.
	h.mu.Lock()
	allClients := make([]*Client, 0, h.total)
	for _, clients := range h.clients {
		for c := range clients {
			allClients = append(allClients, c)
		}
	}
	h.clients = make(map[string]map[*Client]struct{})
	h.total = 0
	h.mu.Unlock()

	// Close connections outside the lock (network I/O).
	for _, c := range allClients {
		c.Close()
	}
	for _, c := range allClients {
		c.Wait()
	}
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	if h.total >= h.maxConns {
		h.mu.Unlock()
		logger.Errorf("ws connection limit reached (%d), rejecting user=%s", h.maxConns, c.userID)
		c.Close()
		return
	}
	if _, ok := h.clients[c.userID]; !ok {
		h.clients[c.userID] = make(map[*Client]struct{})
	}
	h.clients[c.userID][c] = struct{}{}
	h.total++
	h.mu.Unlock()
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	clients, ok := h.clients[c.userID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, exists := clients[c]; !exists {
		h.mu.Unlock()
		return
	}
	delete(clients, c)
	h.total--
	if len(clients) == 0 {
		delete(h.clients, c.userID)
	}
	h.mu.Unlock()

	// Network I/O outside the lock.
	c.Close()
}

// HandleMessage dispatches client control messages.
func (h *Hub) HandleMessage(ctx context.Context, c *Client, msg IncomingMessage) {
	switch msg.Type {
	case EventJoin:
		c.joined.Store(true)
	case EventTyping:
		h.relayTyping(ctx, c, msg.ChatID, EventUserTyping)
	case EventStopTyping:
		h.relayTyping(ctx, c, msg.ChatID, EventUserStoppedTyping)
	default:
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "unknown event type"})
	}
}

// relayTyping forwards a typing indicator to the other participants of the
// chat. Senders outside the chat are dropped silently.
func (h *Hub) relayTyping(ctx context.Context, c *Client, chatID string, evType EventType) {
	if chatID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	chat, err := h.chats.Get(ctx, chatID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logger.Errorf("ws typing lookup chat=%s: %v", chatID, err)
		}
		return
	}
	if _, ok := chat.Participant(c.userID); !ok {
		return
	}

	out := OutgoingMessage{
		Type:    evType,
		Payload: TypingPayload{ChatID: chatID, UserID: c.userID},
	}
	for _, uid := range chat.ParticipantIDs() {
		if uid != c.userID {
			h.EmitToUser(uid, out)
		}
	}
}

// EmitToUser delivers an event to every joined connection of the user.
// At-most-once: slow connections are evicted, offline users get nothing.
func (h *Hub) EmitToUser(userID string, msg OutgoingMessage) {
	h.mu.RLock()
	clients, ok := h.clients[userID]
	if !ok {
		h.mu.RUnlock()
		return
	}
	targets := make([]*Client, 0, len(clients))
	for c := range clients {
		if c.joined.Load() {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.sendToClient(c, msg)
	}
}

// EmitToUsers delivers the same event to each listed user's room.
func (h *Hub) EmitToUsers(userIDs []string, msg OutgoingMessage) {
	for _, uid := range userIDs {
		h.EmitToUser(uid, msg)
	}
}

func (h *Hub) sendToClient(c *Client, msg OutgoingMessage) {
	select {
	case c.send <- msg:
	case <-c.done:
	default:
		// Backpressure: send buffer full, close slow client.
		logger.Errorf("ws send buffer full, closing slow client user=%s", c.userID)
		c.Close()
	}
}

func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		c.Close()
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
