package ws

import (
	"log/slog"
	"sync"

	"TicketChat/entity"
)

// ClientMessageHandler handles incoming websocket events from chat clients.
type ClientMessageHandler interface {
	HandleMarkRead(ticketID string, messageIDs []string) ([]string, error)
}

// Authenticator validates the chat_authenticate handshake.
type Authenticator interface {
	Authorize(token string) error
}

// Hub maintains the set of authenticated connections and their per-ticket
// room membership, and broadcasts conversation events into rooms.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	rooms   map[string]map[*Client]bool
	handler ClientMessageHandler
	log     *slog.Logger
}

// NewHub creates a new Hub instance.
func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
		rooms:   make(map[string]map[*Client]bool),
		log:     log,
	}
}

// SetHandler sets the handler for incoming client events.
func (h *Hub) SetHandler(handler ClientMessageHandler) {
	h.handler = handler
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		for ticketID := range c.joined {
			h.dropFromRoom(ticketID, c)
		}
		close(c.send)
	}
	h.mu.Unlock()
}

func (h *Hub) join(ticketID string, c *Client) {
	h.mu.Lock()
	room, ok := h.rooms[ticketID]
	if !ok {
		room = make(map[*Client]bool)
		h.rooms[ticketID] = room
	}
	room[c] = true
	c.joined[ticketID] = true
	h.mu.Unlock()

	h.log.Debug("client joined room",
		slog.String("ticket_id", ticketID),
		slog.String("user_id", c.userID),
	)
}

func (h *Hub) leave(ticketID string, c *Client) {
	h.mu.Lock()
	h.dropFromRoom(ticketID, c)
	delete(c.joined, ticketID)
	h.mu.Unlock()
}

// dropFromRoom must be called with the hub lock held.
func (h *Hub) dropFromRoom(ticketID string, c *Client) {
	if room, ok := h.rooms[ticketID]; ok {
		delete(room, c)
		if len(room) == 0 {
			delete(h.rooms, ticketID)
		}
	}
}

// broadcast sends an event to every member of a ticket room, optionally
// excluding the originating connection. Slow clients are dropped rather
// than allowed to block the room.
func (h *Hub) broadcast(ticketID string, event entity.Event, exclude *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.rooms[ticketID] {
		if client == exclude {
			continue
		}
		select {
		case client.send <- event:
		default:
			close(client.send)
			delete(h.clients, client)
			h.dropFromRoom(ticketID, client)
		}
	}
}

// BroadcastNewMessage delivers a confirmed message to a ticket room.
func (h *Hub) BroadcastNewMessage(ticketID string, msg entity.ChatMessage) {
	event, err := entity.NewEvent(entity.EventNewMessage, entity.NewMessagePayload{
		TicketID: ticketID,
		Message:  msg,
	})
	if err != nil {
		h.log.Warn("encode new_message", slog.String("error", err.Error()))
		return
	}
	h.broadcast(ticketID, event, nil)
}

// BroadcastTicketUpdate announces a conversation-level field change.
func (h *Hub) BroadcastTicketUpdate(payload entity.TicketUpdatePayload) {
	event, err := entity.NewEvent(entity.EventTicketUpdate, payload)
	if err != nil {
		h.log.Warn("encode ticket_update", slog.String("error", err.Error()))
		return
	}
	h.broadcast(payload.TicketID, event, nil)
}

// BroadcastMessageStatus announces a delivery/read transition.
func (h *Hub) BroadcastMessageStatus(ticketID, messageID, status string) {
	event, err := entity.NewEvent(entity.EventMessageStatus, entity.MessageStatusPayload{
		MessageID: messageID,
		Status:    status,
	})
	if err != nil {
		h.log.Warn("encode message_status_update", slog.String("error", err.Error()))
		return
	}
	h.broadcast(ticketID, event, nil)
}

// broadcastTyping relays typing state to everyone else in the room.
func (h *Hub) broadcastTyping(ticketID, userID string, from *Client) {
	event, err := entity.NewEvent(entity.EventUserTyping, entity.TypingPayload{
		TicketID: ticketID,
		UserID:   userID,
	})
	if err != nil {
		h.log.Warn("encode user_typing", slog.String("error", err.Error()))
		return
	}
	h.broadcast(ticketID, event, from)
}
