package entity

import (
	"encoding/json"
	"time"
)

// Event names exchanged over the ticket chat websocket. The same protocol
// is spoken by the push channel client and the reference backend.
const (
	// client -> server
	EventAuthenticate = "chat_authenticate"
	EventJoinTicket   = "join_ticket_chat"
	EventLeaveTicket  = "leave_ticket_chat"
	EventTypingStart  = "typing_start"
	EventTypingStop   = "typing_stop"
	EventMarkRead     = "mark_messages_read"

	// server -> client
	EventAuthenticated = "chat_authenticated"
	EventConnected     = "chat_connected"
	EventNewMessage    = "new_message"
	EventTicketUpdate  = "ticket_update"
	EventMessageStatus = "message_status_update"
	EventUserTyping    = "user_typing"
)

// Event is the envelope for every websocket frame.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewEvent marshals a payload into an envelope of the given type.
func NewEvent(typ string, payload any) (Event, error) {
	if payload == nil {
		return Event{Type: typ}, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: typ, Data: data}, nil
}

// AuthPayload is the chat_authenticate handshake body.
type AuthPayload struct {
	Token        string `json:"token"`
	UserID       string `json:"user_id"`
	IsPrivileged bool   `json:"is_privileged"`
}

// RoomPayload scopes join/leave events to a single ticket room.
type RoomPayload struct {
	TicketID string `json:"ticket_id"`
	UserID   string `json:"user_id,omitempty"`
}

// NewMessagePayload carries a confirmed message into a ticket room.
type NewMessagePayload struct {
	TicketID string      `json:"ticket_id"`
	Message  ChatMessage `json:"message"`
}

// TicketUpdatePayload signals a change of a conversation-level field.
type TicketUpdatePayload struct {
	TicketID  string    `json:"ticket_id"`
	Field     string    `json:"field"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MessageStatusPayload signals a delivery/read transition for one message.
type MessageStatusPayload struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
}

// TypingPayload reports that a user is typing in a ticket room.
type TypingPayload struct {
	TicketID string `json:"ticket_id"`
	UserID   string `json:"user_id"`
}

// MarkReadPayload asks the server to mark messages as read.
type MarkReadPayload struct {
	TicketID   string   `json:"ticket_id"`
	MessageIDs []string `json:"message_ids"`
}
