package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Direction says which side of a ticket conversation authored a message.
type Direction string

const (
	DirectionRequester Direction = "requester"
	DirectionAgent     Direction = "agent"
)

// DeliveryStatus is the client-local lifecycle of an optimistic message.
// Server-sourced messages are always DeliverySent.
type DeliveryStatus string

const (
	DeliverySending DeliveryStatus = "sending"
	DeliverySent    DeliveryStatus = "sent"
	DeliveryError   DeliveryStatus = "error"
)

// MessageKind distinguishes plain text entries from synthetic attachment
// entries rendered inside the conversation list.
type MessageKind string

const (
	KindText       MessageKind = "text"
	KindAttachment MessageKind = "attachment"
)

// MessageID identifies a chat message. Exactly one of Local or Server is
// set: Local for optimistic entries awaiting confirmation, Server once the
// backend has assigned the authoritative id. Local ids never cross the
// wire; the id serializes as the plain server id string.
type MessageID struct {
	Local  string
	Server string
}

// NewLocalID returns a temporary id for an optimistic entry.
func NewLocalID() MessageID {
	return MessageID{Local: uuid.NewString()}
}

// ServerID wraps a server-assigned message id.
func ServerID(id string) MessageID {
	return MessageID{Server: id}
}

// IsTemporary reports whether the message has not been confirmed yet.
func (id MessageID) IsTemporary() bool {
	return id.Server == ""
}

func (id MessageID) String() string {
	if id.Server != "" {
		return id.Server
	}
	return id.Local
}

func (id MessageID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.Server)
}

func (id *MessageID) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &id.Server)
}

// ChatMessage represents a single message in a ticket conversation.
// Status is client-local state and never serialized.
type ChatMessage struct {
	ID           MessageID   `json:"id"`
	TicketID     string      `json:"ticket_id,omitempty"`
	IsAgentReply bool        `json:"is_agent_reply"`
	Body         string      `json:"body"`
	Kind         MessageKind `json:"kind,omitempty"`
	Attachment   *Attachment `json:"attachment,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	ReadAt       *time.Time  `json:"read_at,omitempty"`

	Status DeliveryStatus `json:"-"`
}

// Direction maps the wire-level agent flag onto the rendering direction.
func (m ChatMessage) Direction() Direction {
	if m.IsAgentReply {
		return DirectionAgent
	}
	return DirectionRequester
}

// IsRead reports whether the counterpart has viewed the message.
func (m ChatMessage) IsRead() bool {
	return m.ReadAt != nil
}
