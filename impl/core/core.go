package core

import (
	"errors"
	"log/slog"
	"time"

	"TicketChat/entity"
	"TicketChat/internal/lib/sl"
)

// Repository is the ticket store the backend core runs on.
type Repository interface {
	GetConversation(ticketID string) (entity.Conversation, error)
	AppendMessage(ticketID, body string, isAgentReply bool) (entity.ChatMessage, error)
	AddAttachment(ticketID, filename, mimeType string, size int64, fromAgent bool) (entity.Attachment, error)
	MarkMessagesRead(ticketID string, messageIDs []string) ([]string, error)
	UpdateField(ticketID, field, value string) (time.Time, error)
}

// Hub is the push side of the backend: room-scoped event broadcast.
type Hub interface {
	BroadcastNewMessage(ticketID string, msg entity.ChatMessage)
	BroadcastTicketUpdate(payload entity.TicketUpdatePayload)
	BroadcastMessageStatus(ticketID, messageID, status string)
}

// Core wires the ticket store to the push hub: every mutation is stored
// first and then announced into the ticket's room.
type Core struct {
	repo   Repository
	hub    Hub
	apiKey string
	log    *slog.Logger
}

func New(repo Repository, hub Hub, logger *slog.Logger) *Core {
	return &Core{
		repo: repo,
		hub:  hub,
		log:  logger.With(sl.Module("backend core")),
	}
}

// SetAuthKey pins the bearer token accepted by the API and the websocket
// handshake. An empty key accepts any non-empty token.
func (c *Core) SetAuthKey(key string) {
	c.apiKey = key
}

// Authorize validates a bearer token for both transports.
func (c *Core) Authorize(token string) error {
	if token == "" {
		return errors.New("missing token")
	}
	if c.apiKey != "" && token != c.apiKey {
		return errors.New("invalid token")
	}
	return nil
}
