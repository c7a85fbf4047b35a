package core

import (
	"fmt"
	"log/slog"

	"TicketChat/entity"
)

// GetConversation returns the full conversation snapshot for a ticket.
func (c *Core) GetConversation(ticketID string) (entity.Conversation, error) {
	conv, err := c.repo.GetConversation(ticketID)
	if err != nil {
		return entity.Conversation{}, fmt.Errorf("get conversation: %w", err)
	}
	return conv, nil
}

// SendMessage stores a chat message and announces it to everyone joined to
// the ticket's room. The confirmed message carries the server-assigned id.
func (c *Core) SendMessage(ticketID, body string, isAgentReply bool) (entity.ChatMessage, error) {
	msg, err := c.repo.AppendMessage(ticketID, body, isAgentReply)
	if err != nil {
		return entity.ChatMessage{}, fmt.Errorf("append message: %w", err)
	}

	c.hub.BroadcastNewMessage(ticketID, msg)

	return msg, nil
}

// SaveAttachment records an uploaded file on the ticket and announces the
// synthetic attachment message into the room.
func (c *Core) SaveAttachment(ticketID, filename, mimeType string, size int64, fromAgent bool) (entity.Attachment, error) {
	if size > entity.MaxFileSize {
		return entity.Attachment{}, entity.FileTooLargeError(filename, size)
	}

	att, err := c.repo.AddAttachment(ticketID, filename, mimeType, size, fromAgent)
	if err != nil {
		return entity.Attachment{}, fmt.Errorf("add attachment: %w", err)
	}

	c.hub.BroadcastNewMessage(ticketID, att.AsMessage(ticketID))

	return att, nil
}

// MarkRead flips the given messages to read and announces a status update
// for every message that actually transitioned.
func (c *Core) MarkRead(ticketID string, messageIDs []string) error {
	changed, err := c.repo.MarkMessagesRead(ticketID, messageIDs)
	if err != nil {
		return fmt.Errorf("mark messages read: %w", err)
	}

	for _, id := range changed {
		c.hub.BroadcastMessageStatus(ticketID, id, "read")
	}

	return nil
}

// HandleMarkRead serves read receipts arriving over the websocket.
func (c *Core) HandleMarkRead(ticketID string, messageIDs []string) ([]string, error) {
	changed, err := c.repo.MarkMessagesRead(ticketID, messageIDs)
	if err != nil {
		return nil, fmt.Errorf("mark messages read: %w", err)
	}
	return changed, nil
}

// UpdateTicketField changes a ticket-level field and announces the update.
func (c *Core) UpdateTicketField(ticketID, field, value string) error {
	updatedAt, err := c.repo.UpdateField(ticketID, field, value)
	if err != nil {
		return fmt.Errorf("update ticket field: %w", err)
	}

	c.hub.BroadcastTicketUpdate(entity.TicketUpdatePayload{
		TicketID:  ticketID,
		Field:     field,
		Value:     value,
		UpdatedAt: updatedAt,
	})

	c.log.With(
		slog.String("ticket", ticketID),
		slog.String("field", field),
	).Debug("ticket field updated")

	return nil
}
