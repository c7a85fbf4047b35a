package chatapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"TicketChat/entity"
)

type conversationResponse struct {
	Success      bool                 `json:"success"`
	Error        string               `json:"error,omitempty"`
	Conversation *entity.Conversation `json:"conversation,omitempty"`
}

// GetConversation fetches the full conversation snapshot for a ticket.
func (c *Client) GetConversation(ctx context.Context, ticketID string) (*entity.Conversation, error) {
	body, err := c.get(ctx, c.ticketURL(ticketID, "conversation"))
	if err != nil {
		return nil, err
	}

	var resp conversationResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse conversation response: %w", err)
	}
	if !resp.Success || resp.Conversation == nil {
		return nil, fmt.Errorf("conversation fetch failed: %s", resp.Error)
	}

	c.log.With(
		slog.String("ticket_id", ticketID),
		slog.Int("messages", len(resp.Conversation.Messages)),
		slog.Int("attachments", len(resp.Conversation.Attachments)),
	).Debug("conversation fetched")

	return resp.Conversation, nil
}
