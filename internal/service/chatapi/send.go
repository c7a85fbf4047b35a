package chatapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"TicketChat/entity"
)

type sendRequest struct {
	Body           string `json:"body"`
	IsInternalNote bool   `json:"is_internal_note"`
}

type sendResponse struct {
	Success bool                `json:"success"`
	Error   string              `json:"error,omitempty"`
	Message *entity.ChatMessage `json:"message,omitempty"`
}

// SendMessage posts a new message and returns the server-confirmed copy
// carrying the authoritative id.
func (c *Client) SendMessage(ctx context.Context, ticketID, body string, isInternalNote bool) (*entity.ChatMessage, error) {
	raw, err := c.postJSON(ctx, c.ticketURL(ticketID, "messages"), sendRequest{
		Body:           body,
		IsInternalNote: isInternalNote,
	})
	if err != nil {
		return nil, err
	}

	var resp sendResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("parse send response: %w", err)
	}
	if !resp.Success {
		return nil, fmt.Errorf("send failed: %s", resp.Error)
	}

	c.log.With(
		slog.String("ticket_id", ticketID),
	).Debug("message sent")

	return resp.Message, nil
}

type markReadRequest struct {
	TicketID   string   `json:"ticket_id"`
	MessageIDs []string `json:"message_ids"`
}

// MarkRead reports viewed messages to the server. Callers treat this as
// fire-and-forget; only success or failure matters.
func (c *Client) MarkRead(ctx context.Context, ticketID string, messageIDs []string) error {
	if len(messageIDs) == 0 {
		return nil
	}
	_, err := c.postJSON(ctx, c.ticketURL(ticketID, "read"), markReadRequest{
		TicketID:   ticketID,
		MessageIDs: messageIDs,
	})
	return err
}
