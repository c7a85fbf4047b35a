package ticket

import (
	"TicketChat/entity"
)

// Core is the slice of the backend core the ticket handlers call into.
type Core interface {
	GetConversation(ticketID string) (entity.Conversation, error)
	SendMessage(ticketID, body string, isAgentReply bool) (entity.ChatMessage, error)
	SaveAttachment(ticketID, filename, mimeType string, size int64, fromAgent bool) (entity.Attachment, error)
	MarkRead(ticketID string, messageIDs []string) error
	UpdateTicketField(ticketID, field, value string) error
}

// fromAgent reports whether the request was made by a privileged
// (agent-side) caller. The client sets the header from its credentials.
func fromAgent(headerValue string) bool {
	return headerValue == "true"
}
