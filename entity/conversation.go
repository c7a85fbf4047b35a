package entity

import (
	"time"
)

// Conversation is the full snapshot of a ticket's chat as returned by the
// conversation fetch endpoint: ordered messages, attachment references and
// the conversation-level fields the polling fallback diffs against.
type Conversation struct {
	TicketID        string        `json:"ticket_id"`
	Status          string        `json:"status"`
	Priority        string        `json:"priority"`
	AssignedAgentID string        `json:"assigned_agent_id,omitempty"`
	UpdatedAt       time.Time     `json:"updated_at"`
	Messages        []ChatMessage `json:"messages"`
	Attachments     []Attachment  `json:"attachments"`
}

// LastMessage returns the newest message of the snapshot, or false when
// the conversation is empty.
func (c Conversation) LastMessage() (ChatMessage, bool) {
	if len(c.Messages) == 0 {
		return ChatMessage{}, false
	}
	return c.Messages[len(c.Messages)-1], true
}
