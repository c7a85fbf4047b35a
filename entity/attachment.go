package entity

import (
	"errors"
	"fmt"
	"time"
)

// MaxFileSize is the maximum allowed file size for uploads (2 MB).
const MaxFileSize = 2 << 20

// ErrFileTooLarge is returned when an uploaded file exceeds MaxFileSize.
var ErrFileTooLarge = errors.New("file too large")

// FileTooLargeError wraps ErrFileTooLarge with details about the offending file.
func FileTooLargeError(filename string, size int64) error {
	return fmt.Errorf("%w: %q is %d bytes, limit is %d MB", ErrFileTooLarge, filename, size, MaxFileSize>>20)
}

// Attachment represents a file attached to a ticket conversation. The
// binary itself is fetched separately; this is only the reference carried
// by the conversation snapshot and rendered as a synthetic message entry.
// The URL field is computed at read-time and not stored.
type Attachment struct {
	FileID     string    `json:"file_id"`
	MessageID  string    `json:"message_id,omitempty"`
	Filename   string    `json:"filename"`
	MIMEType   string    `json:"mime_type"`
	Size       int64     `json:"size"`
	FromAgent  bool      `json:"from_agent"`
	UploadedAt time.Time `json:"uploaded_at"`
	URL        string    `json:"url,omitempty"`
}

// AsMessage renders the attachment as a synthetic conversation entry so it
// sorts chronologically among regular messages.
func (a Attachment) AsMessage(ticketID string) ChatMessage {
	att := a
	return ChatMessage{
		ID:           ServerID("file:" + a.FileID),
		TicketID:     ticketID,
		IsAgentReply: a.FromAgent,
		Kind:         KindAttachment,
		Attachment:   &att,
		CreatedAt:    a.UploadedAt,
		Status:       DeliverySent,
	}
}
