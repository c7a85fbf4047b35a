// Package repository holds the in-memory ticket store backing the
// reference backend. It keeps the conversation state the client contract
// needs: messages, attachment references, read receipts and the
// conversation-level fields the polling fallback diffs against.
package repository

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"TicketChat/entity"
	"TicketChat/internal/lib/sl"
)

// ErrTicketNotFound is returned for unknown ticket ids.
var ErrTicketNotFound = errors.New("ticket not found")

type ticketRecord struct {
	status          string
	priority        string
	assignedAgentID string
	updatedAt       time.Time
	messages        []entity.ChatMessage
	attachments     []entity.Attachment
}

type Store struct {
	mu      sync.RWMutex
	tickets map[string]*ticketRecord
	log     *slog.Logger
}

func NewStore(logger *slog.Logger) *Store {
	return &Store{
		tickets: make(map[string]*ticketRecord),
		log:     logger.With(sl.Module("ticket store")),
	}
}

// SeedTicket creates an empty conversation for a ticket.
func (s *Store) SeedTicket(ticketID, status, priority, assignedAgentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tickets[ticketID]; ok {
		return
	}
	s.tickets[ticketID] = &ticketRecord{
		status:          status,
		priority:        priority,
		assignedAgentID: assignedAgentID,
		updatedAt:       time.Now(),
	}
	s.log.Debug("ticket seeded", slog.String("ticket_id", ticketID))
}

// GetConversation returns a copy of the full conversation snapshot.
func (s *Store) GetConversation(ticketID string) (entity.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.tickets[ticketID]
	if !ok {
		return entity.Conversation{}, fmt.Errorf("%w: %s", ErrTicketNotFound, ticketID)
	}

	conv := entity.Conversation{
		TicketID:        ticketID,
		Status:          rec.status,
		Priority:        rec.priority,
		AssignedAgentID: rec.assignedAgentID,
		UpdatedAt:       rec.updatedAt,
		Messages:        make([]entity.ChatMessage, len(rec.messages)),
		Attachments:     make([]entity.Attachment, len(rec.attachments)),
	}
	copy(conv.Messages, rec.messages)
	copy(conv.Attachments, rec.attachments)
	return conv, nil
}

// AppendMessage stores a new message with a server-assigned id and bumps
// the conversation's updated-at stamp.
func (s *Store) AppendMessage(ticketID, body string, isAgentReply bool) (entity.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.tickets[ticketID]
	if !ok {
		return entity.ChatMessage{}, fmt.Errorf("%w: %s", ErrTicketNotFound, ticketID)
	}

	msg := entity.ChatMessage{
		ID:           entity.ServerID(uuid.NewString()),
		TicketID:     ticketID,
		IsAgentReply: isAgentReply,
		Body:         body,
		Kind:         entity.KindText,
		CreatedAt:    time.Now(),
	}
	rec.messages = append(rec.messages, msg)
	rec.updatedAt = msg.CreatedAt
	return msg, nil
}

// AddAttachment stores an attachment reference and bumps updated-at.
func (s *Store) AddAttachment(ticketID, filename, mimeType string, size int64, fromAgent bool) (entity.Attachment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.tickets[ticketID]
	if !ok {
		return entity.Attachment{}, fmt.Errorf("%w: %s", ErrTicketNotFound, ticketID)
	}

	att := entity.Attachment{
		FileID:     uuid.NewString(),
		Filename:   filename,
		MIMEType:   mimeType,
		Size:       size,
		FromAgent:  fromAgent,
		UploadedAt: time.Now(),
	}
	rec.attachments = append(rec.attachments, att)
	rec.updatedAt = att.UploadedAt
	return att, nil
}

// MarkMessagesRead stamps read receipts and returns the ids that actually
// transitioned.
func (s *Store) MarkMessagesRead(ticketID string, messageIDs []string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.tickets[ticketID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTicketNotFound, ticketID)
	}

	want := make(map[string]bool, len(messageIDs))
	for _, id := range messageIDs {
		want[id] = true
	}

	now := time.Now()
	var marked []string
	for i := range rec.messages {
		if rec.messages[i].ReadAt != nil || !want[rec.messages[i].ID.Server] {
			continue
		}
		readAt := now
		rec.messages[i].ReadAt = &readAt
		marked = append(marked, rec.messages[i].ID.Server)
	}
	return marked, nil
}

// UpdateField sets a conversation-level field and returns the new
// updated-at stamp.
func (s *Store) UpdateField(ticketID, field, value string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.tickets[ticketID]
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %s", ErrTicketNotFound, ticketID)
	}

	switch field {
	case "status":
		rec.status = value
	case "priority":
		rec.priority = value
	case "assigned_agent_id":
		rec.assignedAgentID = value
	default:
		return time.Time{}, fmt.Errorf("unknown conversation field %q", field)
	}
	rec.updatedAt = time.Now()
	return rec.updatedAt, nil
}
