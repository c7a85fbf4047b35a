// Package session owns the reconciled view of one open ticket
// conversation: it merges events from the push channel and the polling
// fallback into a single ordered, deduplicated message list, bridges
// optimistic sends with confirmed server state, and tracks read state.
package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"TicketChat/entity"
	"TicketChat/internal/config"
	"TicketChat/internal/lib/sl"
	"TicketChat/internal/service/credentials"
	"TicketChat/internal/service/poll"
	"TicketChat/internal/service/push"
)

// API is the slice of the REST client the session depends on.
type API interface {
	GetConversation(ctx context.Context, ticketID string) (*entity.Conversation, error)
	SendMessage(ctx context.Context, ticketID, body string, isInternalNote bool) (*entity.ChatMessage, error)
	UploadAttachment(ctx context.Context, ticketID, filename string, content io.Reader) (*entity.Attachment, error)
	MarkRead(ctx context.Context, ticketID string, messageIDs []string) error
}

// Status is the three-way display state derived from the push channel
// state combined with polling health.
type Status string

const (
	StatusConnected Status = "connected"
	StatusPolling   Status = "polling"
	StatusOffline   Status = "offline"
)

// Upload names one file queued alongside an outgoing message.
type Upload struct {
	Filename string
	Content  io.Reader
}

// Meta mirrors the conversation-level fields of the snapshot.
type Meta struct {
	Status          string
	Priority        string
	AssignedAgentID string
	UpdatedAt       time.Time
}

type Session struct {
	api    API
	push   *push.Client
	poller *poll.Poller
	sup    *Supervisor
	creds  credentials.Source
	log    *slog.Logger

	// Hooks for the consuming view. Set before Open; nil hooks are skipped.
	OnChange      func()
	OnTyping      func(info entity.TypingPayload)
	OnUploadError func(filename string, err error)
	OnError       func(err error)

	mu       sync.Mutex
	ticketID string
	opened   bool
	thread   thread
	meta     Meta
}

func New(conf *config.Config, creds credentials.Source, api API, logger *slog.Logger) *Session {
	s := &Session{
		api:   api,
		creds: creds,
		log:   logger.With(sl.Module("chat session")),
	}

	s.push = push.New(conf, creds, push.Handlers{
		OnNewMessage:       s.handleIncoming,
		OnTicketUpdate:     s.handleTicketUpdate,
		OnMessageStatus:    s.handleMessageStatus,
		OnUserTyping:       s.handleTyping,
		OnError:            s.handleError,
		OnConnectionChange: s.handleConnectionChange,
	}, logger)

	s.poller = poll.New(api, conf.PollInterval(), poll.Handlers{
		OnNewMessage:   s.handleIncoming,
		OnTicketUpdate: s.handlePollUpdate,
	}, logger)

	s.sup = NewSupervisor(s.connectAndJoin, conf.ReconnectBaseDelay(), conf.Reconnect.MaxAttempts, logger)
	s.sup.teardown = s.push.Disconnect

	return s
}

// Open loads the initial snapshot, then starts both delivery paths against
// the same ticket. Opening the view counts as viewing: pre-existing
// counterpart messages are marked read implicitly.
func (s *Session) Open(ctx context.Context, ticketID string) error {
	s.mu.Lock()
	if s.opened {
		s.mu.Unlock()
		return fmt.Errorf("session already open for ticket %s", s.ticketID)
	}
	s.mu.Unlock()

	conv, err := s.api.GetConversation(ctx, ticketID)
	if err != nil {
		return fmt.Errorf("load initial snapshot: %w", err)
	}

	s.mu.Lock()
	s.ticketID = ticketID
	s.opened = true
	s.thread.Reset(mergeSnapshot(conv))
	s.meta = Meta{
		Status:          conv.Status,
		Priority:        conv.Priority,
		AssignedAgentID: conv.AssignedAgentID,
		UpdatedAt:       conv.UpdatedAt,
	}
	unread := s.thread.UnreadCounterpart(s.creds.IsPrivileged())
	s.mu.Unlock()

	s.log.With(
		slog.String("ticket_id", ticketID),
		slog.Int("messages", len(conv.Messages)),
	).Info("conversation opened")

	s.MarkVisibleRead(unread)

	s.sup.Start(ctx)
	s.poller.Start(ticketID)
	s.notifyChange()
	return nil
}

// Close leaves the push room, stops polling and tears the channel down.
// Skipping either half would leak a timer or subscription firing against a
// conversation nobody is viewing.
func (s *Session) Close() {
	s.mu.Lock()
	if !s.opened {
		s.mu.Unlock()
		return
	}
	ticketID := s.ticketID
	s.opened = false
	s.mu.Unlock()

	s.push.LeaveTicket(ticketID)
	s.sup.Stop()
	s.push.Disconnect()
	s.poller.Stop()

	s.log.Debug("conversation closed", slog.String("ticket_id", ticketID))
}

// Send inserts an optimistic entry immediately, uploads attachments one by
// one (each failure reported individually, never blocking the rest), then
// posts the text portion. On success the entry flips to sent and one
// confirmation re-fetch reconciles the authoritative id; on failure it
// flips to error and stays visible so the user can resend.
func (s *Session) Send(ctx context.Context, body string, files []Upload) error {
	s.mu.Lock()
	if !s.opened {
		s.mu.Unlock()
		return fmt.Errorf("session not open")
	}
	ticketID := s.ticketID

	var localID string
	if body != "" {
		msg := entity.ChatMessage{
			ID:           entity.NewLocalID(),
			TicketID:     ticketID,
			IsAgentReply: s.creds.IsPrivileged(),
			Body:         body,
			Kind:         entity.KindText,
			CreatedAt:    time.Now(),
			Status:       entity.DeliverySending,
		}
		localID = msg.ID.Local
		s.thread.Merge(msg)
	}
	s.mu.Unlock()
	if localID != "" {
		s.notifyChange()
	}

	for _, f := range files {
		att, err := s.api.UploadAttachment(ctx, ticketID, f.Filename, f.Content)
		if err != nil {
			s.log.Warn("attachment upload failed",
				slog.String("filename", f.Filename),
				sl.Err(err),
			)
			if s.OnUploadError != nil {
				s.OnUploadError(f.Filename, err)
			}
			continue
		}
		s.mu.Lock()
		s.thread.Merge(att.AsMessage(ticketID))
		s.mu.Unlock()
		s.notifyChange()
	}

	if body == "" {
		return nil
	}

	msg, err := s.api.SendMessage(ctx, ticketID, body, false)
	if err != nil {
		s.mu.Lock()
		s.thread.SetStatusLocal(localID, entity.DeliveryError)
		s.mu.Unlock()
		s.notifyChange()
		return fmt.Errorf("send message: %w", err)
	}

	s.mu.Lock()
	s.thread.SetStatusLocal(localID, entity.DeliverySent)
	if msg != nil {
		msg.Status = entity.DeliverySent
		s.thread.Merge(*msg)
	}
	s.mu.Unlock()
	s.notifyChange()

	// One deterministic re-fetch so the optimistic entry is reconciled
	// with the server's version even when the send response was partial.
	s.refresh(ctx)
	return nil
}

// MarkVisibleRead stamps the given messages read locally, reports them to
// the server fire-and-forget, and echoes over the push channel. Invoked
// both on initial load and when the view scrolls new content into sight.
func (s *Session) MarkVisibleRead(messageIDs []string) {
	if len(messageIDs) == 0 {
		return
	}

	s.mu.Lock()
	ticketID := s.ticketID
	marked := s.thread.MarkRead(messageIDs, time.Now())
	s.mu.Unlock()
	if len(marked) == 0 {
		return
	}
	s.notifyChange()

	go func() {
		if err := s.api.MarkRead(context.Background(), ticketID, marked); err != nil {
			s.log.Warn("mark read failed", slog.String("ticket_id", ticketID), sl.Err(err))
		}
	}()
	s.push.MarkMessagesRead(ticketID, marked)
}

// Messages returns the reconciled list in render order.
func (s *Session) Messages() []entity.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.thread.Snapshot()
}

// Meta returns the conversation-level fields as of the last sync.
func (s *Session) Meta() Meta {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta
}

// UnreadIDs returns ids of counterpart messages not yet marked read, for
// the view to pass into MarkVisibleRead once they scroll into sight.
func (s *Session) UnreadIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.thread.UnreadCounterpart(s.creds.IsPrivileged())
}

// Status derives the three-way display state: a live push channel wins,
// else healthy polling degrades to "polling", else the session is offline.
func (s *Session) Status() Status {
	if s.sup.PushState() == push.StateConnected {
		return StatusConnected
	}
	if s.poller.Healthy() {
		return StatusPolling
	}
	return StatusOffline
}

// ForceReconnect is the manual recovery path once automatic reconnection
// gave up.
func (s *Session) ForceReconnect() {
	s.sup.ForceReconnect()
}

// Typing forwards local typing state to the room.
func (s *Session) Typing(active bool) {
	s.mu.Lock()
	ticketID := s.ticketID
	s.mu.Unlock()
	if active {
		s.push.TypingStart(ticketID, s.creds.UserID())
		return
	}
	s.push.TypingStop(ticketID, s.creds.UserID())
}

// connectAndJoin is the supervisor's connect function: dial plus rejoin of
// the open room, so reconnects restore the subscription.
func (s *Session) connectAndJoin(ctx context.Context) error {
	if err := s.push.Connect(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	opened, ticketID := s.opened, s.ticketID
	s.mu.Unlock()
	if opened {
		s.push.JoinTicket(ticketID, s.creds.UserID())
	}
	return nil
}

// handleIncoming is the unified sink for both delivery paths.
func (s *Session) handleIncoming(msg entity.ChatMessage, ticketID string) {
	s.mu.Lock()
	if !s.opened || ticketID != s.ticketID {
		s.mu.Unlock()
		s.log.Debug("event for inactive ticket dropped", slog.String("ticket_id", ticketID))
		return
	}
	changed := s.thread.Merge(msg)
	s.mu.Unlock()

	if changed {
		s.notifyChange()
	}
}

func (s *Session) handleTicketUpdate(update entity.TicketUpdatePayload) {
	s.mu.Lock()
	if !s.opened || update.TicketID != s.ticketID {
		s.mu.Unlock()
		return
	}
	switch update.Field {
	case "status":
		s.meta.Status = update.Value
	case "priority":
		s.meta.Priority = update.Value
	case "assigned_agent_id":
		s.meta.AssignedAgentID = update.Value
	}
	if update.UpdatedAt.After(s.meta.UpdatedAt) {
		s.meta.UpdatedAt = update.UpdatedAt
	}
	s.mu.Unlock()
	s.notifyChange()
}

// handlePollUpdate reacts to the fallback noticing a conversation-level
// change: the poll diff is only a trigger, the re-fetch supplies the data.
func (s *Session) handlePollUpdate(ticketID string, updatedAt time.Time) {
	s.mu.Lock()
	active := s.opened && ticketID == s.ticketID
	s.mu.Unlock()
	if !active {
		return
	}
	s.refresh(context.Background())
}

func (s *Session) handleMessageStatus(messageID, status string) {
	if status != "read" {
		return
	}
	s.mu.Lock()
	changed := s.thread.MarkReadByID(messageID, time.Now())
	s.mu.Unlock()
	if changed {
		s.notifyChange()
	}
}

func (s *Session) handleTyping(info entity.TypingPayload) {
	if s.OnTyping != nil {
		s.OnTyping(info)
	}
}

func (s *Session) handleError(err error) {
	s.log.Warn("push channel error", sl.Err(err))
	s.sup.HandleConnectionChange(push.StateError)
	if s.OnError != nil {
		s.OnError(err)
	}
	s.notifyChange()
}

func (s *Session) handleConnectionChange(state push.ConnectionState) {
	s.sup.HandleConnectionChange(state)
	s.notifyChange()
}

// refresh re-fetches the snapshot and merges it in. The dedup rule makes
// this idempotent, so racing refreshes are harmless.
func (s *Session) refresh(ctx context.Context) {
	s.mu.Lock()
	ticketID := s.ticketID
	s.mu.Unlock()

	conv, err := s.api.GetConversation(ctx, ticketID)
	if err != nil {
		s.log.Warn("refresh failed", slog.String("ticket_id", ticketID), sl.Err(err))
		return
	}

	s.mu.Lock()
	changed := false
	for _, msg := range mergeSnapshot(conv) {
		if s.thread.Merge(msg) {
			changed = true
		}
	}
	meta := Meta{
		Status:          conv.Status,
		Priority:        conv.Priority,
		AssignedAgentID: conv.AssignedAgentID,
		UpdatedAt:       conv.UpdatedAt,
	}
	if meta != s.meta {
		s.meta = meta
		changed = true
	}
	s.mu.Unlock()

	if changed {
		s.notifyChange()
	}
}

func (s *Session) notifyChange() {
	if s.OnChange != nil {
		s.OnChange()
	}
}

// mergeSnapshot flattens a conversation snapshot into renderable entries:
// regular messages plus attachments as synthetic entries sorted by their
// own upload time.
func mergeSnapshot(conv *entity.Conversation) []entity.ChatMessage {
	out := make([]entity.ChatMessage, 0, len(conv.Messages)+len(conv.Attachments))
	for _, msg := range conv.Messages {
		msg.Status = entity.DeliverySent
		out = append(out, msg)
	}
	for _, att := range conv.Attachments {
		out = append(out, att.AsMessage(conv.TicketID))
	}
	return out
}
