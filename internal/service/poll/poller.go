// Package poll implements the fallback delivery path: a recurring fetch of
// the full conversation snapshot, diffed against last-known pointers to
// synthesize the same events the push channel emits. It runs regardless of
// push channel health and is a trigger, not a full sync transport: only
// the latest message is signaled, the reconciliation layer re-fetches when
// it needs completeness.
package poll

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"TicketChat/entity"
	"TicketChat/internal/lib/sl"
	"TicketChat/internal/service/chatapi"
)

// Fetcher is the slice of the REST client the poller depends on.
type Fetcher interface {
	GetConversation(ctx context.Context, ticketID string) (*entity.Conversation, error)
}

// Handlers receives synthesized events. Nil fields are skipped.
type Handlers struct {
	OnNewMessage   func(msg entity.ChatMessage, ticketID string)
	OnTicketUpdate func(ticketID string, updatedAt time.Time)
}

type Poller struct {
	fetch    Fetcher
	handlers Handlers
	interval time.Duration
	log      *slog.Logger

	mu            sync.Mutex
	ticketID      string
	stop          chan struct{}
	polling       bool
	primed        bool
	lastMessageID string
	lastUpdatedAt time.Time
	lastErr       error
	unauthorized  bool
}

func New(fetch Fetcher, interval time.Duration, handlers Handlers, logger *slog.Logger) *Poller {
	return &Poller{
		fetch:    fetch,
		handlers: handlers,
		interval: interval,
		log:      logger.With(sl.Module("poll fallback")),
	}
}

// Start begins polling a ticket: pointers reset, one immediate fetch, then
// a fixed-interval ticker. Idempotent; a second call while polling warns
// and does nothing, even for a different ticket.
func (p *Poller) Start(ticketID string) {
	p.mu.Lock()
	if p.polling {
		p.mu.Unlock()
		p.log.Warn("already polling, start ignored", slog.String("ticket_id", ticketID))
		return
	}
	p.ticketID = ticketID
	p.primed = false
	p.lastMessageID = ""
	p.lastUpdatedAt = time.Time{}
	p.lastErr = nil
	p.unauthorized = false
	p.polling = true
	stop := make(chan struct{})
	p.stop = stop
	p.mu.Unlock()

	p.log.Debug("polling started", slog.String("ticket_id", ticketID))

	go p.run(ticketID, stop)
}

// Stop cancels the recurring fetch. Idempotent.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.polling {
		return
	}
	close(p.stop)
	p.polling = false
	p.log.Debug("polling stopped", slog.String("ticket_id", p.ticketID))
}

// IsPolling reports whether the timer is running.
func (p *Poller) IsPolling() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.polling
}

// Healthy reports whether the last poll succeeded. Combined with the push
// state to derive the connected/polling/offline display status.
func (p *Poller) Healthy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.polling && p.lastErr == nil
}

// LastError returns the most recent poll failure, if any.
func (p *Poller) LastError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

func (p *Poller) run(ticketID string, stop chan struct{}) {
	p.pollOnce(ticketID)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.pollOnce(ticketID)
		}
	}
}

// pollOnce fetches the snapshot and diffs it against the last-known
// pointers. The first successful poll only records them so opening a
// conversation never replays history as new. Errors never stop the timer:
// a 401 flags the session as unauthorized for the auth layer to handle,
// anything else is transient and just logged.
func (p *Poller) pollOnce(ticketID string) {
	conv, err := p.fetch.GetConversation(context.Background(), ticketID)
	if err != nil {
		p.mu.Lock()
		p.lastErr = err
		wasUnauthorized := p.unauthorized
		p.unauthorized = errors.Is(err, chatapi.ErrUnauthorized)
		p.mu.Unlock()

		if errors.Is(err, chatapi.ErrUnauthorized) {
			if !wasUnauthorized {
				p.log.Error("poll unauthorized, session needs re-login", slog.String("ticket_id", ticketID))
			}
			return
		}
		p.log.Warn("poll tick failed", slog.String("ticket_id", ticketID), sl.Err(err))
		return
	}

	last, hasLast := conv.LastMessage()

	p.mu.Lock()
	p.lastErr = nil
	p.unauthorized = false

	if !p.primed {
		// First successful poll: record, never emit.
		p.primed = true
		if hasLast {
			p.lastMessageID = last.ID.String()
		}
		p.lastUpdatedAt = conv.UpdatedAt
		p.mu.Unlock()
		return
	}

	newMessage := hasLast && last.ID.String() != p.lastMessageID
	if newMessage {
		p.lastMessageID = last.ID.String()
	}
	updated := !conv.UpdatedAt.Equal(p.lastUpdatedAt)
	if updated {
		p.lastUpdatedAt = conv.UpdatedAt
	}
	p.mu.Unlock()

	if newMessage && p.handlers.OnNewMessage != nil {
		last.Status = entity.DeliverySent
		p.handlers.OnNewMessage(last, ticketID)
	}
	if updated && p.handlers.OnTicketUpdate != nil {
		p.handlers.OnTicketUpdate(ticketID, conv.UpdatedAt)
	}
}
