package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"TicketChat/internal/lib/sl"
	"TicketChat/internal/service/push"
)

// Supervisor is the single source of truth for the push channel's
// connection state and the reconnection policy. An unexpected drop
// schedules a reconnect with exponential backoff (base delay doubling per
// consecutive failure); after the attempt cap only ForceReconnect resumes.
// Transport errors alone never schedule reconnection, and the polling
// fallback runs independently of anything the supervisor does.
type Supervisor struct {
	connect     func(ctx context.Context) error
	teardown    func()
	baseDelay   time.Duration
	maxAttempts int
	log         *slog.Logger

	mu       sync.Mutex
	ctx      context.Context
	state    push.ConnectionState
	attempts int
	timer    *time.Timer
	stopped  bool
}

func NewSupervisor(connect func(ctx context.Context) error, baseDelay time.Duration, maxAttempts int, logger *slog.Logger) *Supervisor {
	return &Supervisor{
		connect:     connect,
		baseDelay:   baseDelay,
		maxAttempts: maxAttempts,
		log:         logger.With(sl.Module("connection supervisor")),
		state:       push.StateDisconnected,
	}
}

// Start performs the initial connect attempt. A failure is treated like an
// unexpected drop and begins the backoff schedule; missing credentials end
// the push channel's participation silently.
func (s *Supervisor) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.stopped = false
	s.mu.Unlock()

	s.attempt()
}

// Stop cancels any pending reconnect and freezes the supervisor. Used on
// deliberate teardown so no timer reconnects after intentional shutdown.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// HandleConnectionChange is wired as the push client's OnConnectionChange
// handler. Connected resets the failure counter; disconnected means an
// unexpected drop and schedules reconnection.
func (s *Supervisor) HandleConnectionChange(state push.ConnectionState) {
	s.mu.Lock()
	s.state = state
	stopped := s.stopped
	s.mu.Unlock()

	switch state {
	case push.StateConnected:
		s.mu.Lock()
		s.attempts = 0
		s.mu.Unlock()
	case push.StateDisconnected:
		if !stopped {
			s.scheduleReconnect()
		}
	case push.StateError:
		// Raised via OnError by the client; an error alone does not
		// schedule reconnection, only an unexpected disconnect does.
	}
}

// PushState returns the current push channel state.
func (s *Supervisor) PushState() push.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Attempts returns the consecutive failed connect count.
func (s *Supervisor) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// ForceReconnect is the manual recovery path once the attempt cap is
// reached. It resets the counter and attempts immediately.
func (s *Supervisor) ForceReconnect() {
	s.mu.Lock()
	s.attempts = 0
	s.stopped = false
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()

	s.attempt()
}

// scheduleReconnect arms the backoff timer for the next attempt. The delay
// doubles with each consecutive failure already recorded.
func (s *Supervisor) scheduleReconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || s.timer != nil {
		return
	}
	if s.attempts >= s.maxAttempts {
		s.log.Warn("reconnect attempts exhausted, waiting for manual reconnect",
			slog.Int("attempts", s.attempts),
		)
		return
	}

	delay := s.backoffDelay(s.attempts)
	s.log.Info("reconnect scheduled",
		slog.Duration("delay", delay),
		slog.Int("attempt", s.attempts+1),
	)
	s.timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		s.timer = nil
		s.mu.Unlock()
		s.attempt()
	})
}

// attempt runs one connect. Success is reported back through
// HandleConnectionChange by the push client itself.
func (s *Supervisor) attempt() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	ctx := s.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Unlock()

	err := s.connect(ctx)
	if err == nil {
		// Stop may have raced the dial; a connection completing after
		// deliberate teardown must not outlive it.
		s.mu.Lock()
		stopped := s.stopped
		s.mu.Unlock()
		if stopped && s.teardown != nil {
			s.log.Debug("connect finished after stop, tearing down")
			s.teardown()
		}
		return
	}
	if errors.Is(err, push.ErrNoCredentials) {
		// No retry without credentials; polling carries the session.
		return
	}

	s.mu.Lock()
	s.attempts++
	s.mu.Unlock()

	s.log.Warn("connect failed", sl.Err(err))
	s.scheduleReconnect()
}

func (s *Supervisor) backoffDelay(failures int) time.Duration {
	delay := s.baseDelay
	for i := 0; i < failures; i++ {
		delay *= 2
	}
	return delay
}
