package poll_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"TicketChat/entity"
	"TicketChat/internal/service/chatapi"
	"TicketChat/internal/service/poll"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubFetcher struct {
	mu    sync.Mutex
	conv  entity.Conversation
	err   error
	calls int
}

func (s *stubFetcher) GetConversation(_ context.Context, _ string) (*entity.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	conv := s.conv
	return &conv, nil
}

func (s *stubFetcher) set(conv entity.Conversation) {
	s.mu.Lock()
	s.conv = conv
	s.mu.Unlock()
}

func (s *stubFetcher) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type eventSink struct {
	mu       sync.Mutex
	messages []entity.ChatMessage
	updates  []time.Time
}

func (e *eventSink) handlers() poll.Handlers {
	return poll.Handlers{
		OnNewMessage: func(msg entity.ChatMessage, _ string) {
			e.mu.Lock()
			e.messages = append(e.messages, msg)
			e.mu.Unlock()
		},
		OnTicketUpdate: func(_ string, updatedAt time.Time) {
			e.mu.Lock()
			e.updates = append(e.updates, updatedAt)
			e.mu.Unlock()
		},
	}
}

func (e *eventSink) messageCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.messages)
}

func (e *eventSink) updateCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.updates)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func snapshot(updatedAt time.Time, msgs ...entity.ChatMessage) entity.Conversation {
	return entity.Conversation{
		TicketID:  "t-1",
		Status:    "open",
		UpdatedAt: updatedAt,
		Messages:  msgs,
	}
}

func TestFirstPollRecordsWithoutEmitting(t *testing.T) {
	base := time.Now()
	fetch := &stubFetcher{}
	fetch.set(snapshot(base,
		entity.ChatMessage{ID: entity.ServerID("m1"), Body: "old", CreatedAt: base.Add(-time.Minute)},
		entity.ChatMessage{ID: entity.ServerID("m2"), Body: "older history", CreatedAt: base},
	))

	sink := &eventSink{}
	p := poll.New(fetch, 5*time.Millisecond, sink.handlers(), discardLogger())
	p.Start("t-1")
	defer p.Stop()

	waitFor(t, time.Second, func() bool { return fetch.count() >= 3 })
	if sink.messageCount() != 0 {
		t.Fatalf("opening a conversation replayed history: %d events", sink.messageCount())
	}
	if sink.updateCount() != 0 {
		t.Fatalf("unchanged snapshot emitted ticket updates: %d", sink.updateCount())
	}
}

func TestPollEmitsOnlyTheLatestNewMessage(t *testing.T) {
	base := time.Now()
	fetch := &stubFetcher{}
	fetch.set(snapshot(base, entity.ChatMessage{ID: entity.ServerID("m1"), Body: "hello", CreatedAt: base}))

	sink := &eventSink{}
	p := poll.New(fetch, 5*time.Millisecond, sink.handlers(), discardLogger())
	p.Start("t-1")
	defer p.Stop()

	waitFor(t, time.Second, func() bool { return fetch.count() >= 1 })

	// Two messages land between polls; only the newest is signaled, the
	// reconciliation layer re-fetches for completeness.
	fetch.set(snapshot(base.Add(time.Second),
		entity.ChatMessage{ID: entity.ServerID("m1"), Body: "hello", CreatedAt: base},
		entity.ChatMessage{ID: entity.ServerID("m2"), Body: "missed", CreatedAt: base.Add(500 * time.Millisecond)},
		entity.ChatMessage{ID: entity.ServerID("m3"), Body: "latest", CreatedAt: base.Add(time.Second)},
	))

	waitFor(t, time.Second, func() bool { return sink.messageCount() >= 1 })

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.messages) != 1 {
		t.Fatalf("expected a single synthesized event, got %d", len(sink.messages))
	}
	if sink.messages[0].ID.Server != "m3" {
		t.Fatalf("expected the latest message m3, got %s", sink.messages[0].ID.Server)
	}
	if sink.messages[0].Status != entity.DeliverySent {
		t.Fatalf("poll-sourced message should be sent, got %q", sink.messages[0].Status)
	}
}

func TestPollEmitsTicketUpdateOnTimestampChange(t *testing.T) {
	base := time.Now()
	fetch := &stubFetcher{}
	fetch.set(snapshot(base))

	sink := &eventSink{}
	p := poll.New(fetch, 5*time.Millisecond, sink.handlers(), discardLogger())
	p.Start("t-1")
	defer p.Stop()

	waitFor(t, time.Second, func() bool { return fetch.count() >= 1 })
	fetch.set(snapshot(base.Add(time.Minute)))

	waitFor(t, time.Second, func() bool { return sink.updateCount() >= 1 })
	if sink.messageCount() != 0 {
		t.Fatalf("field change alone must not synthesize messages, got %d", sink.messageCount())
	}
}

func TestPollerKeepsTickingWhenUnauthorized(t *testing.T) {
	fetch := &stubFetcher{err: chatapi.ErrUnauthorized}

	p := poll.New(fetch, 5*time.Millisecond, poll.Handlers{}, discardLogger())
	p.Start("t-1")
	defer p.Stop()

	waitFor(t, time.Second, func() bool { return fetch.count() >= 3 })

	if !p.IsPolling() {
		t.Fatal("poller must keep its timer running on 401")
	}
	if p.Healthy() {
		t.Fatal("unauthorized poller must not report healthy")
	}
	if !errors.Is(p.LastError(), chatapi.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", p.LastError())
	}
}

func TestStartWhilePollingIsIgnored(t *testing.T) {
	fetch := &stubFetcher{}
	fetch.set(snapshot(time.Now()))

	p := poll.New(fetch, 5*time.Millisecond, poll.Handlers{}, discardLogger())
	p.Start("t-1")
	defer p.Stop()

	p.Start("t-2")
	if !p.IsPolling() {
		t.Fatal("poller should still be running")
	}

	p.Stop()
	p.Stop()
	if p.IsPolling() {
		t.Fatal("poller should be stopped")
	}
}
