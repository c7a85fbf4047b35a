package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"TicketChat/internal/config"
	"TicketChat/internal/service/credentials"
	"TicketChat/internal/service/push"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type connectRecorder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (r *connectRecorder) connect(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return r.err
}

func (r *connectRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
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

func TestSupervisorReconnectsAfterUnexpectedDrop(t *testing.T) {
	rec := &connectRecorder{}
	sup := NewSupervisor(rec.connect, 5*time.Millisecond, 5, discardLogger())
	defer sup.Stop()

	sup.Start(context.Background())
	if rec.count() != 1 {
		t.Fatalf("expected one initial connect, got %d", rec.count())
	}

	sup.HandleConnectionChange(push.StateConnected)
	sup.HandleConnectionChange(push.StateDisconnected)

	waitFor(t, time.Second, func() bool { return rec.count() >= 2 })
}

func TestSupervisorErrorAloneDoesNotReconnect(t *testing.T) {
	rec := &connectRecorder{}
	sup := NewSupervisor(rec.connect, time.Millisecond, 5, discardLogger())
	defer sup.Stop()

	sup.Start(context.Background())
	sup.HandleConnectionChange(push.StateConnected)
	sup.HandleConnectionChange(push.StateError)

	time.Sleep(20 * time.Millisecond)
	if rec.count() != 1 {
		t.Fatalf("transport error scheduled a reconnect: %d connects", rec.count())
	}
	if sup.PushState() != push.StateError {
		t.Fatalf("expected error state, got %s", sup.PushState())
	}
}

func TestSupervisorStopsAfterAttemptCap(t *testing.T) {
	rec := &connectRecorder{err: errors.New("refused")}
	sup := NewSupervisor(rec.connect, time.Millisecond, 3, discardLogger())
	defer sup.Stop()

	sup.Start(context.Background())

	// Initial attempt fails, then retries double the delay until the
	// counter hits the cap: three connects in total.
	waitFor(t, time.Second, func() bool { return rec.count() == 3 })
	time.Sleep(30 * time.Millisecond)
	if rec.count() != 3 {
		t.Fatalf("expected retries to stop at the cap, got %d connects", rec.count())
	}
	if sup.Attempts() != 3 {
		t.Fatalf("expected 3 recorded failures, got %d", sup.Attempts())
	}
}

func TestForceReconnectResetsExhaustedSupervisor(t *testing.T) {
	rec := &connectRecorder{err: errors.New("refused")}
	sup := NewSupervisor(rec.connect, time.Millisecond, 2, discardLogger())
	defer sup.Stop()

	sup.Start(context.Background())
	waitFor(t, time.Second, func() bool { return rec.count() == 2 })

	rec.mu.Lock()
	rec.err = nil
	rec.mu.Unlock()

	before := rec.count()
	sup.ForceReconnect()
	if rec.count() != before+1 {
		t.Fatalf("force reconnect should attempt immediately, got %d connects", rec.count())
	}
	if sup.Attempts() != 0 {
		t.Fatalf("force reconnect should reset the counter, got %d", sup.Attempts())
	}
}

func TestSupervisorSkipsSilentlyWithoutCredentials(t *testing.T) {
	rec := &connectRecorder{err: push.ErrNoCredentials}
	sup := NewSupervisor(rec.connect, time.Millisecond, 5, discardLogger())
	defer sup.Stop()

	sup.Start(context.Background())

	time.Sleep(20 * time.Millisecond)
	if rec.count() != 1 {
		t.Fatalf("missing credentials must not retry, got %d connects", rec.count())
	}
	if sup.Attempts() != 0 {
		t.Fatalf("missing credentials must not count as failure, got %d", sup.Attempts())
	}
}

func TestTransportErrorReachesSupervisor(t *testing.T) {
	s := New(&config.Config{}, credentials.NewStatic("tok", "u-1", true), nil, discardLogger())

	s.handleError(errors.New("write new_message: broken pipe"))

	if s.sup.PushState() != push.StateError {
		t.Fatalf("expected error state, got %s", s.sup.PushState())
	}
	if s.sup.Attempts() != 0 {
		t.Fatalf("a transport error alone must not count as a failed connect, got %d", s.sup.Attempts())
	}
	if s.Status() == StatusConnected {
		t.Fatal("errored push channel must not display as connected")
	}
}

func TestSupervisorBackoffDoubles(t *testing.T) {
	sup := NewSupervisor(nil, 3*time.Second, 5, discardLogger())

	want := []time.Duration{3 * time.Second, 6 * time.Second, 12 * time.Second, 24 * time.Second, 48 * time.Second}
	for failures, expected := range want {
		if got := sup.backoffDelay(failures); got != expected {
			t.Fatalf("failures=%d: expected %s, got %s", failures, expected, got)
		}
	}
}

func TestStopDuringConnectTearsDownLateConnection(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	connect := func(_ context.Context) error {
		close(entered)
		<-release
		return nil
	}

	sup := NewSupervisor(connect, time.Millisecond, 5, discardLogger())
	var mu sync.Mutex
	teardowns := 0
	sup.teardown = func() {
		mu.Lock()
		teardowns++
		mu.Unlock()
	}

	go sup.Start(context.Background())
	<-entered
	sup.Stop()
	close(release)

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return teardowns == 1
	})
}

func TestSupervisorStopCancelsPendingReconnect(t *testing.T) {
	rec := &connectRecorder{err: errors.New("refused")}
	sup := NewSupervisor(rec.connect, 10*time.Millisecond, 5, discardLogger())

	sup.Start(context.Background())
	sup.Stop()

	count := rec.count()
	time.Sleep(50 * time.Millisecond)
	if rec.count() != count {
		t.Fatalf("reconnect fired after Stop: %d -> %d", count, rec.count())
	}
}
