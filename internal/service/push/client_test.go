package push_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"TicketChat/entity"
	"TicketChat/internal/config"
	"TicketChat/internal/service/credentials"
	"TicketChat/internal/service/push"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var upgrader = websocket.Upgrader{}

// stubServer speaks the server side of the chat websocket protocol: it
// accepts the chat_authenticate handshake and hands the connection to the
// test for scripted frames.
type stubServer struct {
	srv *httptest.Server

	mu    sync.Mutex
	conns []*websocket.Conn
	auths []entity.AuthPayload
	ack   string
}

func newStubServer(t *testing.T) *stubServer {
	t.Helper()
	s := &stubServer{ack: entity.EventAuthenticated}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}

		var event entity.Event
		if err := conn.ReadJSON(&event); err != nil {
			t.Errorf("read handshake: %v", err)
			return
		}
		var auth entity.AuthPayload
		_ = json.Unmarshal(event.Data, &auth)

		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.auths = append(s.auths, auth)
		ack := s.ack
		s.mu.Unlock()

		if event.Type != entity.EventAuthenticate {
			t.Errorf("expected chat_authenticate, got %s", event.Type)
		}
		_ = conn.WriteJSON(entity.Event{Type: ack})
	}))
	t.Cleanup(func() {
		s.mu.Lock()
		for _, conn := range s.conns {
			_ = conn.Close()
		}
		s.mu.Unlock()
		s.srv.Close()
	})
	return s
}

func (s *stubServer) url() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func (s *stubServer) conn(t *testing.T) *websocket.Conn {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		if len(s.conns) > 0 {
			conn := s.conns[len(s.conns)-1]
			s.mu.Unlock()
			return conn
		}
		s.mu.Unlock()
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("no connection arrived")
	return nil
}

func newTestClient(url string, creds credentials.Source, handlers push.Handlers) *push.Client {
	conf := &config.Config{}
	conf.Push.URL = url
	conf.Push.HandshakeTimeoutMs = 2000
	return push.New(conf, creds, handlers, discardLogger())
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

func TestConnectPerformsHandshake(t *testing.T) {
	server := newStubServer(t)

	var mu sync.Mutex
	var states []push.ConnectionState
	client := newTestClient(server.url(), credentials.NewStatic("tok", "u-1", true), push.Handlers{
		OnConnectionChange: func(state push.ConnectionState) {
			mu.Lock()
			states = append(states, state)
			mu.Unlock()
		},
	})
	defer client.Disconnect()

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if !client.IsConnected() {
		t.Fatal("client should report connected")
	}

	server.mu.Lock()
	auth := server.auths[0]
	server.mu.Unlock()
	if auth.Token != "tok" || auth.UserID != "u-1" || !auth.IsPrivileged {
		t.Fatalf("unexpected handshake payload %+v", auth)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(states) != 1 || states[0] != push.StateConnected {
		t.Fatalf("expected a single connected notification, got %v", states)
	}
}

func TestConnectSkipsWithoutCredentials(t *testing.T) {
	client := newTestClient("ws://127.0.0.1:1/ws/chat", credentials.NewStatic("", "", false), push.Handlers{})

	err := client.Connect(context.Background())
	if !errors.Is(err, push.ErrNoCredentials) {
		t.Fatalf("expected ErrNoCredentials, got %v", err)
	}
}

func TestConnectRejectsUnexpectedAck(t *testing.T) {
	server := newStubServer(t)
	server.mu.Lock()
	server.ack = "something_else"
	server.mu.Unlock()

	client := newTestClient(server.url(), credentials.NewStatic("tok", "u-1", false), push.Handlers{})

	if err := client.Connect(context.Background()); err == nil {
		t.Fatal("expected handshake failure on unexpected ack")
	}
	if client.IsConnected() {
		t.Fatal("client must not report connected after failed handshake")
	}
}

func TestDispatchNewMessage(t *testing.T) {
	server := newStubServer(t)

	var mu sync.Mutex
	var got []entity.ChatMessage
	client := newTestClient(server.url(), credentials.NewStatic("tok", "u-1", false), push.Handlers{
		OnNewMessage: func(msg entity.ChatMessage, ticketID string) {
			mu.Lock()
			got = append(got, msg)
			mu.Unlock()
			if ticketID != "t-1" {
				t.Errorf("unexpected ticket id %q", ticketID)
			}
		},
	})
	defer client.Disconnect()

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	event, _ := entity.NewEvent(entity.EventNewMessage, entity.NewMessagePayload{
		TicketID: "t-1",
		Message:  entity.ChatMessage{ID: entity.ServerID("m1"), Body: "incoming", CreatedAt: time.Now()},
	})
	if err := server.conn(t).WriteJSON(event); err != nil {
		t.Fatalf("server write: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	})

	mu.Lock()
	defer mu.Unlock()
	if got[0].ID.Server != "m1" {
		t.Fatalf("expected m1, got %q", got[0].ID.Server)
	}
	if got[0].Status != entity.DeliverySent {
		t.Fatalf("pushed message should be marked sent, got %q", got[0].Status)
	}
}

func TestJoinTicketSendsRoomEvent(t *testing.T) {
	server := newStubServer(t)

	client := newTestClient(server.url(), credentials.NewStatic("tok", "u-1", false), push.Handlers{})
	defer client.Disconnect()

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	client.JoinTicket("t-1", "u-1")

	conn := server.conn(t)
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	var event entity.Event
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("server read: %v", err)
	}
	if event.Type != entity.EventJoinTicket {
		t.Fatalf("expected join_ticket_chat, got %s", event.Type)
	}
	var room entity.RoomPayload
	if err := json.Unmarshal(event.Data, &room); err != nil {
		t.Fatalf("decode room payload: %v", err)
	}
	if room.TicketID != "t-1" || room.UserID != "u-1" {
		t.Fatalf("unexpected room payload %+v", room)
	}
}

func TestConcurrentWritersAreSerialized(t *testing.T) {
	server := newStubServer(t)

	client := newTestClient(server.url(), credentials.NewStatic("tok", "u-1", false), push.Handlers{})
	defer client.Disconnect()

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	// Reconnect timers and the consuming thread write from different
	// goroutines; every frame must still arrive intact.
	const writers = 16
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client.MarkMessagesRead("t-1", []string{"m1"})
		}()
	}

	conn := server.conn(t)
	for i := 0; i < writers; i++ {
		_ = conn.SetReadDeadline(time.Now().Add(time.Second))
		var event entity.Event
		if err := conn.ReadJSON(&event); err != nil {
			t.Fatalf("frame %d corrupted: %v", i, err)
		}
		if event.Type != entity.EventMarkRead {
			t.Fatalf("frame %d: expected mark_messages_read, got %s", i, event.Type)
		}
	}
	wg.Wait()
}

func TestUnexpectedDropIsReported(t *testing.T) {
	server := newStubServer(t)

	var mu sync.Mutex
	var states []push.ConnectionState
	client := newTestClient(server.url(), credentials.NewStatic("tok", "u-1", false), push.Handlers{
		OnConnectionChange: func(state push.ConnectionState) {
			mu.Lock()
			states = append(states, state)
			mu.Unlock()
		},
	})

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	// Server kills the connection without a close handshake.
	_ = server.conn(t).Close()

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(states) == 2
	})

	mu.Lock()
	defer mu.Unlock()
	if states[1] != push.StateDisconnected {
		t.Fatalf("expected disconnected, got %v", states)
	}
}

func TestDeliberateDisconnectStaysSilent(t *testing.T) {
	server := newStubServer(t)

	var mu sync.Mutex
	var states []push.ConnectionState
	client := newTestClient(server.url(), credentials.NewStatic("tok", "u-1", false), push.Handlers{
		OnConnectionChange: func(state push.ConnectionState) {
			mu.Lock()
			states = append(states, state)
			mu.Unlock()
		},
	})

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	client.Disconnect()

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if len(states) != 1 {
		t.Fatalf("deliberate disconnect must not notify, got %v", states)
	}
	if client.IsConnected() {
		t.Fatal("client should report disconnected")
	}
}
