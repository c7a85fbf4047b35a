// Package push maintains the websocket channel that delivers conversation
// events in real time. The client authenticates with an explicit handshake
// event after dialing, joins per-ticket rooms, and reports unexpected
// drops so the supervisor can schedule reconnection. It never retries the
// handshake on its own.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"TicketChat/entity"
	"TicketChat/internal/config"
	"TicketChat/internal/lib/sl"
	"TicketChat/internal/service/credentials"
)

const writeWait = 10 * time.Second

// ConnectionState of the push channel.
type ConnectionState string

const (
	StateConnected    ConnectionState = "connected"
	StateDisconnected ConnectionState = "disconnected"
	StateError        ConnectionState = "error"
)

// ErrNoCredentials is returned by Connect when no token or user id is
// available. The session degrades to polling-only without surfacing an
// error to the user.
var ErrNoCredentials = errors.New("push channel skipped: no credentials")

// Handlers receives events decoded from the channel. Nil fields are
// skipped. OnConnectionChange fires on successful connects and on
// unexpected drops; a deliberate Disconnect stays silent so the caller
// can tell the two apart.
type Handlers struct {
	OnNewMessage       func(msg entity.ChatMessage, ticketID string)
	OnTicketUpdate     func(update entity.TicketUpdatePayload)
	OnMessageStatus    func(messageID, status string)
	OnUserTyping       func(info entity.TypingPayload)
	OnError            func(err error)
	OnConnectionChange func(state ConnectionState)
}

type Client struct {
	url              string
	handshakeTimeout time.Duration
	creds            credentials.Source
	handlers         Handlers
	log              *slog.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	closing   bool

	// writeMu serializes frame writes. The transport allows a single
	// concurrent writer, but events are written both from the consuming
	// thread and from reconnect timer goroutines.
	writeMu sync.Mutex
}

func New(conf *config.Config, creds credentials.Source, handlers Handlers, logger *slog.Logger) *Client {
	return &Client{
		url:              conf.Push.URL,
		handshakeTimeout: conf.HandshakeTimeout(),
		creds:            creds,
		handlers:         handlers,
		log:              logger.With(sl.Module("push channel")),
	}
}

// Connect dials the transport and performs the chat_authenticate handshake.
// The connection is not usable until the server acknowledges with
// chat_authenticated (or chat_connected). Missing credentials are a silent
// skip, not an error surfaced to the user.
func (c *Client) Connect(ctx context.Context) error {
	token, userID := c.creds.Token(), c.creds.UserID()
	if token == "" || userID == "" {
		c.log.Debug("connect skipped, no auth token or user id")
		return ErrNoCredentials
	}

	dialer := websocket.Dialer{HandshakeTimeout: c.handshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, c.url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("dial push transport: %w", err)
	}

	if err := c.authenticate(conn, token, userID); err != nil {
		_ = conn.Close()
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.closing = false
	c.mu.Unlock()

	go c.readPump(conn)

	c.log.With(
		slog.String("user_id", userID),
		sl.Secret("token", token),
	).Info("push channel connected")

	c.emitConnectionChange(StateConnected)
	return nil
}

// authenticate sends chat_authenticate and waits for the server ack.
func (c *Client) authenticate(conn *websocket.Conn, token, userID string) error {
	auth, err := entity.NewEvent(entity.EventAuthenticate, entity.AuthPayload{
		Token:        token,
		UserID:       userID,
		IsPrivileged: c.creds.IsPrivileged(),
	})
	if err != nil {
		return fmt.Errorf("build auth event: %w", err)
	}

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(auth); err != nil {
		return fmt.Errorf("send auth event: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(c.handshakeTimeout))
	var ack entity.Event
	if err := conn.ReadJSON(&ack); err != nil {
		return fmt.Errorf("read auth ack: %w", err)
	}
	_ = conn.SetReadDeadline(time.Time{})

	if ack.Type != entity.EventAuthenticated && ack.Type != entity.EventConnected {
		return fmt.Errorf("unexpected auth ack %q", ack.Type)
	}
	return nil
}

// JoinTicket subscribes the connection to a ticket room so the server
// routes that conversation's events here. No-op with a warning when the
// channel is down; the polling fallback covers the gap.
func (c *Client) JoinTicket(ticketID, userID string) {
	if !c.IsConnected() {
		c.log.Warn("join skipped, push channel not connected", slog.String("ticket_id", ticketID))
		return
	}
	c.writeEvent(entity.EventJoinTicket, entity.RoomPayload{TicketID: ticketID, UserID: userID})
}

// LeaveTicket unsubscribes from a ticket room. Safe to call when never
// joined or already disconnected.
func (c *Client) LeaveTicket(ticketID string) {
	if !c.IsConnected() {
		return
	}
	c.writeEvent(entity.EventLeaveTicket, entity.RoomPayload{TicketID: ticketID})
}

// TypingStart tells the room the local user started typing.
func (c *Client) TypingStart(ticketID, userID string) {
	if !c.IsConnected() {
		return
	}
	c.writeEvent(entity.EventTypingStart, entity.TypingPayload{TicketID: ticketID, UserID: userID})
}

// TypingStop tells the room the local user stopped typing.
func (c *Client) TypingStop(ticketID, userID string) {
	if !c.IsConnected() {
		return
	}
	c.writeEvent(entity.EventTypingStop, entity.TypingPayload{TicketID: ticketID, UserID: userID})
}

// MarkMessagesRead reports viewed messages over the push channel.
func (c *Client) MarkMessagesRead(ticketID string, messageIDs []string) {
	if !c.IsConnected() || len(messageIDs) == 0 {
		return
	}
	c.writeEvent(entity.EventMarkRead, entity.MarkReadPayload{TicketID: ticketID, MessageIDs: messageIDs})
}

// Disconnect tears the transport down deliberately. The read pump sees the
// closing flag and does not report the drop as unexpected.
func (c *Client) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	c.closing = true
	c.connected = false
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return
	}
	c.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	_ = conn.Close()
	c.log.Debug("push channel disconnected")
}

// IsConnected reports whether the channel is authenticated and usable.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// writeEvent marshals and sends one envelope. Write failures raise OnError
// but do not tear the connection down; a dead transport also fails the
// read pump, which owns drop detection.
func (c *Client) writeEvent(typ string, payload any) {
	event, err := entity.NewEvent(typ, payload)
	if err != nil {
		c.log.Error("build event", slog.String("type", typ), sl.Err(err))
		return
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}

	c.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	err = conn.WriteJSON(event)
	c.writeMu.Unlock()
	if err != nil {
		c.log.Warn("write event failed", slog.String("type", typ), sl.Err(err))
		c.emitError(fmt.Errorf("write %s: %w", typ, err))
	}
}

// readPump reads frames until the connection dies and dispatches them to
// the handlers. A read error on a connection that was not deliberately
// closed is an unexpected drop.
func (c *Client) readPump(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			deliberate := c.closing
			if c.conn == conn {
				c.conn = nil
				c.connected = false
			}
			c.mu.Unlock()

			if !deliberate {
				c.log.Warn("push channel dropped", sl.Err(err))
				c.emitConnectionChange(StateDisconnected)
			}
			return
		}
		c.dispatch(data)
	}
}

// dispatch decodes one inbound envelope. Malformed frames are logged and
// skipped; nothing may panic out of the read pump.
func (c *Client) dispatch(data []byte) {
	var event entity.Event
	if err := json.Unmarshal(data, &event); err != nil {
		c.log.Warn("unparseable frame", slog.Int("bytes", len(data)))
		return
	}

	switch event.Type {
	case entity.EventNewMessage:
		var payload entity.NewMessagePayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			c.log.Warn("decode new_message", sl.Err(err))
			return
		}
		payload.Message.Status = entity.DeliverySent
		if c.handlers.OnNewMessage != nil {
			c.handlers.OnNewMessage(payload.Message, payload.TicketID)
		}

	case entity.EventTicketUpdate:
		var payload entity.TicketUpdatePayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			c.log.Warn("decode ticket_update", sl.Err(err))
			return
		}
		if c.handlers.OnTicketUpdate != nil {
			c.handlers.OnTicketUpdate(payload)
		}

	case entity.EventMessageStatus:
		var payload entity.MessageStatusPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			c.log.Warn("decode message_status_update", sl.Err(err))
			return
		}
		if c.handlers.OnMessageStatus != nil {
			c.handlers.OnMessageStatus(payload.MessageID, payload.Status)
		}

	case entity.EventUserTyping:
		var payload entity.TypingPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			c.log.Warn("decode user_typing", sl.Err(err))
			return
		}
		if c.handlers.OnUserTyping != nil {
			c.handlers.OnUserTyping(payload)
		}

	default:
		c.log.Debug("unexpected event", slog.String("type", event.Type))
	}
}

func (c *Client) emitError(err error) {
	if c.handlers.OnError != nil {
		c.handlers.OnError(err)
	}
}

func (c *Client) emitConnectionChange(state ConnectionState) {
	if c.handlers.OnConnectionChange != nil {
		c.handlers.OnConnectionChange(state)
	}
}
