package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"TicketChat/entity"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 64 << 10
	authWait       = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client represents a single websocket connection from a chat participant.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan entity.Event
	userID string
	joined map[string]bool
	log    *slog.Logger
}

// readPump pumps events from the websocket connection to the hub.
// It handles ping/pong keepalive and detects disconnects.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		c.handleEvent(raw)
	}
}

// writePump pumps events from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(event); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleEvent parses and dispatches one inbound event from the client.
func (c *Client) handleEvent(raw []byte) {
	var event entity.Event
	if err := json.Unmarshal(raw, &event); err != nil {
		c.log.Warn("failed to parse client ws event", slog.String("error", err.Error()))
		return
	}

	switch event.Type {
	case entity.EventJoinTicket:
		var data entity.RoomPayload
		if err := json.Unmarshal(event.Data, &data); err != nil || data.TicketID == "" {
			c.log.Warn("failed to parse join_ticket_chat data")
			return
		}
		c.hub.join(data.TicketID, c)

	case entity.EventLeaveTicket:
		var data entity.RoomPayload
		if err := json.Unmarshal(event.Data, &data); err != nil || data.TicketID == "" {
			return
		}
		c.hub.leave(data.TicketID, c)

	case entity.EventTypingStart, entity.EventTypingStop:
		var data entity.TypingPayload
		if err := json.Unmarshal(event.Data, &data); err != nil || data.TicketID == "" {
			return
		}
		if event.Type == entity.EventTypingStart {
			c.hub.broadcastTyping(data.TicketID, c.userID, c)
		}

	case entity.EventMarkRead:
		var data entity.MarkReadPayload
		if err := json.Unmarshal(event.Data, &data); err != nil || data.TicketID == "" {
			c.log.Warn("failed to parse mark_messages_read data")
			return
		}
		if c.hub.handler == nil {
			return
		}
		marked, err := c.hub.handler.HandleMarkRead(data.TicketID, data.MessageIDs)
		if err != nil {
			c.log.Error("failed to handle mark_messages_read",
				slog.String("ticket_id", data.TicketID),
				slog.String("error", err.Error()),
			)
			return
		}
		for _, id := range marked {
			c.hub.BroadcastMessageStatus(data.TicketID, id, "read")
		}

	default:
		c.log.Debug("unexpected client event", slog.String("type", event.Type))
	}
}

// ServeWs handles websocket upgrade requests. Authentication happens after
// the upgrade: the first frame must be a chat_authenticate event, answered
// with chat_authenticated before any other event is accepted.
func ServeWs(hub *Hub, auth Authenticator, log *slog.Logger, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(authWait))

	var event entity.Event
	if err := conn.ReadJSON(&event); err != nil || event.Type != entity.EventAuthenticate {
		conn.Close()
		return
	}
	var creds entity.AuthPayload
	if err := json.Unmarshal(event.Data, &creds); err != nil || creds.Token == "" || creds.UserID == "" {
		conn.Close()
		return
	}
	if err := auth.Authorize(creds.Token); err != nil {
		log.Warn("websocket auth rejected", slog.String("user_id", creds.UserID))
		conn.Close()
		return
	}

	ack, err := entity.NewEvent(entity.EventAuthenticated, nil)
	if err != nil {
		conn.Close()
		return
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(ack); err != nil {
		conn.Close()
		return
	}
	conn.SetReadDeadline(time.Now().Add(pongWait))

	client := &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan entity.Event, 256),
		userID: creds.UserID,
		joined: make(map[string]bool),
		log:    log,
	}

	hub.register(client)

	go client.writePump()
	go client.readPump()
}
