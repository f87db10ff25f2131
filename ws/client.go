package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/driftlabs/chatwire/chat"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum frame size allowed from peer.
	maxMessageSize = 4096
)

// A Client is the middleman between one websocket connection and the
// hub. subscriptions is guarded by the hub's lock.
type Client struct {
	server *Server
	conn   *websocket.Conn

	// Buffered channel of outbound payloads.
	send chan []byte

	sessionID     string
	userID        int64
	subscriptions map[string]bool
}

// An inbound frame from the peer. Type selects which other fields
// matter.
type frame struct {
	Type           string `json:"type"`
	Topic          string `json:"topic,omitempty"`
	ConversationID int64  `json:"conversation_id,omitempty"`
	Content        string `json:"content,omitempty"`
	Typing         bool   `json:"typing,omitempty"`
}

type errorFrame struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// readPump pumps frames from the websocket connection into the chat
// engine and the hub's subscription registry.
func (c *Client) readPump() {
	defer func() {
		c.server.release(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.server.Logger.Error("Read error", "session_id", c.sessionID, "error", err.Error())
			}
			break
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.fail(fmt.Sprintf("malformed frame: %v", err))
			continue
		}
		if err := c.handle(f); err != nil {
			c.fail(err.Error())
		}
	}
}

func (c *Client) handle(f frame) error {
	ctx := context.Background()
	switch f.Type {
	case "subscribe":
		if err := c.server.authorizeTopic(ctx, c.userID, f.Topic); err != nil {
			return err
		}
		c.server.Hub.Subscribe(f.Topic, c)
	case "unsubscribe":
		c.server.Hub.Unsubscribe(f.Topic, c)
	case "message":
		if _, err := c.server.Chat.Submit(ctx, f.ConversationID, c.userID, f.Content); err != nil {
			return err
		}
	case "typing":
		// Typing frames carry no content but still leak activity, so
		// only participants may send them.
		if err := c.server.Chat.Authorize(ctx, f.ConversationID, c.userID); err != nil {
			return err
		}
		c.server.Chat.RelayTyping(chat.TypingEvent{
			ConversationID: f.ConversationID,
			UserID:         c.userID,
			Typing:         f.Typing,
		})
	default:
		return fmt.Errorf("unknown frame type %q", f.Type)
	}
	return nil
}

// fail reports a per-frame error back to the peer without dropping the
// connection.
func (c *Client) fail(msg string) {
	data, err := json.Marshal(errorFrame{Type: "error", Error: msg})
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// writePump pumps payloads from the hub to the websocket connection and
// keeps the connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
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
