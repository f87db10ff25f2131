package ws

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/driftlabs/chatwire/auth"
	"github.com/driftlabs/chatwire/chat"
	"github.com/driftlabs/chatwire/presence"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Engine is the part of the chat service the websocket layer drives.
type Engine interface {
	Submit(ctx context.Context, conversationID, senderID int64, content string) (chat.MessageView, error)
	RelayTyping(ev chat.TypingEvent)
	Authorize(ctx context.Context, conversationID, userID int64) error
}

// Server owns the websocket endpoint: it authenticates the handshake,
// registers the connection as a presence session and starts the client
// pumps.
type Server struct {
	Logger   *slog.Logger
	Hub      *Hub
	Chat     Engine
	Presence *presence.Tracker
	Tokens   *auth.Service
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		// Browser websocket clients cannot set headers, but other
		// clients may still use the standard one.
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	claims, err := s.Tokens.Validate(token)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Logger.Error("Upgrade failed", "error", err.Error())
		return
	}

	client := &Client{
		server:        s,
		conn:          conn,
		send:          make(chan []byte, 256),
		sessionID:     uuid.NewString(),
		userID:        claims.UserID,
		subscriptions: make(map[string]bool),
	}

	// Every connection is always notified about its own inbox and the
	// online set; conversation topics are joined on demand.
	s.Hub.Subscribe(chat.NotificationTopic(client.userID), client)
	s.Hub.Subscribe(presence.OnlineUsersTopic, client)

	if err := s.Presence.Connect(r.Context(), client.sessionID, client.userID); err != nil {
		s.Logger.Error("Could not register presence session", "session_id", client.sessionID, "error", err.Error())
	}

	go client.writePump()
	go client.readPump()
}

// release tears a client down after its read pump exits.
func (s *Server) release(c *Client) {
	s.Hub.Remove(c)
	close(c.send)
	if err := s.Presence.Disconnect(context.Background(), c.sessionID); err != nil {
		s.Logger.Error("Could not release presence session", "session_id", c.sessionID, "error", err.Error())
	}
}

// authorizeTopic checks that the user may subscribe to the topic:
// anyone may watch the online set, notification topics belong to their
// user, conversation topics to their participants.
func (s *Server) authorizeTopic(ctx context.Context, userID int64, topic string) error {
	parts := strings.Split(topic, "/")
	switch {
	case topic == presence.OnlineUsersTopic:
		return nil
	case parts[0] == "notifications" && len(parts) == 2:
		id, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil || id != userID {
			return fmt.Errorf("not your notification topic")
		}
		return nil
	case parts[0] == "conversations" && (len(parts) == 2 || (len(parts) == 3 && parts[2] == "typing")):
		id, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return fmt.Errorf("bad conversation topic %q", topic)
		}
		return s.Chat.Authorize(ctx, id, userID)
	default:
		return fmt.Errorf("unknown topic %q", topic)
	}
}
