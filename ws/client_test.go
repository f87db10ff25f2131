package ws

import (
	"context"
	"testing"

	"github.com/neilotoole/slogt"

	"github.com/driftlabs/chatwire/chat"
)

// fakeengine records what the client handed the chat layer.
type fakeengine struct {
	authorizeErr error
	authorized   []int64
	typed        []chat.TypingEvent
	submitted    []string
}

func (e *fakeengine) Submit(_ context.Context, conversationID, senderID int64, content string) (chat.MessageView, error) {
	e.submitted = append(e.submitted, content)
	return chat.MessageView{}, nil
}

func (e *fakeengine) RelayTyping(ev chat.TypingEvent) {
	e.typed = append(e.typed, ev)
}

func (e *fakeengine) Authorize(_ context.Context, conversationID, userID int64) error {
	e.authorized = append(e.authorized, conversationID)
	return e.authorizeErr
}

func newHandleClient(t *testing.T, engine Engine) *Client {
	t.Helper()
	srv := &Server{
		Logger: slogt.New(t),
		Hub:    NewHub(slogt.New(t)),
		Chat:   engine,
	}
	return &Client{
		server:        srv,
		send:          make(chan []byte, 8),
		sessionID:     "test-session",
		userID:        7,
		subscriptions: make(map[string]bool),
	}
}

func TestClient_typingChecksParticipant(t *testing.T) {
	engine := &fakeengine{authorizeErr: chat.ErrNotParticipant}
	c := newHandleClient(t, engine)

	err := c.handle(frame{Type: "typing", ConversationID: 5, Typing: true})
	if err == nil {
		t.Fatal("Typing in a foreign conversation was accepted")
	}
	if len(engine.typed) != 0 {
		t.Errorf("Typing event was relayed anyway: %v", engine.typed)
	}
	if len(engine.authorized) != 1 || engine.authorized[0] != 5 {
		t.Errorf("Authorized conversations %v, want [5]", engine.authorized)
	}
}

func TestClient_typingRelaysForParticipant(t *testing.T) {
	engine := &fakeengine{}
	c := newHandleClient(t, engine)

	if err := c.handle(frame{Type: "typing", ConversationID: 5, Typing: true}); err != nil {
		t.Fatal(err)
	}
	want := chat.TypingEvent{ConversationID: 5, UserID: 7, Typing: true}
	if len(engine.typed) != 1 || engine.typed[0] != want {
		t.Errorf("Got typing events %v, want [%v]", engine.typed, want)
	}
}

func TestClient_messageSubmits(t *testing.T) {
	engine := &fakeengine{}
	c := newHandleClient(t, engine)

	if err := c.handle(frame{Type: "message", ConversationID: 5, Content: "hi"}); err != nil {
		t.Fatal(err)
	}
	if len(engine.submitted) != 1 || engine.submitted[0] != "hi" {
		t.Errorf("Got submissions %v, want [hi]", engine.submitted)
	}
}

func TestClient_unknownFrame(t *testing.T) {
	c := newHandleClient(t, &fakeengine{})
	if err := c.handle(frame{Type: "bogus"}); err == nil {
		t.Fatal("Unknown frame type was accepted")
	}
}
