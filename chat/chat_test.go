package chat

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/neilotoole/slogt"
)

var testTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *memdb, *recorder) {
	t.Helper()
	db := newMemdb()
	rec := &recorder{}
	svc := &Service{
		Logger:    slogt.New(t),
		DB:        db,
		Users:     db,
		Broadcast: rec,
		Now:       func() time.Time { return testTime },
	}
	return svc, db, rec
}

func TestService_Submit(t *testing.T) {
	svc, db, rec := newTestService(t)
	db.addUser(1)
	db.addUser(2)
	conv := db.addConversation(1, 2)

	view, err := svc.Submit(context.Background(), conv.ID, 1, "hi")
	if err != nil {
		t.Fatal(err)
	}
	if view.Status != StatusSent {
		t.Errorf("Got status %q, want %q", view.Status, StatusSent)
	}
	if view.DeletedForEveryone {
		t.Error("New message is marked deleted")
	}

	want := []publish{
		{topic: "conversations/1", payload: view},
		{topic: "notifications/2", payload: view},
	}
	if diff := cmp.Diff(want, rec.published(), cmp.AllowUnexported(publish{})); diff != "" {
		t.Errorf("Publishes do not match (-want +got):\n%s", diff)
	}
}

func TestService_Submit_conversationMissing(t *testing.T) {
	svc, db, rec := newTestService(t)
	db.addUser(1)

	_, err := svc.Submit(context.Background(), 99, 1, "hi")
	if !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("Got error %v, want ErrConversationNotFound", err)
	}
	if len(rec.published()) != 0 {
		t.Error("Failed submit still published events")
	}
	if len(db.messages) != 0 {
		t.Error("Failed submit still stored a message")
	}
}

func TestService_Submit_senderMissing(t *testing.T) {
	svc, db, _ := newTestService(t)
	db.addUser(1)
	db.addUser(2)
	conv := db.addConversation(1, 2)

	_, err := svc.Submit(context.Background(), conv.ID, 7, "hi")
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("Got error %v, want ErrUserNotFound", err)
	}
}

func TestService_FetchPage_advancesToDelivered(t *testing.T) {
	svc, db, _ := newTestService(t)
	db.addUser(1)
	db.addUser(2)
	conv := db.addConversation(1, 2)
	m1, _ := svc.Submit(context.Background(), conv.ID, 1, "hi")

	page, err := svc.FetchPage(context.Background(), conv.ID, 0, 20, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Items) != 1 {
		t.Fatalf("Got %d items, want 1", len(page.Items))
	}
	if got := page.Items[0].Status; got != StatusDelivered {
		t.Errorf("Got status %q, want %q", got, StatusDelivered)
	}
	if got := db.messages[m1.ID].Status; got != StatusDelivered {
		t.Errorf("Stored status is %q, want %q", got, StatusDelivered)
	}
}

func TestService_FetchPage_senderPageLeavesStatus(t *testing.T) {
	svc, db, _ := newTestService(t)
	db.addUser(1)
	db.addUser(2)
	conv := db.addConversation(1, 2)
	m1, _ := svc.Submit(context.Background(), conv.ID, 1, "hi")

	// The sender fetching their own conversation must not advance
	// their own message.
	if _, err := svc.FetchPage(context.Background(), conv.ID, 0, 20, 1); err != nil {
		t.Fatal(err)
	}
	if got := db.messages[m1.ID].Status; got != StatusSent {
		t.Errorf("Stored status is %q, want %q", got, StatusSent)
	}
}

func TestService_statusMonotonic(t *testing.T) {
	svc, db, _ := newTestService(t)
	db.addUser(1)
	db.addUser(2)
	conv := db.addConversation(1, 2)
	m1, _ := svc.Submit(context.Background(), conv.ID, 1, "hi")

	if err := svc.MarkSeen(context.Background(), conv.ID, 2); err != nil {
		t.Fatal(err)
	}
	// A late fetch must not regress seen back to delivered.
	if _, err := svc.FetchPage(context.Background(), conv.ID, 0, 20, 2); err != nil {
		t.Fatal(err)
	}
	if got := db.messages[m1.ID].Status; got != StatusSeen {
		t.Errorf("Stored status is %q, want %q", got, StatusSeen)
	}

	// markSeen twice stays seen and stays quiet the second time.
	if err := svc.MarkSeen(context.Background(), conv.ID, 2); err != nil {
		t.Fatal(err)
	}
	if got := db.messages[m1.ID].Status; got != StatusSeen {
		t.Errorf("Stored status is %q, want %q", got, StatusSeen)
	}
}

func TestService_MarkSeen_publishesOnce(t *testing.T) {
	svc, db, rec := newTestService(t)
	db.addUser(1)
	db.addUser(2)
	conv := db.addConversation(1, 2)
	if _, err := svc.Submit(context.Background(), conv.ID, 1, "hi"); err != nil {
		t.Fatal(err)
	}
	rec.reset()

	if err := svc.MarkSeen(context.Background(), conv.ID, 2); err != nil {
		t.Fatal(err)
	}
	if err := svc.MarkSeen(context.Background(), conv.ID, 2); err != nil {
		t.Fatal(err)
	}

	got := rec.published()
	if len(got) != 1 {
		t.Fatalf("Got %d publishes, want 1", len(got))
	}
	want := publish{topic: "conversations/1", payload: SeenEvent{Type: "seen", ConversationID: conv.ID, ViewerID: 2}}
	if diff := cmp.Diff(want, got[0], cmp.AllowUnexported(publish{})); diff != "" {
		t.Errorf("Seen event does not match (-want +got):\n%s", diff)
	}
}

func TestService_Edit(t *testing.T) {
	tests := []struct {
		name    string
		editor  int64
		at      time.Time
		deleted bool
		wantErr error
	}{
		{
			name:   "OK",
			editor: 1,
			at:     testTime.Add(14*time.Minute + 59*time.Second),
		},
		{
			name:    "NotSender",
			editor:  2,
			at:      testTime,
			wantErr: ErrNotSender,
		},
		{
			name:    "Tombstoned",
			editor:  1,
			at:      testTime,
			deleted: true,
			wantErr: ErrMessageDeleted,
		},
		{
			name:    "WindowClosed",
			editor:  1,
			at:      testTime.Add(15*time.Minute + time.Second),
			wantErr: ErrEditWindowClosed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, db, rec := newTestService(t)
			db.addUser(1)
			db.addUser(2)
			conv := db.addConversation(1, 2)
			msg, err := svc.Submit(context.Background(), conv.ID, 1, "hi")
			if err != nil {
				t.Fatal(err)
			}
			if tt.deleted {
				if _, err := svc.DeleteForEveryone(context.Background(), msg.ID, 1); err != nil {
					t.Fatal(err)
				}
			}
			rec.reset()

			svc.Now = func() time.Time { return tt.at }
			view, err := svc.Edit(context.Background(), msg.ID, tt.editor, "hi there")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Got error %v, want %v", err, tt.wantErr)
				}
				if len(rec.published()) != 0 {
					t.Error("Failed edit still published events")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if view.Content != "hi there" {
				t.Errorf("Got content %q, want %q", view.Content, "hi there")
			}
			if view.UpdatedAt == nil || !view.UpdatedAt.Equal(tt.at) {
				t.Errorf("Got updated_at %v, want %v", view.UpdatedAt, tt.at)
			}
			if view.Status != StatusSent {
				t.Errorf("Edit changed status to %q", view.Status)
			}
			if got := rec.published(); len(got) != 1 || got[0].topic != "conversations/1" {
				t.Errorf("Got publishes %v, want one on conversations/1", got)
			}
		})
	}
}

// A delete that commits between Edit's read and its write must win:
// the conditional write sees the tombstone and the edit fails with a
// conflict instead of resurrecting the message.
func TestService_Edit_deleteRaceKeepsTombstone(t *testing.T) {
	svc, db, rec := newTestService(t)
	db.addUser(1)
	db.addUser(2)
	conv := db.addConversation(1, 2)
	msg, err := svc.Submit(context.Background(), conv.ID, 1, "hi")
	if err != nil {
		t.Fatal(err)
	}
	rec.reset()

	svc.DB = &tombstoneAfterRead{memdb: db, messageID: msg.ID}
	_, err = svc.Edit(context.Background(), msg.ID, 1, "edited")
	if !errors.Is(err, ErrMessageDeleted) {
		t.Fatalf("Got error %v, want %v", err, ErrMessageDeleted)
	}

	stored := db.messages[msg.ID]
	if !stored.DeletedForEveryone {
		t.Error("Tombstone flag was cleared by the losing edit")
	}
	if stored.Content != TombstoneContent {
		t.Errorf("Got content %q, want %q", stored.Content, TombstoneContent)
	}
	if len(rec.published()) != 0 {
		t.Error("Losing edit still published events")
	}

	// The conflict is permanent for later edits too.
	svc.DB = db
	if _, err := svc.Edit(context.Background(), msg.ID, 1, "again"); !errors.Is(err, ErrMessageDeleted) {
		t.Errorf("Got error %v, want %v", err, ErrMessageDeleted)
	}
}

// tombstoneAfterRead deletes the message for everyone right after the
// engine reads it, modeling a concurrent delete committing first.
type tombstoneAfterRead struct {
	*memdb
	messageID int64
	fired     bool
}

func (db *tombstoneAfterRead) GetMessage(ctx context.Context, id int64) (Message, error) {
	m, err := db.memdb.GetMessage(ctx, id)
	if err == nil && !db.fired && id == db.messageID {
		db.fired = true
		if _, terr := db.memdb.TombstoneMessage(ctx, id); terr != nil {
			return Message{}, terr
		}
	}
	return m, err
}

func TestService_DeleteForEveryone(t *testing.T) {
	svc, db, rec := newTestService(t)
	db.addUser(1)
	db.addUser(2)
	conv := db.addConversation(1, 2)
	msg, err := svc.Submit(context.Background(), conv.ID, 1, "hi")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Edit(context.Background(), msg.ID, 1, "hi there"); err != nil {
		t.Fatal(err)
	}
	rec.reset()

	view, err := svc.DeleteForEveryone(context.Background(), msg.ID, 1)
	if err != nil {
		t.Fatal(err)
	}
	if view.Content != TombstoneContent {
		t.Errorf("Got content %q, want tombstone", view.Content)
	}
	if !view.DeletedForEveryone {
		t.Error("DeletedForEveryone is false after delete")
	}
	if view.UpdatedAt != nil {
		t.Error("UpdatedAt was not cleared by delete")
	}
	if got := rec.published(); len(got) != 1 || got[0].topic != "conversations/1" {
		t.Errorf("Got publishes %v, want one on conversations/1", got)
	}

	// Tombstoning is permanent: every later edit conflicts.
	if _, err := svc.Edit(context.Background(), msg.ID, 1, "again"); !errors.Is(err, ErrMessageDeleted) {
		t.Fatalf("Got error %v, want ErrMessageDeleted", err)
	}

	// Non-senders cannot delete for everyone.
	if _, err := svc.DeleteForEveryone(context.Background(), msg.ID, 2); !errors.Is(err, ErrNotSender) {
		t.Fatalf("Got error %v, want ErrNotSender", err)
	}
}

func TestService_DeleteForMe(t *testing.T) {
	svc, db, rec := newTestService(t)
	db.addUser(1)
	db.addUser(2)
	conv := db.addConversation(1, 2)
	m1, _ := svc.Submit(context.Background(), conv.ID, 1, "hi")
	m2, _ := svc.Submit(context.Background(), conv.ID, 2, "hello")
	rec.reset()

	// Twice: both succeed, exactly one record.
	if err := svc.DeleteForMe(context.Background(), m1.ID, 2); err != nil {
		t.Fatal(err)
	}
	if err := svc.DeleteForMe(context.Background(), m1.ID, 2); err != nil {
		t.Fatal(err)
	}
	if got := db.deletionCount(m1.ID, 2); got != 1 {
		t.Errorf("Got %d deletion records, want 1", got)
	}
	if len(rec.published()) != 0 {
		t.Error("DeleteForMe published events")
	}

	// Hidden for the deleting viewer only.
	page, err := svc.FetchPage(context.Background(), conv.ID, 0, 20, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Items) != 1 || page.Items[0].ID != m2.ID {
		t.Errorf("Viewer 2 still sees hidden message: %+v", page.Items)
	}
	page, err = svc.FetchPage(context.Background(), conv.ID, 0, 20, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Items) != 2 {
		t.Errorf("Viewer 1 got %d items, want 2", len(page.Items))
	}
}

func TestService_CreateOrGetConversation_unorderedPair(t *testing.T) {
	svc, db, _ := newTestService(t)
	db.addUser(1)
	db.addUser(2)

	c1, err := svc.CreateOrGetConversation(context.Background(), 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	c2, err := svc.CreateOrGetConversation(context.Background(), 2, 1)
	if err != nil {
		t.Fatal(err)
	}
	if c1.ID != c2.ID {
		t.Errorf("Pair (1,2) and (2,1) resolved to different conversations: %d vs %d", c1.ID, c2.ID)
	}
	if len(db.conversations) != 1 {
		t.Errorf("Got %d conversations, want 1", len(db.conversations))
	}
}

// Full walkthrough: send, deliver, see, edit, tombstone.
func TestService_deliveryLifecycle(t *testing.T) {
	svc, db, rec := newTestService(t)
	db.addUser(1)
	db.addUser(2)
	conv, err := svc.CreateOrGetConversation(context.Background(), 1, 2)
	if err != nil {
		t.Fatal(err)
	}

	m1, err := svc.Submit(context.Background(), conv.ID, 1, "hi")
	if err != nil {
		t.Fatal(err)
	}
	pubs := rec.published()
	if len(pubs) != 2 || pubs[0].topic != ConversationTopic(conv.ID) || pubs[1].topic != NotificationTopic(2) {
		t.Fatalf("Submit published %v", pubs)
	}

	page, err := svc.FetchPage(context.Background(), conv.ID, 0, 20, 2)
	if err != nil {
		t.Fatal(err)
	}
	if page.Items[0].Status != StatusDelivered || page.Items[0].DeletedForEveryone {
		t.Fatalf("After fetch: %+v", page.Items[0])
	}

	if err := svc.MarkSeen(context.Background(), conv.ID, 2); err != nil {
		t.Fatal(err)
	}
	if got := db.messages[m1.ID].Status; got != StatusSeen {
		t.Fatalf("Got status %q, want seen", got)
	}

	if _, err := svc.Edit(context.Background(), m1.ID, 1, "hi there"); err != nil {
		t.Fatal(err)
	}
	if got := db.messages[m1.ID]; got.Content != "hi there" || got.UpdatedAt == nil {
		t.Fatalf("After edit: %+v", got)
	}

	if _, err := svc.DeleteForEveryone(context.Background(), m1.ID, 1); err != nil {
		t.Fatal(err)
	}
	if got := db.messages[m1.ID]; got.Content != TombstoneContent || !got.DeletedForEveryone {
		t.Fatalf("After delete: %+v", got)
	}
	if _, err := svc.Edit(context.Background(), m1.ID, 1, "nope"); !errors.Is(err, ErrMessageDeleted) {
		t.Fatalf("Got error %v, want ErrMessageDeleted", err)
	}
}

// memdb is an in-memory chat.DB plus chat.UserDirectory used across the
// engine tests.
type memdb struct {
	mu            sync.Mutex
	nextID        int64
	users         map[int64]User
	conversations map[int64]Conversation
	messages      map[int64]Message
	reactions     map[int64]Reaction
	deletions     map[[2]int64]bool
}

func newMemdb() *memdb {
	return &memdb{
		users:         make(map[int64]User),
		conversations: make(map[int64]Conversation),
		messages:      make(map[int64]Message),
		reactions:     make(map[int64]Reaction),
		deletions:     make(map[[2]int64]bool),
	}
}

func (db *memdb) id() int64 {
	db.nextID++
	return db.nextID
}

func (db *memdb) addUser(id int64) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.users[id] = User{ID: id}
}

func (db *memdb) addConversation(a, b int64) Conversation {
	db.mu.Lock()
	defer db.mu.Unlock()
	conv := Conversation{ID: db.id(), User1ID: a, User2ID: b, CreatedAt: testTime}
	db.conversations[conv.ID] = conv
	return conv
}

func (db *memdb) deletionCount(messageID, userID int64) int {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.deletions[[2]int64{messageID, userID}] {
		return 1
	}
	return 0
}

func (db *memdb) FindByID(_ context.Context, id int64) (User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	u, ok := db.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (db *memdb) FindByEmail(_ context.Context, email string) (User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, u := range db.users {
		if u.Email == email {
			return u, nil
		}
	}
	return User{}, ErrUserNotFound
}

func (db *memdb) GetConversation(_ context.Context, id int64) (Conversation, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	c, ok := db.conversations[id]
	if !ok {
		return Conversation{}, ErrConversationNotFound
	}
	return c, nil
}

func (db *memdb) FindConversation(_ context.Context, a, b int64) (Conversation, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, c := range db.conversations {
		if (c.User1ID == a && c.User2ID == b) || (c.User1ID == b && c.User2ID == a) {
			return c, nil
		}
	}
	return Conversation{}, ErrConversationNotFound
}

func (db *memdb) InsertConversation(_ context.Context, conv Conversation) (Conversation, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	conv.ID = db.id()
	db.conversations[conv.ID] = conv
	return conv, nil
}

func (db *memdb) ListConversations(_ context.Context, userID int64) ([]Conversation, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []Conversation
	for _, c := range db.conversations {
		if c.Has(userID) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (db *memdb) InsertMessage(_ context.Context, msg Message) (Message, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	msg.ID = db.id()
	db.messages[msg.ID] = msg
	return msg, nil
}

func (db *memdb) GetMessage(_ context.Context, id int64) (Message, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	m, ok := db.messages[id]
	if !ok {
		return Message{}, ErrMessageNotFound
	}
	m.Reactions = db.reactionsFor(id)
	return m, nil
}

func (db *memdb) reactionsFor(messageID int64) []Reaction {
	var out []Reaction
	for _, r := range db.reactions {
		if r.MessageID == messageID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (db *memdb) ListMessages(_ context.Context, conversationID int64, limit, offset int, viewerID int64) ([]Message, int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	var msgs []Message
	for _, m := range db.messages {
		if m.ConversationID != conversationID {
			continue
		}
		if db.deletions[[2]int64{m.ID, viewerID}] {
			continue
		}
		m.Reactions = db.reactionsFor(m.ID)
		msgs = append(msgs, m)
	}
	sort.Slice(msgs, func(i, j int) bool {
		if msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].ID > msgs[j].ID
		}
		return msgs[i].CreatedAt.After(msgs[j].CreatedAt)
	})
	total := len(msgs)
	if offset >= len(msgs) {
		return nil, total, nil
	}
	msgs = msgs[offset:]
	if limit < len(msgs) {
		msgs = msgs[:limit]
	}
	return msgs, total, nil
}

func (db *memdb) EditMessage(_ context.Context, messageID int64, content string, updatedAt time.Time) (Message, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	stored, ok := db.messages[messageID]
	if !ok {
		return Message{}, ErrMessageNotFound
	}
	if stored.DeletedForEveryone {
		return Message{}, ErrMessageDeleted
	}
	stored.Content = content
	stored.UpdatedAt = &updatedAt
	db.messages[messageID] = stored
	stored.Reactions = db.reactionsFor(messageID)
	return stored, nil
}

func (db *memdb) TombstoneMessage(_ context.Context, messageID int64) (Message, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	stored, ok := db.messages[messageID]
	if !ok {
		return Message{}, ErrMessageNotFound
	}
	stored.Content = TombstoneContent
	stored.DeletedForEveryone = true
	stored.UpdatedAt = nil
	db.messages[messageID] = stored
	stored.Reactions = db.reactionsFor(messageID)
	return stored, nil
}

func (db *memdb) MarkDelivered(_ context.Context, messageIDs []int64) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, id := range messageIDs {
		if m, ok := db.messages[id]; ok && m.Status == StatusSent {
			m.Status = StatusDelivered
			db.messages[id] = m
		}
	}
	return nil
}

func (db *memdb) MarkSeen(_ context.Context, conversationID, viewerID int64) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	var changed int64
	for id, m := range db.messages {
		if m.ConversationID == conversationID && m.SenderID != viewerID && m.Status != StatusSeen {
			m.Status = StatusSeen
			db.messages[id] = m
			changed++
		}
	}
	return changed, nil
}

func (db *memdb) FindReaction(_ context.Context, messageID, userID int64) (Reaction, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, r := range db.reactions {
		if r.MessageID == messageID && r.UserID == userID {
			return r, nil
		}
	}
	return Reaction{}, ErrReactionNotFound
}

func (db *memdb) InsertReaction(_ context.Context, r Reaction) (Reaction, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	r.ID = db.id()
	db.reactions[r.ID] = r
	return r, nil
}

func (db *memdb) UpdateReactionEmoji(_ context.Context, reactionID int64, emoji string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	r, ok := db.reactions[reactionID]
	if !ok {
		return ErrReactionNotFound
	}
	r.Emoji = emoji
	db.reactions[reactionID] = r
	return nil
}

func (db *memdb) DeleteReaction(_ context.Context, reactionID int64) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	delete(db.reactions, reactionID)
	return nil
}

func (db *memdb) InsertDeletion(_ context.Context, messageID, userID int64) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.deletions[[2]int64{messageID, userID}] = true
	return nil
}

type publish struct {
	topic   string
	payload any
}

// recorder captures fanout publishes for assertions.
type recorder struct {
	mu   sync.Mutex
	pubs []publish
}

func (r *recorder) Publish(topic string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pubs = append(r.pubs, publish{topic: topic, payload: payload})
}

func (r *recorder) published() []publish {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]publish(nil), r.pubs...)
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pubs = nil
}
