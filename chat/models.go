package chat

import (
	"fmt"
	"time"
)

// Status tracks how far a message has travelled towards its recipient.
// It only ever moves forward: sent < delivered < seen.
type Status string

const (
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusSeen      Status = "seen"
)

// rank orders statuses for monotonicity checks.
func (s Status) rank() int {
	switch s {
	case StatusDelivered:
		return 1
	case StatusSeen:
		return 2
	default:
		return 0
	}
}

// Before reports whether s is strictly earlier in the delivery lifecycle
// than other.
func (s Status) Before(other Status) bool {
	return s.rank() < other.rank()
}

// TombstoneContent replaces the content of a message deleted for everyone.
// The row itself is never removed.
const TombstoneContent = "This message was deleted"

// EditWindow is how long after creation a message may still be edited.
const EditWindow = 15 * time.Minute

// A Conversation is the unordered pair of users exchanging messages.
// (A,B) and (B,A) address the same conversation.
type Conversation struct {
	ID        int64     `json:"id"`
	User1ID   int64     `json:"user1_id"`
	User2ID   int64     `json:"user2_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Other returns the participant that is not userID.
func (c Conversation) Other(userID int64) int64 {
	if c.User1ID == userID {
		return c.User2ID
	}
	return c.User1ID
}

// Has reports whether userID participates in the conversation.
func (c Conversation) Has(userID int64) bool {
	return c.User1ID == userID || c.User2ID == userID
}

// A Message represents a persisted chat message.
type Message struct {
	ID                 int64
	ConversationID     int64
	SenderID           int64
	Content            string
	CreatedAt          time.Time
	UpdatedAt          *time.Time
	Status             Status
	DeletedForEveryone bool
	Reactions          []Reaction
}

// A Reaction is a single user's emoji on a single message. At most one
// exists per (message, user) pair.
type Reaction struct {
	ID        int64
	MessageID int64
	UserID    int64
	Emoji     string
	CreatedAt time.Time
}

// A User is a directory entry. Profile CRUD lives outside the delivery
// core; the engine only needs existence and identity.
type User struct {
	ID          int64      `json:"id"`
	Email       string     `json:"email"`
	PhoneNumber string     `json:"phone_number"`
	DisplayName string     `json:"display_name"`
	AvatarURL   string     `json:"avatar_url,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// A Contact is another user saved in the caller's address book under a
// chosen nickname. At most one entry exists per (owner, saved user)
// pair; saving again replaces the nickname.
type Contact struct {
	ID          int64     `json:"id"`
	OwnerID     int64     `json:"owner_id"`
	SavedUserID int64     `json:"saved_user_id"`
	Nickname    string    `json:"nickname"`
	CreatedAt   time.Time `json:"created_at"`
}

// A MessageView is the per-viewer rendering of a message: reaction
// summaries are computed against the viewer and fanned out on topics.
type MessageView struct {
	ID                 int64             `json:"id"`
	ConversationID     int64             `json:"conversation_id"`
	SenderID           int64             `json:"sender_id"`
	Content            string            `json:"content"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          *time.Time        `json:"updated_at,omitempty"`
	Status             Status            `json:"status"`
	Reactions          []ReactionSummary `json:"reactions"`
	DeletedForEveryone bool              `json:"deleted_for_everyone"`
}

// View renders the message for a particular viewer.
func (m Message) View(viewerID int64) MessageView {
	return MessageView{
		ID:                 m.ID,
		ConversationID:     m.ConversationID,
		SenderID:           m.SenderID,
		Content:            m.Content,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
		Status:             m.Status,
		Reactions:          SummarizeReactions(m.Reactions, viewerID),
		DeletedForEveryone: m.DeletedForEveryone,
	}
}

// A Page is one page of a conversation's history, newest first.
type Page struct {
	Items []MessageView `json:"items"`
	Page  int           `json:"page"`
	Size  int           `json:"size"`
	Total int           `json:"total"`
}

// A SeenEvent tells the sender's live clients that the counterpart has
// opened the conversation.
type SeenEvent struct {
	Type           string `json:"type"`
	ConversationID int64  `json:"conversation_id"`
	ViewerID       int64  `json:"viewer_id"`
}

// A TypingEvent is relayed verbatim to the typing topic, never persisted.
type TypingEvent struct {
	ConversationID int64  `json:"conversation_id"`
	UserID         int64  `json:"user_id"`
	Typing         bool   `json:"typing"`
	DisplayName    string `json:"display_name,omitempty"`
}

// Topic names shared between the engine and the fanout layer.

func ConversationTopic(conversationID int64) string {
	return fmt.Sprintf("conversations/%d", conversationID)
}

func TypingTopic(conversationID int64) string {
	return fmt.Sprintf("conversations/%d/typing", conversationID)
}

func NotificationTopic(userID int64) string {
	return fmt.Sprintf("notifications/%d", userID)
}
