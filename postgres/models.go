package postgres

import (
	"time"

	"github.com/driftlabs/chatwire/chat"
)

// A conversation row pairs two users. The pair is unordered; queries
// match both column orders.
type conversation struct {
	ID        int64     `bun:",pk,autoincrement"`
	User1ID   int64     `bun:",notnull"`
	User2ID   int64     `bun:",notnull"`
	CreatedAt time.Time `bun:",nullzero,default:now()"`
}

// A message row. Rows are never deleted; delete-for-everyone tombstones
// the content in place.
type message struct {
	ID                 int64             `bun:",pk,autoincrement"`
	ConversationID     int64             `bun:",notnull"`
	SenderID           int64             `bun:",notnull"`
	Content            string            `bun:"content,notnull"`
	Status             string            `bun:",notnull,default:'sent'"`
	DeletedForEveryone bool              `bun:",notnull,default:false"`
	CreatedAt          time.Time         `bun:",nullzero,default:now()"`
	UpdatedAt          *time.Time        `bun:""`
	Reactions          []messageReaction `bun:"rel:has-many,join:id=message_id"`
}

// A messageReaction row. A unique index on (message_id, user_id) keeps
// one reaction per user per message.
type messageReaction struct {
	ID        int64     `bun:",pk,autoincrement"`
	MessageID int64     `bun:",notnull"`
	UserID    int64     `bun:",notnull"`
	Emoji     string    `bun:"emoji,notnull"`
	CreatedAt time.Time `bun:",nullzero,default:now()"`
}

// A contact row saves another user under the owner's chosen nickname.
// A unique constraint on (owner_id, saved_user_id) keeps one entry per
// saved user; saving again updates the nickname in place.
type contact struct {
	ID          int64     `bun:",pk,autoincrement"`
	OwnerID     int64     `bun:",notnull"`
	SavedUserID int64     `bun:",notnull"`
	Nickname    string    `bun:"nickname,notnull"`
	CreatedAt   time.Time `bun:",nullzero,default:now()"`
}

// A messageDeletion row hides a message from one viewer's history.
type messageDeletion struct {
	MessageID int64 `bun:",pk"`
	UserID    int64 `bun:",pk"`
}

type user struct {
	ID          int64      `bun:",pk,autoincrement"`
	Email       string     `bun:",notnull"`
	PhoneNumber string     `bun:",notnull,unique"`
	DisplayName string     `bun:",notnull"`
	AvatarURL   string     `bun:""`
	Activation  string     `bun:"activation_code,notnull"`
	CreatedAt   time.Time  `bun:",nullzero,default:now()"`
	LastLoginAt *time.Time `bun:""`
}

func (c conversation) ChatConversation() chat.Conversation {
	return chat.Conversation{
		ID:        c.ID,
		User1ID:   c.User1ID,
		User2ID:   c.User2ID,
		CreatedAt: c.CreatedAt,
	}
}

func (m message) ChatMessage() chat.Message {
	reactions := make([]chat.Reaction, len(m.Reactions))
	for i, r := range m.Reactions {
		reactions[i] = r.ChatReaction()
	}
	return chat.Message{
		ID:                 m.ID,
		ConversationID:     m.ConversationID,
		SenderID:           m.SenderID,
		Content:            m.Content,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
		Status:             chat.Status(m.Status),
		DeletedForEveryone: m.DeletedForEveryone,
		Reactions:          reactions,
	}
}

func (r messageReaction) ChatReaction() chat.Reaction {
	return chat.Reaction{
		ID:        r.ID,
		MessageID: r.MessageID,
		UserID:    r.UserID,
		Emoji:     r.Emoji,
		CreatedAt: r.CreatedAt,
	}
}

func (c contact) ChatContact() chat.Contact {
	return chat.Contact{
		ID:          c.ID,
		OwnerID:     c.OwnerID,
		SavedUserID: c.SavedUserID,
		Nickname:    c.Nickname,
		CreatedAt:   c.CreatedAt,
	}
}

func (u user) ChatUser() chat.User {
	return chat.User{
		ID:          u.ID,
		Email:       u.Email,
		PhoneNumber: u.PhoneNumber,
		DisplayName: u.DisplayName,
		AvatarURL:   u.AvatarURL,
		CreatedAt:   u.CreatedAt,
		LastLoginAt: u.LastLoginAt,
	}
}
