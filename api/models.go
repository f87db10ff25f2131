package api

import (
	"time"

	"github.com/driftlabs/chatwire/chat"
)

// A User is the directory rendering of an account.
type User struct {
	ID          int64      `json:"id"`
	PhoneNumber string     `json:"phone_number"`
	DisplayName string     `json:"display_name"`
	AvatarURL   string     `json:"avatar_url,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

func userFromChat(u chat.User) User {
	return User{
		ID:          u.ID,
		PhoneNumber: u.PhoneNumber,
		DisplayName: u.DisplayName,
		AvatarURL:   u.AvatarURL,
		CreatedAt:   u.CreatedAt,
		LastLoginAt: u.LastLoginAt,
	}
}

// A Conversation is rendered from the caller's side of the pair.
type Conversation struct {
	ID          int64     `json:"id"`
	OtherUserID int64     `json:"other_user_id"`
	CreatedAt   time.Time `json:"created_at"`
}

func conversationFromChat(c chat.Conversation, viewerID int64) Conversation {
	return Conversation{
		ID:          c.ID,
		OtherUserID: c.Other(viewerID),
		CreatedAt:   c.CreatedAt,
	}
}
