// Package chat implements the message delivery engine: it persists
// submitted messages, advances their delivery status, aggregates
// reactions and fans events out to live subscribers.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// A DB provides the storage layer that owns conversation, message,
// reaction and per-viewer deletion rows. Status updates must be
// conditional (compare-and-set) so concurrent callers can never move a
// message to a lower status.
type DB interface {
	GetConversation(ctx context.Context, id int64) (Conversation, error)
	FindConversation(ctx context.Context, userA, userB int64) (Conversation, error)
	InsertConversation(ctx context.Context, conv Conversation) (Conversation, error)
	ListConversations(ctx context.Context, userID int64) ([]Conversation, error)

	InsertMessage(ctx context.Context, msg Message) (Message, error)
	GetMessage(ctx context.Context, id int64) (Message, error)
	// ListMessages returns one page of a conversation's messages ordered
	// by creation time descending, excluding rows the viewer deleted for
	// themselves, along with the total count of visible rows.
	ListMessages(ctx context.Context, conversationID int64, limit, offset int, viewerID int64) ([]Message, int, error)
	// EditMessage writes new content and updated_at. The write is
	// conditional on deleted_for_everyone being false so an edit racing
	// a delete loses; the losing write reports ErrMessageDeleted.
	EditMessage(ctx context.Context, messageID int64, content string, updatedAt time.Time) (Message, error)
	// TombstoneMessage replaces the content with the tombstone
	// placeholder, sets deleted_for_everyone and clears updated_at.
	TombstoneMessage(ctx context.Context, messageID int64) (Message, error)
	// MarkDelivered advances the given messages from sent to delivered.
	// Rows already past sent are left untouched.
	MarkDelivered(ctx context.Context, messageIDs []int64) error
	// MarkSeen advances every message in the conversation not authored by
	// viewerID to seen, returning the number of rows that changed.
	MarkSeen(ctx context.Context, conversationID, viewerID int64) (int64, error)

	FindReaction(ctx context.Context, messageID, userID int64) (Reaction, error)
	InsertReaction(ctx context.Context, r Reaction) (Reaction, error)
	UpdateReactionEmoji(ctx context.Context, reactionID int64, emoji string) error
	DeleteReaction(ctx context.Context, reactionID int64) error

	// InsertDeletion records a per-viewer deletion. Inserting an existing
	// (message, user) pair is a no-op.
	InsertDeletion(ctx context.Context, messageID, userID int64) error
}

// A UserDirectory resolves users by id or email. Profile management is
// handled elsewhere; the engine only checks existence.
type UserDirectory interface {
	FindByID(ctx context.Context, id int64) (User, error)
	FindByEmail(ctx context.Context, email string) (User, error)
}

// A Broadcaster delivers a payload to every current subscriber of a
// topic. Delivery is best-effort and must not block the caller.
type Broadcaster interface {
	Publish(topic string, payload any)
}

// Service orchestrates the storage layer and the fanout layer. It is
// safe for concurrent use.
type Service struct {
	Logger    *slog.Logger
	DB        DB
	Users     UserDirectory
	Broadcast Broadcaster

	// Now returns the current time. Nil means time.Now.
	Now func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Submit persists a new message with status sent and publishes the
// resulting view to the conversation topic and to the other
// participant's notification topic. Persistence failure aborts before
// any fanout happens.
func (s *Service) Submit(ctx context.Context, conversationID, senderID int64, content string) (MessageView, error) {
	conv, err := s.DB.GetConversation(ctx, conversationID)
	if err != nil {
		return MessageView{}, fmt.Errorf("get conversation: %w", err)
	}
	if _, err := s.Users.FindByID(ctx, senderID); err != nil {
		return MessageView{}, fmt.Errorf("find sender: %w", err)
	}

	msg, err := s.DB.InsertMessage(ctx, Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		CreatedAt:      s.now(),
		Status:         StatusSent,
	})
	if err != nil {
		return MessageView{}, fmt.Errorf("insert message: %w", err)
	}

	view := msg.View(senderID)
	s.Broadcast.Publish(ConversationTopic(conversationID), view)
	s.Broadcast.Publish(NotificationTopic(conv.Other(senderID)), view)
	return view, nil
}

// FetchPage returns one page of the conversation's history for a viewer,
// newest first. Pages are numbered from one. Messages the viewer deleted
// for themselves are absent.
// Every returned message authored by someone else that is still in
// status sent is advanced to delivered.
func (s *Service) FetchPage(ctx context.Context, conversationID int64, page, size int, viewerID int64) (Page, error) {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	msgs, total, err := s.DB.ListMessages(ctx, conversationID, size, (page-1)*size, viewerID)
	if err != nil {
		return Page{}, fmt.Errorf("list messages: %w", err)
	}

	var deliver []int64
	for _, m := range msgs {
		if m.SenderID != viewerID && m.Status == StatusSent {
			deliver = append(deliver, m.ID)
		}
	}
	if len(deliver) > 0 {
		if err := s.DB.MarkDelivered(ctx, deliver); err != nil {
			return Page{}, fmt.Errorf("mark delivered: %w", err)
		}
	}

	items := make([]MessageView, len(msgs))
	for i, m := range msgs {
		if m.SenderID != viewerID && m.Status == StatusSent {
			m.Status = StatusDelivered
		}
		items[i] = m.View(viewerID)
	}
	return Page{Items: items, Page: page, Size: size, Total: total}, nil
}

// MarkSeen advances every message in the conversation not authored by
// the viewer to seen. Idempotent. When any row actually changed, a seen
// event is published so the sender's delivery ticks update live.
func (s *Service) MarkSeen(ctx context.Context, conversationID, viewerID int64) error {
	if _, err := s.DB.GetConversation(ctx, conversationID); err != nil {
		return fmt.Errorf("get conversation: %w", err)
	}
	changed, err := s.DB.MarkSeen(ctx, conversationID, viewerID)
	if err != nil {
		return fmt.Errorf("mark seen: %w", err)
	}
	if changed > 0 {
		s.Broadcast.Publish(ConversationTopic(conversationID), SeenEvent{
			Type:           "seen",
			ConversationID: conversationID,
			ViewerID:       viewerID,
		})
	}
	return nil
}

// Edit replaces the content of a message the caller sent. Tombstoned
// messages cannot be edited and the window closes EditWindow after
// creation. The updated view is republished to the conversation topic.
func (s *Service) Edit(ctx context.Context, messageID, userID int64, newContent string) (MessageView, error) {
	msg, err := s.DB.GetMessage(ctx, messageID)
	if err != nil {
		return MessageView{}, fmt.Errorf("get message: %w", err)
	}
	if msg.SenderID != userID {
		return MessageView{}, ErrNotSender
	}
	if msg.DeletedForEveryone {
		return MessageView{}, ErrMessageDeleted
	}
	if s.now().Sub(msg.CreatedAt) > EditWindow {
		return MessageView{}, ErrEditWindowClosed
	}

	// The write itself re-checks the tombstone flag: a delete that
	// commits after the read above makes this update a no-op and the
	// edit fails with a conflict instead of resurrecting the message.
	saved, err := s.DB.EditMessage(ctx, messageID, newContent, s.now())
	if err != nil {
		if errors.Is(err, ErrMessageDeleted) {
			return MessageView{}, ErrMessageDeleted
		}
		return MessageView{}, fmt.Errorf("edit message: %w", err)
	}

	view := saved.View(userID)
	s.Broadcast.Publish(ConversationTopic(saved.ConversationID), view)
	return view, nil
}

// DeleteForEveryone tombstones a message the caller sent: the content is
// replaced with a fixed placeholder, the flag is set and updated_at is
// cleared. Irreversible; later edits fail with a conflict.
func (s *Service) DeleteForEveryone(ctx context.Context, messageID, userID int64) (MessageView, error) {
	msg, err := s.DB.GetMessage(ctx, messageID)
	if err != nil {
		return MessageView{}, fmt.Errorf("get message: %w", err)
	}
	if msg.SenderID != userID {
		return MessageView{}, ErrNotSender
	}

	saved, err := s.DB.TombstoneMessage(ctx, messageID)
	if err != nil {
		return MessageView{}, fmt.Errorf("tombstone message: %w", err)
	}

	view := saved.View(userID)
	s.Broadcast.Publish(ConversationTopic(saved.ConversationID), view)
	return view, nil
}

// DeleteForMe hides the message from the caller's own history. Other
// viewers and the stored row are unaffected. Calling it twice is a
// no-op.
func (s *Service) DeleteForMe(ctx context.Context, messageID, userID int64) error {
	if _, err := s.DB.GetMessage(ctx, messageID); err != nil {
		return fmt.Errorf("get message: %w", err)
	}
	if err := s.DB.InsertDeletion(ctx, messageID, userID); err != nil {
		return fmt.Errorf("insert deletion: %w", err)
	}
	return nil
}

// ToggleReaction applies one user's emoji to a message: no existing
// reaction inserts one, the same emoji removes it, a different emoji
// replaces it in place. The (message, user) pair never holds more than
// one row.
func (s *Service) ToggleReaction(ctx context.Context, messageID, userID int64, emoji string) error {
	if _, err := s.DB.GetMessage(ctx, messageID); err != nil {
		return fmt.Errorf("get message: %w", err)
	}
	if _, err := s.Users.FindByID(ctx, userID); err != nil {
		return fmt.Errorf("find user: %w", err)
	}

	existing, err := s.DB.FindReaction(ctx, messageID, userID)
	switch {
	case errors.Is(err, ErrReactionNotFound):
		if _, err := s.DB.InsertReaction(ctx, Reaction{
			MessageID: messageID,
			UserID:    userID,
			Emoji:     emoji,
			CreatedAt: s.now(),
		}); err != nil {
			return fmt.Errorf("insert reaction: %w", err)
		}
	case err != nil:
		return fmt.Errorf("find reaction: %w", err)
	case existing.Emoji == emoji:
		if err := s.DB.DeleteReaction(ctx, existing.ID); err != nil {
			return fmt.Errorf("delete reaction: %w", err)
		}
	default:
		if err := s.DB.UpdateReactionEmoji(ctx, existing.ID, emoji); err != nil {
			return fmt.Errorf("update reaction: %w", err)
		}
	}
	return nil
}

// CreateOrGetConversation resolves the pair-conversation between two
// users, creating it on first contact. The pair is unordered.
func (s *Service) CreateOrGetConversation(ctx context.Context, userID, otherID int64) (Conversation, error) {
	if _, err := s.Users.FindByID(ctx, otherID); err != nil {
		return Conversation{}, fmt.Errorf("find other user: %w", err)
	}

	conv, err := s.DB.FindConversation(ctx, userID, otherID)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, ErrConversationNotFound) {
		return Conversation{}, fmt.Errorf("find conversation: %w", err)
	}

	conv, err = s.DB.InsertConversation(ctx, Conversation{
		User1ID:   userID,
		User2ID:   otherID,
		CreatedAt: s.now(),
	})
	if err != nil {
		return Conversation{}, fmt.Errorf("insert conversation: %w", err)
	}
	s.Logger.Info("Conversation created", "conversation_id", conv.ID, "user1_id", userID, "user2_id", otherID)
	return conv, nil
}

// Authorize verifies that userID takes part in the conversation.
// Subscription gatekeeping for live topics.
func (s *Service) Authorize(ctx context.Context, conversationID, userID int64) error {
	conv, err := s.DB.GetConversation(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("get conversation: %w", err)
	}
	if !conv.Has(userID) {
		return ErrNotParticipant
	}
	return nil
}

// ListConversations returns every conversation the user takes part in.
func (s *Service) ListConversations(ctx context.Context, userID int64) ([]Conversation, error) {
	return s.DB.ListConversations(ctx, userID)
}

// RelayTyping forwards a typing notification to the conversation's
// typing topic. Nothing is persisted.
func (s *Service) RelayTyping(ev TypingEvent) {
	s.Broadcast.Publish(TypingTopic(ev.ConversationID), ev)
}
