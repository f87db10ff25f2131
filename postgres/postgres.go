// Package postgres implements the chat storage layer on PostgreSQL.
// Status updates are conditional so concurrent fetch/seen calls can
// never move a message backwards.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/driftlabs/chatwire/chat"
)

// Postgres provides storage in PostgreSQL. It implements chat.DB and
// chat.UserDirectory.
type Postgres struct {
	bun *bun.DB
}

// Connect connects to the database and pings it to ensure the
// connection is working.
func Connect(ctx context.Context, connStr string) (*Postgres, error) {
	sqlDB := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(connStr)))
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	db := bun.NewDB(sqlDB, pgdialect.New())
	return &Postgres{
		bun: db,
	}, nil
}

// Close releases the underlying connection pool.
func (pg *Postgres) Close() error {
	return pg.bun.Close()
}

// GetConversation returns the conversation with the given id.
func (pg *Postgres) GetConversation(ctx context.Context, id int64) (chat.Conversation, error) {
	var c conversation
	err := pg.bun.NewSelect().
		Model(&c).
		Where("id = ?", id).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return chat.Conversation{}, chat.ErrConversationNotFound
	}
	if err != nil {
		return chat.Conversation{}, fmt.Errorf("scan: %w", err)
	}
	return c.ChatConversation(), nil
}

// FindConversation resolves the conversation between two users in
// either column order.
func (pg *Postgres) FindConversation(ctx context.Context, userA, userB int64) (chat.Conversation, error) {
	var c conversation
	err := pg.bun.NewSelect().
		Model(&c).
		Where("(user1_id = ? AND user2_id = ?) OR (user1_id = ? AND user2_id = ?)", userA, userB, userB, userA).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return chat.Conversation{}, chat.ErrConversationNotFound
	}
	if err != nil {
		return chat.Conversation{}, fmt.Errorf("scan: %w", err)
	}
	return c.ChatConversation(), nil
}

// InsertConversation creates the pair-conversation. The returned value
// holds the generated id.
func (pg *Postgres) InsertConversation(ctx context.Context, conv chat.Conversation) (chat.Conversation, error) {
	c := &conversation{
		User1ID:   conv.User1ID,
		User2ID:   conv.User2ID,
		CreatedAt: conv.CreatedAt,
	}
	if _, err := pg.bun.NewInsert().Model(c).Exec(ctx); err != nil {
		return chat.Conversation{}, fmt.Errorf("insert: %w", err)
	}
	return c.ChatConversation(), nil
}

// ListConversations returns every conversation the user participates in.
func (pg *Postgres) ListConversations(ctx context.Context, userID int64) ([]chat.Conversation, error) {
	var convs []conversation
	err := pg.bun.NewSelect().
		Model(&convs).
		Where("user1_id = ? OR user2_id = ?", userID, userID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	out := make([]chat.Conversation, len(convs))
	for i, c := range convs {
		out[i] = c.ChatConversation()
	}
	return out, nil
}

// InsertMessage inserts a message. The returned message holds the
// generated id.
func (pg *Postgres) InsertMessage(ctx context.Context, msg chat.Message) (chat.Message, error) {
	m := &message{
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		Content:        msg.Content,
		Status:         string(msg.Status),
		CreatedAt:      msg.CreatedAt,
	}
	if _, err := pg.bun.NewInsert().Model(m).Exec(ctx); err != nil {
		return chat.Message{}, fmt.Errorf("insert: %w", err)
	}
	return m.ChatMessage(), nil
}

// GetMessage returns the message with its reactions.
func (pg *Postgres) GetMessage(ctx context.Context, id int64) (chat.Message, error) {
	var m message
	err := pg.bun.NewSelect().
		Model(&m).
		Relation("Reactions", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("id ASC")
		}).
		Where("message.id = ?", id).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return chat.Message{}, chat.ErrMessageNotFound
	}
	if err != nil {
		return chat.Message{}, fmt.Errorf("scan: %w", err)
	}
	return m.ChatMessage(), nil
}

// ListMessages returns one page of a conversation ordered by creation
// time descending, excluding rows the viewer deleted for themselves,
// along with the total count of visible rows.
func (pg *Postgres) ListMessages(ctx context.Context, conversationID int64, limit, offset int, viewerID int64) ([]chat.Message, int, error) {
	var msgs []message
	total, err := pg.bun.NewSelect().
		Model(&msgs).
		Relation("Reactions", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("id ASC")
		}).
		Where("conversation_id = ?", conversationID).
		Where("NOT EXISTS (SELECT 1 FROM message_deletions AS d WHERE d.message_id = message.id AND d.user_id = ?)", viewerID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		ScanAndCount(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("scan: %w", err)
	}
	out := make([]chat.Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.ChatMessage()
	}
	return out, total, nil
}

// EditMessage writes new content and updated_at. The predicate on the
// tombstone flag makes the write a compare-and-set: a message deleted
// for everyone in the meantime is left untouched and the edit reports
// the conflict.
func (pg *Postgres) EditMessage(ctx context.Context, messageID int64, content string, updatedAt time.Time) (chat.Message, error) {
	res, err := pg.bun.NewUpdate().
		Model((*message)(nil)).
		Set("content = ?", content).
		Set("updated_at = ?", updatedAt).
		Where("id = ?", messageID).
		Where("deleted_for_everyone = FALSE").
		Exec(ctx)
	if err != nil {
		return chat.Message{}, fmt.Errorf("update: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// Either the row is gone or it was tombstoned under us.
		if _, err := pg.GetMessage(ctx, messageID); err != nil {
			return chat.Message{}, err
		}
		return chat.Message{}, chat.ErrMessageDeleted
	}
	return pg.GetMessage(ctx, messageID)
}

// TombstoneMessage replaces the content with the tombstone placeholder,
// sets deleted_for_everyone and clears updated_at. Idempotent.
func (pg *Postgres) TombstoneMessage(ctx context.Context, messageID int64) (chat.Message, error) {
	res, err := pg.bun.NewUpdate().
		Model((*message)(nil)).
		Set("content = ?", chat.TombstoneContent).
		Set("deleted_for_everyone = TRUE").
		Set("updated_at = NULL").
		Where("id = ?", messageID).
		Exec(ctx)
	if err != nil {
		return chat.Message{}, fmt.Errorf("update: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return chat.Message{}, chat.ErrMessageNotFound
	}
	return pg.GetMessage(ctx, messageID)
}

// MarkDelivered advances the given messages from sent to delivered. The
// status predicate makes the update a compare-and-set: rows already at
// delivered or seen are untouched.
func (pg *Postgres) MarkDelivered(ctx context.Context, messageIDs []int64) error {
	if len(messageIDs) == 0 {
		return nil
	}
	_, err := pg.bun.NewUpdate().
		Model((*message)(nil)).
		Set("status = ?", string(chat.StatusDelivered)).
		Where("id IN (?)", bun.In(messageIDs)).
		Where("status = ?", string(chat.StatusSent)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update: %w", err)
	}
	return nil
}

// MarkSeen advances every message in the conversation not authored by
// viewerID to seen and reports how many rows changed.
func (pg *Postgres) MarkSeen(ctx context.Context, conversationID, viewerID int64) (int64, error) {
	res, err := pg.bun.NewUpdate().
		Model((*message)(nil)).
		Set("status = ?", string(chat.StatusSeen)).
		Where("conversation_id = ?", conversationID).
		Where("sender_id != ?", viewerID).
		Where("status != ?", string(chat.StatusSeen)).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// FindReaction returns the single reaction a user holds on a message.
func (pg *Postgres) FindReaction(ctx context.Context, messageID, userID int64) (chat.Reaction, error) {
	var r messageReaction
	err := pg.bun.NewSelect().
		Model(&r).
		Where("message_id = ?", messageID).
		Where("user_id = ?", userID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return chat.Reaction{}, chat.ErrReactionNotFound
	}
	if err != nil {
		return chat.Reaction{}, fmt.Errorf("scan: %w", err)
	}
	return r.ChatReaction(), nil
}

// InsertReaction inserts a reaction row.
func (pg *Postgres) InsertReaction(ctx context.Context, reaction chat.Reaction) (chat.Reaction, error) {
	r := &messageReaction{
		MessageID: reaction.MessageID,
		UserID:    reaction.UserID,
		Emoji:     reaction.Emoji,
		CreatedAt: reaction.CreatedAt,
	}
	if _, err := pg.bun.NewInsert().Model(r).Exec(ctx); err != nil {
		return chat.Reaction{}, fmt.Errorf("insert: %w", err)
	}
	return r.ChatReaction(), nil
}

// UpdateReactionEmoji replaces the emoji on an existing reaction row.
func (pg *Postgres) UpdateReactionEmoji(ctx context.Context, reactionID int64, emoji string) error {
	_, err := pg.bun.NewUpdate().
		Model((*messageReaction)(nil)).
		Set("emoji = ?", emoji).
		Where("id = ?", reactionID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update: %w", err)
	}
	return nil
}

// DeleteReaction removes a reaction row.
func (pg *Postgres) DeleteReaction(ctx context.Context, reactionID int64) error {
	_, err := pg.bun.NewDelete().
		Model((*messageReaction)(nil)).
		Where("id = ?", reactionID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	return nil
}

// InsertDeletion records a per-viewer deletion. Re-inserting an
// existing pair is a no-op.
func (pg *Postgres) InsertDeletion(ctx context.Context, messageID, userID int64) error {
	d := &messageDeletion{
		MessageID: messageID,
		UserID:    userID,
	}
	_, err := pg.bun.NewInsert().
		Model(d).
		On("CONFLICT (message_id, user_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("insert: %w", err)
	}
	return nil
}
