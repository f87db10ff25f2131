package postgres

import (
	"context"
	"fmt"

	"github.com/driftlabs/chatwire/chat"
)

// SaveContact upserts an address book entry: first save inserts,
// saving the same user again replaces the nickname.
func (pg *Postgres) SaveContact(ctx context.Context, ownerID, savedUserID int64, nickname string) (chat.Contact, error) {
	c := &contact{
		OwnerID:     ownerID,
		SavedUserID: savedUserID,
		Nickname:    nickname,
	}
	_, err := pg.bun.NewInsert().
		Model(c).
		On("CONFLICT (owner_id, saved_user_id) DO UPDATE").
		Set("nickname = EXCLUDED.nickname").
		Returning("*").
		Exec(ctx)
	if err != nil {
		return chat.Contact{}, fmt.Errorf("insert: %w", err)
	}
	return c.ChatContact(), nil
}

// ListContacts returns the owner's address book ordered by nickname.
func (pg *Postgres) ListContacts(ctx context.Context, ownerID int64) ([]chat.Contact, error) {
	var contacts []contact
	err := pg.bun.NewSelect().
		Model(&contacts).
		Where("owner_id = ?", ownerID).
		Order("nickname ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	out := make([]chat.Contact, len(contacts))
	for i, c := range contacts {
		out[i] = c.ChatContact()
	}
	return out, nil
}
