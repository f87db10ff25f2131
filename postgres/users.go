package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/driftlabs/chatwire/chat"
)

// FindByID returns the user with the given id.
func (pg *Postgres) FindByID(ctx context.Context, id int64) (chat.User, error) {
	var u user
	err := pg.bun.NewSelect().
		Model(&u).
		Where("id = ?", id).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return chat.User{}, chat.ErrUserNotFound
	}
	if err != nil {
		return chat.User{}, fmt.Errorf("scan: %w", err)
	}
	return u.ChatUser(), nil
}

// FindByEmail returns the user with the given email.
func (pg *Postgres) FindByEmail(ctx context.Context, email string) (chat.User, error) {
	var u user
	err := pg.bun.NewSelect().
		Model(&u).
		Where("email = ?", email).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return chat.User{}, chat.ErrUserNotFound
	}
	if err != nil {
		return chat.User{}, fmt.Errorf("scan: %w", err)
	}
	return u.ChatUser(), nil
}

// FindByPhone returns the user registered under the given phone number.
func (pg *Postgres) FindByPhone(ctx context.Context, phone string) (chat.User, error) {
	var u user
	err := pg.bun.NewSelect().
		Model(&u).
		Where("phone_number = ?", phone).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return chat.User{}, chat.ErrUserNotFound
	}
	if err != nil {
		return chat.User{}, fmt.Errorf("scan: %w", err)
	}
	return u.ChatUser(), nil
}

// ActivationCode returns the stored activation code for a user. Login
// glue only; the delivery core never reads it.
func (pg *Postgres) ActivationCode(ctx context.Context, userID int64) (string, error) {
	var u user
	err := pg.bun.NewSelect().
		Model(&u).
		Column("activation_code").
		Where("id = ?", userID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return "", chat.ErrUserNotFound
	}
	if err != nil {
		return "", fmt.Errorf("scan: %w", err)
	}
	return u.Activation, nil
}

// InsertUser registers a new user. The returned user holds the
// generated id.
func (pg *Postgres) InsertUser(ctx context.Context, cu chat.User, activationCode string) (chat.User, error) {
	u := &user{
		Email:       cu.Email,
		PhoneNumber: cu.PhoneNumber,
		DisplayName: cu.DisplayName,
		AvatarURL:   cu.AvatarURL,
		Activation:  activationCode,
		CreatedAt:   cu.CreatedAt,
		LastLoginAt: cu.LastLoginAt,
	}
	if _, err := pg.bun.NewInsert().Model(u).Exec(ctx); err != nil {
		return chat.User{}, fmt.Errorf("insert: %w", err)
	}
	return u.ChatUser(), nil
}

// TouchLastLogin stamps the user's last successful login.
func (pg *Postgres) TouchLastLogin(ctx context.Context, userID int64, at time.Time) error {
	_, err := pg.bun.NewUpdate().
		Model((*user)(nil)).
		Set("last_login_at = ?", at).
		Where("id = ?", userID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update: %w", err)
	}
	return nil
}

// UpdateProfile replaces the user's display name and avatar URL.
func (pg *Postgres) UpdateProfile(ctx context.Context, userID int64, displayName, avatarURL string) (chat.User, error) {
	res, err := pg.bun.NewUpdate().
		Model((*user)(nil)).
		Set("display_name = ?", displayName).
		Set("avatar_url = ?", avatarURL).
		Where("id = ?", userID).
		Exec(ctx)
	if err != nil {
		return chat.User{}, fmt.Errorf("update: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return chat.User{}, chat.ErrUserNotFound
	}
	return pg.FindByID(ctx, userID)
}

// ListUsers returns every user except the caller, for the contact
// picker.
func (pg *Postgres) ListUsers(ctx context.Context, excludeID int64) ([]chat.User, error) {
	var users []user
	err := pg.bun.NewSelect().
		Model(&users).
		Where("id != ?", excludeID).
		Order("display_name ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	out := make([]chat.User, len(users))
	for i, u := range users {
		out[i] = u.ChatUser()
	}
	return out, nil
}
