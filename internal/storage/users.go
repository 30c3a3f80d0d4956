package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"profitdash/internal/core"
)

// UpsertUser records a sign-in, creating the user on first login.
func (r *Repository) UpsertUser(ctx context.Context, u core.User, now time.Time) error {
	if err := u.Validate(); err != nil {
		return err
	}
	const q = `INSERT INTO users (id, email, display_name, photo_url, created_at, last_login_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    email = excluded.email,
    display_name = excluded.display_name,
    photo_url = excluded.photo_url,
    last_login_at = excluded.last_login_at`
	ts := millis(now)
	if _, err := r.db.ExecContext(ctx, r.db.Rebind(q), u.ID, u.Email, u.DisplayName, u.PhotoURL, ts, ts); err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

func (r *Repository) GetUser(ctx context.Context, id string) (core.User, error) {
	var u core.User
	err := r.db.GetContext(ctx, &u,
		r.db.Rebind(`SELECT id, email, display_name, photo_url FROM users WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, core.ErrUserNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// CreateSession stores a hashed session token for userID.
func (r *Repository) CreateSession(ctx context.Context, tokenHash, userID string, now, expiresAt time.Time) error {
	const q = `INSERT INTO sessions (token_hash, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, r.db.Rebind(q), tokenHash, userID, millis(now), millis(expiresAt)); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// SessionUser resolves a live session to its user.
func (r *Repository) SessionUser(ctx context.Context, tokenHash string, now time.Time) (core.User, error) {
	const q = `SELECT u.id, u.email, u.display_name, u.photo_url
FROM sessions s JOIN users u ON u.id = s.user_id
WHERE s.token_hash = ? AND s.expires_at > ?`
	var u core.User
	err := r.db.GetContext(ctx, &u, r.db.Rebind(q), tokenHash, millis(now))
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, core.ErrSessionNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get session: %w", err)
	}
	return u, nil
}

func (r *Repository) DeleteSession(ctx context.Context, tokenHash string) error {
	if _, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM sessions WHERE token_hash = ?`), tokenHash); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// PurgeExpiredSessions deletes sessions that expired before now.
func (r *Repository) PurgeExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM sessions WHERE expires_at <= ?`), millis(now))
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
