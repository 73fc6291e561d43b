// This file implements login-session lookups against the relational edge
// store: the durable record behind a browser's session cookie (spec §6,
// "it reads sessions by cookie value"). This is distinct from the hub's own
// in-memory Browser Observer, which has no durable identity at all.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// LoginSession is a durable record of an issued browser session cookie.
type LoginSession struct {
	CookieValue string
	UserID      string
	JTI         string
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// SessionDB handles database operations for login sessions.
type SessionDB struct {
	db *sql.DB
}

func NewSessionDB(db *sql.DB) *SessionDB {
	return &SessionDB{db: db}
}

// CreateLoginSession stores a newly issued session cookie.
func (s *SessionDB) CreateLoginSession(ctx context.Context, sess *LoginSession) error {
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO login_sessions (cookie_value, user_id, jti, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (cookie_value) DO UPDATE SET
			expires_at = EXCLUDED.expires_at
	`
	_, err := s.db.ExecContext(ctx, query, sess.CookieValue, sess.UserID, sess.JTI, sess.CreatedAt, sess.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to create login session for user %s: %w", sess.UserID, err)
	}
	return nil
}

// GetLoginSession looks up a session by its cookie value.
func (s *SessionDB) GetLoginSession(ctx context.Context, cookieValue string) (*LoginSession, error) {
	sess := &LoginSession{}
	query := `
		SELECT cookie_value, user_id, jti, created_at, expires_at
		FROM login_sessions
		WHERE cookie_value = $1
	`
	err := s.db.QueryRowContext(ctx, query, cookieValue).Scan(
		&sess.CookieValue, &sess.UserID, &sess.JTI, &sess.CreatedAt, &sess.ExpiresAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("session not found")
		}
		return nil, fmt.Errorf("failed to get login session: %w", err)
	}
	if time.Now().After(sess.ExpiresAt) {
		return nil, fmt.Errorf("session expired")
	}
	return sess, nil
}

// DeleteLoginSession removes a session (logout).
func (s *SessionDB) DeleteLoginSession(ctx context.Context, cookieValue string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM login_sessions WHERE cookie_value = $1`, cookieValue)
	if err != nil {
		return fmt.Errorf("failed to delete login session: %w", err)
	}
	return nil
}
