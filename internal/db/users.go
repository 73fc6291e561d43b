// This file implements user lookups against the relational edge store.
// User accounts are provisioned by the OAuth login front (out of scope per
// spec §1); this package only reads/upserts the denormalized profile the
// hub and HTTP front need (id, org, team) for allowlist checks.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// User is the durable profile behind an owning user id.
type User struct {
	ID        string
	Username  string
	Email     string
	Org       string
	Team      string
	CreatedAt time.Time
	LastLogin *time.Time
}

// UserDB handles database operations for users.
type UserDB struct {
	db *sql.DB
}

func NewUserDB(db *sql.DB) *UserDB {
	return &UserDB{db: db}
}

// UpsertFromIdentity records or refreshes a user's profile after a
// successful OAuth login, and stamps last_login.
func (u *UserDB) UpsertFromIdentity(ctx context.Context, user *User) error {
	query := `
		INSERT INTO users (id, username, email, org, team, created_at, last_login)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			username = EXCLUDED.username,
			email = EXCLUDED.email,
			org = EXCLUDED.org,
			team = EXCLUDED.team,
			last_login = EXCLUDED.last_login
	`
	now := time.Now()
	_, err := u.db.ExecContext(ctx, query, user.ID, user.Username, user.Email, user.Org, user.Team, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert user %s: %w", user.ID, err)
	}
	return nil
}

// GetUser retrieves a user profile by id.
func (u *UserDB) GetUser(ctx context.Context, id string) (*User, error) {
	user := &User{}
	query := `SELECT id, username, email, COALESCE(org, ''), COALESCE(team, ''), created_at, last_login FROM users WHERE id = $1`
	err := u.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID, &user.Username, &user.Email, &user.Org, &user.Team, &user.CreatedAt, &user.LastLogin,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("user not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get user %s: %w", id, err)
	}
	return user, nil
}
