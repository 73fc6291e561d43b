// This file implements token lookups against the relational edge store
// (spec §3 Token, §6 "the hub reads tokens by id prefix and writes
// last_used"). Token creation/revocation is the out-of-scope CRUD surface;
// the hub only ever reads and bumps last_used here.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// TokenRecord mirrors models.Token plus the hashed secret, which never
// leaves this package.
type TokenRecord struct {
	ID          string
	SecretHash  string
	OwnerUserID string
	Name        string
	CreatedAt   time.Time
	LastUsed    *time.Time
	RevokedAt   *time.Time
}

// TokenDB handles database operations for tokens.
type TokenDB struct {
	db *sql.DB
}

func NewTokenDB(db *sql.DB) *TokenDB {
	return &TokenDB{db: db}
}

// GetTokenByID looks up a token by its public id prefix (spec §4.1 rule 1).
func (t *TokenDB) GetTokenByID(ctx context.Context, id string) (*TokenRecord, error) {
	rec := &TokenRecord{}
	query := `
		SELECT id, secret_hash, owner_user_id, name, created_at, last_used, revoked_at
		FROM tokens
		WHERE id = $1
	`
	err := t.db.QueryRowContext(ctx, query, id).Scan(
		&rec.ID, &rec.SecretHash, &rec.OwnerUserID, &rec.Name, &rec.CreatedAt, &rec.LastUsed, &rec.RevokedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("token not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get token %s: %w", id, err)
	}
	return rec, nil
}

// TouchLastUsed records that a token was just used to authenticate a
// connection. Best-effort: the caller treats a failure here as Transient
// (spec §7), not as grounds to reject the already-validated connection.
func (t *TokenDB) TouchLastUsed(ctx context.Context, id string) error {
	_, err := t.db.ExecContext(ctx, `UPDATE tokens SET last_used = $1 WHERE id = $2`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update last_used for token %s: %w", id, err)
	}
	return nil
}
