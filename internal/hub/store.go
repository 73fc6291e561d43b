// This file implements the durable local key-value store backing one
// user's Registry (spec §4.2, §6 "Durable local key-value store
// contract"). It is a queryable projection that must be reconstructible
// into an identical Registry after a cold wake — the in-memory map is a
// cache over this store, never the other way around (§9).
//
// Grounded on the sqliteIndex pattern: WAL mode plus a busy timeout so a
// single hub's reads and writes never block on file locks, and
// INSERT OR REPLACE for idempotent upserts.
package hub

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"

	_ "github.com/glebarez/go-sqlite"

	"github.com/relaybridge/hub/internal/models"
)

// Store is the per-user durable KV store. One Store belongs to exactly
// one Hub; nothing outside the owning hub ever opens it.
type Store struct {
	db *sql.DB
}

// OpenStore opens (or creates) the SQLite-backed store for userID under
// baseDir. The file is namespaced by user id so hubs never share storage.
func OpenStore(baseDir, userID string) (*Store, error) {
	path := filepath.Join(baseDir, userID+".db")
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening hub store for user %s: %w", userID, err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS clients (
			client_id TEXT PRIMARY KEY,
			row       TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating hub store schema for user %s: %w", userID, err)
	}

	return &Store{db: db}, nil
}

// Initialized reports whether this store has completed a first run
// (meta:initialized, per §6).
func (s *Store) Initialized() (bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key = 'initialized'`).Scan(&value)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading meta:initialized: %w", err)
	}
	return value == "true", nil
}

// MarkInitialized records that the store has completed its first run.
func (s *Store) MarkInitialized() error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO meta (key, value) VALUES ('initialized', 'true')`)
	if err != nil {
		return fmt.Errorf("writing meta:initialized: %w", err)
	}
	return nil
}

// PutClient writes through a Client row (§4.2 "written through to the
// durable store synchronously before broadcast").
func (s *Store) PutClient(c models.Client) error {
	row, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling client %s: %w", c.ID, err)
	}
	_, err = s.db.Exec(`INSERT OR REPLACE INTO clients (client_id, row) VALUES (?, ?)`, c.ID, string(row))
	if err != nil {
		return fmt.Errorf("persisting client %s: %w", c.ID, err)
	}
	return nil
}

// DeleteClient removes a persisted Client row.
func (s *Store) DeleteClient(clientID string) error {
	_, err := s.db.Exec(`DELETE FROM clients WHERE client_id = ?`, clientID)
	if err != nil {
		return fmt.Errorf("deleting client %s: %w", clientID, err)
	}
	return nil
}

// LoadAll reconstructs every persisted Client row, keyed by client id. Used
// on cold start to rehydrate the Registry (§4.2).
func (s *Store) LoadAll() (map[string]models.Client, error) {
	rows, err := s.db.Query(`SELECT row FROM clients`)
	if err != nil {
		return nil, fmt.Errorf("loading persisted clients: %w", err)
	}
	defer rows.Close()

	clients := make(map[string]models.Client)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scanning persisted client row: %w", err)
		}
		var c models.Client
		if err := json.Unmarshal([]byte(raw), &c); err != nil {
			return nil, fmt.Errorf("unmarshaling persisted client row: %w", err)
		}
		clients[c.ID] = c
	}
	return clients, rows.Err()
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
