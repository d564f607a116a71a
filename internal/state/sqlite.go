package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists session state in SQLite so user- and app-scoped
// values survive process restarts. Values are stored JSON-encoded, one row
// per key. Ephemeral entries are dropped on Save rather than persisted.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the state database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) init() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS session_state (
		session_id TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (session_id, key)
	)`)
	if err != nil {
		return fmt.Errorf("init state db: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Load(sessionID string) (map[string]any, error) {
	rows, err := s.db.Query(
		`SELECT key, value FROM session_state WHERE session_id = ?`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	defer rows.Close()

	m := make(map[string]any)
	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, err
		}
		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			continue // skip rows that no longer decode
		}
		m[key] = value
	}
	return m, rows.Err()
}

func (s *SQLiteStore) Save(sessionID string, m map[string]any) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`DELETE FROM session_state WHERE session_id = ?`, sessionID); err != nil {
		return err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for key, value := range m {
		if strings.HasPrefix(key, prefixTemp) {
			continue
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("encode state key %q: %w", key, err)
		}
		if _, err := tx.Exec(
			`INSERT INTO session_state (session_id, key, value, updated_at) VALUES (?, ?, ?, ?)`,
			sessionID, key, string(raw), now); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
