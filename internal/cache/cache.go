// Package cache persists unfinished free-practice sessions so a bank
// can be reopened with its answers and cursor intact. Exam sessions
// never touch it.
package cache

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var ErrNotFound = errors.New("session cache entry not found")

// Store is a per-bank key/value surface over the app-state DB. Writes
// are best-effort from the engine's point of view: callers swallow
// errors and degrade to a fresh session.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Get(ctx context.Context, bankID string) ([]byte, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT state_json FROM session_cache WHERE bank_id = $1`, bankID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return []byte(raw), nil
}

func (s *Store) Put(ctx context.Context, bankID string, state []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_cache (bank_id, state_json, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (bank_id) DO UPDATE SET state_json = $2, updated_at = $3`,
		bankID, string(state), time.Now().Unix())
	return err
}

func (s *Store) Delete(ctx context.Context, bankID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM session_cache WHERE bank_id = $1`, bankID)
	return err
}
