package prefs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/RobinCoderZhao/optimist-daily/pkg/storage"
)

// Schema is the SQLite schema for category preferences.
const Schema = `
CREATE TABLE IF NOT EXISTS user_preferences (
    user_id     INTEGER PRIMARY KEY,
    categories  TEXT NOT NULL,
    updated_at  TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

// SQLiteStore keeps preferences as a JSON list per user.
type SQLiteStore struct {
	db *storage.DB
}

// NewSQLiteStore creates a preference store on db. The schema must already
// be migrated.
func NewSQLiteStore(db *storage.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) GetCategories(ctx context.Context, userID int) ([]string, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT categories FROM user_preferences WHERE user_id = ?`, userID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get preferences: %w", err)
	}

	var categories []string
	if err := json.Unmarshal([]byte(raw), &categories); err != nil {
		return nil, fmt.Errorf("decode preferences: %w", err)
	}
	if len(categories) == 0 {
		return nil, nil
	}
	return categories, nil
}

func (s *SQLiteStore) SetCategories(ctx context.Context, userID int, categories []string) error {
	if categories == nil {
		categories = []string{}
	}
	raw, err := json.Marshal(categories)
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO user_preferences (user_id, categories, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(user_id) DO UPDATE SET categories = excluded.categories, updated_at = excluded.updated_at
	`, userID, string(raw))
	if err != nil {
		return fmt.Errorf("set preferences: %w", err)
	}
	return nil
}
