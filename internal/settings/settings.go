// Package settings persists the small set of reserved key/value pairs
// (spec.md §3 Setting): mute_until_utc, active_profile_name, and the two
// rollup cursor keys. Values are always strings; timestamps are RFC3339.
package settings

import (
	"context"
	"database/sql"
)

// Reserved keys.
const (
	KeyMuteUntilUTC           = "mute_until_utc"
	KeyActiveProfileName      = "active_profile_name"
	KeyRollupRawTo1mNextStart = "rollup_raw_to_1m_next_start_utc"
	KeyRollup1mTo15mNextStart = "rollup_1m_to_15m_next_start_utc"
)

// Store is the key/value repository backing Setting rows.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Get returns the value for key, or ("", false, nil) if unset.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM app_state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// GetTx is the transactional counterpart of Get.
func (s *Store) GetTx(ctx context.Context, tx *sql.Tx, key string) (string, bool, error) {
	var value string
	err := tx.QueryRowContext(ctx, `SELECT value FROM app_state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Set stores value for key. A nil-equivalent empty value is still stored; to
// delete a key, call Delete.
func (s *Store) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO app_state (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

// SetTx is the transactional counterpart of Set.
func (s *Store) SetTx(ctx context.Context, tx *sql.Tx, key, value string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO app_state (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

// Delete removes key, implementing the "null deletes" semantics of
// spec.md's SettingsStore.set_setting contract.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM app_state WHERE key = ?`, key)
	return err
}
